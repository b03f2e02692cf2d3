// Package surface turns the boundary of a polymesh into triangle meshes
// painted with a quality field, so poor faces can be inspected in any
// viewer that reads kernel meshes. One mesh is produced per patch.
package surface

import (
	"fmt"

	"github.com/chazu/meshqual/pkg/kernel"
	"github.com/chazu/meshqual/pkg/polymesh"
	"github.com/chazu/meshqual/pkg/quality"
)

// Extract triangulates every boundary face of g into a single mesh and
// attaches f to its vertices.
func Extract(g *polymesh.Geometry, f quality.Field) (*kernel.Mesh, error) {
	if err := check(g, f); err != nil {
		return nil, err
	}
	m := &kernel.Mesh{Field: f.Name, PartName: "boundary"}
	for face := g.NInternalFaces(); face < g.NFaces(); face++ {
		appendFace(m, g, f, face)
	}
	return m, nil
}

// ExtractPatches produces one painted mesh per boundary patch, named after
// the patch. Empty patches yield no mesh.
func ExtractPatches(g *polymesh.Geometry, f quality.Field) ([]*kernel.Mesh, error) {
	if err := check(g, f); err != nil {
		return nil, err
	}
	var meshes []*kernel.Mesh
	for _, p := range g.BoundaryPatches() {
		if p.Size == 0 {
			continue
		}
		m := &kernel.Mesh{Field: f.Name, PartName: p.Name}
		for face := p.Start; face < p.End(); face++ {
			appendFace(m, g, f, face)
		}
		meshes = append(meshes, m)
	}
	return meshes, nil
}

func check(g *polymesh.Geometry, f quality.Field) error {
	if g == nil {
		return fmt.Errorf("surface: nil geometry")
	}
	want := g.NFaces()
	if f.Location == quality.LocationCell {
		want = g.NCells
	}
	if len(f.Values) != want {
		return fmt.Errorf("surface: field %q has %d values, want one per %s (%d)",
			f.Name, len(f.Values), f.Location, want)
	}
	return nil
}

// appendFace fans face around its centroid: an n-gon becomes n triangles
// sharing the centroid vertex. Vertices are not shared between faces so
// every face keeps its own flat normal and value.
func appendFace(m *kernel.Mesh, g *polymesh.Geometry, f quality.Field, face int) {
	value := f.Values[face]
	if f.Location == quality.LocationCell {
		value = f.Values[g.Owner[face]]
	}
	n := g.FaceNormal(face)
	pts := g.Faces[face]

	base := uint32(m.VertexCount())
	emit := func(p polymesh.Vec) {
		m.Vertices = append(m.Vertices, float32(p.X), float32(p.Y), float32(p.Z))
		m.Normals = append(m.Normals, float32(n.X), float32(n.Y), float32(n.Z))
		m.Values = append(m.Values, float32(value))
	}
	for _, p := range pts {
		emit(g.Points[p])
	}
	emit(g.FaceCentres[face])

	centre := base + uint32(len(pts))
	for i := range pts {
		next := (i + 1) % len(pts)
		m.Indices = append(m.Indices, base+uint32(i), base+uint32(next), centre)
	}
}
