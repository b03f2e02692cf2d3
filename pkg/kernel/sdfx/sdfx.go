// Package sdfx implements kernel.Kernel on the github.com/deadsy/sdfx
// signed distance field library. Solids answer distance queries exactly as
// sdfx evaluates them, which is what castellation needs; ToMesh is only a
// preview and runs marching cubes at a fixed resolution.
package sdfx

import (
	"fmt"
	"math"

	"github.com/deadsy/sdfx/render"
	"github.com/deadsy/sdfx/sdf"
	v3 "github.com/deadsy/sdfx/vec/v3"

	"github.com/chazu/meshqual/pkg/kernel"
)

var _ kernel.Kernel = (*Kernel)(nil)

// DefaultMeshCells is the marching cubes resolution along the longest
// bounding box axis.
const DefaultMeshCells = 200

type solid struct {
	sdf sdf.SDF3
}

func (s *solid) BoundingBox() (min, max [3]float64) {
	bb := s.sdf.BoundingBox()
	return toArray(bb.Min), toArray(bb.Max)
}

func (s *solid) Distance(p [3]float64) float64 {
	return s.sdf.Evaluate(v3.Vec{X: p[0], Y: p[1], Z: p[2]})
}

func toArray(v v3.Vec) [3]float64 { return [3]float64{v.X, v.Y, v.Z} }

// Kernel builds sdfx solids.
type Kernel struct {
	meshCells int
}

// Option configures a Kernel.
type Option func(*Kernel)

// WithMeshCells sets the marching cubes resolution used by ToMesh.
// Non-positive values are ignored.
func WithMeshCells(n int) Option {
	return func(k *Kernel) {
		if n > 0 {
			k.meshCells = n
		}
	}
}

// New returns a Kernel.
func New(opts ...Option) *Kernel {
	k := &Kernel{meshCells: DefaultMeshCells}
	for _, opt := range opts {
		opt(k)
	}
	return k
}

// sdfOf panics on solids from another kernel; mixing kernels is a
// programming error.
func sdfOf(s kernel.Solid) sdf.SDF3 {
	return s.(*solid).sdf
}

// must wraps a primitive constructor result. Constructors only fail on
// non-positive dimensions, which callers reject first.
func must(name string, s sdf.SDF3, err error) kernel.Solid {
	if err != nil {
		panic(fmt.Sprintf("sdfx: %s: %v", name, err))
	}
	return &solid{sdf: s}
}

// Box returns an x×y×z box centred on the origin.
func (k *Kernel) Box(x, y, z float64) kernel.Solid {
	s, err := sdf.Box3D(v3.Vec{X: x, Y: y, Z: z}, 0)
	return must("box", s, err)
}

// Cylinder returns a cylinder along z centred on the origin. SDF surfaces
// are smooth, so segments has no effect.
func (k *Kernel) Cylinder(height, radius float64, segments int) kernel.Solid {
	s, err := sdf.Cylinder3D(height, radius, 0)
	return must("cylinder", s, err)
}

// Sphere returns a sphere centred on the origin.
func (k *Kernel) Sphere(radius float64) kernel.Solid {
	s, err := sdf.Sphere3D(radius)
	return must("sphere", s, err)
}

func (k *Kernel) Union(a, b kernel.Solid) kernel.Solid {
	return &solid{sdf: sdf.Union3D(sdfOf(a), sdfOf(b))}
}

// Difference removes b from a.
func (k *Kernel) Difference(a, b kernel.Solid) kernel.Solid {
	return &solid{sdf: sdf.Difference3D(sdfOf(a), sdfOf(b))}
}

func (k *Kernel) Intersection(a, b kernel.Solid) kernel.Solid {
	return &solid{sdf: sdf.Intersect3D(sdfOf(a), sdfOf(b))}
}

// Translate moves s by (x, y, z).
func (k *Kernel) Translate(s kernel.Solid, x, y, z float64) kernel.Solid {
	return &solid{sdf: sdf.Transform3D(sdfOf(s), sdf.Translate3d(v3.Vec{X: x, Y: y, Z: z}))}
}

// Rotate turns s about the x, then y, then z axis by the given degrees.
func (k *Kernel) Rotate(s kernel.Solid, x, y, z float64) kernel.Solid {
	rad := func(deg float64) float64 { return deg * math.Pi / 180 }
	m := sdf.RotateZ(rad(z)).Mul(sdf.RotateY(rad(y))).Mul(sdf.RotateX(rad(x)))
	return &solid{sdf: sdf.Transform3D(sdfOf(s), m)}
}

// ToMesh tessellates s with marching cubes. Triangles do not share
// vertices, so each carries its own flat normal.
func (k *Kernel) ToMesh(s kernel.Solid) (*kernel.Mesh, error) {
	tris := render.ToTriangles(sdfOf(s), render.NewMarchingCubesUniform(k.meshCells))
	if len(tris) == 0 {
		return nil, fmt.Errorf("sdfx: marching cubes at %d cells produced no triangles", k.meshCells)
	}

	m := &kernel.Mesh{
		Vertices: make([]float32, 0, 9*len(tris)),
		Normals:  make([]float32, 0, 9*len(tris)),
		Indices:  make([]uint32, 0, 3*len(tris)),
	}
	for _, tri := range tris {
		n := tri.Normal()
		for _, v := range tri {
			m.Indices = append(m.Indices, uint32(m.VertexCount()))
			m.Vertices = append(m.Vertices, float32(v.X), float32(v.Y), float32(v.Z))
			m.Normals = append(m.Normals, float32(n.X), float32(n.Y), float32(n.Z))
		}
	}
	return m, nil
}
