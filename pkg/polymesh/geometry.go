package polymesh

import (
	"math"

	v3 "github.com/deadsy/sdfx/vec/v3"
)

// relativeTolerance scales the mesh bounding-box diagonal into the length
// below which vectors are treated as degenerate.
const relativeTolerance = 1e-10

// Geometry holds the quantities derived once from a mesh snapshot. It embeds
// the mesh for topology; neither is modified after construction.
type Geometry struct {
	*Mesh

	FaceAreas   []Vec // area-weighted normal, outward from the owner
	FaceCentres []Vec
	CellCentres []Vec
	CellVolumes []float64

	// Tolerance is the length below which a vector counts as zero.
	Tolerance float64

	Warnings []ValidationWarning
}

// Vec is the 3D vector type used throughout the mesh geometry.
type Vec = v3.Vec

// AreaTolerance is the area below which a face counts as degenerate.
func (g *Geometry) AreaTolerance() float64 {
	return g.Tolerance * g.Tolerance
}

// VolumeTolerance is the volume at or below which a cell counts as empty.
func (g *Geometry) VolumeTolerance() float64 {
	return g.Tolerance * g.Tolerance * g.Tolerance
}

// FaceNormal returns the unit normal of face f, or the zero vector for a
// degenerate face.
func (g *Geometry) FaceNormal(f int) Vec {
	sf := g.FaceAreas[f]
	mag := sf.Length()
	if mag <= g.AreaTolerance() {
		return Vec{}
	}
	return sf.DivScalar(mag)
}

// ComputeGeometry validates the mesh and derives its geometry. Structural
// inconsistencies and empty cells are reported as *InvalidMeshError.
func ComputeGeometry(m *Mesh) (*Geometry, error) {
	if errs := validateStructure(m); len(errs) > 0 {
		return nil, &InvalidMeshError{Problems: errs}
	}
	g := computeGeometry(m)
	errs, warnings := validateGeometry(g)
	if len(errs) > 0 {
		return nil, &InvalidMeshError{Problems: errs}
	}
	g.Warnings = warnings
	return g, nil
}

// computeGeometry assumes a structurally valid mesh.
func computeGeometry(m *Mesh) *Geometry {
	g := &Geometry{
		Mesh:        m,
		FaceAreas:   make([]Vec, len(m.Faces)),
		FaceCentres: make([]Vec, len(m.Faces)),
		CellCentres: make([]Vec, m.NCells),
		CellVolumes: make([]float64, m.NCells),
	}

	min, max := m.Bounds()
	g.Tolerance = relativeTolerance * max.Sub(min).Length()
	if g.Tolerance == 0 {
		g.Tolerance = math.SmallestNonzeroFloat64
	}

	for f, face := range m.Faces {
		g.FaceCentres[f], g.FaceAreas[f] = faceGeometry(m.Points, face)
	}
	computeCells(g)
	return g
}

// faceGeometry returns the centroid and area vector of a polygon. Polygons
// with more than three points are split into triangles around the vertex
// average; the centroid is the area-weighted mean of those triangles.
func faceGeometry(points []Vec, face Face) (centre, area Vec) {
	n := len(face)
	if n == 3 {
		a, b, c := points[face[0]], points[face[1]], points[face[2]]
		centre = a.Add(b).Add(c).DivScalar(3)
		area = b.Sub(a).Cross(c.Sub(a)).MulScalar(0.5)
		return centre, area
	}

	var avg Vec
	for _, p := range face {
		avg = avg.Add(points[p])
	}
	avg = avg.DivScalar(float64(n))

	var sumN, sumAc Vec
	var sumA float64
	for i, p := range face {
		this := points[p]
		next := points[face[(i+1)%n]]
		c := this.Add(next).Add(avg)
		tri := next.Sub(this).Cross(avg.Sub(this))
		a := tri.Length()
		sumN = sumN.Add(tri)
		sumA += a
		sumAc = sumAc.Add(c.MulScalar(a))
	}

	if sumA == 0 {
		return avg, Vec{}
	}
	return sumAc.DivScalar(3 * sumA), sumN.MulScalar(0.5)
}

// computeCells fills cell centroids and volumes by decomposing every cell
// into pyramids whose apex is the mean of the cell's face centroids.
func computeCells(g *Geometry) {
	nFaces := make([]int, g.NCells)
	est := make([]Vec, g.NCells)
	for f, own := range g.Owner {
		est[own] = est[own].Add(g.FaceCentres[f])
		nFaces[own]++
	}
	for f, nei := range g.Neighbour {
		est[nei] = est[nei].Add(g.FaceCentres[f])
		nFaces[nei]++
	}
	for c := range est {
		if nFaces[c] > 0 {
			est[c] = est[c].DivScalar(float64(nFaces[c]))
		}
	}

	accumulate := func(c int, fc Vec, pyr3 float64) {
		pc := fc.MulScalar(0.75).Add(est[c].MulScalar(0.25))
		g.CellCentres[c] = g.CellCentres[c].Add(pc.MulScalar(pyr3))
		g.CellVolumes[c] += pyr3
	}
	for f, own := range g.Owner {
		fc := g.FaceCentres[f]
		accumulate(own, fc, g.FaceAreas[f].Dot(fc.Sub(est[own])))
	}
	for f, nei := range g.Neighbour {
		fc := g.FaceCentres[f]
		accumulate(nei, fc, g.FaceAreas[f].Dot(est[nei].Sub(fc)))
	}

	for c, vol3 := range g.CellVolumes {
		if vol3 != 0 {
			g.CellCentres[c] = g.CellCentres[c].DivScalar(vol3)
		} else {
			g.CellCentres[c] = est[c]
		}
		g.CellVolumes[c] = vol3 / 3
	}
}
