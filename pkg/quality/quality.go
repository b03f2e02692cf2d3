// Package quality computes cell and face mesh-quality metrics
// (non-orthogonality and skewness) from the static geometry of a polyhedral
// mesh.
//
// Face metrics are reduced to cells by taking the maximum over the faces of
// each cell. Non-orthogonality is measured in degrees; skewness is the
// distance between a face centroid and the point where the owner-neighbour
// centroid line crosses the face plane, divided by the centroid distance.
// Boundary faces have no neighbour: they use the foot of the owner centroid
// on the face plane, divided by the owner-to-face-centroid distance.
package quality

import (
	"context"
	"math"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/chazu/meshqual/pkg/polymesh"
)

// Evaluator computes the quality metrics of one mesh snapshot. Each metric
// is computed on first request and memoized. It is safe for concurrent use.
type Evaluator struct {
	geom *polymesh.Geometry

	faceNonOrthoOnce sync.Once
	faceNonOrtho     []float64

	faceSkewOnce sync.Once
	faceSkew     []float64

	cellNonOrthoOnce sync.Once
	cellNonOrtho     []float64

	cellSkewOnce sync.Once
	cellSkew     []float64
}

// Metrics bundles the four metric arrays.
type Metrics struct {
	CellNonOrtho []float64
	CellSkewness []float64
	FaceNonOrtho []float64
	FaceSkewness []float64
}

// New validates the mesh, derives its geometry and returns an evaluator
// bound to it. A structurally inconsistent mesh yields *polymesh.InvalidMeshError.
func New(m *polymesh.Mesh) (*Evaluator, error) {
	g, err := polymesh.ComputeGeometry(m)
	if err != nil {
		return nil, err
	}
	return FromGeometry(g), nil
}

// FromGeometry returns an evaluator over already-derived geometry.
func FromGeometry(g *polymesh.Geometry) *Evaluator {
	return &Evaluator{geom: g}
}

// Geometry returns the geometry the evaluator is bound to.
func (e *Evaluator) Geometry() *polymesh.Geometry {
	return e.geom
}

// FaceNonOrthogonality returns, for every face, the angle in degrees between
// the owner-to-neighbour centroid vector and the face area vector. Boundary
// faces are 0.
func (e *Evaluator) FaceNonOrthogonality() []float64 {
	e.faceNonOrthoOnce.Do(func() {
		g := e.geom
		result := make([]float64, g.NFaces())
		for f := 0; f < g.NInternalFaces(); f++ {
			d := g.CellCentres[g.Neighbour[f]].Sub(g.CellCentres[g.Owner[f]])
			result[f] = angleDegrees(d, g.FaceAreas[f], g.Tolerance, g.AreaTolerance())
		}
		e.faceNonOrtho = result
	})
	return e.faceNonOrtho
}

// CellNonOrthogonality returns, for every cell, the largest non-orthogonality
// of its internal faces. Cells without internal faces are 0.
func (e *Evaluator) CellNonOrthogonality() []float64 {
	e.cellNonOrthoOnce.Do(func() {
		g := e.geom
		faces := e.FaceNonOrthogonality()
		result := make([]float64, g.NCells)
		for f := 0; f < g.NInternalFaces(); f++ {
			own, nei := g.Owner[f], g.Neighbour[f]
			result[own] = math.Max(result[own], faces[f])
			result[nei] = math.Max(result[nei], faces[f])
		}
		e.cellNonOrtho = result
	})
	return e.cellNonOrtho
}

// FaceSkewness returns the skewness of every face, internal and boundary.
// A boundary face is measured against its owner centroid alone.
func (e *Evaluator) FaceSkewness() []float64 {
	e.faceSkewOnce.Do(func() {
		g := e.geom
		result := make([]float64, g.NFaces())
		for f := 0; f < g.NInternalFaces(); f++ {
			result[f] = internalSkewness(g, f)
		}
		for f := g.NInternalFaces(); f < g.NFaces(); f++ {
			result[f] = boundarySkewness(g, f)
		}
		e.faceSkew = result
	})
	return e.faceSkew
}

// Skewness returns, for every cell, the largest skewness of its faces.
func (e *Evaluator) Skewness() []float64 {
	e.cellSkewOnce.Do(func() {
		g := e.geom
		faces := e.FaceSkewness()
		result := make([]float64, g.NCells)
		for f, own := range g.Owner {
			result[own] = math.Max(result[own], faces[f])
		}
		for f, nei := range g.Neighbour {
			result[nei] = math.Max(result[nei], faces[f])
		}
		e.cellSkew = result
	})
	return e.cellSkew
}

// ComputeAll computes the four metrics concurrently, one task per metric.
func (e *Evaluator) ComputeAll(ctx context.Context) (Metrics, error) {
	var m Metrics
	eg, egCtx := errgroup.WithContext(ctx)
	run := func(dst *[]float64, metric func() []float64) {
		eg.Go(func() error {
			if err := egCtx.Err(); err != nil {
				return err
			}
			*dst = metric()
			return nil
		})
	}
	run(&m.CellNonOrtho, e.CellNonOrthogonality)
	run(&m.CellSkewness, e.Skewness)
	run(&m.FaceNonOrtho, e.FaceNonOrthogonality)
	run(&m.FaceSkewness, e.FaceSkewness)
	if err := eg.Wait(); err != nil {
		return Metrics{}, err
	}
	return m, nil
}

// angleDegrees returns the angle between d and sf in [0, 180), or 0 when
// either vector is degenerate.
func angleDegrees(d, sf polymesh.Vec, lenTol, areaTol float64) float64 {
	magD := d.Length()
	magS := sf.Length()
	if magD <= lenTol || magS <= areaTol {
		return 0
	}
	cos := d.Dot(sf) / (magD * magS)
	cos = math.Max(-1, math.Min(1, cos))
	deg := math.Acos(cos) * 180 / math.Pi
	if deg >= 180 {
		// Anti-parallel vectors; keep the result inside [0, 180).
		deg = math.Nextafter(180, 0)
	}
	return deg
}

// internalSkewness measures how far the centroid line misses the face
// centroid, relative to the distance between the two cell centroids.
func internalSkewness(g *polymesh.Geometry, f int) float64 {
	n := g.FaceNormal(f)
	if n == (polymesh.Vec{}) {
		return 0
	}
	co := g.CellCentres[g.Owner[f]]
	cn := g.CellCentres[g.Neighbour[f]]
	cf := g.FaceCentres[f]

	dist := cn.Sub(co).Length()
	dOwn := math.Abs(cf.Sub(co).Dot(n))
	dNei := math.Abs(cn.Sub(cf).Dot(n))
	if dist <= g.Tolerance || dOwn+dNei <= g.Tolerance {
		return 0
	}

	w := dOwn + dNei
	intersection := co.MulScalar(dNei / w).Add(cn.MulScalar(dOwn / w))
	return intersection.Sub(cf).Length() / dist
}

// boundarySkewness projects the owner centroid onto the face plane and
// measures how far that foot point lands from the face centroid, relative to
// the owner-to-face-centroid distance. The foot, owner centroid and face
// centroid form a right triangle, so the result lies in [0, 1].
func boundarySkewness(g *polymesh.Geometry, f int) float64 {
	n := g.FaceNormal(f)
	if n == (polymesh.Vec{}) {
		return 0
	}
	co := g.CellCentres[g.Owner[f]]
	cf := g.FaceCentres[f]

	dist := cf.Sub(co).Length()
	if dist <= g.Tolerance {
		return 0
	}
	foot := co.Add(n.MulScalar(cf.Sub(co).Dot(n)))
	return foot.Sub(cf).Length() / dist
}
