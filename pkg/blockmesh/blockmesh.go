// Package blockmesh generates structured hexahedral polymeshes from an
// axis-aligned block, with optional grading, point transforms and cell
// masks.
//
// Generated meshes use upper-triangular face ordering: internal faces come
// first, ordered by owner and then by neighbour, and every internal face is
// owned by the lower-numbered cell. Boundary faces follow, grouped into the
// patches xMin, xMax, yMin, yMax, zMin, zMax and, for masked blocks, walls.
package blockmesh

import (
	"errors"
	"fmt"
	"math"

	v3 "github.com/deadsy/sdfx/vec/v3"
)

// ErrEmptyMesh is returned when a mask removes every cell.
var ErrEmptyMesh = errors.New("blockmesh: no cells left after masking")

// WallPatch is the default name of the patch created by masking.
const WallPatch = "walls"

// Axis selects a coordinate direction.
type Axis int

const (
	AxisX Axis = iota
	AxisY
	AxisZ
)

func (a Axis) String() string {
	switch a {
	case AxisX:
		return "x"
	case AxisY:
		return "y"
	case AxisZ:
		return "z"
	default:
		return fmt.Sprintf("Axis(%d)", int(a))
	}
}

// component returns the coordinate of v along a.
func (a Axis) component(v v3.Vec) float64 {
	switch a {
	case AxisY:
		return v.Y
	case AxisZ:
		return v.Z
	default:
		return v.X
	}
}

// Block is an axis-aligned box divided into Cells[0]×Cells[1]×Cells[2]
// hexahedra. Grading is the ratio of the last to the first cell size along
// each axis; 0 and 1 both mean uniform spacing.
type Block struct {
	Min     v3.Vec
	Max     v3.Vec
	Cells   [3]int
	Grading [3]float64
}

// NCells returns the number of cells before masking.
func (b Block) NCells() int {
	return b.Cells[0] * b.Cells[1] * b.Cells[2]
}

func (b Block) validate() error {
	lo := [3]float64{b.Min.X, b.Min.Y, b.Min.Z}
	hi := [3]float64{b.Max.X, b.Max.Y, b.Max.Z}
	for a := AxisX; a <= AxisZ; a++ {
		if b.Cells[a] < 1 {
			return fmt.Errorf("blockmesh: %s cell count is %d, must be at least 1", a, b.Cells[a])
		}
		if !(hi[a] > lo[a]) {
			return fmt.Errorf("blockmesh: %s extent [%g, %g] is empty", a, lo[a], hi[a])
		}
		if b.Grading[a] < 0 || math.IsNaN(b.Grading[a]) || math.IsInf(b.Grading[a], 0) {
			return fmt.Errorf("blockmesh: %s grading %g must be positive", a, b.Grading[a])
		}
	}
	return nil
}

// Shear returns a point transform that displaces every point whose
// normalized coordinate t along axis exceeds from by offset·(t−from)/(1−from).
// Points at or below from are left in place.
func (b Block) Shear(axis Axis, offset v3.Vec, from float64) func(v3.Vec) v3.Vec {
	lo := axis.component(b.Min)
	span := axis.component(b.Max) - lo
	return func(p v3.Vec) v3.Vec {
		t := (axis.component(p) - lo) / span
		if t <= from || from >= 1 {
			return p
		}
		return p.Add(offset.MulScalar((t - from) / (1 - from)))
	}
}

// Option configures Generate.
type Option func(*options)

type options struct {
	transform func(v3.Vec) v3.Vec
	mask      func(i, j, k int, centre v3.Vec) bool
	wallPatch string
}

// WithTransform maps every generated point through fn. Successive
// transforms compose in the order given.
func WithTransform(fn func(v3.Vec) v3.Vec) Option {
	return func(o *options) {
		if o.transform == nil {
			o.transform = fn
			return
		}
		prev := o.transform
		o.transform = func(p v3.Vec) v3.Vec { return fn(prev(p)) }
	}
}

// WithMask keeps only the cells for which fn returns true. The centre passed
// to fn is the untransformed cell centre.
func WithMask(fn func(i, j, k int, centre v3.Vec) bool) Option {
	return func(o *options) { o.mask = fn }
}

// WithWallPatch names the patch that collects faces exposed by masking.
func WithWallPatch(name string) Option {
	return func(o *options) { o.wallPatch = name }
}

// spacing returns the n+1 node coordinates from lo to hi with geometric
// grading (last cell size / first cell size).
func spacing(lo, hi float64, n int, grading float64) []float64 {
	x := make([]float64, n+1)
	x[0], x[n] = lo, hi
	length := hi - lo
	if grading == 0 || grading == 1 || n == 1 {
		for i := 1; i < n; i++ {
			x[i] = lo + length*float64(i)/float64(n)
		}
		return x
	}
	r := math.Pow(grading, 1/float64(n-1))
	size := length * (1 - r) / (1 - math.Pow(r, float64(n)))
	for i := 1; i < n; i++ {
		x[i] = x[i-1] + size
		size *= r
	}
	return x
}
