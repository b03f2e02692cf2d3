// Package castellate cuts a staircase hexahedral mesh out of a solid: a
// uniform grid is laid over the solid's bounding box and only the cells
// whose centre lies inside the solid are kept.
package castellate

import (
	"errors"
	"fmt"

	v3 "github.com/deadsy/sdfx/vec/v3"

	"github.com/chazu/meshqual/pkg/blockmesh"
	"github.com/chazu/meshqual/pkg/kernel"
	"github.com/chazu/meshqual/pkg/polymesh"
)

// ErrNoCells is returned when no grid cell centre falls inside the solid.
var ErrNoCells = errors.New("castellate: no cell centre lies inside the solid")

// Option configures Castellate.
type Option func(*options)

type options struct {
	padding   float64
	wallPatch string
}

// WithPadding grows the grid beyond the bounding box on every side by the
// given fraction of the box extent along that axis.
func WithPadding(fraction float64) Option {
	return func(o *options) { o.padding = fraction }
}

// WithWallPatch names the patch holding the faces on the solid surface.
func WithWallPatch(name string) Option {
	return func(o *options) { o.wallPatch = name }
}

// Grid returns the block laid over the solid before masking.
func Grid(s kernel.Solid, cells [3]int, opts ...Option) (blockmesh.Block, error) {
	o := apply(opts)
	if o.padding < 0 {
		return blockmesh.Block{}, fmt.Errorf("castellate: padding %g must not be negative", o.padding)
	}
	lo, hi := s.BoundingBox()
	min := v3.Vec{X: lo[0], Y: lo[1], Z: lo[2]}
	max := v3.Vec{X: hi[0], Y: hi[1], Z: hi[2]}
	pad := max.Sub(min).MulScalar(o.padding)
	return blockmesh.Block{Min: min.Sub(pad), Max: max.Add(pad), Cells: cells}, nil
}

// Castellate meshes the interior of s on a grid of cells[0]×cells[1]×cells[2]
// hexahedra. Faces on the cut surface go to the wall patch; faces on the
// grid boundary keep the block patch names.
func Castellate(s kernel.Solid, cells [3]int, opts ...Option) (*polymesh.Mesh, error) {
	o := apply(opts)
	blk, err := Grid(s, cells, opts...)
	if err != nil {
		return nil, err
	}
	inside := func(_, _, _ int, c v3.Vec) bool {
		return kernel.Inside(s, [3]float64{c.X, c.Y, c.Z})
	}
	m, err := blockmesh.Generate(blk, blockmesh.WithMask(inside), blockmesh.WithWallPatch(o.wallPatch))
	if errors.Is(err, blockmesh.ErrEmptyMesh) {
		return nil, fmt.Errorf("%w (grid %v over %v..%v)", ErrNoCells, cells, blk.Min, blk.Max)
	}
	if err != nil {
		return nil, fmt.Errorf("castellate: %w", err)
	}
	return m, nil
}

func apply(opts []Option) options {
	o := options{wallPatch: blockmesh.WallPatch}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
