package engine

import (
	"errors"
	"fmt"
	"strings"

	v3 "github.com/deadsy/sdfx/vec/v3"

	"github.com/chazu/meshqual/pkg/blockmesh"
	"github.com/chazu/meshqual/pkg/castellate"
	"github.com/chazu/meshqual/pkg/kernel"
	"github.com/chazu/meshqual/pkg/polymesh"
)

var (
	// ErrUnknownRegion is returned when a region name is not declared.
	ErrUnknownRegion = errors.New("engine: unknown region")
	// ErrNoRegions is returned when a case declares no region at all.
	ErrNoRegions = errors.New("engine: case declares no regions")
)

// Recipe describes how to build a region's mesh. Recipes are cheap to hold;
// the mesh is only generated by Mesh.
type Recipe interface {
	Mesh() (*polymesh.Mesh, error)
	String() string
}

// BlockRecipe generates a structured block, optionally deformed.
type BlockRecipe struct {
	Block      blockmesh.Block
	Transforms []func(v3.Vec) v3.Vec
}

// Mesh generates the block and applies the transforms in order.
func (r *BlockRecipe) Mesh() (*polymesh.Mesh, error) {
	opts := make([]blockmesh.Option, 0, len(r.Transforms))
	for _, fn := range r.Transforms {
		opts = append(opts, blockmesh.WithTransform(fn))
	}
	return blockmesh.Generate(r.Block, opts...)
}

func (r *BlockRecipe) String() string {
	c := r.Block.Cells
	s := fmt.Sprintf("block %dx%dx%d", c[0], c[1], c[2])
	if n := len(r.Transforms); n > 0 {
		s += fmt.Sprintf(" with %d transform(s)", n)
	}
	return s
}

// with returns a copy of r with fn appended to its transforms.
func (r *BlockRecipe) with(fn func(v3.Vec) v3.Vec) *BlockRecipe {
	out := &BlockRecipe{Block: r.Block}
	out.Transforms = append(append(out.Transforms, r.Transforms...), fn)
	return out
}

// CastellateRecipe cuts a staircase mesh out of a solid.
type CastellateRecipe struct {
	Solid   kernel.Solid
	Cells   [3]int
	Padding float64
}

// Mesh castellates the solid.
func (r *CastellateRecipe) Mesh() (*polymesh.Mesh, error) {
	return castellate.Castellate(r.Solid, r.Cells, castellate.WithPadding(r.Padding))
}

func (r *CastellateRecipe) String() string {
	return fmt.Sprintf("castellated %dx%dx%d", r.Cells[0], r.Cells[1], r.Cells[2])
}

// Region is a named mesh declared by a case file.
type Region struct {
	Name   string
	Recipe Recipe
}

// Solid returns the solid a castellated region is cut from, or nil.
func (r *Region) Solid() kernel.Solid {
	if cr, ok := r.Recipe.(*CastellateRecipe); ok {
		return cr.Solid
	}
	return nil
}

// Case is the result of evaluating a case file: its regions in
// declaration order.
type Case struct {
	regions []*Region
	byName  map[string]*Region
}

func newCase() *Case {
	return &Case{byName: make(map[string]*Region)}
}

// add registers a region; names must be unique.
func (c *Case) add(name string, r Recipe) (*Region, error) {
	if name == "" {
		return nil, fmt.Errorf("region name must not be empty")
	}
	if _, dup := c.byName[name]; dup {
		return nil, fmt.Errorf("region %q declared twice", name)
	}
	reg := &Region{Name: name, Recipe: r}
	c.regions = append(c.regions, reg)
	c.byName[name] = reg
	return reg, nil
}

// Len returns the number of regions.
func (c *Case) Len() int {
	return len(c.regions)
}

// Names returns the region names in declaration order.
func (c *Case) Names() []string {
	names := make([]string, len(c.regions))
	for i, r := range c.regions {
		names[i] = r.Name
	}
	return names
}

// Region returns the named region.
func (c *Case) Region(name string) (*Region, error) {
	r, ok := c.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w %q (declared: %s)", ErrUnknownRegion, name, strings.Join(c.Names(), ", "))
	}
	return r, nil
}

// Select resolves a region selector: the empty string selects every region,
// any other value selects that region alone.
func (c *Case) Select(name string) ([]*Region, error) {
	if len(c.regions) == 0 {
		return nil, ErrNoRegions
	}
	if name == "" {
		return append([]*Region(nil), c.regions...), nil
	}
	r, err := c.Region(name)
	if err != nil {
		return nil, err
	}
	return []*Region{r}, nil
}

// Build generates the mesh of the named region.
func (c *Case) Build(name string) (*polymesh.Mesh, error) {
	r, err := c.Region(name)
	if err != nil {
		return nil, err
	}
	m, err := r.Recipe.Mesh()
	if err != nil {
		return nil, fmt.Errorf("engine: region %q: %w", name, err)
	}
	return m, nil
}
