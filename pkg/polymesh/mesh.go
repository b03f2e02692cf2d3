package polymesh

import (
	"math"

	v3 "github.com/deadsy/sdfx/vec/v3"
)

// DefaultPatch names the implicit patch used when a mesh declares none.
const DefaultPatch = "boundary"

// Face is an ordered list of point indices. The right-hand normal of the
// polygon points out of the face's owner cell.
type Face []int

// Patch is a named, contiguous range of boundary faces.
type Patch struct {
	Name  string `json:"name" yaml:"name"`
	Start int    `json:"start" yaml:"start"` // first face index
	Size  int    `json:"size" yaml:"size"`   // number of faces
}

// End returns one past the last face index of the patch.
func (p Patch) End() int {
	return p.Start + p.Size
}

// Mesh is an immutable polyhedral mesh snapshot.
//
// Faces 0..len(Neighbour)-1 are internal; every face after that is a
// boundary face owned by a single cell. Cells are implied by the faces that
// reference them.
type Mesh struct {
	Points    []v3.Vec
	Faces     []Face
	Owner     []int // one per face
	Neighbour []int // one per internal face
	NCells    int
	Patches   []Patch
}

// NFaces returns the total number of faces.
func (m *Mesh) NFaces() int {
	return len(m.Faces)
}

// NInternalFaces returns the number of faces shared by two cells.
func (m *Mesh) NInternalFaces() int {
	return len(m.Neighbour)
}

// NBoundaryFaces returns the number of faces owned by a single cell.
func (m *Mesh) NBoundaryFaces() int {
	return len(m.Faces) - len(m.Neighbour)
}

// IsInternal reports whether face f separates two cells.
func (m *Mesh) IsInternal(f int) bool {
	return f >= 0 && f < len(m.Neighbour)
}

// BoundaryPatches returns the declared patches, or a single DefaultPatch
// covering every boundary face when none are declared.
func (m *Mesh) BoundaryPatches() []Patch {
	if len(m.Patches) > 0 {
		return m.Patches
	}
	if m.NBoundaryFaces() == 0 {
		return nil
	}
	return []Patch{{Name: DefaultPatch, Start: m.NInternalFaces(), Size: m.NBoundaryFaces()}}
}

// PatchOf returns the patch containing face f, or false for internal faces
// and faces outside every declared patch.
func (m *Mesh) PatchOf(f int) (Patch, bool) {
	if m.IsInternal(f) {
		return Patch{}, false
	}
	for _, p := range m.BoundaryPatches() {
		if f >= p.Start && f < p.End() {
			return p, true
		}
	}
	return Patch{}, false
}

// CellFaces returns, for each cell, the indices of the faces it owns or
// neighbours. Out-of-range cell indices are ignored; run Validate first.
func (m *Mesh) CellFaces() [][]int {
	cells := make([][]int, m.NCells)
	add := func(c, f int) {
		if c >= 0 && c < m.NCells {
			cells[c] = append(cells[c], f)
		}
	}
	for f, c := range m.Owner {
		add(c, f)
	}
	for f, c := range m.Neighbour {
		add(c, f)
	}
	return cells
}

// Bounds returns the axis-aligned bounding box of the mesh points.
func (m *Mesh) Bounds() (min, max v3.Vec) {
	if len(m.Points) == 0 {
		return v3.Vec{}, v3.Vec{}
	}
	min = v3.Vec{X: math.Inf(1), Y: math.Inf(1), Z: math.Inf(1)}
	max = v3.Vec{X: math.Inf(-1), Y: math.Inf(-1), Z: math.Inf(-1)}
	for _, p := range m.Points {
		min = v3.Vec{X: math.Min(min.X, p.X), Y: math.Min(min.Y, p.Y), Z: math.Min(min.Z, p.Z)}
		max = v3.Vec{X: math.Max(max.X, p.X), Y: math.Max(max.Y, p.Y), Z: math.Max(max.Z, p.Z)}
	}
	return min, max
}
