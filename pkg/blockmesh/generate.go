package blockmesh

import (
	v3 "github.com/deadsy/sdfx/vec/v3"

	"github.com/chazu/meshqual/pkg/polymesh"
)

// lattice indexes the cells and points of an nx×ny×nz block.
type lattice struct {
	nx, ny, nz int
	cellID     []int // lattice cell -> mesh cell, -1 when masked out
}

func (l *lattice) point(i, j, k int) int {
	return i + (l.nx+1)*(j+(l.ny+1)*k)
}

// id returns the mesh cell at (i, j, k), or -1 when the cell is masked out
// or outside the lattice.
func (l *lattice) id(i, j, k int) int {
	if i < 0 || j < 0 || k < 0 || i >= l.nx || j >= l.ny || k >= l.nz {
		return -1
	}
	return l.cellID[i+l.nx*(j+l.ny*k)]
}

// xFace is the face at x-node i spanning cell (j, k), wound towards +x.
func (l *lattice) xFace(i, j, k int) polymesh.Face {
	return polymesh.Face{l.point(i, j, k), l.point(i, j+1, k), l.point(i, j+1, k+1), l.point(i, j, k+1)}
}

// yFace is the face at y-node j spanning cell (i, k), wound towards +y.
func (l *lattice) yFace(i, j, k int) polymesh.Face {
	return polymesh.Face{l.point(i, j, k), l.point(i, j, k+1), l.point(i+1, j, k+1), l.point(i+1, j, k)}
}

// zFace is the face at z-node k spanning cell (i, j), wound towards +z.
func (l *lattice) zFace(i, j, k int) polymesh.Face {
	return polymesh.Face{l.point(i, j, k), l.point(i+1, j, k), l.point(i+1, j+1, k), l.point(i, j+1, k)}
}

func reversed(f polymesh.Face) polymesh.Face {
	r := make(polymesh.Face, len(f))
	for i := range f {
		r[i] = f[len(f)-1-i]
	}
	return r
}

// side is one of the six faces of a lattice cell with its outward winding.
type side struct {
	di, dj, dk int
	face       func(l *lattice, i, j, k int) polymesh.Face
}

var sides = []side{
	{-1, 0, 0, func(l *lattice, i, j, k int) polymesh.Face { return reversed(l.xFace(i, j, k)) }},
	{1, 0, 0, func(l *lattice, i, j, k int) polymesh.Face { return l.xFace(i+1, j, k) }},
	{0, -1, 0, func(l *lattice, i, j, k int) polymesh.Face { return reversed(l.yFace(i, j, k)) }},
	{0, 1, 0, func(l *lattice, i, j, k int) polymesh.Face { return l.yFace(i, j+1, k) }},
	{0, 0, -1, func(l *lattice, i, j, k int) polymesh.Face { return reversed(l.zFace(i, j, k)) }},
	{0, 0, 1, func(l *lattice, i, j, k int) polymesh.Face { return l.zFace(i, j, k+1) }},
}

// meshBuilder accumulates faces and patches in output order.
type meshBuilder struct {
	faces     []polymesh.Face
	owner     []int
	neighbour []int
	patches   []polymesh.Patch
}

func (b *meshBuilder) internal(f polymesh.Face, own, nei int) {
	b.faces = append(b.faces, f)
	b.owner = append(b.owner, own)
	b.neighbour = append(b.neighbour, nei)
}

func (b *meshBuilder) boundary(f polymesh.Face, own int) {
	b.faces = append(b.faces, f)
	b.owner = append(b.owner, own)
}

// patch collects the faces added by fill into a named patch. Empty patches
// are dropped.
func (b *meshBuilder) patch(name string, fill func()) {
	start := len(b.faces)
	fill()
	if size := len(b.faces) - start; size > 0 {
		b.patches = append(b.patches, polymesh.Patch{Name: name, Start: start, Size: size})
	}
}

// Generate builds the polymesh of a block.
func Generate(blk Block, opts ...Option) (*polymesh.Mesh, error) {
	if err := blk.validate(); err != nil {
		return nil, err
	}
	o := options{wallPatch: WallPatch}
	for _, opt := range opts {
		opt(&o)
	}

	nx, ny, nz := blk.Cells[0], blk.Cells[1], blk.Cells[2]
	xs := spacing(blk.Min.X, blk.Max.X, nx, blk.Grading[0])
	ys := spacing(blk.Min.Y, blk.Max.Y, ny, blk.Grading[1])
	zs := spacing(blk.Min.Z, blk.Max.Z, nz, blk.Grading[2])

	l := &lattice{nx: nx, ny: ny, nz: nz, cellID: make([]int, nx*ny*nz)}
	nCells := 0
	for k := 0; k < nz; k++ {
		for j := 0; j < ny; j++ {
			for i := 0; i < nx; i++ {
				c := i + nx*(j+ny*k)
				keep := true
				if o.mask != nil {
					centre := v3.Vec{X: (xs[i] + xs[i+1]) / 2, Y: (ys[j] + ys[j+1]) / 2, Z: (zs[k] + zs[k+1]) / 2}
					keep = o.mask(i, j, k, centre)
				}
				if keep {
					l.cellID[c] = nCells
					nCells++
				} else {
					l.cellID[c] = -1
				}
			}
		}
	}
	if nCells == 0 {
		return nil, ErrEmptyMesh
	}

	mb := &meshBuilder{}

	// Internal faces, owner ascending; +x, +y, +z neighbours have
	// ascending cell numbers.
	for k := 0; k < nz; k++ {
		for j := 0; j < ny; j++ {
			for i := 0; i < nx; i++ {
				own := l.id(i, j, k)
				if own < 0 {
					continue
				}
				if nei := l.id(i+1, j, k); nei >= 0 {
					mb.internal(l.xFace(i+1, j, k), own, nei)
				}
				if nei := l.id(i, j+1, k); nei >= 0 {
					mb.internal(l.yFace(i, j+1, k), own, nei)
				}
				if nei := l.id(i, j, k+1); nei >= 0 {
					mb.internal(l.zFace(i, j, k+1), own, nei)
				}
			}
		}
	}

	mb.patch("xMin", func() {
		for k := 0; k < nz; k++ {
			for j := 0; j < ny; j++ {
				if own := l.id(0, j, k); own >= 0 {
					mb.boundary(reversed(l.xFace(0, j, k)), own)
				}
			}
		}
	})
	mb.patch("xMax", func() {
		for k := 0; k < nz; k++ {
			for j := 0; j < ny; j++ {
				if own := l.id(nx-1, j, k); own >= 0 {
					mb.boundary(l.xFace(nx, j, k), own)
				}
			}
		}
	})
	mb.patch("yMin", func() {
		for k := 0; k < nz; k++ {
			for i := 0; i < nx; i++ {
				if own := l.id(i, 0, k); own >= 0 {
					mb.boundary(reversed(l.yFace(i, 0, k)), own)
				}
			}
		}
	})
	mb.patch("yMax", func() {
		for k := 0; k < nz; k++ {
			for i := 0; i < nx; i++ {
				if own := l.id(i, ny-1, k); own >= 0 {
					mb.boundary(l.yFace(i, ny, k), own)
				}
			}
		}
	})
	mb.patch("zMin", func() {
		for j := 0; j < ny; j++ {
			for i := 0; i < nx; i++ {
				if own := l.id(i, j, 0); own >= 0 {
					mb.boundary(reversed(l.zFace(i, j, 0)), own)
				}
			}
		}
	})
	mb.patch("zMax", func() {
		for j := 0; j < ny; j++ {
			for i := 0; i < nx; i++ {
				if own := l.id(i, j, nz-1); own >= 0 {
					mb.boundary(l.zFace(i, j, nz), own)
				}
			}
		}
	})
	if o.mask != nil {
		mb.patch(o.wallPatch, func() {
			for k := 0; k < nz; k++ {
				for j := 0; j < ny; j++ {
					for i := 0; i < nx; i++ {
						own := l.id(i, j, k)
						if own < 0 {
							continue
						}
						for _, s := range sides {
							ni, nj, nk := i+s.di, j+s.dj, k+s.dk
							inside := ni >= 0 && nj >= 0 && nk >= 0 && ni < nx && nj < ny && nk < nz
							if inside && l.id(ni, nj, nk) < 0 {
								mb.boundary(s.face(l, i, j, k), own)
							}
						}
					}
				}
			}
		})
	}

	points := compactPoints(l, mb.faces, xs, ys, zs)
	if o.transform != nil {
		for i, p := range points {
			points[i] = o.transform(p)
		}
	}

	return &polymesh.Mesh{
		Points:    points,
		Faces:     mb.faces,
		Owner:     mb.owner,
		Neighbour: mb.neighbour,
		NCells:    nCells,
		Patches:   mb.patches,
	}, nil
}

// compactPoints drops lattice points no face uses, renumbers the rest in
// lattice order and rewrites the faces in place.
func compactPoints(l *lattice, faces []polymesh.Face, xs, ys, zs []float64) []v3.Vec {
	total := (l.nx + 1) * (l.ny + 1) * (l.nz + 1)
	newID := make([]int, total)
	for i := range newID {
		newID[i] = -1
	}
	for _, f := range faces {
		for _, p := range f {
			newID[p] = 0
		}
	}

	var points []v3.Vec
	for k := 0; k <= l.nz; k++ {
		for j := 0; j <= l.ny; j++ {
			for i := 0; i <= l.nx; i++ {
				p := l.point(i, j, k)
				if newID[p] < 0 {
					continue
				}
				newID[p] = len(points)
				points = append(points, v3.Vec{X: xs[i], Y: ys[j], Z: zs[k]})
			}
		}
	}

	for _, f := range faces {
		for i, p := range f {
			f[i] = newID[p]
		}
	}
	return points
}
