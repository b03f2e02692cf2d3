package polymesh

import (
	"errors"
	"math"
	"strings"
	"testing"
)

const eps = 1e-12

// unitCube returns a single-cell mesh of the unit cube with outward faces.
func unitCube() *Mesh {
	return &Mesh{
		Points: []Vec{
			{X: 0, Y: 0, Z: 0}, {X: 1, Y: 0, Z: 0}, {X: 1, Y: 1, Z: 0}, {X: 0, Y: 1, Z: 0},
			{X: 0, Y: 0, Z: 1}, {X: 1, Y: 0, Z: 1}, {X: 1, Y: 1, Z: 1}, {X: 0, Y: 1, Z: 1},
		},
		Faces: []Face{
			{0, 3, 2, 1}, // z=0
			{4, 5, 6, 7}, // z=1
			{0, 1, 5, 4}, // y=0
			{3, 7, 6, 2}, // y=1
			{0, 4, 7, 3}, // x=0
			{1, 2, 6, 5}, // x=1
		},
		Owner:  []int{0, 0, 0, 0, 0, 0},
		NCells: 1,
	}
}

// twoCells returns two unit cubes stacked along x, sharing face 0.
func twoCells() *Mesh {
	pts := []Vec{}
	for k := 0; k < 2; k++ {
		for j := 0; j < 2; j++ {
			for i := 0; i < 3; i++ {
				pts = append(pts, Vec{X: float64(i), Y: float64(j), Z: float64(k)})
			}
		}
	}
	id := func(i, j, k int) int { return i + 3*(j+2*k) }
	return &Mesh{
		Points: pts,
		Faces: []Face{
			{id(1, 0, 0), id(1, 1, 0), id(1, 1, 1), id(1, 0, 1)}, // internal, +x
			{id(0, 0, 0), id(0, 0, 1), id(0, 1, 1), id(0, 1, 0)}, // cell 0 x=0
			{id(0, 0, 0), id(0, 1, 0), id(1, 1, 0), id(1, 0, 0)}, // cell 0 z=0
			{id(0, 0, 1), id(1, 0, 1), id(1, 1, 1), id(0, 1, 1)}, // cell 0 z=1
			{id(0, 0, 0), id(1, 0, 0), id(1, 0, 1), id(0, 0, 1)}, // cell 0 y=0
			{id(0, 1, 0), id(0, 1, 1), id(1, 1, 1), id(1, 1, 0)}, // cell 0 y=1
			{id(2, 0, 0), id(2, 1, 0), id(2, 1, 1), id(2, 0, 1)}, // cell 1 x=2
			{id(1, 0, 0), id(1, 1, 0), id(2, 1, 0), id(2, 0, 0)}, // cell 1 z=0
			{id(1, 0, 1), id(2, 0, 1), id(2, 1, 1), id(1, 1, 1)}, // cell 1 z=1
			{id(1, 0, 0), id(2, 0, 0), id(2, 0, 1), id(1, 0, 1)}, // cell 1 y=0
			{id(1, 1, 0), id(1, 1, 1), id(2, 1, 1), id(2, 1, 0)}, // cell 1 y=1
		},
		Owner:     []int{0, 0, 0, 0, 0, 0, 1, 1, 1, 1, 1},
		Neighbour: []int{1},
		NCells:    2,
		Patches: []Patch{
			{Name: "left", Start: 1, Size: 5},
			{Name: "right", Start: 6, Size: 5},
		},
	}
}

func near(a, b float64) bool {
	return math.Abs(a-b) < eps
}

func nearVec(a, b Vec) bool {
	return near(a.X, b.X) && near(a.Y, b.Y) && near(a.Z, b.Z)
}

// ---------------------------------------------------------------------------
// Geometry
// ---------------------------------------------------------------------------

func TestUnitCubeGeometry(t *testing.T) {
	g, err := ComputeGeometry(unitCube())
	if err != nil {
		t.Fatalf("ComputeGeometry() error = %v", err)
	}
	if !near(g.CellVolumes[0], 1) {
		t.Errorf("volume = %g, want 1", g.CellVolumes[0])
	}
	if want := (Vec{X: 0.5, Y: 0.5, Z: 0.5}); !nearVec(g.CellCentres[0], want) {
		t.Errorf("centre = %v, want %v", g.CellCentres[0], want)
	}
	if len(g.Warnings) != 0 {
		t.Errorf("unexpected warnings: %v", g.Warnings)
	}

	var sum Vec
	for f, sf := range g.FaceAreas {
		if !near(sf.Length(), 1) {
			t.Errorf("face %d area = %g, want 1", f, sf.Length())
		}
		// Outward normals: face centre minus cell centre is parallel to Sf.
		if d := g.FaceCentres[f].Sub(g.CellCentres[0]).Dot(sf); d <= 0 {
			t.Errorf("face %d normal points inward (d=%g)", f, d)
		}
		sum = sum.Add(sf)
	}
	if !nearVec(sum, Vec{}) {
		t.Errorf("closed cell area vectors sum to %v, want zero", sum)
	}
}

func TestTriangleFace(t *testing.T) {
	pts := []Vec{{X: 0, Y: 0, Z: 0}, {X: 2, Y: 0, Z: 0}, {X: 0, Y: 2, Z: 0}}
	c, a := faceGeometry(pts, Face{0, 1, 2})
	if want := (Vec{X: 2.0 / 3, Y: 2.0 / 3}); !nearVec(c, want) {
		t.Errorf("centre = %v, want %v", c, want)
	}
	if want := (Vec{Z: 2}); !nearVec(a, want) {
		t.Errorf("area = %v, want %v", a, want)
	}
}

func TestNonConvexQuadCentroid(t *testing.T) {
	// An L-shaped hexagon: union of [0,2]x[0,1] and [0,1]x[1,2], area 3.
	pts := []Vec{
		{X: 0, Y: 0}, {X: 2, Y: 0}, {X: 2, Y: 1}, {X: 1, Y: 1}, {X: 1, Y: 2}, {X: 0, Y: 2},
	}
	_, a := faceGeometry(pts, Face{0, 1, 2, 3, 4, 5})
	if !near(a.Z, 3) {
		t.Errorf("area = %g, want 3", a.Z)
	}
}

func TestTwoCellGeometry(t *testing.T) {
	g, err := ComputeGeometry(twoCells())
	if err != nil {
		t.Fatalf("ComputeGeometry() error = %v", err)
	}
	tests := []struct {
		cell   int
		centre Vec
	}{
		{0, Vec{X: 0.5, Y: 0.5, Z: 0.5}},
		{1, Vec{X: 1.5, Y: 0.5, Z: 0.5}},
	}
	for _, tt := range tests {
		if !nearVec(g.CellCentres[tt.cell], tt.centre) {
			t.Errorf("cell %d centre = %v, want %v", tt.cell, g.CellCentres[tt.cell], tt.centre)
		}
		if !near(g.CellVolumes[tt.cell], 1) {
			t.Errorf("cell %d volume = %g, want 1", tt.cell, g.CellVolumes[tt.cell])
		}
	}
	if n := g.FaceNormal(0); !nearVec(n, Vec{X: 1}) {
		t.Errorf("internal face normal = %v, want +x", n)
	}
}

// ---------------------------------------------------------------------------
// Mesh helpers
// ---------------------------------------------------------------------------

func TestMeshCounts(t *testing.T) {
	m := twoCells()
	if m.NFaces() != 11 || m.NInternalFaces() != 1 || m.NBoundaryFaces() != 10 {
		t.Errorf("counts = %d/%d/%d, want 11/1/10", m.NFaces(), m.NInternalFaces(), m.NBoundaryFaces())
	}
	if !m.IsInternal(0) || m.IsInternal(1) {
		t.Error("IsInternal misclassifies faces 0/1")
	}
	cf := m.CellFaces()
	if len(cf[0]) != 6 || len(cf[1]) != 6 {
		t.Errorf("cell face counts = %d, %d, want 6, 6", len(cf[0]), len(cf[1]))
	}
}

func TestPatchOf(t *testing.T) {
	m := twoCells()
	if _, ok := m.PatchOf(0); ok {
		t.Error("internal face should belong to no patch")
	}
	p, ok := m.PatchOf(7)
	if !ok || p.Name != "right" {
		t.Errorf("PatchOf(7) = %v, %v, want right", p, ok)
	}

	cube := unitCube()
	patches := cube.BoundaryPatches()
	if len(patches) != 1 || patches[0].Name != DefaultPatch || patches[0].Size != 6 {
		t.Errorf("implicit patches = %v", patches)
	}
}

func TestBounds(t *testing.T) {
	min, max := twoCells().Bounds()
	if !nearVec(min, Vec{}) || !nearVec(max, Vec{X: 2, Y: 1, Z: 1}) {
		t.Errorf("Bounds() = %v, %v", min, max)
	}
}

// ---------------------------------------------------------------------------
// Validation
// ---------------------------------------------------------------------------

func hasProblem(err error, substr string) bool {
	var ime *InvalidMeshError
	if !errors.As(err, &ime) {
		return false
	}
	for _, p := range ime.Problems {
		if strings.Contains(p.Message, substr) {
			return true
		}
	}
	return false
}

func TestComputeGeometryRejectsMalformedMeshes(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(m *Mesh)
		substr string
	}{
		{"owner out of range", func(m *Mesh) { m.Owner[3] = 7 }, "owner cell 7 out of range"},
		{"negative owner", func(m *Mesh) { m.Owner[2] = -1 }, "owner cell -1 out of range"},
		{"neighbour out of range", func(m *Mesh) { m.Neighbour[0] = 2 }, "neighbour cell 2 out of range"},
		{"neighbour equals owner", func(m *Mesh) { m.Neighbour[0] = 0 }, "owner and neighbour"},
		{"point out of range", func(m *Mesh) { m.Faces[4] = Face{0, 1, 99} }, "point index 99"},
		{"degenerate face", func(m *Mesh) { m.Faces[4] = Face{0, 1, 1, 0} }, "degenerate face"},
		{"owner length", func(m *Mesh) { m.Owner = m.Owner[:5] }, "owner list"},
		{"no cells", func(m *Mesh) { m.NCells = 0 }, "declares 0 cells"},
		{"unused cell", func(m *Mesh) { m.NCells = 3 }, "referenced by no face"},
		{"patch gap", func(m *Mesh) { m.Patches[1].Start = 7; m.Patches[1].Size = 4 }, "starts at face 7"},
		{"patch short", func(m *Mesh) { m.Patches[1].Size = 4 }, "patches end at face 10"},
		{"duplicate patch", func(m *Mesh) { m.Patches[1].Name = "left" }, "duplicate patch name"},
		{"NaN point", func(m *Mesh) { m.Points[0] = Vec{X: math.NaN()} }, "point 0 has non-finite"},
		{"infinite point", func(m *Mesh) { m.Points[5].Z = math.Inf(1) }, "point 5 has non-finite"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := twoCells()
			tt.mutate(m)
			g, err := ComputeGeometry(m)
			if err == nil {
				t.Fatal("expected InvalidMeshError, got nil")
			}
			if g != nil {
				t.Error("expected no geometry alongside the error")
			}
			if !errors.Is(err, ErrInvalidMesh) {
				t.Errorf("errors.Is(err, ErrInvalidMesh) = false for %v", err)
			}
			if !hasProblem(err, tt.substr) {
				t.Errorf("error %q does not mention %q", err, tt.substr)
			}
		})
	}
}

func TestNilMesh(t *testing.T) {
	if _, err := ComputeGeometry(nil); !errors.Is(err, ErrInvalidMesh) {
		t.Errorf("ComputeGeometry(nil) error = %v, want ErrInvalidMesh", err)
	}
}

func TestInvertedCellHasNonPositiveVolume(t *testing.T) {
	m := unitCube()
	for i, f := range m.Faces {
		rev := make(Face, len(f))
		for j := range f {
			rev[j] = f[len(f)-1-j]
		}
		m.Faces[i] = rev
	}
	_, err := ComputeGeometry(m)
	if !hasProblem(err, "non-positive cell volume") {
		t.Errorf("error = %v, want non-positive volume", err)
	}
}

func TestValidateWarnsOnZeroAreaFace(t *testing.T) {
	m := unitCube()
	// A collinear triangle referencing three distinct points on one edge.
	m.Points = append(m.Points, Vec{X: 0.5})
	m.Faces = append(m.Faces, Face{0, 8, 1})
	m.Owner = append(m.Owner, 0)

	result := Validate(m)
	if !result.OK() {
		t.Fatalf("unexpected errors: %v", result.Errors)
	}
	found := false
	for _, w := range result.Warnings {
		if w.Face == 6 && strings.Contains(w.Message, "zero-area") {
			found = true
		}
	}
	if !found {
		t.Errorf("expected zero-area warning on face 6, got %v", result.Warnings)
	}
}

func TestValidateGeometryNaNVolume(t *testing.T) {
	g := computeGeometry(twoCells())
	g.CellVolumes[1] = math.NaN()
	errs, _ := validateGeometry(g)
	if len(errs) != 1 || errs[0].Cell != 1 {
		t.Errorf("errors = %v, want one non-positive volume error on cell 1", errs)
	}
}

func TestValidateWarnsOnCoincidentCentroids(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(g *Geometry)
		face   int
		substr string
	}{
		{"internal", func(g *Geometry) { g.CellCentres[1] = g.CellCentres[0] }, 0, "centroids coincide"},
		{"boundary", func(g *Geometry) { g.CellCentres[1] = g.FaceCentres[6] }, 6, "lies on the face centroid"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := computeGeometry(twoCells())
			tt.mutate(g)
			errs, warnings := validateGeometry(g)
			if len(errs) != 0 {
				t.Fatalf("unexpected errors: %v", errs)
			}
			found := false
			for _, w := range warnings {
				if w.Face == tt.face && strings.Contains(w.Message, tt.substr) {
					found = true
				}
			}
			if !found {
				t.Errorf("expected %q warning on face %d, got %v", tt.substr, tt.face, warnings)
			}
		})
	}
}

func TestInvalidMeshErrorMessage(t *testing.T) {
	err := &InvalidMeshError{Problems: []ValidationError{
		{Face: 3, Cell: -1, Message: "first", Severity: SeverityError},
		{Face: -1, Cell: 2, Message: "second", Severity: SeverityError},
	}}
	want := "polymesh: invalid mesh: [error] face 3: first (and 1 more)"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestSeverityString(t *testing.T) {
	tests := []struct {
		s    Severity
		want string
	}{
		{SeverityError, "error"},
		{SeverityWarning, "warning"},
		{Severity(9), "Severity(9)"},
	}
	for _, tt := range tests {
		if got := tt.s.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}
