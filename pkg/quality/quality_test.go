package quality

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"

	v3 "github.com/deadsy/sdfx/vec/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/chazu/meshqual/pkg/blockmesh"
	"github.com/chazu/meshqual/pkg/polymesh"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const eps = 1e-9

func degrees(rad float64) float64 { return rad * 180 / math.Pi }

// shearedPair is two unit-depth cells side by side along x; the right cell
// is sheared so its far face is displaced by s in y.
func shearedPair(t *testing.T, s float64) *polymesh.Mesh {
	t.Helper()
	blk := blockmesh.Block{Max: v3.Vec{X: 1, Y: 1, Z: 1}, Cells: [3]int{2, 1, 1}}
	m, err := blockmesh.Generate(blk, blockmesh.WithTransform(blk.Shear(blockmesh.AxisX, v3.Vec{Y: s}, 0.5)))
	require.NoError(t, err)
	return m
}

func TestOrthogonalGridIsPerfect(t *testing.T) {
	blk := blockmesh.Block{
		Max:     v3.Vec{X: 2, Y: 1, Z: 1},
		Cells:   [3]int{4, 3, 2},
		Grading: [3]float64{3, 1, 0.5},
	}
	m, err := blockmesh.Generate(blk)
	require.NoError(t, err)

	e, err := New(m)
	require.NoError(t, err)

	for name, values := range map[string][]float64{
		CellNonOrtho: e.CellNonOrthogonality(),
		CellSkewness: e.Skewness(),
		FaceNonOrtho: e.FaceNonOrthogonality(),
		FaceSkewness: e.FaceSkewness(),
	} {
		for i, v := range values {
			assert.InDelta(t, 0, v, eps, "%s[%d]", name, i)
		}
	}
}

func TestOutputLengths(t *testing.T) {
	m := shearedPair(t, 0.5)
	e, err := New(m)
	require.NoError(t, err)

	assert.Len(t, e.CellNonOrthogonality(), m.NCells)
	assert.Len(t, e.Skewness(), m.NCells)
	assert.Len(t, e.FaceNonOrthogonality(), m.NFaces())
	assert.Len(t, e.FaceSkewness(), m.NFaces())
}

func TestShearedPairGolden(t *testing.T) {
	const s = 0.5
	m := shearedPair(t, s)
	e, err := New(m)
	require.NoError(t, err)
	require.Equal(t, 1, m.NInternalFaces())

	wantAngle := degrees(math.Atan(s))
	wantSkew := s / (2 * math.Sqrt(1+s*s))

	faceNO := e.FaceNonOrthogonality()
	assert.InDelta(t, wantAngle, faceNO[0], eps)
	for f := 1; f < m.NFaces(); f++ {
		assert.Zero(t, faceNO[f], "boundary face %d", f)
	}

	cellNO := e.CellNonOrthogonality()
	assert.InDelta(t, wantAngle, cellNO[0], eps)
	assert.InDelta(t, wantAngle, cellNO[1], eps)

	assert.InDelta(t, wantSkew, e.FaceSkewness()[0], eps)
	assert.InDelta(t, 0.2236, wantSkew, 1e-4)

	skew := e.Skewness()
	assert.InDelta(t, wantSkew, skew[0], eps)
	// The far face and the sheared side faces of the right cell all read
	// 2s/√(1+4s²), which beats the internal face.
	assert.InDelta(t, 2*s/math.Sqrt(1+4*s*s), skew[1], eps)
}

func TestBoundarySkewnessIsBounded(t *testing.T) {
	for _, s := range []float64{1, 3, 10, 100} {
		e, err := New(shearedPair(t, s))
		require.NoError(t, err)
		g := e.Geometry()
		faceSkew := e.FaceSkewness()
		for f := g.NInternalFaces(); f < g.NFaces(); f++ {
			assert.LessOrEqual(t, faceSkew[f], 1.0, "shear %g, boundary face %d", s, f)
		}
		assert.InDelta(t, 2*s/math.Sqrt(1+4*s*s), e.Skewness()[1], eps, "shear %g", s)
		assert.Less(t, e.Skewness()[1], DefaultMaxSkewness, "shear %g", s)
	}
}

func TestNonOrthogonalityGrowsWithShear(t *testing.T) {
	prev := -1.0
	for _, s := range []float64{0, 0.1, 0.5, 1, 3} {
		e, err := New(shearedPair(t, s))
		require.NoError(t, err)
		got := e.CellNonOrthogonality()[0]
		assert.InDelta(t, degrees(math.Atan(s)), got, eps, "shear %g", s)
		assert.Greater(t, got, prev, "shear %g", s)
		prev = got
	}
}

func TestValueRanges(t *testing.T) {
	blk := blockmesh.Block{Max: v3.Vec{X: 1, Y: 1, Z: 1}, Cells: [3]int{3, 3, 3}, Grading: [3]float64{2, 0.5, 1}}
	shearY := blk.Shear(blockmesh.AxisY, v3.Vec{X: 0.3, Z: -0.2}, 0.2)
	shearZ := blk.Shear(blockmesh.AxisZ, v3.Vec{Y: 0.4}, 0)
	m, err := blockmesh.Generate(blk, blockmesh.WithTransform(shearY), blockmesh.WithTransform(shearZ))
	require.NoError(t, err)

	e, err := New(m)
	require.NoError(t, err)
	for i, v := range e.FaceNonOrthogonality() {
		assert.GreaterOrEqual(t, v, 0.0, "faceNonOrtho[%d]", i)
		assert.Less(t, v, 180.0, "faceNonOrtho[%d]", i)
	}
	for i, v := range e.FaceSkewness() {
		assert.GreaterOrEqual(t, v, 0.0, "faceSkewness[%d]", i)
		assert.False(t, math.IsNaN(v), "faceSkewness[%d]", i)
	}

	// Cell values are the maxima of their faces.
	for c, faces := range m.CellFaces() {
		var maxNO, maxSkew float64
		for _, f := range faces {
			maxSkew = math.Max(maxSkew, e.FaceSkewness()[f])
			if m.IsInternal(f) {
				maxNO = math.Max(maxNO, e.FaceNonOrthogonality()[f])
			}
		}
		assert.Equal(t, maxNO, e.CellNonOrthogonality()[c], "cell %d", c)
		assert.Equal(t, maxSkew, e.Skewness()[c], "cell %d", c)
	}
}

func TestCoincidentCentroidsAreZero(t *testing.T) {
	centre := v3.Vec{X: 0.5, Y: 0.5, Z: 0.5}
	g := &polymesh.Geometry{
		Mesh: &polymesh.Mesh{
			Faces:     []polymesh.Face{{0, 1, 2, 3}},
			Owner:     []int{0},
			Neighbour: []int{1},
			NCells:    2,
		},
		FaceAreas:   []polymesh.Vec{{X: 1}},
		FaceCentres: []polymesh.Vec{centre},
		CellCentres: []polymesh.Vec{centre, centre},
		CellVolumes: []float64{1, 1},
		Tolerance:   1e-10,
	}
	e := FromGeometry(g)
	assert.Equal(t, []float64{0}, e.FaceNonOrthogonality())
	assert.Equal(t, []float64{0}, e.FaceSkewness())
	assert.Equal(t, []float64{0, 0}, e.CellNonOrthogonality())
	assert.Equal(t, []float64{0, 0}, e.Skewness())
}

func TestDegenerateFaceIsZero(t *testing.T) {
	g := &polymesh.Geometry{
		Mesh: &polymesh.Mesh{
			Faces:     []polymesh.Face{{0, 1, 2}, {3, 4, 5}},
			Owner:     []int{0, 0},
			Neighbour: []int{1},
			NCells:    2,
		},
		FaceAreas:   []polymesh.Vec{{}, {}},
		FaceCentres: []polymesh.Vec{{X: 1}, {X: 2}},
		CellCentres: []polymesh.Vec{{}, {X: 2, Y: 1}},
		CellVolumes: []float64{1, 1},
		Tolerance:   1e-10,
	}
	e := FromGeometry(g)
	assert.Equal(t, []float64{0, 0}, e.FaceNonOrthogonality())
	assert.Equal(t, []float64{0, 0}, e.FaceSkewness())
}

func TestMalformedMesh(t *testing.T) {
	m := shearedPair(t, 0)
	m.Faces[3] = polymesh.Face{0, 1, 99}

	_, err := New(m)
	require.Error(t, err)
	assert.True(t, errors.Is(err, polymesh.ErrInvalidMesh))
	var invalid *polymesh.InvalidMeshError
	require.ErrorAs(t, err, &invalid)
	assert.NotEmpty(t, invalid.Problems)
}

func TestNonFinitePointIsRejected(t *testing.T) {
	for _, bad := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		m := shearedPair(t, 0.5)
		m.Points[0] = v3.Vec{X: bad}

		e, err := New(m)
		assert.Nil(t, e, "coordinate %g", bad)
		require.ErrorIs(t, err, polymesh.ErrInvalidMesh, "coordinate %g", bad)
		assert.Contains(t, err.Error(), "non-finite", "coordinate %g", bad)
	}
}

func TestComputeAll(t *testing.T) {
	e, err := New(shearedPair(t, 0.5))
	require.NoError(t, err)

	got, err := e.ComputeAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, e.CellNonOrthogonality(), got.CellNonOrtho)
	assert.Equal(t, e.Skewness(), got.CellSkewness)
	assert.Equal(t, e.FaceNonOrthogonality(), got.FaceNonOrtho)
	assert.Equal(t, e.FaceSkewness(), got.FaceSkewness)
}

func TestComputeAllCancelled(t *testing.T) {
	e, err := New(shearedPair(t, 0.5))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = e.ComputeAll(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestConcurrentAccessIsMemoized(t *testing.T) {
	e, err := New(shearedPair(t, 0.25))
	require.NoError(t, err)

	const workers = 8
	results := make([][]float64, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = e.Skewness()
		}(i)
	}
	wg.Wait()
	for i := 1; i < workers; i++ {
		assert.Same(t, &results[0][0], &results[i][0])
	}
}

func TestFieldsAndLookup(t *testing.T) {
	e, err := New(shearedPair(t, 0.5))
	require.NoError(t, err)

	fields := e.Fields()
	require.Len(t, fields, len(FieldNames))
	for i, f := range fields {
		assert.Equal(t, FieldNames[i], f.Name)
	}

	f, err := e.Field(FaceSkewness)
	require.NoError(t, err)
	assert.Equal(t, LocationFace, f.Location)

	_, err = e.Field("volumeRatio")
	assert.Error(t, err)
}

func TestLocationText(t *testing.T) {
	for _, l := range []Location{LocationCell, LocationFace} {
		text, err := l.MarshalText()
		require.NoError(t, err)
		var back Location
		require.NoError(t, back.UnmarshalText(text))
		assert.Equal(t, l, back)
	}
	var l Location
	assert.Error(t, l.UnmarshalText([]byte("point")))
	assert.Equal(t, "Location(7)", Location(7).String())
}

func TestSummarize(t *testing.T) {
	tests := []struct {
		name   string
		values []float64
		limit  float64
		want   Stats
	}{
		{
			name:   "spread",
			values: []float64{1, 5, 3},
			limit:  4,
			want:   Stats{Field: "f", Count: 3, Min: 1, Max: 5, Mean: 3, StdDev: 2, Limit: 4, Exceeded: []int{1}, ArgMax: 1},
		},
		{
			name:   "single",
			values: []float64{2},
			limit:  4,
			want:   Stats{Field: "f", Count: 1, Min: 2, Max: 2, Mean: 2, Limit: 4, ArgMax: 0},
		},
		{
			name:  "empty",
			limit: 4,
			want:  Stats{Field: "f", Limit: 4, ArgMax: -1},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Summarize(Field{Name: "f", Values: tt.values}, tt.limit)
			assert.InDelta(t, tt.want.StdDev, got.StdDev, eps)
			got.StdDev = tt.want.StdDev
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEvaluatorSummarize(t *testing.T) {
	e, err := New(shearedPair(t, 0.5))
	require.NoError(t, err)

	s := e.Summarize(Thresholds{MaxNonOrtho: 20, MaxSkewness: 0.5})
	require.Len(t, s.Fields, 4)

	cno, ok := s.Get(CellNonOrtho)
	require.True(t, ok)
	assert.Equal(t, []int{0, 1}, cno.Exceeded)
	assert.Equal(t, 20.0, cno.Limit)

	cs, ok := s.Get(CellSkewness)
	require.True(t, ok)
	assert.Equal(t, []int{1}, cs.Exceeded)
	assert.Equal(t, 1, cs.ArgMax)
	assert.Greater(t, s.Violations(), 3)

	_, ok = s.Get("missing")
	assert.False(t, ok)

	clean := e.Summarize(DefaultThresholds())
	assert.Zero(t, clean.Violations())
}
