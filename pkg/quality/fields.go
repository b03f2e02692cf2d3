package quality

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Field names used for the four metric arrays.
const (
	CellNonOrtho = "cellNonOrtho"
	CellSkewness = "cellSkewness"
	FaceNonOrtho = "faceNonOrtho"
	FaceSkewness = "faceSkewness"
)

// Location says which mesh element a field is indexed by.
type Location int

const (
	LocationCell Location = iota
	LocationFace
)

func (l Location) String() string {
	switch l {
	case LocationCell:
		return "cell"
	case LocationFace:
		return "face"
	default:
		return fmt.Sprintf("Location(%d)", int(l))
	}
}

// MarshalText encodes the location by name for JSON and YAML reports.
func (l Location) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// UnmarshalText decodes a location name written by MarshalText.
func (l *Location) UnmarshalText(text []byte) error {
	switch string(text) {
	case "cell":
		*l = LocationCell
	case "face":
		*l = LocationFace
	default:
		return fmt.Errorf("quality: unknown location %q", text)
	}
	return nil
}

// Field is a labeled, dimensionless scalar array.
type Field struct {
	Name     string
	Location Location
	Values   []float64
}

// FieldNames lists the metric fields in output order.
var FieldNames = []string{CellNonOrtho, CellSkewness, FaceNonOrtho, FaceSkewness}

// Fields returns the four metrics as labeled arrays in FieldNames order.
func (e *Evaluator) Fields() []Field {
	return []Field{
		{Name: CellNonOrtho, Location: LocationCell, Values: e.CellNonOrthogonality()},
		{Name: CellSkewness, Location: LocationCell, Values: e.Skewness()},
		{Name: FaceNonOrtho, Location: LocationFace, Values: e.FaceNonOrthogonality()},
		{Name: FaceSkewness, Location: LocationFace, Values: e.FaceSkewness()},
	}
}

// Field returns the metric with the given name.
func (e *Evaluator) Field(name string) (Field, error) {
	for _, f := range e.Fields() {
		if f.Name == name {
			return f, nil
		}
	}
	return Field{}, fmt.Errorf("quality: unknown field %q (want one of %v)", name, FieldNames)
}

// ---------------------------------------------------------------------------
// Summaries
// ---------------------------------------------------------------------------

// Default limits beyond which an element is reported as poor quality.
const (
	DefaultMaxNonOrtho = 70.0
	DefaultMaxSkewness = 4.0
)

// Thresholds bound acceptable non-orthogonality (degrees) and skewness.
type Thresholds struct {
	MaxNonOrtho float64 `yaml:"max_non_ortho" json:"max_non_ortho"`
	MaxSkewness float64 `yaml:"max_skewness" json:"max_skewness"`
}

// DefaultThresholds returns the customary mesh-check limits.
func DefaultThresholds() Thresholds {
	return Thresholds{MaxNonOrtho: DefaultMaxNonOrtho, MaxSkewness: DefaultMaxSkewness}
}

// Limit returns the threshold that applies to the named field.
func (t Thresholds) Limit(field string) float64 {
	switch field {
	case CellNonOrtho, FaceNonOrtho:
		return t.MaxNonOrtho
	default:
		return t.MaxSkewness
	}
}

// Stats summarizes one field.
type Stats struct {
	Field    string   `json:"field" yaml:"field"`
	Location Location `json:"location" yaml:"location"`
	Count    int      `json:"count" yaml:"count"`
	Min      float64  `json:"min" yaml:"min"`
	Max      float64  `json:"max" yaml:"max"`
	Mean     float64  `json:"mean" yaml:"mean"`
	StdDev   float64  `json:"std_dev" yaml:"std_dev"`
	Limit    float64  `json:"limit" yaml:"limit"`
	Exceeded []int    `json:"exceeded,omitempty" yaml:"exceeded,omitempty"` // element indices above Limit
	ArgMax   int      `json:"arg_max" yaml:"arg_max"`                       // -1 for an empty field
}

// Summary holds the statistics of all four fields.
type Summary struct {
	Fields []Stats `json:"fields" yaml:"fields"`
}

// Get returns the statistics for the named field.
func (s Summary) Get(name string) (Stats, bool) {
	for _, st := range s.Fields {
		if st.Field == name {
			return st, true
		}
	}
	return Stats{}, false
}

// Violations returns the number of elements above their limit across fields.
func (s Summary) Violations() int {
	n := 0
	for _, st := range s.Fields {
		n += len(st.Exceeded)
	}
	return n
}

// Summarize computes statistics for every field against the thresholds.
func (e *Evaluator) Summarize(t Thresholds) Summary {
	var s Summary
	for _, f := range e.Fields() {
		s.Fields = append(s.Fields, Summarize(f, t.Limit(f.Name)))
	}
	return s
}

// Summarize computes statistics for a single field.
func Summarize(f Field, limit float64) Stats {
	st := Stats{Field: f.Name, Location: f.Location, Count: len(f.Values), Limit: limit, ArgMax: -1}
	if len(f.Values) == 0 {
		return st
	}
	st.Min = floats.Min(f.Values)
	st.Max = floats.Max(f.Values)
	st.ArgMax = floats.MaxIdx(f.Values)
	st.Mean, st.StdDev = stat.MeanStdDev(f.Values, nil)
	if math.IsNaN(st.StdDev) {
		// Single-element fields have no sample deviation.
		st.StdDev = 0
	}
	for i, v := range f.Values {
		if v > limit {
			st.Exceeded = append(st.Exceeded, i)
		}
	}
	return st
}
