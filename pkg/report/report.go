// Package report renders the quality metrics of one mesh region as a JSON
// or YAML document.
package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/chazu/meshqual/pkg/polymesh"
	"github.com/chazu/meshqual/pkg/quality"
)

// ErrUnknownFormat is returned for an output format other than json or yaml.
var ErrUnknownFormat = errors.New("report: unknown format")

// Format selects the document encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ParseFormat accepts json, yaml and yml in any case.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	}
	return "", fmt.Errorf("%w %q (want json or yaml)", ErrUnknownFormat, s)
}

// Patch describes one boundary patch.
type Patch struct {
	Name  string `json:"name" yaml:"name"`
	Start int    `json:"start" yaml:"start"`
	Size  int    `json:"size" yaml:"size"`
}

// Field is one labeled metric array.
type Field struct {
	Name     string           `json:"name" yaml:"name"`
	Location quality.Location `json:"location" yaml:"location"`
	Values   []float64        `json:"values" yaml:"values,flow"`
}

// Report is the quality document of one region.
type Report struct {
	Region        string             `json:"region" yaml:"region"`
	Cells         int                `json:"cells" yaml:"cells"`
	Faces         int                `json:"faces" yaml:"faces"`
	InternalFaces int                `json:"internal_faces" yaml:"internal_faces"`
	Patches       []Patch            `json:"patches" yaml:"patches"`
	Thresholds    quality.Thresholds `json:"thresholds" yaml:"thresholds"`
	Summary       quality.Summary    `json:"summary" yaml:"summary"`
	Violations    int                `json:"violations" yaml:"violations"`
	Warnings      []string           `json:"warnings,omitempty" yaml:"warnings,omitempty"`
	Fields        []Field            `json:"fields,omitempty" yaml:"fields,omitempty"`
}

// New builds the report of a region from its evaluator.
func New(region string, ev *quality.Evaluator, t quality.Thresholds) *Report {
	g := ev.Geometry()
	r := &Report{
		Region:        region,
		Cells:         g.NCells,
		Faces:         g.NFaces(),
		InternalFaces: g.NInternalFaces(),
		Thresholds:    t,
		Summary:       ev.Summarize(t),
	}
	r.Violations = r.Summary.Violations()
	for _, p := range g.BoundaryPatches() {
		r.Patches = append(r.Patches, Patch{Name: p.Name, Start: p.Start, Size: p.Size})
	}
	for _, w := range g.Warnings {
		r.Warnings = append(r.Warnings, w.String())
	}
	for _, f := range ev.Fields() {
		r.Fields = append(r.Fields, Field{Name: f.Name, Location: f.Location, Values: f.Values})
	}
	return r
}

// SummaryOnly returns a copy of r without the per-element arrays.
func (r *Report) SummaryOnly() *Report {
	out := *r
	out.Fields = nil
	return &out
}

// Field returns the named metric array.
func (r *Report) Field(name string) (Field, bool) {
	for _, f := range r.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Write encodes r to w.
func (r *Report) Write(w io.Writer, format Format) error {
	return WriteAll(w, []*Report{r}, format)
}

// WriteAll encodes several reports: a JSON array, or one YAML document
// per report. A single report is written bare in both formats.
func WriteAll(w io.Writer, reports []*Report, format Format) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		var v interface{} = reports
		if len(reports) == 1 {
			v = reports[0]
		}
		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("report: encode json: %w", err)
		}
		return nil
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		for _, r := range reports {
			if err := enc.Encode(r); err != nil {
				return fmt.Errorf("report: encode yaml: %w", err)
			}
		}
		if err := enc.Close(); err != nil {
			return fmt.Errorf("report: encode yaml: %w", err)
		}
		return nil
	}
	return fmt.Errorf("%w %q", ErrUnknownFormat, format)
}

// Read decodes one report written by Write.
func Read(rd io.Reader, format Format) (*Report, error) {
	var r Report
	switch format {
	case FormatJSON:
		if err := json.NewDecoder(rd).Decode(&r); err != nil {
			return nil, fmt.Errorf("report: decode json: %w", err)
		}
	case FormatYAML:
		if err := yaml.NewDecoder(rd).Decode(&r); err != nil {
			return nil, fmt.Errorf("report: decode yaml: %w", err)
		}
	default:
		return nil, fmt.Errorf("%w %q", ErrUnknownFormat, format)
	}
	return &r, nil
}

// FromMesh evaluates m and reports it in one step.
func FromMesh(region string, m *polymesh.Mesh, t quality.Thresholds) (*Report, error) {
	ev, err := quality.New(m)
	if err != nil {
		return nil, fmt.Errorf("report: region %q: %w", region, err)
	}
	return New(region, ev, t), nil
}
