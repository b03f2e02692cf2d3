package polymesh

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
)

// ErrInvalidMesh is matched by every *InvalidMeshError via errors.Is.
var ErrInvalidMesh = errors.New("polymesh: invalid mesh")

// minCellFaces is the smallest face count that can close a polyhedron.
const minCellFaces = 4

// Severity indicates whether a validation finding blocks evaluation or is
// merely informational.
type Severity int

const (
	SeverityError   Severity = iota // blocks evaluation
	SeverityWarning                 // informational
)

func (s Severity) String() string {
	switch s {
	case SeverityError:
		return "error"
	case SeverityWarning:
		return "warning"
	default:
		return fmt.Sprintf("Severity(%d)", int(s))
	}
}

// ValidationError describes a single validation finding. Face and Cell are
// -1 when the finding is not tied to one element.
type ValidationError struct {
	Face     int
	Cell     int
	Message  string
	Severity Severity
}

func (e ValidationError) Error() string {
	switch {
	case e.Face >= 0:
		return fmt.Sprintf("[%s] face %d: %s", e.Severity, e.Face, e.Message)
	case e.Cell >= 0:
		return fmt.Sprintf("[%s] cell %d: %s", e.Severity, e.Cell, e.Message)
	default:
		return fmt.Sprintf("[%s] %s", e.Severity, e.Message)
	}
}

// ValidationWarning describes a non-blocking advisory finding.
type ValidationWarning struct {
	Face    int
	Cell    int
	Message string
}

func (w ValidationWarning) String() string {
	return ValidationError{Face: w.Face, Cell: w.Cell, Message: w.Message, Severity: SeverityWarning}.Error()
}

// ValidationResult bundles blocking errors and advisory warnings.
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []ValidationWarning
}

// OK reports whether the result carries no errors.
func (r ValidationResult) OK() bool {
	return len(r.Errors) == 0
}

// InvalidMeshError reports the structural problems that prevented geometry
// from being derived. No partial results accompany it.
type InvalidMeshError struct {
	Problems []ValidationError
}

func (e *InvalidMeshError) Error() string {
	switch len(e.Problems) {
	case 0:
		return ErrInvalidMesh.Error()
	case 1:
		return fmt.Sprintf("%s: %s", ErrInvalidMesh, e.Problems[0].Error())
	default:
		return fmt.Sprintf("%s: %s (and %d more)", ErrInvalidMesh, e.Problems[0].Error(), len(e.Problems)-1)
	}
}

// Is makes errors.Is(err, ErrInvalidMesh) hold.
func (e *InvalidMeshError) Is(target error) bool {
	return target == ErrInvalidMesh
}

// Validate runs the structural checks and, when the structure is sound, the
// geometric checks that need derived geometry. It never mutates the mesh.
func Validate(m *Mesh) ValidationResult {
	var result ValidationResult
	result.Errors = validateStructure(m)
	if len(result.Errors) > 0 {
		return result
	}
	g := computeGeometry(m)
	result.Errors, result.Warnings = validateGeometry(g)
	return result
}

func structural(msg string, args ...interface{}) ValidationError {
	return ValidationError{Face: -1, Cell: -1, Message: fmt.Sprintf(msg, args...), Severity: SeverityError}
}

func faceError(f int, msg string, args ...interface{}) ValidationError {
	return ValidationError{Face: f, Cell: -1, Message: fmt.Sprintf(msg, args...), Severity: SeverityError}
}

func cellError(c int, msg string, args ...interface{}) ValidationError {
	return ValidationError{Face: -1, Cell: c, Message: fmt.Sprintf(msg, args...), Severity: SeverityError}
}

// ---------------------------------------------------------------------------
// Tier 1: Structure
// ---------------------------------------------------------------------------

func validateStructure(m *Mesh) []ValidationError {
	if m == nil {
		return []ValidationError{structural("mesh is nil")}
	}
	var errs []ValidationError
	errs = append(errs, validateCounts(m)...)
	if len(errs) > 0 {
		// Addressing checks index into Owner/Neighbour by face.
		return errs
	}
	errs = append(errs, validatePoints(m)...)
	errs = append(errs, validateFaces(m)...)
	errs = append(errs, validateAddressing(m)...)
	errs = append(errs, validatePatches(m)...)
	if len(errs) == 0 {
		errs = append(errs, validateCellUsage(m)...)
	}
	return errs
}

func validateCounts(m *Mesh) []ValidationError {
	var errs []ValidationError
	if m.NCells <= 0 {
		errs = append(errs, structural("mesh declares %d cells, need at least 1", m.NCells))
	}
	if len(m.Faces) == 0 {
		errs = append(errs, structural("mesh has no faces"))
	}
	if len(m.Owner) != len(m.Faces) {
		errs = append(errs, structural("owner list has %d entries for %d faces", len(m.Owner), len(m.Faces)))
	}
	if len(m.Neighbour) > len(m.Faces) {
		errs = append(errs, structural("neighbour list has %d entries for %d faces", len(m.Neighbour), len(m.Faces)))
	}
	return errs
}

// validatePoints rejects NaN and infinite coordinates.
func validatePoints(m *Mesh) []ValidationError {
	var errs []ValidationError
	for i, p := range m.Points {
		if !finite(p.X) || !finite(p.Y) || !finite(p.Z) {
			errs = append(errs, structural("point %d has non-finite coordinates %v", i, p))
		}
	}
	return errs
}

func finite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}

// validateFaces checks point references and that each face is a polygon.
func validateFaces(m *Mesh) []ValidationError {
	var errs []ValidationError
	for f, face := range m.Faces {
		distinct := make(map[int]struct{}, len(face))
		bad := false
		for _, p := range face {
			if p < 0 || p >= len(m.Points) {
				errs = append(errs, faceError(f, "point index %d out of range [0, %d)", p, len(m.Points)))
				bad = true
				break
			}
			distinct[p] = struct{}{}
		}
		if !bad && len(distinct) < 3 {
			errs = append(errs, faceError(f, "degenerate face with %d distinct points", len(distinct)))
		}
	}
	return errs
}

// validateAddressing checks owner and neighbour cell indices.
func validateAddressing(m *Mesh) []ValidationError {
	var errs []ValidationError
	for f, own := range m.Owner {
		if own < 0 || own >= m.NCells {
			errs = append(errs, faceError(f, "owner cell %d out of range [0, %d)", own, m.NCells))
		}
	}
	for f, nei := range m.Neighbour {
		switch {
		case nei < 0 || nei >= m.NCells:
			errs = append(errs, faceError(f, "neighbour cell %d out of range [0, %d)", nei, m.NCells))
		case nei == m.Owner[f]:
			errs = append(errs, faceError(f, "owner and neighbour are both cell %d", nei))
		}
	}
	return errs
}

// validatePatches checks that declared patches tile the boundary faces.
func validatePatches(m *Mesh) []ValidationError {
	if len(m.Patches) == 0 {
		return nil
	}
	var errs []ValidationError

	patches := make([]Patch, len(m.Patches))
	copy(patches, m.Patches)
	sort.SliceStable(patches, func(i, j int) bool { return patches[i].Start < patches[j].Start })

	names := make(map[string]bool, len(patches))
	next := m.NInternalFaces()
	for _, p := range patches {
		if strings.TrimSpace(p.Name) == "" {
			errs = append(errs, structural("patch starting at face %d has no name", p.Start))
		} else if names[p.Name] {
			errs = append(errs, structural("duplicate patch name %q", p.Name))
		}
		names[p.Name] = true

		if p.Size < 0 {
			errs = append(errs, structural("patch %q has negative size %d", p.Name, p.Size))
			continue
		}
		if p.Start != next {
			errs = append(errs, structural("patch %q starts at face %d, expected %d", p.Name, p.Start, next))
		}
		next = p.End()
	}
	if next != m.NFaces() {
		errs = append(errs, structural("patches end at face %d, mesh has %d faces", next, m.NFaces()))
	}
	return errs
}

// validateCellUsage checks that every cell is closed by enough faces.
func validateCellUsage(m *Mesh) []ValidationError {
	var errs []ValidationError
	for c, faces := range m.CellFaces() {
		switch {
		case len(faces) == 0:
			errs = append(errs, cellError(c, "cell is referenced by no face"))
		case len(faces) < minCellFaces:
			errs = append(errs, cellError(c, "cell has %d faces, a closed cell needs at least %d", len(faces), minCellFaces))
		}
	}
	return errs
}

// ---------------------------------------------------------------------------
// Tier 2: Geometry
// ---------------------------------------------------------------------------

// validateGeometry reports non-positive cell volumes as errors, and
// degenerate faces, inverted faces and coincident centroids as warnings.
func validateGeometry(g *Geometry) ([]ValidationError, []ValidationWarning) {
	var errs []ValidationError
	var warnings []ValidationWarning

	volTol := g.VolumeTolerance()
	for c, v := range g.CellVolumes {
		if !(v > volTol) {
			errs = append(errs, cellError(c, "non-positive cell volume %g", v))
		}
	}

	areaTol := g.AreaTolerance()
	for f := range g.Faces {
		sf := g.FaceAreas[f]
		if sf.Length() <= areaTol {
			warnings = append(warnings, ValidationWarning{Face: f, Cell: -1, Message: "zero-area face"})
			continue
		}
		own := g.Owner[f]
		var delta Vec
		if g.IsInternal(f) {
			delta = g.CellCentres[g.Neighbour[f]].Sub(g.CellCentres[own])
		} else {
			delta = g.FaceCentres[f].Sub(g.CellCentres[own])
		}
		if delta.Length() <= g.Tolerance {
			msg := "owner and neighbour centroids coincide"
			if !g.IsInternal(f) {
				msg = "owner centroid lies on the face centroid"
			}
			warnings = append(warnings, ValidationWarning{Face: f, Cell: own, Message: msg})
			continue
		}
		if delta.Dot(sf) < 0 {
			warnings = append(warnings, ValidationWarning{
				Face:    f,
				Cell:    own,
				Message: "face normal points into its owner cell",
			})
		}
	}

	return errs, warnings
}
