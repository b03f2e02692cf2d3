package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/chazu/meshqual/pkg/config"
	"github.com/chazu/meshqual/pkg/engine"
	"github.com/chazu/meshqual/pkg/kernel"
	"github.com/chazu/meshqual/pkg/kernel/sdfx"
	"github.com/chazu/meshqual/pkg/polymesh"
	"github.com/chazu/meshqual/pkg/quality"
	"github.com/chazu/meshqual/pkg/report"
	"github.com/chazu/meshqual/pkg/surface"
)

// ErrThresholdsExceeded is returned by strict checks when any element is
// beyond its quality limit.
var ErrThresholdsExceeded = errors.New("mesh quality thresholds exceeded")

// CaseError carries the parse and runtime errors of a case file.
type CaseError struct {
	Errors []engine.EvalError
}

func (e *CaseError) Error() string {
	msgs := make([]string, len(e.Errors))
	for i, ee := range e.Errors {
		msgs[i] = ee.Error()
	}
	return "case file: " + strings.Join(msgs, "; ")
}

// App runs the meshqual pipeline: case source, region meshes, quality
// metrics, then reports or painted surfaces.
type App struct {
	engine *engine.Engine
	kernel kernel.Kernel
	cfg    *config.Config
	log    *zap.Logger
}

// NewApp creates an App with the sdfx kernel.
func NewApp(cfg *config.Config, log *zap.Logger) (*App, error) {
	timeout, err := cfg.EvalTimeout()
	if err != nil {
		return nil, err
	}
	k := sdfx.New()
	return &App{
		engine: engine.NewEngine(k, engine.WithTimeout(timeout)),
		kernel: k,
		cfg:    cfg,
		log:    log,
	}, nil
}

// Load evaluates case source into its regions.
func (a *App) Load(source string) (*engine.Case, error) {
	c, evalErrs, err := a.engine.Evaluate(source)
	if err != nil {
		return nil, fmt.Errorf("evaluate case: %w", err)
	}
	if len(evalErrs) > 0 {
		for _, e := range evalErrs {
			a.log.Debug("case error", zap.Int("line", e.Line), zap.String("message", e.Message))
		}
		return nil, &CaseError{Errors: evalErrs}
	}
	a.log.Debug("case evaluated", zap.Strings("regions", c.Names()))
	return c, nil
}

// evaluate builds one region and binds an evaluator to it.
func (a *App) evaluate(ctx context.Context, c *engine.Case, r *engine.Region) (*quality.Evaluator, error) {
	m, err := c.Build(r.Name)
	if err != nil {
		return nil, err
	}
	ev, err := quality.New(m)
	if err != nil {
		return nil, fmt.Errorf("region %q: %w", r.Name, err)
	}
	g := ev.Geometry()
	for _, w := range g.Warnings {
		a.log.Warn("degenerate geometry", zap.String("region", r.Name), zap.String("warning", w.String()))
	}
	if a.cfg.Evaluation.Parallel {
		if _, err := ev.ComputeAll(ctx); err != nil {
			return nil, fmt.Errorf("region %q: %w", r.Name, err)
		}
	}
	a.log.Debug("region meshed",
		zap.String("region", r.Name),
		zap.String("recipe", r.Recipe.String()),
		zap.Int("cells", g.NCells),
		zap.Int("faces", g.NFaces()))
	return ev, nil
}

// Check evaluates the selected region (all regions when region is empty)
// and reports its quality. Threshold violations are logged, not returned.
func (a *App) Check(ctx context.Context, source, region string) ([]*report.Report, error) {
	c, err := a.Load(source)
	if err != nil {
		return nil, err
	}
	regions, err := c.Select(region)
	if err != nil {
		return nil, err
	}

	var reports []*report.Report
	for _, r := range regions {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		ev, err := a.evaluate(ctx, c, r)
		if err != nil {
			return nil, err
		}
		rep := report.New(r.Name, ev, a.cfg.Thresholds)
		a.logSummary(rep)
		reports = append(reports, rep)
	}
	return reports, nil
}

func (a *App) logSummary(rep *report.Report) {
	for _, st := range rep.Summary.Fields {
		fields := []zap.Field{
			zap.String("region", rep.Region),
			zap.String("field", st.Field),
			zap.Float64("max", st.Max),
			zap.Float64("mean", st.Mean),
			zap.Float64("limit", st.Limit),
		}
		if n := len(st.Exceeded); n > 0 {
			a.log.Warn("elements exceed quality limit", append(fields, zap.Int("count", n), zap.Int("worst", st.ArgMax))...)
			continue
		}
		a.log.Info("quality", fields...)
	}
}

// Surface paints the boundary of the selected regions with the named field,
// one mesh per patch. With withSolid, castellated regions also contribute
// a tessellation of the solid they were cut from.
func (a *App) Surface(ctx context.Context, source, region, field string, withSolid bool) ([]*kernel.Mesh, error) {
	c, err := a.Load(source)
	if err != nil {
		return nil, err
	}
	regions, err := c.Select(region)
	if err != nil {
		return nil, err
	}

	var meshes []*kernel.Mesh
	for _, r := range regions {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		ev, err := a.evaluate(ctx, c, r)
		if err != nil {
			return nil, err
		}
		f, err := ev.Field(field)
		if err != nil {
			return nil, err
		}
		patches, err := surface.ExtractPatches(ev.Geometry(), f)
		if err != nil {
			return nil, fmt.Errorf("region %q: %w", r.Name, err)
		}
		for _, m := range patches {
			m.PartName = r.Name + "/" + m.PartName
		}
		meshes = append(meshes, patches...)

		if s := r.Solid(); withSolid && s != nil {
			m, err := a.kernel.ToMesh(s)
			if err != nil {
				return nil, fmt.Errorf("region %q: tessellate solid: %w", r.Name, err)
			}
			m.PartName = r.Name + "/solid"
			meshes = append(meshes, m)
		}
	}
	return meshes, nil
}

// Strict returns ErrThresholdsExceeded when any report has violations.
func Strict(reports []*report.Report) error {
	total := 0
	for _, r := range reports {
		total += r.Violations
	}
	if total > 0 {
		return fmt.Errorf("%w: %d element(s)", ErrThresholdsExceeded, total)
	}
	return nil
}

// IsInvalidMesh reports whether err stems from an inconsistent mesh.
func IsInvalidMesh(err error) bool {
	return errors.Is(err, polymesh.ErrInvalidMesh)
}
