// Command meshqual evaluates the non-orthogonality and skewness of meshes
// described by a Lisp case file.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/chazu/meshqual/pkg/config"
	"github.com/chazu/meshqual/pkg/quality"
	"github.com/chazu/meshqual/pkg/report"
)

// cli holds the state shared by the subcommands.
type cli struct {
	configPath string
	verbose    bool

	cfg    *config.Config
	logger *zap.Logger
	app    *App
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:   "meshqual",
		Short: "Mesh quality checks for non-orthogonality and skewness",
		Long: `meshqual builds the regions declared in a case file and reports
per-face and per-cell non-orthogonality and skewness against configurable
limits. It can also export the boundary painted with any metric.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.setup()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if c.logger != nil {
				_ = c.logger.Sync()
			}
		},
	}
	root.PersistentFlags().StringVar(&c.configPath, "config", "", "YAML config file")
	root.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "Enable debug logging")

	root.AddCommand(c.checkCmd(), c.surfaceCmd())
	return root
}

func (c *cli) setup() error {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return err
	}
	level, err := cfg.LogLevel()
	if err != nil {
		return err
	}
	if c.verbose {
		level = zapcore.DebugLevel
	}

	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(level)
	logger, err := zc.Build()
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	app, err := NewApp(cfg, logger)
	if err != nil {
		return err
	}
	c.cfg, c.logger, c.app = cfg, logger, app
	return nil
}

func (c *cli) checkCmd() *cobra.Command {
	var (
		region      string
		out         string
		format      string
		summaryOnly bool
		strict      bool
	)
	cmd := &cobra.Command{
		Use:   "check <case-file>",
		Short: "Report mesh quality for the regions of a case file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			source, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			if format == "" {
				format = c.cfg.Output.Format
			}
			f, err := report.ParseFormat(format)
			if err != nil {
				return err
			}

			reports, err := c.app.Check(cmd.Context(), string(source), region)
			if err != nil {
				return err
			}
			if summaryOnly || c.cfg.Output.SummaryOnly {
				for i, r := range reports {
					reports[i] = r.SummaryOnly()
				}
			}

			if err := c.write(cmd.OutOrStdout(), out, func(w io.Writer) error {
				return report.WriteAll(w, reports, f)
			}); err != nil {
				return err
			}
			if strict {
				return Strict(reports)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&region, "region", "r", "", "Only check this region")
	cmd.Flags().StringVarP(&out, "out", "o", "", "Write the report to a file instead of stdout")
	cmd.Flags().StringVarP(&format, "format", "f", "", "Report format: json or yaml (default from config)")
	cmd.Flags().BoolVar(&summaryOnly, "summary-only", false, "Omit per-element values")
	cmd.Flags().BoolVar(&strict, "strict", false, "Exit non-zero when any element exceeds its limit")
	return cmd
}

func (c *cli) surfaceCmd() *cobra.Command {
	var (
		field     string
		region    string
		out       string
		withSolid bool
	)
	cmd := &cobra.Command{
		Use:   "surface <case-file>",
		Short: "Export boundary meshes painted with a quality field",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			source, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			meshes, err := c.app.Surface(cmd.Context(), string(source), region, field, withSolid)
			if err != nil {
				return err
			}
			c.logger.Info("surface exported", zap.String("field", field), zap.Int("meshes", len(meshes)))
			return c.write(cmd.OutOrStdout(), out, func(w io.Writer) error {
				enc := json.NewEncoder(w)
				enc.SetIndent("", "  ")
				return enc.Encode(meshes)
			})
		},
	}
	cmd.Flags().StringVar(&field, "field", quality.FaceSkewness, "Field to paint: faceNonOrtho, faceSkewness, cellNonOrtho or cellSkewness")
	cmd.Flags().StringVarP(&region, "region", "r", "", "Only export this region")
	cmd.Flags().StringVarP(&out, "out", "o", "", "Write the meshes to a file instead of stdout")
	cmd.Flags().BoolVar(&withSolid, "with-solid", false, "Include the tessellated solid of castellated regions")
	return cmd
}

// write sends fn's output to path, or to stdout when path is empty.
func (c *cli) write(stdout io.Writer, path string, fn func(io.Writer) error) error {
	if path == "" {
		return fn(stdout)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := fn(f); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	c.logger.Debug("output written", zap.String("path", path))
	return nil
}

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
