package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"sidecheck/internal/coordinator"
	"sidecheck/internal/diagfmt"
	"sidecheck/internal/version"
)

var checkCmd = &cobra.Command{
	Use:   "check [dir]",
	Short: "Type-check a Go project once",
	Long: `Type-check the Go project containing [dir] (default: the current directory)
with a pool of worker processes and print the diagnostics. Exits with status 2
when any error is reported.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runCheck,
}

func init() {
	addSessionFlags(checkCmd)
	addOutputFlags(checkCmd)
	checkCmd.Flags().StringSlice("changed", nil, "files changed since the last check (informational for a cold pool)")
	checkCmd.Flags().Bool("rebuild", false, "drop incremental state before checking")
}

func addOutputFlags(cmd *cobra.Command) {
	cmd.Flags().String("format", "pretty", "output format (pretty|short|json|sarif)")
	cmd.Flags().Bool("fullpath", false, "emit absolute file paths in output")
	cmd.Flags().Int("context", 0, "source lines shown around each diagnostic (-1 disables)")
}

type renderOpts struct {
	format   string
	root     string
	fullPath bool
	context  int
	max      int
	timings  bool
	args     []string
}

func readRenderOpts(cmd *cobra.Command, root string, args []string) (renderOpts, error) {
	format, err := cmd.Flags().GetString("format")
	if err != nil {
		return renderOpts{}, fmt.Errorf("failed to get format flag: %w", err)
	}
	switch format {
	case "pretty", "short", "json", "sarif":
	default:
		return renderOpts{}, fmt.Errorf("unknown format %q (expected pretty|short|json|sarif)", format)
	}
	fullPath, err := cmd.Flags().GetBool("fullpath")
	if err != nil {
		return renderOpts{}, fmt.Errorf("failed to get fullpath flag: %w", err)
	}
	ctxLines, err := cmd.Flags().GetInt("context")
	if err != nil {
		return renderOpts{}, fmt.Errorf("failed to get context flag: %w", err)
	}
	maxDiagnostics, err := cmd.Root().PersistentFlags().GetInt("max-diagnostics")
	if err != nil {
		return renderOpts{}, fmt.Errorf("failed to get max-diagnostics flag: %w", err)
	}
	showTimings, err := cmd.Root().PersistentFlags().GetBool("timings")
	if err != nil {
		return renderOpts{}, fmt.Errorf("failed to get timings flag: %w", err)
	}
	return renderOpts{
		format:   format,
		root:     root,
		fullPath: fullPath,
		context:  ctxLines,
		max:      maxDiagnostics,
		timings:  showTimings,
		args:     args,
	}, nil
}

func (o renderOpts) pathMode() diagfmt.PathMode {
	if o.fullPath {
		return diagfmt.PathModeAbsolute
	}
	return diagfmt.PathModeAuto
}

func renderReport(out io.Writer, rep coordinator.Report, o renderOpts) error {
	switch o.format {
	case "json":
		return diagfmt.JSON(out, diagfmt.Result{
			Diagnostics:       rep.Diagnostics,
			HasBlockingErrors: rep.HasBlockingErrors,
			Failed:            rep.Failed,
			Timings:           rep.Timings,
		}, diagfmt.JSONOpts{PathMode: o.pathMode(), Root: o.root, Max: o.max, Timings: o.timings})
	case "sarif":
		return diagfmt.Sarif(out, rep.Diagnostics, diagfmt.SarifRunMeta{
			ToolName:       "sidecheck",
			ToolVersion:    version.Version,
			InvocationArgs: o.args,
		})
	case "short":
		return diagfmt.Short(out, rep.Diagnostics, diagfmt.PrettyOpts{PathMode: o.pathMode(), Root: o.root, Max: o.max})
	default:
		return diagfmt.Pretty(out, rep.Diagnostics, diagfmt.PrettyOpts{
			Color:    !color.NoColor,
			Context:  o.context,
			PathMode: o.pathMode(),
			Root:     o.root,
			Max:      o.max,
			Summary:  true,
		})
	}
}

// runCheck starts a pool, runs one full check and exits with 2 when the
// report has blocking errors.
func runCheck(cmd *cobra.Command, args []string) error {
	defer dumpTraceOnPanic()

	root, cfg, err := resolveSession(cmd, args)
	if err != nil {
		return err
	}
	ro, err := readRenderOpts(cmd, root, os.Args[1:])
	if err != nil {
		return err
	}
	changed, err := cmd.Flags().GetStringSlice("changed")
	if err != nil {
		return fmt.Errorf("failed to get changed flag: %w", err)
	}
	rebuild, err := cmd.Flags().GetBool("rebuild")
	if err != nil {
		return fmt.Errorf("failed to get rebuild flag: %w", err)
	}

	ctx := cmd.Context()
	pool, err := startPool(cmd, root, cfg)
	if err != nil {
		return err
	}
	defer closePool(pool)

	rep, err := pool.Check(ctx, changed, rebuild).Wait(ctx)
	if err != nil {
		return err
	}
	if err := renderReport(cmd.OutOrStdout(), rep, ro); err != nil {
		return err
	}
	if ro.timings && ro.format != "json" {
		printTimings(cmd.ErrOrStderr(), rep.Timings)
	}
	if rep.HasBlockingErrors {
		return exitError{code: 2}
	}
	return nil
}

func closePool(pool *coordinator.Coordinator) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = pool.Close(ctx)
}
