package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"sidecheck/internal/checker"
	"sidecheck/internal/coordinator"
	"sidecheck/internal/trace"
	"sidecheck/internal/version"
	"sidecheck/internal/worker"
)

// workerCmd is started by the coordinator; messages flow over stdin and
// stdout, traces go to stderr.
var workerCmd = &cobra.Command{
	Use:    "worker",
	Short:  "Run one check worker over stdin/stdout",
	Hidden: true,
	Args:   cobra.NoArgs,
	RunE:   runWorker,
}

func init() {
	workerCmd.Flags().Int("id", 0, "worker id")
	workerCmd.Flags().String("root", "", "project root")
	workerCmd.Flags().Bool("lint", false, "run the lint pass")
	workerCmd.Flags().String("cache-dir", "", "disk cache directory")
	workerCmd.Flags().Bool("full-rebuild-on-init", false, "ignore the disk cache for the first request")
	_ = workerCmd.MarkFlagRequired("root")
}

type stdio struct {
	io.Reader
	io.Writer
}

func runWorker(cmd *cobra.Command, _ []string) error {
	defer dumpTraceOnPanic()

	f := cmd.Flags()
	id, _ := f.GetInt("id")
	root, _ := f.GetString("root")
	lint, _ := f.GetBool("lint")
	cacheDir, _ := f.GetString("cache-dir")
	fullRebuild, _ := f.GetBool("full-rebuild-on-init")

	spec := coordinator.WorkerSpec{
		ID:                id,
		Root:              root,
		EnableLint:        lint,
		CacheDir:          cacheDir,
		FullRebuildOnInit: fullRebuild,
	}
	ctx := trace.WithTracer(cmd.Context(), trace.Tagged(trace.FromContext(cmd.Context()), fmt.Sprintf("worker-%d", id)))
	build := worker.ServiceFromEnv(func() (checker.Service, error) { return coordinator.NewGoService(spec) })
	return worker.Serve(ctx, stdio{os.Stdin, os.Stdout}, build, worker.Options{
		WorkerID: id,
		Version:  version.Version,
	})
}
