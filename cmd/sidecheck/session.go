package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"sidecheck/internal/checker"
	"sidecheck/internal/config"
	"sidecheck/internal/coordinator"
	"sidecheck/internal/project"
	"sidecheck/internal/version"
)

// addSessionFlags registers the flags shared by check and watch. Flags
// override values from the manifest only when set explicitly.
func addSessionFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("config", "", "path to sidecheck.toml or sidecheck.yaml (default: search upwards)")
	f.Int("workers", 1, "number of worker processes")
	f.Bool("lint", false, "run the lint pass after type checking")
	f.StringSlice("report", nil, "report only files matching these globs (repeatable)")
	f.Duration("timeout", config.DefaultTimeout, "maximum wait for one check")
	f.Duration("startup-timeout", config.DefaultStartupTimeout, "maximum wait for workers to become ready")
	f.String("cache-dir", "", "persistent diagnostic cache directory (\"auto\" = user cache dir)")
	f.Bool("full-rebuild-on-init", false, "ignore the disk cache for the first check")
	f.Bool("in-process", false, "run workers as goroutines instead of processes")
}

// resolveSession finds the project root for args and builds the effective
// configuration.
func resolveSession(cmd *cobra.Command, args []string) (string, config.Config, error) {
	start := "."
	if len(args) > 0 {
		start = args[0]
	}
	abs, err := filepath.Abs(start)
	if err != nil {
		return "", config.Config{}, err
	}
	if st, err := os.Stat(abs); err != nil {
		return "", config.Config{}, &config.Error{Field: "root", Err: err}
	} else if !st.IsDir() {
		abs = filepath.Dir(abs)
	}
	root, ok, err := project.FindProjectRoot(abs)
	if err != nil {
		return "", config.Config{}, &config.Error{Field: "root", Err: err}
	}
	if !ok {
		root = abs
	}

	var cfg config.Config
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		cfg, err = config.LoadFile(path)
	} else {
		cfg, err = config.Load(root)
	}
	if err != nil {
		return "", config.Config{}, err
	}
	if err := applyFlagOverrides(cmd, &cfg); err != nil {
		return "", config.Config{}, err
	}
	switch {
	case cfg.CacheDir == "auto":
		if cfg.CacheDir, err = checker.DefaultCacheDir(); err != nil {
			return "", config.Config{}, &config.Error{Path: cfg.Path, Field: "cacheDir", Err: err}
		}
	case cfg.CacheDir != "" && !filepath.IsAbs(cfg.CacheDir):
		cfg.CacheDir = filepath.Join(root, cfg.CacheDir)
	}
	if err := cfg.Validate(); err != nil {
		return "", config.Config{}, err
	}
	return root, cfg, nil
}

func applyFlagOverrides(cmd *cobra.Command, cfg *config.Config) error {
	f := cmd.Flags()
	var err error
	if f.Changed("workers") {
		if cfg.Workers, err = f.GetInt("workers"); err != nil {
			return err
		}
	}
	if f.Changed("lint") {
		if cfg.EnableLint, err = f.GetBool("lint"); err != nil {
			return err
		}
	}
	if f.Changed("report") {
		if cfg.ReportFiles, err = f.GetStringSlice("report"); err != nil {
			return err
		}
	}
	if f.Changed("timeout") {
		if cfg.Timeout.Duration, err = f.GetDuration("timeout"); err != nil {
			return err
		}
	}
	if f.Changed("startup-timeout") {
		if cfg.StartupTimeout.Duration, err = f.GetDuration("startup-timeout"); err != nil {
			return err
		}
	}
	if f.Changed("cache-dir") {
		if cfg.CacheDir, err = f.GetString("cache-dir"); err != nil {
			return err
		}
	}
	if f.Changed("full-rebuild-on-init") {
		if cfg.FullRebuildOnInit, err = f.GetBool("full-rebuild-on-init"); err != nil {
			return err
		}
	}
	return nil
}

// startPool spawns the workers for root.
func startPool(cmd *cobra.Command, root string, cfg config.Config) (*coordinator.Coordinator, error) {
	var spawner coordinator.Spawner
	if inProc, _ := cmd.Flags().GetBool("in-process"); inProc {
		spawner = coordinator.InProcessSpawner{Version: version.Version}
	} else {
		spawner = coordinator.ProcessSpawner{Args: workerTraceArgs(cmd)}
	}
	c, err := coordinator.New(cmd.Context(), cfg, spawner, coordinator.Options{Root: root, Version: version.Version})
	if err != nil {
		return nil, fmt.Errorf("start workers: %w", err)
	}
	return c, nil
}
