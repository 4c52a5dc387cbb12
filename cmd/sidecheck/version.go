package main

import (
	"encoding/json"
	"fmt"
	"io"
	"runtime"
	"runtime/debug"
	"strings"

	"github.com/spf13/cobra"

	"sidecheck/internal/checker"
	"sidecheck/internal/version"
)

// versionPayload is also the JSON shape of `sidecheck version --format json`.
type versionPayload struct {
	Tool      string   `json:"tool"`
	Version   string   `json:"version"`
	GoVersion string   `json:"go_version"`
	Commit    string   `json:"git_commit,omitempty"`
	Message   string   `json:"git_message,omitempty"`
	BuildDate string   `json:"build_date,omitempty"`
	Analyzers []string `json:"analyzers,omitempty"`
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show sidecheck build information",
	Long: `Show the sidecheck version. The Go version is the toolchain sidecheck was
built with; its go/types decides which language features a project may use.`,
	Args: cobra.NoArgs,
	RunE: runVersion,
}

func init() {
	f := versionCmd.Flags()
	f.Bool("full", false, "include commit, build date and the lint analyzers")
	f.String("format", "pretty", "output format (pretty|json)")
}

func runVersion(cmd *cobra.Command, _ []string) error {
	full, err := cmd.Flags().GetBool("full")
	if err != nil {
		return fmt.Errorf("failed to get full flag: %w", err)
	}
	format, err := cmd.Flags().GetString("format")
	if err != nil {
		return fmt.Errorf("failed to get format flag: %w", err)
	}
	p := collectVersion(full)
	switch strings.ToLower(format) {
	case "json":
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(p)
	case "pretty":
		printVersion(cmd.OutOrStdout(), p, full)
		return nil
	}
	return fmt.Errorf("unsupported format %q (must be pretty or json)", format)
}

// collectVersion prefers the ldflags values and falls back to the VCS
// stamp the go command embeds.
func collectVersion(full bool) versionPayload {
	p := versionPayload{
		Tool:      "sidecheck",
		Version:   strings.TrimSpace(version.Version),
		GoVersion: runtime.Version(),
	}
	if p.Version == "" {
		p.Version = "dev"
	}
	if !full {
		return p
	}
	p.Commit = strings.TrimSpace(version.GitCommit)
	p.Message = strings.TrimSpace(version.GitMessage)
	p.BuildDate = strings.TrimSpace(version.BuildDate)
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, s := range info.Settings {
			switch {
			case s.Key == "vcs.revision" && p.Commit == "":
				p.Commit = s.Value
			case s.Key == "vcs.time" && p.BuildDate == "":
				p.BuildDate = s.Value
			}
		}
	}
	for _, a := range checker.Analyzers {
		p.Analyzers = append(p.Analyzers, a.Name)
	}
	return p
}

func printVersion(out io.Writer, p versionPayload, full bool) {
	fmt.Fprintf(out, "sidecheck %s (%s)\n", version.Colored(), p.GoVersion)
	if !full {
		return
	}
	fmt.Fprintf(out, "commit:    %s\n", orUnknown(p.Commit))
	if p.Message != "" {
		fmt.Fprintf(out, "message:   %s\n", p.Message)
	}
	fmt.Fprintf(out, "built:     %s\n", orUnknown(p.BuildDate))
	fmt.Fprintf(out, "analyzers: %s\n", strings.Join(p.Analyzers, ", "))
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
