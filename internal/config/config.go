// Package config defines the option surface consumed by the check engine
// and loads it from sidecheck.toml (or sidecheck.yaml).
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"sidecheck/internal/diag"
)

const (
	DefaultTimeout        = 2 * time.Minute
	DefaultStartupTimeout = 30 * time.Second
	// MaxWorkers bounds the static pool size.
	MaxWorkers = 64
)

// ErrInvalid is matched by every configuration error.
var ErrInvalid = errors.New("invalid configuration")

// Error is a ConfigurationError: fatal at startup, reported before any
// worker is spawned.
type Error struct {
	Path  string // config file, empty for flag values
	Field string
	Err   error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString("configuration error")
	if e.Path != "" {
		b.WriteString(" in ")
		b.WriteString(e.Path)
	}
	if e.Field != "" {
		b.WriteString(": ")
		b.WriteString(e.Field)
	}
	b.WriteString(": ")
	b.WriteString(e.Err.Error())
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool { return target == ErrInvalid }

// Duration decodes "90s"-style strings from TOML and YAML.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	return d.UnmarshalText([]byte(node.Value))
}

type Config struct {
	Workers           int      `toml:"workers" yaml:"workers"`
	FullRebuildOnInit bool     `toml:"fullRebuildOnInit" yaml:"fullRebuildOnInit"`
	ReportFiles       []string `toml:"reportFiles" yaml:"reportFiles"`
	EnableLint        bool     `toml:"enableLint" yaml:"enableLint"`
	Timeout           Duration `toml:"timeout" yaml:"timeout"`
	StartupTimeout    Duration `toml:"startupTimeout" yaml:"startupTimeout"`
	CacheDir          string   `toml:"cacheDir" yaml:"cacheDir"`

	// Path of the file the values came from; empty for defaults.
	Path string `toml:"-" yaml:"-"`
}

// Default returns the configuration used when no manifest exists.
func Default() Config {
	return Config{
		Workers:        1,
		Timeout:        Duration{DefaultTimeout},
		StartupTimeout: Duration{DefaultStartupTimeout},
	}
}

// Validate checks every option and returns a *Error on the first problem.
func (c Config) Validate() error {
	if c.Workers < 1 || c.Workers > MaxWorkers {
		return &Error{Path: c.Path, Field: "workers", Err: fmt.Errorf("must be between 1 and %d, got %d", MaxWorkers, c.Workers)}
	}
	if c.Timeout.Duration <= 0 {
		return &Error{Path: c.Path, Field: "timeout", Err: fmt.Errorf("must be positive, got %s", c.Timeout.Duration)}
	}
	if c.StartupTimeout.Duration <= 0 {
		return &Error{Path: c.Path, Field: "startupTimeout", Err: fmt.Errorf("must be positive, got %s", c.StartupTimeout.Duration)}
	}
	if _, err := diag.NewFileFilter(c.ReportFiles); err != nil {
		return &Error{Path: c.Path, Field: "reportFiles", Err: err}
	}
	return nil
}

// ReportFilter builds the allow-list; call Validate first.
func (c Config) ReportFilter() *diag.FileFilter {
	f, err := diag.NewFileFilter(c.ReportFiles)
	if err != nil {
		return nil
	}
	return f
}
