package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"sidecheck/internal/project"
)

// Load finds the manifest by walking up from startDir and decodes it on top
// of Default(). A missing manifest is not an error: defaults are returned.
func Load(startDir string) (Config, error) {
	manifestPath, ok, err := project.FindManifest(startDir)
	if err != nil {
		return Config{}, &Error{Err: err}
	}
	if !ok {
		return Default(), nil
	}
	return LoadFile(manifestPath)
}

// LoadFile decodes a single manifest. The format follows the extension.
func LoadFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, &Error{Path: path, Err: err}
	}
	cfg := Default()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		err = decodeTOML(data, &cfg)
	case ".yaml", ".yml":
		err = decodeYAML(data, &cfg)
	default:
		err = fmt.Errorf("unsupported config format %q", filepath.Ext(path))
	}
	if err != nil {
		return Config{}, &Error{Path: path, Err: err}
	}
	cfg.Path = path
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func decodeTOML(data []byte, cfg *Config) error {
	meta, err := toml.Decode(string(data), cfg)
	if err != nil {
		return fmt.Errorf("failed to parse TOML: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		sort.Strings(keys)
		return fmt.Errorf("unknown keys: %s", strings.Join(keys, ", "))
	}
	return nil
}

func decodeYAML(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("failed to parse YAML: %w", err)
	}
	return nil
}

// Template is written by `sidecheck init`.
const Template = `# sidecheck configuration
# number of worker processes (>= 1)
workers = 1
# ignore the on-disk cache for the first check
fullRebuildOnInit = false
# report only diagnostics of files matching these globs (empty = all)
reportFiles = []
# run the lint pass after type checking
enableLint = false
# maximum wait for one check request
timeout = "2m"
# maximum wait for workers to become ready
startupTimeout = "30s"
# directory of the persistent diagnostic cache (empty = disabled)
cacheDir = ""
`
