package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func write(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func TestLoadWithoutManifestUsesDefaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	require.NoError(t, cfg.Validate())
}

func TestLoadTOML(t *testing.T) {
	dir := t.TempDir()
	write(t, dir, "sidecheck.toml", `
workers = 4
enableLint = true
reportFiles = ["**/index.go"]
timeout = "45s"
`)
	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.Workers)
	assert.True(t, cfg.EnableLint)
	assert.Equal(t, []string{"**/index.go"}, cfg.ReportFiles)
	assert.Equal(t, 45*time.Second, cfg.Timeout.Duration)
	assert.Equal(t, DefaultStartupTimeout, cfg.StartupTimeout.Duration)
	assert.False(t, cfg.ReportFilter().Allows("main.go"))
}

func TestLoadYAML(t *testing.T) {
	dir := t.TempDir()
	write(t, dir, "sidecheck.yaml", "workers: 2\nfullRebuildOnInit: true\ntimeout: 10s\n")
	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Workers)
	assert.True(t, cfg.FullRebuildOnInit)
	assert.Equal(t, 10*time.Second, cfg.Timeout.Duration)
}

func TestTemplateDecodes(t *testing.T) {
	dir := t.TempDir()
	write(t, dir, "sidecheck.toml", Template)
	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 1, cfg.Workers)
}

func TestConfigurationErrors(t *testing.T) {
	cases := map[string]string{
		"zero workers":  "workers = 0\n",
		"unknown key":   "worker = 2\n",
		"bad glob":      "reportFiles = [\"src/[a-\"]\n",
		"bad duration":  "timeout = \"soon\"\n",
		"broken syntax": "workers = \n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			write(t, dir, "sidecheck.toml", body)
			_, err := Load(dir)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalid), "error should match ErrInvalid: %v", err)
			var cfgErr *Error
			require.True(t, errors.As(err, &cfgErr))
			assert.NotEmpty(t, cfgErr.Path)
		})
	}
}
