package project

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ManifestNames lists the accepted configuration file names, in lookup order.
var ManifestNames = []string{"sidecheck.toml", "sidecheck.yaml", "sidecheck.yml"}

// FindManifest walks up from startDir to locate a sidecheck manifest.
func FindManifest(startDir string) (path string, ok bool, err error) {
	return walkUp(startDir, ManifestNames...)
}

// FindGoMod walks up from startDir to locate go.mod.
func FindGoMod(startDir string) (path string, ok bool, err error) {
	return walkUp(startDir, "go.mod")
}

// FindProjectRoot returns the directory containing the manifest or, failing
// that, the enclosing go.mod. ok is false when neither exists.
func FindProjectRoot(startDir string) (root string, ok bool, err error) {
	manifestPath, ok, err := FindManifest(startDir)
	if err != nil {
		return "", false, err
	}
	if ok {
		return filepath.Dir(manifestPath), true, nil
	}
	modPath, ok, err := FindGoMod(startDir)
	if err != nil || !ok {
		return "", ok, err
	}
	return filepath.Dir(modPath), true, nil
}

func walkUp(startDir string, names ...string) (string, bool, error) {
	if startDir == "" {
		startDir = "."
	}
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", false, fmt.Errorf("failed to resolve start directory: %w", err)
	}
	for {
		for _, name := range names {
			candidate := filepath.Join(dir, name)
			if _, err := os.Stat(candidate); err == nil {
				return candidate, true, nil
			} else if !errors.Is(err, os.ErrNotExist) {
				return "", false, fmt.Errorf("failed to stat %q: %w", candidate, err)
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", false, nil
}
