package project

import (
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"golang.org/x/mod/modfile"
)

// Layout maps between package directories and import paths of a project.
type Layout struct {
	Root       string // absolute project root
	ModulePath string // from go.mod; empty for projects without one
	GoVersion  string // "go" directive of go.mod, e.g. "1.22"
}

// LoadLayout resolves root and reads the module path from root/go.mod, if any.
func LoadLayout(root string) (Layout, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return Layout{}, fmt.Errorf("failed to resolve project root: %w", err)
	}
	st, err := os.Stat(abs)
	if err != nil {
		return Layout{}, fmt.Errorf("project root: %w", err)
	}
	if !st.IsDir() {
		return Layout{}, fmt.Errorf("project root %s is not a directory", abs)
	}
	l := Layout{Root: abs}
	gomod := filepath.Join(abs, "go.mod")
	data, err := os.ReadFile(gomod)
	switch {
	case err == nil:
		f, perr := modfile.ParseLax(gomod, data, nil)
		if perr != nil {
			return Layout{}, fmt.Errorf("parse go.mod: %w", perr)
		}
		if f.Module == nil || f.Module.Mod.Path == "" {
			return Layout{}, fmt.Errorf("%s: missing module directive", gomod)
		}
		l.ModulePath = f.Module.Mod.Path
		if f.Go != nil {
			l.GoVersion = f.Go.Version
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return Layout{}, fmt.Errorf("read go.mod: %w", err)
	}
	return l, nil
}

// ImportPath returns the import path of the package in slash dir.
// Without a module path the directory itself is used.
func (l Layout) ImportPath(dir string) string {
	if l.ModulePath == "" {
		return dir
	}
	if dir == "." || dir == "" {
		return l.ModulePath
	}
	return l.ModulePath + "/" + dir
}

// Dir maps an import path back to a project directory. ok is false for
// paths outside the module (stdlib, third-party).
func (l Layout) Dir(importPath string) (string, bool) {
	if l.ModulePath == "" {
		return "", false
	}
	if importPath == l.ModulePath {
		return ".", true
	}
	rest, ok := strings.CutPrefix(importPath, l.ModulePath+"/")
	if !ok || rest == "" {
		return "", false
	}
	return path.Clean(rest), true
}

// Abs converts a root-relative slash path into an absolute OS path.
func (l Layout) Abs(rel string) string {
	return filepath.Join(l.Root, filepath.FromSlash(rel))
}
