package project

import (
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"
)

// ListGoFiles returns the project's checkable Go files as sorted,
// root-relative, slash-separated paths. Test files, testdata, vendor and
// directories starting with "." or "_" are skipped, as the go tool does.
// So is every subdirectory holding its own go.mod: it belongs to a
// nested module.
func ListGoFiles(root string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if p != root && (skipDir(d.Name()) || nestedModule(p)) {
				return filepath.SkipDir
			}
			return nil
		}
		name := d.Name()
		if !strings.HasSuffix(name, ".go") || strings.HasSuffix(name, "_test.go") {
			return nil
		}
		if strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_") {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list go files in %s: %w", root, err)
	}
	slices.Sort(files)
	return files, nil
}

func nestedModule(dir string) bool {
	st, err := os.Stat(filepath.Join(dir, "go.mod"))
	return err == nil && !st.IsDir()
}

func skipDir(name string) bool {
	if name == "testdata" || name == "vendor" {
		return true
	}
	return strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_")
}

// Normalize converts a user-supplied path (absolute or relative to root)
// into the canonical root-relative slash form. ok is false for paths that
// lie outside root.
func Normalize(root, p string) (string, bool) {
	if p == "" {
		return "", false
	}
	if filepath.IsAbs(p) {
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return "", false
		}
		p = rel
	}
	p = path.Clean(filepath.ToSlash(p))
	if p == "." || p == ".." || strings.HasPrefix(p, "../") {
		return "", false
	}
	return strings.TrimPrefix(p, "./"), true
}

// NormalizeAll normalises paths, dropping duplicates and paths outside root.
// The result is sorted.
func NormalizeAll(root string, paths []string) []string {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if n, ok := Normalize(root, p); ok {
			out = append(out, n)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// PackageDir returns the slash directory of a root-relative file ("." for
// files at the root).
func PackageDir(file string) string {
	return path.Dir(file)
}
