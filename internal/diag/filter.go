package diag

import (
	"fmt"
	"path"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// FileFilter is the reportFiles allow-list. A nil or empty filter allows
// every file. Diagnostics without a file always pass: engine failures must
// never be filtered away.
type FileFilter struct {
	patterns []string
}

// NewFileFilter validates the glob patterns (doublestar syntax, "**" spans
// directories) and returns a filter. Patterns are matched against
// project-relative slash paths.
func NewFileFilter(patterns []string) (*FileFilter, error) {
	cleaned := make([]string, 0, len(patterns))
	for _, p := range patterns {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		p = strings.TrimPrefix(path.Clean(strings.ReplaceAll(p, "\\", "/")), "./")
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("invalid reportFiles pattern %q", p)
		}
		cleaned = append(cleaned, p)
	}
	return &FileFilter{patterns: cleaned}, nil
}

// Patterns returns the normalised patterns.
func (f *FileFilter) Patterns() []string {
	if f == nil {
		return nil
	}
	return f.patterns
}

// Empty reports whether the filter lets everything through.
func (f *FileFilter) Empty() bool {
	return f == nil || len(f.patterns) == 0
}

// Allows reports whether diagnostics for file should be reported.
func (f *FileFilter) Allows(file string) bool {
	if f.Empty() || file == "" {
		return true
	}
	for _, p := range f.patterns {
		if ok, err := doublestar.Match(p, file); err == nil && ok {
			return true
		}
	}
	return false
}
