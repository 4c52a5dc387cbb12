package diagfmt

import (
	"path"
	"path/filepath"
)

// displayPath renders a root-relative slash path. File-less diagnostics
// keep the empty path.
func displayPath(file, root string, mode PathMode) string {
	if file == "" {
		return ""
	}
	switch mode {
	case PathModeAbsolute:
		if root == "" {
			return filepath.FromSlash(file)
		}
		return filepath.Join(root, filepath.FromSlash(file))
	case PathModeBasename:
		return path.Base(file)
	case PathModeRelative:
		return filepath.FromSlash(file)
	default:
		return file
	}
}
