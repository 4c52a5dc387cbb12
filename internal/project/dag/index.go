package dag

import (
	"fmt"
	"sort"

	"fortio.org/safecast"
)

type PackageID uint32

// Node is one project package and the project packages it imports.
// Imports of packages outside the project must be left out by the caller.
type Node struct {
	Path    string
	Imports []string
}

type Index struct {
	PathToID map[string]PackageID
	IDToPath []string
}

// BuildIndex collects unique package paths (including imported ones),
// sorts them and assigns IDs in that order.
func BuildIndex(nodes []Node) Index {
	uniq := make(map[string]struct{}, len(nodes))
	for _, n := range nodes {
		if n.Path != "" {
			uniq[n.Path] = struct{}{}
		}
		for _, dep := range n.Imports {
			if dep == "" {
				continue
			}
			uniq[dep] = struct{}{}
		}
	}

	paths := make([]string, 0, len(uniq))
	for p := range uniq {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	pathToID := make(map[string]PackageID, len(paths))
	for i, p := range paths {
		pathToID[p] = toID(i)
	}

	return Index{
		PathToID: pathToID,
		IDToPath: paths,
	}
}

func toID(i int) PackageID {
	id, err := safecast.Conv[PackageID](i)
	if err != nil {
		panic(fmt.Errorf("package id overflow: %w", err))
	}
	return id
}

// Paths maps IDs back to package paths.
func (idx Index) Paths(ids []PackageID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = idx.IDToPath[int(id)]
	}
	return out
}
