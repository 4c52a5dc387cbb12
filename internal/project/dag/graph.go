package dag

import (
	"slices"
)

type Graph struct {
	Edges   [][]PackageID // Edges[from] = imported packages
	Reverse [][]PackageID // Reverse[to] = importers
	Indeg   []int         // incoming edges for Kahn, counted only between present packages
	Present []bool        // package exists in the project, not only imported
}

// BuildGraph wires import edges between indexed packages. Self imports and
// duplicate edges are dropped; edges to absent packages are kept in Edges
// but do not count towards Indeg.
func BuildGraph(idx Index, nodes []Node) Graph {
	nodeCount := len(idx.IDToPath)
	g := Graph{
		Edges:   make([][]PackageID, nodeCount),
		Reverse: make([][]PackageID, nodeCount),
		Indeg:   make([]int, nodeCount),
		Present: make([]bool, nodeCount),
	}
	for _, n := range nodes {
		if id, ok := idx.PathToID[n.Path]; ok {
			g.Present[int(id)] = true
		}
	}

	for _, n := range nodes {
		from, ok := idx.PathToID[n.Path]
		if !ok || len(n.Imports) == 0 {
			continue
		}
		if len(g.Edges[int(from)]) > 0 {
			// the same package listed twice; the first node wins
			continue
		}
		seen := make(map[PackageID]struct{}, len(n.Imports))
		for _, dep := range n.Imports {
			to, ok := idx.PathToID[dep]
			if !ok || to == from {
				continue
			}
			if _, dup := seen[to]; dup {
				continue
			}
			seen[to] = struct{}{}
			g.Edges[int(from)] = append(g.Edges[int(from)], to)
			if g.Present[int(to)] {
				g.Indeg[int(to)]++
				g.Reverse[int(to)] = append(g.Reverse[int(to)], from)
			}
		}
		slices.Sort(g.Edges[int(from)])
	}
	for i := range g.Reverse {
		slices.Sort(g.Reverse[i])
	}
	return g
}

// Dependents returns seeds plus every package that transitively imports one
// of them, sorted by ID.
func (g Graph) Dependents(seeds []PackageID) []PackageID {
	visited := make([]bool, len(g.Reverse))
	stack := make([]PackageID, 0, len(seeds))
	for _, s := range seeds {
		if int(s) < len(visited) && !visited[int(s)] {
			visited[int(s)] = true
			stack = append(stack, s)
		}
	}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, importer := range g.Reverse[int(id)] {
			if !visited[int(importer)] {
				visited[int(importer)] = true
				stack = append(stack, importer)
			}
		}
	}
	out := make([]PackageID, 0, len(seeds))
	for i, v := range visited {
		if v {
			out = append(out, toID(i))
		}
	}
	return out
}
