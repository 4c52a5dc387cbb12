package checker

import (
	"slices"

	"sidecheck/internal/project/dag"
)

// plan is the package graph of one request.
type plan struct {
	idx   dag.Index
	graph dag.Graph
	// order lists present packages with dependencies before importers.
	// Imports inside an import cycle are ignored for ordering.
	order []string
	// comp maps packages inside an import cycle to their component.
	comp map[dag.PackageID]int
}

func (g *Go) buildPlan() *plan {
	dirs := make([]string, 0, len(g.pkgs))
	for dir := range g.pkgs {
		dirs = append(dirs, dir)
	}
	slices.Sort(dirs)

	nodes := make([]dag.Node, len(dirs))
	for i, dir := range dirs {
		nodes[i] = dag.Node{Path: dir, Imports: g.pkgs[dir].Imports}
	}
	idx := dag.BuildIndex(nodes)
	graph := dag.BuildGraph(idx, nodes)
	pl := &plan{
		idx:   idx,
		graph: graph,
		comp:  dag.ComponentOf(graph.Cycles()),
	}

	acyclic := make([]dag.Node, len(nodes))
	for i, n := range nodes {
		acyclic[i] = dag.Node{Path: n.Path}
		for _, dep := range n.Imports {
			if !pl.sameCycle(n.Path, dep) {
				acyclic[i].Imports = append(acyclic[i].Imports, dep)
			}
		}
	}
	topo := dag.ToposortKahn(dag.BuildGraph(idx, acyclic))
	order := idx.Paths(topo.Order)
	slices.Reverse(order)
	pl.order = order
	return pl
}

// sameCycle reports whether both dirs belong to one import cycle.
func (pl *plan) sameCycle(a, b string) bool {
	ida, ok := pl.idx.PathToID[a]
	if !ok {
		return false
	}
	idb, ok := pl.idx.PathToID[b]
	if !ok {
		return false
	}
	ca, ok := pl.comp[ida]
	if !ok {
		return false
	}
	cb, ok := pl.comp[idb]
	return ok && ca == cb
}

// acyclicImports returns the imports of dir that are not cycle edges.
func (pl *plan) acyclicImports(dir string, imports []string) []string {
	out := make([]string, 0, len(imports))
	for _, dep := range imports {
		if !pl.sameCycle(dir, dep) {
			out = append(out, dep)
		}
	}
	return out
}

// cyclePath returns dirs from -> to -> ... -> from using the shortest way
// back inside the cycle. Ties resolve to the smallest package ID, so the
// path is stable.
func (pl *plan) cyclePath(from, to string) []string {
	start, goal := pl.idx.PathToID[to], pl.idx.PathToID[from]
	prev := map[dag.PackageID]dag.PackageID{start: start}
	queue := []dag.PackageID{start}
	for len(queue) > 0 && !hasKey(prev, goal) {
		cur := queue[0]
		queue = queue[1:]
		for _, next := range pl.graph.Edges[int(cur)] {
			if hasKey(prev, next) || !pl.sameCycle(pl.idx.IDToPath[int(cur)], pl.idx.IDToPath[int(next)]) {
				continue
			}
			prev[next] = cur
			queue = append(queue, next)
		}
	}
	if !hasKey(prev, goal) {
		return []string{from, to, from}
	}
	var back []string
	for id := goal; id != start; id = prev[id] {
		back = append(back, pl.idx.IDToPath[int(id)])
	}
	back = append(back, to)
	slices.Reverse(back)
	return append([]string{from}, back...)
}

// invalidate drops the results of every package that depends, directly or
// transitively, on a changed package or on a package that appeared or
// disappeared.
func (g *Go) invalidate(pl *plan, changed, presence []string) int {
	var seeds []dag.PackageID
	for _, dir := range changed {
		if id, ok := pl.idx.PathToID[dir]; ok {
			seeds = append(seeds, id)
		}
	}
	if len(presence) > 0 {
		gone := make(map[string]struct{}, len(presence))
		for _, dir := range presence {
			gone[dir] = struct{}{}
		}
		for dir, st := range g.pkgs {
			for _, dep := range st.Imports {
				if _, ok := gone[dep]; ok {
					seeds = append(seeds, pl.idx.PathToID[dir])
					break
				}
			}
		}
	}
	closure := pl.graph.Dependents(seeds)
	for _, dir := range pl.idx.Paths(closure) {
		if st, ok := g.pkgs[dir]; ok {
			st.Types = nil
			st.Diagnostics = nil
			st.valid = false
		}
	}
	return len(closure)
}

func hasKey[K comparable, V any](m map[K]V, k K) bool {
	_, ok := m[k]
	return ok
}
