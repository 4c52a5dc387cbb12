package dag

import "slices"

// Cycles returns the strongly connected components of the present packages
// that contain an import cycle. Each component is sorted; components are
// ordered by their smallest ID. The result does not depend on traversal
// order, so every caller sees the same cycles for the same graph.
func (g Graph) Cycles() [][]PackageID {
	n := len(g.Edges)
	t := tarjan{
		g:       g,
		index:   make([]int, n),
		low:     make([]int, n),
		onStack: make([]bool, n),
	}
	for i := range t.index {
		t.index[i] = -1
	}
	for i := range n {
		if g.Present[i] && t.index[i] < 0 {
			t.visit(i)
		}
	}
	slices.SortFunc(t.out, func(a, b []PackageID) int { return int(a[0]) - int(b[0]) })
	return t.out
}

// ComponentOf maps every package in a cycle to its component number in
// cycles.
func ComponentOf(cycles [][]PackageID) map[PackageID]int {
	out := make(map[PackageID]int)
	for i, c := range cycles {
		for _, id := range c {
			out[id] = i
		}
	}
	return out
}

type tarjan struct {
	g       Graph
	next    int
	index   []int
	low     []int
	onStack []bool
	stack   []int
	out     [][]PackageID
}

func (t *tarjan) visit(v int) {
	t.index[v] = t.next
	t.low[v] = t.next
	t.next++
	t.stack = append(t.stack, v)
	t.onStack[v] = true

	for _, to := range t.g.Edges[v] {
		w := int(to)
		if !t.g.Present[w] {
			continue
		}
		if t.index[w] < 0 {
			t.visit(w)
			t.low[v] = min(t.low[v], t.low[w])
		} else if t.onStack[w] {
			t.low[v] = min(t.low[v], t.index[w])
		}
	}

	if t.low[v] != t.index[v] {
		return
	}
	var comp []PackageID
	for {
		w := t.stack[len(t.stack)-1]
		t.stack = t.stack[:len(t.stack)-1]
		t.onStack[w] = false
		comp = append(comp, toID(w))
		if w == v {
			break
		}
	}
	// self imports are dropped by BuildGraph, so a singleton is never a cycle
	if len(comp) > 1 {
		slices.Sort(comp)
		t.out = append(t.out, comp)
	}
}
