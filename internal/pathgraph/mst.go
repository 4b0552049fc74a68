package pathgraph

import (
	"slices"
	"strings"

	"github.com/hanpama/virtugraph/internal/gqlpath"
)

func sortPaths(ps []gqlpath.Path) {
	slices.SortFunc(ps, func(a, b gqlpath.Path) int { return strings.Compare(a.Key(), b.Key()) })
}

// CreateMinimumSpanningTree keeps the same vertex set and only the edges
// Kruskal's algorithm selects when edges are considered in the order given by
// cmp. Edge direction is ignored for connectivity; kept edges retain it.
// Equal edges are considered in source-then-destination key order.
func (g Graph[V, E]) CreateMinimumSpanningTree(cmp func(a, b Edge[E]) int) Graph[V, E] {
	edges := slices.Collect(g.Edges())
	slices.SortStableFunc(edges, cmp)

	uf := NewUnionFind()
	for p := range g.Vertices() {
		uf = uf.Add(p)
	}

	tree := Graph[V, E]{vertices: orEmpty(g.vertices), out: orEmpty(nil), in: orEmpty(nil)}
	out, in := tree.out.Txn(), tree.in.Txn()
	for _, e := range edges {
		var connected bool
		if connected, uf = uf.Connected(e.Src, e.Dst); connected {
			continue
		}
		uf = uf.Union(e.Src, e.Dst)
		out.Insert(pairKey(e.Src, e.Dst), e)
		in.Insert(pairKey(e.Dst, e.Src), e)
	}
	tree.out, tree.in = out.Commit(), in.Commit()
	return tree
}
