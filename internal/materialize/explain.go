package materialize

import (
	"cmp"
	"fmt"

	"github.com/hanpama/virtugraph/internal/gqlpath"
	"github.com/hanpama/virtugraph/internal/pathgraph"
)

// edgeCost orders request edges for the spanning plan: selections first,
// then inputs feeding arguments, then dependencies.
func edgeCost(a, b pathgraph.Edge[EdgeKind]) int {
	if c := cmp.Compare(a.Label, b.Label); c != 0 {
		return c
	}
	if c := gqlpath.Compare(a.Src, b.Src); c != 0 {
		return c
	}
	return gqlpath.Compare(a.Dst, b.Dst)
}

// SpanningPlan reduces the request graph to a spanning forest, dropping
// dependency edges between vertices already connected by the selection
// tree or by an earlier dependency.
func SpanningPlan(g RequestGraph) RequestGraph {
	return g.CreateMinimumSpanningTree(edgeCost)
}

// Explain renders the spanning plan of gc, one edge per line.
func Explain(gc GraphContext) []string {
	plan := SpanningPlan(gc.RequestGraph())
	var out []string
	for e := range plan.Edges() {
		line := fmt.Sprintf("%s -[%s]-> %s", e.Src.Key(), e.Label, e.Dst.Key())
		if v, ok := plan.Vertex(e.Src); ok && v.Spec.Hidden {
			line += " (hidden)"
		}
		out = append(out, line)
	}
	return out
}
