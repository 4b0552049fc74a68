// Package pathgraph is a persistent directed graph keyed by operation paths.
//
// Every mutating method returns a new Graph; the receiver is never modified
// and untouched structure is shared through immutable radix trees. Graph
// values can therefore be handed between goroutines without locking.
package pathgraph

import (
	"errors"
	"fmt"
	"iter"

	iradix "github.com/hashicorp/go-immutable-radix"

	"github.com/hanpama/virtugraph/internal/gqlpath"
)

var (
	// ErrMissingVertex is returned by PutEdge when an endpoint is absent.
	ErrMissingVertex = errors.New("pathgraph: missing vertex")
	// ErrCycle is returned by TopologicalOrder for cyclic graphs.
	ErrCycle = errors.New("pathgraph: cycle detected")
)

// Edge is a labelled, directed edge.
type Edge[E any] struct {
	Src   gqlpath.Path
	Dst   gqlpath.Path
	Label E
}

// Pair identifies an edge by its endpoints.
type Pair struct {
	Src gqlpath.Path
	Dst gqlpath.Path
}

type vertexEntry[V any] struct {
	path  gqlpath.Path
	value V
}

// Graph is a persistent graph with vertex values V and edge labels E.
// The zero value is an empty graph.
type Graph[V, E any] struct {
	vertices *iradix.Tree // path key -> vertexEntry[V]
	out      *iradix.Tree // src \x00 dst -> Edge[E]
	in       *iradix.Tree // dst \x00 src -> Edge[E]
}

// New returns an empty graph.
func New[V, E any]() Graph[V, E] {
	return Graph[V, E]{vertices: iradix.New(), out: iradix.New(), in: iradix.New()}
}

func orEmpty(t *iradix.Tree) *iradix.Tree {
	if t == nil {
		return iradix.New()
	}
	return t
}

func pairKey(a, b gqlpath.Path) []byte {
	return []byte(a.Key() + "\x00" + b.Key())
}

func adjacencyPrefix(p gqlpath.Path) []byte {
	return []byte(p.Key() + "\x00")
}

// PutVertex inserts or replaces the vertex at p.
func (g Graph[V, E]) PutVertex(p gqlpath.Path, v V) Graph[V, E] {
	vs, _, _ := orEmpty(g.vertices).Insert([]byte(p.Key()), vertexEntry[V]{path: p, value: v})
	return Graph[V, E]{vertices: vs, out: orEmpty(g.out), in: orEmpty(g.in)}
}

// Vertex returns the value stored at p.
func (g Graph[V, E]) Vertex(p gqlpath.Path) (V, bool) {
	if g.vertices != nil {
		if raw, ok := g.vertices.Get([]byte(p.Key())); ok {
			return raw.(vertexEntry[V]).value, true
		}
	}
	var zero V
	return zero, false
}

func (g Graph[V, E]) HasVertex(p gqlpath.Path) bool {
	_, ok := g.Vertex(p)
	return ok
}

// RemoveVertex deletes p together with its incident edges.
func (g Graph[V, E]) RemoveVertex(p gqlpath.Path) Graph[V, E] {
	if !g.HasVertex(p) {
		return g
	}
	vs, _, _ := g.vertices.Delete([]byte(p.Key()))
	out, in := g.out.Txn(), g.in.Txn()
	for _, e := range g.SuccessorEdges(p) {
		out.Delete(pairKey(e.Src, e.Dst))
		in.Delete(pairKey(e.Dst, e.Src))
	}
	for _, e := range g.PredecessorEdges(p) {
		out.Delete(pairKey(e.Src, e.Dst))
		in.Delete(pairKey(e.Dst, e.Src))
	}
	return Graph[V, E]{vertices: vs, out: out.Commit(), in: in.Commit()}
}

// PutEdge inserts or relabels the edge src->dst. Both endpoints must exist;
// otherwise ErrMissingVertex is returned and g is left as it was.
func (g Graph[V, E]) PutEdge(src, dst gqlpath.Path, label E) (Graph[V, E], error) {
	for _, p := range []gqlpath.Path{src, dst} {
		if !g.HasVertex(p) {
			return g, fmt.Errorf("%w: %s", ErrMissingVertex, p)
		}
	}
	e := Edge[E]{Src: src, Dst: dst, Label: label}
	out, _, _ := g.out.Insert(pairKey(src, dst), e)
	in, _, _ := g.in.Insert(pairKey(dst, src), e)
	return Graph[V, E]{vertices: g.vertices, out: out, in: in}, nil
}

// Edge returns the edge src->dst.
func (g Graph[V, E]) Edge(src, dst gqlpath.Path) (Edge[E], bool) {
	if g.out != nil {
		if raw, ok := g.out.Get(pairKey(src, dst)); ok {
			return raw.(Edge[E]), true
		}
	}
	return Edge[E]{}, false
}

// RemoveEdges deletes the given edges; missing edges are ignored.
func (g Graph[V, E]) RemoveEdges(pairs ...Pair) Graph[V, E] {
	if g.out == nil || len(pairs) == 0 {
		return g
	}
	out, in := g.out.Txn(), g.in.Txn()
	for _, pr := range pairs {
		out.Delete(pairKey(pr.Src, pr.Dst))
		in.Delete(pairKey(pr.Dst, pr.Src))
	}
	return Graph[V, E]{vertices: g.vertices, out: out.Commit(), in: in.Commit()}
}

func collectEdges[E any](t *iradix.Tree, prefix []byte) []Edge[E] {
	if t == nil {
		return nil
	}
	var out []Edge[E]
	t.Root().WalkPrefix(prefix, func(_ []byte, v interface{}) bool {
		out = append(out, v.(Edge[E]))
		return false
	})
	return out
}

// SuccessorEdges lists the outgoing edges of p in path-key order.
func (g Graph[V, E]) SuccessorEdges(p gqlpath.Path) []Edge[E] {
	return collectEdges[E](g.out, adjacencyPrefix(p))
}

// PredecessorEdges lists the incoming edges of p in path-key order.
func (g Graph[V, E]) PredecessorEdges(p gqlpath.Path) []Edge[E] {
	return collectEdges[E](g.in, adjacencyPrefix(p))
}

func (g Graph[V, E]) Successors(p gqlpath.Path) []gqlpath.Path {
	edges := g.SuccessorEdges(p)
	out := make([]gqlpath.Path, len(edges))
	for i, e := range edges {
		out[i] = e.Dst
	}
	return out
}

func (g Graph[V, E]) Predecessors(p gqlpath.Path) []gqlpath.Path {
	edges := g.PredecessorEdges(p)
	out := make([]gqlpath.Path, len(edges))
	for i, e := range edges {
		out[i] = e.Src
	}
	return out
}

// Vertices iterates vertices in path-key order.
func (g Graph[V, E]) Vertices() iter.Seq2[gqlpath.Path, V] {
	return func(yield func(gqlpath.Path, V) bool) {
		if g.vertices == nil {
			return
		}
		g.vertices.Root().Walk(func(_ []byte, raw interface{}) bool {
			e := raw.(vertexEntry[V])
			return !yield(e.path, e.value)
		})
	}
}

// Edges iterates edges ordered by source then destination key.
func (g Graph[V, E]) Edges() iter.Seq[Edge[E]] {
	return func(yield func(Edge[E]) bool) {
		if g.out == nil {
			return
		}
		g.out.Root().Walk(func(_ []byte, raw interface{}) bool {
			return !yield(raw.(Edge[E]))
		})
	}
}

func (g Graph[V, E]) VertexCount() int {
	if g.vertices == nil {
		return 0
	}
	return g.vertices.Len()
}

func (g Graph[V, E]) EdgeCount() int {
	if g.out == nil {
		return 0
	}
	return g.out.Len()
}

// DescendantsOf lists the vertices strictly below p in the path hierarchy.
func (g Graph[V, E]) DescendantsOf(p gqlpath.Path) []gqlpath.Path {
	if g.vertices == nil {
		return nil
	}
	var out []gqlpath.Path
	g.vertices.Root().WalkPrefix([]byte(p.Key()+"/"), func(_ []byte, raw interface{}) bool {
		out = append(out, raw.(vertexEntry[V]).path)
		return false
	})
	return out
}

// DepthFirstSearch yields vertices reachable from start in pre-order,
// visiting successors in path-key order. The sequence is lazy and every
// iteration restarts the traversal.
func (g Graph[V, E]) DepthFirstSearch(start gqlpath.Path) iter.Seq[gqlpath.Path] {
	return func(yield func(gqlpath.Path) bool) {
		if !g.HasVertex(start) {
			return
		}
		visited := map[gqlpath.Path]struct{}{}
		stack := []gqlpath.Path{start}
		for len(stack) > 0 {
			p := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if _, ok := visited[p]; ok {
				continue
			}
			visited[p] = struct{}{}
			if !yield(p) {
				return
			}
			succ := g.Successors(p)
			for i := len(succ) - 1; i >= 0; i-- {
				if _, ok := visited[succ[i]]; !ok {
					stack = append(stack, succ[i])
				}
			}
		}
	}
}

// Layers groups vertices into dependency levels: every edge points from an
// earlier layer to a later one. Within a layer vertices are in path-key order.
func (g Graph[V, E]) Layers() ([][]gqlpath.Path, error) {
	indeg := make(map[gqlpath.Path]int, g.VertexCount())
	var current []gqlpath.Path
	for p := range g.Vertices() {
		n := len(g.PredecessorEdges(p))
		indeg[p] = n
		if n == 0 {
			current = append(current, p)
		}
	}
	var layers [][]gqlpath.Path
	seen := 0
	for len(current) > 0 {
		layers = append(layers, current)
		seen += len(current)
		var next []gqlpath.Path
		for _, p := range current {
			for _, s := range g.Successors(p) {
				indeg[s]--
				if indeg[s] == 0 {
					next = append(next, s)
				}
			}
		}
		sortPaths(next)
		current = next
	}
	if seen != len(indeg) {
		return nil, ErrCycle
	}
	return layers, nil
}

// TopologicalOrder flattens Layers.
func (g Graph[V, E]) TopologicalOrder() ([]gqlpath.Path, error) {
	layers, err := g.Layers()
	if err != nil {
		return nil, err
	}
	var out []gqlpath.Path
	for _, l := range layers {
		out = append(out, l...)
	}
	return out, nil
}
