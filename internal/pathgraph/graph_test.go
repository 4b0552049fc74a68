package pathgraph

import (
	"slices"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/hanpama/virtugraph/internal/gqlpath"
)

var (
	shows  = gqlpath.Root().Field("shows")
	title  = shows.Field("title")
	first  = shows.Argument("first")
	rating = shows.Field("rating")
	cast   = shows.Field("cast")
)

func strs(ps []gqlpath.Path) []string {
	out := make([]string, len(ps))
	for i, p := range ps {
		out[i] = p.String()
	}
	return out
}

func buildGraph(t *testing.T, vertices []gqlpath.Path, edges [][2]gqlpath.Path) Graph[string, int] {
	t.Helper()
	g := New[string, int]()
	for _, v := range vertices {
		g = g.PutVertex(v, v.String())
	}
	var err error
	for i, e := range edges {
		g, err = g.PutEdge(e[0], e[1], i)
		require.NoError(t, err)
	}
	return g
}

func TestPutEdge_MissingEndpointLeavesGraphUntouched(t *testing.T) {
	g := buildGraph(t, []gqlpath.Path{shows, title}, [][2]gqlpath.Path{{shows, title}})

	got, err := g.PutEdge(shows, rating, 9)
	require.ErrorIs(t, err, ErrMissingVertex)
	require.Equal(t, 2, got.VertexCount())
	require.Equal(t, 1, got.EdgeCount())
	require.Equal(t, 1, g.EdgeCount())

	_, err = g.PutEdge(rating, shows, 9)
	require.ErrorIs(t, err, ErrMissingVertex)
}

func TestPutEdge_AddsExactlyOneEdge(t *testing.T) {
	g := buildGraph(t, []gqlpath.Path{shows, title}, [][2]gqlpath.Path{{shows, title}})
	withVertex := g.PutVertex(rating, "rating")
	withEdge, err := withVertex.PutEdge(shows, rating, 1)
	require.NoError(t, err)

	require.Equal(t, withVertex.VertexCount(), withEdge.VertexCount())
	require.Equal(t, withVertex.EdgeCount()+1, withEdge.EdgeCount())

	// earlier snapshots are unchanged
	require.Equal(t, 1, withVertex.EdgeCount())
	require.False(t, g.HasVertex(rating))
}

func TestZeroGraphIsUsable(t *testing.T) {
	var g Graph[int, int]
	require.Zero(t, g.VertexCount())
	require.Empty(t, g.Successors(shows))
	g = g.PutVertex(shows, 1)
	v, ok := g.Vertex(shows)
	require.True(t, ok)
	require.Equal(t, 1, v)
}

func TestSuccessorsAndPredecessors(t *testing.T) {
	g := buildGraph(t,
		[]gqlpath.Path{shows, title, first, rating},
		[][2]gqlpath.Path{{shows, title}, {shows, rating}, {first, shows}},
	)
	require.Equal(t, []string{"gqlo:/shows/rating", "gqlo:/shows/title"}, strs(g.Successors(shows)))
	require.Equal(t, []string{"gqlo:/shows/?first"}, strs(g.Predecessors(shows)))
	require.Empty(t, g.Predecessors(first))

	e, ok := g.Edge(first, shows)
	require.True(t, ok)
	require.Equal(t, 2, e.Label)
}

func TestRemoveEdgesAndVertex(t *testing.T) {
	g := buildGraph(t,
		[]gqlpath.Path{shows, title, rating},
		[][2]gqlpath.Path{{shows, title}, {shows, rating}, {title, rating}},
	)
	g2 := g.RemoveEdges(Pair{Src: shows, Dst: title}, Pair{Src: title, Dst: shows})
	require.Equal(t, 2, g2.EdgeCount())
	require.Equal(t, 3, g.EdgeCount())
	require.Empty(t, g2.Predecessors(title))

	g3 := g.RemoveVertex(rating)
	require.Equal(t, 2, g3.VertexCount())
	require.Equal(t, 1, g3.EdgeCount())
	require.Empty(t, g3.Successors(title))
}

func TestDescendantsOf(t *testing.T) {
	g := buildGraph(t, []gqlpath.Path{shows, title, first, gqlpath.Root().Field("showsCount")}, nil)
	require.Equal(t, []string{"gqlo:/shows/?first", "gqlo:/shows/title"}, strs(g.DescendantsOf(shows)))
}

func TestDepthFirstSearch_IsRestartable(t *testing.T) {
	g := buildGraph(t,
		[]gqlpath.Path{shows, title, rating, cast},
		[][2]gqlpath.Path{{shows, title}, {shows, cast}, {cast, rating}, {rating, shows}},
	)
	seq := g.DepthFirstSearch(shows)
	want := []string{"gqlo:/shows", "gqlo:/shows/cast", "gqlo:/shows/rating", "gqlo:/shows/title"}
	require.Equal(t, want, strs(slices.Collect(seq)))
	require.Equal(t, want, strs(slices.Collect(seq)))

	var firstTwo []gqlpath.Path
	for p := range seq {
		firstTwo = append(firstTwo, p)
		if len(firstTwo) == 2 {
			break
		}
	}
	require.Len(t, firstTwo, 2)
	require.Empty(t, slices.Collect(g.DepthFirstSearch(first)))
}

func TestLayers(t *testing.T) {
	g := buildGraph(t,
		[]gqlpath.Path{shows, title, first, rating},
		[][2]gqlpath.Path{{first, shows}, {shows, title}, {shows, rating}},
	)
	layers, err := g.Layers()
	require.NoError(t, err)
	got := make([][]string, len(layers))
	for i, l := range layers {
		got[i] = strs(l)
	}
	want := [][]string{
		{"gqlo:/shows/?first"},
		{"gqlo:/shows"},
		{"gqlo:/shows/rating", "gqlo:/shows/title"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("layers mismatch (-want +got):\n%s", diff)
	}

	cyclic, err := g.PutEdge(title, first, 0)
	require.NoError(t, err)
	_, err = cyclic.TopologicalOrder()
	require.ErrorIs(t, err, ErrCycle)
}

func TestCreateMinimumSpanningTree(t *testing.T) {
	g := New[string, int]()
	for _, p := range []gqlpath.Path{shows, title, rating, cast} {
		g = g.PutVertex(p, "")
	}
	put := func(a, b gqlpath.Path, w int) {
		var err error
		g, err = g.PutEdge(a, b, w)
		require.NoError(t, err)
	}
	put(shows, title, 1)
	put(shows, rating, 4)
	put(title, rating, 2)
	put(rating, cast, 3)
	put(shows, cast, 7)

	mst := g.CreateMinimumSpanningTree(func(a, b Edge[int]) int { return a.Label - b.Label })
	require.Equal(t, g.VertexCount(), mst.VertexCount())
	require.Equal(t, 3, mst.EdgeCount())

	total := 0
	for e := range mst.Edges() {
		total += e.Label
	}
	require.Equal(t, 6, total)
	_, ok := mst.Edge(shows, rating)
	require.False(t, ok)
	require.Equal(t, 5, g.EdgeCount())
}
