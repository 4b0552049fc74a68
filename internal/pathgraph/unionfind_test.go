package pathgraph

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hanpama/virtugraph/internal/gqlpath"
)

func TestUnionFind_UnionSharesRoot(t *testing.T) {
	uf := NewUnionFind().Add(shows).Add(title).Add(rating)
	uf = uf.Union(shows, title)

	ra, uf, ok := uf.Find(shows)
	require.True(t, ok)
	rb, uf, _ := uf.Find(title)
	require.Equal(t, ra, rb)

	connected, _ := uf.Connected(shows, rating)
	require.False(t, connected)
}

func TestUnionFind_AddIsIdempotent(t *testing.T) {
	uf := NewUnionFind().Add(shows).Add(title).Union(shows, title)
	again := uf.Add(shows)
	require.Equal(t, 2, again.Len())
	connected, _ := again.Connected(shows, title)
	require.True(t, connected)
}

func TestUnionFind_UnknownOrSameRootIsNoop(t *testing.T) {
	uf := NewUnionFind().Add(shows)
	require.Equal(t, uf, uf.Union(shows, title))
	require.Equal(t, uf, uf.Union(shows, shows))
	_, _, ok := uf.Find(title)
	require.False(t, ok)
}

func TestUnionFind_RankTieKeepsLargerTree(t *testing.T) {
	a, b, c, d := gqlpath.Root().Field("a"), gqlpath.Root().Field("b"), gqlpath.Root().Field("c"), gqlpath.Root().Field("d")
	uf := NewUnionFind().Add(a).Add(b).Add(c).Add(d)
	uf = uf.Union(a, b) // rank 1, size 2
	uf = uf.Union(c, d) // rank 1, size 2
	ra, uf, _ := uf.Find(a)
	rc, uf, _ := uf.Find(c)
	uf = uf.Union(a, c)

	root, uf, _ := uf.Find(d)
	require.Contains(t, []gqlpath.Path{ra, rc}, root)
	n, _ := uf.node(root)
	require.Equal(t, 2, n.rank)
	require.Equal(t, 4, n.size)

	// a lower-rank root always goes under the higher-rank one
	e := gqlpath.Root().Field("e")
	uf = uf.Add(e).Union(e, a)
	r2, _, _ := uf.Find(e)
	require.Equal(t, root, r2)
}

func TestUnionFind_CompressionKeepsChainsShort(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	uf := NewUnionFind()
	var paths []gqlpath.Path
	for i := 0; i < 300; i++ {
		p := gqlpath.Root().Field(fmt.Sprintf("f%d", i))
		paths = append(paths, p)
		uf = uf.Add(p)
		if i > 0 {
			uf = uf.Union(p, paths[r.Intn(i)])
		}
		if i%7 == 0 {
			_, uf, _ = uf.Find(paths[r.Intn(len(paths))])
		}
	}
	for _, p := range paths {
		_, uf, _ = uf.Find(p)
	}
	for _, p := range paths {
		require.LessOrEqual(t, uf.depth(p), 1, "%s", p)
	}
	root, _, _ := uf.Find(paths[0])
	for _, p := range paths {
		got, _, _ := uf.Find(p)
		require.Equal(t, root, got)
	}
}

func TestUnionFind_RankBoundsDepthWithoutCompression(t *testing.T) {
	uf := NewUnionFind()
	var paths []gqlpath.Path
	for i := 0; i < 256; i++ {
		p := gqlpath.Root().Field(fmt.Sprintf("n%d", i))
		paths = append(paths, p)
		uf = uf.Add(p)
	}
	// pairwise merges build a balanced forest of height log2(n)
	for step := 1; step < len(paths); step *= 2 {
		for i := 0; i+step < len(paths); i += 2 * step {
			uf = uf.Union(paths[i], paths[i+step])
		}
	}
	for _, p := range paths {
		require.LessOrEqual(t, uf.depth(p), 8)
	}
}
