package pathgraph

import (
	iradix "github.com/hashicorp/go-immutable-radix"

	"github.com/hanpama/virtugraph/internal/gqlpath"
)

type ufNode struct {
	parent gqlpath.Path
	rank   int
	size   int
}

// UnionFind is a persistent disjoint-set forest over paths using union by
// rank (ties broken by size) and path compression. The zero value is empty.
type UnionFind struct {
	nodes *iradix.Tree
}

func NewUnionFind() UnionFind { return UnionFind{nodes: iradix.New()} }

func (u UnionFind) node(p gqlpath.Path) (ufNode, bool) {
	if u.nodes == nil {
		return ufNode{}, false
	}
	raw, ok := u.nodes.Get([]byte(p.Key()))
	if !ok {
		return ufNode{}, false
	}
	return raw.(ufNode), true
}

func (u UnionFind) Len() int {
	if u.nodes == nil {
		return 0
	}
	return u.nodes.Len()
}

func (u UnionFind) Contains(p gqlpath.Path) bool {
	_, ok := u.node(p)
	return ok
}

// Add registers p as a singleton set. Adding a known path is a no-op.
func (u UnionFind) Add(p gqlpath.Path) UnionFind {
	if u.Contains(p) {
		return u
	}
	nodes, _, _ := orEmpty(u.nodes).Insert([]byte(p.Key()), ufNode{parent: p, size: 1})
	return UnionFind{nodes: nodes}
}

// Find returns the root of p's set and a structure in which every node
// visited on the way points directly at that root.
func (u UnionFind) Find(p gqlpath.Path) (gqlpath.Path, UnionFind, bool) {
	n, ok := u.node(p)
	if !ok {
		return gqlpath.Path{}, u, false
	}
	var chain []gqlpath.Path
	cur := p
	for n.parent != cur {
		chain = append(chain, cur)
		cur = n.parent
		n, _ = u.node(cur)
	}
	root := cur
	// the last element of chain already points at root
	if len(chain) < 2 {
		return root, u, true
	}
	txn := u.nodes.Txn()
	for _, c := range chain[:len(chain)-1] {
		cn, _ := u.node(c)
		cn.parent = root
		txn.Insert([]byte(c.Key()), cn)
	}
	return root, UnionFind{nodes: txn.Commit()}, true
}

// Union merges the sets of a and b. Unknown paths and paths already sharing
// a root leave the structure unchanged.
func (u UnionFind) Union(a, b gqlpath.Path) UnionFind {
	ra, u, okA := u.Find(a)
	rb, u, okB := u.Find(b)
	if !okA || !okB || ra == rb {
		return u
	}
	na, _ := u.node(ra)
	nb, _ := u.node(rb)

	winner, loser := ra, rb
	nw, nl := na, nb
	switch {
	case na.rank < nb.rank:
		winner, loser, nw, nl = rb, ra, nb, na
	case na.rank == nb.rank:
		if nb.size > na.size || (nb.size == na.size && gqlpath.Compare(rb, ra) < 0) {
			winner, loser, nw, nl = rb, ra, nb, na
		}
		nw.rank++
	}
	nl.parent = winner
	nw.size += nl.size

	txn := u.nodes.Txn()
	txn.Insert([]byte(loser.Key()), nl)
	txn.Insert([]byte(winner.Key()), nw)
	return UnionFind{nodes: txn.Commit()}
}

// Connected reports whether a and b share a root.
func (u UnionFind) Connected(a, b gqlpath.Path) (bool, UnionFind) {
	ra, u, okA := u.Find(a)
	rb, u, okB := u.Find(b)
	return okA && okB && ra == rb, u
}

// depth counts parent hops from p to its root.
func (u UnionFind) depth(p gqlpath.Path) int {
	n, ok := u.node(p)
	if !ok {
		return -1
	}
	d := 0
	for n.parent != p {
		p = n.parent
		n, _ = u.node(p)
		d++
	}
	return d
}
