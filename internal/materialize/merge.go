package materialize

import (
	"github.com/hanpama/virtugraph/internal/gqlpath"
	"github.com/hanpama/virtugraph/internal/metamodel"
)

// mergeState combines two context states. The metamodel created later wins;
// keyed collections are unioned with b's entries replacing a's, except graph
// vertices and data element builders, which are merged.
func mergeState(a, b state) state {
	out := a.clone()
	switch {
	case out.metamodel == nil:
		out.metamodel = b.metamodel
	case b.metamodel != nil && !b.metamodel.Created().Before(out.metamodel.Created()):
		out.metamodel = b.metamodel
	}
	out.variableKeys = addKeys(out.variableKeys, sortedKeys(b.variableKeys))
	out.rawInputKeys = addKeys(out.rawInputKeys, sortedKeys(b.rawInputKeys))
	out.graph = mergeGraphs(a.graph, b.graph)
	out.graphSet = a.graphSet || b.graphSet
	for p, c := range b.transformers {
		if out.transformers == nil {
			out.transformers = map[gqlpath.Path]metamodel.Callable{}
		}
		out.transformers[p] = c
	}
	for p, c := range b.features {
		if out.features == nil {
			out.features = map[gqlpath.Path]metamodel.Callable{}
		}
		out.features[p] = c
	}
	for p, d := range b.dataElements {
		if out.dataElements == nil {
			out.dataElements = map[gqlpath.Path]metamodel.DataElementCallableBuilder{}
		}
		if prev, ok := out.dataElements[p]; ok {
			d = prev.Merge(d)
		}
		out.dataElements[p] = d
	}
	out.added = append(out.added, b.added...)
	if b.contextFactory != nil {
		out.contextFactory = b.contextFactory
	}
	return out
}

func mergeGraphs(a, b RequestGraph) RequestGraph {
	out := a
	for p, v := range b.Vertices() {
		if old, ok := out.Vertex(p); ok {
			v = mergeVertex(old, v)
		}
		out = out.PutVertex(p, v)
	}
	for e := range b.Edges() {
		// both endpoints were just put, so this cannot fail
		out, _ = out.PutEdge(e.Src, e.Dst, e.Label)
	}
	return out
}

// MergeStandard combines two standard queries over the same request. The
// document and operation come from b when it has one.
func MergeStandard(a, b *StandardQuery) *StandardQuery {
	out := &StandardQuery{
		snapshot:      snapshot{s: mergeState(a.s, b.s)},
		operationName: a.operationName,
		document:      a.document,
	}
	if b.document != nil {
		out.operationName = b.operationName
		out.document = b.document
	}
	return out
}

// MergeTabular combines two tabular queries. Columns are unioned; a column
// is unhandled if either side still lists it as unhandled.
func MergeTabular(a, b *TabularQuery) *TabularQuery {
	out := &TabularQuery{
		snapshot: snapshot{s: mergeState(a.s, b.s)},
		columns:  addKeys(nil, sortedKeys(a.columns)),
	}
	out.columns = addKeys(out.columns, sortedKeys(b.columns))
	seen := map[string]struct{}{}
	for _, c := range append(a.UnhandledColumns(), b.unhandled...) {
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out.unhandled = append(out.unhandled, c)
	}
	return out
}
