package materialize

import (
	"maps"
	"slices"

	"github.com/vektah/gqlparser/v2/ast"

	"github.com/hanpama/virtugraph/internal/gqlpath"
	"github.com/hanpama/virtugraph/internal/metamodel"
	"github.com/hanpama/virtugraph/internal/svcerr"
)

type contextBuilder struct {
	s state
}

func (b *contextBuilder) Metamodel() *metamodel.Metamodel { return b.s.metamodel }

func (b *contextBuilder) SetMetamodel(m *metamodel.Metamodel) { b.s.metamodel = m }

// RequestGraph returns the graph built so far; empty when none was set.
func (b *contextBuilder) RequestGraph() RequestGraph { return b.s.graph }

func (b *contextBuilder) SetRequestGraph(g RequestGraph) {
	b.s.graph = g
	b.s.graphSet = true
}

func (b *contextBuilder) SetCallableContextFactory(f CallableContextFactory) {
	b.s.contextFactory = f
}

func (b *contextBuilder) AddVariableKeys(keys ...string) {
	b.s.variableKeys = addKeys(b.s.variableKeys, keys)
}

func (b *contextBuilder) AddRawInputContextKeys(keys ...string) {
	b.s.rawInputKeys = addKeys(b.s.rawInputKeys, keys)
}

func addKeys(m map[string]struct{}, keys []string) map[string]struct{} {
	if m == nil {
		m = make(map[string]struct{}, len(keys))
	}
	for _, k := range keys {
		m[k] = struct{}{}
	}
	return m
}

// PutVertex stores v at p, merging it into a vertex already there.
func (b *contextBuilder) PutVertex(p gqlpath.Path, v PlanVertex) {
	if old, ok := b.s.graph.Vertex(p); ok {
		v = mergeVertex(old, v)
	}
	b.s.graph = b.s.graph.PutVertex(p, v)
	b.s.graphSet = true
}

// PutEdge links two existing vertices.
func (b *contextBuilder) PutEdge(src, dst gqlpath.Path, kind EdgeKind) error {
	g, err := b.s.graph.PutEdge(src, dst, kind)
	if err != nil {
		return svcerr.New(svcerr.KindInternal).Messagef("request graph edge %s -> %s", src, dst).Cause(err).Build()
	}
	b.s.graph = g
	return nil
}

func (b *contextBuilder) PutTransformerCallable(p gqlpath.Path, c metamodel.Callable) {
	if b.s.transformers == nil {
		b.s.transformers = map[gqlpath.Path]metamodel.Callable{}
	}
	b.s.transformers[p] = c
}

func (b *contextBuilder) PutFeatureCalculatorCallable(p gqlpath.Path, c metamodel.Callable) {
	if b.s.features == nil {
		b.s.features = map[gqlpath.Path]metamodel.Callable{}
	}
	b.s.features[p] = c
}

func (b *contextBuilder) PutDataElementCallableBuilder(p gqlpath.Path, d metamodel.DataElementCallableBuilder) {
	if b.s.dataElements == nil {
		b.s.dataElements = map[gqlpath.Path]metamodel.DataElementCallableBuilder{}
	}
	b.s.dataElements[p] = d
}

func (b *contextBuilder) DataElementCallableBuilder(p gqlpath.Path) (metamodel.DataElementCallableBuilder, bool) {
	d, ok := b.s.dataElements[p]
	return d, ok
}

func (b *contextBuilder) EnqueueAddedVertex(v AddedVertex) {
	b.s.added = append(b.s.added, v)
}

// DequeueAddedVertex pops the oldest pending added vertex.
func (b *contextBuilder) DequeueAddedVertex() (AddedVertex, bool) {
	if len(b.s.added) == 0 {
		return AddedVertex{}, false
	}
	v := b.s.added[0]
	b.s.added = b.s.added[1:]
	return v, true
}

func missingField(name string) error {
	return svcerr.New(svcerr.KindInternal).
		Messagef("graph context is missing %s", name).
		PutExtension("missingField", name).
		Build()
}

func (b *contextBuilder) validate() error {
	switch {
	case b.s.metamodel == nil:
		return missingField("metamodel")
	case !b.s.graphSet:
		return missingField("request graph")
	case b.s.contextFactory == nil:
		return missingField("callable context factory")
	}
	for _, p := range slices.SortedFunc(maps.Keys(b.s.dataElements), gqlpath.Compare) {
		src, _, ok := b.s.metamodel.DomainOf(p)
		if !ok || src.Kind() != metamodel.DataElement {
			return svcerr.New(svcerr.KindInternal).
				Messagef("data element callable at %s is outside every data element domain", p).
				PutExtension("dataElementPath", p.String()).
				Build()
		}
	}
	return nil
}

// StandardQueryBuilder assembles a StandardQuery.
type StandardQueryBuilder struct {
	contextBuilder
	operationName string
	document      *ast.QueryDocument
}

func NewStandardQueryBuilder() *StandardQueryBuilder { return &StandardQueryBuilder{} }

func (b *StandardQueryBuilder) SetDocument(doc *ast.QueryDocument) { b.document = doc }
func (b *StandardQueryBuilder) SetOperationName(name string)       { b.operationName = name }
func (b *StandardQueryBuilder) Document() *ast.QueryDocument       { return b.document }
func (b *StandardQueryBuilder) OperationName() string              { return b.operationName }

// Build checks the required fields and snapshots the builder. The builder
// stays usable; later changes do not affect the returned query.
func (b *StandardQueryBuilder) Build() (*StandardQuery, error) {
	if err := b.validate(); err != nil {
		return nil, err
	}
	if b.document == nil {
		return nil, missingField("document")
	}
	if b.document.Operations.ForName(b.operationName) == nil {
		return nil, missingField("operation name")
	}
	return &StandardQuery{
		snapshot:      snapshot{s: b.s.clone()},
		operationName: b.operationName,
		document:      b.document,
	}, nil
}

// TabularQueryBuilder assembles a TabularQuery.
type TabularQueryBuilder struct {
	contextBuilder
	columns   map[string]struct{}
	unhandled []string
}

func NewTabularQueryBuilder() *TabularQueryBuilder { return &TabularQueryBuilder{} }

// AddOutputColumns requests columns; new ones are queued as unhandled.
func (b *TabularQueryBuilder) AddOutputColumns(names ...string) {
	if b.columns == nil {
		b.columns = map[string]struct{}{}
	}
	for _, n := range names {
		if _, ok := b.columns[n]; ok {
			continue
		}
		b.columns[n] = struct{}{}
		b.unhandled = append(b.unhandled, n)
	}
}

func (b *TabularQueryBuilder) OutputColumns() []string { return sortedKeys(b.columns) }

func (b *TabularQueryBuilder) DequeueUnhandledColumn() (string, bool) {
	if len(b.unhandled) == 0 {
		return "", false
	}
	c := b.unhandled[0]
	b.unhandled = b.unhandled[1:]
	return c, true
}

func (b *TabularQueryBuilder) Build() (*TabularQuery, error) {
	if err := b.validate(); err != nil {
		return nil, err
	}
	if len(b.columns) == 0 {
		return nil, svcerr.New(svcerr.KindBadRequest).
			Message("tabular query has no output columns").
			PutExtension("missingField", "output columns").
			Build()
	}
	q := &TabularQuery{
		snapshot:  snapshot{s: b.s.clone()},
		columns:   make(map[string]struct{}, len(b.columns)),
		unhandled: append([]string(nil), b.unhandled...),
	}
	for c := range b.columns {
		q.columns[c] = struct{}{}
	}
	return q, nil
}
