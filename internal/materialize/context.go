// Package materialize builds the per-request graph context: the plan graph
// of a query together with the callables that will produce its values.
//
// Two query surfaces share the GraphContext contract: StandardQuery carries a
// GraphQL document, TabularQuery a set of output column names. Contexts are
// immutable; builders start from an empty state or from a snapshot (Update)
// and Build validates the required fields.
package materialize

import (
	"context"
	"maps"
	"slices"
	"time"

	"github.com/vektah/gqlparser/v2/ast"

	"github.com/hanpama/virtugraph/internal/gqlpath"
	"github.com/hanpama/virtugraph/internal/metamodel"
)

// CallableContextFactory derives the context a single callable runs with.
type CallableContextFactory func(ctx context.Context, c metamodel.Callable) (context.Context, context.CancelFunc)

// TimeoutContextFactory bounds every callable by d when d > 0.
func TimeoutContextFactory(d time.Duration) CallableContextFactory {
	return func(ctx context.Context, _ metamodel.Callable) (context.Context, context.CancelFunc) {
		if d <= 0 {
			return context.WithCancel(ctx)
		}
		return context.WithTimeout(ctx, d)
	}
}

// GraphContext is the contract shared by both query surfaces.
type GraphContext interface {
	Metamodel() *metamodel.Metamodel
	VariableKeys() []string
	RawInputContextKeys() []string
	RequestGraph() RequestGraph
	TransformerCallablesByPath() map[gqlpath.Path]metamodel.Callable
	DataElementCallableBuildersByPath() map[gqlpath.Path]metamodel.DataElementCallableBuilder
	FeatureCalculatorCallablesByPath() map[gqlpath.Path]metamodel.Callable
	AddedVertices() []AddedVertex
	CallableContextFactory() CallableContextFactory
}

type state struct {
	metamodel      *metamodel.Metamodel
	variableKeys   map[string]struct{}
	rawInputKeys   map[string]struct{}
	graph          RequestGraph
	graphSet       bool
	transformers   map[gqlpath.Path]metamodel.Callable
	dataElements   map[gqlpath.Path]metamodel.DataElementCallableBuilder
	features       map[gqlpath.Path]metamodel.Callable
	added          []AddedVertex
	contextFactory CallableContextFactory
}

func (s state) clone() state {
	s.variableKeys = maps.Clone(s.variableKeys)
	s.rawInputKeys = maps.Clone(s.rawInputKeys)
	s.transformers = maps.Clone(s.transformers)
	s.dataElements = maps.Clone(s.dataElements)
	s.features = maps.Clone(s.features)
	s.added = slices.Clone(s.added)
	return s
}

func sortedKeys(m map[string]struct{}) []string {
	keys := slices.Collect(maps.Keys(m))
	slices.Sort(keys)
	return keys
}

// snapshot implements GraphContext for both query shapes.
type snapshot struct {
	s state
}

func (c *snapshot) Metamodel() *metamodel.Metamodel { return c.s.metamodel }
func (c *snapshot) VariableKeys() []string          { return sortedKeys(c.s.variableKeys) }
func (c *snapshot) RawInputContextKeys() []string   { return sortedKeys(c.s.rawInputKeys) }
func (c *snapshot) RequestGraph() RequestGraph      { return c.s.graph }
func (c *snapshot) AddedVertices() []AddedVertex    { return slices.Clone(c.s.added) }

func (c *snapshot) TransformerCallablesByPath() map[gqlpath.Path]metamodel.Callable {
	return maps.Clone(c.s.transformers)
}

func (c *snapshot) DataElementCallableBuildersByPath() map[gqlpath.Path]metamodel.DataElementCallableBuilder {
	return maps.Clone(c.s.dataElements)
}

func (c *snapshot) FeatureCalculatorCallablesByPath() map[gqlpath.Path]metamodel.Callable {
	return maps.Clone(c.s.features)
}

func (c *snapshot) CallableContextFactory() CallableContextFactory { return c.s.contextFactory }

// StandardQuery is the graph context of a GraphQL document.
type StandardQuery struct {
	snapshot
	operationName string
	document      *ast.QueryDocument
}

func (q *StandardQuery) OperationName() string        { return q.operationName }
func (q *StandardQuery) Document() *ast.QueryDocument { return q.document }

// Operation returns the operation selected by OperationName.
func (q *StandardQuery) Operation() *ast.OperationDefinition {
	return q.document.Operations.ForName(q.operationName)
}

// Update applies fn to a builder seeded from q and builds the result.
func (q *StandardQuery) Update(fn func(*StandardQueryBuilder)) (*StandardQuery, error) {
	b := q.ToBuilder()
	fn(b)
	return b.Build()
}

func (q *StandardQuery) ToBuilder() *StandardQueryBuilder {
	return &StandardQueryBuilder{
		contextBuilder: contextBuilder{s: q.s.clone()},
		operationName:  q.operationName,
		document:       q.document,
	}
}

// TabularQuery is the graph context of a column list.
type TabularQuery struct {
	snapshot
	columns   map[string]struct{}
	unhandled []string
}

// OutputColumns returns the requested columns in sorted order.
func (q *TabularQuery) OutputColumns() []string { return sortedKeys(q.columns) }

// UnhandledColumns returns the columns not yet mapped to a path.
func (q *TabularQuery) UnhandledColumns() []string { return slices.Clone(q.unhandled) }

func (q *TabularQuery) Update(fn func(*TabularQueryBuilder)) (*TabularQuery, error) {
	b := q.ToBuilder()
	fn(b)
	return b.Build()
}

func (q *TabularQuery) ToBuilder() *TabularQueryBuilder {
	return &TabularQueryBuilder{
		contextBuilder: contextBuilder{s: q.s.clone()},
		columns:        maps.Clone(q.columns),
		unhandled:      slices.Clone(q.unhandled),
	}
}

var (
	_ GraphContext = (*StandardQuery)(nil)
	_ GraphContext = (*TabularQuery)(nil)
)
