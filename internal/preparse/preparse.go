// Package preparse caches parsed and validated query documents per schema
// snapshot and plans and dispatches every request against them.
package preparse

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/rs/zerolog"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/gqlerror"
	"golang.org/x/sync/singleflight"

	"github.com/hanpama/virtugraph/internal/dispatch"
	"github.com/hanpama/virtugraph/internal/eventbus"
	"github.com/hanpama/virtugraph/internal/events"
	"github.com/hanpama/virtugraph/internal/executor"
	"github.com/hanpama/virtugraph/internal/materialize"
	"github.com/hanpama/virtugraph/internal/metamodel"
	"github.com/hanpama/virtugraph/internal/session"
	"github.com/hanpama/virtugraph/internal/svcerr"
)

const DefaultTTL = 10 * time.Minute

// ParseFunc parses and validates query text against a schema.
type ParseFunc func(schema *ast.Schema, query string) (*ast.QueryDocument, gqlerror.List)

// Key identifies a cached document: the schema snapshot and the query text.
type Key struct {
	Created int64
	Hash    uint64
	Text    string
}

func keyOf(m *metamodel.Metamodel, query string) Key {
	return Key{Created: m.Created().UnixNano(), Hash: xxhash.Sum64String(query), Text: query}
}

func (k Key) flight() string { return fmt.Sprintf("%d/%016x/%s", k.Created, k.Hash, k.Text) }

type NameKind string

const (
	NameOperation NameKind = "operation"
	NameFragment  NameKind = "fragment"
	NameVariable  NameKind = "variable"
	NameInput     NameKind = "input"
)

// CreatedName is a name a request introduces, with what it names.
type CreatedName struct {
	Name string
	Kind NameKind
}

// Entry is the outcome of preparing one request. Entries stored in the
// cache are never modified; GetPlannedEntry hands out copies carrying the
// names of the request that asked.
type Entry struct {
	Document     *ast.QueryDocument
	Errors       gqlerror.List
	CreatedNames []CreatedName
	CreatedAt    time.Time
	// Cached reports whether the document came from the cache.
	Cached bool
}

// Valid reports whether the document passed validation.
func (e *Entry) Valid() bool { return e.Document != nil && len(e.Errors) == 0 }

type Option func(*Cache)

func WithTTL(ttl time.Duration) Option { return func(c *Cache) { c.ttl = ttl } }

func WithLogger(l zerolog.Logger) Option { return func(c *Cache) { c.log = l } }

func WithDispatcher(d *dispatch.Dispatcher) Option { return func(c *Cache) { c.dispatcher = d } }

// WithCallableContextFactory sets how callable contexts derive from the
// request context; the default applies a 3s timeout.
func WithCallableContextFactory(f materialize.CallableContextFactory) Option {
	return func(c *Cache) { c.factory = f }
}

type Cache struct {
	ttl        time.Duration
	entries    *expirable.LRU[Key, *Entry]
	group      singleflight.Group
	dispatcher *dispatch.Dispatcher
	factory    materialize.CallableContextFactory
	log        zerolog.Logger
}

func New(opts ...Option) *Cache {
	c := &Cache{
		ttl:        DefaultTTL,
		dispatcher: dispatch.New(),
		factory:    materialize.TimeoutContextFactory(3 * time.Second),
		log:        zerolog.Nop(),
	}
	for _, o := range opts {
		o(c)
	}
	c.entries = expirable.NewLRU[Key, *Entry](0, nil, c.ttl)
	return c
}

// Contains reports whether the document of query is cached for m.
func (c *Cache) Contains(m *metamodel.Metamodel, query string) bool {
	return c.entries.Contains(keyOf(m, query))
}

// Len is the number of cached documents.
func (c *Cache) Len() int { return c.entries.Len() }

// GetPlannedEntry prepares the request of the session attached to ctx.
//
// For query text the parsed document is looked up in the cache first, and
// parsed at most once per key among concurrent callers. Documents failing
// validation are cached as well and returned without planning. A valid
// document, or a tabular request, is planned and dispatched; the session in
// ctx is then replaced by one carrying the graph context and the result.
//
// A returned error means the request could not be planned. Failed callables
// are not errors here; they are part of the stored result.
func (c *Cache) GetPlannedEntry(ctx context.Context, parse ParseFunc) (*Entry, error) {
	s, err := session.FromContext(ctx)
	if err != nil {
		return nil, err
	}
	if s.Metamodel == nil {
		return nil, svcerr.Internal("request session has no metamodel")
	}
	log := c.log.With().Str("rid", s.RequestID).Logger()

	if s.IsTabular() {
		return c.planTabular(ctx, log, s)
	}

	key := keyOf(s.Metamodel, s.Query)
	entry, cached := c.entries.Get(key)
	if cached {
		cacheHits.Inc()
	} else {
		v, _, _ := c.group.Do(key.flight(), func() (any, error) {
			if e, ok := c.entries.Get(key); ok {
				return e, nil
			}
			cacheMisses.Inc()
			doc, errs := parse(s.Metamodel.Schema(), s.Query)
			e := &Entry{Document: doc, Errors: errs, CreatedAt: time.Now()}
			c.entries.Add(key, e)
			return e, nil
		})
		entry = v.(*Entry)
	}

	if !entry.Valid() {
		validationFailures.Inc()
		log.Warn().
			Int("errors", len(entry.Errors)).
			Str("operation", s.OperationName).
			Msg("query failed validation")
		out := *entry
		out.Cached = cached
		return &out, nil
	}
	return c.planStandard(ctx, log, s, entry, cached)
}

func (c *Cache) planStandard(ctx context.Context, log zerolog.Logger, s *session.Session, entry *Entry, cached bool) (*Entry, error) {
	start := time.Now()
	op := entry.Document.Operations.ForName(s.OperationName)
	if op == nil {
		return nil, svcerr.New(svcerr.KindBadRequest).Messagef("unknown operation %q", s.OperationName).Build()
	}
	vars, err := executor.CoerceVariableValues(s.Metamodel.Schema(), op, s.Variables)
	if err != nil {
		return nil, err
	}

	b := materialize.NewStandardQueryBuilder()
	b.SetMetamodel(s.Metamodel)
	b.SetDocument(entry.Document)
	b.SetOperationName(s.OperationName)
	b.SetCallableContextFactory(c.factory)
	q, err := c.plan(ctx, "standard", start, func() (materialize.GraphContext, error) {
		if err := materialize.ConnectStandard(b, vars); err != nil {
			return nil, err
		}
		q, err := b.Build()
		if err != nil {
			return nil, err
		}
		return q, nil
	})
	if err != nil {
		log.Info().Err(err).Msg("query could not be planned")
		return nil, err
	}

	res, err := c.dispatch(ctx, log, "standard", q, vars)
	if err != nil {
		return nil, err
	}
	next := s.Clone()
	next.Variables = vars
	next.Context = q
	next.Result = res
	if err := session.Store(ctx, next); err != nil {
		return nil, err
	}

	out := *entry
	out.Cached = cached
	out.CreatedNames = createdNames(q, entry.Document, op)
	log.Debug().
		Bool("cached", cached).
		Interface("names", out.CreatedNames).
		Dur("duration", time.Since(start)).
		Msg("planned query")
	return &out, nil
}

func (c *Cache) planTabular(ctx context.Context, log zerolog.Logger, s *session.Session) (*Entry, error) {
	start := time.Now()
	if len(s.OutputColumns) == 0 {
		return nil, svcerr.InvalidRequest("tabular request has no output columns")
	}
	b := materialize.NewTabularQueryBuilder()
	b.SetMetamodel(s.Metamodel)
	b.SetCallableContextFactory(c.factory)
	b.AddOutputColumns(s.OutputColumns...)
	q, err := c.plan(ctx, "tabular", start, func() (materialize.GraphContext, error) {
		if err := materialize.ConnectTabular(b, s.RawInput); err != nil {
			return nil, err
		}
		q, err := b.Build()
		if err != nil {
			return nil, err
		}
		return q, nil
	})
	if err != nil {
		log.Info().Err(err).Strs("columns", s.OutputColumns).Msg("tabular request could not be planned")
		return nil, err
	}

	res, err := c.dispatch(ctx, log, "tabular", q, s.RawInput)
	if err != nil {
		return nil, err
	}
	next := s.Clone()
	next.Context = q
	next.Result = res
	if err := session.Store(ctx, next); err != nil {
		return nil, err
	}

	out := &Entry{CreatedAt: start, CreatedNames: createdNames(q, nil, nil)}
	log.Debug().
		Strs("columns", s.OutputColumns).
		Dur("duration", time.Since(start)).
		Msg("planned tabular request")
	return out, nil
}

func (c *Cache) plan(ctx context.Context, surface string, start time.Time, build func() (materialize.GraphContext, error)) (materialize.GraphContext, error) {
	gc, err := build()
	finish := events.PlanFinish{Surface: surface, Duration: time.Since(start), Err: err}
	if err == nil {
		finish.Vertices = gc.RequestGraph().VertexCount()
		finish.Callables = len(gc.TransformerCallablesByPath()) + len(gc.DataElementCallableBuildersByPath()) + len(gc.FeatureCalculatorCallablesByPath())
	}
	eventbus.Publish(ctx, finish)
	return gc, err
}

func (c *Cache) dispatch(ctx context.Context, log zerolog.Logger, surface string, gc materialize.GraphContext, inputs map[string]any) (*dispatch.Result, error) {
	res, err := c.dispatcher.Dispatch(ctx, gc, inputs)
	if err != nil {
		log.Error().Err(err).Str("surface", surface).Msg("dispatch could not run")
		return nil, err
	}
	if failed := res.Err(); failed != nil {
		dispatchFailures.WithLabelValues(surface, failed.Kind().String()).Inc()
		log.Error().
			Str("surface", surface).
			Str("kind", failed.Kind().String()).
			Int("failures", len(failed.History())+1).
			Msg(failed.Error())
	}
	return res, nil
}

func createdNames(gc materialize.GraphContext, doc *ast.QueryDocument, op *ast.OperationDefinition) []CreatedName {
	var names []CreatedName
	if op != nil && op.Name != "" {
		names = append(names, CreatedName{Name: op.Name, Kind: NameOperation})
	}
	if doc != nil {
		for _, f := range doc.Fragments {
			names = append(names, CreatedName{Name: f.Name, Kind: NameFragment})
		}
	}
	for _, v := range gc.VariableKeys() {
		names = append(names, CreatedName{Name: v, Kind: NameVariable})
	}
	for _, k := range gc.RawInputContextKeys() {
		names = append(names, CreatedName{Name: k, Kind: NameInput})
	}
	return slices.Clip(names)
}
