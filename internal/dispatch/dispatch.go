// Package dispatch runs the callables of a graph context in dependency
// order and collects their outcomes.
//
// A callable depends on another when one of its inputs lies at or below the
// other's path. Independent groups of callables (connected components of the
// dependency graph) proceed on their own; within a group callables run layer
// by layer, each layer concurrently.
package dispatch

import (
	"context"
	"fmt"
	"maps"
	"runtime/debug"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/vektah/gqlparser/v2/ast"
	"golang.org/x/sync/errgroup"

	"github.com/hanpama/virtugraph/internal/eventbus"
	"github.com/hanpama/virtugraph/internal/events"
	"github.com/hanpama/virtugraph/internal/gqlpath"
	"github.com/hanpama/virtugraph/internal/materialize"
	"github.com/hanpama/virtugraph/internal/metamodel"
	"github.com/hanpama/virtugraph/internal/pathgraph"
	"github.com/hanpama/virtugraph/internal/reqid"
	"github.com/hanpama/virtugraph/internal/svcerr"
)

type Option func(*Dispatcher)

// WithMemo serves transformer and feature results from m.
func WithMemo(m *Memo) Option { return func(d *Dispatcher) { d.memo = m } }

// WithConcurrency bounds the callables running at once per group.
func WithConcurrency(n int) Option { return func(d *Dispatcher) { d.concurrency = n } }

// WithLogger sets the logger for callable failures and recovered panics.
func WithLogger(l zerolog.Logger) Option { return func(d *Dispatcher) { d.log = l } }

type Dispatcher struct {
	memo        *Memo
	concurrency int
	log         zerolog.Logger
}

func New(opts ...Option) *Dispatcher {
	d := &Dispatcher{concurrency: 16, log: zerolog.Nop()}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Result holds the outcome of every callable keyed by its path.
type Result struct {
	mu       sync.Mutex
	outcomes map[gqlpath.Path]Outcome
}

func (r *Result) set(p gqlpath.Path, o Outcome) {
	r.mu.Lock()
	r.outcomes[p] = o
	r.mu.Unlock()
}

// Outcome returns the outcome of the callable at p; pending if there is none.
func (r *Result) Outcome(p gqlpath.Path) Outcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.outcomes[p]
}

// Paths lists callable paths in path order.
func (r *Result) Paths() []gqlpath.Path {
	r.mu.Lock()
	defer r.mu.Unlock()
	ps := slices.Collect(maps.Keys(r.outcomes))
	slices.SortFunc(ps, gqlpath.Compare)
	return ps
}

// Producer finds the callable owning p: the one at p or its nearest ancestor.
func (r *Result) Producer(p gqlpath.Path) (gqlpath.Path, Outcome, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return producerOf(p, func(q gqlpath.Path) bool { _, ok := r.outcomes[q]; return ok }, r.outcomes)
}

func producerOf(p gqlpath.Path, has func(gqlpath.Path) bool, outcomes map[gqlpath.Path]Outcome) (gqlpath.Path, Outcome, bool) {
	for q := p; !q.IsRoot(); q = q.Parent() {
		if has(q) {
			return q, outcomes[q], true
		}
	}
	return gqlpath.Path{}, Outcome{}, false
}

// Err merges every failure into one error; nil when all callables succeeded.
func (r *Result) Err() *svcerr.Error {
	var errs []*svcerr.Error
	for _, p := range r.Paths() {
		if o := r.Outcome(p); o.IsFailure() {
			errs = append(errs, o.Err())
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return svcerr.MergeAll(errs...)
}

type binding struct {
	input    gqlpath.Path
	argument bool
	producer gqlpath.Path
}

type job struct {
	path     gqlpath.Path
	callable metamodel.Callable
	bindings []binding
}

// Dispatch invokes the callables of gc. inputs holds the request variables
// or raw input values. The returned error reports planning faults only;
// callable failures are recorded in the result.
func (d *Dispatcher) Dispatch(ctx context.Context, gc materialize.GraphContext, inputs map[string]any) (*Result, error) {
	res := &Result{outcomes: map[gqlpath.Path]Outcome{}}
	callables := map[gqlpath.Path]metamodel.Callable{}
	for p, b := range gc.DataElementCallableBuildersByPath() {
		c, err := b.Build()
		if err != nil {
			res.outcomes[p] = Failure(svcerr.FromError(err, svcerr.KindInternal))
			continue
		}
		callables[p] = c
		res.outcomes[p] = Pending()
	}
	for _, m := range []map[gqlpath.Path]metamodel.Callable{gc.TransformerCallablesByPath(), gc.FeatureCalculatorCallablesByPath()} {
		for p, c := range m {
			callables[p] = Memoize(c, d.memo, gc.Metamodel().Created())
			res.outcomes[p] = Pending()
		}
	}

	plan := gc.RequestGraph()
	deps := pathgraph.New[metamodel.Callable, struct{}]()
	groups := pathgraph.NewUnionFind()
	for p, c := range callables {
		deps = deps.PutVertex(p, c)
		groups = groups.Add(p)
	}
	jobs := map[gqlpath.Path]*job{}
	known := func(q gqlpath.Path) bool { _, ok := res.outcomes[q]; return ok }
	for p, c := range callables {
		j := &job{path: p, callable: c}
		for _, in := range c.Inputs() {
			if v, ok := plan.Vertex(in); ok && v.Kind != materialize.VertexSelection {
				j.bindings = append(j.bindings, binding{input: in, argument: true})
				continue
			}
			producer, _, ok := producerOf(in, known, res.outcomes)
			if !ok || producer == p {
				return nil, svcerr.New(svcerr.KindInternal).Messagef("no callable produces input %s of %s", in, p).Build()
			}
			j.bindings = append(j.bindings, binding{input: in, producer: producer})
			if _, ok := callables[producer]; !ok {
				continue
			}
			var err error
			if deps, err = deps.PutEdge(producer, p, struct{}{}); err != nil {
				return nil, svcerr.New(svcerr.KindInternal).Cause(err).Build()
			}
			groups = groups.Union(producer, p)
		}
		jobs[p] = j
	}

	layers, err := deps.Layers()
	if err != nil {
		return nil, svcerr.New(svcerr.KindInternal).Message("callables depend on each other in a cycle").Cause(err).Build()
	}
	members := map[gqlpath.Path][][]*job{}
	for i, layer := range layers {
		for _, p := range layer {
			var root gqlpath.Path
			root, groups, _ = groups.Find(p)
			ls := members[root]
			for len(ls) <= i {
				ls = append(ls, nil)
			}
			ls[i] = append(ls[i], jobs[p])
			members[root] = ls
		}
	}

	var eg errgroup.Group
	for _, ls := range members {
		eg.Go(func() error {
			for _, layer := range ls {
				var lg errgroup.Group
				lg.SetLimit(max(d.concurrency, 1))
				for _, j := range layer {
					lg.Go(func() error {
						res.set(j.path, d.run(ctx, gc, res, j, inputs))
						return nil
					})
				}
				_ = lg.Wait()
			}
			return nil
		})
	}
	_ = eg.Wait()
	return res, nil
}

func (d *Dispatcher) run(ctx context.Context, gc materialize.GraphContext, res *Result, j *job, inputs map[string]any) Outcome {
	kind := ""
	if src := gc.Metamodel().Source(j.callable.SourceName()); src != nil {
		kind = src.Kind().String()
	}
	finish := events.CallableFinish{Path: j.path.String(), Source: j.callable.SourceName(), Kind: kind}
	if err := ctx.Err(); err != nil {
		finish.Skipped = true
		finish.Err = err
		eventbus.Publish(ctx, finish)
		return Failure(svcerr.FromError(err, svcerr.KindServiceUnavailable))
	}

	args := map[gqlpath.Path]any{}
	for _, b := range j.bindings {
		if b.argument {
			v, ok, err := argumentValue(gc.RequestGraph(), b.input, inputs)
			if err != nil {
				return Failure(svcerr.New(svcerr.KindBadRequest).Messagef("argument %s", b.input).Cause(err).Build())
			}
			if ok {
				args[b.input] = v
			}
			continue
		}
		o := res.Outcome(b.producer)
		if o.IsFailure() {
			finish.Skipped = true
			finish.Err = o.Err()
			eventbus.Publish(ctx, finish)
			return Failure(svcerr.New(svcerr.KindBadGateway).
				Messagef("%s was not computed: %s failed", j.path, b.producer).
				AddHistory(o.Err()).
				Build())
		}
		v, _ := Extract(o.Value(), b.producer, b.input)
		args[b.input] = v
	}

	cctx, cancel := gc.CallableContextFactory()(ctx, j.callable)
	defer cancel()
	eventbus.Publish(ctx, events.CallableStart{Path: finish.Path, Source: finish.Source, Kind: kind})
	start := time.Now()
	v, err := d.invoke(cctx, j.callable, args)
	finish.Duration = time.Since(start)
	finish.Err = err
	eventbus.Publish(ctx, finish)
	callableDuration.WithLabelValues(finish.Source).Observe(finish.Duration.Seconds())

	if err != nil {
		if cctx.Err() != nil && ctx.Err() == nil {
			err = cctx.Err()
		}
		se := svcerr.FromError(err, svcerr.KindBadGateway)
		se = se.ToBuilder().PutExtension("path", j.path.String()).Build()
		callableTotal.WithLabelValues(finish.Source, se.Kind().String()).Inc()
		d.logger(ctx).Warn().
			Str("path", finish.Path).
			Str("source", finish.Source).
			Err(err).
			Msg("callable failed")
		return Failure(se)
	}
	callableTotal.WithLabelValues(finish.Source, "OK").Inc()
	return Success(v)
}

func (d *Dispatcher) logger(ctx context.Context) *zerolog.Logger {
	l := d.log
	if rid, ok := reqid.FromContext(ctx); ok {
		l = l.With().Str("request_id", rid).Logger()
	}
	return &l
}

func (d *Dispatcher) invoke(ctx context.Context, c metamodel.Callable, args map[gqlpath.Path]any) (v any, err error) {
	defer func() {
		if r := recover(); r != nil {
			d.logger(ctx).Error().Bytes("stack", debug.Stack()).Msgf("callable %s panicked: %v", c.Path(), r)
			err = svcerr.New(svcerr.KindInternal).Messagef("callable %s panicked: %v", c.Path(), r).Build()
		}
	}()
	return c.Invoke(ctx, args)
}

// argumentValue resolves an argument vertex against the request inputs. It
// reports false when the argument has no value in this request.
func argumentValue(plan materialize.RequestGraph, p gqlpath.Path, inputs map[string]any) (any, bool, error) {
	v, ok := plan.Vertex(p)
	if !ok {
		return nil, false, fmt.Errorf("argument %s is not planned", p)
	}
	switch {
	case v.Spec.Value != nil && v.Spec.Value.Kind == ast.Variable:
		val, ok := inputs[v.Spec.Value.Raw]
		return val, ok, nil
	case v.Spec.Value != nil:
		val, err := v.Spec.Value.Value(inputs)
		return val, err == nil, err
	case v.Spec.Input != "":
		val, ok := inputs[v.Spec.Input]
		return val, ok, nil
	}
	return nil, false, nil
}
