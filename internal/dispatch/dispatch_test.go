package dispatch

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/hanpama/virtugraph/internal/gqlpath"
	"github.com/hanpama/virtugraph/internal/language"
	"github.com/hanpama/virtugraph/internal/materialize"
	"github.com/hanpama/virtugraph/internal/metamodel"
	"github.com/hanpama/virtugraph/internal/reqid"
	"github.com/hanpama/virtugraph/internal/svcerr"
)

var (
	shows     = gqlpath.Root().Field("shows")
	rating    = shows.Field("rating")
	avgRating = gqlpath.Root().Field("stats").Field("averageRating")
	upper     = gqlpath.Root().Field("text").Field("upper")
)

type fixture struct {
	mu      sync.Mutex
	calls   []string
	fetch   func(ctx context.Context, req metamodel.DataElementRequest) (any, error)
	upperN  atomic.Int32
	lastReq metamodel.DataElementRequest
}

func (f *fixture) record(name string) {
	f.mu.Lock()
	f.calls = append(f.calls, name)
	f.mu.Unlock()
}

func (f *fixture) metamodel(t *testing.T) *metamodel.Metamodel {
	t.Helper()
	m, err := metamodel.Compose([]metamodel.Source{
		metamodel.NewDataElementFunc("catalog", "shows", `
			extend type Query { shows(first: Int): [Show] }
			type Show { title: String rating: Float }
		`, func(ctx context.Context, req metamodel.DataElementRequest) (any, error) {
			f.record("shows")
			f.mu.Lock()
			f.lastReq = req
			f.mu.Unlock()
			if f.fetch != nil {
				return f.fetch(ctx, req)
			}
			return []any{
				map[string]any{"title": "A", "rating": 2.0},
				map[string]any{"title": "B", "rating": 4.0},
			}, nil
		}),
		metamodel.NewTransformerFunc("text", "text", `
			extend type Query { text: TextFunctions }
			type TextFunctions { upper(s: String!): String }
		`, map[string]metamodel.FieldFunc{
			"upper": func(_ context.Context, args map[string]any) (any, error) {
				f.upperN.Add(1)
				return strings.ToUpper(args["s"].(string)), nil
			},
		}),
		metamodel.NewFeatureFunc("stats", "stats", `
			extend type Query { stats: Stats }
			type Stats { averageRating: Float }
		`, map[string]metamodel.Feature{
			"averageRating": {
				Dependencies: []gqlpath.Path{rating},
				Compute: func(_ context.Context, _ map[string]any, deps map[gqlpath.Path]any) (any, error) {
					f.record("averageRating")
					var sum float64
					values := deps[rating].([]any)
					for _, v := range values {
						sum += v.(float64)
					}
					return sum / float64(len(values)), nil
				},
			},
		}),
	})
	require.NoError(t, err)
	return m
}

func (f *fixture) plan(t *testing.T, query string, vars map[string]any, factory materialize.CallableContextFactory) *materialize.StandardQuery {
	t.Helper()
	m := f.metamodel(t)
	doc, errs := language.LoadQuery(m.Schema(), query)
	require.Empty(t, errs)
	b := materialize.NewStandardQueryBuilder()
	b.SetMetamodel(m)
	b.SetDocument(doc)
	if factory == nil {
		factory = materialize.TimeoutContextFactory(time.Second)
	}
	b.SetCallableContextFactory(factory)
	require.NoError(t, materialize.ConnectStandard(b, vars))
	q, err := b.Build()
	require.NoError(t, err)
	return q
}

func TestDispatchOrdersDependencies(t *testing.T) {
	f := &fixture{}
	q := f.plan(t, `{ stats { averageRating } }`, nil, nil)
	res, err := New().Dispatch(context.Background(), q, nil)
	require.NoError(t, err)

	require.Equal(t, []string{"shows", "averageRating"}, f.calls)
	require.Equal(t, []gqlpath.Path{shows, avgRating}, res.Paths())
	v, err := res.Outcome(avgRating).Get()
	require.NoError(t, err)
	require.Equal(t, 3.0, v)
	require.Nil(t, res.Err())
	require.Equal(t, []gqlpath.Path{rating}, f.lastReq.Selections)
}

func TestDispatchResolvesArguments(t *testing.T) {
	f := &fixture{}
	q := f.plan(t, `query($n: Int) { shows(first: $n) { title } text { upper(s: "abc") } }`, map[string]any{"n": 2}, nil)
	res, err := New().Dispatch(context.Background(), q, map[string]any{"n": 2})
	require.NoError(t, err)

	require.Equal(t, 2, f.lastReq.Arguments[shows.Argument("first")].Value)
	require.Equal(t, "Int", f.lastReq.Arguments[shows.Argument("first")].Type.Name())
	v, err := res.Outcome(upper).Get()
	require.NoError(t, err)
	require.Equal(t, "ABC", v)

	p, o, ok := res.Producer(shows.Field("title"))
	require.True(t, ok)
	require.Equal(t, shows, p)
	require.True(t, o.IsSuccess())
}

func TestDispatchOmitsUnsetVariables(t *testing.T) {
	f := &fixture{}
	q := f.plan(t, `query($n: Int) { shows(first: $n) { title } }`, nil, nil)
	_, err := New().Dispatch(context.Background(), q, nil)
	require.NoError(t, err)
	require.NotContains(t, f.lastReq.Arguments, shows.Argument("first"))
}

func TestDispatchPropagatesFailures(t *testing.T) {
	f := &fixture{fetch: func(context.Context, metamodel.DataElementRequest) (any, error) {
		return nil, errors.New("catalog is down")
	}}
	q := f.plan(t, `{ stats { averageRating } }`, nil, nil)
	res, err := New().Dispatch(context.Background(), q, nil)
	require.NoError(t, err)

	require.Equal(t, []string{"shows"}, f.calls)
	failed := res.Outcome(shows)
	require.True(t, failed.IsFailure())
	require.Equal(t, svcerr.KindBadGateway, failed.Err().Kind())

	skipped := res.Outcome(avgRating)
	require.True(t, skipped.IsFailure())
	require.Equal(t, svcerr.KindBadGateway, skipped.Err().Kind())
	require.Len(t, skipped.Err().History(), 1)

	merged := res.Err()
	require.NotNil(t, merged)
	require.Equal(t, svcerr.KindBadGateway, merged.Kind())
	require.NotEmpty(t, merged.History())
}

func TestDispatchTimeout(t *testing.T) {
	f := &fixture{fetch: func(ctx context.Context, _ metamodel.DataElementRequest) (any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	q := f.plan(t, `{ shows { title } }`, nil, materialize.TimeoutContextFactory(10*time.Millisecond))
	res, err := New().Dispatch(context.Background(), q, nil)
	require.NoError(t, err)
	o := res.Outcome(shows)
	require.True(t, o.IsFailure())
	require.Equal(t, svcerr.KindGatewayTimeout, o.Err().Kind())
}

func TestDispatchRecoversPanics(t *testing.T) {
	f := &fixture{fetch: func(context.Context, metamodel.DataElementRequest) (any, error) {
		panic("bad source")
	}}
	q := f.plan(t, `{ shows { title } }`, nil, nil)
	res, err := New().Dispatch(context.Background(), q, nil)
	require.NoError(t, err)
	require.Equal(t, svcerr.KindInternal, res.Outcome(shows).Err().Kind())
}

func TestDispatchLogsPanicsAndFailures(t *testing.T) {
	var buf bytes.Buffer
	d := New(WithLogger(zerolog.New(&buf)))
	ctx, _ := reqid.WithID(context.Background(), "r1")

	f := &fixture{fetch: func(context.Context, metamodel.DataElementRequest) (any, error) {
		panic("bad source")
	}}
	_, err := d.Dispatch(ctx, f.plan(t, `{ shows { title } }`, nil, nil), nil)
	require.NoError(t, err)
	out := buf.String()
	require.Contains(t, out, `"level":"error"`)
	require.Contains(t, out, "panicked: bad source")
	require.Contains(t, out, `"stack":`)
	require.Contains(t, out, `"request_id":"r1"`)
	require.Contains(t, out, "callable failed")

	buf.Reset()
	f = &fixture{fetch: func(context.Context, metamodel.DataElementRequest) (any, error) {
		return nil, errors.New("backend down")
	}}
	_, err = d.Dispatch(ctx, f.plan(t, `{ shows { title } }`, nil, nil), nil)
	require.NoError(t, err)
	require.Contains(t, buf.String(), "backend down")
	require.Contains(t, buf.String(), `"path":"`+shows.String()+`"`)
}

func TestDispatchCanceledRequest(t *testing.T) {
	f := &fixture{}
	q := f.plan(t, `{ shows { title } }`, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := New().Dispatch(ctx, q, nil)
	require.NoError(t, err)
	require.Empty(t, f.calls)
	require.Equal(t, svcerr.KindServiceUnavailable, res.Outcome(shows).Err().Kind())
}

func TestMemoSharesResults(t *testing.T) {
	f := &fixture{}
	memo := NewMemo(16, time.Minute)
	d := New(WithMemo(memo))
	for range 3 {
		q := f.plan(t, `{ text { upper(s: "abc") } }`, nil, nil)
		res, err := d.Dispatch(context.Background(), q, nil)
		require.NoError(t, err)
		require.Equal(t, "ABC", res.Outcome(upper).Value())
	}
	require.EqualValues(t, 1, f.upperN.Load())
	require.Equal(t, 1, memo.Len())

	q := f.plan(t, `{ text { upper(s: "other") } }`, nil, nil)
	_, err := d.Dispatch(context.Background(), q, nil)
	require.NoError(t, err)
	require.EqualValues(t, 2, f.upperN.Load())
}

type blockingCallable struct {
	release chan struct{}
	n       atomic.Int32
}

func (c *blockingCallable) Path() gqlpath.Path     { return upper }
func (c *blockingCallable) SourceName() string     { return "text" }
func (c *blockingCallable) Inputs() []gqlpath.Path { return nil }
func (c *blockingCallable) Invoke(ctx context.Context, _ map[gqlpath.Path]any) (any, error) {
	c.n.Add(1)
	select {
	case <-c.release:
		return "v", nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func TestMemoSurvivesCanceledCaller(t *testing.T) {
	memo := NewMemo(16, time.Minute)
	c := &blockingCallable{release: make(chan struct{})}
	created := time.Now()

	first, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() {
		_, err := Memoize(c, memo, created).Invoke(first, nil)
		errc <- err
	}()
	require.Eventually(t, func() bool { return c.n.Load() == 1 }, time.Second, time.Millisecond)

	got := make(chan any, 1)
	go func() {
		v, _ := Memoize(c, memo, created).Invoke(context.Background(), nil)
		got <- v
	}()
	cancel()
	require.ErrorIs(t, <-errc, context.Canceled)

	close(c.release)
	require.Equal(t, "v", <-got)
	require.EqualValues(t, 1, c.n.Load())
	require.Equal(t, 1, memo.Len())
}

func TestMemoKeysByMetamodel(t *testing.T) {
	memo := NewMemo(16, time.Minute)
	c := &blockingCallable{release: make(chan struct{})}
	close(c.release)
	before, after := time.Unix(1, 0), time.Unix(2, 0)

	for range 2 {
		_, err := Memoize(c, memo, before).Invoke(context.Background(), nil)
		require.NoError(t, err)
	}
	require.EqualValues(t, 1, c.n.Load())

	_, err := Memoize(c, memo, after).Invoke(context.Background(), nil)
	require.NoError(t, err)
	require.EqualValues(t, 2, c.n.Load())
}

func TestOutcomeStates(t *testing.T) {
	p := Pending()
	require.True(t, p.IsPending())
	_, err := p.Get()
	require.Error(t, err)

	s := Success(1)
	require.True(t, s.IsSuccess())
	require.Equal(t, 1, s.Value())

	e := svcerr.NotFound("gone")
	f := Failure(e)
	require.True(t, f.IsFailure())
	_, err = f.Get()
	require.Same(t, e, err)
}
