package otel

import (
	"context"
	"sync"
	"time"

	"github.com/hanpama/virtugraph/internal/eventbus"
	"github.com/hanpama/virtugraph/internal/events"
	"github.com/hanpama/virtugraph/internal/reqid"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Setup configures OpenTelemetry and attaches eventbus subscribers.
// If endpoint is empty, no telemetry is configured.
func Setup(endpoint, service string) (func(context.Context) error, error) {
	if endpoint == "" {
		return func(context.Context) error { return nil }, nil
	}
	exp, err := otlptracegrpc.New(context.Background(),
		otlptracegrpc.WithEndpoint(endpoint),
		otlptracegrpc.WithDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())))
	if err != nil {
		return nil, err
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(service),
		)),
	)
	otel.SetTracerProvider(tp)

	sub := newSubscriber(otel.Tracer("virtugraph"))
	unsubscribe := sub.register(nil)

	return func(ctx context.Context) error {
		unsubscribe()
		return tp.Shutdown(ctx)
	}, nil
}

type subscriber struct {
	tracer       trace.Tracer
	httpSpans    sync.Map // rid -> trace.Span
	requestSpans sync.Map // rid -> trace.Span, graphql or tabular
	callSpans    sync.Map // rid + path -> trace.Span
	remoteSpans  sync.Map // rid + source + endpoint -> trace.Span
}

func newSubscriber(tracer trace.Tracer) *subscriber { return &subscriber{tracer: tracer} }

// parent returns ctx carrying the innermost open span of the request.
func (s *subscriber) parent(ctx context.Context, rid string) context.Context {
	if v, ok := s.requestSpans.Load(rid); ok {
		return trace.ContextWithSpan(ctx, v.(trace.Span))
	}
	if v, ok := s.httpSpans.Load(rid); ok {
		return trace.ContextWithSpan(ctx, v.(trace.Span))
	}
	return ctx
}

func end(m *sync.Map, key string, err error, attrs ...attribute.KeyValue) {
	v, ok := m.LoadAndDelete(key)
	if !ok {
		return
	}
	span := v.(trace.Span)
	span.SetAttributes(attrs...)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// register subscribes s to b, or to the global bus when b is nil.
func (s *subscriber) register(b *eventbus.Bus) (unsubscribe func()) {
	var subs []func()
	on := func(u func()) { subs = append(subs, u) }

	on(subscribe(b, func(ctx context.Context, e events.HTTPStart) {
		rid, _ := reqid.FromContext(ctx)
		_, span := s.tracer.Start(ctx, "http.request")
		span.SetAttributes(
			semconv.HTTPMethodKey.String(e.Request.Method),
			attribute.String("http.target", e.Request.URL.Path),
		)
		s.httpSpans.Store(rid, span)
	}))

	on(subscribe(b, func(ctx context.Context, e events.HTTPFinish) {
		rid, _ := reqid.FromContext(ctx)
		end(&s.httpSpans, rid, nil, semconv.HTTPStatusCodeKey.Int(e.Status))
	}))

	on(subscribe(b, func(ctx context.Context, e events.GraphQLStart) {
		rid, _ := reqid.FromContext(ctx)
		_, span := s.tracer.Start(s.parent(ctx, rid), "graphql.operation")
		span.SetAttributes(
			attribute.String("graphql.operation.name", e.OperationName),
			attribute.Bool("graphql.document.cached", e.Cached),
		)
		s.requestSpans.Store(rid, span)
	}))

	on(subscribe(b, func(ctx context.Context, e events.GraphQLFinish) {
		rid, _ := reqid.FromContext(ctx)
		end(&s.requestSpans, rid, nil, attribute.Int("graphql.error_count", len(e.Errors)))
	}))

	on(subscribe(b, func(ctx context.Context, e events.TabularStart) {
		rid, _ := reqid.FromContext(ctx)
		_, span := s.tracer.Start(s.parent(ctx, rid), "tabular.request")
		span.SetAttributes(attribute.StringSlice("tabular.columns", e.Columns))
		s.requestSpans.Store(rid, span)
	}))

	on(subscribe(b, func(ctx context.Context, e events.TabularFinish) {
		rid, _ := reqid.FromContext(ctx)
		end(&s.requestSpans, rid, nil,
			attribute.Int("tabular.rows", e.Rows),
			attribute.Int("tabular.error_count", len(e.Errors)),
		)
	}))

	// Planning finishes before anything else observes it, so its span is
	// recorded after the fact.
	on(subscribe(b, func(ctx context.Context, e events.PlanFinish) {
		rid, _ := reqid.FromContext(ctx)
		now := time.Now()
		_, span := s.tracer.Start(s.parent(ctx, rid), "plan", trace.WithTimestamp(now.Add(-e.Duration)))
		span.SetAttributes(
			attribute.String("plan.surface", e.Surface),
			attribute.Int("plan.vertices", e.Vertices),
			attribute.Int("plan.callables", e.Callables),
		)
		if e.Err != nil {
			span.RecordError(e.Err)
			span.SetStatus(codes.Error, e.Err.Error())
		}
		span.End(trace.WithTimestamp(now))
	}))

	on(subscribe(b, func(ctx context.Context, e events.CallableStart) {
		rid, _ := reqid.FromContext(ctx)
		_, span := s.tracer.Start(s.parent(ctx, rid), "callable")
		span.SetAttributes(
			attribute.String("callable.path", e.Path),
			attribute.String("callable.source", e.Source),
			attribute.String("callable.kind", e.Kind),
		)
		s.callSpans.Store(rid+e.Path, span)
	}))

	on(subscribe(b, func(ctx context.Context, e events.CallableFinish) {
		rid, _ := reqid.FromContext(ctx)
		if e.Skipped {
			return
		}
		end(&s.callSpans, rid+e.Path, e.Err)
	}))

	on(subscribe(b, func(ctx context.Context, e events.RemoteStart) {
		rid, _ := reqid.FromContext(ctx)
		_, span := s.tracer.Start(s.parent(ctx, rid), "remote.graphql", trace.WithSpanKind(trace.SpanKindClient))
		span.SetAttributes(
			attribute.String("remote.source", e.Source),
			attribute.String("net.peer.name", e.Endpoint),
		)
		s.remoteSpans.Store(rid+e.Source+e.Endpoint, span)
	}))

	on(subscribe(b, func(ctx context.Context, e events.RemoteFinish) {
		rid, _ := reqid.FromContext(ctx)
		end(&s.remoteSpans, rid+e.Source+e.Endpoint, e.Err, semconv.HTTPStatusCodeKey.Int(e.Status))
	}))

	return func() {
		for _, u := range subs {
			u()
		}
	}
}

func subscribe[T any](b *eventbus.Bus, h eventbus.Handler[T]) func() {
	if b == nil {
		return eventbus.Subscribe(h)
	}
	return eventbus.SubscribeTo(b, h)
}
