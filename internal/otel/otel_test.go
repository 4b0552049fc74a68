package otel

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/hanpama/virtugraph/internal/eventbus"
	"github.com/hanpama/virtugraph/internal/events"
	"github.com/hanpama/virtugraph/internal/reqid"
)

func TestSubscriberRecordsRequestSpans(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	bus := eventbus.New()
	eventbus.Use(bus)
	t.Cleanup(func() { eventbus.Use(nil) })
	unsubscribe := newSubscriber(tp.Tracer("test")).register(bus)
	defer unsubscribe()

	ctx, _ := reqid.WithID(context.Background(), "r1")
	req := httptest.NewRequest("POST", "/graphql", nil)
	eventbus.Publish(ctx, events.HTTPStart{Request: req})
	eventbus.Publish(ctx, events.GraphQLStart{OperationName: "Shows"})
	eventbus.Publish(ctx, events.PlanFinish{Surface: "standard", Vertices: 4, Callables: 1, Duration: time.Millisecond})
	eventbus.Publish(ctx, events.CallableStart{Path: "gqlo:/shows", Source: "catalog", Kind: "data_element"})
	eventbus.Publish(ctx, events.RemoteStart{Source: "catalog", Endpoint: "http://catalog"})
	eventbus.Publish(ctx, events.RemoteFinish{Source: "catalog", Endpoint: "http://catalog", Status: 503, Err: errors.New("unavailable")})
	eventbus.Publish(ctx, events.CallableFinish{Path: "gqlo:/shows", Source: "catalog", Err: errors.New("unavailable")})
	eventbus.Publish(ctx, events.GraphQLFinish{OperationName: "Shows"})
	eventbus.Publish(ctx, events.HTTPFinish{Request: req, Status: 200})

	var names []string
	byName := map[string]sdktrace.ReadOnlySpan{}
	for _, s := range rec.Ended() {
		names = append(names, s.Name())
		byName[s.Name()] = s
	}
	want := []string{"plan", "remote.graphql", "callable", "graphql.operation", "http.request"}
	if diff := cmp.Diff(want, names); diff != "" {
		t.Fatalf("ended spans mismatch (-want +got):\n%s", diff)
	}

	op := byName["graphql.operation"].SpanContext().SpanID()
	require.Equal(t, byName["http.request"].SpanContext().SpanID(), byName["graphql.operation"].Parent().SpanID())
	require.Equal(t, op, byName["plan"].Parent().SpanID())
	require.Equal(t, op, byName["callable"].Parent().SpanID())
	require.Equal(t, codes.Error, byName["remote.graphql"].Status().Code)
	require.Equal(t, codes.Error, byName["callable"].Status().Code)
}

func TestSetupWithoutEndpoint(t *testing.T) {
	shutdown, err := Setup("", "virtugraph")
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
}
