package otel

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	eventbus "github.com/hanpama/rosterql/internal/eventbus"
	events "github.com/hanpama/rosterql/internal/events"
	reqid "github.com/hanpama/rosterql/internal/reqid"
)

func TestSpans(t *testing.T) {
	eventbus.Use(eventbus.New())
	t.Cleanup(func() { eventbus.Use(nil) })

	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	unsubscribe := Register(tp.Tracer("test"))
	defer unsubscribe()

	ctx, _ := reqid.NewContext(context.Background())
	req := httptest.NewRequest("POST", "/graphql", nil)
	eventbus.Publish(ctx, events.HTTPStart{Request: req})
	eventbus.Publish(ctx, events.PoolTaskStart{})
	eventbus.Publish(ctx, events.GraphQLStart{OperationName: "Q", OperationType: "query"})
	eventbus.Publish(ctx, events.GraphQLFinish{Valid: true, Errors: []string{"e"}})
	eventbus.Publish(ctx, events.PoolTaskFinish{Panicked: true})
	eventbus.Publish(ctx, events.HTTPFinish{Request: req, Status: 500})

	ended := rec.Ended()
	require.Len(t, ended, 3)
	byName := map[string]sdktrace.ReadOnlySpan{}
	for _, s := range ended {
		byName[s.Name()] = s
	}

	httpSpan, task, op := byName["http.request"], byName["workerpool.task"], byName["graphql.operation"]
	require.NotNil(t, httpSpan)
	require.NotNil(t, task)
	require.NotNil(t, op)
	require.Equal(t, httpSpan.SpanContext().SpanID(), task.Parent().SpanID())
	require.Equal(t, task.SpanContext().SpanID(), op.Parent().SpanID())
	require.Equal(t, codes.Error, httpSpan.Status().Code)
	require.Equal(t, codes.Error, task.Status().Code)
}

func TestSharedRequestIDKeepsSpansApart(t *testing.T) {
	eventbus.Use(eventbus.New())
	t.Cleanup(func() { eventbus.Use(nil) })

	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	unsubscribe := Register(tp.Tracer("test"))
	defer unsubscribe()

	const shared = "3f1c6a8e-8f0e-4c38-9a57-2a5f0bd1f2c4"
	a, _ := reqid.WithID(context.Background(), shared)
	b, _ := reqid.WithID(context.Background(), shared)
	req := httptest.NewRequest("POST", "/graphql", nil)

	// interleaved as two in-flight requests would be
	eventbus.Publish(a, events.HTTPStart{Request: req})
	eventbus.Publish(b, events.HTTPStart{Request: req})
	eventbus.Publish(b, events.PoolTaskStart{})
	eventbus.Publish(a, events.PoolTaskStart{})
	eventbus.Publish(a, events.PoolTaskFinish{})
	eventbus.Publish(a, events.HTTPFinish{Request: req, Status: 200})
	eventbus.Publish(b, events.PoolTaskFinish{Panicked: true})
	eventbus.Publish(b, events.HTTPFinish{Request: req, Status: 500})

	var httpSpans, tasks []sdktrace.ReadOnlySpan
	for _, s := range rec.Ended() {
		switch s.Name() {
		case "http.request":
			httpSpans = append(httpSpans, s)
		case "workerpool.task":
			tasks = append(tasks, s)
		}
	}
	require.Len(t, httpSpans, 2)
	require.Len(t, tasks, 2)

	// a finished first on both stages
	require.Equal(t, codes.Unset, httpSpans[0].Status().Code)
	require.Equal(t, codes.Error, httpSpans[1].Status().Code)
	require.Equal(t, httpSpans[0].SpanContext().SpanID(), tasks[0].Parent().SpanID())
	require.Equal(t, httpSpans[1].SpanContext().SpanID(), tasks[1].Parent().SpanID())
	for _, s := range httpSpans {
		require.Contains(t, s.Attributes(), attribute.String("request.id", shared))
	}
}

func TestEventsWithoutTokenAreIgnored(t *testing.T) {
	eventbus.Use(eventbus.New())
	t.Cleanup(func() { eventbus.Use(nil) })

	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	unsubscribe := Register(tp.Tracer("test"))
	defer unsubscribe()

	req := httptest.NewRequest("POST", "/graphql", nil)
	eventbus.Publish(context.Background(), events.HTTPStart{Request: req})
	eventbus.Publish(context.Background(), events.HTTPFinish{Request: req, Status: 200})
	require.Empty(t, rec.Started())
	require.Empty(t, rec.Ended())
}

func TestSetupWithoutEndpoint(t *testing.T) {
	shutdown, err := Setup(context.Background(), "", "rosterql")
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
}
