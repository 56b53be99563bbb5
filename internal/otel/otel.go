package otel

import (
	"context"
	"fmt"
	"sync"

	eventbus "github.com/hanpama/rosterql/internal/eventbus"
	events "github.com/hanpama/rosterql/internal/events"
	reqid "github.com/hanpama/rosterql/internal/reqid"

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

// Setup installs an OTLP/gRPC tracer provider exporting to endpoint and
// bridges bus events into spans. An empty endpoint leaves tracing off. The
// returned func detaches the bridge and flushes pending spans.
func Setup(ctx context.Context, endpoint, service string) (shutdown func(context.Context) error, err error) {
	if endpoint == "" {
		return func(context.Context) error { return nil }, nil
	}
	exp, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(endpoint),
		otlptracegrpc.WithDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())))
	if err != nil {
		return nil, fmt.Errorf("otlp exporter: %w", err)
	}
	res := resource.NewWithAttributes(semconv.SchemaURL, semconv.ServiceName(service))
	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exp), sdktrace.WithResource(res))
	otel.SetTracerProvider(tp)

	detach := Register(tp.Tracer("rosterql"))
	return func(ctx context.Context) error {
		detach()
		return tp.Shutdown(ctx)
	}, nil
}

// Register turns bus events into spans on tracer: http.request, with
// workerpool.task and graphql.operation nested below it. Events are matched
// up by the request's reqid token, so requests that reuse a client supplied
// ID keep separate spans. Events without a token are ignored.
func Register(tracer trace.Tracer) (unsubscribe func()) {
	b := &bridge{tracer: tracer}
	return b.attach()
}

// openSpans holds the spans still open for one stage, keyed by request token.
type openSpans struct{ m sync.Map }

func (o *openSpans) put(tok uint64, span trace.Span) { o.m.Store(tok, span) }

func (o *openSpans) get(tok uint64) (trace.Span, bool) {
	v, ok := o.m.Load(tok)
	if !ok {
		return nil, false
	}
	return v.(trace.Span), true
}

func (o *openSpans) take(tok uint64) (trace.Span, bool) {
	v, ok := o.m.LoadAndDelete(tok)
	if !ok {
		return nil, false
	}
	return v.(trace.Span), true
}

type bridge struct {
	tracer trace.Tracer
	http   openSpans
	task   openSpans
	op     openSpans
}

// within returns ctx carrying the first span open for tok among stages.
func within(ctx context.Context, tok uint64, stages ...*openSpans) context.Context {
	for _, st := range stages {
		if span, ok := st.get(tok); ok {
			return trace.ContextWithSpan(ctx, span)
		}
	}
	return ctx
}

func requestID(ctx context.Context) string {
	rid, _ := reqid.FromContext(ctx)
	return rid
}

// token is zero when ctx has none; zero is never minted.
func token(ctx context.Context) uint64 {
	tok, _ := reqid.Token(ctx)
	return tok
}

func (b *bridge) attach() func() {
	unsubs := []func(){
		eventbus.Subscribe(func(ctx context.Context, e events.HTTPStart) {
			tok, ok := reqid.Token(ctx)
			if !ok {
				return
			}
			_, span := b.tracer.Start(ctx, "http.request",
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(
					semconv.HTTPMethodKey.String(e.Request.Method),
					attribute.String("http.target", e.Request.URL.Path),
					attribute.String("request.id", requestID(ctx)),
				))
			b.http.put(tok, span)
		}),
		eventbus.Subscribe(func(ctx context.Context, e events.HTTPFinish) {
			span, ok := b.http.take(token(ctx))
			if !ok {
				return
			}
			span.SetAttributes(semconv.HTTPStatusCodeKey.Int(e.Status))
			if e.Status >= 500 {
				span.SetStatus(codes.Error, fmt.Sprintf("status %d", e.Status))
			}
			span.End()
		}),
		eventbus.Subscribe(func(ctx context.Context, e events.PoolTaskStart) {
			tok, ok := reqid.Token(ctx)
			if !ok {
				return
			}
			_, span := b.tracer.Start(within(ctx, tok, &b.http), "workerpool.task",
				trace.WithAttributes(attribute.Int64("workerpool.wait_ms", e.Wait.Milliseconds())))
			b.task.put(tok, span)
		}),
		eventbus.Subscribe(func(ctx context.Context, e events.PoolTaskFinish) {
			span, ok := b.task.take(token(ctx))
			if !ok {
				return
			}
			if e.Panicked {
				span.SetStatus(codes.Error, "panic")
			}
			span.End()
		}),
		eventbus.Subscribe(func(ctx context.Context, e events.PoolRejected) {
			if span, ok := b.http.get(token(ctx)); ok {
				span.AddEvent("workerpool.rejected", trace.WithAttributes(
					attribute.Int("workerpool.running", e.Running),
					attribute.Int("workerpool.waiting", e.Waiting),
				))
			}
		}),
		eventbus.Subscribe(func(ctx context.Context, e events.GraphQLStart) {
			tok, ok := reqid.Token(ctx)
			if !ok {
				return
			}
			_, span := b.tracer.Start(within(ctx, tok, &b.task, &b.http), "graphql.operation",
				trace.WithAttributes(
					attribute.String("graphql.operation.name", e.OperationName),
					attribute.String("graphql.operation.type", e.OperationType),
				))
			b.op.put(tok, span)
		}),
		eventbus.Subscribe(func(ctx context.Context, e events.GraphQLFinish) {
			span, ok := b.op.take(token(ctx))
			if !ok {
				return
			}
			span.SetAttributes(attribute.Int("graphql.error_count", len(e.Errors)))
			span.End()
		}),
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}
