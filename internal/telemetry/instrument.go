package telemetry

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Hkesd/mcp-memory-service/internal/memory"
)

// instrumented decorates a backend with a span and metrics per operation.
type instrumented struct {
	next    memory.Backend
	metrics *Metrics
	tracer  trace.Tracer
}

// Compile-time interface guards.
var (
	_ memory.Backend   = (*instrumented)(nil)
	_ memory.Unwrapper = (*instrumented)(nil)
)

// Instrument wraps b so every operation emits a span and updates m. Either
// m or tracer may be nil: a nil tracer uses the global provider.
func Instrument(b memory.Backend, m *Metrics, tracer trace.Tracer) memory.Backend {
	if tracer == nil {
		tracer = Tracer()
	}
	return &instrumented{next: b, metrics: m, tracer: tracer}
}

// Unwrap implements memory.Unwrapper.
func (i *instrumented) Unwrap() memory.Backend { return i.next }

func (i *instrumented) Kind() memory.Kind { return i.next.Kind() }

func (i *instrumented) start(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	kind := i.next.Kind()
	attrs = append(attrs, attribute.String("memory.kind", string(kind)))
	ctx, span := i.tracer.Start(ctx, "memory."+op, trace.WithAttributes(attrs...))
	begin := time.Now()
	return ctx, func(err error) {
		if err != nil && !errors.Is(err, memory.ErrNotFound) {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		if i.metrics != nil {
			i.metrics.observeOp(kind, op, time.Since(begin).Seconds(), err)
		}
	}
}

func (i *instrumented) Initialize(ctx context.Context) (err error) {
	ctx, done := i.start(ctx, "initialize")
	defer func() { done(err) }()
	return i.next.Initialize(ctx)
}

func (i *instrumented) Store(ctx context.Context, e memory.Entry) (id string, err error) {
	ctx, done := i.start(ctx, "store", attribute.Int("memory.tags", len(e.Tags)))
	defer func() { done(err) }()
	return i.next.Store(ctx, e)
}

func (i *instrumented) Search(ctx context.Context, query string, limit int, f *memory.Filter) (res []memory.Result, err error) {
	ctx, done := i.start(ctx, "search",
		attribute.Int("memory.limit", limit),
		attribute.Bool("memory.filtered", !f.IsZero()),
	)
	defer func() { done(err) }()
	return i.next.Search(ctx, query, limit, f)
}

func (i *instrumented) Get(ctx context.Context, id string) (r memory.Record, err error) {
	ctx, done := i.start(ctx, "get", attribute.String("memory.id", id))
	defer func() { done(err) }()
	return i.next.Get(ctx, id)
}

func (i *instrumented) Delete(ctx context.Context, id string) (err error) {
	ctx, done := i.start(ctx, "delete", attribute.String("memory.id", id))
	defer func() { done(err) }()
	return i.next.Delete(ctx, id)
}

func (i *instrumented) List(ctx context.Context, offset, count int) (recs []memory.Record, err error) {
	ctx, done := i.start(ctx, "list",
		attribute.Int("memory.offset", offset),
		attribute.Int("memory.count", count),
	)
	defer func() { done(err) }()
	return i.next.List(ctx, offset, count)
}

func (i *instrumented) Close() error {
	return i.next.Close()
}
