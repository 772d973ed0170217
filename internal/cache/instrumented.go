package cache

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const meterName = "github.com/simplixity/smiirl-feed/internal/cache"

var (
	instrumentsOnce sync.Once
	operationCount  metric.Int64Counter
	operationTime   metric.Float64Histogram
)

func initInstruments() {
	instrumentsOnce.Do(func() {
		meter := otel.Meter(meterName)

		var err error
		operationCount, err = meter.Int64Counter(
			"cache.operations",
			metric.WithDescription("Feed cache reads, writes and invalidations by outcome"),
		)
		if err != nil {
			otel.Handle(err)
		}

		operationTime, err = meter.Float64Histogram(
			"cache.operation.duration",
			metric.WithDescription("Time spent in the feed cache backend"),
			metric.WithUnit("s"),
		)
		if err != nil {
			otel.Handle(err)
		}
	})
}

// Instrumented reports every operation on a Store as a metric and as
// attributes of the active span. Stores backed by the same cache type are
// told apart by name: "results" for feed envelopes, "page-tokens" for Graph
// page tokens.
type Instrumented[T any] struct {
	wrapped   Store[T]
	cacheType string
	name      string
}

func NewInstrumented[T any](store Store[T], cacheType string, name string) *Instrumented[T] {
	initInstruments()
	return &Instrumented[T]{
		wrapped:   store,
		cacheType: cacheType,
		name:      name,
	}
}

// Get reports "hit" only for entries younger than lifetime; expired entries
// count as a "miss".
func (i *Instrumented[T]) Get(ctx context.Context, key string, lifetime time.Duration) (Entry[T], bool, error) {
	start := time.Now()
	entry, found, err := i.wrapped.Get(ctx, key, lifetime)

	outcome := "miss"
	switch {
	case err != nil:
		outcome = "error"
	case found:
		outcome = "hit"
	}
	i.observe(ctx, "get", outcome, time.Since(start))

	return entry, found, err
}

func (i *Instrumented[T]) Set(ctx context.Context, key string, value T) error {
	start := time.Now()
	err := i.wrapped.Set(ctx, key, value)
	i.observe(ctx, "set", writeOutcome(err), time.Since(start))

	return err
}

func (i *Instrumented[T]) Invalidate(ctx context.Context, key string) error {
	start := time.Now()
	err := i.wrapped.Invalidate(ctx, key)
	i.observe(ctx, "invalidate", writeOutcome(err), time.Since(start))

	return err
}

func (i *Instrumented[T]) Close() error {
	return i.wrapped.Close()
}

func writeOutcome(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// observe records one operation. The span attributes are namespaced by store
// name so that a request touching both stores keeps both outcomes.
func (i *Instrumented[T]) observe(ctx context.Context, operation, outcome string, elapsed time.Duration) {
	common := []attribute.KeyValue{
		attribute.String("cache.type", i.cacheType),
		attribute.String("cache.name", i.name),
		attribute.String("cache.operation", operation),
	}

	if operationTime != nil {
		operationTime.Record(ctx, elapsed.Seconds(), metric.WithAttributes(common...))
	}

	if operationCount != nil {
		operationCount.Add(ctx, 1, metric.WithAttributes(
			append(common, attribute.String("cache.status", outcome))...,
		))
	}

	prefix := "cache." + i.name + "." + operation
	trace.SpanFromContext(ctx).SetAttributes(
		attribute.String("cache.type", i.cacheType),
		attribute.String(prefix+".status", outcome),
		attribute.Float64(prefix+".duration", elapsed.Seconds()),
	)
}
