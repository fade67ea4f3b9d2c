package convert

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

var (
	tracer = otel.Tracer("github.com/tendant/simple-webp/internal/convert")

	outcomeCount   metric.Int64Counter
	originalBytes  metric.Int64Counter
	convertedBytes metric.Int64Counter
	taskDuration   metric.Float64Histogram
)

func init() {
	meter := otel.Meter("github.com/tendant/simple-webp/internal/convert")

	var err error
	outcomeCount, err = meter.Int64Counter(
		"webpconv.conversion.outcomes",
		metric.WithDescription("Number of conversion outcomes by status"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create conversion.outcomes counter: %w", err))
	}

	originalBytes, err = meter.Int64Counter(
		"webpconv.conversion.original.bytes",
		metric.WithDescription("Source bytes of converted images"),
		metric.WithUnit("By"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create conversion.original.bytes counter: %w", err))
	}

	convertedBytes, err = meter.Int64Counter(
		"webpconv.conversion.converted.bytes",
		metric.WithDescription("WebP bytes of converted images"),
		metric.WithUnit("By"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create conversion.converted.bytes counter: %w", err))
	}

	taskDuration, err = meter.Float64Histogram(
		"webpconv.conversion.duration",
		metric.WithDescription("Time spent converting a single key"),
		metric.WithUnit("s"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create conversion.duration histogram: %w", err))
	}
}

func recordOutcome(ctx context.Context, o Outcome) {
	attrs := metric.WithAttributes(attribute.String("status", string(o.Status)))
	outcomeCount.Add(ctx, 1, attrs)
	taskDuration.Record(ctx, o.Duration.Seconds(), attrs)
	if o.Converted() {
		originalBytes.Add(ctx, o.OriginalSize)
		convertedBytes.Add(ctx, o.ConvertedSize)
	}
}

func startTaskSpan(ctx context.Context, key string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "convert.ConvertOne",
		trace.WithAttributes(attribute.String("source_key", key)),
	)
}
