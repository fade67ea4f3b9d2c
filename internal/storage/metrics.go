package storage

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

var (
	tracer = otel.Tracer("github.com/tendant/simple-webp/internal/storage")

	opCount      metric.Int64Counter
	opErrors     metric.Int64Counter
	bytesRead    metric.Int64Counter
	bytesWritten metric.Int64Counter
)

func init() {
	meter := otel.Meter("github.com/tendant/simple-webp/internal/storage")

	var err error
	opCount, err = meter.Int64Counter(
		"webpconv.storage.operations",
		metric.WithDescription("Number of object store operations"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create storage.operations counter: %w", err))
	}

	opErrors, err = meter.Int64Counter(
		"webpconv.storage.errors",
		metric.WithDescription("Number of failed object store operations"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create storage.errors counter: %w", err))
	}

	bytesRead, err = meter.Int64Counter(
		"webpconv.storage.read.bytes",
		metric.WithDescription("Bytes read from the object store"),
		metric.WithUnit("By"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create storage.read.bytes counter: %w", err))
	}

	bytesWritten, err = meter.Int64Counter(
		"webpconv.storage.write.bytes",
		metric.WithDescription("Bytes written to the object store"),
		metric.WithUnit("By"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create storage.write.bytes counter: %w", err))
	}
}

func startSpan(ctx context.Context, provider, op, bucket, key string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "storage."+provider+"."+op,
		trace.WithAttributes(
			attribute.String("bucket", bucket),
			attribute.String("key", key),
		),
	)
}

func recordOp(ctx context.Context, provider, op, bucket string) {
	opCount.Add(ctx, 1, metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("op", op),
		attribute.String("bucket", bucket),
	))
}

func recordError(ctx context.Context, span trace.Span, provider, op, bucket, reason string, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, reason)
	opErrors.Add(ctx, 1, metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("op", op),
		attribute.String("bucket", bucket),
		attribute.String("reason", reason),
	))
}

func recordRead(ctx context.Context, provider, bucket string, n int) {
	bytesRead.Add(ctx, int64(n), metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("bucket", bucket),
	))
}

func recordWrite(ctx context.Context, provider, bucket string, n int) {
	bytesWritten.Add(ctx, int64(n), metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("bucket", bucket),
	))
}
