// Package tracing opens OpenTelemetry spans around datastore operations.
package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the instrumentation name used when no tracer is given.
const TracerName = "github.com/vinicius-lino-figueiredo/gedm"

// Tracer returns the tracer of tp, or of the global provider if tp is nil.
func Tracer(tp trace.TracerProvider) trace.Tracer {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return tp.Tracer(TracerName)
}

// Start opens a client span for operation on collection.
func Start(ctx context.Context, t trace.Tracer, operation, collection string) (context.Context, trace.Span) {
	ctx, span := t.Start(ctx, "gedm."+operation, trace.WithSpanKind(trace.SpanKindClient))
	span.SetAttributes(
		attribute.String("db.system", "mongodb"),
		attribute.String("db.operation", operation),
		attribute.String("db.mongodb.collection", collection),
	)
	return ctx, span
}

// End records err on span, if any, and ends it.
func End(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
