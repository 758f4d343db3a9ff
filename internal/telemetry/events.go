package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TraceTrigger starts the span around one document trigger delivery
func TraceTrigger(ctx context.Context, path, kind string) (context.Context, trace.Span) {
	return otel.Tracer("triggers").Start(ctx, "trigger."+kind,
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("docstore.path", path),
			attribute.String("trigger.kind", kind),
		),
	)
}

// TraceExternalCall starts a client span for a call to an outside service
// (s3, fcm)
func TraceExternalCall(ctx context.Context, service, operation string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	ctx, span := otel.Tracer("external-api").Start(ctx, service+"."+operation,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("external.service", service),
			attribute.String("external.operation", operation),
		),
	)
	span.SetAttributes(attrs...)
	return ctx, span
}

// End records err on the span, if any, and ends it
func End(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
