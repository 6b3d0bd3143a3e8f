// Package tracing wires go.opentelemetry.io/otel and google/uuid into a
// per-request correlation ID plus span, opened directly against the public
// otel API (see DESIGN.md's dropped-dependency notes for why no tracking
// wrapper library is used instead).
package tracing

import (
	"context"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/lerian-labs/icvsb-gateway"

// Tracer returns the package-wide otel tracer.
//
//nolint:ireturn
func Tracer() trace.Tracer { return otel.Tracer(instrumentationName) }

type contextKey string

const requestIDContextKey contextKey = "request-id"

// NewRequestID generates a fresh per-request correlation ID.
func NewRequestID() string { return uuid.New().String() }

// ContextWithRequestID attaches a request ID to ctx.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDContextKey, id)
}

// RequestIDFromContext returns the request ID carried by ctx, or "".
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDContextKey).(string)
	return id
}

// Start opens a span named name under ctx, stamping it with the ambient
// request ID as the "app.request.request_id" attribute.
func Start(ctx context.Context, name string) (context.Context, trace.Span) {
	ctx, span := Tracer().Start(ctx, name)

	if reqID := RequestIDFromContext(ctx); reqID != "" {
		span.SetAttributes(attribute.String("app.request.request_id", reqID))
	}

	return ctx, span
}

// HandleSpanError records err on span and marks it failed, mirroring
// libOpenTelemetry.HandleSpanError's shape.
func HandleSpanError(span trace.Span, description string, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, description)
}
