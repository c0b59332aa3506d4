package observability

import (
	"context"
	"strings"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

type correlationKey struct{}

// WithCorrelationID binds id to ctx. A blank id leaves ctx unchanged.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, correlationKey{}, id)
}

// CorrelationID returns the correlation id bound to ctx, if any.
func CorrelationID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(correlationKey{}).(string)
	return id
}

// Logger derives a request-scoped logger from base carrying the correlation id
// and trace id found in ctx.
func Logger(ctx context.Context, base zerolog.Logger) *zerolog.Logger {
	fields := base.With()
	if id := CorrelationID(ctx); id != "" {
		fields = fields.Str("correlation_id", id)
	}
	if ctx != nil {
		if span := trace.SpanContextFromContext(ctx); span.HasTraceID() {
			fields = fields.Str("trace_id", span.TraceID().String())
		}
	}
	logger := fields.Logger()
	return &logger
}
