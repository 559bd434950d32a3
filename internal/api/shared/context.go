package shared

import (
	"context"

	"github.com/google/uuid"
)

// contextKey is a private type for context values set by this package.
type contextKey int

const traceIDKey contextKey = iota

// WithTraceID returns a copy of ctx carrying a fresh trace ID. Applied once
// per request by the trace middleware.
func WithTraceID(ctx context.Context) context.Context {
	return context.WithValue(ctx, traceIDKey, uuid.NewString())
}

// TraceID returns the trace ID stored in ctx, or "" when none is set.
func TraceID(ctx context.Context) string {
	id, _ := ctx.Value(traceIDKey).(string)
	return id
}
