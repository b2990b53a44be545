package context

import (
	"context"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
)

// TraceContext identifies one inbound request in logs and error bodies.
type TraceContext struct {
	TraceID   string
	RequestID string
}

type traceContextKey struct{}

func WithTrace(ctx context.Context, tc *TraceContext) context.Context {
	return context.WithValue(ctx, traceContextKey{}, tc)
}

func GetTrace(ctx context.Context) *TraceContext {
	tc, _ := ctx.Value(traceContextKey{}).(*TraceContext)
	return tc
}

// GetRequestID returns the request id carried by ctx, or "".
func GetRequestID(ctx context.Context) string {
	if tc := GetTrace(ctx); tc != nil {
		return tc.RequestID
	}
	return ""
}

// NewTraceContext keeps an inbound request id when present. The trace id is
// taken from the active span so log lines join up with exported traces; with
// the no-op tracer it falls back to a random id.
func NewTraceContext(ctx context.Context, requestID string) *TraceContext {
	if requestID == "" {
		requestID = uuid.NewString()
	}
	tc := &TraceContext{RequestID: requestID}
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		tc.TraceID = sc.TraceID().String()
	} else {
		tc.TraceID = uuid.NewString()
	}
	return tc
}
