package ctxutil

import "context"

type traceDataKey struct{}

// TraceData identifies one request. UserID and SessionID are the learner and
// avatar session the request acts for, when known.
type TraceData struct {
	TraceID   string
	RequestID string
	UserID    string
	SessionID string
}

func WithTraceData(ctx context.Context, td *TraceData) context.Context {
	return context.WithValue(Default(ctx), traceDataKey{}, td)
}

func GetTraceData(ctx context.Context) *TraceData {
	if ctx == nil {
		return nil
	}
	if td, ok := ctx.Value(traceDataKey{}).(*TraceData); ok {
		return td
	}
	return nil
}

// Default returns context.Background() when ctx is nil.
func Default(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}
