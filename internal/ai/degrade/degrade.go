// Package degrade turns AI failures into logged, typed errors or safe
// fallback values.
package degrade

import (
	"context"
	"fmt"

	"github.com/yungbote/learnmate-backend/internal/platform/apierr"
	"github.com/yungbote/learnmate-backend/internal/platform/ctxutil"
	"github.com/yungbote/learnmate-backend/internal/platform/logger"
)

// Matcher selects errors that a fallback is expected to absorb.
type Matcher func(error) bool

// IsAny matches apierr errors carrying one of codes.
func IsAny(codes ...string) Matcher {
	return func(err error) bool {
		code := apierr.CodeOf(err)
		for _, c := range codes {
			if c == code {
				return true
			}
		}
		return false
	}
}

func logFields(ctx context.Context, op string, err error, fields []any) []any {
	kv := []any{"operation", op, "error_type", fmt.Sprintf("%T", err), "error", err.Error()}
	if ae, ok := apierr.As(err); ok {
		kv = append(kv, "code", ae.Code)
	}
	if td := ctxutil.GetTraceData(ctx); td != nil {
		kv = append(kv, "trace_id", td.TraceID, "request_id", td.RequestID)
		if td.UserID != "" {
			kv = append(kv, "user_id", td.UserID)
		}
		if td.SessionID != "" {
			kv = append(kv, "session_id", td.SessionID)
		}
	}
	return append(kv, fields...)
}

// Surface runs fn and logs a failure before returning it unchanged.
func Surface(ctx context.Context, log *logger.Logger, op string, fn func(ctx context.Context) error, fields ...any) error {
	err := fn(ctx)
	if err != nil {
		logger.OrNop(log).Error("AI operation failed", logFields(ctx, op, err, fields)...)
	}
	return err
}

// Fallback returns fn's result, or fallback when fn fails. Errors accepted by
// a matcher (or any error when none are given) log at warn level; anything
// else logs at error level.
func Fallback[T any](ctx context.Context, log *logger.Logger, op string, fallback T, fn func(ctx context.Context) (T, error), match ...Matcher) T {
	out, err := fn(ctx)
	if err == nil {
		return out
	}
	log = logger.OrNop(log)
	expected := len(match) == 0
	for _, m := range match {
		if m(err) {
			expected = true
			break
		}
	}
	if expected {
		log.Warn("AI operation degraded to fallback", logFields(ctx, op, err, nil)...)
	} else {
		log.Error("AI operation failed unexpectedly, using fallback", logFields(ctx, op, err, nil)...)
	}
	return fallback
}
