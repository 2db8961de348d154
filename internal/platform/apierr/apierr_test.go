package apierr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"
)

func TestKindsMatchSentinels(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		target *Error
		status int
	}{
		{"algorithm", Algorithm("boom", nil), ErrAlgorithm, 500},
		{"moderation", ContentModeration("", nil), ErrContentModeration, 400},
		{"quota", QuotaExceeded(3 * time.Second), ErrQuotaExceeded, 429},
		{"model", ModelExecution("gpt", "timeout", context.DeadlineExceeded), ErrModelExecution, 500},
		{"timeout", PredictionTimeout("rank", 2*time.Second), ErrPredictionTimeout, 504},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			wrapped := fmt.Errorf("outer: %w", tc.err)
			if !errors.Is(wrapped, tc.target) {
				t.Fatalf("expected errors.Is to match %s", tc.target.Code)
			}
			if StatusOf(wrapped) != tc.status {
				t.Fatalf("status: want %d got %d", tc.status, StatusOf(wrapped))
			}
		})
	}
}

func TestQuotaExceededRetryAfter(t *testing.T) {
	e := QuotaExceeded(1500 * time.Millisecond)
	if e.RetryAfter != 1500*time.Millisecond {
		t.Fatalf("retry after: %v", e.RetryAfter)
	}
	if e.Details["retry_after"] != 2 {
		t.Fatalf("retry_after detail: %v", e.Details["retry_after"])
	}
	if QuotaExceeded(0).RetryAfter != time.Second {
		t.Fatalf("retry after floor should be one second")
	}
}

func TestModelExecutionUnwraps(t *testing.T) {
	e := ModelExecution("text_moderation_v1", "timeout", context.DeadlineExceeded)
	if !errors.Is(e, context.DeadlineExceeded) {
		t.Fatalf("expected wrapped cause")
	}
	if e.Details["model"] != "text_moderation_v1" || e.Details["error_type"] != "timeout" {
		t.Fatalf("details: %+v", e.Details)
	}
}

func TestStatusOfPlainError(t *testing.T) {
	if StatusOf(errors.New("x")) != http.StatusInternalServerError {
		t.Fatalf("plain errors should map to 500")
	}
	if CodeOf(errors.New("x")) != "internal_error" {
		t.Fatalf("plain errors should map to internal_error")
	}
}
