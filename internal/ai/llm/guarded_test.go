package llm_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/yungbote/learnmate-backend/internal/ai/llm"
	"github.com/yungbote/learnmate-backend/internal/ai/llm/llmtest"
	"github.com/yungbote/learnmate-backend/internal/platform/apierr"
	"github.com/yungbote/learnmate-backend/internal/platform/breaker"
	"github.com/yungbote/learnmate-backend/internal/platform/httpx"
)

func TestGuardMapsOpenBreaker(t *testing.T) {
	fake := &llmtest.Fake{Err: errors.New("upstream down")}
	b := breaker.New("llm", breaker.Options{Timeout: time.Hour, TripAfter: 2}, nil, nil)
	c := llm.Guard(fake, b)

	for i := 0; i < 2; i++ {
		if _, err := c.Complete(context.Background(), nil, llm.Params{}); err == nil {
			t.Fatalf("expected upstream error")
		}
	}
	_, err := c.Complete(context.Background(), nil, llm.Params{Model: "m1"})
	if !errors.Is(err, apierr.ErrModelExecution) || !errors.Is(err, breaker.ErrOpen) {
		t.Fatalf("expected model execution error wrapping ErrOpen, got %v", err)
	}
	if ae, _ := apierr.As(err); ae.Details["error_type"] != "circuit_open" || ae.Details["model"] != "m1" {
		t.Fatalf("unexpected details: %+v", ae.Details)
	}
	if fake.Calls() != 2 {
		t.Fatalf("open breaker must not reach the client, calls=%d", fake.Calls())
	}
}

func TestSplitSystem(t *testing.T) {
	sys, rest := llm.SplitSystem([]llm.Message{llm.System("a"), llm.User("u"), llm.System("b")})
	if sys != "a\n\nb" || len(rest) != 1 || rest[0].Content != "u" {
		t.Fatalf("sys=%q rest=%+v", sys, rest)
	}
}

func TestIsClientError(t *testing.T) {
	if !llm.IsClientError(&httpx.StatusError{StatusCode: 400}) {
		t.Fatalf("400 is a client error")
	}
	if llm.IsClientError(&httpx.StatusError{StatusCode: 429}) {
		t.Fatalf("429 should count against the breaker")
	}
	if llm.IsClientError(errors.New("x")) {
		t.Fatalf("plain errors are not client errors")
	}
}
