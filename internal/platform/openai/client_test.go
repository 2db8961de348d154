package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/yungbote/learnmate-backend/internal/ai/llm"
	"github.com/yungbote/learnmate-backend/internal/platform/httpx"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := NewClient(nil, nil, Config{APIKey: "test", BaseURL: srv.URL, Model: "test-model", MaxRetries: 2})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	c.backoff = time.Millisecond
	return c
}

func TestCompleteRetriesTransientStatus(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer test" {
			t.Errorf("missing bearer header")
		}
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		var req chatRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Model != "test-model" || len(req.Messages) != 2 {
			t.Errorf("unexpected request: %+v", req)
		}
		fmt.Fprint(w, `{"choices":[{"message":{"content":"hello"}}]}`)
	})

	got, err := c.Complete(context.Background(), []llm.Message{llm.System("s"), llm.User("u")}, llm.Params{})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if got != "hello" || atomic.LoadInt32(&calls) != 2 {
		t.Fatalf("got %q after %d calls", got, calls)
	}
}

func TestCompleteDoesNotRetryClientError(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":"bad"}`)
	})
	_, err := c.Complete(context.Background(), []llm.Message{llm.User("u")}, llm.Params{})
	var se *httpx.StatusError
	if !errors.As(err, &se) || se.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected status error, got %v", err)
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("expected a single attempt, got %d", calls)
	}
}

func TestGenerateJSON(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.ResponseFormat == nil || req.ResponseFormat.JSONSchema.Name != "verdict" {
			t.Errorf("expected json_schema response format")
		}
		fmt.Fprint(w, `{"choices":[{"message":{"content":"{\"is_safe\":true,\"confidence\":0.97}"}}]}`)
	})
	obj, err := c.GenerateJSON(context.Background(), "sys", "user", "verdict", map[string]any{"type": "object"}, llm.Params{})
	if err != nil {
		t.Fatalf("GenerateJSON: %v", err)
	}
	if obj["is_safe"] != true || obj["confidence"] != 0.97 {
		t.Fatalf("unexpected object: %+v", obj)
	}
}

func TestStreamForwardsDeltas(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Accept") != "text/event-stream" {
			t.Errorf("expected event-stream accept header")
		}
		w.Header().Set("Content-Type", "text/event-stream")
		for _, d := range []string{"Hel", "lo"} {
			fmt.Fprintf(w, "data: {\"choices\":[{\"delta\":{\"content\":%q}}]}\n\n", d)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	})

	var deltas []string
	full, err := c.Stream(context.Background(), []llm.Message{llm.User("hi")}, llm.Params{}, func(d string) error {
		deltas = append(deltas, d)
		return nil
	})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	if full != "Hello" || strings.Join(deltas, "|") != "Hel|lo" {
		t.Fatalf("full=%q deltas=%v", full, deltas)
	}
}

func TestEmbedOrdersByIndex(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data":[{"index":1,"embedding":[2]},{"index":0,"embedding":[1]}]}`)
	})
	vecs, err := c.Embed(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if vecs[0][0] != 1 || vecs[1][0] != 2 {
		t.Fatalf("unexpected order: %v", vecs)
	}
}

func TestStreamSSEParsesEvents(t *testing.T) {
	in := ": comment\nevent: delta\ndata: a\ndata: b\n\ndata: tail"
	var got []string
	err := streamSSE(strings.NewReader(in), func(ev, data string) error {
		got = append(got, ev+"="+data)
		return nil
	})
	if err != nil {
		t.Fatalf("streamSSE: %v", err)
	}
	if len(got) != 2 || got[0] != "delta=a\nb" || got[1] != "=tail" {
		t.Fatalf("unexpected events: %q", got)
	}
}
