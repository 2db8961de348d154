package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/goleak"

	"github.com/yungbote/learnmate-backend/internal/ai/config"
	"github.com/yungbote/learnmate-backend/internal/ai/experiments"
	"github.com/yungbote/learnmate-backend/internal/ai/llm"
	"github.com/yungbote/learnmate-backend/internal/ai/llm/llmtest"
	"github.com/yungbote/learnmate-backend/internal/ai/moderation"
	"github.com/yungbote/learnmate-backend/internal/ai/quota"
	"github.com/yungbote/learnmate-backend/internal/avatar"
	"github.com/yungbote/learnmate-backend/internal/data/cachestore"
	"github.com/yungbote/learnmate-backend/internal/learning/classroom"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	goleak.VerifyTestMain(m)
}

type testServer struct {
	engine *gin.Engine
	llm    *llmtest.Fake
	cache  *cachestore.Memory
}

func newTestServer(t *testing.T, opts ...avatar.Option) *testServer {
	t.Helper()
	cfg := config.Default()
	ts := &testServer{
		llm:   &llmtest.Fake{Text: "Plants turn light into sugar."},
		cache: cachestore.NewMemory(cfg.Cache),
	}
	mod := moderation.New(cfg, nil, nil, nil, nil)
	store := avatar.NewContextStore(nil, ts.cache, nil, cfg.Cache.TTLDuration())
	svc := avatar.NewService(cfg, nil, store, avatar.Deps{LLM: ts.llm, Moderator: mod}, opts...)

	exp := experiments.NewManager(cfg, nil, nil)
	exp.Register(experiments.Experiment{
		Name:     "prompt_style",
		Variants: []experiments.Variant{{Name: "a"}, {Name: "b"}},
	})

	ah := NewAvatarHandler(nil, svc)
	mh := NewModerationHandler(mod)
	eh := NewExperimentHandler(exp)
	ch := NewClassroomHandler(nil)
	kh := NewCacheHandler(ts.cache)
	hh := NewHealthHandler(map[string]Check{
		"cache": func(context.Context) error { return nil },
	})

	r := gin.New()
	r.GET("/healthcheck", hh.HealthCheck)
	r.GET("/readyz", hh.Ready)
	r.POST("/api/avatar/message", ah.Message)
	r.POST("/api/avatar/message/stream", ah.StreamMessage)
	r.GET("/api/avatar/:user_id/context", ah.GetContext)
	r.DELETE("/api/avatar/:user_id/context", ah.ResetContext)
	r.PUT("/api/avatar/:user_id/persona", ah.SetPersona)
	r.POST("/api/avatar/:user_id/tasks", ah.AddTask)
	r.POST("/api/moderation/text", mh.Text)
	r.GET("/api/experiments/:id/variant", eh.Variant)
	r.POST("/api/experiments/:id/outcome", eh.Outcome)
	r.POST("/api/classroom/spaced-repetition", ch.SpacedRepetition)
	r.GET("/api/cache/stats", kh.Stats)
	r.POST("/api/cache/clear-expired", kh.ClearExpired)
	ts.engine = r
	return ts
}

func (ts *testServer) do(method, path string, body any) *httptest.ResponseRecorder {
	var rd *bytes.Reader
	switch b := body.(type) {
	case nil:
		rd = bytes.NewReader(nil)
	case string:
		rd = bytes.NewReader([]byte(b))
	default:
		raw, _ := json.Marshal(b)
		rd = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	ts.engine.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return out
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	env, ok := decode(t, w)["error"].(map[string]any)
	if !ok {
		t.Fatalf("no error envelope in %s", w.Body.String())
	}
	code, _ := env["code"].(string)
	return code
}

func TestHealthAndReady(t *testing.T) {
	ts := newTestServer(t)
	if w := ts.do(http.MethodGet, "/healthcheck", nil); w.Code != http.StatusOK || w.Body.String() != "ok" {
		t.Fatalf("healthcheck: %d %q", w.Code, w.Body.String())
	}
	w := ts.do(http.MethodGet, "/readyz", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("readyz: %d", w.Code)
	}
	checks := decode(t, w)["checks"].(map[string]any)
	if checks["cache"] != "ok" {
		t.Fatalf("checks %v", checks)
	}
}

func TestReadyReportsFailingCheck(t *testing.T) {
	hh := NewHealthHandler(map[string]Check{
		"db": func(context.Context) error { return errors.New("connection refused") },
	})
	r := gin.New()
	r.GET("/readyz", hh.Ready)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "connection refused") {
		t.Fatalf("body %s", w.Body.String())
	}
}

func TestAvatarMessage(t *testing.T) {
	ts := newTestServer(t)
	w := ts.do(http.MethodPost, "/api/avatar/message", map[string]any{
		"user_id": "u1",
		"message": "explain photosynthesis",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status %d: %s", w.Code, w.Body.String())
	}
	reply := decode(t, w)["reply"].(map[string]any)
	if reply["content"] != "Plants turn light into sugar." {
		t.Fatalf("content %v", reply["content"])
	}
	if reply["agent"] != string(avatar.AgentTutor) || reply["topic"] != "photosynthesis" {
		t.Fatalf("reply %v", reply)
	}

	w = ts.do(http.MethodGet, "/api/avatar/u1/context", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("context status %d", w.Code)
	}
	ctx := decode(t, w)["context"].(map[string]any)
	if hist, _ := ctx["conversation_history"].([]any); len(hist) != 2 {
		t.Fatalf("history %v", ctx["conversation_history"])
	}
}

func TestAvatarMessageValidation(t *testing.T) {
	ts := newTestServer(t)
	cases := []struct {
		name string
		body any
	}{
		{"malformed json", `{"user_id":`},
		{"missing message", map[string]any{"user_id": "u1"}},
		{"missing user", map[string]any{"message": "hi"}},
		{"unknown persona", map[string]any{"user_id": "u1", "message": "hi", "persona": "pirate"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := ts.do(http.MethodPost, "/api/avatar/message", tc.body)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("status %d: %s", w.Code, w.Body.String())
			}
			if code := errorCode(t, w); code != "invalid_request" {
				t.Fatalf("code %q", code)
			}
		})
	}
}

func TestAvatarQuotaSetsRetryAfter(t *testing.T) {
	ts := newTestServer(t, avatar.WithQuota(quota.New(1, 1)))
	body := map[string]any{"user_id": "u1", "message": "explain gravity"}
	if w := ts.do(http.MethodPost, "/api/avatar/message", body); w.Code != http.StatusOK {
		t.Fatalf("first call %d", w.Code)
	}
	w := ts.do(http.MethodPost, "/api/avatar/message", body)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status %d", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Fatal("missing Retry-After")
	}
	if code := errorCode(t, w); code != "ai_quota_exceeded" {
		t.Fatalf("code %q", code)
	}
}

func TestAvatarContextNotFound(t *testing.T) {
	ts := newTestServer(t)
	w := ts.do(http.MethodGet, "/api/avatar/nobody/context", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("status %d", w.Code)
	}
}

func TestAvatarStreamMessage(t *testing.T) {
	ts := newTestServer(t)
	w := ts.do(http.MethodPost, "/api/avatar/message/stream", map[string]any{
		"user_id": "u1",
		"message": "explain photosynthesis",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type %q", ct)
	}
	body := w.Body.String()
	if strings.Count(body, "event: delta\n") != 5 {
		t.Fatalf("expected 5 deltas in %q", body)
	}
	if !strings.Contains(body, "event: done\n") {
		t.Fatalf("no done event in %q", body)
	}
	if strings.Index(body, "event: done") < strings.LastIndex(body, "event: delta") {
		t.Fatal("done sent before last delta")
	}
}

func TestAvatarStreamErrorBeforeFirstDelta(t *testing.T) {
	ts := newTestServer(t)
	w := ts.do(http.MethodPost, "/api/avatar/message/stream", map[string]any{"user_id": "u1"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status %d", w.Code)
	}
	if strings.Contains(w.Body.String(), "event:") {
		t.Fatalf("unexpected SSE body %q", w.Body.String())
	}
}

func TestAvatarStreamErrorAfterDelta(t *testing.T) {
	ts := newTestServer(t)
	ts.llm.StreamFn = func(_ context.Context, _ []llm.Message, onDelta func(string) error) (string, error) {
		if err := onDelta("Plants "); err != nil {
			return "", err
		}
		return "Plants ", errors.New("connection reset")
	}
	w := ts.do(http.MethodPost, "/api/avatar/message/stream", map[string]any{
		"user_id": "u1",
		"message": "explain photosynthesis",
	})
	body := w.Body.String()
	if strings.Count(body, "event: delta\n") != 1 || !strings.Contains(body, "event: error\n") {
		t.Fatalf("expected one delta then an error event, got %q", body)
	}
	if strings.Contains(body, "event: done") || strings.Contains(body, "trouble") {
		t.Fatalf("partial reply must not be completed, got %q", body)
	}
	if !strings.Contains(body, "model_execution") {
		t.Fatalf("error event should carry the model error code: %q", body)
	}
}

func TestAvatarPersonaAndReset(t *testing.T) {
	ts := newTestServer(t)
	w := ts.do(http.MethodPut, "/api/avatar/u1/persona", map[string]any{"persona": "Coach"})
	if w.Code != http.StatusOK {
		t.Fatalf("persona status %d: %s", w.Code, w.Body.String())
	}
	if got := decode(t, w)["persona"]; got != "coach" {
		t.Fatalf("persona %v", got)
	}
	if w := ts.do(http.MethodDelete, "/api/avatar/u1/context", nil); w.Code != http.StatusNoContent {
		t.Fatalf("reset status %d", w.Code)
	}
	if w := ts.do(http.MethodGet, "/api/avatar/u1/context", nil); w.Code != http.StatusNotFound {
		t.Fatalf("after reset %d", w.Code)
	}
}

func TestAvatarAddTask(t *testing.T) {
	ts := newTestServer(t)
	w := ts.do(http.MethodPost, "/api/avatar/u1/tasks", map[string]any{"title": "Read chapter 3"})
	if w.Code != http.StatusCreated {
		t.Fatalf("status %d: %s", w.Code, w.Body.String())
	}
	task := decode(t, w)["task"].(map[string]any)
	if task["title"] != "Read chapter 3" || task["id"] == "" {
		t.Fatalf("task %v", task)
	}
}

func TestModerationText(t *testing.T) {
	ts := newTestServer(t)
	w := ts.do(http.MethodPost, "/api/moderation/text", map[string]any{"text": "I hate you and want violent revenge"})
	if w.Code != http.StatusOK {
		t.Fatalf("status %d", w.Code)
	}
	if safe := decode(t, w)["is_safe"]; safe != false {
		t.Fatalf("is_safe %v", safe)
	}
	if w := ts.do(http.MethodPost, "/api/moderation/text", map[string]any{"text": " "}); w.Code != http.StatusBadRequest {
		t.Fatalf("empty text status %d", w.Code)
	}
}

func TestExperimentVariant(t *testing.T) {
	ts := newTestServer(t)
	w := ts.do(http.MethodGet, "/api/experiments/prompt_style/variant?user_id=u1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status %d", w.Code)
	}
	first := decode(t, w)["variant"]
	if first != "a" && first != "b" {
		t.Fatalf("variant %v", first)
	}
	again := decode(t, ts.do(http.MethodGet, "/api/experiments/prompt_style/variant?user_id=u1", nil))["variant"]
	if again != first {
		t.Fatalf("assignment not stable: %v then %v", first, again)
	}
	if w := ts.do(http.MethodGet, "/api/experiments/prompt_style/variant", nil); w.Code != http.StatusBadRequest {
		t.Fatalf("missing user status %d", w.Code)
	}
	if got := decode(t, ts.do(http.MethodGet, "/api/experiments/unknown/variant?user_id=u1", nil))["variant"]; got != experiments.DefaultVariant {
		t.Fatalf("unknown experiment variant %v", got)
	}
}

func TestExperimentOutcome(t *testing.T) {
	ts := newTestServer(t)
	w := ts.do(http.MethodPost, "/api/experiments/prompt_style/outcome", map[string]any{"variant": "a", "outcome": 0})
	if w.Code != http.StatusOK {
		t.Fatalf("status %d: %s", w.Code, w.Body.String())
	}
	if w := ts.do(http.MethodPost, "/api/experiments/prompt_style/outcome", map[string]any{"variant": "a"}); w.Code != http.StatusBadRequest {
		t.Fatalf("missing outcome status %d", w.Code)
	}
}

func TestSpacedRepetition(t *testing.T) {
	ts := newTestServer(t)
	w := ts.do(http.MethodPost, "/api/classroom/spaced-repetition", map[string]any{
		"topics": []string{"fractions"},
		"pace":   "fast",
		"from":   "2026-01-01T00:00:00Z",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status %d: %s", w.Code, w.Body.String())
	}
	var out struct {
		Schedule []classroom.ReviewItem `json:"schedule"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatal(err)
	}
	if len(out.Schedule) != 5 {
		t.Fatalf("schedule %v", out.Schedule)
	}
	from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	if !out.Schedule[0].Due.Equal(from.AddDate(0, 0, 1)) {
		t.Fatalf("first due %v", out.Schedule[0].Due)
	}
	if !out.Schedule[1].Due.Equal(from.AddDate(0, 0, 8)) {
		t.Fatalf("second due %v", out.Schedule[1].Due)
	}

	if w := ts.do(http.MethodPost, "/api/classroom/spaced-repetition", map[string]any{"topics": []string{}}); w.Code != http.StatusBadRequest {
		t.Fatalf("empty topics status %d", w.Code)
	}
}

func TestCacheStatsAndClear(t *testing.T) {
	ts := newTestServer(t)
	ts.cache.SetPersistent("legacy", []byte("v"))
	if err := ts.cache.Set(context.Background(), "fresh", []byte("v"), time.Minute); err != nil {
		t.Fatal(err)
	}

	w := ts.do(http.MethodPost, "/api/cache/clear-expired", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("clear status %d", w.Code)
	}
	if n := decode(t, w)["updated"]; n != float64(1) {
		t.Fatalf("updated %v", n)
	}
	w = ts.do(http.MethodGet, "/api/cache/stats", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("stats status %d", w.Code)
	}
	if _, ok := decode(t, w)["stats"].(map[string]any); !ok {
		t.Fatalf("stats body %s", w.Body.String())
	}
}
