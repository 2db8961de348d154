package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/yungbote/learnmate-backend/internal/platform/ctxutil"
	"github.com/yungbote/learnmate-backend/internal/platform/logger"
)

func TestRequestContextCarriesLearnerFromRoute(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(AttachRequestContext())

	var got ctxutil.TraceData
	r.GET("/api/avatar/:user_id/context", func(c *gin.Context) {
		if td := ctxutil.GetTraceData(c.Request.Context()); td != nil {
			got = *td
		}
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/api/avatar/u-7/context", nil)
	req.Header.Set("X-Request-Id", "req-1")
	req.Header.Set("X-Session-Id", "sess-9")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if got.UserID != "u-7" || got.SessionID != "sess-9" || got.RequestID != "req-1" || got.TraceID == "" {
		t.Fatalf("unexpected trace data %+v", got)
	}
	if rec.Header().Get("X-Request-Id") != "req-1" || rec.Header().Get("X-Trace-Id") != got.TraceID {
		t.Fatalf("ids not echoed: %v", rec.Header())
	}
}

func TestBindLearnerUpdatesTraceDataAndLog(t *testing.T) {
	gin.SetMode(gin.TestMode)
	core, logs := observer.New(zapcore.InfoLevel)
	r := gin.New()
	r.Use(AttachRequestContext())
	r.Use(RequestLogger(&logger.Logger{SugaredLogger: zap.New(core).Sugar()}))

	var got ctxutil.TraceData
	r.POST("/api/avatar/message", func(c *gin.Context) {
		BindLearner(c, " u-1 ", "s-1")
		got = *ctxutil.GetTraceData(c.Request.Context())
		c.Status(http.StatusOK)
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/avatar/message", nil))

	if got.UserID != "u-1" || got.SessionID != "s-1" {
		t.Fatalf("body learner not bound: %+v", got)
	}
	entries := logs.FilterMessage("HTTP request").All()
	if len(entries) != 1 {
		t.Fatalf("expected one request log, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	for _, k := range []string{"user_id", "session_id", "trace_id", "request_id"} {
		if _, ok := fields[k]; !ok {
			t.Fatalf("request log missing %s: %v", k, fields)
		}
	}
}

func TestBindLearnerKeepsRouteValuesWhenBodyIsEmpty(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(AttachRequestContext())

	var uid string
	r.PUT("/api/avatar/:user_id/persona", func(c *gin.Context) {
		BindLearner(c, "", "")
		uid = ctxutil.GetTraceData(c.Request.Context()).UserID
		c.Status(http.StatusOK)
	})
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPut, "/api/avatar/u-3/persona", nil))
	if uid != "u-3" {
		t.Fatalf("route learner overwritten: %q", uid)
	}
}
