package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/yungbote/learnmate-backend/internal/platform/ctxutil"
)

const (
	headerTraceID   = "X-Trace-Id"
	headerRequestID = "X-Request-Id"
	headerSessionID = "X-Session-Id"

	// UserIDKey is the gin context key holding the learner the request acts for.
	UserIDKey = "user_id"
	// SessionIDKey is the gin context key holding the avatar session id.
	SessionIDKey = "session_id"
)

// AttachRequestContext stores trace and learner identity on the request
// context. The learner comes from the :user_id route param and the avatar
// session from X-Session-Id; handlers that read them from the body call
// BindLearner once they have decoded it.
func AttachRequestContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		reqID := strings.TrimSpace(c.GetHeader(headerRequestID))
		if reqID == "" {
			reqID = uuid.New().String()
		}
		traceID := strings.TrimSpace(c.GetHeader(headerTraceID))
		if traceID == "" {
			if sc := trace.SpanContextFromContext(c.Request.Context()); sc.HasTraceID() {
				traceID = sc.TraceID().String()
			}
		}
		if traceID == "" {
			traceID = uuid.New().String()
		}
		td := &ctxutil.TraceData{
			TraceID:   traceID,
			RequestID: reqID,
			UserID:    strings.TrimSpace(c.Param("user_id")),
			SessionID: strings.TrimSpace(c.GetHeader(headerSessionID)),
		}
		c.Request = c.Request.WithContext(ctxutil.WithTraceData(c.Request.Context(), td))
		c.Set("trace_id", traceID)
		c.Set("request_id", reqID)
		setLearner(c, td.UserID, td.SessionID)
		c.Writer.Header().Set(headerTraceID, traceID)
		c.Writer.Header().Set(headerRequestID, reqID)
		c.Next()
	}
}

// BindLearner records a learner and session taken from the request body.
// Empty values leave what the route or headers already provided.
func BindLearner(c *gin.Context, userID, sessionID string) {
	userID, sessionID = strings.TrimSpace(userID), strings.TrimSpace(sessionID)
	if td := ctxutil.GetTraceData(c.Request.Context()); td != nil {
		if userID != "" {
			td.UserID = userID
		}
		if sessionID != "" {
			td.SessionID = sessionID
		}
	}
	setLearner(c, userID, sessionID)
}

func setLearner(c *gin.Context, userID, sessionID string) {
	if userID != "" {
		c.Set(UserIDKey, userID)
	}
	if sessionID != "" {
		c.Set(SessionIDKey, sessionID)
	}
}
