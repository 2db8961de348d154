package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/yungbote/learnmate-backend/internal/http/handlers"
	httpMW "github.com/yungbote/learnmate-backend/internal/http/middleware"
	"github.com/yungbote/learnmate-backend/internal/observability"
	"github.com/yungbote/learnmate-backend/internal/platform/logger"
)

const serviceName = "learnmate-backend"

type RouterConfig struct {
	Log     *logger.Logger
	Metrics *observability.Metrics
	Tracing bool

	AvatarHandler     *httpH.AvatarHandler
	ContentHandler    *httpH.ContentHandler
	ModerationHandler *httpH.ModerationHandler
	ExperimentHandler *httpH.ExperimentHandler
	ClassroomHandler  *httpH.ClassroomHandler
	CacheHandler      *httpH.CacheHandler

	HealthHandler *httpH.HealthHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.Tracing {
		r.Use(otelgin.Middleware(serviceName))
	}
	r.Use(httpMW.AttachRequestContext())
	r.Use(httpMW.RequestLogger(cfg.Log))
	r.Use(httpMW.Metrics(cfg.Metrics))
	r.Use(httpMW.CORS())

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
		r.GET("/readyz", cfg.HealthHandler.Ready)
	}

	api := r.Group("/api")

	// Avatar
	if h := cfg.AvatarHandler; h != nil {
		api.POST("/avatar/message", h.Message)
		api.POST("/avatar/message/stream", h.StreamMessage)
		api.GET("/avatar/:user_id/context", h.GetContext)
		api.DELETE("/avatar/:user_id/context", h.ResetContext)
		api.PUT("/avatar/:user_id/persona", h.SetPersona)
		api.GET("/avatar/:user_id/preferences", h.GetPreferences)
		api.PUT("/avatar/:user_id/preferences", h.UpdatePreferences)
		api.POST("/avatar/:user_id/tasks", h.AddTask)
		api.POST("/avatar/:user_id/tasks/:task_id/complete", h.CompleteTask)
		api.GET("/avatar/:user_id/progress", h.Progress)
	}

	// Content
	if h := cfg.ContentHandler; h != nil {
		api.POST("/content/search", h.Search)
	}

	// Moderation
	if h := cfg.ModerationHandler; h != nil {
		api.POST("/moderation/text", h.Text)
		api.POST("/moderation/image", h.Image)
		api.POST("/moderation/user-content", h.UserContent)
	}

	// Experiments
	if h := cfg.ExperimentHandler; h != nil {
		api.GET("/experiments/:id/variant", h.Variant)
		api.POST("/experiments/:id/outcome", h.Outcome)
	}

	// Classroom
	if h := cfg.ClassroomHandler; h != nil {
		api.POST("/classroom/quiz", h.Quiz)
		api.POST("/classroom/lesson", h.Lesson)
		api.POST("/classroom/curriculum", h.Curriculum)
		api.POST("/classroom/pathway", h.Pathway)
		api.POST("/classroom/assemble", h.Assemble)
		api.POST("/classroom/spaced-repetition", h.SpacedRepetition)
	}

	// Cache
	if h := cfg.CacheHandler; h != nil {
		api.GET("/cache/stats", h.Stats)
		api.POST("/cache/clear-expired", h.ClearExpired)
	}

	return r
}
