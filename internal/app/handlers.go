package app

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/learnmate-backend/internal/data/docstore"
	"github.com/yungbote/learnmate-backend/internal/http"
	httpH "github.com/yungbote/learnmate-backend/internal/http/handlers"
	"github.com/yungbote/learnmate-backend/internal/observability"
	"github.com/yungbote/learnmate-backend/internal/platform/envutil"
	"github.com/yungbote/learnmate-backend/internal/platform/logger"
)

type Handlers struct {
	Health     *httpH.HealthHandler
	Avatar     *httpH.AvatarHandler
	Content    *httpH.ContentHandler
	Moderation *httpH.ModerationHandler
	Experiment *httpH.ExperimentHandler
	Classroom  *httpH.ClassroomHandler
	Cache      *httpH.CacheHandler
}

func wireHandlers(log *logger.Logger, services Services, stores Stores) Handlers {
	log.Info("Wiring handlers...")
	return Handlers{
		Health:     httpH.NewHealthHandler(readinessChecks(stores)),
		Avatar:     httpH.NewAvatarHandler(log, services.Avatar),
		Content:    httpH.NewContentHandler(services.Retrieval),
		Moderation: httpH.NewModerationHandler(services.Moderator),
		Experiment: httpH.NewExperimentHandler(services.Experiments),
		Classroom:  httpH.NewClassroomHandler(services.Classroom),
		Cache:      httpH.NewCacheHandler(stores.Cache),
	}
}

func readinessChecks(stores Stores) map[string]httpH.Check {
	checks := map[string]httpH.Check{}
	if stores.Cache != nil {
		checks["cache"] = func(ctx context.Context) error {
			_, err := stores.Cache.Size(ctx)
			return err
		}
	}
	if stores.DB != nil {
		checks["database"] = func(ctx context.Context) error {
			sqlDB, err := stores.DB.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		}
	} else if stores.Docs != nil {
		checks["documents"] = func(ctx context.Context) error {
			_, err := stores.Docs.Collection("health").Get(ctx, "ready")
			if errors.Is(err, docstore.ErrNotFound) {
				return nil
			}
			return err
		}
	}
	return checks
}

func wireRouter(log *logger.Logger, metrics *observability.Metrics, h Handlers) *gin.Engine {
	return http.NewRouter(http.RouterConfig{
		Log:               log,
		Metrics:           metrics,
		Tracing:           envutil.Bool("OTEL_ENABLED", false),
		HealthHandler:     h.Health,
		AvatarHandler:     h.Avatar,
		ContentHandler:    h.Content,
		ModerationHandler: h.Moderation,
		ExperimentHandler: h.Experiment,
		ClassroomHandler:  h.Classroom,
		CacheHandler:      h.Cache,
	})
}
