package app

import (
	"fmt"

	"github.com/yungbote/learnmate-backend/internal/ai/cache"
	"github.com/yungbote/learnmate-backend/internal/ai/config"
	"github.com/yungbote/learnmate-backend/internal/ai/experiments"
	"github.com/yungbote/learnmate-backend/internal/ai/moderation"
	"github.com/yungbote/learnmate-backend/internal/ai/quota"
	"github.com/yungbote/learnmate-backend/internal/ai/resources"
	"github.com/yungbote/learnmate-backend/internal/ai/tiered"
	"github.com/yungbote/learnmate-backend/internal/avatar"
	"github.com/yungbote/learnmate-backend/internal/content/retrieval"
	"github.com/yungbote/learnmate-backend/internal/learning/classroom"
	"github.com/yungbote/learnmate-backend/internal/observability"
	"github.com/yungbote/learnmate-backend/internal/platform/breaker"
	"github.com/yungbote/learnmate-backend/internal/platform/logger"
)

type Services struct {
	Results     *cache.ResultCache
	Tiers       *tiered.Selector
	Experiments *experiments.Manager
	Resources   *resources.Manager
	Moderator   *moderation.Moderator
	Quota       *quota.Limiter
	Retrieval   *retrieval.Service
	Classroom   *classroom.Service
	Avatar      *avatar.Service
}

func wireServices(log *logger.Logger, cfg Config, aiCfg config.Config, clients Clients, stores Stores, metrics *observability.Metrics) (Services, error) {
	log.Info("Wiring services...")
	var s Services

	s.Results = cache.New(aiCfg, log, cache.WithMetrics(metrics))
	s.Tiers = tiered.New(aiCfg, log, metrics)

	s.Experiments = experiments.NewManager(aiCfg, log, metrics)
	if cfg.ExperimentsFile != "" {
		if _, err := s.Experiments.LoadFile(cfg.ExperimentsFile); err != nil {
			return Services{}, fmt.Errorf("load experiments: %w", err)
		}
	}

	s.Resources = resources.NewManager(log, resources.DefaultFactories(clients.LLM, clients.Embedder), metrics)

	var image moderation.ImageClassifier
	if clients.SafeSearch != nil {
		image = moderation.NewVisionImageClassifier(clients.SafeSearch, s.Resources, aiCfg)
	}
	s.Moderator = moderation.New(aiCfg, log, moderation.NewLLMTextClassifier(clients.LLM, s.Resources, aiCfg), image, metrics)

	s.Quota = quota.New(aiCfg.Quota.PerMinute, aiCfg.Quota.Burst)

	var sources []retrieval.Source
	if clients.YouTube != nil {
		sources = append(sources, &retrieval.YouTubeSource{API: clients.YouTube})
	}
	if clients.Books != nil {
		sources = append(sources, &retrieval.BooksSource{API: clients.Books})
	}
	genModel := aiCfg.Model("content_generator", "text")
	sources = append(sources,
		retrieval.NewGeneratedSource(retrieval.Course, s.Resources, genModel),
		retrieval.NewGeneratedSource(retrieval.Podcast, s.Resources, genModel),
	)
	s.Retrieval = retrieval.NewService(log, sources,
		retrieval.WithBreakers(func(name string) *breaker.Breaker {
			return breaker.New(name, breaker.Options{Timeout: aiCfg.CircuitBreakerTimeoutDuration()}, log, metrics)
		}),
		retrieval.WithModerator(s.Moderator),
		retrieval.WithRecorder(metrics),
		retrieval.WithCache(s.Results),
	)

	s.Classroom = classroom.NewService(aiCfg, log, clients.LLM,
		classroom.WithCache(s.Results),
		classroom.WithTiers(s.Tiers),
		classroom.WithSearch(s.Retrieval),
		classroom.WithModerator(s.Moderator),
	)

	store := avatar.NewContextStore(log, stores.Cache, stores.Docs, aiCfg.Cache.TTLDuration())
	s.Avatar = avatar.NewService(aiCfg, log, store, avatar.Deps{
		LLM:       clients.LLM,
		Model:     aiCfg.Model("avatar", "text"),
		Quiz:      s.Classroom,
		Search:    s.Retrieval,
		Moderator: s.Moderator,
	}, avatar.WithQuota(s.Quota))

	return s, nil
}
