package app

import (
	"context"
	"fmt"
	"strings"

	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/learnmate-backend/internal/ai/config"
	"github.com/yungbote/learnmate-backend/internal/ai/llm"
	"github.com/yungbote/learnmate-backend/internal/data/cachestore"
	"github.com/yungbote/learnmate-backend/internal/observability"
	"github.com/yungbote/learnmate-backend/internal/platform/breaker"
	"github.com/yungbote/learnmate-backend/internal/platform/gcp"
	"github.com/yungbote/learnmate-backend/internal/platform/gemini"
	"github.com/yungbote/learnmate-backend/internal/platform/logger"
	"github.com/yungbote/learnmate-backend/internal/platform/openai"
)

type Clients struct {
	LLM        llm.Client
	Embedder   llm.Embedder
	Redis      *goredis.Client
	YouTube    gcp.YouTube
	Books      gcp.Books
	SafeSearch gcp.SafeSearch
}

func wireClients(ctx context.Context, log *logger.Logger, cfg Config, aiCfg config.Config, metrics *observability.Metrics) (Clients, error) {
	log.Info("Wiring clients...")
	var c Clients

	// LLM
	var (
		base llm.Client
		emb  llm.Embedder
	)
	switch cfg.LLMProvider {
	case "gemini":
		g, err := gemini.NewClient(ctx, log, metrics, gemini.ConfigFromEnv())
		if err != nil {
			return Clients{}, fmt.Errorf("init gemini client: %w", err)
		}
		base, emb = g, g
	case "openai", "":
		o, err := openai.NewClient(log, metrics, openai.ConfigFromEnv())
		if err != nil {
			return Clients{}, fmt.Errorf("init openai client: %w", err)
		}
		base, emb = o, o
	default:
		return Clients{}, fmt.Errorf("unknown LLM_PROVIDER %q", cfg.LLMProvider)
	}
	c.LLM = llm.Guard(base, breaker.New("llm_"+base.Provider(), breaker.Options{
		Timeout:      aiCfg.CircuitBreakerTimeoutDuration(),
		IsSuccessful: func(err error) bool { return err == nil || llm.IsClientError(err) },
	}, log, metrics))
	c.Embedder = emb

	// Redis
	if strings.TrimSpace(cfg.RedisAddr) != "" {
		rdb, err := cachestore.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return Clients{}, fmt.Errorf("init redis: %w", err)
		}
		c.Redis = rdb
	}

	// Google APIs
	if cfg.YouTubeAPIKey != "" {
		yt, err := gcp.NewYouTube(ctx, log, cfg.YouTubeAPIKey, cfg.YouTubeEndpoint)
		if err != nil {
			c.Close()
			return Clients{}, fmt.Errorf("init youtube client: %w", err)
		}
		c.YouTube = yt
	} else {
		log.Warn("YOUTUBE_API_KEY not set; video search disabled")
	}
	if cfg.BooksAPIKey != "" {
		books, err := gcp.NewBooks(ctx, log, cfg.BooksAPIKey, cfg.BooksEndpoint)
		if err != nil {
			c.Close()
			return Clients{}, fmt.Errorf("init books client: %w", err)
		}
		c.Books = books
	} else {
		log.Warn("GOOGLE_BOOKS_API_KEY not set; book search disabled")
	}
	if cfg.VisionEnabled {
		ss, err := gcp.NewSafeSearch(ctx, log)
		if err != nil {
			c.Close()
			return Clients{}, fmt.Errorf("init vision client: %w", err)
		}
		c.SafeSearch = ss
	}
	return c, nil
}

func (c *Clients) Close() {
	if c == nil {
		return
	}
	if c.SafeSearch != nil {
		_ = c.SafeSearch.Close()
	}
	// Redis is closed by the cache store that owns it.
}
