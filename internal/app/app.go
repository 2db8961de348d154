package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/learnmate-backend/internal/ai/config"
	"github.com/yungbote/learnmate-backend/internal/http"
	"github.com/yungbote/learnmate-backend/internal/observability"
	"github.com/yungbote/learnmate-backend/internal/platform/logger"
)

type App struct {
	Log      *logger.Logger
	Cfg      Config
	AI       config.Config
	Metrics  *observability.Metrics
	Clients  Clients
	Stores   Stores
	Services Services
	Router   *gin.Engine

	server       *http.Server
	otelShutdown func(context.Context) error
	cancel       context.CancelFunc
}

func New() (*App, error) {
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	log.Info("Loading environment variables...")
	cfg := LoadConfig(log)

	aiCfg, err := config.Load(cfg.AIConfigFile)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("load ai config: %w", err)
	}

	ctx := context.Background()
	otelShutdown := observability.InitOTel(ctx, log, observability.OtelConfig{
		ServiceName: "learnmate-backend",
		Environment: cfg.Environment,
		Version:     cfg.Version,
	})
	metrics := observability.NewMetrics()

	clients, err := wireClients(ctx, log, cfg, aiCfg, metrics)
	if err != nil {
		_ = otelShutdown(ctx)
		log.Sync()
		return nil, err
	}
	stores, err := wireStores(ctx, log, cfg, aiCfg, clients, metrics)
	if err != nil {
		clients.Close()
		_ = otelShutdown(ctx)
		log.Sync()
		return nil, err
	}
	services, err := wireServices(log, cfg, aiCfg, clients, stores, metrics)
	if err != nil {
		_ = stores.Close()
		clients.Close()
		_ = otelShutdown(ctx)
		log.Sync()
		return nil, err
	}
	handlers := wireHandlers(log, services, stores)
	router := wireRouter(log, metrics, handlers)

	return &App{
		Log:          log,
		Cfg:          cfg,
		AI:           aiCfg,
		Metrics:      metrics,
		Clients:      clients,
		Stores:       stores,
		Services:     services,
		Router:       router,
		server:       &http.Server{Engine: router},
		otelShutdown: otelShutdown,
	}, nil
}

// Start launches background work: the avatar janitor and, when enabled, the
// metrics endpoint and store collectors.
func (a *App) Start() {
	if a == nil || a.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel

	if a.Services.Avatar != nil {
		go a.Services.Avatar.RunJanitor(ctx, a.Cfg.JanitorEvery)
	}
	if observability.Enabled() {
		a.Metrics.StartServer(ctx, a.Log, a.Cfg.MetricsAddr)
		if a.Clients.Redis != nil {
			a.Metrics.StartRedisCollector(ctx, a.Log, a.Clients.Redis)
		}
		if a.Stores.DB != nil {
			a.Metrics.StartDBCollector(ctx, a.Log, a.Stores.DB)
		}
	}
}

func (a *App) Run(addr string) error {
	if a == nil || a.server == nil {
		return fmt.Errorf("app not initialized")
	}
	return a.server.Run(addr)
}

// Close stops background work and releases clients in reverse wiring order.
func (a *App) Close() {
	if a == nil {
		return
	}
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var errs []error
	if a.server != nil {
		errs = append(errs, a.server.Shutdown(ctx))
	}
	if a.Services.Resources != nil {
		errs = append(errs, a.Services.Resources.Shutdown(ctx))
	}
	errs = append(errs, a.Stores.Close())
	a.Clients.Close()
	if a.otelShutdown != nil {
		errs = append(errs, a.otelShutdown(ctx))
	}
	if err := errors.Join(errs...); err != nil && a.Log != nil {
		a.Log.Warn("Shutdown finished with errors", "error", err)
	}
	if a.Log != nil {
		a.Log.Sync()
	}
}
