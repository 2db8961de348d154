package app

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/yungbote/learnmate-backend/internal/ai/config"
	"github.com/yungbote/learnmate-backend/internal/data/cachestore"
	"github.com/yungbote/learnmate-backend/internal/data/docstore"
	"github.com/yungbote/learnmate-backend/internal/observability"
	"github.com/yungbote/learnmate-backend/internal/platform/gcp"
	"github.com/yungbote/learnmate-backend/internal/platform/logger"
)

type Stores struct {
	Cache cachestore.Store
	Docs  docstore.Store
	// DB is set for the gorm-backed providers.
	DB *gorm.DB
}

func wireStores(ctx context.Context, log *logger.Logger, cfg Config, aiCfg config.Config, clients Clients, metrics *observability.Metrics) (Stores, error) {
	log.Info("Wiring stores...", "docstore", cfg.DocstoreProvider)
	var s Stores

	if clients.Redis != nil {
		cs, err := cachestore.NewRedis(log, clients.Redis, aiCfg.Cache, metrics)
		if err != nil {
			return Stores{}, fmt.Errorf("init redis cache store: %w", err)
		}
		s.Cache = cs
	} else {
		log.Warn("REDIS_ADDR not set; using in-memory cache store")
		s.Cache = cachestore.NewMemory(aiCfg.Cache)
	}

	var err error
	switch cfg.DocstoreProvider {
	case "postgres":
		s.Docs, s.DB, err = docstore.OpenPostgres(log, cfg.PostgresDSN)
	case "sqlite", "":
		s.Docs, s.DB, err = docstore.OpenSQLite(log, cfg.SQLitePath)
	case "badger":
		s.Docs, err = docstore.OpenBadger(log, cfg.BadgerDir)
	case "firestore":
		s.Docs, err = docstore.OpenFirestore(ctx, log, cfg.FirestoreProject, gcp.ClientOptionsFromEnv()...)
	default:
		err = fmt.Errorf("unknown DOCSTORE_PROVIDER %q", cfg.DocstoreProvider)
	}
	if err != nil {
		_ = s.Cache.Close()
		return Stores{}, fmt.Errorf("init document store: %w", err)
	}
	return s, nil
}

func (s *Stores) Close() error {
	if s == nil {
		return nil
	}
	var errs []error
	if s.Docs != nil {
		errs = append(errs, s.Docs.Close())
	}
	if s.Cache != nil {
		errs = append(errs, s.Cache.Close())
	}
	return errors.Join(errs...)
}
