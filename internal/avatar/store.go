package avatar

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/yungbote/learnmate-backend/internal/data/cachestore"
	"github.com/yungbote/learnmate-backend/internal/data/docstore"
	"github.com/yungbote/learnmate-backend/internal/platform/logger"
)

const (
	ContextCollection = "avatar_contexts"
	contextKeyPrefix  = "context:"
)

// ContextStore persists contexts in the cache with the document store as the
// durable copy. Either side may be nil.
type ContextStore struct {
	cache cachestore.Store
	docs  docstore.Collection
	ttl   time.Duration
	log   *logger.Logger
}

func NewContextStore(log *logger.Logger, cache cachestore.Store, docs docstore.Store, ttl time.Duration) *ContextStore {
	s := &ContextStore{cache: cache, ttl: ttl, log: logger.OrNop(log).With("component", "ContextStore")}
	if docs != nil {
		s.docs = docs.Collection(ContextCollection)
	}
	return s
}

func contextKey(userID string) string { return contextKeyPrefix + userID }

// Load returns the stored context or nil when neither store has one.
func (s *ContextStore) Load(ctx context.Context, userID string) (*Context, error) {
	if s.cache != nil {
		c, ok, err := cachestore.GetJSON[*Context](ctx, s.cache, contextKey(userID))
		switch {
		case err != nil:
			s.log.Warn("Context cache read failed", "user_id", userID, "error", err)
		case ok && c != nil:
			c.normalize()
			return c, nil
		}
	}
	if s.docs == nil {
		return nil, nil
	}
	data, err := s.docs.Get(ctx, userID)
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load context %s: %w", userID, err)
	}
	c, err := decodeContext(data)
	if err != nil {
		return nil, fmt.Errorf("decode context %s: %w", userID, err)
	}
	if s.cache != nil {
		if err := cachestore.SetJSON(ctx, s.cache, contextKey(userID), c, s.ttl); err != nil {
			s.log.Warn("Context cache backfill failed", "user_id", userID, "error", err)
		}
	}
	return c, nil
}

// Save writes the cache first and then the document store.
func (s *ContextStore) Save(ctx context.Context, c *Context) error {
	var errs []error
	if s.cache != nil {
		if err := cachestore.SetJSON(ctx, s.cache, contextKey(c.UserID), c, s.ttl); err != nil {
			errs = append(errs, fmt.Errorf("cache: %w", err))
		}
	}
	if s.docs != nil {
		data, err := encodeContext(c)
		if err == nil {
			err = s.docs.Set(ctx, c.UserID, data)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("docstore: %w", err))
		}
	}
	return errors.Join(errs...)
}

func (s *ContextStore) Delete(ctx context.Context, userID string) error {
	var errs []error
	if s.cache != nil {
		if err := s.cache.Delete(ctx, contextKey(userID)); err != nil {
			errs = append(errs, fmt.Errorf("cache: %w", err))
		}
	}
	if s.docs != nil {
		if err := s.docs.Delete(ctx, userID); err != nil && !errors.Is(err, docstore.ErrNotFound) {
			errs = append(errs, fmt.Errorf("docstore: %w", err))
		}
	}
	return errors.Join(errs...)
}

func encodeContext(c *Context) (map[string]any, error) {
	raw, err := json.Marshal(c)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func decodeContext(data map[string]any) (*Context, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	var c Context
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, err
	}
	c.normalize()
	return &c, nil
}
