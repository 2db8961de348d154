// Package cache memoises expensive AI computations in process memory with a
// per-class TTL and a hard size bound.
package cache

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/yungbote/learnmate-backend/internal/ai/config"
	"github.com/yungbote/learnmate-backend/internal/observability"
	"github.com/yungbote/learnmate-backend/internal/platform/logger"
)

const (
	DefaultMaxEntries = 1000
	DefaultEvictBatch = 100
)

// KV is a keyword-style key component rendered as "k:v".
type KV struct {
	K string
	V any
}

type entry struct {
	storedAt time.Time
	value    any
}

// ResultCache is safe for concurrent use.
type ResultCache struct {
	cfg        config.Config
	log        *logger.Logger
	metrics    *observability.Metrics
	now        func() time.Time
	maxEntries int
	evictBatch int

	mu      sync.Mutex
	entries map[string]entry
	group   singleflight.Group
}

type Option func(*ResultCache)

func WithMaxEntries(n int) Option {
	return func(c *ResultCache) {
		if n > 0 {
			c.maxEntries = n
		}
	}
}

func WithEvictBatch(n int) Option {
	return func(c *ResultCache) {
		if n > 0 {
			c.evictBatch = n
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *ResultCache) {
		if now != nil {
			c.now = now
		}
	}
}

func WithMetrics(m *observability.Metrics) Option {
	return func(c *ResultCache) { c.metrics = m }
}

func New(cfg config.Config, log *logger.Logger, opts ...Option) *ResultCache {
	c := &ResultCache{
		cfg:        cfg,
		log:        logger.OrNop(log).With("service", "ResultCache"),
		now:        time.Now,
		maxEntries: DefaultMaxEntries,
		evictBatch: DefaultEvictBatch,
		entries:    make(map[string]entry),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Key builds the cache key: name, then positional args, then KV args sorted
// by key. Callers must pass args whose %v rendering is stable.
func Key(name string, args ...any) string {
	parts := make([]string, 0, len(args)+1)
	parts = append(parts, name)
	var kws []KV
	for _, a := range args {
		if kv, ok := a.(KV); ok {
			kws = append(kws, kv)
			continue
		}
		parts = append(parts, fmt.Sprint(a))
	}
	sort.SliceStable(kws, func(i, j int) bool { return kws[i].K < kws[j].K })
	for _, kv := range kws {
		parts = append(parts, kv.K+":"+fmt.Sprint(kv.V))
	}
	return strings.Join(parts, ":")
}

// Do returns the cached result for (name, args) when it is younger than the
// TTL configured under ttlKey; otherwise it runs fn and caches a successful
// result. Errors are never cached.
func Do[T any](ctx context.Context, c *ResultCache, ttlKey, name string, args []any, fn func(ctx context.Context) (T, error)) (T, error) {
	if c == nil || !c.cfg.CacheEnabled {
		return fn(ctx)
	}
	key := Key(name, args...)
	ttl := c.cfg.TTLFor(ttlKey)

	if v, ok := c.lookup(key, ttl); ok {
		if typed, ok := v.(T); ok {
			c.log.Debug("Cache hit", "operation", name)
			c.metrics.IncCacheOp("memory", "get", "hit")
			return typed, nil
		}
	}
	c.metrics.IncCacheOp("memory", "get", "miss")

	v, err, _ := c.group.Do(key, func() (any, error) {
		if v, ok := c.lookup(key, ttl); ok {
			return v, nil
		}
		out, err := fn(ctx)
		if err != nil {
			return nil, err
		}
		c.store(key, out)
		return out, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	typed, ok := v.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("cache: %s produced %T", name, v)
	}
	return typed, nil
}

func (c *ResultCache) lookup(key string, ttl time.Duration) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if c.now().Sub(e.storedAt) >= ttl {
		return nil, false
	}
	return e.value, true
}

func (c *ResultCache) store(key string, v any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry{storedAt: c.now(), value: v}
	if len(c.entries) > c.maxEntries {
		c.evictOldestLocked()
	}
}

// evictOldestLocked drops the evictBatch entries with the oldest insertion time.
func (c *ResultCache) evictOldestLocked() {
	type aged struct {
		key string
		at  time.Time
	}
	all := make([]aged, 0, len(c.entries))
	for k, e := range c.entries {
		all = append(all, aged{k, e.storedAt})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].at.Before(all[j].at) })
	n := c.evictBatch
	if n > len(all) {
		n = len(all)
	}
	for _, a := range all[:n] {
		delete(c.entries, a.key)
	}
	c.metrics.IncCacheOp("memory", "evict", "ok")
}

func (c *ResultCache) Invalidate(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

func (c *ResultCache) Clear() {
	c.mu.Lock()
	c.entries = make(map[string]entry)
	c.mu.Unlock()
}

func (c *ResultCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
