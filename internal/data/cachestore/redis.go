package cachestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/learnmate-backend/internal/ai/config"
	"github.com/yungbote/learnmate-backend/internal/platform/httpx"
	"github.com/yungbote/learnmate-backend/internal/platform/logger"
)

// Recorder receives cache operation outcomes. *observability.Metrics satisfies it.
type Recorder interface {
	IncCacheOp(layer, op, result string)
}

type redisStore struct {
	log        *logger.Logger
	rdb        goredis.UniversalClient
	ks         keyspace
	ttl        time.Duration
	maxRetries int
	retryDelay time.Duration
	useTags    bool
	tagsPrefix string
	rec        Recorder

	hits, misses, errs atomic.Int64
}

// NewRedisClient connects to addr and verifies the connection with a ping.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*goredis.Client, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, fmt.Errorf("missing REDIS_ADDR")
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		Password:    password,
		DB:          db,
		DialTimeout: 5 * time.Second,
	})
	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}

func NewRedis(log *logger.Logger, rdb goredis.UniversalClient, cfg config.CacheConfig, rec Recorder) (Store, error) {
	if rdb == nil {
		return nil, fmt.Errorf("redis client required")
	}
	parts := cfg.Partitions
	if parts < 1 {
		parts = 1
	}
	return &redisStore{
		log:        logger.OrNop(log).With("service", "RedisCacheStore"),
		rdb:        rdb,
		ks:         keyspace{prefix: cfg.Prefix, partitions: parts},
		ttl:        cfg.TTLDuration(),
		maxRetries: cfg.MaxRetries,
		retryDelay: cfg.RetryDelayDuration(),
		useTags:    cfg.UseTags,
		tagsPrefix: cfg.TagsPrefix,
		rec:        rec,
	}, nil
}

func (s *redisStore) record(op, result string) {
	if s.rec != nil {
		s.rec.IncCacheOp("redis", op, result)
	}
}

func transient(err error) bool {
	if err == nil || errors.Is(err, goredis.Nil) || errors.Is(err, context.Canceled) {
		return false
	}
	return true
}

// retry runs fn up to 1+maxRetries times on transient errors.
func (s *redisStore) retry(ctx context.Context, op string, fn func() error) error {
	var err error
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		if err = fn(); !transient(err) {
			return err
		}
		if attempt < s.maxRetries {
			s.log.Warn("Cache operation retrying", "op", op, "attempt", attempt+1, "error", err)
			if serr := httpx.Sleep(ctx, s.retryDelay); serr != nil {
				return serr
			}
		}
	}
	s.errs.Add(1)
	s.record(op, "error")
	return fmt.Errorf("%w: %s: %v", ErrUnavailable, op, err)
}

func (s *redisStore) ttlOr(ttl time.Duration) time.Duration {
	if ttl > 0 {
		return ttl
	}
	return s.ttl
}

func (s *redisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var raw []byte
	err := s.retry(ctx, "get", func() error {
		var err error
		raw, err = s.rdb.Get(ctx, s.ks.physical(key)).Bytes()
		return err
	})
	if errors.Is(err, goredis.Nil) {
		s.misses.Add(1)
		s.record("get", "miss")
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	s.hits.Add(1)
	s.record("get", "hit")
	return raw, true, nil
}

func (s *redisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	err := s.retry(ctx, "set", func() error {
		return s.rdb.Set(ctx, s.ks.physical(key), value, s.ttlOr(ttl)).Err()
	})
	if err == nil {
		s.record("set", "ok")
	}
	return err
}

func (s *redisStore) Delete(ctx context.Context, key string) error {
	return s.retry(ctx, "delete", func() error {
		return s.rdb.Del(ctx, s.ks.physical(key)).Err()
	})
}

// GetMany pipelines GETs. If the pipeline fails as a whole it falls back to
// one GET per key.
func (s *redisStore) GetMany(ctx context.Context, keys []string) (map[string][]byte, error) {
	out := make(map[string][]byte, len(keys))
	if len(keys) == 0 {
		return out, nil
	}
	cmds := make([]*goredis.StringCmd, len(keys))
	_, err := s.rdb.Pipelined(ctx, func(p goredis.Pipeliner) error {
		for i, k := range keys {
			cmds[i] = p.Get(ctx, s.ks.physical(k))
		}
		return nil
	})
	if err != nil && !errors.Is(err, goredis.Nil) {
		s.log.Warn("Pipelined get failed, falling back to single gets", "keys", len(keys), "error", err)
		for _, k := range keys {
			v, ok, gerr := s.Get(ctx, k)
			if gerr != nil {
				return out, gerr
			}
			if ok {
				out[k] = v
			}
		}
		return out, nil
	}
	for i, c := range cmds {
		v, cerr := c.Bytes()
		if cerr != nil {
			s.misses.Add(1)
			continue
		}
		s.hits.Add(1)
		out[keys[i]] = v
	}
	return out, nil
}

func (s *redisStore) SetMany(ctx context.Context, items map[string][]byte, ttl time.Duration) error {
	if len(items) == 0 {
		return nil
	}
	ttl = s.ttlOr(ttl)
	_, err := s.rdb.Pipelined(ctx, func(p goredis.Pipeliner) error {
		for k, v := range items {
			p.Set(ctx, s.ks.physical(k), v, ttl)
		}
		return nil
	})
	if err == nil {
		return nil
	}
	s.log.Warn("Pipelined set failed, falling back to single sets", "keys", len(items), "error", err)
	for k, v := range items {
		if err := s.Set(ctx, k, v, ttl); err != nil {
			return err
		}
	}
	return nil
}

func (s *redisStore) DeleteMany(ctx context.Context, keys []string) (int, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	phys := make([]string, len(keys))
	for i, k := range keys {
		phys[i] = s.ks.physical(k)
	}
	var n int64
	err := s.retry(ctx, "delete_many", func() error {
		var err error
		n, err = s.rdb.Del(ctx, phys...).Result()
		return err
	})
	return int(n), err
}

func (s *redisStore) scan(ctx context.Context, fn func(phys string) error) error {
	iter := s.rdb.Scan(ctx, 0, s.ks.pattern(), 500).Iterator()
	for iter.Next(ctx) {
		if err := fn(iter.Val()); err != nil {
			return err
		}
	}
	if err := iter.Err(); err != nil {
		s.errs.Add(1)
		return fmt.Errorf("%w: scan: %v", ErrUnavailable, err)
	}
	return nil
}

func (s *redisStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	var out []string
	err := s.scan(ctx, func(phys string) error {
		if k, ok := s.ks.logical(phys); ok && strings.HasPrefix(k, prefix) {
			out = append(out, k)
		}
		return nil
	})
	return out, err
}

func (s *redisStore) Size(ctx context.Context) (int, error) {
	n := 0
	err := s.scan(ctx, func(string) error { n++; return nil })
	return n, err
}

func (s *redisStore) ClearExpired(ctx context.Context) (int, error) {
	n := 0
	err := s.scan(ctx, func(phys string) error {
		ttl, err := s.rdb.TTL(ctx, phys).Result()
		if err != nil {
			return err
		}
		// -1 means the key exists without an expiry.
		if ttl == -1 || ttl == time.Duration(-1)*time.Second {
			if err := s.rdb.Expire(ctx, phys, s.ttl).Err(); err != nil {
				return err
			}
			n++
		}
		return nil
	})
	if err == nil {
		s.log.Info("Cache expiry sweep finished", "updated", n)
	}
	return n, err
}

func (s *redisStore) Stats(ctx context.Context) (Stats, error) {
	n, err := s.Size(ctx)
	return Stats{
		Keys:       n,
		Prefix:     s.ks.prefix,
		Partitions: s.ks.partitions,
		Hits:       s.hits.Load(),
		Misses:     s.misses.Load(),
		Errors:     s.errs.Load(),
	}, err
}

func (s *redisStore) InvalidatePrefix(ctx context.Context, prefix string) (int, error) {
	keys, err := s.Keys(ctx, prefix)
	if err != nil {
		return 0, err
	}
	return s.DeleteMany(ctx, keys)
}

func (s *redisStore) tagKey(tag string) string { return s.tagsPrefix + tag }

func (s *redisStore) Tag(ctx context.Context, key string, tags ...string) error {
	if !s.useTags || len(tags) == 0 {
		return nil
	}
	phys := s.ks.physical(key)
	_, err := s.rdb.Pipelined(ctx, func(p goredis.Pipeliner) error {
		for _, t := range tags {
			p.SAdd(ctx, s.tagKey(t), phys)
		}
		return nil
	})
	return err
}

func (s *redisStore) InvalidateTag(ctx context.Context, tag string) (int, error) {
	if !s.useTags {
		return 0, nil
	}
	members, err := s.rdb.SMembers(ctx, s.tagKey(tag)).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: smembers: %v", ErrUnavailable, err)
	}
	var n int64
	if len(members) > 0 {
		if n, err = s.rdb.Del(ctx, members...).Result(); err != nil {
			return 0, fmt.Errorf("%w: del: %v", ErrUnavailable, err)
		}
	}
	if err := s.rdb.Del(ctx, s.tagKey(tag)).Err(); err != nil {
		return int(n), fmt.Errorf("%w: del tag: %v", ErrUnavailable, err)
	}
	return int(n), nil
}

func (s *redisStore) Close() error { return s.rdb.Close() }
