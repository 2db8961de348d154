// Package cachestore is the shared key/value cache used for avatar contexts
// and other short-lived state. Keys passed to a Store are logical keys; the
// store applies the configured prefix and partitioning.
package cachestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"strconv"
	"strings"
	"time"
)

var ErrUnavailable = errors.New("cache store unavailable")

type Stats struct {
	Keys       int    `json:"keys"`
	Prefix     string `json:"prefix"`
	Partitions int    `json:"partitions"`
	Hits       int64  `json:"hits"`
	Misses     int64  `json:"misses"`
	Errors     int64  `json:"errors"`
}

type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Set stores value; ttl <= 0 uses the store default.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error

	GetMany(ctx context.Context, keys []string) (map[string][]byte, error)
	SetMany(ctx context.Context, items map[string][]byte, ttl time.Duration) error
	DeleteMany(ctx context.Context, keys []string) (int, error)

	// Keys lists logical keys starting with prefix.
	Keys(ctx context.Context, prefix string) ([]string, error)
	Size(ctx context.Context) (int, error)
	// ClearExpired gives keys without an expiry the default TTL and reports
	// how many were touched.
	ClearExpired(ctx context.Context) (int, error)
	Stats(ctx context.Context) (Stats, error)
	InvalidatePrefix(ctx context.Context, prefix string) (int, error)

	// Tag associates key with tags; a no-op unless tagging is enabled.
	Tag(ctx context.Context, key string, tags ...string) error
	InvalidateTag(ctx context.Context, tag string) (int, error)

	Close() error
}

// keyspace maps logical keys to physical keys.
type keyspace struct {
	prefix     string
	partitions int
}

func (k keyspace) physical(key string) string {
	if k.partitions <= 1 {
		return k.prefix + key
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return k.prefix + strconv.Itoa(int(h.Sum32()%uint32(k.partitions))) + ":" + key
}

func (k keyspace) logical(phys string) (string, bool) {
	rest, ok := strings.CutPrefix(phys, k.prefix)
	if !ok {
		return "", false
	}
	if k.partitions <= 1 {
		return rest, true
	}
	_, key, ok := strings.Cut(rest, ":")
	return key, ok
}

func (k keyspace) pattern() string { return k.prefix + "*" }

// GetJSON decodes the value at key into T.
func GetJSON[T any](ctx context.Context, s Store, key string) (T, bool, error) {
	var out T
	raw, ok, err := s.Get(ctx, key)
	if err != nil || !ok {
		return out, false, err
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, false, fmt.Errorf("decode cached %s: %w", key, err)
	}
	return out, true, nil
}

func SetJSON(ctx context.Context, s Store, key string, v any, ttl time.Duration) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return s.Set(ctx, key, raw, ttl)
}
