package cachestore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/yungbote/learnmate-backend/internal/ai/config"
)

type memEntry struct {
	value     []byte
	expiresAt time.Time // zero means no expiry
}

// Memory is an in-process Store for tests and cache-less development.
type Memory struct {
	ks  keyspace
	ttl time.Duration
	now func() time.Time

	mu     sync.Mutex
	items  map[string]memEntry
	tags   map[string]map[string]struct{}
	hits   int64
	misses int64
}

func NewMemory(cfg config.CacheConfig) *Memory {
	parts := cfg.Partitions
	if parts < 1 {
		parts = 1
	}
	return &Memory{
		ks:    keyspace{prefix: cfg.Prefix, partitions: parts},
		ttl:   cfg.TTLDuration(),
		now:   time.Now,
		items: make(map[string]memEntry),
		tags:  make(map[string]map[string]struct{}),
	}
}

// SetClock replaces the time source.
func (m *Memory) SetClock(now func() time.Time) { m.now = now }

func (m *Memory) liveLocked(phys string) (memEntry, bool) {
	e, ok := m.items[phys]
	if !ok {
		return memEntry{}, false
	}
	if !e.expiresAt.IsZero() && !m.now().Before(e.expiresAt) {
		delete(m.items, phys)
		return memEntry{}, false
	}
	return e, true
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.liveLocked(m.ks.physical(key))
	if !ok {
		m.misses++
		return nil, false, nil
	}
	m.hits++
	return append([]byte(nil), e.value...), true, nil
}

func (m *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setLocked(key, value, ttl)
	return nil
}

func (m *Memory) setLocked(key string, value []byte, ttl time.Duration) {
	if ttl <= 0 {
		ttl = m.ttl
	}
	e := memEntry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		e.expiresAt = m.now().Add(ttl)
	}
	m.items[m.ks.physical(key)] = e
}

// SetPersistent stores a key without expiry, as a legacy writer would.
func (m *Memory) SetPersistent(key string, value []byte) {
	m.mu.Lock()
	m.items[m.ks.physical(key)] = memEntry{value: append([]byte(nil), value...)}
	m.mu.Unlock()
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.items, m.ks.physical(key))
	m.mu.Unlock()
	return nil
}

func (m *Memory) GetMany(ctx context.Context, keys []string) (map[string][]byte, error) {
	out := make(map[string][]byte, len(keys))
	for _, k := range keys {
		if v, ok, _ := m.Get(ctx, k); ok {
			out[k] = v
		}
	}
	return out, nil
}

func (m *Memory) SetMany(_ context.Context, items map[string][]byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, v := range items {
		m.setLocked(k, v, ttl)
	}
	return nil
}

func (m *Memory) DeleteMany(_ context.Context, keys []string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, k := range keys {
		phys := m.ks.physical(k)
		if _, ok := m.liveLocked(phys); ok {
			delete(m.items, phys)
			n++
		}
	}
	return n, nil
}

func (m *Memory) Keys(_ context.Context, prefix string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for phys := range m.items {
		if _, ok := m.liveLocked(phys); !ok {
			continue
		}
		if k, ok := m.ks.logical(phys); ok && strings.HasPrefix(k, prefix) {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (m *Memory) Size(ctx context.Context) (int, error) {
	keys, err := m.Keys(ctx, "")
	return len(keys), err
}

func (m *Memory) ClearExpired(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for phys, e := range m.items {
		if e.expiresAt.IsZero() {
			e.expiresAt = m.now().Add(m.ttl)
			m.items[phys] = e
			n++
		}
	}
	return n, nil
}

func (m *Memory) Stats(ctx context.Context) (Stats, error) {
	n, _ := m.Size(ctx)
	m.mu.Lock()
	defer m.mu.Unlock()
	return Stats{Keys: n, Prefix: m.ks.prefix, Partitions: m.ks.partitions, Hits: m.hits, Misses: m.misses}, nil
}

func (m *Memory) InvalidatePrefix(ctx context.Context, prefix string) (int, error) {
	keys, _ := m.Keys(ctx, prefix)
	return m.DeleteMany(ctx, keys)
}

func (m *Memory) Tag(_ context.Context, key string, tags ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range tags {
		set, ok := m.tags[t]
		if !ok {
			set = make(map[string]struct{})
			m.tags[t] = set
		}
		set[key] = struct{}{}
	}
	return nil
}

func (m *Memory) InvalidateTag(ctx context.Context, tag string) (int, error) {
	m.mu.Lock()
	set := m.tags[tag]
	delete(m.tags, tag)
	m.mu.Unlock()
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	return m.DeleteMany(ctx, keys)
}

func (m *Memory) Close() error { return nil }

var _ Store = (*Memory)(nil)
