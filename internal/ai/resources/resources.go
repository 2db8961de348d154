// Package resources shares expensive, reference-counted handles (embedding
// clients, model handles) across concurrent requests.
package resources

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/yungbote/learnmate-backend/internal/platform/logger"
)

type ResourceType string

const (
	Embedding ResourceType = "embedding"
	Model     ResourceType = "model"
)

var (
	ErrUnknownResourceType = errors.New("unknown resource type")
	ErrClosed              = errors.New("resource manager is shut down")
)

type Resource interface {
	Close(ctx context.Context) error
}

type Factory func(ctx context.Context, name string, opts map[string]any) (Resource, error)

// RefsRecorder receives ref-count changes. *observability.Metrics satisfies it.
type RefsRecorder interface {
	SetResourceRefs(typ string, refs int)
}

type entry struct {
	ready chan struct{}
	res   Resource
	err   error
	refs  int
}

type Manager struct {
	log       *logger.Logger
	factories map[ResourceType]Factory
	rec       RefsRecorder

	mu      sync.Mutex
	entries map[string]*entry
	closed  bool
}

func NewManager(log *logger.Logger, factories map[ResourceType]Factory, rec RefsRecorder) *Manager {
	f := make(map[ResourceType]Factory, len(factories))
	for k, v := range factories {
		f[k] = v
	}
	return &Manager{
		log:       logger.OrNop(log).With("service", "ResourceManager"),
		factories: f,
		rec:       rec,
		entries:   make(map[string]*entry),
	}
}

func key(typ ResourceType, name string) string { return string(typ) + ":" + name }

// Acquire returns the shared resource for (typ, name), constructing it on
// first use. release must be called exactly once; the last release closes it.
func (m *Manager) Acquire(ctx context.Context, typ ResourceType, name string, opts map[string]any) (Resource, func(), error) {
	factory, ok := m.factories[typ]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %q", ErrUnknownResourceType, typ)
	}
	k := key(typ, name)

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, nil, ErrClosed
	}
	e, exists := m.entries[k]
	if !exists {
		e = &entry{ready: make(chan struct{})}
		m.entries[k] = e
	}
	e.refs++
	m.mu.Unlock()

	if !exists {
		res, err := factory(ctx, name, opts)
		m.mu.Lock()
		e.res, e.err = res, err
		if err != nil {
			delete(m.entries, k)
		}
		close(e.ready)
		m.mu.Unlock()
		if err != nil {
			m.log.Warn("Resource construction failed", "type", typ, "name", name, "error", err)
			return nil, nil, fmt.Errorf("create %s resource %q: %w", typ, name, err)
		}
		m.log.Debug("Resource created", "type", typ, "name", name)
	} else {
		select {
		case <-e.ready:
		case <-ctx.Done():
			m.release(k, e)
			return nil, nil, ctx.Err()
		}
		if e.err != nil {
			return nil, nil, fmt.Errorf("create %s resource %q: %w", typ, name, e.err)
		}
	}
	m.record(typ)

	var once sync.Once
	return e.res, func() { once.Do(func() { m.release(k, e); m.record(typ) }) }, nil
}

func (m *Manager) release(k string, e *entry) {
	m.mu.Lock()
	e.refs--
	drop := e.refs <= 0 && m.entries[k] == e
	if drop {
		delete(m.entries, k)
	}
	m.mu.Unlock()

	if !drop || e.res == nil {
		return
	}
	if err := e.res.Close(context.Background()); err != nil {
		m.log.Warn("Resource cleanup failed", "key", k, "error", err)
	}
}

// With acquires a resource for the duration of fn.
func (m *Manager) With(ctx context.Context, typ ResourceType, name string, opts map[string]any, fn func(Resource) error) error {
	res, release, err := m.Acquire(ctx, typ, name, opts)
	if err != nil {
		return err
	}
	defer release()
	return fn(res)
}

// Refs reports the current reference count, 0 when absent.
func (m *Manager) Refs(typ ResourceType, name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.entries[key(typ, name)]; ok {
		return e.refs
	}
	return 0
}

func (m *Manager) record(typ ResourceType) {
	if m.rec == nil {
		return
	}
	prefix := string(typ) + ":"
	total := 0
	m.mu.Lock()
	for k, e := range m.entries {
		if len(k) > len(prefix) && k[:len(prefix)] == prefix {
			total += e.refs
		}
	}
	m.mu.Unlock()
	m.rec.SetResourceRefs(string(typ), total)
}

// Shutdown closes every resource still held and rejects further acquires.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	held := m.entries
	m.entries = make(map[string]*entry)
	m.mu.Unlock()

	var errs []error
	for k, e := range held {
		select {
		case <-e.ready:
		case <-ctx.Done():
			return ctx.Err()
		}
		if e.res == nil {
			continue
		}
		if err := e.res.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", k, err))
		}
	}
	return errors.Join(errs...)
}
