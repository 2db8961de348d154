// Package tiered chooses between a cheap and an expensive implementation of
// the same computation, rate-limiting the expensive one per operation.
package tiered

import (
	"context"
	"sync"
	"time"

	"github.com/yungbote/learnmate-backend/internal/ai/config"
	"github.com/yungbote/learnmate-backend/internal/platform/logger"
)

type Tier int

const (
	Simple  Tier = config.TierSimple
	Complex Tier = config.TierComplex
)

func (t Tier) String() string {
	if t >= Complex {
		return "complex"
	}
	return "simple"
}

// Ptr is a convenience for the force argument.
func Ptr(t Tier) *Tier { return &t }

// Recorder receives per-call timings. *observability.Metrics satisfies it.
type Recorder interface {
	ObserveComputation(operation, tier string, seconds float64)
}

type Selector struct {
	cfg config.Config
	log *logger.Logger
	rec Recorder
	now func() time.Time

	mu          sync.Mutex
	lastComplex map[string]time.Time
}

type Option func(*Selector)

func WithClock(now func() time.Time) Option {
	return func(s *Selector) {
		if now != nil {
			s.now = now
		}
	}
}

func New(cfg config.Config, log *logger.Logger, rec Recorder, opts ...Option) *Selector {
	s := &Selector{
		cfg:         cfg,
		log:         logger.OrNop(log).With("service", "TieredSelector"),
		rec:         rec,
		now:         time.Now,
		lastComplex: make(map[string]time.Time),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// ShouldUseComplex reports whether op should take the complex path now.
// A disabled computation layer always runs complex; a forced tier wins over
// the default tier and the spacing window.
func (s *Selector) ShouldUseComplex(op string, force *Tier) bool {
	if !s.cfg.Computation.Enabled {
		return true
	}
	if force != nil {
		return *force >= Complex
	}
	if Tier(s.cfg.Computation.DefaultTier) < Complex {
		return false
	}
	s.mu.Lock()
	last, ok := s.lastComplex[op]
	s.mu.Unlock()
	if !ok {
		return true
	}
	return s.now().Sub(last) >= s.cfg.TimeBetweenComplex()
}

func (s *Selector) RecordComplex(op string) {
	s.mu.Lock()
	s.lastComplex[op] = s.now()
	s.mu.Unlock()
}

// Run executes complex or simple per ShouldUseComplex. A failing complex path
// is retried once on the simple path and that outcome is returned.
func Run[T any](ctx context.Context, s *Selector, op string, force *Tier, simple, complexFn func(ctx context.Context) (T, error)) (T, error) {
	start := s.now()
	tier := Simple
	var (
		out T
		err error
	)
	if s.ShouldUseComplex(op, force) {
		out, err = complexFn(ctx)
		if err == nil {
			tier = Complex
			s.RecordComplex(op)
		} else {
			s.log.Warn("Complex computation failed, falling back to simple", "operation", op, "error", err)
			out, err = simple(ctx)
		}
	} else {
		out, err = simple(ctx)
	}
	if s.rec != nil {
		s.rec.ObserveComputation(op, tier.String(), s.now().Sub(start).Seconds())
	}
	return out, err
}
