package breaker

import (
	"errors"
	"fmt"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/yungbote/learnmate-backend/internal/observability"
	"github.com/yungbote/learnmate-backend/internal/platform/logger"
)

// ErrOpen is returned while the breaker rejects calls.
var ErrOpen = errors.New("circuit breaker open")

const defaultTripAfter = 5

// Breaker guards a remote dependency. It opens after consecutive failures
// and stays open for the configured timeout before probing again.
type Breaker struct {
	name string
	cb   *gobreaker.CircuitBreaker[any]
	log  *logger.Logger
}

type Options struct {
	Timeout   time.Duration
	TripAfter uint32
	// IsSuccessful lets callers keep client errors (4xx) from tripping.
	IsSuccessful func(err error) bool
}

func New(name string, opts Options, log *logger.Logger, metrics *observability.Metrics) *Breaker {
	log = logger.OrNop(log).With("breaker", name)
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	if opts.TripAfter == 0 {
		opts.TripAfter = defaultTripAfter
	}
	metrics.SetBreakerState(name, 0)

	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     opts.Timeout,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= opts.TripAfter
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state change", "from", from.String(), "to", to.String())
			metrics.SetBreakerState(name, stateValue(to))
		},
		IsSuccessful: opts.IsSuccessful,
	}
	return &Breaker{name: name, cb: gobreaker.NewCircuitBreaker[any](settings), log: log}
}

func (b *Breaker) Name() string { return b.name }

func (b *Breaker) State() gobreaker.State { return b.cb.State() }

// Execute runs fn through the breaker. Rejections are reported as ErrOpen.
func (b *Breaker) Execute(fn func() (any, error)) (any, error) {
	out, err := b.cb.Execute(fn)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%s: %w", b.name, ErrOpen)
	}
	return out, err
}

// Do is the typed form of Execute.
func Do[T any](b *Breaker, fn func() (T, error)) (T, error) {
	var zero T
	if b == nil {
		return fn()
	}
	out, err := b.Execute(func() (any, error) { return fn() })
	if err != nil {
		return zero, err
	}
	typed, ok := out.(T)
	if !ok && out != nil {
		return zero, fmt.Errorf("breaker %s: unexpected result type %T", b.name, out)
	}
	return typed, nil
}

func stateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}
