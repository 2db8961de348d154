// Package quota enforces a per-user rate of AI calls.
package quota

import (
	"container/list"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/yungbote/learnmate-backend/internal/platform/apierr"
)

const defaultCapacity = 10000

type Limiter struct {
	limit    rate.Limit
	burst    int
	capacity int
	now      func() time.Time

	mu    sync.Mutex
	users map[string]*list.Element
	order *list.List
}

type userLimiter struct {
	userID string
	lim    *rate.Limiter
}

// New allows perMinute calls per user with the given burst. perMinute <= 0
// disables the limiter.
func New(perMinute, burst int) *Limiter {
	if burst < 1 {
		burst = 1
	}
	l := &Limiter{
		limit:    rate.Inf,
		burst:    burst,
		capacity: defaultCapacity,
		now:      time.Now,
		users:    make(map[string]*list.Element),
		order:    list.New(),
	}
	if perMinute > 0 {
		l.limit = rate.Limit(float64(perMinute) / 60.0)
	}
	return l
}

func (l *Limiter) get(userID string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	if el, ok := l.users[userID]; ok {
		l.order.MoveToFront(el)
		return el.Value.(*userLimiter).lim
	}
	ul := &userLimiter{userID: userID, lim: rate.NewLimiter(l.limit, l.burst)}
	l.users[userID] = l.order.PushFront(ul)
	for l.order.Len() > l.capacity {
		last := l.order.Back()
		l.order.Remove(last)
		delete(l.users, last.Value.(*userLimiter).userID)
	}
	return ul.lim
}

// Allow consumes one token for userID or returns a quota-exceeded error
// carrying the time until the next token.
func (l *Limiter) Allow(userID string) error {
	if l == nil || l.limit == rate.Inf {
		return nil
	}
	lim := l.get(userID)
	now := l.now()
	r := lim.ReserveN(now, 1)
	if !r.OK() {
		return apierr.QuotaExceeded(time.Minute)
	}
	if d := r.DelayFrom(now); d > 0 {
		r.CancelAt(now)
		return apierr.QuotaExceeded(d)
	}
	return nil
}
