package avatar

import (
	"container/list"
	"sync"
	"time"
)

const DefaultLockCapacity = 10000

type lockEntry struct {
	userID   string
	mu       sync.Mutex
	refs     int
	lastUsed time.Time
}

// LockRegistry hands out per-user mutexes. Idle entries are evicted in LRU
// order once the registry grows past its capacity; an entry that is held or
// awaited is never evicted, so capacity is a soft bound.
type LockRegistry struct {
	mu       sync.Mutex
	capacity int
	entries  map[string]*list.Element
	order    *list.List
	now      func() time.Time
}

func NewLockRegistry(capacity int) *LockRegistry {
	if capacity <= 0 {
		capacity = DefaultLockCapacity
	}
	return &LockRegistry{
		capacity: capacity,
		entries:  make(map[string]*list.Element),
		order:    list.New(),
		now:      time.Now,
	}
}

// Lock blocks until userID's lock is held and returns its release func.
func (r *LockRegistry) Lock(userID string) (unlock func()) {
	r.mu.Lock()
	el, ok := r.entries[userID]
	if ok {
		r.order.MoveToFront(el)
	} else {
		el = r.order.PushFront(&lockEntry{userID: userID})
		r.entries[userID] = el
	}
	e := el.Value.(*lockEntry)
	e.refs++
	r.evictLocked()
	r.mu.Unlock()

	e.mu.Lock()
	var once sync.Once
	return func() {
		once.Do(func() {
			e.mu.Unlock()
			r.mu.Lock()
			e.refs--
			e.lastUsed = r.now()
			r.evictLocked()
			r.mu.Unlock()
		})
	}
}

func (r *LockRegistry) evictLocked() {
	for el := r.order.Back(); el != nil && r.order.Len() > r.capacity; {
		prev := el.Prev()
		if e := el.Value.(*lockEntry); e.refs == 0 {
			r.order.Remove(el)
			delete(r.entries, e.userID)
		}
		el = prev
	}
}

// Sweep drops idle entries unused for longer than idle and returns how many
// were removed.
func (r *LockRegistry) Sweep(idle time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	cutoff := r.now().Add(-idle)
	n := 0
	for el := r.order.Back(); el != nil; {
		prev := el.Prev()
		if e := el.Value.(*lockEntry); e.refs == 0 && e.lastUsed.Before(cutoff) {
			r.order.Remove(el)
			delete(r.entries, e.userID)
			n++
		}
		el = prev
	}
	return n
}

func (r *LockRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.order.Len()
}
