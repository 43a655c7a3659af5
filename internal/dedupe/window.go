// ABOUTME: Thread-safe, size-bounded window of recently seen request keys.
// ABOUTME: Lets the conversation layer reject a retried submission of the same turn.

package dedupe

import (
	"container/list"
	"sync"
	"time"
)

type entry struct {
	key    string
	seenAt time.Time
}

// Window remembers keys for a TTL. When full, the oldest key is evicted.
// Expired keys are swept lazily on insert, so there is nothing to close.
type Window struct {
	mu      sync.Mutex
	seen    map[string]*list.Element
	order   *list.List // oldest at front
	ttl     time.Duration
	maxSize int
	now     func() time.Time
}

// New creates a Window holding at most maxSize keys for ttl each.
func New(ttl time.Duration, maxSize int) *Window {
	if maxSize < 1 {
		maxSize = 1
	}
	return &Window{
		seen:    make(map[string]*list.Element),
		order:   list.New(),
		ttl:     ttl,
		maxSize: maxSize,
		now:     time.Now,
	}
}

// Seen reports whether key is already in the window and records it if not.
// The check and the insert are one atomic step.
func (w *Window) Seen(key string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	if elem, ok := w.seen[key]; ok {
		e := elem.Value.(*entry)
		if now.Sub(e.seenAt) < w.ttl {
			return true
		}
		w.order.Remove(elem)
		delete(w.seen, key)
	}

	w.sweepLocked(now)
	for len(w.seen) >= w.maxSize {
		w.removeLocked(w.order.Front())
	}
	w.seen[key] = w.order.PushBack(&entry{key: key, seenAt: now})
	return false
}

// Forget drops key so the same request can be submitted again.
func (w *Window) Forget(key string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if elem, ok := w.seen[key]; ok {
		w.removeLocked(elem)
	}
}

// Len returns the number of keys held, expired or not.
func (w *Window) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.seen)
}

// sweepLocked drops expired keys from the front. Keys are inserted in time
// order, so the first live key ends the sweep.
func (w *Window) sweepLocked(now time.Time) {
	for front := w.order.Front(); front != nil; front = w.order.Front() {
		if now.Sub(front.Value.(*entry).seenAt) < w.ttl {
			return
		}
		w.removeLocked(front)
	}
}

func (w *Window) removeLocked(elem *list.Element) {
	if elem == nil {
		return
	}
	w.order.Remove(elem)
	delete(w.seen, elem.Value.(*entry).key)
}
