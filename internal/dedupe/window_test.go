// ABOUTME: Tests for the request dedupe window.
// ABOUTME: Validates TTL expiry, size-bounded eviction, Forget, and concurrency safety.

package dedupe

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestWindow(ttl time.Duration, size int) (*Window, *fakeClock) {
	clock := &fakeClock{t: time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)}
	w := New(ttl, size)
	w.now = clock.now
	return w, clock
}

func TestWindow_Seen(t *testing.T) {
	w, _ := newTestWindow(time.Minute, 10)

	assert.False(t, w.Seen("u1/r1"), "first submission is new")
	assert.True(t, w.Seen("u1/r1"), "retry is a duplicate")
	assert.False(t, w.Seen("u1/r2"))
	assert.Equal(t, 2, w.Len())
}

func TestWindow_Expiry(t *testing.T) {
	w, clock := newTestWindow(time.Minute, 10)

	w.Seen("a")
	clock.advance(30 * time.Second)
	w.Seen("b")

	clock.advance(31 * time.Second)
	assert.False(t, w.Seen("a"), "expired key is new again")
	assert.True(t, w.Seen("b"))

	clock.advance(2 * time.Minute)
	w.Seen("c")
	assert.Equal(t, 1, w.Len(), "expired keys swept on insert")
}

func TestWindow_EvictsOldest(t *testing.T) {
	w, _ := newTestWindow(time.Hour, 3)

	for _, k := range []string{"a", "b", "c", "d"} {
		assert.False(t, w.Seen(k))
	}
	assert.Equal(t, 3, w.Len())
	assert.False(t, w.Seen("a"), "oldest key was evicted")
	assert.True(t, w.Seen("d"))
}

func TestWindow_Forget(t *testing.T) {
	w, _ := newTestWindow(time.Hour, 3)

	w.Seen("a")
	w.Forget("a")
	w.Forget("missing")
	assert.False(t, w.Seen("a"))
}

func TestWindow_Concurrent(t *testing.T) {
	w := New(time.Hour, 1000)

	var fresh atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if !w.Seen(fmt.Sprintf("key-%d", i%10)) {
				fresh.Add(1)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(10), fresh.Load(), "each key is new exactly once")
}
