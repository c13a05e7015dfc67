// Package counter implements a rotating time-bucketed failure counter.
//
// Window is a lock-protected ring of fixed-width buckets covering a
// sliding time window. Callers add counts to the current bucket and
// query the sum of the most recent N buckets. It never suspends and
// never blocks for more than the time it takes to rotate the ring.
package counter

import (
	"sync"
	"time"
)

// Window is a rotating ring of count buckets, each interval wide.
// It is grounded on the teacher's sliding-window error tracking in
// routing/sla_balancer.go, generalized from a single EWMA counter to
// a fixed-size ring of per-interval counts.
type Window struct {
	mu sync.Mutex

	interval time.Duration
	count    int
	data     []uint64

	// epoch is a fixed time.Now() reference; bucket numbers are derived
	// from time.Since(epoch), which uses the runtime's monotonic clock
	// reading and so is immune to wall-clock (NTP) adjustments, unlike
	// UnixNano() arithmetic.
	epoch time.Time

	current int   // write index into data
	last    int64 // time-bucket number of the most recent refresh
}

// New creates a Window with the given bucket width and bucket count.
// It panics if interval or count is zero — a zero-width or zero-length
// window is a programmer error, not a runtime condition to recover from.
func New(interval time.Duration, count int) *Window {
	if interval <= 0 {
		panic("counter: interval must be positive")
	}
	if count <= 0 {
		panic("counter: count must be positive")
	}
	return &Window{
		interval: interval,
		count:    count,
		data:     make([]uint64, count),
		epoch:    time.Now(),
		last:     0,
	}
}

// NewDefault returns a Window with the spec's defaults: 60 one-second
// buckets.
func NewDefault() *Window {
	return New(time.Second, 60)
}

// Reset zeros every bucket.
func (w *Window) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.reset()
}

// Add advances the ring to the current time-bucket, then adds c to the
// current bucket.
func (w *Window) Add(c uint64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.advance()
	w.data[w.current] += c
}

// SumOfLast advances the ring, then returns the sum of the most recent
// min(n, count) buckets, inclusive of the current one.
func (w *Window) SumOfLast(n int) uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.advance()

	if n <= 0 {
		return 0
	}
	if n > w.count {
		n = w.count
	}

	var sum uint64
	idx := w.current
	for i := 0; i < n; i++ {
		sum += w.data[idx]
		idx--
		if idx < 0 {
			idx = w.count - 1
		}
	}
	return sum
}

// advance rotates the ring to the current time-bucket, zeroing every
// bucket strictly between the previous last-refresh bucket and now.
// Must be called with w.mu held.
func (w *Window) advance() {
	now := w.nowBucket()
	delta := now - w.last

	if delta < 0 {
		// Clock regression is impossible on a monotonic clock; treat
		// as no movement rather than winding the ring backwards.
		delta = 0
	}

	if delta >= int64(w.count) {
		for i := range w.data {
			w.data[i] = 0
		}
	} else {
		for i := int64(0); i < delta; i++ {
			w.current = (w.current + 1) % w.count
			w.data[w.current] = 0
		}
	}
	w.last = now
}

func (w *Window) reset() {
	for i := range w.data {
		w.data[i] = 0
	}
	w.current = 0
	w.epoch = time.Now()
	w.last = 0
}

// nowBucket returns the number of whole intervals elapsed since w.epoch,
// measured via time.Since's monotonic reading rather than wall-clock
// arithmetic. Must be called with w.mu held.
func (w *Window) nowBucket() int64 {
	return int64(time.Since(w.epoch) / w.interval)
}
