package fuse

import "sync/atomic"

// SharedTrigger arbitrates which of possibly several FuseClients fronting
// the same destination gets to run the sole recovery prober. Sharing is
// opt-in via Client.SetSharedTrigger — by default every Client owns a
// private LocalTrigger.
type SharedTrigger interface {
	// TryTrip atomically flips the trigger from untripped to tripped.
	// It returns true exactly once per tripped period — the caller
	// that wins is the one that should spawn the recovery worker.
	TryTrip() bool
	// IsTripped reports the current state without mutating it.
	IsTripped() bool
	// Reset clears the trigger, allowing a future TryTrip to succeed
	// again. Called by the recovery worker on exit.
	Reset()
}

// LocalTrigger is an in-process SharedTrigger backed by an atomic bool.
// It is the default trigger every Client allocates lazily on its first
// trip.
type LocalTrigger struct {
	tripped atomic.Bool
}

// NewLocalTrigger returns an untripped LocalTrigger.
func NewLocalTrigger() *LocalTrigger {
	return &LocalTrigger{}
}

func (t *LocalTrigger) TryTrip() bool {
	return t.tripped.CompareAndSwap(false, true)
}

func (t *LocalTrigger) IsTripped() bool {
	return t.tripped.Load()
}

func (t *LocalTrigger) Reset() {
	t.tripped.Store(false)
}
