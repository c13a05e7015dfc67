package fuse

import (
	"math"
	"sync/atomic"
	"time"
)

// atomicDuration, atomicFloat, and atomicBool give Client's tunable
// knobs (timeout, coefficient, latency timeout, fuse-tripped flag)
// lock-free load/store semantics so Do can read them without
// contending with the mutex that guards the trigger and recovery
// worker handle.

type atomicDuration struct {
	v atomic.Int64
}

func (a *atomicDuration) Store(d time.Duration) { a.v.Store(int64(d)) }
func (a *atomicDuration) Load() time.Duration   { return time.Duration(a.v.Load()) }

type atomicFloat struct {
	v atomic.Uint64
}

func (a *atomicFloat) Store(f float64) { a.v.Store(math.Float64bits(f)) }
func (a *atomicFloat) Load() float64   { return math.Float64frombits(a.v.Load()) }

type atomicBool struct {
	v atomic.Bool
}

func (a *atomicBool) Store(b bool)                 { a.v.Store(b) }
func (a *atomicBool) Load() bool                   { return a.v.Load() }
func (a *atomicBool) CompareAndSwap(old, new bool) bool {
	return a.v.CompareAndSwap(old, new)
}
