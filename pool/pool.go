// Package pool implements a per-destination connection pool: a bounded
// set of reusable transport handles multiplexed across concurrent
// callers, with idle-expiry cleaning run by a dedicated background
// worker.
//
// The acquire/release/reap shape is grounded in the teacher's
// provider/pool.go (shared-transport-per-destination bookkeeping) and
// in the pack's healthfees-org-workersql sdk/go/internal/pool and
// ritikchawla-load-balancer internal/connpool pools (idle-set-keyed-by-
// destination, periodic cleanup goroutine). The blocking, re-evaluated
// wait for Acquire's timeout argument follows the waiter-channel
// approach used by the bounded context-cancellable pool in the
// examples pack, adapted to a plain time.Duration deadline instead of
// a context.
package pool

import (
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	// ErrNoConnection is returned when Acquire cannot produce a
	// connection before its timeout elapses (or immediately, for a
	// zero timeout).
	ErrNoConnection = errors.New("pool: no connection available")
	// ErrUnknownConnection is returned by Release when the connection
	// is not currently tracked as busy for the given destination.
	ErrUnknownConnection = errors.New("pool: connection not tracked as busy")
	// ErrClosed is returned by Acquire once the pool has been shut down.
	ErrClosed = errors.New("pool: closed")
)

// Config tunes a Pool's capacity and idle-reaping behavior.
type Config struct {
	// MaxConnections bounds idle+busy connections per destination.
	// Zero means unbounded.
	MaxConnections int
	// IdleTimeout is the per-connection idle expiry, in seconds terms
	// per spec but expressed here as a Duration.
	IdleTimeout time.Duration
	// CleanInterval is how often the reaper sweeps expired idle
	// connections.
	CleanInterval time.Duration
}

// Pool maps a destination string ("host:port") to disjoint idle and
// busy connection sets, guarded by one pool-wide mutex.
type Pool struct {
	mu      sync.Mutex
	idle    map[string][]Connection
	busy    map[string]map[Connection]struct{}
	pending map[string]int
	waiters map[string][]chan struct{}

	factory ConnectionFactory
	cfg     Config
	logger  zerolog.Logger

	closed bool
	stopCh chan struct{}
	wg     sync.WaitGroup

	metrics Metrics
}

// Metrics are simple pool-wide counters, useful for tests and for
// operators, not a general observability subsystem.
type Metrics struct {
	mu       sync.Mutex
	Created  uint64
	Reused   uint64
	Rejected uint64
	Reaped   uint64
}

func (m *Metrics) incCreated()  { m.mu.Lock(); m.Created++; m.mu.Unlock() }
func (m *Metrics) incReused()   { m.mu.Lock(); m.Reused++; m.mu.Unlock() }
func (m *Metrics) incRejected() { m.mu.Lock(); m.Rejected++; m.mu.Unlock() }
func (m *Metrics) incReaped(n int) {
	m.mu.Lock()
	m.Reaped += uint64(n)
	m.mu.Unlock()
}

// Snapshot returns a copy of the current counters.
func (m *Metrics) Snapshot() Metrics {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Metrics{Created: m.Created, Reused: m.Reused, Rejected: m.Rejected, Reaped: m.Reaped}
}

// New creates a Pool and starts its background reaper. It panics if
// IdleTimeout or CleanInterval is zero — those are the two fatal
// construction conditions spec.md §7 calls out.
func New(cfg Config, logger zerolog.Logger) *Pool {
	if cfg.IdleTimeout <= 0 {
		panic("pool: IdleTimeout must be positive")
	}
	if cfg.CleanInterval <= 0 {
		panic("pool: CleanInterval must be positive")
	}

	p := &Pool{
		idle:    make(map[string][]Connection),
		busy:    make(map[string]map[Connection]struct{}),
		pending: make(map[string]int),
		waiters: make(map[string][]chan struct{}),
		cfg:     cfg,
		logger:  logger.With().Str("component", "pool").Logger(),
		stopCh:  make(chan struct{}),
	}

	p.wg.Add(1)
	go p.reapLoop()

	return p
}

// SetConnectionFactory installs the Connection producer. It must be
// called before the first Acquire.
func (p *Pool) SetConnectionFactory(f ConnectionFactory) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.factory = f
}

// Acquire returns a non-expired Connection bound to destination, or
// ErrNoConnection if none can be produced before timeout elapses.
//
//   - timeout < 0: block indefinitely.
//   - timeout == 0: try once — reuse if available, else create if
//     capacity permits, else fail immediately.
//   - timeout > 0: wait up to that duration in total.
func (p *Pool) Acquire(destination string, timeout time.Duration) (Connection, error) {
	deadline := time.Now().Add(timeout)

	for {
		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			return nil, ErrClosed
		}

		if conn := p.takeIdleLocked(destination); conn != nil {
			p.busy[destination][conn] = struct{}{}
			p.metrics.incReused()
			p.mu.Unlock()
			return conn, nil
		}

		if p.hasCapacityLocked(destination) {
			factory := p.factory
			// Reserve the slot before releasing the lock so a second
			// concurrent caller's capacity check sees this in-flight
			// create and cannot also pass it.
			p.pending[destination]++
			p.mu.Unlock()

			if factory == nil {
				p.mu.Lock()
				p.pending[destination]--
				p.mu.Unlock()
				return nil, ErrNoConnection
			}

			conn, err := factory.Create(destination)
			if err != nil || conn == nil {
				p.mu.Lock()
				p.pending[destination]--
				p.metrics.incRejected()
				p.mu.Unlock()
				return nil, ErrNoConnection
			}
			conn.SetIdleTimeout(p.cfg.IdleTimeout)
			conn.SetLastUsedAt(time.Now())

			p.mu.Lock()
			p.pending[destination]--
			if p.busy[destination] == nil {
				p.busy[destination] = make(map[Connection]struct{})
			}
			p.busy[destination][conn] = struct{}{}
			p.metrics.incCreated()
			p.mu.Unlock()
			return conn, nil
		}

		// No idle connection, no capacity to create one.
		if timeout == 0 {
			p.metrics.incRejected()
			p.mu.Unlock()
			return nil, ErrNoConnection
		}

		waitCh := make(chan struct{}, 1)
		p.waiters[destination] = append(p.waiters[destination], waitCh)
		p.mu.Unlock()

		if timeout < 0 {
			<-waitCh
			continue
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			p.removeWaiter(destination, waitCh)
			p.metrics.incRejected()
			return nil, ErrNoConnection
		}

		timer := time.NewTimer(remaining)
		select {
		case <-waitCh:
			timer.Stop()
		case <-timer.C:
			p.removeWaiter(destination, waitCh)
			p.metrics.incRejected()
			return nil, ErrNoConnection
		}
	}
}

// Release returns conn to the idle set for destination, stamps its
// last-used time, and wakes one waiter. It fails if conn is not
// currently tracked as busy for destination.
func (p *Pool) Release(destination string, conn Connection) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	busy, ok := p.busy[destination]
	if !ok {
		return ErrUnknownConnection
	}
	if _, ok := busy[conn]; !ok {
		return ErrUnknownConnection
	}
	delete(busy, conn)

	conn.SetLastUsedAt(time.Now())
	p.idle[destination] = append(p.idle[destination], conn)

	p.wakeOneLocked(destination)
	return nil
}

// Close stops the reaper and disconnects all idle connections. Busy
// connections are left untouched — callers must release them first.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	close(p.stopCh)
	p.wg.Wait()

	p.mu.Lock()
	defer p.mu.Unlock()
	for dest, conns := range p.idle {
		for _, c := range conns {
			_ = c.Disconnect()
		}
		delete(p.idle, dest)
	}
	return nil
}

// Snapshot returns the current pool metrics.
func (p *Pool) Snapshot() Metrics {
	return p.metrics.Snapshot()
}

// takeIdleLocked scans idle[destination] for the first non-expired
// connection, removes it, and returns it. Must be called with p.mu held.
func (p *Pool) takeIdleLocked(destination string) Connection {
	conns := p.idle[destination]
	for i, c := range conns {
		if c.IsExpired() {
			continue
		}
		p.idle[destination] = append(conns[:i], conns[i+1:]...)
		if p.busy[destination] == nil {
			p.busy[destination] = make(map[Connection]struct{})
		}
		return c
	}
	return nil
}

// hasCapacityLocked reports whether a new connection may be created for
// destination. total counts idle and busy connections plus any creates
// already reserved but not yet landed in busy, so two concurrent callers
// can never both pass this check for the last free slot. Must be called
// with p.mu held.
func (p *Pool) hasCapacityLocked(destination string) bool {
	if p.cfg.MaxConnections <= 0 {
		return true
	}
	total := len(p.idle[destination]) + len(p.busy[destination]) + p.pending[destination]
	return total < p.cfg.MaxConnections
}

// wakeOneLocked signals a single waiter for destination, if any. Must
// be called with p.mu held.
func (p *Pool) wakeOneLocked(destination string) {
	waiters := p.waiters[destination]
	if len(waiters) == 0 {
		return
	}
	next := waiters[0]
	p.waiters[destination] = waiters[1:]
	select {
	case next <- struct{}{}:
	default:
	}
}

func (p *Pool) removeWaiter(destination string, ch chan struct{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	waiters := p.waiters[destination]
	for i, w := range waiters {
		if w == ch {
			p.waiters[destination] = append(waiters[:i], waiters[i+1:]...)
			return
		}
	}
}

// reapLoop wakes every second; every CleanInterval it removes every
// expired connection from every idle[dest], plus empty inner sets.
// Busy connections are never touched.
func (p *Pool) reapLoop() {
	defer p.wg.Done()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	var sinceClean time.Duration
	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
			sinceClean += time.Second
			if sinceClean < p.cfg.CleanInterval {
				continue
			}
			sinceClean = 0
			p.reap()
		}
	}
}

func (p *Pool) reap() {
	p.mu.Lock()
	defer p.mu.Unlock()

	reaped := 0
	for dest, conns := range p.idle {
		kept := conns[:0:0]
		for _, c := range conns {
			if c.IsExpired() {
				_ = c.Disconnect()
				reaped++
				continue
			}
			kept = append(kept, c)
		}
		if len(kept) == 0 {
			delete(p.idle, dest)
		} else {
			p.idle[dest] = kept
		}
	}
	if reaped > 0 {
		p.metrics.incReaped(reaped)
		p.logger.Debug().Int("reaped", reaped).Msg("idle connections reaped")
	}
}
