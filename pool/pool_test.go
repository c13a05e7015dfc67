package pool_test

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alfreddev/fusegate/pool"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	pool.BaseConnection
	id         int
	disconnect int32
}

func (c *fakeConn) Connect() error { return nil }
func (c *fakeConn) Disconnect() error {
	atomic.AddInt32(&c.disconnect, 1)
	return nil
}

type fakeFactory struct {
	mu      sync.Mutex
	next    int
	failing bool
	delay   time.Duration
}

func (f *fakeFactory) Create(destination string) (pool.Connection, error) {
	f.mu.Lock()
	delay := f.delay
	failing := f.failing
	f.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if failing {
		return nil, fmt.Errorf("factory: refusing to create")
	}
	f.next++
	c := &fakeConn{id: f.next}
	pool.InitBaseConnection(&c.BaseConnection)
	return c, nil
}

func newTestPool(t *testing.T, maxConn int) (*pool.Pool, *fakeFactory) {
	t.Helper()
	p := pool.New(pool.Config{
		MaxConnections: maxConn,
		IdleTimeout:    50 * time.Millisecond,
		CleanInterval:  30 * time.Millisecond,
	}, zerolog.Nop())
	f := &fakeFactory{}
	p.SetConnectionFactory(f)
	t.Cleanup(func() { _ = p.Close() })
	return p, f
}

func TestAcquireBeforeFactoryInstalledFails(t *testing.T) {
	p := pool.New(pool.Config{MaxConnections: 1, IdleTimeout: time.Second, CleanInterval: time.Second}, zerolog.Nop())
	defer p.Close()

	_, err := p.Acquire("h:1", 0)
	require.ErrorIs(t, err, pool.ErrNoConnection)
}

func TestAcquireReleaseRoundTrip(t *testing.T) {
	p, _ := newTestPool(t, 2)

	c1, err := p.Acquire("h:1", 0)
	require.NoError(t, err)

	require.NoError(t, p.Release("h:1", c1))

	c2, err := p.Acquire("h:1", 0)
	require.NoError(t, err)
	require.Same(t, c1, c2)
}

func TestReleaseUnknownConnectionFails(t *testing.T) {
	p, _ := newTestPool(t, 2)
	bogus := &fakeConn{id: 999}
	pool.InitBaseConnection(&bogus.BaseConnection)
	err := p.Release("h:1", bogus)
	require.ErrorIs(t, err, pool.ErrUnknownConnection)
}

func TestCapacityBound(t *testing.T) {
	p, _ := newTestPool(t, 2)

	c1, err := p.Acquire("h:1", 0)
	require.NoError(t, err)
	c2, err := p.Acquire("h:1", 0)
	require.NoError(t, err)
	_, err = p.Acquire("h:1", 0)
	require.ErrorIs(t, err, pool.ErrNoConnection)

	require.NoError(t, p.Release("h:1", c1))

	c3, err := p.Acquire("h:1", time.Second)
	require.NoError(t, err)
	require.NotNil(t, c3)
	_ = c2
}

// TestCapacityBoundUnderConcurrency exercises the window that used to
// exist between the capacity check and the busy-set insertion in
// Acquire: with MaxConnections=2 and a slow factory, three concurrent
// timeout=0 acquires must still see exactly two succeed and one fail,
// never three successes sharing the same destination's last slot.
func TestCapacityBoundUnderConcurrency(t *testing.T) {
	p := pool.New(pool.Config{
		MaxConnections: 2,
		IdleTimeout:    time.Second,
		CleanInterval:  time.Second,
	}, zerolog.Nop())
	defer p.Close()

	f := &fakeFactory{delay: 30 * time.Millisecond}
	p.SetConnectionFactory(f)

	const callers = 3
	var successes int32
	var wg sync.WaitGroup
	wg.Add(callers)
	for i := 0; i < callers; i++ {
		go func() {
			defer wg.Done()
			if _, err := p.Acquire("h:1", 0); err == nil {
				atomic.AddInt32(&successes, 1)
			}
		}()
	}
	wg.Wait()

	require.EqualValues(t, 2, successes)
}

func TestAcquireWaitsAndWakesOnRelease(t *testing.T) {
	p, _ := newTestPool(t, 1)

	c1, err := p.Acquire("h:1", 0)
	require.NoError(t, err)

	var acquired pool.Connection
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		c, err := p.Acquire("h:1", time.Second)
		require.NoError(t, err)
		acquired = c
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, p.Release("h:1", c1))
	wg.Wait()
	require.Same(t, c1, acquired)
}

func TestAcquireTimeoutExpires(t *testing.T) {
	p, _ := newTestPool(t, 1)
	_, err := p.Acquire("h:1", 0)
	require.NoError(t, err)

	start := time.Now()
	_, err = p.Acquire("h:1", 50*time.Millisecond)
	require.ErrorIs(t, err, pool.ErrNoConnection)
	require.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestIdleReaping(t *testing.T) {
	p, f := newTestPool(t, 1)

	c1, err := p.Acquire("h:1", 0)
	require.NoError(t, err)
	require.NoError(t, p.Release("h:1", c1))

	// The reaper wakes once per second, so wait past its first sweep.
	time.Sleep(1500 * time.Millisecond)

	c2, err := p.Acquire("h:1", 0)
	require.NoError(t, err)
	require.NotSame(t, c1, c2)
	require.Equal(t, 2, f.next)
}

func TestReaperNeverTouchesBusyConnections(t *testing.T) {
	p, _ := newTestPool(t, 1)
	c1, err := p.Acquire("h:1", 0)
	require.NoError(t, err)

	// The reaper wakes once per second, so wait past its first sweep.
	time.Sleep(1500 * time.Millisecond)

	fc := c1.(*fakeConn)
	require.Equal(t, int32(0), atomic.LoadInt32(&fc.disconnect))
}
