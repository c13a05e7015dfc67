// Package fuse implements the circuit breaker ("fuse") that fronts a
// single destination: it drives HTTP requests through a connection
// pool, feeds outcomes into a sliding-window failure counter, trips
// when thresholds are exceeded, diverts traffic away from the
// destination, and runs a single background worker that probes the
// destination to decide when to close the circuit again.
//
// The state machine and retry/trip/recovery algorithm are grounded on
// spec.md §4.3–§4.4. The circuit-breaker shape itself (closed / open /
// half-open, CAS-guarded trip, background prober) is grounded on the
// examples pack's kdeps-kdeps pkg/bus resilient_client.go
// CircuitBreaker, adapted from a generic Execute(fn) wrapper to the
// request-shaped Do here; the background worker's ticker/context
// lifecycle follows the teacher's provider/healthpoller.go.
package fuse

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/alfreddev/fusegate/counter"
	"github.com/alfreddev/fusegate/pool"
	"github.com/alfreddev/fusegate/traceid"
	"github.com/rs/zerolog"
)

var (
	// ErrCircuitOpen is returned (status -1) when the fuse has tripped
	// and the request is rejected outright.
	ErrCircuitOpen = errors.New("fuse: circuit open")
	// ErrNoConnection is returned (status -1) when the pool could not
	// produce a connection for the destination.
	ErrNoConnection = errors.New("fuse: no connection available")
)

// maxSlideWindowBuckets caps slide_window at 600 one-second buckets, per
// spec.md §6 ("values > 600 are capped at 600").
const maxSlideWindowBuckets = 600

// Body prepares a request payload and any body-dependent headers
// (notably Content-Type). transport.JSONBody and transport.MultipartBody
// satisfy this structurally — fuse never imports transport; transport's
// Connection implements pool.Connection and is acquired through the pool
// fuse already depends on.
type Body interface {
	Prepare(headers http.Header) (io.Reader, error)
}

// doer is satisfied by transport.Connection. It is declared locally so
// fuse can type-assert a pool.Connection without importing transport.
type doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Config configures one Client. SlideWindow == 0 disables the fuse
// entirely — every request goes straight through with no accounting.
type Config struct {
	SlideWindow       time.Duration
	Threshold         uint64
	RecoveryInterval  time.Duration
	RecoveryThreshold uint64
	InplaceRetryTimes int
	Timeout           time.Duration
	Coefficient       float64
	LatencyTimeout    time.Duration // 0 means unbounded
	Scheme            string        // "http" or "https"; defaults to "http"
}

// Client is the per-destination circuit breaker. Zero value is not
// usable — construct with New.
type Client struct {
	destination string
	scheme      string
	pool        *pool.Pool
	counter     *counter.Window
	slideWindow int
	threshold   uint64
	logger      zerolog.Logger

	inplaceRetryTimes int

	timeout        atomicDuration
	coefficient    atomicFloat
	latencyTimeout atomicDuration

	recoveryInterval  time.Duration
	recoveryThreshold uint64

	inFuseMode atomicBool

	mu             sync.Mutex
	trigger        SharedTrigger
	recoveryCancel context.CancelFunc
	recoveryWG     sync.WaitGroup

	// Tester overrides the recovery worker's probe. Nil means the
	// default: always succeed (spec.md §4.4 "default: always
	// succeeds"). Real destinations should call UseHTTPProbe instead
	// of setting this directly.
	Tester func(ctx context.Context) bool
}

// New constructs a Client fronting destination through p. A zero
// Coefficient defaults to 1, so an unset multiplier never collapses the
// effective timeout to zero; a zero RecoveryThreshold defaults to 2 and
// a zero RecoveryInterval to 5s.
func New(destination string, p *pool.Pool, cfg Config, logger zerolog.Logger) *Client {
	if cfg.Coefficient == 0 {
		cfg.Coefficient = 1
	}
	if cfg.RecoveryThreshold == 0 {
		cfg.RecoveryThreshold = 2
	}
	if cfg.RecoveryInterval == 0 {
		cfg.RecoveryInterval = 5 * time.Second
	}
	scheme := cfg.Scheme
	if scheme == "" {
		scheme = "http"
	}

	c := &Client{
		destination:       destination,
		scheme:            scheme,
		pool:              p,
		threshold:         cfg.Threshold,
		inplaceRetryTimes: cfg.InplaceRetryTimes,
		recoveryInterval:  cfg.RecoveryInterval,
		recoveryThreshold: cfg.RecoveryThreshold,
		logger:            logger.With().Str("component", "fuse").Str("destination", destination).Logger(),
	}
	c.timeout.Store(cfg.Timeout)
	c.coefficient.Store(cfg.Coefficient)
	c.latencyTimeout.Store(cfg.LatencyTimeout)

	c.configureWindow(cfg.SlideWindow)

	return c
}

func (c *Client) configureWindow(slideWindow time.Duration) {
	if slideWindow <= 0 {
		c.counter = nil
		c.slideWindow = 0
		return
	}
	buckets := int(slideWindow / time.Second)
	if buckets < 1 {
		buckets = 1
	}
	if buckets > maxSlideWindowBuckets {
		buckets = maxSlideWindowBuckets
	}
	c.slideWindow = buckets
	c.counter = counter.New(time.Second, maxSlideWindowBuckets)
}

// SetFuse reconfigures the slide window and threshold at runtime.
// Setting slideWindow to 0 disables fuse accounting by dropping the
// counter, but per spec.md §9 this does not stop an already-running
// recovery worker — it keeps running to its own terminating condition.
func (c *Client) SetFuse(slideWindow time.Duration, threshold uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.threshold = threshold
	c.configureWindow(slideWindow)
}

// SetTimeout, SetCoefficient, and SetLatencyTimeout update atomic
// per-request tuning knobs; new values take effect on the next attempt.
func (c *Client) SetTimeout(d time.Duration)        { c.timeout.Store(d) }
func (c *Client) SetCoefficient(f float64)          { c.coefficient.Store(f) }
func (c *Client) SetLatencyTimeout(d time.Duration) { c.latencyTimeout.Store(d) }

func (c *Client) Timeout() time.Duration        { return c.timeout.Load() }
func (c *Client) Coefficient() float64          { return c.coefficient.Load() }
func (c *Client) LatencyTimeout() time.Duration { return c.latencyTimeout.Load() }

// InFuseMode reports whether the circuit is currently tripped open.
func (c *Client) InFuseMode() bool { return c.inFuseMode.Load() }

// SetSharedTrigger installs a SharedTrigger (e.g. destination.RedisTrigger)
// so several Clients fronting the same destination cooperate on a
// single recovery prober. Must be called before the first trip to take
// effect for that trip.
func (c *Client) SetSharedTrigger(t SharedTrigger) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.trigger = t
}

// UseHTTPProbe installs the default real-world Tester: a GET (or given
// method) against path, issued through the same pool and bypassing the
// open circuit, exactly as spec.md §4.4 describes ("real subclasses
// issue a health probe through do_request").
func (c *Client) UseHTTPProbe(method, path string) {
	if method == "" {
		method = http.MethodGet
	}
	c.Tester = func(ctx context.Context) bool {
		status, _, err := c.do(ctx, method, path, nil, nil, true)
		return err == nil && status >= 200 && status < 300
	}
}

// Do issues one request through the fuse, retrying in place up to
// InplaceRetryTimes and feeding the outcome into the failure counter.
// Returns (-1, nil, ErrCircuitOpen) if the circuit is open, (-1, nil,
// ErrNoConnection) if the pool cannot produce a connection, or the last
// observed HTTP status and body otherwise — matching spec.md §7's
// caller-observable return contract.
func (c *Client) Do(ctx context.Context, method, path string, headers http.Header, body Body) (int, []byte, error) {
	return c.do(ctx, method, path, headers, body, false)
}

func (c *Client) do(ctx context.Context, method, path string, headers http.Header, body Body, isProbe bool) (int, []byte, error) {
	if headers == nil {
		headers = make(http.Header)
	}
	traceID := headers.Get("X-Trace-Id")
	if traceID == "" {
		traceID = traceid.New()
		headers.Set("X-Trace-Id", traceID)
	}
	headers.Set("X-Amzn-Trace-Id", "Root="+traceID)

	if !isProbe && c.inFuseMode.Load() {
		trig := c.loadTrigger()
		if trig == nil || trig.IsTripped() {
			return -1, nil, ErrCircuitOpen
		}
		// The prober already closed the trigger: we're draining the
		// trip flag (HALF_CLOSED). Reset locally and let this request
		// through; if it returns, the state machine is CLOSED again.
		c.inFuseMode.Store(false)
		if c.counter != nil {
			c.counter.Reset()
		}
	}

	conn, err := c.pool.Acquire(c.destination, 0)
	if err != nil {
		return -1, nil, ErrNoConnection
	}
	d, ok := conn.(doer)
	if !ok {
		_ = c.pool.Release(c.destination, conn)
		return -1, nil, ErrNoConnection
	}

	attempts := 0
	if !isProbe {
		attempts = c.inplaceRetryTimes
	}

	var (
		lastStatus  int
		lastBody    []byte
		lastOutcome outcome
		maxLatency  time.Duration
	)

	for i := 0; i <= attempts; i++ {
		effectiveTimeout := time.Duration(float64(c.Timeout()) * c.Coefficient())

		req, buildErr := c.buildRequest(ctx, method, path, headers, body, effectiveTimeout)
		if buildErr != nil {
			_ = c.pool.Release(c.destination, conn)
			return -1, nil, buildErr
		}

		t0 := time.Now()
		resp, sendErr := d.Do(req)
		latency := time.Since(t0)
		if latency > maxLatency {
			maxLatency = latency
		}

		status, respBody := readResponse(resp, sendErr)
		lastStatus, lastBody = status, respBody
		lastOutcome = classify(status, sendErr)

		if lastOutcome == outcomeSuccess || lastOutcome == outcomeClientError {
			break
		}
	}

	if releaseErr := c.pool.Release(c.destination, conn); releaseErr != nil {
		// Pool bookkeeping is corrupt; surface the last status with no
		// fuse accounting, per spec.md §7.
		return lastStatus, lastBody, nil
	}

	if !isProbe && c.counter != nil {
		isFault := lastOutcome != outcomeSuccess && lastOutcome != outcomeClientError
		latencyTimeout := c.LatencyTimeout()
		if latencyTimeout > 0 && maxLatency > latencyTimeout {
			isFault = true
		}
		if isFault {
			c.counter.Add(1)
			if c.counter.SumOfLast(c.slideWindow) >= c.threshold {
				c.maybeTrip()
			}
		}
	}

	return lastStatus, lastBody, nil
}

func (c *Client) buildRequest(ctx context.Context, method, path string, headers http.Header, body Body, timeout time.Duration) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		r, err := body.Prepare(headers)
		if err != nil {
			return nil, err
		}
		reader = r
	}

	reqCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, timeout)
		go func() {
			<-reqCtx.Done()
			cancel()
		}()
	}

	url := c.scheme + "://" + c.destination + path
	req, err := http.NewRequestWithContext(reqCtx, method, url, reader)
	if err != nil {
		return nil, err
	}
	for k, vv := range headers {
		req.Header[k] = vv
	}
	return req, nil
}

func readResponse(resp *http.Response, sendErr error) (int, []byte) {
	if sendErr != nil {
		return 0, nil
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, b
}

// maybeTrip attempts the closed → open transition. The shared trigger is
// allocated and CAS-tripped first; inFuseMode only flips to true once
// the trigger is guaranteed non-nil, so a concurrent do() can never
// observe inFuseMode == true with a nil trigger and mistake a trip in
// progress for a prober having already closed the circuit. TryTrip's
// own CAS still elects exactly one caller to spawn the recovery worker.
func (c *Client) maybeTrip() {
	trig := c.ensureTrigger()
	won := trig.TryTrip()
	c.inFuseMode.Store(true)
	if won {
		c.spawnRecoveryWorker(trig)
	}
}

func (c *Client) loadTrigger() SharedTrigger {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.trigger
}

func (c *Client) ensureTrigger() SharedTrigger {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.trigger == nil {
		c.trigger = NewLocalTrigger()
	}
	return c.trigger
}

func (c *Client) spawnRecoveryWorker(trig SharedTrigger) {
	c.mu.Lock()
	prevCancel := c.recoveryCancel
	c.mu.Unlock()
	if prevCancel != nil {
		prevCancel()
	}
	c.recoveryWG.Wait()

	ctx, cancel := context.WithCancel(context.Background())
	c.mu.Lock()
	c.recoveryCancel = cancel
	c.mu.Unlock()

	c.recoveryWG.Add(1)
	go c.recoveryLoop(ctx, trig)
}

func (c *Client) recoveryLoop(ctx context.Context, trig SharedTrigger) {
	defer c.recoveryWG.Done()
	defer trig.Reset()

	c.logger.Info().Msg("recovery worker started")
	defer c.logger.Info().Msg("recovery worker stopped")

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	var recoveryCount uint64
	var sinceProbe time.Duration

	for c.inFuseMode.Load() {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		sinceProbe += time.Second
		if sinceProbe < c.recoveryInterval {
			continue
		}

		if c.test(ctx) {
			recoveryCount++
			if recoveryCount >= c.recoveryThreshold {
				if c.counter != nil {
					c.counter.Reset()
				}
				c.inFuseMode.Store(false)
			}
		} else {
			recoveryCount = 0
		}
		sinceProbe = 0
	}
}

func (c *Client) test(ctx context.Context) bool {
	if c.Tester != nil {
		return c.Tester(ctx)
	}
	return true
}

// Close stops the recovery worker (if any) and joins it. It does not
// close the underlying pool, which may be shared across destinations.
func (c *Client) Close() error {
	c.inFuseMode.Store(false)
	c.mu.Lock()
	cancel := c.recoveryCancel
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	c.recoveryWG.Wait()
	return nil
}
