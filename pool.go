package flowgate

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ---------------------------------------------------------------------------
// Configuration
// ---------------------------------------------------------------------------.

type (
	poolConfig struct {
		maxConnections    int
		connectionTimeout time.Duration
		idleTimeout       time.Duration
		acquireTimeout    time.Duration
	}

	// PoolOption configures a connection pool.
	PoolOption func(*poolConfig)

	// Slot is a held connection slot for one endpoint. A Slot must be
	// released exactly once; extra releases are ignored.
	Slot struct {
		pool     *ConnectionPool
		endpoint string
		id       string
		released bool
		mu       sync.Mutex
	}

	// grant is what a queued waiter eventually receives.
	grant struct {
		slot *Slot
		err  error
	}

	// waiter is one suspended Acquire call. The channel is buffered so the
	// releasing goroutine never blocks on hand-off.
	waiter struct {
		ch chan grant
	}

	// endpointSlots tracks in-flight calls and queued waiters for one
	// endpoint key. Invariant: active never exceeds maxConnections, and
	// waiters resume in enqueue order.
	endpointSlots struct {
		active  int
		waiters []*waiter
	}

	// ConnectionPool bounds concurrent in-flight calls per endpoint key
	// with strict FIFO hand-off: a released slot is transferred atomically
	// to the oldest waiter rather than returned to a free pool that anyone
	// could race for.
	ConnectionPool struct {
		clock     Clock
		hooks     *Hooks
		endpoints map[string]*endpointSlots
		cfg       poolConfig
		mu        sync.Mutex
	}

	// PoolStats is a point-in-time view of one endpoint's slot usage.
	PoolStats struct {
		Endpoint string  `json:"endpoint"`
		Active   int     `json:"active"`
		Waiting  int     `json:"waiting"`
		Max      int     `json:"max"`
		Usage    float64 `json:"usage"`
	}
)

// ErrPoolReset is delivered to waiters still queued when the pool is reset.
var ErrPoolReset error = gateError("connection pool reset")

func defaultPoolConfig() poolConfig {
	return poolConfig{
		maxConnections:    10,
		connectionTimeout: 10 * time.Second,
		idleTimeout:       90 * time.Second,
		acquireTimeout:    0, // wait indefinitely unless configured
	}
}

// MaxConnections sets the per-endpoint concurrency bound.
func MaxConnections(n int) PoolOption {
	return func(cfg *poolConfig) {
		cfg.maxConnections = n
	}
}

// ConnectionTimeout sets the transport-level dial timeout. It does not
// bound slot acquisition; see [AcquireTimeout].
func ConnectionTimeout(d time.Duration) PoolOption {
	return func(cfg *poolConfig) {
		cfg.connectionTimeout = d
	}
}

// IdleTimeout sets how long the transport keeps idle connections around.
func IdleTimeout(d time.Duration) PoolOption {
	return func(cfg *poolConfig) {
		cfg.idleTimeout = d
	}
}

// AcquireTimeout bounds how long Acquire waits for a slot before failing
// with ErrPoolTimeout. Zero means wait until the context is cancelled.
func AcquireTimeout(d time.Duration) PoolOption {
	return func(cfg *poolConfig) {
		cfg.acquireTimeout = d
	}
}

// NewConnectionPool creates a pool with the given options.
func NewConnectionPool(
	clock Clock,
	hooks *Hooks,
	opts ...PoolOption,
) *ConnectionPool {
	cfg := defaultPoolConfig()
	for _, o := range opts {
		o(&cfg)
	}

	// A bound below 1 would make every Acquire queue forever and turn the
	// usage ratios into division by zero.
	if cfg.maxConnections < 1 {
		cfg.maxConnections = 1
	}

	return &ConnectionPool{
		clock:     clock,
		hooks:     hooks,
		endpoints: make(map[string]*endpointSlots),
		cfg:       cfg,
	}
}

// Acquire obtains a slot for the endpoint, suspending the caller in FIFO
// order when the endpoint is at capacity. It returns ErrPoolTimeout when an
// acquisition timeout is configured and elapses, and ctx.Err() when the
// context is cancelled while waiting — in both cases the caller's place in
// the queue is given up immediately.
func (p *ConnectionPool) Acquire(
	ctx context.Context,
	endpoint string,
) (*Slot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.Lock()

	es := p.slots(endpoint)
	if es.active < p.cfg.maxConnections {
		es.active++
		p.mu.Unlock()

		p.hooks.emitSlotAcquired(endpoint)

		return p.newSlot(endpoint), nil
	}

	w := &waiter{ch: make(chan grant, 1)}
	es.waiters = append(es.waiters, w)
	waiting := len(es.waiters)

	p.mu.Unlock()

	p.hooks.emitPoolSaturated(endpoint, waiting)

	var timeout <-chan time.Time

	if p.cfg.acquireTimeout > 0 {
		timer := p.clock.NewTimer(p.cfg.acquireTimeout)
		defer timer.Stop()

		timeout = timer.C()
	}

	select {
	case g := <-w.ch:
		if g.err != nil {
			return nil, g.err
		}

		p.hooks.emitSlotAcquired(endpoint)

		return g.slot, nil

	case <-ctx.Done():
		p.abandon(endpoint, w)
		return nil, ctx.Err()

	case <-timeout:
		p.abandon(endpoint, w)
		return nil, ErrPoolTimeout
	}
}

// Release returns the slot to the pool. If waiters are queued, the slot is
// handed to the oldest one without the active count ever dipping; otherwise
// the active count is decremented.
func (p *ConnectionPool) Release(s *Slot) {
	if s == nil {
		return
	}

	s.mu.Lock()
	if s.released {
		s.mu.Unlock()
		return
	}

	s.released = true
	s.mu.Unlock()

	p.mu.Lock()

	es := p.slots(s.endpoint)
	if len(es.waiters) > 0 {
		w := es.waiters[0]
		es.waiters = es.waiters[1:]
		p.mu.Unlock()

		// Atomic slot transfer: active stays constant across hand-off.
		w.ch <- grant{slot: p.newSlot(s.endpoint)}
	} else {
		if es.active > 0 {
			es.active--
		}
		p.mu.Unlock()
	}

	p.hooks.emitSlotReleased(s.endpoint)
}

// abandon removes w from the endpoint's wait queue after a cancellation or
// timeout. If a slot was granted concurrently, the grant is drained and the
// slot released so it is not leaked.
func (p *ConnectionPool) abandon(endpoint string, w *waiter) {
	p.mu.Lock()

	es := p.slots(endpoint)
	for i, queued := range es.waiters {
		if queued == w {
			es.waiters = append(es.waiters[:i], es.waiters[i+1:]...)
			p.mu.Unlock()

			return
		}
	}

	p.mu.Unlock()

	// Not in the queue: Release already granted us a slot. Give it back.
	g := <-w.ch
	if g.slot != nil {
		p.Release(g.slot)
	}
}

// Stats returns per-endpoint usage snapshots, sorted by nothing in
// particular (map iteration order).
func (p *ConnectionPool) Stats() []PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	stats := make([]PoolStats, 0, len(p.endpoints))
	for endpoint, es := range p.endpoints {
		stats = append(stats, PoolStats{
			Endpoint: endpoint,
			Active:   es.active,
			Waiting:  len(es.waiters),
			Max:      p.cfg.maxConnections,
			Usage:    float64(es.active) / float64(p.cfg.maxConnections),
		})
	}

	return stats
}

// Utilization returns active/max averaged across endpoints that have been
// used at least once. Returns 0 when no endpoint has state yet.
func (p *ConnectionPool) Utilization() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.endpoints) == 0 {
		return 0
	}

	var sum float64
	for _, es := range p.endpoints {
		sum += float64(es.active) / float64(p.cfg.maxConnections)
	}

	return sum / float64(len(p.endpoints))
}

// Reset clears all per-endpoint counters. Queued waiters are failed with
// ErrPoolReset rather than left suspended against state that no longer
// exists. Intended for operator-triggered recovery.
func (p *ConnectionPool) Reset() {
	p.mu.Lock()

	old := p.endpoints
	p.endpoints = make(map[string]*endpointSlots)

	p.mu.Unlock()

	for _, es := range old {
		for _, w := range es.waiters {
			w.ch <- grant{err: ErrPoolReset}
		}
	}
}

// slots returns the lazily created state for endpoint. Caller holds p.mu.
func (p *ConnectionPool) slots(endpoint string) *endpointSlots {
	es, ok := p.endpoints[endpoint]
	if !ok {
		es = &endpointSlots{}
		p.endpoints[endpoint] = es
	}

	return es
}

func (p *ConnectionPool) newSlot(endpoint string) *Slot {
	return &Slot{
		pool:     p,
		endpoint: endpoint,
		id:       uuid.NewString(),
	}
}

// ID returns the slot's unique token identity.
func (s *Slot) ID() string { return s.id }

// Endpoint returns the endpoint key the slot belongs to.
func (s *Slot) Endpoint() string { return s.endpoint }

// Release returns the slot to its pool. Safe to call more than once.
func (s *Slot) Release() { s.pool.Release(s) }
