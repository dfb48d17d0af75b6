package flowgate

import (
	"sync"
	"time"

	json "github.com/goccy/go-json"
)

// healthWindow is the number of recent calls the success rate is computed
// over.
const healthWindow = 100

type (
	// settings collects everything the functional options configure.
	settings struct {
		clock       Clock
		hooks       *Hooks
		registry    *Registry
		cache       Cache
		retry       RetryConfig
		retrySet    bool
		breakerOpts []BreakerOption
		poolOpts    []PoolOption
		metricsCap  int
		cacheTTL    time.Duration
	}

	// Option configures a Registry or Client at construction.
	Option func(*settings)

	// Registry owns all per-endpoint resilience state: the breaker map,
	// the connection pool, the metrics recorder, the offline cache, and
	// the recovery manager. Callers pass a Registry by reference instead
	// of relying on process-wide singletons, which also gives tests a
	// fresh world per test.
	Registry struct {
		clock       Clock
		hooks       *Hooks
		pool        *ConnectionPool
		recorder    *Recorder
		cache       Cache
		recovery    *RecoveryManager
		breakers    map[string]*CircuitBreaker
		breakerOpts []BreakerOption
		mu          sync.Mutex
	}

	// HealthStats is the aggregate view handed to operators and telemetry
	// sinks.
	HealthStats struct {
		CircuitBreakers map[string]BreakerState `json:"circuit_breakers"`
		SuccessRate     float64                 `json:"success_rate"`
		AverageLatency  time.Duration           `json:"average_latency"`
		PoolUtilization float64                 `json:"pool_utilization"`
	}
)

// WithClock sets the clock used by every component.
func WithClock(c Clock) Option {
	return func(s *settings) {
		s.clock = c
	}
}

// WithHooks sets lifecycle hooks for every component.
func WithHooks(h *Hooks) Option {
	return func(s *settings) {
		s.hooks = h
	}
}

// WithRegistry makes the client use an existing registry instead of
// creating its own, so several clients can share breaker and pool state.
func WithRegistry(r *Registry) Option {
	return func(s *settings) {
		s.registry = r
	}
}

// WithRetryConfig sets the client's default retry settings.
func WithRetryConfig(rc RetryConfig) Option {
	return func(s *settings) {
		s.retry = rc
		s.retrySet = true
	}
}

// WithBreakerOptions sets the options applied to every lazily created
// breaker.
func WithBreakerOptions(opts ...BreakerOption) Option {
	return func(s *settings) {
		s.breakerOpts = append(s.breakerOpts, opts...)
	}
}

// WithPoolOptions configures the connection pool.
func WithPoolOptions(opts ...PoolOption) Option {
	return func(s *settings) {
		s.poolOpts = append(s.poolOpts, opts...)
	}
}

// WithMetricsCapacity bounds the metrics logs.
func WithMetricsCapacity(n int) Option {
	return func(s *settings) {
		s.metricsCap = n
	}
}

// WithCache replaces the built-in TTL map cache.
func WithCache(c Cache) Option {
	return func(s *settings) {
		s.cache = c
	}
}

// WithCacheTTL sets the default TTL for cached recovery results.
func WithCacheTTL(d time.Duration) Option {
	return func(s *settings) {
		s.cacheTTL = d
	}
}

func buildSettings(opts []Option) settings {
	var s settings
	for _, o := range opts {
		o(&s)
	}

	if s.clock == nil {
		s.clock = RealClock{}
	}

	if s.hooks == nil {
		s.hooks = &Hooks{}
	}

	if !s.retrySet {
		s.retry = DefaultRetryConfig()
	}

	return s
}

// NewRegistry creates a registry with the given options. Per-endpoint state
// is created lazily on first use and lives until Reset.
func NewRegistry(opts ...Option) *Registry {
	s := buildSettings(opts)
	return newRegistry(&s)
}

func newRegistry(s *settings) *Registry {
	cache := s.cache
	if cache == nil {
		cache = NewTTLCache(s.clock)
	}

	recorder := NewRecorder(s.metricsCap)

	return &Registry{
		clock:       s.clock,
		hooks:       s.hooks,
		pool:        NewConnectionPool(s.clock, s.hooks, s.poolOpts...),
		recorder:    recorder,
		cache:       cache,
		recovery: NewRecoveryManager(
			cache, recorder, s.clock, s.hooks, s.cacheTTL,
		),
		breakers:    make(map[string]*CircuitBreaker),
		breakerOpts: s.breakerOpts,
	}
}

// Breaker returns the endpoint's circuit breaker, creating it on first use.
func (r *Registry) Breaker(endpoint string) *CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	cb, ok := r.breakers[endpoint]
	if !ok {
		cb = NewCircuitBreaker(
			endpoint, r.clock, r.hooks, r.breakerOpts...,
		)
		r.breakers[endpoint] = cb
	}

	return cb
}

// Pool returns the shared connection pool.
func (r *Registry) Pool() *ConnectionPool { return r.pool }

// Recorder returns the shared metrics recorder.
func (r *Registry) Recorder() *Recorder { return r.recorder }

// Cache returns the shared offline cache.
func (r *Registry) Cache() Cache { return r.cache }

// Recovery returns the shared recovery manager.
func (r *Registry) Recovery() *RecoveryManager { return r.recovery }

// BreakerStates snapshots every known breaker keyed by endpoint.
func (r *Registry) BreakerStates() map[string]BreakerState {
	r.mu.Lock()
	defer r.mu.Unlock()

	states := make(map[string]BreakerState, len(r.breakers))
	for endpoint, cb := range r.breakers {
		states[endpoint] = cb.Snapshot()
	}

	return states
}

// ResetCircuitBreakers drops all breaker state; breakers are recreated
// closed on next use.
func (r *Registry) ResetCircuitBreakers() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.breakers = make(map[string]*CircuitBreaker)
}

// Reset clears breakers, pool counters, metrics, and the offline cache.
// Intended for operator-triggered recovery, not routine use.
func (r *Registry) Reset() {
	r.ResetCircuitBreakers()
	r.pool.Reset()
	r.recorder.Reset()
	r.cache.Reset()
}

// HealthStats aggregates the registry's current condition: success rate
// over the most recent calls, mean latency, per-endpoint breaker states,
// and pool utilization averaged across endpoints.
func (r *Registry) HealthStats() HealthStats {
	return HealthStats{
		SuccessRate:     r.recorder.SuccessRate(healthWindow),
		AverageLatency:  r.recorder.AverageLatency(),
		CircuitBreakers: r.BreakerStates(),
		PoolUtilization: r.pool.Utilization(),
	}
}

// JSON marshals the stats for logging or HTTP health endpoints.
func (h HealthStats) JSON() ([]byte, error) {
	return json.Marshal(h)
}
