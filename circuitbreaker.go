package flowgate

import (
	"sync/atomic"
	"time"
)

// ---------------------------------------------------------------------------
// Configuration
// ---------------------------------------------------------------------------.

type (
	breakerConfig struct {
		failureThreshold int
		resetTimeout     time.Duration
		monitoringPeriod time.Duration
	}

	// BreakerOption configures a circuit breaker.
	BreakerOption func(*breakerConfig)

	// CircuitBreaker tracks the health of one endpoint and fast-fails calls
	// while the endpoint is considered down. Lock-free via atomic CAS.
	//
	// Half-open is gated to exactly one in-flight probe: once the reset
	// timeout elapses, a single caller wins the probe slot and issues the
	// trial call; everyone else keeps receiving ErrCircuitOpen until the
	// probe completes.
	CircuitBreaker struct {
		clock    Clock
		hooks    *Hooks
		endpoint string
		cfg      breakerConfig

		state           atomic.Uint32 // stateClosed | stateOpen | stateHalfOpen
		failureCount    atomic.Int64
		lastFailureNano atomic.Int64 // unix nano of last failure
		nextAttemptNano atomic.Int64 // unix nano before which open fast-fails
		probing         atomic.Bool  // half-open probe in flight
	}

	// BreakerState is a point-in-time snapshot of one breaker, exposed
	// through health stats.
	BreakerState struct {
		State       string    `json:"state"`
		LastFailure time.Time `json:"last_failure"`
		NextAttempt time.Time `json:"next_attempt"`
		Failures    int64     `json:"failures"`
	}
)

// Circuit breaker states (stored in atomic.Uint32).
const (
	stateClosed   uint32 = 0
	stateOpen     uint32 = 1
	stateHalfOpen uint32 = 2
)

func defaultBreakerConfig() breakerConfig {
	return breakerConfig{
		failureThreshold: 5,
		resetTimeout:     30 * time.Second,
		monitoringPeriod: 60 * time.Second,
	}
}

// FailureThreshold sets the number of consecutive failures before opening.
func FailureThreshold(n int) BreakerOption {
	return func(cfg *breakerConfig) {
		cfg.failureThreshold = n
	}
}

// ResetTimeout sets how long the breaker stays open before allowing a
// half-open probe.
func ResetTimeout(d time.Duration) BreakerOption {
	return func(cfg *breakerConfig) {
		cfg.resetTimeout = d
	}
}

// MonitoringPeriod sets the failure observation window. A failure arriving
// more than this period after the previous one starts a fresh count, so
// sporadic failures spread over hours never trip the breaker. Zero disables
// the window.
func MonitoringPeriod(d time.Duration) BreakerOption {
	return func(cfg *breakerConfig) {
		cfg.monitoringPeriod = d
	}
}

// NewCircuitBreaker creates a circuit breaker for one endpoint key.
func NewCircuitBreaker(
	endpoint string,
	clock Clock,
	hooks *Hooks,
	opts ...BreakerOption,
) *CircuitBreaker {
	cfg := defaultBreakerConfig()
	for _, o := range opts {
		o(&cfg)
	}

	return &CircuitBreaker{
		clock:    clock,
		hooks:    hooks,
		endpoint: endpoint,
		cfg:      cfg,
	}
}

// Allow checks whether a call may proceed. It returns nil when the breaker
// is closed, or when the caller won the single half-open probe slot.
// It returns ErrCircuitOpen while the breaker is open and the reset timeout
// has not elapsed, and for every caller that lost the probe race.
func (cb *CircuitBreaker) Allow() error {
	switch cb.state.Load() {
	case stateOpen:
		if cb.clock.Now().UnixNano() < cb.nextAttemptNano.Load() {
			return ErrCircuitOpen
		}

		// Reset timeout elapsed: move to half-open. Losing the CAS just
		// means another goroutine transitioned first; either way the
		// breaker is now half-open and the probe gate below decides.
		cb.state.CompareAndSwap(stateOpen, stateHalfOpen)

		return cb.tryProbe()

	case stateHalfOpen:
		return cb.tryProbe()

	default:
		return nil
	}
}

// tryProbe admits exactly one caller while half-open.
func (cb *CircuitBreaker) tryProbe() error {
	if cb.probing.CompareAndSwap(false, true) {
		cb.hooks.emitCircuitHalfOpen(cb.endpoint)
		return nil
	}

	return ErrCircuitOpen
}

// RecordSuccess records a successful call.
func (cb *CircuitBreaker) RecordSuccess() {
	switch cb.state.Load() {
	case stateClosed:
		cb.failureCount.Store(0)

	case stateHalfOpen:
		// The probe succeeded: close and start from a clean slate.
		if cb.state.CompareAndSwap(stateHalfOpen, stateClosed) {
			cb.failureCount.Store(0)
			cb.probing.Store(false)
			cb.hooks.emitCircuitClose(cb.endpoint)
		}

	default:
		// stateOpen — success cannot be observed here; calls are gated.
	}
}

// RecordFailure records a failed call.
func (cb *CircuitBreaker) RecordFailure() {
	now := cb.clock.Now()
	prevNano := cb.lastFailureNano.Swap(now.UnixNano())

	switch cb.state.Load() {
	case stateClosed:
		count := cb.failureCount.Add(1)

		// A failure outside the monitoring window starts a fresh count.
		if cb.cfg.monitoringPeriod > 0 && prevNano != 0 &&
			now.Sub(time.Unix(0, prevNano)) > cb.cfg.monitoringPeriod {
			cb.failureCount.Store(1)
			count = 1
		}

		if count < int64(cb.cfg.failureThreshold) {
			return
		}

		if cb.state.CompareAndSwap(stateClosed, stateOpen) {
			cb.nextAttemptNano.Store(
				now.Add(cb.cfg.resetTimeout).UnixNano(),
			)
			cb.hooks.emitCircuitOpen(cb.endpoint)
		}

	case stateHalfOpen:
		// The probe failed: back to open for another full reset timeout.
		cb.failureCount.Add(1)

		// The fresh deadline must be visible before the state flips back
		// to open; a racing Allow observing stateOpen with the stale,
		// already-expired deadline would win an immediate second probe.
		cb.nextAttemptNano.Store(
			now.Add(cb.cfg.resetTimeout).UnixNano(),
		)

		if cb.state.CompareAndSwap(stateHalfOpen, stateOpen) {
			cb.probing.Store(false)
			cb.hooks.emitCircuitOpen(cb.endpoint)
		}

	default:
		// stateOpen — already open, nothing to do.
	}
}

// State returns the current state as a string: "closed", "open", or
// "half_open".
func (cb *CircuitBreaker) State() string {
	switch cb.state.Load() {
	case stateOpen:
		return "open"
	case stateHalfOpen:
		return "half_open"
	default:
		return "closed"
	}
}

// Snapshot returns a point-in-time view of the breaker for health stats.
func (cb *CircuitBreaker) Snapshot() BreakerState {
	s := BreakerState{
		State:    cb.State(),
		Failures: cb.failureCount.Load(),
	}

	if n := cb.lastFailureNano.Load(); n != 0 {
		s.LastFailure = time.Unix(0, n)
	}

	if n := cb.nextAttemptNano.Load(); n != 0 {
		s.NextAttempt = time.Unix(0, n)
	}

	return s
}
