package flowgate

import (
	"sync"
	"time"
)

// DefaultMetricsCapacity is the ring size used when no capacity is given.
const DefaultMetricsCapacity = 1000

type (
	// CallMetric is one recorded transport call outcome.
	CallMetric struct {
		Start      time.Time `json:"start"`
		End        time.Time `json:"end"`
		Endpoint   string    `json:"endpoint"`
		Method     string    `json:"method"`
		Err        string    `json:"error,omitempty"`
		StatusCode int       `json:"status_code,omitempty"`
		RetryCount int       `json:"retry_count"`
		Success    bool      `json:"success"`
	}

	// RecoveryMetric is one recorded recovery chain outcome.
	RecoveryMetric struct {
		Timestamp    time.Time     `json:"timestamp"`
		Operation    string        `json:"operation"`
		FallbackUsed string        `json:"fallback_used,omitempty"`
		Err          string        `json:"error,omitempty"`
		RecoveryTime time.Duration `json:"recovery_time"`
		Success      bool          `json:"success"`
	}

	// ring is a fixed-capacity circular buffer. Oldest entries are evicted
	// on overflow. Not safe for concurrent use on its own; the Recorder
	// serialises access.
	ring[T any] struct {
		buf  []T
		next int
		full bool
	}

	// Recorder keeps bounded logs of call and recovery outcomes and derives
	// aggregate views from them. All methods are safe for concurrent use;
	// append and trim happen under one lock so no update is lost.
	Recorder struct {
		mu         sync.Mutex
		calls      ring[CallMetric]
		recoveries ring[RecoveryMetric]
	}
)

func newRing[T any](capacity int) ring[T] {
	return ring[T]{buf: make([]T, 0, capacity)}
}

func (r *ring[T]) append(v T) {
	if len(r.buf) < cap(r.buf) {
		r.buf = append(r.buf, v)
		return
	}

	r.buf[r.next] = v
	r.next = (r.next + 1) % cap(r.buf)
	r.full = true
}

// snapshot returns retained entries oldest first.
func (r *ring[T]) snapshot() []T {
	out := make([]T, 0, len(r.buf))
	if r.full {
		out = append(out, r.buf[r.next:]...)
		out = append(out, r.buf[:r.next]...)
	} else {
		out = append(out, r.buf...)
	}

	return out
}

func (r *ring[T]) len() int { return len(r.buf) }

func (r *ring[T]) reset() {
	r.buf = r.buf[:0]
	r.next = 0
	r.full = false
}

// NewRecorder creates a recorder retaining up to capacity entries per log.
// Pass 0 for DefaultMetricsCapacity.
func NewRecorder(capacity int) *Recorder {
	if capacity <= 0 {
		capacity = DefaultMetricsCapacity
	}

	return &Recorder{
		calls:      newRing[CallMetric](capacity),
		recoveries: newRing[RecoveryMetric](capacity),
	}
}

// RecordCall appends a call outcome, evicting the oldest entry when full.
func (r *Recorder) RecordCall(m CallMetric) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.calls.append(m)
}

// RecordRecovery appends a recovery outcome, evicting the oldest when full.
func (r *Recorder) RecordRecovery(m RecoveryMetric) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.recoveries.append(m)
}

// Calls returns the retained call metrics, oldest first.
func (r *Recorder) Calls() []CallMetric {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.calls.snapshot()
}

// Recoveries returns the retained recovery metrics, oldest first.
func (r *Recorder) Recoveries() []RecoveryMetric {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.recoveries.snapshot()
}

// CallCount returns the number of retained call metrics.
func (r *Recorder) CallCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.calls.len()
}

// SuccessRate returns the fraction of successful calls among the most
// recent lastK entries (all retained entries when lastK <= 0 or exceeds the
// log length). With no recorded calls it returns 1: no evidence of failure.
func (r *Recorder) SuccessRate(lastK int) float64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	all := r.calls.snapshot()
	if len(all) == 0 {
		return 1
	}

	if lastK <= 0 || lastK > len(all) {
		lastK = len(all)
	}

	window := all[len(all)-lastK:]

	succeeded := 0
	for _, m := range window {
		if m.Success {
			succeeded++
		}
	}

	return float64(succeeded) / float64(len(window))
}

// AverageLatency returns the mean call duration across retained entries.
func (r *Recorder) AverageLatency() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()

	all := r.calls.snapshot()
	if len(all) == 0 {
		return 0
	}

	var total time.Duration
	for _, m := range all {
		total += m.End.Sub(m.Start)
	}

	return total / time.Duration(len(all))
}

// Reset clears both logs.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.calls.reset()
	r.recoveries.reset()
}
