package flowgate

import (
	"math"
	"math/rand"
	"time"
)

// BackoffStrategy determines the delay inserted before each retry attempt.
type BackoffStrategy interface {
	// Delay returns the duration to wait before the given retry attempt
	// (0-indexed: attempt 0 is the delay after the first failure).
	Delay(attempt int) time.Duration
}

// BackoffFunc adapts an ordinary function into a [BackoffStrategy].
type BackoffFunc func(attempt int) time.Duration

// Delay calls the underlying function.
func (f BackoffFunc) Delay(attempt int) time.Duration { return f(attempt) }

// ---------------------------------------------------------------------------
// ExponentialBackoff
// ---------------------------------------------------------------------------

// exponentialBackoff returns base * multiplier^attempt.
type exponentialBackoff struct {
	base       time.Duration
	multiplier float64
}

func (b *exponentialBackoff) Delay(attempt int) time.Duration {
	return time.Duration(
		float64(b.base) * math.Pow(b.multiplier, float64(attempt)),
	)
}

// ExponentialBackoff returns a [BackoffStrategy] whose delay grows
// geometrically: base * multiplier^attempt. The retry loop caps the result
// at the configured maximum delay.
func ExponentialBackoff(
	base time.Duration,
	multiplier float64,
) BackoffStrategy {
	return &exponentialBackoff{base: base, multiplier: multiplier}
}

// ---------------------------------------------------------------------------
// ConstantBackoff
// ---------------------------------------------------------------------------

// constantBackoff returns the same delay for every attempt.
type constantBackoff struct {
	d time.Duration
}

func (b *constantBackoff) Delay(_ int) time.Duration { return b.d }

// ConstantBackoff returns a [BackoffStrategy] with a fixed delay d
// regardless of the attempt number.
func ConstantBackoff(d time.Duration) BackoffStrategy {
	return &constantBackoff{d: d}
}

// ---------------------------------------------------------------------------
// LinearBackoff
// ---------------------------------------------------------------------------

// linearBackoff returns step * (attempt + 1).
type linearBackoff struct {
	step time.Duration
}

func (b *linearBackoff) Delay(attempt int) time.Duration {
	return b.step * time.Duration(attempt+1)
}

// LinearBackoff returns a [BackoffStrategy] whose delay increases linearly:
// step * (attempt + 1).
func LinearBackoff(step time.Duration) BackoffStrategy {
	return &linearBackoff{step: step}
}

// ---------------------------------------------------------------------------
// ExponentialJitterBackoff
// ---------------------------------------------------------------------------

// exponentialJitterBackoff returns a random duration in
// [0, base * multiplier^attempt].
type exponentialJitterBackoff struct {
	base       time.Duration
	multiplier float64
}

func (b *exponentialJitterBackoff) Delay(attempt int) time.Duration {
	upper := int64(
		float64(b.base) * math.Pow(b.multiplier, float64(attempt)),
	)
	if upper <= 0 {
		return 0
	}

	return time.Duration(rand.Int63n(upper + 1))
}

// ExponentialJitterBackoff returns a [BackoffStrategy] whose delay is a
// random duration uniformly distributed in [0, base * multiplier^attempt].
// Jitter spreads retries across time so concurrent callers hitting the same
// rate-limited endpoint do not retry in lockstep.
func ExponentialJitterBackoff(
	base time.Duration,
	multiplier float64,
) BackoffStrategy {
	return &exponentialJitterBackoff{base: base, multiplier: multiplier}
}
