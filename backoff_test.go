package flowgate

import (
	"testing"
	"time"
)

func TestExponentialBackoffGrowth(t *testing.T) {
	b := ExponentialBackoff(time.Second, 2)

	want := []time.Duration{
		1 * time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
	}

	for attempt, exp := range want {
		if got := b.Delay(attempt); got != exp {
			t.Fatalf("Delay(%d) = %v, want %v", attempt, got, exp)
		}
	}
}

func TestRetryConfigDelayCapsAtMaxDelay(t *testing.T) {
	rc := RetryConfig{
		BaseDelay:         time.Second,
		MaxDelay:          10 * time.Second,
		BackoffMultiplier: 2,
	}

	want := []time.Duration{
		1 * time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		10 * time.Second, // 16s capped
		10 * time.Second, // 32s capped
	}

	for attempt, exp := range want {
		if got := rc.delay(attempt); got != exp {
			t.Fatalf("delay(%d) = %v, want %v", attempt, got, exp)
		}
	}
}

func TestConstantBackoff(t *testing.T) {
	b := ConstantBackoff(250 * time.Millisecond)

	for attempt := 0; attempt < 5; attempt++ {
		if got := b.Delay(attempt); got != 250*time.Millisecond {
			t.Fatalf("Delay(%d) = %v, want 250ms", attempt, got)
		}
	}
}

func TestLinearBackoff(t *testing.T) {
	b := LinearBackoff(100 * time.Millisecond)

	want := []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		300 * time.Millisecond,
	}

	for attempt, exp := range want {
		if got := b.Delay(attempt); got != exp {
			t.Fatalf("Delay(%d) = %v, want %v", attempt, got, exp)
		}
	}
}

func TestExponentialJitterBackoffStaysInRange(t *testing.T) {
	b := ExponentialJitterBackoff(time.Second, 2)

	for attempt := 0; attempt < 4; attempt++ {
		upper := time.Duration(1<<attempt) * time.Second

		for i := 0; i < 50; i++ {
			got := b.Delay(attempt)
			if got < 0 || got > upper {
				t.Fatalf(
					"Delay(%d) = %v, want in [0, %v]", attempt, got, upper,
				)
			}
		}
	}
}

func TestBackoffFuncAdapter(t *testing.T) {
	b := BackoffFunc(func(attempt int) time.Duration {
		return time.Duration(attempt) * time.Millisecond
	})

	if got := b.Delay(7); got != 7*time.Millisecond {
		t.Fatalf("Delay(7) = %v, want 7ms", got)
	}
}

func TestRetryConfigCustomStrategyWins(t *testing.T) {
	rc := RetryConfig{
		BaseDelay:         time.Second,
		MaxDelay:          time.Minute,
		BackoffMultiplier: 2,
		Strategy:          ConstantBackoff(5 * time.Millisecond),
	}

	if got := rc.delay(3); got != 5*time.Millisecond {
		t.Fatalf("delay(3) = %v, want 5ms from custom strategy", got)
	}
}
