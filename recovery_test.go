package flowgate

import (
	"context"
	"errors"
	"testing"
	"time"
)

func newTestRecovery(clk Clock) *RecoveryManager {
	return NewRecoveryManager(
		NewTTLCache(clk), NewRecorder(0), clk, &Hooks{}, 0,
	)
}

func failingPrimary(err error) func(context.Context) (any, error) {
	return func(context.Context) (any, error) {
		return nil, err
	}
}

// ---------------------------------------------------------------------------
// Primary path
// ---------------------------------------------------------------------------

func TestRecoveryPrimarySuccess(t *testing.T) {
	m := newTestRecovery(newStubClock())

	res, err := m.ExecuteWithFallback(
		context.Background(),
		"list_workflows",
		func(context.Context) (any, error) { return "live", nil },
		nil,
	)
	if err != nil {
		t.Fatalf("ExecuteWithFallback() = %v, want nil", err)
	}

	if res.Data != "live" || res.FallbackUsed != "" || res.FromCache {
		t.Fatalf("result = %+v, want live primary result", res)
	}

	recs := m.recorder.Recoveries()
	if len(recs) != 1 || !recs[0].Success || recs[0].FallbackUsed != "" {
		t.Fatalf("recovery metrics = %+v, want one clean success", recs)
	}
}

// ---------------------------------------------------------------------------
// Cache short-circuit
// ---------------------------------------------------------------------------

func TestRecoveryCacheHitShortCircuits(t *testing.T) {
	clk := newStubClock()
	m := newTestRecovery(clk)

	// First call caches the result.
	_, err := m.ExecuteWithFallback(
		context.Background(),
		"get_workflow",
		func(context.Context) (any, error) { return "v1", nil },
		map[string]string{"id": "wf-1"},
		CacheFor(time.Minute),
	)
	if err != nil {
		t.Fatalf("first call = %v", err)
	}

	// Second call must be served from cache without running the primary.
	primaryCalls := 0

	res, err := m.ExecuteWithFallback(
		context.Background(),
		"get_workflow",
		func(context.Context) (any, error) {
			primaryCalls++
			return "v2", nil
		},
		map[string]string{"id": "wf-1"},
	)
	if err != nil {
		t.Fatalf("second call = %v", err)
	}

	if primaryCalls != 0 {
		t.Fatalf("primary ran %d times, want 0 (cache hit)", primaryCalls)
	}

	if res.Data != "v1" || !res.FromCache {
		t.Fatalf("result = %+v, want cached v1", res)
	}
}

func TestRecoverySkipCacheBypassesRead(t *testing.T) {
	clk := newStubClock()
	m := newTestRecovery(clk)

	key, _ := cacheKey("get_workflow", nil)
	m.Cache().Set(key, "stale", time.Minute)

	res, err := m.ExecuteWithFallback(
		context.Background(),
		"get_workflow",
		func(context.Context) (any, error) { return "fresh", nil },
		nil,
		SkipCache(),
	)
	if err != nil {
		t.Fatalf("ExecuteWithFallback() = %v", err)
	}

	if res.Data != "fresh" || res.FromCache {
		t.Fatalf("result = %+v, want fresh primary result", res)
	}
}

func TestRecoveryCachedEntryExpires(t *testing.T) {
	clk := newStubClock()
	m := newTestRecovery(clk)

	_, _ = m.ExecuteWithFallback(
		context.Background(),
		"list_workflows",
		func(context.Context) (any, error) { return "v1", nil },
		nil,
		CacheFor(100*time.Millisecond),
	)

	clk.advance(150 * time.Millisecond)

	primaryCalls := 0

	_, err := m.ExecuteWithFallback(
		context.Background(),
		"list_workflows",
		func(context.Context) (any, error) {
			primaryCalls++
			return "v2", nil
		},
		nil,
	)
	if err != nil {
		t.Fatalf("ExecuteWithFallback() = %v", err)
	}

	if primaryCalls != 1 {
		t.Fatalf("primary ran %d times, want 1 (entry expired)", primaryCalls)
	}
}

// ---------------------------------------------------------------------------
// Fallback chain
// ---------------------------------------------------------------------------

func TestRecoveryFallbackOrderByPriority(t *testing.T) {
	m := newTestRecovery(newStubClock())

	var tried []string

	// Registered out of order; priority decides.
	m.AddFallbackStrategy("list_workflows", FallbackStrategy{
		Name:     "default",
		Priority: 2,
		Execute: func(context.Context, *FallbackContext) (any, error) {
			tried = append(tried, "default")
			return "default-data", nil
		},
	})
	m.AddFallbackStrategy("list_workflows", FallbackStrategy{
		Name:     "cache",
		Priority: 1,
		Execute: func(context.Context, *FallbackContext) (any, error) {
			tried = append(tried, "cache")
			return nil, errors.New("cache empty")
		},
	})

	res, err := m.ExecuteWithFallback(
		context.Background(),
		"list_workflows",
		failingPrimary(errors.New("api down")),
		nil,
	)
	if err != nil {
		t.Fatalf("ExecuteWithFallback() = %v, want fallback success", err)
	}

	if len(tried) != 2 || tried[0] != "cache" || tried[1] != "default" {
		t.Fatalf("strategies tried in order %v, want [cache default]", tried)
	}

	if res.FallbackUsed != "default" || res.Data != "default-data" {
		t.Fatalf("result = %+v, want default fallback", res)
	}

	recs := m.recorder.Recoveries()
	if len(recs) != 1 || recs[0].FallbackUsed != "default" {
		t.Fatalf("recovery metrics = %+v, want fallback_used=default", recs)
	}
}

func TestRecoveryDisabledStrategySkipped(t *testing.T) {
	m := newTestRecovery(newStubClock())

	m.AddFallbackStrategy("op", FallbackStrategy{
		Name:     "first",
		Priority: 1,
		Execute: func(context.Context, *FallbackContext) (any, error) {
			return "first", nil
		},
	})
	m.AddFallbackStrategy("op", FallbackStrategy{
		Name:     "second",
		Priority: 2,
		Execute: func(context.Context, *FallbackContext) (any, error) {
			return "second", nil
		},
	})

	if !m.ToggleFallbackStrategy("op", "first", false) {
		t.Fatal("ToggleFallbackStrategy() = false, want true")
	}

	res, err := m.ExecuteWithFallback(
		context.Background(), "op", failingPrimary(errors.New("down")), nil,
	)
	if err != nil {
		t.Fatalf("ExecuteWithFallback() = %v", err)
	}

	if res.FallbackUsed != "second" {
		t.Fatalf("FallbackUsed = %q, want %q", res.FallbackUsed, "second")
	}
}

func TestRecoveryToggleUnknownStrategy(t *testing.T) {
	m := newTestRecovery(newStubClock())

	if m.ToggleFallbackStrategy("op", "ghost", true) {
		t.Fatal("ToggleFallbackStrategy(unknown) = true, want false")
	}
}

func TestRecoveryFallbackContextFields(t *testing.T) {
	clk := newStubClock()
	m := newTestRecovery(clk)

	primaryErr := errors.New("api down")

	var seen *FallbackContext

	m.AddFallbackStrategy("get_execution", FallbackStrategy{
		Name:     "probe",
		Priority: 1,
		Execute: func(_ context.Context, fc *FallbackContext) (any, error) {
			seen = fc
			return "ok", nil
		},
	})

	args := map[string]string{"id": "ex-7"}

	_, err := m.ExecuteWithFallback(
		context.Background(), "get_execution", failingPrimary(primaryErr), args,
	)
	if err != nil {
		t.Fatalf("ExecuteWithFallback() = %v", err)
	}

	if seen == nil {
		t.Fatal("strategy never ran")
	}

	if seen.Operation != "get_execution" || seen.LastErr != primaryErr {
		t.Fatalf("context = %+v, want operation and primary error", seen)
	}

	if seen.AttemptCount != 1 || seen.MaxAttempts != 1 {
		t.Fatalf("attempts = %d/%d, want 1/1",
			seen.AttemptCount, seen.MaxAttempts)
	}
}

// ---------------------------------------------------------------------------
// Exhaustion
// ---------------------------------------------------------------------------

func TestRecoveryExhaustionAggregatesError(t *testing.T) {
	m := newTestRecovery(newStubClock())

	lastErr := errors.New("strategy two failed")

	m.AddFallbackStrategy("op", FallbackStrategy{
		Name:     "one",
		Priority: 1,
		Execute: func(context.Context, *FallbackContext) (any, error) {
			return nil, errors.New("strategy one failed")
		},
	})
	m.AddFallbackStrategy("op", FallbackStrategy{
		Name:     "two",
		Priority: 2,
		Execute: func(context.Context, *FallbackContext) (any, error) {
			return nil, lastErr
		},
	})

	_, err := m.ExecuteWithFallback(
		context.Background(), "op", failingPrimary(errors.New("down")), nil,
	)

	var recErr *RecoveryError
	if !errors.As(err, &recErr) {
		t.Fatalf("error = %v, want *RecoveryError", err)
	}

	if recErr.StrategiesTried != 2 || !errors.Is(recErr, lastErr) {
		t.Fatalf("RecoveryError = %+v, want 2 strategies and last error", recErr)
	}

	recs := m.recorder.Recoveries()
	if len(recs) != 1 || recs[0].Success {
		t.Fatalf("recovery metrics = %+v, want one failure", recs)
	}
}

func TestRecoveryNoStrategiesSurfacesPrimaryError(t *testing.T) {
	m := newTestRecovery(newStubClock())

	primaryErr := errors.New("api down")

	_, err := m.ExecuteWithFallback(
		context.Background(), "op", failingPrimary(primaryErr), nil,
	)

	var recErr *RecoveryError
	if !errors.As(err, &recErr) {
		t.Fatalf("error = %v, want *RecoveryError", err)
	}

	if recErr.StrategiesTried != 0 || !errors.Is(recErr, primaryErr) {
		t.Fatalf("RecoveryError = %+v, want primary error preserved", recErr)
	}
}

// ---------------------------------------------------------------------------
// Built-in strategies
// ---------------------------------------------------------------------------

func TestStaticFallback(t *testing.T) {
	m := newTestRecovery(newStubClock())

	m.AddFallbackStrategy("op", StaticFallback("empty", 99, []string{}))

	res, err := m.ExecuteWithFallback(
		context.Background(), "op", failingPrimary(errors.New("down")), nil,
	)
	if err != nil {
		t.Fatalf("ExecuteWithFallback() = %v", err)
	}

	if res.FallbackUsed != "empty" {
		t.Fatalf("FallbackUsed = %q, want %q", res.FallbackUsed, "empty")
	}
}

func TestCachedFallbackServesLastKnownGood(t *testing.T) {
	clk := newStubClock()
	cache := NewTTLCache(clk)
	m := NewRecoveryManager(cache, NewRecorder(0), clk, &Hooks{}, 0)

	m.AddFallbackStrategy("list_workflows",
		CachedFallback("offline_cache", 1, cache))

	// Warm run: primary succeeds and the result is cached.
	_, err := m.ExecuteWithFallback(
		context.Background(),
		"list_workflows",
		func(context.Context) (any, error) { return "good", nil },
		nil,
		CacheFor(time.Hour),
		SkipCache(),
	)
	if err != nil {
		t.Fatalf("warm call = %v", err)
	}

	// API now down; SkipCache forces the primary, the strategy recovers.
	res, err := m.ExecuteWithFallback(
		context.Background(),
		"list_workflows",
		failingPrimary(errors.New("api down")),
		nil,
		SkipCache(),
	)
	if err != nil {
		t.Fatalf("recovery call = %v", err)
	}

	if res.Data != "good" || res.FallbackUsed != "offline_cache" {
		t.Fatalf("result = %+v, want cached last-known-good", res)
	}
}

func TestCachedFallbackMissPropagatesLastError(t *testing.T) {
	clk := newStubClock()
	cache := NewTTLCache(clk)
	m := NewRecoveryManager(cache, NewRecorder(0), clk, &Hooks{}, 0)

	m.AddFallbackStrategy("op", CachedFallback("offline_cache", 1, cache))

	primaryErr := errors.New("api down")

	_, err := m.ExecuteWithFallback(
		context.Background(), "op", failingPrimary(primaryErr), nil,
	)

	var recErr *RecoveryError
	if !errors.As(err, &recErr) || !errors.Is(recErr, primaryErr) {
		t.Fatalf("error = %v, want RecoveryError wrapping primary", err)
	}
}

// ---------------------------------------------------------------------------
// Reset
// ---------------------------------------------------------------------------

func TestRecoveryResetClearsCacheAndMetrics(t *testing.T) {
	clk := newStubClock()
	m := newTestRecovery(clk)

	_, _ = m.ExecuteWithFallback(
		context.Background(),
		"op",
		func(context.Context) (any, error) { return "v", nil },
		nil,
		CacheFor(time.Hour),
	)

	m.Reset()

	if len(m.recorder.Recoveries()) != 0 {
		t.Fatal("Reset() left recovery metrics behind")
	}

	primaryCalls := 0

	_, _ = m.ExecuteWithFallback(
		context.Background(),
		"op",
		func(context.Context) (any, error) {
			primaryCalls++
			return "v", nil
		},
		nil,
	)

	if primaryCalls != 1 {
		t.Fatal("cache survived Reset()")
	}
}
