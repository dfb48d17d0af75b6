package flowgate

import (
	"context"
	"sort"
	"sync"
	"time"
)

// ---------------------------------------------------------------------------
// Fallback strategies
// ---------------------------------------------------------------------------.

type (
	// FallbackContext carries everything a fallback strategy may need to
	// produce an alternative result.
	FallbackContext struct {
		Start        time.Time
		Args         any
		LastErr      error
		Operation    string
		AttemptCount int
		MaxAttempts  int
	}

	// FallbackStrategy is a named, priority-ordered alternative execution
	// path tried when the primary operation fails. Lower priority runs
	// first.
	FallbackStrategy struct {
		Execute  func(ctx context.Context, fc *FallbackContext) (any, error)
		Name     string
		Priority int
		Disabled bool
	}

	// RecoveryResult is what ExecuteWithFallback hands back. FallbackUsed
	// and FromCache let callers tell a genuine result from a recovered one.
	RecoveryResult struct {
		Data         any
		FallbackUsed string
		FromCache    bool
	}

	recoveryOptions struct {
		cacheTTL  time.Duration
		skipCache bool
		cacheSet  bool
	}

	// RecoveryOption adjusts a single ExecuteWithFallback call.
	RecoveryOption func(*recoveryOptions)

	// RecoveryManager wraps primary operations with an ordered chain of
	// fallback strategies and a TTL offline cache, recording every outcome
	// as a RecoveryMetric.
	RecoveryManager struct {
		cache      Cache
		recorder   *Recorder
		clock      Clock
		hooks      *Hooks
		strategies map[string][]*FallbackStrategy
		defaultTTL time.Duration
		mu         sync.RWMutex
	}
)

// SkipCache disables the cache read that would otherwise short-circuit the
// call.
func SkipCache() RecoveryOption {
	return func(ro *recoveryOptions) {
		ro.skipCache = true
	}
}

// CacheFor stores the result (primary- or fallback-sourced) for ttl.
// A non-positive ttl uses the manager's default.
func CacheFor(ttl time.Duration) RecoveryOption {
	return func(ro *recoveryOptions) {
		ro.cacheSet = true
		ro.cacheTTL = ttl
	}
}

// NewRecoveryManager creates a manager over the given cache and recorder.
// A non-positive defaultTTL falls back to DefaultCacheTTL.
func NewRecoveryManager(
	cache Cache,
	recorder *Recorder,
	clock Clock,
	hooks *Hooks,
	defaultTTL time.Duration,
) *RecoveryManager {
	if defaultTTL <= 0 {
		defaultTTL = DefaultCacheTTL
	}

	return &RecoveryManager{
		cache:      cache,
		recorder:   recorder,
		clock:      clock,
		hooks:      hooks,
		strategies: make(map[string][]*FallbackStrategy),
		defaultTTL: defaultTTL,
	}
}

// AddFallbackStrategy registers a strategy for the operation. Strategies
// are kept sorted by ascending priority; equal priorities keep their
// registration order.
func (m *RecoveryManager) AddFallbackStrategy(
	operation string,
	s FallbackStrategy,
) {
	m.mu.Lock()
	defer m.mu.Unlock()

	list := append(m.strategies[operation], &s)
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].Priority < list[j].Priority
	})

	m.strategies[operation] = list
}

// ToggleFallbackStrategy enables or disables a named strategy. It reports
// whether the strategy was found.
func (m *RecoveryManager) ToggleFallbackStrategy(
	operation, name string,
	enabled bool,
) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, s := range m.strategies[operation] {
		if s.Name == name {
			s.Disabled = !enabled
			return true
		}
	}

	return false
}

// Reset clears the offline cache and the recorded metrics. Registered
// strategies survive a reset.
func (m *RecoveryManager) Reset() {
	m.cache.Reset()
	m.recorder.Reset()
}

// Cache exposes the manager's offline cache, e.g. for pre-warming.
func (m *RecoveryManager) Cache() Cache { return m.cache }

// ExecuteWithFallback runs the full recovery chain for one logical
// operation:
//
//  1. Unless skipped, a live cache entry for (operation, args)
//     short-circuits everything.
//  2. The primary is tried; on success the result is optionally cached and
//     returned.
//  3. On primary failure, enabled strategies run in ascending priority
//     order; the first one to return without error wins.
//  4. When every strategy fails too, a *RecoveryError carrying the last
//     error and the number of strategies attempted is returned.
//
// Every outcome is recorded as a RecoveryMetric.
func (m *RecoveryManager) ExecuteWithFallback(
	ctx context.Context,
	operation string,
	primary func(ctx context.Context) (any, error),
	args any,
	opts ...RecoveryOption,
) (*RecoveryResult, error) {
	var ro recoveryOptions
	for _, o := range opts {
		o(&ro)
	}

	start := m.clock.Now()

	key, keyErr := cacheKey(operation, args)
	if keyErr != nil {
		// Unserializable args: proceed without cache involvement.
		ro.skipCache = true
		ro.cacheSet = false
	}

	if !ro.skipCache {
		if data, ok := m.cache.Get(key); ok {
			m.hooks.emitCacheHit(key)
			return &RecoveryResult{Data: data, FromCache: true}, nil
		}

		m.hooks.emitCacheMiss(key)
	}

	data, err := primary(ctx)
	if err == nil {
		m.finish(operation, start, "", nil, &ro, key, data)
		return &RecoveryResult{Data: data}, nil
	}

	lastErr := err

	strategies := m.enabledStrategies(operation)
	for i, s := range strategies {
		fc := &FallbackContext{
			Operation:    operation,
			Args:         args,
			LastErr:      lastErr,
			AttemptCount: i + 1,
			MaxAttempts:  len(strategies),
			Start:        start,
		}

		data, serr := s.Execute(ctx, fc)
		if serr == nil {
			m.hooks.emitFallbackUsed(operation, s.Name, lastErr)
			m.finish(operation, start, s.Name, nil, &ro, key, data)

			return &RecoveryResult{Data: data, FallbackUsed: s.Name}, nil
		}

		lastErr = serr
	}

	recErr := &RecoveryError{
		Operation:       operation,
		StrategiesTried: len(strategies),
		LastErr:         lastErr,
	}

	m.hooks.emitRecoveryFailed(operation, recErr)
	m.finish(operation, start, "", recErr, &ro, key, nil)

	return nil, recErr
}

// enabledStrategies snapshots the enabled strategies for an operation in
// priority order.
func (m *RecoveryManager) enabledStrategies(
	operation string,
) []*FallbackStrategy {
	m.mu.RLock()
	defer m.mu.RUnlock()

	all := m.strategies[operation]

	out := make([]*FallbackStrategy, 0, len(all))
	for _, s := range all {
		if !s.Disabled {
			out = append(out, s)
		}
	}

	return out
}

// finish caches successful results when requested and records the
// RecoveryMetric for this invocation.
func (m *RecoveryManager) finish(
	operation string,
	start time.Time,
	fallbackUsed string,
	err error,
	ro *recoveryOptions,
	key string,
	data any,
) {
	if err == nil && ro.cacheSet {
		ttl := ro.cacheTTL
		if ttl <= 0 {
			ttl = m.defaultTTL
		}

		m.cache.Set(key, data, ttl)
	}

	metric := RecoveryMetric{
		Operation:    operation,
		FallbackUsed: fallbackUsed,
		RecoveryTime: m.clock.Since(start),
		Success:      err == nil,
		Timestamp:    m.clock.Now(),
	}

	if err != nil {
		metric.Err = err.Error()
	}

	m.recorder.RecordRecovery(metric)
}

// ---------------------------------------------------------------------------
// Reusable strategies
// ---------------------------------------------------------------------------.

// StaticFallback returns a strategy that always yields value. Conventionally
// registered last (highest priority number) as the final line of defence.
func StaticFallback(name string, priority int, value any) FallbackStrategy {
	return FallbackStrategy{
		Name:     name,
		Priority: priority,
		Execute: func(context.Context, *FallbackContext) (any, error) {
			return value, nil
		},
	}
}

// CachedFallback returns a strategy serving the last-known-good value from
// cache. Useful together with SkipCache: the primary is always tried fresh,
// and the cache only answers when the primary fails.
func CachedFallback(name string, priority int, cache Cache) FallbackStrategy {
	return FallbackStrategy{
		Name:     name,
		Priority: priority,
		Execute: func(
			_ context.Context,
			fc *FallbackContext,
		) (any, error) {
			key, err := cacheKey(fc.Operation, fc.Args)
			if err != nil {
				return nil, err
			}

			if data, ok := cache.Get(key); ok {
				return data, nil
			}

			return nil, fc.LastErr
		},
	}
}
