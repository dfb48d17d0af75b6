package flowgate

import (
	"context"
	"time"
)

// Client is the caller-facing entry point: a Transport wrapped with the
// full resilience stack. Construct with [NewClient]; zero value is not
// usable.
type Client struct {
	transport Transport
	registry  *Registry
	clock     Clock
	hooks     *Hooks
	retry     RetryConfig
}

// NewClient wraps transport with retry, circuit breaking, bounded
// concurrency, metrics, and the recovery chain. A nil transport gets a
// [HTTPTransport] built from the pool options. Unless [WithRegistry] is
// given, the client owns a fresh registry.
func NewClient(transport Transport, opts ...Option) *Client {
	s := buildSettings(opts)

	registry := s.registry
	if registry == nil {
		registry = newRegistry(&s)
	}

	if transport == nil {
		transport = NewHTTPTransport(nil, s.poolOpts...)
	}

	return &Client{
		transport: transport,
		registry:  registry,
		clock:     registry.clock,
		hooks:     registry.hooks,
		retry:     s.retry,
	}
}

// Registry returns the client's resilience state registry.
func (c *Client) Registry() *Registry { return c.registry }

// ExecuteWithFallback runs primary through the recovery chain registered
// for operation. See [RecoveryManager.ExecuteWithFallback].
func (c *Client) ExecuteWithFallback(
	ctx context.Context,
	operation string,
	primary func(ctx context.Context) (any, error),
	args any,
	opts ...RecoveryOption,
) (*RecoveryResult, error) {
	return c.registry.Recovery().ExecuteWithFallback(
		ctx, operation, primary, args, opts...,
	)
}

// AddFallbackStrategy registers a fallback strategy for operation.
func (c *Client) AddFallbackStrategy(operation string, s FallbackStrategy) {
	c.registry.Recovery().AddFallbackStrategy(operation, s)
}

// ToggleFallbackStrategy enables or disables a named strategy.
func (c *Client) ToggleFallbackStrategy(
	operation, name string,
	enabled bool,
) bool {
	return c.registry.Recovery().ToggleFallbackStrategy(
		operation, name, enabled,
	)
}

// HealthStats aggregates success rate, latency, breaker states, and pool
// utilization.
func (c *Client) HealthStats() HealthStats {
	return c.registry.HealthStats()
}

// ResetCircuitBreakers drops all breaker state.
func (c *Client) ResetCircuitBreakers() {
	c.registry.ResetCircuitBreakers()
}

// Reset clears breakers, pool counters, metrics, and the offline cache.
func (c *Client) Reset() {
	c.registry.Reset()
}

// CacheResult pre-warms the offline cache for an operation invocation, so
// a later ExecuteWithFallback (or CachedFallback strategy) can serve it.
func (c *Client) CacheResult(
	operation string,
	args, data any,
	ttl time.Duration,
) error {
	key, err := cacheKey(operation, args)
	if err != nil {
		return err
	}

	c.registry.Cache().Set(key, data, ttl)

	return nil
}
