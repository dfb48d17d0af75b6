package flowgate

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"
)

// ---------------------------------------------------------------------------
// Retry configuration
// ---------------------------------------------------------------------------.

type (
	// RetryConfig controls the retry-with-backoff loop. The zero value is
	// not useful; start from [DefaultRetryConfig].
	RetryConfig struct {
		// Strategy overrides the backoff computation. When nil, delays
		// follow min(BaseDelay * BackoffMultiplier^attempt, MaxDelay).
		Strategy             BackoffStrategy
		RetryableStatusCodes []int
		MaxRetries           int
		BaseDelay            time.Duration
		MaxDelay             time.Duration
		BackoffMultiplier    float64
	}

	callOptions struct {
		retry       *RetryConfig
		skipBreaker bool
		skipRetry   bool
	}

	// CallOption adjusts a single Execute call.
	CallOption func(*callOptions)
)

// DefaultRetryConfig returns the standard retry settings: 3 retries,
// exponential backoff from 1s doubling up to 10s, retrying request
// timeouts, rate limiting, and server-side failures.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:           3,
		BaseDelay:            time.Second,
		MaxDelay:             10 * time.Second,
		BackoffMultiplier:    2,
		RetryableStatusCodes: []int{408, 429, 500, 502, 503, 504},
	}
}

// SkipBreaker executes the call without circuit-breaker gating.
func SkipBreaker() CallOption {
	return func(co *callOptions) {
		co.skipBreaker = true
	}
}

// SkipRetry executes exactly one attempt regardless of retry settings.
func SkipRetry() CallOption {
	return func(co *callOptions) {
		co.skipRetry = true
	}
}

// WithRetryOverride replaces the client's retry settings for this call.
func WithRetryOverride(rc RetryConfig) CallOption {
	return func(co *callOptions) {
		co.retry = &rc
	}
}

// strategy returns the backoff strategy for this config.
func (rc *RetryConfig) strategy() BackoffStrategy {
	if rc.Strategy != nil {
		return rc.Strategy
	}

	return ExponentialBackoff(rc.BaseDelay, rc.BackoffMultiplier)
}

// delay computes the capped backoff delay for a 0-indexed attempt.
func (rc *RetryConfig) delay(attempt int) time.Duration {
	d := rc.strategy().Delay(attempt)
	if rc.MaxDelay > 0 && d > rc.MaxDelay {
		d = rc.MaxDelay
	}

	return d
}

// isRetryable classifies an attempt failure. Network-level faults and pool
// acquisition timeouts are always retryable; HTTP status errors are
// retryable iff the status is configured as such. Circuit-open fast-fails
// are not retried — the breaker itself is the gate. Errors wrapped with
// [Permanent] stop the loop immediately, as does cancellation of the
// caller's context.
//
// The TransportError check runs before the context-error check on purpose:
// a per-request timeout surfaces as a TransportError wrapping
// context.DeadlineExceeded, and a timed-out request is the canonical case
// retry exists for. Only context errors the transport passed through
// unwrapped (the caller's own cancellation) end the loop.
func isRetryable(err error, rc *RetryConfig) bool {
	if err == nil || IsPermanent(err) {
		return false
	}

	if errors.Is(err, ErrCircuitOpen) {
		return false
	}

	if errors.Is(err, ErrPoolTimeout) {
		return true
	}

	var te *TransportError
	if errors.As(err, &te) {
		return true
	}

	if errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var se *StatusError
	if errors.As(err, &se) {
		return slices.Contains(rc.RetryableStatusCodes, se.StatusCode)
	}

	return false
}

// ---------------------------------------------------------------------------
// Execute — retry loop around pool + breaker + transport
// ---------------------------------------------------------------------------.

// Execute runs the request through the full resilience stack: up to
// MaxRetries+1 attempts, each one issued inside the endpoint's circuit
// breaker while holding a pool slot, with capped exponential backoff
// between attempts. Per-call options can skip the breaker or retry loop and
// override retry settings. Every attempt is recorded in the metrics log.
func (c *Client) Execute(
	ctx context.Context,
	req *Request,
	opts ...CallOption,
) (*Response, error) {
	var co callOptions
	for _, o := range opts {
		o(&co)
	}

	rc := c.retry
	if co.retry != nil {
		rc = *co.retry
	}

	maxRetries := rc.MaxRetries
	if co.skipRetry || maxRetries < 0 {
		maxRetries = 0
	}

	endpoint := req.EndpointKey()

	var lastErr error

	for attempt := 0; attempt <= maxRetries; attempt++ {
		resp, err := c.attempt(ctx, endpoint, req, &co, attempt)
		if err == nil {
			return resp, nil
		}

		lastErr = err

		if !isRetryable(err, &rc) {
			return nil, err
		}

		if attempt == maxRetries {
			break
		}

		c.hooks.emitRetry(endpoint, attempt+1, err)

		if sleepErr := sleep(ctx, c.clock, rc.delay(attempt)); sleepErr != nil {
			return nil, sleepErr
		}
	}

	return nil, fmt.Errorf("%w: %w", ErrRetriesExhausted, lastErr)
}

// attempt issues one transport call under pool and breaker gating and
// records its outcome.
func (c *Client) attempt(
	ctx context.Context,
	endpoint string,
	req *Request,
	co *callOptions,
	attempt int,
) (*Response, error) {
	start := c.clock.Now()

	slot, err := c.registry.Pool().Acquire(ctx, endpoint)
	if err != nil {
		c.record(endpoint, req.Method, start, attempt, nil, err)
		return nil, err
	}

	defer slot.Release()

	var resp *Response

	if co.skipBreaker {
		resp, err = c.transport.Call(ctx, req)
	} else {
		cb := c.registry.Breaker(endpoint)

		if err = cb.Allow(); err != nil {
			c.record(endpoint, req.Method, start, attempt, nil, err)
			return nil, err
		}

		resp, err = c.transport.Call(ctx, req)
		if err != nil {
			cb.RecordFailure()
		} else {
			cb.RecordSuccess()
		}
	}

	c.record(endpoint, req.Method, start, attempt, resp, err)

	return resp, err
}

// record appends one CallMetric for a completed attempt.
func (c *Client) record(
	endpoint, method string,
	start time.Time,
	attempt int,
	resp *Response,
	err error,
) {
	m := CallMetric{
		Endpoint:   endpoint,
		Method:     method,
		Start:      start,
		End:        c.clock.Now(),
		RetryCount: attempt,
		Success:    err == nil,
	}

	switch {
	case resp != nil:
		m.StatusCode = resp.StatusCode
	case err != nil:
		var se *StatusError
		if errors.As(err, &se) {
			m.StatusCode = se.StatusCode
		}
	}

	if err != nil {
		m.Err = err.Error()
	}

	c.registry.Recorder().RecordCall(m)
}
