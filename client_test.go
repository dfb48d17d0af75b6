package flowgate

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// ---------------------------------------------------------------------------
// End-to-end: Execute inside the recovery chain
// ---------------------------------------------------------------------------

func TestClientExecuteWithFallbackEndToEnd(t *testing.T) {
	// The API is hard down: every call is a 503.
	tr := TransportFunc(func(context.Context, *Request) (*Response, error) {
		return nil, &StatusError{StatusCode: 503}
	})

	c := newTestClient(tr)

	c.AddFallbackStrategy("list_workflows", StaticFallback(
		"empty_list", 10, []string{},
	))

	res, err := c.ExecuteWithFallback(
		context.Background(),
		"list_workflows",
		func(ctx context.Context) (any, error) {
			resp, callErr := c.Execute(ctx, testRequest())
			if callErr != nil {
				return nil, callErr
			}

			return resp.Data, nil
		},
		nil,
	)
	require.NoError(t, err)
	require.Equal(t, "empty_list", res.FallbackUsed)

	// The failed attempts and the recovery both left metrics behind.
	rec := c.Registry().Recorder()
	require.Equal(t, 4, rec.CallCount())
	require.Len(t, rec.Recoveries(), 1)
	require.Equal(t, "empty_list", rec.Recoveries()[0].FallbackUsed)
}

func TestClientCacheResultPreWarm(t *testing.T) {
	tr := TransportFunc(func(context.Context, *Request) (*Response, error) {
		return nil, &StatusError{StatusCode: 503}
	})

	c := newTestClient(tr)

	args := map[string]string{"id": "wf-1"}

	require.NoError(t,
		c.CacheResult("get_workflow", args, "cached-workflow", time.Minute))

	res, err := c.ExecuteWithFallback(
		context.Background(),
		"get_workflow",
		func(ctx context.Context) (any, error) {
			_, callErr := c.Execute(ctx, testRequest())
			return nil, callErr
		},
		args,
	)
	require.NoError(t, err)
	require.True(t, res.FromCache)
	require.Equal(t, "cached-workflow", res.Data)

	// Served from cache, so the transport was never touched.
	require.Equal(t, 0, c.Registry().Recorder().CallCount())
}

func TestClientCacheResultUnserializableArgs(t *testing.T) {
	c := newTestClient(&countingTransport{})

	err := c.CacheResult("op", func() {}, "data", time.Minute)
	require.Error(t, err)
}

// ---------------------------------------------------------------------------
// Shared registry
// ---------------------------------------------------------------------------

func TestClientsShareRegistryState(t *testing.T) {
	reg := NewRegistry(
		WithClock(newStubClock()),
		WithBreakerOptions(FailureThreshold(1)),
	)

	c1 := NewClient(&countingTransport{},
		WithRegistry(reg), WithRetryConfig(zeroDelayRetry(0)))
	c2 := NewClient(&countingTransport{},
		WithRegistry(reg), WithRetryConfig(zeroDelayRetry(0)))

	req := testRequest()

	// Trip the breaker through the first client.
	reg.Breaker(req.EndpointKey()).RecordFailure()

	// The second client sees the same open breaker.
	_, err := c2.Execute(context.Background(), req)
	require.ErrorIs(t, err, ErrCircuitOpen)

	require.Same(t, c1.Registry(), c2.Registry())
}

// ---------------------------------------------------------------------------
// Delegation and defaults
// ---------------------------------------------------------------------------

func TestClientToggleFallbackStrategy(t *testing.T) {
	c := newTestClient(&countingTransport{})

	c.AddFallbackStrategy("op", StaticFallback("s", 1, nil))

	require.True(t, c.ToggleFallbackStrategy("op", "s", false))
	require.False(t, c.ToggleFallbackStrategy("op", "ghost", false))
}

func TestClientResetAndHealthStats(t *testing.T) {
	tr := &countingTransport{failures: 1, err: &StatusError{StatusCode: 500}}
	c := newTestClient(tr, WithBreakerOptions(FailureThreshold(10)))

	_, err := c.Execute(context.Background(), testRequest())
	require.NoError(t, err)

	hs := c.HealthStats()
	require.Equal(t, 0.5, hs.SuccessRate) // one failed, one clean attempt
	require.Contains(t, hs.CircuitBreakers, "GET /workflows")

	c.Reset()

	hs = c.HealthStats()
	require.Equal(t, 1.0, hs.SuccessRate)
	require.Empty(t, hs.CircuitBreakers)
}

func TestClientResetCircuitBreakersOnly(t *testing.T) {
	c := newTestClient(&countingTransport{},
		WithBreakerOptions(FailureThreshold(1)))

	req := testRequest()
	c.Registry().Breaker(req.EndpointKey()).RecordFailure()

	c.Registry().Recorder().RecordCall(callMetricN(0, true))

	c.ResetCircuitBreakers()

	// Breakers are gone, metrics survive.
	require.Empty(t, c.Registry().BreakerStates())
	require.Equal(t, 1, c.Registry().Recorder().CallCount())
}

func TestNewClientDefaultTransport(t *testing.T) {
	c := NewClient(nil)

	require.NotNil(t, c.Registry())
	require.IsType(t, &HTTPTransport{}, c.transport)
}
