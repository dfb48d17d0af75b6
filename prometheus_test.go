package flowgate

import (
	"context"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCollectorRegistersCleanly(t *testing.T) {
	reg := NewRegistry(WithClock(newStubClock()))

	promReg := prometheus.NewPedanticRegistry()
	if err := promReg.Register(NewCollector(reg)); err != nil {
		t.Fatalf("Register() = %v", err)
	}

	if _, err := promReg.Gather(); err != nil {
		t.Fatalf("Gather() = %v", err)
	}
}

func TestCollectorExportsHealthAggregates(t *testing.T) {
	reg := NewRegistry(
		WithClock(newStubClock()),
		WithBreakerOptions(FailureThreshold(1)),
	)

	reg.Breaker("GET /workflows").RecordFailure()
	reg.Breaker("GET /executions")

	reg.Recorder().RecordCall(callMetricN(10, true))
	reg.Recorder().RecordCall(callMetricN(10, false))

	const want = `
# HELP flowgate_circuit_breaker_state Breaker state per endpoint (0 closed, 1 open, 2 half-open).
# TYPE flowgate_circuit_breaker_state gauge
flowgate_circuit_breaker_state{endpoint="GET /executions"} 0
flowgate_circuit_breaker_state{endpoint="GET /workflows"} 1
# HELP flowgate_success_rate Fraction of successful calls over the recent window.
# TYPE flowgate_success_rate gauge
flowgate_success_rate 0.5
`

	err := testutil.CollectAndCompare(
		NewCollector(reg),
		strings.NewReader(want),
		"flowgate_circuit_breaker_state",
		"flowgate_success_rate",
	)
	if err != nil {
		t.Fatalf("CollectAndCompare() = %v", err)
	}
}

func TestCollectorExportsPoolGauges(t *testing.T) {
	reg := NewRegistry(
		WithClock(RealClock{}),
		WithPoolOptions(MaxConnections(2)),
	)

	slot, err := reg.Pool().Acquire(context.Background(), "GET /workflows")
	if err != nil {
		t.Fatalf("Acquire() = %v", err)
	}
	defer slot.Release()

	const want = `
# HELP flowgate_pool_active_connections In-flight calls per endpoint.
# TYPE flowgate_pool_active_connections gauge
flowgate_pool_active_connections{endpoint="GET /workflows"} 1
# HELP flowgate_pool_utilization Active/max connections averaged across endpoints.
# TYPE flowgate_pool_utilization gauge
flowgate_pool_utilization 0.5
# HELP flowgate_pool_waiting_callers Callers queued for a slot per endpoint.
# TYPE flowgate_pool_waiting_callers gauge
flowgate_pool_waiting_callers{endpoint="GET /workflows"} 0
`

	err = testutil.CollectAndCompare(
		NewCollector(reg),
		strings.NewReader(want),
		"flowgate_pool_active_connections",
		"flowgate_pool_waiting_callers",
		"flowgate_pool_utilization",
	)
	if err != nil {
		t.Fatalf("CollectAndCompare() = %v", err)
	}
}

func TestCollectorDescribesAllSeries(t *testing.T) {
	ch := make(chan *prometheus.Desc, 16)

	NewCollector(NewRegistry(WithClock(newStubClock()))).Describe(ch)
	close(ch)

	count := 0
	for range ch {
		count++
	}

	if count != 6 {
		t.Fatalf("Describe() emitted %d descriptors, want 6", count)
	}
}
