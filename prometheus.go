package flowgate

import "github.com/prometheus/client_golang/prometheus"

// breakerStateValue maps breaker state strings to gauge values.
var breakerStateValue = map[string]float64{
	"closed":    0,
	"open":      1,
	"half_open": 2,
}

// Collector exposes a registry's health aggregates as Prometheus metrics.
// Register it with a prometheus.Registerer:
//
//	prometheus.MustRegister(flowgate.NewCollector(client.Registry()))
type Collector struct {
	registry *Registry

	successRate     *prometheus.Desc
	averageLatency  *prometheus.Desc
	poolUtilization *prometheus.Desc
	breakerState    *prometheus.Desc
	poolActive      *prometheus.Desc
	poolWaiting     *prometheus.Desc
}

// NewCollector creates a collector over registry.
func NewCollector(registry *Registry) *Collector {
	return &Collector{
		registry: registry,
		successRate: prometheus.NewDesc(
			"flowgate_success_rate",
			"Fraction of successful calls over the recent window.",
			nil, nil,
		),
		averageLatency: prometheus.NewDesc(
			"flowgate_average_latency_seconds",
			"Mean call latency over retained metrics.",
			nil, nil,
		),
		poolUtilization: prometheus.NewDesc(
			"flowgate_pool_utilization",
			"Active/max connections averaged across endpoints.",
			nil, nil,
		),
		breakerState: prometheus.NewDesc(
			"flowgate_circuit_breaker_state",
			"Breaker state per endpoint (0 closed, 1 open, 2 half-open).",
			[]string{"endpoint"}, nil,
		),
		poolActive: prometheus.NewDesc(
			"flowgate_pool_active_connections",
			"In-flight calls per endpoint.",
			[]string{"endpoint"}, nil,
		),
		poolWaiting: prometheus.NewDesc(
			"flowgate_pool_waiting_callers",
			"Callers queued for a slot per endpoint.",
			[]string{"endpoint"}, nil,
		),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.successRate
	ch <- c.averageLatency
	ch <- c.poolUtilization
	ch <- c.breakerState
	ch <- c.poolActive
	ch <- c.poolWaiting
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	stats := c.registry.HealthStats()

	ch <- prometheus.MustNewConstMetric(
		c.successRate, prometheus.GaugeValue, stats.SuccessRate,
	)
	ch <- prometheus.MustNewConstMetric(
		c.averageLatency,
		prometheus.GaugeValue,
		stats.AverageLatency.Seconds(),
	)
	ch <- prometheus.MustNewConstMetric(
		c.poolUtilization, prometheus.GaugeValue, stats.PoolUtilization,
	)

	for endpoint, state := range stats.CircuitBreakers {
		ch <- prometheus.MustNewConstMetric(
			c.breakerState,
			prometheus.GaugeValue,
			breakerStateValue[state.State],
			endpoint,
		)
	}

	for _, ps := range c.registry.Pool().Stats() {
		ch <- prometheus.MustNewConstMetric(
			c.poolActive,
			prometheus.GaugeValue,
			float64(ps.Active),
			ps.Endpoint,
		)
		ch <- prometheus.MustNewConstMetric(
			c.poolWaiting,
			prometheus.GaugeValue,
			float64(ps.Waiting),
			ps.Endpoint,
		)
	}
}

var _ prometheus.Collector = (*Collector)(nil)
