package flowgate

import (
	"fmt"
	"os"
	"time"

	json "github.com/goccy/go-json"
)

type (
	// ClientConfig is the file-level configuration for a client. All
	// fields are optional; absent fields keep their defaults. Embed it in
	// your own app config struct for JSON unmarshaling, then call
	// [ClientConfig.BuildOptions].
	ClientConfig struct {
		// Retry configures the retry loop.
		// Example: {"max_retries": 3, "base_delay": "1s"}.
		Retry *RetryFileConfig `json:"retry,omitempty"`
		// CircuitBreaker configures per-endpoint breakers.
		// Example: {"failure_threshold": 5, "reset_timeout": "30s"}.
		CircuitBreaker *BreakerFileConfig `json:"circuit_breaker,omitempty"`
		// ConnectionPool configures per-endpoint concurrency.
		// Example: {"max_connections": 10}.
		ConnectionPool *PoolFileConfig `json:"connection_pool,omitempty"`
		// CacheTTL is the default offline-cache TTL.
		// Parsed via time.ParseDuration. Example: "5m".
		CacheTTL *string `json:"cache_ttl,omitempty"`
		// MetricsCapacity bounds the metrics logs. Example: 1000.
		MetricsCapacity *int `json:"metrics_capacity,omitempty"`
	}

	// RetryFileConfig holds retry settings with string durations.
	RetryFileConfig struct {
		MaxRetries           *int     `json:"max_retries,omitempty"`
		BaseDelay            *string  `json:"base_delay,omitempty"`
		MaxDelay             *string  `json:"max_delay,omitempty"`
		BackoffMultiplier    *float64 `json:"backoff_multiplier,omitempty"`
		RetryableStatusCodes []int    `json:"retryable_status_codes,omitempty"`
	}

	// BreakerFileConfig holds circuit breaker settings.
	BreakerFileConfig struct {
		FailureThreshold *int    `json:"failure_threshold,omitempty"`
		ResetTimeout     *string `json:"reset_timeout,omitempty"`
		MonitoringPeriod *string `json:"monitoring_period,omitempty"`
	}

	// PoolFileConfig holds connection pool settings.
	PoolFileConfig struct {
		MaxConnections    *int    `json:"max_connections,omitempty"`
		ConnectionTimeout *string `json:"connection_timeout,omitempty"`
		IdleTimeout       *string `json:"idle_timeout,omitempty"`
		AcquireTimeout    *string `json:"acquire_timeout,omitempty"`
	}
)

// LoadConfig reads a JSON configuration file and validates it eagerly so
// errors surface at load time rather than on first call.
func LoadConfig(path string) (*ClientConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("flowgate: read config: %w", err)
	}

	var cfg ClientConfig
	if err = json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("flowgate: parse config: %w", err)
	}

	if _, err = cfg.BuildOptions(); err != nil {
		return nil, fmt.Errorf("flowgate: config: %w", err)
	}

	return &cfg, nil
}

// BuildOptions converts the file config into functional options for
// [NewClient] or [NewRegistry]. Duration strings are parsed with
// time.ParseDuration.
func (c *ClientConfig) BuildOptions() ([]Option, error) {
	var opts []Option

	if c.Retry != nil {
		rc := DefaultRetryConfig()

		if c.Retry.MaxRetries != nil {
			rc.MaxRetries = *c.Retry.MaxRetries
		}

		if err := parseDur(c.Retry.BaseDelay, &rc.BaseDelay); err != nil {
			return nil, fmt.Errorf("retry: base_delay: %w", err)
		}

		if err := parseDur(c.Retry.MaxDelay, &rc.MaxDelay); err != nil {
			return nil, fmt.Errorf("retry: max_delay: %w", err)
		}

		if c.Retry.BackoffMultiplier != nil {
			rc.BackoffMultiplier = *c.Retry.BackoffMultiplier
		}

		if len(c.Retry.RetryableStatusCodes) > 0 {
			rc.RetryableStatusCodes = c.Retry.RetryableStatusCodes
		}

		opts = append(opts, WithRetryConfig(rc))
	}

	if c.CircuitBreaker != nil {
		var bo []BreakerOption

		if c.CircuitBreaker.FailureThreshold != nil {
			bo = append(
				bo, FailureThreshold(*c.CircuitBreaker.FailureThreshold),
			)
		}

		var reset, monitor time.Duration

		if err := parseDur(c.CircuitBreaker.ResetTimeout, &reset); err != nil {
			return nil, fmt.Errorf("circuit_breaker: reset_timeout: %w", err)
		} else if c.CircuitBreaker.ResetTimeout != nil {
			bo = append(bo, ResetTimeout(reset))
		}

		err := parseDur(c.CircuitBreaker.MonitoringPeriod, &monitor)
		if err != nil {
			return nil, fmt.Errorf(
				"circuit_breaker: monitoring_period: %w", err,
			)
		} else if c.CircuitBreaker.MonitoringPeriod != nil {
			bo = append(bo, MonitoringPeriod(monitor))
		}

		if len(bo) > 0 {
			opts = append(opts, WithBreakerOptions(bo...))
		}
	}

	if c.ConnectionPool != nil {
		var po []PoolOption

		if c.ConnectionPool.MaxConnections != nil {
			po = append(
				po, MaxConnections(*c.ConnectionPool.MaxConnections),
			)
		}

		durations := []struct {
			raw  *string
			name string
			opt  func(time.Duration) PoolOption
		}{
			{c.ConnectionPool.ConnectionTimeout, "connection_timeout", ConnectionTimeout},
			{c.ConnectionPool.IdleTimeout, "idle_timeout", IdleTimeout},
			{c.ConnectionPool.AcquireTimeout, "acquire_timeout", AcquireTimeout},
		}

		for _, d := range durations {
			var v time.Duration
			if err := parseDur(d.raw, &v); err != nil {
				return nil, fmt.Errorf(
					"connection_pool: %s: %w", d.name, err,
				)
			} else if d.raw != nil {
				po = append(po, d.opt(v))
			}
		}

		if len(po) > 0 {
			opts = append(opts, WithPoolOptions(po...))
		}
	}

	if c.CacheTTL != nil {
		var ttl time.Duration
		if err := parseDur(c.CacheTTL, &ttl); err != nil {
			return nil, fmt.Errorf("cache_ttl: %w", err)
		}

		opts = append(opts, WithCacheTTL(ttl))
	}

	if c.MetricsCapacity != nil {
		opts = append(opts, WithMetricsCapacity(*c.MetricsCapacity))
	}

	return opts, nil
}

// parseDur parses an optional duration string into dst. A nil raw leaves
// dst untouched.
func parseDur(raw *string, dst *time.Duration) error {
	if raw == nil {
		return nil
	}

	d, err := time.ParseDuration(*raw)
	if err != nil {
		return err
	}

	*dst = d

	return nil
}
