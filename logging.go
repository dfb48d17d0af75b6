package flowgate

import "go.uber.org/zap"

// ZapHooks returns Hooks that log every lifecycle event through logger
// with structured fields. Compose with your own hooks by copying the
// fields you want; a Hooks value must not be mutated after use.
func ZapHooks(logger *zap.Logger) *Hooks {
	return &Hooks{
		OnRetry: func(endpoint string, attempt int, err error) {
			logger.Warn("retrying call",
				zap.String("endpoint", endpoint),
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
		},
		OnCircuitOpen: func(endpoint string) {
			logger.Error("circuit breaker opened",
				zap.String("endpoint", endpoint),
			)
		},
		OnCircuitClose: func(endpoint string) {
			logger.Info("circuit breaker closed",
				zap.String("endpoint", endpoint),
			)
		},
		OnCircuitHalfOpen: func(endpoint string) {
			logger.Info("circuit breaker probing",
				zap.String("endpoint", endpoint),
			)
		},
		OnPoolSaturated: func(endpoint string, waiting int) {
			logger.Warn("connection pool saturated",
				zap.String("endpoint", endpoint),
				zap.Int("waiting", waiting),
			)
		},
		OnSlotAcquired: func(endpoint string) {
			logger.Debug("pool slot acquired",
				zap.String("endpoint", endpoint),
			)
		},
		OnSlotReleased: func(endpoint string) {
			logger.Debug("pool slot released",
				zap.String("endpoint", endpoint),
			)
		},
		OnCacheHit: func(key string) {
			logger.Debug("offline cache hit", zap.String("key", key))
		},
		OnCacheMiss: func(key string) {
			logger.Debug("offline cache miss", zap.String("key", key))
		},
		OnFallbackUsed: func(operation, strategy string, err error) {
			logger.Warn("fallback strategy used",
				zap.String("operation", operation),
				zap.String("strategy", strategy),
				zap.Error(err),
			)
		},
		OnRecoveryFailed: func(operation string, err error) {
			logger.Error("recovery exhausted",
				zap.String("operation", operation),
				zap.Error(err),
			)
		},
	}
}
