package resilience

import (
	"time"

	"go.uber.org/zap"
)

// FromRetryConfig overlays configured values on base. Non-positive values
// keep the base setting.
func FromRetryConfig(base RetryConfig, maxAttempts, initialBackoffMs, maxBackoffMs int) RetryConfig {
	if maxAttempts > 0 {
		base.MaxAttempts = maxAttempts
	}
	if initialBackoffMs > 0 {
		base.InitialBackoff = time.Duration(initialBackoffMs) * time.Millisecond
	}
	if maxBackoffMs > 0 {
		base.MaxBackoff = time.Duration(maxBackoffMs) * time.Millisecond
	}
	return base
}

// FromCircuitConfig converts config values to a CircuitBreakerConfig that
// logs state changes under name. Permanent errors and cancellation do not
// count as failures of the service.
func FromCircuitConfig(name string, failureThreshold, resetTimeoutSecs int) CircuitBreakerConfig {
	cfg := DefaultCircuitBreakerConfig()
	if failureThreshold > 0 {
		cfg.FailureThreshold = failureThreshold
	}
	if resetTimeoutSecs > 0 {
		cfg.ResetTimeout = time.Duration(resetTimeoutSecs) * time.Second
	}
	cfg.ShouldTrip = Retriable
	cfg.OnStateChange = func(from, to CircuitState) {
		zap.L().Warn("circuit breaker state change",
			zap.String("service", name),
			zap.Stringer("from", from),
			zap.Stringer("to", to),
		)
	}
	return cfg
}
