// Package resilience wraps calls to external services in circuit breakers.
package resilience

import (
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"github.com/toonranks/toonranks/internal/metrics"
	"github.com/toonranks/toonranks/pkg/logging"
)

// BreakerConfig configures a circuit breaker
type BreakerConfig struct {
	Name             string
	FailureThreshold uint32
	Timeout          time.Duration
}

// NewBreaker creates a breaker that opens after FailureThreshold consecutive
// failures and tries again after Timeout.
func NewBreaker[T any](cfg BreakerConfig) *gobreaker.CircuitBreaker[T] {
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	logger := logging.WithComponent("breaker")
	metrics.CircuitBreakerState.WithLabelValues(cfg.Name).Set(0)

	return gobreaker.NewCircuitBreaker[T](gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Info("Circuit breaker state transition",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateValue(to))
		},
	})
}

func stateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}
