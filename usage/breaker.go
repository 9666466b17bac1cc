package usage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker/v2"
)

// ErrSourceUnavailable is returned while the breaker is open.
var ErrSourceUnavailable = errors.New("usage: source unavailable")

// BreakerConfig configures a Breaker.
type BreakerConfig struct {
	// FailureThreshold is the number of consecutive failures that opens the breaker.
	FailureThreshold uint32
	// MaxRequests is the number of trial requests allowed when half-open.
	MaxRequests uint32
	// Timeout is how long the breaker stays open.
	Timeout time.Duration
}

// DefaultBreakerConfig returns the default breaker configuration.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 5,
		MaxRequests:      1,
		Timeout:          30 * time.Second,
	}
}

// Breaker wraps a Source with a circuit breaker so that a failing records
// service is not hammered once per user per billing iteration.
type Breaker struct {
	next Source
	cb   *gobreaker.CircuitBreaker[[]Record]
}

// NewBreaker wraps next.
func NewBreaker(next Source, cfg BreakerConfig, logger *slog.Logger) *Breaker {
	if logger == nil {
		logger = slog.Default()
	}
	settings := gobreaker.Settings{
		Name:        "usage-source",
		MaxRequests: cfg.MaxRequests,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Info("circuit breaker state changed",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
	}
	return &Breaker{next: next, cb: gobreaker.NewCircuitBreaker[[]Record](settings)}
}

// UsageRecords fetches records through the breaker.
func (b *Breaker) UsageRecords(ctx context.Context, userID, providerID string, start, end time.Time) ([]Record, error) {
	records, err := b.cb.Execute(func() ([]Record, error) {
		return b.next.UsageRecords(ctx, userID, providerID, start, end)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: %w", ErrSourceUnavailable, err)
	}
	return records, err
}

// State returns the breaker state name.
func (b *Breaker) State() string { return b.cb.State().String() }
