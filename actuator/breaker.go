package actuator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker/v2"
)

// ErrBackendUnavailable is returned while the breaker is open.
var ErrBackendUnavailable = errors.New("actuator: backend unavailable")

// Breaker wraps an Actuator with a circuit breaker. ErrUnsupported does not
// count as a failure.
type Breaker struct {
	next Actuator
	cb   *gobreaker.CircuitBreaker[struct{}]
}

// NewBreaker wraps next. The breaker opens after threshold consecutive
// failures and stays open for timeout.
func NewBreaker(next Actuator, threshold uint32, timeout time.Duration, logger *slog.Logger) *Breaker {
	if logger == nil {
		logger = slog.Default()
	}
	settings := gobreaker.Settings{
		Name:        "actuator",
		MaxRequests: 1,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrUnsupported)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Info("circuit breaker state changed",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
	}
	return &Breaker{next: next, cb: gobreaker.NewCircuitBreaker[struct{}](settings)}
}

func (b *Breaker) do(fn func() error) error {
	_, err := b.cb.Execute(func() (struct{}, error) {
		return struct{}{}, fn()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %w", ErrBackendUnavailable, err)
	}
	return err
}

func (b *Breaker) Pause(ctx context.Context, userID, providerID string) error {
	return b.do(func() error { return b.next.Pause(ctx, userID, providerID) })
}

func (b *Breaker) Hibernate(ctx context.Context, userID, providerID string) error {
	return b.do(func() error { return b.next.Hibernate(ctx, userID, providerID) })
}

func (b *Breaker) Stop(ctx context.Context, userID, providerID string) error {
	return b.do(func() error { return b.next.Stop(ctx, userID, providerID) })
}

func (b *Breaker) Resume(ctx context.Context, userID, providerID string) error {
	return b.do(func() error { return b.next.Resume(ctx, userID, providerID) })
}

func (b *Breaker) Purge(ctx context.Context, userID, providerID string) error {
	return b.do(func() error { return b.next.Purge(ctx, userID, providerID) })
}
