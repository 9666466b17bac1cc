// Package actuator defines how the engine acts on a user's resources when
// payment policy requires it.
package actuator

import (
	"context"
	"errors"
	"log/slog"
)

// ErrUnsupported is returned by Hibernate when the backend cannot hibernate
// resources. Callers fall back to Stop.
var ErrUnsupported = errors.New("actuator: operation unsupported")

// Actuator pauses, stops and resumes all resources of one user.
type Actuator interface {
	Pause(ctx context.Context, userID, providerID string) error
	Hibernate(ctx context.Context, userID, providerID string) error
	Stop(ctx context.Context, userID, providerID string) error
	Resume(ctx context.Context, userID, providerID string) error
	Purge(ctx context.Context, userID, providerID string) error
}

// Suspend hibernates the user's resources, falling back to Stop when
// hibernation is unsupported. It reports which operation took effect.
func Suspend(ctx context.Context, a Actuator, userID, providerID string) (string, error) {
	err := a.Hibernate(ctx, userID, providerID)
	if err == nil {
		return "hibernate", nil
	}
	if !errors.Is(err, ErrUnsupported) {
		return "hibernate", err
	}
	return "stop", a.Stop(ctx, userID, providerID)
}

// Nop is an Actuator that only logs. It is the default when no backend is
// configured.
type Nop struct {
	Logger *slog.Logger
}

func (n Nop) log(op, userID, providerID string) {
	logger := n.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Debug("actuator no-op", "op", op, "user_id", userID, "provider_id", providerID)
}

func (n Nop) Pause(_ context.Context, userID, providerID string) error {
	n.log("pause", userID, providerID)
	return nil
}

func (n Nop) Hibernate(_ context.Context, userID, providerID string) error {
	n.log("hibernate", userID, providerID)
	return nil
}

func (n Nop) Stop(_ context.Context, userID, providerID string) error {
	n.log("stop", userID, providerID)
	return nil
}

func (n Nop) Resume(_ context.Context, userID, providerID string) error {
	n.log("resume", userID, providerID)
	return nil
}

func (n Nop) Purge(_ context.Context, userID, providerID string) error {
	n.log("purge", userID, providerID)
	return nil
}
