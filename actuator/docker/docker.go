// Package docker implements actuator.Actuator on a Docker engine. A user's
// resources are the containers labelled with the user and provider IDs.
package docker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/client"

	"github.com/xraph/finance/actuator"
)

// Labels that identify the owner of a container.
const (
	LabelUser     = "finance.user"
	LabelProvider = "finance.provider"
)

// compile-time interface check
var _ actuator.Actuator = (*Actuator)(nil)

// Client is the subset of the Docker API the actuator uses.
type Client interface {
	ContainerList(ctx context.Context, options container.ListOptions) ([]container.Summary, error)
	ContainerPause(ctx context.Context, containerID string) error
	ContainerUnpause(ctx context.Context, containerID string) error
	ContainerStart(ctx context.Context, containerID string, options container.StartOptions) error
	ContainerStop(ctx context.Context, containerID string, options container.StopOptions) error
	ContainerRemove(ctx context.Context, containerID string, options container.RemoveOptions) error
}

// Actuator acts on a user's containers.
type Actuator struct {
	cli         Client
	logger      *slog.Logger
	stopTimeout int
}

// Option configures an Actuator.
type Option func(*Actuator)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Actuator) { a.logger = logger }
}

// WithStopTimeout sets the grace period in seconds given to containers on stop.
func WithStopTimeout(seconds int) Option {
	return func(a *Actuator) { a.stopTimeout = seconds }
}

// New creates an Actuator over cli.
func New(cli Client, opts ...Option) *Actuator {
	a := &Actuator{
		cli:         cli,
		logger:      slog.Default(),
		stopTimeout: 30,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// NewFromEnv connects to the Docker engine configured by the environment.
func NewFromEnv(opts ...Option) (*Actuator, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("actuator/docker: create client: %w", err)
	}
	return New(cli, opts...), nil
}

func (a *Actuator) containers(ctx context.Context, userID, providerID string) ([]container.Summary, error) {
	args := filters.NewArgs()
	args.Add("label", LabelUser+"="+userID)
	args.Add("label", LabelProvider+"="+providerID)

	list, err := a.cli.ContainerList(ctx, container.ListOptions{All: true, Filters: args})
	if err != nil {
		return nil, fmt.Errorf("actuator/docker: list containers: %w", err)
	}
	return list, nil
}

// each applies fn to every container of the user and joins the failures.
func (a *Actuator) each(ctx context.Context, op, userID, providerID string, fn func(c container.Summary) error) error {
	list, err := a.containers(ctx, userID, providerID)
	if err != nil {
		return err
	}

	var errs []error
	for _, c := range list {
		if err := fn(c); err != nil {
			errs = append(errs, fmt.Errorf("%s %s: %w", op, c.ID, err))
		}
	}

	a.logger.Debug("actuator applied",
		"op", op,
		"user_id", userID,
		"provider_id", providerID,
		"containers", len(list),
		"failed", len(errs),
	)
	return errors.Join(errs...)
}

// Pause freezes running containers.
func (a *Actuator) Pause(ctx context.Context, userID, providerID string) error {
	return a.each(ctx, "pause", userID, providerID, func(c container.Summary) error {
		if c.State != "running" {
			return nil
		}
		return a.cli.ContainerPause(ctx, c.ID)
	})
}

// Hibernate is not supported by plain Docker engines.
func (a *Actuator) Hibernate(context.Context, string, string) error {
	return actuator.ErrUnsupported
}

// Stop stops running and paused containers.
func (a *Actuator) Stop(ctx context.Context, userID, providerID string) error {
	timeout := a.stopTimeout
	return a.each(ctx, "stop", userID, providerID, func(c container.Summary) error {
		switch c.State {
		case "running", "paused", "restarting":
			return a.cli.ContainerStop(ctx, c.ID, container.StopOptions{Timeout: &timeout})
		}
		return nil
	})
}

// Resume unpauses paused containers and starts stopped ones.
func (a *Actuator) Resume(ctx context.Context, userID, providerID string) error {
	return a.each(ctx, "resume", userID, providerID, func(c container.Summary) error {
		switch c.State {
		case "paused":
			return a.cli.ContainerUnpause(ctx, c.ID)
		case "exited", "created":
			return a.cli.ContainerStart(ctx, c.ID, container.StartOptions{})
		}
		return nil
	})
}

// Purge force-removes every container of the user.
func (a *Actuator) Purge(ctx context.Context, userID, providerID string) error {
	return a.each(ctx, "purge", userID, providerID, func(c container.Summary) error {
		return a.cli.ContainerRemove(ctx, c.ID, container.RemoveOptions{Force: true, RemoveVolumes: true})
	})
}
