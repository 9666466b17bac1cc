// Package worker implements the periodic billing and enforcement workers
// that every installed plan runs.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/xraph/finance"
)

// DefaultInterval is how often a worker runs when none is configured.
const DefaultInterval = 10 * time.Second

// DefaultStopTimeout bounds how long Stop waits for the worker to exit.
const DefaultStopTimeout = 30 * time.Second

// Loop runs a function on a fixed interval in its own goroutine until
// stopped. An iteration in progress always completes before the loop exits.
type Loop struct {
	name     string
	interval time.Duration
	clock    clockwork.Clock
	logger   *slog.Logger
	fn       func(ctx context.Context)

	mu       sync.Mutex
	stopChan chan struct{}
	done     chan struct{}
	cancel   context.CancelFunc
}

// NewLoop creates a stopped loop that calls fn every interval.
func NewLoop(name string, interval time.Duration, clock clockwork.Clock, logger *slog.Logger, fn func(ctx context.Context)) *Loop {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Loop{
		name:     name,
		interval: interval,
		clock:    clock,
		logger:   logger,
		fn:       fn,
	}
}

// Start launches the loop. Starting a running loop is a no-op. The loop's
// context outlives ctx and is cancelled by Stop.
func (l *Loop) Start(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.stopChan != nil {
		return nil
	}
	if l.done != nil {
		select {
		case <-l.done:
		default:
			return fmt.Errorf("%w: %s is still shutting down", finance.ErrStopTimeout, l.name)
		}
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	l.stopChan = make(chan struct{})
	l.done = make(chan struct{})
	l.cancel = cancel

	go l.run(runCtx, l.stopChan, l.done)

	l.logger.Debug("worker started", "worker", l.name, "interval", l.interval)
	return nil
}

func (l *Loop) run(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := l.clock.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.Chan():
			select {
			case <-stop:
				return
			default:
			}
			l.fn(ctx)
		}
	}
}

// Stop signals the loop and waits for it to acknowledge by exiting. When
// the loop does not exit within timeout, its context is cancelled and
// ErrStopTimeout is returned.
func (l *Loop) Stop(ctx context.Context, timeout time.Duration) error {
	l.mu.Lock()
	if l.stopChan == nil {
		l.mu.Unlock()
		return nil
	}
	close(l.stopChan)
	l.stopChan = nil
	done, cancel := l.done, l.cancel
	l.mu.Unlock()

	defer cancel()

	if timeout <= 0 {
		timeout = DefaultStopTimeout
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-done:
		l.logger.Debug("worker stopped", "worker", l.name)
		return nil
	case <-timer.C:
		l.logger.Error("worker did not stop in time", "worker", l.name, "timeout", timeout)
		return fmt.Errorf("%w: %s", finance.ErrStopTimeout, l.name)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Running reports whether the loop has been started and not stopped.
func (l *Loop) Running() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stopChan != nil
}
