package worker_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/finance"
	"github.com/xraph/finance/worker"
)

func TestLoopRunsUntilStopped(t *testing.T) {
	var calls atomic.Int32
	l := worker.NewLoop("test", 5*time.Millisecond, clockwork.NewRealClock(), nil, func(context.Context) {
		calls.Add(1)
	})

	require.NoError(t, l.Start(context.Background()))
	require.NoError(t, l.Start(context.Background()))
	assert.True(t, l.Running())
	require.Eventually(t, func() bool { return calls.Load() >= 2 }, time.Second, time.Millisecond)

	require.NoError(t, l.Stop(context.Background(), time.Second))
	assert.False(t, l.Running())
	n := calls.Load()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, n, calls.Load())

	require.NoError(t, l.Stop(context.Background(), time.Second))
}

func TestLoopStopTimeout(t *testing.T) {
	entered := make(chan struct{}, 1)
	release := make(chan struct{})
	l := worker.NewLoop("slow", time.Millisecond, clockwork.NewRealClock(), nil, func(ctx context.Context) {
		select {
		case entered <- struct{}{}:
		default:
		}
		select {
		case <-release:
		case <-ctx.Done():
		}
	})

	require.NoError(t, l.Start(context.Background()))
	<-entered

	err := l.Stop(context.Background(), 20*time.Millisecond)
	assert.ErrorIs(t, err, finance.ErrStopTimeout)
	close(release)

	require.Eventually(t, func() bool {
		return l.Start(context.Background()) == nil
	}, time.Second, time.Millisecond)
	require.NoError(t, l.Stop(context.Background(), time.Second))
}
