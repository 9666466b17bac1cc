package actuator_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/finance/actuator"
	"github.com/xraph/finance/actuator/actuatortest"
)

func TestSuspendPrefersHibernate(t *testing.T) {
	rec := actuatortest.New()

	op, err := actuator.Suspend(context.Background(), rec, "alice", "p1")
	require.NoError(t, err)
	assert.Equal(t, "hibernate", op)
	assert.Equal(t, []string{"hibernate"}, rec.Ops())
}

func TestSuspendFallsBackToStop(t *testing.T) {
	rec := actuatortest.New().NoHibernate()

	op, err := actuator.Suspend(context.Background(), rec, "alice", "p1")
	require.NoError(t, err)
	assert.Equal(t, "stop", op)
	assert.Equal(t, []string{"hibernate", "stop"}, rec.Ops())
}

func TestSuspendDoesNotStopOnHibernateFailure(t *testing.T) {
	rec := actuatortest.New()
	rec.SetFailure("hibernate", errors.New("daemon down"))

	_, err := actuator.Suspend(context.Background(), rec, "alice", "p1")
	require.Error(t, err)
	assert.Equal(t, []string{"hibernate"}, rec.Ops())
}

func TestBreakerIgnoresUnsupported(t *testing.T) {
	rec := actuatortest.New().NoHibernate()
	b := actuator.NewBreaker(rec, 1, time.Minute, slog.Default())

	for i := 0; i < 3; i++ {
		err := b.Hibernate(context.Background(), "alice", "p1")
		assert.ErrorIs(t, err, actuator.ErrUnsupported)
	}
	require.NoError(t, b.Stop(context.Background(), "alice", "p1"))
}

func TestBreakerOpens(t *testing.T) {
	rec := actuatortest.New()
	rec.SetFailure("resume", errors.New("daemon down"))
	b := actuator.NewBreaker(rec, 2, time.Minute, slog.Default())

	require.Error(t, b.Resume(context.Background(), "alice", "p1"))
	require.Error(t, b.Resume(context.Background(), "alice", "p1"))

	err := b.Resume(context.Background(), "alice", "p1")
	assert.ErrorIs(t, err, actuator.ErrBackendUnavailable)
	assert.Len(t, rec.Calls(), 2)
}
