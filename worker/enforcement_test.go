package worker_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/finance"
	"github.com/xraph/finance/plankind/prepaid"
	"github.com/xraph/finance/types"
	"github.com/xraph/finance/user"
	"github.com/xraph/finance/worker"
)

func TestTransition(t *testing.T) {
	wait := 120 * time.Second
	start := at(100)

	tests := []struct {
		name   string
		state  user.ResourceState
		paid   bool
		now    time.Time
		want   user.ResourceState
		action worker.Action
	}{
		{"default paid", user.StateDefault, true, at(100), user.StateDefault, worker.ActionNone},
		{"default unpaid", user.StateDefault, false, at(100), user.StateWaitingForStop, worker.ActionRecordWaitStart},
		{"waiting before deadline", user.StateWaitingForStop, false, at(219), user.StateWaitingForStop, worker.ActionNone},
		{"waiting at deadline", user.StateWaitingForStop, false, at(220), user.StateStopping, worker.ActionNone},
		{"waiting paid", user.StateWaitingForStop, true, at(150), user.StateDefault, worker.ActionNone},
		{"stopping unpaid", user.StateStopping, false, at(221), user.StateStopped, worker.ActionSuspend},
		{"stopping paid", user.StateStopping, true, at(221), user.StateDefault, worker.ActionNone},
		{"stopped unpaid", user.StateStopped, false, at(300), user.StateStopped, worker.ActionNone},
		{"stopped paid", user.StateStopped, true, at(300), user.StateResuming, worker.ActionNone},
		{"resuming", user.StateResuming, false, at(301), user.StateDefault, worker.ActionResume},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, action := worker.Transition(tt.state, tt.paid, start, tt.now, wait)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.action, action, "action %s", action)
		})
	}
}

func TestEnforcementSuspendsAfterWaitAndResumes(t *testing.T) {
	f := newFixture(t, prepaid.Name, baseOptions(), at(100))
	alice := f.register(t, "alice")
	f.setBalance(t, alice, types.NewMoney(-1))
	e := worker.NewEnforcement(f.deps, f.kind)

	changed, err := e.EnforceUser(f.ctx, alice)
	require.NoError(t, err)
	assert.True(t, changed)
	u := f.user(t, alice)
	assert.Equal(t, user.StateWaitingForStop, u.State)
	assert.True(t, u.WaitStart.Equal(at(100)))

	f.clock.Advance(119 * time.Second)
	changed, err = e.EnforceUser(f.ctx, alice)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, user.StateWaitingForStop, f.user(t, alice).State)

	f.clock.Advance(time.Second)
	_, err = e.EnforceUser(f.ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, user.StateStopping, f.user(t, alice).State)
	assert.Empty(t, f.act.Ops())

	_, err = e.EnforceUser(f.ctx, alice)
	require.NoError(t, err)
	u = f.user(t, alice)
	assert.Equal(t, user.StateStopped, u.State)
	assert.True(t, u.StoppedResources)
	assert.Equal(t, []string{"hibernate"}, f.act.Ops())

	f.setBalance(t, alice, types.NewMoney(5))
	_, err = e.EnforceUser(f.ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, user.StateResuming, f.user(t, alice).State)

	_, err = e.EnforceUser(f.ctx, alice)
	require.NoError(t, err)
	u = f.user(t, alice)
	assert.Equal(t, user.StateDefault, u.State)
	assert.False(t, u.StoppedResources)
	assert.True(t, u.WaitStart.IsZero())
	assert.Equal(t, []string{"hibernate", "resume"}, f.act.Ops())

	assert.Equal(t, []string{
		"DEFAULT->WAITING_FOR_STOP",
		"WAITING_FOR_STOP->STOPPING",
		"STOPPING->STOPPED",
		"STOPPED->RESUMING",
		"RESUMING->DEFAULT",
	}, f.hooks.transitions)
	assert.Equal(t, []string{"hibernate"}, f.hooks.stopped)
	assert.Equal(t, 1, f.hooks.resumed)
}

func TestEnforcementFallsBackToStop(t *testing.T) {
	f := newFixture(t, prepaid.Name, baseOptions(), at(100))
	f.act.NoHibernate()
	alice := f.register(t, "alice")
	f.setBalance(t, alice, types.NewMoney(-1))
	e := worker.NewEnforcement(f.deps, f.kind)

	_, err := e.EnforceUser(f.ctx, alice)
	require.NoError(t, err)
	f.clock.Advance(120 * time.Second)
	_, err = e.EnforceUser(f.ctx, alice)
	require.NoError(t, err)
	_, err = e.EnforceUser(f.ctx, alice)
	require.NoError(t, err)

	assert.Equal(t, user.StateStopped, f.user(t, alice).State)
	assert.Equal(t, []string{"hibernate", "stop"}, f.act.Ops())
	assert.Equal(t, []string{"stop"}, f.hooks.stopped)
}

func TestEnforcementSuspendFailureRetries(t *testing.T) {
	f := newFixture(t, prepaid.Name, baseOptions(), at(100))
	boom := errors.New("cloud unreachable")
	f.act.SetFailure("hibernate", boom)
	alice := f.register(t, "alice")
	_, err := f.dir.Update(f.ctx, alice, func(u *user.User) (bool, error) {
		u.Credits.Balance = types.NewMoney(-1)
		u.State = user.StateStopping
		return true, nil
	})
	require.NoError(t, err)
	e := worker.NewEnforcement(f.deps, f.kind)

	_, err = e.EnforceUser(f.ctx, alice)
	assert.ErrorIs(t, err, finance.ErrActuatorFailed)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, user.StateStopping, f.user(t, alice).State)

	f.act.SetFailure("hibernate", nil)
	_, err = e.EnforceUser(f.ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, user.StateStopped, f.user(t, alice).State)
}

func TestEnforcementResumeFailureStaysStopped(t *testing.T) {
	f := newFixture(t, prepaid.Name, baseOptions(), at(100))
	f.act.SetFailure("resume", errors.New("quota"))
	alice := f.register(t, "alice")
	_, err := f.dir.Update(f.ctx, alice, func(u *user.User) (bool, error) {
		u.State = user.StateResuming
		u.StoppedResources = true
		return true, nil
	})
	require.NoError(t, err)

	_, err = worker.NewEnforcement(f.deps, f.kind).EnforceUser(f.ctx, alice)
	assert.ErrorIs(t, err, finance.ErrActuatorFailed)
	u := f.user(t, alice)
	assert.Equal(t, user.StateStopped, u.State)
	assert.True(t, u.StoppedResources)
}

func TestEnforcementFlagMode(t *testing.T) {
	opts := baseOptions()
	opts["enforcement_mode"] = "flag"
	f := newFixture(t, prepaid.Name, opts, at(100))
	alice := f.register(t, "alice")
	e := worker.NewEnforcement(f.deps, f.kind)

	changed, err := e.EnforceUser(f.ctx, alice)
	require.NoError(t, err)
	assert.False(t, changed)

	f.setBalance(t, alice, types.NewMoney(-1))
	_, err = e.EnforceUser(f.ctx, alice)
	require.NoError(t, err)
	assert.True(t, f.user(t, alice).StoppedResources)

	f.setBalance(t, alice, types.Zero)
	_, err = e.EnforceUser(f.ctx, alice)
	require.NoError(t, err)
	assert.False(t, f.user(t, alice).StoppedResources)
	assert.Equal(t, []string{"pause", "resume"}, f.act.Ops())
}

func TestEnforcementRunOnceCountsFailures(t *testing.T) {
	f := newFixture(t, prepaid.Name, baseOptions(), at(100))
	f.act.SetFailure("hibernate", errors.New("down"))
	alice := f.register(t, "alice")
	f.register(t, "bob")
	_, err := f.dir.Update(f.ctx, alice, func(u *user.User) (bool, error) {
		u.Credits.Balance = types.NewMoney(-1)
		u.State = user.StateStopping
		return true, nil
	})
	require.NoError(t, err)

	res := worker.NewEnforcement(f.deps, f.kind).RunOnce(f.ctx)
	assert.Equal(t, worker.Result{Processed: 2, Failed: 1}, res)
}
