package audithook_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	audithook "github.com/xraph/finance/audit_hook"
	"github.com/xraph/finance/plugin"
	"github.com/xraph/finance/types"
	"github.com/xraph/finance/user"
)

type sink struct {
	mu     sync.Mutex
	events []*audithook.AuditEvent
	err    error
}

func (s *sink) Record(_ context.Context, evt *audithook.AuditEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, evt)
	return s.err
}

func TestRecordsThroughPluginRegistry(t *testing.T) {
	ctx := context.Background()
	s := &sink{}
	r := plugin.NewRegistry()
	require.NoError(t, r.Register(audithook.New(s)))

	u := user.New(user.Key{UserID: "alice", ProviderID: "p1"})
	u.Plan = "gold"
	r.EmitCreditsAdded(ctx, u, types.NewMoney(5))
	r.EmitEnforcementTransition(ctx, u, user.StateStopping, user.StateStopped)
	r.EmitBillingFailed(ctx, u.Key, "gold", errors.New("source down"))

	require.Len(t, s.events, 3)
	assert.Equal(t, audithook.ActionCreditsAdded, s.events[0].Action)
	assert.Equal(t, "alice@p1", s.events[0].ResourceID)
	assert.Equal(t, "5", s.events[0].Metadata["amount"])

	assert.Equal(t, audithook.SeverityWarning, s.events[1].Severity)
	assert.Equal(t, "STOPPED", s.events[1].Metadata["to"])

	assert.Equal(t, audithook.OutcomeFailure, s.events[2].Outcome)
	assert.Equal(t, "source down", s.events[2].Reason)
}

func TestDisabledActionsAreSkipped(t *testing.T) {
	ctx := context.Background()
	s := &sink{}
	ext := audithook.New(s, audithook.WithDisabledActions(audithook.ActionUserRemoved))

	require.NoError(t, ext.OnUserRemoved(ctx, user.Key{UserID: "a", ProviderID: "p"}))
	require.NoError(t, ext.OnPlanUninstalled(ctx, "gold"))

	require.Len(t, s.events, 1)
	assert.Equal(t, audithook.ActionPlanUninstalled, s.events[0].Action)
}

func TestRecorderFailureIsSwallowed(t *testing.T) {
	s := &sink{err: errors.New("audit store down")}
	ext := audithook.New(s)
	assert.NoError(t, ext.OnPlanUninstalled(context.Background(), "gold"))
}
