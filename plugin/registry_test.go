package plugin_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/finance/plugin"
	"github.com/xraph/finance/types"
	"github.com/xraph/finance/user"
)

type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) Name() string { return "recorder" }

func (r *recorder) add(e string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) OnUserRegistered(_ context.Context, u *user.User) error {
	r.add("registered:" + u.Key.String())
	return nil
}

func (r *recorder) OnCreditsDeducted(_ context.Context, _ *user.User, amount types.Money) error {
	r.add("deducted:" + amount.String())
	return errors.New("ignored")
}

type slow struct{}

func (slow) Name() string { return "slow" }

func (slow) OnUserRemoved(ctx context.Context, _ user.Key) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestRegistry_DuplicateName(t *testing.T) {
	r := plugin.NewRegistry()
	require.NoError(t, r.Register(&recorder{}))
	require.Error(t, r.Register(&recorder{}))
	assert.Equal(t, 1, r.Count())
	assert.NotNil(t, r.Get("recorder"))
	assert.Nil(t, r.Get("missing"))
}

func TestRegistry_DispatchesToImplementers(t *testing.T) {
	rec := &recorder{}
	r := plugin.NewRegistry()
	require.NoError(t, r.Register(rec))
	require.NoError(t, r.Register(slow{}))

	ctx := context.Background()
	u := user.New(user.Key{UserID: "alice", ProviderID: "p1"})
	r.EmitUserRegistered(ctx, u)
	r.EmitCreditsDeducted(ctx, u, types.NewMoney(10))
	r.EmitPlanUninstalled(ctx, "gold")

	assert.Equal(t, []string{"registered:alice@p1", "deducted:10"}, rec.events)
}

func TestRegistry_HookTimeout(t *testing.T) {
	r := plugin.NewRegistry().WithTimeout(20 * time.Millisecond)
	require.NoError(t, r.Register(slow{}))

	start := time.Now()
	r.EmitUserRemoved(context.Background(), user.Key{UserID: "a", ProviderID: "p"})
	assert.Less(t, time.Since(start), time.Second)
}

func TestRegistry_NilIsNoop(t *testing.T) {
	var r *plugin.Registry
	assert.NotPanics(t, func() {
		r.EmitInit(context.Background(), nil)
	})
}
