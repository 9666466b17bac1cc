package plankind_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/finance"
	"github.com/xraph/finance/plankind/prepaid"
	"github.com/xraph/finance/pricing"
	"github.com/xraph/finance/store/memory"
	"github.com/xraph/finance/types"
	"github.com/xraph/finance/user"
)

func newKind(t *testing.T) finance.Kind {
	t.Helper()
	return prepaid.New(finance.Deps{
		PlanName:  "gold",
		Directory: finance.NewDirectory(memory.New(), nil),
		Clock:     clockwork.NewFakeClockAt(time.Unix(500, 0)),
		Interval:  time.Hour,
	})
}

func TestSetOptionsRejectsBadInput(t *testing.T) {
	tests := map[string]map[string]string{
		"missing interval": {"enforcement_wait": "1", "pricing": "compute,1,1,1"},
		"zero interval":    {"billing_interval": "0", "enforcement_wait": "1", "pricing": "compute,1,1,1"},
		"missing wait":     {"billing_interval": "1", "pricing": "compute,1,1,1"},
		"not a number":     {"billing_interval": "soon", "enforcement_wait": "1", "pricing": "compute,1,1,1"},
		"no pricing":       {"billing_interval": "1", "enforcement_wait": "1"},
		"bad pricing":      {"billing_interval": "1", "enforcement_wait": "1", "pricing": "gpu,1,1"},
		"bad mode":         {"billing_interval": "1", "enforcement_wait": "1", "pricing": "compute,1,1,1", "enforcement_mode": "loud"},
		"bad unit":         {"billing_interval": "1", "enforcement_wait": "1", "pricing": "compute,1,1,1", "time_unit": "fortnight"},
	}
	for name, opts := range tests {
		t.Run(name, func(t *testing.T) {
			k := newKind(t)
			good := map[string]string{"billing_interval": "5", "enforcement_wait": "7", "pricing": "compute,1,1,2"}
			require.NoError(t, k.SetOptions(good))

			err := k.SetOptions(opts)
			require.ErrorIs(t, err, finance.ErrInvalidOption)
			assert.Equal(t, good, k.Options())
			assert.Equal(t, 5*time.Second, k.Settings().BillingInterval)
		})
	}
}

func TestSetOptionsTimeUnit(t *testing.T) {
	k := newKind(t)
	require.NoError(t, k.SetOptions(map[string]string{
		"billing_interval": "2",
		"enforcement_wait": "3",
		"time_unit":        "m",
		"pricing":          "compute,1,1,2",
	}))
	s := k.Settings()
	assert.Equal(t, 2*time.Minute, s.BillingInterval)
	assert.Equal(t, 3*time.Minute, s.EnforcementWait)
	assert.Equal(t, 2*time.Minute, s.InvoiceDue)
	assert.Equal(t, finance.ModeStateMachine, s.Mode)
}

func TestPricingPointerIsStable(t *testing.T) {
	k := newKind(t)
	require.NoError(t, k.SetOptions(map[string]string{"billing_interval": "1", "enforcement_wait": "1", "pricing": "compute,1,1,2"}))
	p := k.Pricing()

	require.NoError(t, k.SetOptions(map[string]string{"billing_interval": "1", "enforcement_wait": "1", "pricing": "compute,1,1,9"}))
	assert.Same(t, p, k.Pricing())
	price, err := p.Price(pricing.Compute(1, 1), "")
	require.NoError(t, err)
	assert.True(t, price.Equal(types.NewMoney(9)))
}

func TestReloadPricingFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prices.csv")
	require.NoError(t, os.WriteFile(path, []byte("compute,1,1,2\n"), 0o600))

	k := newKind(t)
	require.NoError(t, k.SetOptions(map[string]string{"billing_interval": "1", "enforcement_wait": "1", "pricing_file": path}))

	require.NoError(t, os.WriteFile(path, []byte("# updated\ncompute,1,1,4\nvolume,5,1\n"), 0o600))
	require.NoError(t, k.ReloadPricing())
	assert.Equal(t, 2, k.Pricing().Len())

	require.NoError(t, os.WriteFile(path, []byte("compute,oops\n"), 0o600))
	require.ErrorIs(t, k.ReloadPricing(), finance.ErrInvalidOption)
	assert.Equal(t, 2, k.Pricing().Len())
}

func TestRegisterUserStampsBillingTime(t *testing.T) {
	k := newKind(t)
	require.NoError(t, k.SetOptions(map[string]string{"billing_interval": "1", "enforcement_wait": "1", "pricing": "compute,1,1,2"}))

	u := user.New(user.Key{UserID: "alice", ProviderID: "p1"})
	require.NoError(t, k.RegisterUser(context.Background(), u))
	assert.True(t, u.LastBillingTime.Equal(time.Unix(500, 0)))
	assert.Equal(t, user.StateDefault, u.State)
}

func TestWorkersStartAndStop(t *testing.T) {
	k := newKind(t)
	require.NoError(t, k.SetOptions(map[string]string{"billing_interval": "1", "enforcement_wait": "1", "pricing": "compute,1,1,2"}))
	ctx := context.Background()

	require.NoError(t, k.StartWorkers(ctx))
	assert.True(t, k.Running())
	require.NoError(t, k.StartWorkers(ctx))

	require.NoError(t, k.StopWorkers(ctx))
	assert.False(t, k.Running())
}
