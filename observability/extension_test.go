package observability_test

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/finance/invoice"
	"github.com/xraph/finance/observability"
	"github.com/xraph/finance/plugin"
	"github.com/xraph/finance/types"
	"github.com/xraph/finance/user"
)

func TestMetricsThroughPrometheus(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	m := observability.NewMetricsExtension(observability.NewPrometheusFactory(reg))

	hooks := plugin.NewRegistry()
	require.NoError(t, hooks.Register(m))

	u := user.New(user.Key{UserID: "alice", ProviderID: "p1"})
	hooks.EmitUserRegistered(ctx, u)
	hooks.EmitCreditsDeducted(ctx, u, types.NewMoney(12))
	hooks.EmitResourcesStopped(ctx, u, "hibernate")
	hooks.EmitResourcesStopped(ctx, u, "stop")
	hooks.EmitEnforcementTransition(ctx, u, user.StateDefault, user.StateWaitingForStop)

	inv := invoice.New("alice", "p1", "gold", u.CreatedAt, u.CreatedAt)
	inv.Total = types.NewMoney(40)
	hooks.EmitInvoiceGenerated(ctx, inv)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.UserRegistered.(prometheus.Counter)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ResourcesHibernated.(prometheus.Counter)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ResourcesStopped.(prometheus.Counter)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.UsersWaiting.(prometheus.Counter)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.InvoiceGenerated.(prometheus.Counter)))

	n, err := testutil.GatherAndCount(reg, "finance_user_registered_total", "finance_invoice_total_amount")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestPrometheusFactoryReusesCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	f1 := observability.NewPrometheusFactory(reg)
	f2 := observability.NewPrometheusFactory(reg)

	f1.Counter("finance.plan.installed").Inc()
	f2.Counter("finance.plan.installed").Inc()

	assert.Equal(t, 2.0, testutil.ToFloat64(f1.Counter("finance.plan.installed").(prometheus.Counter)))
}
