package eventbus_test

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/finance/eventbus"
	"github.com/xraph/finance/invoice"
	"github.com/xraph/finance/plugin"
	"github.com/xraph/finance/types"
	"github.com/xraph/finance/user"
)

func TestPluginPublishesEnvelopes(t *testing.T) {
	ctx := context.Background()
	pub := &eventbus.MemoryPublisher{}
	fixed := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	hooks := plugin.NewRegistry()
	require.NoError(t, hooks.Register(eventbus.NewPlugin(pub, eventbus.WithNow(func() time.Time { return fixed }))))

	u := user.New(user.Key{UserID: "alice", ProviderID: "p1"})
	u.Plan = "gold"
	u.EnsureCredits().Balance = types.NewMoney(-3)
	hooks.EmitCreditsDeducted(ctx, u, types.NewMoney(8))

	inv := invoice.New("alice", "p1", "silver", fixed, fixed)
	inv.SetState(invoice.StatePaid, fixed)
	hooks.EmitInvoicePaid(ctx, inv)

	msgs := pub.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, eventbus.KeyCreditsDeducted, msgs[0].RoutingKey)

	var evt eventbus.Event
	require.NoError(t, json.Unmarshal(msgs[0].Payload, &evt))
	assert.True(t, strings.HasPrefix(evt.ID, "fevt_"), evt.ID)
	assert.Equal(t, "alice", evt.UserID)
	assert.Equal(t, "gold", evt.Plan)
	assert.True(t, evt.OccurredAt.Equal(fixed))
	assert.Equal(t, "8", evt.Data["amount"])
	assert.Equal(t, "-3", evt.Data["balance"])

	require.NoError(t, json.Unmarshal(msgs[1].Payload, &evt))
	assert.Equal(t, eventbus.KeyInvoicePaid, evt.RoutingKey)
	assert.Equal(t, inv.ID.String(), evt.Data["invoice_id"])
	assert.Equal(t, "PAID", evt.Data["state"])
}

func TestNoopPublisher(t *testing.T) {
	p := eventbus.NewNoopPublisher(nil)
	require.NoError(t, p.Publish(context.Background(), "k", []byte("{}")))
	require.NoError(t, p.Close())
}
