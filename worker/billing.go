package worker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/xraph/finance"
	"github.com/xraph/finance/invoice"
	"github.com/xraph/finance/plugin"
	"github.com/xraph/finance/types"
	"github.com/xraph/finance/usage"
	"github.com/xraph/finance/user"
)

// Result summarizes one worker iteration.
type Result struct {
	Processed int
	Changed   int
	Failed    int
}

// Billing charges the users of one plan for their usage.
type Billing struct {
	plan   string
	kind   finance.Kind
	dir    *finance.Directory
	usage  usage.Source
	hooks  *plugin.Registry
	clock  clockwork.Clock
	logger *slog.Logger
}

// NewBilling creates the billing worker of the plan described by deps.
func NewBilling(deps finance.Deps, kind finance.Kind) *Billing {
	b := &Billing{
		plan:   deps.PlanName,
		kind:   kind,
		dir:    deps.Directory,
		usage:  deps.Usage,
		hooks:  deps.Hooks,
		clock:  deps.Clock,
		logger: deps.Logger,
	}
	if b.usage == nil {
		b.usage = usage.Empty
	}
	if b.clock == nil {
		b.clock = clockwork.NewRealClock()
	}
	if b.logger == nil {
		b.logger = slog.Default()
	}
	b.logger = b.logger.With("worker", "billing", "plan", b.plan)
	return b
}

// RunOnce bills every user of the plan whose billing interval has elapsed.
// A user that fails is logged and keeps its billing time; the others are
// still processed.
func (b *Billing) RunOnce(ctx context.Context) Result {
	var res Result

	// No scan may stay open while a user lock is awaited.
	for _, key := range b.dir.Members(b.plan) {
		if err := ctx.Err(); err != nil {
			b.logger.Debug("billing run interrupted", "error", err)
			break
		}
		res.Processed++

		billed, err := b.BillUser(ctx, key)
		switch {
		case err != nil:
			res.Failed++
			b.logger.Warn("billing failed",
				"user_id", key.UserID,
				"provider_id", key.ProviderID,
				"error", err,
			)
			b.hooks.EmitBillingFailed(ctx, key, b.plan, err)
		case billed:
			res.Changed++
		}
	}

	b.logger.Debug("billing run finished",
		"processed", res.Processed,
		"billed", res.Changed,
		"failed", res.Failed,
	)
	return res
}

type billing struct {
	billed    bool
	amount    types.Money
	invoice   *invoice.Invoice
	defaulted []*invoice.Invoice
	user      *user.User
	err       error
}

// BillUser bills one user if its billing interval has elapsed. Invoices past
// their due date are marked DEFAULTING on every call. It reports whether a
// charge was applied.
func (b *Billing) BillUser(ctx context.Context, key user.Key) (bool, error) {
	now := b.clock.Now()
	settings := b.kind.Settings()

	var out billing
	u, err := b.dir.Update(ctx, key, func(u *user.User) (bool, error) {
		if u.Plan != b.plan {
			return false, nil
		}

		for _, inv := range b.kind.MarkOverdue(u, now) {
			out.defaulted = append(out.defaulted, inv.Clone())
		}
		changed := len(out.defaulted) > 0

		start := u.LastBillingTime
		if now.Sub(start) < settings.BillingInterval {
			return changed, nil
		}

		// A failed charge leaves the window unbilled; overdue invoices are
		// still committed.
		amount, inv, err := b.charge(ctx, u, settings, start, now)
		if err != nil {
			out.err = err
			return changed, nil
		}

		out.billed = true
		out.amount = amount
		out.invoice = inv
		return true, nil
	})
	if err != nil {
		if errors.Is(err, finance.ErrUserNotFound) {
			return false, nil
		}
		return false, err
	}
	out.user = u

	b.emit(ctx, out)
	return out.billed, out.err
}

// Settle bills u for everything since its last billing, whether or not the
// billing interval has elapsed. It runs with the user's lock held, before u
// leaves the plan, and fails rather than let the window go unbilled.
func (b *Billing) Settle(ctx context.Context, u *user.User) (*finance.Settlement, error) {
	now := b.clock.Now()
	start := u.LastBillingTime
	s := &finance.Settlement{Plan: b.plan, Start: start, End: now, Amount: types.Zero}
	if !now.After(start) {
		return s, nil
	}

	amount, inv, err := b.charge(ctx, u, b.kind.Settings(), start, now)
	if err != nil {
		return nil, err
	}
	s.Amount = amount
	s.Invoice = inv
	return s, nil
}

// charge prices the usage of [start, now), bills it to u and advances its
// billing time. A fetch or pricing failure leaves u untouched.
func (b *Billing) charge(ctx context.Context, u *user.User, settings finance.Settings, start, now time.Time) (types.Money, *invoice.Invoice, error) {
	records, err := b.usage.UsageRecords(ctx, u.UserID, u.ProviderID, start, now)
	if err != nil {
		return types.Zero, nil, finance.Internal("fetch usage", err)
	}
	charges, err := Price(b.kind.Pricing(), records, start, now, settings.TimeUnit)
	if err != nil {
		return types.Zero, nil, err
	}

	inv, err := b.kind.Bill(u, charges, start, now)
	if err != nil {
		return types.Zero, nil, err
	}
	u.LastBillingTime = now

	if inv != nil {
		inv = inv.Clone()
	}
	return Total(charges), inv, nil
}

func (b *Billing) emit(ctx context.Context, out billing) {
	for _, inv := range out.defaulted {
		b.hooks.EmitInvoiceDefaulted(ctx, inv)
	}
	if !out.billed {
		return
	}
	if out.invoice != nil {
		b.hooks.EmitInvoiceGenerated(ctx, out.invoice)
		return
	}
	if out.amount.IsPositive() {
		b.hooks.EmitCreditsDeducted(ctx, out.user, out.amount)
	}
}
