package store

import (
	"context"

	"github.com/xraph/finance/id"
	"github.com/xraph/finance/invoice"
	"github.com/xraph/finance/plan"
	"github.com/xraph/finance/user"
)

// Store is the unified storage interface for all finance entities.
// Instead of embedding the sub-interfaces, we explicitly declare all methods
// to avoid naming conflicts.
//
// Every write is an upsert so that callers can retry safely.
type Store interface {
	// User methods
	SaveUser(ctx context.Context, u *user.User) error
	RemoveUser(ctx context.Context, key user.Key) error
	GetAllUsers(ctx context.Context) ([]*user.User, error)

	// Plan methods
	SavePlan(ctx context.Context, p *plan.Plan) error
	RemovePlan(ctx context.Context, name string) error
	GetAllPlans(ctx context.Context) ([]*plan.Plan, error)

	// Invoice methods
	SaveInvoice(ctx context.Context, inv *invoice.Invoice) error
	GetInvoice(ctx context.Context, invID id.InvoiceID) (*invoice.Invoice, error)
	ListInvoices(ctx context.Context, userID, providerID string, opts invoice.ListOpts) ([]*invoice.Invoice, error)

	// Core methods
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}
