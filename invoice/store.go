package invoice

import (
	"context"

	"github.com/xraph/finance/id"
)

type Store interface {
	Save(ctx context.Context, inv *Invoice) error
	Get(ctx context.Context, invID id.InvoiceID) (*Invoice, error)
	List(ctx context.Context, userID, providerID string, opts ListOpts) ([]*Invoice, error)
}

type ListOpts struct {
	State  State
	Limit  int
	Offset int
}
