package finance

import (
	"github.com/xraph/finance/id"
	"github.com/xraph/finance/invoice"
	"github.com/xraph/finance/plan"
	"github.com/xraph/finance/types"
	"github.com/xraph/finance/user"
)

// Aliases for the record types that cross the engine API, so callers need
// only this package for common use.
type (
	Money     = types.Money
	UserKey   = user.Key
	User      = user.User
	Plan      = plan.Plan
	Invoice   = invoice.Invoice
	InvoiceID = id.InvoiceID
)

var (
	NewMoney   = types.NewMoney
	ParseMoney = types.Parse
)
