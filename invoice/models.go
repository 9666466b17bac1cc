package invoice

import (
	"time"

	"github.com/xraph/finance/id"
	"github.com/xraph/finance/pricing"
	"github.com/xraph/finance/types"
)

type State string

const (
	StateWaiting    State = "WAITING"
	StatePaid       State = "PAID"
	StateDefaulting State = "DEFAULTING"
)

// Valid reports whether s is a known invoice state.
func (s State) Valid() bool {
	switch s {
	case StateWaiting, StatePaid, StateDefaulting:
		return true
	}
	return false
}

// Invoice accumulates the charges of one billing period of a postpaid user.
type Invoice struct {
	types.Entity
	ID          id.InvoiceID `json:"id"`
	UserID      string       `json:"user_id"`
	ProviderID  string       `json:"provider_id"`
	PlanName    string       `json:"plan"`
	PeriodStart time.Time    `json:"period_start"`
	PeriodEnd   time.Time    `json:"period_end"`
	LineItems   []LineItem   `json:"line_items"`
	Total       types.Money  `json:"total"`
	State       State        `json:"state"`
	DueDate     time.Time    `json:"due_date"`
	PaidAt      *time.Time   `json:"paid_at,omitempty"`
}

// LineItem is the amount charged for one resource shape in one order state.
type LineItem struct {
	Item       pricing.Item `json:"item"`
	OrderState string       `json:"order_state,omitempty"`
	Units      types.Money  `json:"units"`
	UnitAmount types.Money  `json:"unit_amount"`
	Amount     types.Money  `json:"amount"`
}

// New creates a WAITING invoice for the period [start, end).
func New(userID, providerID, planName string, start, end time.Time) *Invoice {
	return &Invoice{
		Entity:      types.NewEntity(),
		ID:          id.NewInvoiceID(),
		UserID:      userID,
		ProviderID:  providerID,
		PlanName:    planName,
		PeriodStart: start,
		PeriodEnd:   end,
		State:       StateWaiting,
	}
}

// AddCharge adds units*unitAmount for item. Charges for the same item, order
// state and unit price are merged into one line.
func (inv *Invoice) AddCharge(item pricing.Item, orderState string, units, unitAmount types.Money) types.Money {
	amount := unitAmount.Mul(units)
	inv.Total = inv.Total.Add(amount)

	for i := range inv.LineItems {
		li := &inv.LineItems[i]
		if li.Item == item && li.OrderState == orderState && li.UnitAmount.Equal(unitAmount) {
			li.Units = li.Units.Add(units)
			li.Amount = li.Amount.Add(amount)
			return amount
		}
	}
	inv.LineItems = append(inv.LineItems, LineItem{
		Item:       item,
		OrderState: orderState,
		Units:      units,
		UnitAmount: unitAmount,
		Amount:     amount,
	})
	return amount
}

// Amounts returns the total charged per resource shape.
func (inv *Invoice) Amounts() map[pricing.Item]types.Money {
	out := make(map[pricing.Item]types.Money, len(inv.LineItems))
	for _, li := range inv.LineItems {
		out[li.Item] = out[li.Item].Add(li.Amount)
	}
	return out
}

// IsPaid reports whether the invoice has been settled.
func (inv *Invoice) IsPaid() bool { return inv.State == StatePaid }

// IsOverdue reports whether a WAITING invoice is past its due date at now.
func (inv *Invoice) IsOverdue(now time.Time) bool {
	return inv.State == StateWaiting && !inv.DueDate.IsZero() && !now.Before(inv.DueDate)
}

// SetState moves the invoice to s, stamping PaidAt when it becomes PAID.
func (inv *Invoice) SetState(s State, now time.Time) {
	inv.State = s
	if s == StatePaid {
		t := now
		inv.PaidAt = &t
	} else {
		inv.PaidAt = nil
	}
	inv.Touch()
}

// Clone returns a deep copy.
func (inv *Invoice) Clone() *Invoice {
	c := *inv
	c.LineItems = append([]LineItem(nil), inv.LineItems...)
	if inv.PaidAt != nil {
		t := *inv.PaidAt
		c.PaidAt = &t
	}
	return &c
}
