package user

import (
	"fmt"
	"maps"
	"net/url"
	"time"

	"github.com/xraph/finance/invoice"
	"github.com/xraph/finance/pricing"
	"github.com/xraph/finance/types"
)

// Key identifies a user within the federation.
type Key struct {
	UserID     string `json:"user_id"`
	ProviderID string `json:"provider_id"`
}

func (k Key) String() string { return k.UserID + "@" + k.ProviderID }

// Encode returns a form of k that is distinct for distinct keys, for stores
// that index users by a single string. Both parts are query-escaped, so an
// '@' inside either part cannot be mistaken for the separator.
func (k Key) Encode() string {
	return url.QueryEscape(k.UserID) + "@" + url.QueryEscape(k.ProviderID)
}

// Less orders keys by user, then provider.
func (k Key) Less(other Key) bool {
	if k.UserID != other.UserID {
		return k.UserID < other.UserID
	}
	return k.ProviderID < other.ProviderID
}

// Validate reports whether both parts of the key are set.
func (k Key) Validate() error {
	if k.UserID == "" || k.ProviderID == "" {
		return fmt.Errorf("user: incomplete key %q", k.String())
	}
	return nil
}

// ResourceState is the enforcement lifecycle state of a user's resources.
type ResourceState string

const (
	StateDefault        ResourceState = "DEFAULT"
	StateWaitingForStop ResourceState = "WAITING_FOR_STOP"
	StateStopping       ResourceState = "STOPPING"
	StateStopped        ResourceState = "STOPPED"
	StateResuming       ResourceState = "RESUMING"
)

// Valid reports whether s is a known state.
func (s ResourceState) Valid() bool {
	switch s {
	case StateDefault, StateWaitingForStop, StateStopping, StateStopped, StateResuming:
		return true
	}
	return false
}

// User is the financial view of a federation user.
type User struct {
	types.Entity
	Key
	Plan             string             `json:"plan"`
	PreviousPlans    []string           `json:"previous_plans,omitempty"`
	Credits          *Credits           `json:"credits,omitempty"`
	Invoices         []*invoice.Invoice `json:"invoices,omitempty"`
	State            ResourceState      `json:"state"`
	StoppedResources bool               `json:"stopped_resources"`
	WaitStart        time.Time          `json:"wait_start"`
	LastBillingTime  time.Time          `json:"last_billing_time"`
	Properties       map[string]string  `json:"properties,omitempty"`
}

// New creates an unsubscribed user.
func New(key Key) *User {
	return &User{
		Entity:     types.NewEntity(),
		Key:        key,
		State:      StateDefault,
		Properties: make(map[string]string),
	}
}

// Subscribed reports whether the user is a member of a plan.
func (u *User) Subscribed() bool { return u.Plan != "" }

// EnsureCredits returns the credits ledger, creating an empty one if needed.
func (u *User) EnsureCredits() *Credits {
	if u.Credits == nil {
		u.Credits = &Credits{}
	}
	return u.Credits
}

// Invoice returns the invoice with the given ID string, or nil.
func (u *User) Invoice(invoiceID string) *invoice.Invoice {
	for _, inv := range u.Invoices {
		if inv.ID.String() == invoiceID {
			return inv
		}
	}
	return nil
}

// UnpaidInvoices returns the invoices that are not PAID. When plan is not
// empty only invoices issued under that plan are returned.
func (u *User) UnpaidInvoices(plan string) []*invoice.Invoice {
	var out []*invoice.Invoice
	for _, inv := range u.Invoices {
		if inv.IsPaid() {
			continue
		}
		if plan != "" && inv.PlanName != plan {
			continue
		}
		out = append(out, inv)
	}
	return out
}

// PastDebtsSettled reports whether nothing is owed under plans other than the
// current one: every invoice from another plan is PAID and, unless the
// credits ledger belongs to the current plan, the balance is not negative.
func (u *User) PastDebtsSettled(creditsAreCurrent bool) bool {
	for _, inv := range u.Invoices {
		if inv.PlanName != u.Plan && !inv.IsPaid() {
			return false
		}
	}
	if !creditsAreCurrent && u.Credits != nil && !u.Credits.HasPaid() {
		return false
	}
	return true
}

// Clone returns a deep copy that can be mutated without affecting u.
func (u *User) Clone() *User {
	c := *u
	c.PreviousPlans = append([]string(nil), u.PreviousPlans...)
	if u.Credits != nil {
		cr := *u.Credits
		c.Credits = &cr
	}
	if u.Invoices != nil {
		c.Invoices = make([]*invoice.Invoice, len(u.Invoices))
		for i, inv := range u.Invoices {
			c.Invoices[i] = inv.Clone()
		}
	}
	c.Properties = maps.Clone(u.Properties)
	return &c
}

// Credits is the prepaid balance of a user. The balance may go negative.
type Credits struct {
	Balance     types.Money `json:"balance"`
	LastCharged types.Money `json:"last_charged"`
}

// Deduct subtracts unitPrice*timeUsed from the balance and returns the amount
// deducted.
func (c *Credits) Deduct(_ pricing.Item, unitPrice, timeUsed types.Money) types.Money {
	amount := unitPrice.Mul(timeUsed)
	c.Balance = c.Balance.Sub(amount)
	c.LastCharged = amount
	return amount
}

// Add tops up the balance.
func (c *Credits) Add(amount types.Money) {
	c.Balance = c.Balance.Add(amount)
}

// HasPaid reports whether the balance is non-negative.
func (c *Credits) HasPaid() bool { return !c.Balance.IsNegative() }
