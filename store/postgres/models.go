package postgres

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/xraph/finance/id"
	"github.com/xraph/finance/invoice"
	"github.com/xraph/finance/plan"
	"github.com/xraph/finance/types"
	"github.com/xraph/finance/user"
)

// ==================== Plan models ====================

type planModel struct {
	Name      string
	Kind      string
	Options   []byte
	Running   bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

func toPlanModel(p *plan.Plan) (*planModel, error) {
	options, err := json.Marshal(p.Options)
	if err != nil {
		return nil, fmt.Errorf("finance/postgres: encode plan options: %w", err)
	}
	return &planModel{
		Name:      p.Name,
		Kind:      p.Kind,
		Options:   options,
		Running:   p.Running,
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}, nil
}

func fromPlanModel(m *planModel) (*plan.Plan, error) {
	options := make(map[string]string)
	if len(m.Options) > 0 {
		if err := json.Unmarshal(m.Options, &options); err != nil {
			return nil, fmt.Errorf("finance/postgres: decode options of plan %q: %w", m.Name, err)
		}
	}
	return &plan.Plan{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		Name:    m.Name,
		Kind:    m.Kind,
		Options: options,
		Running: m.Running,
	}, nil
}

// ==================== User models ====================

// userModel keeps the indexed columns next to the full JSON document. The
// document is authoritative; the columns serve lookups and reporting.
type userModel struct {
	UserID     string
	ProviderID string
	Plan       string
	State      string
	Document   []byte
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func toUserModel(u *user.User) (*userModel, error) {
	doc, err := json.Marshal(u)
	if err != nil {
		return nil, fmt.Errorf("finance/postgres: encode user %s: %w", u.Key, err)
	}
	return &userModel{
		UserID:     u.UserID,
		ProviderID: u.ProviderID,
		Plan:       u.Plan,
		State:      string(u.State),
		Document:   doc,
		CreatedAt:  u.CreatedAt,
		UpdatedAt:  u.UpdatedAt,
	}, nil
}

func fromUserModel(m *userModel) (*user.User, error) {
	u := user.New(user.Key{UserID: m.UserID, ProviderID: m.ProviderID})
	if err := json.Unmarshal(m.Document, u); err != nil {
		return nil, fmt.Errorf("finance/postgres: decode user %s@%s: %w", m.UserID, m.ProviderID, err)
	}
	return u, nil
}

// ==================== Invoice models ====================

type invoiceModel struct {
	ID          string
	UserID      string
	ProviderID  string
	Plan        string
	State       string
	Total       string
	PeriodStart time.Time
	PeriodEnd   time.Time
	DueDate     *time.Time
	PaidAt      *time.Time
	LineItems   []byte
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func toInvoiceModel(inv *invoice.Invoice) (*invoiceModel, error) {
	items, err := json.Marshal(inv.LineItems)
	if err != nil {
		return nil, fmt.Errorf("finance/postgres: encode invoice %s: %w", inv.ID, err)
	}
	var due *time.Time
	if !inv.DueDate.IsZero() {
		d := inv.DueDate
		due = &d
	}
	return &invoiceModel{
		ID:          inv.ID.String(),
		UserID:      inv.UserID,
		ProviderID:  inv.ProviderID,
		Plan:        inv.PlanName,
		State:       string(inv.State),
		Total:       inv.Total.String(),
		PeriodStart: inv.PeriodStart,
		PeriodEnd:   inv.PeriodEnd,
		DueDate:     due,
		PaidAt:      inv.PaidAt,
		LineItems:   items,
		CreatedAt:   inv.CreatedAt,
		UpdatedAt:   inv.UpdatedAt,
	}, nil
}

func fromInvoiceModel(m *invoiceModel) (*invoice.Invoice, error) {
	invID, err := id.ParseInvoiceID(m.ID)
	if err != nil {
		return nil, err
	}
	total, err := types.Parse(m.Total)
	if err != nil {
		return nil, err
	}
	inv := &invoice.Invoice{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:          invID,
		UserID:      m.UserID,
		ProviderID:  m.ProviderID,
		PlanName:    m.Plan,
		PeriodStart: m.PeriodStart,
		PeriodEnd:   m.PeriodEnd,
		Total:       total,
		State:       invoice.State(m.State),
		PaidAt:      m.PaidAt,
	}
	if m.DueDate != nil {
		inv.DueDate = *m.DueDate
	}
	if len(m.LineItems) > 0 {
		if err := json.Unmarshal(m.LineItems, &inv.LineItems); err != nil {
			return nil, fmt.Errorf("finance/postgres: decode line items of %s: %w", m.ID, err)
		}
	}
	return inv, nil
}
