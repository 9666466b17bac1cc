package mongo

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
	Name      string            `bson:"_id"`
	Kind      string            `bson:"kind"`
	Options   map[string]string `bson:"options,omitempty"`
	Running   bool              `bson:"running"`
	CreatedAt time.Time         `bson:"created_at"`
	UpdatedAt time.Time         `bson:"updated_at"`
}

func toPlanModel(p *plan.Plan) *planModel {
	return &planModel{
		Name:      p.Name,
		Kind:      p.Kind,
		Options:   p.Options,
		Running:   p.Running,
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
}

func fromPlanModel(m *planModel) *plan.Plan {
	options := m.Options
	if options == nil {
		options = make(map[string]string)
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
	}
}

// ==================== User models ====================

type userKeyModel struct {
	UserID     string `bson:"user_id"`
	ProviderID string `bson:"provider_id"`
}

// userModel stores the JSON document of the user next to queryable fields.
// Money values do not have a BSON mapping, so the document stays JSON.
type userModel struct {
	Key       userKeyModel `bson:"_id"`
	Plan      string       `bson:"plan"`
	State     string       `bson:"state"`
	Document  string       `bson:"document"`
	CreatedAt time.Time    `bson:"created_at"`
	UpdatedAt time.Time    `bson:"updated_at"`
}

func toUserModel(u *user.User) (*userModel, error) {
	doc, err := json.Marshal(u)
	if err != nil {
		return nil, fmt.Errorf("finance/mongo: encode user %s: %w", u.Key, err)
	}
	return &userModel{
		Key:       userKeyModel{UserID: u.UserID, ProviderID: u.ProviderID},
		Plan:      u.Plan,
		State:     string(u.State),
		Document:  string(doc),
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}, nil
}

func fromUserModel(m *userModel) (*user.User, error) {
	u := user.New(user.Key{UserID: m.Key.UserID, ProviderID: m.Key.ProviderID})
	if err := json.Unmarshal([]byte(m.Document), u); err != nil {
		return nil, fmt.Errorf("finance/mongo: decode user %s@%s: %w", m.Key.UserID, m.Key.ProviderID, err)
	}
	return u, nil
}

// ==================== Invoice models ====================

type invoiceModel struct {
	ID          string     `bson:"_id"`
	UserID      string     `bson:"user_id"`
	ProviderID  string     `bson:"provider_id"`
	Plan        string     `bson:"plan"`
	State       string     `bson:"state"`
	Total       string     `bson:"total"`
	PeriodStart time.Time  `bson:"period_start"`
	PeriodEnd   time.Time  `bson:"period_end"`
	DueDate     *time.Time `bson:"due_date,omitempty"`
	PaidAt      *time.Time `bson:"paid_at,omitempty"`
	LineItems   string     `bson:"line_items"`
	CreatedAt   time.Time  `bson:"created_at"`
	UpdatedAt   time.Time  `bson:"updated_at"`
}

func toInvoiceModel(inv *invoice.Invoice) (*invoiceModel, error) {
	items, err := json.Marshal(inv.LineItems)
	if err != nil {
		return nil, fmt.Errorf("finance/mongo: encode invoice %s: %w", inv.ID, err)
	}
	m := &invoiceModel{
		ID:          inv.ID.String(),
		UserID:      inv.UserID,
		ProviderID:  inv.ProviderID,
		Plan:        inv.PlanName,
		State:       string(inv.State),
		Total:       inv.Total.String(),
		PeriodStart: inv.PeriodStart,
		PeriodEnd:   inv.PeriodEnd,
		PaidAt:      inv.PaidAt,
		LineItems:   string(items),
		CreatedAt:   inv.CreatedAt,
		UpdatedAt:   inv.UpdatedAt,
	}
	if !inv.DueDate.IsZero() {
		d := inv.DueDate
		m.DueDate = &d
	}
	return m, nil
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
		State:       invoice.State(m.State),
		Total:       total,
		PeriodStart: m.PeriodStart,
		PeriodEnd:   m.PeriodEnd,
		PaidAt:      m.PaidAt,
	}
	if m.DueDate != nil {
		inv.DueDate = *m.DueDate
	}
	if m.LineItems != "" {
		if err := json.Unmarshal([]byte(m.LineItems), &inv.LineItems); err != nil {
			return nil, fmt.Errorf("finance/mongo: decode line items of %s: %w", m.ID, err)
		}
	}
	return inv, nil
}
