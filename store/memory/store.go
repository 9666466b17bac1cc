// Package memory provides an in-process store.Store for tests and
// single-node deployments that do not need durability.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/xraph/finance"
	"github.com/xraph/finance/id"
	"github.com/xraph/finance/invoice"
	"github.com/xraph/finance/plan"
	"github.com/xraph/finance/store"
	"github.com/xraph/finance/user"
)

// Store keeps copies of every entity in maps. Values handed in and out are
// cloned so callers cannot mutate stored state.
type Store struct {
	mu sync.RWMutex

	// User storage
	users map[user.Key]*user.User

	// Plan storage
	plans map[string]*plan.Plan

	// Invoice storage
	invoices map[string]*invoice.Invoice

	closed bool
}

// New creates an empty store.
func New() *Store {
	return &Store{
		users:    make(map[user.Key]*user.User),
		plans:    make(map[string]*plan.Plan),
		invoices: make(map[string]*invoice.Invoice),
	}
}

var _ store.Store = (*Store)(nil)

// ──────────────────────────────────────────────────
// User Store implementation
// ──────────────────────────────────────────────────

func (s *Store) SaveUser(_ context.Context, u *user.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.users[u.Key] = u.Clone()
	return nil
}

func (s *Store) RemoveUser(_ context.Context, key user.Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[key]; !ok {
		return finance.ErrUserNotFound
	}
	delete(s.users, key)
	for k, inv := range s.invoices {
		if inv.UserID == key.UserID && inv.ProviderID == key.ProviderID {
			delete(s.invoices, k)
		}
	}
	return nil
}

func (s *Store) GetAllUsers(_ context.Context) ([]*user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*user.User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, u.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key.Less(out[j].Key) })
	return out, nil
}

// ──────────────────────────────────────────────────
// Plan Store implementation
// ──────────────────────────────────────────────────

func (s *Store) SavePlan(_ context.Context, p *plan.Plan) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.plans[p.Name] = p.Clone()
	return nil
}

func (s *Store) RemovePlan(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.plans[name]; !ok {
		return finance.ErrPlanNotFound
	}
	delete(s.plans, name)
	return nil
}

func (s *Store) GetAllPlans(_ context.Context) ([]*plan.Plan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*plan.Plan, 0, len(s.plans))
	for _, p := range s.plans {
		out = append(out, p.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// ──────────────────────────────────────────────────
// Invoice Store implementation
// ──────────────────────────────────────────────────

func (s *Store) SaveInvoice(_ context.Context, inv *invoice.Invoice) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.invoices[inv.ID.String()] = inv.Clone()
	return nil
}

func (s *Store) GetInvoice(_ context.Context, invID id.InvoiceID) (*invoice.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if inv, ok := s.invoices[invID.String()]; ok {
		return inv.Clone(), nil
	}
	return nil, finance.ErrInvoiceNotFound
}

func (s *Store) ListInvoices(_ context.Context, userID, providerID string, opts invoice.ListOpts) ([]*invoice.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*invoice.Invoice
	for _, inv := range s.invoices {
		if inv.UserID != userID || inv.ProviderID != providerID {
			continue
		}
		if opts.State != "" && inv.State != opts.State {
			continue
		}
		out = append(out, inv.Clone())
	}

	// Newest first; TypeIDs sort by creation time.
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() > out[j].ID.String() })

	if opts.Offset > 0 {
		if opts.Offset >= len(out) {
			return nil, nil
		}
		out = out[opts.Offset:]
	}
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

// ──────────────────────────────────────────────────
// Core methods
// ──────────────────────────────────────────────────

func (s *Store) Migrate(_ context.Context) error { return nil }

func (s *Store) Ping(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return finance.ErrStoreUnavailable
	}
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	return nil
}
