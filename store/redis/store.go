// Package redis implements store.Store on Redis hashes. Every entity is a
// JSON value in a per-kind hash; a set per user indexes its invoices.
//
// Keys are namespaced: {prefix}:users, {prefix}:plans, {prefix}:invoices and
// {prefix}:user_invoices:{user}@{provider}. Users are addressed by
// user.Key.Encode.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"

	"github.com/xraph/finance"
	"github.com/xraph/finance/id"
	"github.com/xraph/finance/invoice"
	"github.com/xraph/finance/plan"
	financestore "github.com/xraph/finance/store"
	"github.com/xraph/finance/user"
)

// DefaultPrefix namespaces keys when none is configured.
const DefaultPrefix = "finance"

// compile-time interface check
var _ financestore.Store = (*Store)(nil)

// Store implements store.Store using Redis.
type Store struct {
	client *redis.Client
	prefix string
}

// New creates a store on an existing client. An empty prefix uses
// DefaultPrefix.
func New(client *redis.Client, prefix string) *Store {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Store{client: client, prefix: prefix}
}

// Open parses url, connects and verifies connectivity.
func Open(ctx context.Context, url, prefix string) (*Store, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("%w: parse redis url: %w", finance.ErrConfiguration, err)
	}
	s := New(redis.NewClient(opt), prefix)
	if err := s.Ping(ctx); err != nil {
		_ = s.client.Close() //nolint:errcheck // already failing
		return nil, err
	}
	return s, nil
}

// Client returns the underlying client for direct access.
func (s *Store) Client() *redis.Client { return s.client }

func (s *Store) usersKey() string    { return s.prefix + ":users" }
func (s *Store) plansKey() string    { return s.prefix + ":plans" }
func (s *Store) invoicesKey() string { return s.prefix + ":invoices" }

func (s *Store) userInvoicesKey(userID, providerID string) string {
	return s.prefix + ":user_invoices:" + user.Key{UserID: userID, ProviderID: providerID}.Encode()
}

// Migrate is a no-op; hashes are created on first write.
func (s *Store) Migrate(_ context.Context) error { return nil }

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %w", finance.ErrStoreUnavailable, err)
	}
	return nil
}

// Close closes the client.
func (s *Store) Close() error {
	return s.client.Close()
}

// ==================== User Store ====================

func (s *Store) SaveUser(ctx context.Context, u *user.User) error {
	doc, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("finance/redis: encode user %s: %w", u.Key, err)
	}
	return s.client.HSet(ctx, s.usersKey(), u.Key.Encode(), doc).Err()
}

func (s *Store) RemoveUser(ctx context.Context, key user.Key) error {
	n, err := s.client.HDel(ctx, s.usersKey(), key.Encode()).Result()
	if err != nil {
		return err
	}
	if n == 0 {
		return finance.ErrUserNotFound
	}

	idxKey := s.userInvoicesKey(key.UserID, key.ProviderID)
	ids, err := s.client.SMembers(ctx, idxKey).Result()
	if err != nil {
		return err
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if len(ids) > 0 {
			pipe.HDel(ctx, s.invoicesKey(), ids...)
		}
		pipe.Del(ctx, idxKey)
		return nil
	})
	return err
}

func (s *Store) GetAllUsers(ctx context.Context) ([]*user.User, error) {
	docs, err := s.client.HGetAll(ctx, s.usersKey()).Result()
	if err != nil {
		return nil, err
	}

	out := make([]*user.User, 0, len(docs))
	for field, doc := range docs {
		u := user.New(user.Key{})
		if err := json.Unmarshal([]byte(doc), u); err != nil {
			return nil, fmt.Errorf("finance/redis: decode user %s: %w", field, err)
		}
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key.Less(out[j].Key) })
	return out, nil
}

// ==================== Plan Store ====================

func (s *Store) SavePlan(ctx context.Context, p *plan.Plan) error {
	doc, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("finance/redis: encode plan %q: %w", p.Name, err)
	}
	return s.client.HSet(ctx, s.plansKey(), p.Name, doc).Err()
}

func (s *Store) RemovePlan(ctx context.Context, name string) error {
	n, err := s.client.HDel(ctx, s.plansKey(), name).Result()
	if err != nil {
		return err
	}
	if n == 0 {
		return finance.ErrPlanNotFound
	}
	return nil
}

func (s *Store) GetAllPlans(ctx context.Context) ([]*plan.Plan, error) {
	docs, err := s.client.HGetAll(ctx, s.plansKey()).Result()
	if err != nil {
		return nil, err
	}

	out := make([]*plan.Plan, 0, len(docs))
	for name, doc := range docs {
		var p plan.Plan
		if err := json.Unmarshal([]byte(doc), &p); err != nil {
			return nil, fmt.Errorf("finance/redis: decode plan %q: %w", name, err)
		}
		if p.Options == nil {
			p.Options = make(map[string]string)
		}
		out = append(out, &p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// ==================== Invoice Store ====================

func (s *Store) SaveInvoice(ctx context.Context, inv *invoice.Invoice) error {
	doc, err := json.Marshal(inv)
	if err != nil {
		return fmt.Errorf("finance/redis: encode invoice %s: %w", inv.ID, err)
	}
	invID := inv.ID.String()
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, s.invoicesKey(), invID, doc)
		pipe.SAdd(ctx, s.userInvoicesKey(inv.UserID, inv.ProviderID), invID)
		return nil
	})
	return err
}

func (s *Store) GetInvoice(ctx context.Context, invID id.InvoiceID) (*invoice.Invoice, error) {
	doc, err := s.client.HGet(ctx, s.invoicesKey(), invID.String()).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, finance.ErrInvoiceNotFound
		}
		return nil, err
	}
	return decodeInvoice(doc)
}

func (s *Store) ListInvoices(ctx context.Context, userID, providerID string, opts invoice.ListOpts) ([]*invoice.Invoice, error) {
	ids, err := s.client.SMembers(ctx, s.userInvoicesKey(userID, providerID)).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}
	// TypeIDs sort by creation time.
	sort.Sort(sort.Reverse(sort.StringSlice(ids)))

	docs, err := s.client.HMGet(ctx, s.invoicesKey(), ids...).Result()
	if err != nil {
		return nil, err
	}

	var out []*invoice.Invoice
	for _, raw := range docs {
		doc, ok := raw.(string)
		if !ok {
			continue
		}
		inv, err := decodeInvoice([]byte(doc))
		if err != nil {
			return nil, err
		}
		if opts.State != "" && inv.State != opts.State {
			continue
		}
		out = append(out, inv)
	}

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

func decodeInvoice(doc []byte) (*invoice.Invoice, error) {
	var inv invoice.Invoice
	if err := json.Unmarshal(doc, &inv); err != nil {
		return nil, fmt.Errorf("finance/redis: decode invoice: %w", err)
	}
	return &inv, nil
}
