// Package mongo implements store.Store on MongoDB.
package mongo

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/finance"
	"github.com/xraph/finance/id"
	"github.com/xraph/finance/invoice"
	"github.com/xraph/finance/plan"
	financestore "github.com/xraph/finance/store"
	"github.com/xraph/finance/user"
)

// Collection name constants.
const (
	colPlans    = "finance_plans"
	colUsers    = "finance_users"
	colInvoices = "finance_invoices"
)

// compile-time interface check
var _ financestore.Store = (*Store)(nil)

// Store implements store.Store using MongoDB.
type Store struct {
	client *mongo.Client
	db     *mongo.Database
}

// New creates a store on database of an existing client.
func New(client *mongo.Client, database string) *Store {
	return &Store{
		client: client,
		db:     client.Database(database),
	}
}

// Open connects to uri and verifies connectivity.
func Open(ctx context.Context, uri, database string) (*Store, error) {
	if uri == "" || database == "" {
		return nil, fmt.Errorf("%w: mongo uri and database are required", finance.ErrConfiguration)
	}
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("finance/mongo: connect: %w", err)
	}
	s := New(client, database)
	if err := s.Ping(ctx); err != nil {
		_ = client.Disconnect(ctx) //nolint:errcheck // already failing
		return nil, err
	}
	return s, nil
}

// Database returns the underlying database for direct access.
func (s *Store) Database() *mongo.Database { return s.db }

// Migrate creates indexes for all finance collections.
func (s *Store) Migrate(ctx context.Context) error {
	for col, models := range migrationIndexes() {
		if len(models) == 0 {
			continue
		}
		if _, err := s.db.Collection(col).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("finance/mongo: migrate %s indexes: %w", col, err)
		}
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx, nil); err != nil {
		return fmt.Errorf("%w: %w", finance.ErrStoreUnavailable, err)
	}
	return nil
}

// Close disconnects the client.
func (s *Store) Close() error {
	return s.client.Disconnect(context.Background())
}

// ==================== User Store ====================

func (s *Store) SaveUser(ctx context.Context, u *user.User) error {
	m, err := toUserModel(u)
	if err != nil {
		return err
	}
	_, err = s.db.Collection(colUsers).ReplaceOne(ctx,
		bson.M{"_id": m.Key}, m,
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("finance/mongo: save user: %w", err)
	}
	return nil
}

func (s *Store) RemoveUser(ctx context.Context, key user.Key) error {
	res, err := s.db.Collection(colUsers).DeleteOne(ctx,
		bson.M{"_id": userKeyModel{UserID: key.UserID, ProviderID: key.ProviderID}})
	if err != nil {
		return fmt.Errorf("finance/mongo: remove user: %w", err)
	}
	if res.DeletedCount == 0 {
		return finance.ErrUserNotFound
	}
	if _, err := s.db.Collection(colInvoices).DeleteMany(ctx,
		bson.M{"user_id": key.UserID, "provider_id": key.ProviderID}); err != nil {
		return fmt.Errorf("finance/mongo: remove invoices of %s: %w", key, err)
	}
	return nil
}

func (s *Store) GetAllUsers(ctx context.Context) ([]*user.User, error) {
	cur, err := s.db.Collection(colUsers).Find(ctx, bson.M{},
		options.Find().SetSort(bson.D{{Key: "_id.user_id", Value: 1}, {Key: "_id.provider_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("finance/mongo: list users: %w", err)
	}
	var models []userModel
	if err := cur.All(ctx, &models); err != nil {
		return nil, fmt.Errorf("finance/mongo: list users: %w", err)
	}

	out := make([]*user.User, 0, len(models))
	for i := range models {
		u, err := fromUserModel(&models[i])
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, nil
}

// ==================== Plan Store ====================

func (s *Store) SavePlan(ctx context.Context, p *plan.Plan) error {
	m := toPlanModel(p)
	_, err := s.db.Collection(colPlans).ReplaceOne(ctx,
		bson.M{"_id": m.Name}, m,
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("finance/mongo: save plan: %w", err)
	}
	return nil
}

func (s *Store) RemovePlan(ctx context.Context, name string) error {
	res, err := s.db.Collection(colPlans).DeleteOne(ctx, bson.M{"_id": name})
	if err != nil {
		return fmt.Errorf("finance/mongo: remove plan: %w", err)
	}
	if res.DeletedCount == 0 {
		return finance.ErrPlanNotFound
	}
	return nil
}

func (s *Store) GetAllPlans(ctx context.Context) ([]*plan.Plan, error) {
	cur, err := s.db.Collection(colPlans).Find(ctx, bson.M{},
		options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("finance/mongo: list plans: %w", err)
	}
	var models []planModel
	if err := cur.All(ctx, &models); err != nil {
		return nil, fmt.Errorf("finance/mongo: list plans: %w", err)
	}

	out := make([]*plan.Plan, len(models))
	for i := range models {
		out[i] = fromPlanModel(&models[i])
	}
	return out, nil
}

// ==================== Invoice Store ====================

func (s *Store) SaveInvoice(ctx context.Context, inv *invoice.Invoice) error {
	m, err := toInvoiceModel(inv)
	if err != nil {
		return err
	}
	_, err = s.db.Collection(colInvoices).ReplaceOne(ctx,
		bson.M{"_id": m.ID}, m,
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("finance/mongo: save invoice: %w", err)
	}
	return nil
}

func (s *Store) GetInvoice(ctx context.Context, invID id.InvoiceID) (*invoice.Invoice, error) {
	var m invoiceModel
	err := s.db.Collection(colInvoices).FindOne(ctx, bson.M{"_id": invID.String()}).Decode(&m)
	if err != nil {
		if isNoDocuments(err) {
			return nil, finance.ErrInvoiceNotFound
		}
		return nil, fmt.Errorf("finance/mongo: get invoice: %w", err)
	}
	return fromInvoiceModel(&m)
}

func (s *Store) ListInvoices(ctx context.Context, userID, providerID string, opts invoice.ListOpts) ([]*invoice.Invoice, error) {
	filter := bson.M{"user_id": userID, "provider_id": providerID}
	if opts.State != "" {
		filter["state"] = string(opts.State)
	}

	// TypeIDs sort by creation time, so _id descending is newest first.
	findOpts := options.Find().SetSort(bson.D{{Key: "_id", Value: -1}})
	if opts.Limit > 0 {
		findOpts.SetLimit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		findOpts.SetSkip(int64(opts.Offset))
	}

	cur, err := s.db.Collection(colInvoices).Find(ctx, filter, findOpts)
	if err != nil {
		return nil, fmt.Errorf("finance/mongo: list invoices: %w", err)
	}
	var models []invoiceModel
	if err := cur.All(ctx, &models); err != nil {
		return nil, fmt.Errorf("finance/mongo: list invoices: %w", err)
	}

	out := make([]*invoice.Invoice, 0, len(models))
	for i := range models {
		inv, err := fromInvoiceModel(&models[i])
		if err != nil {
			return nil, err
		}
		out = append(out, inv)
	}
	return out, nil
}

// ==================== Helpers ====================

// isNoDocuments checks if an error wraps mongo.ErrNoDocuments.
func isNoDocuments(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}

// migrationIndexes returns the index definitions for all finance collections.
func migrationIndexes() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		colUsers: {
			{Keys: bson.D{{Key: "plan", Value: 1}}},
		},
		colInvoices: {
			{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "provider_id", Value: 1}, {Key: "state", Value: 1}}},
			{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "provider_id", Value: 1}, {Key: "_id", Value: -1}}},
		},
	}
}
