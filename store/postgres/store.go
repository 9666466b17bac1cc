// Package postgres implements store.Store on PostgreSQL through a pgx
// connection pool.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xraph/finance"
	"github.com/xraph/finance/id"
	"github.com/xraph/finance/invoice"
	"github.com/xraph/finance/plan"
	financestore "github.com/xraph/finance/store"
	"github.com/xraph/finance/user"
)

// compile-time interface check
var _ financestore.Store = (*Store)(nil)

// Store implements store.Store using PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// New creates a store on an existing pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Open parses url, creates a pool and verifies connectivity.
func Open(ctx context.Context, url string, maxConns int) (*Store, error) {
	if url == "" {
		return nil, fmt.Errorf("%w: postgres url is required", finance.ErrConfiguration)
	}
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("%w: parse postgres url: %w", finance.ErrConfiguration, err)
	}
	if maxConns > 0 {
		cfg.MaxConns = int32(maxConns) //nolint:gosec // bounded by configuration
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("finance/postgres: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%w: %w", finance.ErrStoreUnavailable, err)
	}
	return New(pool), nil
}

// Pool returns the underlying pool for direct access.
func (s *Store) Pool() *pgxpool.Pool { return s.pool }

// Migrate applies every migration not yet recorded in finance_migrations.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS finance_migrations (
    version    TEXT PRIMARY KEY,
    name       TEXT NOT NULL,
    applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`)
	if err != nil {
		return fmt.Errorf("finance/postgres: create migrations table: %w", err)
	}

	for _, m := range Migrations {
		if err := s.apply(ctx, m); err != nil {
			return fmt.Errorf("finance/postgres: migration %s failed: %w", m.Name, err)
		}
	}
	return nil
}

func (s *Store) apply(ctx context.Context, m migration) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	var applied bool
	err = tx.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM finance_migrations WHERE version = $1)`,
		m.Version,
	).Scan(&applied)
	if err != nil {
		return err
	}
	if applied {
		return nil
	}

	if _, err := tx.Exec(ctx, m.Up); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO finance_migrations (version, name) VALUES ($1, $2)`,
		m.Version, m.Name,
	); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %w", finance.ErrStoreUnavailable, err)
	}
	return nil
}

// Close closes the pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// ==================== User Store ====================

func (s *Store) SaveUser(ctx context.Context, u *user.User) error {
	m, err := toUserModel(u)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO finance_users (user_id, provider_id, plan, state, document, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id, provider_id) DO UPDATE SET
			plan = EXCLUDED.plan,
			state = EXCLUDED.state,
			document = EXCLUDED.document,
			updated_at = EXCLUDED.updated_at
	`
	_, err = s.pool.Exec(ctx, query,
		m.UserID, m.ProviderID, m.Plan, m.State, m.Document, m.CreatedAt, m.UpdatedAt,
	)
	return err
}

func (s *Store) RemoveUser(ctx context.Context, key user.Key) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	tag, err := tx.Exec(ctx,
		`DELETE FROM finance_users WHERE user_id = $1 AND provider_id = $2`,
		key.UserID, key.ProviderID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return finance.ErrUserNotFound
	}
	if _, err := tx.Exec(ctx,
		`DELETE FROM finance_invoices WHERE user_id = $1 AND provider_id = $2`,
		key.UserID, key.ProviderID,
	); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *Store) GetAllUsers(ctx context.Context) ([]*user.User, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT user_id, provider_id, plan, state, document, created_at, updated_at
		FROM finance_users
		ORDER BY user_id, provider_id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*user.User
	for rows.Next() {
		var m userModel
		if err := rows.Scan(&m.UserID, &m.ProviderID, &m.Plan, &m.State, &m.Document, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, err
		}
		u, err := fromUserModel(&m)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// ==================== Plan Store ====================

func (s *Store) SavePlan(ctx context.Context, p *plan.Plan) error {
	m, err := toPlanModel(p)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO finance_plans (name, kind, options, running, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (name) DO UPDATE SET
			kind = EXCLUDED.kind,
			options = EXCLUDED.options,
			running = EXCLUDED.running,
			updated_at = EXCLUDED.updated_at
	`
	_, err = s.pool.Exec(ctx, query, m.Name, m.Kind, m.Options, m.Running, m.CreatedAt, m.UpdatedAt)
	return err
}

func (s *Store) RemovePlan(ctx context.Context, name string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM finance_plans WHERE name = $1`, name)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return finance.ErrPlanNotFound
	}
	return nil
}

func (s *Store) GetAllPlans(ctx context.Context) ([]*plan.Plan, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT name, kind, options, running, created_at, updated_at
		FROM finance_plans
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*plan.Plan
	for rows.Next() {
		var m planModel
		if err := rows.Scan(&m.Name, &m.Kind, &m.Options, &m.Running, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, err
		}
		p, err := fromPlanModel(&m)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ==================== Invoice Store ====================

const invoiceColumns = `id, user_id, provider_id, plan, state, total::text, period_start, period_end,
	due_date, paid_at, line_items, created_at, updated_at`

func (s *Store) SaveInvoice(ctx context.Context, inv *invoice.Invoice) error {
	m, err := toInvoiceModel(inv)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO finance_invoices (id, user_id, provider_id, plan, state, total, period_start, period_end,
			due_date, paid_at, line_items, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6::numeric, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO UPDATE SET
			state = EXCLUDED.state,
			total = EXCLUDED.total,
			period_end = EXCLUDED.period_end,
			due_date = EXCLUDED.due_date,
			paid_at = EXCLUDED.paid_at,
			line_items = EXCLUDED.line_items,
			updated_at = EXCLUDED.updated_at
	`
	_, err = s.pool.Exec(ctx, query,
		m.ID, m.UserID, m.ProviderID, m.Plan, m.State, m.Total, m.PeriodStart, m.PeriodEnd,
		m.DueDate, m.PaidAt, m.LineItems, m.CreatedAt, m.UpdatedAt,
	)
	return err
}

func (s *Store) GetInvoice(ctx context.Context, invID id.InvoiceID) (*invoice.Invoice, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+invoiceColumns+` FROM finance_invoices WHERE id = $1`,
		invID.String(),
	)
	m, err := scanInvoice(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, finance.ErrInvoiceNotFound
		}
		return nil, err
	}
	return fromInvoiceModel(m)
}

func (s *Store) ListInvoices(ctx context.Context, userID, providerID string, opts invoice.ListOpts) ([]*invoice.Invoice, error) {
	var q strings.Builder
	q.WriteString(`SELECT ` + invoiceColumns + ` FROM finance_invoices WHERE user_id = $1 AND provider_id = $2`)
	args := []any{userID, providerID}

	if opts.State != "" {
		args = append(args, string(opts.State))
		fmt.Fprintf(&q, " AND state = $%d", len(args))
	}
	q.WriteString(" ORDER BY id DESC")
	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		fmt.Fprintf(&q, " LIMIT $%d", len(args))
	}
	if opts.Offset > 0 {
		args = append(args, opts.Offset)
		fmt.Fprintf(&q, " OFFSET $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, q.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*invoice.Invoice
	for rows.Next() {
		m, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		inv, err := fromInvoiceModel(m)
		if err != nil {
			return nil, err
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}

func scanInvoice(row pgx.Row) (*invoiceModel, error) {
	var m invoiceModel
	err := row.Scan(
		&m.ID, &m.UserID, &m.ProviderID, &m.Plan, &m.State, &m.Total,
		&m.PeriodStart, &m.PeriodEnd, &m.DueDate, &m.PaidAt, &m.LineItems,
		&m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &m, nil
}
