// Package sqlite implements store.Store on an embedded SQLite database
// through the pure Go modernc driver.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/xraph/finance"
	"github.com/xraph/finance/id"
	"github.com/xraph/finance/invoice"
	"github.com/xraph/finance/plan"
	financestore "github.com/xraph/finance/store"
	"github.com/xraph/finance/types"
	"github.com/xraph/finance/user"
)

// compile-time interface check
var _ financestore.Store = (*Store)(nil)

// Store implements store.Store using SQLite.
type Store struct {
	db *sql.DB
}

// New wraps an open database handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Open opens (creating if needed) the database file at path.
func Open(ctx context.Context, path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: sqlite path is required", finance.ErrConfiguration)
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			return nil, fmt.Errorf("finance/sqlite: create database directory: %w", err)
		}
	}

	dsn := path
	if !strings.Contains(dsn, "?") {
		dsn += "?"
	} else {
		dsn += "&"
	}
	dsn += "_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("finance/sqlite: open database: %w", err)
	}

	// Single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %w", finance.ErrStoreUnavailable, err)
	}
	return New(db), nil
}

// DB returns the underlying database handle.
func (s *Store) DB() *sql.DB { return s.db }

// Migrate applies every migration not yet recorded in finance_migrations.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS finance_migrations (
    version    TEXT PRIMARY KEY,
    name       TEXT NOT NULL,
    applied_at TEXT NOT NULL
)`)
	if err != nil {
		return fmt.Errorf("finance/sqlite: create migrations table: %w", err)
	}
	for _, m := range Migrations {
		if err := s.apply(ctx, m); err != nil {
			return fmt.Errorf("finance/sqlite: migration %s failed: %w", m.Name, err)
		}
	}
	return nil
}

func (s *Store) apply(ctx context.Context, m migration) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	var n int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM finance_migrations WHERE version = ?`, m.Version,
	).Scan(&n); err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	if _, err := tx.ExecContext(ctx, m.Up); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO finance_migrations (version, name, applied_at) VALUES (?, ?, ?)`,
		m.Version, m.Name, formatTime(time.Now()),
	); err != nil {
		return err
	}
	return tx.Commit()
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %w", finance.ErrStoreUnavailable, err)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// ==================== User Store ====================

func (s *Store) SaveUser(ctx context.Context, u *user.User) error {
	doc, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("finance/sqlite: encode user %s: %w", u.Key, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO finance_users (user_id, provider_id, plan, state, document, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, provider_id) DO UPDATE SET
			plan = excluded.plan,
			state = excluded.state,
			document = excluded.document,
			updated_at = excluded.updated_at`,
		u.UserID, u.ProviderID, u.Plan, string(u.State), string(doc),
		formatTime(u.CreatedAt), formatTime(u.UpdatedAt),
	)
	return err
}

func (s *Store) RemoveUser(ctx context.Context, key user.Key) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	res, err := tx.ExecContext(ctx,
		`DELETE FROM finance_users WHERE user_id = ? AND provider_id = ?`,
		key.UserID, key.ProviderID,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 { //nolint:errcheck // sqlite always reports
		return finance.ErrUserNotFound
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM finance_invoices WHERE user_id = ? AND provider_id = ?`,
		key.UserID, key.ProviderID,
	); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) GetAllUsers(ctx context.Context) ([]*user.User, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id, provider_id, document FROM finance_users ORDER BY user_id, provider_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*user.User
	for rows.Next() {
		var userID, providerID, doc string
		if err := rows.Scan(&userID, &providerID, &doc); err != nil {
			return nil, err
		}
		u := user.New(user.Key{UserID: userID, ProviderID: providerID})
		if err := json.Unmarshal([]byte(doc), u); err != nil {
			return nil, fmt.Errorf("finance/sqlite: decode user %s@%s: %w", userID, providerID, err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// ==================== Plan Store ====================

func (s *Store) SavePlan(ctx context.Context, p *plan.Plan) error {
	options, err := json.Marshal(p.Options)
	if err != nil {
		return fmt.Errorf("finance/sqlite: encode plan options: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO finance_plans (name, kind, options, running, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (name) DO UPDATE SET
			kind = excluded.kind,
			options = excluded.options,
			running = excluded.running,
			updated_at = excluded.updated_at`,
		p.Name, p.Kind, string(options), p.Running,
		formatTime(p.CreatedAt), formatTime(p.UpdatedAt),
	)
	return err
}

func (s *Store) RemovePlan(ctx context.Context, name string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM finance_plans WHERE name = ?`, name)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 { //nolint:errcheck // sqlite always reports
		return finance.ErrPlanNotFound
	}
	return nil
}

func (s *Store) GetAllPlans(ctx context.Context) ([]*plan.Plan, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, kind, options, running, created_at, updated_at FROM finance_plans ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*plan.Plan
	for rows.Next() {
		var (
			p                    plan.Plan
			options              string
			createdAt, updatedAt string
		)
		if err := rows.Scan(&p.Name, &p.Kind, &options, &p.Running, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		p.Options = make(map[string]string)
		if err := json.Unmarshal([]byte(options), &p.Options); err != nil {
			return nil, fmt.Errorf("finance/sqlite: decode options of plan %q: %w", p.Name, err)
		}
		p.CreatedAt = parseTime(createdAt)
		p.UpdatedAt = parseTime(updatedAt)
		out = append(out, &p)
	}
	return out, rows.Err()
}

// ==================== Invoice Store ====================

const invoiceColumns = `id, user_id, provider_id, plan, state, total, period_start, period_end,
	due_date, paid_at, line_items, created_at, updated_at`

func (s *Store) SaveInvoice(ctx context.Context, inv *invoice.Invoice) error {
	items, err := json.Marshal(inv.LineItems)
	if err != nil {
		return fmt.Errorf("finance/sqlite: encode invoice %s: %w", inv.ID, err)
	}
	var due, paid sql.NullString
	if !inv.DueDate.IsZero() {
		due = sql.NullString{String: formatTime(inv.DueDate), Valid: true}
	}
	if inv.PaidAt != nil {
		paid = sql.NullString{String: formatTime(*inv.PaidAt), Valid: true}
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO finance_invoices (`+invoiceColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			state = excluded.state,
			total = excluded.total,
			period_end = excluded.period_end,
			due_date = excluded.due_date,
			paid_at = excluded.paid_at,
			line_items = excluded.line_items,
			updated_at = excluded.updated_at`,
		inv.ID.String(), inv.UserID, inv.ProviderID, inv.PlanName, string(inv.State), inv.Total.String(),
		formatTime(inv.PeriodStart), formatTime(inv.PeriodEnd), due, paid, string(items),
		formatTime(inv.CreatedAt), formatTime(inv.UpdatedAt),
	)
	return err
}

func (s *Store) GetInvoice(ctx context.Context, invID id.InvoiceID) (*invoice.Invoice, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+invoiceColumns+` FROM finance_invoices WHERE id = ?`, invID.String())
	inv, err := scanInvoice(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, finance.ErrInvoiceNotFound
		}
		return nil, err
	}
	return inv, nil
}

func (s *Store) ListInvoices(ctx context.Context, userID, providerID string, opts invoice.ListOpts) ([]*invoice.Invoice, error) {
	q := `SELECT ` + invoiceColumns + ` FROM finance_invoices WHERE user_id = ? AND provider_id = ?`
	args := []any{userID, providerID}
	if opts.State != "" {
		q += ` AND state = ?`
		args = append(args, string(opts.State))
	}
	q += ` ORDER BY id DESC`

	// SQLite needs a LIMIT clause for OFFSET; -1 means unbounded.
	limit := -1
	if opts.Limit > 0 {
		limit = opts.Limit
	}
	q += ` LIMIT ? OFFSET ?`
	args = append(args, limit, max(opts.Offset, 0))

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*invoice.Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanInvoice(row scanner) (*invoice.Invoice, error) {
	var (
		rawID, state, total, start, end, items, createdAt, updatedAt string
		due, paid                                                    sql.NullString
		inv                                                          invoice.Invoice
	)
	if err := row.Scan(
		&rawID, &inv.UserID, &inv.ProviderID, &inv.PlanName, &state, &total,
		&start, &end, &due, &paid, &items, &createdAt, &updatedAt,
	); err != nil {
		return nil, err
	}

	invID, err := id.ParseInvoiceID(rawID)
	if err != nil {
		return nil, err
	}
	inv.ID = invID
	if inv.Total, err = types.Parse(total); err != nil {
		return nil, err
	}
	inv.State = invoice.State(state)
	inv.PeriodStart = parseTime(start)
	inv.PeriodEnd = parseTime(end)
	if due.Valid {
		inv.DueDate = parseTime(due.String)
	}
	if paid.Valid {
		t := parseTime(paid.String)
		inv.PaidAt = &t
	}
	if err := json.Unmarshal([]byte(items), &inv.LineItems); err != nil {
		return nil, fmt.Errorf("finance/sqlite: decode line items of %s: %w", rawID, err)
	}
	inv.CreatedAt = parseTime(createdAt)
	inv.UpdatedAt = parseTime(updatedAt)
	return &inv, nil
}

func formatTime(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
