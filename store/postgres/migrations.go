package postgres

// migration is one forward-only schema step. Applied versions are recorded in
// finance_migrations so Migrate can run on every start.
type migration struct {
	Version string
	Name    string
	Up      string
}

// Migrations is the ordered schema history of the finance store.
var Migrations = []migration{
	{
		Version: "20250101000001",
		Name:    "create_finance_plans",
		Up: `
CREATE TABLE IF NOT EXISTS finance_plans (
    name        TEXT PRIMARY KEY,
    kind        TEXT NOT NULL,
    options     JSONB NOT NULL DEFAULT '{}',
    running     BOOLEAN NOT NULL DEFAULT FALSE,
    created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`,
	},
	{
		Version: "20250101000002",
		Name:    "create_finance_users",
		Up: `
CREATE TABLE IF NOT EXISTS finance_users (
    user_id     TEXT NOT NULL,
    provider_id TEXT NOT NULL,
    plan        TEXT NOT NULL DEFAULT '',
    state       TEXT NOT NULL DEFAULT 'DEFAULT',
    document    JSONB NOT NULL,
    created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    PRIMARY KEY (user_id, provider_id)
);

CREATE INDEX IF NOT EXISTS idx_finance_users_plan ON finance_users (plan);
`,
	},
	{
		Version: "20250101000003",
		Name:    "create_finance_invoices",
		Up: `
CREATE TABLE IF NOT EXISTS finance_invoices (
    id           TEXT PRIMARY KEY,
    user_id      TEXT NOT NULL,
    provider_id  TEXT NOT NULL,
    plan         TEXT NOT NULL DEFAULT '',
    state        TEXT NOT NULL DEFAULT 'WAITING',
    total        NUMERIC NOT NULL DEFAULT 0,
    period_start TIMESTAMPTZ NOT NULL,
    period_end   TIMESTAMPTZ NOT NULL,
    due_date     TIMESTAMPTZ,
    paid_at      TIMESTAMPTZ,
    line_items   JSONB NOT NULL DEFAULT '[]',
    created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_finance_invoices_user ON finance_invoices (user_id, provider_id);
CREATE INDEX IF NOT EXISTS idx_finance_invoices_state ON finance_invoices (user_id, provider_id, state);
`,
	},
}
