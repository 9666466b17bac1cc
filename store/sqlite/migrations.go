package sqlite

// migration is one forward-only schema step.
type migration struct {
	Version string
	Name    string
	Up      string
}

// Migrations is the ordered schema history of the finance store. Timestamps
// are RFC 3339 text with nanoseconds; amounts are decimal text.
var Migrations = []migration{
	{
		Version: "20250101000001",
		Name:    "create_finance_plans",
		Up: `
CREATE TABLE IF NOT EXISTS finance_plans (
    name        TEXT PRIMARY KEY,
    kind        TEXT NOT NULL,
    options     TEXT NOT NULL DEFAULT '{}',
    running     INTEGER NOT NULL DEFAULT 0,
    created_at  TEXT NOT NULL,
    updated_at  TEXT NOT NULL
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
    document    TEXT NOT NULL,
    created_at  TEXT NOT NULL,
    updated_at  TEXT NOT NULL,
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
    total        TEXT NOT NULL DEFAULT '0',
    period_start TEXT NOT NULL,
    period_end   TEXT NOT NULL,
    due_date     TEXT,
    paid_at      TEXT,
    line_items   TEXT NOT NULL DEFAULT '[]',
    created_at   TEXT NOT NULL,
    updated_at   TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_finance_invoices_user ON finance_invoices (user_id, provider_id, state);
`,
	},
}
