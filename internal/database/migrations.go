package database

import (
	"database/sql"
	"fmt"
	"log/slog"
)

// migrations is the ordered, idempotent schema bootstrap. Every statement
// must be safe to re-run on startup.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		email TEXT NOT NULL UNIQUE,
		phone TEXT NOT NULL DEFAULT '',
		upi_id TEXT NOT NULL DEFAULT '',
		password TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS events (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		location TEXT NOT NULL DEFAULT '',
		start_date DATE NOT NULL,
		capacity INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS registrations (
		id TEXT PRIMARY KEY,
		event_id TEXT NOT NULL REFERENCES events(id) ON DELETE CASCADE,
		user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		status TEXT NOT NULL DEFAULT 'confirmed',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (event_id, user_id)
	)`,
	`CREATE TABLE IF NOT EXISTS expense_categories (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL UNIQUE,
		icon TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS expenses (
		id TEXT PRIMARY KEY,
		event_id TEXT NOT NULL REFERENCES events(id) ON DELETE CASCADE,
		creator_id TEXT NOT NULL REFERENCES users(id),
		category_id TEXT REFERENCES expense_categories(id),
		amount NUMERIC(12,2) NOT NULL CHECK (amount >= 0),
		description TEXT NOT NULL,
		date DATE NOT NULL,
		receipt_url TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS expense_shares (
		id TEXT PRIMARY KEY,
		expense_id TEXT NOT NULL REFERENCES expenses(id) ON DELETE CASCADE,
		user_id TEXT NOT NULL REFERENCES users(id),
		amount NUMERIC(12,2) NOT NULL CHECK (amount >= 0),
		status TEXT NOT NULL DEFAULT 'pending',
		payment_method TEXT,
		payment_date TIMESTAMPTZ,
		UNIQUE (expense_id, user_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_expenses_event ON expenses(event_id)`,
	`CREATE INDEX IF NOT EXISTS idx_shares_expense ON expense_shares(expense_id)`,
	`CREATE INDEX IF NOT EXISTS idx_shares_user ON expense_shares(user_id)`,
	`CREATE INDEX IF NOT EXISTS idx_registrations_event ON registrations(event_id)`,
}

// seedCategories inserts the default expense categories. Names are stable
// reference data shared with the mobile client.
var seedCategories = []struct {
	name string
	icon string
}{
	{"Food", "utensils"},
	{"Transport", "bus"},
	{"Stay", "tent"},
	{"Gear", "backpack"},
	{"Permits", "ticket"},
}

// Migrate bootstraps the schema and seeds reference data.
func Migrate(db *sql.DB) error {
	for i, stmt := range migrations {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migration %d failed: %w", i, err)
		}
	}

	for _, c := range seedCategories {
		_, err := db.Exec(
			`INSERT INTO expense_categories (id, name, icon) VALUES ($1, $2, $3) ON CONFLICT (name) DO NOTHING`,
			"cat-"+c.name, c.name, c.icon,
		)
		if err != nil {
			return fmt.Errorf("seeding category %s failed: %w", c.name, err)
		}
	}

	slog.Info("schema bootstrap complete", "statements", len(migrations))
	return nil
}
