package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// documentTables store one JSON document per row. The config table is
// optional; without it the store serves its local copy.
var documentTables = []string{"events", "profiles", "team", "gallery"}

const registrationsDDL = `
CREATE TABLE IF NOT EXISTS registrations (
	id         TEXT PRIMARY KEY,
	user_id    TEXT NOT NULL,
	event_id   TEXT NOT NULL REFERENCES events (id) ON DELETE CASCADE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	CONSTRAINT registrations_user_event_key UNIQUE (user_id, event_id)
)`

const authUsersDDL = `
CREATE TABLE IF NOT EXISTS auth_users (
	id            TEXT PRIMARY KEY,
	email         TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	full_name     TEXT NOT NULL DEFAULT '',
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
)`

const eventsSlotsCheck = `
DO $$
BEGIN
	IF NOT EXISTS (SELECT 1 FROM pg_constraint WHERE conname = 'events_slots_check') THEN
		ALTER TABLE events ADD CONSTRAINT events_slots_check
			CHECK (doc->'slots' IS NULL OR jsonb_typeof(doc->'slots') <> 'number' OR (doc->>'slots')::numeric >= 0);
	END IF;
END $$`

func documentDDL(table string) string {
	name := pgx.Identifier{table}.Sanitize()
	return fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	id         TEXT PRIMARY KEY,
	doc        JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`, name)
}

// Statements returns the schema statements in execution order. withConfig
// adds the optional config table.
func Statements(withConfig bool) []string {
	tables := documentTables
	if withConfig {
		tables = append(append([]string(nil), documentTables...), "config")
	}
	stmts := make([]string, 0, len(tables)+3)
	for _, t := range tables {
		stmts = append(stmts, documentDDL(t))
	}
	return append(stmts, eventsSlotsCheck, registrationsDDL, authUsersDDL)
}

// Migrate creates the schema if it does not exist yet.
func Migrate(ctx context.Context, pool *pgxpool.Pool, withConfig bool, log *zap.Logger) error {
	if log == nil {
		log = zap.NewNop()
	}
	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin migration: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for i, stmt := range Statements(withConfig) {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migration step %d: %w", i+1, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit migration: %w", err)
	}
	log.Info("database schema ready", zap.Bool("config_table", withConfig))
	return nil
}
