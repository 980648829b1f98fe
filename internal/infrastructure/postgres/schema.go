package postgres

import (
	"context"
	"fmt"
)

// ChangeChannel is the NOTIFY channel the transactions table publishes on.
const ChangeChannel = "my_transactions_changed"

var schema = []string{
	`CREATE TABLE IF NOT EXISTS my_transactions (
		id         UUID PRIMARY KEY,
		email      TEXT NOT NULL,
		data       JSONB NOT NULL DEFAULT '{}'::jsonb,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS my_transactions_email_date_idx
		ON my_transactions (email, (data->>'date') DESC NULLS LAST)`,
	`CREATE OR REPLACE FUNCTION notify_my_transactions_changed() RETURNS trigger AS $$
	DECLARE
		rec my_transactions;
	BEGIN
		IF TG_OP = 'DELETE' THEN
			rec := OLD;
		ELSE
			rec := NEW;
		END IF;
		PERFORM pg_notify('` + ChangeChannel + `', json_build_object(
			'op', TG_OP,
			'id', rec.id,
			'email', rec.email
		)::text);
		RETURN NULL;
	END;
	$$ LANGUAGE plpgsql`,
	`DROP TRIGGER IF EXISTS my_transactions_changed ON my_transactions`,
	`CREATE TRIGGER my_transactions_changed
		AFTER INSERT OR UPDATE OR DELETE ON my_transactions
		FOR EACH ROW EXECUTE FUNCTION notify_my_transactions_changed()`,
}

// Migrate creates the transactions table, its owner/date index and the change
// trigger. Every statement is idempotent.
func Migrate(ctx context.Context, db *DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin migration: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range schema {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema (%s): %w", extractSQLVerb(stmt), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migration: %w", err)
	}
	return nil
}
