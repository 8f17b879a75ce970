package storage

import (
	"context"
	"database/sql"
	"fmt"
)

// migrations are applied in order; the index+1 is the schema version.
// Append only.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS users (
		user_id INTEGER PRIMARY KEY,
		username TEXT NOT NULL DEFAULT '',
		joined_at INTEGER NOT NULL
	);`,

	`CREATE TABLE IF NOT EXISTS user_alerts (
		user_id INTEGER NOT NULL REFERENCES users(user_id),
		kind TEXT NOT NULL,
		enabled INTEGER NOT NULL DEFAULT 1,
		PRIMARY KEY (user_id, kind)
	);
	CREATE INDEX IF NOT EXISTS idx_user_alerts_kind ON user_alerts(kind, enabled);`,

	`CREATE TABLE IF NOT EXISTS nodes (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL REFERENCES users(user_id),
		adnl TEXT NOT NULL,
		label TEXT NOT NULL DEFAULT '',
		UNIQUE (user_id, adnl)
	);`,

	`CREATE TABLE IF NOT EXISTS triggered_alerts (
		user_id INTEGER NOT NULL,
		alert_key TEXT NOT NULL,
		at INTEGER NOT NULL,
		PRIMARY KEY (user_id, alert_key)
	);
	CREATE INDEX IF NOT EXISTS idx_triggered_alerts_key ON triggered_alerts(alert_key);`,
}

func runMigrations(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)`); err != nil {
		return err
	}

	var current int
	if err := db.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_version`).Scan(&current); err != nil {
		return err
	}

	for i := current; i < len(migrations); i++ {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, migrations[i]); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d: %w", i+1, err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO schema_version (version) VALUES (?)`, i+1); err != nil {
			_ = tx.Rollback()
			return err
		}
		if err := tx.Commit(); err != nil {
			return err
		}
	}
	return nil
}
