package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	logx "valwatch/pkg/logx"

	_ "modernc.org/sqlite"
)

const defaultBusyTimeout = 5 * time.Second

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// One connection serializes writers and keeps the pragmas below in effect.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = defaultBusyTimeout
	}
	_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", busy.Milliseconds()))
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")
	_, _ = db.Exec("PRAGMA foreign_keys = ON")

	if err := runMigrations(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite migrate: %w", err)
	}
	log.Info("sqlite storage opened", logx.String("path", path))
	return &sqliteStore{db: db, log: log}, nil
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) AddUserWithAlerts(ctx context.Context, userID int64, username string, kinds []string) (User, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return User{}, err
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().Unix()
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO users(user_id, username, joined_at) VALUES(?,?,?)
		 ON CONFLICT(user_id) DO NOTHING`,
		userID, username, now,
	); err != nil {
		return User{}, err
	}
	for _, kind := range kinds {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO user_alerts(user_id, kind, enabled) VALUES(?,?,1)
			 ON CONFLICT(user_id, kind) DO NOTHING`,
			userID, kind,
		); err != nil {
			return User{}, err
		}
	}

	var (
		u      User
		joined int64
	)
	if err := tx.QueryRowContext(ctx,
		`SELECT user_id, username, joined_at FROM users WHERE user_id = ?`, userID,
	).Scan(&u.ID, &u.Username, &joined); err != nil {
		return User{}, err
	}
	if err := tx.Commit(); err != nil {
		return User{}, err
	}
	u.JoinedAt = time.Unix(joined, 0)
	return u, nil
}

func (s *sqliteStore) GetUser(ctx context.Context, userID int64) (User, error) {
	var (
		u      User
		joined int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT user_id, username, joined_at FROM users WHERE user_id = ?`, userID,
	).Scan(&u.ID, &u.Username, &joined)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, err
	}
	u.JoinedAt = time.Unix(joined, 0)
	return u, nil
}

func (s *sqliteStore) UsersWithEnabledAlert(ctx context.Context, kind string, onlyWithNodes bool) ([]User, error) {
	q := `SELECT u.user_id, u.username, u.joined_at
		FROM users u
		JOIN user_alerts a ON a.user_id = u.user_id
		WHERE a.kind = ? AND a.enabled = 1`
	if onlyWithNodes {
		q += ` AND EXISTS (SELECT 1 FROM nodes n WHERE n.user_id = u.user_id)`
	}
	q += ` ORDER BY u.user_id`

	rows, err := s.db.QueryContext(ctx, q, kind)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []User
	for rows.Next() {
		var (
			u      User
			joined int64
		)
		if err := rows.Scan(&u.ID, &u.Username, &joined); err != nil {
			return nil, err
		}
		u.JoinedAt = time.Unix(joined, 0)
		out = append(out, u)
	}
	return out, rows.Err()
}

func (s *sqliteStore) UserAlerts(ctx context.Context, userID int64) ([]UserAlert, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT kind, enabled FROM user_alerts WHERE user_id = ? ORDER BY kind`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []UserAlert
	for rows.Next() {
		var (
			a       UserAlert
			enabled int
		)
		if err := rows.Scan(&a.Kind, &enabled); err != nil {
			return nil, err
		}
		a.Enabled = enabled != 0
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *sqliteStore) SetUserAlertEnabled(ctx context.Context, userID int64, kind string, enabled bool) error {
	if _, err := s.GetUser(ctx, userID); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO user_alerts(user_id, kind, enabled) VALUES(?,?,?)
		 ON CONFLICT(user_id, kind) DO UPDATE SET enabled = excluded.enabled`,
		userID, kind, boolInt(enabled),
	)
	return err
}

func (s *sqliteStore) UserNodes(ctx context.Context, userID int64) ([]Node, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, adnl, label FROM nodes WHERE user_id = ? ORDER BY id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Node
	for rows.Next() {
		var n Node
		if err := rows.Scan(&n.ID, &n.UserID, &n.ADNL, &n.Label); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (s *sqliteStore) AddNode(ctx context.Context, userID int64, adnl, label string) (Node, error) {
	adnl = normalizeADNL(adnl)
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Node{}, err
	}
	defer func() { _ = tx.Rollback() }()

	var exists, count int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(adnl = ?), 0) FROM nodes WHERE user_id = ?`, adnl, userID,
	).Scan(&count, &exists); err != nil {
		return Node{}, err
	}
	if exists > 0 {
		return Node{}, ErrNodeExists
	}
	if count >= MaxNodesPerUser {
		return Node{}, ErrTooManyNodes
	}

	res, err := tx.ExecContext(ctx,
		`INSERT INTO nodes(user_id, adnl, label) VALUES(?,?,?)`, userID, adnl, label)
	if err != nil {
		return Node{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Node{}, err
	}
	if err := tx.Commit(); err != nil {
		return Node{}, err
	}
	return Node{ID: id, UserID: userID, ADNL: adnl, Label: label}, nil
}

func (s *sqliteStore) SetNodeLabel(ctx context.Context, userID int64, adnl, label string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE nodes SET label = ? WHERE user_id = ? AND adnl = ?`, label, userID, normalizeADNL(adnl))
	if err != nil {
		return err
	}
	return affectedOrNotFound(res)
}

func (s *sqliteStore) RemoveNode(ctx context.Context, userID int64, adnl string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM nodes WHERE user_id = ? AND adnl = ?`, userID, normalizeADNL(adnl))
	if err != nil {
		return err
	}
	return affectedOrNotFound(res)
}

func (s *sqliteStore) TriggeredAlertExists(ctx context.Context, userID int64, key string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM triggered_alerts WHERE user_id = ? AND alert_key = ?`, userID, key,
	).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *sqliteStore) SetTriggeredAlert(ctx context.Context, userID int64, key string, at time.Time) error {
	if at.IsZero() {
		at = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO triggered_alerts(user_id, alert_key, at) VALUES(?,?,?)
		 ON CONFLICT(user_id, alert_key) DO NOTHING`,
		userID, key, at.Unix(),
	)
	return err
}

func (s *sqliteStore) ClearTriggeredAlert(ctx context.Context, userID int64, key string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM triggered_alerts WHERE user_id = ? AND alert_key = ?`, userID, key)
	return err
}

func (s *sqliteStore) TriggeredAlerts(ctx context.Context, prefix string) ([]TriggeredAlert, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id, alert_key, at FROM triggered_alerts
		 WHERE substr(alert_key, 1, ?) = ?
		 ORDER BY user_id, alert_key`,
		len(prefix), prefix,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TriggeredAlert
	for rows.Next() {
		var (
			t  TriggeredAlert
			at int64
		)
		if err := rows.Scan(&t.UserID, &t.Key, &at); err != nil {
			return nil, err
		}
		t.At = time.Unix(at, 0)
		out = append(out, t)
	}
	return out, rows.Err()
}

func affectedOrNotFound(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
