package storage

import (
	"context"
	"errors"
	"time"
)

// MaxNodesPerUser caps the number of nodes a single user may watch.
const MaxNodesPerUser = 500

var (
	ErrNotFound     = errors.New("storage: not found")
	ErrNodeExists   = errors.New("storage: node already added")
	ErrTooManyNodes = errors.New("storage: node limit reached")
	ErrClosed       = errors.New("storage: closed")
)

// Config configures storage.
//
// Driver values:
//   - "sqlite": SQLite database file at Path
//   - "memory": in-process maps, lost on restart
//
// An empty Driver selects sqlite.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

type User struct {
	ID       int64
	Username string
	JoinedAt time.Time
}

// Node is an ADNL address watched by one user. ADNL is stored upper-case.
type Node struct {
	ID     int64
	UserID int64
	ADNL   string
	Label  string
}

// UserAlert is a per-user switch for one alert kind.
type UserAlert struct {
	Kind    string
	Enabled bool
}

// TriggeredAlert marks an alert instance as currently active for a user.
type TriggeredAlert struct {
	UserID int64
	Key    string
	At     time.Time
}

// Store is the persistence API used by the alert engine and the chat front-end.
type Store interface {
	// AddUserWithAlerts registers userID with every kind enabled. Existing
	// users keep their preferences; kinds they have never seen are added enabled.
	AddUserWithAlerts(ctx context.Context, userID int64, username string, kinds []string) (User, error)
	GetUser(ctx context.Context, userID int64) (User, error)
	// UsersWithEnabledAlert lists users with kind enabled, ordered by id.
	// With onlyWithNodes, users watching no nodes are skipped.
	UsersWithEnabledAlert(ctx context.Context, kind string, onlyWithNodes bool) ([]User, error)
	UserAlerts(ctx context.Context, userID int64) ([]UserAlert, error)
	SetUserAlertEnabled(ctx context.Context, userID int64, kind string, enabled bool) error

	UserNodes(ctx context.Context, userID int64) ([]Node, error)
	AddNode(ctx context.Context, userID int64, adnl, label string) (Node, error)
	SetNodeLabel(ctx context.Context, userID int64, adnl, label string) error
	RemoveNode(ctx context.Context, userID int64, adnl string) error

	TriggeredAlertExists(ctx context.Context, userID int64, key string) (bool, error)
	SetTriggeredAlert(ctx context.Context, userID int64, key string, at time.Time) error
	ClearTriggeredAlert(ctx context.Context, userID int64, key string) error
	// TriggeredAlerts lists records whose key starts with prefix.
	TriggeredAlerts(ctx context.Context, prefix string) ([]TriggeredAlert, error)

	Close() error
}
