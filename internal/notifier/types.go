package notifier

import "time"

// Config controls alert delivery.
type Config struct {
	// RatePerSec caps outgoing messages across all users.
	RatePerSec int
	// Timeout bounds a single send.
	Timeout time.Duration
}

type HistoryItem struct {
	At     time.Time
	UserID int64
	Kind   string
	Err    string
}

// DeliveryEvent is the payload of delivery.failed events.
type DeliveryEvent struct {
	UserID int64  `json:"user_id"`
	Kind   string `json:"kind"`
	Reason string `json:"reason"`
	Error  string `json:"error"`
}
