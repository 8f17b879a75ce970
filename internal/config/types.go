package config

// Config is the on-disk configuration. Durations are Go duration strings
// ("30s", "1m"); empty values fall back to the defaults applied by the app.
type Config struct {
	Telegram     TelegramConfig     `json:"telegram"`
	Logging      LoggingConfig      `json:"logging"`
	Toncenter    ToncenterConfig    `json:"toncenter"`
	Scanner      ScannerConfig      `json:"scanner"`
	Thresholds   ThresholdsConfig   `json:"thresholds,omitempty"`
	Delivery     DeliveryConfig     `json:"delivery"`
	Storage      StorageConfig      `json:"storage"`
	Housekeeping HousekeepingConfig `json:"housekeeping"`
	Debug        DebugConfig        `json:"debug,omitempty"`
}

type TelegramConfig struct {
	Token       string `json:"token"`
	PollTimeout string `json:"poll_timeout"`
}

type LoggingConfig struct {
	Level    string          `json:"level"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// LoggingTelegram forwards log lines at or above MinLevel to an operator chat.
type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	ChatID     int64  `json:"chat_id"`
	ThreadID   int    `json:"thread_id"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// ToncenterConfig points the upstream client at the public APIs.
//
// Example:
//
//	"toncenter": { "api_key": "...", "timeout": "30s", "attempts": 3, "retry_delay": "1s" }
type ToncenterConfig struct {
	APIKey       string  `json:"api_key"`
	ElectionsURL string  `json:"elections_url,omitempty"` // default: https://elections.toncenter.com
	TelemetryURL string  `json:"telemetry_url,omitempty"` // default: https://telemetry.toncenter.com
	APIURL       string  `json:"api_url,omitempty"`       // default: https://toncenter.com
	Timeout      string  `json:"timeout,omitempty"`
	Attempts     int     `json:"attempts,omitempty"`
	RetryDelay   string  `json:"retry_delay,omitempty"`
	RatePerSec   float64 `json:"rate_per_sec,omitempty"`
}

type ScannerConfig struct {
	Interval        string `json:"interval"`
	ErrorBackoff    string `json:"error_backoff"`
	NodeConcurrency int    `json:"node_concurrency,omitempty"`
	// ComplaintsGrace delays the complaints digest after a cycle ends.
	ComplaintsGrace string `json:"complaints_grace,omitempty"`
}

// ThresholdPair is an upper/lower hysteresis band.
type ThresholdPair struct {
	Upper float64 `json:"upper"`
	Lower float64 `json:"lower"`
}

// ThresholdsConfig overrides per-metric telemetry thresholds. Omitted metrics keep defaults.
type ThresholdsConfig struct {
	Sync    *ThresholdPair `json:"sync,omitempty"`
	CPU     *ThresholdPair `json:"cpu,omitempty"`
	RAM     *ThresholdPair `json:"ram,omitempty"`
	Network *ThresholdPair `json:"network,omitempty"`
	Disk    *ThresholdPair `json:"disk,omitempty"`
}

type DeliveryConfig struct {
	RatePerSec int    `json:"rate_per_sec"`
	Timeout    string `json:"timeout"`
}

// StorageConfig selects the persistence backend.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./data/valwatch.db", "busy_timeout": "5s" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

type HousekeepingConfig struct {
	Enabled  bool   `json:"enabled"`
	Schedule string `json:"schedule"`
}

// DebugConfig controls the optional debug HTTP server (/healthz, /metrics, pprof).
// Bind to loopback, or set a token when binding elsewhere.
type DebugConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr,omitempty"` // default: "127.0.0.1:6060"
	Token         string `json:"token,omitempty"`
	AllowInsecure bool   `json:"allow_insecure,omitempty"`
}
