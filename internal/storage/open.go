package storage

import (
	"fmt"
	"strings"

	logx "valwatch/pkg/logx"
)

// Open initializes the configured store.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	switch driver {
	case "", "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	case "memory":
		log.Warn("memory storage selected; state is lost on restart")
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown storage driver: %s", driver)
	}
}

// normalizeADNL trims and upper-cases an ADNL address.
func normalizeADNL(adnl string) string {
	return strings.ToUpper(strings.TrimSpace(adnl))
}
