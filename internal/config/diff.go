package config

import (
	"reflect"
	"sort"
	"strings"

	logx "valwatch/pkg/logx"
)

// SummarizeConfigChange lists the sections that differ between two configs
// and returns log fields describing the new values. Secrets (bot token, API
// key, debug token) are reported only as "set" flags.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	var (
		changed []string
		attrs   []logx.Field
	)
	mark := func(section string, fields ...logx.Field) {
		changed = append(changed, section)
		attrs = append(attrs, fields...)
	}

	if oldCfg.Telegram.Token != newCfg.Telegram.Token ||
		strings.TrimSpace(oldCfg.Telegram.PollTimeout) != strings.TrimSpace(newCfg.Telegram.PollTimeout) {
		mark("telegram",
			logx.String("telegram.poll_timeout", strings.TrimSpace(newCfg.Telegram.PollTimeout)),
			logx.Bool("telegram.token_changed", oldCfg.Telegram.Token != newCfg.Telegram.Token),
		)
	}

	if oldCfg.Logging != newCfg.Logging {
		mark("logging",
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
			logx.Bool("logging.telegram_enabled", newCfg.Logging.Telegram.Enabled),
		)
	}

	ot, nt := oldCfg.Toncenter, newCfg.Toncenter
	ot.APIKey, nt.APIKey = "", ""
	if ot != nt || oldCfg.Toncenter.APIKey != newCfg.Toncenter.APIKey {
		mark("toncenter",
			logx.String("toncenter.timeout", nt.Timeout),
			logx.Int("toncenter.attempts", nt.Attempts),
			logx.Float64("toncenter.rate_per_sec", nt.RatePerSec),
			logx.Bool("toncenter.api_key_set", newCfg.Toncenter.APIKey != ""),
		)
	}

	if oldCfg.Scanner != newCfg.Scanner {
		mark("scanner",
			logx.String("scanner.interval", newCfg.Scanner.Interval),
			logx.String("scanner.error_backoff", newCfg.Scanner.ErrorBackoff),
			logx.Int("scanner.node_concurrency", newCfg.Scanner.NodeConcurrency),
		)
	}

	if !reflect.DeepEqual(oldCfg.Thresholds, newCfg.Thresholds) {
		mark("thresholds")
	}

	if oldCfg.Delivery != newCfg.Delivery {
		mark("delivery",
			logx.Int("delivery.rate_per_sec", newCfg.Delivery.RatePerSec),
			logx.String("delivery.timeout", newCfg.Delivery.Timeout),
		)
	}

	if oldCfg.Storage != newCfg.Storage {
		mark("storage",
			logx.String("storage.driver", newCfg.Storage.Driver),
			logx.Bool("storage.path_set", strings.TrimSpace(newCfg.Storage.Path) != ""),
		)
	}

	if oldCfg.Housekeeping != newCfg.Housekeeping {
		mark("housekeeping",
			logx.Bool("housekeeping.enabled", newCfg.Housekeeping.Enabled),
			logx.String("housekeeping.schedule", newCfg.Housekeeping.Schedule),
		)
	}

	if oldCfg.Debug != newCfg.Debug {
		mark("debug",
			logx.Bool("debug.enabled", newCfg.Debug.Enabled),
			logx.String("debug.addr", newCfg.Debug.Addr),
			logx.Bool("debug.token_set", newCfg.Debug.Token != ""),
		)
	}

	sort.Strings(changed)
	return changed, attrs
}
