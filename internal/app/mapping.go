package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"valwatch/internal/alerts"
	"valwatch/internal/config"
	"valwatch/internal/housekeeping"
	"valwatch/internal/notifier"
	"valwatch/internal/observability/debug"
	"valwatch/internal/scanner"
	"valwatch/internal/storage"
	"valwatch/internal/toncenter"
	logx "valwatch/pkg/logx"
)

// validate rejects a config before it is committed. Every mapper runs so a
// hot reload cannot half-apply.
func validate(cfg *config.Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	if strings.TrimSpace(cfg.Telegram.Token) == "" {
		return errors.New("telegram.token is required")
	}
	if _, err := config.ParseDurationField("telegram.poll_timeout", cfg.Telegram.PollTimeout); err != nil {
		return err
	}
	if _, err := mapToncenter(cfg); err != nil {
		return err
	}
	if _, err := mapScanner(cfg); err != nil {
		return err
	}
	if _, err := mapNotifier(cfg); err != nil {
		return err
	}
	if _, err := mapStorage(cfg); err != nil {
		return err
	}
	if _, err := mapHousekeeping(cfg); err != nil {
		return err
	}
	return nil
}

func mapLogging(cfg *config.Config) logx.Config {
	l := cfg.Logging
	return logx.Config{
		Level:   l.Level,
		Console: l.Console,
		File:    logx.FileConfig{Enabled: l.File.Enabled, Path: l.File.Path},
		Telegram: logx.TelegramConfig{
			Enabled:    l.Telegram.Enabled,
			ChatID:     l.Telegram.ChatID,
			ThreadID:   l.Telegram.ThreadID,
			MinLevel:   l.Telegram.MinLevel,
			RatePerSec: l.Telegram.RatePerSec,
		},
	}
}

func mapToncenter(cfg *config.Config) (toncenter.Config, error) {
	t := cfg.Toncenter
	if t.Attempts < 0 {
		return toncenter.Config{}, errors.New("toncenter.attempts must be >= 0")
	}
	if t.RatePerSec < 0 {
		return toncenter.Config{}, errors.New("toncenter.rate_per_sec must be >= 0")
	}
	timeout, err := config.ParseDurationField("toncenter.timeout", t.Timeout)
	if err != nil {
		return toncenter.Config{}, err
	}
	retry, err := config.ParseDurationField("toncenter.retry_delay", t.RetryDelay)
	if err != nil {
		return toncenter.Config{}, err
	}
	return toncenter.Config{
		APIKey:       strings.TrimSpace(t.APIKey),
		ElectionsURL: strings.TrimSpace(t.ElectionsURL),
		TelemetryURL: strings.TrimSpace(t.TelemetryURL),
		APIURL:       strings.TrimSpace(t.APIURL),
		Timeout:      timeout,
		Attempts:     t.Attempts,
		RetryDelay:   retry,
		RatePerSec:   t.RatePerSec,
	}, nil
}

func mapScanner(cfg *config.Config) (scanner.Config, error) {
	s := cfg.Scanner
	interval, err := config.ParseDurationField("scanner.interval", s.Interval)
	if err != nil {
		return scanner.Config{}, err
	}
	backoff, err := config.ParseDurationField("scanner.error_backoff", s.ErrorBackoff)
	if err != nil {
		return scanner.Config{}, err
	}
	grace, err := config.ParseDurationField("scanner.complaints_grace", s.ComplaintsGrace)
	if err != nil {
		return scanner.Config{}, err
	}
	if s.NodeConcurrency < 0 {
		return scanner.Config{}, errors.New("scanner.node_concurrency must be >= 0")
	}
	th, err := mapThresholds(cfg.Thresholds)
	if err != nil {
		return scanner.Config{}, err
	}
	return scanner.Config{
		Interval:        interval,
		ErrorBackoff:    backoff,
		NodeConcurrency: s.NodeConcurrency,
		ComplaintsGrace: grace,
		Thresholds:      th,
	}, nil
}

// mapThresholds overlays configured bands on the defaults. Every metric is
// "higher is worse", so a band needs Upper >= Lower.
func mapThresholds(tc config.ThresholdsConfig) (alerts.Thresholds, error) {
	th := alerts.DefaultThresholds()
	for _, o := range []struct {
		name string
		in   *config.ThresholdPair
		out  *alerts.Band
	}{
		{"thresholds.sync", tc.Sync, &th.Sync},
		{"thresholds.cpu", tc.CPU, &th.CPU},
		{"thresholds.ram", tc.RAM, &th.RAM},
		{"thresholds.network", tc.Network, &th.Network},
		{"thresholds.disk", tc.Disk, &th.Disk},
	} {
		if o.in == nil {
			continue
		}
		if o.in.Upper < o.in.Lower {
			return alerts.Thresholds{}, fmt.Errorf("%s: upper (%v) must be >= lower (%v)", o.name, o.in.Upper, o.in.Lower)
		}
		*o.out = alerts.Band{Upper: o.in.Upper, Lower: o.in.Lower}
	}
	return th, nil
}

func mapNotifier(cfg *config.Config) (notifier.Config, error) {
	d := cfg.Delivery
	if d.RatePerSec < 0 {
		return notifier.Config{}, errors.New("delivery.rate_per_sec must be >= 0")
	}
	timeout, err := config.ParseDurationField("delivery.timeout", d.Timeout)
	if err != nil {
		return notifier.Config{}, err
	}
	return notifier.Config{RatePerSec: d.RatePerSec, Timeout: timeout}, nil
}

func mapStorage(cfg *config.Config) (storage.Config, error) {
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	path := strings.TrimSpace(sc.Path)
	switch driver {
	case "", "sqlite", "sqlite3":
		if path == "" {
			path = "./data/valwatch.db"
		}
	case "memory":
	default:
		return storage.Config{}, fmt.Errorf("unknown storage.driver: %s", sc.Driver)
	}
	busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, 5*time.Second)
	if err != nil {
		return storage.Config{}, err
	}
	return storage.Config{Driver: driver, Path: path, BusyTimeout: busy}, nil
}

func mapHousekeeping(cfg *config.Config) (housekeeping.Config, error) {
	h := cfg.Housekeeping
	if h.Enabled && strings.TrimSpace(h.Schedule) != "" {
		if _, err := housekeeping.ParseSchedule(h.Schedule); err != nil {
			return housekeeping.Config{}, fmt.Errorf("housekeeping.schedule: %w", err)
		}
	}
	return housekeeping.Config{Enabled: h.Enabled, Schedule: h.Schedule}, nil
}

func mapDebug(cfg *config.Config) debug.Config {
	d := cfg.Debug
	return debug.Config{
		Enabled:       d.Enabled,
		Addr:          strings.TrimSpace(d.Addr),
		Token:         strings.TrimSpace(d.Token),
		AllowInsecure: d.AllowInsecure,
	}
}
