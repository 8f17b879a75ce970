package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"valwatch/internal/alerts"
	"valwatch/internal/config"
)

func baseConfig() *config.Config {
	return &config.Config{Telegram: config.TelegramConfig{Token: "123:abc"}}
}

func TestValidateRequiresToken(t *testing.T) {
	cfg := baseConfig()
	require.NoError(t, validate(cfg))

	cfg.Telegram.Token = "  "
	assert.ErrorContains(t, validate(cfg), "telegram.token")
	assert.Error(t, validate(nil))
}

func TestValidateRejectsBadSections(t *testing.T) {
	cases := map[string]func(*config.Config){
		"poll timeout":   func(c *config.Config) { c.Telegram.PollTimeout = "soon" },
		"attempts":       func(c *config.Config) { c.Toncenter.Attempts = -1 },
		"scan interval":  func(c *config.Config) { c.Scanner.Interval = "-1s" },
		"concurrency":    func(c *config.Config) { c.Scanner.NodeConcurrency = -2 },
		"delivery rate":  func(c *config.Config) { c.Delivery.RatePerSec = -1 },
		"storage driver": func(c *config.Config) { c.Storage.Driver = "postgres" },
		"schedule": func(c *config.Config) {
			c.Housekeeping = config.HousekeepingConfig{Enabled: true, Schedule: "whenever"}
		},
		"inverted band": func(c *config.Config) {
			c.Thresholds.Disk = &config.ThresholdPair{Upper: 70, Lower: 80}
		},
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := baseConfig()
			mutate(cfg)
			assert.Error(t, validate(cfg))
		})
	}
}

func TestMapThresholdsOverlaysDefaults(t *testing.T) {
	th, err := mapThresholds(config.ThresholdsConfig{
		CPU: &config.ThresholdPair{Upper: 95, Lower: 90},
	})
	require.NoError(t, err)

	want := alerts.DefaultThresholds()
	want.CPU = alerts.Band{Upper: 95, Lower: 90}
	assert.Equal(t, want, th)

	// A zero-width band disables hysteresis but is still valid.
	_, err = mapThresholds(config.ThresholdsConfig{Sync: &config.ThresholdPair{Upper: 30, Lower: 30}})
	assert.NoError(t, err)
}

func TestMapStorageDefaults(t *testing.T) {
	sc, err := mapStorage(baseConfig())
	require.NoError(t, err)
	assert.Equal(t, "", sc.Driver)
	assert.Equal(t, "./data/valwatch.db", sc.Path)
	assert.Equal(t, 5*time.Second, sc.BusyTimeout)

	cfg := baseConfig()
	cfg.Storage = config.StorageConfig{Driver: " Memory ", BusyTimeout: "1s"}
	sc, err = mapStorage(cfg)
	require.NoError(t, err)
	assert.Equal(t, "memory", sc.Driver)
	assert.Empty(t, sc.Path)
	assert.Equal(t, time.Second, sc.BusyTimeout)
}

func TestMapScannerDurations(t *testing.T) {
	cfg := baseConfig()
	cfg.Scanner = config.ScannerConfig{Interval: "30s", ErrorBackoff: "5s", ComplaintsGrace: "10m", NodeConcurrency: 4}
	sc, err := mapScanner(cfg)
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, sc.Interval)
	assert.Equal(t, 5*time.Second, sc.ErrorBackoff)
	assert.Equal(t, 10*time.Minute, sc.ComplaintsGrace)
	assert.Equal(t, 4, sc.NodeConcurrency)
	assert.Equal(t, alerts.DefaultThresholds(), sc.Thresholds)
}

func TestMapDebugTrims(t *testing.T) {
	cfg := baseConfig()
	cfg.Debug = config.DebugConfig{Enabled: true, Addr: " 127.0.0.1:0 ", Token: " t "}
	dc := mapDebug(cfg)
	assert.True(t, dc.Enabled)
	assert.Equal(t, "127.0.0.1:0", dc.Addr)
	assert.Equal(t, "t", dc.Token)
}
