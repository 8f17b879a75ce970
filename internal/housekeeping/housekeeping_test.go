package housekeeping

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"valwatch/internal/alerts"
	"valwatch/internal/storage"
	logx "valwatch/pkg/logx"
)

const (
	adnlA = "AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"
	adnlB = "BBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBB"
)

func TestPruneRemovesOnlyOrphanedTelemetry(t *testing.T) {
	ctx := context.Background()
	st := storage.NewMemory()
	_, err := st.AddUserWithAlerts(ctx, 1, "alice", alerts.KindIDs())
	require.NoError(t, err)
	_, err = st.AddNode(ctx, 1, adnlA, "")
	require.NoError(t, err)

	now := time.Now()
	keep := alerts.TelemetryKey(alerts.MetricCPU, adnlA)
	orphan := alerts.TelemetryKey(alerts.MetricDisk, adnlB)
	fines := alerts.FinesKey(7, adnlB)
	for _, k := range []string{keep, orphan, fines} {
		require.NoError(t, st.SetTriggeredAlert(ctx, 1, k, now))
	}

	s := New(Config{Enabled: true}, st, logx.Nop())
	removed, err := s.Prune(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	for k, want := range map[string]bool{keep: true, orphan: false, fines: true} {
		got, err := st.TriggeredAlertExists(ctx, 1, k)
		require.NoError(t, err)
		assert.Equal(t, want, got, k)
	}

	removed, err = s.Prune(ctx)
	require.NoError(t, err)
	assert.Zero(t, removed)
}

func TestStartRejectsBadSchedule(t *testing.T) {
	s := New(Config{Enabled: true, Schedule: "sometimes"}, storage.NewMemory(), logx.Nop())
	require.Error(t, s.Start(context.Background()))
	require.NoError(t, s.Stop(context.Background()))
}

func TestStartApplyStop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := New(Config{Enabled: false}, storage.NewMemory(), logx.Nop())
	require.NoError(t, s.Start(ctx))
	require.NoError(t, s.Start(ctx))
	assert.Zero(t, s.entry)

	require.NoError(t, s.Apply(Config{Enabled: true, Schedule: "1h"}))
	assert.NotZero(t, s.entry)
	require.Error(t, s.Apply(Config{Enabled: true, Schedule: "bogus"}))

	stopCtx, stopCancel := context.WithTimeout(context.Background(), time.Second)
	defer stopCancel()
	require.NoError(t, s.Stop(stopCtx))
}
