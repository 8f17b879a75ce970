package alerts

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"valwatch/internal/storage"
	"valwatch/internal/toncenter"
)

const (
	adnlA = "AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"
	adnlB = "BBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBB"
	adnlC = "CCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCC"
)

// recordingSender captures deliveries and can fail on demand.
type recordingSender struct {
	mu   sync.Mutex
	sent []Delivery
	err  error
}

func (s *recordingSender) Deliver(_ context.Context, d Delivery) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, d)
	return s.err
}

func (s *recordingSender) deliveries() []Delivery {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Delivery(nil), s.sent...)
}

// fakeUpstream serves canned snapshots.
type fakeUpstream struct {
	mu         sync.Mutex
	cycles     []toncenter.ValidationCycle
	cycleErr   error
	complaints []toncenter.Complaint
	election   toncenter.Election
	telemetry  map[string]toncenter.Telemetry
	telErr     map[string]error
	scoreboard []toncenter.ScoreboardEntry
	boardCalls int
}

func (f *fakeUpstream) ValidationCycle(_ context.Context, which toncenter.Cycle) (toncenter.ValidationCycle, error) {
	if f.cycleErr != nil {
		return toncenter.ValidationCycle{}, f.cycleErr
	}
	if int(which) >= len(f.cycles) {
		return toncenter.ValidationCycle{}, toncenter.ErrNotFound
	}
	return f.cycles[which], nil
}

func (f *fakeUpstream) Complaints(context.Context, int64) ([]toncenter.Complaint, error) {
	return f.complaints, nil
}

func (f *fakeUpstream) ElectionData(context.Context) (toncenter.Election, error) {
	return f.election, nil
}

func (f *fakeUpstream) Telemetry(_ context.Context, adnl string) (toncenter.Telemetry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.telErr[adnl]; err != nil {
		return toncenter.Telemetry{}, err
	}
	t, ok := f.telemetry[adnl]
	if !ok {
		return toncenter.Telemetry{}, toncenter.ErrNoTelemetry
	}
	return t, nil
}

func (f *fakeUpstream) setTelemetry(adnl string, t toncenter.Telemetry) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.telemetry == nil {
		f.telemetry = map[string]toncenter.Telemetry{}
	}
	f.telemetry[adnl] = t
}

func (f *fakeUpstream) Scoreboard(context.Context, int64) ([]toncenter.ScoreboardEntry, error) {
	f.mu.Lock()
	f.boardCalls++
	f.mu.Unlock()
	return f.scoreboard, nil
}

// healthy returns telemetry with every metric inside its band.
func healthy() toncenter.Telemetry {
	return toncenter.Telemetry{
		ValidatorStatus: toncenter.ValidatorStatus{OutOfSync: 30},
		Data: toncenter.TelemetryData{
			CPULoad:           []float64{1, 1, 7},
			CPUNumber:         8,                                      // 87.5%
			Memory:            toncenter.Memory{Usage: 56, Total: 64}, // 87.5%
			NetLoad:           []float64{1, 1, 470},
			ValidatorDiskName: "/dev/nvme0n1",
			DisksLoad:         map[string][]float64{"nvme0n1": {1, 1, 1}},
			DisksLoadPercent:  map[string][]float64{"nvme0n1": {1, 1, 85}},
		},
	}
}

type fixture struct {
	store    *storage.Memory
	sender   *recordingSender
	upstream *fakeUpstream
	informer *Informer
	now      time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:    storage.NewMemory(),
		sender:   &recordingSender{},
		upstream: &fakeUpstream{},
		now:      time.Unix(1_700_000_000, 0),
	}
	f.informer = NewInformer(f.store, f.sender, WithInformerClock(func() time.Time { return f.now }))
	return f
}

func (f *fixture) deps() Deps {
	return Deps{
		Store:    f.store,
		Upstream: f.upstream,
		Informer: f.informer,
		Now:      func() time.Time { return f.now },
	}
}

func (f *fixture) addUser(t *testing.T, id int64, nodes ...storage.Node) {
	t.Helper()
	ctx := context.Background()
	_, err := f.store.AddUserWithAlerts(ctx, id, "", KindIDs())
	require.NoError(t, err)
	for _, n := range nodes {
		_, err := f.store.AddNode(ctx, id, n.ADNL, n.Label)
		require.NoError(t, err)
	}
}

func (f *fixture) check(t *testing.T, kind string) Check {
	t.Helper()
	for _, c := range NewChecks(f.deps()) {
		if c.Kind() == kind {
			return c
		}
	}
	t.Fatalf("no check for %s", kind)
	return nil
}

// runCheck resolves the audience and runs the check once.
func (f *fixture) runCheck(t *testing.T, kind string) error {
	t.Helper()
	c := f.check(t, kind)
	users, err := c.Audience(context.Background())
	require.NoError(t, err)
	return c.Run(context.Background(), users)
}

var errBoom = errors.New("boom")
