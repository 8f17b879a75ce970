package alerts

import (
	"context"
	"time"

	"valwatch/internal/storage"
	"valwatch/internal/toncenter"
	logx "valwatch/pkg/logx"
)

// Check is one alert kind evaluated on every scanner tick.
type Check interface {
	Kind() string
	// Audience lists the users who should be evaluated this tick.
	Audience(ctx context.Context) ([]storage.User, error)
	Run(ctx context.Context, users []storage.User) error
}

// Store is the slice of storage the checks need.
type Store interface {
	TriggerStore
	UsersWithEnabledAlert(ctx context.Context, kind string, onlyWithNodes bool) ([]storage.User, error)
	UserNodes(ctx context.Context, userID int64) ([]storage.Node, error)
}

// Upstream is the slice of the toncenter client the checks read.
type Upstream interface {
	ValidationCycle(ctx context.Context, which toncenter.Cycle) (toncenter.ValidationCycle, error)
	Complaints(ctx context.Context, cycleID int64) ([]toncenter.Complaint, error)
	ElectionData(ctx context.Context) (toncenter.Election, error)
	Telemetry(ctx context.Context, adnl string) (toncenter.Telemetry, error)
	Scoreboard(ctx context.Context, cycleID int64) ([]toncenter.ScoreboardEntry, error)
}

const (
	defaultNodeConcurrency = 4
	defaultComplaintsGrace = 20 * time.Minute
)

// Deps wires the checks. Zero values fall back to defaults.
type Deps struct {
	Store      Store
	Upstream   Upstream
	Informer   *Informer
	Log        logx.Logger
	Thresholds Thresholds
	// NodeConcurrency bounds parallel telemetry fetches per user.
	NodeConcurrency int
	// ComplaintsGrace delays the complaints digest after a cycle ends.
	ComplaintsGrace time.Duration
	Now             func() time.Time
}

func (d Deps) withDefaults() Deps {
	if d.Log.IsZero() {
		d.Log = logx.Nop()
	}
	if d.Thresholds == (Thresholds{}) {
		d.Thresholds = DefaultThresholds()
	}
	if d.NodeConcurrency <= 0 {
		d.NodeConcurrency = defaultNodeConcurrency
	}
	if d.ComplaintsGrace <= 0 {
		d.ComplaintsGrace = defaultComplaintsGrace
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	return d
}

// NewChecks builds the checks for one tick in their fixed order.
func NewChecks(d Deps) []Check {
	d = d.withDefaults()
	return []Check{
		&finesCheck{base: newBase(d, FinesAlert)},
		&telemetryCheck{base: newBase(d, TelemetryAlert)},
		&electionsCheck{base: newBase(d, ElectionParticipation)},
		&complaintsSummaryCheck{base: newBase(d, ComplaintsSummary)},
	}
}

// base carries the shared plumbing of every check.
type base struct {
	Deps
	kind string
	log  logx.Logger
}

func newBase(d Deps, kind string) base {
	return base{Deps: d, kind: kind, log: d.Log.With(logx.String("kind", kind))}
}

func (b *base) Kind() string { return b.kind }

func (b *base) Audience(ctx context.Context) ([]storage.User, error) {
	return b.Store.UsersWithEnabledAlert(ctx, b.kind, true)
}

// nodesByADNL indexes nodes by upper-case address.
func nodesByADNL(nodes []storage.Node) map[string]storage.Node {
	out := make(map[string]storage.Node, len(nodes))
	for _, n := range nodes {
		out[normADNL(n.ADNL)] = n
	}
	return out
}
