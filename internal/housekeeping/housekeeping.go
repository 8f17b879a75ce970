// Package housekeeping prunes triggered-alert records that can no longer
// resolve. A telemetry record for a node the user stopped watching would
// otherwise linger forever, since the telemetry check only visits watched
// nodes.
package housekeeping

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"valwatch/internal/alerts"
	"valwatch/internal/storage"
	logx "valwatch/pkg/logx"
)

const (
	DefaultSchedule = "@every 6h"
	pruneTimeout    = 2 * time.Minute
)

type Config struct {
	Enabled  bool
	Schedule string
}

// Store is the slice of storage.Store the pruner needs.
type Store interface {
	TriggeredAlerts(ctx context.Context, prefix string) ([]storage.TriggeredAlert, error)
	UserNodes(ctx context.Context, userID int64) ([]storage.Node, error)
	ClearTriggeredAlert(ctx context.Context, userID int64, key string) error
}

type Service struct {
	store Store
	log   logx.Logger

	mu    sync.Mutex
	cfg   Config
	c     *cron.Cron
	ctx   context.Context
	entry cron.EntryID
}

func New(cfg Config, store Store, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{store: store, log: log, cfg: cfg}
}

// Start registers the prune job. Calling it again is a no-op.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return nil
	}
	s.ctx = ctx
	s.c = cron.New(cron.WithParser(parser), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if err := s.scheduleLocked(); err != nil {
		s.c = nil
		return err
	}
	s.c.Start()
	return nil
}

// Apply swaps the schedule of a running service.
func (s *Service) Apply(cfg Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = cfg
	if s.c == nil {
		return nil
	}
	if s.entry != 0 {
		s.c.Remove(s.entry)
		s.entry = 0
	}
	return s.scheduleLocked()
}

func (s *Service) scheduleLocked() error {
	if !s.cfg.Enabled {
		s.log.Info("housekeeping disabled")
		return nil
	}
	raw := s.cfg.Schedule
	if strings.TrimSpace(raw) == "" {
		raw = DefaultSchedule
	}
	spec, err := ParseSchedule(raw)
	if err != nil {
		return err
	}
	ctx := s.ctx
	id, err := s.c.AddFunc(spec, func() {
		pctx, cancel := context.WithTimeout(ctx, pruneTimeout)
		defer cancel()
		if _, err := s.Prune(pctx); err != nil && ctx.Err() == nil {
			s.log.Warn("housekeeping prune failed", logx.Err(err))
		}
	})
	if err != nil {
		return fmt.Errorf("schedule %q: %w", spec, err)
	}
	s.entry = id
	s.log.Info("housekeeping scheduled", logx.String("schedule", spec))
	return nil
}

// Stop halts the cron and waits for a running prune.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	c := s.c
	s.c = nil
	s.entry = 0
	s.mu.Unlock()
	if c == nil {
		return nil
	}
	select {
	case <-c.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Prune deletes telemetry records whose node is no longer watched by the
// record's user and returns how many were removed.
func (s *Service) Prune(ctx context.Context) (int, error) {
	records, err := s.store.TriggeredAlerts(ctx, alerts.TelemetryKeyPrefix)
	if err != nil {
		return 0, fmt.Errorf("list telemetry records: %w", err)
	}

	watched := map[int64]map[string]struct{}{}
	removed := 0
	for _, rec := range records {
		_, adnl, ok := alerts.ParseTelemetryKey(rec.Key)
		if !ok {
			continue
		}
		nodes, seen := watched[rec.UserID]
		if !seen {
			list, err := s.store.UserNodes(ctx, rec.UserID)
			if err != nil {
				return removed, fmt.Errorf("nodes of user %d: %w", rec.UserID, err)
			}
			nodes = make(map[string]struct{}, len(list))
			for _, n := range list {
				nodes[strings.ToUpper(n.ADNL)] = struct{}{}
			}
			watched[rec.UserID] = nodes
		}
		if _, ok := nodes[strings.ToUpper(adnl)]; ok {
			continue
		}
		if err := s.store.ClearTriggeredAlert(ctx, rec.UserID, rec.Key); err != nil {
			return removed, fmt.Errorf("clear %s: %w", rec.Key, err)
		}
		removed++
	}

	if removed > 0 {
		s.log.Info("pruned orphaned telemetry records", logx.Int("removed", removed), logx.Int("scanned", len(records)))
	} else {
		s.log.Debug("no orphaned telemetry records", logx.Int("scanned", len(records)))
	}
	return removed, nil
}
