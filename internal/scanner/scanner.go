// Package scanner runs every alert check on a fixed cadence.
//
// A tick builds the checks from the current settings, runs them
// concurrently and waits for all of them before sleeping, so ticks never
// overlap. A failing or panicking check only loses its own tick.
package scanner

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"valwatch/internal/alerts"
	"valwatch/internal/eventbus"
	"valwatch/internal/metrics"
	logx "valwatch/pkg/logx"
)

const (
	defaultInterval     = 30 * time.Second
	defaultErrorBackoff = 10 * time.Second
)

// Config holds the hot-reloadable scanner settings.
type Config struct {
	Interval        time.Duration
	ErrorBackoff    time.Duration
	NodeConcurrency int
	ComplaintsGrace time.Duration
	Thresholds      alerts.Thresholds
}

func (c Config) withDefaults() Config {
	if c.Interval <= 0 {
		c.Interval = defaultInterval
	}
	if c.ErrorBackoff <= 0 {
		c.ErrorBackoff = defaultErrorBackoff
	}
	return c
}

// TickEvent is the payload of scan.tick events.
type TickEvent struct {
	Checks int
	Failed int
	Took   time.Duration
}

type Scanner struct {
	mu  sync.Mutex
	cfg Config

	store    alerts.Store
	upstream alerts.Upstream
	informer *alerts.Informer

	log     logx.Logger
	metrics *metrics.Metrics
	bus     eventbus.Bus
	build   func(alerts.Deps) []alerts.Check
}

type Option func(*Scanner)

func WithLogger(log logx.Logger) Option { return func(s *Scanner) { s.log = log } }

func WithMetrics(m *metrics.Metrics) Option { return func(s *Scanner) { s.metrics = m } }

func WithBus(bus eventbus.Bus) Option { return func(s *Scanner) { s.bus = bus } }

// WithChecks replaces the check factory.
func WithChecks(build func(alerts.Deps) []alerts.Check) Option {
	return func(s *Scanner) { s.build = build }
}

func New(cfg Config, store alerts.Store, upstream alerts.Upstream, informer *alerts.Informer, opts ...Option) *Scanner {
	s := &Scanner{
		cfg:      cfg.withDefaults(),
		store:    store,
		upstream: upstream,
		informer: informer,
		build:    alerts.NewChecks,
	}
	for _, o := range opts {
		o(s)
	}
	if s.log.IsZero() {
		s.log = logx.Nop()
	}
	if s.bus == nil {
		s.bus = eventbus.Nop{}
	}
	return s
}

// Apply swaps the settings used from the next tick on.
func (s *Scanner) Apply(cfg Config) {
	s.mu.Lock()
	s.cfg = cfg.withDefaults()
	s.mu.Unlock()
}

func (s *Scanner) config() Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// Run ticks until ctx is cancelled. It never returns an error of its own.
func (s *Scanner) Run(ctx context.Context) error {
	s.log.Info("scanner started", logx.Duration("interval", s.config().Interval))
	for {
		wait := s.config().Interval
		if err := s.Tick(ctx); err != nil {
			s.metrics.ScanTick("error")
			s.log.Error("scan tick failed", logx.Err(err))
			wait = s.config().ErrorBackoff
		} else {
			s.metrics.ScanTick("ok")
		}

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			s.log.Info("scanner stopped")
			return nil
		case <-t.C:
		}
	}
}

// Tick runs every check once and waits for all of them. The error reports
// orchestration failures only; check failures are logged per check.
func (s *Scanner) Tick(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("scan tick panicked: %v", r)
			s.log.Error("scan tick panicked", logx.Any("panic", r), logx.Stack(string(debug.Stack())))
		}
	}()

	cfg := s.config()
	checks := s.build(alerts.Deps{
		Store:           s.store,
		Upstream:        s.upstream,
		Informer:        s.informer,
		Log:             s.log,
		Thresholds:      cfg.Thresholds,
		NodeConcurrency: cfg.NodeConcurrency,
		ComplaintsGrace: cfg.ComplaintsGrace,
	})

	start := time.Now()
	var (
		wg     sync.WaitGroup
		failMu sync.Mutex
		failed int
	)
	wg.Add(len(checks))
	for _, c := range checks {
		go func() {
			defer wg.Done()
			if !s.runCheck(ctx, c) {
				failMu.Lock()
				failed++
				failMu.Unlock()
			}
		}()
	}
	wg.Wait()

	took := time.Since(start)
	s.bus.Publish(eventbus.Event{Type: eventbus.TypeScanTick, Data: TickEvent{Checks: len(checks), Failed: failed, Took: took}})
	s.log.Debug("scan tick done", logx.Int("checks", len(checks)), logx.Int("failed", failed), logx.Duration("took", took))
	return nil
}

// runCheck resolves the audience and runs c, containing any failure.
func (s *Scanner) runCheck(ctx context.Context, c alerts.Check) (ok bool) {
	kind := c.Kind()
	log := s.log.With(logx.String("kind", kind))
	start := time.Now()
	result := "ok"
	defer func() {
		if r := recover(); r != nil {
			log.Error("check panicked", logx.Any("panic", r), logx.Stack(string(debug.Stack())))
			result, ok = "panic", false
		}
		s.metrics.CheckRun(kind, result, time.Since(start))
	}()

	users, err := c.Audience(ctx)
	if err != nil {
		log.Error("resolve audience failed", logx.Err(err))
		result = "error"
		return false
	}
	if len(users) == 0 {
		result = "skipped"
		return true
	}
	if err := c.Run(ctx, users); err != nil {
		log.Error("check failed", logx.Int("users", len(users)), logx.Err(err))
		result = "error"
		return false
	}
	log.Debug("check done", logx.Int("users", len(users)), logx.Duration("took", time.Since(start)))
	return true
}
