package notifier

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"valwatch/internal/alerts"
	"valwatch/internal/eventbus"
	"valwatch/internal/metrics"
	"valwatch/internal/transport"
	logx "valwatch/pkg/logx"
	"valwatch/pkg/tgui"
)

const (
	defaultRatePerSec = 20
	defaultTimeout    = 30 * time.Second
	historyCap        = 300
)

// CallbackDisableNoEdit disables an alert kind from a notice button without
// editing the notice itself.
const CallbackDisableNoEdit = "disable_no_edit"

// Service implements alerts.Sender.
//
// It is safe for concurrent use.
type Service struct {
	mu      sync.Mutex
	cfg     Config
	limiter *rate.Limiter

	log     logx.Logger
	sender  transport.Sender
	bus     eventbus.Bus
	metrics *metrics.Metrics

	hmu     sync.Mutex
	history []HistoryItem
}

var _ alerts.Sender = (*Service)(nil)

func New(cfg Config, sender transport.Sender, log logx.Logger, bus eventbus.Bus, m *metrics.Metrics) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	if bus == nil {
		bus = eventbus.Nop{}
	}
	s := &Service{sender: sender, log: log, bus: bus, metrics: m}
	s.applyLocked(cfg)
	return s
}

func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	s.applyLocked(cfg)
	s.mu.Unlock()
}

func (s *Service) applyLocked(cfg Config) {
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = defaultRatePerSec
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	s.cfg = cfg
	// Burst equals the rate so a tick's first notices are not delayed.
	s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
}

// DisableButton returns the inline button that turns kind off.
func DisableButton(kind string) transport.Button {
	name := kind
	if k, ok := alerts.LookupKind(kind); ok {
		name = k.Name
	}
	return transport.Button{
		Text: "🔕 Disable " + name,
		Data: tgui.Data("alert", CallbackDisableNoEdit, kind),
	}
}

// Deliver sends d once. The returned error is informational; callers treat
// the notice as attempted either way.
func (s *Service) Deliver(ctx context.Context, d alerts.Delivery) error {
	s.mu.Lock()
	cfg := s.cfg
	lim := s.limiter
	s.mu.Unlock()

	if err := lim.Wait(ctx); err != nil {
		s.fail(d, "canceled", err)
		return err
	}

	opts := &transport.SendOptions{
		ParseMode:      "HTML",
		DisablePreview: true,
		Silent:         d.Silent,
	}
	if d.Kind != "" {
		opts.Buttons = [][]transport.Button{{DisableButton(d.Kind)}}
	}

	sctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	_, err := s.sender.SendText(sctx, transport.ChatTarget{ChatID: d.UserID}, d.Text, opts)
	cancel()
	if err != nil {
		s.fail(d, reason(err), err)
		return err
	}
	s.appendHistory(HistoryItem{At: time.Now(), UserID: d.UserID, Kind: d.Kind})
	return nil
}

func reason(err error) string {
	switch {
	case errors.Is(err, transport.ErrUnreachable):
		return "unreachable"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "error"
	}
}

func (s *Service) fail(d alerts.Delivery, why string, err error) {
	fields := []logx.Field{
		logx.Int64("user_id", d.UserID),
		logx.String("kind", d.Kind),
		logx.String("reason", why),
		logx.Err(err),
	}
	if why == "unreachable" {
		s.log.Info("alert recipient unreachable", fields...)
	} else {
		s.log.Warn("alert delivery failed", fields...)
	}
	s.metrics.DeliveryFailure(why)
	s.bus.Publish(eventbus.Event{Type: eventbus.TypeDeliveryFailed, Data: DeliveryEvent{UserID: d.UserID, Kind: d.Kind, Reason: why, Error: err.Error()}})
	s.appendHistory(HistoryItem{At: time.Now(), UserID: d.UserID, Kind: d.Kind, Err: err.Error()})
}

// Snapshot returns recent deliveries, oldest first.
func (s *Service) Snapshot() []HistoryItem {
	s.hmu.Lock()
	out := append([]HistoryItem(nil), s.history...)
	s.hmu.Unlock()
	return out
}

func (s *Service) appendHistory(it HistoryItem) {
	s.hmu.Lock()
	s.history = append(s.history, it)
	if len(s.history) > historyCap {
		s.history = s.history[len(s.history)-historyCap:]
	}
	s.hmu.Unlock()
}
