package alerts

import (
	"context"
	"fmt"
	"time"

	"valwatch/internal/eventbus"
	"valwatch/internal/metrics"
	logx "valwatch/pkg/logx"
)

// Policy decides how a triggered-alert record gates a notice.
type Policy int

const (
	OneShot Policy = iota
	LevelTriggered
)

func (p Policy) String() string {
	if p == LevelTriggered {
		return "level"
	}
	return "one_shot"
}

// Delivery is one chat message to a user.
type Delivery struct {
	UserID int64
	Kind   string
	Text   string
	Silent bool
}

// Sender delivers notices. Errors are reported but never retried by the informer.
type Sender interface {
	Deliver(ctx context.Context, d Delivery) error
}

// TriggerStore is the slice of storage the informer needs.
type TriggerStore interface {
	TriggeredAlertExists(ctx context.Context, userID int64, key string) (bool, error)
	SetTriggeredAlert(ctx context.Context, userID int64, key string, at time.Time) error
	ClearTriggeredAlert(ctx context.Context, userID int64, key string) error
}

// Notice is a candidate message for one user and one alert instance.
type Notice struct {
	UserID int64
	Key    string
	Kind   string
	Text   string
	Silent bool
	Policy Policy
	// Overloaded is the state this notice reports; LevelTriggered only.
	Overloaded bool
}

// NoticeEvent is the payload of alert.sent and alert.suppressed events.
type NoticeEvent struct {
	UserID int64
	Kind   string
	Key    string
}

type Informer struct {
	store   TriggerStore
	sender  Sender
	log     logx.Logger
	metrics *metrics.Metrics
	bus     eventbus.Bus
	now     func() time.Time
}

type InformerOption func(*Informer)

func WithInformerLogger(log logx.Logger) InformerOption {
	return func(i *Informer) { i.log = log }
}

func WithInformerMetrics(m *metrics.Metrics) InformerOption {
	return func(i *Informer) { i.metrics = m }
}

func WithInformerBus(bus eventbus.Bus) InformerOption {
	return func(i *Informer) { i.bus = bus }
}

func WithInformerClock(now func() time.Time) InformerOption {
	return func(i *Informer) { i.now = now }
}

func NewInformer(store TriggerStore, sender Sender, opts ...InformerOption) *Informer {
	i := &Informer{store: store, sender: sender, now: time.Now}
	for _, o := range opts {
		o(i)
	}
	if i.log.IsZero() {
		i.log = logx.Nop()
	}
	if i.bus == nil {
		i.bus = eventbus.Nop{}
	}
	return i
}

// Inform sends n unless its record says the user already has it, then
// updates the record. It reports whether a delivery was attempted.
//
// A store error aborts before anything is sent. A delivery error is logged
// by the sender and the record is still updated.
func (i *Informer) Inform(ctx context.Context, n Notice) (bool, error) {
	exists, err := i.store.TriggeredAlertExists(ctx, n.UserID, n.Key)
	if err != nil {
		return false, fmt.Errorf("check record %s: %w", n.Key, err)
	}

	suppress := exists
	if n.Policy == LevelTriggered {
		suppress = exists == n.Overloaded
	}
	if suppress {
		i.metrics.Notice(n.Kind, "suppressed")
		i.bus.Publish(eventbus.Event{Type: eventbus.TypeAlertSuppressed, Data: NoticeEvent{UserID: n.UserID, Kind: n.Kind, Key: n.Key}})
		return false, nil
	}

	// Delivery failures are logged by the sender; the notice counts as attempted.
	_ = i.sender.Deliver(ctx, Delivery{UserID: n.UserID, Kind: n.Kind, Text: n.Text, Silent: n.Silent})

	if n.Policy == OneShot || n.Overloaded {
		err = i.store.SetTriggeredAlert(ctx, n.UserID, n.Key, i.now())
	} else {
		err = i.store.ClearTriggeredAlert(ctx, n.UserID, n.Key)
	}
	if err != nil {
		return true, fmt.Errorf("update record %s: %w", n.Key, err)
	}

	i.metrics.Notice(n.Kind, "sent")
	i.bus.Publish(eventbus.Event{Type: eventbus.TypeAlertSent, Data: NoticeEvent{UserID: n.UserID, Kind: n.Kind, Key: n.Key}})
	i.log.Info("alert sent",
		logx.String("key", n.Key),
		logx.Int64("user_id", n.UserID),
		logx.String("policy", n.Policy.String()),
	)
	return true, nil
}
