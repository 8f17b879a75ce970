package notifier

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"valwatch/internal/alerts"
	"valwatch/internal/eventbus"
	"valwatch/internal/metrics"
	"valwatch/internal/transport"
	logx "valwatch/pkg/logx"
)

type sentMsg struct {
	to   transport.ChatTarget
	text string
	opt  *transport.SendOptions
}

type fakeSender struct {
	mu   sync.Mutex
	sent []sentMsg
	err  error
}

func (f *fakeSender) SendText(_ context.Context, to transport.ChatTarget, text string, opt *transport.SendOptions) (transport.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentMsg{to: to, text: text, opt: opt})
	if f.err != nil {
		return transport.MessageRef{}, f.err
	}
	return transport.MessageRef{ChatID: to.ChatID, MessageID: len(f.sent)}, nil
}

func TestDeliverAddsDisableButton(t *testing.T) {
	fs := &fakeSender{}
	s := New(Config{}, fs, logx.Nop(), nil, nil)

	err := s.Deliver(context.Background(), alerts.Delivery{UserID: 42, Kind: alerts.ElectionParticipation, Text: "hi", Silent: true})
	require.NoError(t, err)

	require.Len(t, fs.sent, 1)
	msg := fs.sent[0]
	assert.Equal(t, int64(42), msg.to.ChatID)
	assert.Equal(t, "HTML", msg.opt.ParseMode)
	assert.True(t, msg.opt.Silent)
	require.Len(t, msg.opt.Buttons, 1)
	assert.Equal(t, transport.Button{Text: "🔕 Disable Elections", Data: "alert:disable_no_edit:ElectionParticipation"}, msg.opt.Buttons[0][0])
	require.Len(t, s.Snapshot(), 1)
	assert.Empty(t, s.Snapshot()[0].Err)
}

func TestDeliverClassifiesFailures(t *testing.T) {
	tests := []struct {
		err    error
		reason string
	}{
		{err: fmt.Errorf("%w: bot was blocked by the user", transport.ErrUnreachable), reason: "unreachable"},
		{err: errors.New("telegram: internal error"), reason: "error"},
		{err: context.DeadlineExceeded, reason: "timeout"},
	}
	for _, tt := range tests {
		t.Run(tt.reason, func(t *testing.T) {
			bus := eventbus.New()
			events, unsubscribe := bus.Subscribe(1)
			defer unsubscribe()

			m := metrics.New(prometheus.NewRegistry())
			s := New(Config{}, &fakeSender{err: tt.err}, logx.Nop(), bus, m)
			err := s.Deliver(context.Background(), alerts.Delivery{UserID: 1, Kind: alerts.FinesAlert, Text: "x"})
			assert.ErrorIs(t, err, tt.err)

			ev := <-events
			assert.Equal(t, eventbus.TypeDeliveryFailed, ev.Type)
			assert.Equal(t, tt.reason, ev.Data.(DeliveryEvent).Reason)
		})
	}
}

func TestHistoryIsCapped(t *testing.T) {
	s := New(Config{RatePerSec: 1000}, &fakeSender{}, logx.Nop(), nil, nil)
	for i := 0; i < historyCap+10; i++ {
		require.NoError(t, s.Deliver(context.Background(), alerts.Delivery{UserID: int64(i), Text: "x"}))
	}
	h := s.Snapshot()
	assert.Len(t, h, historyCap)
	assert.Equal(t, int64(10), h[0].UserID)
}
