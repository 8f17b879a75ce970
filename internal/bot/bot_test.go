package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"valwatch/internal/alerts"
	"valwatch/internal/storage"
	"valwatch/internal/transport"
	logx "valwatch/pkg/logx"
)

const adnl = "ab12cd34ab12cd34ab12cd34ab12cd34ab12cd34ab12cd34ab12cd34ab12cd34"

type sent struct {
	to   transport.ChatTarget
	text string
	opt  *transport.SendOptions
}

type fakeAdapter struct {
	mu       sync.Mutex
	sent     []sent
	edits    []sent
	answers  []string
	buttonsE []transport.MessageRef
}

func (f *fakeAdapter) SendText(_ context.Context, to transport.ChatTarget, text string, opt *transport.SendOptions) (transport.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sent{to: to, text: text, opt: opt})
	return transport.MessageRef{ChatID: to.ChatID, MessageID: len(f.sent)}, nil
}

func (f *fakeAdapter) Start(context.Context, chan<- transport.Update) error { return nil }
func (f *fakeAdapter) Stop(context.Context) error                           { return nil }

func (f *fakeAdapter) EditText(_ context.Context, ref transport.MessageRef, text string, opt *transport.SendOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.edits = append(f.edits, sent{to: transport.ChatTarget{ChatID: ref.ChatID}, text: text, opt: opt})
	return nil
}

func (f *fakeAdapter) EditButtons(_ context.Context, ref transport.MessageRef, _ [][]transport.Button) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.buttonsE = append(f.buttonsE, ref)
	return nil
}

func (f *fakeAdapter) AnswerCallback(_ context.Context, _ string, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.answers = append(f.answers, text)
	return nil
}

func (f *fakeAdapter) last() sent {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		return sent{}
	}
	return f.sent[len(f.sent)-1]
}

type fakeProbe struct {
	sends bool
	err   error
}

func (p fakeProbe) SendsTelemetry(context.Context, string) (bool, error) { return p.sends, p.err }

type harness struct {
	bot     *Bot
	adapter *fakeAdapter
	store   *storage.Memory
}

func newHarness(t *testing.T, probe Probe) *harness {
	t.Helper()
	a := &fakeAdapter{}
	st := storage.NewMemory()
	return &harness{bot: New(a, st, probe, logx.Nop(), WithWorkers(2)), adapter: a, store: st}
}

func (h *harness) say(t *testing.T, from int64, text string) sent {
	t.Helper()
	up := transport.Update{Kind: transport.UpdateMessage, Message: &transport.Message{ChatID: from, FromID: from, FromUsername: "op", Text: text}}
	require.NoError(t, h.bot.Handle(context.Background(), up))
	return h.adapter.last()
}

func (h *harness) press(t *testing.T, from int64, data string) {
	t.Helper()
	up := transport.Update{Kind: transport.UpdateCallback, Callback: &transport.Callback{ID: "cb", ChatID: from, FromID: from, MessageID: 42, Data: data}}
	require.NoError(t, h.bot.Handle(context.Background(), up))
}

func TestStartRegistersWithEveryAlertEnabled(t *testing.T) {
	h := newHarness(t, nil)
	reply := h.say(t, 7, "/start")
	assert.Contains(t, reply.text, "/add")

	prefs, err := h.store.UserAlerts(context.Background(), 7)
	require.NoError(t, err)
	require.Len(t, prefs, len(alerts.KindIDs()))
	for _, p := range prefs {
		assert.True(t, p.Enabled, p.Kind)
	}

	h.say(t, 7, "/add "+adnl)
	reply = h.say(t, 7, "/start@valwatch_bot")
	assert.Contains(t, reply.text, "1 node(s)")
}

func TestCommandsRequireStart(t *testing.T) {
	h := newHarness(t, nil)
	for _, cmd := range []string{"/add " + adnl, "/nodes", "/alerts", "/remove " + adnl} {
		assert.Equal(t, "Send /start first.", h.say(t, 3, cmd).text, cmd)
	}
}

func TestAddNode(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, fakeProbe{sends: true})
	h.say(t, 1, "/start")

	assert.Contains(t, h.say(t, 1, "/add").text, "Usage")
	assert.Contains(t, h.say(t, 1, "/add xyz").text, "64 hex")
	assert.Contains(t, h.say(t, 1, "/add "+strings.Repeat("g", 64)).text, "64 hex")
	assert.Contains(t, h.say(t, 1, "/add "+adnl+" "+strings.Repeat("x", 33)).text, "too long")

	reply := h.say(t, 1, "/add "+adnl+" main validator")
	assert.Contains(t, reply.text, "added")
	assert.NotContains(t, reply.text, "telemetry")
	assert.Equal(t, "HTML", reply.opt.ParseMode)

	nodes, err := h.store.UserNodes(ctx, 1)
	require.NoError(t, err)
	require.Len(t, nodes, 1)
	assert.Equal(t, strings.ToUpper(adnl), nodes[0].ADNL)
	assert.Equal(t, "main validator", nodes[0].Label)

	assert.Contains(t, h.say(t, 1, "/add "+strings.ToUpper(adnl)).text, "already watch")
}

func TestAddNodeWarnsWithoutTelemetry(t *testing.T) {
	h := newHarness(t, fakeProbe{sends: false})
	h.say(t, 1, "/start")
	assert.Contains(t, h.say(t, 1, "/add "+adnl).text, "does not send telemetry")

	failing := newHarness(t, fakeProbe{err: errors.New("upstream down")})
	failing.say(t, 1, "/start")
	reply := failing.say(t, 1, "/add "+adnl)
	assert.Contains(t, reply.text, "added")
	assert.NotContains(t, reply.text, "telemetry")
}

func TestLabelAndRemove(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	h.say(t, 1, "/start")
	h.say(t, 1, "/add "+adnl)

	assert.Equal(t, "Label saved.", h.say(t, 1, "/label "+adnl+" backup").text)
	nodes, err := h.store.UserNodes(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "backup", nodes[0].Label)

	assert.Equal(t, "Node removed.", h.say(t, 1, "/remove "+adnl).text)
	assert.Equal(t, "You do not watch this node.", h.say(t, 1, "/remove "+adnl).text)
	assert.Equal(t, "You do not watch this node.", h.say(t, 1, "/label "+adnl+" x").text)
}

func TestNodesPagination(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	h.say(t, 1, "/start")
	assert.Contains(t, h.say(t, 1, "/nodes").text, "no nodes")

	for i := range 12 {
		_, err := h.store.AddNode(ctx, 1, fmt.Sprintf("%064X", i), "")
		require.NoError(t, err)
	}

	first := h.say(t, 1, "/nodes")
	assert.Contains(t, first.text, "Page 1/2")
	require.Len(t, first.opt.Buttons, 1)
	assert.Equal(t, "nodes:page:1", first.opt.Buttons[0][0].Data)

	second := h.say(t, 1, "/nodes 2")
	assert.Contains(t, second.text, "Page 2/2")
	assert.Equal(t, "nodes:page:0", second.opt.Buttons[0][0].Data)

	h.press(t, 1, "nodes:page:1")
	require.Len(t, h.adapter.edits, 1)
	assert.Contains(t, h.adapter.edits[0].text, "11–12 of 12")
}

func TestAlertToggleFromMenu(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	h.say(t, 1, "/start")

	menu := h.say(t, 1, "/alerts")
	require.Len(t, menu.opt.Buttons, len(alerts.Kinds()))
	assert.Equal(t, "alert:disable:"+alerts.FinesAlert, menu.opt.Buttons[0][0].Data)

	h.press(t, 1, "alert:disable:"+alerts.FinesAlert)
	users, err := h.store.UsersWithEnabledAlert(ctx, alerts.FinesAlert, false)
	require.NoError(t, err)
	assert.Empty(t, users)
	require.Len(t, h.adapter.edits, 1)
	assert.Equal(t, "alert:enable:"+alerts.FinesAlert, h.adapter.edits[0].opt.Buttons[0][0].Data)
	assert.Equal(t, []string{"Validator fines disabled"}, h.adapter.answers)

	h.press(t, 1, "alert:enable:"+alerts.FinesAlert)
	users, err = h.store.UsersWithEnabledAlert(ctx, alerts.FinesAlert, false)
	require.NoError(t, err)
	assert.Len(t, users, 1)
}

func TestDisableFromNotice(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	h.say(t, 1, "/start")

	h.press(t, 1, "alert:disable_no_edit:"+alerts.TelemetryAlert)

	users, err := h.store.UsersWithEnabledAlert(ctx, alerts.TelemetryAlert, false)
	require.NoError(t, err)
	assert.Empty(t, users)
	assert.Equal(t, []transport.MessageRef{{ChatID: 1, MessageID: 42}}, h.adapter.buttonsE)
	assert.Empty(t, h.adapter.edits, "notice text stays untouched")
	assert.Contains(t, h.adapter.last().text, "Telemetry alerts disabled")
	assert.Equal(t, []string{""}, h.adapter.answers)
}

func TestUnknownCallbacksAreAnswered(t *testing.T) {
	h := newHarness(t, nil)
	h.say(t, 1, "/start")
	h.press(t, 1, "alert:disable:NoSuchAlert")
	h.press(t, 1, "bogus")
	h.press(t, 1, "other:thing")
	assert.Equal(t, []string{"Unknown alert", "", ""}, h.adapter.answers)
}

func TestPlainTextAndUnknownCommands(t *testing.T) {
	h := newHarness(t, nil)
	require.NoError(t, h.bot.Handle(context.Background(), transport.Update{Kind: transport.UpdateMessage, Message: &transport.Message{ChatID: 1, Text: "hello"}}))
	assert.Empty(t, h.adapter.sent)
	assert.Contains(t, h.say(t, 1, "/frobnicate").text, "/help")
	assert.Contains(t, h.say(t, 1, "/help").text, "/add &lt;ADNL&gt; [label]")
}

func TestCommandsMenuOrder(t *testing.T) {
	h := newHarness(t, nil)
	var names []string
	for _, c := range h.bot.Commands() {
		names = append(names, c.Command)
	}
	assert.Equal(t, []string{"start", "add", "nodes", "label", "remove", "alerts", "help"}, names)
}

func TestRunDispatchesUntilCancelled(t *testing.T) {
	h := newHarness(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	updates := make(chan transport.Update, 1)
	done := make(chan error, 1)
	go func() { done <- h.bot.Run(ctx, updates) }()

	updates <- transport.Update{Kind: transport.UpdateMessage, Message: &transport.Message{ChatID: 5, FromID: 5, Text: "/start"}}
	require.Eventually(t, func() bool {
		_, err := h.store.GetUser(context.Background(), 5)
		return err == nil
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("dispatcher did not stop")
	}
}
