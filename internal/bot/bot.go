package bot

import (
	"context"
	"runtime"
	"strconv"
	"strings"
	"time"

	"valwatch/internal/runtime/supervisor"
	"valwatch/internal/storage"
	"valwatch/internal/transport"
	logx "valwatch/pkg/logx"
	"valwatch/pkg/tgui"
)

const (
	defaultTimeout = 20 * time.Second
	jobQueueCap    = 256
)

// Probe reports whether a node publishes telemetry.
type Probe interface {
	SendsTelemetry(ctx context.Context, adnl string) (bool, error)
}

type Bot struct {
	adapter transport.Adapter
	store   storage.Store
	probe   Probe
	log     logx.Logger
	timeout time.Duration
	workers int

	commands  map[string]command
	callbacks map[string]callbackFunc
}

type Option func(*Bot)

func WithTimeout(d time.Duration) Option { return func(b *Bot) { b.timeout = d } }

func WithWorkers(n int) Option { return func(b *Bot) { b.workers = n } }

func New(adapter transport.Adapter, store storage.Store, probe Probe, log logx.Logger, opts ...Option) *Bot {
	if log.IsZero() {
		log = logx.Nop()
	}
	b := &Bot{
		adapter: adapter,
		store:   store,
		probe:   probe,
		log:     log,
		timeout: defaultTimeout,
		workers: max(runtime.NumCPU(), 2),
	}
	for _, o := range opts {
		o(b)
	}
	b.commands = b.commandTable()
	b.callbacks = b.callbackTable()
	return b
}

// request is one incoming message or callback, already parsed.
type request struct {
	chat     transport.ChatTarget
	fromID   int64
	username string
	name     string
	args     []string
	callback *transport.Callback
	payload  string
	answered bool
	log      logx.Logger
}

// Run dispatches updates to a bounded worker pool until ctx is cancelled or
// updates is closed.
func (b *Bot) Run(ctx context.Context, updates <-chan transport.Update) error {
	sup := supervisor.New(ctx, supervisor.WithLogger(b.log.With(logx.String("comp", "bot.dispatch"))))
	jobs := make(chan func(context.Context), jobQueueCap)

	for i := range b.workers {
		sup.GoRestart("bot.worker."+strconv.Itoa(i), func(c context.Context) error {
			for {
				select {
				case <-c.Done():
					return nil
				case job, ok := <-jobs:
					if !ok {
						return nil
					}
					job(c)
				}
			}
		}, supervisor.WithRestartBackoff(200*time.Millisecond, 5*time.Second))
	}
	b.log.Info("bot dispatcher started", logx.Int("workers", b.workers))

	defer func() {
		close(jobs)
		wctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		_ = sup.Wait(wctx)
		cancel()
		sup.Cancel()
		b.log.Info("bot dispatcher stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case up, ok := <-updates:
			if !ok {
				return nil
			}
			select {
			case jobs <- func(c context.Context) { _ = b.Handle(c, up) }:
			default:
				b.busy(ctx, up)
			}
		}
	}
}

func (b *Bot) busy(ctx context.Context, up transport.Update) {
	switch {
	case up.Callback != nil:
		_ = b.adapter.AnswerCallback(ctx, up.Callback.ID, "Busy, try again")
	case up.Message != nil:
		_, _ = b.adapter.SendText(ctx, transport.ChatTarget{ChatID: up.Message.ChatID, ThreadID: up.Message.ThreadID}, "Busy, try again in a moment.", nil)
	}
}

// Handle processes one update synchronously.
func (b *Bot) Handle(ctx context.Context, up transport.Update) error {
	switch up.Kind {
	case transport.UpdateMessage:
		if up.Message != nil {
			return b.handleMessage(ctx, up.Message)
		}
	case transport.UpdateCallback:
		if up.Callback != nil {
			return b.handleCallback(ctx, up.Callback)
		}
	}
	return nil
}

func (b *Bot) handleMessage(ctx context.Context, msg *transport.Message) error {
	text := strings.TrimSpace(msg.Text)
	if !strings.HasPrefix(text, "/") {
		return nil
	}
	fields := strings.Fields(text)
	name := strings.ToLower(strings.TrimPrefix(fields[0], "/"))
	if i := strings.IndexByte(name, '@'); i >= 0 {
		name = name[:i]
	}

	req := &request{
		chat:     transport.ChatTarget{ChatID: msg.ChatID, ThreadID: msg.ThreadID},
		fromID:   msg.FromID,
		username: msg.FromUsername,
		name:     name,
		args:     fields[1:],
	}
	req.log = b.log.With(logx.Int64("from_id", req.fromID), logx.String("cmd", name))

	cmd, ok := b.commands[name]
	if !ok {
		return b.reply(ctx, req, "Unknown command. Try /help")
	}
	return chain(cmd.handle, withRecover(), withRequestLog(), withTimeout(b.timeout))(ctx, req)
}

func (b *Bot) handleCallback(ctx context.Context, cb *transport.Callback) error {
	ns, action, payload, ok := tgui.ParseData(cb.Data)
	if !ok {
		return b.adapter.AnswerCallback(ctx, cb.ID, "")
	}
	req := &request{
		chat:     transport.ChatTarget{ChatID: cb.ChatID, ThreadID: cb.ThreadID},
		fromID:   cb.FromID,
		name:     ns + ":" + action,
		callback: cb,
		payload:  payload,
	}
	req.log = b.log.With(logx.Int64("from_id", req.fromID), logx.String("cmd", "cb:"+req.name))

	h, ok := b.callbacks[req.name]
	if !ok {
		return b.adapter.AnswerCallback(ctx, cb.ID, "")
	}
	err := chain(h, withRecover(), withRequestLog(), withTimeout(b.timeout))(ctx, req)
	if !req.answered {
		// Stops the client-side spinner.
		_ = b.adapter.AnswerCallback(ctx, cb.ID, "")
	}
	return err
}

// toast answers the callback with a short popup text.
func (b *Bot) toast(ctx context.Context, req *request, text string) error {
	req.answered = true
	return b.adapter.AnswerCallback(ctx, req.callback.ID, tgui.Toast(text))
}

func (b *Bot) reply(ctx context.Context, req *request, text string) error {
	_, err := b.adapter.SendText(ctx, req.chat, text, &transport.SendOptions{DisablePreview: true})
	return err
}

func (b *Bot) replyHTML(ctx context.Context, req *request, text string, rows [][]transport.Button) error {
	_, err := b.adapter.SendText(ctx, req.chat, text, &transport.SendOptions{ParseMode: "HTML", DisablePreview: true, Buttons: rows})
	return err
}
