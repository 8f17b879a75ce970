// Package app wires configuration, storage, the upstream client, the alert
// pipeline and the chat front-end into one supervised process.
package app

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"valwatch/internal/alerts"
	"valwatch/internal/bot"
	"valwatch/internal/config"
	"valwatch/internal/eventbus"
	"valwatch/internal/housekeeping"
	"valwatch/internal/metrics"
	"valwatch/internal/notifier"
	"valwatch/internal/observability/debug"
	"valwatch/internal/runtime/supervisor"
	"valwatch/internal/scanner"
	"valwatch/internal/storage"
	"valwatch/internal/toncenter"
	"valwatch/internal/transport"
	"valwatch/internal/transport/telegram"
	logx "valwatch/pkg/logx"
)

type App struct {
	cfgm *config.Manager
	sup  *supervisor.Supervisor

	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus

	store    storage.Store
	adapter  *telegram.Adapter
	notif    *notifier.Service
	scan     *scanner.Scanner
	house    *housekeeping.Service
	bot      *bot.Bot
	debugSrv *debug.Service

	updates chan transport.Update
}

func NewApp(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	if err := validate(cfg); err != nil {
		return nil, err
	}

	pollTimeout, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		return nil, err
	}
	bootLog := logx.NewConsole("INFO").With(logx.String("comp", "telegram"))
	ad, err := telegram.New(telegram.Config{Token: cfg.Telegram.Token, PollTimeout: pollTimeout}, bootLog)
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(mapLogging(cfg), ad)
	appLog := log.With(logx.String("comp", "app"))

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)
	bus := eventbus.New()

	sc, err := mapStorage(cfg)
	if err != nil {
		_ = logSvc.Close()
		return nil, err
	}
	store, err := storage.Open(sc, log.With(logx.String("comp", "storage")))
	if err != nil {
		_ = logSvc.Close()
		return nil, err
	}
	fail := func(err error) (*App, error) {
		_ = store.Close()
		_ = logSvc.Close()
		return nil, err
	}
	appLog.Info("storage opened", logx.String("driver", sc.Driver))

	tc, err := mapToncenter(cfg)
	if err != nil {
		return fail(err)
	}
	client := toncenter.New(tc,
		toncenter.WithLogger(log.With(logx.String("comp", "toncenter"))),
		toncenter.WithMetrics(m),
	)

	ncfg, err := mapNotifier(cfg)
	if err != nil {
		return fail(err)
	}
	notif := notifier.New(ncfg, ad, log.With(logx.String("comp", "notifier")), bus, m)

	informer := alerts.NewInformer(store, notif,
		alerts.WithInformerLogger(log.With(logx.String("comp", "informer"))),
		alerts.WithInformerMetrics(m),
		alerts.WithInformerBus(bus),
	)

	scfg, err := mapScanner(cfg)
	if err != nil {
		return fail(err)
	}
	scan := scanner.New(scfg, store, client, informer,
		scanner.WithLogger(log.With(logx.String("comp", "scanner"))),
		scanner.WithMetrics(m),
		scanner.WithBus(bus),
	)

	hcfg, err := mapHousekeeping(cfg)
	if err != nil {
		return fail(err)
	}
	house := housekeeping.New(hcfg, store, log.With(logx.String("comp", "housekeeping")))

	debugSrv := debug.New(log.With(logx.String("comp", "debug")), reg)
	debugSrv.HandleStatus("deliveries", func() any { return notif.Snapshot() })

	return &App{
		cfgm:     cfgm,
		log:      appLog,
		logs:     logSvc,
		bus:      bus,
		store:    store,
		adapter:  ad,
		notif:    notif,
		scan:     scan,
		house:    house,
		bot:      bot.New(ad, store, client, log.With(logx.String("comp", "bot"))),
		debugSrv: debugSrv,
		updates:  make(chan transport.Update, 256),
	}, nil
}

// Done is closed when the app context is cancelled (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error seen by the supervisor.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))
	runCtx := a.sup.Context()

	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error { return validate(cfg) })

	if err := a.adapter.Start(runCtx, a.updates); err != nil {
		return err
	}
	a.sup.Go0("telegram.menu", func(c context.Context) {
		mctx, cancel := context.WithTimeout(c, 10*time.Second)
		defer cancel()
		if err := a.adapter.UpdateMenuCommands(mctx, a.bot.Commands()); err != nil {
			a.log.Warn("menu commands update failed", logx.Err(err))
		}
	})

	if err := a.house.Start(runCtx); err != nil {
		return fmt.Errorf("housekeeping: %w", err)
	}
	if err := a.debugSrv.Apply(runCtx, mapDebug(a.cfgm.Get())); err != nil {
		a.log.Warn("debug server not started", logx.Err(err))
	}

	a.sup.Go("bot.dispatch", func(c context.Context) error { return a.bot.Run(c, a.updates) })
	a.sup.Go("scanner", a.scan.Run)

	events, unsub := a.bus.Subscribe(128)
	a.sup.Go0("eventbus.log", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				a.log.Debug("event", logx.String("type", e.Type), logx.Any("data", e.Data))
			}
		}
	})

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		last := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case next, ok := <-sub:
				if !ok {
					return
				}
				// Coalesce bursts to the newest config.
			drain:
				for {
					select {
					case newer := <-sub:
						if newer != nil {
							next = newer
						}
					default:
						break drain
					}
				}
				a.reload(c, last, next)
				last = next
			}
		}
	})
	a.sup.Go("config.watch", a.cfgm.Watch)

	a.log.Info("app started")
	return nil
}

// reload applies the hot-reloadable sections. Storage, telegram and
// toncenter settings need a restart.
func (a *App) reload(ctx context.Context, prev, next *config.Config) {
	sections, attrs := config.SummarizeConfigChange(prev, next)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	for _, s := range []string{"storage", "telegram", "toncenter"} {
		if slices.Contains(sections, s) {
			a.log.Warn("config section changed; restart required to apply", logx.String("section", s))
		}
	}

	a.logs.Apply(mapLogging(next))

	if sc, err := mapScanner(next); err != nil {
		a.log.Warn("invalid scanner config; keeping previous", logx.Err(err))
	} else {
		a.scan.Apply(sc)
	}
	if nc, err := mapNotifier(next); err != nil {
		a.log.Warn("invalid delivery config; keeping previous", logx.Err(err))
	} else {
		a.notif.Apply(nc)
	}
	if hc, err := mapHousekeeping(next); err != nil {
		a.log.Warn("invalid housekeeping config; keeping previous", logx.Err(err))
	} else if err := a.house.Apply(hc); err != nil {
		a.log.Warn("housekeeping reschedule failed", logx.Err(err))
	}
	if err := a.debugSrv.Apply(ctx, mapDebug(next)); err != nil {
		a.log.Warn("debug server reconfigure failed", logx.Err(err))
	}

	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}

// Stop shuts components down in order, each step bounded so one stuck
// component cannot stall the rest.
func (a *App) Stop(ctx context.Context) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping")
	a.sup.Cancel()

	step := func(name string, limit time.Duration, fn func(context.Context) error) {
		start := time.Now()
		if dl, ok := ctx.Deadline(); ok {
			limit = min(limit, time.Until(dl))
		}
		if limit <= 0 {
			a.log.Warn("stop step skipped (deadline reached)", logx.String("name", name))
			return
		}
		stepCtx, cancel := context.WithTimeout(ctx, limit)
		defer cancel()

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()

		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)", logx.String("name", name), logx.Duration("elapsed", time.Since(start)))
		}
	}

	step("housekeeping", 3*time.Second, a.house.Stop)
	step("debug", time.Second, a.debugSrv.Stop)
	step("adapter", 3*time.Second, a.adapter.Stop)
	// Scanner and dispatcher finish their in-flight work before storage closes.
	step("supervisor", 10*time.Second, a.sup.Wait)
	step("storage", time.Second, func(context.Context) error { return a.store.Close() })

	a.log.Info("stopped")
	return a.logs.Close()
}
