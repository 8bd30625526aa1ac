package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"campbot/internal/bot"
	"campbot/internal/config"
	"campbot/internal/countdown"
	"campbot/internal/eventbus"
	"campbot/internal/notifier"
	rtsup "campbot/internal/runtime/supervisor"
	"campbot/internal/storage"
	"campbot/internal/task/scheduler"
	"campbot/internal/teams"
	kit "campbot/internal/transport"
	telegram "campbot/internal/transport/telegram/adapter"
	"campbot/internal/transport/telegram/router"
	"campbot/pkg/logx"
	"campbot/pkg/systemd"
)

// countdownCollection is the storage collection holding active entries.
const countdownCollection = "countdowns"

type App struct {
	cfgm *config.ConfigManager
	sup  *rtsup.Supervisor

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store

	adapter  *telegram.Adapter
	roster   *teams.Roster
	notif    *notifier.Service
	core     *countdown.Scheduler
	sched    *scheduler.Service
	cmdm     *router.CommandManager
	handlers *bot.Handlers

	updates chan kit.Update
}

// New loads the config and builds every component. Nothing runs until Start.
func New(cfgPath string, env config.Overrides) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfgm.SetOverrides(env)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	bootLog := logx.NewConsole("INFO").With(logx.String("comp", "telegram"))
	pollTimeout, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		return nil, err
	}
	ad, err := telegram.New(telegram.Config{Token: cfg.Telegram.Token, PollTimeout: pollTimeout}, bootLog)
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(mapLogConfig(cfg), ad)
	appLog := log.With(logx.String("comp", "app"))
	bus := eventbus.New()

	sc, err := mapStorageConfig(cfg)
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(sc, log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, err
	}
	appLog.Info("storage opened", logx.String("driver", sc.Driver))
	// from here on a failed build must not leak the store
	fail := func(err error) (*App, error) {
		_ = store.Close()
		return nil, err
	}

	loc, err := config.LoadLocation("countdown.timezone", cfg.Countdown.Timezone)
	if err != nil {
		return fail(err)
	}
	timings, err := mapCountdownTimings(cfg)
	if err != nil {
		return fail(err)
	}
	spaceTimeout, err := config.ParseDurationField("countdown.space_timeout", cfg.Countdown.SpaceTimeout)
	if err != nil {
		return fail(err)
	}
	ncfg, err := mapNotifierConfig(cfg)
	if err != nil {
		return fail(err)
	}

	roster := teams.New(mapTeams(cfg))
	platform := bot.NewPlatform(ad, ad, roster, loc, log.With(logx.String("comp", "platform")))
	notif := notifier.New(ncfg, platform, log.With(logx.String("comp", "notifier")), bus)

	core := countdown.New(countdown.Options{
		Store:          storage.NewCollection[countdown.Record](store, countdownCollection, log.With(logx.String("comp", "storage"))),
		Notifier:       notif,
		Spaces:         platform,
		Roster:         roster,
		Bus:            bus,
		Log:            log.With(logx.String("comp", "countdown")),
		Location:       loc,
		GraceWindow:    timings.grace,
		TravelDebounce: timings.debounce,
		SpaceTimeout:   spaceTimeout,
	})

	handlers := bot.NewHandlers(core, roster, store, loc, log.With(logx.String("comp", "bot")))
	cmdm := router.NewCommandManager(log.With(logx.String("comp", "commands")), ad, cfg.Telegram.OwnerUserIDs)
	sched := scheduler.New(mapSchedulerConfig(cfg), log.With(logx.String("comp", "scheduler")), bus)

	return &App{
		cfgm:     cfgm,
		log:      appLog,
		logs:     logSvc,
		bus:      bus,
		store:    store,
		adapter:  ad,
		roster:   roster,
		notif:    notif,
		core:     core,
		sched:    sched,
		cmdm:     cmdm,
		handlers: handlers,
		updates:  make(chan kit.Update, 256),
	}, nil
}

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

// Start brings the components up in dependency order. Persisted entries are
// recovered before the adapter starts, so no command can race recovery.
func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))
	cfg := a.cfgm.Get()

	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		if err := config.Validate(cfg); err != nil {
			return err
		}
		if _, err := mapNotifierConfig(cfg); err != nil {
			return err
		}
		_, err := mapCountdownTimings(cfg)
		return err
	})

	// the notifier outlives the app context so Stop can drain it
	a.notif.Start(context.WithoutCancel(a.sup.Context()))

	st, err := a.core.Recover(ctx)
	if err != nil {
		return fmt.Errorf("recover countdowns: %w", err)
	}
	a.log.Info("countdowns recovered",
		logx.Int("restored", st.Restored), logx.Int("fired", st.Fired), logx.Int("dropped", st.Dropped))

	if err := a.adapter.Start(a.sup.Context(), a.updates); err != nil {
		return err
	}

	a.cmdm.SetAppSupervisor(a.sup)
	a.cmdm.SetRegistry(a.handlers.Commands())
	a.sup.Go("commands.dispatch", func(c context.Context) error {
		return a.cmdm.DispatchLoop(c, a.updates)
	})

	if err := a.registerHousekeeping(cfg); err != nil {
		return err
	}
	a.sched.Start(a.sup.Context())

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
				a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
			}
		}
	})

	a.sup.Go0("config.reload", a.reloadLoop)
	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	if cfg.Systemd.Notify {
		if sent, err := systemd.Ready(); err != nil {
			a.log.Warn("sd_notify READY failed", logx.Err(err))
		} else if sent {
			a.log.Debug("sd_notify READY sent")
		}
	}
	a.log.Info("app started")
	return nil
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	if cfg := a.cfgm.Get(); cfg != nil && cfg.Systemd.Notify {
		_, _ = systemd.Stopping()
	}

	// Cancelling the run context ends the dispatcher, so no new command lands
	// after this point.
	a.sup.Cancel()

	var errs []error
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		a.log.Debug("stop step begin", logx.String("name", name), logx.Duration("max", max))

		stepCtx := ctx
		if dl, ok := ctx.Deadline(); ok {
			if rem := time.Until(dl); rem < max {
				max = rem
			}
		}
		var cancel context.CancelFunc
		if max > 0 {
			stepCtx, cancel = context.WithTimeout(ctx, max)
			defer cancel()
		}

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
				errs = append(errs, fmt.Errorf("%s: %w", name, err))
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
			if took := time.Since(start); took >= 500*time.Millisecond {
				a.log.Info("stop step end", logx.String("name", name), logx.Duration("took", took))
			} else {
				a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", took))
			}
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)",
				logx.String("name", name), logx.Err(stepCtx.Err()), logx.Duration("elapsed", time.Since(start)))
			go func() {
				if err := <-done; err != nil {
					a.log.Warn("stop step finished after deadline", logx.String("name", name), logx.Err(err))
				}
			}()
		}
	}

	step("router", 3*time.Second, func(c context.Context) error {
		if sup := a.cmdm.Supervisor(); sup != nil {
			return sup.Wait(c)
		}
		return nil
	})
	step("adapter", 2*time.Second, func(c context.Context) error { return a.adapter.Stop(c) })
	step("scheduler", 2*time.Second, func(c context.Context) error { a.sched.Stop(c); return nil })
	step("countdown", 5*time.Second, a.core.Close)
	step("notifier", 5*time.Second, func(c context.Context) error { a.notif.Stop(c); return nil })
	step("storage", time.Second, func(context.Context) error { return a.store.Close() })
	step("supervisor", 2*time.Second, func(c context.Context) error { return a.sup.Wait(c) })

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return errors.Join(errs...)
}
