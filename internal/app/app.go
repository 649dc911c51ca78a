package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"festivalbot/internal/commands/festival"
	"festivalbot/internal/config"
	"festivalbot/internal/eventbus"
	"festivalbot/internal/greeting"
	"festivalbot/internal/httpapi"
	"festivalbot/internal/llm"
	rtsup "festivalbot/internal/runtime/supervisor"
	"festivalbot/internal/storage"
	"festivalbot/internal/task/scheduler"
	kit "festivalbot/internal/transport"
	"festivalbot/internal/transport/dispatch"
	telegram "festivalbot/internal/transport/telegram/adapter"
	"festivalbot/internal/transport/telegram/router"
	"festivalbot/internal/trigger"
	logx "festivalbot/pkg/logx"

	"github.com/coreos/go-systemd/v22/daemon"
)

type App struct {
	cfgPath string

	cfgm *config.ConfigManager
	sup  *rtsup.Supervisor
	sups *rtsup.Registry

	log   logx.Logger
	logs  *logx.Service
	bus   *eventbus.MemBus
	store storage.Store

	// adapter is nil without a telegram token; commands are then disabled.
	adapter *telegram.Adapter
	sender  *dispatch.SenderDispatcher

	sched  *scheduler.Service
	llm    *llm.Registry
	gen    *greeting.Generator
	engine *trigger.Engine

	cmdm *router.CommandManager
	http *httpapi.Server

	updates chan kit.Update
}

func NewApp(cfgPath string) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	var (
		ad     *telegram.Adapter
		sender kit.Sender
	)
	if strings.TrimSpace(cfg.Telegram.Token) != "" {
		pollTimeout, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, config.DefaultPollTimeout)
		if err != nil {
			return nil, err
		}
		bootLog := logx.NewConsole("INFO").With(logx.String("comp", "telegram"))
		ad, err = telegram.New(telegram.Config{
			Token:       cfg.Telegram.Token,
			PollTimeout: pollTimeout,
		}, bootLog)
		if err != nil {
			return nil, err
		}
		sender = ad
	}

	// Bootstrap with the Telegram sink off so Apply does not warn about a
	// missing target, then set the target and apply the final config.
	logCfg := mapLogConfig(cfg)
	bootCfg := logCfg
	bootCfg.Telegram.Enabled = false
	logSvc, root := logx.New(bootCfg, sender)
	logSvc.SetTelegramTarget(logTarget(cfg), cfg.Logging.Telegram.ThreadID)
	logSvc.Apply(logCfg)
	log := root.With(logx.String("comp", "app"))

	bus := eventbus.New()

	store, err := OpenStore(cfg, root.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, err
	}
	log.Info("storage opened", logx.String("driver", cfg.Storage.Driver), logx.String("path", cfg.Storage.Path))

	catalog, warnings, err := LoadCatalog(cfg)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	for _, w := range warnings {
		log.Warn("custom holiday skipped", logx.String("reason", w))
	}

	providers, err := mapProviders(cfg)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	reg := llm.NewRegistry(cfg.LLM.ProviderID, providers...)
	if reg.Len() == 0 {
		log.Warn("no llm provider configured; fallback greetings only")
	}

	gopt, err := mapGreetingOptions(cfg)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	gen := greeting.NewGenerator(reg, gopt, root)

	var (
		dispatcher trigger.Dispatcher
		sd         *dispatch.SenderDispatcher
	)
	switch {
	case cfg.Dispatch.Transport == "log" || ad == nil:
		dispatcher = dispatch.NewLogDispatcher(root.With(logx.String("comp", "dispatch")))
	default:
		sd = dispatch.NewSenderDispatcher(ad)
		timeout, err := mapDispatchTimeout(cfg)
		if err != nil {
			_ = store.Close()
			return nil, err
		}
		sd.SetTimeout(timeout)
		dispatcher = sd
	}

	opt, err := EngineOptions(cfg, catalog)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	sched := scheduler.New(scheduler.Config{Timezone: opt.Location.String()}, root.With(logx.String("comp", "scheduler")), bus)
	eng := trigger.New(trigger.Deps{
		Store:      store,
		Generator:  gen,
		Dispatcher: dispatcher,
		Clock:      sched,
		Bus:        bus,
		Log:        root,
	}, opt)

	sups := rtsup.NewRegistry()

	var cmdm *router.CommandManager
	if ad != nil {
		cmdm = router.NewCommandManager(root.With(logx.String("comp", "commands")), ad, cfg.Telegram.OwnerUserIDs)
	}

	var srv *httpapi.Server
	if addr := strings.TrimSpace(cfg.HTTP.Addr); addr != "" {
		srv = httpapi.New(addr, httpapi.Deps{
			Engine:      eng,
			Targets:     store,
			Supervisors: sups,
			Profiler:    cfg.HTTP.Pprof,
			Log:         root.With(logx.String("comp", "http")),
		})
		if cfg.HTTP.Pprof && !loopback(addr) {
			log.Warn("pprof exposed on a non-loopback address", logx.String("addr", addr))
		}
	}

	return &App{
		cfgPath: cfgPath,
		cfgm:    cfgm,
		sups:    sups,
		log:     log,
		logs:    logSvc,
		bus:     bus,
		store:   store,
		adapter: ad,
		sender:  sd,
		sched:   sched,
		llm:     reg,
		gen:     gen,
		engine:  eng,
		cmdm:    cmdm,
		http:    srv,
		updates: make(chan kit.Update, 256),
	}, nil
}

// Engine exposes the trigger engine (CLI one-shot runs).
func (a *App) Engine() *trigger.Engine { return a.engine }

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

func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))
	a.sups.Set("app", a.sup)

	// transactional config reload: validate before commit/publish
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		_, err := a.plan(cfg)
		return err
	})

	if err := a.engine.Start(a.sup.Context()); err != nil {
		return err
	}

	if a.adapter != nil {
		if err := a.adapter.Start(a.sup.Context(), a.updates); err != nil {
			return err
		}
		if sup := a.adapter.Supervisor(); sup != nil {
			a.sups.Set("telegram.adapter", sup)
		}
		a.cmdm.Attach(a.sup, a.sups)
		a.cmdm.SetRegistry(festival.New(a.engine).Commands())
		a.sup.Go("commands.dispatch", func(c context.Context) error {
			return a.cmdm.DispatchLoop(c, a.updates)
		})
	}

	a.sup.Go("eventbus.log", func(c context.Context) error {
		eventbus.Forward(c, a.bus, 128, func(e eventbus.Event) {
			a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
		})
		return nil
	})

	sub := a.cfgm.Subscribe(8)
	a.sup.Go("config.reload", func(c context.Context) error {
		defer a.cfgm.Unsubscribe(sub)
		lastApplied := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return nil
			case newCfg, ok := <-sub:
				if !ok {
					return nil
				}
				// Coalesce bursts: keep only the latest config in the channel.
			drain:
				for {
					select {
					case newer := <-sub:
						if newer != nil {
							newCfg = newer
						}
					default:
						break drain
					}
				}
				change := config.SummarizeConfigChange(lastApplied, newCfg)
				lastApplied = newCfg
				a.reload(newCfg, change)
			}
		}
	})

	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	if a.http != nil {
		a.sup.Go("http.serve", func(c context.Context) error {
			return a.http.Run(c)
		})
		a.log.Info("http api listening", logx.String("addr", a.http.Addr()))
	}

	if ok, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		a.log.Warn("sd_notify ready failed", logx.Err(err))
	} else if ok {
		a.log.Debug("sd_notify ready sent")
	}

	a.log.Info("app started",
		logx.Bool("telegram", a.adapter != nil),
		logx.Bool("http", a.http != nil),
	)
	return nil
}

// applied is everything a config produces that can change at runtime.
type applied struct {
	log      logx.Config
	logChat  int64
	greeting greeting.Options
	engine   trigger.Options
	llm      []llm.Provider
	dispatch time.Duration
	warnings []string
}

// plan maps cfg without touching the running app. The config validator
// uses it so a reload that cannot be applied is never committed.
func (a *App) plan(cfg *config.Config) (applied, error) {
	var p applied
	p.log = mapLogConfig(cfg)
	p.logChat = logTarget(cfg)

	var err error
	if p.greeting, err = mapGreetingOptions(cfg); err != nil {
		return p, err
	}
	if p.llm, err = mapProviders(cfg); err != nil {
		return p, err
	}
	if p.dispatch, err = mapDispatchTimeout(cfg); err != nil {
		return p, err
	}
	catalog, warnings, err := LoadCatalog(cfg)
	if err != nil {
		return p, err
	}
	p.warnings = warnings
	if p.engine, err = EngineOptions(cfg, catalog); err != nil {
		return p, err
	}
	return p, nil
}

func (a *App) reload(cfg *config.Config, change config.Change) {
	if len(change.Sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	fields := append([]logx.Field{logx.String("changed", strings.Join(change.Sections, ","))}, change.Fields...)
	a.log.Debug("config change summary", fields...)
	if len(change.RestartRequired) > 0 {
		a.log.Warn("config changed; restart required for changes to take effect",
			logx.Strings("sections", change.RestartRequired))
	}

	p, err := a.plan(cfg)
	if err != nil {
		a.log.Warn("config reload could not be applied; keeping previous", logx.Err(err))
		return
	}
	for _, w := range p.warnings {
		a.log.Warn("custom holiday skipped", logx.String("reason", w))
	}

	// update log target first (so Apply() doesn't warn when Telegram logging is enabled)
	a.logs.SetTelegramTarget(p.logChat, cfg.Logging.Telegram.ThreadID)
	a.logs.Apply(p.log)

	if a.cmdm != nil {
		a.cmdm.SetOwners(cfg.Telegram.OwnerUserIDs)
	}
	a.llm.Replace(cfg.LLM.ProviderID, p.llm...)
	a.gen.Apply(p.greeting)
	if a.sender != nil {
		a.sender.SetTimeout(p.dispatch)
	}
	a.engine.Apply(p.engine)

	a.log.Info("config reloaded", fields...)
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	if _, err := daemon.SdNotify(false, daemon.SdNotifyStopping); err != nil {
		a.log.Debug("sd_notify stopping failed", logx.Err(err))
	}

	// Cancel the run context first so background loops start unwinding immediately.
	a.sup.Cancel()

	step := func(name string, limit time.Duration, fn func(context.Context) error) {
		a.step(ctx, name, limit, fn)
	}

	step("http", 2*time.Second, func(c context.Context) error {
		if a.http != nil {
			return a.http.Shutdown(c)
		}
		return nil
	})
	step("commands", 3*time.Second, func(c context.Context) error {
		if a.cmdm == nil {
			return nil
		}
		if sup := a.cmdm.Supervisor(); sup != nil {
			return sup.Wait(c)
		}
		return nil
	})
	// Storage closes after this step, so the budget covers one detached unit.
	step("engine", engineStopBudget(a.engine.Options()), func(c context.Context) error { return a.engine.Stop(c) })
	step("adapter", 2*time.Second, func(c context.Context) error {
		if a.adapter != nil {
			return a.adapter.Stop(c)
		}
		return nil
	})
	step("storage", 1*time.Second, func(c context.Context) error { return a.store.Close() })

	// Finally, wait for supervised goroutines (config watch/reload, command dispatcher, etc.)
	step("supervisor", 2*time.Second, func(c context.Context) error { return a.sup.Wait(c) })

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}

// StopTimeout is the sum of the Stop step budgets.
func (a *App) StopTimeout() time.Duration {
	return 10*time.Second + engineStopBudget(a.engine.Options())
}

// engineStopBudget bounds the engine stop step. A cancelled pass still
// finishes the unit it started, which may take up to UnitTimeout.
func engineStopBudget(opt trigger.Options) time.Duration {
	return opt.UnitTimeout + 5*time.Second
}

// step runs one shutdown step with an upper bound so one component can't
// stall the whole stop.
func (a *App) step(ctx context.Context, name string, limit time.Duration, fn func(context.Context) error) {
	start := time.Now()
	a.log.Debug("stop step begin", logx.String("name", name), logx.Duration("max", limit))

	stepCtx := ctx
	if limit > 0 {
		// respect the caller's deadline; never extend it
		if dl, ok := ctx.Deadline(); ok {
			if rem := time.Until(dl); rem < limit {
				limit = max(rem, 0)
			}
		}
		if limit > 0 {
			var cancel context.CancelFunc
			stepCtx, cancel = context.WithTimeout(ctx, limit)
			defer cancel()
		}
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
			a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
		}
		took := time.Since(start)
		if took >= 500*time.Millisecond {
			a.log.Info("stop step end", logx.String("name", name), logx.Duration("took", took))
		} else {
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", took))
		}
	case <-stepCtx.Done():
		// fn must honor stepCtx; if it doesn't, log when it eventually returns.
		a.log.Warn("stop step deadline reached (continuing)",
			logx.String("name", name),
			logx.Err(stepCtx.Err()),
			logx.Duration("elapsed", time.Since(start)),
		)
		go func() {
			err := <-done
			took := time.Since(start)
			if err != nil {
				a.log.Warn("stop step finished after deadline", logx.String("name", name), logx.Err(err), logx.Duration("took", took))
			} else {
				a.log.Info("stop step finished after deadline", logx.String("name", name), logx.Duration("took", took))
			}
		}()
	}
}
