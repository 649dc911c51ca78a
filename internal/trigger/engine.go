// Package trigger decides when greetings go out and to whom, and makes sure
// each (conversation, holiday, date) is delivered at most once.
//
// A pass resolves today's holidays, walks the known conversations through
// the group filter and the ledger, generates a greeting, dispatches it and
// records the delivery. One pass runs at a time per process: scheduled ticks
// are rejected while a pass is running, manual and debug requests wait.
package trigger

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"festivalbot/internal/eventbus"
	"festivalbot/internal/greeting"
	"festivalbot/internal/holiday"
	"festivalbot/internal/storage"
	"festivalbot/internal/task/scheduler"
	"festivalbot/pkg/logx"
)

const (
	dailyJob = "festival.daily"
	pruneJob = "festival.prune"
)

// Dispatcher delivers text to a conversation.
type Dispatcher interface {
	Dispatch(ctx context.Context, conversationID, text string) error
}

// Generator produces greeting text; it never fails.
type Generator interface {
	Generate(ctx context.Context, req greeting.Request) greeting.Result
}

// Clock runs the daily tick and the periodic prune.
type Clock interface {
	AddDaily(name, atHHMM string, timeout time.Duration, job scheduler.Job) error
	AddInterval(name string, every, timeout time.Duration, job scheduler.Job) error
	Apply(cfg scheduler.Config)
	Next(name string) time.Time
	Start(ctx context.Context)
	Stop(ctx context.Context)
}

// Deps are the collaborators of an Engine.
type Deps struct {
	Store      storage.Store
	Generator  Generator
	Dispatcher Dispatcher
	// Clock is optional; without it only manual and debug runs happen.
	Clock Clock
	Bus   eventbus.Bus
	Log   logx.Logger
	// Now defaults to time.Now.
	Now func() time.Time
}

type Engine struct {
	store storage.Store
	gen   Generator
	disp  Dispatcher
	clock Clock
	bus   eventbus.Bus
	log   logx.Logger
	now   func() time.Time

	mu      sync.RWMutex
	opt     Options
	started bool
	stopped bool
	last    *Report

	// gate admits one pass at a time.
	gate    chan struct{}
	keys    keyLocker
	limiter *rate.Limiter
}

func New(deps Deps, opt Options) *Engine {
	log := deps.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	opt = opt.withDefaults()
	return &Engine{
		store:   deps.Store,
		gen:     deps.Generator,
		disp:    deps.Dispatcher,
		clock:   deps.Clock,
		bus:     deps.Bus,
		log:     log.With(logx.String("comp", "trigger")),
		now:     now,
		opt:     opt,
		gate:    make(chan struct{}, 1),
		limiter: rate.NewLimiter(limitOf(opt.RatePerSec), 1),
	}
}

func limitOf(perSec float64) rate.Limit {
	if perSec <= 0 {
		return rate.Inf
	}
	return rate.Limit(perSec)
}

func (e *Engine) options() Options {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.opt
}

// Options returns the current policy.
func (e *Engine) Options() Options { return e.options() }

// Today is the current civil date in the engine timezone.
func (e *Engine) Today() holiday.Date {
	return holiday.Today(e.now(), e.options().Location)
}

// Start registers the daily tick and the prune job and starts the clock.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stopped {
		return ErrStopped
	}
	if e.started || e.clock == nil {
		e.started = true
		return nil
	}
	if err := e.registerLocked(); err != nil {
		return err
	}
	if err := e.clock.AddInterval(pruneJob, e.opt.PruneEvery, time.Minute, func(ctx context.Context) error {
		_, err := e.Prune(ctx)
		return err
	}); err != nil {
		return err
	}
	e.clock.Start(ctx)
	e.started = true
	e.log.Info("trigger engine started",
		logx.String("tz", e.opt.Location.String()),
		logx.String("at", e.opt.TriggerTime),
		logx.String("repeat_mode", string(e.opt.RepeatMode)),
	)
	return nil
}

func (e *Engine) registerLocked() error {
	e.clock.Apply(scheduler.Config{Timezone: e.opt.Location.String()})
	return e.clock.AddDaily(dailyJob, e.opt.TriggerTime, 0, func(ctx context.Context) error {
		_, err := e.RunScheduled(ctx)
		if errors.Is(err, ErrBusy) {
			return nil
		}
		return err
	})
}

// Stop cancels the pending clock wait and waits for an in-flight pass.
// Later runs fail with ErrStopped.
func (e *Engine) Stop(ctx context.Context) error {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return nil
	}
	e.stopped = true
	clock := e.clock
	started := e.started
	e.mu.Unlock()

	if clock != nil && started {
		clock.Stop(ctx)
	}
	// Drain a manual or debug pass that is still running.
	select {
	case e.gate <- struct{}{}:
		<-e.gate
	case <-ctx.Done():
		e.log.Warn("stop timed out waiting for running pass", logx.Err(ctx.Err()))
		return ctx.Err()
	}
	e.log.Info("trigger engine stopped")
	return nil
}

// Apply swaps the policy. A changed trigger time or timezone re-registers
// the daily tick.
func (e *Engine) Apply(opt Options) {
	opt = opt.withDefaults()

	e.mu.Lock()
	defer e.mu.Unlock()
	old := e.opt
	e.opt = opt
	e.limiter.SetLimit(limitOf(opt.RatePerSec))

	if e.clock == nil || !e.started || e.stopped {
		return
	}
	if old.TriggerTime != opt.TriggerTime || old.Location.String() != opt.Location.String() {
		if err := e.registerLocked(); err != nil {
			e.log.Error("daily trigger re-register failed", logx.Err(err))
			return
		}
		e.log.Info("daily trigger rescheduled", logx.String("tz", opt.Location.String()), logx.String("at", opt.TriggerTime))
	}
}

// State describes the engine for status surfaces.
type State struct {
	Running     bool
	NextRun     time.Time
	Timezone    string
	TriggerTime string
	RepeatMode  RepeatMode
	FilterMode  string
	AllowManual bool
	Last        *Report
}

func (e *Engine) State() State {
	e.mu.RLock()
	st := State{
		Timezone:    e.opt.Location.String(),
		TriggerTime: e.opt.TriggerTime,
		RepeatMode:  e.opt.RepeatMode,
		FilterMode:  string(e.opt.Filter.Mode),
		AllowManual: e.opt.AllowManual,
		Last:        e.last,
	}
	clock, started := e.clock, e.started
	e.mu.RUnlock()

	if st.FilterMode == "" {
		st.FilterMode = "disabled"
	}
	st.Running = len(e.gate) > 0
	if clock != nil && started {
		st.NextRun = clock.Next(dailyJob)
	}
	return st
}

// Prune removes ledger records older than the retention horizon.
func (e *Engine) Prune(ctx context.Context) (int, error) {
	opt := e.options()
	days := int(opt.Retention / (24 * time.Hour))
	before := holiday.Today(e.now(), opt.Location).AddDays(-days)
	n, err := e.store.Prune(ctx, before.String())
	if err != nil {
		e.log.Warn("ledger prune failed", logx.Err(err))
		return 0, err
	}
	e.log.Info("ledger pruned", logx.String("before", before.String()), logx.Int("removed", n))
	return n, nil
}
