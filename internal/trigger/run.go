package trigger

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"festivalbot/internal/greeting"
	"festivalbot/internal/groupfilter"
	"festivalbot/internal/holiday"
	"festivalbot/internal/storage"
	"festivalbot/pkg/logx"
)

// RunScheduled runs the normal path for every known conversation. It fails
// with ErrBusy when another pass is running.
func (e *Engine) RunScheduled(ctx context.Context) (Report, error) {
	if e.isStopped() {
		return Report{}, ErrStopped
	}
	select {
	case e.gate <- struct{}{}:
	default:
		e.log.Warn("scheduled tick skipped, a pass is already running")
		return Report{}, ErrBusy
	}
	defer func() { <-e.gate }()
	if e.isStopped() {
		return Report{}, ErrStopped
	}

	opt := e.options()
	rep := e.newReport(KindScheduled, opt)
	if len(rep.Occurrences) == 0 {
		e.log.Debug("no eligible holiday today", logx.String("date", rep.Date.String()))
		return e.finish(rep), nil
	}

	rep.Targets = e.targets(ctx, opt)
	if len(rep.Targets) == 0 {
		e.log.Warn("no known conversations, greetings will not be sent", logx.String("date", rep.Date.String()))
		return e.finish(rep), nil
	}
	err := e.pass(ctx, &rep, opt, false)
	return e.finish(rep), err
}

// Manual runs the normal path for one conversation and registers it as a
// known target.
func (e *Engine) Manual(ctx context.Context, conversationID string) (Report, error) {
	opt := e.options()
	if !opt.AllowManual {
		return Report{}, ErrManualDisabled
	}
	return e.runOne(ctx, KindManual, conversationID, opt)
}

// Debug runs the path for one conversation without the ledger check.
// Successful dispatches are still recorded.
func (e *Engine) Debug(ctx context.Context, conversationID string, privileged bool) (Report, error) {
	if !privileged {
		return Report{}, ErrUnauthorized
	}
	return e.runOne(ctx, KindDebug, conversationID, e.options())
}

func (e *Engine) runOne(ctx context.Context, kind Kind, conversationID string, opt Options) (Report, error) {
	conversationID = strings.TrimSpace(conversationID)
	if conversationID == "" {
		return Report{}, fmt.Errorf("%w: empty conversation id", ErrNotAllowed)
	}
	if e.isStopped() {
		return Report{}, ErrStopped
	}

	rep := e.newReport(kind, opt)
	if len(rep.Occurrences) == 0 {
		return rep, ErrNoHoliday
	}
	if !groupfilter.IsAllowed(conversationID, opt.Filter) {
		return rep, ErrNotAllowed
	}
	e.registerTarget(ctx, conversationID)

	select {
	case e.gate <- struct{}{}:
	case <-ctx.Done():
		return rep, ctx.Err()
	}
	defer func() { <-e.gate }()
	// Stop may have drained the gate while this request waited.
	if e.isStopped() {
		return rep, ErrStopped
	}

	rep.Targets = []string{conversationID}
	err := e.pass(ctx, &rep, opt, kind == KindDebug)
	return e.finish(rep), err
}

func (e *Engine) isStopped() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.stopped
}

func (e *Engine) newReport(kind Kind, opt Options) Report {
	now := e.now()
	rep := Report{Kind: kind, Date: holiday.Today(now, opt.Location), Started: now}
	for _, o := range opt.Catalog.Resolve(rep.Date) {
		if opt.RepeatMode.Eligible(o) {
			rep.Occurrences = append(rep.Occurrences, o)
		}
	}
	return rep
}

func (e *Engine) finish(rep Report) Report {
	rep.Duration = e.now().Sub(rep.Started)
	if rep.Kind == KindScheduled || len(rep.Deliveries) > 0 {
		e.mu.Lock()
		last := rep
		e.last = &last
		e.mu.Unlock()
	}
	return rep
}

// targets returns the persisted targets plus whitelist entries, filtered.
// A ledger read failure falls back to the whitelist.
func (e *Engine) targets(ctx context.Context, opt Options) []string {
	var ids []string
	known, err := e.store.Targets(ctx)
	if err != nil {
		e.log.Warn("loading known conversations failed", logx.Err(err))
	}
	for _, t := range known {
		ids = append(ids, t.ConversationID)
	}
	if opt.Filter.Mode == groupfilter.ModeWhitelist {
		for _, id := range opt.Filter.List {
			if id = strings.TrimSpace(id); id != "" {
				ids = append(ids, id)
			}
		}
	}
	slices.Sort(ids)
	ids = slices.Compact(ids)

	out := ids[:0]
	for _, id := range ids {
		if groupfilter.IsAllowed(id, opt.Filter) {
			out = append(out, id)
		}
	}
	return out
}

func (e *Engine) registerTarget(ctx context.Context, conversationID string) {
	added, err := e.store.RegisterTarget(ctx, conversationID, e.now())
	if err != nil {
		e.log.Warn("registering conversation failed", logx.String("conversation", conversationID), logx.Err(err))
		return
	}
	if added {
		e.log.Info("conversation registered", logx.String("conversation", conversationID))
		e.publish(EventTargetRegistered, DeliveryEvent{ConversationID: conversationID})
	}
}

// pass walks occurrences then targets. Cancellation is checked between
// units; a started unit always completes.
func (e *Engine) pass(ctx context.Context, rep *Report, opt Options, debug bool) error {
	e.publish(EventRunStarted, RunEvent{
		Kind:        rep.Kind,
		Date:        rep.Date.String(),
		Targets:     len(rep.Targets),
		Occurrences: len(rep.Occurrences),
	})
	e.log.Info("trigger pass started",
		logx.String("kind", string(rep.Kind)),
		logx.String("date", rep.Date.String()),
		logx.Int("targets", len(rep.Targets)),
		logx.Int("holidays", len(rep.Occurrences)),
	)

	var err error
loop:
	for _, occ := range rep.Occurrences {
		for _, conv := range rep.Targets {
			if err = ctx.Err(); err != nil {
				break loop
			}
			rep.Deliveries = append(rep.Deliveries, e.deliver(ctx, rep.Kind, conv, occ, opt, debug))
		}
	}

	failed := rep.Count(StatusDispatchFailed) + rep.Count(StatusPersistFailed)
	e.publish(EventRunFinished, RunEvent{
		Kind:        rep.Kind,
		Date:        rep.Date.String(),
		Targets:     len(rep.Targets),
		Occurrences: len(rep.Occurrences),
		Dispatched:  rep.Sent(),
		Failed:      failed,
		Duration:    e.now().Sub(rep.Started),
	})
	e.log.Info("trigger pass finished",
		logx.String("kind", string(rep.Kind)),
		logx.Int("sent", rep.Sent()),
		logx.Int("skipped", rep.Count(StatusSkipped)),
		logx.Int("failed", failed),
		logx.Err(err),
	)
	return err
}

// deliver runs one check-generate-dispatch-record unit under the per-key
// locks. It runs on a context detached from ctx.
func (e *Engine) deliver(ctx context.Context, kind Kind, conv string, occ holiday.Occurrence, opt Options, debug bool) Delivery {
	d := Delivery{
		Kind:           kind,
		ConversationID: conv,
		HolidayID:      occ.Holiday.ID,
		HolidayName:    occ.Holiday.Name,
		Date:           occ.Date,
		DayIndex:       occ.DayIndex,
	}
	key := storage.Key{ConversationID: conv, HolidayID: occ.Holiday.ID, Date: occ.Date.String()}
	log := e.log.With(logx.String("conversation", conv), logx.String("holiday", occ.Holiday.ID), logx.String("date", key.Date))

	uctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), opt.UnitTimeout)
	defer cancel()

	defer e.keys.lock(key.String())()
	if unlock, err := e.store.Lock(uctx, key); err != nil {
		log.Warn("ledger lock unavailable, continuing without it", logx.Err(err))
	} else {
		defer unlock()
	}

	if !debug {
		delivered, err := e.store.HasDelivered(uctx, key)
		if err != nil {
			log.Warn("ledger check failed, treating as not delivered", logx.Err(err))
		}
		if delivered {
			d.Status = StatusSkipped
			log.Debug("greeting already delivered")
			e.publishDelivery(EventSkipped, d)
			return d
		}
	}

	chat, _, _ := strings.Cut(conv, "/")
	res := e.gen.Generate(uctx, greeting.RequestFor(occ, opt.Style, opt.MaxRetries, "目标群 ID: "+chat))
	d.Text, d.ViaFallback, d.Attempts = res.Text, res.ViaFallback, res.Attempts

	if err := e.limiter.Wait(uctx); err != nil {
		return e.dispatchFailed(log, d, err)
	}
	if err := e.disp.Dispatch(uctx, conv, res.Text); err != nil {
		return e.dispatchFailed(log, d, err)
	}

	rec := storage.NewRecord(key, res.Text, e.now(), debug)
	if err := e.store.RecordDelivery(uctx, rec); err != nil {
		d.Status, d.Err = StatusPersistFailed, err
		log.Error("greeting sent but ledger write failed", logx.Err(err))
		e.publishDelivery(EventPersistFailed, d)
		return d
	}

	d.Status = StatusDispatched
	log.Info("greeting dispatched",
		logx.Bool("debug", debug),
		logx.Bool("fallback", res.ViaFallback),
		logx.Int("attempts", res.Attempts),
		logx.Int("day_index", occ.DayIndex),
	)
	e.publishDelivery(EventDispatched, d)
	return d
}

func (e *Engine) dispatchFailed(log logx.Logger, d Delivery, err error) Delivery {
	d.Status, d.Err = StatusDispatchFailed, fmt.Errorf("%w: %w", ErrDispatch, err)
	log.Warn("greeting dispatch failed", logx.Err(err))
	e.publishDelivery(EventDispatchFailed, d)
	return d
}

