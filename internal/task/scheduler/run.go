package scheduler

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"festivalbot/internal/eventbus"
	"festivalbot/pkg/logx"
)

// ErrOverlapSkip is returned when a run is skipped because the previous one
// is still in-flight.
var ErrOverlapSkip = errors.New("scheduler: skipped, previous run still in-flight")

func (s *Service) run(ctx context.Context, d *scheduleDef) (err error) {
	if !d.state.tryAcquire() {
		s.log.Warn("schedule trigger skipped", logx.String("task", d.name), logx.Err(ErrOverlapSkip))
		s.publish(EventTaskSkipped, TaskEvent{Name: d.name, Started: time.Now(), Error: ErrOverlapSkip.Error()})
		return ErrOverlapSkip
	}
	defer d.state.release()

	runCtx := ctx
	if d.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	start := time.Now()
	s.publish(EventTaskStarted, TaskEvent{Name: d.name, Started: start})

	// A panicking job must not take the cron goroutine down with it.
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic: %v", r)
				s.log.Error("task.panic", logx.String("task", d.name), logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
			}
		}()
		err = d.job(runCtx)
	}()

	dur := time.Since(start)
	item := HistoryItem{Name: d.name, Started: start, Duration: dur}
	if err != nil {
		item.Error = err.Error()
		s.log.Warn("task.failed", logx.String("task", d.name), logx.Err(err), logx.Duration("dur", dur))
		s.publish(EventTaskFailed, TaskEvent{Name: d.name, Started: start, Duration: dur, Error: item.Error})
	} else {
		s.log.Debug("task.completed", logx.String("task", d.name), logx.Duration("dur", dur))
		s.publish(EventTaskFinished, TaskEvent{Name: d.name, Started: start, Duration: dur})
	}
	s.remember(item)
	return err
}

func (s *Service) remember(item HistoryItem) {
	s.mu.Lock()
	size := s.cfg.HistorySize
	s.mu.Unlock()
	if size <= 0 {
		size = defaultHistorySize
	}
	s.hmu.Lock()
	s.history = append(s.history, item)
	if over := len(s.history) - size; over > 0 {
		s.history = append(s.history[:0:0], s.history[over:]...)
	}
	s.hmu.Unlock()
}

func (s *Service) publish(typ string, data TaskEvent) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(eventbus.Event{Type: typ, Time: time.Now(), Data: data})
}
