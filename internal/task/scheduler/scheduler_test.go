package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"festivalbot/internal/eventbus"
	"festivalbot/pkg/logx"
)

func TestParseScheduleVariants(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		raw   string
		kind  SpecKind
		every time.Duration
	}{
		{name: "cron", raw: "*/5 * * * *", kind: SpecCron},
		{name: "prefixed cron", raw: "cron:0 0 * * *", kind: SpecCron},
		{name: "descriptor", raw: "@every 168h", kind: SpecCron},
		{name: "duration", raw: "10m", kind: SpecInterval, every: 10 * time.Minute},
		{name: "prefixed interval", raw: "every:45s", kind: SpecInterval, every: 45 * time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseSchedule(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.kind, got.Kind)
			assert.Equal(t, tt.every, got.Every)
		})
	}

	for _, raw := range []string{"", "cron:", "every:-1m", "0s", "soon"} {
		_, err := ParseSchedule(raw)
		assert.Error(t, err, "raw %q", raw)
	}
}

func TestParseHHMM(t *testing.T) {
	t.Parallel()

	h, m, err := parseHHMM("08:05")
	require.NoError(t, err)
	assert.Equal(t, 8, h)
	assert.Equal(t, 5, m)

	for _, raw := range []string{"24:00", "8", "08:60", "aa:bb"} {
		_, _, err := parseHHMM(raw)
		assert.Error(t, err, "raw %q", raw)
	}
}

func TestAddDailyUsesTimezone(t *testing.T) {
	t.Parallel()

	s := New(Config{Timezone: "Asia/Shanghai"}, logx.Nop(), nil)
	require.NoError(t, s.AddDaily("daily", "08:30", time.Minute, func(context.Context) error { return nil }))
	s.Start(context.Background())
	defer s.Stop(context.Background())

	next := s.Next("daily")
	require.False(t, next.IsZero())
	assert.Equal(t, "Asia/Shanghai", next.Location().String())
	assert.Equal(t, 8, next.Hour())
	assert.Equal(t, 30, next.Minute())

	s.Apply(Config{Timezone: "UTC"})
	next = s.Next("daily")
	require.False(t, next.IsZero())
	assert.Equal(t, "UTC", next.Location().String())
	assert.Equal(t, 8, next.Hour())

	assert.Error(t, s.AddDaily("bad", "25:00", 0, func(context.Context) error { return nil }))
}

func TestTriggerSkipsWhileRunning(t *testing.T) {
	t.Parallel()

	bus := eventbus.New()
	events, unsub := bus.Subscribe(16)
	defer unsub()

	s := New(Config{}, logx.Nop(), bus)
	release := make(chan struct{})
	var runs atomic.Int32
	require.NoError(t, s.AddInterval("slow", time.Hour, 0, func(ctx context.Context) error {
		runs.Add(1)
		<-release
		return nil
	}))

	done := make(chan error, 1)
	go func() { done <- s.Trigger(context.Background(), "slow") }()
	require.Eventually(t, func() bool { return runs.Load() == 1 }, time.Second, 5*time.Millisecond)

	assert.ErrorIs(t, s.Trigger(context.Background(), "slow"), ErrOverlapSkip)
	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, int32(1), runs.Load())

	var types []string
	for len(types) < 3 {
		select {
		case e := <-events:
			types = append(types, e.Type)
		case <-time.After(time.Second):
			t.Fatalf("missing events, got %v", types)
		}
	}
	assert.ElementsMatch(t, []string{EventTaskStarted, EventTaskSkipped, EventTaskFinished}, types)
}

func TestTriggerTimeoutPanicAndHistory(t *testing.T) {
	t.Parallel()

	s := New(Config{HistorySize: 2}, logx.Nop(), nil)
	require.NoError(t, s.AddSchedule("timeout", "1h", 10*time.Millisecond, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}))
	require.NoError(t, s.AddSchedule("panics", "@daily", 0, func(context.Context) error { panic("boom") }))
	require.NoError(t, s.AddSchedule("ok", "0 3 * * *", 0, func(context.Context) error { return nil }))

	assert.ErrorIs(t, s.Trigger(context.Background(), "timeout"), context.DeadlineExceeded)
	err := s.Trigger(context.Background(), "panics")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panic: boom")
	require.NoError(t, s.Trigger(context.Background(), "ok"))
	assert.ErrorIs(t, s.Trigger(context.Background(), "missing"), ErrUnknownSchedule)

	snap := s.Snapshot()
	require.Len(t, snap.History, 2)
	assert.Equal(t, "panics", snap.History[0].Name)
	assert.Equal(t, "ok", snap.History[1].Name)
	assert.Len(t, snap.Schedules, 3)
}

func TestRemoveAndReplace(t *testing.T) {
	t.Parallel()

	s := New(Config{}, logx.Nop(), nil)
	var which atomic.Value
	require.NoError(t, s.AddCron("job", "0 1 * * *", 0, func(context.Context) error { which.Store("first"); return nil }))
	require.NoError(t, s.AddCron("job", "0 2 * * *", 0, func(context.Context) error { which.Store("second"); return nil }))
	assert.Len(t, s.Snapshot().Schedules, 1)

	require.NoError(t, s.Trigger(context.Background(), "job"))
	assert.Equal(t, "second", which.Load())

	assert.True(t, s.Remove("job"))
	assert.False(t, s.Remove("job"))
	assert.Empty(t, s.Snapshot().Schedules)

	assert.Error(t, s.AddCron("bad", "not a spec", 0, func(context.Context) error { return nil }))
	assert.Error(t, s.AddCron("", "@daily", 0, func(context.Context) error { return nil }))
	assert.Error(t, s.AddInterval("zero", 0, 0, func(context.Context) error { return nil }))
}

func TestStopCancelsRunningJobs(t *testing.T) {
	t.Parallel()

	s := New(Config{}, logx.Nop(), nil)
	started := make(chan struct{})
	stopped := make(chan error, 1)
	require.NoError(t, s.AddCron("fast", "* * * * * *", 0, func(ctx context.Context) error {
		select {
		case started <- struct{}{}:
		default:
			return nil
		}
		<-ctx.Done()
		stopped <- ctx.Err()
		return ctx.Err()
	}))
	s.Start(context.Background())

	select {
	case <-started:
	case <-time.After(3 * time.Second):
		t.Fatal("job never started")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	s.Stop(ctx)

	select {
	case err := <-stopped:
		assert.True(t, errors.Is(err, context.Canceled))
	default:
		t.Fatal("running job was not cancelled before Stop returned")
	}
	assert.False(t, s.Snapshot().Running)
}
