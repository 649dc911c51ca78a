package trigger

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"festivalbot/internal/eventbus"
	"festivalbot/internal/greeting"
	"festivalbot/internal/groupfilter"
	"festivalbot/internal/holiday"
	"festivalbot/internal/storage"
	"festivalbot/internal/task/scheduler"
	"festivalbot/pkg/logx"
)

var shanghai = mustLoad("Asia/Shanghai")

func mustLoad(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic(err)
	}
	return loc
}

type sent struct {
	conv, text string
}

type fakeDispatcher struct {
	mu    sync.Mutex
	sent  []sent
	fail  error
	block chan struct{}
	onHit func()
}

func (f *fakeDispatcher) Dispatch(ctx context.Context, conv, text string) error {
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.onHit != nil {
		f.onHit()
	}
	if f.fail != nil {
		return f.fail
	}
	f.sent = append(f.sent, sent{conv: conv, text: text})
	return nil
}

func (f *fakeDispatcher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

type fakeGenerator struct{}

func (fakeGenerator) Generate(_ context.Context, req greeting.Request) greeting.Result {
	return greeting.Result{Text: req.HolidayName + "快乐 " + req.Date.String(), Attempts: 1}
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) set(y int, m time.Month, d int) {
	c.mu.Lock()
	c.now = time.Date(y, m, d, 8, 0, 0, 0, shanghai)
	c.mu.Unlock()
}

type fixture struct {
	engine *Engine
	store  storage.Store
	disp   *fakeDispatcher
	clock  *clock
}

func customCatalog(t *testing.T, raw string) *holiday.Catalog {
	t.Helper()
	defs, _, err := holiday.ParseCustom(json.RawMessage(raw))
	require.NoError(t, err)
	return holiday.NewCatalog(defs...)
}

func newFixture(t *testing.T, opt Options, deps ...func(*Deps)) *fixture {
	t.Helper()
	st, err := storage.Open(storage.Config{Driver: "file", Path: filepath.Join(t.TempDir(), "ledger")}, logx.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	f := &fixture{store: st, disp: &fakeDispatcher{}, clock: &clock{}}
	f.clock.set(2025, time.August, 3)

	if opt.Location == nil {
		opt.Location = shanghai
	}
	d := Deps{Store: st, Generator: fakeGenerator{}, Dispatcher: f.disp, Log: logx.Nop(), Now: f.clock.Now}
	for _, fn := range deps {
		fn(&d)
	}
	f.engine = New(d, opt)
	return f
}

func (f *fixture) register(t *testing.T, ids ...string) {
	t.Helper()
	for _, id := range ids {
		_, err := f.store.RegisterTarget(context.Background(), id, f.clock.Now())
		require.NoError(t, err)
	}
}

func qixiKey(conv string) storage.Key {
	return storage.Key{ConversationID: conv, HolidayID: "qixi", Date: "2025-08-03"}
}

func TestQixiCustomDateScenario(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Options{Catalog: customCatalog(t, `[{"name":"七夕节","date":"0803"}]`)})
	f.register(t, "-100123")

	rep, err := f.engine.RunScheduled(context.Background())
	require.NoError(t, err)
	require.Len(t, rep.Occurrences, 1)
	assert.Equal(t, "qixi", rep.Occurrences[0].Holiday.ID)
	assert.Equal(t, 1, rep.Sent())

	require.Equal(t, 1, f.disp.count())
	assert.Equal(t, "-100123", f.disp.sent[0].conv)
	assert.Equal(t, "七夕节快乐 2025-08-03", f.disp.sent[0].text)

	hist, err := f.store.History(context.Background(), qixiKey("-100123"))
	require.NoError(t, err)
	require.Len(t, hist, 1)
	assert.Equal(t, "qixi", hist[0].HolidayID)
	assert.Equal(t, "2025-08-03", hist[0].Date)
	assert.False(t, hist[0].Debug)
	assert.Equal(t, storage.TextHash(hist[0].Text), hist[0].TextHash)
}

func TestNormalPathIsIdempotent(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Options{Catalog: customCatalog(t, `["0803","七夕节"]`), AllowManual: true})
	f.register(t, "-1")

	_, err := f.engine.RunScheduled(context.Background())
	require.NoError(t, err)
	rep, err := f.engine.RunScheduled(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Count(StatusSkipped))
	assert.Zero(t, rep.Sent())

	rep, err = f.engine.Manual(context.Background(), "-1")
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Count(StatusSkipped))

	assert.Equal(t, 1, f.disp.count())
	hist, err := f.store.History(context.Background(), qixiKey("-1"))
	require.NoError(t, err)
	assert.Len(t, hist, 1)
}

func TestDebugBypassesLedgerAndAppends(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Options{Catalog: customCatalog(t, `["0803","七夕节"]`), AllowManual: true})

	for range 2 {
		rep, err := f.engine.Debug(context.Background(), "-1", true)
		require.NoError(t, err)
		assert.Equal(t, 1, rep.Count(StatusDispatched))
		ok, err := f.store.HasDelivered(context.Background(), qixiKey("-1"))
		require.NoError(t, err)
		assert.True(t, ok)
	}
	assert.Equal(t, 2, f.disp.count())

	hist, err := f.store.History(context.Background(), qixiKey("-1"))
	require.NoError(t, err)
	require.Len(t, hist, 2)
	assert.True(t, hist[0].Debug)
	assert.NotEqual(t, hist[0].ID, hist[1].ID)

	rep, err := f.engine.Manual(context.Background(), "-1")
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Count(StatusSkipped))
	assert.Equal(t, 2, f.disp.count())

	targets, err := f.store.Targets(context.Background())
	require.NoError(t, err)
	require.Len(t, targets, 1)
	assert.Equal(t, "-1", targets[0].ConversationID)
}

func TestRepeatModes(t *testing.T) {
	t.Parallel()

	const fest = `[{"id":"fest","name":"测试节","date":"0315","duration_days":3}]`
	tests := []struct {
		mode RepeatMode
		want []int // dispatches on 03-15, 03-16, 03-17
	}{
		{RepeatEveryDay, []int{1, 1, 1}},
		{RepeatFirstDay, []int{1, 0, 0}},
	}
	for _, tt := range tests {
		t.Run(string(tt.mode), func(t *testing.T) {
			t.Parallel()

			f := newFixture(t, Options{Catalog: customCatalog(t, fest), RepeatMode: tt.mode})
			f.register(t, "-1")

			for i, want := range tt.want {
				f.clock.set(2025, time.March, 15+i)
				rep, err := f.engine.RunScheduled(context.Background())
				require.NoError(t, err)
				assert.Equal(t, want, rep.Sent(), "day %d", i)
				if want > 0 {
					assert.Equal(t, i, rep.Deliveries[0].DayIndex)
				}
			}
		})
	}
}

func TestGroupFilter(t *testing.T) {
	t.Parallel()

	cat := customCatalog(t, `["0803","七夕节"]`)

	t.Run("whitelist", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, Options{Catalog: cat, AllowManual: true, Filter: groupfilter.Config{Mode: groupfilter.ModeWhitelist, List: []string{"A"}}})
		f.register(t, "B")

		rep, err := f.engine.RunScheduled(context.Background())
		require.NoError(t, err)
		assert.Equal(t, []string{"A"}, rep.Targets)
		require.Equal(t, 1, f.disp.count())
		assert.Equal(t, "A", f.disp.sent[0].conv)

		_, err = f.engine.Manual(context.Background(), "B")
		assert.ErrorIs(t, err, ErrNotAllowed)
	})

	t.Run("blacklist", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, Options{Catalog: cat, AllowManual: true, Filter: groupfilter.Config{Mode: groupfilter.ModeBlacklist, List: []string{"A"}}})
		f.register(t, "A", "B", "A/7")

		rep, err := f.engine.RunScheduled(context.Background())
		require.NoError(t, err)
		assert.Equal(t, []string{"B"}, rep.Targets)

		_, err = f.engine.Manual(context.Background(), "A")
		assert.ErrorIs(t, err, ErrNotAllowed)
		_, err = f.engine.Debug(context.Background(), "A/7", true)
		assert.ErrorIs(t, err, ErrNotAllowed)
		assert.Equal(t, 1, f.disp.count())
	})
}

func TestDispatchFailureLeavesNoRecord(t *testing.T) {
	t.Parallel()

	bus := eventbus.New()
	events, unsub := bus.Subscribe(32)
	defer unsub()

	f := newFixture(t, Options{Catalog: customCatalog(t, `["0803","七夕节"]`)}, func(d *Deps) { d.Bus = bus })
	f.register(t, "-1")
	f.disp.fail = errors.New("chat not found")

	rep, err := f.engine.RunScheduled(context.Background())
	require.NoError(t, err)
	require.Len(t, rep.Failed(), 1)
	assert.ErrorIs(t, rep.Failed()[0].Err, ErrDispatch)

	ok, err := f.store.HasDelivered(context.Background(), qixiKey("-1"))
	require.NoError(t, err)
	assert.False(t, ok)

	f.disp.mu.Lock()
	f.disp.fail = nil
	f.disp.mu.Unlock()
	rep, err = f.engine.RunScheduled(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Count(StatusDispatched))

	var types []string
	for len(events) > 0 {
		types = append(types, (<-events).Type)
	}
	assert.Contains(t, types, EventDispatchFailed)
	assert.Contains(t, types, EventDispatched)
	assert.Contains(t, types, EventRunStarted)
	assert.Contains(t, types, EventRunFinished)
}

func TestEntryPointErrors(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Options{Catalog: customCatalog(t, `["0803","七夕节"]`)})

	_, err := f.engine.Manual(context.Background(), "-1")
	assert.ErrorIs(t, err, ErrManualDisabled)
	_, err = f.engine.Debug(context.Background(), "-1", false)
	assert.ErrorIs(t, err, ErrUnauthorized)

	f.engine.Apply(Options{Location: shanghai, Catalog: holiday.NewCatalog(), AllowManual: true})
	f.clock.set(2025, time.August, 4)
	_, err = f.engine.Manual(context.Background(), "-1")
	assert.ErrorIs(t, err, ErrNoHoliday)
	_, err = f.engine.Debug(context.Background(), "-1", true)
	assert.ErrorIs(t, err, ErrNoHoliday)

	rep, err := f.engine.RunScheduled(context.Background())
	require.NoError(t, err)
	assert.Empty(t, rep.Deliveries)
	assert.Zero(t, f.disp.count())
}

func TestScheduledTickRejectedWhileBusy(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Options{Catalog: customCatalog(t, `["0803","七夕节"]`), AllowManual: true})
	f.disp.block = make(chan struct{})

	done := make(chan error, 1)
	go func() {
		_, err := f.engine.Manual(context.Background(), "-1")
		done <- err
	}()
	require.Eventually(t, func() bool { return f.engine.State().Running }, time.Second, 5*time.Millisecond)

	_, err := f.engine.RunScheduled(context.Background())
	assert.ErrorIs(t, err, ErrBusy)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = f.engine.Debug(ctx, "-1", true)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(f.disp.block)
	require.NoError(t, <-done)
	assert.Equal(t, 1, f.disp.count())
}

func TestCancellationFinishesCurrentUnit(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Options{Catalog: customCatalog(t, `["0803","七夕节"]`)})
	f.register(t, "-1", "-2")

	ctx, cancel := context.WithCancel(context.Background())
	f.disp.onHit = cancel

	rep, err := f.engine.RunScheduled(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	require.Len(t, rep.Deliveries, 1)
	assert.Equal(t, StatusDispatched, rep.Deliveries[0].Status)

	ok, err := f.store.HasDelivered(context.Background(), qixiKey("-1"))
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = f.store.HasDelivered(context.Background(), qixiKey("-2"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPruneUsesRetention(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Options{Retention: 10 * 24 * time.Hour})
	ctx := context.Background()
	old := storage.NewRecord(storage.Key{ConversationID: "-1", HolidayID: "x", Date: "2025-07-20"}, "a", f.clock.Now(), false)
	recent := storage.NewRecord(storage.Key{ConversationID: "-1", HolidayID: "x", Date: "2025-07-30"}, "b", f.clock.Now(), false)
	require.NoError(t, f.store.RecordDelivery(ctx, old))
	require.NoError(t, f.store.RecordDelivery(ctx, recent))

	n, err := f.engine.Prune(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	ok, err := f.store.HasDelivered(ctx, recent.Key())
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestStartApplyStop(t *testing.T) {
	t.Parallel()

	sched := scheduler.New(scheduler.Config{}, logx.Nop(), nil)
	f := newFixture(t, Options{TriggerTime: "08:00", AllowManual: true}, func(d *Deps) { d.Clock = sched })

	require.NoError(t, f.engine.Start(context.Background()))
	st := f.engine.State()
	require.False(t, st.NextRun.IsZero())
	assert.Equal(t, 8, st.NextRun.Hour())
	assert.Equal(t, "Asia/Shanghai", st.Timezone)
	assert.Len(t, sched.Snapshot().Schedules, 2)

	f.engine.Apply(Options{Location: shanghai, TriggerTime: "09:30", AllowManual: true})
	st = f.engine.State()
	assert.Equal(t, 9, st.NextRun.Hour())
	assert.Equal(t, 30, st.NextRun.Minute())

	require.NoError(t, f.engine.Stop(context.Background()))
	_, err := f.engine.Manual(context.Background(), "-1")
	assert.ErrorIs(t, err, ErrStopped)
	_, err = f.engine.RunScheduled(context.Background())
	assert.ErrorIs(t, err, ErrStopped)
	assert.False(t, sched.Snapshot().Running)
}

func TestParseRepeatMode(t *testing.T) {
	t.Parallel()

	m, err := ParseRepeatMode("")
	require.NoError(t, err)
	assert.Equal(t, RepeatFirstDay, m)
	m, err = ParseRepeatMode(" Every-Day ")
	require.NoError(t, err)
	assert.Equal(t, RepeatEveryDay, m)
	_, err = ParseRepeatMode("weekly")
	assert.Error(t, err)
}

func TestKeyLockerReleasesEntries(t *testing.T) {
	t.Parallel()

	var l keyLocker
	unlock := l.lock("k")
	acquired := make(chan struct{})
	go func() {
		defer close(acquired)
		l.lock("k")()
	}()

	select {
	case <-acquired:
		t.Fatal("second holder acquired the lock")
	case <-time.After(20 * time.Millisecond):
	}
	unlock()
	<-acquired

	l.mu.Lock()
	defer l.mu.Unlock()
	assert.Empty(t, l.m)
}

func TestStopWaitsForRunningUnitAndRejectsQueued(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Options{Catalog: customCatalog(t, `["0803","七夕节"]`), AllowManual: true})
	f.disp.block = make(chan struct{})

	running := make(chan error, 1)
	go func() {
		_, err := f.engine.Manual(context.Background(), "-1")
		running <- err
	}()
	require.Eventually(t, func() bool { return f.engine.State().Running }, time.Second, 5*time.Millisecond)

	queued := make(chan error, 1)
	go func() {
		_, err := f.engine.Manual(context.Background(), "-2")
		queued <- err
	}()
	time.Sleep(20 * time.Millisecond)

	stopped := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		stopped <- f.engine.Stop(ctx)
	}()
	require.Eventually(t, f.engine.isStopped, time.Second, 5*time.Millisecond)

	select {
	case <-stopped:
		t.Fatal("stop returned while a unit was running")
	case <-time.After(30 * time.Millisecond):
	}

	close(f.disp.block)
	require.NoError(t, <-running)
	assert.ErrorIs(t, <-queued, ErrStopped)
	require.NoError(t, <-stopped)

	assert.Equal(t, 1, f.disp.count())
	ok, err := f.store.HasDelivered(context.Background(), qixiKey("-1"))
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = f.store.HasDelivered(context.Background(), qixiKey("-2"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestConcurrentRunsDeliverOnce(t *testing.T) {
	t.Parallel()

	cases := map[string]func(e *Engine) (Report, error){
		"manual": func(e *Engine) (Report, error) { return e.Manual(context.Background(), "-1") },
		"scheduled": func(e *Engine) (Report, error) {
			rep, err := e.RunScheduled(context.Background())
			if errors.Is(err, ErrBusy) {
				return rep, nil
			}
			return rep, err
		},
	}
	for name, other := range cases {
		t.Run("manual vs "+name, func(t *testing.T) {
			t.Parallel()

			f := newFixture(t, Options{Catalog: customCatalog(t, `["0803","七夕节"]`), AllowManual: true})
			f.register(t, "-1")

			start := make(chan struct{})
			var wg sync.WaitGroup
			errs := make([]error, 2)
			runs := []func(e *Engine) (Report, error){cases["manual"], other}
			for i, run := range runs {
				wg.Add(1)
				go func() {
					defer wg.Done()
					<-start
					_, errs[i] = run(f.engine)
				}()
			}
			close(start)
			wg.Wait()

			require.NoError(t, errs[0])
			require.NoError(t, errs[1])
			assert.Equal(t, 1, f.disp.count())
			hist, err := f.store.History(context.Background(), qixiKey("-1"))
			require.NoError(t, err)
			assert.Len(t, hist, 1)
		})
	}
}

func TestOverlappingUnitsOnSameKeyDeliverOnce(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Options{Catalog: customCatalog(t, `["0803","七夕节"]`)})
	f.disp.block = make(chan struct{})
	opt := f.engine.options()
	occ := f.engine.newReport(KindScheduled, opt).Occurrences
	require.Len(t, occ, 1)

	// Units called directly bypass the run gate, leaving the key lock
	// and the ledger check as the only guard.
	results := make(chan Delivery, 2)
	for range 2 {
		go func() {
			results <- f.engine.deliver(context.Background(), KindScheduled, "-1", occ[0], opt, false)
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(f.disp.block)

	statuses := []Status{(<-results).Status, (<-results).Status}
	assert.ElementsMatch(t, []Status{StatusDispatched, StatusSkipped}, statuses)
	assert.Equal(t, 1, f.disp.count())
	hist, err := f.store.History(context.Background(), qixiKey("-1"))
	require.NoError(t, err)
	assert.Len(t, hist, 1)
}
