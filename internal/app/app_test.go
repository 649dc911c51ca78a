package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"festivalbot/internal/config"
	"festivalbot/internal/greeting"
	"festivalbot/internal/groupfilter"
	"festivalbot/internal/trigger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const anniversaryICS = "BEGIN:VCALENDAR\r\n" +
	"VERSION:2.0\r\n" +
	"PRODID:-//test//EN\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:anniv@test\r\n" +
	"DTSTAMP:20250101T000000Z\r\n" +
	"SUMMARY:Community Anniversary\r\n" +
	"DTSTART;VALUE=DATE:20250915\r\n" +
	"RRULE:FREQ=YEARLY\r\n" +
	"END:VEVENT\r\n" +
	"END:VCALENDAR\r\n"

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func decode(t *testing.T, body string) *config.Config {
	t.Helper()
	cfg, err := config.Decode("config.yaml", []byte(body))
	require.NoError(t, err)
	return cfg
}

func TestMapEngineOptions(t *testing.T) {
	t.Parallel()

	cfg := decode(t, `
timezone: Europe/Berlin
trigger_time: "07:30"
group_filter: {mode: blacklist, list: ["-100"]}
holiday_repeat_mode: every-day
allow_manual_trigger: false
greeting: {style: formal, max_retries: 3}
storage: {retention: 48h}
dispatch: {transport: log, rate_per_sec: 2}
`)
	cat, _, err := LoadCatalog(cfg)
	require.NoError(t, err)

	opt, err := EngineOptions(cfg, cat)
	require.NoError(t, err)
	assert.Equal(t, "Europe/Berlin", opt.Location.String())
	assert.Equal(t, "07:30", opt.TriggerTime)
	assert.Equal(t, groupfilter.Config{Mode: groupfilter.ModeBlacklist, List: []string{"-100"}}, opt.Filter)
	assert.Equal(t, trigger.RepeatEveryDay, opt.RepeatMode)
	assert.False(t, opt.AllowManual)
	assert.Equal(t, greeting.StyleFormal, opt.Style)
	assert.Equal(t, 3, opt.MaxRetries)
	assert.Equal(t, 48*time.Hour, opt.Retention)
	assert.Equal(t, config.DefaultPruneEvery, opt.PruneEvery)
	assert.InDelta(t, 2.0, opt.RatePerSec, 1e-9)
	assert.Same(t, cat, opt.Catalog)
}

func TestMapGreetingOptions(t *testing.T) {
	t.Parallel()

	cfg := decode(t, `
dispatch: {transport: log}
greeting:
  fallback_messages: ["  ", "{holiday}快乐！"]
  retry_delay: 250ms
llm:
  provider_id: local
  providers:
    - {id: local, base_url: "http://127.0.0.1:11434/v1", model: qwen}
`)
	opt, err := mapGreetingOptions(cfg)
	require.NoError(t, err)
	assert.Equal(t, "local", opt.Selector)
	assert.Equal(t, []string{"{holiday}快乐！"}, opt.Fallbacks)
	assert.Equal(t, 250*time.Millisecond, opt.RetryDelay)
	assert.Equal(t, config.DefaultGenTimeout, opt.Timeout)

	providers, err := mapProviders(cfg)
	require.NoError(t, err)
	require.Len(t, providers, 1)
	assert.Equal(t, "local", providers[0].ID())
}

func TestLoadCatalogImportsICS(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	ics := writeFile(t, dir, "extra.ics", anniversaryICS)
	cfg := decode(t, `
dispatch: {transport: log}
custom_holidays: ["0803", "七夕节"]
holidays_ics: ["`+ics+`"]
`)
	cat, warnings, err := LoadCatalog(cfg)
	require.NoError(t, err)
	assert.Empty(t, warnings)
	_, ok := cat.Lookup("community-anniversary")
	assert.True(t, ok)
}

func TestPlanRejectsMissingICS(t *testing.T) {
	t.Parallel()

	cfg := decode(t, `
dispatch: {transport: log}
holidays_ics: ["`+filepath.Join(t.TempDir(), "missing.ics")+`"]
`)
	_, err := (&App{}).plan(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "holidays_ics")
}

func TestLogTarget(t *testing.T) {
	t.Parallel()

	assert.Equal(t, int64(-100123), logTarget(&config.Config{Telegram: config.TelegramConfig{GroupLog: " -100123 "}}))
	assert.Zero(t, logTarget(&config.Config{}))
	assert.Zero(t, logTarget(&config.Config{Telegram: config.TelegramConfig{GroupLog: "ops"}}))
}

func TestLoopback(t *testing.T) {
	t.Parallel()

	assert.True(t, loopback("127.0.0.1:8080"))
	assert.True(t, loopback("[::1]:8080"))
	assert.True(t, loopback("localhost:8080"))
	assert.False(t, loopback(":8080"))
	assert.False(t, loopback("0.0.0.0:8080"))
	assert.False(t, loopback("10.0.0.5:8080"))
}

func TestStepRespectsDeadline(t *testing.T) {
	t.Parallel()

	a := &App{}
	release := make(chan struct{})
	defer close(release)

	start := time.Now()
	a.step(context.Background(), "stuck", 50*time.Millisecond, func(c context.Context) error {
		<-release
		return nil
	})
	assert.Less(t, time.Since(start), 2*time.Second)

	a.step(context.Background(), "panics", time.Second, func(context.Context) error {
		panic("boom")
	})
}

func TestStopBudgetCoversDetachedUnit(t *testing.T) {
	t.Parallel()

	a := &App{engine: trigger.New(trigger.Deps{}, trigger.Options{})}
	unit := a.engine.Options().UnitTimeout
	require.Positive(t, unit)
	assert.Greater(t, engineStopBudget(a.engine.Options()), unit)
	assert.Greater(t, a.StopTimeout(), engineStopBudget(a.engine.Options()))

	a.engine.Apply(trigger.Options{UnitTimeout: 5 * time.Minute})
	assert.Greater(t, a.StopTimeout(), 5*time.Minute)
}

func TestAppStartReloadStop(t *testing.T) {
	dir := t.TempDir()
	body := `
dispatch: {transport: log}
storage: {driver: file, path: "` + filepath.Join(dir, "ledger") + `"}
`
	path := writeFile(t, dir, "config.yaml", body)

	a, err := NewApp(path)
	require.NoError(t, err)
	assert.Nil(t, a.adapter)
	assert.Nil(t, a.cmdm)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, a.Start(ctx))
	assert.Equal(t, config.DefaultTriggerTime, a.Engine().Options().TriggerTime)

	// give the watcher a moment to register
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte(body+"trigger_time: \"09:15\"\n"), 0o644))

	require.Eventually(t, func() bool {
		return a.Engine().Options().TriggerTime == "09:15"
	}, 5*time.Second, 20*time.Millisecond)

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer stopCancel()
	require.NoError(t, a.Stop(stopCtx, StopAppStop))
	<-a.Done()
}
