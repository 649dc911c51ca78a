package cli

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"festivalbot/internal/app"
	"festivalbot/internal/config"
	"festivalbot/internal/storage"
	logx "festivalbot/pkg/logx"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, body string) *config.Config {
	t.Helper()
	cfg, err := config.Decode("config.yaml", []byte(body))
	require.NoError(t, err)
	return cfg
}

func fixedNow(s string) func() time.Time {
	return func() time.Time {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			panic(err)
		}
		return t
	}
}

func openStore(t *testing.T) (*config.Config, storage.Store) {
	t.Helper()
	cfg := decode(t, `
dispatch: {transport: log}
storage: {driver: file, path: "`+filepath.Join(t.TempDir(), "ledger")+`", retention: 720h}
`)
	st, err := app.OpenStore(cfg, logx.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return cfg, st
}

func TestRootHasSubcommands(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"run", "holidays", "ledger", "config", "version"} {
		assert.True(t, names[want], want)
	}
	assert.Equal(t, "festivalbot", rootCmd.Use)
}

func TestVersion(t *testing.T) {
	SetVersionInfo("1.2.3", "abc123", "2026-01-01")
	t.Cleanup(func() { SetVersionInfo("dev", "none", "unknown") })

	out := new(bytes.Buffer)
	rootCmd.SetOut(out)
	rootCmd.SetArgs([]string{"version"})
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
	})
	require.NoError(t, rootCmd.Execute())
	assert.Equal(t, "festivalbot 1.2.3 (commit abc123, built 2026-01-01)\n", out.String())
}

func TestHolidaysTable(t *testing.T) {
	t.Parallel()

	cfg := decode(t, `
dispatch: {transport: log}
custom_holidays: ["0803", "七夕节"]
`)
	out, errOut := new(bytes.Buffer), new(bytes.Buffer)
	err := runHolidays(out, errOut, cfg, "2025-08-01", 5, false, fixedNow("2025-08-01T08:00:00+08:00"))
	require.NoError(t, err)
	assert.Contains(t, out.String(), "2025-08-03  七夕节")
	assert.Empty(t, errOut.String())
}

func TestHolidaysDefaultsToToday(t *testing.T) {
	t.Parallel()

	cfg := decode(t, "dispatch: {transport: log}\n")
	out := new(bytes.Buffer)
	// 2025-10-01 00:30 in Shanghai is still 09-30 in UTC
	err := runHolidays(out, new(bytes.Buffer), cfg, "", 1, false, fixedNow("2025-09-30T16:30:00Z"))
	require.NoError(t, err)
	assert.Contains(t, out.String(), "2025-10-01  国庆节")
}

func TestHolidaysICSAndErrors(t *testing.T) {
	t.Parallel()

	cfg := decode(t, "dispatch: {transport: log}\n")
	out := new(bytes.Buffer)
	require.NoError(t, runHolidays(out, new(bytes.Buffer), cfg, "2025-10-01", 7, true, time.Now))
	assert.Contains(t, out.String(), "BEGIN:VCALENDAR")
	assert.Contains(t, out.String(), "SUMMARY:国庆节")

	assert.Error(t, runHolidays(out, new(bytes.Buffer), cfg, "", 0, false, time.Now))
	assert.Error(t, runHolidays(out, new(bytes.Buffer), cfg, "", 400, false, time.Now))
	assert.Error(t, runHolidays(out, new(bytes.Buffer), cfg, "10-01", 7, false, time.Now))

	out.Reset()
	require.NoError(t, runHolidays(out, new(bytes.Buffer), cfg, "2025-11-20", 3, false, time.Now))
	assert.Equal(t, "no holidays between 2025-11-20 and 2025-11-22\n", out.String())
}

func TestLedgerPrune(t *testing.T) {
	t.Parallel()

	cfg, st := openStore(t)
	ctx := context.Background()
	at := time.Date(2025, 1, 1, 8, 0, 0, 0, time.UTC)
	old := storage.Key{ConversationID: "-100", HolidayID: "yuandan", Date: "2025-01-01"}
	recent := storage.Key{ConversationID: "-100", HolidayID: "guoqing", Date: "2025-10-01"}
	require.NoError(t, st.RecordDelivery(ctx, storage.NewRecord(old, "元旦快乐", at, false)))
	require.NoError(t, st.RecordDelivery(ctx, storage.NewRecord(recent, "国庆快乐", at, false)))

	out := new(bytes.Buffer)
	require.NoError(t, runLedgerPrune(ctx, out, cfg, st, "", fixedNow("2025-10-02T08:00:00+08:00")))
	assert.Equal(t, "removed 1 records older than 720h0m0s\n", out.String())

	ok, err := st.HasDelivered(ctx, old)
	require.NoError(t, err)
	assert.False(t, ok)
	ok, err = st.HasDelivered(ctx, recent)
	require.NoError(t, err)
	assert.True(t, ok)

	out.Reset()
	require.NoError(t, runLedgerPrune(ctx, out, cfg, st, "2025-12-31", time.Now))
	assert.Equal(t, "removed 1 records dated before 2025-12-31\n", out.String())

	assert.Error(t, runLedgerPrune(ctx, out, cfg, st, "yesterday", time.Now))
}

func TestLedgerTargetsAndHistory(t *testing.T) {
	t.Parallel()

	_, st := openStore(t)
	ctx := context.Background()

	out := new(bytes.Buffer)
	require.NoError(t, runLedgerTargets(ctx, out, st))
	assert.Equal(t, "no targets registered\n", out.String())

	at := time.Date(2025, 8, 3, 0, 5, 0, 0, time.UTC)
	_, err := st.RegisterTarget(ctx, "-100/7", at)
	require.NoError(t, err)
	out.Reset()
	require.NoError(t, runLedgerTargets(ctx, out, st))
	assert.Equal(t, "-100/7\t2025-08-03T00:05:00Z\n", out.String())

	k := storage.Key{ConversationID: "-100/7", HolidayID: "qixi", Date: "2025-08-03"}
	require.NoError(t, st.RecordDelivery(ctx, storage.NewRecord(k, "七夕快乐", at, false)))
	require.NoError(t, st.RecordDelivery(ctx, storage.NewRecord(k, "七夕快乐！", at.Add(time.Hour), true)))

	out.Reset()
	require.NoError(t, runLedgerHistory(ctx, out, st, "-100/7", "qixi", "2025-08-03"))
	assert.Equal(t,
		"2025-08-03T00:05:00Z\tscheduled\t七夕快乐\n"+
			"2025-08-03T01:05:00Z\tdebug\t七夕快乐！\n",
		out.String())

	out.Reset()
	require.NoError(t, runLedgerHistory(ctx, out, st, "-100/7", "qixi", "2025-08-04"))
	assert.Equal(t, "no deliveries recorded\n", out.String())
}

func TestConfigCheck(t *testing.T) {
	t.Parallel()

	cfg := decode(t, `
dispatch: {transport: log}
custom_holidays: ["0520", "网络情人节", "0101"]
`)
	out := new(bytes.Buffer)
	require.NoError(t, runConfigCheck(out, "config.yaml", cfg))
	assert.Contains(t, out.String(), "warning:")
	assert.Contains(t, out.String(), "config.yaml: ok (timezone Asia/Shanghai, trigger 08:00,")
	assert.Contains(t, out.String(), "transport log)")
}
