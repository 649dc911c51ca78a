package festival

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"festivalbot/internal/holiday"
	kit "festivalbot/internal/transport"
	"festivalbot/internal/transport/telegram/router"
	"festivalbot/internal/trigger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEngine struct {
	today holiday.Date
	opt   trigger.Options
	state trigger.State

	rep        trigger.Report
	err        error
	conv       string
	privileged bool
}

func (f *fakeEngine) Manual(_ context.Context, conv string) (trigger.Report, error) {
	f.conv = conv
	return f.rep, f.err
}

func (f *fakeEngine) Debug(_ context.Context, conv string, privileged bool) (trigger.Report, error) {
	f.conv, f.privileged = conv, privileged
	return f.rep, f.err
}

func (f *fakeEngine) Today() holiday.Date      { return f.today }
func (f *fakeEngine) Options() trigger.Options { return f.opt }
func (f *fakeEngine) State() trigger.State     { return f.state }

type replies struct {
	mu   sync.Mutex
	text []string
}

func (r *replies) SendText(_ context.Context, to kit.ChatTarget, text string, _ *kit.SendOptions) (kit.MessageRef, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.text = append(r.text, text)
	return kit.MessageRef{ChatID: to.ChatID}, nil
}

func newEngine(t *testing.T, day string) *fakeEngine {
	t.Helper()
	d, err := holiday.ParseDate(day)
	require.NoError(t, err)
	return &fakeEngine{
		today: d,
		opt:   trigger.Options{Catalog: holiday.NewCatalog(), RepeatMode: trigger.RepeatFirstDay},
	}
}

func request(owner bool, args ...string) (*router.Request, *replies) {
	r := &replies{}
	return &router.Request{
		Chat:   kit.ChatTarget{ChatID: -1001, ThreadID: 4},
		Owner:  owner,
		Args:   args,
		Sender: r,
	}, r
}

func TestCommandTree(t *testing.T) {
	t.Parallel()

	cmds := New(&fakeEngine{}).Commands()
	routes := map[string]router.Command{}
	for _, c := range cmds {
		require.NotNil(t, c.Handle, c.Route)
		routes[c.Route] = c
	}
	assert.Contains(t, routes, "festival send")
	assert.Contains(t, routes["festival send"].Aliases, "festival_send")
	assert.Contains(t, routes["festival debug"].Aliases, "festival_debug")
	assert.Equal(t, router.AccessOwnerOnly, routes["festival status"].Access)
	assert.Equal(t, router.AccessEveryone, routes["festival debug"].Access)
}

func TestSendReplies(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		rep  trigger.Report
		err  error
		want []string
	}{
		{"disabled", trigger.Report{}, trigger.ErrManualDisabled, []string{msgManualDisabled}},
		{"no holiday", trigger.Report{}, trigger.ErrNoHoliday, []string{msgNoHoliday}},
		{"filtered", trigger.Report{}, trigger.ErrNotAllowed, []string{msgNotAllowed}},
		{"stopped", trigger.Report{}, trigger.ErrStopped, []string{msgStopping}},
		{"timeout", trigger.Report{}, context.DeadlineExceeded, []string{msgTimeout}},
		{"sent", trigger.Report{Deliveries: []trigger.Delivery{
			{HolidayName: "七夕节", Status: trigger.StatusDispatched},
		}}, nil, nil},
		{"cooldown", trigger.Report{Deliveries: []trigger.Delivery{
			{HolidayName: "七夕节", Status: trigger.StatusSkipped},
			{HolidayName: "教师节", Status: trigger.StatusDispatchFailed},
		}}, nil, []string{"七夕节 的祝福今天已经发送过啦。\n教师节 的祝福发送失败，稍后会再试一次。"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			eng := &fakeEngine{rep: tc.rep, err: tc.err}
			req, out := request(false)
			require.NoError(t, New(eng).cmdSend(context.Background(), req))
			assert.Equal(t, tc.want, out.text)
			assert.Equal(t, "-1001/4", eng.conv)
		})
	}
}

func TestSendUnexpectedErrorIsReturned(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	req, out := request(false)
	err := New(&fakeEngine{err: boom}).cmdSend(context.Background(), req)
	require.ErrorIs(t, err, boom)
	assert.Empty(t, out.text)
}

func TestDebugReplies(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		rep  trigger.Report
		err  error
		want string
	}{
		{"denied", trigger.Report{}, trigger.ErrUnauthorized, msgDebugDenied},
		{"no holiday", trigger.Report{}, trigger.ErrNoHoliday, msgDebugNoHoliday},
		{"all sent", trigger.Report{Deliveries: []trigger.Delivery{
			{HolidayName: "国庆节", Status: trigger.StatusDispatched},
			{HolidayName: "中秋节", Status: trigger.StatusPersistFailed},
		}}, nil, "已向当前会话发送 2 条节日祝福（调试模式）。"},
		{"partial", trigger.Report{Deliveries: []trigger.Delivery{
			{HolidayName: "国庆节", Status: trigger.StatusDispatched},
			{HolidayName: "中秋节", Status: trigger.StatusDispatchFailed},
		}}, nil, "已向当前会话发送 1 条节日祝福（调试模式）。 未成功的节日：中秋节"},
		{"all failed", trigger.Report{Deliveries: []trigger.Delivery{
			{HolidayName: "国庆节", Status: trigger.StatusDispatchFailed},
			{HolidayName: "中秋节", Status: trigger.StatusDispatchFailed},
		}}, nil, "调试发送失败，相关节日：国庆节, 中秋节"},
		{"empty", trigger.Report{}, nil, msgDebugEmpty},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			eng := &fakeEngine{rep: tc.rep, err: tc.err}
			req, out := request(true)
			require.NoError(t, New(eng).cmdDebug(context.Background(), req))
			assert.Equal(t, []string{tc.want}, out.text)
			assert.True(t, eng.privileged)
		})
	}
}

func TestTodayMarksIneligibleDays(t *testing.T) {
	t.Parallel()

	eng := newEngine(t, "2025-10-02")
	req, out := request(false)
	require.NoError(t, New(eng).cmdToday(context.Background(), req))
	require.Len(t, out.text, 1)
	assert.Contains(t, out.text[0], "今天（2025-10-02）的节日：")
	assert.Contains(t, out.text[0], "国庆节（第 2 天，共 7 天） [今日不发送]")

	eng.opt.RepeatMode = trigger.RepeatEveryDay
	req, out = request(false)
	require.NoError(t, New(eng).cmdToday(context.Background(), req))
	assert.NotContains(t, out.text[0], "今日不发送")
}

func TestTodayWithoutHoliday(t *testing.T) {
	t.Parallel()

	req, out := request(false)
	require.NoError(t, New(newEngine(t, "2025-11-20")).cmdToday(context.Background(), req))
	assert.Equal(t, []string{"今天（2025-11-20）没有配置的节日。"}, out.text)
}

func TestUpcoming(t *testing.T) {
	t.Parallel()

	eng := newEngine(t, "2025-10-02")
	req, out := request(false, "10")
	require.NoError(t, New(eng).cmdUpcoming(context.Background(), req))
	require.Len(t, out.text, 1)
	assert.Equal(t, "未来 10 天的节日：\n• 10月06日 周一 中秋节（3 天） 还有 4 天", out.text[0])

	req, out = request(false, "abc")
	require.NoError(t, New(eng).cmdUpcoming(context.Background(), req))
	assert.Contains(t, out.text[0], "天数需要是正整数")

	req, out = request(false, "3")
	require.NoError(t, New(newEngine(t, "2025-11-20")).cmdUpcoming(context.Background(), req))
	assert.Equal(t, []string{"未来 3 天没有配置的节日。"}, out.text)
}

func TestStatus(t *testing.T) {
	t.Parallel()

	loc := time.FixedZone("CST", 8*3600)
	eng := &fakeEngine{state: trigger.State{
		Timezone:    "Asia/Shanghai",
		TriggerTime: "08:00",
		NextRun:     time.Date(2025, 10, 3, 8, 0, 0, 0, loc),
		RepeatMode:  trigger.RepeatFirstDay,
		FilterMode:  "whitelist",
		AllowManual: true,
		Last: &trigger.Report{
			Kind:    trigger.KindScheduled,
			Started: time.Date(2025, 10, 2, 8, 0, 0, 0, loc),
			Targets: []string{"-1", "-2"},
			Deliveries: []trigger.Delivery{
				{Status: trigger.StatusDispatched},
				{Status: trigger.StatusSkipped},
			},
		},
	}}
	req, out := request(true)
	require.NoError(t, New(eng).cmdStatus(context.Background(), req))
	require.Len(t, out.text, 1)
	txt := out.text[0]
	assert.Contains(t, txt, "下次发送：2025-10-03 08:00 CST")
	assert.Contains(t, txt, "群过滤模式：whitelist")
	assert.Contains(t, txt, "允许手动触发：是")
	assert.Contains(t, txt, "上次执行：scheduled 2025-10-02 08:00，节日 0 个，会话 2 个，发送 1，跳过 1，失败 0")
}
