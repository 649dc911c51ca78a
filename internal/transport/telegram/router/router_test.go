package router

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	rtsup "festivalbot/internal/runtime/supervisor"
	kit "festivalbot/internal/transport"
	logx "festivalbot/pkg/logx"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sent struct {
	to   kit.ChatTarget
	text string
	opt  *kit.SendOptions
}

type fakeSender struct {
	mu   sync.Mutex
	msgs []sent
	menu [][]kit.BotCommand
}

func (f *fakeSender) SendText(_ context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, sent{to: to, text: text, opt: opt})
	return kit.MessageRef{ChatID: to.ChatID, ThreadID: to.ThreadID, MessageID: len(f.msgs)}, nil
}

func (f *fakeSender) UpdateMenuCommands(_ context.Context, cmds []kit.BotCommand) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.menu = append(f.menu, cmds)
	return nil
}

func (f *fakeSender) texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.msgs))
	for _, m := range f.msgs {
		out = append(out, m.text)
	}
	return out
}

func msgUpdate(chat int64, thread int, from int64, text string, group bool) kit.Update {
	return kit.Update{Kind: kit.UpdateMessage, Message: &kit.Message{
		ChatID: chat, ThreadID: thread, FromID: from, Text: text, IsGroup: group,
	}}
}

type harness struct {
	m      *CommandManager
	sender *fakeSender
	reqs   chan *Request
	push   func(kit.Update)
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{sender: &fakeSender{}, reqs: make(chan *Request, 16)}
	h.m = NewCommandManager(logx.Nop(), h.sender, []int64{7})
	record := func(ctx context.Context, req *Request) error {
		h.reqs <- req
		return req.Reply(ctx, "ok:"+req.Command)
	}
	h.m.SetRegistry([]Command{
		{Route: "festival send", Aliases: []string{"festival_send"}, Description: "手动发送", Handle: record},
		{Route: "festival debug", Aliases: []string{"festival_debug"}, Description: "调试发送", Handle: record},
		{Route: "festival status", Description: "状态", Access: AccessOwnerOnly, Handle: record},
		{Route: "boom", Description: "panics", Handle: func(context.Context, *Request) error { panic("boom") }},
	})

	ctx, cancel := context.WithCancel(context.Background())
	updates := make(chan kit.Update, 8)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = h.m.DispatchLoop(ctx, updates)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	h.push = func(up kit.Update) { updates <- up }
	return h
}

func (h *harness) next(t *testing.T) *Request {
	t.Helper()
	select {
	case r := <-h.reqs:
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("no request routed")
		return nil
	}
}

func TestRouteSubcommandAndAlias(t *testing.T) {
	h := newHarness(t)

	h.push(msgUpdate(-100, 3, 1, "/festival send --style=warm extra", true))
	req := h.next(t)
	assert.Equal(t, "festival send", req.Command)
	assert.Equal(t, []string{"festival", "send"}, req.Path)
	assert.Equal(t, []string{"extra"}, req.Args)
	assert.Equal(t, "warm", req.Flags["style"])
	assert.Equal(t, "-100/3", req.ConversationID())
	assert.True(t, req.IsGroup)
	assert.False(t, req.Owner)

	h.push(msgUpdate(-100, 0, 1, "/festival_debug@festival_bot", true))
	req = h.next(t)
	assert.Equal(t, "festival debug", req.Command)
	assert.Equal(t, "-100", req.ConversationID())

	require.Eventually(t, func() bool { return len(h.sender.texts()) == 2 }, time.Second, 5*time.Millisecond)
	assert.ElementsMatch(t, []string{"ok:festival send", "ok:festival debug"}, h.sender.texts())
}

func TestOwnerOnlyCommand(t *testing.T) {
	h := newHarness(t)

	h.push(msgUpdate(-100, 0, 1, "/festival status", true))
	require.Eventually(t, func() bool { return len(h.sender.texts()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, replyUnauthorized, h.sender.texts()[0])

	h.push(msgUpdate(-100, 0, 7, "/festival status", true))
	req := h.next(t)
	assert.True(t, req.Owner)
}

func TestUnknownCommandRepliesOnlyInPrivate(t *testing.T) {
	h := newHarness(t)

	h.push(msgUpdate(-100, 0, 1, "/other_bot_cmd", true))
	h.push(msgUpdate(1, 0, 1, "/nope", false))
	h.push(msgUpdate(1, 0, 1, "not a command", false))
	require.Eventually(t, func() bool { return len(h.sender.texts()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, replyUnknown, h.sender.texts()[0])
}

func TestGroupNodeShowsHelp(t *testing.T) {
	h := newHarness(t)

	h.push(msgUpdate(1, 0, 1, "/festival", false))
	require.Eventually(t, func() bool { return len(h.sender.texts()) == 1 }, time.Second, 5*time.Millisecond)
	txt := h.sender.texts()[0]
	assert.Contains(t, txt, "/festival send")
	assert.Contains(t, txt, "🔒 <code>/festival status</code>")
}

func TestPanicDoesNotKillWorkers(t *testing.T) {
	h := newHarness(t)

	h.push(msgUpdate(1, 0, 1, "/boom", false))
	h.push(msgUpdate(1, 0, 1, "/festival send", false))
	req := h.next(t)
	assert.Equal(t, "festival send", req.Command)
}

func TestMenuUpdatedOnRegistry(t *testing.T) {
	h := newHarness(t)

	require.Eventually(t, func() bool {
		h.sender.mu.Lock()
		defer h.sender.mu.Unlock()
		return len(h.sender.menu) == 1
	}, time.Second, 5*time.Millisecond)

	h.sender.mu.Lock()
	menu := h.sender.menu[0]
	h.sender.mu.Unlock()
	names := make([]string, 0, len(menu))
	for _, c := range menu {
		names = append(names, c.Command)
	}
	assert.Equal(t, []string{"boom", "festival", "help", "festival_debug", "festival_send", "festival_status"}, names)
	assert.True(t, strings.HasPrefix(menu[len(menu)-1].Description, "🔒 "))
}

func TestHelpText(t *testing.T) {
	t.Parallel()

	m := NewCommandManager(logx.Nop(), &fakeSender{}, nil)
	m.SetRegistry([]Command{
		{Route: "festival send", Aliases: []string{"festival_send"}, Description: "手动发送", Usage: "/festival send", Handle: func(context.Context, *Request) error { return nil }},
		{Route: "festival debug", Description: "调试发送", Access: AccessOwnerOnly, Handle: func(context.Context, *Request) error { return nil }},
	})

	top := m.helpText(nil)
	assert.Contains(t, top, "• <code>/festival send</code> · <code>/festival_send</code> - 手动发送")
	assert.Contains(t, top, "<code>/help</code>")
	assert.NotContains(t, top, "<code>/help</code> · <code>/help</code>")
	assert.Contains(t, top, "<b>管理员</b>\n• 🔒 <code>/festival debug</code> · <code>/festival_debug</code> - 调试发送")

	group := m.helpText([]string{"festival"})
	assert.Contains(t, group, "<code>/festival</code>")
	assert.Contains(t, group, "/festival_send")
	assert.NotContains(t, group, "/help")

	leaf := m.helpText([]string{"festival", "send"})
	assert.Contains(t, leaf, "手动发送")
	assert.Contains(t, leaf, "<b>用法</b> <code>/festival send</code>")
	assert.Contains(t, leaf, "<b>快捷指令</b> <code>/festival_send</code>")

	viaAlias := m.helpText([]string{"festival_send"})
	assert.Contains(t, viaAlias, "手动发送")

	assert.Contains(t, m.helpText([]string{"missing"}), "未知指令")
}

func TestTokenizeAndParseFlags(t *testing.T) {
	t.Parallel()

	toks := tokenizeCommandLine(`/festival upcoming "30 days" 'a b' c\ d`)
	assert.Equal(t, []string{"/festival", "upcoming", "30 days", "a b", "c d"}, toks)

	pos, flags, bools := parseFlags([]string{"30", "--tz=Asia/Shanghai", "--from", "2025-01-01", "-v", "-ab", "-3", "--dry"})
	assert.Equal(t, []string{"30", "-3"}, pos)
	assert.Equal(t, map[string]string{"tz": "Asia/Shanghai", "from": "2025-01-01"}, flags)
	assert.Equal(t, map[string]bool{"v": true, "a": true, "b": true, "dry": true}, bools)
}

func TestSanitizeTelegramCommand(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"Festival Send":         "festival_send",
		"ledger-prune":          "ledger_prune",
		"__x__":                 "x",
		"节日":                    "",
		"2fa":                   "cmd_2fa",
		strings.Repeat("a", 40): strings.Repeat("a", 32),
		"a//b":                  "a_b",
	}
	for in, want := range cases {
		assert.Equal(t, want, sanitizeTelegramCommand(in), in)
	}
}

func TestMiddlewareChainOrderAndTimeout(t *testing.T) {
	t.Parallel()

	var order []string
	mw := func(name string) Middleware {
		return func(next HandlerFunc) HandlerFunc {
			return func(ctx context.Context, req *Request) error {
				order = append(order, name)
				return next(ctx, req)
			}
		}
	}
	h := Chain(func(ctx context.Context, _ *Request) error {
		_, ok := ctx.Deadline()
		if !ok {
			return errors.New("no deadline")
		}
		return nil
	}, mw("a"), mw("b"), MWTimeout(time.Second))
	require.NoError(t, h(context.Background(), &Request{}))
	assert.Equal(t, []string{"a", "b"}, order)

	rec := Chain(func(context.Context, *Request) error { panic("x") }, MWPanicRecover(logx.Nop()))
	require.ErrorContains(t, rec(context.Background(), &Request{}), "panic: x")
}

func TestDispatchLoopRegistersSupervisor(t *testing.T) {
	t.Parallel()

	reg := rtsup.NewRegistry()
	m := NewCommandManager(logx.Nop(), &fakeSender{}, nil)
	m.Attach(nil, reg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = m.DispatchLoop(ctx, make(chan kit.Update))
	}()
	require.Eventually(t, func() bool { return len(reg.Snapshots()) == 1 }, time.Second, 5*time.Millisecond)
	assert.NotNil(t, m.Supervisor())

	cancel()
	<-done
	assert.Empty(t, reg.Snapshots())
	assert.Nil(t, m.Supervisor())
}

func TestCommandTreeWalk(t *testing.T) {
	t.Parallel()

	root := newRoot()
	for _, r := range []string{"festival status", "festival send", "help", "festival debug"} {
		root.add(splitRoute(r), Command{Route: r})
	}
	var routes []string
	for _, c := range root.commands() {
		routes = append(routes, c.Route)
	}
	assert.Equal(t, []string{"festival debug", "festival send", "festival status", "help"}, routes)

	group := root.find([]string{"festival"})
	require.NotNil(t, group)
	assert.Nil(t, group.cmd)
	assert.Len(t, group.commands(), 3)
	assert.Nil(t, root.find([]string{"festival", "missing"}))
	assert.Nil(t, (*cmdNode)(nil).commands())
}
