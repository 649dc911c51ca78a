package router

import (
	"html"
	"sort"
	"strings"
)

// helpEntry is one runnable command as shown in help.
type helpEntry struct {
	route     string
	desc      string
	usage     string
	shortcuts []string
	owner     bool
}

// helpText renders help in Telegram HTML parse mode. Commands are listed
// flat with their shortcuts inline, public ones first.
func (m *CommandManager) helpText(path []string) string {
	m.mu.RLock()
	root := m.root
	alias := m.alias
	m.mu.RUnlock()

	if len(path) == 0 {
		return renderHelpList("📚 <b>指令列表</b>", collectEntries(root), true)
	}

	cur := root
	full := make([]string, 0, len(path))
	for _, p := range path {
		n, ok := cur.child(p)
		if !ok {
			if leaf, ok := alias[p]; ok && leaf != nil && leaf.cmd != nil {
				return renderHelpLeaf(entryOf(*leaf.cmd))
			}
			return helpUnknown()
		}
		cur = n
		full = append(full, p)
	}

	if cur.cmd != nil && len(cur.children) == 0 {
		return renderHelpLeaf(entryOf(*cur.cmd))
	}
	title := "📚 <b>帮助</b> <code>/" + html.EscapeString(strings.Join(full, " ")) + "</code>"
	return renderHelpList(title, collectEntries(cur), false)
}

func helpUnknown() string {
	return "❓ <b>未知指令</b>\n发送 <code>/help</code> 查看全部指令。"
}

func entryOf(c Command) helpEntry {
	return helpEntry{
		route:     strings.Join(splitRoute(c.Route), " "),
		desc:      strings.TrimSpace(c.Description),
		usage:     strings.TrimSpace(c.Usage),
		shortcuts: buildShortcuts(c),
		owner:     c.Access == AccessOwnerOnly,
	}
}

// collectEntries returns the commands under n sorted by route.
func collectEntries(n *cmdNode) []helpEntry {
	cmds := n.commands()
	out := make([]helpEntry, 0, len(cmds))
	for _, c := range cmds {
		out = append(out, entryOf(c))
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].route < out[j].route })
	return out
}

func renderHelpList(title string, entries []helpEntry, hint bool) string {
	lines := []string{title}
	if hint {
		lines = append(lines, "发送 <code>/help &lt;指令&gt;</code> 查看详情。")
	}
	var public, owner []string
	for _, e := range entries {
		if e.owner {
			owner = append(owner, "• 🔒 "+entryLine(e))
		} else {
			public = append(public, "• "+entryLine(e))
		}
	}
	if len(public) > 0 {
		lines = append(lines, "")
		lines = append(lines, public...)
	}
	if len(owner) > 0 {
		lines = append(lines, "", "<b>管理员</b>")
		lines = append(lines, owner...)
	}
	return strings.Join(lines, "\n")
}

// entryLine renders "/route · /shortcut - desc".
func entryLine(e helpEntry) string {
	var b strings.Builder
	b.WriteString("<code>/" + html.EscapeString(e.route) + "</code>")
	for _, s := range e.shortcuts {
		if s == e.route {
			continue
		}
		b.WriteString(" · <code>/" + html.EscapeString(s) + "</code>")
	}
	if e.desc != "" {
		b.WriteString(" - " + html.EscapeString(e.desc))
	}
	return b.String()
}

func renderHelpLeaf(e helpEntry) string {
	lines := []string{"📚 <b>帮助</b> <code>/" + html.EscapeString(e.route) + "</code>"}
	if e.desc != "" {
		lines = append(lines, html.EscapeString(e.desc))
	}
	if e.owner {
		lines = append(lines, "🔒 <i>仅管理员</i>")
	}
	if e.usage != "" {
		lines = append(lines, "<b>用法</b> <code>"+html.EscapeString(e.usage)+"</code>")
	}
	if len(e.shortcuts) > 0 {
		short := make([]string, 0, len(e.shortcuts))
		for _, s := range e.shortcuts {
			short = append(short, "<code>/"+html.EscapeString(s)+"</code>")
		}
		lines = append(lines, "<b>快捷指令</b> "+strings.Join(short, " "))
	}
	return strings.Join(lines, "\n")
}

// summarizeNodeDesc is the menu description of a node.
func summarizeNodeDesc(n *cmdNode) string {
	if n == nil {
		return ""
	}
	if n.cmd != nil {
		if d := strings.TrimSpace(n.cmd.Description); d != "" {
			return d
		}
	}
	kids := n.childNames()
	if len(kids) == 0 {
		return ""
	}
	k := min(len(kids), 3)
	s := strings.Join(kids[:k], ", ")
	if len(kids) > k {
		s += ", …"
	}
	return "子指令: " + s
}

// nodeIsOwnerOnly reports whether every command under n is owner-only.
func nodeIsOwnerOnly(n *cmdNode) bool {
	entries := collectEntries(n)
	if len(entries) == 0 {
		return false
	}
	for _, e := range entries {
		if !e.owner {
			return false
		}
	}
	return true
}

// buildShortcuts lists the menu name and aliases of c, Telegram-safe variants included.
func buildShortcuts(c Command) []string {
	seen := map[string]bool{}
	var out []string
	add := func(s string) {
		if s != "" && !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	if menu, ok := telegramCommandNameFromRoute(splitRoute(c.Route)); ok {
		add(menu)
	}
	for _, a := range c.Aliases {
		a = strings.TrimSpace(a)
		if a == "" || strings.Contains(a, " ") {
			continue
		}
		add(a)
		add(sanitizeTelegramCommand(a))
	}
	sort.Strings(out)
	return out
}
