package festival

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"festivalbot/internal/holiday"
	"festivalbot/internal/transport/telegram/router"
	"festivalbot/internal/trigger"
)

var weekdays = [...]string{"周日", "周一", "周二", "周三", "周四", "周五", "周六"}

func formatDay(d holiday.Date) string {
	return fmt.Sprintf("%02d月%02d日 %s", int(d.Month), d.Day, weekdays[d.Time(time.UTC).Weekday()])
}

func (c *Commands) cmdToday(ctx context.Context, req *router.Request) error {
	opt := c.eng.Options()
	today := c.eng.Today()
	occ := opt.Catalog.Resolve(today)
	if len(occ) == 0 {
		return req.Reply(ctx, fmt.Sprintf("今天（%s）没有配置的节日。", today))
	}

	lines := []string{fmt.Sprintf("今天（%s）的节日：", today)}
	for _, o := range occ {
		line := "• " + o.Holiday.Name
		if n := o.Holiday.Duration(); n > 1 {
			line += fmt.Sprintf("（第 %d 天，共 %d 天）", o.DayIndex+1, n)
		}
		if !opt.RepeatMode.Eligible(o) {
			line += " [今日不发送]"
		}
		lines = append(lines, line)
	}
	return req.Reply(ctx, strings.Join(lines, "\n"))
}

func (c *Commands) cmdUpcoming(ctx context.Context, req *router.Request) error {
	days := defaultUpcomingDays
	if len(req.Args) > 0 {
		n, err := strconv.Atoi(req.Args[0])
		if err != nil || n <= 0 {
			return req.Reply(ctx, "天数需要是正整数，例如 /festival upcoming 60")
		}
		days = min(n, maxUpcomingDays)
	}

	opt := c.eng.Options()
	today := c.eng.Today()
	occ, err := opt.Catalog.Upcoming(today, days)
	if err != nil {
		return fmt.Errorf("upcoming holidays: %w", err)
	}
	if len(occ) == 0 {
		return req.Reply(ctx, fmt.Sprintf("未来 %d 天没有配置的节日。", days))
	}

	lines := []string{fmt.Sprintf("未来 %d 天的节日：", days)}
	for _, o := range occ {
		line := "• " + formatDay(o.Date) + " " + o.Holiday.Name
		if n := o.Holiday.Duration(); n > 1 {
			line += fmt.Sprintf("（%d 天）", n)
		}
		if left := o.Date.DaysSince(today); left > 0 {
			line += fmt.Sprintf(" 还有 %d 天", left)
		} else {
			line += " 今天"
		}
		lines = append(lines, line)
	}
	return req.Reply(ctx, strings.Join(lines, "\n"))
}

func (c *Commands) cmdStatus(ctx context.Context, req *router.Request) error {
	st := c.eng.State()

	yesNo := func(b bool) string {
		if b {
			return "是"
		}
		return "否"
	}
	next := "未调度"
	if !st.NextRun.IsZero() {
		next = st.NextRun.Format("2006-01-02 15:04 MST")
	}

	lines := []string{
		"📅 节日祝福状态",
		"时区：" + st.Timezone,
		"每日发送时间：" + st.TriggerTime,
		"下次发送：" + next,
		"重复模式：" + string(st.RepeatMode),
		"群过滤模式：" + st.FilterMode,
		"允许手动触发：" + yesNo(st.AllowManual),
		"正在发送：" + yesNo(st.Running),
	}
	if st.Last != nil {
		lines = append(lines, lastRunLine(*st.Last))
	}
	return req.Reply(ctx, strings.Join(lines, "\n"))
}

func lastRunLine(r trigger.Report) string {
	failed := r.Count(trigger.StatusDispatchFailed) + r.Count(trigger.StatusPersistFailed)
	return fmt.Sprintf("上次执行：%s %s，节日 %d 个，会话 %d 个，发送 %d，跳过 %d，失败 %d",
		r.Kind,
		r.Started.Format("2006-01-02 15:04"),
		len(r.Occurrences),
		len(r.Targets),
		r.Sent(),
		r.Count(trigger.StatusSkipped),
		failed,
	)
}
