package festival

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"festivalbot/internal/transport/telegram/router"
	"festivalbot/internal/trigger"
)

const (
	msgManualDisabled = "插件未启用手动触发功能，请联系管理员修改配置。"
	msgNoHoliday      = "今天没有配置的节日，稍后再试吧。"
	msgNotAllowed     = "当前会话不在允许列表内，无法发送节日祝福。"
	msgAlreadySent    = "%s 的祝福今天已经发送过啦。"
	msgSendFailed     = "%s 的祝福发送失败，稍后会再试一次。"
	msgStopping       = "机器人正在停止，请稍后再试。"
	msgTimeout        = "发送超时，请稍后再试。"

	msgDebugDenied    = "仅群管理员可以使用该调试指令。"
	msgDebugNoHoliday = "今天没有配置的节日，无需调试发送。"
	msgDebugSent      = "已向当前会话发送 %d 条节日祝福（调试模式）。"
	msgDebugPartial   = " 未成功的节日："
	msgDebugFailed    = "调试发送失败，相关节日："
	msgDebugEmpty     = "调试发送未产生任何祝福，请检查配置。"
)

// commonReply maps engine errors shared by send and debug to user text.
// ok is false for errors the handler should return instead.
func commonReply(err error) (string, bool) {
	switch {
	case errors.Is(err, trigger.ErrNotAllowed):
		return msgNotAllowed, true
	case errors.Is(err, trigger.ErrStopped):
		return msgStopping, true
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return msgTimeout, true
	}
	return "", false
}

// cmdSend is the manual path: the greeting itself goes out through the
// dispatcher, so the reply only covers what was not sent.
func (c *Commands) cmdSend(ctx context.Context, req *router.Request) error {
	rep, err := c.eng.Manual(ctx, req.ConversationID())
	if err != nil {
		switch {
		case errors.Is(err, trigger.ErrManualDisabled):
			return req.Reply(ctx, msgManualDisabled)
		case errors.Is(err, trigger.ErrNoHoliday):
			return req.Reply(ctx, msgNoHoliday)
		}
		if txt, ok := commonReply(err); ok {
			return req.Reply(ctx, txt)
		}
		return fmt.Errorf("manual send: %w", err)
	}

	var lines []string
	for _, d := range rep.Deliveries {
		switch d.Status {
		case trigger.StatusSkipped:
			lines = append(lines, fmt.Sprintf(msgAlreadySent, d.HolidayName))
		case trigger.StatusDispatchFailed:
			lines = append(lines, fmt.Sprintf(msgSendFailed, d.HolidayName))
		}
	}
	if len(lines) == 0 {
		return nil
	}
	return req.Reply(ctx, strings.Join(lines, "\n"))
}

func (c *Commands) cmdDebug(ctx context.Context, req *router.Request) error {
	rep, err := c.eng.Debug(ctx, req.ConversationID(), req.Owner)
	if err != nil {
		switch {
		case errors.Is(err, trigger.ErrUnauthorized):
			return req.Reply(ctx, msgDebugDenied)
		case errors.Is(err, trigger.ErrNoHoliday):
			return req.Reply(ctx, msgDebugNoHoliday)
		}
		if txt, ok := commonReply(err); ok {
			return req.Reply(ctx, txt)
		}
		return fmt.Errorf("debug send: %w", err)
	}
	return req.Reply(ctx, debugSummary(rep))
}

func debugSummary(rep trigger.Report) string {
	sent := rep.Sent()
	var failures []string
	for _, d := range rep.Deliveries {
		if !d.Sent() {
			failures = append(failures, d.HolidayName)
		}
	}
	switch {
	case sent > 0:
		txt := fmt.Sprintf(msgDebugSent, sent)
		if len(failures) > 0 {
			txt += msgDebugPartial + strings.Join(failures, ", ")
		}
		return txt
	case len(failures) > 0:
		return msgDebugFailed + strings.Join(failures, ", ")
	default:
		return msgDebugEmpty
	}
}
