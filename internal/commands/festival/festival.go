// Package festival exposes the trigger engine as Telegram commands.
package festival

import (
	"context"
	"time"

	"festivalbot/internal/holiday"
	"festivalbot/internal/transport/telegram/router"
	"festivalbot/internal/trigger"
)

// Engine is the part of trigger.Engine the commands use.
type Engine interface {
	Manual(ctx context.Context, conversationID string) (trigger.Report, error)
	Debug(ctx context.Context, conversationID string, privileged bool) (trigger.Report, error)
	Today() holiday.Date
	Options() trigger.Options
	State() trigger.State
}

const (
	defaultUpcomingDays = 30
	maxUpcomingDays     = 366

	// send and debug may wait for a running pass and then generate text
	passTimeout = 5 * time.Minute
)

type Commands struct {
	eng Engine
}

func New(eng Engine) *Commands {
	return &Commands{eng: eng}
}

// Commands returns the /festival command tree.
func (c *Commands) Commands() []router.Command {
	return []router.Command{
		{
			Route:       "festival send",
			Aliases:     []string{"festival_send", "festival-send"},
			Description: "向当前会话发送今日节日祝福",
			Usage:       "/festival send",
			Access:      router.AccessEveryone,
			Timeout:     passTimeout,
			Handle:      c.cmdSend,
		},
		{
			Route:       "festival debug",
			Aliases:     []string{"festival_debug", "festival-debug"},
			Description: "忽略冷却立即发送今日祝福（管理员）",
			Usage:       "/festival debug",
			// the engine decides and answers with its own denial text
			Access:  router.AccessEveryone,
			Timeout: passTimeout,
			Handle:  c.cmdDebug,
		},
		{
			Route:       "festival today",
			Aliases:     []string{"festival_today"},
			Description: "查看今天的节日",
			Usage:       "/festival today",
			Access:      router.AccessEveryone,
			Handle:      c.cmdToday,
		},
		{
			Route:       "festival upcoming",
			Aliases:     []string{"festival_upcoming"},
			Description: "查看即将到来的节日",
			Usage:       "/festival upcoming [天数]",
			Access:      router.AccessEveryone,
			Handle:      c.cmdUpcoming,
		},
		{
			Route:       "festival status",
			Aliases:     []string{"festival_status"},
			Description: "查看定时发送状态",
			Usage:       "/festival status",
			Access:      router.AccessOwnerOnly,
			Handle:      c.cmdStatus,
		},
	}
}
