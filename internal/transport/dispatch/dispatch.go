// Package dispatch turns conversation ids into outbound messages.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	kit "festivalbot/internal/transport"
	logx "festivalbot/pkg/logx"
)

// Dispatcher delivers one text to one conversation.
type Dispatcher interface {
	Dispatch(ctx context.Context, conversationID, text string) error
}

// SenderDispatcher adapts a kit.Sender (normally the Telegram adapter) to Dispatcher.
type SenderDispatcher struct {
	sender  kit.Sender
	opt     *kit.SendOptions
	timeout atomic.Int64
}

func NewSenderDispatcher(s kit.Sender) *SenderDispatcher {
	return &SenderDispatcher{sender: s, opt: &kit.SendOptions{DisablePreview: true}}
}

// SetTimeout bounds each send; <= 0 leaves the caller's deadline alone.
func (d *SenderDispatcher) SetTimeout(t time.Duration) { d.timeout.Store(int64(t)) }

func (d *SenderDispatcher) Dispatch(ctx context.Context, conversationID, text string) error {
	if d == nil || d.sender == nil {
		return errors.New("dispatcher: no sender")
	}
	to, err := kit.ParseConversationID(conversationID)
	if err != nil {
		return err
	}
	if t := time.Duration(d.timeout.Load()); t > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t)
		defer cancel()
	}
	if _, err := d.sender.SendText(ctx, to, text, d.opt); err != nil {
		return fmt.Errorf("send to %s: %w", conversationID, err)
	}
	return nil
}

// LogDispatcher is the dry-run transport: greetings are only logged.
type LogDispatcher struct {
	log logx.Logger
}

func NewLogDispatcher(log logx.Logger) *LogDispatcher {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &LogDispatcher{log: log}
}

func (d *LogDispatcher) Dispatch(ctx context.Context, conversationID, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := kit.ParseConversationID(conversationID); err != nil {
		return err
	}
	d.log.Info("greeting (dry run)",
		logx.String("conversation", conversationID),
		logx.String("text", text),
	)
	return nil
}
