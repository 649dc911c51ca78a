package transport

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrConversationID is returned for conversation ids that are not
// "<chat_id>" or "<chat_id>/<thread_id>".
var ErrConversationID = errors.New("invalid conversation id")

// ParseConversationID splits "<chat_id>[/<thread_id>]" into a chat target.
func ParseConversationID(id string) (ChatTarget, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return ChatTarget{}, ErrConversationID
	}
	chatRaw, threadRaw, hasThread := strings.Cut(id, "/")
	chat, err := strconv.ParseInt(chatRaw, 10, 64)
	if err != nil || chat == 0 {
		return ChatTarget{}, fmt.Errorf("%w: %q", ErrConversationID, id)
	}
	t := ChatTarget{ChatID: chat}
	if hasThread {
		th, err := strconv.Atoi(threadRaw)
		if err != nil || th < 0 {
			return ChatTarget{}, fmt.Errorf("%w: %q", ErrConversationID, id)
		}
		t.ThreadID = th
	}
	return t, nil
}

// FormatConversationID is the inverse of ParseConversationID.
// Thread 0 (no forum topic) is omitted.
func FormatConversationID(t ChatTarget) string {
	s := strconv.FormatInt(t.ChatID, 10)
	if t.ThreadID > 0 {
		s += "/" + strconv.Itoa(t.ThreadID)
	}
	return s
}
