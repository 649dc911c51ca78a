// Package groupfilter decides which conversations may receive greetings.
package groupfilter

import (
	"fmt"
	"strings"
)

type Mode string

const (
	ModeDisabled  Mode = "disabled"
	ModeWhitelist Mode = "whitelist"
	ModeBlacklist Mode = "blacklist"
)

type Config struct {
	Mode Mode
	List []string
}

// ParseMode accepts the configured mode name; empty means disabled.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case "", ModeDisabled:
		return ModeDisabled, nil
	case ModeWhitelist, ModeBlacklist:
		return m, nil
	default:
		return "", fmt.Errorf("unknown group filter mode %q", s)
	}
}

// IsAllowed reports whether conversationID passes the filter.
//
// A list entry matches the full conversation id or its chat part, so
// "-100123" also covers the forum topic "-100123/42".
func IsAllowed(conversationID string, cfg Config) bool {
	switch cfg.Mode {
	case ModeWhitelist:
		return listed(conversationID, cfg.List)
	case ModeBlacklist:
		return !listed(conversationID, cfg.List)
	default:
		return true
	}
}

func listed(id string, list []string) bool {
	chat, _, _ := strings.Cut(id, "/")
	for _, e := range list {
		e = strings.TrimSpace(e)
		if e != "" && (e == id || e == chat) {
			return true
		}
	}
	return false
}
