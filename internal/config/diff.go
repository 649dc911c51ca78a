package config

import (
	"bytes"
	"reflect"
	"strings"

	logx "festivalbot/pkg/logx"
)

// Change summarizes what a reload touched.
type Change struct {
	// Sections lists changed top-level sections in a stable order.
	Sections []string
	// Fields are safe log attributes (never tokens or API keys).
	Fields []logx.Field
	// RestartRequired lists changed sections that only take effect after a restart.
	RestartRequired []string
}

func (c Change) Has(section string) bool {
	for _, s := range c.Sections {
		if s == section {
			return true
		}
	}
	return false
}

// SummarizeConfigChange compares two configs section by section.
func SummarizeConfigChange(oldCfg, newCfg *Config) Change {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	var ch Change
	mark := func(section string, restart bool, fields ...logx.Field) {
		ch.Sections = append(ch.Sections, section)
		ch.Fields = append(ch.Fields, fields...)
		if restart {
			ch.RestartRequired = append(ch.RestartRequired, section)
		}
	}

	if oldCfg.Timezone != newCfg.Timezone || oldCfg.TriggerTime != newCfg.TriggerTime {
		mark("schedule", false,
			logx.String("timezone", newCfg.Timezone),
			logx.String("trigger_time", newCfg.TriggerTime),
		)
	}

	if !reflect.DeepEqual(oldCfg.GroupFilter, newCfg.GroupFilter) ||
		oldCfg.HolidayRepeatMode != newCfg.HolidayRepeatMode ||
		oldCfg.ManualTriggerAllowed() != newCfg.ManualTriggerAllowed() {
		mark("policy", false,
			logx.String("group_filter.mode", newCfg.GroupFilter.Mode),
			logx.Int("group_filter.size", len(newCfg.GroupFilter.List)),
			logx.String("holiday_repeat_mode", newCfg.HolidayRepeatMode),
			logx.Bool("allow_manual_trigger", newCfg.ManualTriggerAllowed()),
		)
	}

	if !bytes.Equal(bytes.TrimSpace(oldCfg.CustomHolidays), bytes.TrimSpace(newCfg.CustomHolidays)) ||
		!reflect.DeepEqual(oldCfg.HolidaysICS, newCfg.HolidaysICS) {
		mark("holidays", false, logx.Int("holidays_ics", len(newCfg.HolidaysICS)))
	}

	if !reflect.DeepEqual(oldCfg.Greeting, newCfg.Greeting) {
		mark("greeting", false,
			logx.String("greeting.style", newCfg.Greeting.Style),
			logx.Int("greeting.max_retries", newCfg.Greeting.Retries()),
			logx.Int("greeting.fallbacks", len(newCfg.Greeting.FallbackMessages)),
		)
	}

	if !reflect.DeepEqual(oldCfg.LLM, newCfg.LLM) {
		mark("llm", false,
			logx.String("llm.provider_id", newCfg.LLM.ProviderID),
			logx.Int("llm.providers", len(newCfg.LLM.Providers)),
		)
	}

	if oldCfg.Storage != newCfg.Storage {
		mark("storage", true,
			logx.String("storage.driver", newCfg.Storage.Driver),
			logx.String("storage.path", newCfg.Storage.Path),
		)
	}

	if oldCfg.Dispatch != newCfg.Dispatch {
		restart := oldCfg.Dispatch.Transport != newCfg.Dispatch.Transport
		mark("dispatch", restart,
			logx.String("dispatch.transport", newCfg.Dispatch.Transport),
			logx.Any("dispatch.rate_per_sec", newCfg.Dispatch.RatePerSec),
		)
	}

	// never log the token
	if oldCfg.Telegram.Token != newCfg.Telegram.Token ||
		strings.TrimSpace(oldCfg.Telegram.PollTimeout) != strings.TrimSpace(newCfg.Telegram.PollTimeout) ||
		!reflect.DeepEqual(oldCfg.Telegram.OwnerUserIDs, newCfg.Telegram.OwnerUserIDs) ||
		strings.TrimSpace(oldCfg.Telegram.GroupLog) != strings.TrimSpace(newCfg.Telegram.GroupLog) {
		restart := oldCfg.Telegram.Token != newCfg.Telegram.Token ||
			strings.TrimSpace(oldCfg.Telegram.PollTimeout) != strings.TrimSpace(newCfg.Telegram.PollTimeout)
		mark("telegram", restart,
			logx.Int("telegram.owner_count", len(newCfg.Telegram.OwnerUserIDs)),
			logx.Bool("telegram.group_log_set", strings.TrimSpace(newCfg.Telegram.GroupLog) != ""),
		)
	}

	if oldCfg.Logging != newCfg.Logging {
		mark("logging", false,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
			logx.Bool("logging.telegram_enabled", newCfg.Logging.Telegram.Enabled),
		)
	}

	if oldCfg.HTTP != newCfg.HTTP {
		mark("http", true, logx.String("http.addr", newCfg.HTTP.Addr))
	}

	return ch
}
