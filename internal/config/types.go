package config

import (
	"encoding/json"
)

// Config is the on-disk configuration (JSON or YAML).
//
// Durations are Go duration strings ("500ms", "10s", "1h").
type Config struct {
	// Timezone is the IANA zone the daily trigger and "today" are evaluated in.
	Timezone string `json:"timezone,omitempty"`
	// TriggerTime is the local HH:MM of the daily scheduled pass.
	TriggerTime string `json:"trigger_time,omitempty"`

	GroupFilter GroupFilterConfig `json:"group_filter"`

	HolidayRepeatMode string `json:"holiday_repeat_mode,omitempty" validate:"omitempty,oneof=first-day every-day"`
	// AllowManualTrigger is a pointer so an omitted key defaults to true.
	AllowManualTrigger *bool `json:"allow_manual_trigger,omitempty"`

	// CustomHolidays accepts either a list of objects or a flat list of
	// "MMDD", "name" string pairs. Parsed by holiday.ParseCustom.
	CustomHolidays json.RawMessage `json:"custom_holidays,omitempty"`
	// HolidaysICS lists .ics files imported as additional custom holidays.
	HolidaysICS []string `json:"holidays_ics,omitempty" validate:"dive,required"`

	Greeting GreetingConfig `json:"greeting"`
	LLM      LLMConfig      `json:"llm"`
	Storage  StorageConfig  `json:"storage"`
	Dispatch DispatchConfig `json:"dispatch"`
	Telegram TelegramConfig `json:"telegram"`
	Logging  LoggingConfig  `json:"logging"`
	HTTP     HTTPConfig     `json:"http"`
}

type GroupFilterConfig struct {
	Mode string   `json:"mode,omitempty" validate:"omitempty,oneof=disabled whitelist blacklist"`
	List []string `json:"list,omitempty" validate:"dive,required"`
}

type GreetingConfig struct {
	Style            string   `json:"style,omitempty" validate:"omitempty,oneof=warm formal cheerful"`
	MaxRetries       *int     `json:"max_retries,omitempty" validate:"omitempty,min=0,max=10"`
	FallbackMessages []string `json:"fallback_messages,omitempty"`
	RetryDelay       string   `json:"retry_delay,omitempty"`
	Timeout          string   `json:"timeout,omitempty"`
}

// LLMConfig lists OpenAI-compatible chat completion providers.
// ProviderID selects one; empty means the first provider.
type LLMConfig struct {
	ProviderID string           `json:"provider_id,omitempty"`
	Providers  []ProviderConfig `json:"providers,omitempty" validate:"dive"`
}

type ProviderConfig struct {
	ID          string   `json:"id" validate:"required"`
	BaseURL     string   `json:"base_url" validate:"required,url"`
	APIKey      string   `json:"api_key,omitempty"`
	Model       string   `json:"model" validate:"required"`
	MaxTokens   int      `json:"max_tokens,omitempty" validate:"min=0"`
	Temperature *float64 `json:"temperature,omitempty" validate:"omitempty,min=0,max=2"`
	Timeout     string   `json:"timeout,omitempty"`
}

// StorageConfig controls the delivery ledger.
//
// Example:
//
//	"storage": { "driver": "file", "path": "./data/festivalbot" }
type StorageConfig struct {
	Driver      string `json:"driver,omitempty" validate:"omitempty,oneof=file sqlite"`
	Path        string `json:"path,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite only
	Retention   string `json:"retention,omitempty"`
	PruneEvery  string `json:"prune_every,omitempty"`
}

type DispatchConfig struct {
	// Transport is "telegram" or "log" (dry run: greetings are only logged).
	Transport  string  `json:"transport,omitempty" validate:"omitempty,oneof=telegram log"`
	RatePerSec float64 `json:"rate_per_sec,omitempty" validate:"min=0"`
	Timeout    string  `json:"timeout,omitempty"`
}

type TelegramConfig struct {
	Token        string  `json:"token,omitempty"`
	OwnerUserIDs []int64 `json:"owner_user_ids,omitempty"`
	GroupLog     string  `json:"group_log,omitempty"`
	// PollTimeout is a Go duration string (e.g. "10s", "2m").
	PollTimeout string `json:"poll_timeout,omitempty"`
}

type LoggingConfig struct {
	Level    string          `json:"level,omitempty"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path,omitempty"`
}

type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	ThreadID   int    `json:"thread_id,omitempty"`
	MinLevel   string `json:"min_level,omitempty"`
	RatePerSec int    `json:"rate_per_sec,omitempty" validate:"min=0"`
}

// HTTPConfig controls the read-only status API. Empty Addr disables it.
type HTTPConfig struct {
	Addr string `json:"addr,omitempty" validate:"omitempty,hostname_port"`
	// Pprof mounts net/http/pprof under /debug. Bind Addr to localhost when set.
	Pprof bool `json:"pprof,omitempty"`
}

// ManualTriggerAllowed reports the effective allow_manual_trigger value.
func (c *Config) ManualTriggerAllowed() bool {
	if c == nil || c.AllowManualTrigger == nil {
		return true
	}
	return *c.AllowManualTrigger
}

// Retries reports the effective greeting.max_retries value.
func (g GreetingConfig) Retries() int {
	if g.MaxRetries == nil {
		return DefaultMaxRetries
	}
	return *g.MaxRetries
}
