package config

import "time"

const (
	DefaultTimezone    = "Asia/Shanghai"
	DefaultTriggerTime = "08:00"
	DefaultRepeatMode  = "first-day"
	DefaultStyle       = "warm"
	DefaultMaxRetries  = 1

	DefaultStorageDriver = "file"
	DefaultStoragePath   = "./data/festivalbot"
	DefaultTransport     = "telegram"

	DefaultRetention    = 400 * 24 * time.Hour
	DefaultPruneEvery   = 7 * 24 * time.Hour
	DefaultRetryDelay   = time.Second
	DefaultGenTimeout   = 30 * time.Second
	DefaultBusyTimeout  = time.Second
	DefaultPollTimeout  = 10 * time.Second
	DefaultDispatchRate = 1.0
	DefaultDispatchWait = 20 * time.Second
)

// ApplyDefaults fills omitted keys in place. String durations are left alone;
// callers resolve them with ParseDurationOrDefault.
func ApplyDefaults(cfg *Config) {
	if cfg == nil {
		return
	}
	if cfg.Timezone == "" {
		cfg.Timezone = DefaultTimezone
	}
	if cfg.TriggerTime == "" {
		cfg.TriggerTime = DefaultTriggerTime
	}
	if cfg.GroupFilter.Mode == "" {
		cfg.GroupFilter.Mode = "disabled"
	}
	if cfg.HolidayRepeatMode == "" {
		cfg.HolidayRepeatMode = DefaultRepeatMode
	}
	if cfg.AllowManualTrigger == nil {
		v := true
		cfg.AllowManualTrigger = &v
	}
	if cfg.Greeting.Style == "" {
		cfg.Greeting.Style = DefaultStyle
	}
	if cfg.Greeting.MaxRetries == nil {
		v := DefaultMaxRetries
		cfg.Greeting.MaxRetries = &v
	}
	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = DefaultStorageDriver
	}
	if cfg.Storage.Path == "" {
		cfg.Storage.Path = DefaultStoragePath
	}
	if cfg.Dispatch.Transport == "" {
		cfg.Dispatch.Transport = DefaultTransport
	}
	if cfg.Dispatch.RatePerSec == 0 {
		cfg.Dispatch.RatePerSec = DefaultDispatchRate
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
}
