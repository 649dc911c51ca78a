package app

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"festivalbot/internal/config"
	"festivalbot/internal/greeting"
	"festivalbot/internal/groupfilter"
	"festivalbot/internal/holiday"
	"festivalbot/internal/llm"
	"festivalbot/internal/storage"
	"festivalbot/internal/trigger"
	logx "festivalbot/pkg/logx"
)

func mapLogConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Telegram: logx.TelegramConfig{
			Enabled:    cfg.Logging.Telegram.Enabled,
			ThreadID:   cfg.Logging.Telegram.ThreadID,
			MinLevel:   cfg.Logging.Telegram.MinLevel,
			RatePerSec: cfg.Logging.Telegram.RatePerSec,
		},
	}
}

// logTarget returns the Telegram ops log chat; 0 means none.
func logTarget(cfg *config.Config) int64 {
	g := strings.TrimSpace(cfg.Telegram.GroupLog)
	if g == "" {
		return 0
	}
	id, err := strconv.ParseInt(g, 10, 64)
	if err != nil {
		return 0
	}
	return id
}

func loopback(addr string) bool {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func mapStorageConfig(cfg *config.Config) (storage.Config, error) {
	busy, err := config.ParseDurationOrDefault("storage.busy_timeout", cfg.Storage.BusyTimeout, config.DefaultBusyTimeout)
	if err != nil {
		return storage.Config{}, err
	}
	return storage.Config{
		Driver:      cfg.Storage.Driver,
		Path:        cfg.Storage.Path,
		BusyTimeout: busy,
	}, nil
}

// OpenStore opens the delivery ledger configured in cfg.
func OpenStore(cfg *config.Config, log logx.Logger) (storage.Store, error) {
	sc, err := mapStorageConfig(cfg)
	if err != nil {
		return nil, err
	}
	return storage.Open(sc, log)
}

func mapProviders(cfg *config.Config) ([]llm.Provider, error) {
	out := make([]llm.Provider, 0, len(cfg.LLM.Providers))
	for i, p := range cfg.LLM.Providers {
		timeout, err := config.ParseDurationOrDefault(fmt.Sprintf("llm.providers[%d].timeout", i), p.Timeout, config.DefaultGenTimeout)
		if err != nil {
			return nil, err
		}
		out = append(out, llm.NewOpenAI(llm.OpenAIOptions{
			ID:          strings.TrimSpace(p.ID),
			BaseURL:     p.BaseURL,
			APIKey:      p.APIKey,
			Model:       p.Model,
			MaxTokens:   p.MaxTokens,
			Temperature: p.Temperature,
			Timeout:     timeout,
		}, nil))
	}
	return out, nil
}

func mapGreetingOptions(cfg *config.Config) (greeting.Options, error) {
	delay, err := config.ParseDurationOrDefault("greeting.retry_delay", cfg.Greeting.RetryDelay, config.DefaultRetryDelay)
	if err != nil {
		return greeting.Options{}, err
	}
	timeout, err := config.ParseDurationOrDefault("greeting.timeout", cfg.Greeting.Timeout, config.DefaultGenTimeout)
	if err != nil {
		return greeting.Options{}, err
	}
	var fallbacks []string
	for _, f := range cfg.Greeting.FallbackMessages {
		if f = strings.TrimSpace(f); f != "" {
			fallbacks = append(fallbacks, f)
		}
	}
	return greeting.Options{
		Selector:   strings.TrimSpace(cfg.LLM.ProviderID),
		Fallbacks:  fallbacks,
		RetryDelay: delay,
		Timeout:    timeout,
	}, nil
}

func mapDispatchTimeout(cfg *config.Config) (time.Duration, error) {
	return config.ParseDurationOrDefault("dispatch.timeout", cfg.Dispatch.Timeout, config.DefaultDispatchWait)
}

// LoadCatalog builds the holiday catalog from custom_holidays and the
// imported ICS files. Warnings are non-fatal entries that were skipped.
func LoadCatalog(cfg *config.Config) (*holiday.Catalog, []string, error) {
	defs, warnings, err := holiday.ParseCustom(cfg.CustomHolidays)
	if err != nil {
		return nil, nil, fmt.Errorf("custom_holidays: %w", err)
	}
	for _, path := range cfg.HolidaysICS {
		f, err := os.Open(path)
		if err != nil {
			return nil, nil, fmt.Errorf("holidays_ics: %w", err)
		}
		imported, w, err := holiday.ParseICS(f)
		_ = f.Close()
		if err != nil {
			return nil, nil, fmt.Errorf("holidays_ics %s: %w", path, err)
		}
		for _, msg := range w {
			warnings = append(warnings, path+": "+msg)
		}
		defs = append(defs, imported...)
	}
	return holiday.NewCatalog(defs...), warnings, nil
}

// EngineOptions maps cfg to the trigger engine policy.
func EngineOptions(cfg *config.Config, catalog *holiday.Catalog) (trigger.Options, error) {
	loc, err := time.LoadLocation(strings.TrimSpace(cfg.Timezone))
	if err != nil {
		return trigger.Options{}, fmt.Errorf("timezone: %w", err)
	}
	mode, err := groupfilter.ParseMode(cfg.GroupFilter.Mode)
	if err != nil {
		return trigger.Options{}, fmt.Errorf("group_filter.mode: %w", err)
	}
	repeat, err := trigger.ParseRepeatMode(cfg.HolidayRepeatMode)
	if err != nil {
		return trigger.Options{}, fmt.Errorf("holiday_repeat_mode: %w", err)
	}
	retention, err := config.ParseDurationOrDefault("storage.retention", cfg.Storage.Retention, config.DefaultRetention)
	if err != nil {
		return trigger.Options{}, err
	}
	pruneEvery, err := config.ParseDurationOrDefault("storage.prune_every", cfg.Storage.PruneEvery, config.DefaultPruneEvery)
	if err != nil {
		return trigger.Options{}, err
	}
	style := greeting.Style(strings.ToLower(strings.TrimSpace(cfg.Greeting.Style)))
	if !greeting.ValidStyle(string(style)) {
		style = greeting.StyleWarm
	}
	return trigger.Options{
		Location:    loc,
		TriggerTime: cfg.TriggerTime,
		Filter:      groupfilter.Config{Mode: mode, List: append([]string(nil), cfg.GroupFilter.List...)},
		RepeatMode:  repeat,
		AllowManual: cfg.ManualTriggerAllowed(),
		Style:       style,
		MaxRetries:  cfg.Greeting.Retries(),
		Catalog:     catalog,
		Retention:   retention,
		PruneEvery:  pruneEvery,
		RatePerSec:  cfg.Dispatch.RatePerSec,
	}, nil
}
