package trigger

import (
	"fmt"
	"strings"
	"time"

	"festivalbot/internal/greeting"
	"festivalbot/internal/groupfilter"
	"festivalbot/internal/holiday"
)

// RepeatMode decides which days of a multi-day holiday are eligible.
type RepeatMode string

const (
	RepeatFirstDay RepeatMode = "first-day"
	RepeatEveryDay RepeatMode = "every-day"
)

// ParseRepeatMode accepts the configured mode; empty means first-day.
func ParseRepeatMode(s string) (RepeatMode, error) {
	switch m := RepeatMode(strings.ToLower(strings.TrimSpace(s))); m {
	case "", RepeatFirstDay:
		return RepeatFirstDay, nil
	case RepeatEveryDay:
		return m, nil
	default:
		return "", fmt.Errorf("unknown holiday repeat mode %q", s)
	}
}

// Eligible reports whether o may be greeted under mode m.
func (m RepeatMode) Eligible(o holiday.Occurrence) bool {
	return m == RepeatEveryDay || o.FirstDay()
}

const (
	defaultTriggerTime = "08:00"
	defaultRetention   = 400 * 24 * time.Hour
	defaultPruneEvery  = 7 * 24 * time.Hour
	defaultUnitTimeout = 2 * time.Minute
)

// Options is the hot-reloadable engine policy.
type Options struct {
	Location    *time.Location
	TriggerTime string // HH:MM in Location
	Filter      groupfilter.Config
	RepeatMode  RepeatMode
	AllowManual bool
	Style       greeting.Style
	MaxRetries  int
	Catalog     *holiday.Catalog

	Retention  time.Duration
	PruneEvery time.Duration
	// UnitTimeout bounds one generate-dispatch-record unit. Units run
	// detached from the pass context so shutdown never splits them.
	UnitTimeout time.Duration
	// RatePerSec paces dispatches; <= 0 disables pacing.
	RatePerSec float64
}

func (o Options) withDefaults() Options {
	if o.Location == nil {
		o.Location = time.Local
	}
	if strings.TrimSpace(o.TriggerTime) == "" {
		o.TriggerTime = defaultTriggerTime
	}
	if o.RepeatMode == "" {
		o.RepeatMode = RepeatFirstDay
	}
	if o.Style == "" {
		o.Style = greeting.StyleWarm
	}
	if o.MaxRetries < 0 {
		o.MaxRetries = 0
	}
	if o.Catalog == nil {
		o.Catalog = holiday.NewCatalog()
	}
	if o.Retention <= 0 {
		o.Retention = defaultRetention
	}
	if o.PruneEvery <= 0 {
		o.PruneEvery = defaultPruneEvery
	}
	if o.UnitTimeout <= 0 {
		o.UnitTimeout = defaultUnitTimeout
	}
	return o
}
