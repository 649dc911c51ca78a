package holiday

import (
	"sort"
	"time"
)

type Source string

const (
	SourceBuiltin Source = "builtin"
	SourceCustom  Source = "custom"
)

// Definition describes one holiday.
//
// When Dates is non-nil the holiday is pinned to explicit per-year solar dates
// (lunar holidays, one-off calendar imports) and resolves only in those years.
// Otherwise it recurs every year on Month/Day.
type Definition struct {
	ID           string           `json:"id"`
	Name         string           `json:"name"`
	Month        int              `json:"month"`
	Day          int              `json:"day"`
	DurationDays int              `json:"duration_days"`
	Source       Source           `json:"source"`
	Aliases      []string         `json:"aliases,omitempty"`
	Description  string           `json:"description,omitempty"`
	Dates        map[int]MonthDay `json:"dates,omitempty"`
}

// Duration is DurationDays clamped to at least one day.
func (d Definition) Duration() int {
	return max(1, d.DurationDays)
}

// Pinned reports whether the holiday only exists in the years listed in Dates.
func (d Definition) Pinned() bool { return d.Dates != nil }

// StartIn returns the first day of the holiday in year.
func (d Definition) StartIn(year int) (Date, bool) {
	if d.Pinned() {
		md, ok := d.Dates[year]
		if !ok {
			return Date{}, false
		}
		return md.In(year)
	}
	return NewDate(year, time.Month(d.Month), d.Day)
}

// Years returns the pinned years in ascending order (nil for recurring holidays).
func (d Definition) Years() []int {
	if !d.Pinned() {
		return nil
	}
	out := make([]int, 0, len(d.Dates))
	for y := range d.Dates {
		out = append(out, y)
	}
	sort.Ints(out)
	return out
}

// occurrenceOn reports the occurrence of d covering date, if any. A holiday
// that starts late in the previous year may still be running.
func (d Definition) occurrenceOn(date Date) (Occurrence, bool) {
	for _, year := range []int{date.Year, date.Year - 1} {
		start, ok := d.StartIn(year)
		if !ok {
			continue
		}
		idx := date.DaysSince(start)
		if idx >= 0 && idx < d.Duration() {
			return Occurrence{Holiday: d, Date: date, DayIndex: idx}, true
		}
	}
	return Occurrence{}, false
}

// Occurrence is a holiday observed on one date.
type Occurrence struct {
	Holiday  Definition `json:"holiday"`
	Date     Date       `json:"date"`
	DayIndex int        `json:"day_index"`
}

func (o Occurrence) FirstDay() bool { return o.DayIndex == 0 }

// Start returns the first day of the holiday this occurrence belongs to.
func (o Occurrence) Start() Date { return o.Date.AddDays(-o.DayIndex) }

func sortOccurrences(occ []Occurrence) {
	sort.SliceStable(occ, func(i, j int) bool {
		si, sj := occ[i].Start(), occ[j].Start()
		if si != sj {
			return si.Before(sj)
		}
		if occ[i].Date != occ[j].Date {
			return occ[i].Date.Before(occ[j].Date)
		}
		return occ[i].Holiday.ID < occ[j].Holiday.ID
	})
}
