package holiday

import (
	"time"

	"github.com/teambition/rrule-go"
)

// yearly returns the recurrence rule of a solar holiday starting at or before year.
func (d Definition) yearly(year int) (*rrule.RRule, error) {
	return rrule.NewRRule(rrule.ROption{
		Freq:       rrule.YEARLY,
		Dtstart:    time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC),
		Bymonth:    []int{d.Month},
		Bymonthday: []int{d.Day},
	})
}

// starts lists the first days of d within [from, to].
func (d Definition) starts(from, to Date) ([]Date, error) {
	if d.Pinned() {
		var out []Date
		for _, y := range d.Years() {
			if s, ok := d.StartIn(y); ok && !s.Before(from) && !to.Before(s) {
				out = append(out, s)
			}
		}
		return out, nil
	}

	r, err := d.yearly(from.Year)
	if err != nil {
		return nil, err
	}
	var out []Date
	for _, t := range r.Between(from.Time(time.UTC), to.Time(time.UTC), true) {
		out = append(out, DateOf(t))
	}
	return out, nil
}

// Upcoming lists holidays whose first day falls within [from, from+days).
// Every returned occurrence has DayIndex 0.
func (c *Catalog) Upcoming(from Date, days int) ([]Occurrence, error) {
	if days <= 0 {
		return nil, nil
	}
	to := from.AddDays(days - 1)

	var out []Occurrence
	for _, d := range c.all() {
		starts, err := d.starts(from, to)
		if err != nil {
			return nil, err
		}
		for _, s := range starts {
			if c.shadowed(d, s) {
				continue
			}
			out = append(out, Occurrence{Holiday: d, Date: s, DayIndex: 0})
		}
	}
	sortOccurrences(out)
	return out, nil
}

// Next returns the next first day of d on or after from, searching up to
// ten years ahead.
func (d Definition) Next(from Date) (Date, bool) {
	starts, err := d.starts(from, from.AddDays(366*10))
	if err != nil || len(starts) == 0 {
		return Date{}, false
	}
	return starts[0], true
}
