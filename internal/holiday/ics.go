package holiday

import (
	"fmt"
	"io"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/teambition/rrule-go"
)

const icsProductID = "-//festivalbot//holidays//ZH"

type icsEvent struct {
	uid      string
	summary  string
	desc     string
	start    Date
	days     int
	rawRRule string
}

// ParseICS imports all-day VEVENTs as custom definitions.
//
// A yearly RRULE becomes a recurring solar holiday. Non-recurring events that
// share a summary are merged into one definition pinned to those years.
// Timed events and other recurrence frequencies are skipped with a warning.
func ParseICS(r io.Reader) ([]Definition, []string, error) {
	cal, err := ical.ParseCalendar(r)
	if err != nil {
		return nil, nil, fmt.Errorf("parse ics: %w", err)
	}

	var (
		out      []Definition
		warnings []string
		oneOff   = map[string]*Definition{}
		order    []string
	)
	for _, ve := range cal.Events() {
		ev, err := readEvent(ve)
		if err != nil {
			warnings = append(warnings, err.Error())
			continue
		}

		if ev.rawRRule != "" {
			opt, err := rrule.StrToROption(ev.rawRRule)
			if err != nil || opt.Freq != rrule.YEARLY || opt.Interval > 1 {
				warnings = append(warnings, fmt.Sprintf("event %q: only yearly recurrence is supported (%s)", ev.summary, ev.rawRRule))
				continue
			}
			id, err := customID("", ev.summary, ev.start.MonthDay())
			if err != nil {
				warnings = append(warnings, err.Error())
				continue
			}
			out = append(out, Definition{
				ID:           id,
				Name:         ev.summary,
				Month:        int(ev.start.Month),
				Day:          ev.start.Day,
				DurationDays: ev.days,
				Source:       SourceCustom,
				Description:  ev.desc,
			})
			continue
		}

		d, ok := oneOff[ev.summary]
		if !ok {
			id, err := customID("", ev.summary, ev.start.MonthDay())
			if err != nil {
				warnings = append(warnings, err.Error())
				continue
			}
			d = &Definition{
				ID:           id,
				Name:         ev.summary,
				Month:        int(ev.start.Month),
				Day:          ev.start.Day,
				DurationDays: ev.days,
				Source:       SourceCustom,
				Description:  ev.desc,
				Dates:        map[int]MonthDay{},
			}
			oneOff[ev.summary] = d
			order = append(order, ev.summary)
		}
		d.Dates[ev.start.Year] = ev.start.MonthDay()
	}
	for _, name := range order {
		out = append(out, *oneOff[name])
	}
	return out, warnings, nil
}

func readEvent(ve *ical.VEvent) (icsEvent, error) {
	var ev icsEvent
	if p := ve.GetProperty(ical.ComponentPropertyUniqueId); p != nil {
		ev.uid = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		ev.summary = strings.TrimSpace(p.Value)
	}
	if p := ve.GetProperty(ical.ComponentPropertyDescription); p != nil {
		ev.desc = strings.TrimSpace(p.Value)
	}
	if ev.summary == "" {
		return ev, fmt.Errorf("event %q: missing SUMMARY", ev.uid)
	}

	start, err := icsDate(ve.GetProperty(ical.ComponentPropertyDtStart))
	if err != nil {
		return ev, fmt.Errorf("event %q: DTSTART: %w", ev.summary, err)
	}
	ev.start = start
	ev.days = 1
	if end, err := icsDate(ve.GetProperty(ical.ComponentPropertyDtEnd)); err == nil {
		// DTEND of an all-day event is exclusive.
		if n := end.DaysSince(start); n > 1 {
			ev.days = n
		}
	}
	if p := ve.GetProperty(ical.ComponentPropertyRrule); p != nil {
		ev.rawRRule = strings.TrimSpace(p.Value)
	}
	return ev, nil
}

// icsDate reads an all-day DATE value (YYYYMMDD).
func icsDate(p *ical.IANAProperty) (Date, error) {
	if p == nil {
		return Date{}, fmt.Errorf("missing")
	}
	v := strings.TrimSpace(p.Value)
	if strings.Contains(v, "T") {
		return Date{}, fmt.Errorf("timed event %q is not an all-day holiday", v)
	}
	t, err := time.Parse("20060102", v)
	if err != nil {
		return Date{}, err
	}
	return DateOf(t), nil
}

// WriteICS publishes occurrences as an all-day calendar.
func WriteICS(w io.Writer, occ []Occurrence, stamp time.Time) error {
	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(icsProductID)

	for _, o := range occ {
		start := o.Start()
		ev := cal.AddEvent(fmt.Sprintf("%s-%s@festivalbot", o.Holiday.ID, start))
		ev.SetDtStampTime(stamp.UTC())
		ev.SetSummary(o.Holiday.Name)
		if o.Holiday.Description != "" {
			ev.SetDescription(o.Holiday.Description)
		}
		ev.SetAllDayStartAt(start.Time(time.UTC))
		ev.SetAllDayEndAt(start.AddDays(o.Holiday.Duration()).Time(time.UTC))
	}

	_, err := io.WriteString(w, cal.Serialize())
	return err
}
