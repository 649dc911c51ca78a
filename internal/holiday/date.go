package holiday

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// Date is a civil calendar date, independent of any time zone.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

const dateLayout = "2006-01-02"

// DateOf returns the calendar date of t in t's own location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

// Today returns the current date in loc.
func Today(now time.Time, loc *time.Location) Date {
	if loc == nil {
		loc = time.Local
	}
	return DateOf(now.In(loc))
}

// NewDate builds a date and reports whether it exists (no Feb 30).
func NewDate(year int, month time.Month, day int) (Date, bool) {
	d := Date{Year: year, Month: month, Day: day}
	if month < time.January || month > time.December || day < 1 {
		return d, false
	}
	return d, DateOf(d.Time(time.UTC)) == d
}

// ParseDate parses YYYY-MM-DD.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return DateOf(t), nil
}

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

func (d Date) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

func (d *Date) UnmarshalText(b []byte) error {
	v, err := ParseDate(string(b))
	if err != nil {
		return err
	}
	*d = v
	return nil
}

// Time returns midnight of d in loc.
func (d Date) Time(loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, loc)
}

func (d Date) AddDays(n int) Date { return DateOf(d.Time(time.UTC).AddDate(0, 0, n)) }

// DaysSince returns the number of days from o to d (negative when d is earlier).
func (d Date) DaysSince(o Date) int {
	return int(d.Time(time.UTC).Sub(o.Time(time.UTC)).Hours() / 24)
}

func (d Date) Before(o Date) bool { return d.DaysSince(o) < 0 }

func (d Date) IsZero() bool { return d == Date{} }

func (d Date) MonthDay() MonthDay { return MonthDay{Month: int(d.Month), Day: d.Day} }

// MonthDay is a recurring solar date, written MMDD in configuration.
type MonthDay struct {
	Month int
	Day   int
}

var monthDayPattern = regexp.MustCompile(`^(0[1-9]|1[0-2])(0[1-9]|[12][0-9]|3[01])$`)

// ParseMonthDay parses an MMDD token such as "0803".
func ParseMonthDay(s string) (MonthDay, error) {
	if !monthDayPattern.MatchString(s) {
		return MonthDay{}, fmt.Errorf("invalid date token %q (want MMDD)", s)
	}
	m, _ := strconv.Atoi(s[:2])
	d, _ := strconv.Atoi(s[2:])
	md := MonthDay{Month: m, Day: d}
	if !md.Valid() {
		return MonthDay{}, fmt.Errorf("invalid date token %q: no such day", s)
	}
	return md, nil
}

// Valid reports whether the month/day exists in at least one year (Feb 29 counts).
func (md MonthDay) Valid() bool {
	_, ok := NewDate(2024, time.Month(md.Month), md.Day)
	return ok
}

// In returns md in the given year; false when the day does not exist that year.
func (md MonthDay) In(year int) (Date, bool) {
	return NewDate(year, time.Month(md.Month), md.Day)
}

func (md MonthDay) String() string { return fmt.Sprintf("%02d%02d", md.Month, md.Day) }

func (md MonthDay) MarshalText() ([]byte, error) { return []byte(md.String()), nil }

func (md *MonthDay) UnmarshalText(b []byte) error {
	v, err := ParseMonthDay(string(b))
	if err != nil {
		return err
	}
	*md = v
	return nil
}
