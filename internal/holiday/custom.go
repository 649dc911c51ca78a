package holiday

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// customEntry is the object form of a custom holiday.
type customEntry struct {
	ID           string            `json:"id"`
	Name         string            `json:"name"`
	Month        int               `json:"month"`
	Day          int               `json:"day"`
	Date         string            `json:"date"`
	DurationDays int               `json:"duration_days"`
	LengthDays   int               `json:"length_days"`
	Aliases      []string          `json:"aliases"`
	Description  string            `json:"description"`
	Dates        map[string]string `json:"dates"`
}

var idPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)

// ParseCustom decodes the custom_holidays setting.
//
// Two forms are accepted: a list of objects, or a flat list of string pairs
// ["MMDD", "name", "MMDD", "name", ...]. An unpaired trailing string is
// ignored and reported in warnings.
func ParseCustom(raw json.RawMessage) ([]Definition, []string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil, nil
	}

	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, nil, fmt.Errorf("must be a list: %w", err)
	}
	if len(items) == 0 {
		return nil, nil, nil
	}

	objects := 0
	for _, it := range items {
		if t := bytes.TrimSpace(it); len(t) > 0 && t[0] == '{' {
			objects++
		}
	}
	switch {
	case objects == len(items):
		defs, err := parseObjects(items)
		return defs, nil, err
	case objects == 0:
		return parsePairs(items)
	default:
		return nil, nil, errors.New("cannot mix objects and MMDD/name pairs")
	}
}

func parseObjects(items []json.RawMessage) ([]Definition, error) {
	out := make([]Definition, 0, len(items))
	for i, it := range items {
		var e customEntry
		dec := json.NewDecoder(bytes.NewReader(it))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&e); err != nil {
			return nil, fmt.Errorf("[%d]: %w", i, err)
		}
		d, err := e.definition()
		if err != nil {
			return nil, fmt.Errorf("[%d]: %w", i, err)
		}
		out = append(out, d)
	}
	return out, nil
}

func (e customEntry) definition() (Definition, error) {
	d := Definition{
		Name:         strings.TrimSpace(e.Name),
		Month:        e.Month,
		Day:          e.Day,
		DurationDays: max(1, e.DurationDays, e.LengthDays),
		Source:       SourceCustom,
		Description:  strings.TrimSpace(e.Description),
	}
	if d.Name == "" {
		return Definition{}, errors.New("name is required")
	}
	for _, a := range e.Aliases {
		if a = strings.TrimSpace(a); a != "" {
			d.Aliases = append(d.Aliases, a)
		}
	}

	if e.Date != "" {
		md, err := ParseMonthDay(strings.TrimSpace(e.Date))
		if err != nil {
			return Definition{}, err
		}
		d.Month, d.Day = md.Month, md.Day
	}

	if len(e.Dates) > 0 {
		d.Dates = make(map[int]MonthDay, len(e.Dates))
		for ys, ms := range e.Dates {
			y, err := strconv.Atoi(strings.TrimSpace(ys))
			if err != nil || y < 1 {
				return Definition{}, fmt.Errorf("dates: invalid year %q", ys)
			}
			md, err := ParseMonthDay(strings.TrimSpace(ms))
			if err != nil {
				return Definition{}, fmt.Errorf("dates[%d]: %w", y, err)
			}
			if _, ok := md.In(y); !ok {
				return Definition{}, fmt.Errorf("dates[%d]: %s does not exist that year", y, md)
			}
			d.Dates[y] = md
		}
		if d.Month == 0 && d.Day == 0 {
			first := d.Dates[d.Years()[0]]
			d.Month, d.Day = first.Month, first.Day
		}
	}

	if !(MonthDay{Month: d.Month, Day: d.Day}).Valid() {
		return Definition{}, fmt.Errorf("invalid month/day %d/%d", d.Month, d.Day)
	}

	id, err := customID(strings.TrimSpace(e.ID), d.Name, MonthDay{Month: d.Month, Day: d.Day})
	if err != nil {
		return Definition{}, err
	}
	d.ID = id
	return d, nil
}

func parsePairs(items []json.RawMessage) ([]Definition, []string, error) {
	var (
		out      []Definition
		warnings []string
		buffer   []string
	)
	for i, it := range items {
		var s string
		if err := json.Unmarshal(it, &s); err != nil {
			return nil, nil, fmt.Errorf("[%d]: expected string: %w", i, err)
		}
		if s = strings.TrimSpace(s); s == "" {
			continue
		}
		buffer = append(buffer, s)
		if len(buffer) < 2 {
			continue
		}
		token, name := buffer[0], buffer[1]
		buffer = buffer[:0]

		md, err := ParseMonthDay(token)
		if err != nil {
			return nil, nil, err
		}
		id, err := customID("", name, md)
		if err != nil {
			return nil, nil, err
		}
		out = append(out, Definition{
			ID:           id,
			Name:         name,
			Month:        md.Month,
			Day:          md.Day,
			DurationDays: 1,
			Source:       SourceCustom,
		})
	}
	if len(buffer) > 0 {
		warnings = append(warnings, fmt.Sprintf("unpaired custom holiday entry ignored: %q", buffer[0]))
	}
	return out, warnings, nil
}

// customID picks the ID of a custom holiday: the explicit id, else the builtin
// ID for the same name, else an ASCII slug of the name, else custom-MMDD.
func customID(explicit, name string, md MonthDay) (string, error) {
	if explicit != "" {
		id := strings.ToLower(explicit)
		if !idPattern.MatchString(id) {
			return "", fmt.Errorf("invalid id %q", explicit)
		}
		return id, nil
	}
	if b, ok := builtinByName(name); ok {
		return b.ID, nil
	}
	if slug := Slug(name); slug != "" {
		return slug, nil
	}
	return "custom-" + md.String(), nil
}

// Slug lowercases s and collapses every run of non [a-z0-9] into a dash.
func Slug(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			if dash && b.Len() > 0 {
				b.WriteByte('-')
			}
			dash = false
			b.WriteRune(r)
			continue
		}
		dash = true
	}
	return b.String()
}
