package greeting

import (
	"math/rand/v2"
	"strconv"
	"strings"
)

// DefaultFallback is used when no usable template is configured.
const DefaultFallback = "{date}，{holiday}快乐！愿每位小伙伴都能与家人朋友共享温暖时光，心愿成真，未来可期。"

// Picker returns an index in [0, n).
type Picker func(n int) int

func randomPicker(n int) int { return rand.IntN(n) }

// Fallback renders one template for req. Placeholders {holiday}, {date}
// (as 01月02日) and {year} are substituted once; substituted values are not
// expanded again. Templates missing {holiday} or {date} are ignored.
func Fallback(req Request, templates []string, pick Picker) string {
	usable := make([]string, 0, len(templates))
	for _, t := range templates {
		if UsableTemplate(t) {
			usable = append(usable, t)
		}
	}

	tmpl := DefaultFallback
	if len(usable) > 0 {
		if pick == nil {
			pick = randomPicker
		}
		i := pick(len(usable))
		if i < 0 || i >= len(usable) {
			i = 0
		}
		tmpl = usable[i]
	}

	r := strings.NewReplacer(
		"{holiday}", req.HolidayName,
		"{date}", req.Date.Time(nil).Format("01月02日"),
		"{year}", strconv.Itoa(req.Date.Year),
	)
	return strings.TrimSpace(r.Replace(tmpl))
}

// UsableTemplate reports whether t names both the holiday and the date.
func UsableTemplate(t string) bool {
	return strings.Contains(t, "{holiday}") && strings.Contains(t, "{date}")
}
