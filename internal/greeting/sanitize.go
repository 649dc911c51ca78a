package greeting

import (
	"regexp"
	"strings"
)

var (
	thoughtPrefix = regexp.MustCompile(`(?i)^\s*(?:思考|分析|推理|思路|思绪|chain of thought|analysis|reasoning)[:：]`)
	answerSplit   = regexp.MustCompile(`(?i)(?:^|\n)\s*(?:答复|回答|回复|最终回答|最终答复|结论|final answer|answer)[:：]\s*`)
	answerPrefix  = regexp.MustCompile(`(?i)^\s*(?:答复|回答|回复|最终回答|最终答复|结论|final answer|answer)[:：]\s*`)
)

// quotePairs are stripped when they wrap the whole text.
var quotePairs = [][2]string{
	{`"`, `"`},
	{"“", "”"},
	{"「", "」"},
	{"『", "』"},
	{"'", "'"},
}

// Sanitize removes reasoning traces and answer markers from model output.
// If cleaning leaves nothing, the trimmed input is returned.
func Sanitize(text string) string {
	cleaned := strings.TrimSpace(text)
	if cleaned == "" {
		return ""
	}

	if locs := answerSplit.FindAllStringIndex(cleaned, -1); len(locs) > 0 {
		cleaned = strings.TrimSpace(cleaned[locs[len(locs)-1][1]:])
	}

	lines := make([]string, 0, 4)
	for _, line := range strings.Split(cleaned, "\n") {
		if thoughtPrefix.MatchString(line) {
			continue
		}
		lines = append(lines, answerPrefix.ReplaceAllString(line, ""))
	}

	result := unquote(strings.TrimSpace(strings.Join(lines, "\n")))
	if result == "" {
		return cleaned
	}
	return result
}

func unquote(s string) string {
	for _, q := range quotePairs {
		if len(s) > len(q[0])+len(q[1]) && strings.HasPrefix(s, q[0]) && strings.HasSuffix(s, q[1]) {
			inner := s[len(q[0]) : len(s)-len(q[1])]
			if !strings.Contains(inner, q[0]) && !strings.Contains(inner, q[1]) {
				return strings.TrimSpace(inner)
			}
		}
	}
	return s
}
