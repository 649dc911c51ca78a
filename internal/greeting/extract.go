package greeting

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrGeneration reports that the backend produced no usable greeting.
var ErrGeneration = errors.New("greeting: generation failed")

// textKeys are checked in order on object responses.
var textKeys = []string{"text", "content", "message", "answer", "output_text"}

// Extract pulls the greeting text out of a raw backend body. Accepted shapes:
//
//   - a plain (non-JSON) body or a JSON string
//   - an object with a string field named text, content, message, answer or output_text
//     (string lists under those names are joined with newlines)
//   - an object with nested content: choices[].message.content, choices[].text,
//     content[].text or output[].content[].text
func Extract(body []byte) (string, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return "", fmt.Errorf("%w: empty response", ErrGeneration)
	}

	var v any
	if err := json.Unmarshal(trimmed, &v); err != nil {
		if trimmed[0] == '{' || trimmed[0] == '[' {
			return "", fmt.Errorf("%w: malformed response: %w", ErrGeneration, err)
		}
		return string(trimmed), nil
	}

	if s := strings.TrimSpace(textOf(v)); s != "" {
		return s, nil
	}
	return "", fmt.Errorf("%w: no text in response", ErrGeneration)
}

func textOf(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case map[string]any:
		return textOfObject(x)
	case []any:
		return joinTexts(x)
	}
	return ""
}

func textOfObject(m map[string]any) string {
	if choices, ok := m["choices"].([]any); ok {
		for _, c := range choices {
			cm, ok := c.(map[string]any)
			if !ok {
				continue
			}
			if msg, ok := cm["message"].(map[string]any); ok {
				if s := strings.TrimSpace(textOf(msg["content"])); s != "" {
					return s
				}
			}
			if s, ok := cm["text"].(string); ok && strings.TrimSpace(s) != "" {
				return strings.TrimSpace(s)
			}
		}
	}

	for _, k := range textKeys {
		switch val := m[k].(type) {
		case string:
			if s := strings.TrimSpace(val); s != "" {
				return s
			}
		case []any:
			if s := joinTexts(val); s != "" {
				return s
			}
		case map[string]any:
			if s := textOfObject(val); s != "" {
				return s
			}
		}
	}

	if out, ok := m["output"].([]any); ok {
		for _, o := range out {
			om, ok := o.(map[string]any)
			if !ok {
				continue
			}
			if parts, ok := om["content"].([]any); ok {
				if s := joinTexts(parts); s != "" {
					return s
				}
			}
		}
	}
	return ""
}

// joinTexts joins string items and the text of content parts.
func joinTexts(items []any) string {
	parts := make([]string, 0, len(items))
	for _, it := range items {
		switch x := it.(type) {
		case string:
			if s := strings.TrimSpace(x); s != "" {
				parts = append(parts, s)
			}
		case map[string]any:
			if s, ok := x["text"].(string); ok && strings.TrimSpace(s) != "" {
				parts = append(parts, strings.TrimSpace(s))
			}
		}
	}
	return strings.TrimSpace(strings.Join(parts, "\n"))
}
