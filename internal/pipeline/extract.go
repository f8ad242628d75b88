package pipeline

import (
	"encoding/json"
	"errors"
	"strings"
)

// ErrNoStructuredData signals that a stage's free-form output contained no
// parseable JSON object. Callers must treat this as a valid outcome and
// fall back to the raw text.
var ErrNoStructuredData = errors.New("pipeline: no structured data")

// Extract pulls a JSON object out of free-form model output. It first
// tries the trimmed text outright, then searches for the first balanced
// {...} span. Absence of structured data is reported via
// ErrNoStructuredData, never a panic or parse-noise error.
func Extract(text string) (map[string]any, error) {
	trimmed := strings.TrimSpace(stripFences(text))

	var out map[string]any
	if err := json.Unmarshal([]byte(trimmed), &out); err == nil {
		return out, nil
	}

	start := 0
	for {
		idx := strings.Index(trimmed[start:], "{")
		if idx < 0 {
			return nil, ErrNoStructuredData
		}
		idx += start
		span, ok := balancedSpan(trimmed[idx:])
		if ok {
			if err := json.Unmarshal([]byte(span), &out); err == nil {
				return out, nil
			}
		}
		start = idx + 1
	}
}

// balancedSpan returns the prefix of s up to and including the brace that
// balances s[0]. String literals and escapes are honored so braces inside
// values do not terminate the span early.
func balancedSpan(s string) (string, bool) {
	depth := 0
	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case escaped:
			escaped = false
		case c == '\\' && inString:
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return s[:i+1], true
			}
		}
	}
	return "", false
}

// stripFences removes a leading ```json / ``` fence pair if present.
// Models frequently wrap JSON output this way.
func stripFences(text string) string {
	t := strings.TrimSpace(text)
	if !strings.HasPrefix(t, "```") {
		return text
	}
	t = strings.TrimPrefix(t, "```json")
	t = strings.TrimPrefix(t, "```")
	t = strings.TrimSuffix(strings.TrimSpace(t), "```")
	return t
}
