// Package normalize coerces loosely formatted model output into JSON values.
package normalize

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/tidwall/gjson"

	"quizzai/internal/models"
)

// RawExcerptLimit caps how much of the raw output is kept for diagnostics.
const RawExcerptLimit = 300

// ErrTypeMismatch is returned when the raw value is neither structured nor text.
var ErrTypeMismatch = errors.New("agent response is not a string")

// first {...} or [...] span, greedy
var jsonSpan = regexp.MustCompile(`(\{[\s\S]*\}|\[[\s\S]*\])`)

// ParseError reports that every parse attempt failed.
type ParseError struct {
	Raw    string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s | raw: %s", e.Reason, Excerpt(e.Raw))
}

func (e *ParseError) Unwrap() error { return models.ErrParse }

// Parse runs the fallback chain: structured passthrough, strict parse, first
// bracketed span, then the same span with single quotes swapped for double.
func Parse(raw any) (any, error) {
	switch v := raw.(type) {
	case map[string]any, []any:
		return v, nil
	case string:
		return parseText(v)
	default:
		return nil, ErrTypeMismatch
	}
}

func parseText(text string) (any, error) {
	if v, ok := decode(text); ok {
		return v, nil
	}
	m := jsonSpan.FindStringSubmatch(text)
	if m == nil {
		return nil, &ParseError{Raw: text, Reason: "no JSON object or array found"}
	}
	candidate := m[1]
	if v, ok := decode(candidate); ok {
		return v, nil
	}
	if v, ok := decode(strings.ReplaceAll(candidate, "'", `"`)); ok {
		return v, nil
	}
	return nil, &ParseError{Raw: text, Reason: "could not parse agent response as JSON"}
}

func decode(s string) (any, bool) {
	s = strings.TrimSpace(s)
	if s == "" || !gjson.Valid(s) {
		return nil, false
	}
	return gjson.Parse(s).Value(), true
}

// Envelope wraps a parsed value under key: sequences become {key: seq}, a
// mapping already holding a sequence under key passes through, any other
// mapping becomes {key: [mapping]}.
func Envelope(parsed any, key string) (map[string]any, error) {
	switch v := parsed.(type) {
	case []any:
		return map[string]any{key: v}, nil
	case map[string]any:
		if _, ok := v[key].([]any); ok {
			return v, nil
		}
		return map[string]any{key: []any{v}}, nil
	default:
		return nil, fmt.Errorf("%w: unrecognized JSON structure from agent", models.ErrParse)
	}
}

// Excerpt truncates s to RawExcerptLimit runes.
func Excerpt(s string) string {
	runes := []rune(s)
	if len(runes) <= RawExcerptLimit {
		return s
	}
	return string(runes[:RawExcerptLimit])
}
