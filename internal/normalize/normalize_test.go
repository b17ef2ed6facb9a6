package normalize

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	"quizzai/internal/models"
)

func TestParseRecoversJSON(t *testing.T) {
	wantObj := map[string]any{"question": "What is 2+2?", "options": []any{"3", "4"}, "correct": "B"}
	wantArr := []any{map[string]any{"question": "Q1"}, map[string]any{"question": "Q2"}}

	cases := []struct {
		name string
		raw  string
		want any
	}{
		{"strict object", `{"question": "What is 2+2?", "options": ["3", "4"], "correct": "B"}`, wantObj},
		{"strict array", `[{"question": "Q1"}, {"question": "Q2"}]`, wantArr},
		{"object in prose", "Sure! Here you go:\n{\"question\": \"What is 2+2?\", \"options\": [\"3\", \"4\"], \"correct\": \"B\"}\nGood luck.", wantObj},
		{"array in code fence", "```json\n[{\"question\": \"Q1\"}, {\"question\": \"Q2\"}]\n```", wantArr},
		{"single quotes", `{'question': 'What is 2+2?', 'options': ['3', '4'], 'correct': 'B'}`, wantObj},
		{"single quotes in prose", "Result: [{'question': 'Q1'}, {'question': 'Q2'}] -- end", wantArr},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Parse(tc.raw)
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			if !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("mismatch:\nwant %#v\ngot  %#v", tc.want, got)
			}
		})
	}
}

func TestParseStructuredPassthrough(t *testing.T) {
	in := map[string]any{"mcqs": []any{}}
	got, err := Parse(in)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !reflect.DeepEqual(got, in) {
		t.Fatalf("expected passthrough, got %#v", got)
	}
}

func TestParseTypeMismatch(t *testing.T) {
	if _, err := Parse(42); !errors.Is(err, ErrTypeMismatch) {
		t.Fatalf("expected ErrTypeMismatch, got %v", err)
	}
}

func TestParseFailures(t *testing.T) {
	for _, raw := range []string{
		"I could not generate any questions for this document.",
		"",
		"{ this is not json at all }",
		"[unterminated",
	} {
		got, err := Parse(raw)
		if err == nil {
			t.Fatalf("expected failure for %q, got %#v", raw, got)
		}
		if !errors.Is(err, models.ErrParse) {
			t.Fatalf("expected ErrParse for %q, got %v", raw, err)
		}
		var pe *ParseError
		if !errors.As(err, &pe) || pe.Raw != raw {
			t.Fatalf("expected ParseError carrying raw text for %q, got %v", raw, err)
		}
		if got != nil {
			t.Fatalf("partial result returned for %q: %#v", raw, got)
		}
	}
}

func TestParseErrorTruncatesRaw(t *testing.T) {
	raw := strings.Repeat("x", 1000)
	_, err := Parse(raw)
	if err == nil {
		t.Fatalf("expected failure")
	}
	if strings.Count(err.Error(), "x") != RawExcerptLimit {
		t.Fatalf("expected raw excerpt of %d runes, got %q", RawExcerptLimit, err.Error())
	}
}

func TestEnvelope(t *testing.T) {
	item := map[string]any{"question": "Q"}

	got, err := Envelope([]any{item}, "mcqs")
	if err != nil || !reflect.DeepEqual(got, map[string]any{"mcqs": []any{item}}) {
		t.Fatalf("sequence not wrapped: %#v %v", got, err)
	}

	already := map[string]any{"mcqs": []any{item}, "note": "x"}
	got, err = Envelope(already, "mcqs")
	if err != nil || !reflect.DeepEqual(got, already) {
		t.Fatalf("envelope should pass through: %#v %v", got, err)
	}

	got, err = Envelope(item, "short_questions")
	if err != nil || !reflect.DeepEqual(got, map[string]any{"short_questions": []any{item}}) {
		t.Fatalf("mapping not wrapped: %#v %v", got, err)
	}

	wrongShape := map[string]any{"mcqs": "not a list"}
	got, err = Envelope(wrongShape, "mcqs")
	if err != nil || !reflect.DeepEqual(got, map[string]any{"mcqs": []any{wrongShape}}) {
		t.Fatalf("non-sequence key should be wrapped: %#v %v", got, err)
	}

	if _, err := Envelope(float64(3), "mcqs"); !errors.Is(err, models.ErrParse) {
		t.Fatalf("scalar should fail with ErrParse, got %v", err)
	}
}
