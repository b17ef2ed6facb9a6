package models

import "strings"

// QuestionType selects which kind of questions the agent generates.
type QuestionType string

const (
	QuestionMCQ   QuestionType = "mcq"
	QuestionShort QuestionType = "short"
	QuestionLong  QuestionType = "long"
)

// ParseQuestionType accepts mcq, short or long in any case.
func ParseQuestionType(raw string) (QuestionType, bool) {
	switch QuestionType(strings.ToLower(strings.TrimSpace(raw))) {
	case QuestionMCQ:
		return QuestionMCQ, true
	case QuestionShort:
		return QuestionShort, true
	case QuestionLong:
		return QuestionLong, true
	}
	return "", false
}

// EnvelopeKey is the response key questions of this type are returned under.
func (q QuestionType) EnvelopeKey() string {
	switch q {
	case QuestionShort:
		return "short_questions"
	case QuestionLong:
		return "long_questions"
	default:
		return "mcqs"
	}
}
