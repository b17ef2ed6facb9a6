package quiz

import (
	"fmt"

	"quizzai/internal/models"
)

func generatePrompt(qtype models.QuestionType, count int) string {
	label := "Mcqs"
	switch qtype {
	case models.QuestionShort:
		label = "short questions"
	case models.QuestionLong:
		label = "long questions"
	}
	return fmt.Sprintf("Generate %d %s from the stored pdf content as json with question, answer, correct answer and an explanation of why it is correct", count, label)
}

func gradePrompt(question, answer string) string {
	return fmt.Sprintf("Check the given short answer against the stored pdf content and reply in json with question, answer, "+
		"is_correct as one of the strings correct, not_correct or partial, and an explanation of why. "+
		"When partially correct, say where the answer needs to improve. Question: %s, Answer: %s", question, answer)
}

// truncate keeps at most limit runes of s.
func truncate(s string, limit int) string {
	if limit <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit])
}
