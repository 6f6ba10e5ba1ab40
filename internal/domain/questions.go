package domain

import (
	"fmt"
	"strings"
)

// ValidateQuestions performs the minimal shape check applied to a question
// bank: every question needs text, at least two distinct non-empty options
// and an answer that is one of them.
func ValidateQuestions(questions []Question) error {
	for i, q := range questions {
		if err := validateQuestion(q); err != nil {
			return fmt.Errorf("%w: question %d: %s", ErrInvalidQuestion, i, err.Error())
		}
	}
	return nil
}

func validateQuestion(q Question) error {
	if strings.TrimSpace(q.Text) == "" {
		return fmt.Errorf("text is empty")
	}
	if len(q.Options) < 2 {
		return fmt.Errorf("needs at least 2 options, got %d", len(q.Options))
	}
	seen := make(map[string]struct{}, len(q.Options))
	for _, opt := range q.Options {
		if opt == NoAnswer {
			return fmt.Errorf("option is empty")
		}
		if _, dup := seen[opt]; dup {
			return fmt.Errorf("duplicate option %q", opt)
		}
		seen[opt] = struct{}{}
	}
	if !q.HasOption(q.Answer) {
		return fmt.Errorf("answer %q is not an option", q.Answer)
	}
	return nil
}
