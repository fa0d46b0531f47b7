package services

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

var dateLayouts = []string{"2006-01-02", time.RFC3339}

// ValidateAnswer checks the answer against the question type, options and
// validation rules. Empty answers pass for optional questions.
func ValidateAnswer(q *Question, v AnswerValue) error {
	if q == nil {
		return NewNotFoundError("Question not found")
	}
	if v.IsEmpty() {
		if q.Required {
			return NewInvalidError("an answer is required")
		}
		return nil
	}
	rules := q.ValidationRules
	if rules == nil {
		rules = &ValidationRules{}
	}

	switch q.Type {
	case QuestionText:
		if !v.IsString() {
			return NewInvalidError("answer must be text")
		}
		return checkLength(v.Str(), rules)
	case QuestionNumber:
		n, ok := numericValue(v)
		if !ok {
			return NewInvalidError("answer must be a number")
		}
		if rules.Min != nil && n < *rules.Min {
			return NewInvalidError(fmt.Sprintf("answer must be at least %g", *rules.Min))
		}
		if rules.Max != nil && n > *rules.Max {
			return NewInvalidError(fmt.Sprintf("answer must be at most %g", *rules.Max))
		}
	case QuestionDate:
		if !v.IsString() || !isDate(v.Str()) {
			return NewInvalidError("answer must be a date (YYYY-MM-DD)")
		}
	case QuestionSingleChoice:
		if !v.IsString() {
			return NewInvalidError("answer must be a single option")
		}
		if len(q.Options) > 0 && !slices.Contains(q.Options, v.Str()) {
			return NewInvalidError(fmt.Sprintf("%q is not a valid option", v.Str()))
		}
		return checkLength(v.Str(), rules)
	case QuestionMultipleChoice:
		if !v.IsList() {
			return NewInvalidError("answer must be a list of options")
		}
		choices := v.List()
		seen := make(map[string]bool, len(choices))
		for _, c := range choices {
			if len(q.Options) > 0 && !slices.Contains(q.Options, c) {
				return NewInvalidError(fmt.Sprintf("%q is not a valid option", c))
			}
			if seen[c] {
				return NewInvalidError(fmt.Sprintf("option %q selected more than once", c))
			}
			seen[c] = true
		}
		if rules.MinChoices != nil && len(choices) < *rules.MinChoices {
			return NewInvalidError(fmt.Sprintf("select at least %d options", *rules.MinChoices))
		}
		if rules.MaxChoices != nil && len(choices) > *rules.MaxChoices {
			return NewInvalidError(fmt.Sprintf("select at most %d options", *rules.MaxChoices))
		}
	default:
		return NewInvalidError(fmt.Sprintf("unsupported question type %q", q.Type))
	}
	return nil
}

func checkLength(s string, rules *ValidationRules) error {
	n := utf8.RuneCountInString(strings.TrimSpace(s))
	if rules.MinLength != nil && n < *rules.MinLength {
		return NewInvalidError(fmt.Sprintf("answer must be at least %d characters", *rules.MinLength))
	}
	if rules.MaxLength != nil && n > *rules.MaxLength {
		return NewInvalidError(fmt.Sprintf("answer must be at most %d characters", *rules.MaxLength))
	}
	return nil
}

// NormalizeAnswer turns an accepted numeric string for a number question into
// a number so grading and branching see one form.
func NormalizeAnswer(q *Question, v AnswerValue) AnswerValue {
	if q == nil || q.Type != QuestionNumber || !v.IsString() {
		return v
	}
	if n, ok := numericValue(v); ok {
		return NumberAnswer(n)
	}
	return v
}

func numericValue(v AnswerValue) (float64, bool) {
	if v.IsNumber() {
		return v.Number(), true
	}
	if v.IsString() {
		n, err := strconv.ParseFloat(strings.TrimSpace(v.Str()), 64)
		return n, err == nil
	}
	return 0, false
}

func isDate(s string) bool {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if _, err := time.Parse(layout, s); err == nil {
			return true
		}
	}
	return false
}
