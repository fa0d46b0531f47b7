package services

import (
	"fmt"
	"slices"
	"sort"
	"strings"
)

// validateQuestions performs all structural checks on a question set.
// Returns a combined error describing every problem found, or nil if valid.
func validateQuestions(questions []*Question, startID string, cfg QuestionnaireConfig) error {
	var errs []string

	if len(questions) == 0 {
		return NewInvalidError("questionnaire validation failed: no questions defined")
	}
	if cfg.TotalQuestions <= 0 {
		errs = append(errs, fmt.Sprintf("total question cap must be > 0, got %d", cfg.TotalQuestions))
	}

	idSet := make(map[string]bool, len(questions))
	for i, q := range questions {
		if q == nil {
			errs = append(errs, fmt.Sprintf("question %d is empty", i))
			continue
		}
		if strings.TrimSpace(q.ID) == "" {
			errs = append(errs, fmt.Sprintf("question %d has no ID", i))
			continue
		}
		if q.ID == DefaultTransitionKey || isTerminal(q.ID, cfg) {
			errs = append(errs, fmt.Sprintf("question ID %q is reserved", q.ID))
		}
		if idSet[q.ID] {
			errs = append(errs, fmt.Sprintf("duplicate question ID: %q", q.ID))
		}
		idSet[q.ID] = true
	}

	if !idSet[startID] {
		errs = append(errs, fmt.Sprintf("start question %q does not exist", startID))
	}

	for _, q := range questions {
		if q == nil || q.ID == "" {
			continue
		}
		prefix := fmt.Sprintf("question %q", q.ID)
		if strings.TrimSpace(q.Text) == "" {
			errs = append(errs, prefix+": text is empty")
		}
		if !q.Type.Valid() {
			errs = append(errs, fmt.Sprintf("%s: unknown type %q", prefix, q.Type))
		}
		if q.Type.IsChoice() && len(q.Options) == 0 {
			errs = append(errs, prefix+": choice question has no options")
		}

		// Transition mapping
		if _, ok := q.NextQuestionMapping[DefaultTransitionKey]; !ok {
			errs = append(errs, fmt.Sprintf("%s: transition mapping has no %q entry", prefix, DefaultTransitionKey))
		}
		keys := make([]string, 0, len(q.NextQuestionMapping))
		for key := range q.NextQuestionMapping {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			target := q.NextQuestionMapping[key]
			if isTerminal(target, cfg) {
				continue
			}
			if !idSet[target] {
				errs = append(errs, fmt.Sprintf("%s: mapping %q references nonexistent question %q", prefix, key, target))
			}
			if target == q.ID {
				errs = append(errs, fmt.Sprintf("%s: mapping %q points back to itself", prefix, key))
			}
			if q.Type == QuestionSingleChoice && key != DefaultTransitionKey && len(q.Options) > 0 && !slices.Contains(q.Options, key) {
				errs = append(errs, fmt.Sprintf("%s: mapping key %q is not one of the options", prefix, key))
			}
		}

		if q.CorrectAnswer != nil {
			if q.Type == QuestionMultipleChoice && !q.CorrectAnswer.IsList() {
				errs = append(errs, prefix+": correct answer must be a list for multiple_choice")
			}
			if q.Type != QuestionMultipleChoice && q.CorrectAnswer.IsList() {
				errs = append(errs, prefix+": correct answer must be a scalar")
			}
		}

		errs = append(errs, validateRules(prefix, q.ValidationRules)...)
	}

	if cycle := findCycle(questions, idSet, cfg); len(cycle) > 0 {
		errs = append(errs, fmt.Sprintf("cycle detected involving questions: %s", strings.Join(cycle, ", ")))
	}

	if len(errs) > 0 {
		return NewInvalidError("questionnaire validation failed:\n  " + strings.Join(errs, "\n  "))
	}
	return nil
}

func validateRules(prefix string, r *ValidationRules) []string {
	if r == nil {
		return nil
	}
	var errs []string
	if r.MinLength != nil && *r.MinLength < 0 {
		errs = append(errs, fmt.Sprintf("%s: min_length must be >= 0, got %d", prefix, *r.MinLength))
	}
	if r.MinLength != nil && r.MaxLength != nil && *r.MinLength > *r.MaxLength {
		errs = append(errs, fmt.Sprintf("%s: min_length %d exceeds max_length %d", prefix, *r.MinLength, *r.MaxLength))
	}
	if r.Min != nil && r.Max != nil && *r.Min > *r.Max {
		errs = append(errs, fmt.Sprintf("%s: min %g exceeds max %g", prefix, *r.Min, *r.Max))
	}
	if r.MinChoices != nil && *r.MinChoices < 0 {
		errs = append(errs, fmt.Sprintf("%s: min_choices must be >= 0, got %d", prefix, *r.MinChoices))
	}
	if r.MinChoices != nil && r.MaxChoices != nil && *r.MinChoices > *r.MaxChoices {
		errs = append(errs, fmt.Sprintf("%s: min_choices %d exceeds max_choices %d", prefix, *r.MinChoices, *r.MaxChoices))
	}
	return errs
}

// findCycle runs Kahn's algorithm over the transition edges and returns the
// IDs left with incoming edges, sorted by declaration order.
func findCycle(questions []*Question, idSet map[string]bool, cfg QuestionnaireConfig) []string {
	inDegree := make(map[string]int, len(questions))
	adj := make(map[string][]string)
	for _, q := range questions {
		if q == nil || q.ID == "" {
			continue
		}
		if _, ok := inDegree[q.ID]; !ok {
			inDegree[q.ID] = 0
		}
		seen := map[string]bool{}
		for _, target := range q.NextQuestionMapping {
			if isTerminal(target, cfg) || !idSet[target] || seen[target] {
				continue
			}
			seen[target] = true
			adj[q.ID] = append(adj[q.ID], target)
			inDegree[target]++
		}
	}

	var queue []string
	for _, q := range questions {
		if q != nil && q.ID != "" && inDegree[q.ID] == 0 {
			queue = append(queue, q.ID)
		}
	}
	visited := 0
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		visited++
		for _, next := range adj[id] {
			inDegree[next]--
			if inDegree[next] == 0 {
				queue = append(queue, next)
			}
		}
	}
	if visited >= len(inDegree) {
		return nil
	}
	var cycle []string
	seen := map[string]bool{}
	for _, q := range questions {
		if q != nil && inDegree[q.ID] > 0 && !seen[q.ID] {
			seen[q.ID] = true
			cycle = append(cycle, q.ID)
		}
	}
	return cycle
}
