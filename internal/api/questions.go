package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/soaringjerry/questionflow/internal/models"
	"github.com/soaringjerry/questionflow/internal/services"
)

// SeedQuestionnaire validates def and replaces the stored question set with it.
// The start question is stored first so that it is the first question on reload.
func SeedQuestionnaire(ctx context.Context, store Store, def *services.QuestionnaireDefinition, cfg services.QuestionnaireConfig) (int, error) {
	if def == nil {
		return 0, services.NewInvalidError("questionnaire definition required")
	}
	g, err := def.Graph(cfg)
	if err != nil {
		return 0, err
	}
	ordered := make([]*services.Question, 0, g.Len())
	ordered = append(ordered, g.First())
	for _, q := range g.Questions() {
		if q.ID != g.First().ID {
			ordered = append(ordered, q)
		}
	}
	now := time.Now().UTC()
	recs := make([]*models.Question, 0, len(ordered))
	for i, q := range ordered {
		rec, err := toModelQuestion(q, i)
		if err != nil {
			return 0, err
		}
		rec.CreatedAt = now
		recs = append(recs, rec)
	}
	if err := store.ReplaceQuestions(ctx, recs); err != nil {
		return 0, fmt.Errorf("store questions: %w", err)
	}
	return len(recs), nil
}

// SeedIfEmpty loads the built-in questionnaire, or def when given, into an empty store.
func SeedIfEmpty(ctx context.Context, store Store, def *services.QuestionnaireDefinition, cfg services.QuestionnaireConfig) (bool, error) {
	n, err := store.CountQuestions(ctx)
	if err != nil {
		return false, err
	}
	if n > 0 {
		return false, nil
	}
	if def == nil {
		if def, err = services.DefaultQuestionnaire(); err != nil {
			return false, err
		}
	}
	count, err := SeedQuestionnaire(ctx, store, def, cfg)
	if err != nil {
		return false, err
	}
	log.Printf("seeded %d questions", count)
	return true, nil
}

// LoadQuestionGraph builds the question graph from the stored questions.
func LoadQuestionGraph(ctx context.Context, store Store, cfg services.QuestionnaireConfig) (*services.QuestionGraph, error) {
	recs, err := store.ListQuestions(ctx)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, services.NewNotFoundError("No questions available")
	}
	qs := make([]*services.Question, 0, len(recs))
	for _, rec := range recs {
		q, err := toServiceQuestion(rec)
		if err != nil {
			return nil, err
		}
		qs = append(qs, q)
	}
	return services.NewQuestionGraph(qs, "", cfg)
}

func toModelQuestion(q *services.Question, position int) (*models.Question, error) {
	rec := &models.Question{
		ID:                  q.ID,
		Position:            position,
		Text:                q.Text,
		Type:                string(q.Type),
		Required:            q.Required,
		Options:             append([]string(nil), q.Options...),
		NextQuestionMapping: map[string]string{},
	}
	for k, v := range q.NextQuestionMapping {
		rec.NextQuestionMapping[k] = v
	}
	if q.CorrectAnswer != nil {
		b, err := json.Marshal(q.CorrectAnswer)
		if err != nil {
			return nil, fmt.Errorf("encode correct answer of %s: %w", q.ID, err)
		}
		rec.CorrectAnswer = b
	}
	if q.ValidationRules != nil {
		b, err := json.Marshal(q.ValidationRules)
		if err != nil {
			return nil, fmt.Errorf("encode validation rules of %s: %w", q.ID, err)
		}
		rec.ValidationRules = b
	}
	return rec, nil
}

func toServiceQuestion(rec *models.Question) (*services.Question, error) {
	q := &services.Question{
		ID:                  rec.ID,
		Text:                rec.Text,
		Type:                services.QuestionType(rec.Type),
		Required:            rec.Required,
		Options:             append([]string(nil), rec.Options...),
		NextQuestionMapping: map[string]string{},
	}
	for k, v := range rec.NextQuestionMapping {
		q.NextQuestionMapping[k] = v
	}
	if len(rec.CorrectAnswer) > 0 {
		v, err := services.ParseAnswerJSON(rec.CorrectAnswer)
		if err != nil {
			return nil, fmt.Errorf("decode correct answer of %s: %w", rec.ID, err)
		}
		if !v.IsNull() {
			q.CorrectAnswer = &v
		}
	}
	if len(rec.ValidationRules) > 0 && string(rec.ValidationRules) != "null" {
		var rules services.ValidationRules
		if err := json.Unmarshal(rec.ValidationRules, &rules); err != nil {
			return nil, fmt.Errorf("decode validation rules of %s: %w", rec.ID, err)
		}
		q.ValidationRules = &rules
	}
	return q, nil
}
