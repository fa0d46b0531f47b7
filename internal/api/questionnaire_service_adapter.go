package api

import (
	"context"
	"encoding/json"
	"log"

	"github.com/soaringjerry/questionflow/internal/models"
	"github.com/soaringjerry/questionflow/internal/services"
)

type questionnaireStoreAdapter struct {
	store Store
}

func newQuestionnaireStoreAdapter(store Store) services.QuestionnaireStore {
	return &questionnaireStoreAdapter{store: store}
}

// NewQuestionnaireStore exposes store to services outside the HTTP layer.
func NewQuestionnaireStore(store Store) services.QuestionnaireStore {
	return newQuestionnaireStoreAdapter(store)
}

func (a *questionnaireStoreAdapter) GetProgress(ctx context.Context, userID string) (*services.Progress, error) {
	p, err := a.store.GetProgress(ctx, userID)
	if err != nil || p == nil {
		return nil, err
	}
	return toServiceProgress(p), nil
}

func (a *questionnaireStoreAdapter) ListAnswers(ctx context.Context, userID string) ([]*services.AnswerRecord, error) {
	recs, err := a.store.ListAnswers(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]*services.AnswerRecord, 0, len(recs))
	for _, rec := range recs {
		out = append(out, toServiceAnswer(rec))
	}
	return out, nil
}

func (a *questionnaireStoreAdapter) WithUserTx(ctx context.Context, userID string, fn func(tx services.ProgressTx) error) error {
	return a.store.WithUserTx(ctx, userID, func(tx UserTx) error {
		return fn(&progressTxAdapter{tx: tx})
	})
}

type progressTxAdapter struct {
	tx UserTx
}

func (a *progressTxAdapter) GetProgress() (*services.Progress, error) {
	p, err := a.tx.GetProgress()
	if err != nil || p == nil {
		return nil, err
	}
	return toServiceProgress(p), nil
}

func (a *progressTxAdapter) SaveProgress(p *services.Progress) error {
	if p == nil {
		return services.NewInvalidError("progress required")
	}
	return a.tx.SaveProgress(toModelProgress(p))
}

func (a *progressTxAdapter) UpsertAnswer(rec *services.AnswerRecord) error {
	if rec == nil {
		return services.NewInvalidError("answer required")
	}
	value, err := json.Marshal(rec.Value)
	if err != nil {
		return err
	}
	return a.tx.UpsertAnswer(&models.Answer{
		ID:             rec.ID,
		UserID:         rec.UserID,
		QuestionID:     rec.QuestionID,
		Value:          value,
		IsCorrect:      rec.IsCorrect,
		Timestamp:      rec.Timestamp,
		SequenceNumber: rec.SequenceNumber,
	})
}

func (a *progressTxAdapter) DeleteAnswers() error {
	return a.tx.DeleteAnswers()
}

func toServiceProgress(p *models.Progress) *services.Progress {
	out := &services.Progress{
		ID:                 p.ID,
		UserID:             p.UserID,
		CompletedQuestions: append([]string{}, p.CompletedQuestions...),
		QuestionPath:       append([]string{}, p.QuestionPath...),
		StartTime:          p.StartTime,
		LastActivity:       p.LastActivity,
		IsCompleted:        p.IsCompleted,
	}
	if p.CurrentQuestionID != nil {
		out.CurrentQuestionID = *p.CurrentQuestionID
	}
	return out
}

func toModelProgress(p *services.Progress) *models.Progress {
	out := &models.Progress{
		ID:                 p.ID,
		UserID:             p.UserID,
		CompletedQuestions: append([]string{}, p.CompletedQuestions...),
		QuestionPath:       append([]string{}, p.QuestionPath...),
		StartTime:          p.StartTime,
		LastActivity:       p.LastActivity,
		IsCompleted:        p.IsCompleted,
	}
	if p.CurrentQuestionID != "" {
		id := p.CurrentQuestionID
		out.CurrentQuestionID = &id
	}
	return out
}

func toServiceAnswer(rec *models.Answer) *services.AnswerRecord {
	v, err := services.ParseAnswerJSON(rec.Value)
	if err != nil {
		log.Printf("questionnaire store: answer %s has unreadable value: %v", rec.ID, err)
		v = services.NullAnswer()
	}
	return &services.AnswerRecord{
		ID:             rec.ID,
		UserID:         rec.UserID,
		QuestionID:     rec.QuestionID,
		Value:          v,
		IsCorrect:      rec.IsCorrect,
		Timestamp:      rec.Timestamp,
		SequenceNumber: rec.SequenceNumber,
	}
}

var _ services.QuestionnaireStore = (*questionnaireStoreAdapter)(nil)
