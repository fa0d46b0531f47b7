package services

import (
	"context"
	"errors"
	"slices"
	"sort"
	"time"
)

// QuestionnaireStore abstracts the per-user persistence the questionnaire needs.
type QuestionnaireStore interface {
	GetProgress(ctx context.Context, userID string) (*Progress, error)
	ListAnswers(ctx context.Context, userID string) ([]*AnswerRecord, error)
	// WithUserTx runs fn atomically for one user. Writes made through tx are
	// discarded when fn returns an error.
	WithUserTx(ctx context.Context, userID string, fn func(tx ProgressTx) error) error
}

// ProgressTx is the view of one user's rows inside a transaction.
type ProgressTx interface {
	GetProgress() (*Progress, error)
	SaveProgress(p *Progress) error
	UpsertAnswer(a *AnswerRecord) error
	DeleteAnswers() error
}

const unknownQuestionText = "Unknown Question"

// QuestionnaireService drives a user through the question graph.
type QuestionnaireService struct {
	store     QuestionnaireStore
	questions QuestionSource
	tracker   *Tracker
	now       func() time.Time
	idGen     func(prefix string, n int) string
}

func NewQuestionnaireService(store QuestionnaireStore, questions QuestionSource, cfg QuestionnaireConfig) *QuestionnaireService {
	return &QuestionnaireService{
		store:     store,
		questions: questions,
		tracker:   NewTracker(questions, cfg),
		now:       func() time.Time { return time.Now().UTC() },
		idGen:     func(prefix string, n int) string { return prefix + shortID(n) },
	}
}

func (s *QuestionnaireService) ready() error {
	if s.store == nil || s.questions == nil {
		return errors.New("questionnaire service not configured")
	}
	return nil
}

// Start begins, resumes or restarts the questionnaire for the user.
func (s *QuestionnaireService) Start(ctx context.Context, userID string) (*StartResult, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	var result StartResult
	err := s.store.WithUserTx(ctx, userID, func(tx ProgressTx) error {
		p, err := tx.GetProgress()
		if err != nil {
			return err
		}
		np, res, err := s.tracker.Start(p, userID, s.now())
		if err != nil {
			return err
		}
		result = res
		if res.Resumed {
			return nil
		}
		if res.Restarted {
			if err := tx.DeleteAnswers(); err != nil {
				return err
			}
		}
		if np.ID == "" {
			np.ID = s.idGen("p", 12)
		}
		return tx.SaveProgress(np)
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func (s *QuestionnaireService) GetQuestion(questionID string) (*Question, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	q, ok := s.questions.Question(questionID)
	if !ok {
		return nil, NewNotFoundError("Question not found")
	}
	return q, nil
}

// SubmitAnswer answers the current question and returns the question that follows.
func (s *QuestionnaireService) SubmitAnswer(ctx context.Context, userID, questionID string, value AnswerValue) (*NextQuestion, error) {
	return s.answer(ctx, userID, questionID, value, s.tracker.Advance)
}

// EditAnswer revises an answer already on the user's path and recomputes
// everything after it.
func (s *QuestionnaireService) EditAnswer(ctx context.Context, userID, questionID string, value AnswerValue) (*NextQuestion, error) {
	return s.answer(ctx, userID, questionID, value, s.tracker.Edit)
}

type answerStep func(p *Progress, q *Question, answer AnswerValue, now time.Time) (*Progress, NextQuestion, error)

func (s *QuestionnaireService) answer(ctx context.Context, userID, questionID string, value AnswerValue, step answerStep) (*NextQuestion, error) {
	q, err := s.GetQuestion(questionID)
	if err != nil {
		return nil, err
	}
	value = NormalizeAnswer(q, value)
	var result NextQuestion
	err = s.store.WithUserTx(ctx, userID, func(tx ProgressTx) error {
		p, err := tx.GetProgress()
		if err != nil {
			return err
		}
		now := s.now()
		np, next, err := step(p, q, value, now)
		if err != nil {
			return err
		}
		rec := &AnswerRecord{
			ID:             s.idGen("a", 12),
			UserID:         userID,
			QuestionID:     q.ID,
			Value:          value,
			IsCorrect:      CheckCorrect(q, value),
			Timestamp:      now,
			SequenceNumber: s.tracker.SequenceNumber(np, q.ID),
		}
		if err := tx.UpsertAnswer(rec); err != nil {
			return err
		}
		if err := tx.SaveProgress(np); err != nil {
			return err
		}
		result = next
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// Previous steps back from currentQuestionID and returns the question before it.
func (s *QuestionnaireService) Previous(ctx context.Context, userID, currentQuestionID string) (*Question, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	var prev *Question
	err := s.store.WithUserTx(ctx, userID, func(tx ProgressTx) error {
		p, err := tx.GetProgress()
		if err != nil {
			return err
		}
		np, q, err := s.tracker.Rewind(p, currentQuestionID, s.now())
		if err != nil {
			return err
		}
		prev = q
		return tx.SaveProgress(np)
	})
	if err != nil {
		return nil, err
	}
	return prev, nil
}

func (s *QuestionnaireService) progress(ctx context.Context, userID string) (*Progress, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	p, err := s.store.GetProgress(ctx, userID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, NewNotFoundError("User progress not found")
	}
	return p, nil
}

func (s *QuestionnaireService) GetProgress(ctx context.Context, userID string) (*ProgressSnapshot, error) {
	p, err := s.progress(ctx, userID)
	if err != nil {
		return nil, err
	}
	snap := s.tracker.Snapshot(p)
	return &snap, nil
}

// GetSummary lists every stored answer ordered by sequence number. Answers
// orphaned by an edit are kept and flagged with InPath=false.
func (s *QuestionnaireService) GetSummary(ctx context.Context, userID string) (*Summary, error) {
	p, err := s.progress(ctx, userID)
	if err != nil {
		return nil, err
	}
	answers, err := s.store.ListAnswers(ctx, userID)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(answers, func(i, j int) bool {
		return answers[i].SequenceNumber < answers[j].SequenceNumber
	})

	out := &Summary{
		UserAnswers:          make([]SummaryAnswer, 0, len(answers)),
		StartTime:            p.StartTime,
		CompletionPercentage: s.tracker.CompletionPercentage(p),
	}
	for _, a := range answers {
		text := unknownQuestionText
		if q, ok := s.questions.Question(a.QuestionID); ok {
			text = q.Text
		}
		out.UserAnswers = append(out.UserAnswers, SummaryAnswer{
			QuestionID:     a.QuestionID,
			QuestionText:   text,
			AnswerValue:    a.Value,
			IsCorrect:      a.IsCorrect,
			SequenceNumber: a.SequenceNumber,
			InPath:         slices.Contains(p.QuestionPath, a.QuestionID),
			AnsweredAt:     a.Timestamp,
		})
	}
	if p.IsCompleted {
		t := p.LastActivity
		out.CompletionTime = &t
	}
	return out, nil
}

// GetHistory returns the ordered question path.
func (s *QuestionnaireService) GetHistory(ctx context.Context, userID string) ([]string, error) {
	p, err := s.progress(ctx, userID)
	if err != nil {
		return nil, err
	}
	return append([]string{}, p.QuestionPath...), nil
}
