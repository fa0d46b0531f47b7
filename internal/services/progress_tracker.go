package services

import (
	"fmt"
	"log"
	"slices"
	"time"
)

// Tracker applies navigation rules to a user's progress record. It never
// mutates its input; every operation returns a new record for the caller to persist.
type Tracker struct {
	questions QuestionSource
	cfg       QuestionnaireConfig
}

func NewTracker(questions QuestionSource, cfg QuestionnaireConfig) *Tracker {
	return &Tracker{questions: questions, cfg: cfg}
}

func (t *Tracker) Config() QuestionnaireConfig { return t.cfg }

// Start positions the user at the question to answer. A completed or broken
// record is reset to the first question and result.Restarted is set, in which
// case the caller must also clear the user's stored answers.
func (t *Tracker) Start(p *Progress, userID string, now time.Time) (*Progress, StartResult, error) {
	first := t.questions.First()
	if first == nil {
		return nil, StartResult{}, NewNotFoundError("No questions available")
	}

	if p != nil && !p.IsCompleted {
		if q, ok := t.questions.Question(p.CurrentQuestionID); ok {
			return p.Clone(), StartResult{Question: q, Resumed: true}, nil
		}
		log.Printf("progress tracker: user %s points at unknown question %q, restarting", p.UserID, p.CurrentQuestionID)
	}

	np := &Progress{
		UserID:             userID,
		CurrentQuestionID:  first.ID,
		CompletedQuestions: []string{},
		QuestionPath:       []string{first.ID},
		StartTime:          now,
		LastActivity:       now,
	}
	if p == nil {
		return np, StartResult{Question: first}, nil
	}
	np.ID = p.ID
	return np, StartResult{Question: first, Restarted: true}, nil
}

// Advance records an answer to the current question and moves forward.
func (t *Tracker) Advance(p *Progress, q *Question, answer AnswerValue, now time.Time) (*Progress, NextQuestion, error) {
	if p == nil {
		return nil, NextQuestion{}, NewNotFoundError("User progress not found")
	}
	if q == nil {
		return nil, NextQuestion{}, NewNotFoundError("Question not found")
	}
	if p.IsCompleted {
		return nil, NextQuestion{}, NewInvalidError("Questionnaire already completed")
	}
	if p.CurrentQuestionID != q.ID {
		return nil, NextQuestion{}, NewInvalidError(fmt.Sprintf("Question %s is not the current question", q.ID))
	}
	if err := ValidateAnswer(q, answer); err != nil {
		return nil, NextQuestion{}, err
	}
	answer = NormalizeAnswer(q, answer)
	next, err := t.next(q, answer)
	if err != nil {
		return nil, NextQuestion{}, err
	}

	np := p.Clone()
	if !slices.Contains(np.CompletedQuestions, q.ID) {
		np.CompletedQuestions = append(np.CompletedQuestions, q.ID)
	}
	if !slices.Contains(np.QuestionPath, q.ID) {
		np.QuestionPath = append(np.QuestionPath, q.ID)
	}
	return np, t.extend(np, next, now), nil
}

// Edit replaces the answer to a question already on the path. Everything
// after that question is discarded and the path is re-extended from the new answer.
func (t *Tracker) Edit(p *Progress, q *Question, answer AnswerValue, now time.Time) (*Progress, NextQuestion, error) {
	if p == nil {
		return nil, NextQuestion{}, NewNotFoundError("User progress not found")
	}
	if q == nil {
		return nil, NextQuestion{}, NewNotFoundError("Question not found")
	}
	idx := slices.Index(p.QuestionPath, q.ID)
	if idx < 0 {
		return nil, NextQuestion{}, NewInvalidError("Question not found in user's path")
	}
	if err := ValidateAnswer(q, answer); err != nil {
		return nil, NextQuestion{}, err
	}
	answer = NormalizeAnswer(q, answer)
	next, err := t.next(q, answer)
	if err != nil {
		return nil, NextQuestion{}, err
	}

	np := p.Clone()
	np.QuestionPath = np.QuestionPath[:idx+1]
	np.CompletedQuestions = keepOnPath(np.CompletedQuestions, np.QuestionPath)
	if !slices.Contains(np.CompletedQuestions, q.ID) {
		np.CompletedQuestions = append(np.CompletedQuestions, q.ID)
	}
	return np, t.extend(np, next, now), nil
}

// Rewind moves the current pointer to the question before currentID and drops
// currentID and anything after it from the path.
func (t *Tracker) Rewind(p *Progress, currentID string, now time.Time) (*Progress, *Question, error) {
	if p == nil {
		return nil, nil, NewNotFoundError("User progress not found")
	}
	idx := slices.Index(p.QuestionPath, currentID)
	if idx < 0 {
		return nil, nil, NewInvalidError("Current question not found in user's path")
	}
	if idx == 0 {
		return nil, nil, NewInvalidError("This is the first question")
	}
	prevID := p.QuestionPath[idx-1]
	prev, ok := t.questions.Question(prevID)
	if !ok {
		return nil, nil, NewNotFoundError(fmt.Sprintf("Previous question %s not found", prevID))
	}

	np := p.Clone()
	np.QuestionPath = np.QuestionPath[:idx]
	np.CompletedQuestions = keepOnPath(np.CompletedQuestions, np.QuestionPath)
	np.CurrentQuestionID = prevID
	np.IsCompleted = false
	np.LastActivity = now
	return np, prev, nil
}

// SequenceNumber is the 1-based position of the question on the path, or 0.
func (t *Tracker) SequenceNumber(p *Progress, questionID string) int {
	if p == nil {
		return 0
	}
	return slices.Index(p.QuestionPath, questionID) + 1
}

func (t *Tracker) CompletionPercentage(p *Progress) float64 {
	if p == nil || t.cfg.TotalQuestions <= 0 {
		return 0
	}
	done := min(len(p.CompletedQuestions), t.cfg.TotalQuestions)
	return float64(done) / float64(t.cfg.TotalQuestions) * 100
}

func (t *Tracker) Snapshot(p *Progress) ProgressSnapshot {
	if p == nil {
		return ProgressSnapshot{CompletedQuestions: []string{}, QuestionPath: []string{}}
	}
	snap := ProgressSnapshot{
		CompletedQuestions:   append([]string{}, p.CompletedQuestions...),
		QuestionPath:         append([]string{}, p.QuestionPath...),
		StartTime:            p.StartTime,
		LastActivity:         p.LastActivity,
		IsCompleted:          p.IsCompleted,
		CompletionPercentage: t.CompletionPercentage(p),
	}
	if p.CurrentQuestionID != "" {
		id := p.CurrentQuestionID
		snap.CurrentQuestionID = &id
	}
	return snap
}

// next resolves the follow-up question; nil means the questionnaire ends.
func (t *Tracker) next(q *Question, answer AnswerValue) (*Question, error) {
	id, terminal := ResolveNext(q, answer, t.cfg)
	if terminal {
		return nil, nil
	}
	nq, ok := t.questions.Question(id)
	if !ok {
		log.Printf("progress tracker: question %s maps %q to unknown question %q", q.ID, answer.Canonical(), id)
		return nil, NewNotFoundError(fmt.Sprintf("Next question %s not found", id))
	}
	return nq, nil
}

func (t *Tracker) extend(np *Progress, next *Question, now time.Time) NextQuestion {
	np.LastActivity = now
	if next == nil || len(np.CompletedQuestions) >= t.cfg.TotalQuestions {
		np.CurrentQuestionID = ""
		np.IsCompleted = true
		return NextQuestion{IsLast: true}
	}
	np.CurrentQuestionID = next.ID
	np.IsCompleted = false
	if !slices.Contains(np.QuestionPath, next.ID) {
		np.QuestionPath = append(np.QuestionPath, next.ID)
	}
	return NextQuestion{Question: next}
}

func keepOnPath(ids, path []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if slices.Contains(path, id) {
			out = append(out, id)
		}
	}
	return out
}
