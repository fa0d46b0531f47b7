package services

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type questionnaireStubStore struct {
	progress map[string]*Progress
	answers  map[string]map[string]*AnswerRecord
	failSave bool
}

func newQuestionnaireStubStore() *questionnaireStubStore {
	return &questionnaireStubStore{
		progress: map[string]*Progress{},
		answers:  map[string]map[string]*AnswerRecord{},
	}
}

func (s *questionnaireStubStore) GetProgress(_ context.Context, userID string) (*Progress, error) {
	return s.progress[userID].Clone(), nil
}

func (s *questionnaireStubStore) ListAnswers(_ context.Context, userID string) ([]*AnswerRecord, error) {
	var out []*AnswerRecord
	for _, a := range s.answers[userID] {
		cp := *a
		out = append(out, &cp)
	}
	return out, nil
}

func (s *questionnaireStubStore) WithUserTx(_ context.Context, userID string, fn func(tx ProgressTx) error) error {
	tx := &stubTx{store: s, userID: userID, answers: map[string]*AnswerRecord{}}
	for k, v := range s.answers[userID] {
		cp := *v
		tx.answers[k] = &cp
	}
	tx.progress = s.progress[userID].Clone()
	if err := fn(tx); err != nil {
		return err
	}
	if s.failSave {
		return errors.New("commit failed")
	}
	if tx.progress != nil {
		s.progress[userID] = tx.progress
	}
	s.answers[userID] = tx.answers
	return nil
}

type stubTx struct {
	store    *questionnaireStubStore
	userID   string
	progress *Progress
	answers  map[string]*AnswerRecord
}

func (tx *stubTx) GetProgress() (*Progress, error) { return tx.progress.Clone(), nil }

func (tx *stubTx) SaveProgress(p *Progress) error {
	tx.progress = p.Clone()
	return nil
}

func (tx *stubTx) UpsertAnswer(a *AnswerRecord) error {
	cp := *a
	if existing, ok := tx.answers[a.QuestionID]; ok {
		cp.ID = existing.ID
	}
	tx.answers[a.QuestionID] = &cp
	return nil
}

func (tx *stubTx) DeleteAnswers() error {
	tx.answers = map[string]*AnswerRecord{}
	return nil
}

func newTestQuestionnaire(t *testing.T, g *QuestionGraph) (*QuestionnaireService, *questionnaireStubStore) {
	t.Helper()
	store := newQuestionnaireStubStore()
	svc := NewQuestionnaireService(store, g, g.Config())
	clock := time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC)
	svc.now = func() time.Time {
		clock = clock.Add(time.Minute)
		return clock
	}
	n := 0
	svc.idGen = func(prefix string, _ int) string {
		n++
		return fmt.Sprintf("%s%d", prefix, n)
	}
	return svc, store
}

func TestQuestionnaireScenarioBranchEditRewind(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestQuestionnaire(t, smartphoneGraph(t))

	start, err := svc.Start(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "q1", start.Question.ID)

	next, err := svc.SubmitAnswer(ctx, "u1", "q1", StringAnswer("iOS"))
	require.NoError(t, err)
	assert.Equal(t, "q2", next.Question.ID)
	assert.False(t, next.IsLast)

	history, err := svc.GetHistory(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"q1", "q2"}, history)

	_, err = svc.SubmitAnswer(ctx, "u1", "q2", StringAnswer("iPhone 14 or newer"))
	require.NoError(t, err)

	next, err = svc.EditAnswer(ctx, "u1", "q1", StringAnswer("Android"))
	require.NoError(t, err)
	assert.Equal(t, "q3", next.Question.ID)

	history, err = svc.GetHistory(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"q1", "q3"}, history)

	// The q2 answer survives but is no longer on the path.
	require.Contains(t, store.answers["u1"], "q2")
	summary, err := svc.GetSummary(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, summary.UserAnswers, 2)
	assert.Equal(t, "q1", summary.UserAnswers[0].QuestionID)
	assert.True(t, summary.UserAnswers[0].InPath)
	assert.Equal(t, StringAnswer("Android"), summary.UserAnswers[0].AnswerValue)
	assert.Equal(t, "q2", summary.UserAnswers[1].QuestionID)
	assert.False(t, summary.UserAnswers[1].InPath)
	assert.Nil(t, summary.CompletionTime)

	prev, err := svc.Previous(ctx, "u1", "q3")
	require.NoError(t, err)
	assert.Equal(t, "q1", prev.ID)

	_, err = svc.Previous(ctx, "u1", "q1")
	assert.True(t, IsCode(err, ErrorInvalid))

	snap, err := svc.GetProgress(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, snap.CurrentQuestionID)
	assert.Equal(t, "q1", *snap.CurrentQuestionID)
}

func TestQuestionnaireAnswerOverwritesInPlace(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestQuestionnaire(t, smartphoneGraph(t))
	_, err := svc.Start(ctx, "u1")
	require.NoError(t, err)

	_, err = svc.SubmitAnswer(ctx, "u1", "q1", StringAnswer("iOS"))
	require.NoError(t, err)
	firstID := store.answers["u1"]["q1"].ID

	_, err = svc.EditAnswer(ctx, "u1", "q1", StringAnswer("Other"))
	require.NoError(t, err)
	require.Len(t, store.answers["u1"], 1)
	assert.Equal(t, firstID, store.answers["u1"]["q1"].ID)
	assert.Equal(t, "Other", store.answers["u1"]["q1"].Value.Str())
	assert.Equal(t, 1, store.answers["u1"]["q1"].SequenceNumber)
}

func TestQuestionnaireRestartClearsAnswers(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestQuestionnaire(t, mustGraph(t, linearQuestions(2), DefaultQuestionnaireConfig()))
	_, err := svc.Start(ctx, "u1")
	require.NoError(t, err)
	_, err = svc.SubmitAnswer(ctx, "u1", "q1", StringAnswer("a"))
	require.NoError(t, err)
	next, err := svc.SubmitAnswer(ctx, "u1", "q2", StringAnswer("b"))
	require.NoError(t, err)
	assert.True(t, next.IsLast)
	assert.Nil(t, next.Question)

	summary, err := svc.GetSummary(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, summary.CompletionTime)
	assert.Equal(t, store.progress["u1"].LastActivity, *summary.CompletionTime)
	assert.Equal(t, 20.0, summary.CompletionPercentage)
	progressID := store.progress["u1"].ID

	start, err := svc.Start(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, start.Restarted)
	assert.Equal(t, "q1", start.Question.ID)
	assert.Empty(t, store.answers["u1"])
	assert.Equal(t, progressID, store.progress["u1"].ID)

	resumed, err := svc.Start(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, resumed.Resumed)
}

func TestQuestionnaireFailuresLeaveStateUntouched(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestQuestionnaire(t, smartphoneGraph(t))

	_, err := svc.SubmitAnswer(ctx, "u1", "q1", StringAnswer("iOS"))
	assert.True(t, IsCode(err, ErrorNotFound), "no progress yet")
	_, err = svc.GetProgress(ctx, "u1")
	assert.True(t, IsCode(err, ErrorNotFound))
	_, err = svc.GetSummary(ctx, "u1")
	assert.True(t, IsCode(err, ErrorNotFound))
	_, err = svc.GetHistory(ctx, "u1")
	assert.True(t, IsCode(err, ErrorNotFound))

	_, err = svc.Start(ctx, "u1")
	require.NoError(t, err)
	before := store.progress["u1"].Clone()

	_, err = svc.SubmitAnswer(ctx, "u1", "nope", StringAnswer("x"))
	assert.True(t, IsCode(err, ErrorNotFound))
	_, err = svc.SubmitAnswer(ctx, "u1", "q1", StringAnswer("Symbian"))
	assert.True(t, IsCode(err, ErrorInvalid))
	_, err = svc.SubmitAnswer(ctx, "u1", "q5", NumberAnswer(3))
	assert.True(t, IsCode(err, ErrorInvalid))
	_, err = svc.EditAnswer(ctx, "u1", "q7", StringAnswer("2024-01-01"))
	assert.True(t, IsCode(err, ErrorInvalid))

	assert.Equal(t, before, store.progress["u1"])
	assert.Empty(t, store.answers["u1"])

	store.failSave = true
	_, err = svc.SubmitAnswer(ctx, "u1", "q1", StringAnswer("iOS"))
	require.Error(t, err)
	assert.Equal(t, before, store.progress["u1"])

	_, err = svc.GetQuestion("q404")
	assert.True(t, IsCode(err, ErrorNotFound))
}

func TestQuestionnaireCompletesAfterTenAnswers(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestQuestionnaire(t, mustGraph(t, linearQuestions(11), DefaultQuestionnaireConfig()))
	res, err := svc.Start(ctx, "u1")
	require.NoError(t, err)

	q := res.Question
	var next *NextQuestion
	for i := 0; i < 10; i++ {
		require.NotNil(t, q, "ran out of questions at %d", i)
		next, err = svc.SubmitAnswer(ctx, "u1", q.ID, StringAnswer("x"))
		require.NoError(t, err)
		q = next.Question
	}
	assert.True(t, next.IsLast)

	snap, err := svc.GetProgress(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, snap.IsCompleted)
	assert.Nil(t, snap.CurrentQuestionID)
	assert.Equal(t, 100.0, snap.CompletionPercentage)

	summary, err := svc.GetSummary(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, summary.UserAnswers, 10)
	for i, a := range summary.UserAnswers {
		assert.Equal(t, i+1, a.SequenceNumber)
	}
}

func TestQuestionnaireSummaryUnknownQuestion(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestQuestionnaire(t, smartphoneGraph(t))
	_, err := svc.Start(ctx, "u1")
	require.NoError(t, err)
	store.answers["u1"] = map[string]*AnswerRecord{
		"retired": {ID: "a9", UserID: "u1", QuestionID: "retired", Value: StringAnswer("x"), SequenceNumber: 1},
	}

	summary, err := svc.GetSummary(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, summary.UserAnswers, 1)
	assert.Equal(t, "Unknown Question", summary.UserAnswers[0].QuestionText)
}

func TestQuestionnaireGradedAnswer(t *testing.T) {
	ctx := context.Background()
	qs := linearQuestions(2)
	correct := StringAnswer("Paris")
	qs[0].CorrectAnswer = &correct
	svc, store := newTestQuestionnaire(t, mustGraph(t, qs, DefaultQuestionnaireConfig()))
	_, err := svc.Start(ctx, "u1")
	require.NoError(t, err)

	_, err = svc.SubmitAnswer(ctx, "u1", "q1", StringAnswer("Lyon"))
	require.NoError(t, err)
	require.NotNil(t, store.answers["u1"]["q1"].IsCorrect)
	assert.False(t, *store.answers["u1"]["q1"].IsCorrect)

	_, err = svc.EditAnswer(ctx, "u1", "q1", StringAnswer("Paris"))
	require.NoError(t, err)
	assert.True(t, *store.answers["u1"]["q1"].IsCorrect)

	_, err = svc.SubmitAnswer(ctx, "u1", "q2", StringAnswer("any"))
	require.NoError(t, err)
	assert.Nil(t, store.answers["u1"]["q2"].IsCorrect)
}

func TestQuestionnaireExportAnswers(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestQuestionnaire(t, smartphoneGraph(t))

	_, err := svc.ExportAnswers(ctx, "u1", "csv")
	assert.True(t, IsCode(err, ErrorNotFound), "got %v", err)

	_, err = svc.Start(ctx, "u1")
	require.NoError(t, err)
	_, err = svc.SubmitAnswer(ctx, "u1", "q1", StringAnswer("Android"))
	require.NoError(t, err)

	res, err := svc.ExportAnswers(ctx, "u1", "")
	require.NoError(t, err)
	assert.Equal(t, "answers.csv", res.Filename)
	recs, err := readCSV(res.Data)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, []string{"q1", "Android", "true"}, []string{recs[1][1], recs[1][3], recs[1][5]})

	res, err = svc.ExportAnswers(ctx, "u1", "JSON")
	require.NoError(t, err)
	assert.Equal(t, "application/json", res.ContentType)
	assert.Contains(t, string(res.Data), `"user_answers"`)

	_, err = svc.ExportAnswers(ctx, "u1", "xlsx")
	assert.True(t, IsCode(err, ErrorInvalid))
}

func TestQuestionnaireNumericStringAnswer(t *testing.T) {
	ctx := context.Background()
	five := NumberAnswer(5)
	qs := []*Question{
		{ID: "q1", Text: "How many?", Type: QuestionNumber, CorrectAnswer: &five,
			NextQuestionMapping: map[string]string{"5": "q2", DefaultTransitionKey: "q3"}},
		{ID: "q2", Text: "Five", Type: QuestionText, NextQuestionMapping: map[string]string{DefaultTransitionKey: ""}},
		{ID: "q3", Text: "Other", Type: QuestionText, NextQuestionMapping: map[string]string{DefaultTransitionKey: ""}},
	}
	svc, store := newTestQuestionnaire(t, mustGraph(t, qs, DefaultQuestionnaireConfig()))

	for _, raw := range []string{"5", " 5.0", "5e0"} {
		_, err := svc.Start(ctx, "u-"+raw)
		require.NoError(t, err)
		next, err := svc.SubmitAnswer(ctx, "u-"+raw, "q1", StringAnswer(raw))
		require.NoError(t, err, raw)
		require.NotNil(t, next.Question, raw)
		assert.Equal(t, "q2", next.Question.ID, raw)

		rec := store.answers["u-"+raw]["q1"]
		require.NotNil(t, rec.IsCorrect, raw)
		assert.True(t, *rec.IsCorrect, raw)
		assert.Equal(t, NumberAnswer(5), rec.Value, raw)
	}

	_, err := svc.Start(ctx, "u-edit")
	require.NoError(t, err)
	next, err := svc.SubmitAnswer(ctx, "u-edit", "q1", NumberAnswer(4))
	require.NoError(t, err)
	assert.Equal(t, "q3", next.Question.ID)
	assert.False(t, *store.answers["u-edit"]["q1"].IsCorrect)

	next, err = svc.EditAnswer(ctx, "u-edit", "q1", StringAnswer("5"))
	require.NoError(t, err)
	assert.Equal(t, "q2", next.Question.ID)
	assert.True(t, *store.answers["u-edit"]["q1"].IsCorrect)
}
