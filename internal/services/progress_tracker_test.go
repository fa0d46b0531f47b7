package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var trackerNow = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

func startTracker(t *testing.T, tr *Tracker) *Progress {
	t.Helper()
	p, res, err := tr.Start(nil, "u1", trackerNow)
	require.NoError(t, err)
	require.False(t, res.Resumed)
	require.False(t, res.Restarted)
	return p
}

func advance(t *testing.T, tr *Tracker, g *QuestionGraph, p *Progress, qid string, a AnswerValue) (*Progress, NextQuestion) {
	t.Helper()
	q, ok := g.Question(qid)
	require.True(t, ok, "question %s", qid)
	np, next, err := tr.Advance(p, q, a, trackerNow)
	require.NoError(t, err)
	return np, next
}

func TestTrackerStart(t *testing.T) {
	g := smartphoneGraph(t)
	tr := NewTracker(g, g.Config())

	p := startTracker(t, tr)
	assert.Equal(t, "q1", p.CurrentQuestionID)
	assert.Equal(t, []string{"q1"}, p.QuestionPath)
	assert.Empty(t, p.CompletedQuestions)
	assert.Equal(t, StateInProgress, p.State())

	p, _ = advance(t, tr, g, p, "q1", StringAnswer("iOS"))
	resumed, res, err := tr.Start(p, "u1", trackerNow.Add(time.Hour))
	require.NoError(t, err)
	assert.True(t, res.Resumed)
	assert.Equal(t, "q2", res.Question.ID)
	assert.Equal(t, p, resumed)

	done := p.Clone()
	done.IsCompleted = true
	done.CurrentQuestionID = ""
	done.ID = "p1"
	later := trackerNow.Add(2 * time.Hour)
	restarted, res, err := tr.Start(done, "u1", later)
	require.NoError(t, err)
	assert.True(t, res.Restarted)
	assert.Equal(t, "q1", res.Question.ID)
	assert.Equal(t, "p1", restarted.ID)
	assert.Equal(t, []string{"q1"}, restarted.QuestionPath)
	assert.Empty(t, restarted.CompletedQuestions)
	assert.False(t, restarted.IsCompleted)
	assert.Equal(t, later, restarted.StartTime)

	broken := p.Clone()
	broken.CurrentQuestionID = "gone"
	_, res, err = tr.Start(broken, "u1", later)
	require.NoError(t, err)
	assert.True(t, res.Restarted)
}

func TestTrackerStartWithoutQuestions(t *testing.T) {
	tr := NewTracker(emptySource{}, DefaultQuestionnaireConfig())
	_, _, err := tr.Start(nil, "u1", trackerNow)
	assert.True(t, IsCode(err, ErrorNotFound))
}

type emptySource struct{}

func (emptySource) Question(string) (*Question, bool) { return nil, false }
func (emptySource) First() *Question                  { return nil }

func TestTrackerAdvanceBranches(t *testing.T) {
	g := smartphoneGraph(t)
	tr := NewTracker(g, g.Config())
	p := startTracker(t, tr)

	np, next := advance(t, tr, g, p, "q1", StringAnswer("iOS"))
	require.NotNil(t, next.Question)
	assert.Equal(t, "q2", next.Question.ID)
	assert.False(t, next.IsLast)
	assert.Equal(t, []string{"q1", "q2"}, np.QuestionPath)
	assert.Equal(t, []string{"q1"}, np.CompletedQuestions)
	assert.Equal(t, "q2", np.CurrentQuestionID)
	assert.Equal(t, []string{"q1"}, p.QuestionPath, "input must not be mutated")
}

func TestTrackerAdvanceRejects(t *testing.T) {
	g := smartphoneGraph(t)
	tr := NewTracker(g, g.Config())
	p := startTracker(t, tr)
	q1, _ := g.Question("q1")
	q2, _ := g.Question("q2")

	_, _, err := tr.Advance(nil, q1, StringAnswer("iOS"), trackerNow)
	assert.True(t, IsCode(err, ErrorNotFound))

	_, _, err = tr.Advance(p, q2, StringAnswer("iPhone 11-13"), trackerNow)
	assert.True(t, IsCode(err, ErrorInvalid), "not the current question")

	_, _, err = tr.Advance(p, q1, StringAnswer("BlackBerry"), trackerNow)
	assert.True(t, IsCode(err, ErrorInvalid), "not an option")

	done := p.Clone()
	done.IsCompleted = true
	_, _, err = tr.Advance(done, q1, StringAnswer("iOS"), trackerNow)
	assert.True(t, IsCode(err, ErrorInvalid))
}

func TestTrackerAdvanceDanglingReference(t *testing.T) {
	qs := linearQuestions(2)
	g := mustGraph(t, qs, DefaultQuestionnaireConfig())
	// Bypass load-time validation to simulate corrupt stored data.
	q1, _ := g.Question("q1")
	q1.NextQuestionMapping["skip"] = "q404"
	tr := NewTracker(g, g.Config())
	p := startTracker(t, tr)

	_, _, err := tr.Advance(p, q1, StringAnswer("skip"), trackerNow)
	assert.True(t, IsCode(err, ErrorNotFound))
}

func TestTrackerResubmitIsIdempotent(t *testing.T) {
	g := smartphoneGraph(t)
	tr := NewTracker(g, g.Config())
	p := startTracker(t, tr)

	p, _ = advance(t, tr, g, p, "q1", StringAnswer("iOS"))
	p, _, err := tr.Rewind(p, "q2", trackerNow)
	require.NoError(t, err)
	assert.Equal(t, "q1", p.CurrentQuestionID)

	p, next := advance(t, tr, g, p, "q1", StringAnswer("iOS"))
	assert.Equal(t, "q2", next.Question.ID)
	assert.Equal(t, []string{"q1", "q2"}, p.QuestionPath)
	assert.Equal(t, []string{"q1"}, p.CompletedQuestions)
}

func TestTrackerEditTruncatesAndReroutes(t *testing.T) {
	g := smartphoneGraph(t)
	tr := NewTracker(g, g.Config())
	p := startTracker(t, tr)
	p, _ = advance(t, tr, g, p, "q1", StringAnswer("iOS"))
	p, _ = advance(t, tr, g, p, "q2", StringAnswer("iPhone 11-13"))
	p, _ = advance(t, tr, g, p, "q5", NumberAnswer(4))
	require.Equal(t, []string{"q1", "q2", "q5", "q6"}, p.QuestionPath)

	q1, _ := g.Question("q1")
	np, next, err := tr.Edit(p, q1, StringAnswer("Android"), trackerNow)
	require.NoError(t, err)
	assert.Equal(t, "q3", next.Question.ID)
	assert.Equal(t, []string{"q1", "q3"}, np.QuestionPath)
	assert.Equal(t, []string{"q1"}, np.CompletedQuestions)
	assert.Equal(t, "q3", np.CurrentQuestionID)

	q2, _ := g.Question("q2")
	_, _, err = tr.Edit(np, q2, StringAnswer("iPhone X-8"), trackerNow)
	assert.True(t, IsCode(err, ErrorInvalid), "q2 is no longer on the path")
}

func TestTrackerEditTruncationProperty(t *testing.T) {
	g := mustGraph(t, linearQuestions(6), DefaultQuestionnaireConfig())
	tr := NewTracker(g, g.Config())
	full := startTracker(t, tr)
	for _, id := range []string{"q1", "q2", "q3", "q4"} {
		full, _ = advance(t, tr, g, full, id, StringAnswer("x"))
	}
	require.Len(t, full.QuestionPath, 5)

	for k, id := range full.QuestionPath[:4] {
		q, _ := g.Question(id)
		np, _, err := tr.Edit(full, q, StringAnswer("y"), trackerNow)
		require.NoError(t, err)
		// one re-extension step past the edited question
		assert.Len(t, np.QuestionPath, k+2)
		assert.Equal(t, full.QuestionPath[:k+1], np.QuestionPath[:k+1])
		for _, c := range np.CompletedQuestions {
			idx := indexOf(np.QuestionPath, c)
			assert.True(t, idx >= 0 && idx <= k, "completed %s at %d beyond %d", c, idx, k)
		}
	}
}

func TestTrackerEditOnCompletedReopens(t *testing.T) {
	g := mustGraph(t, linearQuestions(3), DefaultQuestionnaireConfig())
	tr := NewTracker(g, g.Config())
	p := startTracker(t, tr)
	for _, id := range []string{"q1", "q2", "q3"} {
		p, _ = advance(t, tr, g, p, id, StringAnswer("x"))
	}
	require.True(t, p.IsCompleted)

	q2, _ := g.Question("q2")
	np, next, err := tr.Edit(p, q2, StringAnswer("y"), trackerNow)
	require.NoError(t, err)
	assert.False(t, np.IsCompleted)
	assert.Equal(t, "q3", next.Question.ID)
	assert.Equal(t, []string{"q1", "q2"}, np.CompletedQuestions)
}

func TestTrackerRewind(t *testing.T) {
	g := smartphoneGraph(t)
	tr := NewTracker(g, g.Config())
	p := startTracker(t, tr)
	p, _ = advance(t, tr, g, p, "q1", StringAnswer("iOS"))

	np, prev, err := tr.Rewind(p, "q2", trackerNow)
	require.NoError(t, err)
	assert.Equal(t, "q1", prev.ID)
	assert.Equal(t, "q1", np.CurrentQuestionID)
	assert.Equal(t, []string{"q1"}, np.QuestionPath)

	_, _, err = tr.Rewind(np, "q1", trackerNow)
	require.Error(t, err)
	assert.True(t, IsCode(err, ErrorInvalid))
	assert.Contains(t, err.Error(), "first question")

	_, _, err = tr.Rewind(np, "q9", trackerNow)
	assert.True(t, IsCode(err, ErrorInvalid))

	_, _, err = tr.Rewind(nil, "q2", trackerNow)
	assert.True(t, IsCode(err, ErrorNotFound))
}

func TestTrackerRewindFromCompleted(t *testing.T) {
	g := mustGraph(t, linearQuestions(2), DefaultQuestionnaireConfig())
	tr := NewTracker(g, g.Config())
	p := startTracker(t, tr)
	p, _ = advance(t, tr, g, p, "q1", StringAnswer("x"))
	p, next := advance(t, tr, g, p, "q2", StringAnswer("x"))
	require.True(t, next.IsLast)

	np, prev, err := tr.Rewind(p, "q2", trackerNow)
	require.NoError(t, err)
	assert.Equal(t, "q1", prev.ID)
	assert.False(t, np.IsCompleted)
	assert.Equal(t, []string{"q1"}, np.CompletedQuestions)
}

func TestTrackerCapEndsQuestionnaire(t *testing.T) {
	g := mustGraph(t, linearQuestions(12), DefaultQuestionnaireConfig())
	tr := NewTracker(g, g.Config())
	p := startTracker(t, tr)

	var next NextQuestion
	for i := 1; i <= 10; i++ {
		require.False(t, p.IsCompleted, "completed early at %d", i)
		p, next = advance(t, tr, g, p, p.CurrentQuestionID, StringAnswer("x"))
	}
	assert.True(t, next.IsLast)
	assert.Nil(t, next.Question)
	assert.True(t, p.IsCompleted)
	assert.Empty(t, p.CurrentQuestionID)
	assert.Len(t, p.CompletedQuestions, 10)
	assert.Equal(t, 100.0, tr.CompletionPercentage(p))

	snap := tr.Snapshot(p)
	assert.Nil(t, snap.CurrentQuestionID)
	assert.True(t, snap.IsCompleted)
	assert.Equal(t, 100.0, snap.CompletionPercentage)
}

func TestTrackerCompletionPercentage(t *testing.T) {
	tr := NewTracker(emptySource{}, QuestionnaireConfig{TotalQuestions: 4})
	assert.Equal(t, 0.0, tr.CompletionPercentage(nil))
	assert.Equal(t, 50.0, tr.CompletionPercentage(&Progress{CompletedQuestions: []string{"a", "b"}}))
	assert.Equal(t, 100.0, tr.CompletionPercentage(&Progress{CompletedQuestions: []string{"a", "b", "c", "d", "e"}}))
}

func indexOf(ids []string, id string) int {
	for i, v := range ids {
		if v == id {
			return i
		}
	}
	return -1
}
