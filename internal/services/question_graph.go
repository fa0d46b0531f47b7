package services

import (
	"strings"
)

// QuestionnaireConfig carries the traversal settings fixed at construction.
type QuestionnaireConfig struct {
	// TotalQuestions caps the number of completed questions; reaching it ends the questionnaire.
	TotalQuestions int
	// TerminalMarker is the mapping value that means "no further question".
	TerminalMarker string
}

func DefaultQuestionnaireConfig() QuestionnaireConfig {
	return QuestionnaireConfig{TotalQuestions: 10, TerminalMarker: "end"}
}

// QuestionSource is the read-only question lookup the progress tracker depends on.
type QuestionSource interface {
	Question(id string) (*Question, bool)
	First() *Question
}

// QuestionGraph is a validated, immutable set of questions.
type QuestionGraph struct {
	cfg       QuestionnaireConfig
	questions []*Question
	byID      map[string]*Question
	first     *Question
}

var _ QuestionSource = (*QuestionGraph)(nil)

// NewQuestionGraph validates the questions and builds the lookup index.
// startID selects the first question; when empty the first listed question is used.
func NewQuestionGraph(questions []*Question, startID string, cfg QuestionnaireConfig) (*QuestionGraph, error) {
	if strings.TrimSpace(startID) == "" && len(questions) > 0 && questions[0] != nil {
		startID = questions[0].ID
	}
	if err := validateQuestions(questions, startID, cfg); err != nil {
		return nil, err
	}
	g := &QuestionGraph{
		cfg:       cfg,
		questions: make([]*Question, 0, len(questions)),
		byID:      make(map[string]*Question, len(questions)),
	}
	for _, q := range questions {
		cp := cloneQuestion(q)
		g.questions = append(g.questions, cp)
		g.byID[cp.ID] = cp
	}
	g.first = g.byID[startID]
	return g, nil
}

func (g *QuestionGraph) Question(id string) (*Question, bool) {
	q, ok := g.byID[id]
	return q, ok
}

func (g *QuestionGraph) First() *Question { return g.first }

func (g *QuestionGraph) Questions() []*Question {
	return append([]*Question(nil), g.questions...)
}

func (g *QuestionGraph) Len() int { return len(g.questions) }

func (g *QuestionGraph) Config() QuestionnaireConfig { return g.cfg }

// ResolveNext returns the next question ID for the answer, or terminal=true
// when the questionnaire ends here. The returned ID is not checked against the graph.
func ResolveNext(q *Question, answer AnswerValue, cfg QuestionnaireConfig) (next string, terminal bool) {
	if q == nil {
		return "", true
	}
	target, ok := q.NextQuestionMapping[answer.Canonical()]
	if !ok {
		target, ok = q.NextQuestionMapping[DefaultTransitionKey]
	}
	if !ok || isTerminal(target, cfg) {
		return "", true
	}
	return target, false
}

// ResolveNext resolves with the graph's configuration.
func (g *QuestionGraph) ResolveNext(q *Question, answer AnswerValue) (string, bool) {
	return ResolveNext(q, answer, g.cfg)
}

func isTerminal(target string, cfg QuestionnaireConfig) bool {
	target = strings.TrimSpace(target)
	return target == "" || (cfg.TerminalMarker != "" && target == cfg.TerminalMarker)
}

// CheckCorrect returns nil for ungraded questions.
func CheckCorrect(q *Question, answer AnswerValue) *bool {
	if q == nil || q.CorrectAnswer == nil {
		return nil
	}
	ok := q.CorrectAnswer.Equal(answer)
	return &ok
}

func cloneQuestion(q *Question) *Question {
	cp := *q
	cp.Options = append([]string(nil), q.Options...)
	cp.NextQuestionMapping = make(map[string]string, len(q.NextQuestionMapping))
	for k, v := range q.NextQuestionMapping {
		cp.NextQuestionMapping[k] = v
	}
	if q.CorrectAnswer != nil {
		ca := *q.CorrectAnswer
		ca.list = append([]string(nil), q.CorrectAnswer.list...)
		cp.CorrectAnswer = &ca
	}
	if q.ValidationRules != nil {
		rules := *q.ValidationRules
		cp.ValidationRules = &rules
	}
	return &cp
}
