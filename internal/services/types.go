package services

import "time"

type QuestionType string

const (
	QuestionText           QuestionType = "text"
	QuestionNumber         QuestionType = "number"
	QuestionDate           QuestionType = "date"
	QuestionSingleChoice   QuestionType = "single_choice"
	QuestionMultipleChoice QuestionType = "multiple_choice"
)

func (t QuestionType) Valid() bool {
	switch t {
	case QuestionText, QuestionNumber, QuestionDate, QuestionSingleChoice, QuestionMultipleChoice:
		return true
	}
	return false
}

func (t QuestionType) IsChoice() bool {
	return t == QuestionSingleChoice || t == QuestionMultipleChoice
}

// DefaultTransitionKey is the fallback entry every transition mapping must carry.
const DefaultTransitionKey = "default"

type ValidationRules struct {
	MinLength  *int     `json:"min_length,omitempty"`
	MaxLength  *int     `json:"max_length,omitempty"`
	Min        *float64 `json:"min,omitempty"`
	Max        *float64 `json:"max,omitempty"`
	MinChoices *int     `json:"min_choices,omitempty"`
	MaxChoices *int     `json:"max_choices,omitempty"`
}

// Question is a node of the questionnaire graph. Immutable once loaded.
type Question struct {
	ID                  string            `json:"id"`
	Text                string            `json:"text"`
	Type                QuestionType      `json:"type"`
	Required            bool              `json:"required"`
	Options             []string          `json:"options,omitempty"`
	CorrectAnswer       *AnswerValue      `json:"correct_answer,omitempty"`
	NextQuestionMapping map[string]string `json:"next_question_mapping"`
	ValidationRules     *ValidationRules  `json:"validation_rules,omitempty"`
}

// AnswerRecord is the stored answer of one user to one question.
type AnswerRecord struct {
	ID             string
	UserID         string
	QuestionID     string
	Value          AnswerValue
	IsCorrect      *bool
	Timestamp      time.Time
	SequenceNumber int
}

type ProgressState string

const (
	StateNotStarted ProgressState = "NOT_STARTED"
	StateInProgress ProgressState = "IN_PROGRESS"
	StateCompleted  ProgressState = "COMPLETED"
)

// Progress is the per-user navigation record. An empty CurrentQuestionID
// means the questionnaire is completed or has not started.
type Progress struct {
	ID                 string
	UserID             string
	CurrentQuestionID  string
	CompletedQuestions []string
	QuestionPath       []string
	StartTime          time.Time
	LastActivity       time.Time
	IsCompleted        bool
}

func (p *Progress) State() ProgressState {
	switch {
	case p == nil:
		return StateNotStarted
	case p.IsCompleted:
		return StateCompleted
	default:
		return StateInProgress
	}
}

func (p *Progress) Clone() *Progress {
	if p == nil {
		return nil
	}
	cp := *p
	cp.CompletedQuestions = append([]string{}, p.CompletedQuestions...)
	cp.QuestionPath = append([]string{}, p.QuestionPath...)
	return &cp
}

type User struct {
	ID        string
	Email     string
	Name      string
	PassHash  []byte
	CreatedAt time.Time
	LastLogin time.Time
}

type StartResult struct {
	Question  *Question
	Resumed   bool
	Restarted bool
}

type NextQuestion struct {
	Question *Question
	IsLast   bool
}

type ProgressSnapshot struct {
	CurrentQuestionID    *string   `json:"current_question_id"`
	CompletedQuestions   []string  `json:"completed_questions"`
	QuestionPath         []string  `json:"question_path"`
	StartTime            time.Time `json:"start_time"`
	LastActivity         time.Time `json:"last_activity"`
	IsCompleted          bool      `json:"is_completed"`
	CompletionPercentage float64   `json:"completion_percentage"`
}

type SummaryAnswer struct {
	QuestionID     string      `json:"question_id"`
	QuestionText   string      `json:"question_text"`
	AnswerValue    AnswerValue `json:"answer_value"`
	IsCorrect      *bool       `json:"is_correct"`
	SequenceNumber int         `json:"sequence_number"`
	InPath         bool        `json:"in_path"`
	AnsweredAt     time.Time   `json:"answered_at"`
}

type Summary struct {
	UserAnswers          []SummaryAnswer `json:"user_answers"`
	StartTime            time.Time       `json:"start_time"`
	CompletionTime       *time.Time      `json:"completion_time"`
	CompletionPercentage float64         `json:"completion_percentage"`
}
