package models

import (
	"encoding/json"
	"time"
)

// Question is the stored form of a questionnaire node. Structured fields are
// kept as JSON so the storage layer stays agnostic of answer shapes.
type Question struct {
	ID                  string
	Position            int
	Text                string
	Type                string
	Required            bool
	Options             []string
	CorrectAnswer       json.RawMessage // nil for ungraded questions
	NextQuestionMapping map[string]string
	ValidationRules     json.RawMessage
	CreatedAt           time.Time
}

type User struct {
	ID        string
	Email     string
	Name      string
	PassHash  []byte
	CreatedAt time.Time
	LastLogin *time.Time
}

// Answer is unique per (UserID, QuestionID).
type Answer struct {
	ID             string
	UserID         string
	QuestionID     string
	Value          json.RawMessage
	IsCorrect      *bool
	Timestamp      time.Time
	SequenceNumber int
}

// Progress is unique per UserID.
type Progress struct {
	ID                 string
	UserID             string
	CurrentQuestionID  *string
	CompletedQuestions []string
	QuestionPath       []string
	StartTime          time.Time
	LastActivity       time.Time
	IsCompleted        bool
}
