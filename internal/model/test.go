package model

import (
	"time"

	"github.com/google/uuid"
)

// QuestionType enumerates the supported answer formats.
type QuestionType string

const (
	QuestionTypeTyped       QuestionType = "typed"
	QuestionTypeCoding      QuestionType = "coding"
	QuestionTypeHandwritten QuestionType = "handwritten"
)

// Valid reports whether t is one of the known question types.
func (t QuestionType) Valid() bool {
	switch t {
	case QuestionTypeTyped, QuestionTypeCoding, QuestionTypeHandwritten:
		return true
	}
	return false
}

// TestCase is a single input/output pair a coding answer is run against.
type TestCase struct {
	Input          string `json:"input"`
	ExpectedOutput string `json:"expected_output"`
	Hidden         bool   `json:"hidden"`
}

// RubricCriterion is one weighted grading criterion.
type RubricCriterion struct {
	Name   string  `json:"name"`
	Weight float64 `json:"weight"`
}

// Rubric optionally constrains how the text evaluator grades typed answers.
type Rubric struct {
	Title    string            `json:"title"`
	Criteria []RubricCriterion `json:"criteria"`
}

// Question represents a single authored test question.
// Questions are owned by the test-authoring service; this backend only
// reads them to validate and grade submissions.
type Question struct {
	ID        string       `json:"id"`
	Text      string       `json:"question_text"`
	Type      QuestionType `json:"type"`
	MaxMarks  int          `json:"max_marks"`
	Language  string       `json:"language,omitempty"`   // coding only
	TestCases []TestCase   `json:"test_cases,omitempty"` // coding only
}

// Test represents an authored test with its embedded questions.
type Test struct {
	ID              uuid.UUID  `json:"id"`
	Title           string     `json:"title"`
	Description     string     `json:"description,omitempty"`
	ClassID         string     `json:"class_id"`
	DurationMinutes int        `json:"duration_minutes"`
	StartTime       *time.Time `json:"start_time,omitempty"`
	EndTime         *time.Time `json:"end_time,omitempty"`
	Questions       []Question `json:"questions"`
	Rubric          *Rubric    `json:"rubric,omitempty"`
}

// Duration returns the test's time window as a duration.
func (t *Test) Duration() time.Duration {
	return time.Duration(t.DurationMinutes) * time.Minute
}

// QuestionByID returns the question with the given id, or nil when the
// question no longer exists (authoring may change after submission).
func (t *Test) QuestionByID(id string) *Question {
	for i := range t.Questions {
		if t.Questions[i].ID == id {
			return &t.Questions[i]
		}
	}
	return nil
}
