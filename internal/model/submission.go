package model

import (
	"time"

	"github.com/google/uuid"
)

// Answer is a learner's response to one question. Exactly one payload
// field is set, matching the question type. Score and Feedback stay at
// their zero values until grading completes.
type Answer struct {
	QuestionID   string       `json:"question_id"`
	QuestionType QuestionType `json:"question_type"`
	AnswerText   string       `json:"answer_text,omitempty"` // typed
	CodeAnswer   string       `json:"code_answer,omitempty"` // coding
	FileURL      string       `json:"file_url,omitempty"`    // handwritten upload
	ImageData    string       `json:"image_data,omitempty"`  // handwritten inline (base64)
	Score        float64      `json:"score"`
	Feedback     string       `json:"feedback"`
}

// Payload returns the answer content for the answer's own type.
func (a *Answer) Payload() string {
	switch a.QuestionType {
	case QuestionTypeCoding:
		return a.CodeAnswer
	case QuestionTypeHandwritten:
		if a.ImageData != "" {
			return a.ImageData
		}
		return a.FileURL
	default:
		return a.AnswerText
	}
}

// Submission is the immutable record of a finalized attempt. It is
// written once at finalize and mutated exactly once more when the
// grading run attaches scores.
type Submission struct {
	ID          uuid.UUID `json:"id"`
	TestID      uuid.UUID `json:"test_id"`
	LearnerID   int       `json:"learner_id"`
	Answers     []Answer  `json:"answers"`
	TotalScore  float64   `json:"total_score"`
	Graded      bool      `json:"graded"`
	SubmittedAt time.Time `json:"submitted_at"`
	GradedAt    *time.Time `json:"graded_at,omitempty"`
}

// GradeResult is the outcome of grading a single answer.
type GradeResult struct {
	Score    float64
	Feedback string
}
