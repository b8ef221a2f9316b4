package grader

import (
	"context"
	"strings"

	"github.com/gradia-app/gradia-backend/internal/evaluator"
	"github.com/gradia-app/gradia-backend/internal/model"
)

// Typed grades written answers through the external text evaluator.
type Typed struct {
	grader TextGrader
}

// NewTyped creates the typed-answer strategy.
func NewTyped(grader TextGrader) *Typed {
	return &Typed{grader: grader}
}

// Grade submits the answer text with the question, marks and rubric.
// An empty answer scores 0 without a network call.
func (t *Typed) Grade(ctx context.Context, req Request) (model.GradeResult, error) {
	return t.gradeText(ctx, req, req.Answer.AnswerText)
}

func (t *Typed) gradeText(ctx context.Context, req Request, answer string) (model.GradeResult, error) {
	if strings.TrimSpace(answer) == "" {
		return model.GradeResult{Feedback: "No answer was provided."}, nil
	}

	payload := evaluator.TextGradingRequest{
		Question:      req.Question.Text,
		StudentAnswer: answer,
		MaxMark:       req.Question.MaxMarks,
		ContextID:     req.ContextID,
	}
	if req.Rubric != nil {
		payload.Rubric = req.Rubric
	}

	res, err := t.grader.GradeText(ctx, payload)
	if err != nil {
		return model.GradeResult{}, err
	}

	feedback := res.Feedback
	if res.Reference != "" {
		feedback += "\nReference: " + res.Reference
	}
	return model.GradeResult{Score: res.Grade, Feedback: feedback}, nil
}
