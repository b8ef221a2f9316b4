package grader

import (
	"context"

	"github.com/gradia-app/gradia-backend/internal/evaluator"
	"github.com/gradia-app/gradia-backend/internal/model"
	"github.com/rs/zerolog"
)

// Request bundles everything a strategy needs to score one answer.
type Request struct {
	Question model.Question
	Answer   model.Answer
	// Rubric and ContextID come from the owning test; the text evaluator
	// uses them to retrieve class reference material.
	Rubric    *model.Rubric
	ContextID string
}

// Strategy scores one answer of a specific question type. Implementations
// may return an error; the Set converts every error into a zero score so
// nothing escapes the grading boundary.
type Strategy interface {
	Grade(ctx context.Context, req Request) (model.GradeResult, error)
}

// TextGrader is the slice of the evaluator client used by the typed strategy.
type TextGrader interface {
	GradeText(ctx context.Context, req evaluator.TextGradingRequest) (*evaluator.TextGradingResult, error)
}

// CodeRunner executes a coding answer against its test cases.
type CodeRunner interface {
	RunCode(ctx context.Context, req evaluator.CodeRunRequest) (*evaluator.CodeRunResult, error)
}

// CodeQualityGrader scores code structure and approach.
type CodeQualityGrader interface {
	GradeCodeQuality(ctx context.Context, req evaluator.CodeQualityRequest) (*evaluator.CodeQualityResult, error)
}

// TextExtractor runs handwriting OCR over an image payload.
type TextExtractor interface {
	ExtractText(ctx context.Context, image string) (string, error)
}

// Set holds one strategy per question type and enforces the contract
// that evaluator failures degrade to (0, "") instead of propagating.
type Set struct {
	strategies map[model.QuestionType]Strategy
	log        zerolog.Logger
}

// NewSet wires the three strategies against the evaluator client.
// split is the code quality credit fraction (see config.CodeQualitySplit).
func NewSet(client *evaluator.Client, split float64, log zerolog.Logger) *Set {
	typed := NewTyped(client)
	return &Set{
		strategies: map[model.QuestionType]Strategy{
			model.QuestionTypeTyped:       typed,
			model.QuestionTypeCoding:      NewCoding(client, client, split),
			model.QuestionTypeHandwritten: NewHandwritten(client, typed),
		},
		log: log.With().Str("component", "grader").Logger(),
	}
}

// NewSetWithStrategies builds a Set from explicit strategies.
func NewSetWithStrategies(strategies map[model.QuestionType]Strategy, log zerolog.Logger) *Set {
	return &Set{strategies: strategies, log: log}
}

// Grade dispatches to the strategy for the question's type. Any strategy
// error — evaluator outage, timeout, malformed payload — is logged and
// flattened to a zero score with empty feedback so the surrounding
// grading run always completes.
func (s *Set) Grade(ctx context.Context, req Request) model.GradeResult {
	strategy, ok := s.strategies[req.Question.Type]
	if !ok {
		s.log.Warn().
			Str("question_id", req.Question.ID).
			Str("type", string(req.Question.Type)).
			Msg("No strategy for question type")
		return model.GradeResult{}
	}

	result, err := strategy.Grade(ctx, req)
	if err != nil {
		s.log.Error().Err(err).
			Str("question_id", req.Question.ID).
			Str("type", string(req.Question.Type)).
			Msg("Grading failed, scoring 0")
		return model.GradeResult{}
	}
	return result
}
