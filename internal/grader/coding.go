package grader

import (
	"context"
	"fmt"
	"math"

	"github.com/gradia-app/gradia-backend/internal/evaluator"
	"github.com/gradia-app/gradia-backend/internal/model"
)

// Coding grades code answers in two stages: test-case execution first,
// then a qualitative pass when not every case succeeded. The blend keeps
// a learner who fails hidden cases but wrote defensible code from being
// scored on brittle pass/fail alone.
type Coding struct {
	runner  CodeRunner
	quality CodeQualityGrader
	// split is the fraction of marks handed to the quality grader when
	// test cases partially fail (default 0.5, see CODE_QUALITY_SPLIT).
	split float64
}

// NewCoding creates the coding strategy.
func NewCoding(runner CodeRunner, quality CodeQualityGrader, split float64) *Coding {
	return &Coding{runner: runner, quality: quality, split: split}
}

// Grade runs the answer against the authored test cases and, on a partial
// pass, blends the scaled test-case credit with a code-quality score:
//
//	testCaseScore = round(maxMarks / total * passed)
//	final         = round(testCaseScore*split + qualityScore), capped at maxMarks
func (c *Coding) Grade(ctx context.Context, req Request) (model.GradeResult, error) {
	cases := make([]evaluator.CodeTestCase, 0, len(req.Question.TestCases))
	for _, tc := range req.Question.TestCases {
		cases = append(cases, evaluator.CodeTestCase{
			Input:          tc.Input,
			ExpectedOutput: tc.ExpectedOutput,
		})
	}

	run, err := c.runner.RunCode(ctx, evaluator.CodeRunRequest{
		SourceCode: req.Answer.CodeAnswer,
		Language:   req.Question.Language,
		TestCases:  cases,
	})
	if err != nil {
		return model.GradeResult{}, err
	}
	if run.TotalTestCases <= 0 {
		return model.GradeResult{}, fmt.Errorf("code runner reported %d test cases", run.TotalTestCases)
	}

	maxMarks := float64(req.Question.MaxMarks)
	testCaseScore := math.Round(maxMarks / float64(run.TotalTestCases) * float64(run.PassedTestCases))
	passFeedback := fmt.Sprintf("%d/%d test cases passed.", run.PassedTestCases, run.TotalTestCases)

	// Full pass: test cases alone decide the score.
	if run.PassedTestCases == run.TotalTestCases {
		return model.GradeResult{Score: testCaseScore, Feedback: passFeedback}, nil
	}

	quality, err := c.quality.GradeCodeQuality(ctx, evaluator.CodeQualityRequest{
		Question:    req.Question.Text,
		StudentCode: req.Answer.CodeAnswer,
		MaxMark:     int(math.Round(maxMarks * c.split)),
	})
	if err != nil {
		return model.GradeResult{}, err
	}

	final := math.Round(testCaseScore*c.split + quality.Grade)
	if final > maxMarks {
		final = maxMarks
	}
	return model.GradeResult{
		Score:    final,
		Feedback: passFeedback + "\n" + quality.Feedback,
	}, nil
}
