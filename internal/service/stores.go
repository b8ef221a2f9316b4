package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/gradia-app/gradia-backend/internal/model"
)

// SessionStore is the durable home of test sessions, one non-terminal
// row per (learner, test) pair. Implemented by repository.SessionRepository.
type SessionStore interface {
	CreateIfAbsent(ctx context.Context, learnerID int, testID uuid.UUID) (*model.TestSession, error)
	GetActive(ctx context.Context, learnerID int, testID uuid.UUID) (*model.TestSession, error)
	GetByID(ctx context.Context, id uuid.UUID) (*model.TestSession, error)
	MarkStarted(ctx context.Context, id uuid.UUID, now time.Time) (*model.TestSession, error)
	SaveProgress(ctx context.Context, id uuid.UUID, answers []model.Answer, currentQuestionIndex int, now time.Time) error
	FinalizeFlip(ctx context.Context, id uuid.UUID) (bool, error)
	ListExpired(ctx context.Context, now time.Time) ([]model.TestSession, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// SubmissionStore is the durable home of finalized submissions.
// Implemented by repository.SubmissionRepository.
type SubmissionStore interface {
	Create(ctx context.Context, s *model.Submission) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.Submission, error)
	GetByTestAndLearner(ctx context.Context, testID uuid.UUID, learnerID int) (*model.Submission, error)
	SaveGrades(ctx context.Context, id uuid.UUID, answers []model.Answer, totalScore float64, gradedAt time.Time) error
	ListByTest(ctx context.Context, testID uuid.UUID, page, perPage int) ([]model.Submission, int64, error)
}

// TestStore reads published tests. Implemented by repository.TestRepository.
type TestStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Test, error)
}

// GradeQueue hands finalized submissions to the grading worker.
type GradeQueue interface {
	Enqueue(ctx context.Context, submissionID uuid.UUID) error
}
