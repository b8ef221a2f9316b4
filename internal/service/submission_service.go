package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/gradia-app/gradia-backend/internal/config"
	"github.com/gradia-app/gradia-backend/internal/model"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// SubmissionService closes sessions and hands the captured answers to
// the grading pipeline. Finalize is the single terminal transition for a
// session, shared by explicit submits and deadline expiry.
type SubmissionService struct {
	sessions    SessionStore
	submissions SubmissionStore
	tests       TestStore
	queue       GradeQueue
	rdb         *redis.Client
	log         zerolog.Logger
}

// NewSubmissionService creates a new SubmissionService.
func NewSubmissionService(
	sessions SessionStore,
	submissions SubmissionStore,
	tests TestStore,
	queue GradeQueue,
	rdb *redis.Client,
	log zerolog.Logger,
) *SubmissionService {
	return &SubmissionService{
		sessions:    sessions,
		submissions: submissions,
		tests:       tests,
		queue:       queue,
		rdb:         rdb,
		log:         log.With().Str("component", "submission_service").Logger(),
	}
}

// Finalize closes the session and records an ungraded submission from
// its last autosaved answers, then schedules grading and returns without
// waiting for it. Called twice — say an explicit submit racing the
// deadline sweep — it finalizes exactly once: the loser of the atomic
// status flip gets the winner's submission back.
func (s *SubmissionService) Finalize(ctx context.Context, sessionID uuid.UUID) (*model.Submission, error) {
	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	if session.Terminal() {
		return s.awaitSubmission(ctx, session.TestID, session.LearnerID)
	}

	test, err := s.tests.GetByID(ctx, session.TestID)
	if err != nil {
		return nil, fmt.Errorf("get test: %w", err)
	}

	// Answers must reference real questions with matching types. This is
	// stricter than grading, which happily skips questions that vanished
	// after submission: at finalize time the test is the live source of
	// truth and a mismatch means a broken or forged client.
	if err := validateAnswers(test, session.Answers); err != nil {
		return nil, err
	}

	won, err := s.sessions.FinalizeFlip(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("finalize session: %w", err)
	}
	if !won {
		return s.awaitSubmission(ctx, session.TestID, session.LearnerID)
	}

	submission := &model.Submission{
		TestID:    session.TestID,
		LearnerID: session.LearnerID,
		Answers:   stripScores(session.Answers),
	}
	if err := s.submissions.Create(ctx, submission); err != nil {
		return nil, fmt.Errorf("create submission: %w", err)
	}

	// The session's cached deadline is no longer needed.
	s.rdb.Del(ctx, config.CacheKey.SessionDeadlineKey(sessionID.String()))

	if err := s.queue.Enqueue(ctx, submission.ID); err != nil {
		// The submission is durable; grading can be re-queued. The learner
		// must never see a failed submit because of this.
		s.log.Error().Err(err).
			Str("submission_id", submission.ID.String()).
			Msg("Failed to enqueue grading job")
	}

	return submission, nil
}

const (
	submissionReadRetries  = 6
	submissionReadInterval = 50 * time.Millisecond
)

// awaitSubmission re-reads the (test, learner) submission, briefly
// retrying ErrNotFound: the flip winner inserts the row just after the
// flip, and a racing loser can land inside that window. The loser's
// submit is legitimate and must not fail because of the gap.
func (s *SubmissionService) awaitSubmission(ctx context.Context, testID uuid.UUID, learnerID int) (*model.Submission, error) {
	var lastErr error
	for attempt := 0; attempt < submissionReadRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(submissionReadInterval):
			}
		}

		submission, err := s.submissions.GetByTestAndLearner(ctx, testID, learnerID)
		if err == nil {
			return submission, nil
		}
		if !errors.Is(err, model.ErrNotFound) {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}

// Result returns the learner's submission for a test.
func (s *SubmissionService) Result(ctx context.Context, testID uuid.UUID, learnerID int) (*model.Submission, error) {
	return s.submissions.GetByTestAndLearner(ctx, testID, learnerID)
}

// ListByTest returns all submissions for a test, paginated.
func (s *SubmissionService) ListByTest(ctx context.Context, testID uuid.UUID, page, perPage int) ([]model.Submission, int64, error) {
	return s.submissions.ListByTest(ctx, testID, page, perPage)
}

func validateAnswers(test *model.Test, answers []model.Answer) error {
	for _, ans := range answers {
		question := test.QuestionByID(ans.QuestionID)
		if question == nil {
			return fmt.Errorf("%w: unknown question %s", model.ErrInvalidSubmission, ans.QuestionID)
		}
		if question.Type != ans.QuestionType {
			return fmt.Errorf("%w: question %s expects %s answers", model.ErrInvalidSubmission, ans.QuestionID, question.Type)
		}
	}
	return nil
}

// stripScores copies the drafts with zeroed grading fields; a submission
// is born ungraded no matter what the client sent.
func stripScores(answers []model.Answer) []model.Answer {
	out := make([]model.Answer, len(answers))
	copy(out, answers)
	for i := range out {
		out[i].Score = 0
		out[i].Feedback = ""
	}
	return out
}
