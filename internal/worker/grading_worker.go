package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/gradia-app/gradia-backend/internal/config"
	"github.com/gradia-app/gradia-backend/internal/grader"
	"github.com/gradia-app/gradia-backend/internal/model"
	"github.com/gradia-app/gradia-backend/internal/service"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const (
	// GradePollTimeout must be >= 1s to satisfy Redis BLPOP.
	GradePollTimeout = 1 * time.Second

	// gradingLockTTL bounds how long a crashed run can block a retry.
	gradingLockTTL = 10 * time.Minute
)

// Grader scores a single answer and never fails; implemented by grader.Set.
type Grader interface {
	Grade(ctx context.Context, req grader.Request) model.GradeResult
}

// GradingWorker consumes grade_submissions_queue and runs the grading
// pipeline: fan out per answer to the matching strategy, aggregate, and
// persist the scored submission in one write.
type GradingWorker struct {
	rdb         *redis.Client
	submissions service.SubmissionStore
	tests       service.TestStore
	grader      Grader
	concurrency int
	log         zerolog.Logger
}

// NewGradingWorker creates a new GradingWorker.
func NewGradingWorker(
	rdb *redis.Client,
	submissions service.SubmissionStore,
	tests service.TestStore,
	g Grader,
	concurrency int,
	log zerolog.Logger,
) *GradingWorker {
	if concurrency < 1 {
		concurrency = 1
	}
	return &GradingWorker{
		rdb:         rdb,
		submissions: submissions,
		tests:       tests,
		grader:      g,
		concurrency: concurrency,
		log:         log.With().Str("component", "grading_worker").Logger(),
	}
}

// Start begins the worker loop. Call in a goroutine.
func (w *GradingWorker) Start(ctx context.Context) {
	w.log.Info().Int("concurrency", w.concurrency).Msg("GradingWorker started")

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("GradingWorker stopping...")
			// Finish what is already queued before exit. In-flight grading
			// always runs to completion: a submission stuck at graded=false
			// is worse than a late score.
			w.drain(context.Background())
			w.log.Info().Msg("GradingWorker stopped")
			return
		default:
			w.processNext(ctx)
		}
	}
}

func (w *GradingWorker) processNext(ctx context.Context) {
	result, err := w.rdb.BLPop(ctx, GradePollTimeout, config.WorkerKey.GradeSubmissionsQueue).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) && ctx.Err() == nil {
			w.log.Error().Err(err).Msg("BLPop error")
		}
		return
	}

	if len(result) < 2 {
		return
	}
	w.handle(ctx, result[1])
}

func (w *GradingWorker) handle(ctx context.Context, raw string) {
	var payload gradePayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		w.log.Error().Err(err).Msg("Invalid JSON payload")
		return
	}

	submissionID, err := uuid.Parse(payload.SubmissionID)
	if err != nil {
		w.log.Error().Err(err).Str("submission_id", payload.SubmissionID).Msg("Invalid submission id")
		return
	}

	// Execution guard: at most one grading run per submission at a time.
	// A duplicate queue entry (at-least-once delivery) lands here and is
	// dropped; a wholesale retry after the TTL re-grades cleanly because
	// GradeSubmission overwrites instead of accumulating.
	lockKey := config.CacheKey.GradingLockKey(payload.SubmissionID)
	locked, err := w.rdb.SetNX(ctx, lockKey, "1", gradingLockTTL).Result()
	if err != nil {
		w.log.Error().Err(err).Msg("Grading lock error, requeueing")
		w.requeue(ctx, raw)
		return
	}
	if !locked {
		w.log.Warn().Str("submission_id", payload.SubmissionID).Msg("Grading already in progress, skipping")
		return
	}
	defer w.rdb.Del(ctx, lockKey)

	if err := w.GradeSubmission(ctx, submissionID); err != nil {
		w.log.Error().Err(err).
			Str("submission_id", payload.SubmissionID).
			Msg("Grading run failed, requeueing")
		w.requeue(ctx, raw)
	}
}

// GradeSubmission runs one full grading pass: every answer is dispatched
// to its strategy (bounded fan-out), results are aggregated after all
// complete, and the submission is persisted once. Evaluator failures
// degrade individual answers to 0 and never abort the batch; only a
// failure to load or persist the submission itself is returned, and the
// caller requeues for a wholesale retry.
func (w *GradingWorker) GradeSubmission(ctx context.Context, submissionID uuid.UUID) error {
	submission, err := w.submissions.GetByID(ctx, submissionID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			w.log.Warn().Str("submission_id", submissionID.String()).Msg("Submission vanished, dropping job")
			return nil
		}
		return err
	}

	test, err := w.tests.GetByID(ctx, submission.TestID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			w.log.Warn().Str("test_id", submission.TestID.String()).Msg("Test vanished, dropping job")
			return nil
		}
		return err
	}

	answers := make([]model.Answer, len(submission.Answers))
	copy(answers, submission.Answers)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.concurrency)

	for i := range answers {
		// Start every answer from a clean slate so re-grading overwrites.
		answers[i].Score = 0
		answers[i].Feedback = ""

		question := test.QuestionByID(answers[i].QuestionID)
		if question == nil {
			// Authoring changed after submission; benign, skip silently.
			continue
		}

		i, question := i, question
		g.Go(func() error {
			result := w.grader.Grade(gctx, grader.Request{
				Question:  *question,
				Answer:    answers[i],
				Rubric:    test.Rubric,
				ContextID: test.ClassID,
			})
			answers[i].Score = result.Score
			answers[i].Feedback = result.Feedback
			return nil
		})
	}

	// The single synchronization point: the sum and the write wait for
	// every strategy to finish.
	_ = g.Wait()

	var total float64
	for i := range answers {
		total += answers[i].Score
	}

	if err := w.submissions.SaveGrades(ctx, submissionID, answers, total, time.Now()); err != nil {
		return err
	}

	w.log.Info().
		Str("submission_id", submissionID.String()).
		Float64("total_score", total).
		Int("answers", len(answers)).
		Msg("Submission graded")
	return nil
}

func (w *GradingWorker) requeue(ctx context.Context, raw string) {
	if err := w.rdb.RPush(ctx, config.WorkerKey.GradeSubmissionsQueue, raw).Err(); err != nil {
		w.log.Error().Err(err).Msg("Requeue failed, job lost")
	}
}

// drain processes all remaining queued jobs before shutdown.
func (w *GradingWorker) drain(ctx context.Context) {
	drained := 0
	for {
		raw, err := w.rdb.LPop(ctx, config.WorkerKey.GradeSubmissionsQueue).Result()
		if err != nil {
			break
		}
		w.handle(ctx, raw)
		drained++
	}

	if drained > 0 {
		w.log.Info().Int("count", drained).Msg("Drained remaining grading jobs")
	}
}
