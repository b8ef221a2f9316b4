package worker

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/gradia-app/gradia-backend/internal/config"
	"github.com/gradia-app/gradia-backend/internal/grader"
	"github.com/gradia-app/gradia-backend/internal/model"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

type fakeSubmissions struct {
	submissions map[uuid.UUID]*model.Submission
	saved       int
}

func (f *fakeSubmissions) Create(_ context.Context, s *model.Submission) error {
	f.submissions[s.ID] = s
	return nil
}

func (f *fakeSubmissions) GetByID(_ context.Context, id uuid.UUID) (*model.Submission, error) {
	s, ok := f.submissions[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	cp := *s
	cp.Answers = append([]model.Answer(nil), s.Answers...)
	return &cp, nil
}

func (f *fakeSubmissions) GetByTestAndLearner(_ context.Context, _ uuid.UUID, _ int) (*model.Submission, error) {
	return nil, model.ErrNotFound
}

func (f *fakeSubmissions) SaveGrades(_ context.Context, id uuid.UUID, answers []model.Answer, totalScore float64, gradedAt time.Time) error {
	s, ok := f.submissions[id]
	if !ok {
		return model.ErrNotFound
	}
	s.Answers = answers
	s.TotalScore = totalScore
	s.Graded = true
	s.GradedAt = &gradedAt
	f.saved++
	return nil
}

func (f *fakeSubmissions) ListByTest(_ context.Context, _ uuid.UUID, _, _ int) ([]model.Submission, int64, error) {
	return nil, 0, nil
}

type fakeTests struct {
	test *model.Test
}

func (f *fakeTests) GetByID(_ context.Context, id uuid.UUID) (*model.Test, error) {
	if f.test == nil || f.test.ID != id {
		return nil, model.ErrNotFound
	}
	return f.test, nil
}

// scriptedGrader returns a fixed score per question id.
type scriptedGrader struct {
	scores map[string]float64
}

func (g *scriptedGrader) Grade(_ context.Context, req grader.Request) model.GradeResult {
	score, ok := g.scores[req.Question.ID]
	if !ok {
		// Evaluator failure path: the Set flattens errors to zero.
		return model.GradeResult{}
	}
	return model.GradeResult{Score: score, Feedback: "graded " + req.Question.ID}
}

func workerRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func gradingFixture(t *testing.T) (*GradingWorker, *miniredis.Miniredis, *fakeSubmissions, *model.Submission) {
	t.Helper()

	test := &model.Test{
		ID:              uuid.New(),
		ClassID:         "class-1",
		DurationMinutes: 60,
		Questions: []model.Question{
			{ID: "q1", Type: model.QuestionTypeTyped, MaxMarks: 10},
			{ID: "q2", Type: model.QuestionTypeCoding, MaxMarks: 10},
			{ID: "q3", Type: model.QuestionTypeHandwritten, MaxMarks: 5},
		},
	}
	submission := &model.Submission{
		ID:        uuid.New(),
		TestID:    test.ID,
		LearnerID: 7,
		Answers: []model.Answer{
			{QuestionID: "q1", QuestionType: model.QuestionTypeTyped, AnswerText: "a"},
			{QuestionID: "q2", QuestionType: model.QuestionTypeCoding, CodeAnswer: "b"},
			{QuestionID: "q3", QuestionType: model.QuestionTypeHandwritten, ImageData: "c"},
		},
	}

	submissions := &fakeSubmissions{submissions: map[uuid.UUID]*model.Submission{submission.ID: submission}}
	// q3 has no scripted score: it exercises the flattened-failure path.
	g := &scriptedGrader{scores: map[string]float64{"q1": 8, "q2": 6}}

	mr, rdb := workerRedis(t)
	w := NewGradingWorker(rdb, submissions, &fakeTests{test: test}, g, 4, zerolog.Nop())
	return w, mr, submissions, submission
}

func TestGradeSubmissionAggregatesScores(t *testing.T) {
	w, _, submissions, submission := gradingFixture(t)

	if err := w.GradeSubmission(context.Background(), submission.ID); err != nil {
		t.Fatalf("grade failed: %v", err)
	}

	graded := submissions.submissions[submission.ID]
	if !graded.Graded || graded.GradedAt == nil {
		t.Fatalf("submission not marked graded: %+v", graded)
	}
	if graded.TotalScore != 14 {
		t.Fatalf("expected total 14, got %v", graded.TotalScore)
	}
	if graded.Answers[0].Score != 8 || graded.Answers[1].Score != 6 {
		t.Fatalf("per-answer scores wrong: %+v", graded.Answers)
	}
	// q3 failed its evaluator call; it scores zero but the batch completed.
	if graded.Answers[2].Score != 0 {
		t.Fatalf("failed answer must score 0, got %v", graded.Answers[2].Score)
	}
}

func TestGradeSubmissionSkipsVanishedQuestions(t *testing.T) {
	w, _, submissions, submission := gradingFixture(t)

	// Authoring removed q2 after the learner submitted.
	submissions.submissions[submission.ID].Answers[1].QuestionID = "deleted"

	if err := w.GradeSubmission(context.Background(), submission.ID); err != nil {
		t.Fatalf("grade failed: %v", err)
	}

	graded := submissions.submissions[submission.ID]
	if graded.TotalScore != 8 {
		t.Fatalf("expected total 8 without the vanished question, got %v", graded.TotalScore)
	}
	if !graded.Graded {
		t.Fatal("batch must complete despite the vanished question")
	}
}

func TestGradeSubmissionDropsVanishedSubmission(t *testing.T) {
	w, _, _, _ := gradingFixture(t)

	// A vanished submission is not an error: requeueing it forever helps no one.
	if err := w.GradeSubmission(context.Background(), uuid.New()); err != nil {
		t.Fatalf("expected nil for vanished submission, got %v", err)
	}
}

func TestHandleSkipsWhenLockHeld(t *testing.T) {
	w, mr, submissions, submission := gradingFixture(t)

	mr.Set(config.CacheKey.GradingLockKey(submission.ID.String()), "1")

	raw, _ := json.Marshal(map[string]string{"submission_id": submission.ID.String()})
	w.handle(context.Background(), string(raw))

	if submissions.saved != 0 {
		t.Fatal("locked submission must not be graded")
	}
}

func TestHandleReleasesLockAfterRun(t *testing.T) {
	w, mr, submissions, submission := gradingFixture(t)

	raw, _ := json.Marshal(map[string]string{"submission_id": submission.ID.String()})
	w.handle(context.Background(), string(raw))

	if submissions.saved != 1 {
		t.Fatalf("expected one grading run, got %d", submissions.saved)
	}
	if mr.Exists(config.CacheKey.GradingLockKey(submission.ID.String())) {
		t.Fatal("lock must be released after the run")
	}
}

func TestHandleDropsMalformedPayload(t *testing.T) {
	w, mr, submissions, _ := gradingFixture(t)

	w.handle(context.Background(), "not json")
	w.handle(context.Background(), `{"submission_id":"not-a-uuid"}`)

	if submissions.saved != 0 {
		t.Fatal("malformed payloads must not grade anything")
	}
	// Poison messages are dropped, never requeued.
	if mr.Exists(config.WorkerKey.GradeSubmissionsQueue) {
		t.Fatal("malformed payload was requeued")
	}
}

func TestEnqueueThenHandleRoundTrip(t *testing.T) {
	w, _, submissions, submission := gradingFixture(t)

	queue := NewGradeQueue(w.rdb)
	if err := queue.Enqueue(context.Background(), submission.ID); err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}

	result, err := w.rdb.BLPop(context.Background(), time.Second, config.WorkerKey.GradeSubmissionsQueue).Result()
	if err != nil {
		t.Fatalf("pop failed: %v", err)
	}
	w.handle(context.Background(), result[1])

	if submissions.saved != 1 {
		t.Fatal("queued submission was not graded")
	}
}
