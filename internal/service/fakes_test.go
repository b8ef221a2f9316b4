package service

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/gradia-app/gradia-backend/internal/model"
	"github.com/redis/go-redis/v9"
)

// fakeSessionStore keeps sessions in memory with the same conditional
// semantics as the SQL repository.
type fakeSessionStore struct {
	sessions map[uuid.UUID]*model.TestSession
	expired  []model.TestSession
}

func newFakeSessionStore() *fakeSessionStore {
	return &fakeSessionStore{sessions: make(map[uuid.UUID]*model.TestSession)}
}

func (f *fakeSessionStore) CreateIfAbsent(_ context.Context, learnerID int, testID uuid.UUID) (*model.TestSession, error) {
	for _, s := range f.sessions {
		if s.LearnerID == learnerID && s.TestID == testID && !s.Terminal() {
			// Conditional insert hit the partial unique index.
			return nil, model.ErrNotFound
		}
	}
	s := &model.TestSession{
		ID:          uuid.New(),
		LearnerID:   learnerID,
		TestID:      testID,
		Status:      model.SessionStatusCreated,
		CreatedAt:   time.Now(),
		LastSavedAt: time.Now(),
		Answers:     []model.Answer{},
	}
	f.sessions[s.ID] = s
	return copySession(s), nil
}

func (f *fakeSessionStore) GetActive(_ context.Context, learnerID int, testID uuid.UUID) (*model.TestSession, error) {
	for _, s := range f.sessions {
		if s.LearnerID == learnerID && s.TestID == testID && !s.Terminal() {
			return copySession(s), nil
		}
	}
	return nil, model.ErrNotFound
}

func (f *fakeSessionStore) GetByID(_ context.Context, id uuid.UUID) (*model.TestSession, error) {
	s, ok := f.sessions[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	return copySession(s), nil
}

func (f *fakeSessionStore) MarkStarted(_ context.Context, id uuid.UUID, now time.Time) (*model.TestSession, error) {
	s, ok := f.sessions[id]
	if !ok || s.Terminal() {
		return nil, model.ErrNotFound
	}
	_ = s.StartClock(now)
	return copySession(s), nil
}

func (f *fakeSessionStore) SaveProgress(_ context.Context, id uuid.UUID, answers []model.Answer, currentQuestionIndex int, now time.Time) error {
	s, ok := f.sessions[id]
	if !ok || s.Terminal() {
		return model.ErrNotFound
	}
	s.Answers = answers
	s.CurrentQuestionIndex = currentQuestionIndex
	s.LastSavedAt = now
	return nil
}

func (f *fakeSessionStore) FinalizeFlip(_ context.Context, id uuid.UUID) (bool, error) {
	s, ok := f.sessions[id]
	if !ok || s.Terminal() {
		return false, nil
	}
	s.Status = model.SessionStatusSubmitted
	return true, nil
}

func (f *fakeSessionStore) ListExpired(_ context.Context, _ time.Time) ([]model.TestSession, error) {
	return f.expired, nil
}

func (f *fakeSessionStore) Delete(_ context.Context, id uuid.UUID) error {
	delete(f.sessions, id)
	return nil
}

func copySession(s *model.TestSession) *model.TestSession {
	out := *s
	out.Answers = append([]model.Answer(nil), s.Answers...)
	return &out
}

// fakeSubmissionStore keeps submissions in memory. pendingReads makes
// the next N lookups miss, simulating a reader racing a slow insert.
type fakeSubmissionStore struct {
	submissions  map[uuid.UUID]*model.Submission
	pendingReads int
}

func newFakeSubmissionStore() *fakeSubmissionStore {
	return &fakeSubmissionStore{submissions: make(map[uuid.UUID]*model.Submission)}
}

func (f *fakeSubmissionStore) Create(_ context.Context, s *model.Submission) error {
	s.ID = uuid.New()
	s.SubmittedAt = time.Now()
	cp := *s
	f.submissions[s.ID] = &cp
	return nil
}

func (f *fakeSubmissionStore) GetByID(_ context.Context, id uuid.UUID) (*model.Submission, error) {
	s, ok := f.submissions[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (f *fakeSubmissionStore) GetByTestAndLearner(_ context.Context, testID uuid.UUID, learnerID int) (*model.Submission, error) {
	if f.pendingReads > 0 {
		f.pendingReads--
		return nil, model.ErrNotFound
	}
	for _, s := range f.submissions {
		if s.TestID == testID && s.LearnerID == learnerID {
			cp := *s
			return &cp, nil
		}
	}
	return nil, model.ErrNotFound
}

func (f *fakeSubmissionStore) SaveGrades(_ context.Context, id uuid.UUID, answers []model.Answer, totalScore float64, gradedAt time.Time) error {
	s, ok := f.submissions[id]
	if !ok {
		return model.ErrNotFound
	}
	s.Answers = answers
	s.TotalScore = totalScore
	s.Graded = true
	s.GradedAt = &gradedAt
	return nil
}

func (f *fakeSubmissionStore) ListByTest(_ context.Context, testID uuid.UUID, _, _ int) ([]model.Submission, int64, error) {
	var out []model.Submission
	for _, s := range f.submissions {
		if s.TestID == testID {
			out = append(out, *s)
		}
	}
	return out, int64(len(out)), nil
}

// fakeTestStore serves a fixed set of tests.
type fakeTestStore struct {
	tests map[uuid.UUID]*model.Test
}

func newFakeTestStore(tests ...*model.Test) *fakeTestStore {
	f := &fakeTestStore{tests: make(map[uuid.UUID]*model.Test)}
	for _, t := range tests {
		f.tests[t.ID] = t
	}
	return f
}

func (f *fakeTestStore) GetByID(_ context.Context, id uuid.UUID) (*model.Test, error) {
	t, ok := f.tests[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	return t, nil
}

// fakeGradeQueue records enqueued submission ids.
type fakeGradeQueue struct {
	enqueued []uuid.UUID
	err      error
}

func (f *fakeGradeQueue) Enqueue(_ context.Context, submissionID uuid.UUID) error {
	if f.err != nil {
		return f.err
	}
	f.enqueued = append(f.enqueued, submissionID)
	return nil
}

// testRedis spins up miniredis and a client against it.
func testRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
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

// sampleTest builds a 60-minute test with one question per type.
func sampleTest() *model.Test {
	return &model.Test{
		ID:              uuid.New(),
		Title:           "Networks Midterm",
		ClassID:         "class-1",
		DurationMinutes: 60,
		Questions: []model.Question{
			{ID: "q1", Text: "Explain DNS.", Type: model.QuestionTypeTyped, MaxMarks: 10},
			{ID: "q2", Text: "Reverse a string.", Type: model.QuestionTypeCoding, MaxMarks: 10, Language: "python",
				TestCases: []model.TestCase{{Input: "ab", ExpectedOutput: "ba"}}},
			{ID: "q3", Text: "Draw the TCP handshake.", Type: model.QuestionTypeHandwritten, MaxMarks: 5},
		},
	}
}
