package service

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gradia-app/gradia-backend/internal/config"
	"github.com/gradia-app/gradia-backend/internal/model"
	"github.com/rs/zerolog"
)

func TestStartIsIdempotent(t *testing.T) {
	ctx := context.Background()
	test := sampleTest()
	store := newFakeSessionStore()
	mr, rdb := testRedis(t)
	svc := NewSessionService(store, newFakeTestStore(test), rdb, zerolog.Nop())

	first, err := svc.Start(ctx, 7, test.ID)
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if first.Status != model.SessionStatusCreated {
		t.Fatalf("expected CREATED, got %s", first.Status)
	}

	second, err := svc.Start(ctx, 7, test.ID)
	if err != nil {
		t.Fatalf("second start failed: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("second start spawned a new session: %s vs %s", second.ID, first.ID)
	}

	// Duration cached for the timer path.
	if !mr.Exists(config.CacheKey.TestDurationKey(test.ID.String())) {
		t.Fatal("expected duration cache key")
	}
}

func TestStartUnknownTest(t *testing.T) {
	_, rdb := testRedis(t)
	svc := NewSessionService(newFakeSessionStore(), newFakeTestStore(), rdb, zerolog.Nop())

	_, err := svc.Start(context.Background(), 7, uuid.New())
	if !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestStartRequiresLearner(t *testing.T) {
	_, rdb := testRedis(t)
	svc := NewSessionService(newFakeSessionStore(), newFakeTestStore(), rdb, zerolog.Nop())

	_, err := svc.Start(context.Background(), 0, uuid.New())
	if !errors.Is(err, model.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestMarkStartedAnchorsOnce(t *testing.T) {
	ctx := context.Background()
	test := sampleTest()
	store := newFakeSessionStore()
	mr, rdb := testRedis(t)
	svc := NewSessionService(store, newFakeTestStore(test), rdb, zerolog.Nop())

	session, _ := svc.Start(ctx, 7, test.ID)

	started, err := svc.MarkStarted(ctx, session.ID)
	if err != nil {
		t.Fatalf("mark started failed: %v", err)
	}
	if started.Status != model.SessionStatusActive || started.StartedAt == nil {
		t.Fatalf("expected running clock, got %+v", started)
	}
	anchor := *started.StartedAt

	// Re-reading the instructions never resets the clock.
	again, err := svc.MarkStarted(ctx, session.ID)
	if err != nil {
		t.Fatalf("repeat mark started failed: %v", err)
	}
	if !again.StartedAt.Equal(anchor) {
		t.Fatalf("anchor moved: %v vs %v", again.StartedAt, anchor)
	}

	raw, err := mr.Get(config.CacheKey.SessionDeadlineKey(session.ID.String()))
	if err != nil {
		t.Fatalf("expected deadline mirrored to redis: %v", err)
	}
	unix, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		t.Fatalf("deadline not a unix timestamp: %v", err)
	}
	if want := anchor.Add(60 * time.Minute).Unix(); unix != want {
		t.Fatalf("cached deadline %d, want %d", unix, want)
	}
}

func TestRemainingServedFromCachedDeadline(t *testing.T) {
	ctx := context.Background()
	test := sampleTest()
	store := newFakeSessionStore()
	_, rdb := testRedis(t)
	svc := NewSessionService(store, newFakeTestStore(test), rdb, zerolog.Nop())

	session, _ := svc.Start(ctx, 7, test.ID)
	if _, err := svc.MarkStarted(ctx, session.ID); err != nil {
		t.Fatalf("mark started failed: %v", err)
	}

	// Drop the row: a cache hit must answer without touching the store.
	delete(store.sessions, session.ID)

	remaining, err := svc.Remaining(ctx, session.ID)
	if err != nil {
		t.Fatalf("remaining failed: %v", err)
	}
	if remaining < 59*time.Minute || remaining > 60*time.Minute {
		t.Fatalf("expected ~60m from the cached deadline, got %v", remaining)
	}
}

func TestRemainingRehealsDeadlineAfterFlush(t *testing.T) {
	ctx := context.Background()
	test := sampleTest()
	store := newFakeSessionStore()
	mr, rdb := testRedis(t)
	svc := NewSessionService(store, newFakeTestStore(test), rdb, zerolog.Nop())

	session, _ := svc.Start(ctx, 7, test.ID)
	if _, err := svc.MarkStarted(ctx, session.ID); err != nil {
		t.Fatalf("mark started failed: %v", err)
	}

	mr.FlushAll()

	remaining, err := svc.Remaining(ctx, session.ID)
	if err != nil {
		t.Fatalf("remaining failed: %v", err)
	}
	if remaining < 59*time.Minute || remaining > 60*time.Minute {
		t.Fatalf("expected ~60m remaining, got %v", remaining)
	}
	if !mr.Exists(config.CacheKey.SessionDeadlineKey(session.ID.String())) {
		t.Fatal("expected deadline cache to re-heal")
	}
}

func TestMarkStartedOnSubmittedSession(t *testing.T) {
	ctx := context.Background()
	test := sampleTest()
	store := newFakeSessionStore()
	_, rdb := testRedis(t)
	svc := NewSessionService(store, newFakeTestStore(test), rdb, zerolog.Nop())

	session, _ := svc.Start(ctx, 7, test.ID)
	if _, err := store.FinalizeFlip(ctx, session.ID); err != nil {
		t.Fatalf("flip failed: %v", err)
	}

	_, err := svc.MarkStarted(ctx, session.ID)
	if !errors.Is(err, model.ErrSessionSubmitted) {
		t.Fatalf("expected ErrSessionSubmitted, got %v", err)
	}
}

func TestPatchProgressStripsScores(t *testing.T) {
	ctx := context.Background()
	test := sampleTest()
	store := newFakeSessionStore()
	_, rdb := testRedis(t)
	svc := NewSessionService(store, newFakeTestStore(test), rdb, zerolog.Nop())

	session, _ := svc.Start(ctx, 7, test.ID)

	err := svc.PatchProgress(ctx, session.ID, []model.Answer{
		{QuestionID: "q1", QuestionType: model.QuestionTypeTyped, AnswerText: "draft", Score: 99, Feedback: "forged"},
	}, 1)
	if err != nil {
		t.Fatalf("patch failed: %v", err)
	}

	saved, _ := store.GetByID(ctx, session.ID)
	if len(saved.Answers) != 1 {
		t.Fatalf("expected 1 draft, got %d", len(saved.Answers))
	}
	if saved.Answers[0].Score != 0 || saved.Answers[0].Feedback != "" {
		t.Fatalf("draft kept grading fields: %+v", saved.Answers[0])
	}
	if saved.CurrentQuestionIndex != 1 {
		t.Fatalf("cursor not saved: %d", saved.CurrentQuestionIndex)
	}
}

func TestPatchProgressAfterSubmit(t *testing.T) {
	ctx := context.Background()
	test := sampleTest()
	store := newFakeSessionStore()
	_, rdb := testRedis(t)
	svc := NewSessionService(store, newFakeTestStore(test), rdb, zerolog.Nop())

	session, _ := svc.Start(ctx, 7, test.ID)
	store.FinalizeFlip(ctx, session.ID)

	err := svc.PatchProgress(ctx, session.ID, nil, 0)
	if !errors.Is(err, model.ErrSessionSubmitted) {
		t.Fatalf("expected ErrSessionSubmitted, got %v", err)
	}
}

func TestStateDerivesRemainingTime(t *testing.T) {
	ctx := context.Background()
	test := sampleTest()
	store := newFakeSessionStore()
	_, rdb := testRedis(t)
	svc := NewSessionService(store, newFakeTestStore(test), rdb, zerolog.Nop())

	session, _ := svc.Start(ctx, 7, test.ID)

	// Not started: the full hour remains.
	state, err := svc.State(ctx, 7, test.ID)
	if err != nil {
		t.Fatalf("state failed: %v", err)
	}
	if state.RemainingSeconds != 3600 {
		t.Fatalf("expected 3600s before start, got %v", state.RemainingSeconds)
	}

	// Backdate the anchor 20 minutes; roughly 40 minutes remain.
	anchor := time.Now().Add(-20 * time.Minute)
	store.sessions[session.ID].Status = model.SessionStatusActive
	store.sessions[session.ID].StartedAt = &anchor

	state, err = svc.State(ctx, 7, test.ID)
	if err != nil {
		t.Fatalf("state failed: %v", err)
	}
	if state.RemainingSeconds < 2395 || state.RemainingSeconds > 2400 {
		t.Fatalf("expected ~2400s remaining, got %v", state.RemainingSeconds)
	}
}

func TestRemainingFallsBackToStore(t *testing.T) {
	ctx := context.Background()
	test := sampleTest()
	store := newFakeSessionStore()
	mr, rdb := testRedis(t)
	svc := NewSessionService(store, newFakeTestStore(test), rdb, zerolog.Nop())

	session, _ := svc.Start(ctx, 7, test.ID)

	// Simulate a cache flush; the duration must come back from the store
	// and the cache self-heal.
	mr.FlushAll()

	remaining, err := svc.Remaining(ctx, session.ID)
	if err != nil {
		t.Fatalf("remaining failed: %v", err)
	}
	if remaining != 60*time.Minute {
		t.Fatalf("expected full duration, got %v", remaining)
	}
	if !mr.Exists(config.CacheKey.TestDurationKey(test.ID.String())) {
		t.Fatal("expected duration cache to self-heal")
	}
}

func TestOwnedRejectsOtherLearners(t *testing.T) {
	ctx := context.Background()
	test := sampleTest()
	store := newFakeSessionStore()
	_, rdb := testRedis(t)
	svc := NewSessionService(store, newFakeTestStore(test), rdb, zerolog.Nop())

	session, _ := svc.Start(ctx, 7, test.ID)

	if _, err := svc.Owned(ctx, session.ID, 7); err != nil {
		t.Fatalf("owner rejected: %v", err)
	}
	if _, err := svc.Owned(ctx, session.ID, 8); !errors.Is(err, model.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}
