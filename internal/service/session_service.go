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

// SessionService owns the test session state machine: start/resume,
// the instructions gate, autosave and remaining-time math.
type SessionService struct {
	sessions SessionStore
	tests    TestStore
	rdb      *redis.Client
	log      zerolog.Logger
}

// NewSessionService creates a new SessionService.
func NewSessionService(sessions SessionStore, tests TestStore, rdb *redis.Client, log zerolog.Logger) *SessionService {
	return &SessionService{
		sessions: sessions,
		tests:    tests,
		rdb:      rdb,
		log:      log.With().Str("component", "session_service").Logger(),
	}
}

// SessionState is the resume payload: the session plus the server-derived
// remaining time. The client may run a local countdown for UX, but this
// value is the authority on every reconnect.
type SessionState struct {
	Session          *model.TestSession `json:"session"`
	RemainingSeconds float64            `json:"remaining_seconds"`
}

// Start returns the learner's non-terminal session for the test, creating
// one when absent. Calling it twice always yields the same session id —
// a disconnect and rejoin never spawns a second attempt.
func (s *SessionService) Start(ctx context.Context, learnerID int, testID uuid.UUID) (*model.TestSession, error) {
	if learnerID <= 0 {
		return nil, model.ErrUnauthorized
	}

	test, err := s.tests.GetByID(ctx, testID)
	if err != nil {
		return nil, fmt.Errorf("get test: %w", err)
	}

	if existing, err := s.sessions.GetActive(ctx, learnerID, testID); err == nil {
		return existing, nil
	} else if !errors.Is(err, model.ErrNotFound) {
		return nil, fmt.Errorf("check existing session: %w", err)
	}

	session, err := s.sessions.CreateIfAbsent(ctx, learnerID, testID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			// Concurrent start won the conditional insert — resume theirs.
			return s.sessions.GetActive(ctx, learnerID, testID)
		}
		return nil, fmt.Errorf("create session: %w", err)
	}

	// Cache the duration so state reads and the WS timer skip PostgreSQL.
	durationKey := config.CacheKey.TestDurationKey(testID.String())
	if err := s.rdb.Set(ctx, durationKey, test.DurationMinutes, 0).Err(); err != nil {
		s.log.Warn().Err(err).Msg("Failed to cache test duration")
	}

	return session, nil
}

// MarkStarted passes the instructions gate: it anchors the deadline at
// now and activates the session. Repeat calls are no-ops — the clock is
// never reset, so re-reading the instructions costs nothing and abusing
// the endpoint buys nothing.
func (s *SessionService) MarkStarted(ctx context.Context, sessionID uuid.UUID) (*model.TestSession, error) {
	session, err := s.sessions.MarkStarted(ctx, sessionID, time.Now())
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			// Either gone or already terminal; disambiguate for the caller.
			if existing, lookupErr := s.sessions.GetByID(ctx, sessionID); lookupErr == nil && existing.Terminal() {
				return nil, model.ErrSessionSubmitted
			}
			return nil, model.ErrNotFound
		}
		return nil, fmt.Errorf("mark started: %w", err)
	}

	// Mirror the absolute deadline to Redis so remaining-time reads (the
	// stream ticker polls once per connection per tick) skip PostgreSQL.
	if session.StartedAt != nil {
		if minutes, err := s.durationMinutes(ctx, session.TestID); err == nil {
			s.cacheDeadline(ctx, sessionID, session.StartedAt.Add(time.Duration(minutes)*time.Minute))
		}
	}

	return session, nil
}

// PatchProgress overwrites the draft answers and cursor. Last writer
// wins; no merge is attempted because a single learner drives the
// document. Content is not validated here — that happens at finalize.
func (s *SessionService) PatchProgress(ctx context.Context, sessionID uuid.UUID, answers []model.Answer, currentQuestionIndex int) error {
	// Drafts never carry scores.
	for i := range answers {
		answers[i].Score = 0
		answers[i].Feedback = ""
	}

	if err := s.sessions.SaveProgress(ctx, sessionID, answers, currentQuestionIndex, time.Now()); err != nil {
		if errors.Is(err, model.ErrNotFound) {
			if existing, lookupErr := s.sessions.GetByID(ctx, sessionID); lookupErr == nil && existing.Terminal() {
				return model.ErrSessionSubmitted
			}
			return model.ErrNotFound
		}
		return fmt.Errorf("save progress: %w", err)
	}
	return nil
}

// State returns the learner's session for a test together with the
// derived remaining time, or ErrNotFound when no attempt is in flight.
func (s *SessionService) State(ctx context.Context, learnerID int, testID uuid.UUID) (*SessionState, error) {
	session, err := s.sessions.GetActive(ctx, learnerID, testID)
	if err != nil {
		return nil, err
	}

	remaining, err := s.remaining(ctx, session)
	if err != nil {
		return nil, err
	}

	return &SessionState{
		Session:          session,
		RemainingSeconds: remaining.Seconds(),
	}, nil
}

// Owned fetches a session by id and checks it belongs to the learner.
// A session owned by someone else is ErrUnauthorized, never leaked.
func (s *SessionService) Owned(ctx context.Context, sessionID uuid.UUID, learnerID int) (*model.TestSession, error) {
	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.LearnerID != learnerID {
		return nil, model.ErrUnauthorized
	}
	return session, nil
}

// Remaining derives the time left for a session by id. A cached
// deadline answers without touching PostgreSQL; on a miss the clock is
// recomputed from the store and the deadline re-cached.
func (s *SessionService) Remaining(ctx context.Context, sessionID uuid.UUID) (time.Duration, error) {
	deadlineKey := config.CacheKey.SessionDeadlineKey(sessionID.String())
	if unix, err := s.rdb.Get(ctx, deadlineKey).Int64(); err == nil {
		remaining := time.Until(time.Unix(unix, 0))
		if remaining < 0 {
			remaining = 0
		}
		return remaining, nil
	}

	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return 0, err
	}

	minutes, err := s.durationMinutes(ctx, session.TestID)
	if err != nil {
		return 0, err
	}

	if session.Status == model.SessionStatusActive && session.StartedAt != nil {
		s.cacheDeadline(ctx, sessionID, session.StartedAt.Add(time.Duration(minutes)*time.Minute))
	}

	return session.Remaining(time.Duration(minutes)*time.Minute, time.Now()), nil
}

// remaining recomputes the clock for an already-loaded session.
func (s *SessionService) remaining(ctx context.Context, session *model.TestSession) (time.Duration, error) {
	minutes, err := s.durationMinutes(ctx, session.TestID)
	if err != nil {
		return 0, err
	}
	return session.Remaining(time.Duration(minutes)*time.Minute, time.Now()), nil
}

// durationMinutes reads the test's duration from the Redis cache with a
// PostgreSQL fallback that self-heals the cache.
func (s *SessionService) durationMinutes(ctx context.Context, testID uuid.UUID) (int, error) {
	durationKey := config.CacheKey.TestDurationKey(testID.String())

	minutes, err := s.rdb.Get(ctx, durationKey).Int()
	if err == nil {
		return minutes, nil
	}
	if !errors.Is(err, redis.Nil) {
		s.log.Warn().Err(err).Msg("Redis error reading duration, falling back to pg")
	}

	test, dbErr := s.tests.GetByID(ctx, testID)
	if dbErr != nil {
		return 0, fmt.Errorf("test not found in cache or db: %w", dbErr)
	}

	// Self-heal so the next read is fast.
	_ = s.rdb.Set(ctx, durationKey, test.DurationMinutes, 0)
	return test.DurationMinutes, nil
}

// cacheDeadline mirrors the absolute deadline to Redis (best effort, pg
// is the source of truth). The TTL keeps keys of abandoned sessions
// from living forever; finalize deletes the key eagerly.
func (s *SessionService) cacheDeadline(ctx context.Context, sessionID uuid.UUID, deadline time.Time) {
	ttl := time.Until(deadline) + time.Hour
	if ttl < time.Minute {
		ttl = time.Minute
	}
	key := config.CacheKey.SessionDeadlineKey(sessionID.String())
	if err := s.rdb.Set(ctx, key, deadline.Unix(), ttl).Err(); err != nil {
		s.log.Warn().Err(err).Msg("Failed to cache session deadline")
	}
}
