package model

import (
	"time"

	"github.com/google/uuid"
)

// SessionStatus enumerates test session states.
//
// CREATED  — session exists, instructions not yet acknowledged, clock idle.
// ACTIVE   — learner passed the instructions gate, clock running.
// SUBMITTED — terminal; the session produced a submission and is archived.
type SessionStatus string

const (
	SessionStatusCreated   SessionStatus = "CREATED"
	SessionStatusActive    SessionStatus = "ACTIVE"
	SessionStatusSubmitted SessionStatus = "SUBMITTED"
)

// TestSession represents a learner's single attempt at a test.
// At most one non-terminal session exists per (learner, test) pair.
type TestSession struct {
	ID                   uuid.UUID     `json:"id"`
	LearnerID            int           `json:"learner_id"`
	TestID               uuid.UUID     `json:"test_id"`
	Status               SessionStatus `json:"status"`
	CreatedAt            time.Time     `json:"created_at"`
	StartedAt            *time.Time    `json:"started_at,omitempty"`
	LastSavedAt          time.Time     `json:"last_saved_at"`
	CurrentQuestionIndex int           `json:"current_question_index"`
	Answers              []Answer      `json:"answers"`
}

// StartClock transitions CREATED → ACTIVE, recording now as the deadline
// anchor. Calling it again is a no-op so a reconnecting client can never
// reset the clock. Starting a SUBMITTED session is an illegal transition.
func (s *TestSession) StartClock(now time.Time) error {
	switch s.Status {
	case SessionStatusSubmitted:
		return ErrSessionSubmitted
	case SessionStatusActive:
		return nil // already started, keep the original anchor
	}
	t := now
	s.StartedAt = &t
	s.Status = SessionStatusActive
	return nil
}

// Remaining derives the time left on the clock. It is never stored: a
// dropped connection cannot freeze or fast-forward the deadline because
// every resume recomputes from StartedAt. A CREATED session still has the
// full duration ahead of it.
func (s *TestSession) Remaining(total time.Duration, now time.Time) time.Duration {
	if s.StartedAt == nil {
		return total
	}
	remaining := total - now.Sub(*s.StartedAt)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Expired reports whether the deadline passed for a running session.
func (s *TestSession) Expired(total time.Duration, now time.Time) bool {
	return s.Status == SessionStatusActive && s.Remaining(total, now) == 0
}

// Terminal reports whether the session reached its final state.
func (s *TestSession) Terminal() bool {
	return s.Status == SessionStatusSubmitted
}
