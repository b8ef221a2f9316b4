package model

import (
	"testing"
	"time"
)

func TestStartClockTransitions(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	s := &TestSession{Status: SessionStatusCreated}
	if err := s.StartClock(now); err != nil {
		t.Fatalf("start on CREATED failed: %v", err)
	}
	if s.Status != SessionStatusActive {
		t.Fatalf("expected ACTIVE, got %s", s.Status)
	}
	if s.StartedAt == nil || !s.StartedAt.Equal(now) {
		t.Fatalf("expected started_at anchored at %v, got %v", now, s.StartedAt)
	}

	// Repeat start keeps the original anchor.
	later := now.Add(5 * time.Minute)
	if err := s.StartClock(later); err != nil {
		t.Fatalf("repeat start failed: %v", err)
	}
	if !s.StartedAt.Equal(now) {
		t.Fatalf("repeat start moved the anchor to %v", s.StartedAt)
	}

	s.Status = SessionStatusSubmitted
	if err := s.StartClock(later); err != ErrSessionSubmitted {
		t.Fatalf("expected ErrSessionSubmitted, got %v", err)
	}
}

func TestRemainingDerivesFromAnchor(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	total := 60 * time.Minute

	// Clock not started yet: the full duration is still ahead.
	s := &TestSession{Status: SessionStatusCreated}
	if got := s.Remaining(total, now); got != total {
		t.Fatalf("expected full duration, got %v", got)
	}

	started := now.Add(-20 * time.Minute)
	s = &TestSession{Status: SessionStatusActive, StartedAt: &started}
	if got := s.Remaining(total, now); got != 40*time.Minute {
		t.Fatalf("expected 40m remaining, got %v", got)
	}

	// Past the deadline the clock clamps at zero, never negative.
	longAgo := now.Add(-3 * time.Hour)
	s.StartedAt = &longAgo
	if got := s.Remaining(total, now); got != 0 {
		t.Fatalf("expected 0 remaining, got %v", got)
	}
}

func TestExpired(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	total := 30 * time.Minute
	overdue := now.Add(-time.Hour)

	active := &TestSession{Status: SessionStatusActive, StartedAt: &overdue}
	if !active.Expired(total, now) {
		t.Fatal("expected overdue ACTIVE session to be expired")
	}

	// A CREATED session has no running clock to expire.
	created := &TestSession{Status: SessionStatusCreated}
	if created.Expired(total, now) {
		t.Fatal("CREATED session must not expire")
	}

	submitted := &TestSession{Status: SessionStatusSubmitted, StartedAt: &overdue}
	if submitted.Expired(total, now) {
		t.Fatal("SUBMITTED session must not expire")
	}
}

func TestAnswerPayloadPerType(t *testing.T) {
	typed := &Answer{QuestionType: QuestionTypeTyped, AnswerText: "essay"}
	if typed.Payload() != "essay" {
		t.Fatalf("typed payload mismatch: %q", typed.Payload())
	}

	coding := &Answer{QuestionType: QuestionTypeCoding, CodeAnswer: "print(1)"}
	if coding.Payload() != "print(1)" {
		t.Fatalf("coding payload mismatch: %q", coding.Payload())
	}

	// Inline image wins over a file URL when both are set.
	hw := &Answer{QuestionType: QuestionTypeHandwritten, FileURL: "https://x/y.png", ImageData: "base64data"}
	if hw.Payload() != "base64data" {
		t.Fatalf("handwritten payload mismatch: %q", hw.Payload())
	}
	hw.ImageData = ""
	if hw.Payload() != "https://x/y.png" {
		t.Fatalf("handwritten fallback mismatch: %q", hw.Payload())
	}
}
