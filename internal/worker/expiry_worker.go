package worker

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/gradia-app/gradia-backend/internal/model"
	"github.com/gradia-app/gradia-backend/internal/service"
	"github.com/rs/zerolog"
)

// Finalizer closes a session and schedules grading; implemented by
// service.SubmissionService.
type Finalizer interface {
	Finalize(ctx context.Context, sessionID uuid.UUID) (*model.Submission, error)
}

// ExpiryWorker force-submits sessions whose deadline passed, using the
// last autosaved answers. It shares the finalize path with explicit
// submits, so a learner clicking submit at the same instant is safe —
// whoever flips the session first wins and the other call is a no-op.
type ExpiryWorker struct {
	sessions  service.SessionStore
	finalizer Finalizer
	interval  time.Duration
	log       zerolog.Logger
}

// NewExpiryWorker creates a new ExpiryWorker.
func NewExpiryWorker(sessions service.SessionStore, finalizer Finalizer, interval time.Duration, log zerolog.Logger) *ExpiryWorker {
	return &ExpiryWorker{
		sessions:  sessions,
		finalizer: finalizer,
		interval:  interval,
		log:       log.With().Str("component", "expiry_worker").Logger(),
	}
}

// Start begins the sweep loop. Call in a goroutine.
func (w *ExpiryWorker) Start(ctx context.Context) {
	w.log.Info().Dur("interval", w.interval).Msg("ExpiryWorker started")

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("ExpiryWorker stopped")
			return
		case <-ticker.C:
			w.Sweep(ctx)
		}
	}
}

// Sweep finalizes every overdue session found in one pass.
func (w *ExpiryWorker) Sweep(ctx context.Context) {
	expired, err := w.sessions.ListExpired(ctx, time.Now())
	if err != nil {
		w.log.Error().Err(err).Msg("Expired session query failed")
		return
	}

	for i := range expired {
		sessionID := expired[i].ID
		if _, err := w.finalizer.Finalize(ctx, sessionID); err != nil {
			// An explicit submit beating the sweep comes back as the
			// winner's submission, not an error. ErrNotFound means the
			// session vanished underneath the sweep.
			if errors.Is(err, model.ErrNotFound) {
				continue
			}
			w.log.Error().Err(err).
				Str("session_id", sessionID.String()).
				Msg("Auto-submit failed")
			continue
		}

		w.log.Info().
			Str("session_id", sessionID.String()).
			Int("learner_id", expired[i].LearnerID).
			Msg("Session auto-submitted on deadline")
	}
}
