package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/gradia-app/gradia-backend/internal/model"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SessionRepository handles test session data access.
type SessionRepository struct {
	pool *pgxpool.Pool
}

// NewSessionRepository creates a new SessionRepository.
func NewSessionRepository(pool *pgxpool.Pool) *SessionRepository {
	return &SessionRepository{pool: pool}
}

const sessionColumns = `id, learner_id, test_id, status, created_at, started_at, last_saved_at, current_question_index, answers`

// CreateIfAbsent inserts a fresh CREATED session for the pair. The partial
// unique index on (learner_id, test_id) for non-terminal rows makes the
// insert conditional: a concurrent start loses the race cleanly and gets
// model.ErrNotFound, after which the caller re-reads the winner's row.
func (r *SessionRepository) CreateIfAbsent(ctx context.Context, learnerID int, testID uuid.UUID) (*model.TestSession, error) {
	s := &model.TestSession{
		LearnerID: learnerID,
		TestID:    testID,
		Status:    model.SessionStatusCreated,
		Answers:   []model.Answer{},
	}
	err := r.pool.QueryRow(ctx,
		`INSERT INTO test_sessions (learner_id, test_id, status, answers)
		 VALUES ($1, $2, $3, '[]')
		 ON CONFLICT (learner_id, test_id) WHERE status <> 'SUBMITTED' DO NOTHING
		 RETURNING id, created_at, last_saved_at`,
		learnerID, testID, model.SessionStatusCreated,
	).Scan(&s.ID, &s.CreatedAt, &s.LastSavedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrNotFound
		}
		return nil, err
	}
	return s, nil
}

// GetActive retrieves the non-terminal session for a (learner, test) pair.
func (r *SessionRepository) GetActive(ctx context.Context, learnerID int, testID uuid.UUID) (*model.TestSession, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+`
		 FROM test_sessions
		 WHERE learner_id = $1 AND test_id = $2 AND status <> 'SUBMITTED'`,
		learnerID, testID,
	)
	return scanSession(row)
}

// GetByID retrieves a session by its id, terminal or not.
func (r *SessionRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.TestSession, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM test_sessions WHERE id = $1`, id,
	)
	return scanSession(row)
}

// MarkStarted flips a session to ACTIVE and anchors the clock. COALESCE
// keeps the first started_at forever — a repeated call can never reset
// the deadline.
func (r *SessionRepository) MarkStarted(ctx context.Context, id uuid.UUID, now time.Time) (*model.TestSession, error) {
	row := r.pool.QueryRow(ctx,
		`UPDATE test_sessions
		 SET status = $2, started_at = COALESCE(started_at, $3)
		 WHERE id = $1 AND status <> 'SUBMITTED'
		 RETURNING `+sessionColumns,
		id, model.SessionStatusActive, now,
	)
	return scanSession(row)
}

// SaveProgress overwrites the draft answers and cursor (last writer wins).
func (r *SessionRepository) SaveProgress(ctx context.Context, id uuid.UUID, answers []model.Answer, currentQuestionIndex int, now time.Time) error {
	raw, err := json.Marshal(answers)
	if err != nil {
		return fmt.Errorf("marshal answers: %w", err)
	}

	tag, err := r.pool.Exec(ctx,
		`UPDATE test_sessions
		 SET answers = $2, current_question_index = $3, last_saved_at = $4
		 WHERE id = $1 AND status <> 'SUBMITTED'`,
		id, raw, currentQuestionIndex, now,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return model.ErrNotFound
	}
	return nil
}

// FinalizeFlip atomically moves a session to its terminal state. Returns
// true only for the single caller that wins the flip; an explicit submit
// racing a deadline sweep resolves here.
func (r *SessionRepository) FinalizeFlip(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE test_sessions SET status = $2 WHERE id = $1 AND status <> 'SUBMITTED'`,
		id, model.SessionStatusSubmitted,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// ListExpired returns ACTIVE sessions whose deadline has passed, joined
// against the owning test for its duration.
func (r *SessionRepository) ListExpired(ctx context.Context, now time.Time) ([]model.TestSession, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT s.id, s.learner_id, s.test_id, s.status, s.created_at, s.started_at, s.last_saved_at, s.current_question_index, s.answers
		 FROM test_sessions s
		 JOIN tests t ON t.id = s.test_id
		 WHERE s.status = 'ACTIVE'
		   AND s.started_at IS NOT NULL
		   AND s.started_at + make_interval(mins => t.duration_minutes) <= $1`,
		now,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []model.TestSession
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *s)
	}
	return sessions, rows.Err()
}

// Delete removes an archived session row.
func (r *SessionRepository) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM test_sessions WHERE id = $1`, id)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*model.TestSession, error) {
	s := &model.TestSession{}
	var raw []byte
	err := row.Scan(&s.ID, &s.LearnerID, &s.TestID, &s.Status, &s.CreatedAt, &s.StartedAt, &s.LastSavedAt, &s.CurrentQuestionIndex, &raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrNotFound
		}
		return nil, err
	}
	if err := json.Unmarshal(raw, &s.Answers); err != nil {
		return nil, fmt.Errorf("unmarshal answers: %w", err)
	}
	return s, nil
}
