package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/gradia-app/gradia-backend/internal/model"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// TestRepository reads authored tests. Authoring itself lives in the
// teacher-facing service; this backend only consumes the published rows.
type TestRepository struct {
	pool *pgxpool.Pool
}

// NewTestRepository creates a new TestRepository.
func NewTestRepository(pool *pgxpool.Pool) *TestRepository {
	return &TestRepository{pool: pool}
}

// GetByID retrieves a test with its embedded questions and rubric.
func (r *TestRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Test, error) {
	t := &model.Test{}
	var questions, rubric []byte

	err := r.pool.QueryRow(ctx,
		`SELECT id, title, description, class_id, duration_minutes, start_time, end_time, questions, rubric
		 FROM tests
		 WHERE id = $1`,
		id,
	).Scan(&t.ID, &t.Title, &t.Description, &t.ClassID, &t.DurationMinutes, &t.StartTime, &t.EndTime, &questions, &rubric)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrNotFound
		}
		return nil, err
	}

	if err := json.Unmarshal(questions, &t.Questions); err != nil {
		return nil, fmt.Errorf("unmarshal questions: %w", err)
	}
	if rubric != nil {
		if err := json.Unmarshal(rubric, &t.Rubric); err != nil {
			return nil, fmt.Errorf("unmarshal rubric: %w", err)
		}
	}
	return t, nil
}
