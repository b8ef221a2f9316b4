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

// SubmissionRepository handles submission data access.
type SubmissionRepository struct {
	pool *pgxpool.Pool
}

// NewSubmissionRepository creates a new SubmissionRepository.
func NewSubmissionRepository(pool *pgxpool.Pool) *SubmissionRepository {
	return &SubmissionRepository{pool: pool}
}

const submissionColumns = `id, test_id, learner_id, answers, total_score, graded, submitted_at, graded_at`

// Create inserts a fresh ungraded submission.
func (r *SubmissionRepository) Create(ctx context.Context, s *model.Submission) error {
	raw, err := json.Marshal(s.Answers)
	if err != nil {
		return fmt.Errorf("marshal answers: %w", err)
	}

	return r.pool.QueryRow(ctx,
		`INSERT INTO submissions (test_id, learner_id, answers)
		 VALUES ($1, $2, $3)
		 RETURNING id, submitted_at`,
		s.TestID, s.LearnerID, raw,
	).Scan(&s.ID, &s.SubmittedAt)
}

// GetByID retrieves a submission by id.
func (r *SubmissionRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Submission, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+submissionColumns+` FROM submissions WHERE id = $1`, id,
	)
	return scanSubmission(row)
}

// GetByTestAndLearner retrieves the submission for a (test, learner) pair.
func (r *SubmissionRepository) GetByTestAndLearner(ctx context.Context, testID uuid.UUID, learnerID int) (*model.Submission, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+submissionColumns+`
		 FROM submissions
		 WHERE test_id = $1 AND learner_id = $2`,
		testID, learnerID,
	)
	return scanSubmission(row)
}

// SaveGrades writes back the scored answers and flips the graded flag.
// Re-running a grading pass overwrites the previous scores wholesale, so
// a retried run never double-counts.
func (r *SubmissionRepository) SaveGrades(ctx context.Context, id uuid.UUID, answers []model.Answer, totalScore float64, gradedAt time.Time) error {
	raw, err := json.Marshal(answers)
	if err != nil {
		return fmt.Errorf("marshal answers: %w", err)
	}

	tag, err := r.pool.Exec(ctx,
		`UPDATE submissions
		 SET answers = $2, total_score = $3, graded = TRUE, graded_at = $4
		 WHERE id = $1`,
		id, raw, totalScore, gradedAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return model.ErrNotFound
	}
	return nil
}

// ListByTest retrieves submissions for a test, newest first, paginated.
func (r *SubmissionRepository) ListByTest(ctx context.Context, testID uuid.UUID, page, perPage int) ([]model.Submission, int64, error) {
	var total int64
	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM submissions WHERE test_id = $1`, testID,
	).Scan(&total); err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * perPage
	rows, err := r.pool.Query(ctx,
		`SELECT `+submissionColumns+`
		 FROM submissions
		 WHERE test_id = $1
		 ORDER BY submitted_at DESC
		 LIMIT $2 OFFSET $3`,
		testID, perPage, offset,
	)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var submissions []model.Submission
	for rows.Next() {
		s, err := scanSubmission(rows)
		if err != nil {
			return nil, 0, err
		}
		submissions = append(submissions, *s)
	}
	return submissions, total, rows.Err()
}

func scanSubmission(row rowScanner) (*model.Submission, error) {
	s := &model.Submission{}
	var raw []byte
	err := row.Scan(&s.ID, &s.TestID, &s.LearnerID, &raw, &s.TotalScore, &s.Graded, &s.SubmittedAt, &s.GradedAt)
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
