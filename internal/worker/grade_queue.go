package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/gradia-app/gradia-backend/internal/config"
	"github.com/redis/go-redis/v9"
)

type gradePayload struct {
	SubmissionID string `json:"submission_id"`
}

// GradeQueue is the Redis-backed handoff between finalize and the
// grading worker. Delivery is at-least-once; grading runs overwrite
// scores, so a duplicate job is harmless.
type GradeQueue struct {
	rdb *redis.Client
}

// NewGradeQueue creates a GradeQueue.
func NewGradeQueue(rdb *redis.Client) *GradeQueue {
	return &GradeQueue{rdb: rdb}
}

// Enqueue schedules a grading run for the submission.
func (q *GradeQueue) Enqueue(ctx context.Context, submissionID uuid.UUID) error {
	raw, err := json.Marshal(gradePayload{SubmissionID: submissionID.String()})
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	return q.rdb.RPush(ctx, config.WorkerKey.GradeSubmissionsQueue, raw).Err()
}
