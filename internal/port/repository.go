package port

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"loadplan/internal/domain"
)

// JobRepository defines the contract for load calculation job persistence.
type JobRepository interface {
	Create(ctx context.Context, job *domain.Job) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Job, error)
	List(ctx context.Context, offset, limit int) ([]domain.Job, int, error)

	// ClaimQueued atomically moves up to limit queued jobs to processing
	// and returns them. Concurrent workers never claim the same job, and
	// jobs with a future retry_after stay invisible until it passes.
	ClaimQueued(ctx context.Context, limit int) ([]domain.Job, error)

	SetStage(ctx context.Context, id uuid.UUID, stage domain.PipelineStage) error
	Complete(ctx context.Context, id uuid.UUID, result json.RawMessage) error
	Fail(ctx context.Context, id uuid.UUID, errMsg string) error

	// Requeue returns a claimed job to the queue after a transient failure,
	// holding it back until retryAt.
	Requeue(ctx context.Context, id uuid.UUID, errMsg string, retryAt time.Time) error
}
