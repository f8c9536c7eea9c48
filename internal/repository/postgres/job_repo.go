package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"loadplan/internal/domain"
	"loadplan/internal/port"
)

type jobRepo struct {
	db *sqlx.DB
}

// NewJobRepo creates a new PostgreSQL-backed JobRepository.
func NewJobRepo(db *sqlx.DB) port.JobRepository {
	return &jobRepo{db: db}
}

func (r *jobRepo) Create(ctx context.Context, job *domain.Job) error {
	now := time.Now().UTC()
	job.CreatedAt = now
	job.UpdatedAt = now

	query := `INSERT INTO jobs (
		id, file_name, file_size, content_type, storage_key,
		location, status, stage, attempts, last_error,
		retry_after, result, created_at, updated_at, completed_at
	) VALUES (
		$1, $2, $3, $4, $5,
		$6, $7, $8, $9, $10,
		$11, $12, $13, $14, $15
	)`

	_, err := r.db.ExecContext(ctx, query,
		job.ID, job.FileName, job.FileSize, job.ContentType, job.StorageKey,
		job.Location, job.Status, job.Stage, job.Attempts, job.LastError,
		job.RetryAfter, job.Result, job.CreatedAt, job.UpdatedAt, job.CompletedAt)
	if err != nil {
		return fmt.Errorf("jobRepo.Create: %w", err)
	}
	return nil
}

func (r *jobRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Job, error) {
	var job domain.Job
	err := r.db.GetContext(ctx, &job,
		"SELECT * FROM jobs WHERE id = $1", id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("jobRepo.GetByID: %w", err)
	}
	return &job, nil
}

func (r *jobRepo) List(ctx context.Context, offset, limit int) ([]domain.Job, int, error) {
	var total int
	err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM jobs")
	if err != nil {
		return nil, 0, fmt.Errorf("jobRepo.List count: %w", err)
	}

	var jobs []domain.Job
	err = r.db.SelectContext(ctx, &jobs,
		`SELECT * FROM jobs
		 ORDER BY created_at DESC LIMIT $1 OFFSET $2`,
		limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("jobRepo.List: %w", err)
	}
	return jobs, total, nil
}

func (r *jobRepo) ClaimQueued(ctx context.Context, limit int) ([]domain.Job, error) {
	if limit <= 0 {
		return nil, nil
	}
	now := time.Now().UTC()

	// SKIP LOCKED keeps concurrent workers from claiming the same rows;
	// each claim bumps the attempt counter so retry accounting lives in
	// one place.
	query := `UPDATE jobs
		SET status = $1, attempts = attempts + 1, updated_at = $2
		WHERE id IN (
			SELECT id FROM jobs
			WHERE status = $3 AND (retry_after IS NULL OR retry_after <= $2)
			ORDER BY created_at
			LIMIT $4
			FOR UPDATE SKIP LOCKED
		)
		RETURNING *`

	var jobs []domain.Job
	err := r.db.SelectContext(ctx, &jobs, query,
		domain.JobStatusProcessing, now, domain.JobStatusQueued, limit)
	if err != nil {
		return nil, fmt.Errorf("jobRepo.ClaimQueued: %w", err)
	}
	return jobs, nil
}

func (r *jobRepo) SetStage(ctx context.Context, id uuid.UUID, stage domain.PipelineStage) error {
	result, err := r.db.ExecContext(ctx,
		"UPDATE jobs SET stage = $1, updated_at = $2 WHERE id = $3",
		stage, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("jobRepo.SetStage: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *jobRepo) Complete(ctx context.Context, id uuid.UUID, calcResult json.RawMessage) error {
	now := time.Now().UTC()
	result, err := r.db.ExecContext(ctx,
		`UPDATE jobs SET
			status = $1, stage = $2, result = $3, last_error = '',
			retry_after = NULL, completed_at = $4, updated_at = $4
		 WHERE id = $5`,
		domain.JobStatusCompleted, domain.StageDone, calcResult, now, id)
	if err != nil {
		return fmt.Errorf("jobRepo.Complete: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *jobRepo) Fail(ctx context.Context, id uuid.UUID, errMsg string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE jobs SET
			status = $1, stage = $2, last_error = $3,
			retry_after = NULL, updated_at = $4
		 WHERE id = $5`,
		domain.JobStatusFailed, domain.StageFailed, errMsg, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("jobRepo.Fail: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *jobRepo) Requeue(ctx context.Context, id uuid.UUID, errMsg string, retryAt time.Time) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE jobs SET
			status = $1, last_error = $2, retry_after = $3, updated_at = $4
		 WHERE id = $5`,
		domain.JobStatusQueued, errMsg, retryAt, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("jobRepo.Requeue: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.ErrNotFound
	}
	return nil
}
