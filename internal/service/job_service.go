package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"loadplan/internal/config"
	"loadplan/internal/domain"
	"loadplan/internal/pipeline"
	"loadplan/internal/port"
)

// JobSubmitInput is the DTO for blueprint submission requests.
type JobSubmitInput struct {
	File     multipart.File
	Header   *multipart.FileHeader
	Location string
}

// CalculateInput is the DTO for synchronous, non-persisted calculations.
type CalculateInput struct {
	Document []byte
	Location string

	// FeetPerUnit overrides the drawing scale when the caller knows it.
	// Zero means resolve from the document.
	FeetPerUnit float64
}

// LoadPipeline is the slice of the calculation pipeline this service
// drives. Satisfied by pipeline.Orchestrator.
type LoadPipeline interface {
	Process(ctx context.Context, documentBytes []byte, locationID string, opts pipeline.Options) (*domain.SystemLoadCalculation, error)
}

// JobService defines the load calculation job contract.
type JobService interface {
	Submit(ctx context.Context, input JobSubmitInput) (*domain.Job, error)
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Job, error)
	List(ctx context.Context, offset, limit int) ([]domain.Job, int, error)
	Result(ctx context.Context, id uuid.UUID) (*domain.SystemLoadCalculation, error)
	Calculate(ctx context.Context, input CalculateInput) (*domain.SystemLoadCalculation, error)

	// ProcessJob runs one claimed job through the pipeline, recording
	// stage progress and the terminal state on the job row. Errors are
	// persisted rather than returned; the queue worker has nowhere to
	// send them.
	ProcessJob(ctx context.Context, job *domain.Job, maxAttempts int)
}

type jobService struct {
	jobRepo  port.JobRepository
	storage  port.ObjectStorage
	pipeline LoadPipeline
	s3cfg    *config.S3Config
}

// NewJobService creates a new JobService implementation.
func NewJobService(
	jobRepo port.JobRepository,
	storage port.ObjectStorage,
	loadPipeline LoadPipeline,
	s3cfg *config.S3Config,
) JobService {
	return &jobService{
		jobRepo:  jobRepo,
		storage:  storage,
		pipeline: loadPipeline,
		s3cfg:    s3cfg,
	}
}

func (s *jobService) Submit(ctx context.Context, input JobSubmitInput) (*domain.Job, error) {
	// Validate file extension
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(input.Header.Filename), "."))
	if _, ok := domain.AllowedExtensions[ext]; !ok {
		return nil, domain.ErrUnsupportedFileType
	}

	// Validate file size
	maxBytes := s.s3cfg.MaxFileSizeMB * 1024 * 1024
	if input.Header.Size > maxBytes {
		return nil, domain.ErrFileTooLarge
	}

	// Read first 512 bytes for magic-byte content type detection
	buf := make([]byte, 512)
	n, err := input.File.Read(buf)
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("reading file header: %w", err)
	}
	detectedType := http.DetectContentType(buf[:n])
	if _, ok := domain.AllowedContentTypes[detectedType]; !ok {
		return nil, domain.ErrUnsupportedFileType
	}

	// Seek back to beginning for upload
	if _, err := input.File.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("seeking file: %w", err)
	}

	jobID := uuid.New()
	storageKey := fmt.Sprintf("blueprints/%s/%s", jobID, input.Header.Filename)

	log.Printf("jobService.Submit: uploading blueprint %s (%d bytes) for %q",
		input.Header.Filename, input.Header.Size, input.Location)

	// Upload before creating the row. A queued row must always point at
	// retrievable bytes, or a worker could claim it mid-upload.
	if _, err := s.storage.Upload(ctx, port.UploadInput{
		Bucket:      s.s3cfg.Bucket,
		Key:         storageKey,
		Body:        input.File,
		ContentType: detectedType,
		Size:        input.Header.Size,
	}); err != nil {
		log.Printf("jobService.Submit: blueprint upload failed: %v", err)
		return nil, domain.ErrUploadFailed
	}

	job := &domain.Job{
		ID:          jobID,
		FileName:    input.Header.Filename,
		FileSize:    input.Header.Size,
		ContentType: detectedType,
		StorageKey:  storageKey,
		Location:    input.Location,
		Status:      domain.JobStatusQueued,
	}
	if err := s.jobRepo.Create(ctx, job); err != nil {
		log.Printf("jobService.Submit: failed to create job row: %v", err)
		_ = s.storage.Delete(ctx, s.s3cfg.Bucket, storageKey)
		return nil, fmt.Errorf("creating job: %w", err)
	}
	return job, nil
}

func (s *jobService) GetByID(ctx context.Context, id uuid.UUID) (*domain.Job, error) {
	return s.jobRepo.GetByID(ctx, id)
}

func (s *jobService) List(ctx context.Context, offset, limit int) ([]domain.Job, int, error) {
	return s.jobRepo.List(ctx, offset, limit)
}

func (s *jobService) Result(ctx context.Context, id uuid.UUID) (*domain.SystemLoadCalculation, error) {
	job, err := s.jobRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.Status != domain.JobStatusCompleted || len(job.Result) == 0 {
		return nil, domain.ErrJobNotCompleted
	}

	var calc domain.SystemLoadCalculation
	if err := json.Unmarshal(job.Result, &calc); err != nil {
		return nil, fmt.Errorf("decoding stored result for %s: %w", id, err)
	}
	return &calc, nil
}

func (s *jobService) Calculate(ctx context.Context, input CalculateInput) (*domain.SystemLoadCalculation, error) {
	maxBytes := s.s3cfg.MaxFileSizeMB * 1024 * 1024
	if int64(len(input.Document)) > maxBytes {
		return nil, domain.ErrFileTooLarge
	}
	if _, ok := domain.AllowedContentTypes[http.DetectContentType(input.Document)]; !ok {
		return nil, domain.ErrUnsupportedFileType
	}

	var opts pipeline.Options
	if input.FeetPerUnit > 0 {
		opts.ForcedScale = &domain.Scale{FeetPerUnit: input.FeetPerUnit}
	}
	return s.pipeline.Process(ctx, input.Document, input.Location, opts)
}

// rateLimitRequeueDelay spaces out retries of a run whose vision
// provider was over quota.
const rateLimitRequeueDelay = time.Minute

func (s *jobService) ProcessJob(ctx context.Context, job *domain.Job, maxAttempts int) {
	log.Printf("jobService.ProcessJob: starting job %s (attempt %d/%d)", job.ID, job.Attempts, maxAttempts)

	data, err := s.storage.Download(ctx, s.s3cfg.Bucket, job.StorageKey)
	if err != nil {
		s.failJob(ctx, job, fmt.Sprintf("fetching blueprint: %v", err))
		return
	}

	opts := pipeline.Options{
		Progress: func(stage domain.PipelineStage) {
			if err := s.jobRepo.SetStage(ctx, job.ID, stage); err != nil {
				log.Printf("jobService.ProcessJob: failed to record stage %s for %s: %v", stage, job.ID, err)
			}
		},
	}

	result, err := s.pipeline.Process(ctx, data, job.Location, opts)
	if err != nil {
		s.failJob(ctx, job, fmt.Sprintf("processing blueprint: %v", err))
		return
	}

	// A rate-limited run still succeeds, minus its vision source. Requeue
	// while attempts remain so a later run can read the withheld pages;
	// the final attempt keeps the degraded result.
	if hasWarningCode(result.Warnings, pipeline.WarningVisionRateLimited) && job.Attempts < maxAttempts {
		retryAt := time.Now().UTC().Add(rateLimitRequeueDelay)
		if err := s.jobRepo.Requeue(ctx, job.ID, "vision rate limited, queued for retry", retryAt); err != nil {
			log.Printf("jobService.ProcessJob: failed to requeue job %s: %v", job.ID, err)
			return
		}
		log.Printf("jobService.ProcessJob: job %s queued for retry after %s", job.ID, retryAt.Format(time.RFC3339))
		return
	}

	payload, err := json.Marshal(result)
	if err != nil {
		s.failJob(ctx, job, fmt.Sprintf("encoding result: %v", err))
		return
	}
	if err := s.jobRepo.Complete(ctx, job.ID, payload); err != nil {
		log.Printf("jobService.ProcessJob: failed to save result for %s: %v", job.ID, err)
		return
	}

	log.Printf("jobService.ProcessJob: job %s completed (heating %.0f BTU/hr, cooling %.0f BTU/hr, %d warning(s))",
		job.ID, result.HeatingBTUH, result.CoolingBTUH, len(result.Warnings))
}

// hasWarningCode reports whether any warning carries the given code.
func hasWarningCode(warnings []domain.Warning, code string) bool {
	for _, w := range warnings {
		if w.Code == code {
			return true
		}
	}
	return false
}

func (s *jobService) failJob(ctx context.Context, job *domain.Job, errMsg string) {
	log.Printf("jobService.failJob: job %s failed: %s", job.ID, errMsg)
	if err := s.jobRepo.Fail(ctx, job.ID, errMsg); err != nil {
		log.Printf("jobService.failJob: failed to update status for %s: %v", job.ID, err)
	}
}
