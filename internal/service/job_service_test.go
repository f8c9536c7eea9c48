package service_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"loadplan/internal/config"
	"loadplan/internal/domain"
	"loadplan/internal/pipeline"
	"loadplan/internal/port"
	"loadplan/internal/service"
	"loadplan/mocks"
)

func testS3Config() *config.S3Config {
	return &config.S3Config{
		Region:        "us-east-1",
		Bucket:        "loadplan-test",
		MaxFileSizeMB: 10,
		PresignExpiry: 3600,
	}
}

// multipartFile builds a real multipart.File/FileHeader pair the way the
// HTTP layer would hand them over.
func multipartFile(t *testing.T, name string, content []byte) (multipart.File, *multipart.FileHeader) {
	t.Helper()

	body := new(bytes.Buffer)
	mw := multipart.NewWriter(body)
	part, err := mw.CreateFormFile("file", name)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/jobs", body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	file, header, err := req.FormFile("file")
	require.NoError(t, err)
	return file, header
}

func pdfBytes() []byte {
	return []byte("%PDF-1.4 test blueprint content")
}

func TestJobService_Submit_Success(t *testing.T) {
	jobRepo := new(mocks.MockJobRepo)
	storage := new(mocks.MockObjectStorage)
	svc := service.NewJobService(jobRepo, storage, nil, testS3Config())

	var uploaded port.UploadInput
	storage.On("Upload", mock.Anything, mock.AnythingOfType("port.UploadInput")).
		Run(func(args mock.Arguments) { uploaded = args.Get(1).(port.UploadInput) }).
		Return(&port.UploadOutput{Location: "https://s3/loadplan-test/key"}, nil)
	jobRepo.On("Create", mock.Anything, mock.AnythingOfType("*domain.Job")).Return(nil)

	file, header := multipartFile(t, "ranch_house.pdf", pdfBytes())
	job, err := svc.Submit(context.Background(), service.JobSubmitInput{
		File:     file,
		Header:   header,
		Location: "Denver, CO",
	})
	require.NoError(t, err)
	require.NotNil(t, job)

	assert.Equal(t, "ranch_house.pdf", job.FileName)
	assert.Equal(t, "application/pdf", job.ContentType)
	assert.Equal(t, "Denver, CO", job.Location)
	assert.Equal(t, domain.JobStatusQueued, job.Status)
	assert.Equal(t, fmt.Sprintf("blueprints/%s/ranch_house.pdf", job.ID), job.StorageKey)

	assert.Equal(t, "loadplan-test", uploaded.Bucket)
	assert.Equal(t, job.StorageKey, uploaded.Key)
	assert.Equal(t, "application/pdf", uploaded.ContentType)

	jobRepo.AssertExpectations(t)
	storage.AssertExpectations(t)
}

func TestJobService_Submit_RejectsUnsupportedExtension(t *testing.T) {
	jobRepo := new(mocks.MockJobRepo)
	storage := new(mocks.MockObjectStorage)
	svc := service.NewJobService(jobRepo, storage, nil, testS3Config())

	file, header := multipartFile(t, "notes.txt", []byte("just some notes"))
	job, err := svc.Submit(context.Background(), service.JobSubmitInput{
		File: file, Header: header, Location: "Denver, CO",
	})
	assert.Nil(t, job)
	assert.ErrorIs(t, err, domain.ErrUnsupportedFileType)
	storage.AssertNotCalled(t, "Upload", mock.Anything, mock.Anything)
}

func TestJobService_Submit_RejectsMismatchedContent(t *testing.T) {
	jobRepo := new(mocks.MockJobRepo)
	storage := new(mocks.MockObjectStorage)
	svc := service.NewJobService(jobRepo, storage, nil, testS3Config())

	// Right extension, but the bytes are plain text.
	file, header := multipartFile(t, "fake.pdf", []byte("this is not a pdf at all, only text"))
	job, err := svc.Submit(context.Background(), service.JobSubmitInput{
		File: file, Header: header, Location: "Denver, CO",
	})
	assert.Nil(t, job)
	assert.ErrorIs(t, err, domain.ErrUnsupportedFileType)
	storage.AssertNotCalled(t, "Upload", mock.Anything, mock.Anything)
}

func TestJobService_Submit_RejectsOversizedFile(t *testing.T) {
	jobRepo := new(mocks.MockJobRepo)
	storage := new(mocks.MockObjectStorage)
	cfg := testS3Config()
	cfg.MaxFileSizeMB = 1
	svc := service.NewJobService(jobRepo, storage, nil, cfg)

	big := append([]byte("%PDF-1.4 "), bytes.Repeat([]byte("a"), 2*1024*1024)...)
	file, header := multipartFile(t, "huge.pdf", big)
	job, err := svc.Submit(context.Background(), service.JobSubmitInput{
		File: file, Header: header, Location: "Denver, CO",
	})
	assert.Nil(t, job)
	assert.ErrorIs(t, err, domain.ErrFileTooLarge)
	storage.AssertNotCalled(t, "Upload", mock.Anything, mock.Anything)
}

func TestJobService_Submit_StorageFailure(t *testing.T) {
	jobRepo := new(mocks.MockJobRepo)
	storage := new(mocks.MockObjectStorage)
	svc := service.NewJobService(jobRepo, storage, nil, testS3Config())

	storage.On("Upload", mock.Anything, mock.Anything).
		Return(nil, errors.New("connection reset"))

	file, header := multipartFile(t, "plan.pdf", pdfBytes())
	job, err := svc.Submit(context.Background(), service.JobSubmitInput{
		File: file, Header: header, Location: "Denver, CO",
	})
	assert.Nil(t, job)
	assert.ErrorIs(t, err, domain.ErrUploadFailed)
	jobRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestJobService_Submit_CreateFailureCleansUpObject(t *testing.T) {
	jobRepo := new(mocks.MockJobRepo)
	storage := new(mocks.MockObjectStorage)
	svc := service.NewJobService(jobRepo, storage, nil, testS3Config())

	storage.On("Upload", mock.Anything, mock.Anything).
		Return(&port.UploadOutput{}, nil)
	jobRepo.On("Create", mock.Anything, mock.Anything).
		Return(errors.New("db down"))
	storage.On("Delete", mock.Anything, "loadplan-test", mock.AnythingOfType("string")).
		Return(nil)

	file, header := multipartFile(t, "plan.pdf", pdfBytes())
	job, err := svc.Submit(context.Background(), service.JobSubmitInput{
		File: file, Header: header, Location: "Denver, CO",
	})
	assert.Nil(t, job)
	assert.Error(t, err)
	storage.AssertCalled(t, "Delete", mock.Anything, "loadplan-test", mock.AnythingOfType("string"))
}

func TestJobService_Result_Completed(t *testing.T) {
	jobRepo := new(mocks.MockJobRepo)
	svc := service.NewJobService(jobRepo, nil, nil, testS3Config())

	stored, err := json.Marshal(domain.SystemLoadCalculation{
		Location:    "Denver, CO",
		HeatingBTUH: 24500,
		CoolingBTUH: 18200,
	})
	require.NoError(t, err)

	jobID := uuid.New()
	jobRepo.On("GetByID", mock.Anything, jobID).Return(&domain.Job{
		ID:     jobID,
		Status: domain.JobStatusCompleted,
		Result: stored,
	}, nil)

	calc, err := svc.Result(context.Background(), jobID)
	require.NoError(t, err)
	assert.Equal(t, "Denver, CO", calc.Location)
	assert.Equal(t, 24500.0, calc.HeatingBTUH)
	assert.Equal(t, 18200.0, calc.CoolingBTUH)
}

func TestJobService_Result_NotCompleted(t *testing.T) {
	jobRepo := new(mocks.MockJobRepo)
	svc := service.NewJobService(jobRepo, nil, nil, testS3Config())

	jobID := uuid.New()
	jobRepo.On("GetByID", mock.Anything, jobID).Return(&domain.Job{
		ID:     jobID,
		Status: domain.JobStatusProcessing,
		Stage:  domain.StageExtracting,
	}, nil)

	calc, err := svc.Result(context.Background(), jobID)
	assert.Nil(t, calc)
	assert.ErrorIs(t, err, domain.ErrJobNotCompleted)
}

func TestJobService_Result_NotFound(t *testing.T) {
	jobRepo := new(mocks.MockJobRepo)
	svc := service.NewJobService(jobRepo, nil, nil, testS3Config())

	jobID := uuid.New()
	jobRepo.On("GetByID", mock.Anything, jobID).Return(nil, domain.ErrNotFound)

	calc, err := svc.Result(context.Background(), jobID)
	assert.Nil(t, calc)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestJobService_Calculate_ForcedScale(t *testing.T) {
	loadPipeline := new(mocks.MockLoadPipeline)
	svc := service.NewJobService(nil, nil, loadPipeline, testS3Config())

	var gotOpts pipeline.Options
	loadPipeline.On("Process", mock.Anything, mock.Anything, "Denver, CO", mock.AnythingOfType("pipeline.Options")).
		Run(func(args mock.Arguments) { gotOpts = args.Get(3).(pipeline.Options) }).
		Return(&domain.SystemLoadCalculation{Location: "Denver, CO"}, nil)

	calc, err := svc.Calculate(context.Background(), service.CalculateInput{
		Document:    pdfBytes(),
		Location:    "Denver, CO",
		FeetPerUnit: 0.05,
	})
	require.NoError(t, err)
	assert.Equal(t, "Denver, CO", calc.Location)
	require.NotNil(t, gotOpts.ForcedScale)
	assert.Equal(t, 0.05, gotOpts.ForcedScale.FeetPerUnit)
}

func TestJobService_Calculate_RejectsNonPDF(t *testing.T) {
	loadPipeline := new(mocks.MockLoadPipeline)
	svc := service.NewJobService(nil, nil, loadPipeline, testS3Config())

	calc, err := svc.Calculate(context.Background(), service.CalculateInput{
		Document: []byte("plain text, not a blueprint"),
		Location: "Denver, CO",
	})
	assert.Nil(t, calc)
	assert.ErrorIs(t, err, domain.ErrUnsupportedFileType)
	loadPipeline.AssertNotCalled(t, "Process", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func claimedJob() *domain.Job {
	return &domain.Job{
		ID:         uuid.New(),
		FileName:   "plan.pdf",
		StorageKey: "blueprints/abc/plan.pdf",
		Location:   "Denver, CO",
		Status:     domain.JobStatusProcessing,
		Attempts:   1,
	}
}

func TestJobService_ProcessJob_Success(t *testing.T) {
	jobRepo := new(mocks.MockJobRepo)
	storage := new(mocks.MockObjectStorage)
	loadPipeline := new(mocks.MockLoadPipeline)
	svc := service.NewJobService(jobRepo, storage, loadPipeline, testS3Config())

	job := claimedJob()
	storage.On("Download", mock.Anything, "loadplan-test", job.StorageKey).
		Return(pdfBytes(), nil)
	jobRepo.On("SetStage", mock.Anything, job.ID, mock.AnythingOfType("domain.PipelineStage")).
		Return(nil).Maybe()
	loadPipeline.On("Process", mock.Anything, pdfBytes(), "Denver, CO", mock.AnythingOfType("pipeline.Options")).
		Run(func(args mock.Arguments) {
			// Drive the progress callback the way the orchestrator would.
			opts := args.Get(3).(pipeline.Options)
			if opts.Progress != nil {
				opts.Progress(domain.StageClassifying)
				opts.Progress(domain.StageDone)
			}
		}).
		Return(&domain.SystemLoadCalculation{Location: "Denver, CO", HeatingBTUH: 30000, CoolingBTUH: 21000}, nil)

	var savedResult json.RawMessage
	jobRepo.On("Complete", mock.Anything, job.ID, mock.AnythingOfType("json.RawMessage")).
		Run(func(args mock.Arguments) { savedResult = args.Get(2).(json.RawMessage) }).
		Return(nil)

	svc.ProcessJob(context.Background(), job, 3)

	jobRepo.AssertCalled(t, "Complete", mock.Anything, job.ID, mock.AnythingOfType("json.RawMessage"))
	jobRepo.AssertCalled(t, "SetStage", mock.Anything, job.ID, domain.StageClassifying)
	jobRepo.AssertNotCalled(t, "Fail", mock.Anything, mock.Anything, mock.Anything)

	var calc domain.SystemLoadCalculation
	require.NoError(t, json.Unmarshal(savedResult, &calc))
	assert.Equal(t, 30000.0, calc.HeatingBTUH)
}

// degradedCalc is a completed calculation that ran without its vision
// source because the provider was over quota.
func degradedCalc() *domain.SystemLoadCalculation {
	return &domain.SystemLoadCalculation{
		Location:    "Denver, CO",
		HeatingBTUH: 28000,
		CoolingBTUH: 19500,
		Warnings: []domain.Warning{{
			Code:    pipeline.WarningVisionRateLimited,
			Field:   "vision",
			Message: "claude is rate limited; page 1 proceeded without vision",
		}},
	}
}

func TestJobService_ProcessJob_RateLimitRequeues(t *testing.T) {
	jobRepo := new(mocks.MockJobRepo)
	storage := new(mocks.MockObjectStorage)
	loadPipeline := new(mocks.MockLoadPipeline)
	svc := service.NewJobService(jobRepo, storage, loadPipeline, testS3Config())

	job := claimedJob()
	storage.On("Download", mock.Anything, mock.Anything, mock.Anything).Return(pdfBytes(), nil)
	jobRepo.On("SetStage", mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
	loadPipeline.On("Process", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(degradedCalc(), nil)

	var gotRetryAt time.Time
	jobRepo.On("Requeue", mock.Anything, job.ID, "vision rate limited, queued for retry", mock.AnythingOfType("time.Time")).
		Run(func(args mock.Arguments) { gotRetryAt = args.Get(3).(time.Time) }).
		Return(nil)

	svc.ProcessJob(context.Background(), job, 3)

	jobRepo.AssertCalled(t, "Requeue", mock.Anything, job.ID, mock.AnythingOfType("string"), mock.AnythingOfType("time.Time"))
	jobRepo.AssertNotCalled(t, "Complete", mock.Anything, mock.Anything, mock.Anything)
	jobRepo.AssertNotCalled(t, "Fail", mock.Anything, mock.Anything, mock.Anything)
	assert.WithinDuration(t, time.Now().UTC().Add(time.Minute), gotRetryAt, 2*time.Second)
}

func TestJobService_ProcessJob_RateLimitLastAttemptKeepsResult(t *testing.T) {
	jobRepo := new(mocks.MockJobRepo)
	storage := new(mocks.MockObjectStorage)
	loadPipeline := new(mocks.MockLoadPipeline)
	svc := service.NewJobService(jobRepo, storage, loadPipeline, testS3Config())

	job := claimedJob()
	job.Attempts = 3
	storage.On("Download", mock.Anything, mock.Anything, mock.Anything).Return(pdfBytes(), nil)
	jobRepo.On("SetStage", mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
	loadPipeline.On("Process", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(degradedCalc(), nil)

	var savedResult json.RawMessage
	jobRepo.On("Complete", mock.Anything, job.ID, mock.AnythingOfType("json.RawMessage")).
		Run(func(args mock.Arguments) { savedResult = args.Get(2).(json.RawMessage) }).
		Return(nil)

	svc.ProcessJob(context.Background(), job, 3)

	jobRepo.AssertNotCalled(t, "Requeue", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	jobRepo.AssertNotCalled(t, "Fail", mock.Anything, mock.Anything, mock.Anything)

	var calc domain.SystemLoadCalculation
	require.NoError(t, json.Unmarshal(savedResult, &calc))
	require.Len(t, calc.Warnings, 1)
	assert.Equal(t, pipeline.WarningVisionRateLimited, calc.Warnings[0].Code)
}

func TestJobService_ProcessJob_DownloadFailureFails(t *testing.T) {
	jobRepo := new(mocks.MockJobRepo)
	storage := new(mocks.MockObjectStorage)
	loadPipeline := new(mocks.MockLoadPipeline)
	svc := service.NewJobService(jobRepo, storage, loadPipeline, testS3Config())

	job := claimedJob()
	storage.On("Download", mock.Anything, mock.Anything, mock.Anything).
		Return(nil, errors.New("no such key"))

	var failMsg string
	jobRepo.On("Fail", mock.Anything, job.ID, mock.AnythingOfType("string")).
		Run(func(args mock.Arguments) { failMsg = args.Get(2).(string) }).
		Return(nil)

	svc.ProcessJob(context.Background(), job, 3)

	loadPipeline.AssertNotCalled(t, "Process", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	assert.Contains(t, failMsg, "fetching blueprint")
}

func TestJobService_ProcessJob_PipelineFailureFails(t *testing.T) {
	jobRepo := new(mocks.MockJobRepo)
	storage := new(mocks.MockObjectStorage)
	loadPipeline := new(mocks.MockLoadPipeline)
	svc := service.NewJobService(jobRepo, storage, loadPipeline, testS3Config())

	job := claimedJob()
	storage.On("Download", mock.Anything, mock.Anything, mock.Anything).Return(pdfBytes(), nil)
	jobRepo.On("SetStage", mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
	loadPipeline.On("Process", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil, domain.NewStageError(domain.StageClassifying,
			fmt.Errorf("3 page(s) classified, none a floor plan: %w", domain.ErrNoFloorPlanPages)))

	var failMsg string
	jobRepo.On("Fail", mock.Anything, job.ID, mock.AnythingOfType("string")).
		Run(func(args mock.Arguments) { failMsg = args.Get(2).(string) }).
		Return(nil)

	svc.ProcessJob(context.Background(), job, 3)

	jobRepo.AssertCalled(t, "Fail", mock.Anything, job.ID, mock.AnythingOfType("string"))
	assert.True(t, strings.Contains(failMsg, "none a floor plan"))
}
