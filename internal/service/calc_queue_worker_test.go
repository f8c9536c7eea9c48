package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"loadplan/internal/domain"
	"loadplan/internal/service"
	"loadplan/mocks"
)

func TestCalcQueueWorker_PollsAndDispatchesJobs(t *testing.T) {
	jobRepo := new(mocks.MockJobRepo)
	jobSvc := new(mocks.MockJobService)

	job := domain.Job{
		ID:         uuid.New(),
		FileName:   "plan.pdf",
		StorageKey: "blueprints/abc/plan.pdf",
		Location:   "Denver, CO",
		Status:     domain.JobStatusProcessing,
		Attempts:   1,
	}

	// First poll returns one job, subsequent polls return empty
	jobRepo.On("ClaimQueued", mock.Anything, mock.AnythingOfType("int")).
		Return([]domain.Job{job}, nil).Once()
	jobRepo.On("ClaimQueued", mock.Anything, mock.AnythingOfType("int")).
		Return([]domain.Job{}, nil).Maybe()

	jobSvc.On("ProcessJob", mock.Anything, mock.AnythingOfType("*domain.Job"), 3).
		Return().Maybe()

	cfg := service.CalcQueueConfig{
		PollInterval: 50 * time.Millisecond,
		MaxRetries:   3,
		Concurrency:  2,
	}
	worker := service.NewCalcQueueWorker(jobRepo, jobSvc, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		worker.Start(ctx)
		close(done)
	}()

	// Wait for at least one poll cycle
	time.Sleep(200 * time.Millisecond)
	cancel()
	<-done

	jobRepo.AssertCalled(t, "ClaimQueued", mock.Anything, mock.AnythingOfType("int"))
	jobSvc.AssertCalled(t, "ProcessJob", mock.Anything, mock.AnythingOfType("*domain.Job"), 3)
}

func TestCalcQueueWorker_RespectsConcurrencyCap(t *testing.T) {
	jobRepo := new(mocks.MockJobRepo)
	jobSvc := new(mocks.MockJobService)

	cfg := service.CalcQueueConfig{
		PollInterval: 50 * time.Millisecond,
		MaxRetries:   3,
		Concurrency:  2,
	}

	// Return empty to verify the limit parameter
	jobRepo.On("ClaimQueued", mock.Anything, mock.AnythingOfType("int")).
		Return([]domain.Job{}, nil).Maybe()

	worker := service.NewCalcQueueWorker(jobRepo, jobSvc, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		worker.Start(ctx)
		close(done)
	}()

	time.Sleep(150 * time.Millisecond)
	cancel()
	<-done

	// Verify ClaimQueued was called with limit <= concurrency
	for _, call := range jobRepo.Calls {
		if call.Method == "ClaimQueued" {
			limit := call.Arguments.Get(1).(int)
			assert.LessOrEqual(t, limit, cfg.Concurrency)
		}
	}
}

func TestCalcQueueWorker_CleanShutdown(t *testing.T) {
	jobRepo := new(mocks.MockJobRepo)
	jobSvc := new(mocks.MockJobService)

	jobRepo.On("ClaimQueued", mock.Anything, mock.AnythingOfType("int")).
		Return([]domain.Job{}, nil).Maybe()

	cfg := service.CalcQueueConfig{
		PollInterval: 50 * time.Millisecond,
		MaxRetries:   3,
		Concurrency:  5,
	}
	worker := service.NewCalcQueueWorker(jobRepo, jobSvc, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		worker.Start(ctx)
		close(done)
	}()

	// Cancel immediately
	cancel()

	select {
	case <-done:
		// Start returned promptly
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after context cancellation")
	}
	jobSvc.AssertNotCalled(t, "ProcessJob", mock.Anything, mock.Anything, mock.Anything)
}

func TestCalcQueueWorker_EmptyQueueDoesNothing(t *testing.T) {
	jobRepo := new(mocks.MockJobRepo)
	jobSvc := new(mocks.MockJobService)

	jobRepo.On("ClaimQueued", mock.Anything, mock.AnythingOfType("int")).
		Return([]domain.Job{}, nil).Maybe()

	cfg := service.CalcQueueConfig{
		PollInterval: 50 * time.Millisecond,
		MaxRetries:   3,
		Concurrency:  5,
	}
	worker := service.NewCalcQueueWorker(jobRepo, jobSvc, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		worker.Start(ctx)
		close(done)
	}()

	time.Sleep(200 * time.Millisecond)
	cancel()
	<-done

	jobSvc.AssertNotCalled(t, "ProcessJob", mock.Anything, mock.Anything, mock.Anything)
}

func TestCalcQueueWorker_ClaimQueuedError(t *testing.T) {
	jobRepo := new(mocks.MockJobRepo)
	jobSvc := new(mocks.MockJobService)

	// Return an error on poll
	jobRepo.On("ClaimQueued", mock.Anything, mock.AnythingOfType("int")).
		Return(nil, errors.New("db connection error")).Maybe()

	cfg := service.CalcQueueConfig{
		PollInterval: 50 * time.Millisecond,
		MaxRetries:   3,
		Concurrency:  5,
	}
	worker := service.NewCalcQueueWorker(jobRepo, jobSvc, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		worker.Start(ctx)
		close(done)
	}()

	// Let a few poll cycles happen with errors
	time.Sleep(200 * time.Millisecond)
	cancel()

	select {
	case <-done:
		// No panic, no goroutine leak
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after context cancellation")
	}

	jobSvc.AssertNotCalled(t, "ProcessJob", mock.Anything, mock.Anything, mock.Anything)
}
