package mocks

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"loadplan/internal/domain"
)

// MockJobRepo is a mock implementation of port.JobRepository.
type MockJobRepo struct {
	mock.Mock
}

func (m *MockJobRepo) Create(ctx context.Context, job *domain.Job) error {
	args := m.Called(ctx, job)
	return args.Error(0)
}

func (m *MockJobRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Job, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Job), args.Error(1)
}

func (m *MockJobRepo) List(ctx context.Context, offset, limit int) ([]domain.Job, int, error) {
	args := m.Called(ctx, offset, limit)
	if args.Get(0) == nil {
		return nil, args.Int(1), args.Error(2)
	}
	return args.Get(0).([]domain.Job), args.Int(1), args.Error(2)
}

func (m *MockJobRepo) ClaimQueued(ctx context.Context, limit int) ([]domain.Job, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Job), args.Error(1)
}

func (m *MockJobRepo) SetStage(ctx context.Context, id uuid.UUID, stage domain.PipelineStage) error {
	args := m.Called(ctx, id, stage)
	return args.Error(0)
}

func (m *MockJobRepo) Complete(ctx context.Context, id uuid.UUID, result json.RawMessage) error {
	args := m.Called(ctx, id, result)
	return args.Error(0)
}

func (m *MockJobRepo) Fail(ctx context.Context, id uuid.UUID, errMsg string) error {
	args := m.Called(ctx, id, errMsg)
	return args.Error(0)
}

func (m *MockJobRepo) Requeue(ctx context.Context, id uuid.UUID, errMsg string, retryAt time.Time) error {
	args := m.Called(ctx, id, errMsg, retryAt)
	return args.Error(0)
}
