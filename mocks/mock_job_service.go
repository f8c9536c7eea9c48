package mocks

import (
	"context"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"loadplan/internal/domain"
	"loadplan/internal/service"
)

// MockJobService is a mock implementation of service.JobService.
type MockJobService struct {
	mock.Mock
}

func (m *MockJobService) Submit(ctx context.Context, input service.JobSubmitInput) (*domain.Job, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Job), args.Error(1)
}

func (m *MockJobService) GetByID(ctx context.Context, id uuid.UUID) (*domain.Job, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Job), args.Error(1)
}

func (m *MockJobService) List(ctx context.Context, offset, limit int) ([]domain.Job, int, error) {
	args := m.Called(ctx, offset, limit)
	if args.Get(0) == nil {
		return nil, args.Int(1), args.Error(2)
	}
	return args.Get(0).([]domain.Job), args.Int(1), args.Error(2)
}

func (m *MockJobService) Result(ctx context.Context, id uuid.UUID) (*domain.SystemLoadCalculation, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.SystemLoadCalculation), args.Error(1)
}

func (m *MockJobService) Calculate(ctx context.Context, input service.CalculateInput) (*domain.SystemLoadCalculation, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.SystemLoadCalculation), args.Error(1)
}

func (m *MockJobService) ProcessJob(ctx context.Context, job *domain.Job, maxAttempts int) {
	m.Called(ctx, job, maxAttempts)
}
