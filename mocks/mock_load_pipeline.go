package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"loadplan/internal/domain"
	"loadplan/internal/pipeline"
)

// MockLoadPipeline is a mock implementation of service.LoadPipeline.
type MockLoadPipeline struct {
	mock.Mock
}

func (m *MockLoadPipeline) Process(ctx context.Context, documentBytes []byte, locationID string, opts pipeline.Options) (*domain.SystemLoadCalculation, error) {
	args := m.Called(ctx, documentBytes, locationID, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.SystemLoadCalculation), args.Error(1)
}
