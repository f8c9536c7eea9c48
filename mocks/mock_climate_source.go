package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"loadplan/internal/domain"
)

// MockClimateSource is a mock implementation of port.ClimateSource.
type MockClimateSource struct {
	mock.Mock
}

func (m *MockClimateSource) DesignConditions(ctx context.Context, location string) (*domain.ClimateDesignData, error) {
	args := m.Called(ctx, location)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ClimateDesignData), args.Error(1)
}
