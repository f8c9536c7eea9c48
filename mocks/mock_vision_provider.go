package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"loadplan/internal/port"
)

// MockVisionProvider is a mock implementation of port.VisionProvider.
type MockVisionProvider struct {
	mock.Mock
}

func (m *MockVisionProvider) Name() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockVisionProvider) ExtractPage(ctx context.Context, input port.VisionInput) (*port.VisionOutput, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*port.VisionOutput), args.Error(1)
}
