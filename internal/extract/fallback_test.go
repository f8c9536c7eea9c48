package extract_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"loadplan/internal/domain"
	"loadplan/internal/extract"
	"loadplan/internal/port"
	"loadplan/mocks"
)

func visionOutput(model string) *port.VisionOutput {
	return &port.VisionOutput{
		Fragment: domain.Fragment{
			Rooms: []domain.RoomObservation{{Name: "KITCHEN", Area: 160, ExteriorWalls: -1}},
		},
		Confidence: 0.7,
		ModelUsed:  model,
	}
}

func namedProvider(name string) *mocks.MockVisionProvider {
	p := new(mocks.MockVisionProvider)
	p.On("Name").Return(name).Maybe()
	return p
}

func TestFallbackProvider_FirstSucceeds(t *testing.T) {
	p1 := namedProvider("claude")
	p2 := namedProvider("openai")

	input := port.VisionInput{Image: []byte("img"), ImageFormat: "png", PageIndex: 2}
	p1.On("ExtractPage", mock.Anything, input).Return(visionOutput("claude-sonnet"), nil)

	fp := extract.NewFallbackProvider([]port.VisionProvider{p1, p2})

	result, err := fp.ExtractPage(context.Background(), input)

	assert.NoError(t, err)
	assert.NotNil(t, result)
	assert.Equal(t, "claude-sonnet", result.ModelUsed)
	p2.AssertNotCalled(t, "ExtractPage", mock.Anything, mock.Anything)
}

func TestFallbackProvider_FirstRateLimited_SecondSucceeds(t *testing.T) {
	p1 := namedProvider("claude")
	p2 := namedProvider("openai")

	input := port.VisionInput{Image: []byte("img"), ImageFormat: "png"}
	p1.On("ExtractPage", mock.Anything, input).Return(nil, extract.NewRateLimitError("claude", errors.New("429"), 60))
	p2.On("ExtractPage", mock.Anything, input).Return(visionOutput("gpt-4o"), nil)

	fp := extract.NewFallbackProvider([]port.VisionProvider{p1, p2})

	result, err := fp.ExtractPage(context.Background(), input)

	assert.NoError(t, err)
	assert.NotNil(t, result)
	assert.Equal(t, "gpt-4o", result.ModelUsed)
}

func TestFallbackProvider_AllRateLimited(t *testing.T) {
	p1 := namedProvider("claude")
	p2 := namedProvider("openai")

	input := port.VisionInput{PDF: []byte("pdf")}
	p1.On("ExtractPage", mock.Anything, input).Return(nil, extract.NewRateLimitError("claude", errors.New("429"), 60))
	p2.On("ExtractPage", mock.Anything, input).Return(nil, extract.NewRateLimitError("openai", errors.New("429"), 30))

	fp := extract.NewFallbackProvider([]port.VisionProvider{p1, p2})

	result, err := fp.ExtractPage(context.Background(), input)

	assert.Nil(t, result)
	assert.Error(t, err)

	var rlErr *extract.RateLimitError
	require.True(t, errors.As(err, &rlErr))
	assert.Equal(t, "all", rlErr.Provider)
}

func TestFallbackProvider_AllFail_NonRateLimit(t *testing.T) {
	p1 := namedProvider("claude")
	p2 := namedProvider("openai")

	input := port.VisionInput{PDF: []byte("pdf")}
	p1.On("ExtractPage", mock.Anything, input).Return(nil, errors.New("error 1"))
	p2.On("ExtractPage", mock.Anything, input).Return(nil, errors.New("error 2"))

	fp := extract.NewFallbackProvider([]port.VisionProvider{p1, p2})

	result, err := fp.ExtractPage(context.Background(), input)

	assert.Nil(t, result)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "all vision providers failed")

	var rlErr *extract.RateLimitError
	assert.False(t, errors.As(err, &rlErr))
}

func TestFallbackProvider_SkipsOpenCircuit(t *testing.T) {
	p1 := namedProvider("claude")
	p2 := namedProvider("openai")

	input := port.VisionInput{Image: []byte("img"), ImageFormat: "jpeg"}

	// First call: p1 rate limited with 60s, p2 succeeds
	p1.On("ExtractPage", mock.Anything, input).Return(nil, extract.NewRateLimitError("claude", errors.New("429"), 60)).Once()
	p2.On("ExtractPage", mock.Anything, input).Return(visionOutput("gpt-4o"), nil)

	fp := extract.NewFallbackProvider([]port.VisionProvider{p1, p2})

	result, err := fp.ExtractPage(context.Background(), input)
	assert.NoError(t, err)
	assert.Equal(t, "gpt-4o", result.ModelUsed)

	// Second call immediately: p1 should be skipped (circuit still open)
	result, err = fp.ExtractPage(context.Background(), input)
	assert.NoError(t, err)
	assert.Equal(t, "gpt-4o", result.ModelUsed)

	p1.AssertNumberOfCalls(t, "ExtractPage", 1)
}

func TestFallbackProvider_CircuitAutoCloses(t *testing.T) {
	p1 := namedProvider("claude")
	p2 := namedProvider("openai")

	input := port.VisionInput{Image: []byte("img"), ImageFormat: "png"}

	p1.On("ExtractPage", mock.Anything, input).Return(nil, extract.NewRateLimitError("claude", errors.New("429"), 1)).Once()
	p2.On("ExtractPage", mock.Anything, input).Return(visionOutput("gpt-4o"), nil).Once()

	fp := extract.NewFallbackProvider([]port.VisionProvider{p1, p2})

	result, err := fp.ExtractPage(context.Background(), input)
	assert.NoError(t, err)
	assert.Equal(t, "gpt-4o", result.ModelUsed)

	// Wait for circuit to auto-close
	time.Sleep(1100 * time.Millisecond)

	p1.On("ExtractPage", mock.Anything, input).Return(visionOutput("claude-sonnet"), nil).Once()

	result, err = fp.ExtractPage(context.Background(), input)
	assert.NoError(t, err)
	assert.Equal(t, "claude-sonnet", result.ModelUsed)
}

func TestFallbackProvider_ConcurrentSafety(t *testing.T) {
	p1 := namedProvider("claude")
	p2 := namedProvider("openai")

	input := port.VisionInput{Image: []byte("img"), ImageFormat: "png"}
	p1.On("ExtractPage", mock.Anything, input).Return(nil, extract.NewRateLimitError("claude", errors.New("429"), 5)).Maybe()
	p2.On("ExtractPage", mock.Anything, input).Return(visionOutput("gpt-4o"), nil).Maybe()

	fp := extract.NewFallbackProvider([]port.VisionProvider{p1, p2})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := fp.ExtractPage(context.Background(), input)
			assert.NoError(t, err)
			assert.NotNil(t, result)
		}()
	}
	wg.Wait()
}
