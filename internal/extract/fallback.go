package extract

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"loadplan/internal/port"
)

// circuitState tracks rate-limit backoff for a single vision provider.
type circuitState struct {
	mu      sync.RWMutex
	resetAt time.Time // zero value = closed (healthy)
}

func (c *circuitState) isOpenWithReset(now time.Time) (time.Time, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.resetAt, !c.resetAt.IsZero() && now.Before(c.resetAt)
}

func (c *circuitState) open(resetAt time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resetAt = resetAt
}

// FallbackProvider tries vision providers in order, skipping those with
// open circuits. It implements port.VisionProvider.
type FallbackProvider struct {
	providers []port.VisionProvider
	circuits  []*circuitState
}

// NewFallbackProvider creates a FallbackProvider from an ordered list of providers.
func NewFallbackProvider(providers []port.VisionProvider) *FallbackProvider {
	circuits := make([]*circuitState, len(providers))
	for i := range circuits {
		circuits[i] = &circuitState{}
	}
	return &FallbackProvider{
		providers: providers,
		circuits:  circuits,
	}
}

func (f *FallbackProvider) Name() string {
	return "fallback"
}

func (f *FallbackProvider) ExtractPage(ctx context.Context, input port.VisionInput) (*port.VisionOutput, error) {
	now := time.Now()
	var lastErr error
	allRateLimited := true
	var earliestReset time.Time

	for i, p := range f.providers {
		if resetAt, open := f.circuits[i].isOpenWithReset(now); open {
			log.Printf("extract.FallbackProvider: skipping %s (circuit open until %s)", p.Name(), resetAt.Format(time.RFC3339))
			if earliestReset.IsZero() || resetAt.Before(earliestReset) {
				earliestReset = resetAt
			}
			continue
		}

		out, err := p.ExtractPage(ctx, input)
		if err == nil {
			return out, nil
		}

		log.Printf("extract.FallbackProvider: %s failed: %v", p.Name(), err)
		lastErr = err

		var rlErr *RateLimitError
		if errors.As(err, &rlErr) {
			resetAt := now.Add(rlErr.RetryAfter)
			f.circuits[i].open(resetAt)
			if earliestReset.IsZero() || resetAt.Before(earliestReset) {
				earliestReset = resetAt
			}
		} else {
			allRateLimited = false
		}
	}

	if lastErr == nil {
		// All providers were skipped due to open circuits
		retryAfter := time.Until(earliestReset)
		if retryAfter < 0 {
			retryAfter = time.Second
		}
		return nil, NewRateLimitError("all", fmt.Errorf("all vision providers rate limited"), int(retryAfter.Seconds()))
	}

	if allRateLimited {
		retryAfter := time.Until(earliestReset)
		if retryAfter < 0 {
			retryAfter = time.Second
		}
		return nil, NewRateLimitError("all", fmt.Errorf("all vision providers rate limited"), int(retryAfter.Seconds()))
	}

	return nil, fmt.Errorf("all vision providers failed: %w", lastErr)
}
