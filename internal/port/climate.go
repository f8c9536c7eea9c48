package port

import (
	"context"

	"loadplan/internal/domain"
)

// ClimateSource resolves a location string to outdoor design conditions.
type ClimateSource interface {
	DesignConditions(ctx context.Context, location string) (*domain.ClimateDesignData, error)
}
