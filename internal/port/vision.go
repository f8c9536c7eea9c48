package port

import (
	"context"

	"loadplan/internal/domain"
)

// VisionInput carries one page to an external vision model. When the page
// has an embedded raster, Image holds it and PDF is nil; otherwise the
// whole document is attached and the prompt directs the model to the page.
type VisionInput struct {
	PDF         []byte
	Image       []byte
	ImageFormat string // "jpeg" or "png" when Image is set
	PageIndex   int    // 0-based page within the document
	FloorIndex  int    // 1-based floor the page depicts
	PageText    string // text already recovered from the page, as context
}

// VisionOutput is the structured reading a vision model produced for a page.
type VisionOutput struct {
	Fragment   domain.Fragment
	Confidence float64
	ModelUsed  string
}

// VisionProvider abstracts an external vision-capable model that reads
// floor plan pages.
type VisionProvider interface {
	Name() string
	ExtractPage(ctx context.Context, input VisionInput) (*VisionOutput, error)
}
