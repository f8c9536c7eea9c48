package extract

import (
	"context"
	"fmt"
	"time"

	"loadplan/internal/domain"
	"loadplan/internal/port"
)

// Page text passed to the vision model as context is capped so prompts
// stay small on schedule-heavy sheets.
const maxPromptText = 4000

// VisionExtractor sends a page to an external vision model and adapts
// the structured reading into a candidate. When the page carries an
// embedded raster the image alone is sent; otherwise the whole document
// goes with the prompt directing the model to the page.
type VisionExtractor struct {
	provider port.VisionProvider
}

// NewVisionExtractor creates a VisionExtractor over the given provider,
// typically a FallbackProvider chain.
func NewVisionExtractor(provider port.VisionProvider) *VisionExtractor {
	return &VisionExtractor{provider: provider}
}

func (v *VisionExtractor) Name() domain.CandidateSource {
	return domain.SourceVision
}

func (v *VisionExtractor) Extract(ctx context.Context, in Input) (*domain.Candidate, error) {
	start := time.Now()
	d := in.Digest

	input := port.VisionInput{
		PageIndex:  d.PageIndex,
		FloorIndex: in.FloorIndex,
		PageText:   truncate(d.Text, maxPromptText),
	}
	if d.HasRaster() {
		input.Image = d.Images[0].Data
		input.ImageFormat = d.Images[0].Format
	} else {
		input.PDF = in.PDF
	}
	if len(input.Image) == 0 && len(input.PDF) == 0 {
		return nil, fmt.Errorf("extract.VisionExtractor: page %d has nothing to send: %w",
			d.PageIndex, domain.ErrCapabilityUnavailable)
	}

	out, err := v.provider.ExtractPage(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("extract.VisionExtractor: page %d: %w", d.PageIndex, err)
	}

	return &domain.Candidate{
		Source:     domain.SourceVision,
		PageIndex:  d.PageIndex,
		FloorIndex: in.FloorIndex,
		Confidence: clampVisionConfidence(out.Confidence),
		Fragment:   out.Fragment,
		Elapsed:    time.Since(start),
	}, nil
}

// clampVisionConfidence bounds the model's self-reported confidence.
// Models overstate certainty, so the ceiling sits below the geometry
// path's best case; a missing score lands mid-range.
func clampVisionConfidence(reported float64) float64 {
	if reported <= 0 {
		return 0.50
	}
	if reported < 0.10 {
		return 0.10
	}
	if reported > 0.85 {
		return 0.85
	}
	return reported
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
