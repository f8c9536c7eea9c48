package pdf

import (
	"bytes"
	"fmt"
	"io"
	"log"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"loadplan/internal/domain"
)

// PageCount returns the number of pages in a PDF without a full parse.
func PageCount(data []byte) (int, error) {
	count, err := api.PageCount(bytes.NewReader(data), nil)
	if err != nil {
		return 0, fmt.Errorf("pdf.PageCount: %w", err)
	}
	return count, nil
}

// Digest parses a PDF and builds one PageDigest per page: dimensions,
// positioned text, vector line work and embedded raster images.
// Classification fields are left unset; the classifier fills them in.
func Digest(data []byte) ([]domain.PageDigest, error) {
	conf := model.NewDefaultConfiguration()
	ctx, err := api.ReadValidateAndOptimize(bytes.NewReader(data), conf)
	if err != nil {
		return nil, fmt.Errorf("pdf.Digest: read: %w", err)
	}
	if ctx.PageCount == 0 {
		return nil, fmt.Errorf("pdf.Digest: document has no pages")
	}

	dims, err := ctx.PageDims()
	if err != nil {
		return nil, fmt.Errorf("pdf.Digest: page dims: %w", err)
	}

	digests := make([]domain.PageDigest, 0, ctx.PageCount)
	for pageNr := 1; pageNr <= ctx.PageCount; pageNr++ {
		d := domain.PageDigest{
			PageIndex:  pageNr - 1,
			TextSource: domain.TextSourceNone,
			Label:      domain.PageLabelOther,
		}
		if pageNr-1 < len(dims) {
			d.Width = dims[pageNr-1].Width
			d.Height = dims[pageNr-1].Height
		}

		pc := extractPageStream(ctx, pageNr)
		d.Runs = pc.runs
		d.Lines = pc.lines
		d.Rects = pc.rects
		d.Text = joinRuns(pc.runs)
		if d.Text != "" {
			d.TextSource = domain.TextSourceLayer
		}

		images, err := pageImages(ctx, pageNr)
		if err != nil {
			log.Printf("pdf.Digest: page %d images: %v", pageNr, err)
		}
		d.Images = images

		digests = append(digests, d)
	}
	return digests, nil
}

// extractPageStream pulls the decoded content stream for one page and
// parses it. Pages whose stream cannot be read yield an empty result
// rather than failing the document.
func extractPageStream(ctx *model.Context, pageNr int) pageContent {
	r, err := pdfcpu.ExtractPageContent(ctx, pageNr)
	if err != nil {
		return pageContent{}
	}
	data, err := io.ReadAll(r)
	if err != nil || len(data) == 0 {
		return pageContent{}
	}
	return parseContent(data)
}
