// Package ocr adapts the Tesseract engine for scanned blueprint pages.
//
// Tesseract must be installed on the system. On macOS:
//
//	brew install tesseract
//
// On Ubuntu/Debian:
//
//	apt-get install tesseract-ocr libtesseract-dev
package ocr

import (
	"context"
	"fmt"
	"strings"

	"github.com/otiai10/gosseract/v2"
)

// Engine implements port.OCREngine over gosseract. A fresh client is
// created per call because gosseract clients are not safe for the
// concurrent page fan-out.
type Engine struct {
	language string
}

// NewEngine creates an OCR engine. An empty language defaults to "eng".
func NewEngine(language string) *Engine {
	if language == "" {
		language = "eng"
	}
	return &Engine{language: language}
}

// RecognizeImage performs OCR on image data (PNG or JPEG) and returns the
// recognized text with surrounding whitespace trimmed.
func (e *Engine) RecognizeImage(ctx context.Context, image []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	client := gosseract.NewClient()
	defer func() { _ = client.Close() }()

	if err := client.SetLanguage(e.language); err != nil {
		return "", fmt.Errorf("ocr.Engine: setting language: %w", err)
	}
	if err := client.SetImageFromBytes(image); err != nil {
		return "", fmt.Errorf("ocr.Engine: setting image: %w", err)
	}

	text, err := client.Text()
	if err != nil {
		return "", fmt.Errorf("ocr.Engine: recognition failed: %w", err)
	}
	return strings.TrimSpace(text), nil
}
