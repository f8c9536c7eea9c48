package port

import "context"

// OCREngine abstracts optical character recognition over a raster image.
type OCREngine interface {
	// RecognizeImage returns the text found in an encoded image (PNG or
	// JPEG bytes). An empty string with nil error means no text found.
	RecognizeImage(ctx context.Context, image []byte) (string, error)
}
