package interfaces

import (
	"context"
	"image"
)

// Rasterizer renders PDF pages to images
type Rasterizer interface {
	RenderPages(ctx context.Context, content []byte, dpi float64) ([]image.Image, error)
}

// OCRResult is the recognised text of one image
type OCRResult struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"` // 0..1, 0 when unknown
}

// OCREngine recognises text in encoded image bytes
type OCREngine interface {
	Recognize(ctx context.Context, img []byte, languages []string) (OCRResult, error)
}

// SpeechSynthesizer converts text to encoded audio (mp3)
type SpeechSynthesizer interface {
	// Supports reports whether the backend recognises the language code
	Supports(language string) bool
	Synthesize(ctx context.Context, text, language string) ([]byte, error)
}

// QREncoder encodes text into a PNG QR code
type QREncoder interface {
	Encode(text string, size int) ([]byte, error)
}

// VideoTranscoder rescales video content
type VideoTranscoder interface {
	// Resize scales the video to the target height keeping aspect ratio; output is mp4
	Resize(ctx context.Context, content []byte, extension string, height int) ([]byte, error)
}

// ImageResizer rescales raster images
type ImageResizer interface {
	// Resize scales the image to the target height keeping aspect ratio; output is PNG
	Resize(content []byte, height int) ([]byte, error)
	// EncodePNG encodes an image as PNG
	EncodePNG(img image.Image) ([]byte, error)
}
