// Package raster renders PDF pages to images with MuPDF (go-fitz).
package raster

import (
	"context"
	"fmt"
	"image"

	"github.com/gen2brain/go-fitz"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/docpipe/internal/interfaces"
	"github.com/ternarybob/docpipe/internal/models"
)

// DefaultDPI is used when the caller passes a non-positive resolution
const DefaultDPI = 150.0

// Rasterizer implements interfaces.Rasterizer
type Rasterizer struct {
	logger arbor.ILogger
}

var _ interfaces.Rasterizer = (*Rasterizer)(nil)

func NewRasterizer(logger arbor.ILogger) *Rasterizer {
	return &Rasterizer{logger: logger}
}

// RenderPages renders every page at dpi, in page order
func (r *Rasterizer) RenderPages(ctx context.Context, content []byte, dpi float64) ([]image.Image, error) {
	if dpi <= 0 {
		dpi = DefaultDPI
	}

	doc, err := fitz.NewFromMemory(content)
	if err != nil {
		return nil, fmt.Errorf("%w: open document for rendering: %v", models.ErrBackend, err)
	}
	defer doc.Close()

	images := make([]image.Image, 0, doc.NumPage())
	for i := 0; i < doc.NumPage(); i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		img, err := doc.ImageDPI(i, dpi)
		if err != nil {
			return nil, fmt.Errorf("%w: render page %d: %v", models.ErrBackend, i+1, err)
		}
		images = append(images, img)
	}

	r.logger.Debug().Int("pages", len(images)).Float64("dpi", dpi).Msg("PDF pages rendered")
	return images, nil
}
