// Package imaging rescales raster images with golang.org/x/image/draw.
package imaging

import (
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg"
	"image/png"

	"github.com/ternarybob/docpipe/internal/interfaces"
	"github.com/ternarybob/docpipe/internal/models"
	"golang.org/x/image/draw"
)

// Resizer implements interfaces.ImageResizer
type Resizer struct{}

var _ interfaces.ImageResizer = (*Resizer)(nil)

func NewResizer() *Resizer {
	return &Resizer{}
}

// Resize decodes a PNG or JPEG, scales it to height keeping the aspect
// ratio and re-encodes as PNG
func (r *Resizer) Resize(content []byte, height int) ([]byte, error) {
	if height <= 0 {
		return nil, fmt.Errorf("%w: height must be positive", models.ErrInvalidParameter)
	}

	src, _, err := image.Decode(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("%w: decode image: %v", models.ErrUnsupportedFormat, err)
	}

	b := src.Bounds()
	if b.Dy() == 0 {
		return nil, fmt.Errorf("%w: image has no height", models.ErrInvalidParameter)
	}
	width := b.Dx() * height / b.Dy()
	if width < 1 {
		width = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)

	return r.EncodePNG(dst)
}

func (r *Resizer) EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("%w: encode png: %v", models.ErrBackend, err)
	}
	return buf.Bytes(), nil
}
