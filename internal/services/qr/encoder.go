// Package qr encodes text as PNG QR codes.
package qr

import (
	"fmt"

	"github.com/skip2/go-qrcode"
	"github.com/ternarybob/docpipe/internal/interfaces"
	"github.com/ternarybob/docpipe/internal/models"
)

// DefaultSize is the PNG edge length in pixels
const DefaultSize = 256

// Encoder implements interfaces.QREncoder
type Encoder struct {
	level qrcode.RecoveryLevel
}

var _ interfaces.QREncoder = (*Encoder)(nil)

func NewEncoder() *Encoder {
	return &Encoder{level: qrcode.Medium}
}

// Encode returns a size x size PNG. Only the capacity limit of the QR
// standard bounds the text length.
func (e *Encoder) Encode(text string, size int) ([]byte, error) {
	if text == "" {
		return nil, fmt.Errorf("%w: qr text is required", models.ErrInvalidParameter)
	}
	if size <= 0 {
		size = DefaultSize
	}
	png, err := qrcode.Encode(text, e.level, size)
	if err != nil {
		// too much data for the largest symbol version
		return nil, fmt.Errorf("%w: qr encode: %v", models.ErrInvalidParameter, err)
	}
	return png, nil
}
