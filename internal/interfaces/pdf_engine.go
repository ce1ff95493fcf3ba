package interfaces

import "context"

// WatermarkOptions configures a text watermark overlay
type WatermarkOptions struct {
	Text     string
	Opacity  float64
	FontSize int
	Rotation int
}

// PageNumberOptions configures page number stamping.
// Format may contain %p (page) and %P (page count).
type PageNumberOptions struct {
	Format   string
	Position string // pdfcpu anchor: bl, bc, br, tl, tc, tr
	FontSize int
}

// PDFEngine performs page-level transformations on PDF bytes.
// Implementations must not mutate their inputs.
type PDFEngine interface {
	PageCount(ctx context.Context, content []byte) (int, error)
	Merge(ctx context.Context, inputs [][]byte) ([]byte, error)
	Trim(ctx context.Context, content []byte, startPage, endPage int) ([]byte, error)
	Rotate(ctx context.Context, content []byte, angle int) ([]byte, error)
	Watermark(ctx context.Context, content []byte, opts WatermarkOptions) ([]byte, error)
	NumberPages(ctx context.Context, content []byte, opts PageNumberOptions) ([]byte, error)
	Encrypt(ctx context.Context, content []byte, password string) ([]byte, error)
	Decrypt(ctx context.Context, content []byte, password string) ([]byte, error)
	Optimize(ctx context.Context, content []byte) ([]byte, error)
}
