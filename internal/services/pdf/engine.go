// -----------------------------------------------------------------------
// PDF Engine - page-level transforms over pdfcpu
// All operations read from and write to memory; inputs are never mutated.
// -----------------------------------------------------------------------

package pdf

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/docpipe/internal/interfaces"
	"github.com/ternarybob/docpipe/internal/models"
)

// Engine implements interfaces.PDFEngine using pdfcpu
type Engine struct {
	logger arbor.ILogger
}

// Compile-time interface assertion
var _ interfaces.PDFEngine = (*Engine)(nil)

// NewEngine creates a new pdfcpu backed engine
func NewEngine(logger arbor.ILogger) *Engine {
	return &Engine{
		logger: logger,
	}
}

func (e *Engine) PageCount(ctx context.Context, content []byte) (int, error) {
	count, err := api.PageCount(bytes.NewReader(content), model.NewDefaultConfiguration())
	if err != nil {
		return 0, classifyPDFError("page count", err)
	}
	return count, nil
}

// Merge concatenates inputs in the given order
func (e *Engine) Merge(ctx context.Context, inputs [][]byte) ([]byte, error) {
	if len(inputs) < 2 {
		return nil, fmt.Errorf("%w: merge needs at least two documents", models.ErrInvalidParameter)
	}

	readers := make([]io.ReadSeeker, len(inputs))
	for i, in := range inputs {
		readers[i] = bytes.NewReader(in)
	}

	var out bytes.Buffer
	if err := api.MergeRaw(readers, &out, false, model.NewDefaultConfiguration()); err != nil {
		return nil, classifyPDFError("merge", err)
	}

	e.logger.Debug().Int("inputs", len(inputs)).Int("output_size", out.Len()).Msg("PDFs merged")
	return out.Bytes(), nil
}

// Trim keeps pages startPage..endPage (1-indexed, inclusive).
// Bounds are checked against the page count; nothing is clamped.
func (e *Engine) Trim(ctx context.Context, content []byte, startPage, endPage int) ([]byte, error) {
	count, err := e.PageCount(ctx, content)
	if err != nil {
		return nil, err
	}
	if startPage < 1 || endPage < 1 || startPage > count || endPage > count {
		return nil, fmt.Errorf("%w: pages %d-%d outside 1-%d", models.ErrRange, startPage, endPage, count)
	}
	if startPage > endPage {
		return nil, fmt.Errorf("%w: start page %d is after end page %d", models.ErrRange, startPage, endPage)
	}

	selection := []string{fmt.Sprintf("%d-%d", startPage, endPage)}
	var out bytes.Buffer
	if err := api.Trim(bytes.NewReader(content), &out, selection, model.NewDefaultConfiguration()); err != nil {
		return nil, classifyPDFError("split", err)
	}
	return out.Bytes(), nil
}

// Rotate turns every page clockwise by angle, which must be 90, 180 or 270
func (e *Engine) Rotate(ctx context.Context, content []byte, angle int) ([]byte, error) {
	switch angle {
	case 90, 180, 270:
	default:
		return nil, fmt.Errorf("%w: rotation must be 90, 180 or 270, got %d", models.ErrInvalidParameter, angle)
	}

	var out bytes.Buffer
	if err := api.Rotate(bytes.NewReader(content), &out, angle, nil, model.NewDefaultConfiguration()); err != nil {
		return nil, classifyPDFError("rotate", err)
	}
	return out.Bytes(), nil
}

// Watermark overlays text on every page. Page boxes are left untouched.
func (e *Engine) Watermark(ctx context.Context, content []byte, opts interfaces.WatermarkOptions) ([]byte, error) {
	if strings.TrimSpace(opts.Text) == "" {
		return nil, fmt.Errorf("%w: watermark text is required", models.ErrInvalidParameter)
	}

	desc := fmt.Sprintf("fontname:Helvetica, points:%d, scalefactor:1 abs, opacity:%.2f, rotation:%d, fillcolor:#808080",
		opts.FontSize, opts.Opacity, opts.Rotation)

	wm, err := api.TextWatermark(opts.Text, desc, true, false, types.POINTS)
	if err != nil {
		return nil, fmt.Errorf("%w: watermark: %v", models.ErrInvalidParameter, err)
	}

	var out bytes.Buffer
	if err := api.AddWatermarks(bytes.NewReader(content), &out, nil, wm, model.NewDefaultConfiguration()); err != nil {
		return nil, classifyPDFError("watermark", err)
	}
	return out.Bytes(), nil
}

// NumberPages stamps a page label on every page. %p is the page number and
// %P the page count.
func (e *Engine) NumberPages(ctx context.Context, content []byte, opts interfaces.PageNumberOptions) ([]byte, error) {
	format := opts.Format
	if format == "" {
		format = "Page %p of %P"
	}
	position := opts.Position
	if position == "" {
		position = "bc"
	}
	size := opts.FontSize
	if size <= 0 {
		size = 10
	}

	// Keep the label off the page edge
	offset := "0 15"
	if strings.HasPrefix(position, "t") {
		offset = "0 -15"
	}

	desc := fmt.Sprintf("fontname:Helvetica, points:%d, scalefactor:1 abs, position:%s, offset:%s, rotation:0, opacity:1, fillcolor:#000000",
		size, position, offset)

	wm, err := api.TextWatermark(format, desc, true, false, types.POINTS)
	if err != nil {
		return nil, fmt.Errorf("%w: page numbers: %v", models.ErrInvalidParameter, err)
	}

	var out bytes.Buffer
	if err := api.AddWatermarks(bytes.NewReader(content), &out, nil, wm, model.NewDefaultConfiguration()); err != nil {
		return nil, classifyPDFError("page numbers", err)
	}
	return out.Bytes(), nil
}

// Encrypt protects the document with AES-256; the password opens and owns it
func (e *Engine) Encrypt(ctx context.Context, content []byte, password string) ([]byte, error) {
	if password == "" {
		return nil, fmt.Errorf("%w: password is required", models.ErrInvalidParameter)
	}

	conf := model.NewAESConfiguration(password, password, 256)
	var out bytes.Buffer
	if err := api.Encrypt(bytes.NewReader(content), &out, conf); err != nil {
		return nil, classifyPDFError("encrypt", err)
	}
	return out.Bytes(), nil
}

// Decrypt removes protection. A wrong password fails with ErrAuth.
func (e *Engine) Decrypt(ctx context.Context, content []byte, password string) ([]byte, error) {
	if password == "" {
		return nil, fmt.Errorf("%w: password is required", models.ErrInvalidParameter)
	}

	conf := model.NewDefaultConfiguration()
	conf.UserPW = password
	conf.OwnerPW = password

	var out bytes.Buffer
	if err := api.Decrypt(bytes.NewReader(content), &out, conf); err != nil {
		return nil, classifyPDFError("decrypt", err)
	}
	return out.Bytes(), nil
}

func (e *Engine) Optimize(ctx context.Context, content []byte) ([]byte, error) {
	var out bytes.Buffer
	if err := api.Optimize(bytes.NewReader(content), &out, model.NewDefaultConfiguration()); err != nil {
		return nil, classifyPDFError("optimize", err)
	}

	e.logger.Debug().Int("input_size", len(content)).Int("output_size", out.Len()).Msg("PDF optimized")
	return out.Bytes(), nil
}

// classifyPDFError maps pdfcpu failures onto the error taxonomy.
// pdfcpu reports these conditions only through its messages.
func classifyPDFError(op string, err error) error {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "password"):
		return fmt.Errorf("%s: %w: %v", op, models.ErrAuth, err)
	case strings.Contains(msg, "not encrypted"), strings.Contains(msg, "already encrypted"):
		return fmt.Errorf("%s: %w: %v", op, models.ErrInvalidParameter, err)
	}
	return fmt.Errorf("%s: %w: %v", op, models.ErrBackend, err)
}
