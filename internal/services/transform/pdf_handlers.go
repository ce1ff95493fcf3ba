package transform

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"

	"github.com/ternarybob/docpipe/internal/interfaces"
	"github.com/ternarybob/docpipe/internal/models"
	"github.com/ternarybob/docpipe/internal/services/artifacts"
	"github.com/ternarybob/docpipe/internal/services/workers"
)

var pdfOnly = []models.Format{models.FormatPDF}

func (h *handlers) pdfSpecs(d Defaults) []*HandlerSpec {
	return []*HandlerSpec{
		{
			Name:        "extract_text",
			Description: "Extract the text layer of every page in order",
			Accepts:     pdfOnly,
			MinInputs:   1,
			MaxInputs:   1,
			Handler:     h.extractText,
		},
		{
			Name:        "page_count",
			Description: "Count the pages of a PDF",
			Accepts:     pdfOnly,
			MinInputs:   1,
			MaxInputs:   1,
			Handler:     h.pageCount,
		},
		{
			Name:        "merge",
			Description: "Concatenate PDFs in the order given",
			Accepts:     pdfOnly,
			MinInputs:   2,
			Handler:     h.merge,
		},
		{
			Name:        "split",
			Description: "Keep an inclusive 1-indexed page range",
			Accepts:     pdfOnly,
			MinInputs:   1,
			MaxInputs:   1,
			Params: []ParamSpec{
				{Name: "start_page", Type: ParamInt, Required: true, Description: "first page, 1-indexed"},
				{Name: "end_page", Type: ParamInt, Required: true, Description: "last page, inclusive"},
			},
			Handler: h.split,
		},
		{
			Name:        "rotate",
			Description: "Rotate every page clockwise",
			Accepts:     pdfOnly,
			MinInputs:   1,
			MaxInputs:   1,
			Params: []ParamSpec{
				{Name: "angle", Type: ParamInt, Required: true, Rule: "oneof=90 180 270", Description: "degrees clockwise"},
			},
			Handler: h.rotate,
		},
		{
			Name:        "watermark",
			Description: "Overlay text on every page",
			Accepts:     pdfOnly,
			MinInputs:   1,
			MaxInputs:   1,
			Params: []ParamSpec{
				{Name: "text", Type: ParamString, Required: true, Rule: "max=200"},
				{Name: "opacity", Type: ParamFloat, Default: "0.3", Rule: "gte=0,lte=1"},
				{Name: "font_size", Type: ParamInt, Default: "48", Rule: "min=6,max=200"},
				{Name: "rotation", Type: ParamInt, Default: "45", Rule: "gte=-180,lte=180"},
			},
			Handler: h.watermark,
		},
		{
			Name:        "page_numbers",
			Description: "Stamp page numbers; %p is the page, %P the page count",
			Accepts:     pdfOnly,
			MinInputs:   1,
			MaxInputs:   1,
			Params: []ParamSpec{
				{Name: "format", Type: ParamString, Default: "Page %p of %P", Rule: "max=100"},
				{Name: "position", Type: ParamString, Default: "bc", Rule: "oneof=tl tc tr l c r bl bc br"},
				{Name: "font_size", Type: ParamInt, Default: "10", Rule: "min=6,max=72"},
			},
			Handler: h.pageNumbers,
		},
		{
			Name:        "encrypt",
			Description: "Protect with a password (AES-256)",
			Accepts:     pdfOnly,
			MinInputs:   1,
			MaxInputs:   1,
			Params: []ParamSpec{
				{Name: "password", Type: ParamString, Required: true},
			},
			Handler: h.encrypt,
		},
		{
			Name:        "decrypt",
			Description: "Remove password protection",
			Accepts:     pdfOnly,
			MinInputs:   1,
			MaxInputs:   1,
			Params: []ParamSpec{
				{Name: "password", Type: ParamString, Required: true},
			},
			Handler: h.decrypt,
		},
		{
			Name:        "optimize",
			Description: "Rewrite the PDF dropping redundant objects",
			Accepts:     pdfOnly,
			MinInputs:   1,
			MaxInputs:   1,
			Handler:     h.optimize,
		},
		{
			Name:        "pdf_to_images",
			Description: "Render every page to PNG, zipped",
			Accepts:     pdfOnly,
			MinInputs:   1,
			MaxInputs:   1,
			Params: []ParamSpec{
				{Name: "dpi", Type: ParamInt, Default: strconv.Itoa(d.DPI), Rule: "min=36,max=600"},
			},
			Handler: h.pdfToImages,
		},
		{
			Name:        "ocr_pdf",
			Description: "Render pages and recognise their text",
			Accepts:     pdfOnly,
			MinInputs:   1,
			MaxInputs:   1,
			Params: []ParamSpec{
				{Name: "language", Type: ParamString, Default: d.OCRLanguage, Description: "tesseract languages joined with +"},
				{Name: "dpi", Type: ParamInt, Default: strconv.Itoa(d.DPI), Rule: "min=72,max=600"},
			},
			Handler: h.ocrPDF,
		},
		{
			Name:        "extract_tables",
			Description: "Export positioned text grids as CSV",
			Accepts:     pdfOnly,
			MinInputs:   1,
			MaxInputs:   1,
			Handler:     h.extractTables,
		},
	}
}

func textOutput(s string) *artifacts.Output {
	return &artifacts.Output{Text: &s}
}

func pdfOutput(data []byte, name string) *artifacts.Output {
	return &artifacts.Output{Data: data, Format: models.FormatPDF, Extension: "pdf", Name: name}
}

// joinPages concatenates page texts in order. A textless page contributes
// an empty string, so page boundaries are kept.
func joinPages(pages []string) string {
	return strings.Join(pages, "\n\n")
}

func (h *handlers) pdfText(ctx context.Context, content []byte) (string, error) {
	pages, err := h.engines.Extractor.ExtractPages(ctx, content)
	if err != nil {
		return "", err
	}
	texts := make([]string, len(pages))
	for i, p := range pages {
		texts[i] = p.Text
	}
	return joinPages(texts), nil
}

func (h *handlers) extractText(ctx context.Context, in Input) (*artifacts.Output, error) {
	text, err := h.pdfText(ctx, in.First().Data)
	if err != nil {
		return nil, err
	}
	return textOutput(text), nil
}

func (h *handlers) pageCount(ctx context.Context, in Input) (*artifacts.Output, error) {
	count, err := h.engines.PDF.PageCount(ctx, in.First().Data)
	if err != nil {
		return nil, err
	}
	return textOutput(strconv.Itoa(count)), nil
}

func (h *handlers) merge(ctx context.Context, in Input) (*artifacts.Output, error) {
	docs := make([][]byte, len(in.Artifacts))
	for i, a := range in.Artifacts {
		docs[i] = a.Data
	}
	out, err := h.engines.PDF.Merge(ctx, docs)
	if err != nil {
		return nil, err
	}
	return pdfOutput(out, "merged"), nil
}

func (h *handlers) split(ctx context.Context, in Input) (*artifacts.Output, error) {
	start, end := in.Params.Int("start_page"), in.Params.Int("end_page")
	out, err := h.engines.PDF.Trim(ctx, in.First().Data, start, end)
	if err != nil {
		return nil, err
	}
	return pdfOutput(out, fmt.Sprintf("%s_pages_%d-%d", baseName(in.First()), start, end)), nil
}

func (h *handlers) rotate(ctx context.Context, in Input) (*artifacts.Output, error) {
	angle := in.Params.Int("angle")
	out, err := h.engines.PDF.Rotate(ctx, in.First().Data, angle)
	if err != nil {
		return nil, err
	}
	return pdfOutput(out, fmt.Sprintf("%s_rotated_%d", baseName(in.First()), angle)), nil
}

func (h *handlers) watermark(ctx context.Context, in Input) (*artifacts.Output, error) {
	out, err := h.engines.PDF.Watermark(ctx, in.First().Data, interfaces.WatermarkOptions{
		Text:     in.Params.String("text"),
		Opacity:  in.Params.Float("opacity"),
		FontSize: in.Params.Int("font_size"),
		Rotation: in.Params.Int("rotation"),
	})
	if err != nil {
		return nil, err
	}
	return pdfOutput(out, baseName(in.First())+"_watermarked"), nil
}

func (h *handlers) pageNumbers(ctx context.Context, in Input) (*artifacts.Output, error) {
	out, err := h.engines.PDF.NumberPages(ctx, in.First().Data, interfaces.PageNumberOptions{
		Format:   in.Params.String("format"),
		Position: in.Params.String("position"),
		FontSize: in.Params.Int("font_size"),
	})
	if err != nil {
		return nil, err
	}
	return pdfOutput(out, baseName(in.First())+"_numbered"), nil
}

func (h *handlers) encrypt(ctx context.Context, in Input) (*artifacts.Output, error) {
	out, err := h.engines.PDF.Encrypt(ctx, in.First().Data, in.Params.String("password"))
	if err != nil {
		return nil, err
	}
	return pdfOutput(out, baseName(in.First())+"_encrypted"), nil
}

func (h *handlers) decrypt(ctx context.Context, in Input) (*artifacts.Output, error) {
	out, err := h.engines.PDF.Decrypt(ctx, in.First().Data, in.Params.String("password"))
	if err != nil {
		return nil, err
	}
	return pdfOutput(out, baseName(in.First())+"_decrypted"), nil
}

func (h *handlers) optimize(ctx context.Context, in Input) (*artifacts.Output, error) {
	out, err := h.engines.PDF.Optimize(ctx, in.First().Data)
	if err != nil {
		return nil, err
	}
	return pdfOutput(out, baseName(in.First())+"_optimized"), nil
}

func (h *handlers) pdfToImages(ctx context.Context, in Input) (*artifacts.Output, error) {
	pages, err := h.engines.Rasterizer.RenderPages(ctx, in.First().Data, float64(in.Params.Int("dpi")))
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for i, page := range pages {
		png, err := h.engines.Images.EncodePNG(page)
		if err != nil {
			return nil, err
		}
		w, err := zw.Create(fmt.Sprintf("page-%d.png", i+1))
		if err != nil {
			return nil, fmt.Errorf("%w: zip: %v", models.ErrBackend, err)
		}
		if _, err := w.Write(png); err != nil {
			return nil, fmt.Errorf("%w: zip: %v", models.ErrBackend, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("%w: zip: %v", models.ErrBackend, err)
	}

	return &artifacts.Output{
		Data:      buf.Bytes(),
		Format:    models.FormatArchive,
		Extension: "zip",
		Name:      baseName(in.First()) + "_pages",
	}, nil
}

func (h *handlers) ocrPDF(ctx context.Context, in Input) (*artifacts.Output, error) {
	languages := splitLanguages(in.Params.String("language"))
	pages, err := h.engines.Rasterizer.RenderPages(ctx, in.First().Data, float64(in.Params.Int("dpi")))
	if err != nil {
		return nil, err
	}

	// each job writes only its own slot
	texts := make([]string, len(pages))
	pool := workers.NewPool(ctx, h.ocrWorkers, h.logger)
	pool.Start()
	for i, page := range pages {
		if err := pool.Submit(func(ctx context.Context) error {
			png, err := h.engines.Images.EncodePNG(page)
			if err != nil {
				return err
			}
			texts[i], err = h.recognize(ctx, png, languages, i+1)
			return err
		}); err != nil {
			break
		}
	}
	if err := pool.Wait(); err != nil {
		return nil, err
	}
	return textOutput(joinPages(texts)), nil
}

// recognize runs OCR on one image. Engine failures other than an unknown
// language leave the page empty instead of failing the operation.
func (h *handlers) recognize(ctx context.Context, img []byte, languages []string, page int) (string, error) {
	result, err := h.engines.OCR.Recognize(ctx, img, languages)
	if err != nil {
		if isFatal(ctx, err) {
			return "", err
		}
		h.logger.Warn().Int("page", page).Err(err).Msg("OCR failed for page, continuing with empty text")
		return "", nil
	}
	if result.Confidence > 0 && result.Confidence < 0.3 {
		h.logger.Debug().Int("page", page).Float64("confidence", result.Confidence).Msg("Low confidence OCR result kept")
	}
	return result.Text, nil
}

func (h *handlers) extractTables(ctx context.Context, in Input) (*artifacts.Output, error) {
	tables, err := h.engines.Extractor.ExtractTables(ctx, in.First().Data)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	for i, table := range tables {
		if i > 0 {
			// blank line between tables
			if err := w.Write([]string{""}); err != nil {
				return nil, fmt.Errorf("%w: csv: %v", models.ErrBackend, err)
			}
		}
		if len(table.Headers) > 0 {
			if err := w.Write(table.Headers); err != nil {
				return nil, fmt.Errorf("%w: csv: %v", models.ErrBackend, err)
			}
		}
		if err := w.WriteAll(table.Rows); err != nil {
			return nil, fmt.Errorf("%w: csv: %v", models.ErrBackend, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("%w: csv: %v", models.ErrBackend, err)
	}

	h.logger.Debug().Int("tables", len(tables)).Msg("Tables extracted")
	return &artifacts.Output{
		Data:      buf.Bytes(),
		Format:    models.FormatTable,
		Extension: "csv",
		Name:      baseName(in.First()) + "_tables",
	}, nil
}
