package transform

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/go-pdf/fpdf"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/docpipe/internal/interfaces"
	"github.com/ternarybob/docpipe/internal/models"
	"github.com/ternarybob/docpipe/internal/services/imaging"
	"github.com/ternarybob/docpipe/internal/services/pdf"
	"github.com/ternarybob/docpipe/internal/services/qr"
)

// fakeRasterizer returns one blank image per configured page
type fakeRasterizer struct {
	pages int
	err   error
}

func (f *fakeRasterizer) RenderPages(ctx context.Context, content []byte, dpi float64) ([]image.Image, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([]image.Image, f.pages)
	for i := range out {
		img := image.NewRGBA(image.Rect(0, 0, 10+i, 10))
		img.Set(0, 0, color.Black)
		out[i] = img
	}
	return out, nil
}

// fakeOCR answers per call in order; an error entry fails that call
type fakeOCR struct {
	results []interface{}
	calls   int
	langs   [][]string
}

func (f *fakeOCR) Recognize(ctx context.Context, img []byte, languages []string) (interfaces.OCRResult, error) {
	f.langs = append(f.langs, languages)
	idx := f.calls
	f.calls++
	if idx >= len(f.results) {
		return interfaces.OCRResult{}, nil
	}
	switch r := f.results[idx].(type) {
	case error:
		return interfaces.OCRResult{}, r
	case string:
		return interfaces.OCRResult{Text: r, Confidence: 0.9}, nil
	}
	return interfaces.OCRResult{}, nil
}

type fakeSpeech struct {
	spoken string
	lang   string
}

func (f *fakeSpeech) Supports(lang string) bool {
	return lang == "en" || lang == "de"
}

func (f *fakeSpeech) Synthesize(ctx context.Context, text, lang string) ([]byte, error) {
	f.spoken, f.lang = text, lang
	return []byte("ID3" + text), nil
}

type fakeVideo struct {
	height int
	ext    string
}

func (f *fakeVideo) Resize(ctx context.Context, content []byte, ext string, height int) ([]byte, error) {
	f.height, f.ext = height, ext
	return []byte("mp4"), nil
}

type testEnv struct {
	registry *Registry
	raster   *fakeRasterizer
	ocr      *fakeOCR
	speech   *fakeSpeech
	video    *fakeVideo
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := arbor.NewLogger()
	env := &testEnv{
		raster: &fakeRasterizer{pages: 2},
		ocr:    &fakeOCR{},
		speech: &fakeSpeech{},
		video:  &fakeVideo{},
	}
	env.registry = NewRegistry(Engines{
		PDF:        pdf.NewEngine(logger),
		Extractor:  pdf.NewExtractor(logger),
		Generator:  pdf.NewGenerator(logger),
		Rasterizer: env.raster,
		OCR:        env.ocr,
		Speech:     env.speech,
		QR:         qr.NewEncoder(),
		Video:      env.video,
		Images:     imaging.NewResizer(),
	}, Defaults{DPI: 150, OCRLanguage: "eng", SpeechLanguage: "en", VideoHeight: 360}, logger)
	return env
}

// samplePDF builds a document whose page i reads "Page i <label>"
func samplePDF(t *testing.T, pages int, label string) []byte {
	t.Helper()
	doc := fpdf.New("P", "mm", "A4", "")
	doc.SetFont("Helvetica", "", 14)
	for i := 1; i <= pages; i++ {
		doc.AddPage()
		doc.Cell(40, 10, fmt.Sprintf("Page %d %s", i, label))
	}
	var buf bytes.Buffer
	require.NoError(t, doc.Output(&buf))
	return buf.Bytes()
}

func samplePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h))))
	return buf.Bytes()
}

func pdfInput(t *testing.T, pages int, label string) InputArtifact {
	return InputArtifact{ID: "art_" + label, Name: label + ".pdf", Format: models.FormatPDF, Extension: "pdf", Data: samplePDF(t, pages, label)}
}

func textInput(name, ext, content string) InputArtifact {
	return InputArtifact{ID: "art_" + name, Name: name + "." + ext, Format: models.FormatText, Extension: ext, Data: []byte(content)}
}

var errEngine = errors.New("engine exploded")
