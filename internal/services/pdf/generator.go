package pdf

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/go-pdf/fpdf"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/docpipe/internal/interfaces"
	"github.com/ternarybob/docpipe/internal/models"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/text"
)

const (
	baseFont     = "Helvetica"
	baseFontSize = 10.0
	pageMargin   = 15.0
)

// Generator implements interfaces.PDFService with fpdf
type Generator struct {
	logger arbor.ILogger
}

// Compile-time assertion
var _ interfaces.PDFService = (*Generator)(nil)

// NewGenerator creates a new PDF generator
func NewGenerator(logger arbor.ILogger) *Generator {
	return &Generator{
		logger: logger,
	}
}

func newDocument(title string) *fpdf.Fpdf {
	doc := fpdf.New("P", "mm", "A4", "")
	doc.SetMargins(pageMargin, pageMargin, pageMargin)
	doc.SetAutoPageBreak(true, pageMargin)
	doc.SetCreator("docpipe", true)
	if title != "" {
		doc.SetTitle(title, true)
	}
	doc.AddPage()
	doc.SetFont(baseFont, "", baseFontSize)
	return doc
}

func output(doc *fpdf.Fpdf) ([]byte, error) {
	var buf bytes.Buffer
	if err := doc.Output(&buf); err != nil {
		return nil, fmt.Errorf("%w: render pdf: %v", models.ErrBackend, err)
	}
	return buf.Bytes(), nil
}

// ConvertMarkdownToPDF renders markdown (or plain text, which is valid
// markdown) into an A4 document. A non-empty title becomes the first heading.
func (g *Generator) ConvertMarkdownToPDF(markdown, title string) ([]byte, error) {
	g.logger.Debug().Int("markdown_len", len(markdown)).Str("title", title).Msg("Rendering markdown to PDF")

	doc := newDocument(title)
	tr := doc.UnicodeTranslatorFromDescriptor("")

	if title != "" {
		doc.SetFont(baseFont, "B", 16)
		doc.MultiCell(0, 8, tr(title), "", "L", false)
		doc.Ln(4)
		doc.SetFont(baseFont, "", baseFontSize)
	}

	md := goldmark.New(goldmark.WithExtensions(extension.Table, extension.Strikethrough))
	source := []byte(stripFrontmatter(markdown))
	root := md.Parser().Parse(text.NewReader(source))

	r := &markdownRenderer{doc: doc, source: source, tr: tr}
	if err := r.render(root); err != nil {
		return nil, fmt.Errorf("%w: render markdown: %v", models.ErrBackend, err)
	}

	return output(doc)
}

// RenderQRSheet lays out a title, body text and a centred QR code image
func (g *Generator) RenderQRSheet(title, body string, qrPNG []byte) ([]byte, error) {
	doc := newDocument(title)
	tr := doc.UnicodeTranslatorFromDescriptor("")

	if title != "" {
		doc.SetFont(baseFont, "B", 18)
		doc.CellFormat(0, 12, tr(title), "", 1, "C", false, 0, "")
		doc.Ln(6)
	}

	doc.RegisterImageOptionsReader("qr", fpdf.ImageOptions{ImageType: "PNG"}, bytes.NewReader(qrPNG))
	if err := doc.Error(); err != nil {
		return nil, fmt.Errorf("%w: qr image: %v", models.ErrBackend, err)
	}

	const side = 80.0
	pageWidth, _ := doc.GetPageSize()
	doc.ImageOptions("qr", (pageWidth-side)/2, doc.GetY(), side, side, true, fpdf.ImageOptions{ImageType: "PNG"}, 0, "")
	doc.Ln(6)

	if strings.TrimSpace(body) != "" {
		doc.SetFont(baseFont, "", 11)
		doc.MultiCell(0, 6, tr(body), "", "C", false)
	}

	g.logger.Debug().Str("title", title).Int("qr_size", len(qrPNG)).Msg("QR sheet rendered")
	return output(doc)
}

// stripFrontmatter removes a leading YAML frontmatter block
func stripFrontmatter(markdown string) string {
	if !strings.HasPrefix(markdown, "---\n") {
		return markdown
	}
	end := strings.Index(markdown[4:], "\n---\n")
	if end == -1 {
		return markdown
	}
	return strings.TrimSpace(markdown[4+end+5:])
}
