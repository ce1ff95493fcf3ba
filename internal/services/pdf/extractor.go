// -----------------------------------------------------------------------
// PDF Extractor - text and table extraction over ledongthuc/pdf
// -----------------------------------------------------------------------

package pdf

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"strings"

	lpdf "github.com/ledongthuc/pdf"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/docpipe/internal/common"
	"github.com/ternarybob/docpipe/internal/interfaces"
	"github.com/ternarybob/docpipe/internal/models"
)

// minCellGap is the horizontal gap, in font-size units, that starts a new table cell
const minCellGap = 1.5

// Extractor implements the PDFExtractor interface using ledongthuc/pdf
type Extractor struct {
	logger arbor.ILogger
}

// Compile-time interface assertion
var _ interfaces.PDFExtractor = (*Extractor)(nil)

// NewExtractor creates a new PDF extractor
func NewExtractor(logger arbor.ILogger) *Extractor {
	return &Extractor{
		logger: logger,
	}
}

// ExtractPages returns the plain text of every page in page order.
// A page without a text layer (scanned) yields an empty string, not an error.
func (e *Extractor) ExtractPages(ctx context.Context, content []byte) (pages []interfaces.PDFPageContent, err error) {
	defer common.RecoverPanic(e.logger, "pdf.ExtractPages", &err)

	reader, err := openReader(content)
	if err != nil {
		return nil, err
	}

	total := reader.NumPage()
	pages = make([]interfaces.PDFPageContent, 0, total)
	for i := 1; i <= total; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		page := interfaces.PDFPageContent{PageNumber: i}
		p := reader.Page(i)
		if !p.V.IsNull() {
			text, err := p.GetPlainText(nil)
			if err != nil {
				e.logger.Debug().Int("page", i).Err(err).Msg("No text layer on page")
			} else {
				page.Text = strings.TrimSpace(text)
			}
		}
		pages = append(pages, page)
	}

	e.logger.Debug().Int("pages", total).Msg("PDF text extracted")
	return pages, nil
}

// ExtractTables groups positioned text into rows (by baseline) and cells
// (by horizontal gaps). Only rows with two or more cells are kept.
func (e *Extractor) ExtractTables(ctx context.Context, content []byte) (tables []interfaces.PDFTableData, err error) {
	defer common.RecoverPanic(e.logger, "pdf.ExtractTables", &err)

	reader, err := openReader(content)
	if err != nil {
		return nil, err
	}

	for i := 1; i <= reader.NumPage(); i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		p := reader.Page(i)
		if p.V.IsNull() {
			continue
		}
		rows, err := p.GetTextByRow()
		if err != nil {
			e.logger.Debug().Int("page", i).Err(err).Msg("Failed to read positioned text")
			continue
		}

		sort.SliceStable(rows, func(a, b int) bool {
			return rows[a].Position > rows[b].Position
		})

		var cells [][]string
		for _, row := range rows {
			split := splitCells(row.Content)
			if len(split) >= 2 {
				cells = append(cells, split)
			}
		}
		if len(cells) == 0 {
			continue
		}

		tables = append(tables, interfaces.PDFTableData{
			PageNumber: i,
			Headers:    cells[0],
			Rows:       cells[1:],
		})
	}

	return tables, nil
}

func openReader(content []byte) (*lpdf.Reader, error) {
	if len(content) == 0 {
		return nil, fmt.Errorf("%w: empty document", models.ErrInvalidParameter)
	}
	reader, err := lpdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, fmt.Errorf("%w: open pdf: %v", models.ErrBackend, err)
	}
	return reader, nil
}

// splitCells orders a row's text runs left to right and starts a new cell
// wherever the gap to the previous run exceeds minCellGap font sizes.
func splitCells(texts lpdf.TextHorizontal) []string {
	if len(texts) == 0 {
		return nil
	}
	runs := make([]lpdf.Text, len(texts))
	copy(runs, texts)
	sort.SliceStable(runs, func(a, b int) bool { return runs[a].X < runs[b].X })

	var cells []string
	var current strings.Builder
	prevEnd := runs[0].X
	for i, t := range runs {
		size := t.FontSize
		if size <= 0 {
			size = 10
		}
		if i > 0 && t.X-prevEnd > minCellGap*size {
			if cell := strings.TrimSpace(current.String()); cell != "" {
				cells = append(cells, cell)
			}
			current.Reset()
		}
		current.WriteString(t.S)

		width := t.W
		if width <= 0 {
			width = float64(len(t.S)) * size * 0.5
		}
		prevEnd = t.X + width
	}
	if cell := strings.TrimSpace(current.String()); cell != "" {
		cells = append(cells, cell)
	}
	return cells
}
