package pdf

import (
	"github.com/go-pdf/fpdf"
	"github.com/yuin/goldmark/ast"
	extast "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"
)

const lineHeight = 5.0

// markdownRenderer walks a goldmark AST and writes it through fpdf
type markdownRenderer struct {
	doc       *fpdf.Fpdf
	source    []byte
	tr        func(string) string
	bold      bool
	italic    bool
	listDepth int
}

func (r *markdownRenderer) render(root ast.Node) error {
	if err := ast.Walk(root, r.walk); err != nil {
		return err
	}
	return r.doc.Error()
}

func (r *markdownRenderer) setStyle() {
	style := ""
	if r.bold {
		style += "B"
	}
	if r.italic {
		style += "I"
	}
	r.doc.SetFont(baseFont, style, baseFontSize)
}

func (r *markdownRenderer) walk(n ast.Node, entering bool) (ast.WalkStatus, error) {
	switch node := n.(type) {
	case *ast.Heading:
		if entering {
			r.doc.Ln(4)
			r.doc.SetFont(baseFont, "B", headingSize(node.Level))
		} else {
			r.doc.Ln(7)
			r.setStyle()
		}

	case *ast.Paragraph:
		if !entering {
			r.doc.Ln(lineHeight + 2)
		}

	case *ast.Text:
		if entering {
			r.doc.Write(lineHeight, r.tr(string(node.Segment.Value(r.source))))
			if node.SoftLineBreak() {
				r.doc.Write(lineHeight, " ")
			}
			if node.HardLineBreak() {
				r.doc.Ln(lineHeight)
			}
		}

	case *ast.Emphasis:
		if node.Level >= 2 {
			r.bold = entering
		} else {
			r.italic = entering
		}
		r.setStyle()

	case *ast.CodeSpan:
		if entering {
			r.doc.SetFont("Courier", "", baseFontSize)
			r.doc.Write(lineHeight, r.tr(string(node.Text(r.source))))
			r.setStyle()
		}
		return ast.WalkSkipChildren, nil

	case *ast.FencedCodeBlock:
		if entering {
			r.codeBlock(node.Lines())
		}
		return ast.WalkSkipChildren, nil

	case *ast.CodeBlock:
		if entering {
			r.codeBlock(node.Lines())
		}
		return ast.WalkSkipChildren, nil

	case *ast.List:
		if entering {
			r.listDepth++
		} else {
			r.listDepth--
			if r.listDepth == 0 {
				r.doc.Ln(2)
			}
		}

	case *ast.ListItem:
		if entering {
			r.doc.Ln(lineHeight)
			r.doc.SetX(pageMargin + float64(r.listDepth)*5)
			r.doc.Write(lineHeight, "- ")
		}

	case *ast.ThematicBreak:
		if entering {
			w, _ := r.doc.GetPageSize()
			r.doc.Ln(2)
			r.doc.Line(pageMargin, r.doc.GetY(), w-pageMargin, r.doc.GetY())
			r.doc.Ln(2)
		}

	case *extast.Table:
		if entering {
			r.table(node)
		}
		return ast.WalkSkipChildren, nil
	}
	return ast.WalkContinue, nil
}

func headingSize(level int) float64 {
	switch level {
	case 1:
		return 15
	case 2:
		return 13
	case 3:
		return 11.5
	}
	return baseFontSize + 0.5
}

func (r *markdownRenderer) codeBlock(lines *text.Segments) {
	r.doc.Ln(2)
	r.doc.SetFont("Courier", "", baseFontSize-1)
	r.doc.SetFillColor(242, 242, 242)
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		r.doc.MultiCell(0, lineHeight, r.tr(string(seg.Value(r.source))), "", "L", true)
	}
	r.doc.SetFillColor(255, 255, 255)
	r.setStyle()
	r.doc.Ln(2)
}

// table renders a markdown table with equal column widths; the header row is shaded
func (r *markdownRenderer) table(n *extast.Table) {
	var rows [][]string
	for row := n.FirstChild(); row != nil; row = row.NextSibling() {
		var cells []string
		for cell := row.FirstChild(); cell != nil; cell = cell.NextSibling() {
			cells = append(cells, r.tr(string(cell.Text(r.source))))
		}
		rows = append(rows, cells)
	}
	if len(rows) == 0 || len(rows[0]) == 0 {
		return
	}

	pageWidth, _ := r.doc.GetPageSize()
	colWidth := (pageWidth - 2*pageMargin) / float64(len(rows[0]))

	r.doc.Ln(2)
	for i, cells := range rows {
		if i == 0 {
			r.doc.SetFont(baseFont, "B", baseFontSize-1)
			r.doc.SetFillColor(230, 230, 230)
		} else {
			r.doc.SetFont(baseFont, "", baseFontSize-1)
		}
		for j := range rows[0] {
			value := ""
			if j < len(cells) {
				value = cells[j]
			}
			r.doc.CellFormat(colWidth, lineHeight+1, value, "1", 0, "L", i == 0, 0, "")
		}
		r.doc.Ln(-1)
	}
	r.doc.SetFillColor(255, 255, 255)
	r.setStyle()
	r.doc.Ln(3)
}
