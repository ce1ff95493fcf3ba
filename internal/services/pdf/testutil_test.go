package pdf

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/go-pdf/fpdf"
	"github.com/stretchr/testify/require"
)

// samplePDF builds an A4 document whose page i carries the text "Page i <label>"
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

// tablePDF builds a one-page document with a three column grid of text
func tablePDF(t *testing.T) []byte {
	t.Helper()
	doc := fpdf.New("P", "mm", "A4", "")
	doc.SetFont("Helvetica", "", 11)
	doc.AddPage()
	rows := [][]string{
		{"Name", "Qty", "Price"},
		{"Apple", "3", "1.20"},
		{"Pear", "5", "0.80"},
	}
	for i, row := range rows {
		for j, cell := range row {
			doc.Text(20+float64(j)*60, 30+float64(i)*10, cell)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, doc.Output(&buf))
	return buf.Bytes()
}
