// -----------------------------------------------------------------------
// PDF Extractor Interface - Extract text and tables from PDF documents
// -----------------------------------------------------------------------

package interfaces

import (
	"context"
)

// PDFPageContent represents extracted content from a single PDF page
type PDFPageContent struct {
	PageNumber int    `json:"page_number"`
	Text       string `json:"text"`
}

// PDFTableData represents extracted tabular data from a PDF
type PDFTableData struct {
	PageNumber int        `json:"page_number"`
	Headers    []string   `json:"headers,omitempty"`
	Rows       [][]string `json:"rows"`
}

// PDFExtractor defines the interface for extracting content from PDF documents.
// This interface abstracts the PDF extraction implementation, allowing different
// backends to be used interchangeably.
type PDFExtractor interface {
	// ExtractPages extracts text content by page, in page order.
	// Pages without a text layer are returned with empty Text.
	ExtractPages(ctx context.Context, content []byte) ([]PDFPageContent, error)

	// ExtractTables groups positioned text into rows and columns per page.
	ExtractTables(ctx context.Context, content []byte) ([]PDFTableData, error)
}
