package interfaces

// PDFService handles PDF generation from various formats
type PDFService interface {
	// ConvertMarkdownToPDF converts markdown content to a PDF byte slice
	ConvertMarkdownToPDF(markdown, title string) ([]byte, error)

	// RenderQRSheet lays out a titled page with body text and a QR code image (PNG bytes)
	RenderQRSheet(title, body string, qrPNG []byte) ([]byte, error)
}
