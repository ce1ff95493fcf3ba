package transform

import (
	"fmt"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
	"github.com/ternarybob/docpipe/internal/models"
)

func isHTML(ext string) bool {
	ext = strings.ToLower(ext)
	return ext == "html" || ext == "htm"
}

// htmlToMarkdown converts an HTML document to markdown and returns its <title>
func htmlToMarkdown(html string) (string, string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", "", fmt.Errorf("%w: parse html: %v", models.ErrUnsupportedFormat, err)
	}
	title := strings.TrimSpace(doc.Find("title").First().Text())

	// head content (title, scripts, styles) is not body text
	doc.Find("head, script, style").Remove()

	converter := md.NewConverter("", true, nil)
	markdown := converter.Convert(doc.Selection)
	if strings.TrimSpace(markdown) == "" {
		markdown = strings.TrimSpace(doc.Text())
	}
	return markdown, title, nil
}
