// Package ocr recognises text in images with tesseract (gosseract).
package ocr

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/otiai10/gosseract/v2"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/docpipe/internal/interfaces"
	"github.com/ternarybob/docpipe/internal/models"
)

// Engine implements interfaces.OCREngine. A fresh client is created per call
// because gosseract clients are not safe for concurrent use.
type Engine struct {
	defaultLanguages []string
	logger           arbor.ILogger

	once      sync.Once
	available map[string]bool
}

var _ interfaces.OCREngine = (*Engine)(nil)

func NewEngine(defaultLanguages []string, logger arbor.ILogger) *Engine {
	if len(defaultLanguages) == 0 {
		defaultLanguages = []string{"eng"}
	}
	return &Engine{
		defaultLanguages: defaultLanguages,
		logger:           logger,
	}
}

// Recognize returns the trimmed text and the mean word confidence (0..1)
func (e *Engine) Recognize(ctx context.Context, img []byte, languages []string) (interfaces.OCRResult, error) {
	if len(languages) == 0 {
		languages = e.defaultLanguages
	}
	if err := e.checkLanguages(languages); err != nil {
		return interfaces.OCRResult{}, err
	}
	if err := ctx.Err(); err != nil {
		return interfaces.OCRResult{}, err
	}

	client := gosseract.NewClient()
	defer client.Close()

	if err := client.SetLanguage(languages...); err != nil {
		return interfaces.OCRResult{}, fmt.Errorf("%w: set languages: %v", models.ErrUnsupportedLanguage, err)
	}
	if err := client.SetVariable("preserve_interword_spaces", "1"); err != nil {
		return interfaces.OCRResult{}, fmt.Errorf("%w: configure tesseract: %v", models.ErrBackend, err)
	}
	if err := client.SetImageFromBytes(img); err != nil {
		return interfaces.OCRResult{}, fmt.Errorf("%w: load image: %v", models.ErrBackend, err)
	}

	text, err := client.Text()
	if err != nil {
		return interfaces.OCRResult{}, fmt.Errorf("%w: recognize: %v", models.ErrBackend, err)
	}

	return interfaces.OCRResult{
		Text:       strings.TrimSpace(text),
		Confidence: meanConfidence(client),
	}, nil
}

// checkLanguages fails with ErrUnsupportedLanguage for languages that have no
// installed traineddata. When the list cannot be read the check is skipped.
func (e *Engine) checkLanguages(languages []string) error {
	e.once.Do(func() {
		langs, err := gosseract.GetAvailableLanguages()
		if err != nil {
			e.logger.Warn().Err(err).Msg("Could not list tesseract languages")
			return
		}
		e.available = make(map[string]bool, len(langs))
		for _, l := range langs {
			e.available[l] = true
		}
	})

	if e.available == nil {
		return nil
	}
	for _, l := range languages {
		if !e.available[l] {
			return fmt.Errorf("%w: tesseract has no data for %q", models.ErrUnsupportedLanguage, l)
		}
	}
	return nil
}

func meanConfidence(client *gosseract.Client) float64 {
	boxes, err := client.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil || len(boxes) == 0 {
		return 0
	}
	var sum float64
	for _, b := range boxes {
		sum += b.Confidence
	}
	return sum / float64(len(boxes)) / 100
}
