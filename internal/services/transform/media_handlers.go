package transform

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ternarybob/docpipe/internal/models"
	"github.com/ternarybob/docpipe/internal/services/artifacts"
)

var (
	imageOnly     = []models.Format{models.FormatImage}
	videoOnly     = []models.Format{models.FormatVideo}
	textOnly      = []models.Format{models.FormatText}
	speechSources = []models.Format{models.FormatPDF, models.FormatText, models.FormatImage}
)

func (h *handlers) mediaSpecs(d Defaults) []*HandlerSpec {
	return []*HandlerSpec{
		{
			Name:        "ocr_image",
			Description: "Recognise the text in an image",
			Accepts:     imageOnly,
			MinInputs:   1,
			MaxInputs:   1,
			Params: []ParamSpec{
				{Name: "language", Type: ParamString, Default: d.OCRLanguage, Description: "tesseract languages joined with +"},
			},
			Handler: h.ocrImage,
		},
		{
			Name:        "text_to_speech",
			Description: "Read text aloud as mp3; text comes from the param or the input document",
			Accepts:     speechSources,
			MinInputs:   0,
			MaxInputs:   1,
			Params: []ParamSpec{
				{Name: "language", Type: ParamString, Default: d.SpeechLanguage, Description: "BCP 47 language code"},
				{Name: "text", Type: ParamString, Rule: "max=20000"},
			},
			Handler: h.textToSpeech,
		},
		{
			Name:        "generate_qr",
			Description: "Encode text as a PNG QR code",
			MinInputs:   0,
			MaxInputs:   1,
			Params: []ParamSpec{
				{Name: "text", Type: ParamString},
				{Name: "size", Type: ParamInt, Default: "256", Rule: "min=64,max=2048"},
			},
			Handler: h.generateQR,
		},
		{
			Name:        "qr_pdf",
			Description: "Lay out a PDF page with a title, text and its QR code",
			MinInputs:   0,
			MaxInputs:   1,
			Params: []ParamSpec{
				{Name: "text", Type: ParamString},
				{Name: "title", Type: ParamString, Default: "QR Code", Rule: "max=200"},
			},
			Handler: h.qrPDF,
		},
		{
			Name:        "text_to_pdf",
			Description: "Render text, markdown or HTML as a PDF",
			Accepts:     textOnly,
			MinInputs:   1,
			MaxInputs:   1,
			Params: []ParamSpec{
				{Name: "title", Type: ParamString, Rule: "max=200"},
			},
			Handler: h.textToPDF,
		},
		{
			Name:        "resize_image",
			Description: "Scale an image to a height keeping its aspect ratio",
			Accepts:     imageOnly,
			MinInputs:   1,
			MaxInputs:   1,
			Params: []ParamSpec{
				{Name: "height", Type: ParamInt, Required: true, Rule: "min=16,max=8000"},
			},
			Handler: h.resizeImage,
		},
		{
			Name:        "resize_video",
			Description: "Scale a video to a height keeping its aspect ratio",
			Accepts:     videoOnly,
			MinInputs:   1,
			MaxInputs:   1,
			Params: []ParamSpec{
				{Name: "height", Type: ParamInt, Default: strconv.Itoa(d.VideoHeight), Rule: "min=2,max=4320"},
			},
			Handler: h.resizeVideo,
		},
	}
}

func (h *handlers) ocrImage(ctx context.Context, in Input) (*artifacts.Output, error) {
	text, err := h.recognizeImage(ctx, in.First().Data, splitLanguages(in.Params.String("language")))
	if err != nil {
		return nil, err
	}
	return textOutput(text), nil
}

// recognizeImage runs OCR on a single uploaded image. Unlike PDF pages
// there is nothing to fall back to, so engine errors fail the operation.
func (h *handlers) recognizeImage(ctx context.Context, img []byte, languages []string) (string, error) {
	result, err := h.engines.OCR.Recognize(ctx, img, languages)
	if err != nil {
		if isFatal(ctx, err) || errors.Is(err, models.ErrBackend) {
			return "", err
		}
		return "", fmt.Errorf("%w: ocr: %v", models.ErrBackend, err)
	}
	return result.Text, nil
}

func (h *handlers) textToSpeech(ctx context.Context, in Input) (*artifacts.Output, error) {
	lang := in.Params.String("language")
	if !h.engines.Speech.Supports(lang) {
		return nil, fmt.Errorf("%w: %q", models.ErrUnsupportedLanguage, lang)
	}

	text := in.Params.String("text")
	if strings.TrimSpace(text) == "" && len(in.Artifacts) > 0 {
		source := in.First()
		var err error
		switch source.Format {
		case models.FormatPDF:
			text, err = h.pdfText(ctx, source.Data)
		case models.FormatImage:
			text, err = h.recognizeImage(ctx, source.Data, nil)
		default:
			text = string(source.Data)
		}
		if err != nil {
			return nil, err
		}
	}
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: no text to speak", models.ErrInvalidParameter)
	}

	audio, err := h.engines.Speech.Synthesize(ctx, text, lang)
	if err != nil {
		return nil, err
	}
	return &artifacts.Output{
		Data:      audio,
		Format:    models.FormatAudio,
		Extension: "mp3",
		Name:      "speech_" + lang,
	}, nil
}

// qrText takes the text param, falling back to the content of a text input
func qrText(in Input) (string, error) {
	text := in.Params.String("text")
	if text == "" && len(in.Artifacts) > 0 && in.First().Format == models.FormatText {
		text = strings.TrimSpace(string(in.First().Data))
	}
	if text == "" {
		return "", fmt.Errorf("%w: text is required", models.ErrInvalidParameter)
	}
	return text, nil
}

func (h *handlers) generateQR(ctx context.Context, in Input) (*artifacts.Output, error) {
	text, err := qrText(in)
	if err != nil {
		return nil, err
	}
	png, err := h.engines.QR.Encode(text, in.Params.Int("size"))
	if err != nil {
		return nil, err
	}
	return &artifacts.Output{Data: png, Format: models.FormatImage, Extension: "png", Name: "qr"}, nil
}

func (h *handlers) qrPDF(ctx context.Context, in Input) (*artifacts.Output, error) {
	text, err := qrText(in)
	if err != nil {
		return nil, err
	}
	png, err := h.engines.QR.Encode(text, 512)
	if err != nil {
		return nil, err
	}
	out, err := h.engines.Generator.RenderQRSheet(in.Params.String("title"), text, png)
	if err != nil {
		return nil, err
	}
	return pdfOutput(out, "qr"), nil
}

func (h *handlers) textToPDF(ctx context.Context, in Input) (*artifacts.Output, error) {
	source := in.First()
	markdown := string(source.Data)
	title := in.Params.String("title")

	if isHTML(source.Extension) {
		converted, htmlTitle, err := htmlToMarkdown(markdown)
		if err != nil {
			return nil, err
		}
		markdown = converted
		if title == "" {
			title = htmlTitle
		}
	}

	out, err := h.engines.Generator.ConvertMarkdownToPDF(markdown, title)
	if err != nil {
		return nil, err
	}
	return pdfOutput(out, baseName(source)), nil
}

func (h *handlers) resizeImage(ctx context.Context, in Input) (*artifacts.Output, error) {
	height := in.Params.Int("height")
	out, err := h.engines.Images.Resize(in.First().Data, height)
	if err != nil {
		return nil, err
	}
	return &artifacts.Output{
		Data:      out,
		Format:    models.FormatImage,
		Extension: "png",
		Name:      fmt.Sprintf("%s_%dp", baseName(in.First()), height),
	}, nil
}

func (h *handlers) resizeVideo(ctx context.Context, in Input) (*artifacts.Output, error) {
	source := in.First()
	height := in.Params.Int("height")
	out, err := h.engines.Video.Resize(ctx, source.Data, source.Extension, height)
	if err != nil {
		return nil, err
	}
	return &artifacts.Output{
		Data:      out,
		Format:    models.FormatVideo,
		Extension: "mp4",
		Name:      fmt.Sprintf("%s_%dp", baseName(source), height),
	}, nil
}

// isFatal reports errors that must fail a best-effort loop
func isFatal(ctx context.Context, err error) bool {
	return ctx.Err() != nil || errors.Is(err, models.ErrUnsupportedLanguage)
}

// splitLanguages turns "eng+deu" into ["eng", "deu"]
func splitLanguages(s string) []string {
	var langs []string
	for _, l := range strings.Split(s, "+") {
		if l = strings.TrimSpace(l); l != "" {
			langs = append(langs, l)
		}
	}
	return langs
}

// baseName is the input's name without extension, for naming derivatives
func baseName(a InputArtifact) string {
	name := strings.TrimSuffix(a.Name, filepath.Ext(a.Name))
	if name == "" {
		return "document"
	}
	return name
}
