// -----------------------------------------------------------------------
// Transform Registry - static operation name -> handler mapping
// -----------------------------------------------------------------------

package transform

import (
	"context"
	"fmt"
	"sort"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/docpipe/internal/interfaces"
	"github.com/ternarybob/docpipe/internal/models"
	"github.com/ternarybob/docpipe/internal/services/artifacts"
)

// InputArtifact is an artifact loaded for a handler
type InputArtifact struct {
	ID        string
	Name      string
	Format    models.Format
	Extension string
	Data      []byte
}

// Input is everything a handler may read. Handlers never touch storage.
type Input struct {
	Artifacts []InputArtifact
	Params    ParamSet
}

// First returns the first input artifact; callers rely on MinInputs >= 1
func (in Input) First() InputArtifact {
	return in.Artifacts[0]
}

// HandlerFunc implements one operation
type HandlerFunc func(ctx context.Context, in Input) (*artifacts.Output, error)

// HandlerSpec declares an operation: accepted input formats, input count
// bounds (MaxInputs 0 = unbounded) and parameters.
type HandlerSpec struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Accepts     []models.Format `json:"accepts,omitempty"` // empty = any format
	MinInputs   int             `json:"min_inputs"`
	MaxInputs   int             `json:"max_inputs"`
	Params      []ParamSpec     `json:"params"`
	Handler     HandlerFunc     `json:"-"`
}

// CheckInputs enforces the input count bounds and accepted formats
func (s *HandlerSpec) CheckInputs(inputs []InputArtifact) error {
	if len(inputs) < s.MinInputs {
		return fmt.Errorf("%w: %s needs at least %d input(s), got %d", models.ErrInvalidParameter, s.Name, s.MinInputs, len(inputs))
	}
	if s.MaxInputs > 0 && len(inputs) > s.MaxInputs {
		return fmt.Errorf("%w: %s takes at most %d input(s), got %d", models.ErrInvalidParameter, s.Name, s.MaxInputs, len(inputs))
	}
	for _, in := range inputs {
		if !s.accepts(in.Format) {
			return fmt.Errorf("%w: %s does not accept %s input", models.ErrUnsupportedFormat, s.Name, in.Format)
		}
	}
	return nil
}

func (s *HandlerSpec) accepts(f models.Format) bool {
	if len(s.Accepts) == 0 {
		return true
	}
	for _, a := range s.Accepts {
		if a == f {
			return true
		}
	}
	return false
}

// Engines are the external collaborators the handlers delegate to
type Engines struct {
	PDF        interfaces.PDFEngine
	Extractor  interfaces.PDFExtractor
	Generator  interfaces.PDFService
	Rasterizer interfaces.Rasterizer
	OCR        interfaces.OCREngine
	Speech     interfaces.SpeechSynthesizer
	QR         interfaces.QREncoder
	Video      interfaces.VideoTranscoder
	Images     interfaces.ImageResizer
}

// Defaults supply parameter defaults that come from configuration
type Defaults struct {
	DPI            int
	OCRLanguage    string
	SpeechLanguage string
	VideoHeight    int
	OCRWorkers     int // pages recognised concurrently by ocr_pdf; <= 0 means one at a time
}

// Registry maps operation names to handler specs. It is built once by
// NewRegistry and read-only afterwards, so it needs no locking.
type Registry struct {
	specs  map[string]*HandlerSpec
	logger arbor.ILogger
}

// NewRegistry builds the full operation table
func NewRegistry(engines Engines, defaults Defaults, logger arbor.ILogger) *Registry {
	h := &handlers{engines: engines, ocrWorkers: defaults.OCRWorkers, logger: logger}
	r := &Registry{
		specs:  make(map[string]*HandlerSpec),
		logger: logger,
	}
	for _, spec := range append(h.pdfSpecs(defaults), h.mediaSpecs(defaults)...) {
		r.specs[spec.Name] = spec
	}

	logger.Debug().Int("operations", len(r.specs)).Msg("Transform registry built")
	return r
}

// Lookup returns the HandlerSpec for an operation name
func (r *Registry) Lookup(name string) (*HandlerSpec, error) {
	spec, ok := r.specs[name]
	if !ok {
		return nil, fmt.Errorf("%w: unknown operation %q", models.ErrNotFound, name)
	}
	return spec, nil
}

// List returns copies of all specs sorted by name
func (r *Registry) List() []HandlerSpec {
	list := make([]HandlerSpec, 0, len(r.specs))
	for _, spec := range r.specs {
		list = append(list, *spec)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Name < list[j].Name })
	return list
}

// Run validates params and inputs then invokes the handler
func (r *Registry) Run(ctx context.Context, name string, inputs []InputArtifact, raw map[string]string) (*artifacts.Output, error) {
	spec, err := r.Lookup(name)
	if err != nil {
		return nil, err
	}
	params, err := Validate(spec, raw)
	if err != nil {
		return nil, err
	}
	if err := spec.CheckInputs(inputs); err != nil {
		return nil, err
	}
	return spec.Handler(ctx, Input{Artifacts: inputs, Params: params})
}

// handlers binds the operation implementations to their engines
type handlers struct {
	engines    Engines
	ocrWorkers int
	logger     arbor.ILogger
}
