package session

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-pdf/fpdf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/docpipe/internal/common"
	"github.com/ternarybob/docpipe/internal/interfaces"
	"github.com/ternarybob/docpipe/internal/models"
	"github.com/ternarybob/docpipe/internal/services/artifacts"
	"github.com/ternarybob/docpipe/internal/services/events"
	"github.com/ternarybob/docpipe/internal/services/imaging"
	"github.com/ternarybob/docpipe/internal/services/pdf"
	"github.com/ternarybob/docpipe/internal/services/qr"
	"github.com/ternarybob/docpipe/internal/services/transform"
	"github.com/ternarybob/docpipe/internal/storage/badger"
)

// gatedRasterizer blocks inside RenderPages until released, or panics
type gatedRasterizer struct {
	started  chan struct{}
	release  chan struct{}
	panicMsg string
}

func (g *gatedRasterizer) RenderPages(ctx context.Context, content []byte, dpi float64) ([]image.Image, error) {
	if g.panicMsg != "" {
		panic(g.panicMsg)
	}
	if g.started != nil {
		close(g.started)
		<-g.release
	}
	return []image.Image{image.NewRGBA(image.Rect(0, 0, 4, 4))}, nil
}

type recorder struct {
	mu     sync.Mutex
	events []interfaces.Event
}

func (r *recorder) handle(ctx context.Context, event interfaces.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *recorder) types() []interfaces.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]interfaces.EventType, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

type testEnv struct {
	controller *Controller
	store      *artifacts.Store
	raster     *gatedRasterizer
	events     *recorder
}

// panicOCR crashes on every page, like a cgo engine fault
type panicOCR struct{}

func (panicOCR) Recognize(ctx context.Context, img []byte, languages []string) (interfaces.OCRResult, error) {
	panic("tesseract blew up")
}

func newTestEnv(t *testing.T, idleTimeout time.Duration) *testEnv {
	t.Helper()
	return newTestEnvWith(t, idleTimeout, nil)
}

// newTestEnvWith lets a test swap engines or defaults before the registry is built
func newTestEnvWith(t *testing.T, idleTimeout time.Duration, configure func(*transform.Engines, *transform.Defaults)) *testEnv {
	t.Helper()
	dir := t.TempDir()
	logger := arbor.NewLogger()

	manager, err := badger.NewManager(logger, &common.BadgerConfig{Path: filepath.Join(dir, "db")})
	require.NoError(t, err)
	t.Cleanup(func() { manager.Close() })

	store, err := artifacts.NewStore(&common.ArtifactsConfig{Dir: filepath.Join(dir, "artifacts")}, manager.ArtifactStorage(), logger)
	require.NoError(t, err)

	raster := &gatedRasterizer{}
	engines := transform.Engines{
		PDF:        pdf.NewEngine(logger),
		Extractor:  pdf.NewExtractor(logger),
		Generator:  pdf.NewGenerator(logger),
		Rasterizer: raster,
		QR:         qr.NewEncoder(),
		Images:     imaging.NewResizer(),
	}
	defaults := transform.Defaults{DPI: 150, OCRLanguage: "eng", SpeechLanguage: "en", VideoHeight: 360}
	if configure != nil {
		configure(&engines, &defaults)
	}
	registry := transform.NewRegistry(engines, defaults, logger)

	bus := events.NewService(logger)
	t.Cleanup(func() { bus.Close() })
	rec := &recorder{}
	for _, et := range events.AllEventTypes {
		require.NoError(t, bus.Subscribe(et, rec.handle))
	}

	controller := NewController(
		manager.SessionStorage(),
		store,
		artifacts.NewMaterializer(store, logger),
		registry,
		bus,
		idleTimeout,
		logger,
	)
	return &testEnv{controller: controller, store: store, raster: raster, events: rec}
}

func samplePDF(t *testing.T, pages int) []byte {
	t.Helper()
	doc := fpdf.New("P", "mm", "A4", "")
	doc.SetFont("Helvetica", "", 14)
	for i := 1; i <= pages; i++ {
		doc.AddPage()
		doc.Cell(40, 10, fmt.Sprintf("Page %d", i))
	}
	var buf bytes.Buffer
	require.NoError(t, doc.Output(&buf))
	return buf.Bytes()
}

// newSessionWithPDF creates a session holding an uploaded PDF
func newSessionWithPDF(t *testing.T, env *testEnv, pages int) (*models.Session, *models.Artifact) {
	t.Helper()
	ctx := context.Background()
	s, err := env.controller.Create(ctx)
	require.NoError(t, err)
	a, err := env.controller.Upload(ctx, s.ID, "report.pdf", bytes.NewReader(samplePDF(t, pages)), false)
	require.NoError(t, err)
	return s, a
}

func TestController_UploadSetsOriginal(t *testing.T) {
	env := newTestEnv(t, time.Hour)
	ctx := context.Background()
	s, first := newSessionWithPDF(t, env, 1)

	assert.Equal(t, models.FormatPDF, first.Format)
	assert.Equal(t, "report", first.Name)

	second, err := env.controller.Upload(ctx, s.ID, "other.pdf", bytes.NewReader(samplePDF(t, 1)), false)
	require.NoError(t, err)

	got, err := env.controller.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, got.OriginalID)
	assert.Equal(t, first.ID, got.CurrentID)
	assert.Equal(t, []string{first.ID, second.ID}, got.Artifacts)

	third, err := env.controller.Upload(ctx, s.ID, "new.pdf", bytes.NewReader(samplePDF(t, 1)), true)
	require.NoError(t, err)
	got, err = env.controller.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, third.ID, got.OriginalID)

	_, err = env.controller.Upload(ctx, s.ID, "notes.docx", strings.NewReader("x"), false)
	assert.ErrorIs(t, err, models.ErrUnsupportedFormat)

	_, err = env.controller.Upload(ctx, "ses_missing", "a.pdf", strings.NewReader("x"), false)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestController_ChainingAdvancesCurrent(t *testing.T) {
	env := newTestEnv(t, time.Hour)
	ctx := context.Background()
	s, original := newSessionWithPDF(t, env, 2)

	rotated, err := env.controller.Execute(ctx, s.ID, models.OperationRequest{
		Operation: "rotate",
		Params:    map[string]string{"angle": "90"},
		Chain:     true,
	})
	require.NoError(t, err)
	require.True(t, rotated.Succeeded(), "%+v", rotated.Failure)

	got, err := env.controller.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, rotated.Artifact.ID, got.CurrentID)
	assert.Equal(t, original.ID, got.OriginalID)

	chained, err := env.controller.Execute(ctx, s.ID, models.OperationRequest{Operation: "page_count", Chain: true})
	require.NoError(t, err)
	require.True(t, chained.Succeeded())

	got, err = env.controller.Get(ctx, s.ID)
	require.NoError(t, err)
	require.Len(t, got.History, 2)
	assert.Equal(t, []string{rotated.Artifact.ID}, got.History[1].Inputs)

	// an unchained operation starts over from the original
	fresh, err := env.controller.Execute(ctx, s.ID, models.OperationRequest{Operation: "page_count"})
	require.NoError(t, err)
	require.True(t, fresh.Succeeded())

	got, err = env.controller.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{original.ID}, got.History[2].Inputs)
	assert.Equal(t, original.ID, got.CurrentID)
	assert.Equal(t, models.SessionIdle, got.State)
}

func TestController_TextResultCarriesArtifact(t *testing.T) {
	env := newTestEnv(t, time.Hour)
	ctx := context.Background()
	s, original := newSessionWithPDF(t, env, 2)

	result, err := env.controller.Execute(ctx, s.ID, models.OperationRequest{Operation: "extract_text"})
	require.NoError(t, err)
	require.True(t, result.Succeeded())
	require.NotNil(t, result.Text)
	assert.Contains(t, *result.Text, "Page 1")
	assert.Contains(t, *result.Text, "Page 2")

	require.NotNil(t, result.Artifact)
	assert.Equal(t, models.FormatText, result.Artifact.Format)
	assert.Equal(t, []string{original.ID}, result.Artifact.Parents)

	_, data, err := env.store.Read(ctx, result.Artifact.ID)
	require.NoError(t, err)
	assert.Equal(t, *result.Text, string(data))
}

func TestController_FailureIsRecorded(t *testing.T) {
	env := newTestEnv(t, time.Hour)
	ctx := context.Background()
	s, _ := newSessionWithPDF(t, env, 2)

	result, err := env.controller.Execute(ctx, s.ID, models.OperationRequest{
		Operation: "split",
		Params:    map[string]string{"start_page": "2", "end_page": "5"},
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, result.Status)
	require.NotNil(t, result.Failure)
	assert.Equal(t, models.KindRange, result.Failure.Kind)
	assert.Nil(t, result.Artifact)

	got, err := env.controller.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionIdle, got.State)
	require.Len(t, got.History, 1)
	assert.Equal(t, models.StatusFailed, got.History[0].Status)
	assert.Len(t, got.Artifacts, 1)

	// the session stays usable
	next, err := env.controller.Execute(ctx, s.ID, models.OperationRequest{Operation: "page_count"})
	require.NoError(t, err)
	assert.True(t, next.Succeeded())
}

func TestController_ParameterErrors(t *testing.T) {
	env := newTestEnv(t, time.Hour)
	ctx := context.Background()
	s, _ := newSessionWithPDF(t, env, 1)

	tests := []struct {
		name string
		req  models.OperationRequest
		kind string
	}{
		{"missing param", models.OperationRequest{Operation: "rotate"}, models.KindInvalidParameter},
		{"bad angle", models.OperationRequest{Operation: "rotate", Params: map[string]string{"angle": "45"}}, models.KindInvalidParameter},
		{"foreign artifact", models.OperationRequest{Operation: "page_count", ArtifactIDs: []string{"art_other"}}, models.KindNotFound},
		{"merge needs two", models.OperationRequest{Operation: "merge"}, models.KindInvalidParameter},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := env.controller.Execute(ctx, s.ID, tt.req)
			require.NoError(t, err)
			require.NotNil(t, result.Failure)
			assert.Equal(t, tt.kind, result.Failure.Kind)
		})
	}
}

func TestController_NoDocumentUploaded(t *testing.T) {
	env := newTestEnv(t, time.Hour)
	ctx := context.Background()
	s, err := env.controller.Create(ctx)
	require.NoError(t, err)

	result, err := env.controller.Execute(ctx, s.ID, models.OperationRequest{Operation: "extract_text"})
	require.NoError(t, err)
	require.NotNil(t, result.Failure)
	assert.Equal(t, models.KindInvalidParameter, result.Failure.Kind)

	// operations that take no input still run
	qrResult, err := env.controller.Execute(ctx, s.ID, models.OperationRequest{
		Operation: "generate_qr",
		Params:    map[string]string{"text": "https://example.com"},
	})
	require.NoError(t, err)
	require.True(t, qrResult.Succeeded(), "%+v", qrResult.Failure)
	assert.Equal(t, models.FormatImage, qrResult.Artifact.Format)
}

func TestController_UnknownOperation(t *testing.T) {
	env := newTestEnv(t, time.Hour)
	s, _ := newSessionWithPDF(t, env, 1)

	_, err := env.controller.Execute(context.Background(), s.ID, models.OperationRequest{Operation: "summarize"})
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestController_BusySessionRejectsSecondCaller(t *testing.T) {
	env := newTestEnv(t, time.Hour)
	ctx := context.Background()
	s, _ := newSessionWithPDF(t, env, 1)

	env.raster.started = make(chan struct{})
	env.raster.release = make(chan struct{})

	done := make(chan *models.OperationResult)
	go func() {
		result, _ := env.controller.Execute(ctx, s.ID, models.OperationRequest{Operation: "pdf_to_images"})
		done <- result
	}()
	<-env.raster.started

	_, err := env.controller.Execute(ctx, s.ID, models.OperationRequest{Operation: "page_count"})
	assert.ErrorIs(t, err, models.ErrBusy)
	_, err = env.controller.Upload(ctx, s.ID, "b.pdf", bytes.NewReader(samplePDF(t, 1)), false)
	assert.ErrorIs(t, err, models.ErrBusy)
	assert.ErrorIs(t, env.controller.End(ctx, s.ID), models.ErrBusy)

	got, err := env.controller.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionRunning, got.State)

	close(env.raster.release)
	result := <-done
	require.NotNil(t, result)
	assert.True(t, result.Succeeded())
	assert.Equal(t, models.FormatArchive, result.Artifact.Format)

	// other sessions were never blocked
	other, _ := newSessionWithPDF(t, env, 1)
	_, err = env.controller.Execute(ctx, other.ID, models.OperationRequest{Operation: "page_count"})
	assert.NoError(t, err)
}

func TestController_UnknownSessionsLeaveNoLocks(t *testing.T) {
	env := newTestEnv(t, time.Hour)
	ctx := context.Background()

	for i := 0; i < 100; i++ {
		id := fmt.Sprintf("ses_missing_%d", i)
		_, err := env.controller.Execute(ctx, id, models.OperationRequest{Operation: "page_count"})
		assert.ErrorIs(t, err, models.ErrNotFound)
		_, err = env.controller.Upload(ctx, id, "a.pdf", bytes.NewReader(samplePDF(t, 1)), false)
		assert.ErrorIs(t, err, models.ErrNotFound)
		_, err = env.controller.Reset(ctx, id)
		assert.ErrorIs(t, err, models.ErrNotFound)
		assert.ErrorIs(t, env.controller.End(ctx, id), models.ErrNotFound)
	}

	s, _ := newSessionWithPDF(t, env, 1)
	require.NoError(t, env.controller.End(ctx, s.ID))

	env.controller.mu.Lock()
	defer env.controller.mu.Unlock()
	assert.Empty(t, env.controller.locks)
}

func TestController_PanicBecomesFailure(t *testing.T) {
	env := newTestEnv(t, time.Hour)
	ctx := context.Background()
	s, _ := newSessionWithPDF(t, env, 1)
	env.raster.panicMsg = "renderer crashed"

	result, err := env.controller.Execute(ctx, s.ID, models.OperationRequest{Operation: "pdf_to_images"})
	require.NoError(t, err)
	require.NotNil(t, result.Failure)
	assert.Equal(t, models.KindBackend, result.Failure.Kind)
	assert.Contains(t, result.Failure.Message, "renderer crashed")

	got, err := env.controller.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionIdle, got.State)

	// lock was released
	next, err := env.controller.Execute(ctx, s.ID, models.OperationRequest{Operation: "page_count"})
	require.NoError(t, err)
	assert.True(t, next.Succeeded())
}

func TestController_PanicInPageWorkerBecomesFailure(t *testing.T) {
	env := newTestEnvWith(t, time.Hour, func(e *transform.Engines, d *transform.Defaults) {
		e.OCR = panicOCR{}
		d.OCRWorkers = 2
	})
	ctx := context.Background()
	s, _ := newSessionWithPDF(t, env, 2)

	result, err := env.controller.Execute(ctx, s.ID, models.OperationRequest{Operation: "ocr_pdf"})
	require.NoError(t, err)
	require.NotNil(t, result.Failure)
	assert.Equal(t, models.KindBackend, result.Failure.Kind)
	assert.Contains(t, result.Failure.Message, "tesseract blew up")

	got, err := env.controller.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionIdle, got.State)
}

func TestController_Reset(t *testing.T) {
	env := newTestEnv(t, time.Hour)
	ctx := context.Background()
	s, original := newSessionWithPDF(t, env, 1)

	_, err := env.controller.Execute(ctx, s.ID, models.OperationRequest{
		Operation: "rotate",
		Params:    map[string]string{"angle": "180"},
		Chain:     true,
	})
	require.NoError(t, err)

	got, err := env.controller.Reset(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, original.ID, got.CurrentID)
}

func TestController_EndReleasesArtifacts(t *testing.T) {
	env := newTestEnv(t, time.Hour)
	ctx := context.Background()
	s, original := newSessionWithPDF(t, env, 1)

	result, err := env.controller.Execute(ctx, s.ID, models.OperationRequest{Operation: "extract_text"})
	require.NoError(t, err)
	require.True(t, result.Succeeded())

	require.NoError(t, env.controller.End(ctx, s.ID))

	_, err = env.controller.Get(ctx, s.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)
	for _, id := range []string{original.ID, result.Artifact.ID} {
		_, err := env.store.Get(ctx, id)
		assert.ErrorIs(t, err, models.ErrNotFound)
	}
	assert.ErrorIs(t, env.controller.End(ctx, s.ID), models.ErrNotFound)

	assert.Eventually(t, func() bool {
		for _, et := range env.events.types() {
			if et == interfaces.EventSessionEnded {
				return true
			}
		}
		return false
	}, time.Second, 10*time.Millisecond)
}

func TestController_PublishesOperationEvents(t *testing.T) {
	env := newTestEnv(t, time.Hour)
	ctx := context.Background()
	s, _ := newSessionWithPDF(t, env, 1)

	_, err := env.controller.Execute(ctx, s.ID, models.OperationRequest{Operation: "page_count"})
	require.NoError(t, err)
	_, err = env.controller.Execute(ctx, s.ID, models.OperationRequest{Operation: "rotate"})
	require.NoError(t, err)

	want := []interfaces.EventType{
		interfaces.EventOperationStarted,
		interfaces.EventOperationCompleted,
		interfaces.EventOperationFailed,
		interfaces.EventArtifactCreated,
	}
	assert.Eventually(t, func() bool {
		seen := map[interfaces.EventType]bool{}
		for _, et := range env.events.types() {
			seen[et] = true
		}
		for _, et := range want {
			if !seen[et] {
				return false
			}
		}
		return true
	}, time.Second, 10*time.Millisecond)
}

func TestController_SweepExpired(t *testing.T) {
	env := newTestEnv(t, 2*time.Hour)
	ctx := context.Background()
	first, a := newSessionWithPDF(t, env, 1)
	second, _ := newSessionWithPDF(t, env, 1)

	ended, err := env.controller.SweepExpired(ctx, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 0, ended)

	ended, err = env.controller.SweepExpired(ctx, time.Now().Add(3*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 2, ended)

	for _, id := range []string{first.ID, second.ID} {
		_, err := env.controller.Get(ctx, id)
		assert.True(t, errors.Is(err, models.ErrNotFound))
	}
	_, err = env.store.Get(ctx, a.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestController_RecoverInterrupted(t *testing.T) {
	env := newTestEnv(t, time.Hour)
	ctx := context.Background()
	s, _ := newSessionWithPDF(t, env, 1)

	stuck, err := env.controller.Get(ctx, s.ID)
	require.NoError(t, err)
	stuck.State = models.SessionRunning
	require.NoError(t, env.controller.sessions.SaveSession(ctx, stuck))

	recovered, err := env.controller.RecoverInterrupted(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, recovered)

	got, err := env.controller.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionIdle, got.State)
}

func TestSweeper(t *testing.T) {
	env := newTestEnv(t, time.Millisecond)
	s, _ := newSessionWithPDF(t, env, 1)
	time.Sleep(10 * time.Millisecond)

	sweeper := NewSweeper(env.controller, arbor.NewLogger())
	assert.Error(t, sweeper.Start("not a schedule"))

	sweeper.RunOnce()
	_, err := env.controller.Get(context.Background(), s.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)

	require.NoError(t, sweeper.Start("@every 1h"))
	sweeper.Stop()
}
