package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-pdf/fpdf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/docpipe/internal/common"
	"github.com/ternarybob/docpipe/internal/models"
	"github.com/ternarybob/docpipe/internal/services/artifacts"
	"github.com/ternarybob/docpipe/internal/services/events"
	"github.com/ternarybob/docpipe/internal/services/pdf"
	"github.com/ternarybob/docpipe/internal/services/qr"
	"github.com/ternarybob/docpipe/internal/services/session"
	"github.com/ternarybob/docpipe/internal/services/transform"
	"github.com/ternarybob/docpipe/internal/storage/badger"
)

type testHandlers struct {
	api        *APIHandler
	sessions   *SessionHandler
	artifacts  *ArtifactHandler
	controller *session.Controller
}

func newTestHandlers(t *testing.T) *testHandlers {
	t.Helper()
	dir := t.TempDir()
	logger := arbor.NewLogger()

	manager, err := badger.NewManager(logger, &common.BadgerConfig{Path: filepath.Join(dir, "db")})
	require.NoError(t, err)
	t.Cleanup(func() { manager.Close() })

	store, err := artifacts.NewStore(&common.ArtifactsConfig{Dir: filepath.Join(dir, "artifacts")}, manager.ArtifactStorage(), logger)
	require.NoError(t, err)
	materializer := artifacts.NewMaterializer(store, logger)

	registry := transform.NewRegistry(transform.Engines{
		PDF:       pdf.NewEngine(logger),
		Extractor: pdf.NewExtractor(logger),
		Generator: pdf.NewGenerator(logger),
		QR:        qr.NewEncoder(),
	}, transform.Defaults{DPI: 150, OCRLanguage: "eng", SpeechLanguage: "en", VideoHeight: 360}, logger)

	bus := events.NewService(logger)
	t.Cleanup(func() { bus.Close() })

	controller := session.NewController(manager.SessionStorage(), store, materializer, registry, bus, time.Hour, logger)

	return &testHandlers{
		api:        NewAPIHandler(registry, logger),
		sessions:   NewSessionHandler(controller, 0, logger),
		artifacts:  NewArtifactHandler(store, materializer, logger),
		controller: controller,
	}
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

func multipartUpload(t *testing.T, filename string, data []byte, current string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	if current != "" {
		require.NoError(t, mw.WriteField("current", current))
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest("POST", "/api/sessions/x/artifacts", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v))
}

func (h *testHandlers) createSession(t *testing.T) *models.Session {
	t.Helper()
	rec := httptest.NewRecorder()
	h.sessions.CreateHandler(rec, httptest.NewRequest("POST", "/api/sessions", nil))
	require.Equal(t, http.StatusCreated, rec.Code)
	var s models.Session
	decode(t, rec, &s)
	return &s
}

func (h *testHandlers) upload(t *testing.T, sessionID, filename string, data []byte) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.sessions.UploadHandler(rec, multipartUpload(t, filename, data, ""), sessionID)
	return rec
}

func (h *testHandlers) execute(t *testing.T, sessionID, body string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/api/sessions/x/operations", strings.NewReader(body))
	h.sessions.ExecuteHandler(rec, req, sessionID)
	return rec
}

func TestAPIHandler(t *testing.T) {
	h := newTestHandlers(t)

	rec := httptest.NewRecorder()
	h.api.HealthHandler(rec, httptest.NewRequest("GET", "/api/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.api.VersionHandler(rec, httptest.NewRequest("POST", "/api/version", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = httptest.NewRecorder()
	h.api.OperationsHandler(rec, httptest.NewRequest("GET", "/api/operations", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Operations []transform.HandlerSpec `json:"operations"`
	}
	decode(t, rec, &body)
	names := make([]string, 0, len(body.Operations))
	for _, op := range body.Operations {
		names = append(names, op.Name)
	}
	assert.Contains(t, names, "merge")
	assert.Contains(t, names, "text_to_speech")
}

func TestSessionHandler_UploadExecuteDownload(t *testing.T) {
	h := newTestHandlers(t)
	s := h.createSession(t)

	rec := h.upload(t, s.ID, "report.pdf", samplePDF(t, 3))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var uploaded models.Artifact
	decode(t, rec, &uploaded)
	assert.Equal(t, models.FormatPDF, uploaded.Format)

	rec = h.execute(t, s.ID, `{"operation":"split","params":{"start_page":"2","end_page":"3"}}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var result models.OperationResult
	decode(t, rec, &result)
	require.NotNil(t, result.Artifact)
	assert.Equal(t, models.StatusSucceeded, result.Status)

	rec = httptest.NewRecorder()
	h.artifacts.DownloadHandler(rec, httptest.NewRequest("GET", "/api/artifacts/x/download", nil), result.Artifact.ID)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))

	_, params, err := mime.ParseMediaType(rec.Header().Get("Content-Disposition"))
	require.NoError(t, err)
	assert.Equal(t, "report_pages_2-3.pdf", params["filename"])

	data, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("%PDF")))

	rec = httptest.NewRecorder()
	h.artifacts.GetHandler(rec, httptest.NewRequest("GET", "/api/artifacts/x", nil), result.Artifact.ID)
	require.Equal(t, http.StatusOK, rec.Code)
	var meta models.Artifact
	decode(t, rec, &meta)
	assert.Equal(t, []string{uploaded.ID}, meta.Parents)

	rec = httptest.NewRecorder()
	h.sessions.ListArtifactsHandler(rec, httptest.NewRequest("GET", "/api/sessions/x/artifacts", nil), s.ID)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"count":2`)
}

func TestSessionHandler_TextResult(t *testing.T) {
	h := newTestHandlers(t)
	s := h.createSession(t)
	require.Equal(t, http.StatusCreated, h.upload(t, s.ID, "doc.pdf", samplePDF(t, 1)).Code)

	rec := h.execute(t, s.ID, `{"operation":"extract_text"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var result models.OperationResult
	decode(t, rec, &result)
	require.NotNil(t, result.Text)
	assert.Contains(t, *result.Text, "Page 1")

	rec = httptest.NewRecorder()
	h.artifacts.DownloadHandler(rec, httptest.NewRequest("GET", "/api/artifacts/x/download", nil), result.Artifact.ID)
	assert.Equal(t, "text/plain; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
}

func TestSessionHandler_ErrorStatuses(t *testing.T) {
	h := newTestHandlers(t)
	s := h.createSession(t)
	require.Equal(t, http.StatusCreated, h.upload(t, s.ID, "doc.pdf", samplePDF(t, 2)).Code)

	tests := []struct {
		name   string
		body   string
		status int
		kind   string
	}{
		{"range", `{"operation":"split","params":{"start_page":"2","end_page":"9"}}`, http.StatusBadRequest, models.KindRange},
		{"invalid param", `{"operation":"rotate","params":{"angle":"33"}}`, http.StatusBadRequest, models.KindInvalidParameter},
		{"unsupported format", `{"operation":"resize_image","params":{"height":"100"}}`, http.StatusUnsupportedMediaType, models.KindUnsupportedFormat},
		{"unknown operation", `{"operation":"summarize"}`, http.StatusNotFound, models.KindNotFound},
		{"missing operation", `{}`, http.StatusBadRequest, models.KindInvalidParameter},
		{"bad json", `{`, http.StatusBadRequest, models.KindInvalidParameter},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := h.execute(t, s.ID, tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.Contains(t, rec.Body.String(), tt.kind)
		})
	}
}

func TestSessionHandler_UploadErrors(t *testing.T) {
	h := newTestHandlers(t)
	s := h.createSession(t)

	rec := h.upload(t, s.ID, "slides.pptx", []byte("x"))
	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)

	rec = h.upload(t, "ses_missing", "a.pdf", samplePDF(t, 1))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	h.sessions.UploadHandler(rec, multipartUpload(t, "a.pdf", samplePDF(t, 1), "maybe"), s.ID)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/api/sessions/x/artifacts", strings.NewReader("plain"))
	h.sessions.UploadHandler(rec, req, s.ID)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSessionHandler_UploadOverCapIsRejectedBeforeParsing(t *testing.T) {
	h := newTestHandlers(t)
	s := h.createSession(t)
	capped := NewSessionHandler(h.controller, 1024, arbor.NewLogger())

	rec := httptest.NewRecorder()
	big := bytes.Repeat([]byte("x"), 3<<20)
	capped.UploadHandler(rec, multipartUpload(t, "notes.txt", big, ""), s.ID)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var body map[string]string
	decode(t, rec, &body)
	assert.Equal(t, models.KindInvalidParameter, body["kind"])
	assert.Contains(t, body["error"], "upload exceeds 1024 bytes")

	// nothing reached the store
	list := httptest.NewRecorder()
	h.sessions.ListArtifactsHandler(list, httptest.NewRequest("GET", "/api/sessions/x/artifacts", nil), s.ID)
	require.Equal(t, http.StatusOK, list.Code)
	var listed struct {
		Count int `json:"count"`
	}
	decode(t, list, &listed)
	assert.Equal(t, 0, listed.Count)

	// small files still pass under the cap
	rec = httptest.NewRecorder()
	capped.UploadHandler(rec, multipartUpload(t, "notes.txt", []byte("short"), ""), s.ID)
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestSessionHandler_ResetAndEnd(t *testing.T) {
	h := newTestHandlers(t)
	s := h.createSession(t)
	rec := h.upload(t, s.ID, "doc.pdf", samplePDF(t, 1))
	var original models.Artifact
	decode(t, rec, &original)

	rec = h.execute(t, s.ID, `{"operation":"rotate","params":{"angle":"90"},"chain":true}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.sessions.ResetHandler(rec, httptest.NewRequest("POST", "/api/sessions/x/reset", nil), s.ID)
	require.Equal(t, http.StatusOK, rec.Code)
	var reset models.Session
	decode(t, rec, &reset)
	assert.Equal(t, original.ID, reset.CurrentID)

	rec = httptest.NewRecorder()
	h.sessions.EndHandler(rec, httptest.NewRequest("DELETE", "/api/sessions/x", nil), s.ID)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.sessions.GetHandler(rec, httptest.NewRequest("GET", "/api/sessions/x", nil), s.ID)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	h.artifacts.DownloadHandler(rec, httptest.NewRequest("GET", "/api/artifacts/x/download", nil), original.ID)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStatusForKind(t *testing.T) {
	tests := map[string]int{
		models.KindInvalidParameter:    http.StatusBadRequest,
		models.KindRange:               http.StatusBadRequest,
		models.KindAuth:                http.StatusForbidden,
		models.KindNotFound:            http.StatusNotFound,
		models.KindBusy:                http.StatusConflict,
		models.KindUnsupportedFormat:   http.StatusUnsupportedMediaType,
		models.KindUnsupportedLanguage: http.StatusUnprocessableEntity,
		models.KindBackend:             http.StatusBadGateway,
		models.KindIO:                  http.StatusInternalServerError,
	}
	for kind, status := range tests {
		assert.Equal(t, status, StatusForKind(kind), kind)
	}
}

func TestPathSegments(t *testing.T) {
	assert.Equal(t, []string{"ses_1", "reset"}, PathSegments("/api/sessions/ses_1/reset", "/api/sessions/"))
	assert.Equal(t, []string{"ses_1"}, PathSegments("/api/sessions/ses_1/", "/api/sessions/"))
	assert.Nil(t, PathSegments("/api/sessions/", "/api/sessions/"))
}
