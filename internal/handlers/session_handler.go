package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/docpipe/internal/models"
	"github.com/ternarybob/docpipe/internal/services/session"
)

// maxMultipartMemory is the part of an upload kept in memory before spilling to disk
const maxMultipartMemory = 32 << 20

// multipartOverhead covers form boundaries and small fields on top of the file
const multipartOverhead = 1 << 20

// SessionHandler exposes the session controller over HTTP
type SessionHandler struct {
	controller     *session.Controller
	maxUploadBytes int64 // 0 = unlimited
	logger         arbor.ILogger
}

func NewSessionHandler(controller *session.Controller, maxUploadBytes int64, logger arbor.ILogger) *SessionHandler {
	return &SessionHandler{
		controller:     controller,
		maxUploadBytes: maxUploadBytes,
		logger:         logger,
	}
}

// CreateHandler starts a new session
func (h *SessionHandler) CreateHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	s, err := h.controller.Create(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to create session")
		WriteFailure(w, err)
		return
	}
	WriteJSON(w, http.StatusCreated, s)
}

// GetHandler returns the session state and history
func (h *SessionHandler) GetHandler(w http.ResponseWriter, r *http.Request, sessionID string) {
	s, err := h.controller.Get(r.Context(), sessionID)
	if err != nil {
		WriteFailure(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, s)
}

// EndHandler ends the session and releases its artifacts
func (h *SessionHandler) EndHandler(w http.ResponseWriter, r *http.Request, sessionID string) {
	if err := h.controller.End(r.Context(), sessionID); err != nil {
		WriteFailure(w, err)
		return
	}
	WriteSuccess(w, "Session ended")
}

// ListArtifactsHandler lists the artifacts owned by the session
func (h *SessionHandler) ListArtifactsHandler(w http.ResponseWriter, r *http.Request, sessionID string) {
	list, err := h.controller.Artifacts(r.Context(), sessionID)
	if err != nil {
		WriteFailure(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"artifacts": list,
		"count":     len(list),
	})
}

// UploadHandler stores the multipart "file" field as a new artifact.
// The optional "current" field replaces the session's original document.
func (h *SessionHandler) UploadHandler(w http.ResponseWriter, r *http.Request, sessionID string) {
	// bound the body before parsing spills it to temp files
	if h.maxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes+multipartOverhead)
	}
	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			WriteFailure(w, fmt.Errorf("%w: upload exceeds %d bytes", models.ErrInvalidParameter, h.maxUploadBytes))
			return
		}
		WriteFailure(w, fmt.Errorf("%w: multipart form: %v", models.ErrInvalidParameter, err))
		return
	}
	if r.MultipartForm != nil {
		defer r.MultipartForm.RemoveAll()
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		WriteFailure(w, fmt.Errorf("%w: missing file field", models.ErrInvalidParameter))
		return
	}
	defer file.Close()

	makeCurrent := false
	if v := r.FormValue("current"); v != "" {
		makeCurrent, err = strconv.ParseBool(v)
		if err != nil {
			WriteFailure(w, fmt.Errorf("%w: current must be a boolean", models.ErrInvalidParameter))
			return
		}
	}

	artifact, err := h.controller.Upload(r.Context(), sessionID, header.Filename, file, makeCurrent)
	if err != nil {
		h.logger.Warn().Err(err).Str("session_id", sessionID).Str("filename", header.Filename).Msg("Upload rejected")
		WriteFailure(w, err)
		return
	}
	WriteJSON(w, http.StatusCreated, artifact)
}

// ExecuteHandler runs one operation. A failed operation is reported with the
// status of its failure kind and the full result body.
func (h *SessionHandler) ExecuteHandler(w http.ResponseWriter, r *http.Request, sessionID string) {
	var req models.OperationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteFailure(w, fmt.Errorf("%w: request body: %v", models.ErrInvalidParameter, err))
		return
	}
	if req.Operation == "" {
		WriteFailure(w, fmt.Errorf("%w: operation is required", models.ErrInvalidParameter))
		return
	}

	result, err := h.controller.Execute(r.Context(), sessionID, req)
	if err != nil {
		WriteFailure(w, err)
		return
	}

	status := http.StatusOK
	if !result.Succeeded() {
		status = StatusForKind(result.Failure.Kind)
	}
	WriteJSON(w, status, result)
}

// ResetHandler points the session back at its original document
func (h *SessionHandler) ResetHandler(w http.ResponseWriter, r *http.Request, sessionID string) {
	s, err := h.controller.Reset(r.Context(), sessionID)
	if err != nil {
		WriteFailure(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, s)
}
