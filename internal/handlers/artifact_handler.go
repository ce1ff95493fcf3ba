package handlers

import (
	"mime"
	"net/http"
	"strconv"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/docpipe/internal/services/artifacts"
)

// ArtifactHandler serves artifact metadata and bytes
type ArtifactHandler struct {
	store        *artifacts.Store
	materializer *artifacts.Materializer
	logger       arbor.ILogger
}

func NewArtifactHandler(store *artifacts.Store, materializer *artifacts.Materializer, logger arbor.ILogger) *ArtifactHandler {
	return &ArtifactHandler{
		store:        store,
		materializer: materializer,
		logger:       logger,
	}
}

// GetHandler returns artifact metadata
func (h *ArtifactHandler) GetHandler(w http.ResponseWriter, r *http.Request, artifactID string) {
	artifact, err := h.store.Get(r.Context(), artifactID)
	if err != nil {
		WriteFailure(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, artifact)
}

// DownloadHandler streams the artifact bytes as an attachment
func (h *ArtifactHandler) DownloadHandler(w http.ResponseWriter, r *http.Request, artifactID string) {
	download, err := h.materializer.Materialize(r.Context(), artifactID)
	if err != nil {
		WriteFailure(w, err)
		return
	}
	defer download.Reader.Close()

	disposition := "attachment"
	if r.URL.Query().Get("inline") == "true" {
		disposition = "inline"
	}

	w.Header().Set("Content-Type", download.MIME)
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("Content-Disposition", mime.FormatMediaType(disposition, map[string]string{"filename": download.Filename}))
	w.Header().Set("X-Artifact-Format", string(download.Artifact.Format))
	w.Header().Set("X-Artifact-Size", strconv.FormatInt(download.Size, 10))

	h.logger.Debug().
		Str("artifact_id", artifactID).
		Str("filename", download.Filename).
		Msg("Serving artifact download")

	http.ServeContent(w, r, download.Filename, download.ModTime, download.Reader)
}
