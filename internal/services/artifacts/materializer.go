package artifacts

import (
	"context"
	"io"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/docpipe/internal/models"
)

// Output is what a transform handler hands back: either bytes with a format
// or a plain text payload.
type Output struct {
	Data      []byte
	Format    models.Format
	Extension string
	Name      string
	Text      *string
}

// IsText reports whether the output is a plain text payload
func (o *Output) IsText() bool {
	return o.Text != nil
}

// Download is a retrievable view of an artifact
type Download struct {
	Reader   io.ReadSeekCloser
	Filename string
	MIME     string
	Size     int64
	ModTime  time.Time
	Artifact *models.Artifact
}

// Materializer turns handler outputs into artifacts and artifacts into downloads
type Materializer struct {
	store  *Store
	logger arbor.ILogger
}

// NewMaterializer creates a new materializer over the store
func NewMaterializer(store *Store, logger arbor.ILogger) *Materializer {
	return &Materializer{
		store:  store,
		logger: logger,
	}
}

// Persist writes a handler output as a new artifact owned by the session.
// Text outputs become text artifacts.
func (m *Materializer) Persist(ctx context.Context, sessionID, operation string, parents []string, out *Output) (*models.Artifact, error) {
	opts := StoreOptions{
		SessionID: sessionID,
		Name:      out.Name,
		Format:    out.Format,
		Extension: out.Extension,
		Producer:  operation,
		Parents:   parents,
	}
	data := out.Data
	if out.IsText() {
		opts.Format = models.FormatText
		opts.Extension = "txt"
		data = []byte(*out.Text)
	}
	if opts.Name == "" {
		opts.Name = operation
	}
	return m.store.StoreBytes(ctx, opts, data)
}

// Materialize opens the artifact for download with a filename and MIME type
// consistent with its format tag.
func (m *Materializer) Materialize(ctx context.Context, id string) (*Download, error) {
	artifact, f, err := m.store.Open(ctx, id)
	if err != nil {
		return nil, err
	}
	return &Download{
		Reader:   f,
		Filename: sanitizeFilename(artifact.Filename()),
		MIME:     artifact.MIMEType(),
		Size:     artifact.Size,
		ModTime:  artifact.CreatedAt,
		Artifact: artifact,
	}, nil
}

// sanitizeFilename strips characters that break a Content-Disposition header
func sanitizeFilename(name string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '"', '\\', '/', '\r', '\n':
			return '_'
		}
		return r
	}, name)
}
