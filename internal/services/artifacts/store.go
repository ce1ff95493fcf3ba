// -----------------------------------------------------------------------
// Artifact Store - unique per-invocation files plus badger metadata
// -----------------------------------------------------------------------

package artifacts

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/docpipe/internal/common"
	"github.com/ternarybob/docpipe/internal/interfaces"
	"github.com/ternarybob/docpipe/internal/models"
)

// Store writes artifact bytes under <dir>/<session>/<artifact-id>.<ext>
// and keeps the metadata in ArtifactStorage.
type Store struct {
	dir      string
	maxBytes int64
	storage  interfaces.ArtifactStorage
	logger   arbor.ILogger
}

// NewStore creates an artifact store rooted at config.Dir
func NewStore(config *common.ArtifactsConfig, storage interfaces.ArtifactStorage, logger arbor.ILogger) (*Store, error) {
	if err := os.MkdirAll(config.Dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create artifacts directory: %w: %v", models.ErrIO, err)
	}
	return &Store{
		dir:      config.Dir,
		maxBytes: config.MaxUploadBytes,
		storage:  storage,
		logger:   logger,
	}, nil
}

// StoreOptions describes a new artifact
type StoreOptions struct {
	SessionID string
	Name      string
	Format    models.Format
	Extension string
	Producer  string
	Parents   []string
}

// Store copies r into a freshly named file and records it.
// On any failure the partial file is removed and no record is written.
func (s *Store) Store(ctx context.Context, opts StoreOptions, r io.Reader) (*models.Artifact, error) {
	if opts.SessionID == "" {
		return nil, fmt.Errorf("%w: session id is required", models.ErrInvalidParameter)
	}
	if !opts.Format.Valid() {
		return nil, fmt.Errorf("%w: unknown format %q", models.ErrUnsupportedFormat, opts.Format)
	}
	ext := opts.Extension
	if ext == "" {
		ext = opts.Format.DefaultExtension()
	}

	id := common.NewArtifactID()
	sessionDir := filepath.Join(s.dir, opts.SessionID)
	if err := os.MkdirAll(sessionDir, 0755); err != nil {
		return nil, fmt.Errorf("%w: create session directory: %v", models.ErrIO, err)
	}
	path := filepath.Join(sessionDir, id+"."+ext)

	// O_EXCL: a collision is a bug, never an overwrite
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return nil, fmt.Errorf("%w: create artifact file: %v", models.ErrIO, err)
	}

	hash := sha256.New()
	src := r
	if s.maxBytes > 0 {
		src = io.LimitReader(r, s.maxBytes+1)
	}
	size, err := io.Copy(io.MultiWriter(f, hash), src)
	closeErr := f.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("%w: write artifact: %v", models.ErrIO, err)
	}
	if s.maxBytes > 0 && size > s.maxBytes {
		os.Remove(path)
		return nil, fmt.Errorf("%w: artifact exceeds %d bytes", models.ErrInvalidParameter, s.maxBytes)
	}

	artifact := &models.Artifact{
		ID:        id,
		SessionID: opts.SessionID,
		Name:      opts.Name,
		Format:    opts.Format,
		Extension: ext,
		Size:      size,
		Checksum:  hex.EncodeToString(hash.Sum(nil)),
		Producer:  opts.Producer,
		Parents:   opts.Parents,
		Path:      path,
		CreatedAt: time.Now(),
	}
	if err := s.storage.SaveArtifact(ctx, artifact); err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("%w: %v", models.ErrIO, err)
	}

	s.logger.Debug().
		Str("artifact_id", id).
		Str("session_id", opts.SessionID).
		Str("format", string(opts.Format)).
		Int64("size", size).
		Msg("Artifact stored")

	return artifact, nil
}

// StoreBytes is Store for an in-memory payload
func (s *Store) StoreBytes(ctx context.Context, opts StoreOptions, data []byte) (*models.Artifact, error) {
	return s.Store(ctx, opts, bytes.NewReader(data))
}

// Get returns the artifact record
func (s *Store) Get(ctx context.Context, id string) (*models.Artifact, error) {
	return s.storage.GetArtifact(ctx, id)
}

// Read loads the artifact bytes into memory
func (s *Store) Read(ctx context.Context, id string) (*models.Artifact, []byte, error) {
	artifact, err := s.storage.GetArtifact(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	data, err := os.ReadFile(artifact.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: read artifact %s: %v", models.ErrIO, id, err)
	}
	return artifact, data, nil
}

// Open returns a reader over the artifact bytes. The caller closes it.
func (s *Store) Open(ctx context.Context, id string) (*models.Artifact, *os.File, error) {
	artifact, err := s.storage.GetArtifact(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	f, err := os.Open(artifact.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil, fmt.Errorf("artifact %s file missing: %w", id, models.ErrNotFound)
		}
		return nil, nil, fmt.Errorf("%w: open artifact %s: %v", models.ErrIO, id, err)
	}
	return artifact, f, nil
}

// ListBySession returns the session's artifacts oldest first
func (s *Store) ListBySession(ctx context.Context, sessionID string) ([]*models.Artifact, error) {
	return s.storage.ListBySession(ctx, sessionID)
}

// Release deletes one artifact's file and record
func (s *Store) Release(ctx context.Context, id string) error {
	artifact, err := s.storage.GetArtifact(ctx, id)
	if err != nil {
		return err
	}
	if err := os.Remove(artifact.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: remove artifact %s: %v", models.ErrIO, id, err)
	}
	return s.storage.DeleteArtifact(ctx, id)
}

// ReleaseSession deletes every artifact owned by the session and its directory
func (s *Store) ReleaseSession(ctx context.Context, sessionID string) (int, error) {
	deleted, err := s.storage.DeleteBySession(ctx, sessionID)
	if err != nil {
		return deleted, err
	}
	if err := os.RemoveAll(filepath.Join(s.dir, sessionID)); err != nil {
		return deleted, fmt.Errorf("%w: remove session directory: %v", models.ErrIO, err)
	}
	s.logger.Debug().Str("session_id", sessionID).Int("released", deleted).Msg("Session artifacts released")
	return deleted, nil
}
