package badger

import (
	"context"
	"fmt"
	"sort"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/docpipe/internal/interfaces"
	"github.com/ternarybob/docpipe/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// ArtifactStorage implements the ArtifactStorage interface for Badger
type ArtifactStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewArtifactStorage creates a new ArtifactStorage instance
func NewArtifactStorage(db *BadgerDB, logger arbor.ILogger) interfaces.ArtifactStorage {
	return &ArtifactStorage{
		db:     db,
		logger: logger,
	}
}

// SaveArtifact inserts an artifact record. Artifacts are immutable, so an
// existing ID is rejected rather than overwritten.
func (s *ArtifactStorage) SaveArtifact(ctx context.Context, artifact *models.Artifact) error {
	if artifact.ID == "" {
		return fmt.Errorf("artifact ID is required")
	}

	if err := s.db.Store().Insert(artifact.ID, artifact); err != nil {
		if err == badgerhold.ErrKeyExists {
			return fmt.Errorf("artifact %s already exists", artifact.ID)
		}
		return fmt.Errorf("failed to save artifact: %w", err)
	}
	return nil
}

func (s *ArtifactStorage) GetArtifact(ctx context.Context, id string) (*models.Artifact, error) {
	var artifact models.Artifact
	if err := s.db.Store().Get(id, &artifact); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("artifact %s: %w", id, models.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get artifact: %w", err)
	}
	return &artifact, nil
}

// ListBySession returns a session's artifacts oldest first
func (s *ArtifactStorage) ListBySession(ctx context.Context, sessionID string) ([]*models.Artifact, error) {
	var artifacts []models.Artifact
	err := s.db.Store().Find(&artifacts, badgerhold.Where("SessionID").Eq(sessionID).Index("SessionID"))
	if err != nil {
		return nil, fmt.Errorf("failed to list artifacts: %w", err)
	}

	result := make([]*models.Artifact, len(artifacts))
	for i := range artifacts {
		result[i] = &artifacts[i]
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

func (s *ArtifactStorage) DeleteArtifact(ctx context.Context, id string) error {
	err := s.db.Store().Delete(id, &models.Artifact{})
	if err == badgerhold.ErrNotFound {
		return fmt.Errorf("artifact %s: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to delete artifact: %w", err)
	}
	return nil
}

// DeleteBySession removes every artifact record owned by the session
func (s *ArtifactStorage) DeleteBySession(ctx context.Context, sessionID string) (int, error) {
	artifacts, err := s.ListBySession(ctx, sessionID)
	if err != nil {
		return 0, err
	}

	deleted := 0
	for _, artifact := range artifacts {
		if err := s.db.Store().Delete(artifact.ID, &models.Artifact{}); err != nil && err != badgerhold.ErrNotFound {
			s.logger.Warn().Str("artifact_id", artifact.ID).Err(err).Msg("Failed to delete artifact record")
			continue
		}
		deleted++
	}
	return deleted, nil
}
