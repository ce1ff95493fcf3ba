// -----------------------------------------------------------------------
// Storage interfaces - artifact and session metadata persistence
// -----------------------------------------------------------------------

package interfaces

import (
	"context"
	"time"

	"github.com/ternarybob/docpipe/internal/models"
)

// ArtifactStorage persists artifact metadata. Artifact bytes are kept on disk
// by the artifact store; this interface only tracks the records.
type ArtifactStorage interface {
	SaveArtifact(ctx context.Context, artifact *models.Artifact) error
	GetArtifact(ctx context.Context, id string) (*models.Artifact, error)
	ListBySession(ctx context.Context, sessionID string) ([]*models.Artifact, error)
	DeleteArtifact(ctx context.Context, id string) error
	DeleteBySession(ctx context.Context, sessionID string) (int, error)
}

// SessionStorage persists session records
type SessionStorage interface {
	SaveSession(ctx context.Context, session *models.Session) error
	GetSession(ctx context.Context, id string) (*models.Session, error)
	ListSessions(ctx context.Context) ([]*models.Session, error)
	ListIdleSince(ctx context.Context, cutoff time.Time) ([]*models.Session, error)
	DeleteSession(ctx context.Context, id string) error
}

// StorageManager groups the storage backends behind one connection
type StorageManager interface {
	ArtifactStorage() ArtifactStorage
	SessionStorage() SessionStorage
	DB() interface{}
	Close() error
}
