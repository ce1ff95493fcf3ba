package models

import "time"

// SessionState is the controller state of a session
type SessionState string

const (
	SessionIdle    SessionState = "idle"
	SessionRunning SessionState = "running"
)

// Session groups the artifacts of one user's work.
// OriginalID is the primary upload; CurrentID is the artifact the next
// chained operation runs against.
type Session struct {
	ID           string            `json:"id"` // ses_{uuid}
	OriginalID   string            `json:"original_id,omitempty"`
	CurrentID    string            `json:"current_id,omitempty"`
	State        SessionState      `json:"state"`
	Artifacts    []string          `json:"artifacts"`
	History      []OperationRecord `json:"history"`
	CreatedAt    time.Time         `json:"created_at"`
	LastActiveAt time.Time         `json:"last_active_at" badgerhold:"index"`
}

// OwnsArtifact reports whether the artifact was created in this session
func (s *Session) OwnsArtifact(id string) bool {
	for _, a := range s.Artifacts {
		if a == id {
			return true
		}
	}
	return false
}

// OperationRecord is one entry of a session's operation history
type OperationRecord struct {
	Operation  string    `json:"operation"`
	Inputs     []string  `json:"inputs"`
	OutputID   string    `json:"output_id,omitempty"`
	Chained    bool      `json:"chained"`
	Status     string    `json:"status"`
	Failure    *Failure  `json:"failure,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	DurationMS int64     `json:"duration_ms"`
}
