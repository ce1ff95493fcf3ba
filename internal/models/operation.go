package models

import "time"

// Operation result statuses
const (
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// OperationRequest is a chosen operation plus its raw parameters.
// ArtifactIDs is optional: when empty the controller supplies the session's
// original artifact (or the current one when Chain is set).
type OperationRequest struct {
	Operation   string            `json:"operation"`
	ArtifactIDs []string          `json:"artifact_ids,omitempty"`
	Params      map[string]string `json:"params,omitempty"`
	Chain       bool              `json:"chain,omitempty"`
}

// OperationResult carries either a new artifact, a text payload (always
// with the text artifact that stores it), or a failure.
type OperationResult struct {
	Operation string        `json:"operation"`
	Status    string        `json:"status"`
	Artifact  *Artifact     `json:"artifact,omitempty"`
	Text      *string       `json:"text,omitempty"`
	Failure   *Failure      `json:"failure,omitempty"`
	Duration  time.Duration `json:"duration"`
}

// Succeeded reports whether the operation produced a result
func (r *OperationResult) Succeeded() bool {
	return r.Status == StatusSucceeded
}

// OperationEvent is the payload of operation and session events
type OperationEvent struct {
	SessionID  string   `json:"session_id"`
	Operation  string   `json:"operation,omitempty"`
	ArtifactID string   `json:"artifact_id,omitempty"`
	Status     string   `json:"status,omitempty"`
	Failure    *Failure `json:"failure,omitempty"`
	DurationMS int64    `json:"duration_ms,omitempty"`
}
