package common

import (
	"github.com/google/uuid"
)

// NewArtifactID generates a unique artifact ID with the "art_" prefix.
// A fresh ID is minted for every upload and every operation output.
// Format: art_<uuid>
func NewArtifactID() string {
	return "art_" + uuid.New().String()
}

// NewSessionID generates a unique session ID with the "ses_" prefix
// Format: ses_<uuid>
func NewSessionID() string {
	return "ses_" + uuid.New().String()
}

// NewRequestID tags one HTTP request in logs and the X-Request-ID header
func NewRequestID() string {
	return "req_" + uuid.New().String()
}
