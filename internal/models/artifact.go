package models

import "time"

// ProducerUpload marks artifacts that entered through the upload boundary
const ProducerUpload = "upload"

// Artifact is an immutable byte payload with a format tag.
// The bytes live on disk at Path; this record is the metadata kept in storage.
type Artifact struct {
	ID        string    `json:"id"`                            // art_{uuid}
	SessionID string    `json:"session_id" badgerhold:"index"` // Owning session
	Name      string    `json:"name"`                          // Suggested base filename (no extension)
	Format    Format    `json:"format"`                        // pdf, image, audio, video, text, archive, table
	Extension string    `json:"extension"`                     // File extension without dot
	Size      int64     `json:"size"`                          // Bytes on disk
	Checksum  string    `json:"checksum"`                      // sha256 hex of the content
	Producer  string    `json:"producer"`                      // "upload" or operation name
	Parents   []string  `json:"parents,omitempty"`             // Input artifact IDs
	Path      string    `json:"-"`                             // Location on disk
	CreatedAt time.Time `json:"created_at"`
}

// Filename returns the suggested download filename
func (a *Artifact) Filename() string {
	name := a.Name
	if name == "" {
		name = a.ID
	}
	return name + "." + a.Extension
}

// MIMEType returns the MIME type consistent with the artifact's format tag
func (a *Artifact) MIMEType() string {
	return MIMEType(a.Format, a.Extension)
}
