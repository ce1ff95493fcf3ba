package models

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Format tags the kind of payload an Artifact holds
type Format string

const (
	FormatPDF     Format = "pdf"
	FormatImage   Format = "image"
	FormatAudio   Format = "audio"
	FormatVideo   Format = "video"
	FormatText    Format = "text"
	FormatArchive Format = "archive" // zip batch export
	FormatTable   Format = "table"   // csv export
)

// uploadExtensions lists the extensions accepted at the upload boundary.
// The declared extension is trusted; no content sniffing is done.
var uploadExtensions = map[string]Format{
	"pdf":  FormatPDF,
	"png":  FormatImage,
	"jpg":  FormatImage,
	"jpeg": FormatImage,
	"mp4":  FormatVideo,
	"avi":  FormatVideo,
	"txt":  FormatText,
	"md":   FormatText,
	"html": FormatText,
	"htm":  FormatText,
}

var extensionMIME = map[string]string{
	"pdf":  "application/pdf",
	"png":  "image/png",
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
	"mp3":  "audio/mp3",
	"mp4":  "video/mp4",
	"avi":  "video/x-msvideo",
	"zip":  "application/zip",
	"csv":  "text/csv",
}

var defaultExtension = map[Format]string{
	FormatPDF:     "pdf",
	FormatImage:   "png",
	FormatAudio:   "mp3",
	FormatVideo:   "mp4",
	FormatText:    "txt",
	FormatArchive: "zip",
	FormatTable:   "csv",
}

// FormatFromFilename resolves the format of an uploaded file from its extension
func FormatFromFilename(name string) (Format, string, error) {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
	format, ok := uploadExtensions[ext]
	if !ok {
		return "", "", fmt.Errorf("%w: file extension %q is not accepted", ErrUnsupportedFormat, ext)
	}
	return format, ext, nil
}

// DefaultExtension returns the extension used for outputs of the given format
func (f Format) DefaultExtension() string {
	if ext, ok := defaultExtension[f]; ok {
		return ext
	}
	return "bin"
}

// Valid reports whether f is a known format tag
func (f Format) Valid() bool {
	_, ok := defaultExtension[f]
	return ok
}

// TextMIME is served for every text artifact. Uploaded html or markdown is
// never rendered by the client.
const TextMIME = "text/plain; charset=utf-8"

// MIMEType returns the MIME type for a format/extension pair.
// The extension refines the format (jpg vs png); unknown pairs fall back to the format default.
func MIMEType(f Format, ext string) string {
	if f == FormatText {
		return TextMIME
	}
	if mime, ok := extensionMIME[strings.ToLower(ext)]; ok {
		return mime
	}
	if mime, ok := extensionMIME[f.DefaultExtension()]; ok {
		return mime
	}
	return "application/octet-stream"
}
