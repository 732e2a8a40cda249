package fsutil

import (
	"mime"
	"path/filepath"

	"github.com/gabriel-vasile/mimetype"
)

// OctetStream is the type reported when nothing better is known.
const OctetStream = "application/octet-stream"

// ContentType infers the MIME type of the file at path. The extension table
// is consulted first, then the file content is sniffed, then OctetStream.
func ContentType(path string) string {
	if ct := mime.TypeByExtension(filepath.Ext(path)); ct != "" {
		return ct
	}
	if detected, err := mimetype.DetectFile(path); err == nil && detected != nil {
		return detected.String()
	}
	return OctetStream
}

// MediaType is ContentType without parameters, e.g. "text/plain".
func MediaType(path string) string {
	ct := ContentType(path)
	mediaType, _, err := mime.ParseMediaType(ct)
	if err != nil || mediaType == "" {
		return OctetStream
	}
	return mediaType
}
