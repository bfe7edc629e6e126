// Package fileid derives deterministic identifiers for uploaded and watched reports.
package fileid

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
)

const (
	reportPrefix = "report:"
	pathPrefix   = "file:"
)

// ReportID identifies a report by its bytes, so re-uploading the same file
// yields the same ID regardless of its name.
func ReportID(content []byte) string {
	hash := sha256.Sum256(content)
	return reportPrefix + hex.EncodeToString(hash[:])
}

// PathID returns a stable ID for a watched file path. The path is cleaned first.
func PathID(path string) string {
	hash := sha256.Sum256([]byte(filepath.Clean(path)))
	return pathPrefix + hex.EncodeToString(hash[:])
}
