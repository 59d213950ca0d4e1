// Package fileid derives stable keys for inbox source files.
package fileid

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
)

const prefix = "source:"

// SourceID returns the key under which the ingested version of a file is remembered.
// Equivalent spellings of the same path map to the same key.
func SourceID(absolutePath string) string {
	normalized := filepath.Clean(absolutePath)
	hash := sha256.Sum256([]byte(normalized))
	return prefix + hex.EncodeToString(hash[:])
}
