// Package checksum provides content hashing for notes and raw files.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
)

// Sum returns the hex-encoded SHA-256 digest of data.
func Sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// Short8 returns the first 8 hex characters of the SHA-256 digest.
// Used as a de-duplication prefix when saving raw files to the export tree.
func Short8(data []byte) string {
	return Sum(data)[:8]
}
