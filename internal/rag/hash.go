package rag

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// NormalizeText prepares text for hashing: whitespace runs collapse to a
// single space and leading/trailing whitespace is trimmed. Two renditions of
// the same content that differ only in whitespace hash identically.
func NormalizeText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// HashText returns the SHA-256 hex digest of normalized text. Used for
// chunk-level deduplication and idempotent re-ingestion.
func HashText(s string) string {
	sum := sha256.Sum256([]byte(NormalizeText(s)))
	return hex.EncodeToString(sum[:])
}

// HashDocument returns the SHA-256 hex digest of a full document's
// normalized text. Identical to HashText; the separate name keeps call
// sites explicit about what is being hashed.
func HashDocument(s string) string {
	return HashText(s)
}
