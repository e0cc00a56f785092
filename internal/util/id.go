package util

import (
	"crypto/rand"
	"encoding/hex"

	"github.com/google/uuid"
)

// NewID returns an opaque prefixed identifier for tokens and other
// short-lived artifacts.
func NewID(prefix string) string {
	bytes := make([]byte, 16)
	_, _ = rand.Read(bytes)
	if prefix == "" {
		return hex.EncodeToString(bytes)
	}
	return prefix + "_" + hex.EncodeToString(bytes)
}

// NewRowID returns a UUID string for persisted entity rows.
func NewRowID() string {
	return uuid.NewString()
}
