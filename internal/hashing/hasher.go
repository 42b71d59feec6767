// Package hashing computes the content digests used for library
// deduplication fingerprints.
package hashing

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
)

// Hasher computes a stable digest over file bytes. Two files with equal
// digests (and equal sizes) are treated as the same physical content.
type Hasher interface {
	Sum(r io.Reader) (string, error)
}

// SHA256Hasher streams the reader through SHA-256.
type SHA256Hasher struct{}

// NewSHA256Hasher creates the default content hasher.
func NewSHA256Hasher() *SHA256Hasher {
	return &SHA256Hasher{}
}

// Sum returns the hex-encoded SHA-256 digest of the reader's contents.
func (h *SHA256Hasher) Sum(r io.Reader) (string, error) {
	digest := sha256.New()
	if _, err := io.Copy(digest, r); err != nil {
		return "", fmt.Errorf("hashing: %w", err)
	}
	return hex.EncodeToString(digest.Sum(nil)), nil
}
