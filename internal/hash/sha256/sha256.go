// Package sha256 computes content digests recorded in the manifest.
package sha256

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Prefix tags digests with their algorithm.
const Prefix = "sha256:"

// Hasher implements crawler.Hasher.
type Hasher struct{}

// New returns a SHA-256 hasher.
func New() *Hasher {
	return &Hasher{}
}

// Hash returns "sha256:" followed by the hex digest of data.
func (h *Hasher) Hash(data []byte) (string, error) {
	sum := sha256.Sum256(data)
	return Prefix + hex.EncodeToString(sum[:]), nil
}

// Verify reports whether digest matches data. Bare hex digests are accepted.
func (h *Hasher) Verify(data []byte, digest string) bool {
	want, _ := h.Hash(data)
	if !strings.HasPrefix(digest, Prefix) {
		digest = Prefix + digest
	}
	return strings.EqualFold(want, digest)
}
