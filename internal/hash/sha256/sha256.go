// Package sha256 names website snapshots by content digest.
package sha256

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/JakeFAU/leadscout/internal/lead"
)

var _ lead.Hasher = (*Hasher)(nil)

// Hasher returns hex SHA-256 digests. Identical homepages share one snapshot
// object within a job.
type Hasher struct{}

// New returns a Hasher.
func New() *Hasher {
	return &Hasher{}
}

// Hash returns the lowercase hex digest of data.
func (h *Hasher) Hash(data []byte) (string, error) {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
