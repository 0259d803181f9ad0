// Package uuid generates job and lead identifiers.
package uuid

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/JakeFAU/leadscout/internal/lead"
)

var _ lead.IDGenerator = Generator{}

// Generator creates time-ordered UUIDv7 strings so job and lead IDs sort by
// creation time in every store.
type Generator struct{}

// New returns a Generator.
func New() Generator {
	return Generator{}
}

// NewID returns a UUIDv7 string.
func (Generator) NewID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate uuid7: %w", err)
	}
	return id.String(), nil
}
