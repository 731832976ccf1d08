// Package uuid issues the identifiers stamped on seat jobs and snapshots.
package uuid

import (
	"fmt"

	"github.com/google/uuid"
)

// Generator is the production pilot.IDGenerator. It issues UUIDv7 strings;
// the time-ordered prefix keeps job and snapshot IDs sortable by creation
// time, which the stores rely on for latest-row queries.
type Generator struct{}

// New returns a UUIDv7 generator.
func New() Generator {
	return Generator{}
}

// NewID returns a fresh UUIDv7 string.
func (Generator) NewID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate uuid7: %w", err)
	}
	return id.String(), nil
}
