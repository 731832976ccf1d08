// Package sha256 fingerprints lobby observations.
package sha256

import (
	"crypto/sha256"
	"encoding/hex"
)

// Hasher is the production pilot.Hasher. The poller feeds it the serialized
// entry list of each snapshot; equal digests mean the lobby did not move.
type Hasher struct{}

// New returns a SHA-256 hasher.
func New() Hasher {
	return Hasher{}
}

// Hash returns the hex SHA-256 digest of data.
func (Hasher) Hash(data []byte) (string, error) {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
