// Package cardkey derives stable keys and pseudo-random seeds from card
// identifiers.
package cardkey

import (
	"crypto/sha256"
	"encoding/binary"
	"strconv"
	"strings"
)

// Normalize cleans a card identifier so that ids differing only in
// surrounding whitespace or line endings map to the same card.
func Normalize(cardID string) string {
	id := strings.TrimSpace(cardID)
	id = strings.ReplaceAll(id, "\r\n", "\n")
	return id
}

// Seed returns a deterministic 64-bit seed for the given card and review
// count. The same pair always yields the same seed.
func Seed(cardID string, reps int) uint64 {
	// Joined with a newline so "ab"+1 and "a"+"b1" cannot collide.
	input := Normalize(cardID) + "\n" + strconv.Itoa(reps)
	sum := sha256.Sum256([]byte(input))
	return binary.BigEndian.Uint64(sum[:8])
}

// Unit maps Seed onto [0, 1).
func Unit(cardID string, reps int) float64 {
	return float64(Seed(cardID, reps)>>11) / (1 << 53)
}
