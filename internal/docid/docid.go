// Package docid derives content-addressed document IDs.
package docid

import (
	"crypto/sha256"
	"encoding/hex"
)

// Length is the number of hex characters kept from the digest.
const Length = 16

// ContentID returns the first 16 hex characters of the SHA-256 of text.
// Identical text always yields the same ID.
func ContentID(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])[:Length]
}
