// Package idgen generates opaque identifiers for board entities.
package idgen

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// Size is the number of random bytes in an identifier (128 bits).
const Size = 16

// New returns a random 128-bit token serialized as 32 lowercase hex characters.
// IDs carry no ordering or timestamp information; stable iteration order over
// equal order_index values comes from comparing them lexicographically.
func New() string {
	var buf [Size]byte
	if _, err := rand.Read(buf[:]); err != nil {
		// crypto/rand never fails on supported platforms; a broken entropy
		// source is not something we can recover from mid-request.
		panic(fmt.Sprintf("idgen: read entropy: %v", err))
	}
	return hex.EncodeToString(buf[:])
}
