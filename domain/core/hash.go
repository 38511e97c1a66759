package core

import (
	"crypto/sha256"
	"encoding/hex"
)

// Hash represents a cryptographic hash
type Hash string

// GenesisHash anchors the audit chain before the first record.
const GenesisHash Hash = "GENESIS"

// NewHash creates a new hash from data
func NewHash(data []byte) Hash {
	sum := sha256.Sum256(data)
	return Hash(hex.EncodeToString(sum[:]))
}

// String returns the string representation
func (h Hash) String() string {
	return string(h)
}

// IsEmpty checks if the hash is empty
func (h Hash) IsEmpty() bool {
	return h == ""
}

// Equals checks if two hashes are equal
func (h Hash) Equals(other Hash) bool {
	return h == other
}

// ChainHash links an audit entry to its predecessor. The resulting hash
// covers both the entry payload and the previous entry's hash, so any
// rewrite of history breaks every later link.
func ChainHash(previous Hash, payload []byte) Hash {
	buf := make([]byte, 0, len(previous)+len(payload))
	buf = append(buf, []byte(previous)...)
	buf = append(buf, payload...)
	return NewHash(buf)
}
