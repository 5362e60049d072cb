// Package cryptoutil holds small helpers for handling key material.
package cryptoutil

import (
	"encoding/hex"
	"fmt"
)

// KeySize is the size in bytes of symmetric keys used by veil.
const KeySize = 32

// IsHexString reports whether s consists entirely of hexadecimal characters
// (0-9, a-f, A-F). It returns true for an empty string — callers should check
// length separately when a minimum size is required.
func IsHexString(s string) bool {
	for _, c := range s {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') && (c < 'A' || c > 'F') {
			return false
		}
	}
	return true
}

// ParseKey accepts either 32 raw bytes or 64 hex characters and returns the
// 32-byte key.
func ParseKey(key string) (*[KeySize]byte, error) {
	var out [KeySize]byte
	switch {
	case len(key) == KeySize:
		copy(out[:], key)
	case len(key) == 2*KeySize && IsHexString(key):
		decoded, err := hex.DecodeString(key)
		if err != nil {
			return nil, fmt.Errorf("decoding hex key: %w", err)
		}
		copy(out[:], decoded)
	default:
		return nil, fmt.Errorf("key must be exactly %d bytes or %d hex characters (got %d)", KeySize, 2*KeySize, len(key))
	}
	return &out, nil
}
