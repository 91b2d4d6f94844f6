package pkgstore

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"slices"

	"github.com/zeebo/blake3"

	"github.com/aweris/pkgstore/internal/codec"
)

// HashSize is the width of a content hash in bytes.
const HashSize = 32

// Hash is a BLAKE3-256 digest identifying a blob by its content.
type Hash [HashSize]byte

// HashBytes computes the content hash of data.
func HashBytes(data []byte) Hash {
	return Hash(blake3.Sum256(data))
}

// ParseHash parses a 64-character hex string into a Hash.
func ParseHash(s string) (Hash, error) {
	var h Hash
	decoded, err := hex.DecodeString(s)
	if err != nil {
		return h, fmt.Errorf("parse hash: %w", err)
	}
	if len(decoded) != HashSize {
		return h, fmt.Errorf("parse hash: %d bytes, want %d", len(decoded), HashSize)
	}
	copy(h[:], decoded)
	return h, nil
}

// String returns the hex encoding of h.
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// Short returns the first 12 hex characters, for log lines and listings.
func (h Hash) Short() string {
	return hex.EncodeToString(h[:6])
}

// MarshalCBOR encodes h as a byte string.
func (h Hash) MarshalCBOR() ([]byte, error) {
	return codec.Marshal(h[:])
}

// UnmarshalCBOR decodes a byte string of exactly HashSize bytes. Shorter or
// longer strings are rejected rather than padded or truncated.
func (h *Hash) UnmarshalCBOR(data []byte) error {
	var b []byte
	if err := codec.Unmarshal(data, &b); err != nil {
		return fmt.Errorf("decode hash: %w", err)
	}
	if len(b) != HashSize {
		return fmt.Errorf("decode hash: %d bytes, want %d", len(b), HashSize)
	}
	copy(h[:], b)
	return nil
}

// Compare orders hashes bytewise.
func (h Hash) Compare(other Hash) int {
	return bytes.Compare(h[:], other[:])
}

// SortedHashes returns the keys of m in ascending order.
func SortedHashes[V any](m map[Hash]V) []Hash {
	keys := make([]Hash, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, Hash.Compare)
	return keys
}
