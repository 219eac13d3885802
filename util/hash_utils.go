package util

import (
	"github.com/OneOfOne/xxhash"
)

// HashCode hashes a key to a stable 64 bit identity.
func HashCode(key []byte) uint64 {
	h := xxhash.New64()
	h.Write(key)
	return h.Sum64()
}

// HashString hashes a string key without copying it into a new buffer.
func HashString(key string) uint64 {
	return xxhash.ChecksumString64(key)
}
