package sharedtable

import "unicode/utf16"

// HashFunc maps a key's UTF-16 code units to a 32-bit hash. It must be pure
// and deterministic: all peers attaching to the same buffer must agree on
// the hash function, since the function itself is a construction-time
// choice and is not recorded in the shared buffer (spec.md §9).
type HashFunc func(codeUnits []uint16) uint32

// toUTF16 converts a string to its UTF-16 code units, matching the width
// spec.md's key/value cells are measured in.
func toUTF16(s string) []uint16 {
	return utf16.Encode([]rune(s))
}

// utf16Decode converts UTF-16 code units back to runes.
func utf16Decode(units []uint16) []rune {
	return utf16.Decode(units)
}

// MurmurHash2 is the default hash: MurmurHash2 (32-bit) computed over the
// little-endian byte representation of a key's UTF-16 code units.
//
// This is the default named in spec.md §4.2 / §6. It is not cryptographic
// and is not intended to be (spec.md explicitly excludes cryptographic
// properties from scope).
func MurmurHash2(codeUnits []uint16) uint32 {
	const (
		seed uint32 = 0
		m    uint32 = 0x5bd1e995
		r            = 24
	)

	data := make([]byte, len(codeUnits)*2)
	for i, u := range codeUnits {
		data[2*i] = byte(u)
		data[2*i+1] = byte(u >> 8)
	}

	length := len(data)
	h := seed ^ uint32(length)

	for len(data) >= 4 {
		k := uint32(data[0]) | uint32(data[1])<<8 | uint32(data[2])<<16 | uint32(data[3])<<24

		k *= m
		k ^= k >> r
		k *= m

		h *= m
		h ^= k

		data = data[4:]
	}

	switch len(data) {
	case 3:
		h ^= uint32(data[2]) << 16
		fallthrough
	case 2:
		h ^= uint32(data[1]) << 8
		fallthrough
	case 1:
		h ^= uint32(data[0])
		h *= m
	}

	h ^= h >> 13
	h *= m
	h ^= h >> 15

	return h
}

// FNV1a64 is an alternate built-in hash, reducing a 64-bit FNV-1a digest
// over the same byte representation [MurmurHash2] uses. Offered as a second
// concrete [HashFunc] since callers may prefer it for its simplicity; it
// carries no special status over any other pluggable hash.
func FNV1a64(codeUnits []uint16) uint32 {
	const (
		offset uint64 = 14695981039346656037
		prime  uint64 = 1099511628211
	)

	h := offset
	for _, u := range codeUnits {
		h ^= uint64(byte(u))
		h *= prime
		h ^= uint64(byte(u >> 8))
		h *= prime
	}

	return uint32(h ^ (h >> 32))
}

// home reduces a key's hash to a slot index in [0, capacity).
func home(fn HashFunc, key string, capacity uint32) uint32 {
	return fn(toUTF16(key)) % capacity
}
