package sharedtable

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
)

// Header layout, all little-endian. The first 20 bytes are immutable after
// construction and covered by a CRC so an independent peer attaching to a
// raw buffer can detect a foreign or corrupt region before trusting it. The
// remaining fields are mutated with atomic operations for the lifetime of
// the table and are deliberately excluded from the checksum.
const (
	offMagic      = 0  // [4]byte
	offVersion    = 4  // uint32
	offCapacity   = 8  // uint32 (N)
	offKeyWidth   = 12 // uint32 (K)
	offValueWidth = 16 // uint32 (V)
	offHeaderCRC  = 20 // uint32, crc32(IEEE) of bytes [0,20)

	offSize       = 24 // uint32, atomic: count of occupied slots
	offFreeCursor = 28 // uint32, atomic: rotating free-slot search cursor
	offGate       = 32 // int64, atomic: global gate word (see lockword.go)

	headerSize = 64
)

var magic = [4]byte{'S', 'T', 'B', '1'}

const formatVersion = 1

// lockWordSize, keyLenSize, nextSize, valLenSize are the per-slot fixed-width fields laid
// out after the header, in the order spec.md prescribes: lock words, then
// key-length array, next-pointer array, value-length array, key cells,
// value cells.
const (
	lockWordSize = 4 // int32
	nextSize     = 4 // uint32
	keyLenSize   = 4 // uint32
	valLenSize   = 4 // uint32
	cellSize     = 2 // uint16, one UTF-16 code unit
)

// layout describes the byte offsets of every section of a table's backing
// buffer, computed once from (N, K, V).
type layout struct {
	capacity    uint32 // N
	keyWidth    uint32 // K, in UTF-16 code units
	valueWidth  uint32 // V, in UTF-16 code units
	lockOff     int
	nextOff     int
	keyLenOff   int
	valLenOff   int
	keyCellOff  int
	valCellOff  int
	totalSize   int
}

// invalidNext is the chain-tail / empty-slot sentinel for the next-pointer
// array: it equals the table's capacity, one past the last valid index.
func (l *layout) invalidNext() uint32 { return l.capacity }

func computeLayout(n, k, v uint32) *layout {
	l := &layout{capacity: n, keyWidth: k, valueWidth: v}

	off := headerSize
	l.lockOff = off
	off += int(n) * lockWordSize

	l.keyLenOff = off
	off += int(n) * keyLenSize

	l.nextOff = off
	off += int(n) * nextSize

	l.valLenOff = off
	off += int(n) * valLenSize

	l.keyCellOff = off
	off += int(n) * int(k) * cellSize

	l.valCellOff = off
	off += int(n) * int(v) * cellSize

	l.totalSize = off

	return l
}

// writeHeader initializes a freshly allocated, zeroed buffer's header and
// sets every slot's next pointer to invalidNext (an empty slot must have
// next == INVALID per spec.md invariant 7; everything else is already zero
// from allocation, which matches "key length 0 == empty").
func writeHeader(buf []byte, l *layout) {
	copy(buf[offMagic:offMagic+4], magic[:])
	binary.LittleEndian.PutUint32(buf[offVersion:], formatVersion)
	binary.LittleEndian.PutUint32(buf[offCapacity:], l.capacity)
	binary.LittleEndian.PutUint32(buf[offKeyWidth:], l.keyWidth)
	binary.LittleEndian.PutUint32(buf[offValueWidth:], l.valueWidth)
	binary.LittleEndian.PutUint32(buf[offHeaderCRC:], crc32.ChecksumIEEE(buf[offMagic:offHeaderCRC]))

	inv := l.invalidNext()
	for s := uint32(0); s < l.capacity; s++ {
		binary.LittleEndian.PutUint32(buf[l.nextOff+int(s)*nextSize:], inv)
	}
}

// readLayout validates a raw buffer's header and derives its layout,
// without trusting anything other than the immutable, CRC-checked prefix.
func readLayout(buf []byte) (*layout, error) {
	if len(buf) < headerSize {
		return nil, fmt.Errorf("%w: buffer shorter than header", ErrIncompatible)
	}

	if string(buf[offMagic:offMagic+4]) != string(magic[:]) {
		return nil, fmt.Errorf("%w: bad magic", ErrIncompatible)
	}

	gotCRC := binary.LittleEndian.Uint32(buf[offHeaderCRC:])
	wantCRC := crc32.ChecksumIEEE(buf[offMagic:offHeaderCRC])

	if gotCRC != wantCRC {
		return nil, fmt.Errorf("%w: header checksum mismatch", ErrIncompatible)
	}

	version := binary.LittleEndian.Uint32(buf[offVersion:])
	if version != formatVersion {
		return nil, fmt.Errorf("%w: version %d, want %d", ErrIncompatible, version, formatVersion)
	}

	n := binary.LittleEndian.Uint32(buf[offCapacity:])
	k := binary.LittleEndian.Uint32(buf[offKeyWidth:])
	v := binary.LittleEndian.Uint32(buf[offValueWidth:])

	if n == 0 {
		return nil, fmt.Errorf("%w: zero capacity", ErrIncompatible)
	}

	l := computeLayout(n, k, v)

	if len(buf) < l.totalSize {
		return nil, fmt.Errorf("%w: buffer too short for declared capacity (want %d bytes, got %d)",
			ErrIncompatible, l.totalSize, len(buf))
	}

	return l, nil
}

func (l *layout) lockWordOffset(slot uint32) int { return l.lockOff + int(slot)*lockWordSize }
func (l *layout) nextOffset(slot uint32) int     { return l.nextOff + int(slot)*nextSize }
func (l *layout) keyLenOffset(slot uint32) int   { return l.keyLenOff + int(slot)*keyLenSize }
func (l *layout) valLenOffset(slot uint32) int   { return l.valLenOff + int(slot)*valLenSize }
func (l *layout) keyCellOffset(slot uint32) int  { return l.keyCellOff + int(slot)*int(l.keyWidth)*cellSize }
func (l *layout) valCellOffset(slot uint32) int  { return l.valCellOff + int(slot)*int(l.valueWidth)*cellSize }
