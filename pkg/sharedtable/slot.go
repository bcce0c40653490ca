package sharedtable

import "encoding/binary"

// Plain (non-atomic) slot field accessors. Every call site reads or writes
// a slot's fields only while holding that slot's line lock (or, for
// Delete/Clear, while holding the global gate exclusively, which excludes
// every other operation from touching the buffer at all) — the lock
// acquisition/release itself is the atomic operation that makes these
// plain reads and writes visible across goroutines, exactly as with any
// mutex-protected field in Go.

func readKeyLen(buf []byte, l *layout, slot uint32) uint32 {
	return binary.LittleEndian.Uint32(buf[l.keyLenOffset(slot):])
}

func writeKeyLen(buf []byte, l *layout, slot, n uint32) {
	binary.LittleEndian.PutUint32(buf[l.keyLenOffset(slot):], n)
}

func readValLen(buf []byte, l *layout, slot uint32) uint32 {
	return binary.LittleEndian.Uint32(buf[l.valLenOffset(slot):])
}

func writeValLen(buf []byte, l *layout, slot, n uint32) {
	binary.LittleEndian.PutUint32(buf[l.valLenOffset(slot):], n)
}

func readNext(buf []byte, l *layout, slot uint32) uint32 {
	return binary.LittleEndian.Uint32(buf[l.nextOffset(slot):])
}

func writeNext(buf []byte, l *layout, slot, next uint32) {
	binary.LittleEndian.PutUint32(buf[l.nextOffset(slot):], next)
}

func isEmptySlot(buf []byte, l *layout, slot uint32) bool {
	return readKeyLen(buf, l, slot) == 0
}

func readKeyUnits(buf []byte, l *layout, slot uint32) []uint16 {
	n := readKeyLen(buf, l, slot)
	units := make([]uint16, n)
	base := l.keyCellOffset(slot)

	for i := uint32(0); i < n; i++ {
		units[i] = binary.LittleEndian.Uint16(buf[base+int(i)*cellSize:])
	}

	return units
}

func readKeyString(buf []byte, l *layout, slot uint32) string {
	return string(utf16Decode(readKeyUnits(buf, l, slot)))
}

func readValueString(buf []byte, l *layout, slot uint32) string {
	n := readValLen(buf, l, slot)
	units := make([]uint16, n)
	base := l.valCellOffset(slot)

	for i := uint32(0); i < n; i++ {
		units[i] = binary.LittleEndian.Uint16(buf[base+int(i)*cellSize:])
	}

	return string(utf16Decode(units))
}

func writeKeyString(buf []byte, l *layout, slot uint32, key string) {
	units := toUTF16(key)
	base := l.keyCellOffset(slot)

	for i, u := range units {
		binary.LittleEndian.PutUint16(buf[base+i*cellSize:], u)
	}

	writeKeyLen(buf, l, slot, uint32(len(units)))
}

func writeValueString(buf []byte, l *layout, slot uint32, value string) {
	units := toUTF16(value)
	base := l.valCellOffset(slot)

	for i, u := range units {
		binary.LittleEndian.PutUint16(buf[base+i*cellSize:], u)
	}

	writeValLen(buf, l, slot, uint32(len(units)))
}

// clearSlot resets a slot to the empty state described by invariant 1 and 7:
// zero key length (empty) and next == INVALID.
func clearSlot(buf []byte, l *layout, slot uint32) {
	writeKeyLen(buf, l, slot, 0)
	writeValLen(buf, l, slot, 0)
	writeNext(buf, l, slot, l.invalidNext())
}

// moveSlot copies slot src's key/value/next fields into slot dst verbatim.
func moveSlot(buf []byte, l *layout, dst, src uint32) {
	keyUnits := readKeyUnits(buf, l, src)
	base := l.keyCellOffset(dst)

	for i, u := range keyUnits {
		binary.LittleEndian.PutUint16(buf[base+i*cellSize:], u)
	}

	writeKeyLen(buf, l, dst, uint32(len(keyUnits)))

	n := readValLen(buf, l, src)
	vbase := l.valCellOffset(dst)
	srcVBase := l.valCellOffset(src)

	for i := uint32(0); i < n; i++ {
		u := binary.LittleEndian.Uint16(buf[srcVBase+int(i)*cellSize:])
		binary.LittleEndian.PutUint16(buf[vbase+int(i)*cellSize:], u)
	}

	writeValLen(buf, l, dst, n)
	writeNext(buf, l, dst, readNext(buf, l, src))
}
