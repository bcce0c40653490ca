package sharedtable

import (
	"sync/atomic"
	"time"
	"unsafe"
)

// rechainSkipFillRatio is the fill-ratio threshold at or above which Delete skips
// its best-effort rechain migration pass and only unlinks the deleted slot
// (spec.md §9, open question: implementers should pick a threshold;
// correctness holds either way since invariant 4 survives both full
// rechaining and no rechaining — chains just stay longer near capacity).
const rechainSkipFillRatio = 0.95

// chain bundles a buffer, its layout and the hash function used to locate
// home slots — the shape every chain-engine operation needs.
type chain struct {
	buf  []byte
	l    *layout
	hash HashFunc
}

func (c *chain) size() uint32 {
	return atomic.LoadUint32((*uint32)(unsafe.Pointer(&c.buf[offSize])))
}

func (c *chain) addSize(delta int32) {
	atomic.AddUint32((*uint32)(unsafe.Pointer(&c.buf[offSize])), uint32(delta))
}

// setHeaderUint32 atomically stores an atomic header counter ([offSize],
// [offFreeCursor]).
func setHeaderUint32(buf []byte, off int, v uint32) {
	atomic.StoreUint32((*uint32)(unsafe.Pointer(&buf[off])), v)
}

// foreignOccupant reports whether the key occupying slot is not part of
// slot's own chain, i.e. its home is some other slot (spec.md §4.3: "the
// occupant of home belongs to a different chain").
func (c *chain) foreignOccupant(slot uint32) bool {
	occKey := readKeyString(c.buf, c.l, slot)

	return home(c.hash, occKey, c.l.capacity) != slot
}

// lookup walks key's chain starting at its home slot, taking at most one
// shared line lock at a time (released before advancing), exactly as
// spec.md §4.4 describes for get/has. Returns the slot index and true if
// found. The caller must already hold the gate in shared mode (or have
// lockWrite) before calling.
func (c *chain) lookup(key string, deadline time.Time) (slot uint32, found bool, timedOut bool) {
	h := home(c.hash, key, c.l.capacity)

	cur := h
	first := true

	for {
		if !acquireShared32(c.buf, c.l.lockWordOffset(cur), deadline) {
			return 0, false, true
		}

		if isEmptySlot(c.buf, c.l, cur) {
			releaseShared32(c.buf, c.l.lockWordOffset(cur))

			return 0, false, false
		}

		if first && c.foreignOccupant(cur) {
			// home is occupied, but by a different chain: key is not present.
			releaseShared32(c.buf, c.l.lockWordOffset(cur))

			return 0, false, false
		}

		first = false

		if readKeyString(c.buf, c.l, cur) == key {
			releaseShared32(c.buf, c.l.lockWordOffset(cur))

			return cur, true, false
		}

		next := readNext(c.buf, c.l, cur)
		releaseShared32(c.buf, c.l.lockWordOffset(cur))

		if next == c.l.invalidNext() {
			return 0, false, false
		}

		cur = next
	}
}

// findFreeSlot scans forward from the header's rotating free-slot cursor
// (spec.md §4.3/§9: advisory only, linear-scan fallback) for an empty slot,
// claims it by taking (and keeping held) its exclusive line lock, and
// returns it. Returns found=false if no free slot exists anywhere in the
// table (TableFull) or if every candidate was too contended to lock within
// the deadline (treated as a deadlock-recovery timeout by the caller).
func (c *chain) findFreeSlot(deadline time.Time) (slot uint32, found bool, timedOut bool) {
	start := atomic.LoadUint32((*uint32)(unsafe.Pointer(&c.buf[offFreeCursor])))

	perSlot := time.Until(deadline) / time.Duration(c.l.capacity+1)
	if perSlot <= 0 {
		perSlot = time.Microsecond
	}

	for i := uint32(0); i < c.l.capacity; i++ {
		cand := (start + i) % c.l.capacity

		candDeadline := time.Now().Add(perSlot)
		if candDeadline.After(deadline) {
			candDeadline = deadline
		}

		if !acquireExclusive32(c.buf, c.l.lockWordOffset(cand), candDeadline) {
			if !time.Now().Before(deadline) {
				return 0, false, true
			}

			continue
		}

		if isEmptySlot(c.buf, c.l, cand) {
			atomic.StoreUint32((*uint32)(unsafe.Pointer(&c.buf[offFreeCursor])), (cand+1)%c.l.capacity)

			return cand, true, false
		}

		releaseExclusive32(c.buf, c.l.lockWordOffset(cand))
	}

	return 0, false, false
}

// insert performs spec.md §4.3's Insert(key, value) for a single attempt.
// It returns ok=false with restart=true when a line lock could not be
// acquired within deadline (the caller should release the gate, back off,
// and call insert again from scratch per §4.4's deadlock recovery).
func (c *chain) insert(key, value string, deadline time.Time) (ok, restart bool, err error) {
	h := home(c.hash, key, c.l.capacity)
	homeOff := c.l.lockWordOffset(h)

	if !acquireExclusive32(c.buf, homeOff, deadline) {
		return false, true, nil
	}

	if isEmptySlot(c.buf, c.l, h) {
		writeKeyString(c.buf, c.l, h, key)
		writeValueString(c.buf, c.l, h, value)
		writeNext(c.buf, c.l, h, c.l.invalidNext())
		c.addSize(1)
		releaseExclusive32(c.buf, homeOff)

		return true, false, nil
	}

	if c.foreignOccupant(h) {
		return c.evictAndInsert(h, key, value, deadline)
	}

	return c.insertIntoOwnChain(h, key, value, deadline)
}

// insertIntoOwnChain handles spec.md §4.3 case 4: home's chain is this
// key's own chain. Walks the chain (at most one slot locked at a time)
// looking for an existing key to overwrite, or the tail to extend. The
// caller must already hold slot cur exclusively.
func (c *chain) insertIntoOwnChain(cur uint32, key, value string, deadline time.Time) (ok, restart bool, err error) {
	for {
		if readKeyString(c.buf, c.l, cur) == key {
			writeValueString(c.buf, c.l, cur, value)
			releaseExclusive32(c.buf, c.l.lockWordOffset(cur))

			return true, false, nil
		}

		next := readNext(c.buf, c.l, cur)
		if next != c.l.invalidNext() {
			nextOff := c.l.lockWordOffset(next)
			releaseExclusive32(c.buf, c.l.lockWordOffset(cur))

			if !acquireExclusive32(c.buf, nextOff, deadline) {
				return false, true, nil
			}

			cur = next

			continue
		}

		// cur is the tail: allocate a free slot and splice it in.
		f, found, timedOut := c.findFreeSlot(deadline)
		if timedOut {
			releaseExclusive32(c.buf, c.l.lockWordOffset(cur))

			return false, true, nil
		}

		if !found {
			releaseExclusive32(c.buf, c.l.lockWordOffset(cur))

			return false, false, ErrTableFull
		}

		// Re-check: another entry may have extended the tail while we were
		// scanning for a free slot. If so, release f and keep walking.
		if readNext(c.buf, c.l, cur) != c.l.invalidNext() {
			releaseExclusive32(c.buf, c.l.lockWordOffset(f))

			continue
		}

		writeKeyString(c.buf, c.l, f, key)
		writeValueString(c.buf, c.l, f, value)
		writeNext(c.buf, c.l, f, c.l.invalidNext())
		writeNext(c.buf, c.l, cur, f)
		c.addSize(1)

		releaseExclusive32(c.buf, c.l.lockWordOffset(f))
		releaseExclusive32(c.buf, c.l.lockWordOffset(cur))

		return true, false, nil
	}
}

// evictAndInsert handles spec.md §4.3 case 3: home is occupied by a
// different chain's entry. It relocates that occupant to a free slot,
// fixes up its chain's predecessor, and installs the new key at home.
// The caller must already hold home exclusively.
func (c *chain) evictAndInsert(homeSlot uint32, key, value string, deadline time.Time) (ok, restart bool, err error) {
	occKey := readKeyString(c.buf, c.l, homeSlot)
	occHome := home(c.hash, occKey, c.l.capacity)

	f, found, timedOut := c.findFreeSlot(deadline)
	if timedOut {
		releaseExclusive32(c.buf, c.l.lockWordOffset(homeSlot))

		return false, true, nil
	}

	if !found {
		releaseExclusive32(c.buf, c.l.lockWordOffset(homeSlot))

		return false, false, ErrTableFull
	}

	pred, predFound, timedOut := c.lockPredecessorOf(occHome, homeSlot, deadline)
	if timedOut {
		releaseExclusive32(c.buf, c.l.lockWordOffset(f))
		releaseExclusive32(c.buf, c.l.lockWordOffset(homeSlot))

		return false, true, nil
	}

	if !predFound {
		// The chain changed shape under us (another mutator intervened).
		// Safe to restart from scratch per spec.md's lock-fail-safe design.
		releaseExclusive32(c.buf, c.l.lockWordOffset(f))
		releaseExclusive32(c.buf, c.l.lockWordOffset(homeSlot))

		return false, true, nil
	}

	// Relocate the occupant from home to f, then repoint its predecessor.
	moveSlot(c.buf, c.l, f, homeSlot)
	writeNext(c.buf, c.l, pred, f)

	if pred != homeSlot {
		releaseExclusive32(c.buf, c.l.lockWordOffset(pred))
	}

	// home is now free: install the new entry.
	writeKeyString(c.buf, c.l, homeSlot, key)
	writeValueString(c.buf, c.l, homeSlot, value)
	writeNext(c.buf, c.l, homeSlot, c.l.invalidNext())
	c.addSize(1)

	releaseExclusive32(c.buf, c.l.lockWordOffset(f))
	releaseExclusive32(c.buf, c.l.lockWordOffset(homeSlot))

	return true, false, nil
}

// lockPredecessorOf walks occHome's chain looking for the slot whose next
// pointer equals target, and returns it locked exclusively. A bounded
// number of hops (the table's capacity) prevents runaway walks; exceeding
// it, or the chain no longer containing target, reports predFound=false so
// the caller restarts the whole operation (the chain must have been
// concurrently mutated, since home — held exclusively by the caller — kept
// target from being unlinked by anyone cooperating with the lock
// protocol).
func (c *chain) lockPredecessorOf(occHome, target uint32, deadline time.Time) (pred uint32, predFound, timedOut bool) {
	cur := occHome

	for hops := uint32(0); hops < c.l.capacity; hops++ {
		if !acquireExclusive32(c.buf, c.l.lockWordOffset(cur), deadline) {
			return 0, false, true
		}

		next := readNext(c.buf, c.l, cur)
		if next == target {
			return cur, true, false
		}

		releaseExclusive32(c.buf, c.l.lockWordOffset(cur))

		if next == c.l.invalidNext() {
			return 0, false, false
		}

		cur = next
	}

	return 0, false, false
}

// remove performs spec.md §4.3's Delete(key), including rechaining. The
// caller must already hold the gate exclusively (Delete always acquires
// the gate in exclusive mode, per spec.md §4.4: "delete takes exclusive on
// the whole affected chain, which is why it requires the global gate
// exclusively" — with the gate exclusive, no concurrent operation can be
// touching the buffer, so remove takes no per-slot line locks at all).
func (c *chain) remove(key string) (removed bool) {
	h := home(c.hash, key, c.l.capacity)

	if isEmptySlot(c.buf, c.l, h) {
		return false
	}

	if c.foreignOccupant(h) {
		return false
	}

	var pred uint32

	hasPred := false
	cur := h

	for {
		if readKeyString(c.buf, c.l, cur) == key {
			break
		}

		next := readNext(c.buf, c.l, cur)
		if next == c.l.invalidNext() {
			return false
		}

		pred = cur
		hasPred = true
		cur = next
	}

	s := cur
	sNext := readNext(c.buf, c.l, s)

	if !hasPred {
		// s is the home slot. The chain must stay anchored at home (future
		// lookups always start at hash(key)), so if there is a successor we
		// pull it up into home and free its old slot instead of simply
		// clearing home.
		if sNext == c.l.invalidNext() {
			clearSlot(c.buf, c.l, s)
		} else {
			moveSlot(c.buf, c.l, s, sNext)
			clearSlot(c.buf, c.l, sNext)
		}
	} else {
		writeNext(c.buf, c.l, pred, sNext)
		clearSlot(c.buf, c.l, s)
	}

	c.addSize(-1)

	if c.fillRatio() < rechainSkipFillRatio {
		c.rechain(h)
	}

	return true
}

func (c *chain) fillRatio() float64 {
	return float64(c.size()) / float64(c.l.capacity)
}

// rechain walks the remainder of home's chain after a deletion and moves
// any entry whose own home slot is now empty back into that home slot,
// splicing it out of its current position — spec.md §4.3's best-effort
// post-deletion defragmentation.
func (c *chain) rechain(h uint32) {
	if isEmptySlot(c.buf, c.l, h) {
		return
	}

	pred := h
	cur := readNext(c.buf, c.l, pred)

	for hops := uint32(0); cur != c.l.invalidNext() && hops < c.l.capacity; hops++ {
		key := readKeyString(c.buf, c.l, cur)
		e := home(c.hash, key, c.l.capacity)

		if e != cur && isEmptySlot(c.buf, c.l, e) {
			next := readNext(c.buf, c.l, cur)
			writeNext(c.buf, c.l, pred, next)
			moveSlot(c.buf, c.l, e, cur)
			writeNext(c.buf, c.l, e, c.l.invalidNext())
			clearSlot(c.buf, c.l, cur)
			cur = next

			continue
		}

		pred = cur
		cur = readNext(c.buf, c.l, cur)
	}
}
