package sharedtable

import "iter"

// Keys returns a lazy, finite, non-restartable, weakly-consistent sequence
// of the table's keys (spec.md §4.5, §6): it scans the slot array from
// index 0 upward, taking a momentary shared lock on each slot in turn,
// testing occupancy, copying the key and releasing — never holding any
// lock between yields. A key observed throughout the scan is guaranteed to
// be yielded; a key inserted or deleted mid-scan may or may not be.
func (t *Table) Keys(opts ...Option) iter.Seq[string] {
	o := resolveOptions(opts)

	return func(yield func(string) bool) {
		for s := uint32(0); s < t.l.capacity; s++ {
			key, ok := t.snapshotKey(s, o)
			if !ok {
				continue
			}

			if !yield(key) {
				return
			}
		}
	}
}

func (t *Table) snapshotKey(slot uint32, o opOptions) (string, bool) {
	if o.lockWrite {
		if isEmptySlot(t.buf, t.l, slot) {
			return "", false
		}

		return readKeyString(t.buf, t.l, slot), true
	}

	acquireGateShared(t.buf)
	acquireShared32(t.buf, t.l.lockWordOffset(slot), farFuture())

	empty := isEmptySlot(t.buf, t.l, slot)

	var key string
	if !empty {
		key = readKeyString(t.buf, t.l, slot)
	}

	releaseShared32(t.buf, t.l.lockWordOffset(slot))
	releaseGateShared(t.buf)

	return key, !empty
}

// Map applies fn to every (key, value) pair currently in the table and
// returns the collected results, in slot-scan order. Each call to fn
// happens with a shared line lock held on that entry's slot, guaranteeing
// Get(key) == the value passed to fn for the duration of that single call
// (spec.md §4.5). fn must not call back into t unless opts includes
// [LockWrite] and the caller already holds the exclusive gate; doing
// otherwise is undefined behavior (spec.md §7, §9).
func (t *Table) Map(fn func(key, value string) any, opts ...Option) []any {
	o := resolveOptions(opts)

	results := make([]any, 0, t.Length())

	for s := uint32(0); s < t.l.capacity; s++ {
		_, value, ok := t.snapshotEntryAndApply(s, o, fn)
		if !ok {
			continue
		}

		results = append(results, value)
	}

	return results
}

// Reduce folds fn over every (accumulator, key, value) currently in the
// table, in slot-scan order, starting from init. Same per-entry atomicity
// guarantee as [Table.Map].
func (t *Table) Reduce(fn func(acc any, key, value string) any, init any, opts ...Option) any {
	o := resolveOptions(opts)

	acc := init

	for s := uint32(0); s < t.l.capacity; s++ {
		t.snapshotEntryAndApply(s, o, func(key, value string) any {
			acc = fn(acc, key, value)

			return nil
		})
	}

	return acc
}

// snapshotEntryAndApply holds slot s's shared line lock across the call to
// fn, per spec.md §4.5's map/reduce atomicity guarantee. Unlike a plain
// lookup, the gate itself must also stay held for the whole step, not just
// while acquiring the line lock: Delete's rechain and Clear never take any
// per-slot line lock of their own (spec.md §4.4 — they rely entirely on
// holding the gate exclusively to exclude all other buffer access), so
// releasing the gate before reading the slot and calling fn would let a
// concurrent Delete/Clear clearSlot/moveSlot/writeNext the exact slot this
// step is reading. Matches [Table.snapshotKey]'s gate handling.
func (t *Table) snapshotEntryAndApply(slot uint32, o opOptions, fn func(key, value string) any) (key string, result any, ok bool) {
	if o.lockWrite {
		if isEmptySlot(t.buf, t.l, slot) {
			return "", nil, false
		}

		key = readKeyString(t.buf, t.l, slot)
		value := readValueString(t.buf, t.l, slot)

		return key, fn(key, value), true
	}

	acquireGateShared(t.buf)
	acquireShared32(t.buf, t.l.lockWordOffset(slot), farFuture())

	if isEmptySlot(t.buf, t.l, slot) {
		releaseShared32(t.buf, t.l.lockWordOffset(slot))
		releaseGateShared(t.buf)

		return "", nil, false
	}

	key = readKeyString(t.buf, t.l, slot)
	value := readValueString(t.buf, t.l, slot)
	result = fn(key, value)

	releaseShared32(t.buf, t.l.lockWordOffset(slot))
	releaseGateShared(t.buf)

	return key, result, true
}
