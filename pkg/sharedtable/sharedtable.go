package sharedtable

import (
	"fmt"
	"sync/atomic"
	"time"
)

// maxLineLockRetries bounds the deadlock-recovery restart loop (spec.md
// §4.4, §7): an operation that cannot complete its line-lock acquisitions
// within this many bounded-timeout attempts surfaces [ErrDeadlock] instead
// of retrying forever.
const maxLineLockRetries = 64

// Table is a shared-memory, fixed-capacity, coalesced-chaining hash map.
// All methods are safe for concurrent use by any number of goroutines (and,
// when backed by a buffer obtained from
// [github.com/calvinalkan/sharedtable/pkg/sharedtable/region], by any
// number of OS processes sharing that buffer).
type Table struct {
	buf    []byte
	l      *layout
	cfg    config
	closed atomic.Bool
}

// New constructs a table with the given capacity (n, number of slots), key
// width (k) and value width (v), both in UTF-16 code units. The backing
// buffer is a plain Go slice, suitable for sharing between goroutines in
// this process; for a buffer that can be handed to a peer process, use
// [github.com/calvinalkan/sharedtable/pkg/sharedtable/region.Create] and
// [Attach] instead.
func New(n, k, v uint32, opts ...ConfigOption) (*Table, error) {
	if n == 0 {
		return nil, fmt.Errorf("%w: capacity must be >= 1", ErrIncompatible)
	}

	if k == 0 {
		return nil, fmt.Errorf("%w: key width must be >= 1", ErrIncompatible)
	}

	l := computeLayout(n, k, v)
	buf := make([]byte, l.totalSize)
	writeHeader(buf, l)

	cfg := defaultConfig()
	for _, fn := range opts {
		fn(&cfg)
	}

	return &Table{buf: buf, l: l, cfg: cfg}, nil
}

// Attach reconstructs a [Table] view over a pre-existing raw buffer
// produced by a prior [New]/[Attach] call (spec.md §6, peer attach):
// (N, K, V) are read from the buffer's header rather than supplied by the
// caller. All peers must agree on the hash function via [WithHash]
// (spec.md §9); it is not recorded in the buffer.
func Attach(buf []byte, opts ...ConfigOption) (*Table, error) {
	l, err := readLayout(buf)
	if err != nil {
		return nil, err
	}

	cfg := defaultConfig()
	for _, fn := range opts {
		fn(&cfg)
	}

	return &Table{buf: buf, l: l, cfg: cfg}, nil
}

// Buffer returns the table's backing buffer, e.g. to hand to a peer via
// shared memory or to snapshot to disk. Mutating it outside the table's
// own locking protocol is undefined behavior.
func (t *Table) Buffer() []byte { return t.buf }

// Hash returns the pluggable hash of key reduced modulo the table's
// capacity (spec.md §6).
func (t *Table) Hash(key string) uint32 {
	return home(t.cfg.hash, key, t.l.capacity)
}

// Length returns the current count of occupied slots, as an unlocked
// snapshot (spec.md §6: "Current size (snapshot, unlocked)").
func (t *Table) Length() uint32 {
	return t.chain().size()
}

func (t *Table) chain() *chain {
	return &chain{buf: t.buf, l: t.l, hash: t.cfg.hash}
}

// Close marks the table unusable. It does not unmap or free the backing
// buffer — that's the concern of whoever allocated it (a plain slice needs
// nothing; a [github.com/calvinalkan/sharedtable/pkg/sharedtable/region.Region]
// is unmapped via its own Close) — Close here only guards against a caller
// continuing to issue operations against a buffer some other owner may be
// about to release. Idempotent; safe to call more than once.
func (t *Table) Close() error {
	t.closed.Store(true)

	return nil
}

func (t *Table) checkKey(key string) error {
	if key == "" {
		return ErrInvalidKey
	}

	if uint32(len(toUTF16(key))) > t.l.keyWidth {
		return ErrKeyTooLong
	}

	return nil
}

func (t *Table) checkValue(value string) error {
	if uint32(len(toUTF16(value))) > t.l.valueWidth {
		return ErrValueTooLong
	}

	return nil
}

// Set upserts key to value. Returns [ErrTableFull] if the table has no
// free slot for a new key, [ErrKeyTooLong]/[ErrValueTooLong] if key/value
// exceed the table's configured widths, [ErrDeadlock] if bounded-timeout
// line-lock recovery (spec.md §4.4) could not make progress, or [ErrClosed]
// if [Table.Close] has already been called.
func (t *Table) Set(key, value string, opts ...Option) error {
	if t.closed.Load() {
		return ErrClosed
	}

	if err := t.checkKey(key); err != nil {
		return err
	}

	if err := t.checkValue(value); err != nil {
		return err
	}

	o := resolveOptions(opts)

	if o.lockWrite {
		_, _, err := t.chain().insert(key, value, farFuture())

		return err
	}

	acquireGateShared(t.buf)
	defer releaseGateShared(t.buf)

	c := t.chain()

	for attempt := 0; attempt < maxLineLockRetries; attempt++ {
		ok, restart, err := c.insert(key, value, time.Now().Add(defaultLineLockTimeout))
		if err != nil {
			return err
		}

		if ok {
			return nil
		}

		if !restart {
			return nil
		}

		time.Sleep(randomizedBackoff(attempt))
	}

	return ErrDeadlock
}

// Get returns key's value and true, or ("", false) if key is absent. Get
// never fails due to lock contention; it may suspend but always eventually
// completes (spec.md §6, §7).
func (t *Table) Get(key string, opts ...Option) (string, bool) {
	if key == "" || t.closed.Load() {
		return "", false
	}

	o := resolveOptions(opts)
	c := t.chain()

	if o.lockWrite {
		slot, found, _ := c.lookup(key, farFuture())
		if !found {
			return "", false
		}

		return readValueString(t.buf, t.l, slot), true
	}

	acquireGateShared(t.buf)
	defer releaseGateShared(t.buf)

	for {
		slot, found, timedOut := c.lookup(key, time.Now().Add(defaultLineLockTimeout))
		if timedOut {
			continue
		}

		if !found {
			return "", false
		}

		// The value is read under the slot's own momentary shared lock,
		// taken again here so the read is atomic with respect to a
		// concurrent Set overwriting the same slot (spec.md §4.5).
		if !acquireShared32(t.buf, t.l.lockWordOffset(slot), time.Now().Add(defaultLineLockTimeout)) {
			continue
		}

		value := readValueString(t.buf, t.l, slot)
		releaseShared32(t.buf, t.l.lockWordOffset(slot))

		return value, true
	}
}

// Has reports whether key is present, using the same lookup as [Table.Get].
func (t *Table) Has(key string, opts ...Option) bool {
	_, ok := t.Get(key, opts...)

	return ok
}

// Delete removes key if present; a no-op if absent. Triggers rechaining
// (spec.md §4.3).
func (t *Table) Delete(key string, opts ...Option) error {
	if t.closed.Load() {
		return ErrClosed
	}

	if key == "" {
		return ErrInvalidKey
	}

	o := resolveOptions(opts)
	c := t.chain()

	if o.lockWrite {
		c.remove(key)

		return nil
	}

	acquireGateExclusive(t.buf)
	defer releaseGateExclusive(t.buf)

	c.remove(key)

	return nil
}

// LockWrite acquires the table's global gate exclusively ("write-lockout",
// spec.md §4.4). Must be paired with [Table.UnlockWrite]. While held,
// concurrent Set/Delete/traversal calls from other callers block; calls
// from the lock-holding caller must pass [LockWrite] to skip re-acquiring
// the gate, or they will deadlock against themselves.
func (t *Table) LockWrite() {
	acquireGateExclusive(t.buf)
}

// UnlockWrite releases the exclusive gate taken by [Table.LockWrite],
// establishing a happens-before barrier for every Set/Delete started
// afterward (spec.md §5).
func (t *Table) UnlockWrite() {
	releaseGateExclusive(t.buf)
}

// Clear empties the table: every slot becomes unoccupied, size and the
// free-slot cursor reset to zero. Implies the exclusive gate (spec.md §4.5).
func (t *Table) Clear() {
	acquireGateExclusive(t.buf)
	defer releaseGateExclusive(t.buf)

	for s := uint32(0); s < t.l.capacity; s++ {
		clearSlot(t.buf, t.l, s)
	}

	setHeaderUint32(t.buf, offSize, 0)
	setHeaderUint32(t.buf, offFreeCursor, 0)
}

func farFuture() time.Time {
	return time.Now().Add(365 * 24 * time.Hour)
}
