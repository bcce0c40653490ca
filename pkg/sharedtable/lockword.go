package sharedtable

import (
	"math/rand/v2"
	"sync/atomic"
	"time"
	"unsafe"
)

// Lock word encoding (spec.md §3, §4.4): 0 means unlocked, a positive value
// means exclusively (writer) held, a negative value is the (negated) count
// of current shared holders. This single encoding is shared by per-slot
// line locks (int32 words inside the slot array) and the table-wide gate
// (an int64 word in the header); both use the helpers below.
const (
	defaultLineLockTimeout = 4 * time.Millisecond
	maxBackoff             = 2 * time.Millisecond
)

// acquireShared32 attempts to take a shared hold on the int32 lock word at
// buf[off:off+4], retrying with a capped exponential backoff until
// deadline. Returns false if the deadline elapses first.
func acquireShared32(buf []byte, off int, deadline time.Time) bool {
	p := (*int32)(unsafe.Pointer(&buf[off]))
	backoff := time.Microsecond

	for {
		cur := atomic.LoadInt32(p)
		if cur <= 0 {
			if atomic.CompareAndSwapInt32(p, cur, cur-1) {
				return true
			}

			continue
		}

		if !sleepUntil(deadline, &backoff) {
			return false
		}
	}
}

func releaseShared32(buf []byte, off int) {
	p := (*int32)(unsafe.Pointer(&buf[off]))
	atomic.AddInt32(p, 1)
}

// acquireExclusive32 attempts to take the exclusive hold on the int32 lock
// word at buf[off:off+4].
func acquireExclusive32(buf []byte, off int, deadline time.Time) bool {
	p := (*int32)(unsafe.Pointer(&buf[off]))
	backoff := time.Microsecond

	for {
		if atomic.CompareAndSwapInt32(p, 0, 1) {
			return true
		}

		if !sleepUntil(deadline, &backoff) {
			return false
		}
	}
}

func releaseExclusive32(buf []byte, off int) {
	p := (*int32)(unsafe.Pointer(&buf[off]))
	atomic.StoreInt32(p, 0)
}

// The global gate (spec.md §4.4) uses the identical encoding as the line
// locks but as a 64-bit word so its holder count can never realistically
// overflow, and lives at a fixed header offset rather than per-slot.
//
// Unlike line locks, the gate is not part of the bounded-timeout deadlock
// recovery protocol — only line-lock acquisition gets a deadline and a
// restart-from-scratch on timeout (spec.md §4.4). The gate is acquired
// once per operation (once per slot step for Keys/Map/Reduce) and held for
// that operation's (or step's) whole duration,
// including across any number of internal line-lock retry restarts ("the
// global gate is held in shared mode across restarts to bound live-lock"),
// so its own acquisition simply blocks until available.

func acquireGateShared(buf []byte) {
	p := (*int64)(unsafe.Pointer(&buf[offGate]))
	backoff := time.Microsecond

	for {
		cur := atomic.LoadInt64(p)
		if cur <= 0 {
			if atomic.CompareAndSwapInt64(p, cur, cur-1) {
				return
			}

			continue
		}

		time.Sleep(backoff)

		backoff = nextBackoff(backoff)
	}
}

func releaseGateShared(buf []byte) {
	p := (*int64)(unsafe.Pointer(&buf[offGate]))
	atomic.AddInt64(p, 1)
}

func acquireGateExclusive(buf []byte) {
	p := (*int64)(unsafe.Pointer(&buf[offGate]))
	backoff := time.Microsecond

	for {
		if atomic.CompareAndSwapInt64(p, 0, 1) {
			return
		}

		time.Sleep(backoff)

		backoff = nextBackoff(backoff)
	}
}

func releaseGateExclusive(buf []byte) {
	p := (*int64)(unsafe.Pointer(&buf[offGate]))
	atomic.StoreInt64(p, 0)
}

func nextBackoff(cur time.Duration) time.Duration {
	cur *= 2
	if cur > maxBackoff {
		cur = maxBackoff
	}

	return cur
}

// sleepUntil sleeps for the current backoff (doubling it, capped at
// maxBackoff) and reports whether deadline has not yet passed. Suspension
// on contention is implemented this way — rather than an OS condvar —
// because the lock words live in a plain shared byte buffer that may be
// mapped into more than one OS process (region.Attach), where a
// process-local sync.Cond cannot be woken by another process.
func sleepUntil(deadline time.Time, backoff *time.Duration) bool {
	if !time.Now().Before(deadline) {
		return false
	}

	time.Sleep(*backoff)

	*backoff = nextBackoff(*backoff)

	return time.Now().Before(deadline)
}

// randomizedBackoff returns a jittered sleep duration used between
// deadlock-recovery restarts (spec.md §4.4: "waits a randomized backoff,
// and restarts from the beginning").
func randomizedBackoff(attempt int) time.Duration {
	base := time.Duration(attempt+1) * 200 * time.Microsecond
	if base > 5*time.Millisecond {
		base = 5 * time.Millisecond
	}

	jitter := time.Duration(rand.Int64N(int64(base) + 1))

	return base/2 + jitter/2
}
