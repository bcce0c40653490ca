package sharedtable_test

import (
	"testing"
	"unicode/utf16"

	"github.com/calvinalkan/sharedtable/pkg/sharedtable"
)

// allZeroHash sends every key to slot 0, forcing every insertion through the
// coalesced-chaining path described in spec.md §4.3.
func allZeroHash([]uint16) uint32 { return 0 }

func Test_Insert_Chains_Colliding_Keys_Behind_Their_Shared_Home(t *testing.T) {
	t.Parallel()

	tbl := newTable(t, 8, 8, 8, sharedtable.WithHash(allZeroHash))

	mustSet(t, tbl, "a", "1")
	mustSet(t, tbl, "b", "2")
	mustSet(t, tbl, "c", "3")

	if got, want := tbl.Length(), uint32(3); got != want {
		t.Fatalf("Length=%d, want=%d", got, want)
	}

	for key, want := range map[string]string{"a": "1", "b": "2", "c": "3"} {
		got, ok := tbl.Get(key)
		if !ok || got != want {
			t.Fatalf("Get(%s)=%q,%v, want=%q,true", key, got, ok, want)
		}
	}
}

func Test_Delete_Of_Home_Slot_Rechains_Successor_Into_Home(t *testing.T) {
	t.Parallel()

	tbl := newTable(t, 8, 8, 8, sharedtable.WithHash(allZeroHash))

	mustSet(t, tbl, "a", "1")
	mustSet(t, tbl, "b", "2")

	if err := tbl.Delete("a"); err != nil {
		t.Fatalf("Delete(a): %v", err)
	}

	got, ok := tbl.Get("b")
	if !ok || got != "2" {
		t.Fatalf("Get(b) after deleting home=%q,%v, want=2,true", got, ok)
	}

	if got, want := tbl.Length(), uint32(1); got != want {
		t.Fatalf("Length=%d, want=%d", got, want)
	}
}

func Test_Delete_Middle_Of_Chain_Preserves_Retrievability_Of_Remaining_Keys(t *testing.T) {
	t.Parallel()

	tbl := newTable(t, 16, 8, 8, sharedtable.WithHash(allZeroHash))

	keys := []string{"a", "b", "c", "d", "e"}
	for _, k := range keys {
		mustSet(t, tbl, k, k+k)
	}

	if err := tbl.Delete("c"); err != nil {
		t.Fatalf("Delete(c): %v", err)
	}

	if _, ok := tbl.Get("c"); ok {
		t.Fatalf("Get(c) found after delete")
	}

	for _, k := range []string{"a", "b", "d", "e"} {
		got, ok := tbl.Get(k)
		if !ok || got != k+k {
			t.Fatalf("Get(%s)=%q,%v, want=%q,true", k, got, ok, k+k)
		}
	}

	if got, want := tbl.Length(), uint32(len(keys)-1); got != want {
		t.Fatalf("Length=%d, want=%d", got, want)
	}
}

func Test_Insert_Evicts_Foreign_Occupant_Of_Home_Slot_And_Rechains_It(t *testing.T) {
	t.Parallel()

	// Fixed homes: "a" and "c" collide at home 0, "b"'s home is 1. "c" gets
	// placed into slot 1 as overflow from "a"'s chain before "b" is ever
	// inserted, so inserting "b" must evict "c" out of its home slot 1 and
	// rechain it behind "a" at home 0 (spec.md §4.3 case 3).
	homes := map[string]uint32{"a": 0, "c": 0, "b": 1}
	hash := func(units []uint16) uint32 {
		return homes[string(utf16.Decode(units))]
	}

	tbl := newTable(t, 8, 8, 8, sharedtable.WithHash(hash))

	mustSet(t, tbl, "a", "1")
	mustSet(t, tbl, "c", "2")
	mustSet(t, tbl, "b", "3")

	for key, want := range map[string]string{"a": "1", "c": "2", "b": "3"} {
		got, ok := tbl.Get(key)
		if !ok || got != want {
			t.Fatalf("Get(%s)=%q,%v, want=%q,true", key, got, ok, want)
		}
	}

	if got, want := tbl.Length(), uint32(3); got != want {
		t.Fatalf("Length=%d, want=%d", got, want)
	}
}
