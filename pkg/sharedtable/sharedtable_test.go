package sharedtable_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/calvinalkan/sharedtable/pkg/sharedtable"
)

func Test_New_Returns_ErrIncompatible_When_Capacity_Is_Zero(t *testing.T) {
	t.Parallel()

	_, err := sharedtable.New(0, 8, 8)

	if got, want := err, sharedtable.ErrIncompatible; !errors.Is(got, want) {
		t.Fatalf("err=%v, want wrapping %v", got, want)
	}
}

func Test_Set_Get_RoundTrips_A_Value(t *testing.T) {
	t.Parallel()

	tbl := newTable(t, 8, 8, 8)

	if err := tbl.Set("a", "1"); err != nil {
		t.Fatalf("Set: %v", err)
	}

	got, ok := tbl.Get("a")
	if !ok {
		t.Fatalf("Get(a): not found")
	}

	if want := "1"; got != want {
		t.Fatalf("Get(a)=%q, want=%q", got, want)
	}
}

func Test_Set_Overwrites_Existing_Key_Without_Changing_Size(t *testing.T) {
	t.Parallel()

	tbl := newTable(t, 8, 8, 8)

	mustSet(t, tbl, "a", "1")

	if got, want := tbl.Length(), uint32(1); got != want {
		t.Fatalf("Length=%d, want=%d", got, want)
	}

	mustSet(t, tbl, "a", "2")

	if got, want := tbl.Length(), uint32(1); got != want {
		t.Fatalf("Length after overwrite=%d, want=%d", got, want)
	}

	got, _ := tbl.Get("a")
	if want := "2"; got != want {
		t.Fatalf("Get(a) after overwrite=%q, want=%q", got, want)
	}
}

func Test_Get_Returns_Not_Found_When_Key_Absent(t *testing.T) {
	t.Parallel()

	tbl := newTable(t, 8, 8, 8)

	_, ok := tbl.Get("missing")
	if ok {
		t.Fatalf("Get(missing) found, want not found")
	}
}

func Test_Has_Matches_Get_Presence(t *testing.T) {
	t.Parallel()

	tbl := newTable(t, 8, 8, 8)
	mustSet(t, tbl, "a", "1")

	if !tbl.Has("a") {
		t.Fatalf("Has(a)=false, want=true")
	}

	if tbl.Has("b") {
		t.Fatalf("Has(b)=true, want=false")
	}
}

func Test_Delete_Removes_Key_And_Decrements_Size(t *testing.T) {
	t.Parallel()

	tbl := newTable(t, 8, 8, 8)
	mustSet(t, tbl, "a", "1")
	mustSet(t, tbl, "b", "2")

	if err := tbl.Delete("a"); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	if got, want := tbl.Length(), uint32(1); got != want {
		t.Fatalf("Length after delete=%d, want=%d", got, want)
	}

	if _, ok := tbl.Get("a"); ok {
		t.Fatalf("Get(a) found after delete")
	}

	if got, ok := tbl.Get("b"); !ok || got != "2" {
		t.Fatalf("Get(b)=%q,%v, want=2,true", got, ok)
	}
}

func Test_Delete_Is_A_NoOp_When_Key_Already_Absent(t *testing.T) {
	t.Parallel()

	tbl := newTable(t, 8, 8, 8)
	mustSet(t, tbl, "a", "1")

	if err := tbl.Delete("a"); err != nil {
		t.Fatalf("first Delete: %v", err)
	}

	if got, want := tbl.Length(), uint32(0); got != want {
		t.Fatalf("Length after first delete=%d, want=%d", got, want)
	}

	if err := tbl.Delete("a"); err != nil {
		t.Fatalf("second Delete: %v", err)
	}

	if got, want := tbl.Length(), uint32(0); got != want {
		t.Fatalf("Length after second delete=%d, want=%d", got, want)
	}
}

func Test_Delete_Returns_ErrInvalidKey_For_Empty_Key(t *testing.T) {
	t.Parallel()

	tbl := newTable(t, 8, 8, 8)

	if err := tbl.Delete(""); !errors.Is(err, sharedtable.ErrInvalidKey) {
		t.Fatalf("err=%v, want=%v", err, sharedtable.ErrInvalidKey)
	}
}

func Test_Set_Returns_ErrInvalidKey_For_Empty_Key(t *testing.T) {
	t.Parallel()

	tbl := newTable(t, 8, 8, 8)

	if err := tbl.Set("", "v"); !errors.Is(err, sharedtable.ErrInvalidKey) {
		t.Fatalf("err=%v, want=%v", err, sharedtable.ErrInvalidKey)
	}
}

func Test_Set_Returns_ErrKeyTooLong_When_Key_Exceeds_Width(t *testing.T) {
	t.Parallel()

	tbl := newTable(t, 8, 4, 8)

	if err := tbl.Set(strings.Repeat("k", 4), "v"); err != nil {
		t.Fatalf("Set at exactly K: %v", err)
	}

	if err := tbl.Set(strings.Repeat("k", 5), "v"); !errors.Is(err, sharedtable.ErrKeyTooLong) {
		t.Fatalf("err=%v, want=%v", err, sharedtable.ErrKeyTooLong)
	}
}

func Test_Set_Returns_ErrValueTooLong_When_Value_Exceeds_Width(t *testing.T) {
	t.Parallel()

	tbl := newTable(t, 8, 8, 4)

	if err := tbl.Set("k", strings.Repeat("v", 5)); !errors.Is(err, sharedtable.ErrValueTooLong) {
		t.Fatalf("err=%v, want=%v", err, sharedtable.ErrValueTooLong)
	}
}

func Test_Set_Returns_ErrTableFull_When_Inserting_NPlus1th_Distinct_Key(t *testing.T) {
	t.Parallel()

	const n = 4
	tbl := newTable(t, n, 8, 8)

	for i := range n {
		mustSet(t, tbl, keyFor(i), "v")
	}

	if got, want := tbl.Length(), uint32(n); got != want {
		t.Fatalf("Length=%d, want=%d", got, want)
	}

	if err := tbl.Set(keyFor(n), "v"); !errors.Is(err, sharedtable.ErrTableFull) {
		t.Fatalf("err=%v, want=%v", err, sharedtable.ErrTableFull)
	}
}

func Test_Fill_Then_Delete_All_Then_Refill_Succeeds(t *testing.T) {
	t.Parallel()

	const n = 6
	tbl := newTable(t, n, 8, 8)

	for i := range n {
		mustSet(t, tbl, keyFor(i), "v")
	}

	for i := range n {
		if err := tbl.Delete(keyFor(i)); err != nil {
			t.Fatalf("Delete(%s): %v", keyFor(i), err)
		}
	}

	if got, want := tbl.Length(), uint32(0); got != want {
		t.Fatalf("Length after draining=%d, want=%d", got, want)
	}

	for i := range n {
		if err := tbl.Set(keyFor(i), "v2"); err != nil {
			t.Fatalf("refill Set(%s): %v", keyFor(i), err)
		}
	}

	if got, want := tbl.Length(), uint32(n); got != want {
		t.Fatalf("Length after refill=%d, want=%d", got, want)
	}
}

func Test_Clear_Empties_The_Table(t *testing.T) {
	t.Parallel()

	tbl := newTable(t, 8, 8, 8)
	mustSet(t, tbl, "a", "1")
	mustSet(t, tbl, "b", "2")

	tbl.Clear()

	if got, want := tbl.Length(), uint32(0); got != want {
		t.Fatalf("Length after Clear=%d, want=%d", got, want)
	}

	if _, ok := tbl.Get("a"); ok {
		t.Fatalf("Get(a) found after Clear")
	}

	if err := tbl.Set("a", "3"); err != nil {
		t.Fatalf("Set after Clear: %v", err)
	}
}

func Test_LockWrite_Blocks_Concurrent_Writers_Until_UnlockWrite(t *testing.T) {
	t.Parallel()

	tbl := newTable(t, 8, 8, 8)

	tbl.LockWrite()

	done := make(chan struct{})

	go func() {
		defer close(done)

		if err := tbl.Set("a", "1"); err != nil {
			t.Errorf("blocked Set: %v", err)
		}
	}()

	select {
	case <-done:
		t.Fatalf("Set returned before UnlockWrite")
	default:
	}

	// Caller-scoped override: the lock holder may still operate by passing
	// LockWrite, which skips the gate it already holds.
	if err := tbl.Set("held", "v", sharedtable.LockWrite()); err != nil {
		t.Fatalf("Set with LockWrite option: %v", err)
	}

	tbl.UnlockWrite()

	<-done

	if _, ok := tbl.Get("a"); !ok {
		t.Fatalf("Get(a) not found after writer unblocked")
	}
}

func Test_Attach_Reconstructs_Capacity_From_Header(t *testing.T) {
	t.Parallel()

	tbl := newTable(t, 16, 8, 8)
	mustSet(t, tbl, "a", "1")

	attached, err := sharedtable.Attach(tbl.Buffer())
	if err != nil {
		t.Fatalf("Attach: %v", err)
	}

	got, ok := attached.Get("a")
	if !ok || got != "1" {
		t.Fatalf("Get(a) on attached view=%q,%v, want=1,true", got, ok)
	}
}

func Test_Attach_Returns_ErrIncompatible_For_Foreign_Buffer(t *testing.T) {
	t.Parallel()

	_, err := sharedtable.Attach(make([]byte, 128))
	if !errors.Is(err, sharedtable.ErrIncompatible) {
		t.Fatalf("err=%v, want=%v", err, sharedtable.ErrIncompatible)
	}
}

func Test_Close_Causes_Set_And_Delete_To_Return_ErrClosed(t *testing.T) {
	t.Parallel()

	tbl := newTable(t, 8, 8, 8)
	mustSet(t, tbl, "a", "1")

	if err := tbl.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if err := tbl.Set("b", "2"); !errors.Is(err, sharedtable.ErrClosed) {
		t.Fatalf("Set after Close: err=%v, want=%v", err, sharedtable.ErrClosed)
	}

	if err := tbl.Delete("a"); !errors.Is(err, sharedtable.ErrClosed) {
		t.Fatalf("Delete after Close: err=%v, want=%v", err, sharedtable.ErrClosed)
	}

	if _, ok := tbl.Get("a"); ok {
		t.Fatalf("Get after Close: found=true, want false")
	}
}

func Test_Close_Is_Idempotent(t *testing.T) {
	t.Parallel()

	tbl := newTable(t, 8, 8, 8)

	if err := tbl.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if err := tbl.Close(); err != nil {
		t.Fatalf("Close second call: %v", err)
	}
}

func newTable(t *testing.T, n, k, v uint32, opts ...sharedtable.ConfigOption) *sharedtable.Table {
	t.Helper()

	tbl, err := sharedtable.New(n, k, v, opts...)
	if err != nil {
		t.Fatalf("New(%d,%d,%d): %v", n, k, v, err)
	}

	return tbl
}

func mustSet(t *testing.T, tbl *sharedtable.Table, key, value string) {
	t.Helper()

	if err := tbl.Set(key, value); err != nil {
		t.Fatalf("Set(%q,%q): %v", key, value, err)
	}
}

func keyFor(i int) string {
	return string(rune('a' + i))
}
