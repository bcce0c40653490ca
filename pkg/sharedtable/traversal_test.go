package sharedtable_test

import (
	"sort"
	"strconv"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/calvinalkan/sharedtable/pkg/sharedtable"
)

func Test_Keys_Yields_Every_Key_Present_Throughout_The_Scan(t *testing.T) {
	t.Parallel()

	tbl := newTable(t, 8, 8, 8)

	want := []string{"a", "b", "c"}
	for _, k := range want {
		mustSet(t, tbl, k, k)
	}

	var got []string

	for k := range tbl.Keys() {
		got = append(got, k)
	}

	sort.Strings(got)

	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("Keys() mismatch (-want +got):\n%s", diff)
	}
}

func Test_Keys_Stops_Early_When_Yield_Returns_False(t *testing.T) {
	t.Parallel()

	tbl := newTable(t, 8, 8, 8)
	mustSet(t, tbl, "a", "1")
	mustSet(t, tbl, "b", "2")
	mustSet(t, tbl, "c", "3")

	count := 0

	for range tbl.Keys() {
		count++

		if count == 1 {
			break
		}
	}

	if got, want := count, 1; got != want {
		t.Fatalf("visited=%d, want=%d", got, want)
	}
}

func Test_Map_Applies_Fn_To_Every_Value(t *testing.T) {
	t.Parallel()

	tbl := newTable(t, 8, 8, 8)
	mustSet(t, tbl, "a", "1")
	mustSet(t, tbl, "b", "2")

	results := tbl.Map(func(key, value string) any {
		n, _ := strconv.Atoi(value)

		return n * 10
	})

	sum := 0

	for _, r := range results {
		sum += r.(int)
	}

	if got, want := sum, 30; got != want {
		t.Fatalf("sum=%d, want=%d", got, want)
	}

	if got, want := len(results), 2; got != want {
		t.Fatalf("len(results)=%d, want=%d", got, want)
	}
}

func Test_Reduce_Folds_Over_Every_Entry(t *testing.T) {
	t.Parallel()

	tbl := newTable(t, 8, 8, 8)
	mustSet(t, tbl, "a", "1")
	mustSet(t, tbl, "b", "2")
	mustSet(t, tbl, "c", "3")

	sum := tbl.Reduce(func(acc any, key, value string) any {
		n, _ := strconv.Atoi(value)

		return acc.(int) + n
	}, 0)

	if got, want := sum, 6; got != want {
		t.Fatalf("sum=%v, want=%d", got, want)
	}
}

func Test_Reduce_Counting_Entries_Equals_Length_On_A_Quiescent_Table(t *testing.T) {
	t.Parallel()

	tbl := newTable(t, 16, 8, 8)

	for i := range 5 {
		mustSet(t, tbl, keyFor(i), "v")
	}

	count := tbl.Reduce(func(acc any, _, _ string) any {
		return acc.(int) + 1
	}, 0)

	if got, want := count, int(tbl.Length()); got != want {
		t.Fatalf("reduce count=%v, want=%d", got, want)
	}
}
