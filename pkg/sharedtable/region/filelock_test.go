package region_test

import (
	"path/filepath"
	"testing"

	"github.com/calvinalkan/sharedtable/pkg/sharedtable/region"
)

func Test_TryLock_Returns_Not_Ok_When_Path_Is_Already_Locked(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "table.bin")

	held, err := region.Lock(path)
	if err != nil {
		t.Fatalf("Lock: %v", err)
	}

	defer held.Unlock()

	_, ok, err := region.TryLock(path)
	if err != nil {
		t.Fatalf("TryLock: %v", err)
	}

	if ok {
		t.Fatalf("TryLock while held: ok=true, want false")
	}
}

func Test_TryLock_Succeeds_After_Unlock(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "table.bin")

	held, err := region.Lock(path)
	if err != nil {
		t.Fatalf("Lock: %v", err)
	}

	if err := held.Unlock(); err != nil {
		t.Fatalf("Unlock: %v", err)
	}

	lock, ok, err := region.TryLock(path)
	if err != nil || !ok {
		t.Fatalf("TryLock after unlock: ok=%v, err=%v, want true,nil", ok, err)
	}

	if err := lock.Unlock(); err != nil {
		t.Fatalf("Unlock: %v", err)
	}
}

func Test_Unlock_Is_A_NoOp_After_The_First_Call(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "table.bin")

	lock, err := region.Lock(path)
	if err != nil {
		t.Fatalf("Lock: %v", err)
	}

	if err := lock.Unlock(); err != nil {
		t.Fatalf("Unlock: %v", err)
	}

	if err := lock.Unlock(); err != nil {
		t.Fatalf("Unlock second call: %v", err)
	}
}
