package sharedtable_test

import (
	"errors"
	"testing"

	"github.com/calvinalkan/sharedtable/pkg/sharedtable"
)

func Test_Attach_Returns_ErrIncompatible_When_Buffer_Too_Short_For_Header(t *testing.T) {
	t.Parallel()

	_, err := sharedtable.Attach(make([]byte, 4))
	if !errors.Is(err, sharedtable.ErrIncompatible) {
		t.Fatalf("err=%v, want=%v", err, sharedtable.ErrIncompatible)
	}
}

func Test_Attach_Returns_ErrIncompatible_When_Header_Checksum_Is_Corrupted(t *testing.T) {
	t.Parallel()

	tbl := newTable(t, 8, 8, 8)
	buf := append([]byte(nil), tbl.Buffer()...)

	// Flip a bit inside the checksummed header prefix without recomputing
	// the CRC; a peer attaching must reject this rather than trust it.
	buf[8] ^= 0xFF

	if _, err := sharedtable.Attach(buf); !errors.Is(err, sharedtable.ErrIncompatible) {
		t.Fatalf("err=%v, want=%v", err, sharedtable.ErrIncompatible)
	}
}

func Test_Attach_Returns_ErrIncompatible_When_Buffer_Too_Short_For_Declared_Capacity(t *testing.T) {
	t.Parallel()

	tbl := newTable(t, 64, 32, 32)
	truncated := tbl.Buffer()[:len(tbl.Buffer())/2]

	if _, err := sharedtable.Attach(truncated); !errors.Is(err, sharedtable.ErrIncompatible) {
		t.Fatalf("err=%v, want=%v", err, sharedtable.ErrIncompatible)
	}
}
