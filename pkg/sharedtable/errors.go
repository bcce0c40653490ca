package sharedtable

import "errors"

// Sentinel errors returned by [Table] operations. Callers should compare
// with [errors.Is], not direct equality.
var (
	// ErrTableFull is returned by Set when no free slot remains.
	ErrTableFull = errors.New("sharedtable: table full")

	// ErrKeyTooLong is returned when a key's UTF-16 code-unit length exceeds
	// the table's configured key width.
	ErrKeyTooLong = errors.New("sharedtable: key too long")

	// ErrValueTooLong is returned when a value's UTF-16 code-unit length
	// exceeds the table's configured value width.
	ErrValueTooLong = errors.New("sharedtable: value too long")

	// ErrInvalidKey is returned for the empty string key, which is reserved
	// as the empty-slot sentinel.
	ErrInvalidKey = errors.New("sharedtable: invalid key")

	// ErrDeadlock is returned when an operation's bounded-timeout line-lock
	// recovery loop exceeds its configured retry budget.
	ErrDeadlock = errors.New("sharedtable: deadlock recovery exhausted")

	// ErrClosed is returned by Set and Delete on a [Table] after
	// [Table.Close] has been called.
	ErrClosed = errors.New("sharedtable: table closed")

	// ErrIncompatible is returned by Attach when a raw buffer's header does
	// not describe a valid or matching table.
	ErrIncompatible = errors.New("sharedtable: incompatible buffer")
)
