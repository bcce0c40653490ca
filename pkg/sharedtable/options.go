package sharedtable

// opOptions holds the per-call options every public [Table] operation
// accepts (spec.md §6: "set(key, value, {lockWrite?})" and friends).
type opOptions struct {
	lockWrite bool
}

// Option configures a single [Table] operation call.
type Option func(*opOptions)

// LockWrite declares that the caller has already acquired the table's
// global gate exclusively via [Table.LockWrite], and the operation should
// skip both the gate acquisition and all line locks — the held exclusive
// gate already serializes every other writer (spec.md §4.4, "caller-scoped
// override").
//
// Passing this option without actually holding the gate is undefined
// behavior: data races become possible, exactly as calling any mutex
// method without holding the mutex would be.
func LockWrite() Option {
	return func(o *opOptions) { o.lockWrite = true }
}

func resolveOptions(opts []Option) opOptions {
	var o opOptions
	for _, fn := range opts {
		fn(&o)
	}

	return o
}

// ConfigOption configures table construction.
type ConfigOption func(*config)

type config struct {
	hash HashFunc
}

func defaultConfig() config {
	return config{hash: MurmurHash2}
}

// WithHash overrides the default hash function ([MurmurHash2]) used to map
// keys to home slots. All peers attaching to the same buffer must agree on
// the hash function (spec.md §9) — it is a construction-time choice, not
// part of the persisted buffer.
func WithHash(fn HashFunc) ConfigOption {
	return func(c *config) { c.hash = fn }
}
