package pargz

import "runtime"

// options holds the constructor configuration named in the
// specification's §1 ambient "Configuration" section: parallelism,
// chunk size, CRC32 toggle, and the GIL hook -- expressed as a
// functional-options struct rather than a raw config object, the
// ambient-stack decision SPEC_FULL.md section 1 records.
type options struct {
	parallelism  int
	chunkSize    int64
	crc32Enabled bool
	gilHook      func(func())
}

// Option configures a Reader at construction time.
type Option func(*options)

// WithParallelism sets the worker pool size. Values < 1 are treated as
// 1 (serial decode, per the specification's "parallelism must degrade
// gracefully to serial").
func WithParallelism(n int) Option {
	return func(o *options) { o.parallelism = n }
}

// WithChunkSize sets the distance, in compressed bytes, between the
// guessed start offsets of the chunks one batch decodes in parallel.
// The true chunk boundaries are wherever the Block Finder actually
// lands, not an exact multiple of this value.
func WithChunkSize(n int64) Option {
	return func(o *options) { o.chunkSize = n }
}

// WithCRC32 toggles footer CRC32/Adler-32 verification.
func WithCRC32(enabled bool) Option {
	return func(o *options) { o.crc32Enabled = enabled }
}

// WithGILHook installs a hook called around blocking waits on worker
// futures, per the specification's "a GIL-release hook is called
// around blocking waits so that Python bindings do not stall other
// threads." fn is the blocking call to run; hook must invoke it
// exactly once, such as CPython's Py_BEGIN_ALLOW_THREADS/END pair
// would around a C extension's blocking call.
func WithGILHook(hook func(func())) Option {
	return func(o *options) { o.gilHook = hook }
}

func defaultOptions() options {
	return options{
		parallelism:  runtime.GOMAXPROCS(0),
		chunkSize:    4 << 20,
		crc32Enabled: true,
		gilHook:      func(fn func()) { fn() },
	}
}

func resolveOptions(opts []Option) options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.parallelism < 1 {
		o.parallelism = 1
	}
	if o.chunkSize < 1 {
		o.chunkSize = 4 << 20
	}
	return o
}
