package smap

import (
	"math"
	"strconv"

	"github.com/hupe1980/smap/resource"
)

const mbInBytes = 1 << 20

// is64Bit reports whether the build targets a 64-bit architecture.
// Otherwise it can be assumed to be 32-bit.
const is64Bit = strconv.IntSize == 64

// DefaultWindowSize returns the default tiling window size: 64 MiB on 64-bit
// platforms, 16 MiB on 32-bit platforms.
func DefaultWindowSize() int64 {
	if is64Bit {
		return 64 * mbInBytes
	}
	return 16 * mbInBytes
}

// DefaultMaxMemorySize returns the default mapped-memory budget: 8 GiB on
// 64-bit platforms, 1 GiB on 32-bit platforms.
func DefaultMaxMemorySize() int64 {
	if is64Bit {
		return 8192 * mbInBytes
	}
	return 1024 * mbInBytes
}

type options struct {
	windowSize     int64
	maxMemorySize  int64
	maxOpenHandles int
	openFlags      int
	mmapRetries    int
	logger         *Logger
	metrics        MetricsCollector
	rc             *resource.Controller
}

// Option configures a manager.
type Option func(*options)

// WithWindowSize sets the target region size in bytes for tiling managers.
//
// For greedy managers a positive value acts as a file-size limit: files
// larger than the window are refused. Zero keeps the per-flavor default
// (platform default for tiling, unlimited for greedy).
func WithWindowSize(n int64) Option {
	return func(o *options) { o.windowSize = n }
}

// WithMaxMemorySize sets the upper bound on the summed size of all live
// regions. Allocations exceeding it evict unused regions, least recently
// used first, and fail with ErrOutOfMemory once nothing is evictable.
func WithMaxMemorySize(n int64) Option {
	return func(o *options) { o.maxMemorySize = n }
}

// WithMaxOpenHandles sets the upper bound on the number of live regions.
// The default is effectively unbounded.
func WithMaxOpenHandles(n int) Option {
	return func(o *options) { o.maxOpenHandles = n }
}

// WithOpenFlags sets additional flags passed to os.OpenFile when a file is
// first opened for mapping (e.g. syscall.O_NOFOLLOW). Has no effect on
// files the manager already tracks.
func WithOpenFlags(flags int) Option {
	return func(o *options) { o.openFlags = flags }
}

// WithMmapRetries sets how often a failed OS mapping call is retried after
// evicting unused regions, before ErrOutOfMemory surfaces.
func WithMmapRetries(n int) Option {
	return func(o *options) { o.mmapRetries = n }
}

// WithLogger configures structured logging. If nil is passed, logging is
// disabled.
func WithLogger(l *Logger) Option {
	return func(o *options) {
		if l == nil {
			l = NoopLogger()
		}
		o.logger = l
	}
}

// WithMetricsCollector configures a metrics collector for monitoring region
// and cursor churn. Pass nil to disable metrics collection.
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		if mc == nil {
			mc = NoopMetricsCollector{}
		}
		o.metrics = mc
	}
}

// WithResourceController attaches a shared resource controller. The manager
// reserves mapped bytes against it and throttles Warm() page touching
// through its IO limiter. Several managers may share one controller to
// enforce a process-wide budget.
func WithResourceController(rc *resource.Controller) Option {
	return func(o *options) { o.rc = rc }
}

func applyOptions(opts []Option) options {
	o := options{
		maxOpenHandles: math.MaxInt,
		mmapRetries:    2,
		logger:         NoopLogger(),
		metrics:        NoopMetricsCollector{},
	}
	for _, fn := range opts {
		fn(&o)
	}
	return o
}
