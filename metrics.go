package smap

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems like Prometheus.
type MetricsCollector interface {
	// RecordCursorOpen is called after each cursor creation attempt.
	// sliding distinguishes sliding from fixed cursors; err is nil on success.
	RecordCursorOpen(sliding bool, err error)

	// RecordCursorRelease is called when a cursor gives up its pin.
	RecordCursorRelease()

	// RecordRegionMap is called after each OS mapping attempt.
	// size is the mapped byte count, duration the time spent in the OS call.
	RecordRegionMap(size int64, duration time.Duration, err error)

	// RecordRegionUnmap is called after a region is released.
	// evicted is true when the release was forced by memory pressure rather
	// than Collect or Close.
	RecordRegionUnmap(size int64, evicted bool)

	// RecordCollect is called after each Collect run with the number of
	// regions freed.
	RecordCollect(freed int, duration time.Duration)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
// Use this when metrics collection is not needed.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordCursorOpen(bool, error)                 {}
func (NoopMetricsCollector) RecordCursorRelease()                         {}
func (NoopMetricsCollector) RecordRegionMap(int64, time.Duration, error)  {}
func (NoopMetricsCollector) RecordRegionUnmap(int64, bool)                {}
func (NoopMetricsCollector) RecordCollect(int, time.Duration)             {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	CursorOpens       atomic.Int64
	CursorOpenErrors  atomic.Int64
	SlidingOpens      atomic.Int64
	CursorReleases    atomic.Int64
	RegionMaps        atomic.Int64
	RegionMapErrors   atomic.Int64
	RegionMapNanos    atomic.Int64
	MappedBytesTotal  atomic.Int64
	RegionUnmaps      atomic.Int64
	Evictions         atomic.Int64
	CollectRuns       atomic.Int64
	CollectFreedTotal atomic.Int64
}

// RecordCursorOpen implements MetricsCollector.
func (b *BasicMetricsCollector) RecordCursorOpen(sliding bool, err error) {
	b.CursorOpens.Add(1)
	if sliding {
		b.SlidingOpens.Add(1)
	}
	if err != nil {
		b.CursorOpenErrors.Add(1)
	}
}

// RecordCursorRelease implements MetricsCollector.
func (b *BasicMetricsCollector) RecordCursorRelease() {
	b.CursorReleases.Add(1)
}

// RecordRegionMap implements MetricsCollector.
func (b *BasicMetricsCollector) RecordRegionMap(size int64, duration time.Duration, err error) {
	b.RegionMaps.Add(1)
	b.RegionMapNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.RegionMapErrors.Add(1)
		return
	}
	b.MappedBytesTotal.Add(size)
}

// RecordRegionUnmap implements MetricsCollector.
func (b *BasicMetricsCollector) RecordRegionUnmap(size int64, evicted bool) {
	b.RegionUnmaps.Add(1)
	if evicted {
		b.Evictions.Add(1)
	}
}

// RecordCollect implements MetricsCollector.
func (b *BasicMetricsCollector) RecordCollect(freed int, duration time.Duration) {
	b.CollectRuns.Add(1)
	b.CollectFreedTotal.Add(int64(freed))
}

// BasicMetricsStats is a snapshot of a BasicMetricsCollector.
type BasicMetricsStats struct {
	CursorOpens       int64
	CursorOpenErrors  int64
	SlidingOpens      int64
	CursorReleases    int64
	RegionMaps        int64
	RegionMapErrors   int64
	MappedBytesTotal  int64
	RegionUnmaps      int64
	Evictions         int64
	CollectRuns       int64
	CollectFreedTotal int64
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		CursorOpens:       b.CursorOpens.Load(),
		CursorOpenErrors:  b.CursorOpenErrors.Load(),
		SlidingOpens:      b.SlidingOpens.Load(),
		CursorReleases:    b.CursorReleases.Load(),
		RegionMaps:        b.RegionMaps.Load(),
		RegionMapErrors:   b.RegionMapErrors.Load(),
		MappedBytesTotal:  b.MappedBytesTotal.Load(),
		RegionUnmaps:      b.RegionUnmaps.Load(),
		Evictions:         b.Evictions.Load(),
		CollectRuns:       b.CollectRuns.Load(),
		CollectFreedTotal: b.CollectFreedTotal.Load(),
	}
}
