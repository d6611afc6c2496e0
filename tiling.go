package smap

import (
	"fmt"
	"runtime"
	"sort"
)

// TilingManager serves arbitrary byte ranges from a bounded pool of
// fixed-size, aligned regions. Multiple regions may be open for a single
// file; unused regions are evicted least recently used first once the
// memory or handle budget is hit.
type TilingManager struct {
	*manager
}

var _ Manager = (*TilingManager)(nil)

// NewTilingManager creates a manager that tiles files into windows of
// WithWindowSize bytes (default DefaultWindowSize) under a
// WithMaxMemorySize budget (default DefaultMaxMemorySize).
//
// The window size is kept as configured, including sub-page values; only
// region offsets are aligned to the mapping granularity.
func NewTilingManager(opts ...Option) *TilingManager {
	o := applyOptions(opts)
	if o.windowSize <= 0 {
		o.windowSize = DefaultWindowSize()
	}
	if o.maxMemorySize == 0 {
		o.maxMemorySize = DefaultMaxMemorySize()
	}
	core := newManager(o)
	core.alloc = &tilingAlloc{m: core}

	t := &TilingManager{manager: core}
	runtime.AddCleanup(t, func(core *manager) { core.close() }, core)
	return t
}

// WindowSize returns the effective region target size in bytes.
func (t *TilingManager) WindowSize() int64 { return t.opts.windowSize }

// MaxMemorySize returns the effective mapped-memory budget in bytes.
func (t *TilingManager) MaxMemorySize() int64 { return t.opts.maxMemorySize }

// MakeCursor implements Manager.
func (t *TilingManager) MakeCursor(path string, offset, size int64) (*FixedCursor, error) {
	return t.manager.makeCursor(t, path, offset, size)
}

// MakeSlidingCursor implements Manager.
func (t *TilingManager) MakeSlidingCursor(path string, offset, size int64) (*SlidingCursor, error) {
	return t.manager.makeSlidingCursor(t, path, offset, size)
}

// Collect implements Manager.
func (t *TilingManager) Collect() int { return t.manager.collect() }

// Close implements Manager.
func (t *TilingManager) Close() error { return t.manager.close() }

// RegionsForPath implements Manager.
func (t *TilingManager) RegionsForPath(path string) []*Region {
	return t.manager.regionsForPath(path)
}

func (t *TilingManager) String() string { return t.describe("TilingManager") }

type tilingAlloc struct {
	m *manager
}

// obtainRegion serves (offset, size) with an existing region when one covers
// the offset, and otherwise maps a new window: snapped towards its
// neighbors, aligned down to the mapping granularity, clamped against the
// right neighbor and EOF. When the window would leave a file tail of at
// most half a window unmapped, the tail is swallowed into the window so no
// tiny final region exists.
func (a *tilingAlloc) obtainRegion(fi *FileInfo, offset, size int64) (*Region, error) {
	m := a.m
	fsize := fi.Size()

	// Reuse any existing region covering the offset. Aligned regions may
	// overlap, so every candidate is checked.
	for _, r := range m.rel.regionsFor(fi) {
		if r.IncludesOfs(offset) {
			m.rel.hitRegion(r)
			return r, nil
		}
	}

	rlist := append([]*Region(nil), m.rel.regionsFor(fi)...)
	sort.Slice(rlist, func(i, j int) bool {
		if rlist[i].ofs != rlist[j].ofs {
			return rlist[i].ofs < rlist[j].ofs
		}
		return rlist[i].size < rlist[j].size
	})

	windowSize := m.opts.windowSize
	avail := min(fsize, windowSize)
	if 0 < size && size < avail {
		avail = size
	}

	left := mapWindow{}
	mid := mapWindow{ofs: offset, size: avail}
	right := mapWindow{ofs: fsize}

	// The insert position keeping rlist sorted by offset determines the
	// neighbors to snap towards.
	insertPos := sort.Search(len(rlist), func(i int) bool { return rlist[i].ofs > offset })
	if insertPos != len(rlist) {
		right = windowFromRegion(rlist[insertPos])
	}
	if insertPos != 0 {
		left = windowFromRegion(rlist[insertPos-1])
	}

	mid.extendLeftTo(left, windowSize)
	mid.extendRightTo(right, windowSize)
	mid.align()

	// Alignment may push the end past the right neighbor or EOF.
	if mid.ofsEnd() > right.ofs {
		mid.size = right.ofs - mid.ofs
	}

	// Swallow the tail: with no region to our right, a remaining file tail
	// of at most windowSize/2 is folded into this window.
	if insertPos == len(rlist) {
		if tail := fsize - mid.ofsEnd(); 0 < tail && tail <= windowSize/2 {
			mid.size = fsize - mid.ofs
		}
	}

	r, err := m.mapRegionWithRetry(fi, mid.ofs, mid.size)
	if err != nil {
		return nil, err
	}
	if !r.IncludesOfs(offset) {
		return nil, fmt.Errorf("smap: allocator produced %s not covering offset %d", r, offset)
	}
	return r, nil
}
