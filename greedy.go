package smap

import (
	"fmt"
	"runtime"
)

// GreedyManager maps each file into a single region covering the whole
// file. It never tiles: callers who know their files fit into address space
// pay no region lookup cost per access.
//
// A positive WithWindowSize acts as a file-size limit; files exceeding it
// are refused. Use a TilingManager for such files.
type GreedyManager struct {
	*manager
}

var _ Manager = (*GreedyManager)(nil)

// NewGreedyManager creates a manager that maps files whole.
//
// By default there is no memory budget beyond the sum of open file sizes;
// WithMaxMemorySize turns the budget on, in which case whole unused files
// are evicted LRU-first like any other region.
func NewGreedyManager(opts ...Option) *GreedyManager {
	o := applyOptions(opts)
	if o.maxMemorySize == 0 {
		o.maxMemorySize = 1<<63 - 1
	}
	core := newManager(o)
	core.alloc = &greedyAlloc{m: core}

	g := &GreedyManager{manager: core}
	runtime.AddCleanup(g, func(core *manager) { core.close() }, core)
	return g
}

// MakeCursor implements Manager.
func (g *GreedyManager) MakeCursor(path string, offset, size int64) (*FixedCursor, error) {
	return g.manager.makeCursor(g, path, offset, size)
}

// MakeSlidingCursor implements Manager. Greedy managers do not tile, so
// sliding cursors are refused.
func (g *GreedyManager) MakeSlidingCursor(path string, offset, size int64) (*SlidingCursor, error) {
	g.opts.metrics.RecordCursorOpen(true, ErrUnsupported)
	return nil, ErrUnsupported
}

// Collect implements Manager.
func (g *GreedyManager) Collect() int { return g.manager.collect() }

// Close implements Manager.
func (g *GreedyManager) Close() error { return g.manager.close() }

// RegionsForPath implements Manager.
func (g *GreedyManager) RegionsForPath(path string) []*Region {
	return g.manager.regionsForPath(path)
}

func (g *GreedyManager) String() string { return g.describe("GreedyManager") }

type greedyAlloc struct {
	m *manager
}

func (a *greedyAlloc) obtainRegion(fi *FileInfo, offset, size int64) (*Region, error) {
	m := a.m
	fsize := fi.Size()

	if ws := m.opts.windowSize; ws > 0 && fsize > ws {
		return nil, fmt.Errorf("%w: file size %d exceeds window size limit %d: %s",
			ErrOutOfMemory, fsize, ws, fi.Path())
	}

	if rs := m.rel.regionsFor(fi); len(rs) > 0 {
		r := rs[0]
		m.rel.hitRegion(r)
		return r, nil
	}

	return m.mapRegionWithRetry(fi, 0, fsize)
}
