// Package smap provides a sliced memory-map window manager for Go.
//
// Smap exposes byte ranges of on-disk files as zero-copy views ("cursors")
// while hiding the arithmetic of partitioning those files into OS-level
// memory mappings ("regions"), bounding total resident memory, and releasing
// mappings deterministically once no cursor references them.
//
// # Quick Start
//
// Tiling manager (bounded memory, fixed-size windows):
//
//	mman := smap.NewTilingManager()
//	defer mman.Close()
//
//	c, _ := mman.MakeCursor("big.pack", 0, 0) // size 0 == up to EOF
//	defer c.Close()
//	data := c.Buffer() // zero-copy view into the mapped file
//
// Greedy manager (one region per file, no tiling):
//
//	mman := smap.NewGreedyManager()
//	defer mman.Close()
//
// Sliding cursors hide region boundaries behind a single buffer-like
// surface; each random access silently re-homes the view:
//
//	sc, _ := mman.MakeSlidingCursor("big.pack", 0, 0)
//	b, _ := sc.ByteAt(-1)        // last byte of the file
//	p, _ := sc.Slice(100, 4196)  // may span two regions; contiguous result
//
// # Resource Model
//
// Regions are reference counted. A region pinned by at least one cursor is
// never unmapped; a region with no pins stays cached until memory or handle
// budgets force its eviction, least recently used first. Collect() releases
// all unused regions eagerly, Close() releases everything the manager owns.
//
// Managers are single-threaded by design and perform no locking. Use one
// manager per goroutine, or serialize access externally.
//
// # Memory Budgets
//
//	mman := smap.NewTilingManager(
//	    smap.WithWindowSize(64<<20),
//	    smap.WithMaxMemorySize(1<<30),
//	    smap.WithMaxOpenHandles(128),
//	)
//
// All mappings are read-only. Mutating a cursor buffer is undefined
// behavior.
package smap
