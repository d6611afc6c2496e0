package smap

import (
	"fmt"
	"sync"
	"time"

	"github.com/hupe1980/smap/internal/mmap"
	"github.com/hupe1980/smap/resource"
)

// Manager creates and manages window handles (regions and cursors) for
// memory-mapped files.
//
// Managers are single-threaded: no locking is performed and concurrent use
// from multiple goroutines is not supported. Re-entrant use on one goroutine
// is fine. Always Close a manager when done; Close is idempotent and safe to
// defer at acquisition time.
type Manager interface {
	// MakeCursor returns a fixed cursor over [offset, offset+size) of the
	// file at path. size 0 means "as much as possible from offset to EOF".
	// The cursor may cover less than requested when the range crosses the
	// backing region's end; chain NextCursor to continue.
	MakeCursor(path string, offset, size int64) (*FixedCursor, error)

	// MakeSlidingCursor returns a sliding cursor over [offset, offset+size)
	// of the file at path. size 0 means "up to EOF". Managers that do not
	// tile return ErrUnsupported.
	MakeSlidingCursor(path string, offset, size int64) (*SlidingCursor, error)

	// Collect releases all regions no cursor is pinning and returns the
	// number of regions freed.
	Collect() int

	// Close releases every cursor this manager issued that is still open,
	// unmaps every region and closes every file descriptor. It never fails;
	// unmap errors are logged and swallowed. Subsequent calls are no-ops.
	Close() error

	// Closed reports whether Close has run.
	Closed() bool

	// RegionsForPath returns the live regions mapped over the file at path,
	// most recently used first. Intended for diagnostics.
	RegionsForPath(path string) []*Region

	// NumOpenRegions returns the number of live regions, used or unused.
	NumOpenRegions() int
	// NumUsedRegions returns the number of live regions with at least one
	// cursor pinning them.
	NumUsedRegions() int
	// NumOpenCursors returns the number of cursors in state open. Sliding
	// cursors stay open until the manager closes, even after Close was
	// requested on them.
	NumOpenCursors() int
	// NumOpenFiles returns the number of files that live regions exist for.
	NumOpenFiles() int
	// MappedMemorySize returns the summed size of all live regions.
	MappedMemorySize() int64
	// MaxMappedMemorySize returns the peak of MappedMemorySize over the
	// manager's lifetime.
	MaxMappedMemorySize() int64
	// MaxFileHandles returns the peak of NumOpenRegions over the manager's
	// lifetime; every region holds one OS mapping handle.
	MaxFileHandles() int
}

// regionAllocator is the per-flavor policy for serving a byte range with a
// region. offset has been validated against the file size by the caller.
type regionAllocator interface {
	obtainRegion(fi *FileInfo, offset, size int64) (*Region, error)
}

// manager is the shared core embedded by both flavors: file-info interning,
// the relation index, resource accounting and the cursor factory.
type manager struct {
	opts   options
	alloc  regionAllocator
	rel    *relation
	finfos map[string]*FileInfo
	rc     *resource.Controller
	closed bool

	mappedSize    int64
	maxMappedSize int64
	maxHandles    int

	// Cursors collected by the runtime without an explicit release land
	// here; the manager drains the list on its own goroutine at the next
	// operation. This is the only state touched off-thread.
	leakedMu sync.Mutex
	leaked   []*token
}

func newManager(opts options) *manager {
	if opts.rc == nil {
		opts.rc = resource.NewController(resource.Config{})
	}
	return &manager{
		opts:   opts,
		rel:    newRelation(),
		finfos: make(map[string]*FileInfo),
		rc:     opts.rc,
	}
}

// open interns the FileInfo for path, opening the file on first use.
func (m *manager) open(path string) (*FileInfo, error) {
	path = canonicalPath(path)
	if fi, ok := m.finfos[path]; ok {
		return fi, nil
	}
	fi, err := openFileInfo(path, m.opts.openFlags)
	if err != nil {
		return nil, err
	}
	m.finfos[path] = fi
	return fi, nil
}

// makeCursor implements Manager.MakeCursor. owner is the public wrapper the
// cursor must keep reachable so the wrapper's cleanup cannot fire while
// cursors are live.
func (m *manager) makeCursor(owner Manager, path string, offset, size int64) (c *FixedCursor, err error) {
	defer func() { m.opts.metrics.RecordCursorOpen(false, err) }()

	if m.closed {
		return nil, ErrClosed
	}
	m.drainLeaked()

	if offset < 0 {
		return nil, outOfRange(path, offset, -1)
	}
	fi, err := m.open(path)
	if err != nil {
		return nil, err
	}
	if offset >= fi.size {
		return nil, outOfRange(fi.path, offset, fi.size)
	}

	r, err := m.alloc.obtainRegion(fi, offset, size)
	if err != nil {
		return nil, err
	}

	avail := r.OfsEnd() - offset
	if 0 < size && size < avail {
		avail = size
	}

	c = newFixedCursor(owner, m, fi, offset, avail)
	m.rel.addOpen(c.tok)
	if err := m.rel.bindCursor(c.tok, r); err != nil {
		// Unwind the partially constructed cursor; a freshly mapped region
		// stays cached and is reclaimed by Collect or eviction.
		m.rel.closeCursor(c.tok)
		c.stop()
		return nil, err
	}
	return c, nil
}

// makeSlidingCursor implements Manager.MakeSlidingCursor for tiling
// managers; greedy managers reject in their wrapper. owner is the public
// wrapper the cursor must keep reachable.
func (m *manager) makeSlidingCursor(owner Manager, path string, offset, size int64) (c *SlidingCursor, err error) {
	defer func() { m.opts.metrics.RecordCursorOpen(true, err) }()

	if m.closed {
		return nil, ErrClosed
	}
	m.drainLeaked()

	if offset < 0 {
		return nil, outOfRange(path, offset, -1)
	}
	fi, err := m.open(path)
	if err != nil {
		return nil, err
	}
	if offset >= fi.size {
		return nil, outOfRange(fi.path, offset, fi.size)
	}

	avail := fi.size - offset
	if 0 < size && size < avail {
		avail = size
	}

	c = newSlidingCursor(owner, m, fi, offset, avail)
	m.rel.addOpen(c.tok)
	return c, nil
}

// releaseToken drops tok's pin and removes it from the open set.
// Strict: releasing twice is an error.
func (m *manager) releaseToken(tok *token) error {
	if m.closed {
		return ErrClosed
	}
	if !m.rel.isOpen(tok) {
		return ErrAlreadyReleased
	}
	m.rel.closeCursor(tok)
	m.opts.metrics.RecordCursorRelease()
	return nil
}

func (m *manager) isTokenOpen(tok *token) bool {
	if m.closed {
		return false
	}
	return m.rel.isOpen(tok)
}

// noteLeaked is invoked by runtime cleanups; the only method safe to call
// off the manager's goroutine.
func (m *manager) noteLeaked(tok *token) {
	m.leakedMu.Lock()
	m.leaked = append(m.leaked, tok)
	m.leakedMu.Unlock()
}

// drainLeaked releases pins of cursors the runtime collected, on the
// manager's own goroutine so counters stay deterministic.
func (m *manager) drainLeaked() {
	m.leakedMu.Lock()
	toks := m.leaked
	m.leaked = nil
	m.leakedMu.Unlock()

	for _, tok := range toks {
		if !m.rel.isOpen(tok) {
			continue
		}
		m.opts.logger.LogCursorLeaked(tok.finfo.Path())
		m.rel.closeCursor(tok)
		m.opts.metrics.RecordCursorRelease()
	}
}

// reserve makes room for a region of the given size, evicting unused
// regions least recently used first until the memory and handle budgets and
// the resource controller all admit it.
func (m *manager) reserve(size int64) error {
	for {
		overBudget := m.mappedSize+size > m.opts.maxMemorySize ||
			m.rel.numOpenRegions() >= m.opts.maxOpenHandles
		if !overBudget && m.rc.TryAcquireMemory(size) {
			return nil
		}
		if m.purgeOneUnused() == 0 {
			return fmt.Errorf("%w: cannot map %d bytes (mapped=%d, max=%d, regions=%d)",
				ErrOutOfMemory, size, m.mappedSize, m.opts.maxMemorySize, m.rel.numOpenRegions())
		}
	}
}

// openRegion maps [ofs, ofs+size) of fi and indexes the region. The caller
// holds a matching resource reservation and releases it on error.
func (m *manager) openRegion(fi *FileInfo, ofs, size int64) (*Region, error) {
	start := time.Now()
	mp, err := mmap.Map(fi.f, ofs, size)
	m.opts.metrics.RecordRegionMap(size, time.Since(start), err)
	if err != nil {
		return nil, err
	}

	r := &Region{finfo: fi, ofs: ofs, size: size, m: mp}
	if err := m.rel.putRegion(r); err != nil {
		mp.Close()
		return nil, err
	}

	m.mappedSize += size
	if m.mappedSize > m.maxMappedSize {
		m.maxMappedSize = m.mappedSize
	}
	if n := m.rel.numOpenRegions(); n > m.maxHandles {
		m.maxHandles = n
	}
	m.opts.logger.LogRegionMapped(fi.Path(), ofs, size)
	return r, nil
}

// mapRegionWithRetry reserves budget and maps the range, evicting all
// unused regions and retrying a bounded number of times when the OS mapping
// call itself fails (commonly address-space exhaustion on 32-bit).
func (m *manager) mapRegionWithRetry(fi *FileInfo, ofs, size int64) (*Region, error) {
	for attempt := 0; ; attempt++ {
		if err := m.reserve(size); err != nil {
			return nil, err
		}
		r, err := m.openRegion(fi, ofs, size)
		if err == nil {
			return r, nil
		}
		m.rc.ReleaseMemory(size)

		if attempt >= m.opts.mmapRetries {
			return nil, fmt.Errorf("%w: mmap kept failing: %v", ErrOutOfMemory, err)
		}
		m.opts.logger.LogMmapRetry(fi.Path(), ofs, size, attempt+1, err)
		if m.purgeLRURegions(true) == 0 {
			return nil, fmt.Errorf("%w: mmap failed with nothing left to evict: %v", ErrOutOfMemory, err)
		}
	}
}

// releaseRegion unmaps r and removes it from the index. Unmap errors are
// logged and swallowed; the region is gone either way.
func (m *manager) releaseRegion(r *Region, evicted bool) {
	if err := m.rel.takeRegion(r); err != nil {
		m.opts.logger.Error("region index corrupt", "error", err)
		return
	}
	err := r.unmap()
	m.opts.logger.LogRegionReleased(r.finfo.Path(), r.ofs, r.size, err)
	m.mappedSize -= r.size
	m.rc.ReleaseMemory(r.size)
	m.opts.metrics.RecordRegionUnmap(r.size, evicted)
}

// purgeOneUnused evicts the least recently used unused region.
// Returns the number of regions freed (0 or 1).
func (m *manager) purgeOneUnused() int {
	for elem := m.rel.lru.Back(); elem != nil; elem = elem.Prev() {
		r := elem.Value.(*Region)
		if r.clientCount > 0 {
			continue
		}
		m.releaseRegion(r, true)
		return 1
	}
	return 0
}

// purgeLRURegions releases every region with no clients. evicted tells the
// metrics collector whether memory pressure forced the release.
// Returns the number of regions freed.
func (m *manager) purgeLRURegions(evicted bool) int {
	freed := 0
	for _, r := range m.rel.lruUnused() {
		m.releaseRegion(r, evicted)
		freed++
	}
	return freed
}

func (m *manager) collect() int {
	if m.closed {
		return 0
	}
	m.drainLeaked()
	start := time.Now()
	freed := m.purgeLRURegions(false)
	m.opts.metrics.RecordCollect(freed, time.Since(start))
	return freed
}

func (m *manager) close() error {
	if m.closed {
		return nil
	}
	m.drainLeaked()

	openCursors := m.rel.numOpenCursors()
	for _, tok := range m.rel.openTokens() {
		m.rel.closeCursor(tok)
	}

	errs := 0
	openRegions := m.rel.numOpenRegions()
	for _, r := range m.rel.regions() {
		if err := m.rel.takeRegion(r); err != nil {
			errs++
			continue
		}
		if err := r.unmap(); err != nil {
			m.opts.logger.LogRegionReleased(r.finfo.Path(), r.ofs, r.size, err)
			errs++
		}
		m.mappedSize -= r.size
		m.rc.ReleaseMemory(r.size)
		m.opts.metrics.RecordRegionUnmap(r.size, false)
	}

	for _, fi := range m.finfos {
		if err := fi.close(); err != nil {
			m.opts.logger.Warn("closing file failed", "path", fi.Path(), "error", err)
		}
	}
	m.finfos = nil
	m.closed = true

	m.opts.logger.LogClose(openCursors, openRegions, errs)
	return nil
}

func (m *manager) regionsForPath(path string) []*Region {
	if m.closed {
		return nil
	}
	fi, ok := m.finfos[canonicalPath(path)]
	if !ok {
		return nil
	}
	var out []*Region
	for _, r := range m.rel.regions() {
		if r.finfo == fi {
			out = append(out, r)
		}
	}
	return out
}

func (m *manager) Closed() bool            { return m.closed }
func (m *manager) NumOpenRegions() int     { return m.rel.numOpenRegions() }
func (m *manager) NumUsedRegions() int     { return m.rel.numUsedRegions() }
func (m *manager) NumOpenCursors() int     { return m.rel.numOpenCursors() }
func (m *manager) NumOpenFiles() int       { return len(m.rel.byFile) }
func (m *manager) MappedMemorySize() int64 { return m.mappedSize }
func (m *manager) MaxMappedMemorySize() int64 {
	return m.maxMappedSize
}
func (m *manager) MaxFileHandles() int { return m.maxHandles }

func (m *manager) describe(kind string) string {
	if m.closed {
		return fmt.Sprintf("%s(winsize=%d, CLOSED)", kind, m.opts.windowSize)
	}
	return fmt.Sprintf("%s(winsize=%d, files=%d, regs=(%d, %d), curs=%d)",
		kind, m.opts.windowSize, m.NumOpenFiles(),
		m.NumOpenRegions(), m.NumUsedRegions(), m.NumOpenCursors())
}
