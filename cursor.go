package smap

import (
	"context"
	"fmt"
	"io"
	"runtime"

	"github.com/hupe1980/smap/internal/mmap"
)

// FixedCursor is an immutable view into exactly one region. The region is
// pinned for the cursor's whole open lifetime and never changes; Buffer is
// a zero-copy view into the mapped file.
//
// Release a cursor once done reading, so its region can be collected
// sooner. Release is strict (fails when called twice), Close is the
// idempotent variant; defer either at acquisition time.
type FixedCursor struct {
	// owner pins the public manager wrapper so its cleanup cannot run
	// while cursors are live.
	owner Manager
	m     *manager
	finfo *FileInfo
	ofs   int64 // logical offset requested by the client, not page aligned
	size  int64 // logical size, clamped to the backing region's end
	tok   *token

	cleanup runtime.Cleanup
}

func newFixedCursor(owner Manager, m *manager, fi *FileInfo, ofs, size int64) *FixedCursor {
	c := &FixedCursor{
		owner: owner,
		m:     m,
		finfo: fi,
		ofs:   ofs,
		size:  size,
		tok:   &token{finfo: fi},
	}
	// Safety net only: a cursor collected without release gets its pin
	// dropped at the manager's next operation. Counters observed mid-run
	// never depend on this.
	c.cleanup = runtime.AddCleanup(c, m.noteLeaked, c.tok)
	return c
}

func (c *FixedCursor) stop() {
	c.cleanup.Stop()
}

// Ofs returns the absolute file offset of the first byte of the view.
func (c *FixedCursor) Ofs() int64 { return c.ofs }

// Size returns the size of the view in bytes. It may be smaller than
// requested when the requested range crossed the backing region's end.
func (c *FixedCursor) Size() int64 { return c.size }

// OfsEnd returns the absolute offset one byte beyond the view.
func (c *FixedCursor) OfsEnd() int64 { return c.ofs + c.size }

// FileSize returns the size of the underlying file.
func (c *FixedCursor) FileSize() int64 { return c.finfo.Size() }

// Path returns the canonical path of the underlying file.
func (c *FixedCursor) Path() string { return c.finfo.Path() }

// FileInfo returns the manager's record for the underlying file.
func (c *FixedCursor) FileInfo() *FileInfo { return c.finfo }

// IncludesOfs reports whether the absolute file offset ofs falls inside the
// view.
func (c *FixedCursor) IncludesOfs(ofs int64) bool {
	return c.ofs <= ofs && ofs < c.ofs+c.size
}

// Closed reports whether the cursor has been released, by the client or by
// the manager closing.
func (c *FixedCursor) Closed() bool {
	return !c.m.isTokenOpen(c.tok)
}

// Region returns the pinned region, or nil once closed.
func (c *FixedCursor) Region() *Region {
	if c.m.closed {
		return nil
	}
	return c.m.rel.regionOf(c.tok)
}

// Buffer returns the zero-copy byte view [Ofs, OfsEnd) of the mapped file,
// or nil once closed. The view must not be cached past the cursor's
// release and must not be written to.
func (c *FixedCursor) Buffer() []byte {
	r := c.Region()
	if r == nil {
		return nil
	}
	buf := r.buffer()
	if buf == nil {
		return nil
	}
	start := c.ofs - r.ofs
	end := start + c.size
	return buf[start:end:end]
}

// ReadAt implements io.ReaderAt over the view; off is relative to Ofs.
func (c *FixedCursor) ReadAt(p []byte, off int64) (int, error) {
	buf := c.Buffer()
	if buf == nil {
		return 0, ErrClosed
	}
	if off < 0 {
		return 0, fmt.Errorf("smap: negative read offset %d", off)
	}
	if off >= int64(len(buf)) {
		return 0, io.EOF
	}
	n := copy(p, buf[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// Release drops the region pin and closes the cursor. It fails with
// ErrAlreadyReleased when called twice, and with ErrClosed after the
// manager closed.
func (c *FixedCursor) Release() error {
	if err := c.m.releaseToken(c.tok); err != nil {
		return err
	}
	c.stop()
	return nil
}

// Close is the idempotent variant of Release.
func (c *FixedCursor) Close() error {
	if c.Closed() {
		return nil
	}
	return c.Release()
}

// MakeCursor closes this cursor and returns a new one over
// [offset, offset+size) of the same file.
func (c *FixedCursor) MakeCursor(offset, size int64) (*FixedCursor, error) {
	if err := c.Close(); err != nil {
		return nil, err
	}
	return c.m.makeCursor(c.owner, c.finfo.Path(), offset, size)
}

// NextCursor closes this cursor and returns one over the window directly
// after it, with the same size. Fails with ErrOutOfRange at EOF, which is
// the canonical loop exit when chaining windows across a file.
func (c *FixedCursor) NextCursor() (*FixedCursor, error) {
	return c.MakeCursor(c.ofs+c.size, c.size)
}

// Advise passes an access-pattern hint for the backing region to the
// kernel. The hint covers the whole region, not just the view.
func (c *FixedCursor) Advise(pattern mmap.AccessPattern) error {
	r := c.Region()
	if r == nil {
		return ErrClosed
	}
	return r.Advise(pattern)
}

// Warm touches every page of the view to fault it into memory, throttled by
// the manager's resource controller IO limit. It returns the number of
// bytes touched.
func (c *FixedCursor) Warm(ctx context.Context) (int64, error) {
	buf := c.Buffer()
	if buf == nil {
		return 0, ErrClosed
	}
	_ = c.Advise(mmap.AccessWillNeed)

	page := mmap.Granularity()
	const chunk = 4 << 20

	var touched int64
	var sink byte
	for base := int64(0); base < int64(len(buf)); base += chunk {
		end := min(base+chunk, int64(len(buf)))
		if err := c.m.rc.AcquireIO(ctx, int(end-base)); err != nil {
			return touched, err
		}
		for i := base; i < end; i += page {
			sink ^= buf[i]
		}
		sink ^= buf[end-1]
		touched += end - base
	}
	runtime.KeepAlive(sink)
	return touched, nil
}

func (c *FixedCursor) String() string {
	return fmt.Sprintf("FixedCursor(%s, %d, %d)", c.finfo.Path(), c.ofs, c.size)
}
