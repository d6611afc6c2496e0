package smap

import (
	"fmt"
	"io"
)

// SlidingCursor is a buffer-like view over [Ofs, OfsEnd) of one file that
// hides region boundaries: every random access silently re-homes the view
// to whichever region covers it, acquiring windows on demand.
//
// Accesses address the file absolutely: ByteAt(i) returns the file's byte
// i, with negative offsets counted from the end of the file. Returned
// slices are owned copies and stay valid across later accesses and
// evictions.
//
// Close is ignored by design: a sliding cursor stays open, and releases
// its resources, only when the manager closes.
type SlidingCursor struct {
	// owner pins the public manager wrapper so its cleanup cannot run
	// while cursors are live.
	owner Manager
	m     *manager
	finfo *FileInfo
	ofs   int64
	size  int64
	tok   *token

	// hint is the region serving the previous access. It is not pinned;
	// liveness is checked against the index before reuse.
	hint *Region

	pos int64 // Read position relative to ofs
}

var (
	_ io.Reader   = (*SlidingCursor)(nil)
	_ io.ReaderAt = (*SlidingCursor)(nil)
)

func newSlidingCursor(owner Manager, m *manager, fi *FileInfo, ofs, size int64) *SlidingCursor {
	return &SlidingCursor{
		owner: owner,
		m:     m,
		finfo: fi,
		ofs:   ofs,
		size:  size,
		tok:   &token{finfo: fi},
	}
}

// Ofs returns the absolute file offset of the first byte of the window.
func (c *SlidingCursor) Ofs() int64 { return c.ofs }

// Size returns the size of the window in bytes.
func (c *SlidingCursor) Size() int64 { return c.size }

// OfsEnd returns the absolute offset one byte beyond the window.
func (c *SlidingCursor) OfsEnd() int64 { return c.ofs + c.size }

// FileSize returns the size of the underlying file.
func (c *SlidingCursor) FileSize() int64 { return c.finfo.Size() }

// Path returns the canonical path of the underlying file.
func (c *SlidingCursor) Path() string { return c.finfo.Path() }

// FileInfo returns the manager's record for the underlying file.
func (c *SlidingCursor) FileInfo() *FileInfo { return c.finfo }

// IncludesOfs reports whether the absolute file offset ofs falls inside the
// window.
func (c *SlidingCursor) IncludesOfs(ofs int64) bool {
	return c.ofs <= ofs && ofs < c.ofs+c.size
}

// Closed reports whether the manager has closed this cursor.
func (c *SlidingCursor) Closed() bool {
	return !c.m.isTokenOpen(c.tok)
}

// Close does nothing: sliding cursors release their resources only when
// the manager closes. Between accesses no region stays pinned, so there is
// nothing a client-side close could free earlier.
func (c *SlidingCursor) Close() error {
	return nil
}

// resolve turns a possibly negative offset into an absolute one and bounds
// it against the window.
func (c *SlidingCursor) resolve(i int64) (int64, error) {
	if i < 0 {
		i += c.finfo.Size()
	}
	if !c.IncludesOfs(i) {
		return 0, outOfRange(c.finfo.Path(), i, c.finfo.Size())
	}
	return i, nil
}

// regionAt returns a region covering the absolute offset ofs, preferring
// the one that served the previous access. The region is not pinned; the
// caller must copy out its bytes before triggering further allocations.
func (c *SlidingCursor) regionAt(ofs, want int64) (*Region, error) {
	if c.m.closed || !c.m.rel.isOpen(c.tok) {
		return nil, ErrClosed
	}
	if c.hint != nil && c.m.rel.hasRegion(c.hint) && c.hint.IncludesOfs(ofs) {
		c.m.rel.hitRegion(c.hint)
		return c.hint, nil
	}
	r, err := c.m.alloc.obtainRegion(c.finfo, ofs, want)
	if err != nil {
		return nil, err
	}
	c.hint = r
	return r, nil
}

// ByteAt returns the file's byte at absolute offset i. Negative offsets
// are interpreted relative to the file size, so ByteAt(-1) is the last
// byte.
func (c *SlidingCursor) ByteAt(i int64) (byte, error) {
	i, err := c.resolve(i)
	if err != nil {
		return 0, err
	}
	r, err := c.regionAt(i, 1)
	if err != nil {
		return 0, err
	}
	return r.buffer()[i-r.ofs], nil
}

// Slice returns a copy of the file bytes [a, b). Negative bounds are
// interpreted relative to the file size. A slice straddling a region
// boundary is served from up to as many regions as it spans and
// concatenated into one contiguous result.
func (c *SlidingCursor) Slice(a, b int64) ([]byte, error) {
	if b < 0 {
		b += c.finfo.Size()
	}
	a, err := c.resolve(a)
	if err != nil {
		return nil, err
	}
	if b < a || b > c.OfsEnd() {
		return nil, outOfRange(c.finfo.Path(), b, c.finfo.Size())
	}
	if b == a {
		return []byte{}, nil
	}

	out := make([]byte, 0, b-a)
	for ofs := a; ofs < b; {
		r, err := c.regionAt(ofs, b-ofs)
		if err != nil {
			return nil, err
		}
		// Copy before the next acquisition; obtaining the following region
		// may evict this one.
		end := min(b, r.OfsEnd())
		out = append(out, r.buffer()[ofs-r.ofs:end-r.ofs]...)
		ofs = end
	}
	return out, nil
}

// ReadAt implements io.ReaderAt over the window; off is relative to Ofs.
func (c *SlidingCursor) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, fmt.Errorf("smap: negative read offset %d", off)
	}
	if off >= c.size {
		return 0, io.EOF
	}
	want := min(int64(len(p)), c.size-off)
	b, err := c.Slice(c.ofs+off, c.ofs+off+want)
	if err != nil {
		return 0, err
	}
	n := copy(p, b)
	if int64(n) < int64(len(p)) {
		return n, io.EOF
	}
	return n, nil
}

// Read implements io.Reader, advancing a position through the window.
func (c *SlidingCursor) Read(p []byte) (int, error) {
	if c.pos >= c.size {
		return 0, io.EOF
	}
	n, err := c.ReadAt(p, c.pos)
	c.pos += int64(n)
	if err == io.EOF && c.pos < c.size {
		err = nil
	}
	return n, err
}

func (c *SlidingCursor) String() string {
	return fmt.Sprintf("SlidingCursor(%s, %d, %d)", c.finfo.Path(), c.ofs, c.size)
}
