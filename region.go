package smap

import (
	"fmt"

	"github.com/hupe1980/smap/internal/mmap"
)

// Region is one OS-level memory mapping over a contiguous, page-aligned byte
// range of one file. Regions are created and owned by the manager; clients
// only ever see them through cursors.
//
// A region is "used" while at least one cursor pins it. Used regions are
// never unmapped; unused regions stay cached until Collect or eviction under
// memory pressure releases them, least recently used first.
type Region struct {
	finfo *FileInfo
	ofs   int64 // granularity-aligned offset into the file
	size  int64 // mapped bytes, ofs+size <= finfo.Size()
	m     *mmap.Mapping

	// clientCount is maintained by the manager's relation index; it always
	// equals the number of cursors pinning this region.
	clientCount int
}

// FileInfo returns the file record this region maps.
func (r *Region) FileInfo() *FileInfo { return r.finfo }

// Ofs returns the aligned file offset of the first mapped byte.
func (r *Region) Ofs() int64 { return r.ofs }

// Size returns the number of mapped bytes.
func (r *Region) Size() int64 { return r.size }

// OfsEnd returns the absolute offset one byte beyond the mapping.
func (r *Region) OfsEnd() int64 { return r.ofs + r.size }

// ClientCount returns the number of cursors currently pinning this region.
func (r *Region) ClientCount() int { return r.clientCount }

// IncludesOfs reports whether the absolute file offset ofs falls inside the
// mapped range.
func (r *Region) IncludesOfs(ofs int64) bool {
	return r.ofs <= ofs && ofs < r.ofs+r.size
}

// IncludesOfsRange reports whether the whole range [ofs, ofs+n) falls inside
// the mapped range.
func (r *Region) IncludesOfsRange(ofs, n int64) bool {
	return r.ofs <= ofs && ofs+n <= r.ofs+r.size
}

// buffer returns the mapped bytes. nil once the region was released.
func (r *Region) buffer() []byte {
	if r.m == nil {
		return nil
	}
	return r.m.Bytes()
}

// Advise passes an access-pattern hint for the mapped range to the kernel.
func (r *Region) Advise(pattern mmap.AccessPattern) error {
	if r.m == nil {
		return ErrClosed
	}
	return r.m.Advise(pattern)
}

// unmap releases the OS mapping. Errors are reported but the region is
// considered gone either way.
func (r *Region) unmap() error {
	if r.m == nil {
		return nil
	}
	err := r.m.Close()
	r.m = nil
	return err
}

func (r *Region) String() string {
	return fmt.Sprintf("Region(%s, ofs=%d, size=%d, clients=%d)", r.finfo.Path(), r.ofs, r.size, r.clientCount)
}
