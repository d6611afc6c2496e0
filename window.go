package smap

import (
	"fmt"

	"github.com/hupe1980/smap/internal/mmap"
)

// AlignToMmap aligns n to the closest multiple of the platform mapping
// granularity (usually the 4 KiB page size; 64 KiB on Windows).
//
// With roundUp, the next higher multiple is used, otherwise the next lower
// one (i.e. with roundUp, 1 becomes 4096; without, it becomes 0).
func AlignToMmap(n int64, roundUp bool) int64 {
	g := mmap.Granularity()
	res := (n / g) * g
	if roundUp && res != n {
		res += g
	}
	return res
}

// mapWindow is the candidate byte range for a region before it is mapped.
// The tiling allocator snaps windows towards their neighbors and aligns
// them before handing them to the OS.
type mapWindow struct {
	ofs  int64
	size int64
}

func windowFromRegion(r *Region) mapWindow {
	return mapWindow{ofs: r.ofs, size: r.size}
}

func (w mapWindow) ofsEnd() int64 { return w.ofs + w.size }

// align extends ofs downwards to the mapping granularity and grows size so
// the end point stays constant. The end is deliberately not aligned, to
// respect the configured window size and save load time.
func (w *mapWindow) align() {
	nofs := AlignToMmap(w.ofs, false)
	w.size += w.ofs - nofs
	w.ofs = nofs
}

// extendLeftTo moves the start towards the end of the window on our left,
// without growing beyond maxSize. The original range stays covered.
func (w *mapWindow) extendLeftTo(left mapWindow, maxSize int64) {
	rofs := w.ofs - left.ofsEnd()
	nsize := rofs + w.size
	if nsize > maxSize {
		rofs -= nsize - maxSize
	}
	w.ofs -= rofs
	w.size += rofs
}

// extendRightTo grows the window until it meets the start of the window on
// our right, without growing beyond maxSize.
func (w *mapWindow) extendRightTo(right mapWindow, maxSize int64) {
	w.size = min(w.size+(right.ofs-w.ofsEnd()), maxSize)
}

func (w mapWindow) String() string {
	return fmt.Sprintf("mapWindow(%d, %d)", w.ofs, w.size)
}
