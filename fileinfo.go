package smap

import (
	"fmt"
	"os"
	"path/filepath"
)

// FileInfo is the manager's per-file record: the canonical path, the file
// size captured at first open, and the descriptor regions are mapped from.
//
// FileInfo values are interned by the manager; two cursors over the same
// path share one instance. The size is immutable for the lifetime of the
// record — files that grow or shrink underneath an open manager are not
// supported.
type FileInfo struct {
	path string
	size int64
	f    *os.File
}

// openFileInfo opens path read-only and captures its size.
// Zero-length and non-regular files are rejected: a region of size 0 is
// invalid, and mapping devices or directories is undefined.
func openFileInfo(path string, flags int) (*FileInfo, error) {
	f, err := os.OpenFile(path, os.O_RDONLY|flags, 0)
	if err != nil {
		return nil, fmt.Errorf("smap: open %s: %w", path, err)
	}

	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("smap: stat %s: %w", path, err)
	}
	if !st.Mode().IsRegular() {
		f.Close()
		return nil, fmt.Errorf("%w: %s", ErrNotRegularFile, path)
	}
	if st.Size() == 0 {
		f.Close()
		return nil, fmt.Errorf("%w: %s", ErrEmptyFile, path)
	}

	return &FileInfo{path: path, size: st.Size(), f: f}, nil
}

// canonicalPath normalizes path so that different spellings of the same file
// intern to one FileInfo.
func canonicalPath(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return filepath.Clean(path)
	}
	return abs
}

// Path returns the canonical path of the underlying file.
func (fi *FileInfo) Path() string { return fi.path }

// Size returns the file size captured when the record was created.
func (fi *FileInfo) Size() int64 { return fi.size }

// File returns the open read-only descriptor owned by this record.
// Regions borrow it while mapping; it stays open until the manager closes.
func (fi *FileInfo) File() *os.File { return fi.f }

func (fi *FileInfo) close() error {
	if fi.f == nil {
		return nil
	}
	err := fi.f.Close()
	fi.f = nil
	return err
}

func (fi *FileInfo) String() string {
	return fmt.Sprintf("FileInfo(%s, %d)", fi.path, fi.size)
}
