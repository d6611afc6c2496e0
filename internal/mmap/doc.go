// Package mmap provides read-only memory-mapped views over byte ranges of
// files.
//
// # Overview
//
// Unlike whole-file mapping helpers, this package maps arbitrary
// [offset, offset+size) ranges. Offsets handed to Map must be multiples of
// Granularity(), which is the OS page size on Unix and the allocation
// granularity on Windows. Callers own the alignment arithmetic; the manager
// layer above rounds offsets down and expands sizes before calling in.
//
// # Platform Support
//
//   - Unix (Linux, macOS, BSD): mmap(2) with PROT_READ/MAP_SHARED and
//     madvise(2) for access hints
//   - Windows: CreateFileMapping/MapViewOfFile (madvise is a no-op)
//
// # Lifetime
//
// A Mapping owns its mapped bytes. Close() is idempotent; any slice obtained
// from Bytes() is invalid once Close returns.
package mmap
