package testutil

import (
	"os"
	"path/filepath"
	"testing"
)

// PatternBytes returns n deterministic bytes. The pattern period 251 is
// prime, so any window of a few hundred bytes identifies its file offset
// unambiguously, which makes region-boundary bugs visible in tests.
func PatternBytes(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i % 251)
	}
	return b
}

// TempFile writes data to a fresh file under t.TempDir and returns its
// path. The file is cleaned up with the test.
func TempFile(t testing.TB, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data.bin")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	return path
}

// PatternFile writes n pattern bytes to a fresh temp file and returns its
// path together with the written bytes.
func PatternFile(t testing.TB, n int) (string, []byte) {
	t.Helper()
	data := PatternBytes(n)
	return TempFile(t, data), data
}
