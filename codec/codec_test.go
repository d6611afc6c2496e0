package codec

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/hupe1980/smap"
	"github.com/hupe1980/smap/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestByName(t *testing.T) {
	for _, c := range []Compression{None, LZ4, ZSTD} {
		got, ok := ByName(c.Name())
		require.True(t, ok)
		assert.Equal(t, c, got)
	}

	_, ok := ByName("snappy")
	assert.False(t, ok)
}

func TestBlockRoundTrip(t *testing.T) {
	// Repetitive payload, so both algorithms actually compress.
	payload := bytes.Repeat([]byte("smap block payload "), 100)

	for _, c := range []Compression{None, LZ4, ZSTD} {
		t.Run(c.Name(), func(t *testing.T) {
			block, err := CompressBlock(payload, c)
			require.NoError(t, err)

			if c != None {
				assert.Less(t, len(block), len(payload)+HeaderSize)
			}

			got, consumed, err := DecompressBlock(block, c)
			require.NoError(t, err)
			assert.Equal(t, payload, got)
			assert.Equal(t, len(block), consumed)
		})
	}
}

func TestBlockRoundTrip_Incompressible(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	payload := make([]byte, 1024)
	rng.Read(payload)

	for _, c := range []Compression{LZ4, ZSTD} {
		t.Run(c.Name(), func(t *testing.T) {
			block, err := CompressBlock(payload, c)
			require.NoError(t, err)

			got, consumed, err := DecompressBlock(block, c)
			require.NoError(t, err)
			assert.Equal(t, payload, got)
			assert.Equal(t, len(block), consumed)
		})
	}
}

func TestDecompressBlock_Truncated(t *testing.T) {
	block, err := CompressBlock([]byte("payload"), None)
	require.NoError(t, err)

	_, _, err = DecompressBlock(block[:4], None)
	assert.ErrorIs(t, err, ErrBlockTooShort)

	_, _, err = DecompressBlock(block[:len(block)-1], None)
	assert.ErrorIs(t, err, ErrBlockTooShort)
}

func TestDecompressBlock_UnknownCompression(t *testing.T) {
	block, err := CompressBlock(bytes.Repeat([]byte("x"), 100), ZSTD)
	require.NoError(t, err)

	_, _, err = DecompressBlock(block, Compression(99))
	assert.ErrorIs(t, err, ErrUnknownCompression)
}

// TestReadBlockAt_ThroughCursor walks a file of framed blocks through a
// sliding cursor with windows smaller than the file, so at least one block
// read straddles a region boundary.
func TestReadBlockAt_ThroughCursor(t *testing.T) {
	payloads := [][]byte{
		bytes.Repeat([]byte("first block "), 50),
		bytes.Repeat([]byte("second block "), 80),
		bytes.Repeat([]byte("third block "), 20),
	}

	var file bytes.Buffer
	for _, p := range payloads {
		block, err := CompressBlock(p, ZSTD)
		require.NoError(t, err)
		file.Write(block)
	}
	path := testutil.TempFile(t, file.Bytes())

	mman := smap.NewTilingManager(smap.WithWindowSize(64))
	defer mman.Close()

	c, err := mman.MakeSlidingCursor(path, 0, 0)
	require.NoError(t, err)

	var off int64
	for i, want := range payloads {
		got, n, err := ReadBlockAt(c, off, ZSTD)
		require.NoError(t, err, "block %d", i)
		assert.Equal(t, want, got, "block %d", i)
		off += n
	}
	assert.Equal(t, int64(file.Len()), off, "blocks must cover the file exactly")
	assert.Greater(t, mman.NumOpenRegions(), 1, "windows are smaller than the file")
}
