package smap

import (
	"io"
	"testing"

	"github.com/hupe1980/smap/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// slidingFixture maps a 20-byte pattern file with 5-byte windows, so every
// access of interest crosses region boundaries.
func slidingFixture(t *testing.T) (*TilingManager, *SlidingCursor, []byte) {
	t.Helper()
	path, data := testutil.PatternFile(t, 20)

	mman := NewTilingManager(WithWindowSize(5))
	t.Cleanup(func() { mman.Close() })

	c, err := mman.MakeSlidingCursor(path, 0, 0)
	require.NoError(t, err)
	return mman, c, data
}

func TestSlidingCursor_ByteAt(t *testing.T) {
	mman, c, data := slidingFixture(t)

	for i := range data {
		b, err := c.ByteAt(int64(i))
		require.NoError(t, err)
		assert.Equal(t, data[i], b, "i=%d", i)
	}

	// No pin survives an access.
	assert.Equal(t, 0, mman.NumUsedRegions())
	assert.Equal(t, 1, mman.NumOpenCursors())
}

func TestSlidingCursor_ByteAtNegative(t *testing.T) {
	_, c, data := slidingFixture(t)

	b, err := c.ByteAt(-1)
	require.NoError(t, err)
	assert.Equal(t, data[19], b)

	b, err = c.ByteAt(-20)
	require.NoError(t, err)
	assert.Equal(t, data[0], b)

	_, err = c.ByteAt(-21)
	var oor *ErrOutOfRange
	assert.ErrorAs(t, err, &oor)

	_, err = c.ByteAt(20)
	assert.ErrorAs(t, err, &oor)
}

func TestSlidingCursor_Slice(t *testing.T) {
	_, c, data := slidingFixture(t)

	t.Run("WithinOneRegion", func(t *testing.T) {
		got, err := c.Slice(1, 4)
		require.NoError(t, err)
		assert.Equal(t, data[1:4], got)
	})

	t.Run("StraddlesBoundary", func(t *testing.T) {
		got, err := c.Slice(3, 8)
		require.NoError(t, err)
		assert.Equal(t, data[3:8], got)
	})

	t.Run("WholeWindow", func(t *testing.T) {
		got, err := c.Slice(0, 20)
		require.NoError(t, err)
		assert.Equal(t, data, got)
	})

	t.Run("NegativeBounds", func(t *testing.T) {
		got, err := c.Slice(-5, -1)
		require.NoError(t, err)
		assert.Equal(t, data[15:19], got)
	})

	t.Run("Empty", func(t *testing.T) {
		got, err := c.Slice(7, 7)
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("BeyondWindow", func(t *testing.T) {
		_, err := c.Slice(10, 21)
		var oor *ErrOutOfRange
		assert.ErrorAs(t, err, &oor)
	})

	t.Run("CopyIsStable", func(t *testing.T) {
		got, err := c.Slice(0, 5)
		require.NoError(t, err)
		// Later accesses may evict the region that served this slice; the
		// returned bytes must not change.
		_, err = c.Slice(15, 20)
		require.NoError(t, err)
		assert.Equal(t, data[0:5], got)
	})
}

func TestSlidingCursor_CloseIsIgnored(t *testing.T) {
	mman, c, data := slidingFixture(t)

	require.NoError(t, c.Close())
	assert.False(t, c.Closed(), "close is ignored by design")
	assert.Equal(t, 1, mman.NumOpenCursors())

	b, err := c.ByteAt(0)
	require.NoError(t, err)
	assert.Equal(t, data[0], b)

	require.NoError(t, mman.Close())
	assert.True(t, c.Closed())
	_, err = c.ByteAt(0)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestSlidingCursor_Window(t *testing.T) {
	path, data := testutil.PatternFile(t, 100)

	mman := NewTilingManager(WithWindowSize(16))
	defer mman.Close()

	c, err := mman.MakeSlidingCursor(path, 25, 50)
	require.NoError(t, err)

	assert.Equal(t, int64(25), c.Ofs())
	assert.Equal(t, int64(50), c.Size())
	assert.Equal(t, int64(75), c.OfsEnd())
	assert.Equal(t, int64(100), c.FileSize())

	// Accesses address the file absolutely and are bounded to the window.
	b, err := c.ByteAt(25)
	require.NoError(t, err)
	assert.Equal(t, data[25], b)

	var oor *ErrOutOfRange
	_, err = c.ByteAt(24)
	assert.ErrorAs(t, err, &oor)
	_, err = c.ByteAt(75)
	assert.ErrorAs(t, err, &oor)
}

func TestSlidingCursor_Read(t *testing.T) {
	path, data := testutil.PatternFile(t, 100)

	mman := NewTilingManager(WithWindowSize(16))
	defer mman.Close()

	c, err := mman.MakeSlidingCursor(path, 10, 0)
	require.NoError(t, err)

	got, err := io.ReadAll(c)
	require.NoError(t, err)
	assert.Equal(t, data[10:], got)

	// Exhausted.
	n, err := c.Read(make([]byte, 8))
	assert.Zero(t, n)
	assert.ErrorIs(t, err, io.EOF)
}

func TestSlidingCursor_ReadAt(t *testing.T) {
	path, data := testutil.PatternFile(t, 100)

	mman := NewTilingManager(WithWindowSize(16))
	defer mman.Close()

	c, err := mman.MakeSlidingCursor(path, 30, 40)
	require.NoError(t, err)

	p := make([]byte, 10)
	n, err := c.ReadAt(p, 0)
	require.NoError(t, err)
	assert.Equal(t, 10, n)
	assert.Equal(t, data[30:40], p)

	n, err = c.ReadAt(p, 35)
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, 5, n)
	assert.Equal(t, data[65:70], p[:n])
}

func TestGreedyManager_SlidingUnsupported(t *testing.T) {
	mman := NewGreedyManager()
	defer mman.Close()

	path, _ := testutil.PatternFile(t, 100)

	_, err := mman.MakeSlidingCursor(path, 0, 0)
	assert.ErrorIs(t, err, ErrUnsupported)
}
