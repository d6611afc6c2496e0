package smap

import (
	"os"
	"testing"

	"github.com/hupe1980/smap/resource"
	"github.com/hupe1980/smap/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTilingManager_Defaults(t *testing.T) {
	mman := NewTilingManager()
	defer mman.Close()

	assert.Equal(t, DefaultWindowSize(), mman.WindowSize())
	assert.Equal(t, DefaultMaxMemorySize(), mman.MaxMemorySize())
}

func TestTilingManager_RegionReuse(t *testing.T) {
	pageSize := int64(os.Getpagesize())
	path, _ := testutil.PatternFile(t, int(4*pageSize))

	mman := NewTilingManager(WithWindowSize(pageSize))
	defer mman.Close()

	c1, err := mman.MakeCursor(path, 0, 10)
	require.NoError(t, err)
	defer c1.Close()

	c2, err := mman.MakeCursor(path, 100, 10)
	require.NoError(t, err)
	defer c2.Close()

	assert.Same(t, c1.Region(), c2.Region())
	assert.Equal(t, 1, mman.NumOpenRegions())
	assert.Equal(t, 2, c1.Region().ClientCount())
}

func TestTilingManager_LRUEviction(t *testing.T) {
	pageSize := int64(os.Getpagesize())
	path, _ := testutil.PatternFile(t, int(4*pageSize))

	mman := NewTilingManager(
		WithWindowSize(pageSize),
		WithMaxMemorySize(2*pageSize),
	)
	defer mman.Close()

	ca, err := mman.MakeCursor(path, 0, 0)
	require.NoError(t, err)
	cb, err := mman.MakeCursor(path, pageSize, 0)
	require.NoError(t, err)
	regionA, regionB := ca.Region(), cb.Region()

	// Release B first, then A: A becomes the most recently used of the two
	// unused regions, so B is the eviction victim.
	require.NoError(t, cb.Close())
	require.NoError(t, ca.Close())

	cc, err := mman.MakeCursor(path, 2*pageSize, 0)
	require.NoError(t, err)
	defer cc.Close()

	regions := mman.RegionsForPath(path)
	require.Len(t, regions, 2)
	assert.Contains(t, regions, regionA, "recently used region survives")
	assert.NotContains(t, regions, regionB, "LRU region is evicted")
	assert.Equal(t, int64(2*pageSize), mman.MappedMemorySize())
}

func TestTilingManager_HandleBudget(t *testing.T) {
	pageSize := int64(os.Getpagesize())
	path, _ := testutil.PatternFile(t, int(4*pageSize))

	mman := NewTilingManager(
		WithWindowSize(pageSize),
		WithMaxOpenHandles(2),
	)
	defer mman.Close()

	for _, ofs := range []int64{0, pageSize, 2 * pageSize, 3 * pageSize} {
		c, err := mman.MakeCursor(path, ofs, 0)
		require.NoError(t, err)
		require.NoError(t, c.Close())
		assert.LessOrEqual(t, mman.NumOpenRegions(), 2)
	}
	assert.Equal(t, 2, mman.MaxFileHandles())
}

func TestTilingManager_HandleBudgetExhausted(t *testing.T) {
	pageSize := int64(os.Getpagesize())
	path, _ := testutil.PatternFile(t, int(4*pageSize))

	mman := NewTilingManager(
		WithWindowSize(pageSize),
		WithMaxOpenHandles(1),
	)
	defer mman.Close()

	c, err := mman.MakeCursor(path, 0, 0)
	require.NoError(t, err)
	defer c.Close()

	_, err = mman.MakeCursor(path, 2*pageSize, 0)
	assert.ErrorIs(t, err, ErrOutOfMemory)
}

func TestTilingManager_TailSwallow(t *testing.T) {
	pageSize := int64(os.Getpagesize())

	t.Run("SmallTailIsSwallowed", func(t *testing.T) {
		path, data := testutil.PatternFile(t, int(pageSize+pageSize/2))

		mman := NewTilingManager(WithWindowSize(pageSize))
		defer mman.Close()

		c, err := mman.MakeCursor(path, 0, 0)
		require.NoError(t, err)
		defer c.Close()

		// The half-window tail is folded into the first region rather than
		// left for a tiny second mapping.
		assert.Equal(t, 1, mman.NumOpenRegions())
		assert.Equal(t, int64(len(data)), c.Region().Size())
		assert.Equal(t, data, c.Buffer())
	})

	t.Run("LargeTailIsNot", func(t *testing.T) {
		path, _ := testutil.PatternFile(t, int(2*pageSize))

		mman := NewTilingManager(WithWindowSize(pageSize))
		defer mman.Close()

		c, err := mman.MakeCursor(path, 0, 0)
		require.NoError(t, err)
		defer c.Close()

		assert.Equal(t, pageSize, c.Region().Size())
	})
}

func TestTilingManager_SharedResourceController(t *testing.T) {
	pageSize := int64(os.Getpagesize())
	path, _ := testutil.PatternFile(t, int(4*pageSize))

	rc := resource.NewController(resource.Config{MemoryLimitBytes: 2 * pageSize})

	a := NewTilingManager(WithWindowSize(pageSize), WithResourceController(rc))
	defer a.Close()
	b := NewTilingManager(WithWindowSize(pageSize), WithResourceController(rc))
	defer b.Close()

	ca, err := a.MakeCursor(path, 0, 0)
	require.NoError(t, err)
	defer ca.Close()
	cb, err := b.MakeCursor(path, 0, 0)
	require.NoError(t, err)
	defer cb.Close()

	assert.Equal(t, int64(2*pageSize), rc.MemoryUsage())

	// The shared budget is exhausted and each manager's only region is
	// pinned, so neither manager can map more.
	_, err = b.MakeCursor(path, 2*pageSize, 0)
	require.ErrorIs(t, err, ErrOutOfMemory)

	// Releasing manager A's mapping frees shared headroom for manager B.
	require.NoError(t, ca.Close())
	require.NoError(t, a.Close())

	cb2, err := b.MakeCursor(path, 2*pageSize, 0)
	require.NoError(t, err)
	defer cb2.Close()
	assert.Equal(t, int64(2*pageSize), rc.MemoryUsage())
}

func TestTilingManager_Metrics(t *testing.T) {
	pageSize := int64(os.Getpagesize())
	path, _ := testutil.PatternFile(t, int(2*pageSize))

	mc := &BasicMetricsCollector{}
	mman := NewTilingManager(WithWindowSize(pageSize), WithMetricsCollector(mc))
	defer mman.Close()

	c, err := mman.MakeCursor(path, 0, 0)
	require.NoError(t, err)
	require.NoError(t, c.Close())

	freed := mman.Collect()
	assert.Equal(t, 1, freed)

	_, err = mman.MakeCursor(path, 5*pageSize, 0)
	require.Error(t, err)

	stats := mc.GetStats()
	assert.Equal(t, int64(2), stats.CursorOpens)
	assert.Equal(t, int64(1), stats.CursorOpenErrors)
	assert.Equal(t, int64(1), stats.CursorReleases)
	assert.Equal(t, int64(1), stats.RegionMaps)
	assert.Equal(t, int64(pageSize), stats.MappedBytesTotal)
	assert.Equal(t, int64(1), stats.RegionUnmaps)
	assert.Equal(t, int64(1), stats.CollectRuns)
	assert.Equal(t, int64(1), stats.CollectFreedTotal)
}
