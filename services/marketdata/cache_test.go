package marketdata

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestCache(t *testing.T) *BarCache {
	t.Helper()

	cache, err := OpenBarCache(filepath.Join(t.TempDir(), "bars.db"))
	require.NoError(t, err, "failed to open bar cache")
	t.Cleanup(func() { cache.Close() })
	return cache
}

func cachedBar(symbol string, day int, close float64) Bar {
	open := close - 1
	volume := int64(5000)
	return Bar{
		Symbol: symbol,
		Date:   time.Date(2026, 7, 1+day, 0, 0, 0, 0, time.UTC),
		Open:   &open,
		Close:  close,
		Volume: &volume,
	}
}

func TestBarCache_RoundTrip(t *testing.T) {
	cache := openTestCache(t)

	saved := []Bar{
		cachedBar("XOM", 0, 100.5),
		cachedBar("XOM", 1, 101.25),
	}
	require.NoError(t, cache.SaveBars("XOM", saved))

	loaded, err := cache.LoadBars("XOM")
	require.NoError(t, err)
	require.Len(t, loaded, 2)

	assert.Equal(t, "XOM", loaded[0].Symbol)
	assert.Equal(t, time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC), loaded[0].Date)
	assert.Equal(t, 100.5, loaded[0].Close)
	require.NotNil(t, loaded[0].Open)
	assert.Equal(t, 99.5, *loaded[0].Open)
	require.NotNil(t, loaded[0].Volume)
	assert.Equal(t, int64(5000), *loaded[0].Volume)

	assert.Equal(t, 101.25, loaded[1].Close, "bars come back oldest first")
}

func TestBarCache_NullOptionalFields(t *testing.T) {
	cache := openTestCache(t)

	require.NoError(t, cache.SaveBars("CVX", []Bar{{
		Symbol: "CVX",
		Date:   time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC),
		Close:  50.0,
	}}))

	loaded, err := cache.LoadBars("CVX")
	require.NoError(t, err)
	require.Len(t, loaded, 1)

	assert.Nil(t, loaded[0].Open)
	assert.Nil(t, loaded[0].High)
	assert.Nil(t, loaded[0].Low)
	assert.Nil(t, loaded[0].Volume)
	assert.Equal(t, 50.0, loaded[0].Close)
}

func TestBarCache_SaveReplaces(t *testing.T) {
	cache := openTestCache(t)

	require.NoError(t, cache.SaveBars("XOM", []Bar{
		cachedBar("XOM", 0, 100),
		cachedBar("XOM", 1, 101),
		cachedBar("XOM", 2, 102),
	}))
	require.NoError(t, cache.SaveBars("XOM", []Bar{
		cachedBar("XOM", 3, 110),
	}))

	loaded, err := cache.LoadBars("XOM")
	require.NoError(t, err)
	require.Len(t, loaded, 1, "a fresh save replaces the previous snapshot")
	assert.Equal(t, 110.0, loaded[0].Close)
}

func TestBarCache_SymbolsIsolated(t *testing.T) {
	cache := openTestCache(t)

	require.NoError(t, cache.SaveBars("XOM", []Bar{cachedBar("XOM", 0, 100)}))
	require.NoError(t, cache.SaveBars("CVX", []Bar{cachedBar("CVX", 0, 50)}))

	loaded, err := cache.LoadBars("XOM")
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, 100.0, loaded[0].Close)

	empty, err := cache.LoadBars("UNKNOWN")
	require.NoError(t, err)
	assert.Empty(t, empty)
}
