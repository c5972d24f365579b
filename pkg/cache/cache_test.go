package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonaylor89/freqmoda/pkg/objstore"
)

func newTestCache(t *testing.T, maxEntries int, maxMemBytes, maxDiskBytes int64) *Cache {
	t.Helper()
	store, err := objstore.NewLocalFS(t.TempDir(), "")
	require.NoError(t, err)
	cold := NewFilesystemColdTier(store, maxEntries, maxDiskBytes)
	c, err := New(cold, maxEntries, maxMemBytes)
	require.NoError(t, err)
	return c
}

func TestCache_SetThenGetHits(t *testing.T) {
	c := newTestCache(t, 10, 1<<20, 1<<20)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "abc123", []byte("bytes"), time.Hour))

	data, hit, err := c.Get(ctx, "abc123")
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, []byte("bytes"), data)
}

func TestCache_GetMissReturnsFalse(t *testing.T) {
	c := newTestCache(t, 10, 1<<20, 1<<20)
	_, hit, err := c.Get(context.Background(), "nope")
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestCache_ExpiredEntryTreatedAsAbsent(t *testing.T) {
	c := newTestCache(t, 10, 1<<20, 1<<20)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "fp", []byte("bytes"), -time.Second))

	_, hit, err := c.Get(ctx, "fp")
	require.NoError(t, err)
	assert.False(t, hit, "TTL already elapsed; entry should be treated as absent")
}

func TestCache_DeleteRemovesFromBothTiers(t *testing.T) {
	c := newTestCache(t, 10, 1<<20, 1<<20)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "fp", []byte("bytes"), time.Hour))
	require.NoError(t, c.Delete(ctx, "fp"))

	_, hit, err := c.Get(ctx, "fp")
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestCache_MemBytesCapEvictsLRU(t *testing.T) {
	// Each entry is 10 bytes; cap of 25 bytes allows at most 2 at once.
	c := newTestCache(t, 10, 25, 1<<20)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "fp1", make([]byte, 10), time.Hour))
	require.NoError(t, c.Set(ctx, "fp2", make([]byte, 10), time.Hour))
	require.NoError(t, c.Set(ctx, "fp3", make([]byte, 10), time.Hour))

	assert.LessOrEqual(t, c.MemBytes(), int64(25))
	assert.LessOrEqual(t, c.MemEntries(), 2)
}

func TestCache_MemEntriesCapEnforced(t *testing.T) {
	c := newTestCache(t, 2, 1<<20, 1<<20)
	ctx := context.Background()

	for _, fp := range []string{"fp1", "fp2", "fp3", "fp4"} {
		require.NoError(t, c.Set(ctx, fp, []byte("x"), time.Hour))
	}

	assert.LessOrEqual(t, c.MemEntries(), 2)
}

func TestCache_GetRepopulatesMemoryTierFromColdTier(t *testing.T) {
	c := newTestCache(t, 10, 1<<20, 1<<20)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "fp", []byte("bytes"), time.Hour))
	// Force the in-memory tier empty to exercise the cold-tier repopulate path.
	c.mu.Lock()
	c.lru.Remove("fp")
	c.mu.Unlock()

	data, hit, err := c.Get(ctx, "fp")
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, []byte("bytes"), data)
	assert.Equal(t, 1, c.MemEntries(), "cold-tier hit should repopulate the memory tier")
}

func TestFilesystemColdTier_DiskBytesCapEvictsLRU(t *testing.T) {
	store, err := objstore.NewLocalFS(t.TempDir(), "")
	require.NoError(t, err)
	cold := NewFilesystemColdTier(store, 100, 25)
	ctx := context.Background()

	require.NoError(t, cold.Set(ctx, "fp1", make([]byte, 10), time.Hour))
	require.NoError(t, cold.Set(ctx, "fp2", make([]byte, 10), time.Hour))
	require.NoError(t, cold.Set(ctx, "fp3", make([]byte, 10), time.Hour))

	_, _, hit1, _ := cold.Get(ctx, "fp1")
	_, _, hit3, _ := cold.Get(ctx, "fp3")
	assert.False(t, hit1, "oldest entry should have been evicted once the disk-byte cap was exceeded")
	assert.True(t, hit3, "most recently written entry should survive")
}

func TestFilesystemColdTier_MaxEntriesEnforced(t *testing.T) {
	store, err := objstore.NewLocalFS(t.TempDir(), "")
	require.NoError(t, err)
	cold := NewFilesystemColdTier(store, 2, 1<<20)
	ctx := context.Background()

	for _, fp := range []string{"fp1", "fp2", "fp3"} {
		require.NoError(t, cold.Set(ctx, fp, []byte("x"), time.Hour))
	}

	count := 0
	for _, fp := range []string{"fp1", "fp2", "fp3"} {
		if _, _, hit, _ := cold.Get(ctx, fp); hit {
			count++
		}
	}
	assert.LessOrEqual(t, count, 2)
}
