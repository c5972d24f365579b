package objstore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalFS_PutGetRoundTrip(t *testing.T) {
	store, err := NewLocalFS(t.TempDir(), "")
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, store.Put(ctx, "a/b.mp3", []byte("hello")))

	data, err := store.Get(ctx, "a/b.mp3")
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), data)
}

func TestLocalFS_GetMissingReturnsNotFound(t *testing.T) {
	store, err := NewLocalFS(t.TempDir(), "")
	require.NoError(t, err)

	_, err = store.Get(context.Background(), "nope.mp3")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLocalFS_PutIsIdempotent(t *testing.T) {
	store, err := NewLocalFS(t.TempDir(), "")
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, store.Put(ctx, "x.mp3", []byte("v1")))
	require.NoError(t, store.Put(ctx, "x.mp3", []byte("v2")))

	data, err := store.Get(ctx, "x.mp3")
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), data)
}

func TestLocalFS_PutLeavesNoTempFileBehind(t *testing.T) {
	root := t.TempDir()
	store, err := NewLocalFS(root, "")
	require.NoError(t, err)

	require.NoError(t, store.Put(context.Background(), "x.mp3", []byte("v1")))

	entries, err := filepath.Glob(filepath.Join(root, "*.tmp-*"))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestLocalFS_DeleteNonExistentIsNotAnError(t *testing.T) {
	store, err := NewLocalFS(t.TempDir(), "")
	require.NoError(t, err)
	assert.NoError(t, store.Delete(context.Background(), "nope.mp3"))
}

func TestLocalFS_StatReportsSizeAndExistence(t *testing.T) {
	store, err := NewLocalFS(t.TempDir(), "")
	require.NoError(t, err)
	ctx := context.Background()

	_, exists, err := store.Stat(ctx, "x.mp3")
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, store.Put(ctx, "x.mp3", []byte("hello")))
	size, exists, err := store.Stat(ctx, "x.mp3")
	require.NoError(t, err)
	assert.True(t, exists)
	assert.EqualValues(t, 5, size)
}

func TestLocalFS_FullPathNeverEscapesRoot(t *testing.T) {
	root := t.TempDir()
	store, err := NewLocalFS(root, "")
	require.NoError(t, err)

	full := store.FullPath("../../etc/passwd")
	rel, err := filepath.Rel(root, full)
	require.NoError(t, err)
	assert.False(t, rel == ".." || filepath_hasDotDotPrefix(rel))
}

func filepath_hasDotDotPrefix(rel string) bool {
	return len(rel) >= 2 && rel[0] == '.' && rel[1] == '.'
}

func TestLocalFS_PathPrefixApplied(t *testing.T) {
	root := t.TempDir()
	store, err := NewLocalFS(root, "prefix")
	require.NoError(t, err)

	require.NoError(t, store.Put(context.Background(), "x.mp3", []byte("v")))
	assert.Equal(t, filepath.Join(root, "prefix", "x.mp3"), store.FullPath("x.mp3"))
}
