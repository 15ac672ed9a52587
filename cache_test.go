package witdeps

import (
	"context"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustParseURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

func TestLocalCache_MissThenHit(t *testing.T) {
	cache := NewLocalCache(t.TempDir())
	ctx := context.Background()
	u := mustParseURL(t, "https://example.com/foo/bar.tar.gz")

	_, ok, err := cache.Get(ctx, u)
	require.NoError(t, err)
	assert.False(t, ok)

	w, err := cache.Insert(ctx, u)
	require.NoError(t, err)
	_, err = w.Write([]byte("tarball bytes"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	r, ok, err := cache.Get(ctx, u)
	require.NoError(t, err)
	require.True(t, ok)
	defer r.Close()

	got, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "tarball bytes", string(got))
}

func TestLocalCache_PathLayout(t *testing.T) {
	root := t.TempDir()
	cache := NewLocalCache(root)
	u := mustParseURL(t, "https://example.com/foo/bar.tar.gz")

	w, err := cache.Insert(context.Background(), u)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	_, err = os.Stat(filepath.Join(root, "example.com", "foo", "bar.tar.gz"))
	assert.NoError(t, err)
}

func TestLocalCache_InsertExclusive(t *testing.T) {
	cache := NewLocalCache(t.TempDir())
	ctx := context.Background()
	u := mustParseURL(t, "https://example.com/foo.tar.gz")

	w, err := cache.Insert(ctx, u)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	_, err = cache.Insert(ctx, u)
	assert.Error(t, err)
}

func TestWriteOnlyCache_AlwaysMisses(t *testing.T) {
	inner := NewLocalCache(t.TempDir())
	ctx := context.Background()
	u := mustParseURL(t, "https://example.com/foo.tar.gz")

	w, err := inner.Insert(ctx, u)
	require.NoError(t, err)
	_, err = w.Write([]byte("cached"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	wrapped := WriteOnlyCache{Cache: inner}
	_, ok, err := wrapped.Get(ctx, u)
	require.NoError(t, err)
	assert.False(t, ok)

	r, ok, err := inner.Get(ctx, u)
	require.NoError(t, err)
	require.True(t, ok)
	r.Close()
}
