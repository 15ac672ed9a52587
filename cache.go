/*
Copyright © 2025 Jayson Grace <jayson.e.grace@gmail.com>

Permission is hereby granted, free of charge, to any person obtaining a copy
of this software and associated documentation files (the "Software"), to deal
in the Software without restriction, including without limitation the rights
to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
copies of the Software, and to permit persons to whom the Software is
furnished to do so, subject to the following conditions:

The above copyright notice and this permission notice shall be included in
all copies or substantial portions of the Software.

THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
THE SOFTWARE.
*/

package witdeps

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// Cache abstracts a URL-keyed byte store for fetched tarballs.
type Cache interface {
	// Get returns a readable stream of previously cached bytes for u, or
	// ok == false if nothing is cached for it.
	Get(ctx context.Context, u *url.URL) (r io.ReadCloser, ok bool, err error)
	// Insert returns a writable stream that will cache bytes for u.
	// Creation is exclusive: if an entry already exists, Insert returns an
	// error, which callers treat as non-fatal — caching is simply skipped
	// for that fetch.
	Insert(ctx context.Context, u *url.URL) (w io.WriteCloser, err error)
}

// LocalCache is a Cache backed by a local filesystem directory. A URL maps
// to <Root>/<host>/<path-segment-1>/.../<path-segment-n>.
type LocalCache struct {
	Root string
}

// NewLocalCache returns a LocalCache rooted at root.
func NewLocalCache(root string) *LocalCache {
	return &LocalCache{Root: root}
}

func (c *LocalCache) path(u *url.URL) string {
	segments := strings.Split(strings.TrimPrefix(u.Path, "/"), "/")
	parts := append([]string{c.Root, u.Host}, segments...)
	return filepath.Join(parts...)
}

// Get implements Cache.
func (c *LocalCache) Get(_ context.Context, u *url.URL) (io.ReadCloser, bool, error) {
	f, err := os.Open(c.path(u))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("%w: read cache entry for %q: %w", ErrFilesystem, u, err)
	}
	return f, true, nil
}

// Insert implements Cache. Parent directories are created lazily; the file
// itself is created with O_EXCL so that a concurrent second writer for the
// same URL fails immediately rather than corrupting a partially written
// entry — the first writer wins, as required of this cache's write path.
func (c *LocalCache) Insert(_ context.Context, u *url.URL) (io.WriteCloser, error) {
	p := c.path(u)
	if err := os.MkdirAll(filepath.Dir(p), dirPerm); err != nil {
		return nil, fmt.Errorf("%w: create cache directory for %q: %w", ErrFilesystem, u, err)
	}
	f, err := os.OpenFile(p, os.O_CREATE|os.O_EXCL|os.O_WRONLY, filePerm)
	if err != nil {
		return nil, fmt.Errorf("%w: create cache entry for %q: %w", ErrFilesystem, u, err)
	}
	return f, nil
}

// WriteOnlyCache wraps a Cache so that Get always reports a miss while
// Insert still delegates to the wrapped cache. The reconciler's `update`
// workflow uses this to force a refetch of every dependency while still
// leaving the cache populated for the next plain `lock`.
type WriteOnlyCache struct {
	Cache
}

// Get always reports a cache miss.
func (WriteOnlyCache) Get(context.Context, *url.URL) (io.ReadCloser, bool, error) {
	return nil, false, nil
}
