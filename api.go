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
	"os"
	"path/filepath"
	"strings"

	"github.com/go-wit/witdeps/internal/xdgcache"
)

// defaultCache returns the on-disk cache rooted at the user's XDG cache
// directory, or nil if it can't be resolved or created — callers treat a
// nil Cache as "caching disabled" rather than a fatal condition.
func defaultCache() Cache {
	root, err := xdgcache.Root()
	if err != nil {
		return nil
	}
	return NewLocalCache(root)
}

// LockString reconciles a TOML-encoded manifest and an optional
// TOML-encoded lock against deps, returning the freshly encoded lock. It
// returns an empty string if lock was already in sync and nothing needed
// to change — callers use that to decide whether a lock file needs
// rewriting. at resolves any relative Path entries in manifest.
func LockString(ctx context.Context, at, manifest, lock, deps string) (string, error) {
	m, err := DecodeManifest(strings.NewReader(manifest))
	if err != nil {
		return "", err
	}

	var oldLock Lock
	if lock != "" {
		oldLock, err = DecodeLock(strings.NewReader(lock))
		if err != nil {
			return "", err
		}
	}

	newLock, err := Reconcile(ctx, m, Options{At: at, Deps: deps, Lock: oldLock, Cache: defaultCache()})
	if err != nil {
		return "", fmt.Errorf("failed to lock deps to %q: %w", deps, err)
	}

	if oldLock != nil && newLock.Equal(oldLock) {
		return "", nil
	}
	return EncodeLockString(newLock)
}

// UpdateString reconciles manifest against deps with ForceRefetch set and a
// write-only cache, bypassing the on-disk reuse check and the read cache so
// every entry is rebuilt and every Url entry is refetched, and returns the
// freshly encoded lock.
func UpdateString(ctx context.Context, at, manifest, deps string) (string, error) {
	m, err := DecodeManifest(strings.NewReader(manifest))
	if err != nil {
		return "", err
	}

	var cache Cache
	if c := defaultCache(); c != nil {
		cache = WriteOnlyCache{Cache: c}
	}

	newLock, err := Reconcile(ctx, m, Options{At: at, Deps: deps, ForceRefetch: true, Cache: cache})
	if err != nil {
		return "", fmt.Errorf("failed to lock deps to %q: %w", deps, err)
	}
	return EncodeLockString(newLock)
}

// LockPath is LockString for callers working with files directly: it reads
// manifestPath and lockPath (a missing lockPath is treated as cold state,
// not an error), reconciles, and writes lockPath only if it changed.
// Reports whether it wrote a new lock.
func LockPath(ctx context.Context, manifestPath, lockPath, deps string) (bool, error) {
	manifestBytes, err := os.ReadFile(manifestPath)
	if err != nil {
		return false, fmt.Errorf("failed to read manifest at %q: %w", manifestPath, err)
	}

	var lockStr string
	if b, err := os.ReadFile(lockPath); err == nil {
		lockStr = string(b)
	} else if !os.IsNotExist(err) {
		return false, fmt.Errorf("failed to read lock at %q: %w", lockPath, err)
	}

	encoded, err := LockString(ctx, filepath.Dir(manifestPath), string(manifestBytes), lockStr, deps)
	if err != nil {
		return false, fmt.Errorf("failed to lock dependencies: %w", err)
	}
	if encoded == "" {
		return false, nil
	}

	if err := writeLockFile(lockPath, encoded); err != nil {
		return false, err
	}
	return true, nil
}

// UpdatePath is UpdateString for callers working with files directly: it
// reads manifestPath and always (re)writes lockPath.
func UpdatePath(ctx context.Context, manifestPath, lockPath, deps string) error {
	manifestBytes, err := os.ReadFile(manifestPath)
	if err != nil {
		return fmt.Errorf("failed to read manifest at %q: %w", manifestPath, err)
	}

	encoded, err := UpdateString(ctx, filepath.Dir(manifestPath), string(manifestBytes), deps)
	if err != nil {
		return fmt.Errorf("failed to lock dependencies: %w", err)
	}
	return writeLockFile(lockPath, encoded)
}

func writeLockFile(path, content string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, dirPerm); err != nil {
			return fmt.Errorf("%w: create lock parent directory %q: %w", ErrFilesystem, dir, err)
		}
	}
	if err := os.WriteFile(path, []byte(content), filePerm); err != nil {
		return fmt.Errorf("%w: write lock to %q: %w", ErrFilesystem, path, err)
	}
	return nil
}

// Tar packages the resolved dependency directory at path into a
// deterministic tar stream written to w, letting an embedding build tool
// re-package a resolved dependency without shelling out to this module's
// CLI.
func Tar(_ context.Context, path string, w io.Writer) error {
	return Pack(path, w)
}
