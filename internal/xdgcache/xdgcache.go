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

// Package xdgcache resolves the default cache root for witdeps' local
// dependency cache, following XDG conventions on Unix-like systems.
package xdgcache

import (
	"os"
	"path/filepath"
)

// dirPerm is used when lazily creating the cache root.
const dirPerm = 0o755

// Root returns the default cache root for witdeps, creating it if it does
// not already exist. It uses $XDG_CACHE_HOME/witdeps if set, falling back
// to ~/.cache/witdeps.
func Root() (string, error) {
	home := cacheHome()
	if home == "" {
		return "", os.ErrNotExist
	}

	root := filepath.Join(home, "witdeps")
	if err := os.MkdirAll(root, dirPerm); err != nil {
		return "", err
	}

	return root, nil
}

// cacheHome returns the base cache directory following CLI tool
// conventions: $XDG_CACHE_HOME if set, else ~/.cache.
func cacheHome() string {
	if cacheHome := os.Getenv("XDG_CACHE_HOME"); cacheHome != "" {
		return cacheHome
	}

	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".cache")
	}

	return ""
}
