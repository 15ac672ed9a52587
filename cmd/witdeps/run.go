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

package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	witdeps "github.com/go-wit/witdeps"
	"github.com/go-wit/witdeps/internal/wdlog"
	"github.com/go-wit/witdeps/internal/xdgcache"
)

// reconcileAndWrite is the engine behind the bare root command, lock, and
// update: load the manifest and existing lock, reconcile, and either write
// the result, report it's already in sync, or fail --check.
func reconcileAndWrite(cmd *cobra.Command, forceUpdate bool, packages []string, checkOnly bool) error {
	ctx := cmd.Context()

	manifest, err := loadManifest(opts.manifest)
	if err != nil {
		return err
	}

	priorLock, err := loadLock(opts.lock)
	if err != nil {
		return err
	}

	var cache witdeps.Cache
	if root, err := xdgcache.Root(); err != nil {
		wdlog.WarnContext(ctx, "disabling on-disk cache: %v", err)
	} else {
		local := witdeps.NewLocalCache(root)
		if forceUpdate {
			cache = witdeps.WriteOnlyCache{Cache: local}
		} else {
			cache = local
		}
	}

	newLock, err := witdeps.Reconcile(ctx, manifest, witdeps.Options{
		At:           filepath.Dir(opts.manifest),
		Deps:         opts.deps,
		Lock:         priorLock,
		ForceRefetch: forceUpdate,
		Cache:        cache,
		Packages:     packages,
	})
	if err != nil {
		return err
	}

	if !forceUpdate && newLock.Equal(priorLock) {
		wdlog.InfoContext(ctx, "%s is already up to date", opts.lock)
		return nil
	}

	if checkOnly {
		return fmt.Errorf("%s is out of date, run `witdeps lock` to update it", opts.lock)
	}

	if err := os.MkdirAll(filepath.Dir(opts.lock), 0o755); err != nil {
		return fmt.Errorf("failed to create lock parent directory: %w", err)
	}
	f, err := os.OpenFile(opts.lock, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open lock file %q: %w", opts.lock, err)
	}
	defer f.Close()

	if err := witdeps.EncodeLock(f, newLock); err != nil {
		return err
	}

	wdlog.InfoContext(ctx, "wrote %s", opts.lock)
	return nil
}

func loadManifest(path string) (witdeps.Manifest, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open manifest %q: %w", path, err)
	}
	defer f.Close()
	return witdeps.DecodeManifest(f)
}

func loadLock(path string) (witdeps.Lock, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return witdeps.Lock{}, nil
		}
		return nil, fmt.Errorf("failed to open lock file %q: %w", path, err)
	}
	defer f.Close()
	return witdeps.DecodeLock(f)
}
