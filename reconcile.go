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
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sort"

	cleanhttp "github.com/hashicorp/go-cleanhttp"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/klauspost/pgzip"
	"golang.org/x/sync/errgroup"

	"github.com/go-wit/witdeps/internal/wdlog"
	"github.com/go-wit/witdeps/internal/werr"
)

// Options configures a Reconcile run.
type Options struct {
	// At resolves relative Path entries; normally the manifest's own
	// directory. Empty means Path entries are used as given.
	At string
	// Deps is the output directory, e.g. "wit/deps".
	Deps string
	// Lock is the previous lock, if any. A zero value means cold state.
	// It seeds the on-disk reuse check (tryReuse) unless ForceRefetch is
	// set, and it's always the merge base that untouched packages are
	// carried over from when Packages narrows the run.
	Lock Lock
	// Cache is consulted for Url entries before any network fetch. May
	// be nil to disable caching entirely.
	Cache Cache
	// ForceRefetch bypasses the on-disk reuse check for every selected
	// entry, so Url entries always hit Cache/the network and Path entries
	// are always re-copied and re-digested, even when Lock already
	// matches what's on disk. Packages not selected by Packages are
	// unaffected and still carried over from Lock untouched.
	ForceRefetch bool
	// Packages, if non-empty, limits reconciliation to these top-level
	// identifiers; every other identifier's existing lock entry (direct
	// or transitive) is carried over untouched.
	Packages []Identifier
	// HTTPClient overrides the client used for Url fetches; nil builds
	// one from the environment (see newHTTPClient).
	HTTPClient *retryablehttp.Client
}

type entryResult struct {
	id    Identifier
	entry LockEntry
	deps  map[Identifier]LockEntry
}

// Reconcile walks manifest concurrently, one goroutine per selected entry,
// and folds the results into a new Lock. It is the sole entry point for
// the decision tree described across this package: reuse, rebuild from a
// local path, or fetch and unpack a remote tarball, with transitive
// dependencies promoted to sibling entries and conflicts surfaced rather
// than silently resolved.
func Reconcile(ctx context.Context, manifest Manifest, opts Options) (Lock, error) {
	pinned := make(map[Identifier]struct{}, len(manifest))
	for id := range manifest {
		pinned[id] = struct{}{}
	}

	selected := manifest
	if len(opts.Packages) > 0 {
		sel := make(map[Identifier]struct{}, len(opts.Packages))
		for _, id := range opts.Packages {
			sel[id] = struct{}{}
		}
		selected = make(Manifest, len(sel))
		for id, e := range manifest {
			if _, ok := sel[id]; ok {
				selected[id] = e
			}
		}
	}

	results := make([]*entryResult, len(selected))
	pos := make(map[Identifier]int, len(selected))
	i := 0
	for id := range selected {
		pos[id] = i
		i++
	}

	g, gctx := errgroup.WithContext(ctx)
	for id, entry := range selected {
		id, entry, slot := id, entry, pos[id]
		g.Go(func() error {
			out := filepath.Join(opts.Deps, sanitizePathComponent(id))
			lockEntry, deps, err := reconcileEntry(gctx, id, entry, out, opts.At, pinned, opts.Lock, opts.ForceRefetch, opts.Cache, opts.HTTPClient)
			if err != nil {
				return werr.Wrap("lock dependency", fmt.Sprintf("%s to %s", id, out), err)
			}
			results[slot] = &entryResult{id: id, entry: lockEntry, deps: deps}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	var base Lock
	if len(opts.Packages) > 0 {
		base = opts.Lock.Clone()
	} else {
		base = Lock{}
	}

	return mergeResults(ctx, base, results, pinned)
}

// mergeResults applies spec's two-pass merge: every direct result is
// inserted first, then every transitive result, dropping any transitive id
// that collides with a pinned one and failing on any transitive id that
// collides with another transitive entry of different content.
func mergeResults(ctx context.Context, base Lock, results []*entryResult, pinned map[Identifier]struct{}) (Lock, error) {
	lock := base
	if lock == nil {
		lock = Lock{}
	}

	for _, r := range results {
		if _, exists := lock[r.id]; exists {
			wdlog.WarnContext(ctx, "duplicate direct lock entry for %q", r.id)
		}
		lock[r.id] = r.entry
	}

	for _, r := range results {
		for depID, depEntry := range r.deps {
			if _, ok := pinned[depID]; ok {
				continue
			}
			if existing, ok := lock[depID]; ok {
				if !existing.Digest.Equal(depEntry.Digest) {
					return nil, fmt.Errorf("%w: transitive dependency %q resolved with conflicting content across its parents; pin %q directly in the manifest to resolve it", ErrConflict, depID, depID)
				}
				continue
			}
			lock[depID] = depEntry
		}
	}

	return lock, nil
}

func reconcileEntry(ctx context.Context, id Identifier, e Entry, out, at string, pinned map[Identifier]struct{}, priorLock Lock, forceRefetch bool, cache Cache, client *retryablehttp.Client) (LockEntry, map[Identifier]LockEntry, error) {
	if !forceRefetch {
		if entry, deps, ok := tryReuse(out, id, e, priorLock); ok {
			wdlog.DebugContext(ctx, "reusing %q, on-disk digest matches lock", id)
			return entry, deps, nil
		}
	}

	switch e.Kind {
	case EntryPath:
		return rebuildPath(ctx, e, at, out, pinned)
	case EntryURL:
		return rebuildURL(ctx, e, out, pinned, cache, client)
	default:
		return LockEntry{}, nil, fmt.Errorf("%w: manifest entry %q has no recognized kind", ErrInvariant, id)
	}
}

// tryReuse implements the fast path: if the previous lock's digest for out
// still matches what's on disk, and the manifest entry's source fields
// still match the lock's, every listed transitive sibling is reuse-checked
// the same way. Any mismatch anywhere falls through to a full rebuild —
// the strictest of the two policies the source data leaves open.
func tryReuse(out string, id Identifier, e Entry, priorLock Lock) (LockEntry, map[Identifier]LockEntry, bool) {
	prior, ok := priorLock.Get(id)
	if !ok || prior.Source == nil {
		return LockEntry{}, nil, false
	}

	dirDigest, err := DigestOfDir(out)
	if err != nil || !dirDigest.Equal(prior.Digest) {
		return LockEntry{}, nil, false
	}
	if !sourceMatches(e, prior.Source) {
		return LockEntry{}, nil, false
	}

	parent := filepath.Dir(out)
	deps := make(map[Identifier]LockEntry, len(prior.Deps))
	for _, depID := range prior.Deps {
		depPrior, ok := priorLock.Get(depID)
		if !ok {
			return LockEntry{}, nil, false
		}
		depDir := filepath.Join(parent, sanitizePathComponent(depID))
		depDigest, err := DigestOfDir(depDir)
		if err != nil || !depDigest.Equal(depPrior.Digest) {
			return LockEntry{}, nil, false
		}
		deps[depID] = LockEntry{Digest: depDigest}
	}

	entry := LockEntry{Source: prior.Source, Digest: dirDigest, Deps: sortedLockKeys(deps)}
	return entry, deps, true
}

func rebuildPath(ctx context.Context, e Entry, at, out string, pinned map[Identifier]struct{}) (LockEntry, map[Identifier]LockEntry, error) {
	src := e.Path
	if at != "" {
		src = filepath.Join(at, e.Path)
	}

	if err := recreateDir(out); err != nil {
		return LockEntry{}, nil, err
	}
	if err := copyWitFiles(src, out); err != nil {
		return LockEntry{}, nil, err
	}

	deps := make(map[Identifier]LockEntry)
	parent := filepath.Dir(out)
	depsRoot := filepath.Join(src, "deps")
	if entries, err := os.ReadDir(depsRoot); err == nil {
		for _, de := range entries {
			id := de.Name()
			if !isDirOrSymlinkToDir(depsRoot, de) {
				continue
			}
			if _, skip := pinned[id]; skip {
				continue
			}

			depOut := filepath.Join(parent, sanitizePathComponent(id))
			if err := recreateDir(depOut); err != nil {
				return LockEntry{}, nil, err
			}
			if err := copyWitFiles(filepath.Join(depsRoot, id), depOut); err != nil {
				return LockEntry{}, nil, err
			}
			digest, err := DigestOfDir(depOut)
			if err != nil {
				return LockEntry{}, nil, err
			}
			deps[id] = LockEntry{Digest: digest}
			wdlog.DebugContext(ctx, "copied transitive path dependency %q", id)
		}
	}

	digest, err := DigestOfDir(out)
	if err != nil {
		return LockEntry{}, nil, err
	}

	entry := LockEntry{
		Source: &EntrySource{Kind: SourcePath, Path: e.Path},
		Digest: digest,
		Deps:   sortedLockKeys(deps),
	}
	return entry, deps, nil
}

func isDirOrSymlinkToDir(root string, de os.DirEntry) bool {
	if de.IsDir() {
		return true
	}
	if de.Type()&os.ModeSymlink == 0 {
		return false
	}
	fi, err := os.Stat(filepath.Join(root, de.Name()))
	return err == nil && fi.IsDir()
}

func copyWitFiles(src, dst string) error {
	entries, err := os.ReadDir(src)
	if err != nil {
		return fmt.Errorf("%w: read directory %q: %w", ErrFilesystem, src, err)
	}
	for _, e := range entries {
		if e.IsDir() || !isWitFile(e.Name()) {
			continue
		}
		if e.Type()&os.ModeSymlink != 0 {
			if fi, err := os.Stat(filepath.Join(src, e.Name())); err == nil && fi.IsDir() {
				continue
			}
		}
		data, err := os.ReadFile(filepath.Join(src, e.Name()))
		if err != nil {
			return fmt.Errorf("%w: read %q: %w", ErrFilesystem, e.Name(), err)
		}
		if err := os.WriteFile(filepath.Join(dst, e.Name()), data, filePerm); err != nil {
			return fmt.Errorf("%w: write %q: %w", ErrFilesystem, e.Name(), err)
		}
	}
	return nil
}

func rebuildURL(ctx context.Context, e Entry, out string, pinned map[Identifier]struct{}, cache Cache, client *retryablehttp.Client) (LockEntry, map[Identifier]LockEntry, error) {
	subdir := e.Subdir
	if subdir == "" {
		subdir = "wit"
	}

	redactedURL := wdlog.RedactURL(e.URL.String())

	if cache != nil {
		if rc, found, err := cache.Get(ctx, e.URL); err != nil {
			wdlog.WarnContext(ctx, "failed to read cache entry for %s: %v", redactedURL, err)
		} else if found {
			entry, deps, ok, err := unpackFromReader(rc, out, pinned, subdir, e)
			_ = rc.Close()
			switch {
			case err != nil:
				wdlog.WarnContext(ctx, "cache entry for %s failed to unpack, refetching: %v", redactedURL, err)
				cleanupPartial(out, deps)
			case ok:
				return entry, deps, nil
			default:
				wdlog.WarnContext(ctx, "cache hash mismatch for %s, refetching", redactedURL)
				cleanupPartial(out, deps)
			}
		}
	}

	switch e.URL.Scheme {
	case "http", "https":
	case "file":
		return LockEntry{}, nil, fmt.Errorf("%w: `file` scheme is not supported for `url`, use `path` instead", ErrScheme)
	default:
		return LockEntry{}, nil, fmt.Errorf("%w: unsupported scheme %q in %s", ErrScheme, e.URL.Scheme, redactedURL)
	}

	var cacheWriter io.WriteCloser
	if cache != nil {
		w, err := cache.Insert(ctx, e.URL)
		if err != nil {
			wdlog.DebugContext(ctx, "not caching %s: %v", redactedURL, err)
		} else {
			cacheWriter = w
		}
	}

	if client == nil {
		client = newHTTPClient()
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, e.URL.String(), nil)
	if err != nil {
		if cacheWriter != nil {
			_ = cacheWriter.Close()
		}
		return LockEntry{}, nil, werr.Wrap("build request", redactedURL, err)
	}

	wdlog.InfoContext(ctx, "fetching %s", redactedURL)
	resp, err := client.Do(req)
	if err != nil {
		if cacheWriter != nil {
			_ = cacheWriter.Close()
		}
		return LockEntry{}, nil, fmt.Errorf("%w: GET %s: %w", ErrNetwork, redactedURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if cacheWriter != nil {
			_ = cacheWriter.Close()
		}
		return LockEntry{}, nil, fmt.Errorf("%w: GET %s returned status %d", ErrNetwork, redactedURL, resp.StatusCode)
	}

	var body io.Reader = resp.Body
	if cacheWriter != nil {
		body = io.TeeReader(resp.Body, cacheWriter)
	}

	entry, deps, ok, unpackErr := unpackFromReader(body, out, pinned, subdir, e)
	if cacheWriter != nil {
		if closeErr := cacheWriter.Close(); closeErr != nil {
			wdlog.DebugContext(ctx, "failed to close cache writer for %s: %v", redactedURL, closeErr)
		}
	}
	if unpackErr != nil {
		cleanupPartial(out, deps)
		return LockEntry{}, nil, werr.Wrap("unpack", redactedURL, unpackErr)
	}
	if !ok {
		cleanupPartial(out, deps)
		return LockEntry{}, nil, fmt.Errorf("%w: %s", ErrDigestMismatch, redactedURL)
	}

	return entry, deps, nil
}

// unpackFromReader gunzips r, unpacks the resulting tar into out, and
// checks any pins against the digest of the *raw* (still gzipped) bytes —
// exactly what a pin in the manifest describes, since that's what a user
// copies from a release page. ok is false (not an error) when the unpack
// succeeds but a pin doesn't match, mirroring the "cache hash mismatch,
// fall through" / "pin mismatch, abort" split in the reconciler's
// rebuild-Url rules.
func unpackFromReader(r io.Reader, out string, pinned map[Identifier]struct{}, subdir string, e Entry) (LockEntry, map[Identifier]LockEntry, bool, error) {
	rawDigest := NewDigestReader(r)

	gz, err := pgzip.NewReader(rawDigest)
	if err != nil {
		return LockEntry{}, nil, false, fmt.Errorf("%w: decode gzip: %w", ErrArchive, err)
	}

	paths, err := Unpack(gz, out, pinned, subdir)
	if err != nil {
		return LockEntry{}, pathsToLockEntries(paths), false, err
	}

	if err := checkPins(rawDigest.Digest(), e.Sha256, e.Sha512, wdlog.RedactURL(e.URL.String())); err != nil {
		return LockEntry{}, pathsToLockEntries(paths), false, nil
	}

	deps, err := digestTransitivePaths(paths)
	if err != nil {
		return LockEntry{}, deps, false, err
	}

	outDigest, err := DigestOfDir(out)
	if err != nil {
		return LockEntry{}, deps, false, err
	}

	entry := LockEntry{
		Source: &EntrySource{Kind: SourceURL, URL: e.URL.String(), Subdir: subdir},
		Digest: outDigest,
		Deps:   sortedLockKeys(deps),
	}
	return entry, deps, true, nil
}

func digestTransitivePaths(paths map[string]string) (map[Identifier]LockEntry, error) {
	out := make(map[Identifier]LockEntry, len(paths))
	for id, p := range paths {
		d, err := DigestOfDir(p)
		if err != nil {
			return out, err
		}
		out[id] = LockEntry{Digest: d}
	}
	return out, nil
}

// pathsToLockEntries is used on the error/mismatch path, where digesting
// every partial directory again isn't worth the I/O: callers only need the
// directory paths to clean them up.
func pathsToLockEntries(paths map[string]string) map[Identifier]LockEntry {
	out := make(map[Identifier]LockEntry, len(paths))
	for id := range paths {
		out[id] = LockEntry{}
	}
	return out
}

func cleanupPartial(out string, deps map[Identifier]LockEntry) {
	_ = os.RemoveAll(out)
	parent := filepath.Dir(out)
	for id := range deps {
		_ = os.RemoveAll(filepath.Join(parent, sanitizePathComponent(id)))
	}
}

func checkPins(d Digest, sha256Pin *[32]byte, sha512Pin *[64]byte, url string) error {
	if sha256Pin != nil && d.Sha256 != *sha256Pin {
		return fmt.Errorf("%w: sha256 for %s: expected %x, got %x", ErrDigestMismatch, url, *sha256Pin, d.Sha256)
	}
	if sha512Pin != nil && d.Sha512 != *sha512Pin {
		return fmt.Errorf("%w: sha512 for %s: expected %x, got %x", ErrDigestMismatch, url, *sha512Pin, d.Sha512)
	}
	return nil
}

func sortedLockKeys(m map[Identifier]LockEntry) []Identifier {
	ids := make([]Identifier, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// newHTTPClient builds the default retryablehttp client used for Url
// fetches, wiring an HTTP proxy only when all three PROXY_SERVER,
// PROXY_USERNAME and PROXY_PASSWORD environment variables are present.
func newHTTPClient() *retryablehttp.Client {
	client := retryablehttp.NewClient()
	client.Logger = nil

	if proxyURL := proxyFromEnv(); proxyURL != nil {
		transport := cleanhttp.DefaultPooledTransport()
		transport.Proxy = http.ProxyURL(proxyURL)
		client.HTTPClient.Transport = transport
	}

	return client
}

func proxyFromEnv() *url.URL {
	server := os.Getenv("PROXY_SERVER")
	user := os.Getenv("PROXY_USERNAME")
	pass := os.Getenv("PROXY_PASSWORD")
	if server == "" || user == "" || pass == "" {
		return nil
	}

	u, err := url.Parse(server)
	if err != nil {
		return nil
	}
	u.User = url.UserPassword(user, pass)
	return u
}
