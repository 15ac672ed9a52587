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
	"bytes"
	"fmt"
	"io"
	"net/url"
	"sort"

	"github.com/BurntSushi/toml"
)

// SourceKind distinguishes the two lock source shapes.
type SourceKind int

// Lock source kinds.
const (
	SourceURL SourceKind = iota
	SourcePath
)

// EntrySource records where a direct lock entry came from. A transitive
// entry has no source at all (LockEntry.Source == nil).
type EntrySource struct {
	Kind SourceKind

	URL    string
	Subdir string

	Path string
}

// LockEntry is one resolved dependency. Source == nil designates a
// transitive entry, promoted from inside another dependency's archive
// rather than declared directly in the manifest.
type LockEntry struct {
	Source *EntrySource
	Digest Digest
	Deps   []Identifier
}

// Lock is the sorted mapping from Identifier to LockEntry described in
// spec. Go maps have no inherent order; canonical ordering is realized at
// encode time (BurntSushi/toml's encoder sorts table keys) and imposed
// explicitly wherever this package iterates a Lock for output.
type Lock map[Identifier]LockEntry

// Get returns the entry for id, if present.
func (l Lock) Get(id Identifier) (LockEntry, bool) {
	e, ok := l[id]
	return e, ok
}

// Clone returns a deep copy, safe to mutate independently of l.
func (l Lock) Clone() Lock {
	out := make(Lock, len(l))
	for id, e := range l {
		e.Deps = append([]Identifier(nil), e.Deps...)
		out[id] = e
	}
	return out
}

// SortedIdentifiers returns the lock's keys in canonical (lexicographic)
// order.
func (l Lock) SortedIdentifiers() []Identifier {
	ids := make([]Identifier, 0, len(l))
	for id := range l {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Equal reports whether l and other contain the same entries. Used to
// decide whether a freshly reconciled lock differs from the one on disk,
// per the "write only if it changed" rule.
func (l Lock) Equal(other Lock) bool {
	if len(l) != len(other) {
		return false
	}
	for id, e := range l {
		o, ok := other[id]
		if !ok || !lockEntryEqual(e, o) {
			return false
		}
	}
	return true
}

func lockEntryEqual(a, b LockEntry) bool {
	if !a.Digest.Equal(b.Digest) {
		return false
	}
	if (a.Source == nil) != (b.Source == nil) {
		return false
	}
	if a.Source != nil && *a.Source != *b.Source {
		return false
	}
	if len(a.Deps) != len(b.Deps) {
		return false
	}
	for i := range a.Deps {
		if a.Deps[i] != b.Deps[i] {
			return false
		}
	}
	return true
}

// sourceMatches reports whether a manifest entry's source-identifying
// fields (url+subdir, or path) exactly match a previous lock source.
func sourceMatches(e Entry, s *EntrySource) bool {
	if s == nil {
		return false
	}
	switch e.Kind {
	case EntryURL:
		return s.Kind == SourceURL && s.URL == e.URL.String() && s.Subdir == e.Subdir
	case EntryPath:
		return s.Kind == SourcePath && s.Path == e.Path
	default:
		return false
	}
}

// lockEntryWire is the flat TOML representation of a LockEntry: the
// tagged-union source is flattened into optional url/subdir/path fields,
// exactly as lock.rs's #[serde(untagged)] EntrySource does.
type lockEntryWire struct {
	URL    string   `toml:"url,omitempty"`
	Subdir string   `toml:"subdir,omitempty"`
	Path   string   `toml:"path,omitempty"`
	Sha256 string   `toml:"sha256,omitempty"`
	Sha512 string   `toml:"sha512,omitempty"`
	Deps   []string `toml:"deps,omitempty"`
}

func lockEntryToWire(e LockEntry) lockEntryWire {
	w := lockEntryWire{
		Sha256: e.Digest.Sha256Hex(),
		Sha512: e.Digest.Sha512Hex(),
		Deps:   e.Deps,
	}
	if e.Source != nil {
		switch e.Source.Kind {
		case SourceURL:
			w.URL = e.Source.URL
			if e.Source.Subdir != "wit" {
				w.Subdir = e.Source.Subdir
			}
		case SourcePath:
			w.Path = e.Source.Path
		}
	}
	return w
}

func lockEntryFromWire(id Identifier, w lockEntryWire) (LockEntry, error) {
	var entry LockEntry

	if w.Sha256 != "" {
		b, err := ParseSha256Hex(w.Sha256)
		if err != nil {
			return entry, fmt.Errorf("%w: lock entry %q: %w", ErrDecode, id, err)
		}
		entry.Digest.Sha256 = b
	}
	if w.Sha512 != "" {
		b, err := ParseSha512Hex(w.Sha512)
		if err != nil {
			return entry, fmt.Errorf("%w: lock entry %q: %w", ErrDecode, id, err)
		}
		entry.Digest.Sha512 = b
	}

	deps := append([]string(nil), w.Deps...)
	sort.Strings(deps)
	entry.Deps = deps

	switch {
	case w.URL != "":
		u, err := url.Parse(w.URL)
		if err != nil {
			return entry, fmt.Errorf("%w: lock entry %q: invalid url %q: %w", ErrDecode, id, w.URL, err)
		}
		subdir := w.Subdir
		if subdir == "" {
			subdir = "wit"
		}
		entry.Source = &EntrySource{Kind: SourceURL, URL: u.String(), Subdir: subdir}
	case w.Path != "":
		entry.Source = &EntrySource{Kind: SourcePath, Path: w.Path}
	default:
		entry.Source = nil
	}

	return entry, nil
}

// DecodeLock decodes a TOML lock document.
func DecodeLock(r io.Reader) (Lock, error) {
	raw := make(map[string]lockEntryWire)
	if _, err := toml.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: decode lock: %w", ErrDecode, err)
	}

	lock := make(Lock, len(raw))
	for id, w := range raw {
		entry, err := lockEntryFromWire(id, w)
		if err != nil {
			return nil, err
		}
		lock[id] = entry
	}
	return lock, nil
}

// EncodeLock writes lock as a canonical TOML document. BurntSushi/toml's
// encoder sorts map keys alphabetically, which is exactly the
// identifier-lexicographic order the lock format requires — canonical
// ordering falls out of the encoder for free.
func EncodeLock(w io.Writer, lock Lock) error {
	raw := make(map[string]lockEntryWire, len(lock))
	for id, e := range lock {
		raw[id] = lockEntryToWire(e)
	}
	if err := toml.NewEncoder(w).Encode(raw); err != nil {
		return fmt.Errorf("%w: encode lock: %w", ErrDecode, err)
	}
	return nil
}

// EncodeLockString renders lock as a TOML string.
func EncodeLockString(lock Lock) (string, error) {
	var buf bytes.Buffer
	if err := EncodeLock(&buf, lock); err != nil {
		return "", err
	}
	return buf.String(), nil
}
