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
	"fmt"
	"io"
	"net/url"

	"github.com/BurntSushi/toml"
)

// Identifier names a dependency. Equality and ordering are lexicographic
// on the raw bytes, which is also Go's native string ordering.
type Identifier = string

// EntryKind distinguishes the two manifest entry shapes.
type EntryKind int

// Manifest entry kinds.
const (
	EntryURL EntryKind = iota
	EntryPath
)

// Entry is a single manifest declaration: either a remote tarball (Url) or
// a local directory (Path).
type Entry struct {
	Kind EntryKind

	// Populated when Kind == EntryURL.
	URL    *url.URL
	Sha256 *[32]byte
	Sha512 *[64]byte
	Subdir string

	// Populated when Kind == EntryPath.
	Path string
}

// Manifest is a mapping from Identifier to its declared entry.
type Manifest map[Identifier]Entry

// DecodeManifest decodes a TOML manifest document. Duplicate identifiers
// are rejected by the TOML parser itself before UnmarshalTOML ever runs.
func DecodeManifest(r io.Reader) (Manifest, error) {
	raw := make(map[string]Entry)
	if _, err := toml.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: decode manifest: %w", ErrDecode, err)
	}
	return Manifest(raw), nil
}

// UnmarshalTOML implements toml.Unmarshaler. BurntSushi/toml hands back
// either the bare scalar for a string value, or a map[string]interface{}
// for an inline table; this mirrors the tagged-union Deserialize the
// original Rust manifest model implements by hand.
func (e *Entry) UnmarshalTOML(data interface{}) error {
	switch v := data.(type) {
	case string:
		return e.unmarshalString(v)
	case map[string]interface{}:
		return e.unmarshalTable(v)
	default:
		return fmt.Errorf("%w: manifest entry must be a string or table, got %T", ErrDecode, data)
	}
}

// unmarshalString handles the bare-string entry form: parsed first as a
// URL with a scheme, falling back to a path when it has none.
func (e *Entry) unmarshalString(s string) error {
	if u, err := url.Parse(s); err == nil && u.Scheme != "" {
		e.Kind = EntryURL
		e.URL = u
		e.Subdir = "wit"
		return nil
	}
	e.Kind = EntryPath
	e.Path = s
	return nil
}

var manifestEntryFields = map[string]struct{}{
	"path":   {},
	"url":    {},
	"sha256": {},
	"sha512": {},
	"subdir": {},
}

// unmarshalTable handles the inline-table entry form.
func (e *Entry) unmarshalTable(m map[string]interface{}) error {
	for k := range m {
		if _, ok := manifestEntryFields[k]; !ok {
			return fmt.Errorf("%w: unknown manifest field %q", ErrDecode, k)
		}
	}

	pathVal, hasPath := m["path"]
	_, hasURL := m["url"]
	_, hasSha256 := m["sha256"]
	_, hasSha512 := m["sha512"]
	_, hasSubdir := m["subdir"]

	if hasPath && (hasURL || hasSha256 || hasSha512 || hasSubdir) {
		return fmt.Errorf("%w: manifest entry combines `path` with url-only fields", ErrInvariant)
	}

	if hasPath {
		s, ok := pathVal.(string)
		if !ok {
			return fmt.Errorf("%w: `path` must be a string", ErrDecode)
		}
		e.Kind = EntryPath
		e.Path = s
		return nil
	}

	if !hasURL {
		return fmt.Errorf("%w: manifest entry must set `path` or `url`", ErrDecode)
	}

	rawURL, ok := m["url"].(string)
	if !ok {
		return fmt.Errorf("%w: `url` must be a string", ErrDecode)
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("%w: invalid url %q: %w", ErrDecode, rawURL, err)
	}

	e.Kind = EntryURL
	e.URL = u
	e.Subdir = "wit"

	if hasSubdir {
		s, ok := m["subdir"].(string)
		if !ok {
			return fmt.Errorf("%w: `subdir` must be a string", ErrDecode)
		}
		e.Subdir = s
	}
	if hasSha256 {
		s, ok := m["sha256"].(string)
		if !ok {
			return fmt.Errorf("%w: `sha256` must be a string", ErrDecode)
		}
		b, err := ParseSha256Hex(s)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrDecode, err)
		}
		e.Sha256 = &b
	}
	if hasSha512 {
		s, ok := m["sha512"].(string)
		if !ok {
			return fmt.Errorf("%w: `sha512` must be a string", ErrDecode)
		}
		b, err := ParseSha512Hex(s)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrDecode, err)
		}
		e.Sha512 = &b
	}

	return nil
}
