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

import "errors"

// Error kinds. Errors returned by this package wrap one of these sentinels
// with fmt.Errorf's %w wherever the failure falls into one of these kinds,
// so that callers can classify it with errors.Is without a type switch.
// Some errors carry no sentinel: the manifest and lock read errors of
// LockPath and UpdatePath, the errors of ParseSha256Hex and ParseSha512Hex
// (wrapped in ErrDecode when they come from decoding a manifest or lock),
// the error from finishing the tar stream in Pack, and a failure to build
// an HTTP request.
var (
	// ErrDecode covers malformed TOML or hex digest strings.
	ErrDecode = errors.New("decode error")
	// ErrFilesystem covers a failed filesystem operation; the offending
	// path is always named alongside it.
	ErrFilesystem = errors.New("filesystem error")
	// ErrNetwork covers a failed HTTP fetch, including non-2xx status.
	ErrNetwork = errors.New("network error")
	// ErrArchive covers a corrupt tar or gzip stream.
	ErrArchive = errors.New("archive error")
	// ErrDigestMismatch covers a pinned hash that does not match the
	// resolved artifact.
	ErrDigestMismatch = errors.New("digest mismatch")
	// ErrScheme covers an unsupported or rejected URL scheme.
	ErrScheme = errors.New("unsupported url scheme")
	// ErrConflict covers two transitive dependencies sharing an
	// identifier but disagreeing on digest.
	ErrConflict = errors.New("transitive dependency conflict")
	// ErrInvariant covers a manifest entry combining path and URL fields.
	ErrInvariant = errors.New("invariant violated")
)
