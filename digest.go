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
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"hash"
	"io"

	godigest "github.com/opencontainers/go-digest"
)

// Digest is the dual sha256/sha512 fingerprint of a resolved dependency's
// canonical packed form. Both halves are always computed together; a
// fixed-size byte array makes the pair directly comparable with ==.
type Digest struct {
	Sha256 [sha256.Size]byte
	Sha512 [sha512.Size]byte
}

// Equal reports whether d and other hash to the same bytes.
func (d Digest) Equal(other Digest) bool {
	return d == other
}

// Sha256Hex returns the lowercase hex encoding of the sha256 half.
func (d Digest) Sha256Hex() string {
	return hex.EncodeToString(d.Sha256[:])
}

// Sha512Hex returns the lowercase hex encoding of the sha512 half.
func (d Digest) Sha512Hex() string {
	return hex.EncodeToString(d.Sha512[:])
}

// String renders both halves as their canonical "alg:hex" digest strings,
// separated by ", ".
func (d Digest) String() string {
	return fmt.Sprintf("%s, %s",
		godigest.NewDigestFromBytes(godigest.SHA256, d.Sha256[:]),
		godigest.NewDigestFromBytes(godigest.SHA512, d.Sha512[:]))
}

// ParseSha256Hex validates and decodes a sha256 hex string, as found in a
// manifest pin or a lock entry.
func ParseSha256Hex(s string) ([sha256.Size]byte, error) {
	var out [sha256.Size]byte
	dgst := godigest.NewDigestFromEncoded(godigest.SHA256, s)
	if err := dgst.Validate(); err != nil {
		return out, fmt.Errorf("invalid sha256 digest %q: %w", s, err)
	}
	b, err := hex.DecodeString(dgst.Encoded())
	if err != nil {
		return out, err
	}
	copy(out[:], b)
	return out, nil
}

// ParseSha512Hex validates and decodes a sha512 hex string.
func ParseSha512Hex(s string) ([sha512.Size]byte, error) {
	var out [sha512.Size]byte
	dgst := godigest.NewDigestFromEncoded(godigest.SHA512, s)
	if err := dgst.Validate(); err != nil {
		return out, fmt.Errorf("invalid sha512 digest %q: %w", s, err)
	}
	b, err := hex.DecodeString(dgst.Encoded())
	if err != nil {
		return out, err
	}
	copy(out[:], b)
	return out, nil
}

// DigestReader hashes bytes as they are read from the wrapped reader,
// feeding sha256 and sha512 incrementally from the same chunk so the
// underlying stream is never buffered in full.
type DigestReader struct {
	r    io.Reader
	h256 hash.Hash
	h512 hash.Hash
}

// NewDigestReader wraps r so that every byte consumed from it is hashed.
func NewDigestReader(r io.Reader) *DigestReader {
	return &DigestReader{r: r, h256: sha256.New(), h512: sha512.New()}
}

// Read implements io.Reader.
func (d *DigestReader) Read(p []byte) (int, error) {
	n, err := d.r.Read(p)
	if n > 0 {
		d.h256.Write(p[:n])
		d.h512.Write(p[:n])
	}
	return n, err
}

// Digest finalizes and returns the hash of everything read so far. It may
// be called more than once; later calls include any bytes read since the
// previous call.
func (d *DigestReader) Digest() Digest {
	var out Digest
	copy(out.Sha256[:], d.h256.Sum(nil))
	copy(out.Sha512[:], d.h512.Sum(nil))
	return out
}

// DigestWriter hashes bytes as they are written, then forwards them to the
// wrapped writer. Passing io.Discard makes it a pure digest sink, used to
// digest an on-disk tree by tarring it into the void.
type DigestWriter struct {
	w    io.Writer
	h256 hash.Hash
	h512 hash.Hash
}

// NewDigestWriter wraps w so that every byte written through it is hashed
// before being forwarded. A nil w is equivalent to io.Discard.
func NewDigestWriter(w io.Writer) *DigestWriter {
	if w == nil {
		w = io.Discard
	}
	return &DigestWriter{w: w, h256: sha256.New(), h512: sha512.New()}
}

// Write implements io.Writer.
func (d *DigestWriter) Write(p []byte) (int, error) {
	d.h256.Write(p)
	d.h512.Write(p)
	return d.w.Write(p)
}

// Digest finalizes and returns the hash of everything written so far.
func (d *DigestWriter) Digest() Digest {
	var out Digest
	copy(out.Sha256[:], d.h256.Sum(nil))
	copy(out.Sha512[:], d.h512.Sum(nil))
	return out
}
