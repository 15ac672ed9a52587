package witdeps

import (
	"bytes"
	"crypto/sha256"
	"crypto/sha512"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDigestReader(t *testing.T) {
	content := []byte("interface a")

	r := NewDigestReader(bytes.NewReader(content))
	_, err := io.Copy(io.Discard, r)
	require.NoError(t, err)

	got := r.Digest()
	want256 := sha256.Sum256(content)
	want512 := sha512.Sum512(content)

	assert.Equal(t, want256, got.Sha256)
	assert.Equal(t, want512, got.Sha512)
}

func TestDigestWriter(t *testing.T) {
	content := []byte("interface b")

	var buf bytes.Buffer
	w := NewDigestWriter(&buf)
	n, err := w.Write(content)
	require.NoError(t, err)
	assert.Equal(t, len(content), n)
	assert.Equal(t, content, buf.Bytes())

	got := w.Digest()
	assert.Equal(t, sha256.Sum256(content), got.Sha256)
	assert.Equal(t, sha512.Sum512(content), got.Sha512)
}

func TestDigestWriter_DiscardSink(t *testing.T) {
	w := NewDigestWriter(nil)
	_, err := w.Write([]byte("interface c"))
	require.NoError(t, err)
	assert.NotEqual(t, Digest{}, w.Digest())
}

func TestDigest_Equal(t *testing.T) {
	a := NewDigestWriter(io.Discard)
	_, _ = a.Write([]byte("x"))
	b := NewDigestWriter(io.Discard)
	_, _ = b.Write([]byte("x"))
	c := NewDigestWriter(io.Discard)
	_, _ = c.Write([]byte("y"))

	assert.True(t, a.Digest().Equal(b.Digest()))
	assert.False(t, a.Digest().Equal(c.Digest()))
}

func TestParseSha256Hex(t *testing.T) {
	sum := sha256.Sum256([]byte("interface a"))
	hexStr := Digest{Sha256: sum}.Sha256Hex()

	got, err := ParseSha256Hex(hexStr)
	require.NoError(t, err)
	assert.Equal(t, sum, got)

	_, err = ParseSha256Hex("not-hex")
	assert.Error(t, err)

	_, err = ParseSha256Hex("abcd")
	assert.Error(t, err)
}

func TestParseSha512Hex(t *testing.T) {
	sum := sha512.Sum512([]byte("interface a"))
	hexStr := Digest{Sha512: sum}.Sha512Hex()

	got, err := ParseSha512Hex(hexStr)
	require.NoError(t, err)
	assert.Equal(t, sum, got)

	_, err = ParseSha512Hex("not-hex")
	assert.Error(t, err)
}
