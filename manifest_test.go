package witdeps

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeManifest_BareStringURL(t *testing.T) {
	m, err := DecodeManifest(strings.NewReader(`foo = "https://example.com/foo.tar.gz"`))
	require.NoError(t, err)

	entry := m["foo"]
	assert.Equal(t, EntryURL, entry.Kind)
	assert.Equal(t, "https://example.com/foo.tar.gz", entry.URL.String())
	assert.Equal(t, "wit", entry.Subdir)
}

func TestDecodeManifest_BareStringPath(t *testing.T) {
	m, err := DecodeManifest(strings.NewReader(`baz = "./local-baz"`))
	require.NoError(t, err)

	entry := m["baz"]
	assert.Equal(t, EntryPath, entry.Kind)
	assert.Equal(t, "./local-baz", entry.Path)
}

func TestDecodeManifest_TableWithPins(t *testing.T) {
	m, err := DecodeManifest(strings.NewReader(`
bar = { url = "https://example.com/bar.tar.gz", sha256 = "` +
		strings.Repeat("ab", 32) + `" }
`))
	require.NoError(t, err)

	entry := m["bar"]
	require.Equal(t, EntryURL, entry.Kind)
	require.NotNil(t, entry.Sha256)
	assert.Nil(t, entry.Sha512)
}

func TestDecodeManifest_TableWithSubdir(t *testing.T) {
	m, err := DecodeManifest(strings.NewReader(`pkg = { url = "https://example.com/pkg.tar.gz", subdir = "interfaces" }`))
	require.NoError(t, err)
	assert.Equal(t, "interfaces", m["pkg"].Subdir)
}

func TestDecodeManifest_PathCombinedWithURLFieldIsError(t *testing.T) {
	_, err := DecodeManifest(strings.NewReader(`bad = { path = "./x", sha256 = "` + strings.Repeat("ab", 32) + `" }`))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDecode)
}

func TestDecodeManifest_UnknownFieldIsError(t *testing.T) {
	_, err := DecodeManifest(strings.NewReader(`bad = { url = "https://example.com/x.tar.gz", bogus = true }`))
	require.Error(t, err)
}

func TestDecodeManifest_DuplicateIdentifierIsError(t *testing.T) {
	_, err := DecodeManifest(strings.NewReader("foo = \"./a\"\nfoo = \"./b\"\n"))
	assert.Error(t, err)
}

func TestDecodeManifest_Empty(t *testing.T) {
	m, err := DecodeManifest(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, m)
}
