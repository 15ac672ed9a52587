package witdeps

import (
	"archive/tar"
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestPack_FlatWitFilesOnly(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.wit"), "interface a")
	writeFile(t, filepath.Join(dir, "b.WIT"), "interface b")
	writeFile(t, filepath.Join(dir, "notes.txt"), "ignored")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "deps"), 0o755))

	var buf bytes.Buffer
	require.NoError(t, Pack(dir, &buf))

	names := tarNames(t, &buf)
	assert.Equal(t, []string{"wit/a.wit", "wit/b.WIT"}, names)
}

func tarNames(t *testing.T, r *bytes.Buffer) []string {
	t.Helper()
	tr := tar.NewReader(bytes.NewReader(r.Bytes()))
	var names []string
	for {
		hdr, err := tr.Next()
		if err != nil {
			break
		}
		names = append(names, hdr.Name)
	}
	return names
}

func TestPack_Deterministic(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "z.wit"), "interface z")
	writeFile(t, filepath.Join(dir, "a.wit"), "interface a")

	var first, second bytes.Buffer
	require.NoError(t, Pack(dir, &first))
	require.NoError(t, Pack(dir, &second))
	assert.Equal(t, first.Bytes(), second.Bytes())
}

func buildTar(t *testing.T, files map[string]string) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	for name, content := range files {
		require.NoError(t, tw.WriteHeader(&tar.Header{
			Name: name,
			Mode: 0o644,
			Size: int64(len(content)),
		}))
		_, err := tw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	return &buf
}

func TestUnpack_DirectEntry(t *testing.T) {
	archive := buildTar(t, map[string]string{
		"wit/a.wit":    "interface a",
		"wit/notes.md": "ignored",
	})

	root := t.TempDir()
	out := filepath.Join(root, "foo")

	deps, err := Unpack(archive, out, nil, "")
	require.NoError(t, err)
	assert.Empty(t, deps)

	got, err := os.ReadFile(filepath.Join(out, "a.wit"))
	require.NoError(t, err)
	assert.Equal(t, "interface a", string(got))

	_, err = os.Stat(filepath.Join(out, "notes.md"))
	assert.True(t, os.IsNotExist(err))
}

func TestUnpack_LeadingPrefixAndTransitive(t *testing.T) {
	archive := buildTar(t, map[string]string{
		"owner-repo-abc123/wit/a.wit":           "interface a",
		"owner-repo-abc123/wit/deps/sub/b.wit":  "interface b",
		"owner-repo-abc123/wit/deps/other/c.wit": "interface c",
	})

	root := t.TempDir()
	out := filepath.Join(root, "foo")

	deps, err := Unpack(archive, out, map[string]struct{}{"other": {}}, "")
	require.NoError(t, err)

	require.Contains(t, deps, "sub")
	assert.NotContains(t, deps, "other")

	got, err := os.ReadFile(filepath.Join(deps["sub"], "b.wit"))
	require.NoError(t, err)
	assert.Equal(t, "interface b", string(got))

	_, err = os.Stat(filepath.Join(root, "other"))
	assert.True(t, os.IsNotExist(err))
}

func TestUnpack_SubdirOverride(t *testing.T) {
	archive := buildTar(t, map[string]string{
		"pkg/a.wit": "interface a",
		"wit/a.wit": "ignored because subdir is overridden",
	})

	root := t.TempDir()
	out := filepath.Join(root, "foo")

	_, err := Unpack(archive, out, nil, "pkg")
	require.NoError(t, err)

	got, err := os.ReadFile(filepath.Join(out, "a.wit"))
	require.NoError(t, err)
	assert.Equal(t, "interface a", string(got))
}

func TestUnpack_RemovesStaleContents(t *testing.T) {
	root := t.TempDir()
	out := filepath.Join(root, "foo")
	writeFile(t, filepath.Join(out, "stale.wit"), "old")

	archive := buildTar(t, map[string]string{"wit/a.wit": "interface a"})
	_, err := Unpack(archive, out, nil, "")
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(out, "stale.wit"))
	assert.True(t, os.IsNotExist(err))
}

func TestPackUnpackRoundTrip(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.wit"), "interface a")
	writeFile(t, filepath.Join(dir, "empty.wit"), "")

	var packed bytes.Buffer
	require.NoError(t, Pack(dir, &packed))

	root := t.TempDir()
	out := filepath.Join(root, "foo")
	_, err := Unpack(bytes.NewReader(packed.Bytes()), out, nil, "")
	require.NoError(t, err)

	var repacked bytes.Buffer
	require.NoError(t, Pack(out, &repacked))

	assert.Equal(t, packed.Bytes(), repacked.Bytes())
}

func TestDigestOfDir_MatchesPackedDigest(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.wit"), "interface a")

	d1, err := DigestOfDir(dir)
	require.NoError(t, err)
	d2, err := DigestOfDir(dir)
	require.NoError(t, err)
	assert.Equal(t, d1, d2)

	packed := NewDigestWriter(nil)
	require.NoError(t, Pack(dir, packed))
	assert.Equal(t, d1, packed.Digest())

	writeFile(t, filepath.Join(dir, "b.wit"), "interface b")
	d3, err := DigestOfDir(dir)
	require.NoError(t, err)
	assert.NotEqual(t, d1, d3)
}
