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
	"archive/tar"
	"bytes"
	"compress/gzip"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
)

func buildTarballGz(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var tarBuf bytes.Buffer
	tw := tar.NewWriter(&tarBuf)
	for name, content := range files {
		if err := tw.WriteHeader(&tar.Header{Name: name, Mode: 0o644, Size: int64(len(content))}); err != nil {
			t.Fatal(err)
		}
		if _, err := tw.Write([]byte(content)); err != nil {
			t.Fatal(err)
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatal(err)
	}

	var gzBuf bytes.Buffer
	gw := gzip.NewWriter(&gzBuf)
	if _, err := gw.Write(tarBuf.Bytes()); err != nil {
		t.Fatal(err)
	}
	if err := gw.Close(); err != nil {
		t.Fatal(err)
	}
	return gzBuf.Bytes()
}

func TestRootCommand_DefaultFlags(t *testing.T) {
	t.Parallel()

	if got := rootCmd.PersistentFlags().Lookup("manifest").DefValue; got != "wit/deps.toml" {
		t.Errorf("manifest default = %q, want %q", got, "wit/deps.toml")
	}
	if got := rootCmd.PersistentFlags().Lookup("lock").DefValue; got != "wit/deps.lock" {
		t.Errorf("lock default = %q, want %q", got, "wit/deps.lock")
	}
	if got := rootCmd.PersistentFlags().Lookup("deps").DefValue; got != "wit/deps" {
		t.Errorf("deps default = %q, want %q", got, "wit/deps")
	}
}

func writeTestFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestLockCommand_WritesLockThenNoOpsOnRerun(t *testing.T) {
	root := t.TempDir()
	writeTestFile(t, filepath.Join(root, "local-foo", "a.wit"), "interface a")
	manifestPath := filepath.Join(root, "deps.toml")
	writeTestFile(t, manifestPath, `foo = "./local-foo"`)
	lockPath := filepath.Join(root, "deps.lock")
	depsPath := filepath.Join(root, "deps")

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs([]string{
		"lock",
		"--manifest", manifestPath,
		"--lock", lockPath,
		"--deps", depsPath,
	})
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("lock command returned error: %v", err)
	}

	if _, err := os.Stat(lockPath); err != nil {
		t.Fatalf("expected lock file at %q: %v", lockPath, err)
	}

	rootCmd.SetArgs([]string{
		"lock", "--check",
		"--manifest", manifestPath,
		"--lock", lockPath,
		"--deps", depsPath,
	})
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("--check should succeed once the lock is up to date, got: %v", err)
	}
}

func TestTarCommand_EmitsArchiveForResolvedDependency(t *testing.T) {
	root := t.TempDir()
	writeTestFile(t, filepath.Join(root, "local-foo", "a.wit"), "interface a")
	manifestPath := filepath.Join(root, "deps.toml")
	writeTestFile(t, manifestPath, `foo = "./local-foo"`)
	lockPath := filepath.Join(root, "deps.lock")
	depsPath := filepath.Join(root, "deps")
	outPath := filepath.Join(root, "foo.tar")

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs([]string{
		"tar", "foo",
		"--manifest", manifestPath,
		"--lock", lockPath,
		"--deps", depsPath,
		"-o", outPath,
	})
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("tar command returned error: %v", err)
	}

	info, err := os.Stat(outPath)
	if err != nil {
		t.Fatalf("expected tar output at %q: %v", outPath, err)
	}
	if info.Size() == 0 {
		t.Error("tar output should not be empty")
	}
}

// TestUpdateCommand_AlwaysRefetches guards against a regression where
// update, like lock, consulted the on-disk reuse check and silently skipped
// the network fetch whenever wit/deps already matched deps.lock — exactly
// the case update exists to handle.
func TestUpdateCommand_AlwaysRefetches(t *testing.T) {
	payload := buildTarballGz(t, map[string]string{"a.wit": "interface a"})

	var hits int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&hits, 1)
		_, _ = w.Write(payload)
	}))
	defer srv.Close()

	root := t.TempDir()
	manifestPath := filepath.Join(root, "deps.toml")
	writeTestFile(t, manifestPath, `foo = "`+srv.URL+`/pkg.tar.gz"`)
	lockPath := filepath.Join(root, "deps.lock")
	depsPath := filepath.Join(root, "deps")

	// Flag values persist across Execute calls in one process: clear the
	// --check that TestLockCommand_WritesLockThenNoOpsOnRerun left set.
	lockOptions.check = false

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs([]string{
		"lock",
		"--manifest", manifestPath,
		"--lock", lockPath,
		"--deps", depsPath,
	})
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("initial lock returned error: %v", err)
	}
	if got := atomic.LoadInt64(&hits); got != 1 {
		t.Fatalf("expected 1 fetch after initial lock, got %d", got)
	}

	// wit/deps now matches deps.lock exactly: lock would reuse it, but
	// update must refetch anyway.
	rootCmd.SetArgs([]string{
		"update",
		"--manifest", manifestPath,
		"--lock", lockPath,
		"--deps", depsPath,
	})
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("update returned error: %v", err)
	}
	if got := atomic.LoadInt64(&hits); got != 2 {
		t.Fatalf("expected update to refetch even though local state matched the lock, got %d total fetches", got)
	}
}
