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
	"archive/tar"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
)

// dirPerm is used whenever this package creates a directory.
const dirPerm = 0o755

// filePerm is used whenever this package creates a file.
const filePerm = 0o644

// sanitizePathComponent substitutes filesystem-reserved characters (":"
// being the only one that matters in practice) in an identifier used as a
// directory name, while the identifier itself is kept verbatim everywhere
// else (lock entries, error messages).
func sanitizePathComponent(id string) string {
	return strings.ReplaceAll(id, ":", "_")
}

// recreateDir removes dir (if present) and creates it fresh.
func recreateDir(dir string) error {
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("%w: remove %q: %w", ErrFilesystem, dir, err)
	}
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return fmt.Errorf("%w: create %q: %w", ErrFilesystem, dir, err)
	}
	return nil
}

func isWitFile(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".wit")
}

// Pack writes a deterministic tar stream to w containing the .wit files
// found directly in dir, laid out flat under a wit/ prefix. Sub-directories,
// non-.wit files, and symlinks to directories are skipped. No wit/deps/
// layer is ever produced by Pack — that shape only exists in tarballs this
// module unpacks, never in ones it packs.
func Pack(dir string, w io.Writer) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("%w: read directory %q: %w", ErrFilesystem, dir, err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !isWitFile(e.Name()) {
			continue
		}
		if e.Type()&os.ModeSymlink != 0 {
			if fi, err := os.Stat(filepath.Join(dir, e.Name())); err == nil && fi.IsDir() {
				continue
			}
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	tw := tar.NewWriter(w)
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return fmt.Errorf("%w: read %q: %w", ErrFilesystem, name, err)
		}

		// Header fields are left at their zero values (Uid, Gid, Uname,
		// Gname, ModTime) so that two packs of identical content always
		// produce byte-identical archives.
		hdr := &tar.Header{
			Name:     path.Join("wit", name),
			Mode:     filePerm,
			Size:     int64(len(data)),
			Typeflag: tar.TypeReg,
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return fmt.Errorf("%w: write header for %q: %w", ErrArchive, name, err)
		}
		if _, err := tw.Write(data); err != nil {
			return fmt.Errorf("%w: write contents of %q: %w", ErrArchive, name, err)
		}
	}
	return tw.Close()
}

// DigestOfDir computes the Digest of dir by packing it and hashing the
// resulting tar stream without ever materializing it in memory or on disk.
func DigestOfDir(dir string) (Digest, error) {
	w := NewDigestWriter(nil)
	if err := Pack(dir, w); err != nil {
		return Digest{}, err
	}
	return w.Digest(), nil
}

// matchWitPath recognizes the two path shapes Unpack understands:
//
//	[<any>/]<subdir>/<name>            -> direct entry, id == ""
//	[<any>/]<subdir>/deps/<id>/<name>  -> transitive entry
//
// The optional leading component absorbs a GitHub-style archive prefix
// (e.g. "owner-repo-abcd123/"). subdir is matched exactly; only the
// trailing .wit extension check (done by the caller) is case-insensitive.
func matchWitPath(parts []string, subdir string) (name, id string, ok bool) {
	for _, lead := range [2]int{0, 1} {
		if len(parts) <= lead {
			continue
		}
		rest := parts[lead:]
		switch {
		case len(rest) == 2 && rest[0] == subdir:
			return rest[1], "", true
		case len(rest) == 4 && rest[0] == subdir && rest[1] == "deps":
			return rest[3], rest[2], true
		}
	}
	return "", "", false
}

// Unpack reads a plain tar stream and writes out only the entries matching
// one of the two shapes documented on matchWitPath. out is removed and
// recreated first. Each distinct transitive identifier's sibling
// directory, <out>/../<id>, is removed and recreated the first time it is
// encountered in this call; identifiers present in skip are never
// materialized (the direct manifest entry for that id always wins).
// Unpack returns the id -> directory mapping of every transitive
// dependency it produced.
func Unpack(r io.Reader, out string, skip map[string]struct{}, subdir string) (map[string]string, error) {
	if subdir == "" {
		subdir = "wit"
	}
	if err := recreateDir(out); err != nil {
		return nil, err
	}

	parent := filepath.Dir(out)
	deps := make(map[string]string)

	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return deps, fmt.Errorf("%w: read tar entry: %w", ErrArchive, err)
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}

		parts := strings.Split(path.Clean(hdr.Name), "/")
		name, id, ok := matchWitPath(parts, subdir)
		if !ok || !isWitFile(name) {
			continue
		}

		dest := filepath.Join(out, name)
		if id != "" {
			if _, skipped := skip[id]; skipped {
				continue
			}
			depDir, seen := deps[id]
			if !seen {
				depDir = filepath.Join(parent, sanitizePathComponent(id))
				if err := recreateDir(depDir); err != nil {
					return deps, err
				}
				deps[id] = depDir
			}
			dest = filepath.Join(depDir, name)
		}

		if err := writeEntry(dest, tr); err != nil {
			return deps, err
		}
	}

	return deps, nil
}

func writeEntry(dest string, r io.Reader) error {
	f, err := os.OpenFile(dest, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, filePerm)
	if err != nil {
		return fmt.Errorf("%w: create %q: %w", ErrFilesystem, dest, err)
	}
	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		return fmt.Errorf("%w: write %q: %w", ErrArchive, dest, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("%w: close %q: %w", ErrFilesystem, dest, err)
	}
	return nil
}
