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
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	witdeps "github.com/go-wit/witdeps"
)

var tarOptions struct {
	output string
}

var tarCmd = &cobra.Command{
	Use:   "tar <id>",
	Short: "Sync the lock, then emit the deterministic tar of a resolved dependency",
	Args:  cobra.ExactArgs(1),
	RunE:  runTar,
}

func init() {
	tarCmd.Flags().StringVarP(&tarOptions.output, "output", "o", "", "write the tar archive here instead of stdout")
}

func runTar(cmd *cobra.Command, args []string) error {
	if err := reconcileAndWrite(cmd, false, nil, false); err != nil {
		return err
	}

	id := args[0]
	dir := filepath.Join(opts.deps, id)
	if _, err := os.Stat(dir); err != nil {
		return fmt.Errorf("dependency %q is not resolved under %q: %w", id, opts.deps, err)
	}

	out := cmd.OutOrStdout()
	if tarOptions.output != "" {
		f, err := os.OpenFile(tarOptions.output, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("failed to open %q: %w", tarOptions.output, err)
		}
		defer f.Close()
		out = f
	}

	return witdeps.Tar(cmd.Context(), dir, out)
}
