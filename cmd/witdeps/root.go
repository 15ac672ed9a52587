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
	"os"

	"github.com/spf13/cobra"

	"github.com/go-wit/witdeps/internal/wdlog"
)

// rootOptions holds the global, persistent flags shared by every
// subcommand plus the bare root invocation.
type rootOptions struct {
	manifest  string
	lock      string
	deps      string
	logLevel  string
	logFormat string
	quiet     bool
	verbose   bool
}

var opts rootOptions

var rootCmd = &cobra.Command{
	Use:   "witdeps",
	Short: "Reconcile WIT package dependencies",
	Long: `witdeps resolves the dependencies declared in a WIT deps manifest into a
lock file and an on-disk dependency tree, the way a package manager
resolves a lockfile from its manifest.

Run with no subcommand to reconcile once, equivalent to "witdeps lock".`,
	Args:              cobra.NoArgs,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: initLogging,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return reconcileAndWrite(cmd, false, nil, false)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&opts.manifest, "manifest", "wit/deps.toml", "path to the dependency manifest")
	rootCmd.PersistentFlags().StringVar(&opts.lock, "lock", "wit/deps.lock", "path to the lock file")
	rootCmd.PersistentFlags().StringVar(&opts.deps, "deps", "wit/deps", "path to the resolved dependency directory")
	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&opts.logFormat, "log-format", "", "log format (plain, color, json)")
	rootCmd.PersistentFlags().BoolVarP(&opts.quiet, "quiet", "q", false, "quiet mode - only show errors")
	rootCmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "verbose mode - show debug output")

	rootCmd.AddCommand(lockCmd)
	rootCmd.AddCommand(updateCmd)
	rootCmd.AddCommand(tarCmd)
}

// initLogging builds the request-scoped logger from flags, falling back to
// WITDEPS_LOG_LEVEL / WITDEPS_LOG_FORMAT when a flag was left at its
// default, and attaches it to the command's context.
func initLogging(cmd *cobra.Command, _ []string) error {
	level := opts.logLevel
	if level == "" {
		level = os.Getenv("WITDEPS_LOG_LEVEL")
	}
	format := opts.logFormat
	if format == "" {
		format = os.Getenv("WITDEPS_LOG_FORMAT")
	}

	logger := wdlog.New(wdlog.ParseLevel(level))
	logger.Format = wdlog.ParseFormat(format)
	logger.Quiet = opts.quiet
	logger.Verbose = opts.verbose

	cmd.SetContext(wdlog.WithLogger(cmd.Context(), logger))
	return nil
}

// Execute runs the root command and returns its error, if any.
func Execute() error {
	return rootCmd.Execute()
}
