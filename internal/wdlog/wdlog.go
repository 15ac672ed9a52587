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

// Package wdlog provides the leveled, colorized logger used throughout
// witdeps. All messages go to stderr, per 12-factor app conventions; the
// archive that `witdeps tar` emits when no -o path is given is the only
// program output witdeps writes to stdout.
package wdlog

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/fatih/color"
)

// logger is the package-level default, used by the global helper functions.
var logger *Logger

// Level is the severity of a log message.
type Level int

// Severity levels, in the order witdeps emits them during reconciliation.
const (
	LevelInfo Level = iota
	LevelWarn
	LevelDebug
	LevelError
)

// Format controls how a message is rendered on the console.
type Format int

// Supported console formats. FormatJSON is accepted by ParseFormat, but
// messages under it are rendered as plain text, the same as FormatPlain.
const (
	FormatPlain Format = iota
	FormatColor
	FormatJSON
)

// Logger wraps leveled, colorized logging with quiet/verbose gates.
type Logger struct {
	Level   slog.Level
	Format  Format
	Quiet   bool
	Verbose bool
	Writer  io.Writer
}

// New creates a Logger writing to stderr at the given level.
func New(level slog.Level) *Logger {
	return &Logger{
		Level:  level,
		Format: FormatPlain,
		Writer: os.Stderr,
	}
}

// ParseLevel converts a string (as accepted by --log-level) to a slog.Level.
func ParseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ParseFormat converts a string (as accepted by --log-format) to a Format.
func ParseFormat(s string) Format {
	switch s {
	case "json":
		return FormatJSON
	case "color":
		return FormatColor
	default:
		return FormatPlain
	}
}

func (l *Logger) format(level Level, msg string, args ...interface{}) string {
	formatted := fmt.Sprintf(msg, args...)
	if l.Format != FormatColor {
		return formatted
	}

	colorFunc := map[Level]func(string, ...interface{}) string{
		LevelInfo:  color.GreenString,
		LevelWarn:  color.YellowString,
		LevelDebug: color.CyanString,
		LevelError: color.RedString,
	}[level]
	if colorFunc == nil {
		return formatted
	}
	return colorFunc("%s", formatted)
}

func (l *Logger) shouldShow(level Level) bool {
	if l.Quiet && level != LevelError {
		return false
	}

	var slogLevel slog.Level
	switch level {
	case LevelInfo:
		slogLevel = slog.LevelInfo
	case LevelWarn:
		slogLevel = slog.LevelWarn
	case LevelDebug:
		slogLevel = slog.LevelDebug
	case LevelError:
		slogLevel = slog.LevelError
	}

	if level == LevelError || level == LevelWarn {
		return true
	}
	if level == LevelInfo {
		return l.Level <= slogLevel
	}
	return l.Verbose || l.Level <= slogLevel
}

func (l *Logger) log(level Level, msg string, args ...interface{}) {
	if !l.shouldShow(level) || l.Writer == nil {
		return
	}
	_, _ = fmt.Fprintln(l.Writer, l.format(level, msg, args...))
}

// Info logs a reconciliation-progress message (one per network fetch, one
// per lock write).
func (l *Logger) Info(msg string, args ...interface{}) { l.log(LevelInfo, msg, args...) }

// Warn logs a recoverable fault: a cache entry that could not be read,
// unpacked or verified and is demoted to a network fetch, a disabled
// on-disk cache, a duplicate direct lock entry.
func (l *Logger) Warn(msg string, args ...interface{}) { l.log(LevelWarn, msg, args...) }

// Debug logs a per-file decision: skip/rebuild, copy, unpack.
func (l *Logger) Debug(msg string, args ...interface{}) { l.log(LevelDebug, msg, args...) }

// Error logs a fault that terminates an entry's reconciliation.
func (l *Logger) Error(msg string, args ...interface{}) { l.log(LevelError, msg, args...) }

func ensure() {
	if logger == nil {
		logger = New(slog.LevelInfo)
	}
}

type ctxKey struct{}

// WithLogger attaches l to ctx so that downstream reconciler goroutines can
// retrieve the same configured logger.
func WithLogger(ctx context.Context, l *Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// FromContext retrieves the logger attached to ctx, or the package default
// if none was attached.
func FromContext(ctx context.Context) *Logger {
	if ctx != nil {
		if l, ok := ctx.Value(ctxKey{}).(*Logger); ok && l != nil {
			return l
		}
	}
	ensure()
	return logger
}

// InfoContext logs through the logger carried by ctx.
func InfoContext(ctx context.Context, msg string, args ...interface{}) {
	FromContext(ctx).Info(msg, args...)
}

// WarnContext logs through the logger carried by ctx.
func WarnContext(ctx context.Context, msg string, args ...interface{}) {
	FromContext(ctx).Warn(msg, args...)
}

// DebugContext logs through the logger carried by ctx.
func DebugContext(ctx context.Context, msg string, args ...interface{}) {
	FromContext(ctx).Debug(msg, args...)
}

// ErrorContext logs through the logger carried by ctx.
func ErrorContext(ctx context.Context, msg string, args ...interface{}) {
	FromContext(ctx).Error(msg, args...)
}
