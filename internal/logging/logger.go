// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"
	"github.com/pterm/pterm"
	"golang.org/x/term"
)

// ParseLevel maps a level name to slog. Unknown names mean info.
func ParseLevel(name string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug", "trace":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewCLI returns the interactive logger. It renders through pterm so log
// lines match the rest of the terminal output.
func NewCLI(w io.Writer, level slog.Level) *slog.Logger {
	pl := pterm.DefaultLogger.WithWriter(w).WithLevel(ptermLevel(level))
	return slog.New(&maskHandler{Handler: pterm.NewSlogHandler(pl)})
}

// NewServer returns the logger used by long-running commands. Lines are
// colorized key=value records with UTC millisecond timestamps; secrets in
// the message, string attributes and error values are masked and empty
// string attributes dropped.
func NewServer(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(&maskHandler{Handler: tint.NewHandler(w, &tint.Options{
		Level:      level,
		NoColor:    !isTerminal(w),
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				a.Value = slog.TimeValue(a.Value.Time().UTC().Truncate(time.Millisecond))
				return a
			}
			if a.Value.Kind() == slog.KindString && a.Value.String() == "" {
				return slog.Attr{}
			}
			return a
		},
	})})
}

func ptermLevel(l slog.Level) pterm.LogLevel {
	switch {
	case l <= slog.LevelDebug:
		return pterm.LogLevelDebug
	case l <= slog.LevelInfo:
		return pterm.LogLevelInfo
	case l <= slog.LevelWarn:
		return pterm.LogLevelWarn
	default:
		return pterm.LogLevelError
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
