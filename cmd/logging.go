// Copyright © 2024 The bpflint authors

package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// logEnv names the environment variable that overrides the log level.
const logEnv = "BPFLINT_LOG"

// LevelTrace is more verbose than slog.LevelDebug.
const LevelTrace = slog.LevelDebug - 4

// verbosityLevel maps the number of -v flags to a log level.
func verbosityLevel(n int) slog.Level {
	switch {
	case n <= 0:
		return slog.LevelWarn
	case n == 1:
		return slog.LevelInfo
	case n == 2:
		return slog.LevelDebug
	default:
		return LevelTrace
	}
}

// parseLevel parses a level name: trace, debug, info, warn or error.
func parseLevel(s string) (slog.Level, error) {
	if strings.EqualFold(strings.TrimSpace(s), "trace") {
		return LevelTrace, nil
	}
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return 0, fmt.Errorf("%s: unknown log level %q", logEnv, s)
	}
	return l, nil
}

// newLogger returns a text logger writing to w.  A non-empty env takes
// precedence over the verbosity count.
func newLogger(w io.Writer, verbosity int, env string) (*slog.Logger, error) {
	level := verbosityLevel(verbosity)
	if env != "" {
		var err error
		if level, err = parseLevel(env); err != nil {
			return nil, err
		}
	}
	h := slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.LevelKey && len(groups) == 0 {
				if l, ok := a.Value.Any().(slog.Level); ok && l <= LevelTrace {
					a.Value = slog.StringValue("TRACE")
				}
			}
			return a
		},
	})
	return slog.New(h), nil
}
