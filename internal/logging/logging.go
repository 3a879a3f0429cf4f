// Package logging configures the process-wide slog logger for the binaries.
package logging

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
)

// Setup installs a tint handler on stderr as the default logger and returns
// its level so it can be changed once flags are parsed.
func Setup() *slog.LevelVar {
	ll := &slog.LevelVar{}
	ll.Set(slog.LevelInfo)
	slog.SetDefault(slog.New(NewHandler(os.Stderr, ll)))
	return ll
}

// NewHandler returns a tint handler writing to f.
//
// Colors are only used when f is a terminal. Timestamps are skipped under
// systemd, which adds its own. Zero-valued attributes are dropped.
func NewHandler(f *os.File, level slog.Leveler) slog.Handler {
	underSystemd := os.Getenv("JOURNAL_STREAM") != ""
	return tint.NewHandler(colorable.NewColorable(f), &tint.Options{
		Level:      level,
		TimeFormat: "15:04:05.000", // Like time.TimeOnly plus milliseconds.
		NoColor:    !isatty.IsTerminal(f.Fd()),
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if underSystemd && a.Key == slog.TimeKey && len(groups) == 0 {
				return slog.Attr{}
			}
			// Drop localhost IPs.
			if a.Key == "ip" {
				if v := a.Value.String(); v == "127.0.0.1" || v == "::1" {
					return slog.Attr{}
				}
			}
			if isZero(a.Value.Any()) {
				return slog.Attr{}
			}
			return a
		},
	})
}

func isZero(val any) bool {
	switch t := val.(type) {
	case string:
		return t == ""
	case bool:
		return !t
	case uint64:
		return t == 0
	case int64:
		return t == 0
	case float64:
		return t == 0
	case time.Time:
		return t.IsZero()
	case time.Duration:
		return t == 0
	case nil:
		return true
	}
	return false
}

// SetLevel parses name and applies it to ll.
func SetLevel(ll *slog.LevelVar, name string) error {
	switch name {
	case "debug":
		ll.Set(slog.LevelDebug)
	case "info":
		ll.Set(slog.LevelInfo)
	case "warn":
		ll.Set(slog.LevelWarn)
	case "error":
		ll.Set(slog.LevelError)
	default:
		return fmt.Errorf("unknown log level: %q", name)
	}
	return nil
}
