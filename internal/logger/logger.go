// Package logger is the tagged console logger used across the service.
// Every line carries a short subsystem tag ("ESI", "CACHE", "SCAN", ...).
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	mu   sync.RWMutex
	base = newConsole(os.Stdout)
)

func newConsole(out io.Writer) zerolog.Logger {
	w := zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05"}
	return zerolog.New(w).With().Timestamp().Logger()
}

// Setup replaces the process logger. format is "console" or "json";
// level is any zerolog level name. A nil out writes to stdout.
func Setup(level, format string, out io.Writer) error {
	if out == nil {
		out = os.Stdout
	}
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	if lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}

	var l zerolog.Logger
	switch strings.ToLower(format) {
	case "json":
		l = zerolog.New(out).With().Timestamp().Logger()
	case "", "console":
		l = newConsole(out)
	default:
		return fmt.Errorf("logger: unknown format %q", format)
	}

	mu.Lock()
	base = l.Level(lvl)
	mu.Unlock()
	return nil
}

func current() zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return base
}

// With returns a child logger bound to tag, for callers that want fields.
func With(tag string) zerolog.Logger {
	return current().With().Str("tag", tag).Logger()
}

func Debug(tag, msg string) {
	l := current()
	l.Debug().Str("tag", tag).Msg(msg)
}

func Info(tag, msg string) {
	l := current()
	l.Info().Str("tag", tag).Msg(msg)
}

// Success logs at info level with ok=true so completions stand out.
func Success(tag, msg string) {
	l := current()
	l.Info().Str("tag", tag).Bool("ok", true).Msg(msg)
}

func Warn(tag, msg string) {
	l := current()
	l.Warn().Str("tag", tag).Msg(msg)
}

func Error(tag, msg string) {
	l := current()
	l.Error().Str("tag", tag).Msg(msg)
}

// Banner prints the startup line.
func Banner(version string) {
	if version == "" {
		version = "dev"
	}
	l := current()
	l.Info().Str("version", version).Time("started", time.Now().UTC()).Msg("eve-arbitrage")
}

// Section marks the beginning of a phase in the log.
func Section(title string) {
	l := current()
	l.Info().Str("section", title).Msg("---- " + title + " ----")
}

// Stats logs one key/value metric line.
func Stats(key string, value interface{}) {
	l := current()
	l.Info().Interface(key, value).Msg("stats")
}
