// Package util provides shared helpers for logging, retries, rate limiting,
// and interval/period arithmetic on trading calendars.
package util

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// NewLogger creates a structured logger at the specified level. Supported
// levels: "debug", "info", "warn", "error". Unrecognised levels fall back to
// "info". Format "console" selects the human-readable writer, anything else
// emits JSON.
func NewLogger(level, format string) zerolog.Logger {
	return NewLoggerTo(os.Stdout, level, format)
}

// NewLoggerTo is NewLogger writing to w.
func NewLoggerTo(w io.Writer, level, format string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}

	zerolog.TimeFieldFormat = time.RFC3339
	if format == "console" {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}
	}

	return zerolog.New(w).Level(lvl).With().Timestamp().Logger()
}

// SetDefault installs logger as the process-wide zerolog logger.
func SetDefault(logger zerolog.Logger) {
	log.Logger = logger
}
