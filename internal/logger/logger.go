// Package logger builds the process zerolog.Logger from LOG_LEVEL and LOG_FORMAT.
package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	FormatJSON    = "json"
	FormatConsole = "console"
)

// New returns a logger writing to w (os.Stdout when nil) with a timestamp and the service name.
// An unknown level falls back to info; format "console" (or "pretty") selects the human-readable writer.
func New(level, format, service string, w io.Writer) zerolog.Logger {
	if w == nil {
		w = os.Stdout
	}
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}

	switch strings.ToLower(format) {
	case FormatConsole, "pretty":
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}

	zl := zerolog.New(w).Level(lvl).With().Timestamp()
	if service != "" {
		zl = zl.Str("service", service)
	}
	return zl.Logger()
}
