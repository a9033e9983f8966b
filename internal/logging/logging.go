// Package logging configures the process-wide zerolog logger and hands out
// component-scoped loggers.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

var root = zerolog.New(console(os.Stderr)).With().Timestamp().Logger()

func console(w io.Writer) io.Writer {
	return zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}
}

// Setup applies the configured log level. Unknown levels fall back to info.
func Setup(level string) {
	switch strings.ToLower(level) {
	case "trace":
		zerolog.SetGlobalLevel(zerolog.TraceLevel)
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "warn", "warning":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}

// For returns a logger tagged with the given component name.
func For(component string) zerolog.Logger {
	return root.With().Str("component", component).Logger()
}

// SetOutput redirects the root logger, used by tests to silence output.
func SetOutput(w io.Writer) {
	root = zerolog.New(console(w)).With().Timestamp().Logger()
}
