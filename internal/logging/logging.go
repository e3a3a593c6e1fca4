// Package logging configures the zerolog loggers handed to each
// component constructor. There is no package-level global logger;
// callers build one with New and thread it through explicitly to each
// component constructor.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// New returns a zerolog.Logger writing to w (stderr if w is nil) with the
// given component name attached to every record.
func New(component string, w io.Writer) zerolog.Logger {
	if w == nil {
		w = os.Stderr
	}
	return zerolog.New(w).With().
		Timestamp().
		Str("component", component).
		Logger()
}

// NewConsole returns a human-readable console logger, used by the CLI.
func NewConsole(component string) zerolog.Logger {
	cw := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	return zerolog.New(cw).With().
		Timestamp().
		Str("component", component).
		Logger()
}
