// Package logging provides the node's single shared zerolog logger. Every
// component logs through this instead of constructing its own, so output
// format and level are controlled in one place (ambient concern; configured
// at startup, not by the components that use it, §6.4).
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// L is the process-wide logger. Replace it (via Configure) before components
// start logging; the zero value falls back to human-readable stderr output
// so tests and ad-hoc runs still get useful output.
var L = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
	With().Timestamp().Logger()

// Configure rebuilds L from level and an output writer. Call once at
// startup; component packages only ever read L.
func Configure(level zerolog.Level, w io.Writer) {
	L = zerolog.New(w).Level(level).With().Timestamp().Logger()
}

// Component returns a child logger tagged with a component name, e.g.
// logging.Component("ledger") inside the ledger package.
func Component(name string) zerolog.Logger {
	return L.With().Str("component", name).Logger()
}
