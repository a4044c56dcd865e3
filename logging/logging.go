// Package logging configures the structured debug log.
//
// OGUI is a terminal-adjacent desktop app, so logs never go to stdout during
// normal operation. When OGUI_DEBUG is set, a zerolog logger writes to
// <dataDir>/debug.log; otherwise logging is disabled entirely.
package logging

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
)

// Enabled reports whether debug logging was requested via OGUI_DEBUG.
func Enabled() bool {
	debug := os.Getenv("OGUI_DEBUG")
	return debug == "true" || debug == "1"
}

// Setup returns the application logger. With OGUI_DEBUG unset it returns a
// disabled logger, so call sites can log unconditionally.
func Setup(dataDir string) zerolog.Logger {
	if !Enabled() {
		return zerolog.Nop()
	}

	logPath := filepath.Join(dataDir, "debug.log")

	// 0600 - the log may contain conversation content
	f, err := os.OpenFile(logPath, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0600)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not open debug log at %s: %v\n", logPath, err)
		return zerolog.Nop()
	}

	log := zerolog.New(f).Level(zerolog.DebugLevel).With().Timestamp().Logger()
	log.Info().Str("path", logPath).Msg("debug logging started")
	return log
}
