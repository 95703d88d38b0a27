package cli

import (
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/halyard-dev/halyard/internal/ui"
)

// newLogger builds the process logger. Human-readable console output on a
// TTY, JSON otherwise (and always JSON in serve mode so log shippers get
// structured lines).
func newLogger(level string, forceJSON bool) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339

	parsed, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		parsed = zerolog.InfoLevel
	}
	if verboseFlag {
		parsed = zerolog.DebugLevel
	}

	var logger zerolog.Logger
	if !forceJSON && ui.IsTerminal() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})
	} else {
		logger = zerolog.New(os.Stderr)
	}
	return logger.Level(parsed).With().Timestamp().Logger()
}
