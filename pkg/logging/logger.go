// Package logging provides structured logging for crmsync on top of zerolog.
//
// A sync or consolidation run carries its logger in the context so that
// every event it emits is tagged with the run id, the component and, where
// relevant, the source table:
//
//	ctx = logging.WithRun(logging.WithComponent(ctx, "sync"), runID)
//	logging.FromContext(ctx).Info().Int("page", 3).Msg("Page checkpointed")
//
// Outside a run the package-level helpers log through the default logger,
// which is configured from LOG_LEVEL, LOG_FORMAT and LOG_OUTPUT at start-up.
package logging

import (
	"io"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var defaultLogger zerolog.Logger

func init() {
	defaultLogger = NewLoggerFromConfig(ConfigFromEnv())
}

// Default returns the process-wide logger.
func Default() *zerolog.Logger {
	return &defaultLogger
}

// SetDefault replaces the process-wide logger, including zerolog's global one.
func SetDefault(logger zerolog.Logger) {
	defaultLogger = logger
	log.Logger = logger
}

// Debug starts a debug event on the default logger.
func Debug() *zerolog.Event {
	return defaultLogger.Debug()
}

// Info starts an info event on the default logger.
func Info() *zerolog.Event {
	return defaultLogger.Info()
}

// Warn starts a warning event on the default logger.
func Warn() *zerolog.Event {
	return defaultLogger.Warn()
}

// Error starts an error event on the default logger.
func Error() *zerolog.Event {
	return defaultLogger.Error()
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
