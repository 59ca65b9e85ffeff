package app

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"github.com/agentstation/crmsync/pkg/logging"
)

// NewLogger builds the process logger from the loaded configuration.
func NewLogger(config *Config) zerolog.Logger {
	level := determineLogLevel(config)
	return logging.NewLoggerFromConfig(&logging.Config{
		Level:     level,
		Format:    config.LogFormat,
		Output:    config.LogOutput,
		NoColor:   os.Getenv("NO_COLOR") != "",
		AddCaller: logging.ParseLevel(level) <= zerolog.DebugLevel,
	})
}

// determineLogLevel resolves the level. An explicit --log-level (or
// LOG_LEVEL) wins, then --quiet, then --verbose, then info.
func determineLogLevel(config *Config) string {
	switch {
	case config.LogLevel != "":
		if logging.ParseLevel(config.LogLevel).String() != config.LogLevel {
			fmt.Fprintf(os.Stderr, "Warning: invalid log level %q, using info\n", config.LogLevel)
			return "info"
		}
		return config.LogLevel
	case config.Quiet:
		if config.Verbose {
			fmt.Fprintln(os.Stderr, "Warning: both --verbose and --quiet specified, using --quiet")
		}
		return "warn"
	case config.Verbose:
		return "debug"
	}
	return "info"
}
