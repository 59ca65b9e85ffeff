package app

import (
	"context"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/agentstation/crmsync/internal/cmd/output"
	"github.com/agentstation/crmsync/pkg/errors"
	"github.com/agentstation/crmsync/pkg/logging"
)

// Exit codes.
const (
	ExitOK      = 0
	ExitFailure = 1 // the run failed or ended incomplete
	ExitUsage   = 2 // bad flags, arguments or configuration
)

// skipConfig marks commands that run without loading the configuration.
const skipConfig = "skip-config"

// UsageError wraps a flag or argument error.
type UsageError struct {
	Err error
}

// Error implements the error interface.
func (e *UsageError) Error() string {
	return e.Err.Error()
}

// Unwrap returns the underlying error.
func (e *UsageError) Unwrap() error {
	return e.Err
}

// Execute runs the crmsync CLI application with the given arguments.
// This is the main entry point called from main.go.
func (a *App) Execute(ctx context.Context, args []string) error {
	rootCmd := a.createRootCommand()
	rootCmd.SetArgs(args)
	return rootCmd.ExecuteContext(ctx)
}

// createRootCommand creates the root cobra command with all subcommands.
func (a *App) createRootCommand() *cobra.Command {
	var configFile, format, logLevel string
	var verbose, quiet bool

	rootCmd := &cobra.Command{
		Use:     "crmsync",
		Short:   "CRM mirror and customer consolidation",
		Version: a.build.Version,
		Long: `crmsync mirrors the clients of a remote CRM into a local relational
store and consolidates customer rows from several source tables into one
master record per customer.

Configuration is read from .crmsync.yaml, .env files and CRMSYNC_*
environment variables.`,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Annotations[skipConfig] == "" && !a.configured {
				config, err := LoadConfig(configFile)
				if err != nil {
					return err
				}
				a.config = config
			}
			return a.setupCommand(cmd, verbose, quiet, format, logLevel)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddGroup(
		&cobra.Group{ID: "core", Title: "Core Commands:"},
		&cobra.Group{ID: "management", Title: "Management Commands:"},
	)

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (default is ./.crmsync.yaml or $HOME/.crmsync.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output (shortcut for --log-level=debug)")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "minimal output (shortcut for --log-level=warn)")
	rootCmd.PersistentFlags().StringVarP(&format, "output", "o", "", "output format: table, json, yaml")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: trace, debug, info, warn, error (overrides -v/-q)")

	rootCmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &UsageError{Err: err}
	})
	rootCmd.SetVersionTemplate("crmsync {{.Version}}\n")

	a.registerCommands(rootCmd)
	return rootCmd
}

// setupCommand applies flags on top of the loaded configuration and
// rebuilds the logger.
func (a *App) setupCommand(cmd *cobra.Command, verbose, quiet bool, format, logLevel string) error {
	a.config.UpdateFromFlags(verbose, quiet, format, logLevel)

	parsed, err := output.ParseFormat(a.config.Output)
	if err != nil {
		return err
	}
	a.config.Output = string(output.DetectFormat(string(parsed)))

	logger := NewLogger(a.config)
	a.logger = &logger
	cmd.SetContext(logging.WithLogger(cmd.Context(), a.logger))
	return nil
}

// ExitCode maps an error returned by Execute to a process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var usage *UsageError
	switch {
	case errors.As(err, &usage),
		errors.IsFatal(err),
		errors.IsValidationError(err),
		strings.HasPrefix(err.Error(), "unknown command"),
		strings.HasPrefix(err.Error(), "accepts "):
		return ExitUsage
	default:
		return ExitFailure
	}
}

// ExitOnError prints err and exits with its exit code.
// This is meant to be used in main.go for top-level error handling.
func ExitOnError(err error) {
	if err != nil {
		//nolint:errcheck // Ignoring write error since we're exiting anyway
		_, _ = os.Stderr.WriteString("Error: " + err.Error() + "\n")
		os.Exit(ExitCode(err))
	}
}
