package app

import (
	"runtime"

	"github.com/spf13/cobra"

	"github.com/agentstation/crmsync/cmd/crmsync/cmd/checkpoint"
	"github.com/agentstation/crmsync/cmd/crmsync/cmd/consolidate"
	"github.com/agentstation/crmsync/cmd/crmsync/cmd/match"
	"github.com/agentstation/crmsync/cmd/crmsync/cmd/sync"
)

// registerCommands registers all subcommands with the root command.
func (a *App) registerCommands(rootCmd *cobra.Command) {
	// Core commands
	rootCmd.AddCommand(sync.NewCommand(a))
	rootCmd.AddCommand(consolidate.NewCommand(a))
	rootCmd.AddCommand(match.NewCommand(a))

	// Management commands
	rootCmd.AddCommand(checkpoint.NewCommand(a))

	// Utility commands
	rootCmd.AddCommand(a.newVersionCommand())
}

// newVersionCommand creates the version command.
func (a *App) newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:         "version",
		Short:       "Show version information",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{skipConfig: "true"},
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Printf("crmsync %s\n", a.build.Version)
			if a.config.Verbose {
				cmd.Printf("  commit:   %s\n", a.build.Commit)
				cmd.Printf("  built:    %s\n", a.build.Date)
				cmd.Printf("  built by: %s\n", a.build.BuiltBy)
				cmd.Printf("  go:       %s %s/%s\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)
			}
		},
	}
}
