// Package checkpoint provides the checkpoint command.
package checkpoint

import (
	"github.com/spf13/cobra"

	"github.com/agentstation/crmsync/cmd/application"
	"github.com/agentstation/crmsync/internal/cmd/output"
)

// NewCommand creates the checkpoint command.
func NewCommand(app application.Application) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "checkpoint",
		GroupID: "management",
		Short:   "Inspect or clear the sync checkpoint",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}
	cmd.AddCommand(newShowCommand(app), newClearCommand(app))
	return cmd
}

func newShowCommand(app application.Application) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the saved checkpoint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := app.Client()
			if err != nil {
				return err
			}
			p, err := client.Checkpoint().Load(cmd.Context())
			if err != nil {
				return err
			}
			return output.Render(cmd.OutOrStdout(), output.Format(app.OutputFormat()), p, func() output.Data {
				return output.CheckpointData(p)
			})
		},
	}
}

func newClearCommand(app application.Application) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Delete the saved checkpoint so the next sync starts fresh",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := app.Client()
			if err != nil {
				return err
			}
			if err := client.Checkpoint().Clear(cmd.Context()); err != nil {
				return err
			}
			app.Logger().Info().Msg("Checkpoint cleared")
			return nil
		},
	}
}
