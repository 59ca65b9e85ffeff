// Package match provides the match command.
package match

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/agentstation/crmsync/cmd/application"
	"github.com/agentstation/crmsync/internal/cmd/output"
	"github.com/agentstation/crmsync/pkg/errors"
	"github.com/agentstation/crmsync/pkg/matcher"
)

// NewCommand creates the match command.
func NewCommand(app application.Application) *cobra.Command {
	var campaign string

	cmd := &cobra.Command{
		Use:     "match [token]",
		GroupID: "core",
		Short:   "Resolve a store token or campaign title to a store",
		Long: `Match looks a token up in the stores table: exact name first, then
"<city> <number>" against "<city> - Loja <number>", then a bare city.

With --campaign the token is first extracted from a campaign title.`,
		Example: `  crmsync match "maringa 3"
  crmsync match --campaign "Black Friday | Maringá Loja 3"`,
		Args: func(cmd *cobra.Command, args []string) error {
			switch {
			case campaign != "" && len(args) > 0:
				return errors.NewValidationError("token", args[0], "give a token or --campaign, not both")
			case campaign == "" && len(args) != 1:
				return errors.NewValidationError("token", args, "exactly one token is required")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			var token string
			if campaign != "" {
				token = matcher.ExtractToken(campaign)
			} else {
				token = args[0]
			}
			if strings.TrimSpace(token) == "" {
				return errors.NewValidationError("token", token, "no store token found")
			}

			client, err := app.Client()
			if err != nil {
				return err
			}
			store, tier, err := client.MatchStore(cmd.Context(), token)
			if err != nil {
				return err
			}

			res := output.NewMatchResult(token, store, tier)
			format := output.Format(app.OutputFormat())
			return output.NewFormatter(format).Format(cmd.OutOrStdout(), res)
		},
	}

	cmd.Flags().StringVar(&campaign, "campaign", "", "campaign title to extract the token from")
	return cmd
}
