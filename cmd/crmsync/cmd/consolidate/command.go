// Package consolidate provides the consolidate command.
package consolidate

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/agentstation/crmsync"
	"github.com/agentstation/crmsync/cmd/application"
	"github.com/agentstation/crmsync/internal/cmd/output"
	"github.com/agentstation/crmsync/internal/consolidate"
	"github.com/agentstation/crmsync/internal/pattern"
	"github.com/agentstation/crmsync/pkg/errors"
)

// Flags holds the consolidate command flags.
type Flags struct {
	Sources   []string
	DryRun    bool
	NoMatch   bool
	BatchSize int
}

// NewCommand creates the consolidate command.
func NewCommand(app application.Application) *cobra.Command {
	flags := &Flags{}

	cmd := &cobra.Command{
		Use:     "consolidate",
		GroupID: "core",
		Short:   "Merge customer rows from source tables into master records",
		Long: `Consolidate reads every configured source table, resolves each row to an
identity key (tax id, then phone, then email) and merges it into the master
record for that key. Campaign titles are matched to stores on the way.

--source accepts table names or glob/regex patterns over the configured
sources. A name that is not configured is read as an ad-hoc table.`,
		Example: `  crmsync consolidate
  crmsync consolidate --source shop_customers --source 'crm_*'
  crmsync consolidate --dry-run -o yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sources, err := Select(app.Sources(), flags.Sources)
			if err != nil {
				return err
			}

			client, err := app.Client()
			if err != nil {
				return err
			}

			var opts []crmsync.ConsolidateOption
			if flags.DryRun {
				opts = append(opts, consolidate.WithDryRun(true))
			}
			if flags.NoMatch {
				opts = append(opts, consolidate.WithStoreMatching(false))
			}
			if cmd.Flags().Changed("batch-size") {
				opts = append(opts, consolidate.WithBatchSize(flags.BatchSize))
			}

			report, runErr := client.Consolidate(cmd.Context(), sources, opts...)
			if report != nil {
				if err := output.Render(cmd.OutOrStdout(), output.Format(app.OutputFormat()), report, func() output.Data {
					return output.ConsolidationData(report.Sources, report.Summary())
				}); err != nil {
					return err
				}
			}
			if runErr != nil {
				return runErr
			}
			if totals := report.Totals(); totals.Errors > 0 {
				return fmt.Errorf("consolidation finished with %d errors", totals.Errors)
			}
			return nil
		},
	}

	cmd.Flags().StringArrayVar(&flags.Sources, "source", nil, "source table name or pattern (repeatable)")
	cmd.Flags().BoolVar(&flags.DryRun, "dry-run", false, "report what would change without writing")
	cmd.Flags().BoolVar(&flags.NoMatch, "no-store-match", false, "skip campaign to store matching")
	cmd.Flags().IntVar(&flags.BatchSize, "batch-size", 0, "rows read per source page")

	return cmd
}

// Select resolves --source arguments against the configured sources.
// Literal names pick a configured source by table or name, or become an
// ad-hoc table. Patterns must match at least one configured source.
// With no arguments the configured sources are returned.
func Select(configured []crmsync.Source, args []string) ([]crmsync.Source, error) {
	if len(args) == 0 {
		return configured, nil
	}

	var out []crmsync.Source
	seen := make(map[string]bool)
	add := func(s crmsync.Source) {
		if !seen[s.Table] {
			seen[s.Table] = true
			out = append(out, s)
		}
	}

	for _, arg := range args {
		if pattern.IsLiteral(arg) {
			add(lookup(configured, arg))
			continue
		}

		m, err := pattern.New(pattern.Auto, arg, true)
		if err != nil {
			return nil, err
		}
		matched := false
		for _, s := range configured {
			if m.Match(s.Table) || (s.Name != "" && m.Match(s.Name)) {
				add(s)
				matched = true
			}
		}
		if !matched {
			return nil, errors.NewValidationError("source", arg, "matches no configured source")
		}
	}
	return out, nil
}

func lookup(configured []crmsync.Source, name string) crmsync.Source {
	for _, s := range configured {
		if s.Table == name || s.Name == name {
			return s
		}
	}
	return crmsync.Source{Table: name}
}
