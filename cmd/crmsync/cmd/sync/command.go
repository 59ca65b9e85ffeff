// Package sync provides the sync command.
package sync

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/agentstation/crmsync/cmd/application"
	"github.com/agentstation/crmsync/internal/cmd/output"
	"github.com/agentstation/crmsync/pkg/checkpoint"
	"github.com/agentstation/crmsync/pkg/errors"
	pkgsync "github.com/agentstation/crmsync/pkg/sync"
)

// Flags holds the sync command flags.
type Flags struct {
	Resume        bool
	DryRun        bool
	NoSweep       bool
	BatchWidth    int
	Staleness     time.Duration
	Detail        string
	MaxPageErrors int
	Timeout       time.Duration
	ShowFailures  bool
}

// NewCommand creates the sync command.
func NewCommand(app application.Application) *cobra.Command {
	flags := &Flags{}

	cmd := &cobra.Command{
		Use:     "sync",
		GroupID: "core",
		Short:   "Mirror remote CRM clients into the local store",
		Long: `Sync pages through the remote CRM, normalizes every client and
writes new or stale ones to the local store.

A checkpoint is saved after each page. --resume continues from it. After a
complete run, local records the CRM no longer lists are deleted unless
--no-sweep is given. Resumed runs never sweep.`,
		Example: `  crmsync sync
  crmsync sync --resume
  crmsync sync --dry-run --detail always -o json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts, err := flags.options(cmd)
			if err != nil {
				return err
			}

			client, err := app.Client()
			if err != nil {
				return err
			}

			logger := app.Logger()
			opts = append(opts, pkgsync.WithProgress(func(p checkpoint.Progress) {
				logger.Info().Int("page", p.Page).Int("processed", p.Processed).Msg("Page done")
			}))

			res, runErr := client.Sync(cmd.Context(), append(app.SyncOptions(), opts...)...)
			if res != nil {
				format := output.Format(app.OutputFormat())
				if err := output.Render(cmd.OutOrStdout(), format, res, func() output.Data {
					return output.SyncResultData(res)
				}); err != nil {
					return err
				}
				if flags.ShowFailures && format == output.FormatTable && len(res.Failures) > 0 {
					if err := output.NewFormatter(output.FormatTable).Format(cmd.OutOrStdout(), output.FailuresData(res.Failures)); err != nil {
						return err
					}
				}
			}
			if runErr != nil {
				return runErr
			}
			if status := res.Status(); status != pkgsync.StatusSuccess {
				return fmt.Errorf("sync %s: %d errors, complete=%t", status, res.Errors(), res.Complete)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&flags.Resume, "resume", false, "continue from the saved checkpoint")
	cmd.Flags().BoolVar(&flags.DryRun, "dry-run", false, "report what would change without writing")
	cmd.Flags().BoolVar(&flags.NoSweep, "no-sweep", false, "skip deleting local records missing remotely")
	cmd.Flags().IntVar(&flags.BatchWidth, "batch-width", 0, "records processed in parallel per page")
	cmd.Flags().DurationVar(&flags.Staleness, "staleness", 0, "skip records synced more recently than this")
	cmd.Flags().StringVar(&flags.Detail, "detail", "", "detail calls: never, missing, always")
	cmd.Flags().IntVar(&flags.MaxPageErrors, "max-page-errors", 0, "consecutive page failures that end the run")
	cmd.Flags().DurationVar(&flags.Timeout, "timeout", 0, "overall run timeout")
	cmd.Flags().BoolVar(&flags.ShowFailures, "failures", false, "list failed records after the summary")

	return cmd
}

// options turns the flags the user set into sync options.
func (f *Flags) options(cmd *cobra.Command) ([]pkgsync.Option, error) {
	changed := cmd.Flags().Changed
	var opts []pkgsync.Option

	if changed("resume") {
		opts = append(opts, pkgsync.WithResume(f.Resume))
	}
	if changed("dry-run") {
		opts = append(opts, pkgsync.WithDryRun(f.DryRun))
	}
	if changed("no-sweep") {
		opts = append(opts, pkgsync.WithSweep(!f.NoSweep))
	}
	if changed("batch-width") {
		opts = append(opts, pkgsync.WithBatchWidth(f.BatchWidth))
	}
	if changed("staleness") {
		opts = append(opts, pkgsync.WithStalenessWindow(f.Staleness))
	}
	if changed("detail") {
		mode, err := ParseDetailMode(f.Detail)
		if err != nil {
			return nil, err
		}
		opts = append(opts, pkgsync.WithDetailMode(mode))
	}
	if changed("max-page-errors") {
		opts = append(opts, pkgsync.WithMaxPageErrors(f.MaxPageErrors))
	}
	if changed("timeout") {
		opts = append(opts, pkgsync.WithTimeout(f.Timeout))
	}
	return opts, nil
}

// ParseDetailMode validates a --detail value.
func ParseDetailMode(s string) (pkgsync.DetailMode, error) {
	switch mode := pkgsync.DetailMode(s); mode {
	case pkgsync.DetailNever, pkgsync.DetailMissing, pkgsync.DetailAlways:
		return mode, nil
	default:
		return "", errors.NewValidationError("detail", s, "must be one of: never, missing, always")
	}
}
