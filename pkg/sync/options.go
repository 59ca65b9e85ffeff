// Package sync provides options and results for synchronizing the local
// store with the remote CRM.
package sync

import (
	"time"

	"github.com/agentstation/crmsync/pkg/checkpoint"
	"github.com/agentstation/crmsync/pkg/constants"
	"github.com/agentstation/crmsync/pkg/errors"
)

// DetailMode controls when a per-record detail call is issued.
type DetailMode string

// Detail modes.
const (
	// DetailNever maps list records as returned.
	DetailNever DetailMode = "never"
	// DetailMissing fetches details only when a required field is missing.
	DetailMissing DetailMode = "missing"
	// DetailAlways fetches details for every record.
	DetailAlways DetailMode = "always"
)

// Valid reports whether m is a known mode.
func (m DetailMode) Valid() bool {
	switch m {
	case DetailNever, DetailMissing, DetailAlways:
		return true
	}
	return false
}

// Options controls one synchronization run.
type Options struct {
	// Change detection
	StalenessWindow time.Duration // Records synced more recently than this are skipped

	// Concurrency
	BatchWidth int        // Records of a page processed in parallel
	DetailMode DetailMode // When to issue detail calls

	// Run control
	Resume        bool          // Continue from a saved checkpoint
	MaxPageErrors int           // Consecutive page failures tolerated before giving up
	DryRun        bool          // Decide and count, but write nothing
	Sweep         bool          // Delete local records absent remotely after a complete run
	Timeout       time.Duration // Bound on the whole run; zero means none

	// Progress is called after every checkpoint.
	Progress func(checkpoint.Progress)
}

// Defaults returns the default sync options.
func Defaults() *Options {
	return &Options{
		StalenessWindow: constants.DefaultStalenessWindow,
		BatchWidth:      constants.DefaultBatchWidth,
		DetailMode:      DetailMissing,
		Resume:          false,
		MaxPageErrors:   constants.DefaultMaxPageErrors,
		DryRun:          false,
		Sweep:           true,
		Timeout:         0,
	}
}

// Option is a function that configures sync Options.
type Option func(*Options)

// Apply applies the given options to the sync options.
func (o *Options) Apply(opts ...Option) *Options {
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// New returns Defaults with opts applied.
func New(opts ...Option) *Options {
	return Defaults().Apply(opts...)
}

// Validate checks if the sync options are valid.
func (o *Options) Validate() error {
	if o.StalenessWindow < 0 {
		return &errors.ValidationError{
			Field:   "StalenessWindow",
			Value:   o.StalenessWindow,
			Message: "staleness window must be non-negative",
		}
	}
	if o.BatchWidth < 1 {
		return &errors.ValidationError{
			Field:   "BatchWidth",
			Value:   o.BatchWidth,
			Message: "batch width must be at least 1",
		}
	}
	if !o.DetailMode.Valid() {
		return &errors.ValidationError{
			Field:   "DetailMode",
			Value:   o.DetailMode,
			Message: "detail mode must be never, missing or always",
		}
	}
	if o.MaxPageErrors < 1 {
		return &errors.ValidationError{
			Field:   "MaxPageErrors",
			Value:   o.MaxPageErrors,
			Message: "max page errors must be at least 1",
		}
	}
	if o.Timeout < 0 {
		return &errors.ValidationError{
			Field:   "Timeout",
			Value:   o.Timeout,
			Message: "timeout must be non-negative",
		}
	}
	return nil
}

// WithStalenessWindow sets the window within which records are skipped.
func WithStalenessWindow(d time.Duration) Option {
	return func(o *Options) {
		o.StalenessWindow = d
	}
}

// WithBatchWidth sets how many records of a page are processed in parallel.
func WithBatchWidth(n int) Option {
	return func(o *Options) {
		o.BatchWidth = n
	}
}

// WithDetailMode sets when detail calls are issued.
func WithDetailMode(m DetailMode) Option {
	return func(o *Options) {
		o.DetailMode = m
	}
}

// WithResume continues from a saved checkpoint when one exists.
func WithResume(resume bool) Option {
	return func(o *Options) {
		o.Resume = resume
	}
}

// WithMaxPageErrors sets how many consecutive page failures end the run.
func WithMaxPageErrors(n int) Option {
	return func(o *Options) {
		o.MaxPageErrors = n
	}
}

// WithDryRun configures dry run mode.
func WithDryRun(dryRun bool) Option {
	return func(o *Options) {
		o.DryRun = dryRun
	}
}

// WithSweep enables or disables the reconciliation sweep.
func WithSweep(sweep bool) Option {
	return func(o *Options) {
		o.Sweep = sweep
	}
}

// WithTimeout bounds the whole run.
func WithTimeout(timeout time.Duration) Option {
	return func(o *Options) {
		o.Timeout = timeout
	}
}

// WithProgress registers a callback invoked after every checkpoint.
func WithProgress(fn func(checkpoint.Progress)) Option {
	return func(o *Options) {
		o.Progress = fn
	}
}
