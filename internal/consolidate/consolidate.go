// Package consolidate merges customer rows from several source tables into
// one master record per identification key.
package consolidate

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/agentstation/crmsync/pkg/constants"
	"github.com/agentstation/crmsync/pkg/errors"
	"github.com/agentstation/crmsync/pkg/identity"
	"github.com/agentstation/crmsync/pkg/logging"
	"github.com/agentstation/crmsync/pkg/mapping"
	"github.com/agentstation/crmsync/pkg/matcher"
	"github.com/agentstation/crmsync/pkg/records"
	"github.com/agentstation/crmsync/pkg/store"
	"github.com/agentstation/utc"
)

// Backend is the part of the store a consolidation needs.
type Backend interface {
	store.Masters
	store.Sources
	store.Stores
	store.AuditLog
}

// Source is one table to read customers from. Name is recorded in the
// masters' sources and defaults to Table.
type Source struct {
	Name  string `yaml:"name" json:"name"`
	Table string `yaml:"table" json:"table"`
}

func (s Source) name() string {
	if s.Name != "" {
		return s.Name
	}
	return s.Table
}

// Report is the outcome of one consolidation run.
type Report struct {
	RunID    string                          `json:"run_id" yaml:"run_id"`
	Sources  []records.ConsolidationLogEntry `json:"sources" yaml:"sources"`
	Duration time.Duration                   `json:"duration" yaml:"duration"`
}

// Totals sums the per-source counts.
func (r *Report) Totals() records.ConsolidationLogEntry {
	total := records.ConsolidationLogEntry{RunID: r.RunID, Source: "total"}
	for _, e := range r.Sources {
		total.Processed += e.Processed
		total.Inserted += e.Inserted
		total.Updated += e.Updated
		total.Unchanged += e.Unchanged
		total.Excluded += e.Excluded
		total.Errors += e.Errors
		total.ElapsedMS += e.ElapsedMS
	}
	return total
}

// Summary returns a one-line summary.
func (r *Report) Summary() string {
	t := r.Totals()
	return fmt.Sprintf("%d sources: %d processed, %d inserted, %d updated, %d unchanged, %d excluded, %d errors",
		len(r.Sources), t.Processed, t.Inserted, t.Updated, t.Unchanged, t.Excluded, t.Errors)
}

// Option configures a Consolidator.
type Option func(*Consolidator)

// WithPolicy sets the merge policy.
func WithPolicy(p identity.Policy) Option {
	return func(c *Consolidator) { c.policy = p }
}

// WithBatchSize sets the number of rows read per request.
func WithBatchSize(n int) Option {
	return func(c *Consolidator) {
		if n > 0 {
			c.batchSize = n
		}
	}
}

// WithStoreMatching enables matching each row's campaign to a store.
func WithStoreMatching(enabled bool) Option {
	return func(c *Consolidator) { c.matchStores = enabled }
}

// WithDryRun counts outcomes without writing masters or log entries.
func WithDryRun(dryRun bool) Option {
	return func(c *Consolidator) { c.dryRun = dryRun }
}

// WithClock injects the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Consolidator) {
		if now != nil {
			c.now = now
		}
	}
}

// Consolidator runs consolidations against a Backend.
type Consolidator struct {
	backend     Backend
	mapper      *mapping.Mapper
	policy      identity.Policy
	batchSize   int
	matchStores bool
	dryRun      bool
	now         func() time.Time
}

// New creates a Consolidator. mapper is normally built from the
// "customer" schema.
func New(backend Backend, mapper *mapping.Mapper, opts ...Option) (*Consolidator, error) {
	if backend == nil {
		return nil, errors.NewValidationError("backend", nil, "store is required")
	}
	if mapper == nil {
		return nil, errors.NewValidationError("mapper", nil, "mapper is required")
	}
	c := &Consolidator{
		backend:     backend,
		mapper:      mapper,
		policy:      identity.DefaultPolicy(),
		batchSize:   constants.DefaultConsolidationBatch,
		matchStores: true,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Run consolidates every source in order and writes one log entry per
// source. Row failures are counted, never returned; the error is non-nil
// only on cancellation.
func (c *Consolidator) Run(ctx context.Context, sources []Source) (*Report, error) {
	if len(sources) == 0 {
		return nil, errors.NewValidationError("sources", nil, "at least one source table is required")
	}
	started := c.now()
	report := &Report{RunID: uuid.NewString()}
	ctx = logging.WithRun(logging.WithComponent(ctx, "consolidate"), report.RunID)
	logger := logging.FromContext(ctx)

	// Step 1: Load match targets
	var idx *matcher.Index
	var storesErr error
	if c.matchStores {
		stores, err := c.backend.ListStores(ctx)
		if err != nil {
			storesErr = err
			logger.Warn().Err(err).Msg("Store matching disabled, stores could not be listed")
		} else {
			idx = matcher.NewIndex(stores)
			logger.Debug().Int("stores", idx.Len()).Msg("Stores loaded")
		}
	}

	// Step 2: Consolidate each source and log it
	for _, src := range sources {
		if ctx.Err() != nil {
			break
		}
		entry := c.source(ctx, report.RunID, src, idx)
		if storesErr != nil {
			entry.Message = joinMessage(entry.Message, "store matching disabled: "+storesErr.Error())
		}
		if !c.dryRun {
			if err := c.backend.AppendConsolidationLog(ctx, entry); err != nil {
				logger.Error().Err(err).Str("source", entry.Source).Msg("Failed to write consolidation log")
			}
		}
		report.Sources = append(report.Sources, entry)
	}

	report.Duration = c.now().Sub(started)
	logger.Info().Str("summary", report.Summary()).Dur("duration", report.Duration).Msg("Consolidation finished")
	return report, ctx.Err()
}

// source pages through one table.
func (c *Consolidator) source(ctx context.Context, runID string, src Source, idx *matcher.Index) records.ConsolidationLogEntry {
	started := c.now()
	entry := records.ConsolidationLogEntry{
		ID:        uuid.NewString(),
		RunID:     runID,
		Source:    src.name(),
		StartedAt: utc.Time{Time: started},
	}
	ctx = logging.WithSource(ctx, entry.Source)
	logger := logging.FromContext(ctx)

	for offset := 0; ; {
		if err := ctx.Err(); err != nil {
			entry.Message = joinMessage(entry.Message, "cancelled")
			break
		}
		rows, err := c.backend.ReadSource(ctx, src.Table, offset, c.batchSize)
		if err != nil {
			entry.Errors++
			entry.Message = joinMessage(entry.Message, fmt.Sprintf("read at offset %d: %v", offset, err))
			logger.Error().Err(err).Int("offset", offset).Msg("Failed to read source")
			break
		}
		for _, raw := range rows {
			c.row(ctx, src, raw, idx, &entry)
		}
		if len(rows) < c.batchSize {
			break
		}
		offset += len(rows)
	}

	finished := c.now()
	entry.FinishedAt = utc.Time{Time: finished}
	entry.ElapsedMS = finished.Sub(started).Milliseconds()
	logger.Info().
		Int("processed", entry.Processed).
		Int("inserted", entry.Inserted).
		Int("updated", entry.Updated).
		Int("unchanged", entry.Unchanged).
		Int("excluded", entry.Excluded).
		Int("errors", entry.Errors).
		Msg("Source consolidated")
	return entry
}

// row merges one source row into its master.
func (c *Consolidator) row(ctx context.Context, src Source, raw records.Raw, idx *matcher.Index, entry *records.ConsolidationLogEntry) {
	logger := logging.FromContext(ctx)
	entry.Processed++

	mapped, err := c.mapper.Map(raw)
	if err != nil {
		entry.Errors++
		logger.Debug().Err(err).Msg("Row skipped")
		return
	}

	key, ok := identity.Resolve(mapped.Record)
	if !ok {
		entry.Excluded++
		return
	}

	fields := mapped.Record
	if idx != nil {
		fields = c.withStore(ctx, fields, idx)
	}

	existing, found, err := c.backend.GetMaster(ctx, key.String())
	if err != nil {
		entry.Errors++
		logger.Warn().Err(err).Str("key", key.String()).Msg("Master lookup failed")
		return
	}
	if !found {
		existing = nil
	}

	merged, err := c.policy.Merge(existing, fields, src.name(), c.now())
	if err != nil {
		entry.Errors++
		return
	}
	if found && !identity.Changed(existing, merged) {
		entry.Unchanged++
		return
	}

	if c.dryRun {
		if found {
			entry.Updated++
		} else {
			entry.Inserted++
		}
		return
	}

	if found {
		err = c.backend.UpdateMaster(ctx, merged)
	} else {
		err = c.backend.InsertMaster(ctx, merged)
	}
	if err != nil {
		entry.Errors++
		logger.Warn().Err(err).Str("key", key.String()).Msg("Master write failed")
		return
	}
	if found {
		entry.Updated++
	} else {
		entry.Inserted++
	}
}

// withStore adds store_id and store_name when the row's campaign names a
// known store.
func (c *Consolidator) withStore(ctx context.Context, fields records.Canonical, idx *matcher.Index) records.Canonical {
	campaign := fields.String("campaign")
	if campaign == "" {
		return fields
	}
	token := matcher.ExtractToken(campaign)
	s, tier := idx.Match(token)
	if s == nil {
		return fields
	}
	logging.FromContext(ctx).Trace().
		Str("token", token).
		Str("store_id", s.ID).
		Stringer("tier", tier).
		Msg("Campaign matched store")

	out := fields.Clone()
	out["store_id"] = s.ID
	out["store_name"] = s.Name
	return out
}

func joinMessage(a, b string) string {
	if a == "" {
		return b
	}
	return a + "; " + b
}
