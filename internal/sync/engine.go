// Package sync runs one synchronization of the local store against the
// remote CRM: paginated fetch, change detection, concurrent writes,
// checkpointing and the reconciliation sweep.
package sync

import (
	"context"
	"fmt"
	"maps"
	stdsync "sync"
	"sync/atomic"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/agentstation/crmsync/internal/remote"
	"github.com/agentstation/crmsync/pkg/checkpoint"
	"github.com/agentstation/crmsync/pkg/errors"
	"github.com/agentstation/crmsync/pkg/logging"
	"github.com/agentstation/crmsync/pkg/mapping"
	"github.com/agentstation/crmsync/pkg/records"
	"github.com/agentstation/crmsync/pkg/store"
	pkgsync "github.com/agentstation/crmsync/pkg/sync"
	"github.com/agentstation/utc"
)

// Fetcher is the remote side of a run.
type Fetcher interface {
	FetchPage(ctx context.Context, page int) (remote.Page, error)
	FetchDetail(ctx context.Context, id string) (records.Raw, error)
}

// callCounter is implemented by fetchers that count their HTTP calls.
type callCounter interface {
	ListCalls() int
	DetailCalls() int
}

// State is a step of the run state machine.
type State string

// Run states.
const (
	StateInit         State = "init"
	StateFetchPage    State = "fetch_page"
	StateRateLimited  State = "rate_limited"
	StateProcessBatch State = "process_batch"
	StateCheckpoint   State = "checkpoint"
	StateReconcile    State = "reconcile"
	StateDone         State = "done"
)

// Deps are the collaborators of an Engine.
type Deps struct {
	Fetcher     Fetcher
	Mapper      *mapping.Mapper
	Records     store.Records
	Checkpoints checkpoint.Store // nil disables checkpointing
	Now         func() time.Time
	OnState     func(state State, page int)
}

// Engine executes sync runs. An Engine holds no per-run state besides the
// cooldown counter and may run repeatedly, though not concurrently.
type Engine struct {
	deps     Deps
	opts     *pkgsync.Options
	detector *Detector
	writer   *Writer
	sweeper  *Sweeper

	cooldowns atomic.Int64
}

// New validates deps and opts and returns an Engine.
func New(deps Deps, opts ...pkgsync.Option) (*Engine, error) {
	switch {
	case deps.Fetcher == nil:
		return nil, errors.NewValidationError("fetcher", nil, "fetcher is required")
	case deps.Mapper == nil:
		return nil, errors.NewValidationError("mapper", nil, "mapper is required")
	case !deps.Mapper.Schema().HasKey():
		return nil, errors.NewValidationError("mapper", deps.Mapper.Schema().Entity, "schema must declare a key field")
	case deps.Records == nil:
		return nil, errors.NewValidationError("records", nil, "record store is required")
	}
	if deps.Checkpoints == nil {
		deps.Checkpoints = checkpoint.Nop{}
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}

	options := pkgsync.New(opts...)
	if err := options.Validate(); err != nil {
		return nil, err
	}

	writer := NewWriter(deps.Records, options.DryRun)
	return &Engine{
		deps: deps,
		opts: options,
		detector: &Detector{
			Records:         deps.Records,
			StalenessWindow: options.StalenessWindow,
			Now:             deps.Now,
		},
		writer:  writer,
		sweeper: NewSweeper(deps.Records, writer),
	}, nil
}

// Options returns the validated run options.
func (e *Engine) Options() *pkgsync.Options {
	return e.opts
}

// RateLimited records a cooldown. Pass it to remote.WithRateLimitHook.
func (e *Engine) RateLimited(ev remote.RateLimitEvent) {
	e.cooldowns.Add(1)
	e.state(StateRateLimited, ev.Page)
}

// Cooldowns returns the number of cooldowns observed so far.
func (e *Engine) Cooldowns() int {
	return int(e.cooldowns.Load())
}

func (e *Engine) state(s State, page int) {
	if e.deps.OnState != nil {
		e.deps.OnState(s, page)
	}
}

// run carries the mutable state of one Run.
type run struct {
	result     *pkgsync.Result
	progress   checkpoint.Progress
	remoteIDs  mapset.Set[string]
	listBase   int
	detailBase int
}

// Run performs one synchronization. Per-record and per-page failures are
// counted on the Result and never abort the run; the returned error is
// non-nil only for startup failures or cancellation.
func (e *Engine) Run(ctx context.Context) (*pkgsync.Result, error) {
	// Step 0: Set context
	if ctx == nil {
		ctx = context.Background()
	}
	if e.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.opts.Timeout)
		defer cancel()
	}

	// Step 1: Initialize run state, resuming from a checkpoint when asked
	e.state(StateInit, 0)
	r, page, err := e.init(ctx)
	if err != nil {
		return nil, err
	}
	ctx = logging.WithRun(logging.WithComponent(ctx, "sync"), r.result.RunID)
	logger := logging.FromContext(ctx)
	logger.Info().
		Int("page", page).
		Bool("resumed", r.result.Resumed).
		Bool("dry_run", e.opts.DryRun).
		Msg("Sync started")

	// Step 2: Fetch and process pages until the remote runs dry
	complete, runErr := e.pages(ctx, r, page)

	// Step 3: Reconcile, only after a complete fresh run
	r.result.Complete = complete
	if runErr == nil && e.opts.Sweep {
		e.reconcile(ctx, r)
	}

	// Step 4: Clear the checkpoint once the run reached its natural end
	if complete && !e.opts.DryRun {
		if err := e.deps.Checkpoints.Clear(ctx); err != nil {
			logger.Warn().Err(err).Msg("Failed to clear checkpoint")
		}
	}

	e.finish(r)
	e.state(StateDone, 0)
	logger.Info().
		Str("status", string(r.result.Status())).
		Int("processed", r.result.Processed).
		Int("inserted", r.result.Inserted).
		Int("updated", r.result.Updated).
		Int("skipped", r.result.Skipped).
		Int("deleted", r.result.Deleted).
		Int("errors", r.result.Errors()).
		Dur("duration", r.result.Duration).
		Msg("Sync finished")
	return r.result, runErr
}

func (e *Engine) init(ctx context.Context) (*run, int, error) {
	now := e.deps.Now()
	r := &run{
		result: &pkgsync.Result{
			RunID:     uuid.NewString(),
			DryRun:    e.opts.DryRun,
			StartedAt: now,
		},
		remoteIDs: mapset.NewSet[string](),
	}
	if c, ok := e.deps.Fetcher.(callCounter); ok {
		r.listBase, r.detailBase = c.ListCalls(), c.DetailCalls()
	}
	r.progress = checkpoint.Progress{RunID: r.result.RunID, StartedAt: utc.Time{Time: now}}

	if !e.opts.Resume {
		return r, 1, nil
	}
	saved, err := e.deps.Checkpoints.Load(ctx)
	if err != nil {
		return nil, 0, err
	}
	if saved == nil {
		logging.FromContext(ctx).Info().Msg("No checkpoint found, starting from page 1")
		return r, 1, nil
	}

	r.progress = *saved
	if r.progress.RunID == "" {
		r.progress.RunID = r.result.RunID
	}
	r.result.RunID = r.progress.RunID
	r.result.Resumed = true
	r.result.Processed = saved.Processed
	r.result.Inserted = saved.Inserted
	r.result.Updated = saved.Updated
	r.result.Skipped = saved.Skipped
	r.result.PriorErrors = saved.Errors
	return r, saved.NextPage(), nil
}

// pages runs the FETCH_PAGE, PROCESS_BATCH, CHECKPOINT loop. It reports
// whether every page up to the empty or short one was observed.
func (e *Engine) pages(ctx context.Context, r *run, page int) (bool, error) {
	logger := logging.FromContext(ctx)
	failedPages := 0
	consecutive := 0

	for {
		e.state(StateFetchPage, page)
		p, err := e.deps.Fetcher.FetchPage(ctx, page)
		if err != nil {
			if ctx.Err() != nil {
				r.result.Reason = "cancelled"
				return false, ctx.Err()
			}

			category := classify(err)
			r.result.AddFailure(pkgsync.Failure{Page: page, Category: category, Message: err.Error()})
			failedPages++
			consecutive++
			logger.Warn().Err(err).Int("page", page).Str("category", string(category)).Msg("Page failed")

			if consecutive >= e.opts.MaxPageErrors {
				r.result.Reason = fmt.Sprintf("%d consecutive page failures, last at page %d", consecutive, page)
				return false, nil
			}
			page++
			continue
		}
		consecutive = 0
		r.result.Pages++

		e.state(StateProcessBatch, page)
		if err := e.process(ctx, r, p); err != nil {
			r.result.Reason = "cancelled"
			return false, err
		}

		e.state(StateCheckpoint, page)
		e.checkpoint(ctx, r, page, failedPages == 0)

		if !p.HasMore {
			if failedPages > 0 {
				r.result.Reason = fmt.Sprintf("%d pages failed", failedPages)
				return false, nil
			}
			return true, nil
		}
		page++
	}
}

// checkpoint reports progress after page. Once a page of this run has
// failed the durable checkpoint stays at the last page before the gap, so a
// resumed run fetches the failed page again.
func (e *Engine) checkpoint(ctx context.Context, r *run, page int, durable bool) {
	p := r.progress
	p.Page = page
	p.Processed = r.result.Processed
	p.Inserted = r.result.Inserted
	p.Updated = r.result.Updated
	p.Skipped = r.result.Skipped
	p.Errors = r.result.Errors()

	if durable {
		r.progress = p
		if !e.opts.DryRun {
			if err := e.deps.Checkpoints.Save(ctx, p); err != nil {
				logging.FromContext(ctx).Warn().Err(err).Int("page", page).Msg("Failed to save checkpoint")
			}
		}
	}
	if e.opts.Progress != nil {
		e.opts.Progress(p)
	}
}

func (e *Engine) reconcile(ctx context.Context, r *run) {
	logger := logging.FromContext(ctx)
	e.state(StateReconcile, 0)

	// A resumed run never saw the pages before its checkpoint.
	complete := r.result.Complete && !r.result.Resumed
	deleted, err := e.sweeper.Sweep(ctx, r.remoteIDs, complete)
	switch {
	case errors.Is(err, errors.ErrIncompleteRun):
		logger.Info().Bool("resumed", r.result.Resumed).Msg("Sweep skipped, run did not observe every page")
		if r.result.Reason == "" && r.result.Resumed {
			r.result.Reason = "resumed run, sweep skipped"
		}
	case err != nil:
		r.result.AddFailure(pkgsync.Failure{Category: classify(err), Status: statusOf(err), Message: err.Error()})
		logger.Error().Err(err).Msg("Sweep failed")
	default:
		r.result.SweepPerformed = true
		r.result.Deleted = len(deleted)
	}
}

func (e *Engine) finish(r *run) {
	r.result.Duration = e.deps.Now().Sub(r.result.StartedAt)
	if c, ok := e.deps.Fetcher.(callCounter); ok {
		r.result.ListCalls = c.ListCalls() - r.listBase
		r.result.DetailCalls = c.DetailCalls() - r.detailBase
	}
}

// outcome is what one record contributed to the run.
type outcome struct {
	id       string
	decision Decision
	issues   []mapping.Issue
	failure  *pkgsync.Failure
}

// process handles one page with at most BatchWidth records in flight.
func (e *Engine) process(ctx context.Context, r *run, p remote.Page) error {
	var (
		g  errgroup.Group
		mu stdsync.Mutex
	)
	g.SetLimit(e.opts.BatchWidth)

	for _, raw := range p.Records {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			out := e.record(ctx, p.Number, raw, r.remoteIDs)
			mu.Lock()
			defer mu.Unlock()
			e.tally(r.result, out)
			return nil
		})
	}
	_ = g.Wait()
	return ctx.Err()
}

func (e *Engine) tally(res *pkgsync.Result, out outcome) {
	res.Processed++
	res.AddIssues(out.id, out.issues)
	if out.failure != nil {
		res.AddFailure(*out.failure)
		return
	}
	switch out.decision {
	case DecisionInsert:
		res.Inserted++
	case DecisionUpdate:
		res.Updated++
	case DecisionSkip:
		res.Skipped++
	}
}

// record maps, decides and writes one record. The id joins remoteIDs as
// soon as it is known, so a record that fails later is not swept.
func (e *Engine) record(ctx context.Context, page int, raw records.Raw, remoteIDs mapset.Set[string]) outcome {
	fail := func(id string, err error) outcome {
		return outcome{id: id, failure: &pkgsync.Failure{
			Page:     page,
			RecordID: id,
			Category: classify(err),
			Status:   statusOf(err),
			Message:  err.Error(),
		}}
	}

	id, err := e.deps.Mapper.ExtractID(raw)
	if err != nil {
		return fail("", err)
	}
	remoteIDs.Add(id)
	logger := logging.FromContext(ctx).With().Str("record_id", id).Logger()

	if e.opts.DetailMode == pkgsync.DetailAlways {
		if raw, err = e.withDetail(ctx, id, raw); err != nil {
			return fail(id, err)
		}
	}

	mapped, err := e.deps.Mapper.Map(raw)
	if err != nil {
		return fail(id, err)
	}

	if e.opts.DetailMode == pkgsync.DetailMissing && len(mapped.Missing) > 0 {
		logger.Debug().Strs("missing", mapped.Missing).Msg("Fetching detail")
		if raw, err = e.withDetail(ctx, id, raw); err != nil {
			return fail(id, err)
		}
		if mapped, err = e.deps.Mapper.Map(raw); err != nil {
			return fail(id, err)
		}
	}

	decision, err := e.detector.Decide(ctx, id)
	if err != nil {
		return fail(id, err)
	}

	rec := records.Local{ID: id, Attributes: mapped.Record, SyncedAt: e.deps.Now().UTC()}
	var res WriteResult
	switch decision {
	case DecisionInsert:
		res = e.writer.Insert(ctx, rec)
	case DecisionUpdate:
		res = e.writer.Update(ctx, rec)
	case DecisionSkip:
		return outcome{id: id, decision: decision, issues: mapped.Issues}
	}
	if !res.OK() {
		logger.Warn().Err(res.Err).Int("status", res.StatusCode).Str("op", string(res.Op)).Msg("Write failed")
		out := fail(id, res.Err)
		out.issues = mapped.Issues
		return out
	}
	return outcome{id: id, decision: decision, issues: mapped.Issues}
}

// withDetail overlays the detail payload on the list record.
func (e *Engine) withDetail(ctx context.Context, id string, raw records.Raw) (records.Raw, error) {
	detail, err := e.deps.Fetcher.FetchDetail(ctx, id)
	if err != nil {
		return nil, err
	}
	merged := make(records.Raw, len(raw)+len(detail))
	maps.Copy(merged, raw)
	maps.Copy(merged, detail)
	return merged, nil
}

// classify sorts an error into its outcome bucket.
func classify(err error) pkgsync.Category {
	switch {
	case errors.IsRateLimited(err):
		return pkgsync.CategoryRateLimited
	case errors.IsTransient(err):
		return pkgsync.CategoryNetwork
	case errors.IsMapping(err):
		return pkgsync.CategoryMapping
	case errors.IsPersistence(err):
		return pkgsync.CategoryPersistence
	default:
		return pkgsync.CategoryNetwork
	}
}

func statusOf(err error) int {
	var perr *errors.PersistenceError
	if errors.As(err, &perr) {
		return perr.StatusCode
	}
	var apiErr *errors.APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	var rlErr *errors.RateLimitError
	if errors.As(err, &rlErr) {
		return rlErr.StatusCode
	}
	return 0
}
