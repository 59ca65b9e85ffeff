package sync

import (
	"context"

	"github.com/agentstation/crmsync/pkg/logging"
	"github.com/agentstation/crmsync/pkg/records"
	"github.com/agentstation/crmsync/pkg/store"
)

// Op is a write operation.
type Op string

// Write operations.
const (
	OpInsert Op = "insert"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// WriteResult reports one write. StatusCode is 0 for stores without HTTP
// statuses and for dry runs.
type WriteResult struct {
	Op         Op
	ID         string
	Count      int
	StatusCode int
	Err        error
}

// OK reports whether the write succeeded.
func (r WriteResult) OK() bool {
	return r.Err == nil
}

// Writer applies decisions to the store. In dry-run mode it only logs.
type Writer struct {
	records store.Records
	dryRun  bool
}

// NewWriter creates a Writer over recs.
func NewWriter(recs store.Records, dryRun bool) *Writer {
	return &Writer{records: recs, dryRun: dryRun}
}

// Insert creates rec.
func (w *Writer) Insert(ctx context.Context, rec records.Local) WriteResult {
	res := WriteResult{Op: OpInsert, ID: rec.ID, Count: 1}
	if w.skip(ctx, res) {
		return res
	}
	res.StatusCode, res.Err = w.records.Insert(ctx, rec)
	return res
}

// Update replaces rec.
func (w *Writer) Update(ctx context.Context, rec records.Local) WriteResult {
	res := WriteResult{Op: OpUpdate, ID: rec.ID, Count: 1}
	if w.skip(ctx, res) {
		return res
	}
	res.StatusCode, res.Err = w.records.Update(ctx, rec)
	return res
}

// Delete removes ids.
func (w *Writer) Delete(ctx context.Context, ids []string) WriteResult {
	res := WriteResult{Op: OpDelete, Count: len(ids)}
	if len(ids) == 1 {
		res.ID = ids[0]
	}
	if len(ids) == 0 || w.skip(ctx, res) {
		return res
	}
	res.StatusCode, res.Err = w.records.Delete(ctx, ids)
	return res
}

func (w *Writer) skip(ctx context.Context, res WriteResult) bool {
	if !w.dryRun {
		return false
	}
	logging.FromContext(ctx).Debug().
		Str("op", string(res.Op)).
		Str("id", res.ID).
		Int("count", res.Count).
		Msg("Dry run, write skipped")
	return true
}
