package sync

import (
	"context"
	"time"

	"github.com/agentstation/crmsync/pkg/store"
)

// Decision is what the writer should do with a fetched record.
type Decision int

// Decisions.
const (
	DecisionInsert Decision = iota
	DecisionUpdate
	DecisionSkip
)

// String returns the decision name.
func (d Decision) String() string {
	switch d {
	case DecisionInsert:
		return "insert"
	case DecisionUpdate:
		return "update"
	case DecisionSkip:
		return "skip"
	default:
		return "unknown"
	}
}

// Detector decides between insert, update and skip from the local copy.
// A record synced less than StalenessWindow ago is skipped; a zero window
// never skips.
type Detector struct {
	Records         store.Records
	StalenessWindow time.Duration
	Now             func() time.Time
}

// Decide looks id up locally and returns the decision.
func (d *Detector) Decide(ctx context.Context, id string) (Decision, error) {
	local, ok, err := d.Records.Lookup(ctx, id)
	if err != nil {
		return DecisionSkip, err
	}
	if !ok {
		return DecisionInsert, nil
	}
	if d.StalenessWindow <= 0 {
		return DecisionUpdate, nil
	}

	now := time.Now
	if d.Now != nil {
		now = d.Now
	}
	if now().Sub(local.SyncedAt) < d.StalenessWindow {
		return DecisionSkip, nil
	}
	return DecisionUpdate, nil
}
