package sync

import (
	"context"
	"slices"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/agentstation/crmsync/pkg/errors"
	"github.com/agentstation/crmsync/pkg/logging"
	"github.com/agentstation/crmsync/pkg/store"
)

// Sweeper deletes local records that the remote no longer holds.
type Sweeper struct {
	records store.Records
	writer  *Writer
}

// NewSweeper creates a Sweeper deleting through w.
func NewSweeper(recs store.Records, w *Writer) *Sweeper {
	return &Sweeper{records: recs, writer: w}
}

// Sweep deletes every local id absent from remoteIDs and returns the
// deleted ids in order. It refuses with an IncompleteRunError unless the
// run observed every remote page, since an unseen page would otherwise
// delete live records.
func (s *Sweeper) Sweep(ctx context.Context, remoteIDs mapset.Set[string], complete bool) ([]string, error) {
	if !complete {
		return nil, &errors.IncompleteRunError{Reason: "not every remote page was observed"}
	}

	local, err := s.records.ListIDs(ctx)
	if err != nil {
		return nil, err
	}

	var orphans []string
	for _, id := range local {
		if !remoteIDs.Contains(id) {
			orphans = append(orphans, id)
		}
	}
	slices.Sort(orphans)

	logging.FromContext(ctx).Info().
		Int("local", len(local)).
		Int("remote", remoteIDs.Cardinality()).
		Int("orphans", len(orphans)).
		Msg("Reconciliation sweep")

	if len(orphans) == 0 {
		return nil, nil
	}
	if res := s.writer.Delete(ctx, orphans); !res.OK() {
		return nil, res.Err
	}
	return orphans, nil
}
