// Package checkpoint persists synchronization progress so an interrupted
// run can resume from the last completed page.
//
// A checkpoint is written after every page and cleared only when a run
// reaches natural completion. Resumption is at-least-once: records of the
// page that was in flight may be written again.
package checkpoint

import (
	"context"
	"fmt"

	"github.com/agentstation/utc"
)

// Progress is the persisted state of a run.
type Progress struct {
	RunID     string   `json:"run_id,omitempty"`
	Processed int      `json:"processed"`
	Inserted  int      `json:"inserted"`
	Updated   int      `json:"updated"`
	Skipped   int      `json:"skipped"`
	Errors    int      `json:"errors"`
	Page      int      `json:"page"`
	StartedAt utc.Time `json:"started_at"`
	SavedAt   utc.Time `json:"saved_at"`
}

// NextPage returns the page a resumed run starts from.
func (p *Progress) NextPage() int {
	if p == nil || p.Page < 1 {
		return 1
	}
	return p.Page + 1
}

// String returns a one-line summary for progress logs.
func (p Progress) String() string {
	return fmt.Sprintf("page %d: %d processed, %d inserted, %d updated, %d skipped, %d errors",
		p.Page, p.Processed, p.Inserted, p.Updated, p.Skipped, p.Errors)
}

// Store saves, loads and clears a single checkpoint.
type Store interface {
	// Save replaces the stored checkpoint.
	Save(ctx context.Context, p Progress) error
	// Load returns the stored checkpoint, or nil when none exists.
	Load(ctx context.Context) (*Progress, error)
	// Clear removes the stored checkpoint. Clearing a missing checkpoint is not an error.
	Clear(ctx context.Context) error
}

// Nop is a Store that keeps nothing. Dry runs use it.
type Nop struct{}

// Save implements Store.
func (Nop) Save(context.Context, Progress) error { return nil }

// Load implements Store.
func (Nop) Load(context.Context) (*Progress, error) { return nil, nil }

// Clear implements Store.
func (Nop) Clear(context.Context) error { return nil }

func stamp(p Progress) Progress {
	p.SavedAt = utc.Now()
	return p
}
