package sync

import (
	"fmt"
	"strings"
	"time"

	"github.com/agentstation/crmsync/pkg/mapping"
)

// Status summarizes how a run ended.
type Status string

// Run statuses.
const (
	StatusSuccess Status = "success" // complete with no failed records
	StatusPartial Status = "partial" // some records or pages failed
	StatusFailed  Status = "failed"  // nothing was processed
)

// Category names a failure class for summaries.
type Category string

// Failure categories.
const (
	CategoryMapping     Category = "mapping"
	CategoryPersistence Category = "persistence"
	CategoryNetwork     Category = "network"
	CategoryRateLimited Category = "rate_limited"
)

// Failure is one failed record or page.
type Failure struct {
	Page     int      `json:"page" yaml:"page"`
	RecordID string   `json:"record_id,omitempty" yaml:"record_id,omitempty"`
	Category Category `json:"category" yaml:"category"`
	Status   int      `json:"status,omitempty" yaml:"status,omitempty"`
	Message  string   `json:"message" yaml:"message"`
}

// RecordIssue is a soft mapping issue attached to a record.
type RecordIssue struct {
	RecordID string `json:"record_id" yaml:"record_id"`
	mapping.Issue
}

// MaxReported bounds the failures and issues kept on a Result.
const MaxReported = 100

// Result represents the complete result of a sync run.
type Result struct {
	RunID string `json:"run_id" yaml:"run_id"`

	// Record outcomes
	Processed int `json:"processed" yaml:"processed"`
	Inserted  int `json:"inserted" yaml:"inserted"`
	Updated   int `json:"updated" yaml:"updated"`
	Skipped   int `json:"skipped" yaml:"skipped"`
	Deleted   int `json:"deleted" yaml:"deleted"`

	// Failures by category
	MappingErrors     int `json:"mapping_errors" yaml:"mapping_errors"`
	PersistenceErrors int `json:"persistence_errors" yaml:"persistence_errors"`
	NetworkErrors     int `json:"network_errors" yaml:"network_errors"`
	RateLimitErrors   int `json:"rate_limit_errors" yaml:"rate_limit_errors"`
	// PriorErrors are failures recorded by the run this one resumed.
	PriorErrors int `json:"prior_errors" yaml:"prior_errors"`

	// Remote traffic
	Pages       int `json:"pages" yaml:"pages"`
	ListCalls   int `json:"list_calls" yaml:"list_calls"`
	DetailCalls int `json:"detail_calls" yaml:"detail_calls"`

	// Run metadata
	Complete       bool          `json:"complete" yaml:"complete"`
	Resumed        bool          `json:"resumed" yaml:"resumed"`
	SweepPerformed bool          `json:"sweep_performed" yaml:"sweep_performed"`
	DryRun         bool          `json:"dry_run" yaml:"dry_run"`
	StartedAt      time.Time     `json:"started_at" yaml:"started_at"`
	Duration       time.Duration `json:"duration" yaml:"duration"`
	Reason         string        `json:"reason,omitempty" yaml:"reason,omitempty"`

	Failures []Failure     `json:"failures,omitempty" yaml:"failures,omitempty"`
	Issues   []RecordIssue `json:"issues,omitempty" yaml:"issues,omitempty"`
}

// Errors returns the total number of failures.
func (r *Result) Errors() int {
	return r.MappingErrors + r.PersistenceErrors + r.NetworkErrors + r.RateLimitErrors + r.PriorErrors
}

// HasChanges reports whether the run wrote anything.
func (r *Result) HasChanges() bool {
	return r.Inserted > 0 || r.Updated > 0 || r.Deleted > 0
}

// Status classifies the run.
func (r *Result) Status() Status {
	switch {
	case r.Complete && r.Errors() == 0:
		return StatusSuccess
	case r.Processed == 0 && r.Errors() > 0:
		return StatusFailed
	case !r.Complete && r.Processed == 0:
		return StatusFailed
	default:
		return StatusPartial
	}
}

// Summary returns a human-readable summary of the sync result.
func (r *Result) Summary() string {
	var parts []string
	if r.DryRun {
		parts = append(parts, "(Dry run)")
	}
	if r.Resumed {
		parts = append(parts, "(Resumed)")
	}
	if !r.Complete {
		parts = append(parts, "(Incomplete)")
	}

	summary := fmt.Sprintf("%s: %d processed, %d inserted, %d updated, %d skipped, %d deleted, %d errors",
		r.Status(), r.Processed, r.Inserted, r.Updated, r.Skipped, r.Deleted, r.Errors())
	if len(parts) > 0 {
		summary += " " + strings.Join(parts, " ")
	}
	return summary
}

// AddFailure records a failure, keeping at most MaxReported.
func (r *Result) AddFailure(f Failure) {
	switch f.Category {
	case CategoryMapping:
		r.MappingErrors++
	case CategoryPersistence:
		r.PersistenceErrors++
	case CategoryNetwork:
		r.NetworkErrors++
	case CategoryRateLimited:
		r.RateLimitErrors++
	}
	if len(r.Failures) < MaxReported {
		r.Failures = append(r.Failures, f)
	}
}

// AddIssues records soft mapping issues, keeping at most MaxReported.
func (r *Result) AddIssues(id string, issues []mapping.Issue) {
	for _, is := range issues {
		if len(r.Issues) >= MaxReported {
			return
		}
		r.Issues = append(r.Issues, RecordIssue{RecordID: id, Issue: is})
	}
}
