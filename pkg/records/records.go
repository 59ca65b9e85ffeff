// Package records defines the data shapes that flow between the sync
// and consolidation pipelines and the relational store.
package records

import (
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/agentstation/utc"
)

// Raw is a payload exactly as the remote CRM or a source table returned it.
type Raw map[string]any

// Canonical is a record after field mapping: canonical field names with
// normalized, storable values (string, int64, bool, nil).
type Canonical map[string]any

// String returns the field as a trimmed string, or "" when absent or not a string.
func (c Canonical) String(field string) string {
	s, _ := c[field].(string)
	return strings.TrimSpace(s)
}

// Clone returns a shallow copy.
func (c Canonical) Clone() Canonical {
	return maps.Clone(c)
}

// Fields returns the field names in sorted order.
func (c Canonical) Fields() []string {
	return slices.Sorted(maps.Keys(c))
}

// IsEmpty reports whether a value carries no information.
func IsEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	default:
		return false
	}
}

// Local is a synced CRM record as persisted in the store.
type Local struct {
	ID         string    `json:"id"`
	Attributes Canonical `json:"attributes"`
	SyncedAt   time.Time `json:"synced_at"`
}

// Master is a consolidated customer keyed by its identification key.
type Master struct {
	IdentificationKey string    `json:"identification_key" yaml:"identification_key"`
	Attributes        Canonical `json:"attributes" yaml:"attributes"`
	Sources           []string  `json:"sources" yaml:"sources"`
	DataHash          string    `json:"data_hash" yaml:"data_hash"`
	CreatedAt         utc.Time  `json:"created_at" yaml:"created_at"`
	UpdatedAt         utc.Time  `json:"updated_at" yaml:"updated_at"`
}

// HasSource reports whether name already contributed to the master.
func (m *Master) HasSource(name string) bool {
	return slices.Contains(m.Sources, name)
}

// StoreEntity is read-only reference data used as a matching target.
type StoreEntity struct {
	ID   string `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`
}

// ConsolidationLogEntry is one audit row per source table per consolidation run.
type ConsolidationLogEntry struct {
	ID         string   `json:"id" yaml:"id"`
	RunID      string   `json:"run_id" yaml:"run_id"`
	Source     string   `json:"source" yaml:"source"`
	Processed  int      `json:"processed" yaml:"processed"`
	Inserted   int      `json:"inserted" yaml:"inserted"`
	Updated    int      `json:"updated" yaml:"updated"`
	Unchanged  int      `json:"unchanged" yaml:"unchanged"`
	Excluded   int      `json:"excluded" yaml:"excluded"`
	Errors     int      `json:"errors" yaml:"errors"`
	ElapsedMS  int64    `json:"elapsed_ms" yaml:"elapsed_ms"`
	StartedAt  utc.Time `json:"started_at" yaml:"started_at"`
	FinishedAt utc.Time `json:"finished_at" yaml:"finished_at"`
	Message    string   `json:"message,omitempty" yaml:"message,omitempty"`
}
