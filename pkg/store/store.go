// Package store defines the relational store the sync and consolidation
// pipelines read from and write to.
//
// The interfaces are split by concern. A backend usually implements all of
// them and is passed around as a Store. Every write failure is returned as
// an *errors.PersistenceError carrying the backend's status code. SQL
// backends report status 0 and wrap the driver error.
package store

import (
	"context"

	"github.com/agentstation/crmsync/pkg/records"
)

// Records holds synced CRM records keyed by id.
type Records interface {
	// Lookup returns the stored record for id and whether it exists.
	Lookup(ctx context.Context, id string) (records.Local, bool, error)
	// Insert writes a new record and returns the backend status code.
	Insert(ctx context.Context, rec records.Local) (int, error)
	// Update overwrites the attributes and sync time of an existing record.
	Update(ctx context.Context, rec records.Local) (int, error)
	// Delete removes the records with the given ids.
	Delete(ctx context.Context, ids []string) (int, error)
	// ListIDs returns every stored record id.
	ListIDs(ctx context.Context) ([]string, error)
}

// Masters holds consolidated customers keyed by identification key.
type Masters interface {
	GetMaster(ctx context.Context, key string) (*records.Master, bool, error)
	InsertMaster(ctx context.Context, m *records.Master) error
	UpdateMaster(ctx context.Context, m *records.Master) error
}

// Sources reads persisted source tables page by page.
type Sources interface {
	ReadSource(ctx context.Context, table string, offset, limit int) ([]records.Raw, error)
}

// Stores lists the reference entities fuzzy matching resolves against.
type Stores interface {
	ListStores(ctx context.Context) ([]records.StoreEntity, error)
}

// AuditLog appends consolidation audit rows.
type AuditLog interface {
	AppendConsolidationLog(ctx context.Context, entry records.ConsolidationLogEntry) error
}

// Store is a backend implementing every concern.
type Store interface {
	Records
	Masters
	Sources
	Stores
	AuditLog
	Close() error
}

// Tables names the tables a backend reads and writes.
type Tables struct {
	Records string `yaml:"records" json:"records"`
	Masters string `yaml:"masters" json:"masters"`
	Stores  string `yaml:"stores" json:"stores"`
	Log     string `yaml:"log" json:"log"`
}
