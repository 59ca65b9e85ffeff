// Package memory is an in-process store used by tests and dry runs.
package memory

import (
	"context"
	"maps"
	"slices"
	"sync"

	"github.com/agentstation/crmsync/pkg/errors"
	"github.com/agentstation/crmsync/pkg/records"
	"github.com/agentstation/crmsync/pkg/store"
)

var _ store.Store = (*Store)(nil)

// Store keeps every table in maps guarded by one RWMutex.
type Store struct {
	mu       sync.RWMutex
	tables   store.Tables
	records  map[string]records.Local
	masters  map[string]*records.Master
	sources  map[string][]records.Raw
	stores   []records.StoreEntity
	log      []records.ConsolidationLogEntry
	failures map[failureKey]int
}

type failureKey struct {
	op string
	id string
}

// New returns an empty store.
func New() *Store {
	return &Store{
		tables:   store.DefaultTables(),
		records:  make(map[string]records.Local),
		masters:  make(map[string]*records.Master),
		sources:  make(map[string][]records.Raw),
		failures: make(map[failureKey]int),
	}
}

// Seed stores recs as if they had been synced before.
func (s *Store) Seed(recs ...records.Local) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range recs {
		s.records[r.ID] = cloneLocal(r)
	}
}

// SetSource replaces the rows of a source table.
func (s *Store) SetSource(table string, rows []records.Raw) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sources[table] = slices.Clone(rows)
}

// SetStores replaces the reference store entities.
func (s *Store) SetStores(entities ...records.StoreEntity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stores = slices.Clone(entities)
}

// FailOn makes the next writes of op ("insert", "update", "delete",
// "insert_master", "update_master") on id fail with status.
func (s *Store) FailOn(op, id string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[failureKey{op: op, id: id}] = status
}

// Record returns a stored record.
func (s *Store) Record(id string) (records.Local, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[id]
	return cloneLocal(r), ok
}

// Len returns the number of stored records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// AllMasters returns every master sorted by key.
func (s *Store) AllMasters() []*records.Master {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*records.Master, 0, len(s.masters))
	for _, key := range slices.Sorted(maps.Keys(s.masters)) {
		out = append(out, cloneMaster(s.masters[key]))
	}
	return out
}

// ConsolidationLog returns the appended audit rows in order.
func (s *Store) ConsolidationLog() []records.ConsolidationLogEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.log)
}

func (s *Store) fail(op, table, id string) (int, error) {
	status, ok := s.failures[failureKey{op: op, id: id}]
	if !ok {
		return 0, nil
	}
	return status, errors.NewPersistenceError(op, table, id, status, errors.New("injected failure"))
}

// Lookup implements store.Records.
func (s *Store) Lookup(ctx context.Context, id string) (records.Local, bool, error) {
	if err := ctx.Err(); err != nil {
		return records.Local{}, false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[id]
	if !ok {
		return records.Local{}, false, nil
	}
	return cloneLocal(r), true, nil
}

// Insert implements store.Records.
func (s *Store) Insert(ctx context.Context, rec records.Local) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if status, err := s.fail("insert", s.tables.Records, rec.ID); err != nil {
		return status, err
	}
	if _, exists := s.records[rec.ID]; exists {
		return 409, errors.NewPersistenceError("insert", s.tables.Records, rec.ID, 409, errors.New("duplicate key"))
	}
	s.records[rec.ID] = cloneLocal(rec)
	return 201, nil
}

// Update implements store.Records.
func (s *Store) Update(ctx context.Context, rec records.Local) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if status, err := s.fail("update", s.tables.Records, rec.ID); err != nil {
		return status, err
	}
	if _, exists := s.records[rec.ID]; !exists {
		return 404, errors.NewPersistenceError("update", s.tables.Records, rec.ID, 404, errors.ErrNotFound)
	}
	s.records[rec.ID] = cloneLocal(rec)
	return 204, nil
}

// Delete implements store.Records.
func (s *Store) Delete(ctx context.Context, ids []string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		if status, err := s.fail("delete", s.tables.Records, id); err != nil {
			return status, err
		}
	}
	for _, id := range ids {
		delete(s.records, id)
	}
	return 204, nil
}

// ListIDs implements store.Records.
func (s *Store) ListIDs(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Sorted(maps.Keys(s.records)), nil
}

// GetMaster implements store.Masters.
func (s *Store) GetMaster(ctx context.Context, key string) (*records.Master, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.masters[key]
	if !ok {
		return nil, false, nil
	}
	return cloneMaster(m), true, nil
}

// InsertMaster implements store.Masters.
func (s *Store) InsertMaster(ctx context.Context, m *records.Master) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.fail("insert_master", s.tables.Masters, m.IdentificationKey); err != nil {
		return err
	}
	if _, exists := s.masters[m.IdentificationKey]; exists {
		return errors.NewPersistenceError("insert", s.tables.Masters, m.IdentificationKey, 409, errors.New("duplicate key"))
	}
	s.masters[m.IdentificationKey] = cloneMaster(m)
	return nil
}

// UpdateMaster implements store.Masters.
func (s *Store) UpdateMaster(ctx context.Context, m *records.Master) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.fail("update_master", s.tables.Masters, m.IdentificationKey); err != nil {
		return err
	}
	if _, exists := s.masters[m.IdentificationKey]; !exists {
		return errors.NewPersistenceError("update", s.tables.Masters, m.IdentificationKey, 404, errors.ErrNotFound)
	}
	s.masters[m.IdentificationKey] = cloneMaster(m)
	return nil
}

// ReadSource implements store.Sources.
func (s *Store) ReadSource(ctx context.Context, table string, offset, limit int) ([]records.Raw, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, ok := s.sources[table]
	if !ok {
		return nil, errors.NewNotFoundError("source table", table)
	}
	if offset >= len(rows) {
		return nil, nil
	}
	end := min(offset+limit, len(rows))
	out := make([]records.Raw, 0, end-offset)
	for _, r := range rows[offset:end] {
		out = append(out, maps.Clone(r))
	}
	return out, nil
}

// ListStores implements store.Stores.
func (s *Store) ListStores(ctx context.Context) ([]records.StoreEntity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.stores), nil
}

// AppendConsolidationLog implements store.AuditLog.
func (s *Store) AppendConsolidationLog(ctx context.Context, entry records.ConsolidationLogEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.log = append(s.log, entry)
	return nil
}

// Close implements store.Store.
func (s *Store) Close() error { return nil }

func cloneLocal(r records.Local) records.Local {
	r.Attributes = r.Attributes.Clone()
	return r
}

func cloneMaster(m *records.Master) *records.Master {
	if m == nil {
		return nil
	}
	c := *m
	c.Attributes = m.Attributes.Clone()
	c.Sources = slices.Clone(m.Sources)
	return &c
}
