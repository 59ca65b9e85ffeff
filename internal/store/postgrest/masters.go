package postgrest

import (
	"context"
	"net/http"
	"net/url"

	"github.com/agentstation/utc"

	"github.com/agentstation/crmsync/internal/transport"
	"github.com/agentstation/crmsync/pkg/mapping"
	"github.com/agentstation/crmsync/pkg/records"
)

const colKey = "identification_key"

// masterRow is the wire shape of a master customer row.
type masterRow struct {
	IdentificationKey string            `json:"identification_key"`
	Attributes        records.Canonical `json:"attributes"`
	Sources           []string          `json:"sources"`
	DataHash          string            `json:"data_hash"`
	CreatedAt         *utc.Time         `json:"created_at,omitempty"`
	UpdatedAt         *utc.Time         `json:"updated_at,omitempty"`
}

func toMasterRow(m *records.Master) masterRow {
	r := masterRow{
		IdentificationKey: m.IdentificationKey,
		Attributes:        m.Attributes,
		Sources:           m.Sources,
		DataHash:          m.DataHash,
	}
	if !m.CreatedAt.IsZero() {
		r.CreatedAt = &m.CreatedAt
	}
	if !m.UpdatedAt.IsZero() {
		r.UpdatedAt = &m.UpdatedAt
	}
	return r
}

func (r masterRow) master() *records.Master {
	m := &records.Master{
		IdentificationKey: r.IdentificationKey,
		Attributes:        r.Attributes,
		Sources:           r.Sources,
		DataHash:          r.DataHash,
	}
	if m.Attributes == nil {
		m.Attributes = records.Canonical{}
	}
	if r.CreatedAt != nil {
		m.CreatedAt = *r.CreatedAt
	}
	if r.UpdatedAt != nil {
		m.UpdatedAt = *r.UpdatedAt
	}
	return m
}

// GetMaster implements store.Masters.
func (s *Store) GetMaster(ctx context.Context, key string) (*records.Master, bool, error) {
	q := url.Values{}
	q.Set("select", "*")
	q.Set(colKey, eq(key))
	q.Set("limit", "1")

	var rows []masterRow
	if _, err := s.call(ctx, "select", s.cfg.Tables.Masters, key, http.MethodGet, q, &rows); err != nil {
		return nil, false, err
	}
	if len(rows) == 0 {
		return nil, false, nil
	}
	return rows[0].master(), true, nil
}

// InsertMaster implements store.Masters.
func (s *Store) InsertMaster(ctx context.Context, m *records.Master) error {
	_, err := s.call(ctx, "insert", s.cfg.Tables.Masters, m.IdentificationKey, http.MethodPost, nil, nil,
		transport.WithJSONBody(toMasterRow(m)), minimal())
	return err
}

// UpdateMaster implements store.Masters. The key and creation time are never patched.
func (s *Store) UpdateMaster(ctx context.Context, m *records.Master) error {
	body := map[string]any{
		"attributes": m.Attributes,
		"sources":    m.Sources,
		"data_hash":  m.DataHash,
	}
	if !m.UpdatedAt.IsZero() {
		body["updated_at"] = m.UpdatedAt
	}
	q := url.Values{}
	q.Set(colKey, eq(m.IdentificationKey))
	_, err := s.call(ctx, "update", s.cfg.Tables.Masters, m.IdentificationKey, http.MethodPatch, q, nil,
		transport.WithJSONBody(body), minimal())
	return err
}

// ReadSource implements store.Sources.
func (s *Store) ReadSource(ctx context.Context, table string, offset, limit int) ([]records.Raw, error) {
	var rows []records.Raw
	q := pageQuery("*", s.cfg.SourceOrder, limit, offset)
	if _, err := s.call(ctx, "select", table, "", http.MethodGet, q, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// ListStores implements store.Stores.
func (s *Store) ListStores(ctx context.Context) ([]records.StoreEntity, error) {
	var rows []records.Raw
	q := url.Values{}
	q.Set("select", "id,name")
	q.Set("order", "id.asc")
	if _, err := s.call(ctx, "select", s.cfg.Tables.Stores, "", http.MethodGet, q, &rows); err != nil {
		return nil, err
	}

	out := make([]records.StoreEntity, 0, len(rows))
	for _, r := range rows {
		id, _ := mapping.ToString(r["id"])
		name, _ := mapping.ToString(r["name"])
		if id == "" || name == "" {
			continue
		}
		out = append(out, records.StoreEntity{ID: id, Name: name})
	}
	return out, nil
}

// AppendConsolidationLog implements store.AuditLog.
func (s *Store) AppendConsolidationLog(ctx context.Context, entry records.ConsolidationLogEntry) error {
	_, err := s.call(ctx, "insert", s.cfg.Tables.Log, entry.RunID, http.MethodPost, nil, nil,
		transport.WithJSONBody(entry), minimal())
	return err
}
