package postgrest

import (
	"context"
	"maps"
	"net/http"
	"net/url"
	"time"

	"github.com/agentstation/crmsync/internal/transport"
	"github.com/agentstation/crmsync/pkg/errors"
	"github.com/agentstation/crmsync/pkg/mapping"
	"github.com/agentstation/crmsync/pkg/records"
)

const (
	colID       = "id"
	colSyncedAt = "synced_at"
)

// row flattens a record into one column per field.
func row(rec records.Local) map[string]any {
	out := make(map[string]any, len(rec.Attributes)+2)
	maps.Copy(out, rec.Attributes)
	out[colID] = rec.ID
	out[colSyncedAt] = rec.SyncedAt.UTC().Format(time.RFC3339Nano)
	return out
}

// fromRow rebuilds a record from a selected row.
func fromRow(r records.Raw) (records.Local, error) {
	id, err := mapping.ToString(r[colID])
	if err != nil || id == "" {
		return records.Local{}, errors.NewMappingError("record", colID, "row has no usable id")
	}
	rec := records.Local{ID: id, Attributes: make(records.Canonical, len(r))}
	for k, v := range r {
		switch k {
		case colID:
		case colSyncedAt:
			if ts, ok := mapping.ParseDate(v); ok {
				rec.SyncedAt = ts
			}
		default:
			rec.Attributes[k] = v
		}
	}
	rec.Attributes[colID] = id
	return rec, nil
}

// Lookup implements store.Records.
func (s *Store) Lookup(ctx context.Context, id string) (records.Local, bool, error) {
	table := s.cfg.Tables.Records
	q := url.Values{}
	q.Set("select", "*")
	q.Set(colID, eq(id))
	q.Set("limit", "1")

	var rows []records.Raw
	if _, err := s.call(ctx, "select", table, id, http.MethodGet, q, &rows); err != nil {
		return records.Local{}, false, err
	}
	if len(rows) == 0 {
		return records.Local{}, false, nil
	}
	rec, err := fromRow(rows[0])
	if err != nil {
		return records.Local{}, false, errors.NewPersistenceError("select", table, id, 0, err)
	}
	return rec, true, nil
}

// Insert implements store.Records.
func (s *Store) Insert(ctx context.Context, rec records.Local) (int, error) {
	return s.call(ctx, "insert", s.cfg.Tables.Records, rec.ID, http.MethodPost, nil, nil,
		transport.WithJSONBody(row(rec)), minimal())
}

// Update implements store.Records.
func (s *Store) Update(ctx context.Context, rec records.Local) (int, error) {
	body := row(rec)
	delete(body, colID)
	q := url.Values{}
	q.Set(colID, eq(rec.ID))
	return s.call(ctx, "update", s.cfg.Tables.Records, rec.ID, http.MethodPatch, q, nil,
		transport.WithJSONBody(body), minimal())
}

// Delete implements store.Records. Ids are sent in chunks so the filter
// stays within URL length limits.
func (s *Store) Delete(ctx context.Context, ids []string) (int, error) {
	status := http.StatusNoContent
	for _, part := range chunk(ids, s.cfg.DeleteChunk) {
		q := url.Values{}
		q.Set(colID, in(part))
		code, err := s.call(ctx, "delete", s.cfg.Tables.Records, describeIDs(part), http.MethodDelete, q, nil, minimal())
		if err != nil {
			return code, err
		}
		status = code
	}
	return status, nil
}

// ListIDs implements store.Records.
func (s *Store) ListIDs(ctx context.Context) ([]string, error) {
	table := s.cfg.Tables.Records
	var ids []string
	for offset := 0; ; offset += s.cfg.ListPageSize {
		var rows []records.Raw
		q := pageQuery(colID, colID+".asc", s.cfg.ListPageSize, offset)
		if _, err := s.call(ctx, "select", table, "", http.MethodGet, q, &rows); err != nil {
			return nil, err
		}
		for _, r := range rows {
			id, err := mapping.ToString(r[colID])
			if err == nil && id != "" {
				ids = append(ids, id)
			}
		}
		if len(rows) < s.cfg.ListPageSize {
			return ids, nil
		}
	}
}
