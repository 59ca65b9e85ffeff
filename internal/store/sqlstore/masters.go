package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/agentstation/utc"
	"github.com/doug-martin/goqu/v9"
	"github.com/google/uuid"

	"github.com/agentstation/crmsync/pkg/errors"
	"github.com/agentstation/crmsync/pkg/mapping"
	"github.com/agentstation/crmsync/pkg/records"
)

// GetMaster implements store.Masters.
func (s *Store) GetMaster(ctx context.Context, key string) (*records.Master, bool, error) {
	table := s.cfg.Tables.Masters
	q := s.db.From(table).Prepared(true).
		Select("identification_key", "attributes", "sources", "data_hash", "created_at", "updated_at").
		Where(goqu.C("identification_key").Eq(key)).
		Limit(1)
	query, args, err := q.ToSQL()
	if err != nil {
		return nil, false, persistErr("select", table, key, err)
	}

	var (
		m                    records.Master
		attrs, sources       string
		createdAt, updatedAt string
	)
	err = s.db.QueryRowContext(ctx, query, args...).
		Scan(&m.IdentificationKey, &attrs, &sources, &m.DataHash, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, persistErr("select", table, key, err)
	}

	if m.Attributes, err = decodeCanonical(attrs); err != nil {
		return nil, false, persistErr("select", table, key, err)
	}
	if err := json.Unmarshal([]byte(sources), &m.Sources); err != nil {
		return nil, false, persistErr("select", table, key, err)
	}
	m.CreatedAt = parseUTC(createdAt)
	m.UpdatedAt = parseUTC(updatedAt)
	return &m, true, nil
}

// InsertMaster implements store.Masters.
func (s *Store) InsertMaster(ctx context.Context, m *records.Master) error {
	table := s.cfg.Tables.Masters
	rec, err := masterRecord(m)
	if err != nil {
		return persistErr("insert", table, m.IdentificationKey, err)
	}
	rec["identification_key"] = m.IdentificationKey
	rec["created_at"] = formatTime(m.CreatedAt.Time)
	q := s.db.Insert(table).Prepared(true).Rows(rec)
	return s.exec(ctx, q, "insert", table, m.IdentificationKey, false)
}

// UpdateMaster implements store.Masters.
func (s *Store) UpdateMaster(ctx context.Context, m *records.Master) error {
	table := s.cfg.Tables.Masters
	rec, err := masterRecord(m)
	if err != nil {
		return persistErr("update", table, m.IdentificationKey, err)
	}
	q := s.db.Update(table).Prepared(true).
		Set(rec).
		Where(goqu.C("identification_key").Eq(m.IdentificationKey))
	return s.exec(ctx, q, "update", table, m.IdentificationKey, true)
}

func masterRecord(m *records.Master) (goqu.Record, error) {
	attrs, err := json.Marshal(m.Attributes)
	if err != nil {
		return nil, err
	}
	sources := m.Sources
	if sources == nil {
		sources = []string{}
	}
	srcs, err := json.Marshal(sources)
	if err != nil {
		return nil, err
	}
	return goqu.Record{
		"attributes": string(attrs),
		"sources":    string(srcs),
		"data_hash":  m.DataHash,
		"updated_at": formatTime(m.UpdatedAt.Time),
	}, nil
}

func parseUTC(s string) utc.Time {
	ts, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return utc.Time{}
	}
	return utc.Time{Time: ts}
}

// ReadSource implements store.Sources.
func (s *Store) ReadSource(ctx context.Context, table string, offset, limit int) ([]records.Raw, error) {
	return s.readTable(ctx, table, s.cfg.SourceOrder, offset, limit)
}

// readTable selects every column of a page of table. Byte values become strings.
func (s *Store) readTable(ctx context.Context, table, order string, offset, limit int) ([]records.Raw, error) {
	q := s.db.From(table).Prepared(true).
		Order(goqu.I(order).Asc()).
		Limit(uint(limit)).
		Offset(uint(offset))
	query, args, err := q.ToSQL()
	if err != nil {
		return nil, persistErr("select", table, "", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, persistErr("select", table, "", err)
	}
	defer rows.Close() //nolint:errcheck // read-only

	cols, err := rows.Columns()
	if err != nil {
		return nil, persistErr("select", table, "", err)
	}

	var out []records.Raw
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, persistErr("select", table, "", err)
		}
		row := make(records.Raw, len(cols))
		for i, col := range cols {
			if b, ok := vals[i].([]byte); ok {
				row[col] = string(b)
				continue
			}
			row[col] = vals[i]
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, persistErr("select", table, "", err)
	}
	return out, nil
}

// ListStores implements store.Stores.
func (s *Store) ListStores(ctx context.Context) ([]records.StoreEntity, error) {
	table := s.cfg.Tables.Stores
	rows, err := s.readTable(ctx, table, "id", 0, maxStores)
	if err != nil {
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

// maxStores caps the reference set loaded for matching.
const maxStores = 10_000

// AppendConsolidationLog implements store.AuditLog.
func (s *Store) AppendConsolidationLog(ctx context.Context, e records.ConsolidationLogEntry) error {
	table := s.cfg.Tables.Log
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	q := s.db.Insert(table).Prepared(true).Rows(goqu.Record{
		"id":          e.ID,
		"run_id":      e.RunID,
		"source":      e.Source,
		"processed":   e.Processed,
		"inserted":    e.Inserted,
		"updated":     e.Updated,
		"unchanged":   e.Unchanged,
		"excluded":    e.Excluded,
		"errors":      e.Errors,
		"elapsed_ms":  e.ElapsedMS,
		"started_at":  formatTime(e.StartedAt.Time),
		"finished_at": formatTime(e.FinishedAt.Time),
		"message":     e.Message,
	})
	return s.exec(ctx, q, "insert", table, e.ID, false)
}
