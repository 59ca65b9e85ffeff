package sqlstore

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/doug-martin/goqu/v9"

	"github.com/agentstation/crmsync/pkg/errors"
	"github.com/agentstation/crmsync/pkg/records"
)

// Lookup implements store.Records.
func (s *Store) Lookup(ctx context.Context, id string) (records.Local, bool, error) {
	table := s.cfg.Tables.Records
	q := s.db.From(table).Prepared(true).
		Select("id", "data", "synced_at").
		Where(goqu.C("id").Eq(id)).
		Limit(1)

	query, args, err := q.ToSQL()
	if err != nil {
		return records.Local{}, false, persistErr("select", table, id, err)
	}

	var (
		rec      records.Local
		data     string
		syncedAt string
	)
	err = s.db.QueryRowContext(ctx, query, args...).Scan(&rec.ID, &data, &syncedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return records.Local{}, false, nil
		}
		return records.Local{}, false, persistErr("select", table, id, err)
	}

	if rec.Attributes, err = decodeCanonical(data); err != nil {
		return records.Local{}, false, persistErr("select", table, id, err)
	}
	if rec.SyncedAt, err = time.Parse(time.RFC3339Nano, syncedAt); err != nil {
		return records.Local{}, false, persistErr("select", table, id, err)
	}
	return rec, true, nil
}

// Insert implements store.Records.
func (s *Store) Insert(ctx context.Context, rec records.Local) (int, error) {
	table := s.cfg.Tables.Records
	data, err := json.Marshal(rec.Attributes)
	if err != nil {
		return 0, persistErr("insert", table, rec.ID, err)
	}

	q := s.db.Insert(table).Prepared(true).Rows(goqu.Record{
		"id":        rec.ID,
		"data":      string(data),
		"synced_at": formatTime(rec.SyncedAt),
	})
	return 0, s.exec(ctx, q, "insert", table, rec.ID, false)
}

// Update implements store.Records.
func (s *Store) Update(ctx context.Context, rec records.Local) (int, error) {
	table := s.cfg.Tables.Records
	data, err := json.Marshal(rec.Attributes)
	if err != nil {
		return 0, persistErr("update", table, rec.ID, err)
	}

	q := s.db.Update(table).Prepared(true).
		Set(goqu.Record{
			"data":      string(data),
			"synced_at": formatTime(rec.SyncedAt),
		}).
		Where(goqu.C("id").Eq(rec.ID))
	return 0, s.exec(ctx, q, "update", table, rec.ID, true)
}

// Delete implements store.Records.
func (s *Store) Delete(ctx context.Context, ids []string) (int, error) {
	table := s.cfg.Tables.Records
	for start := 0; start < len(ids); start += deleteChunk {
		part := ids[start:min(start+deleteChunk, len(ids))]
		q := s.db.Delete(table).Prepared(true).Where(goqu.C("id").In(part))
		if err := s.exec(ctx, q, "delete", table, "", false); err != nil {
			return 0, err
		}
	}
	return 0, nil
}

// ListIDs implements store.Records.
func (s *Store) ListIDs(ctx context.Context) ([]string, error) {
	table := s.cfg.Tables.Records
	var ids []string
	err := s.db.From(table).Select("id").Order(goqu.C("id").Asc()).ScanValsContext(ctx, &ids)
	if err != nil {
		return nil, persistErr("select", table, "", err)
	}
	return ids, nil
}

// deleteChunk bounds the bound parameters of one delete statement.
const deleteChunk = 500

type sqler interface {
	ToSQL() (string, []any, error)
}

// exec runs a write. With mustAffect set, a statement that touched no
// rows is reported as a missing row.
func (s *Store) exec(ctx context.Context, q sqler, op, table, id string, mustAffect bool) error {
	query, args, err := q.ToSQL()
	if err != nil {
		return persistErr(op, table, id, err)
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return persistErr(op, table, id, err)
	}
	if mustAffect {
		n, err := res.RowsAffected()
		if err != nil {
			return persistErr(op, table, id, err)
		}
		if n == 0 {
			return persistErr(op, table, id, errors.ErrNotFound)
		}
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func decodeCanonical(data string) (records.Canonical, error) {
	out := records.Canonical{}
	if data == "" {
		return out, nil
	}
	dec := json.NewDecoder(bytes.NewReader([]byte(data)))
	dec.UseNumber()
	if err := dec.Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}
