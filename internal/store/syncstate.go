package store

import (
	"context"
	"database/sql"
	"time"
)

// RecordSync stores when an entity kind of a backend last completed a pull.
func (tx *Tx) RecordSync(backendID, kind string, at time.Time) error {
	_, err := tx.exec("record sync", `
	INSERT INTO sync_state (backend_id, kind, last_synced_at) VALUES (?, ?, ?)
	ON CONFLICT(backend_id, kind) DO UPDATE SET last_synced_at = excluded.last_synced_at`,
		backendID, kind, timeToNullString(&at))
	return err
}

// LastSync returns the most recent completed pull for a backend, across
// kinds when kind is empty. The zero time means never.
func (tx *Tx) LastSync(backendID, kind string) (time.Time, error) {
	query := `SELECT MAX(last_synced_at) FROM sync_state WHERE backend_id = ?`
	args := []any{backendID}
	if kind != "" {
		query += ` AND kind = ?`
		args = append(args, kind)
	}

	var last sql.NullString
	if err := tx.q.QueryRowContext(tx.ctx, query, args...).Scan(&last); err != nil {
		return time.Time{}, classify("read sync state", err)
	}
	if ts := nullStringToTime(last); ts != nil {
		return *ts, nil
	}
	return time.Time{}, nil
}

// LastSync returns the most recent completed pull for a backend.
func (db *DB) LastSync(ctx context.Context, backendID, kind string) (time.Time, error) {
	return view(ctx, db, func(tx *Tx) (time.Time, error) { return tx.LastSync(backendID, kind) })
}
