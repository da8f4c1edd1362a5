package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// SyncLease is a backend's sync lock as stored in sync_locks.
type SyncLease struct {
	BackendID string
	Owner     string
	ExpiresAt time.Time
}

// AcquireSyncLock takes or renews the sync lease of a backend for owner.
//
// The lease is shared by every process using the database file: write
// transactions begin immediately, so two callers serialize on the write
// lock and only one sees the lease free. A lease held by a different owner
// that has not expired yields ErrSyncLocked. An expired lease is taken over.
func (tx *Tx) AcquireSyncLock(backendID, owner string, ttl time.Duration) error {
	now := tx.now().UTC()

	cur, err := tx.SyncLock(backendID)
	if err != nil {
		return err
	}
	if cur != nil && cur.Owner != owner && cur.ExpiresAt.After(now) {
		return fmt.Errorf("backend %s held by %s until %s: %w",
			backendID, cur.Owner, cur.ExpiresAt.Format(time.RFC3339), ErrSyncLocked)
	}

	expires := now.Add(ttl)
	_, err = tx.exec("acquire sync lock", `
	INSERT INTO sync_locks (backend_id, owner, expires_at) VALUES (?, ?, ?)
	ON CONFLICT(backend_id) DO UPDATE SET owner = excluded.owner, expires_at = excluded.expires_at`,
		backendID, owner, timeToNullString(&expires))
	return err
}

// ReleaseSyncLock drops the lease if owner still holds it.
func (tx *Tx) ReleaseSyncLock(backendID, owner string) error {
	_, err := tx.exec("release sync lock",
		`DELETE FROM sync_locks WHERE backend_id = ? AND owner = ?`, backendID, owner)
	return err
}

// SyncLock returns the current lease of a backend, or nil if there is none.
// An expired lease is still returned.
func (tx *Tx) SyncLock(backendID string) (*SyncLease, error) {
	var l SyncLease
	var expires sql.NullString
	err := tx.q.QueryRowContext(tx.ctx,
		`SELECT backend_id, owner, expires_at FROM sync_locks WHERE backend_id = ?`, backendID).
		Scan(&l.BackendID, &l.Owner, &expires)
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, classify("read sync lock", err)
	}
	if ts := nullStringToTime(expires); ts != nil {
		l.ExpiresAt = *ts
	}
	return &l, nil
}

// AcquireSyncLock takes or renews the sync lease of a backend for owner.
func (db *DB) AcquireSyncLock(ctx context.Context, backendID, owner string, ttl time.Duration) error {
	return db.Update(ctx, func(tx *Tx) error { return tx.AcquireSyncLock(backendID, owner, ttl) })
}

// ReleaseSyncLock drops the lease if owner still holds it.
func (db *DB) ReleaseSyncLock(ctx context.Context, backendID, owner string) error {
	return db.Update(ctx, func(tx *Tx) error { return tx.ReleaseSyncLock(backendID, owner) })
}
