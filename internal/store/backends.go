package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/terminalist/terminalist/internal/model"
)

// CreateBackend inserts a backend. An empty ID is replaced by a fresh one.
func (tx *Tx) CreateBackend(b *model.Backend) (*model.Backend, error) {
	out := *b
	if out.ID == "" {
		out.ID = uuid.NewString()
	}
	if out.CreatedAt.IsZero() {
		out.CreatedAt = tx.now().UTC()
	}
	if err := out.Validate(); err != nil {
		return nil, fmt.Errorf("invalid backend: %w", err)
	}

	_, err := tx.exec("create backend", `
	INSERT INTO backends (id, type, name, enabled, credentials, settings, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)`,
		out.ID, out.Type, out.Name, boolToInt(out.Enabled),
		out.Credentials, out.Settings, out.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// GetBackend returns the backend or nil if it does not exist.
func (tx *Tx) GetBackend(id string) (*model.Backend, error) {
	row := tx.q.QueryRowContext(tx.ctx, `
	SELECT id, type, name, enabled, credentials, settings, created_at
	FROM backends WHERE id = ?`, id)

	b, err := scanBackend(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, classify("get backend", err)
	}
	return b, nil
}

// ListBackends returns backends ordered by name.
func (tx *Tx) ListBackends(enabledOnly bool) ([]*model.Backend, error) {
	query := `SELECT id, type, name, enabled, credentials, settings, created_at FROM backends`
	if enabledOnly {
		query += ` WHERE enabled = 1`
	}
	query += ` ORDER BY name ASC, created_at ASC`

	rows, err := tx.query("list backends", query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Backend
	for rows.Next() {
		b, err := scanBackend(rows)
		if err != nil {
			return nil, classify("scan backend", err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("list backends", err)
	}
	return out, nil
}

// SetBackendEnabled toggles whether the backend takes part in sync.
func (tx *Tx) SetBackendEnabled(id string, enabled bool) error {
	res, err := tx.exec("update backend", `UPDATE backends SET enabled = ? WHERE id = ?`, boolToInt(enabled), id)
	if err != nil {
		return err
	}
	return requireAffected(res, "backend", id)
}

// UpdateBackendCredentials replaces the opaque credential blob.
func (tx *Tx) UpdateBackendCredentials(id string, credentials []byte) error {
	res, err := tx.exec("update backend", `UPDATE backends SET credentials = ? WHERE id = ?`, credentials, id)
	if err != nil {
		return err
	}
	return requireAffected(res, "backend", id)
}

// DeleteBackend removes the backend and, through ON DELETE CASCADE, every
// project, section, task, label and task/label link it owns.
func (tx *Tx) DeleteBackend(id string) error {
	res, err := tx.exec("delete backend", `DELETE FROM backends WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return requireAffected(res, "backend", id)
}

// CreateBackend inserts a backend in its own transaction.
func (db *DB) CreateBackend(ctx context.Context, b *model.Backend) (*model.Backend, error) {
	return update(ctx, db, func(tx *Tx) (*model.Backend, error) { return tx.CreateBackend(b) })
}

// GetBackend returns the backend or nil if it does not exist.
func (db *DB) GetBackend(ctx context.Context, id string) (*model.Backend, error) {
	return view(ctx, db, func(tx *Tx) (*model.Backend, error) { return tx.GetBackend(id) })
}

// ListBackends returns backends ordered by name.
func (db *DB) ListBackends(ctx context.Context, enabledOnly bool) ([]*model.Backend, error) {
	return view(ctx, db, func(tx *Tx) ([]*model.Backend, error) { return tx.ListBackends(enabledOnly) })
}

// SetBackendEnabled toggles whether the backend takes part in sync.
func (db *DB) SetBackendEnabled(ctx context.Context, id string, enabled bool) error {
	return db.Update(ctx, func(tx *Tx) error { return tx.SetBackendEnabled(id, enabled) })
}

// DeleteBackend removes the backend and everything it owns.
func (db *DB) DeleteBackend(ctx context.Context, id string) error {
	return db.Update(ctx, func(tx *Tx) error { return tx.DeleteBackend(id) })
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBackend(row rowScanner) (*model.Backend, error) {
	var b model.Backend
	var enabled int
	var createdAt string
	if err := row.Scan(&b.ID, &b.Type, &b.Name, &enabled, &b.Credentials, &b.Settings, &createdAt); err != nil {
		return nil, err
	}
	b.Enabled = enabled != 0
	if t, err := time.Parse(time.RFC3339, createdAt); err == nil {
		b.CreatedAt = t
	}
	return &b, nil
}

func requireAffected(res sql.Result, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return classify("read affected rows", err)
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
	}
	return nil
}
