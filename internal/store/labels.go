package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/terminalist/terminalist/internal/model"
)

const labelColumns = `id, backend_id, remote_id, name, color, order_index, is_favorite, pending`

// LabelPatch lists the fields a local edit may change.
type LabelPatch struct {
	Name       *string
	Color      *string
	OrderIndex *int
	IsFavorite *bool
}

// ListLabels returns a backend's labels by order index.
func (tx *Tx) ListLabels(backendID string) ([]*model.Label, error) {
	rows, err := tx.query("list labels",
		`SELECT `+labelColumns+` FROM labels WHERE backend_id = ? AND pending != 'delete'
		 ORDER BY order_index ASC, name ASC`, backendID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanLabels(rows)
}

// GetLabel returns the label or nil if it does not exist.
func (tx *Tx) GetLabel(id string) (*model.Label, error) {
	row := tx.q.QueryRowContext(tx.ctx, `SELECT `+labelColumns+` FROM labels WHERE id = ?`, id)
	l, err := scanLabel(row)
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, classify("get label", err)
	}
	return l, nil
}

// LabelByName returns the backend's label with the given name, or nil.
func (tx *Tx) LabelByName(backendID, name string) (*model.Label, error) {
	row := tx.q.QueryRowContext(tx.ctx,
		`SELECT `+labelColumns+` FROM labels WHERE backend_id = ? AND name = ? AND pending != 'delete'
		 ORDER BY remote_id IS NULL LIMIT 1`, backendID, name)
	l, err := scanLabel(row)
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, classify("get label", err)
	}
	return l, nil
}

// UpsertLabelByRemoteID applies a remote record, keeping the local id of a
// row already matched on (backendID, l.RemoteID).
func (tx *Tx) UpsertLabelByRemoteID(backendID string, l *model.Label) (*model.Label, error) {
	if l.RemoteID == "" {
		return nil, fmt.Errorf("upsert label: remote id is required")
	}
	in := *l
	in.BackendID = backendID
	in.Pending = model.PendingNone
	if err := in.Validate(); err != nil {
		return nil, fmt.Errorf("invalid label: %w", err)
	}

	var id string
	err := tx.q.QueryRowContext(tx.ctx, `
	INSERT INTO labels (id, backend_id, remote_id, name, color, order_index, is_favorite, pending, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, '', ?)
	ON CONFLICT(backend_id, remote_id) DO UPDATE SET
		name = excluded.name,
		color = excluded.color,
		order_index = excluded.order_index,
		is_favorite = excluded.is_favorite,
		pending = '',
		updated_at = excluded.updated_at
	RETURNING id`,
		uuid.NewString(), backendID, in.RemoteID, in.Name, in.Color, in.OrderIndex,
		boolToInt(in.IsFavorite), tx.stamp(),
	).Scan(&id)
	if err != nil {
		return nil, classify("upsert label", err)
	}
	return tx.GetLabel(id)
}

// InsertLocalLabel stores a label created on this device.
func (tx *Tx) InsertLocalLabel(l *model.Label) (*model.Label, error) {
	in := *l
	in.ID = uuid.NewString()
	in.RemoteID = ""
	in.Pending = model.PendingCreate
	if err := in.Validate(); err != nil {
		return nil, fmt.Errorf("invalid label: %w", err)
	}

	_, err := tx.exec("insert label", `
	INSERT INTO labels (id, backend_id, remote_id, name, color, order_index, is_favorite, pending, updated_at)
	VALUES (?, ?, NULL, ?, ?, ?, ?, ?, ?)`,
		in.ID, in.BackendID, in.Name, in.Color, in.OrderIndex, boolToInt(in.IsFavorite),
		string(in.Pending), tx.stamp(),
	)
	if err != nil {
		return nil, err
	}
	return &in, nil
}

// UpdateLabel applies a local edit and queues it for push.
func (tx *Tx) UpdateLabel(id string, patch LabelPatch) (*model.Label, error) {
	l, err := tx.GetLabel(id)
	if err != nil {
		return nil, err
	}
	if l == nil {
		return nil, fmt.Errorf("label %s: %w", id, ErrNotFound)
	}
	if patch.Name != nil {
		l.Name = *patch.Name
	}
	if patch.Color != nil {
		l.Color = *patch.Color
	}
	if patch.OrderIndex != nil {
		l.OrderIndex = *patch.OrderIndex
	}
	if patch.IsFavorite != nil {
		l.IsFavorite = *patch.IsFavorite
	}
	l.Pending = editedPending(l.Pending, l.RemoteID)
	if err := l.Validate(); err != nil {
		return nil, fmt.Errorf("invalid label: %w", err)
	}

	_, err = tx.exec("update label", `
	UPDATE labels SET name = ?, color = ?, order_index = ?, is_favorite = ?, pending = ?, updated_at = ?
	WHERE id = ?`,
		l.Name, l.Color, l.OrderIndex, boolToInt(l.IsFavorite), string(l.Pending), tx.stamp(), id,
	)
	if err != nil {
		return nil, err
	}
	return l, nil
}

// DeleteLabel removes a label on behalf of the user. Its task links are
// dropped with the row.
func (tx *Tx) DeleteLabel(id string) error {
	if _, err := tx.exec("unlink label", `DELETE FROM task_labels WHERE label_id = ?`, id); err != nil {
		return err
	}
	return tx.deleteLocal(tableLabels, id)
}

// PurgeLabel removes the row immediately.
func (tx *Tx) PurgeLabel(id string) error {
	return tx.purge(tableLabels, id)
}

// DeleteLabelsMissing deletes pushed labels whose remote id is not in keep.
func (tx *Tx) DeleteLabelsMissing(backendID string, keep []string) (int, error) {
	return tx.deleteMissing(tableLabels, backendID, keep)
}

// PendingLabels returns labels waiting to be pushed.
func (tx *Tx) PendingLabels(backendID string) ([]*model.Label, error) {
	rows, err := tx.query("list pending labels",
		`SELECT `+labelColumns+` FROM labels WHERE backend_id = ? AND pending != '' ORDER BY order_index`, backendID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanLabels(rows)
}

// MarkLabelPushed stores the remote id assigned on create and clears pending.
func (tx *Tx) MarkLabelPushed(id, remoteID string) error {
	return tx.markPushed(tableLabels, id, remoteID)
}

// ListLabels returns a backend's labels in their own transaction.
func (db *DB) ListLabels(ctx context.Context, backendID string) ([]*model.Label, error) {
	return view(ctx, db, func(tx *Tx) ([]*model.Label, error) { return tx.ListLabels(backendID) })
}

// GetLabel returns the label or nil if it does not exist.
func (db *DB) GetLabel(ctx context.Context, id string) (*model.Label, error) {
	return view(ctx, db, func(tx *Tx) (*model.Label, error) { return tx.GetLabel(id) })
}

// UpsertLabelByRemoteID applies one remote record in its own transaction.
func (db *DB) UpsertLabelByRemoteID(ctx context.Context, backendID string, l *model.Label) (*model.Label, error) {
	return update(ctx, db, func(tx *Tx) (*model.Label, error) { return tx.UpsertLabelByRemoteID(backendID, l) })
}

// InsertLocalLabel stores a locally created label.
func (db *DB) InsertLocalLabel(ctx context.Context, l *model.Label) (*model.Label, error) {
	return update(ctx, db, func(tx *Tx) (*model.Label, error) { return tx.InsertLocalLabel(l) })
}

// UpdateLabel applies a local edit.
func (db *DB) UpdateLabel(ctx context.Context, id string, patch LabelPatch) (*model.Label, error) {
	return update(ctx, db, func(tx *Tx) (*model.Label, error) { return tx.UpdateLabel(id, patch) })
}

// DeleteLabel removes a label on behalf of the user.
func (db *DB) DeleteLabel(ctx context.Context, id string) error {
	return db.Update(ctx, func(tx *Tx) error { return tx.DeleteLabel(id) })
}

func scanLabel(row rowScanner) (*model.Label, error) {
	var l model.Label
	var remoteID sql.NullString
	var favorite int
	var pending string
	if err := row.Scan(&l.ID, &l.BackendID, &remoteID, &l.Name, &l.Color, &l.OrderIndex, &favorite, &pending); err != nil {
		return nil, err
	}
	l.RemoteID = remoteID.String
	l.IsFavorite = favorite != 0
	l.Pending = model.PendingOp(pending)
	return &l, nil
}

func scanLabels(rows *sql.Rows) ([]*model.Label, error) {
	var out []*model.Label
	for rows.Next() {
		l, err := scanLabel(rows)
		if err != nil {
			return nil, classify("scan label", err)
		}
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("iterate labels", err)
	}
	return out, nil
}
