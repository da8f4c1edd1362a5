package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/terminalist/terminalist/internal/model"
)

const sectionColumns = `id, backend_id, remote_id, name, project_id, order_index, pending`

// SectionPatch lists the fields a local edit may change.
type SectionPatch struct {
	Name       *string
	ProjectID  *string
	OrderIndex *int
}

// ListSections returns a backend's sections. An empty projectID lists all of them.
func (tx *Tx) ListSections(backendID, projectID string) ([]*model.Section, error) {
	query := `SELECT ` + sectionColumns + ` FROM sections WHERE backend_id = ? AND pending != 'delete'`
	args := []any{backendID}
	if projectID != "" {
		query += ` AND project_id = ?`
		args = append(args, projectID)
	}
	query += ` ORDER BY project_id, order_index ASC, name ASC`

	rows, err := tx.query("list sections", query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSections(rows)
}

// GetSection returns the section or nil if it does not exist.
func (tx *Tx) GetSection(id string) (*model.Section, error) {
	row := tx.q.QueryRowContext(tx.ctx, `SELECT `+sectionColumns+` FROM sections WHERE id = ?`, id)
	s, err := scanSection(row)
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, classify("get section", err)
	}
	return s, nil
}

// SectionByRemoteID returns the section matched to a remote record, or nil.
func (tx *Tx) SectionByRemoteID(backendID, remoteID string) (*model.Section, error) {
	row := tx.q.QueryRowContext(tx.ctx,
		`SELECT `+sectionColumns+` FROM sections WHERE backend_id = ? AND remote_id = ?`,
		backendID, remoteID)
	s, err := scanSection(row)
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, classify("get section", err)
	}
	return s, nil
}

// UpsertSectionByRemoteID applies a remote record, keeping the local id of a
// row already matched on (backendID, s.RemoteID).
func (tx *Tx) UpsertSectionByRemoteID(backendID string, s *model.Section) (*model.Section, error) {
	if s.RemoteID == "" {
		return nil, fmt.Errorf("upsert section: remote id is required")
	}
	in := *s
	in.BackendID = backendID
	in.Pending = model.PendingNone
	if err := in.Validate(); err != nil {
		return nil, fmt.Errorf("invalid section: %w", err)
	}

	var id string
	err := tx.q.QueryRowContext(tx.ctx, `
	INSERT INTO sections (id, backend_id, remote_id, name, project_id, order_index, pending, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, '', ?)
	ON CONFLICT(backend_id, remote_id) DO UPDATE SET
		name = excluded.name,
		project_id = excluded.project_id,
		order_index = excluded.order_index,
		pending = '',
		updated_at = excluded.updated_at
	RETURNING id`,
		uuid.NewString(), backendID, in.RemoteID, in.Name, in.ProjectID, in.OrderIndex, tx.stamp(),
	).Scan(&id)
	if err != nil {
		return nil, classify("upsert section", err)
	}
	return tx.GetSection(id)
}

// InsertLocalSection stores a section created on this device.
func (tx *Tx) InsertLocalSection(s *model.Section) (*model.Section, error) {
	in := *s
	in.ID = uuid.NewString()
	in.RemoteID = ""
	in.Pending = model.PendingCreate
	if err := in.Validate(); err != nil {
		return nil, fmt.Errorf("invalid section: %w", err)
	}

	_, err := tx.exec("insert section", `
	INSERT INTO sections (id, backend_id, remote_id, name, project_id, order_index, pending, updated_at)
	VALUES (?, ?, NULL, ?, ?, ?, ?, ?)`,
		in.ID, in.BackendID, in.Name, in.ProjectID, in.OrderIndex, string(in.Pending), tx.stamp(),
	)
	if err != nil {
		return nil, err
	}
	return &in, nil
}

// UpdateSection applies a local edit and queues it for push.
func (tx *Tx) UpdateSection(id string, patch SectionPatch) (*model.Section, error) {
	s, err := tx.GetSection(id)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, fmt.Errorf("section %s: %w", id, ErrNotFound)
	}
	if patch.Name != nil {
		s.Name = *patch.Name
	}
	if patch.ProjectID != nil {
		s.ProjectID = *patch.ProjectID
	}
	if patch.OrderIndex != nil {
		s.OrderIndex = *patch.OrderIndex
	}
	s.Pending = editedPending(s.Pending, s.RemoteID)
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("invalid section: %w", err)
	}

	_, err = tx.exec("update section", `
	UPDATE sections SET name = ?, project_id = ?, order_index = ?, pending = ?, updated_at = ?
	WHERE id = ?`,
		s.Name, s.ProjectID, s.OrderIndex, string(s.Pending), tx.stamp(), id,
	)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// DeleteSection removes a section on behalf of the user. Its tasks stay in
// the project with no section.
func (tx *Tx) DeleteSection(id string) error {
	return tx.deleteLocal(tableSections, id)
}

// PurgeSection removes the row immediately.
func (tx *Tx) PurgeSection(id string) error {
	return tx.purge(tableSections, id)
}

// DeleteSectionsMissing deletes pushed sections whose remote id is not in keep.
func (tx *Tx) DeleteSectionsMissing(backendID string, keep []string) (int, error) {
	return tx.deleteMissing(tableSections, backendID, keep)
}

// PendingSections returns sections waiting to be pushed.
func (tx *Tx) PendingSections(backendID string) ([]*model.Section, error) {
	rows, err := tx.query("list pending sections",
		`SELECT `+sectionColumns+` FROM sections WHERE backend_id = ? AND pending != '' ORDER BY order_index`, backendID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSections(rows)
}

// MarkSectionPushed stores the remote id assigned on create and clears pending.
func (tx *Tx) MarkSectionPushed(id, remoteID string) error {
	return tx.markPushed(tableSections, id, remoteID)
}

// SectionRemoteIndex maps remote ids to local ids for a backend's sections.
func (tx *Tx) SectionRemoteIndex(backendID string) (map[string]string, error) {
	return tx.remoteIndex(tableSections, backendID)
}

// ListSections returns a backend's sections in their own transaction.
func (db *DB) ListSections(ctx context.Context, backendID, projectID string) ([]*model.Section, error) {
	return view(ctx, db, func(tx *Tx) ([]*model.Section, error) { return tx.ListSections(backendID, projectID) })
}

// GetSection returns the section or nil if it does not exist.
func (db *DB) GetSection(ctx context.Context, id string) (*model.Section, error) {
	return view(ctx, db, func(tx *Tx) (*model.Section, error) { return tx.GetSection(id) })
}

// UpsertSectionByRemoteID applies one remote record in its own transaction.
func (db *DB) UpsertSectionByRemoteID(ctx context.Context, backendID string, s *model.Section) (*model.Section, error) {
	return update(ctx, db, func(tx *Tx) (*model.Section, error) { return tx.UpsertSectionByRemoteID(backendID, s) })
}

// InsertLocalSection stores a locally created section.
func (db *DB) InsertLocalSection(ctx context.Context, s *model.Section) (*model.Section, error) {
	return update(ctx, db, func(tx *Tx) (*model.Section, error) { return tx.InsertLocalSection(s) })
}

// UpdateSection applies a local edit.
func (db *DB) UpdateSection(ctx context.Context, id string, patch SectionPatch) (*model.Section, error) {
	return update(ctx, db, func(tx *Tx) (*model.Section, error) { return tx.UpdateSection(id, patch) })
}

// DeleteSection removes a section on behalf of the user.
func (db *DB) DeleteSection(ctx context.Context, id string) error {
	return db.Update(ctx, func(tx *Tx) error { return tx.DeleteSection(id) })
}

func scanSection(row rowScanner) (*model.Section, error) {
	var s model.Section
	var remoteID sql.NullString
	var pending string
	if err := row.Scan(&s.ID, &s.BackendID, &remoteID, &s.Name, &s.ProjectID, &s.OrderIndex, &pending); err != nil {
		return nil, err
	}
	s.RemoteID = remoteID.String
	s.Pending = model.PendingOp(pending)
	return &s, nil
}

func scanSections(rows *sql.Rows) ([]*model.Section, error) {
	var out []*model.Section
	for rows.Next() {
		s, err := scanSection(rows)
		if err != nil {
			return nil, classify("scan section", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("iterate sections", err)
	}
	return out, nil
}
