package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/terminalist/terminalist/internal/model"
)

const projectColumns = `id, backend_id, remote_id, name, color, is_favorite, is_inbox, order_index, parent_id, pending`

// ProjectFilter narrows ListProjects.
type ProjectFilter struct {
	// IncludeDeleted also returns rows waiting for a remote delete.
	IncludeDeleted bool
	// FavoritesOnly returns only favorite projects.
	FavoritesOnly bool
}

// ProjectPatch lists the fields a local edit may change. Nil fields are left alone.
type ProjectPatch struct {
	Name        *string
	Color       *string
	IsFavorite  *bool
	OrderIndex  *int
	ParentID    *string
	ClearParent bool
}

// ListProjects returns the projects of a backend, inbox first, then by order index.
func (tx *Tx) ListProjects(backendID string, filter ProjectFilter) ([]*model.Project, error) {
	query := `SELECT ` + projectColumns + ` FROM projects WHERE backend_id = ?`
	args := []any{backendID}
	if !filter.IncludeDeleted {
		query += ` AND pending != 'delete'`
	}
	if filter.FavoritesOnly {
		query += ` AND is_favorite = 1`
	}
	query += ` ORDER BY is_inbox DESC, order_index ASC, name ASC`

	rows, err := tx.query("list projects", query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanProjects(rows)
}

// GetProject returns the project or nil if it does not exist.
func (tx *Tx) GetProject(id string) (*model.Project, error) {
	row := tx.q.QueryRowContext(tx.ctx, `SELECT `+projectColumns+` FROM projects WHERE id = ?`, id)
	p, err := scanProject(row)
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, classify("get project", err)
	}
	return p, nil
}

// ProjectByRemoteID returns the project matched to a remote record, or nil.
func (tx *Tx) ProjectByRemoteID(backendID, remoteID string) (*model.Project, error) {
	row := tx.q.QueryRowContext(tx.ctx,
		`SELECT `+projectColumns+` FROM projects WHERE backend_id = ? AND remote_id = ?`,
		backendID, remoteID)
	p, err := scanProject(row)
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, classify("get project", err)
	}
	return p, nil
}

// ProjectChildren returns the direct subprojects of a project.
func (tx *Tx) ProjectChildren(projectID string) ([]*model.Project, error) {
	rows, err := tx.query("list subprojects",
		`SELECT `+projectColumns+` FROM projects WHERE parent_id = ? AND pending != 'delete'
		 ORDER BY order_index ASC, name ASC`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanProjects(rows)
}

// UpsertProjectByRemoteID applies a remote record. The row matched on
// (backendID, p.RemoteID) keeps its local id; otherwise a new id is minted.
// The stored row is marked in sync.
func (tx *Tx) UpsertProjectByRemoteID(backendID string, p *model.Project) (*model.Project, error) {
	if p.RemoteID == "" {
		return nil, fmt.Errorf("upsert project: remote id is required")
	}
	in := *p
	in.BackendID = backendID
	in.Pending = model.PendingNone
	if err := in.Validate(); err != nil {
		return nil, fmt.Errorf("invalid project: %w", err)
	}
	if err := tx.checkProjectParent(backendID, in.ParentID); err != nil {
		return nil, err
	}

	var id string
	err := tx.q.QueryRowContext(tx.ctx, `
	INSERT INTO projects (
		id, backend_id, remote_id, name, color, is_favorite, is_inbox,
		order_index, parent_id, pending, updated_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, '', ?)
	ON CONFLICT(backend_id, remote_id) DO UPDATE SET
		name = excluded.name,
		color = excluded.color,
		is_favorite = excluded.is_favorite,
		is_inbox = excluded.is_inbox,
		order_index = excluded.order_index,
		parent_id = excluded.parent_id,
		pending = '',
		updated_at = excluded.updated_at
	RETURNING id`,
		uuid.NewString(), backendID, in.RemoteID, in.Name, in.Color,
		boolToInt(in.IsFavorite), boolToInt(in.IsInbox), in.OrderIndex,
		ptrToNullString(in.ParentID), tx.stamp(),
	).Scan(&id)
	if err != nil {
		return nil, classify("upsert project", err)
	}

	return tx.GetProject(id)
}

// InsertLocalProject stores a project created on this device. It gets a
// fresh local id, no remote id, and is queued for creation upstream.
func (tx *Tx) InsertLocalProject(p *model.Project) (*model.Project, error) {
	in := *p
	in.ID = uuid.NewString()
	in.RemoteID = ""
	in.Pending = model.PendingCreate
	if err := in.Validate(); err != nil {
		return nil, fmt.Errorf("invalid project: %w", err)
	}
	if err := tx.checkProjectParent(in.BackendID, in.ParentID); err != nil {
		return nil, err
	}

	_, err := tx.exec("insert project", `
	INSERT INTO projects (
		id, backend_id, remote_id, name, color, is_favorite, is_inbox,
		order_index, parent_id, pending, updated_at
	) VALUES (?, ?, NULL, ?, ?, ?, ?, ?, ?, ?, ?)`,
		in.ID, in.BackendID, in.Name, in.Color, boolToInt(in.IsFavorite),
		boolToInt(in.IsInbox), in.OrderIndex, ptrToNullString(in.ParentID),
		string(in.Pending), tx.stamp(),
	)
	if err != nil {
		return nil, err
	}
	return &in, nil
}

// UpdateProject applies a local edit and queues it for push.
func (tx *Tx) UpdateProject(id string, patch ProjectPatch) (*model.Project, error) {
	p, err := tx.GetProject(id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, fmt.Errorf("project %s: %w", id, ErrNotFound)
	}

	if patch.Name != nil {
		p.Name = *patch.Name
	}
	if patch.Color != nil {
		p.Color = *patch.Color
	}
	if patch.IsFavorite != nil {
		p.IsFavorite = *patch.IsFavorite
	}
	if patch.OrderIndex != nil {
		p.OrderIndex = *patch.OrderIndex
	}
	if patch.ClearParent {
		p.ParentID = nil
	} else if patch.ParentID != nil {
		p.ParentID = patch.ParentID
	}
	p.Pending = editedPending(p.Pending, p.RemoteID)

	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("invalid project: %w", err)
	}
	if err := tx.checkProjectParent(p.BackendID, p.ParentID); err != nil {
		return nil, err
	}

	_, err = tx.exec("update project", `
	UPDATE projects SET name = ?, color = ?, is_favorite = ?, order_index = ?,
		parent_id = ?, pending = ?, updated_at = ?
	WHERE id = ?`,
		p.Name, p.Color, boolToInt(p.IsFavorite), p.OrderIndex,
		ptrToNullString(p.ParentID), string(p.Pending), tx.stamp(), id,
	)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// SetProjectParent rewires the parent of a pulled project without touching
// its pending state. Used by the second pass of a project pull.
func (tx *Tx) SetProjectParent(id string, parentID *string) error {
	p, err := tx.GetProject(id)
	if err != nil {
		return err
	}
	if p == nil {
		return fmt.Errorf("project %s: %w", id, ErrNotFound)
	}
	if err := tx.checkProjectParent(p.BackendID, parentID); err != nil {
		return err
	}
	_, err = tx.exec("set project parent", `UPDATE projects SET parent_id = ? WHERE id = ?`, ptrToNullString(parentID), id)
	return err
}

// DeleteProject removes a project on behalf of the user. Sections, tasks and
// subprojects follow through the foreign keys once the row is gone.
func (tx *Tx) DeleteProject(id string) error {
	return tx.deleteLocal(tableProjects, id)
}

// PurgeProject removes the row immediately.
func (tx *Tx) PurgeProject(id string) error {
	return tx.purge(tableProjects, id)
}

// DeleteProjectsMissing deletes pushed projects whose remote id is not in keep.
func (tx *Tx) DeleteProjectsMissing(backendID string, keep []string) (int, error) {
	return tx.deleteMissing(tableProjects, backendID, keep)
}

// PendingProjects returns projects waiting to be pushed, parents before children.
func (tx *Tx) PendingProjects(backendID string) ([]*model.Project, error) {
	rows, err := tx.query("list pending projects",
		`SELECT `+projectColumns+` FROM projects WHERE backend_id = ? AND pending != ''
		 ORDER BY parent_id IS NOT NULL, order_index ASC`, backendID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanProjects(rows)
}

// MarkProjectPushed stores the remote id assigned on create and clears pending.
func (tx *Tx) MarkProjectPushed(id, remoteID string) error {
	return tx.markPushed(tableProjects, id, remoteID)
}

// ProjectRemoteIndex maps remote ids to local ids for a backend's projects.
func (tx *Tx) ProjectRemoteIndex(backendID string) (map[string]string, error) {
	return tx.remoteIndex(tableProjects, backendID)
}

func (tx *Tx) checkProjectParent(backendID string, parentID *string) error {
	if parentID == nil {
		return nil
	}
	var parentBackend string
	err := tx.q.QueryRowContext(tx.ctx, `SELECT backend_id FROM projects WHERE id = ?`, *parentID).Scan(&parentBackend)
	if isNoRows(err) {
		return fmt.Errorf("parent project %s: %w", *parentID, ErrNotFound)
	}
	if err != nil {
		return classify("check project parent", err)
	}
	if parentBackend != backendID {
		return fmt.Errorf("project parent %s: %w", *parentID, ErrCrossBackendParent)
	}
	return nil
}

// ListProjects returns the projects of a backend in their own transaction.
func (db *DB) ListProjects(ctx context.Context, backendID string, filter ProjectFilter) ([]*model.Project, error) {
	return view(ctx, db, func(tx *Tx) ([]*model.Project, error) { return tx.ListProjects(backendID, filter) })
}

// GetProject returns the project or nil if it does not exist.
func (db *DB) GetProject(ctx context.Context, id string) (*model.Project, error) {
	return view(ctx, db, func(tx *Tx) (*model.Project, error) { return tx.GetProject(id) })
}

// UpsertProjectByRemoteID applies one remote record in its own transaction.
func (db *DB) UpsertProjectByRemoteID(ctx context.Context, backendID string, p *model.Project) (*model.Project, error) {
	return update(ctx, db, func(tx *Tx) (*model.Project, error) { return tx.UpsertProjectByRemoteID(backendID, p) })
}

// InsertLocalProject stores a locally created project.
func (db *DB) InsertLocalProject(ctx context.Context, p *model.Project) (*model.Project, error) {
	return update(ctx, db, func(tx *Tx) (*model.Project, error) { return tx.InsertLocalProject(p) })
}

// UpdateProject applies a local edit.
func (db *DB) UpdateProject(ctx context.Context, id string, patch ProjectPatch) (*model.Project, error) {
	return update(ctx, db, func(tx *Tx) (*model.Project, error) { return tx.UpdateProject(id, patch) })
}

// DeleteProject removes a project on behalf of the user.
func (db *DB) DeleteProject(ctx context.Context, id string) error {
	return db.Update(ctx, func(tx *Tx) error { return tx.DeleteProject(id) })
}

// ProjectChildren returns the direct subprojects of a project.
func (db *DB) ProjectChildren(ctx context.Context, id string) ([]*model.Project, error) {
	return view(ctx, db, func(tx *Tx) ([]*model.Project, error) { return tx.ProjectChildren(id) })
}

func scanProject(row rowScanner) (*model.Project, error) {
	var p model.Project
	var remoteID, parentID sql.NullString
	var favorite, inbox int
	var pending string
	err := row.Scan(&p.ID, &p.BackendID, &remoteID, &p.Name, &p.Color,
		&favorite, &inbox, &p.OrderIndex, &parentID, &pending)
	if err != nil {
		return nil, err
	}
	p.RemoteID = remoteID.String
	p.ParentID = nullStringToPtr(parentID)
	p.IsFavorite = favorite != 0
	p.IsInbox = inbox != 0
	p.Pending = model.PendingOp(pending)
	return &p, nil
}

func scanProjects(rows *sql.Rows) ([]*model.Project, error) {
	var out []*model.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, classify("scan project", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("iterate projects", err)
	}
	return out, nil
}
