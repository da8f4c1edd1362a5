package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/terminalist/terminalist/internal/model"
)

const taskColumns = `t.id, t.backend_id, t.remote_id, t.project_id, t.section_id, t.parent_id,
	t.content, t.description, t.priority, t.order_index,
	t.due_date, t.due_datetime, t.is_recurring, t.deadline, t.duration,
	t.is_completed, t.pending,
	(SELECT json_group_array(l.name) FROM task_labels tl JOIN labels l ON l.id = tl.label_id
	 WHERE tl.task_id = t.id) AS labels`

// dueExpr is the effective due date of a task as YYYY-MM-DD.
const dueExpr = `COALESCE(t.due_date, substr(t.due_datetime, 1, 10))`

// TaskFilter configures ListTasks. Zero values mean "no restriction".
type TaskFilter struct {
	ProjectID string
	SectionID string
	LabelID   string
	ParentID  string

	// DueOnOrAfter and DueOnOrBefore bound the due date (YYYY-MM-DD),
	// inclusive. Setting either excludes tasks without a due date.
	DueOnOrAfter  string
	DueOnOrBefore string

	IncludeCompleted bool
	IncludeDeleted   bool

	// Search matches content and description, case-insensitive.
	Search string

	Limit int
}

// TaskPatch lists the fields a local edit may change. Nil fields are left alone.
type TaskPatch struct {
	Content      *string
	Description  *string
	Priority     *int
	ProjectID    *string
	SectionID    *string
	ClearSection bool
	DueDate      *string
	DueDatetime  *string
	ClearDue     bool
	Deadline     *string
	Duration     *string
	IsCompleted  *bool
	OrderIndex   *int
	// LabelIDs replaces the task's labels when non-nil.
	LabelIDs *[]string
}

// TaskCounts summarizes a backend's tasks.
type TaskCounts struct {
	Total     int `json:"total"`
	Open      int `json:"open"`
	Completed int `json:"completed"`
	Overdue   int `json:"overdue"`
	Pending   int `json:"pending"`
}

// ListTasks retrieves a backend's tasks matching the filter.
// Results are ordered open first, then by priority (most urgent first),
// due date and order index.
func (tx *Tx) ListTasks(backendID string, filter TaskFilter) ([]*model.Task, error) {
	conditions := []string{"t.backend_id = ?"}
	args := []any{backendID}

	if !filter.IncludeDeleted {
		conditions = append(conditions,
			"t.pending != 'delete'",
			"t.project_id NOT IN (SELECT id FROM projects WHERE pending = 'delete')")
	}
	if !filter.IncludeCompleted {
		conditions = append(conditions, "t.is_completed = 0")
	}
	if filter.ProjectID != "" {
		conditions = append(conditions, "t.project_id = ?")
		args = append(args, filter.ProjectID)
	}
	if filter.SectionID != "" {
		conditions = append(conditions, "t.section_id = ?")
		args = append(args, filter.SectionID)
	}
	if filter.ParentID != "" {
		conditions = append(conditions, "t.parent_id = ?")
		args = append(args, filter.ParentID)
	}
	if filter.LabelID != "" {
		conditions = append(conditions, "EXISTS (SELECT 1 FROM task_labels x WHERE x.task_id = t.id AND x.label_id = ?)")
		args = append(args, filter.LabelID)
	}
	if filter.DueOnOrAfter != "" {
		conditions = append(conditions, dueExpr+" >= ?")
		args = append(args, filter.DueOnOrAfter)
	}
	if filter.DueOnOrBefore != "" {
		conditions = append(conditions, dueExpr+" <= ?")
		args = append(args, filter.DueOnOrBefore)
	}
	if filter.Search != "" {
		conditions = append(conditions, "(t.content LIKE ? ESCAPE '\\' OR t.description LIKE ? ESCAPE '\\')")
		pattern := "%" + escapeLike(filter.Search) + "%"
		args = append(args, pattern, pattern)
	}

	query := `SELECT ` + taskColumns + ` FROM tasks t WHERE ` + strings.Join(conditions, " AND ") +
		` ORDER BY t.is_completed ASC, t.priority DESC, ` + dueExpr + ` IS NULL, ` + dueExpr + ` ASC, t.order_index ASC`

	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := tx.query("list tasks", query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTasks(rows)
}

// GetTask returns the task or nil if it does not exist. Rows waiting for a
// remote delete are returned so they can be restored.
func (tx *Tx) GetTask(id string) (*model.Task, error) {
	row := tx.q.QueryRowContext(tx.ctx, `SELECT `+taskColumns+` FROM tasks t WHERE t.id = ?`, id)
	t, err := scanTask(row)
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, classify("get task", err)
	}
	return t, nil
}

// TaskByRemoteID returns the task matched to a remote record, or nil.
func (tx *Tx) TaskByRemoteID(backendID, remoteID string) (*model.Task, error) {
	row := tx.q.QueryRowContext(tx.ctx,
		`SELECT `+taskColumns+` FROM tasks t WHERE t.backend_id = ? AND t.remote_id = ?`,
		backendID, remoteID)
	t, err := scanTask(row)
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, classify("get task", err)
	}
	return t, nil
}

// UpsertTaskByRemoteID applies a remote record. ProjectID, SectionID and
// ParentID must already be local ids. The row matched on
// (backendID, t.RemoteID) keeps its local id; otherwise a new id is minted.
func (tx *Tx) UpsertTaskByRemoteID(backendID string, t *model.Task) (*model.Task, error) {
	if t.RemoteID == "" {
		return nil, fmt.Errorf("upsert task: remote id is required")
	}
	in := *t
	in.BackendID = backendID
	in.Pending = model.PendingNone
	in.SetDefaults()
	if err := in.Validate(); err != nil {
		return nil, fmt.Errorf("invalid task: %w", err)
	}

	var id string
	err := tx.q.QueryRowContext(tx.ctx, `
	INSERT INTO tasks (
		id, backend_id, remote_id, project_id, section_id, parent_id,
		content, description, priority, order_index,
		due_date, due_datetime, is_recurring, deadline, duration,
		is_completed, pending, updated_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, '', ?)
	ON CONFLICT(backend_id, remote_id) DO UPDATE SET
		project_id = excluded.project_id,
		section_id = excluded.section_id,
		parent_id = excluded.parent_id,
		content = excluded.content,
		description = excluded.description,
		priority = excluded.priority,
		order_index = excluded.order_index,
		due_date = excluded.due_date,
		due_datetime = excluded.due_datetime,
		is_recurring = excluded.is_recurring,
		deadline = excluded.deadline,
		duration = excluded.duration,
		is_completed = excluded.is_completed,
		pending = '',
		updated_at = excluded.updated_at
	RETURNING id`,
		uuid.NewString(), backendID, in.RemoteID, in.ProjectID,
		ptrToNullString(in.SectionID), ptrToNullString(in.ParentID),
		in.Content, in.Description, in.Priority, in.OrderIndex,
		ptrToNullString(in.DueDate), ptrToNullString(in.DueDatetime), boolToInt(in.IsRecurring),
		ptrToNullString(in.Deadline), ptrToNullString(in.Duration),
		boolToInt(in.IsCompleted), tx.stamp(),
	).Scan(&id)
	if err != nil {
		return nil, classify("upsert task", err)
	}
	return tx.GetTask(id)
}

// InsertLocalTask stores a task created on this device, queued for creation upstream.
func (tx *Tx) InsertLocalTask(t *model.Task) (*model.Task, error) {
	in := *t
	in.ID = uuid.NewString()
	in.RemoteID = ""
	in.Pending = model.PendingCreate
	in.SetDefaults()
	if err := in.Validate(); err != nil {
		return nil, fmt.Errorf("invalid task: %w", err)
	}

	_, err := tx.exec("insert task", `
	INSERT INTO tasks (
		id, backend_id, remote_id, project_id, section_id, parent_id,
		content, description, priority, order_index,
		due_date, due_datetime, is_recurring, deadline, duration,
		is_completed, pending, updated_at
	) VALUES (?, ?, NULL, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		in.ID, in.BackendID, in.ProjectID,
		ptrToNullString(in.SectionID), ptrToNullString(in.ParentID),
		in.Content, in.Description, in.Priority, in.OrderIndex,
		ptrToNullString(in.DueDate), ptrToNullString(in.DueDatetime), boolToInt(in.IsRecurring),
		ptrToNullString(in.Deadline), ptrToNullString(in.Duration),
		boolToInt(in.IsCompleted), string(in.Pending), tx.stamp(),
	)
	if err != nil {
		return nil, err
	}
	in.Labels = []string{}
	return &in, nil
}

// UpdateTask applies a local edit and queues it for push.
func (tx *Tx) UpdateTask(id string, patch TaskPatch) (*model.Task, error) {
	t, err := tx.GetTask(id)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, fmt.Errorf("task %s: %w", id, ErrNotFound)
	}

	if patch.Content != nil {
		t.Content = *patch.Content
	}
	if patch.Description != nil {
		t.Description = *patch.Description
	}
	if patch.Priority != nil {
		t.Priority = *patch.Priority
	}
	if patch.ProjectID != nil && *patch.ProjectID != t.ProjectID {
		t.ProjectID = *patch.ProjectID
		t.SectionID = nil
	}
	if patch.ClearSection {
		t.SectionID = nil
	} else if patch.SectionID != nil {
		t.SectionID = patch.SectionID
	}
	if patch.ClearDue {
		t.DueDate, t.DueDatetime, t.IsRecurring = nil, nil, false
	}
	if patch.DueDate != nil {
		t.DueDate, t.DueDatetime = patch.DueDate, nil
	}
	if patch.DueDatetime != nil {
		d := (*patch.DueDatetime)[:min(len(*patch.DueDatetime), len(model.DateLayout))]
		t.DueDatetime, t.DueDate = patch.DueDatetime, &d
	}
	if patch.Deadline != nil {
		t.Deadline = patch.Deadline
	}
	if patch.Duration != nil {
		t.Duration = patch.Duration
	}
	if patch.IsCompleted != nil {
		t.IsCompleted = *patch.IsCompleted
	}
	if patch.OrderIndex != nil {
		t.OrderIndex = *patch.OrderIndex
	}
	t.Pending = editedPending(t.Pending, t.RemoteID)

	if err := t.Validate(); err != nil {
		return nil, fmt.Errorf("invalid task: %w", err)
	}

	_, err = tx.exec("update task", `
	UPDATE tasks SET
		project_id = ?, section_id = ?, content = ?, description = ?, priority = ?,
		order_index = ?, due_date = ?, due_datetime = ?, is_recurring = ?, deadline = ?,
		duration = ?, is_completed = ?, pending = ?, updated_at = ?
	WHERE id = ?`,
		t.ProjectID, ptrToNullString(t.SectionID), t.Content, t.Description, t.Priority,
		t.OrderIndex, ptrToNullString(t.DueDate), ptrToNullString(t.DueDatetime), boolToInt(t.IsRecurring),
		ptrToNullString(t.Deadline), ptrToNullString(t.Duration), boolToInt(t.IsCompleted),
		string(t.Pending), tx.stamp(), id,
	)
	if err != nil {
		return nil, err
	}

	if patch.LabelIDs != nil {
		if err := tx.SetTaskLabels(id, *patch.LabelIDs); err != nil {
			return nil, err
		}
	}
	return tx.GetTask(id)
}

// RestoreTask undoes a local delete that has not been pushed yet and reopens
// a completed task.
func (tx *Tx) RestoreTask(id string) (*model.Task, error) {
	t, err := tx.GetTask(id)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, fmt.Errorf("task %s: %w", id, ErrNotFound)
	}
	if t.Pending != model.PendingDelete && !t.IsCompleted {
		return t, nil
	}

	pending := model.PendingUpdate
	if t.RemoteID == "" {
		pending = model.PendingCreate
	}
	_, err = tx.exec("restore task",
		`UPDATE tasks SET pending = ?, is_completed = 0, updated_at = ? WHERE id = ?`,
		string(pending), tx.stamp(), id)
	if err != nil {
		return nil, err
	}
	return tx.GetTask(id)
}

// SetTaskParent rewires the parent of a pulled task without touching its
// pending state.
func (tx *Tx) SetTaskParent(id string, parentID *string) error {
	_, err := tx.exec("set task parent", `UPDATE tasks SET parent_id = ? WHERE id = ?`, ptrToNullString(parentID), id)
	return err
}

// DeleteTask removes a task on behalf of the user. Subtasks and label links
// follow through the foreign keys once the row is gone.
func (tx *Tx) DeleteTask(id string) error {
	return tx.deleteLocal(tableTasks, id)
}

// PurgeTask removes the row immediately.
func (tx *Tx) PurgeTask(id string) error {
	return tx.purge(tableTasks, id)
}

// DeleteTasksMissing deletes pushed tasks whose remote id is not in keep.
func (tx *Tx) DeleteTasksMissing(backendID string, keep []string) (int, error) {
	return tx.deleteMissing(tableTasks, backendID, keep)
}

// PendingTasks returns tasks waiting to be pushed, parents before subtasks.
func (tx *Tx) PendingTasks(backendID string) ([]*model.Task, error) {
	rows, err := tx.query("list pending tasks",
		`SELECT `+taskColumns+` FROM tasks t WHERE t.backend_id = ? AND t.pending != ''
		 ORDER BY t.parent_id IS NOT NULL, t.order_index ASC`, backendID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTasks(rows)
}

// MarkTaskPushed stores the remote id assigned on create and clears pending.
func (tx *Tx) MarkTaskPushed(id, remoteID string) error {
	return tx.markPushed(tableTasks, id, remoteID)
}

// TaskRemoteIndex maps remote ids to local ids for a backend's tasks.
func (tx *Tx) TaskRemoteIndex(backendID string) (map[string]string, error) {
	return tx.remoteIndex(tableTasks, backendID)
}

// SetTaskLabels replaces the labels linked to a task.
func (tx *Tx) SetTaskLabels(taskID string, labelIDs []string) error {
	if _, err := tx.exec("clear task labels", `DELETE FROM task_labels WHERE task_id = ?`, taskID); err != nil {
		return err
	}
	for _, labelID := range labelIDs {
		if _, err := tx.exec("link task label",
			`INSERT OR IGNORE INTO task_labels (task_id, label_id) VALUES (?, ?)`, taskID, labelID); err != nil {
			return err
		}
	}
	return nil
}

// TaskLabels returns the labels linked to a task.
func (tx *Tx) TaskLabels(taskID string) ([]*model.Label, error) {
	rows, err := tx.query("list task labels", `
	SELECT l.id, l.backend_id, l.remote_id, l.name, l.color, l.order_index, l.is_favorite, l.pending
	FROM labels l JOIN task_labels tl ON tl.label_id = l.id
	WHERE tl.task_id = ?
	ORDER BY l.order_index ASC, l.name ASC`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanLabels(rows)
}

// TasksWithLabel returns the open tasks linked to a label.
func (tx *Tx) TasksWithLabel(labelID string) ([]*model.Task, error) {
	rows, err := tx.query("list labelled tasks", `
	SELECT `+taskColumns+`
	FROM tasks t JOIN task_labels tl ON tl.task_id = t.id
	WHERE tl.label_id = ? AND t.pending != 'delete' AND t.is_completed = 0
	ORDER BY t.priority DESC, t.order_index ASC`, labelID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTasks(rows)
}

// TaskLinks returns every task/label link of a backend.
func (tx *Tx) TaskLinks(backendID string) ([]model.TaskLabel, error) {
	rows, err := tx.query("list task links", `
	SELECT tl.task_id, tl.label_id FROM task_labels tl
	JOIN tasks t ON t.id = tl.task_id
	WHERE t.backend_id = ?
	ORDER BY tl.task_id, tl.label_id`, backendID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.TaskLabel
	for rows.Next() {
		var link model.TaskLabel
		if err := rows.Scan(&link.TaskID, &link.LabelID); err != nil {
			return nil, classify("scan task link", err)
		}
		out = append(out, link)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("iterate task links", err)
	}
	return out, nil
}

// CountTasks summarizes a backend's visible tasks. today is YYYY-MM-DD.
func (tx *Tx) CountTasks(backendID, today string) (TaskCounts, error) {
	var c TaskCounts
	err := tx.q.QueryRowContext(tx.ctx, `
	SELECT
		COUNT(*),
		COALESCE(SUM(t.is_completed = 0), 0),
		COALESCE(SUM(t.is_completed = 1), 0),
		COALESCE(SUM(t.is_completed = 0 AND `+dueExpr+` < ?), 0),
		COALESCE(SUM(t.pending != ''), 0)
	FROM tasks t
	WHERE t.backend_id = ? AND t.pending != 'delete'`, today, backendID,
	).Scan(&c.Total, &c.Open, &c.Completed, &c.Overdue, &c.Pending)
	if err != nil {
		return c, classify("count tasks", err)
	}
	return c, nil
}

// ListTasks retrieves a backend's tasks in their own transaction.
func (db *DB) ListTasks(ctx context.Context, backendID string, filter TaskFilter) ([]*model.Task, error) {
	return view(ctx, db, func(tx *Tx) ([]*model.Task, error) { return tx.ListTasks(backendID, filter) })
}

// GetTask returns the task or nil if it does not exist.
func (db *DB) GetTask(ctx context.Context, id string) (*model.Task, error) {
	return view(ctx, db, func(tx *Tx) (*model.Task, error) { return tx.GetTask(id) })
}

// UpsertTaskByRemoteID applies one remote record in its own transaction.
func (db *DB) UpsertTaskByRemoteID(ctx context.Context, backendID string, t *model.Task) (*model.Task, error) {
	return update(ctx, db, func(tx *Tx) (*model.Task, error) { return tx.UpsertTaskByRemoteID(backendID, t) })
}

// InsertLocalTask stores a locally created task.
func (db *DB) InsertLocalTask(ctx context.Context, t *model.Task) (*model.Task, error) {
	return update(ctx, db, func(tx *Tx) (*model.Task, error) { return tx.InsertLocalTask(t) })
}

// UpdateTask applies a local edit.
func (db *DB) UpdateTask(ctx context.Context, id string, patch TaskPatch) (*model.Task, error) {
	return update(ctx, db, func(tx *Tx) (*model.Task, error) { return tx.UpdateTask(id, patch) })
}

// DeleteTask removes a task on behalf of the user.
func (db *DB) DeleteTask(ctx context.Context, id string) error {
	return db.Update(ctx, func(tx *Tx) error { return tx.DeleteTask(id) })
}

// TaskLabels returns the labels linked to a task.
func (db *DB) TaskLabels(ctx context.Context, taskID string) ([]*model.Label, error) {
	return view(ctx, db, func(tx *Tx) ([]*model.Label, error) { return tx.TaskLabels(taskID) })
}

// TasksWithLabel returns the open tasks linked to a label.
func (db *DB) TasksWithLabel(ctx context.Context, labelID string) ([]*model.Task, error) {
	return view(ctx, db, func(tx *Tx) ([]*model.Task, error) { return tx.TasksWithLabel(labelID) })
}

// CountTasks summarizes a backend's visible tasks.
func (db *DB) CountTasks(ctx context.Context, backendID, today string) (TaskCounts, error) {
	return view(ctx, db, func(tx *Tx) (TaskCounts, error) { return tx.CountTasks(backendID, today) })
}

// scanTask scans one row produced by taskColumns.
func scanTask(row rowScanner) (*model.Task, error) {
	var t model.Task
	var remoteID, sectionID, parentID, dueDate, dueDatetime, deadline, duration sql.NullString
	var recurring, completed int
	var pending, labelsJSON string

	err := row.Scan(
		&t.ID, &t.BackendID, &remoteID, &t.ProjectID, &sectionID, &parentID,
		&t.Content, &t.Description, &t.Priority, &t.OrderIndex,
		&dueDate, &dueDatetime, &recurring, &deadline, &duration,
		&completed, &pending, &labelsJSON,
	)
	if err != nil {
		return nil, err
	}

	t.RemoteID = remoteID.String
	t.SectionID = nullStringToPtr(sectionID)
	t.ParentID = nullStringToPtr(parentID)
	t.DueDate = nullStringToPtr(dueDate)
	t.DueDatetime = nullStringToPtr(dueDatetime)
	t.Deadline = nullStringToPtr(deadline)
	t.Duration = nullStringToPtr(duration)
	t.IsRecurring = recurring != 0
	t.IsCompleted = completed != 0
	t.Pending = model.PendingOp(pending)

	t.Labels = []string{}
	if labelsJSON != "" && labelsJSON != "null" {
		if err := json.Unmarshal([]byte(labelsJSON), &t.Labels); err != nil {
			return nil, fmt.Errorf("failed to unmarshal labels: %w", err)
		}
		sort.Strings(t.Labels)
	}
	return &t, nil
}

func scanTasks(rows *sql.Rows) ([]*model.Task, error) {
	var out []*model.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, classify("scan task", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("iterate tasks", err)
	}
	return out, nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
