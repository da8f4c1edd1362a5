package syncer

import (
	"context"
	"fmt"
	"strings"

	"github.com/terminalist/terminalist/internal/model"
	"github.com/terminalist/terminalist/internal/store"
)

// CreateTask stores a new task for push. An empty ProjectID files it in the
// backend's inbox. Label names in t.Labels are linked, creating labels that
// do not exist yet.
func (e *Engine) CreateTask(ctx context.Context, t *model.Task) (*model.Task, error) {
	var created *model.Task
	err := e.db.Update(ctx, func(tx *store.Tx) error {
		draft := *t
		if draft.ProjectID == "" {
			inbox, err := inboxProject(tx, draft.BackendID)
			if err != nil {
				return err
			}
			draft.ProjectID = inbox.ID
		}

		var err error
		if created, err = tx.InsertLocalTask(&draft); err != nil {
			return err
		}
		if len(t.Labels) == 0 {
			return nil
		}
		ids, err := ensureLabels(tx, draft.BackendID, t.Labels)
		if err != nil {
			return err
		}
		if err := tx.SetTaskLabels(created.ID, ids); err != nil {
			return err
		}
		created, err = tx.GetTask(created.ID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create task: %w", err)
	}
	e.logger.Printf("Created task: %s (%s)", created.ID, created.Content)
	return created, nil
}

// UpdateTask applies a local edit.
func (e *Engine) UpdateTask(ctx context.Context, id string, patch store.TaskPatch) (*model.Task, error) {
	t, err := e.db.UpdateTask(ctx, id, patch)
	if err != nil {
		return nil, fmt.Errorf("failed to update task: %w", err)
	}
	return t, nil
}

// CompleteTask marks a task completed.
func (e *Engine) CompleteTask(ctx context.Context, id string) (*model.Task, error) {
	done := true
	t, err := e.db.UpdateTask(ctx, id, store.TaskPatch{IsCompleted: &done})
	if err != nil {
		return nil, fmt.Errorf("failed to complete task: %w", err)
	}
	e.logger.Printf("Completed task: %s", id)
	return t, nil
}

// ReopenTask marks a completed task open again.
func (e *Engine) ReopenTask(ctx context.Context, id string) (*model.Task, error) {
	done := false
	t, err := e.db.UpdateTask(ctx, id, store.TaskPatch{IsCompleted: &done})
	if err != nil {
		return nil, fmt.Errorf("failed to reopen task: %w", err)
	}
	return t, nil
}

// DeleteTask removes a task locally and queues the remote delete.
func (e *Engine) DeleteTask(ctx context.Context, id string) error {
	if err := e.db.DeleteTask(ctx, id); err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
	}
	e.logger.Printf("Deleted task: %s", id)
	return nil
}

// RestoreTask undoes a delete that has not been pushed yet, or reopens a
// completed task.
func (e *Engine) RestoreTask(ctx context.Context, id string) (*model.Task, error) {
	var t *model.Task
	err := e.db.Update(ctx, func(tx *store.Tx) error {
		var err error
		t, err = tx.RestoreTask(id)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to restore task: %w", err)
	}
	return t, nil
}

// CyclePriority moves a task to the next priority, wrapping at the top.
func (e *Engine) CyclePriority(ctx context.Context, id string) (*model.Task, error) {
	var t *model.Task
	err := e.db.Update(ctx, func(tx *store.Tx) error {
		cur, err := tx.GetTask(id)
		if err != nil {
			return err
		}
		if cur == nil {
			return fmt.Errorf("task %s: %w", id, store.ErrNotFound)
		}
		next := model.NextPriority(cur.Priority)
		t, err = tx.UpdateTask(id, store.TaskPatch{Priority: &next})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to change priority: %w", err)
	}
	return t, nil
}

// CreateProject stores a new project for push.
func (e *Engine) CreateProject(ctx context.Context, p *model.Project) (*model.Project, error) {
	created, err := e.db.InsertLocalProject(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("failed to create project: %w", err)
	}
	e.logger.Printf("Created project: %s (%s)", created.ID, created.Name)
	return created, nil
}

// UpdateProject applies a local edit.
func (e *Engine) UpdateProject(ctx context.Context, id string, patch store.ProjectPatch) (*model.Project, error) {
	p, err := e.db.UpdateProject(ctx, id, patch)
	if err != nil {
		return nil, fmt.Errorf("failed to update project: %w", err)
	}
	return p, nil
}

// DeleteProject removes a project locally and queues the remote delete.
// The inbox cannot be deleted.
func (e *Engine) DeleteProject(ctx context.Context, id string) error {
	p, err := e.db.GetProject(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to delete project: %w", err)
	}
	if p == nil {
		return fmt.Errorf("failed to delete project: project %s: %w", id, store.ErrNotFound)
	}
	if p.IsInbox {
		return fmt.Errorf("failed to delete project: %w", ErrInboxProject)
	}
	if err := e.db.DeleteProject(ctx, id); err != nil {
		return fmt.Errorf("failed to delete project: %w", err)
	}
	e.logger.Printf("Deleted project: %s (%s)", id, p.Name)
	return nil
}

// CreateSection stores a new section for push.
func (e *Engine) CreateSection(ctx context.Context, s *model.Section) (*model.Section, error) {
	created, err := e.db.InsertLocalSection(ctx, s)
	if err != nil {
		return nil, fmt.Errorf("failed to create section: %w", err)
	}
	return created, nil
}

// DeleteSection removes a section locally and queues the remote delete.
func (e *Engine) DeleteSection(ctx context.Context, id string) error {
	if err := e.db.DeleteSection(ctx, id); err != nil {
		return fmt.Errorf("failed to delete section: %w", err)
	}
	return nil
}

// CreateLabel stores a new label for push.
func (e *Engine) CreateLabel(ctx context.Context, l *model.Label) (*model.Label, error) {
	created, err := e.db.InsertLocalLabel(ctx, l)
	if err != nil {
		return nil, fmt.Errorf("failed to create label: %w", err)
	}
	e.logger.Printf("Created label: %s (%s)", created.ID, created.Name)
	return created, nil
}

// UpdateLabel applies a local edit.
func (e *Engine) UpdateLabel(ctx context.Context, id string, patch store.LabelPatch) (*model.Label, error) {
	l, err := e.db.UpdateLabel(ctx, id, patch)
	if err != nil {
		return nil, fmt.Errorf("failed to update label: %w", err)
	}
	return l, nil
}

// DeleteLabel removes a label locally and queues the remote delete.
func (e *Engine) DeleteLabel(ctx context.Context, id string) error {
	if err := e.db.DeleteLabel(ctx, id); err != nil {
		return fmt.Errorf("failed to delete label: %w", err)
	}
	return nil
}

// ErrInboxProject is returned when deleting a backend's inbox.
var ErrInboxProject = fmt.Errorf("the inbox project cannot be deleted")

// ErrNoInbox is returned when a task without a project is created on a
// backend that has no inbox yet, typically before the first sync.
var ErrNoInbox = fmt.Errorf("backend has no inbox project; sync first or pick a project")

func inboxProject(tx *store.Tx, backendID string) (*model.Project, error) {
	projects, err := tx.ListProjects(backendID, store.ProjectFilter{})
	if err != nil {
		return nil, err
	}
	for _, p := range projects {
		if p.IsInbox {
			return p, nil
		}
	}
	return nil, ErrNoInbox
}

// ensureLabels resolves names to label ids, creating missing labels locally.
func ensureLabels(tx *store.Tx, backendID string, names []string) ([]string, error) {
	ids := make([]string, 0, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		l, err := tx.LabelByName(backendID, name)
		if err != nil {
			return nil, err
		}
		if l == nil {
			if l, err = tx.InsertLocalLabel(&model.Label{BackendID: backendID, Name: name}); err != nil {
				return nil, err
			}
		}
		ids = append(ids, l.ID)
	}
	return ids, nil
}
