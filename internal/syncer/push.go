package syncer

import (
	"context"
	"errors"
	"reflect"

	"github.com/terminalist/terminalist/internal/model"
	"github.com/terminalist/terminalist/internal/remote"
	"github.com/terminalist/terminalist/internal/store"
)

// pendingRow is the part of a pending row the push loop needs.
type pendingRow struct {
	id       string
	remoteID string
	op       model.PendingOp
}

// pushOps binds the push loop to one entity kind. R is the remote record type.
type pushOps[R any] struct {
	kind model.Kind

	// build reads the row and converts it to the record sent upstream.
	// It returns store.ErrNotFound when the row no longer exists.
	build func(tx *store.Tx, id string) (R, model.PendingOp, error)

	create func(ctx context.Context, rec R) (*R, error)
	update func(ctx context.Context, remoteID string, rec R) (*R, error)
	delete func(ctx context.Context, remoteID string) error

	// remoteID reads the id off a record returned by the remote service.
	remoteID func(rec R) string
	// withRemoteID returns rec carrying id, for comparing what was sent
	// with the row as it is at commit time.
	withRemoteID func(rec R, id string) R

	markPushed func(tx *store.Tx, id, remoteID string) error
	// apply stores the record returned by the remote service.
	apply func(tx *store.Tx, rec *R) error
	// requeue marks the row pending update again.
	requeue func(tx *store.Tx, id string) error
	purge   func(tx *store.Tx, id string) error
}

// push sends every pending row upstream. A failure is recorded against the
// row and the loop continues; only an unavailable store or a cancelled
// context stops it.
func push[R any](ctx context.Context, p *pass, step *StepReport, ops pushOps[R], rows []pendingRow) error {
	for _, row := range rows {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := pushOne(ctx, p, step, ops, row)
		if err == nil {
			continue
		}
		if store.IsUnavailable(err) {
			return err
		}
		p.engine.logger.Printf("WARNING: Failed to push %s of %s %s: %v", row.op, ops.kind, row.id, err)
		p.report.pushFailed(ops.kind, row.id, row.op, err)
	}
	return nil
}

func pushOne[R any](ctx context.Context, p *pass, step *StepReport, ops pushOps[R], row pendingRow) error {
	db := p.engine.db

	if row.op == model.PendingDelete {
		// The remote delete is the point of no return. A remote id that is
		// already gone counts as deleted.
		if err := ops.delete(ctx, row.remoteID); err != nil && !remote.IsNotFound(err) {
			return err
		}
		if err := db.Update(ctx, func(tx *store.Tx) error { return ops.purge(tx, row.id) }); err != nil {
			return err
		}
		step.Removed++
		return nil
	}

	var sent R
	err := db.View(ctx, func(tx *store.Tx) error {
		var err error
		sent, _, err = ops.build(tx, row.id)
		return err
	})
	if err != nil {
		return err
	}

	var got *R
	if row.op == model.PendingCreate {
		got, err = ops.create(ctx, sent)
	} else {
		got, err = ops.update(ctx, row.remoteID, sent)
	}
	if err != nil {
		return err
	}
	gotID := ops.remoteID(*got)

	var orphaned bool
	var duplicate error
	err = db.Update(ctx, func(tx *store.Tx) error {
		if row.op == model.PendingCreate {
			if err := ops.markPushed(tx, row.id, gotID); err != nil {
				switch {
				case errors.Is(err, store.ErrNotFound):
					orphaned = true
					return nil
				case errors.Is(err, store.ErrAlreadyPushed):
					duplicate = err
					return nil
				}
				return err
			}
		}

		current, pending, err := ops.build(tx, row.id)
		switch {
		case errors.Is(err, store.ErrNotFound):
			return nil
		case errors.Is(err, ErrParentNotPushed):
			return ops.requeue(tx, row.id)
		case err != nil:
			return err
		case pending == model.PendingDelete:
			// Deleted while the push was in flight; the delete goes next pass.
			return nil
		case !reflect.DeepEqual(current, ops.withRemoteID(sent, gotID)):
			// Edited while the push was in flight; push the newer state next pass.
			return ops.requeue(tx, row.id)
		}

		if err := ops.apply(tx, got); err != nil {
			if p.skipConflict(ops.kind, gotID, err) {
				return nil
			}
			return err
		}
		return nil
	})
	if err != nil {
		p.engine.logger.Printf("WARNING: Pushed %s %s but failed to record it: %v", ops.kind, row.id, err)
		return err
	}

	if duplicate != nil {
		// Another pass created the same row first; ours is a second copy.
		p.report.conflict(ops.kind, gotID, duplicate)
		p.engine.logger.Printf("WARNING: %s %s was pushed concurrently, removing duplicate %s", ops.kind, row.id, gotID)
		if err := ops.delete(ctx, gotID); err != nil && !remote.IsNotFound(err) {
			p.engine.logger.Printf("WARNING: Failed to remove duplicate %s %s upstream: %v", ops.kind, gotID, err)
		}
		return nil
	}

	if orphaned {
		// The row was removed locally while its create was in flight.
		if err := ops.delete(ctx, gotID); err != nil && !remote.IsNotFound(err) {
			p.engine.logger.Printf("WARNING: Failed to remove orphaned %s %s upstream: %v", ops.kind, gotID, err)
		}
		return nil
	}

	if row.op == model.PendingCreate {
		step.Created++
	} else {
		step.Updated++
	}
	return nil
}

func (p *pass) pushProjects(ctx context.Context, step *StepReport) error {
	b := p.backend
	var rows []pendingRow
	err := p.engine.db.View(ctx, func(tx *store.Tx) error {
		pending, err := tx.PendingProjects(b.ID)
		for _, r := range pending {
			rows = append(rows, pendingRow{id: r.ID, remoteID: r.RemoteID, op: r.Pending})
		}
		return err
	})
	if err != nil {
		return err
	}

	return push(ctx, p, step, pushOps[remote.Project]{
		kind: model.KindProject,
		build: func(tx *store.Tx, id string) (remote.Project, model.PendingOp, error) {
			row, err := tx.GetProject(id)
			if err != nil {
				return remote.Project{}, "", err
			}
			if row == nil {
				return remote.Project{}, "", store.ErrNotFound
			}
			rec, err := remoteProject(tx, row)
			return rec, row.Pending, err
		},
		create:       p.client.CreateProject,
		update:       p.client.UpdateProject,
		delete:       p.client.DeleteProject,
		remoteID:     func(r remote.Project) string { return r.RemoteID },
		withRemoteID: func(r remote.Project, id string) remote.Project { r.RemoteID = id; return r },
		markPushed:   (*store.Tx).MarkProjectPushed,
		apply: func(tx *store.Tx, r *remote.Project) error {
			proj := projectFromRemote(*r)
			if r.ParentRemoteID != "" {
				parent, err := tx.ProjectByRemoteID(b.ID, r.ParentRemoteID)
				if err != nil {
					return err
				}
				if parent != nil {
					proj.ParentID = &parent.ID
				}
			}
			_, err := tx.UpsertProjectByRemoteID(b.ID, proj)
			return err
		},
		requeue: func(tx *store.Tx, id string) error {
			_, err := tx.UpdateProject(id, store.ProjectPatch{})
			return err
		},
		purge: (*store.Tx).PurgeProject,
	}, rows)
}

func (p *pass) pushSections(ctx context.Context, step *StepReport) error {
	b := p.backend
	var rows []pendingRow
	err := p.engine.db.View(ctx, func(tx *store.Tx) error {
		pending, err := tx.PendingSections(b.ID)
		for _, r := range pending {
			rows = append(rows, pendingRow{id: r.ID, remoteID: r.RemoteID, op: r.Pending})
		}
		return err
	})
	if err != nil {
		return err
	}

	return push(ctx, p, step, pushOps[remote.Section]{
		kind: model.KindSection,
		build: func(tx *store.Tx, id string) (remote.Section, model.PendingOp, error) {
			row, err := tx.GetSection(id)
			if err != nil {
				return remote.Section{}, "", err
			}
			if row == nil {
				return remote.Section{}, "", store.ErrNotFound
			}
			rec, err := remoteSection(tx, row)
			return rec, row.Pending, err
		},
		create:       p.client.CreateSection,
		update:       p.client.UpdateSection,
		delete:       p.client.DeleteSection,
		remoteID:     func(r remote.Section) string { return r.RemoteID },
		withRemoteID: func(r remote.Section, id string) remote.Section { r.RemoteID = id; return r },
		markPushed:   (*store.Tx).MarkSectionPushed,
		apply: func(tx *store.Tx, r *remote.Section) error {
			project, err := tx.ProjectByRemoteID(b.ID, r.ProjectRemoteID)
			if err != nil || project == nil {
				return err
			}
			_, err = tx.UpsertSectionByRemoteID(b.ID, sectionFromRemote(*r, project.ID))
			return err
		},
		requeue: func(tx *store.Tx, id string) error {
			_, err := tx.UpdateSection(id, store.SectionPatch{})
			return err
		},
		purge: (*store.Tx).PurgeSection,
	}, rows)
}

func (p *pass) pushLabels(ctx context.Context, step *StepReport) error {
	b := p.backend
	var rows []pendingRow
	err := p.engine.db.View(ctx, func(tx *store.Tx) error {
		pending, err := tx.PendingLabels(b.ID)
		for _, r := range pending {
			rows = append(rows, pendingRow{id: r.ID, remoteID: r.RemoteID, op: r.Pending})
		}
		return err
	})
	if err != nil {
		return err
	}

	return push(ctx, p, step, pushOps[remote.Label]{
		kind: model.KindLabel,
		build: func(tx *store.Tx, id string) (remote.Label, model.PendingOp, error) {
			row, err := tx.GetLabel(id)
			if err != nil {
				return remote.Label{}, "", err
			}
			if row == nil {
				return remote.Label{}, "", store.ErrNotFound
			}
			return remoteLabel(row), row.Pending, nil
		},
		create:       p.client.CreateLabel,
		update:       p.client.UpdateLabel,
		delete:       p.client.DeleteLabel,
		remoteID:     func(r remote.Label) string { return r.RemoteID },
		withRemoteID: func(r remote.Label, id string) remote.Label { r.RemoteID = id; return r },
		markPushed:   (*store.Tx).MarkLabelPushed,
		apply: func(tx *store.Tx, r *remote.Label) error {
			_, err := tx.UpsertLabelByRemoteID(b.ID, labelFromRemote(*r))
			return err
		},
		requeue: func(tx *store.Tx, id string) error {
			_, err := tx.UpdateLabel(id, store.LabelPatch{})
			return err
		},
		purge: (*store.Tx).PurgeLabel,
	}, rows)
}

func (p *pass) pushTasks(ctx context.Context, step *StepReport) error {
	b := p.backend
	var rows []pendingRow
	err := p.engine.db.View(ctx, func(tx *store.Tx) error {
		pending, err := tx.PendingTasks(b.ID)
		for _, r := range pending {
			rows = append(rows, pendingRow{id: r.ID, remoteID: r.RemoteID, op: r.Pending})
		}
		return err
	})
	if err != nil {
		return err
	}

	return push(ctx, p, step, pushOps[remote.Task]{
		kind: model.KindTask,
		build: func(tx *store.Tx, id string) (remote.Task, model.PendingOp, error) {
			row, err := tx.GetTask(id)
			if err != nil {
				return remote.Task{}, "", err
			}
			if row == nil {
				return remote.Task{}, "", store.ErrNotFound
			}
			rec, err := remoteTask(tx, row)
			return rec, row.Pending, err
		},
		create:       p.client.CreateTask,
		update:       p.client.UpdateTask,
		delete:       p.client.DeleteTask,
		remoteID:     func(r remote.Task) string { return r.RemoteID },
		withRemoteID: func(r remote.Task, id string) remote.Task { r.RemoteID = id; return r },
		markPushed:   (*store.Tx).MarkTaskPushed,
		apply: func(tx *store.Tx, r *remote.Task) error {
			p.pushedTasks[r.RemoteID] = true
			return applyTask(tx, b.ID, r)
		},
		requeue: func(tx *store.Tx, id string) error {
			_, err := tx.UpdateTask(id, store.TaskPatch{})
			return err
		},
		purge: (*store.Tx).PurgeTask,
	}, rows)
}

// applyTask stores a task record returned by a push, references resolved
// through the rows already known locally.
func applyTask(tx *store.Tx, backendID string, r *remote.Task) error {
	cur, err := tx.TaskByRemoteID(backendID, r.RemoteID)
	if err != nil || cur == nil {
		return err
	}

	projectID := cur.ProjectID
	if project, err := tx.ProjectByRemoteID(backendID, r.ProjectRemoteID); err != nil {
		return err
	} else if project != nil {
		projectID = project.ID
	}

	var sectionID *string
	if r.SectionRemoteID != "" {
		section, err := tx.SectionByRemoteID(backendID, r.SectionRemoteID)
		if err != nil {
			return err
		}
		if section != nil {
			sectionID = &section.ID
		}
	}

	t := taskFromRemote(*r, projectID, sectionID)
	if r.ParentRemoteID != "" {
		parent, err := tx.TaskByRemoteID(backendID, r.ParentRemoteID)
		if err != nil {
			return err
		}
		if parent != nil {
			t.ParentID = &parent.ID
		}
	}
	if _, err := tx.UpsertTaskByRemoteID(backendID, t); err != nil {
		return err
	}

	ids, err := labelIDs(tx, backendID, r.Labels)
	if err != nil {
		return err
	}
	return tx.SetTaskLabels(cur.ID, ids)
}
