package syncer

import (
	"context"
	"fmt"

	"github.com/terminalist/terminalist/internal/model"
	"github.com/terminalist/terminalist/internal/remote"
	"github.com/terminalist/terminalist/internal/store"
)

func (p *pass) pullProjects(ctx context.Context, step *StepReport) error {
	recs, err := p.client.ListProjects(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch projects: %w", err)
	}
	step.Fetched = len(recs)
	b := p.backend

	return p.engine.db.Update(ctx, func(tx *store.Tx) error {
		rows, err := tx.PendingProjects(b.ID)
		if err != nil {
			return err
		}
		pending := pendingRemoteIDs(rows, func(r *model.Project) string { return r.RemoteID })

		keep := make([]string, 0, len(recs))
		applied := make([]remote.Project, 0, len(recs))
		for _, r := range recs {
			keep = append(keep, r.RemoteID)
			if pending[r.RemoteID] {
				step.KeptLocal++
				continue
			}
			if _, err := tx.UpsertProjectByRemoteID(b.ID, projectFromRemote(r)); err != nil {
				if p.skipConflict(model.KindProject, r.RemoteID, err) {
					continue
				}
				return err
			}
			applied = append(applied, r)
			step.Upserted++
		}

		// Parents are wired once every project of the listing has a row.
		ix, err := tx.ProjectRemoteIndex(b.ID)
		if err != nil {
			return err
		}
		for _, r := range applied {
			parent := index(ix).lookup(r.ParentRemoteID)
			if parent != nil && *parent == ix[r.RemoteID] {
				parent = nil
			}
			if err := tx.SetProjectParent(ix[r.RemoteID], parent); err != nil {
				return err
			}
		}

		if step.Deleted, err = tx.DeleteProjectsMissing(b.ID, keep); err != nil {
			return err
		}
		return tx.RecordSync(b.ID, string(model.KindProject), p.engine.now())
	})
}

func (p *pass) pullSections(ctx context.Context, step *StepReport) error {
	recs, err := p.client.ListSections(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch sections: %w", err)
	}
	step.Fetched = len(recs)
	b := p.backend

	return p.engine.db.Update(ctx, func(tx *store.Tx) error {
		rows, err := tx.PendingSections(b.ID)
		if err != nil {
			return err
		}
		pending := pendingRemoteIDs(rows, func(r *model.Section) string { return r.RemoteID })
		projects, err := tx.ProjectRemoteIndex(b.ID)
		if err != nil {
			return err
		}

		keep := make([]string, 0, len(recs))
		for _, r := range recs {
			keep = append(keep, r.RemoteID)
			if pending[r.RemoteID] {
				step.KeptLocal++
				continue
			}
			projectID, ok := projects[r.ProjectRemoteID]
			if !ok {
				p.engine.logger.Printf("WARNING: Section %s references unknown project %s", r.RemoteID, r.ProjectRemoteID)
				step.Orphaned++
				continue
			}
			if _, err := tx.UpsertSectionByRemoteID(b.ID, sectionFromRemote(r, projectID)); err != nil {
				if p.skipConflict(model.KindSection, r.RemoteID, err) {
					continue
				}
				return err
			}
			step.Upserted++
		}

		if step.Deleted, err = tx.DeleteSectionsMissing(b.ID, keep); err != nil {
			return err
		}
		return tx.RecordSync(b.ID, string(model.KindSection), p.engine.now())
	})
}

func (p *pass) pullLabels(ctx context.Context, step *StepReport) error {
	recs, err := p.client.ListLabels(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch labels: %w", err)
	}
	step.Fetched = len(recs)
	b := p.backend

	return p.engine.db.Update(ctx, func(tx *store.Tx) error {
		rows, err := tx.PendingLabels(b.ID)
		if err != nil {
			return err
		}
		pending := pendingRemoteIDs(rows, func(r *model.Label) string { return r.RemoteID })

		keep := make([]string, 0, len(recs))
		for _, r := range recs {
			keep = append(keep, r.RemoteID)
			if pending[r.RemoteID] {
				step.KeptLocal++
				continue
			}
			if _, err := tx.UpsertLabelByRemoteID(b.ID, labelFromRemote(r)); err != nil {
				if p.skipConflict(model.KindLabel, r.RemoteID, err) {
					continue
				}
				return err
			}
			step.Upserted++
		}

		if step.Deleted, err = tx.DeleteLabelsMissing(b.ID, keep); err != nil {
			return err
		}
		return tx.RecordSync(b.ID, string(model.KindLabel), p.engine.now())
	})
}

func (p *pass) pullTasks(ctx context.Context, step *StepReport) error {
	recs, err := p.client.ListTasks(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch tasks: %w", err)
	}
	step.Fetched = len(recs)
	p.tasks = recs
	b := p.backend

	return p.engine.db.Update(ctx, func(tx *store.Tx) error {
		rows, err := tx.PendingTasks(b.ID)
		if err != nil {
			return err
		}
		pending := pendingRemoteIDs(rows, func(r *model.Task) string { return r.RemoteID })
		projects, err := tx.ProjectRemoteIndex(b.ID)
		if err != nil {
			return err
		}
		sections, err := tx.SectionRemoteIndex(b.ID)
		if err != nil {
			return err
		}

		keep := make([]string, 0, len(recs))
		applied := make([]remote.Task, 0, len(recs))
		for _, r := range recs {
			keep = append(keep, r.RemoteID)
			if pending[r.RemoteID] {
				step.KeptLocal++
				continue
			}
			projectID, ok := projects[r.ProjectRemoteID]
			if !ok {
				p.engine.logger.Printf("WARNING: Task %s references unknown project %s", r.RemoteID, r.ProjectRemoteID)
				step.Orphaned++
				continue
			}
			t := taskFromRemote(r, projectID, index(sections).lookup(r.SectionRemoteID))
			if _, err := tx.UpsertTaskByRemoteID(b.ID, t); err != nil {
				if p.skipConflict(model.KindTask, r.RemoteID, err) {
					continue
				}
				return err
			}
			applied = append(applied, r)
			step.Upserted++
		}

		ix, err := tx.TaskRemoteIndex(b.ID)
		if err != nil {
			return err
		}
		for _, r := range applied {
			if r.ParentRemoteID == "" {
				continue
			}
			if err := tx.SetTaskParent(ix[r.RemoteID], index(ix).lookup(r.ParentRemoteID)); err != nil {
				if p.skipConflict(model.KindTask, r.RemoteID, err) {
					continue
				}
				return err
			}
		}

		if step.Deleted, err = tx.DeleteTasksMissing(b.ID, keep); err != nil {
			return err
		}
		return tx.RecordSync(b.ID, string(model.KindTask), p.engine.now())
	})
}

// pullTaskLabels applies the label names of the task listing to the
// task/label links. Tasks with unpushed edits keep their local labels.
func (p *pass) pullTaskLabels(ctx context.Context, step *StepReport) error {
	step.Fetched = len(p.tasks)
	b := p.backend

	return p.engine.db.Update(ctx, func(tx *store.Tx) error {
		rows, err := tx.PendingTasks(b.ID)
		if err != nil {
			return err
		}
		pending := pendingRemoteIDs(rows, func(r *model.Task) string { return r.RemoteID })
		tasks, err := tx.TaskRemoteIndex(b.ID)
		if err != nil {
			return err
		}

		for _, r := range p.tasks {
			taskID, ok := tasks[r.RemoteID]
			// A task pushed in this pass is newer than the listing.
			if !ok || pending[r.RemoteID] || p.pushedTasks[r.RemoteID] {
				continue
			}
			ids, err := labelIDs(tx, b.ID, r.Labels)
			if err != nil {
				return err
			}
			if len(ids) < len(r.Labels) {
				step.Orphaned += len(r.Labels) - len(ids)
			}
			if err := tx.SetTaskLabels(taskID, ids); err != nil {
				if p.skipConflict(model.KindTaskLabel, r.RemoteID, err) {
					continue
				}
				return err
			}
			step.Upserted += len(ids)
		}
		return tx.RecordSync(b.ID, string(model.KindTaskLabel), p.engine.now())
	})
}
