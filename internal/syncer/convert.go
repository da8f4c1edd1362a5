package syncer

import (
	"errors"
	"slices"

	"github.com/terminalist/terminalist/internal/model"
	"github.com/terminalist/terminalist/internal/remote"
	"github.com/terminalist/terminalist/internal/store"
)

// ErrParentNotPushed is recorded when a row references a parent that has
// no remote id yet. The row is retried on the next pass.
var ErrParentNotPushed = errors.New("parent has not been pushed yet")

// index maps remote ids to local ids for one kind of one backend.
type index map[string]string

// lookup returns the local id for remoteID, or nil when remoteID is empty
// or unknown.
func (ix index) lookup(remoteID string) *string {
	if remoteID == "" {
		return nil
	}
	if id, ok := ix[remoteID]; ok {
		return &id
	}
	return nil
}

func projectFromRemote(r remote.Project) *model.Project {
	return &model.Project{
		RemoteID:   r.RemoteID,
		Name:       r.Name,
		Color:      r.Color,
		IsFavorite: r.IsFavorite,
		IsInbox:    r.IsInbox,
		OrderIndex: r.OrderIndex,
	}
}

func sectionFromRemote(r remote.Section, projectID string) *model.Section {
	return &model.Section{
		RemoteID:   r.RemoteID,
		Name:       r.Name,
		ProjectID:  projectID,
		OrderIndex: r.OrderIndex,
	}
}

func labelFromRemote(r remote.Label) *model.Label {
	return &model.Label{
		RemoteID:   r.RemoteID,
		Name:       r.Name,
		Color:      r.Color,
		OrderIndex: r.OrderIndex,
		IsFavorite: r.IsFavorite,
	}
}

func taskFromRemote(r remote.Task, projectID string, sectionID *string) *model.Task {
	return &model.Task{
		RemoteID:    r.RemoteID,
		ProjectID:   projectID,
		SectionID:   sectionID,
		Content:     r.Content,
		Description: r.Description,
		Priority:    r.Priority,
		OrderIndex:  r.OrderIndex,
		DueDate:     r.DueDate,
		DueDatetime: r.DueDatetime,
		IsRecurring: r.IsRecurring,
		Deadline:    r.Deadline,
		Duration:    r.Duration,
		IsCompleted: r.IsCompleted,
	}
}

// remoteProject builds the record pushed for a local project.
func remoteProject(tx *store.Tx, p *model.Project) (remote.Project, error) {
	r := remote.Project{
		RemoteID:   p.RemoteID,
		Name:       p.Name,
		Color:      p.Color,
		IsFavorite: p.IsFavorite,
		IsInbox:    p.IsInbox,
		OrderIndex: p.OrderIndex,
	}
	if p.ParentID != nil {
		parent, err := tx.GetProject(*p.ParentID)
		if err != nil {
			return r, err
		}
		if parent == nil || parent.RemoteID == "" {
			return r, ErrParentNotPushed
		}
		r.ParentRemoteID = parent.RemoteID
	}
	return r, nil
}

func remoteSection(tx *store.Tx, s *model.Section) (remote.Section, error) {
	r := remote.Section{RemoteID: s.RemoteID, Name: s.Name, OrderIndex: s.OrderIndex}
	project, err := tx.GetProject(s.ProjectID)
	if err != nil {
		return r, err
	}
	if project == nil || project.RemoteID == "" {
		return r, ErrParentNotPushed
	}
	r.ProjectRemoteID = project.RemoteID
	return r, nil
}

func remoteLabel(l *model.Label) remote.Label {
	return remote.Label{
		RemoteID:   l.RemoteID,
		Name:       l.Name,
		Color:      l.Color,
		OrderIndex: l.OrderIndex,
		IsFavorite: l.IsFavorite,
	}
}

// remoteTask builds the record pushed for a local task, translating local
// references into remote ids.
func remoteTask(tx *store.Tx, t *model.Task) (remote.Task, error) {
	r := remote.Task{
		RemoteID:    t.RemoteID,
		Content:     t.Content,
		Description: t.Description,
		Priority:    t.Priority,
		OrderIndex:  t.OrderIndex,
		DueDate:     t.DueDate,
		DueDatetime: t.DueDatetime,
		IsRecurring: t.IsRecurring,
		Deadline:    t.Deadline,
		Duration:    t.Duration,
		IsCompleted: t.IsCompleted,
		Labels:      slices.Clone(t.Labels),
	}
	if r.Labels == nil {
		r.Labels = []string{}
	}
	slices.Sort(r.Labels)

	project, err := tx.GetProject(t.ProjectID)
	if err != nil {
		return r, err
	}
	if project == nil || project.RemoteID == "" {
		return r, ErrParentNotPushed
	}
	r.ProjectRemoteID = project.RemoteID

	if t.SectionID != nil {
		section, err := tx.GetSection(*t.SectionID)
		if err != nil {
			return r, err
		}
		if section == nil || section.RemoteID == "" {
			return r, ErrParentNotPushed
		}
		r.SectionRemoteID = section.RemoteID
	}
	if t.ParentID != nil {
		parent, err := tx.GetTask(*t.ParentID)
		if err != nil {
			return r, err
		}
		if parent == nil || parent.RemoteID == "" {
			return r, ErrParentNotPushed
		}
		r.ParentRemoteID = parent.RemoteID
	}
	return r, nil
}

// labelIDs resolves label names to the backend's local label ids. Unknown
// names are dropped.
func labelIDs(tx *store.Tx, backendID string, names []string) ([]string, error) {
	ids := make([]string, 0, len(names))
	for _, name := range names {
		l, err := tx.LabelByName(backendID, name)
		if err != nil {
			return nil, err
		}
		if l != nil {
			ids = append(ids, l.ID)
		}
	}
	return ids, nil
}
