package ui

import (
	"context"
	"fmt"
	"time"

	"github.com/terminalist/terminalist/internal/model"
	"github.com/terminalist/terminalist/internal/store"
)

// searchLimit caps the Search view.
const searchLimit = 200

// Data is everything one view needs, read in a single transaction.
type Data struct {
	Backends  []*model.Backend
	BackendID string
	Projects  []*model.Project
	Sections  []*model.Section
	Labels    []*model.Label
	Tasks     []*model.Task
	Counts    store.TaskCounts
	LastSync  time.Time
	View      View
}

// loadData reads the lists for view. An empty backendID picks the first
// enabled backend; with no backends the result carries empty lists.
func loadData(ctx context.Context, db *store.DB, backendID string, view View, now time.Time) (*Data, error) {
	d := &Data{View: view}
	err := db.View(ctx, func(tx *store.Tx) error {
		var err error
		if d.Backends, err = tx.ListBackends(true); err != nil {
			return err
		}
		d.BackendID = pickBackend(d.Backends, backendID)
		if d.BackendID == "" {
			return nil
		}

		if d.Projects, err = tx.ListProjects(d.BackendID, store.ProjectFilter{}); err != nil {
			return err
		}
		if d.Sections, err = tx.ListSections(d.BackendID, ""); err != nil {
			return err
		}
		if d.Labels, err = tx.ListLabels(d.BackendID); err != nil {
			return err
		}

		filter, ok := FilterFor(view, d.Projects, now)
		if ok {
			if d.Tasks, err = tx.ListTasks(d.BackendID, filter); err != nil {
				return err
			}
		}

		today := model.FormatDate(model.StartOfDay(now))
		if d.Counts, err = tx.CountTasks(d.BackendID, today); err != nil {
			return err
		}
		d.LastSync, err = tx.LastSync(d.BackendID, "")
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load %s view: %w", view.Kind, err)
	}
	return d, nil
}

func pickBackend(backends []*model.Backend, want string) string {
	for _, b := range backends {
		if b.ID == want {
			return want
		}
	}
	if len(backends) > 0 {
		return backends[0].ID
	}
	return ""
}

// FilterFor maps a view onto a store query. It reports false when the
// view has nothing to list, such as an inbox view before the first sync.
func FilterFor(view View, projects []*model.Project, now time.Time) (store.TaskFilter, bool) {
	today := model.StartOfDay(now)
	switch view.Kind {
	case ViewInbox:
		for _, p := range projects {
			if p.IsInbox {
				return store.TaskFilter{ProjectID: p.ID}, true
			}
		}
		return store.TaskFilter{}, false
	case ViewToday:
		// Overdue tasks stay in Today until they are done.
		return store.TaskFilter{DueOnOrBefore: model.FormatDate(today)}, true
	case ViewTomorrow:
		d := model.FormatDate(today.AddDate(0, 0, 1))
		return store.TaskFilter{DueOnOrAfter: d, DueOnOrBefore: d}, true
	case ViewUpcoming:
		return store.TaskFilter{
			DueOnOrAfter:  model.FormatDate(today),
			DueOnOrBefore: model.FormatDate(today.AddDate(0, 0, UpcomingDays)),
		}, true
	case ViewProject:
		return store.TaskFilter{ProjectID: view.ID}, view.ID != ""
	case ViewLabel:
		return store.TaskFilter{LabelID: view.ID}, view.ID != ""
	case ViewSearch:
		return store.TaskFilter{Search: view.Query, IncludeCompleted: true, Limit: searchLimit}, view.Query != ""
	}
	return store.TaskFilter{}, false
}
