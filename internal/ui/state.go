package ui

import (
	"slices"
	"time"

	"github.com/terminalist/terminalist/internal/model"
	"github.com/terminalist/terminalist/internal/store"
)

// ViewKind names what the task list shows.
type ViewKind string

const (
	ViewInbox    ViewKind = "inbox"
	ViewToday    ViewKind = "today"
	ViewTomorrow ViewKind = "tomorrow"
	ViewUpcoming ViewKind = "upcoming"
	ViewProject  ViewKind = "project"
	ViewLabel    ViewKind = "label"
	ViewSearch   ViewKind = "search"
)

// UpcomingDays bounds the Upcoming view.
const UpcomingDays = 90

// View selects the task list. ID is a project or label id; Query is the
// search text.
type View struct {
	Kind  ViewKind
	ID    string
	Query string
}

// ParseView turns a configured default view into a View. Anything that is
// not a named view is taken as a project id.
func ParseView(s string) View {
	switch k := ViewKind(s); k {
	case ViewInbox, ViewToday, ViewTomorrow, ViewUpcoming:
		return View{Kind: k}
	case "":
		return View{Kind: ViewToday}
	}
	return View{Kind: ViewProject, ID: s}
}

// Dialog is the modal currently shown, if any.
type Dialog string

const (
	DialogNone          Dialog = ""
	DialogHelp          Dialog = "help"
	DialogLogs          Dialog = "logs"
	DialogCreateTask    Dialog = "create_task"
	DialogEditTask      Dialog = "edit_task"
	DialogSetDue        Dialog = "set_due"
	DialogCreateProject Dialog = "create_project"
	DialogEditProject   Dialog = "edit_project"
	DialogCreateLabel   Dialog = "create_label"
	DialogEditLabel     Dialog = "edit_label"
	DialogSearch        Dialog = "search"
	DialogConfirmDelete Dialog = "confirm_delete"
)

// IsPrompt reports whether the dialog reads a line of text.
func (d Dialog) IsPrompt() bool {
	switch d {
	case DialogCreateTask, DialogEditTask, DialogSetDue, DialogCreateProject, DialogEditProject,
		DialogCreateLabel, DialogEditLabel, DialogSearch:
		return true
	}
	return false
}

// Target is what a dialog acts on.
type Target struct {
	Kind model.Kind
	ID   string
	Name string
}

// SidebarItem is one selectable entry of the sidebar.
type SidebarItem struct {
	View  View
	Title string
	Depth int
}

// Selection is the view and the task under the cursor.
type Selection struct {
	View   View
	TaskID string
}

// State is the UI state. It is owned by the goroutine running the Loop.
type State struct {
	backends  []*model.Backend
	backendID string
	projects  []*model.Project
	sections  []*model.Section
	labels    []*model.Label
	tasks     []*model.Task
	counts    store.TaskCounts

	view   View
	cursor int

	dialog       Dialog
	dialogTarget Target
	dialogText   string

	loading    bool
	syncing    bool
	completing map[string]bool
	deleting   map[string]bool

	errorMessage string
	infoMessage  string

	lastSync        time.Time
	lastSyncSummary string
	lastRemoved     string

	logs []string
	quit bool
}

func newState(view View) *State {
	return &State{
		view:       view,
		completing: make(map[string]bool),
		deleting:   make(map[string]bool),
	}
}

func (s *State) selectedTask() *model.Task {
	if s.cursor < 0 || s.cursor >= len(s.tasks) {
		return nil
	}
	return s.tasks[s.cursor]
}

func (s *State) clampCursor() {
	if s.cursor >= len(s.tasks) {
		s.cursor = len(s.tasks) - 1
	}
	if s.cursor < 0 {
		s.cursor = 0
	}
}

func (s *State) project(id string) *model.Project {
	for _, p := range s.projects {
		if p.ID == id {
			return p
		}
	}
	return nil
}

func (s *State) label(id string) *model.Label {
	for _, l := range s.labels {
		if l.ID == id {
			return l
		}
	}
	return nil
}

// sidebar lists the special views, then projects as a tree, then labels.
func (s *State) sidebar() []SidebarItem {
	items := []SidebarItem{
		{View: View{Kind: ViewToday}, Title: "Today"},
		{View: View{Kind: ViewTomorrow}, Title: "Tomorrow"},
		{View: View{Kind: ViewUpcoming}, Title: "Upcoming"},
	}

	children := make(map[string][]*model.Project)
	var roots []*model.Project
	for _, p := range s.projects {
		if p.ParentID != nil && s.project(*p.ParentID) != nil {
			children[*p.ParentID] = append(children[*p.ParentID], p)
			continue
		}
		roots = append(roots, p)
	}
	var walk func(p *model.Project, depth int)
	walk = func(p *model.Project, depth int) {
		items = append(items, SidebarItem{View: View{Kind: ViewProject, ID: p.ID}, Title: p.Name, Depth: depth})
		for _, c := range children[p.ID] {
			walk(c, depth+1)
		}
	}
	for _, p := range roots {
		walk(p, 0)
	}

	for _, l := range s.labels {
		items = append(items, SidebarItem{View: View{Kind: ViewLabel, ID: l.ID}, Title: "@" + l.Name})
	}
	return items
}

// Snapshot is a read-only copy of the state for renderers.
type Snapshot struct {
	BackendID string
	Backends  []model.Backend
	Projects  []model.Project
	Sections  []model.Section
	Labels    []model.Label
	Tasks     []model.Task
	Counts    store.TaskCounts
	Sidebar   []SidebarItem

	View      View
	ViewTitle string
	Cursor    int
	Selection Selection

	Dialog       Dialog
	DialogTarget Target
	DialogText   string

	Loading    bool
	Syncing    bool
	Completing map[string]bool
	Deleting   map[string]bool

	ErrorMessage string
	InfoMessage  string

	LastSync        time.Time
	LastSyncSummary string
	CanUndo         bool

	Logs []string
	Quit bool
}

// Snapshot copies the state.
func (s *State) Snapshot() *Snapshot {
	snap := &Snapshot{
		BackendID:       s.backendID,
		Backends:        derefAll(s.backends),
		Projects:        derefAll(s.projects),
		Sections:        derefAll(s.sections),
		Labels:          derefAll(s.labels),
		Tasks:           make([]model.Task, len(s.tasks)),
		Counts:          s.counts,
		Sidebar:         s.sidebar(),
		View:            s.view,
		ViewTitle:       s.viewTitle(),
		Cursor:          s.cursor,
		Dialog:          s.dialog,
		DialogTarget:    s.dialogTarget,
		DialogText:      s.dialogText,
		Loading:         s.loading,
		Syncing:         s.syncing,
		Completing:      cloneSet(s.completing),
		Deleting:        cloneSet(s.deleting),
		ErrorMessage:    s.errorMessage,
		InfoMessage:     s.infoMessage,
		LastSync:        s.lastSync,
		LastSyncSummary: s.lastSyncSummary,
		CanUndo:         s.lastRemoved != "",
		Logs:            slices.Clone(s.logs),
		Quit:            s.quit,
	}
	for i, t := range s.tasks {
		c := *t
		c.Labels = slices.Clone(t.Labels)
		snap.Tasks[i] = c
	}
	snap.Selection = Selection{View: s.view}
	if t := s.selectedTask(); t != nil {
		snap.Selection.TaskID = t.ID
	}
	return snap
}

func (s *State) viewTitle() string {
	switch s.view.Kind {
	case ViewInbox:
		return "Inbox"
	case ViewToday:
		return "Today"
	case ViewTomorrow:
		return "Tomorrow"
	case ViewUpcoming:
		return "Upcoming"
	case ViewProject:
		if p := s.project(s.view.ID); p != nil {
			return p.Name
		}
		return "Project"
	case ViewLabel:
		if l := s.label(s.view.ID); l != nil {
			return "@" + l.Name
		}
		return "Label"
	case ViewSearch:
		return "Search: " + s.view.Query
	}
	return ""
}

// SelectedTask returns the task under the cursor, or nil.
func (s *Snapshot) SelectedTask() *model.Task {
	if s.Cursor < 0 || s.Cursor >= len(s.Tasks) {
		return nil
	}
	return &s.Tasks[s.Cursor]
}

// SidebarIndex returns the position of the current view in Sidebar, or -1.
func (s *Snapshot) SidebarIndex() int {
	for i, item := range s.Sidebar {
		if item.View.Kind == s.View.Kind && item.View.ID == s.View.ID {
			return i
		}
	}
	return -1
}

// ProjectName returns the name of a project in the snapshot.
func (s *Snapshot) ProjectName(id string) string {
	for _, p := range s.Projects {
		if p.ID == id {
			return p.Name
		}
	}
	return ""
}

func derefAll[T any](in []*T) []T {
	out := make([]T, len(in))
	for i, v := range in {
		out[i] = *v
	}
	return out
}

func cloneSet(m map[string]bool) map[string]bool {
	out := make(map[string]bool, len(m))
	for k, v := range m {
		if v {
			out[k] = true
		}
	}
	return out
}
