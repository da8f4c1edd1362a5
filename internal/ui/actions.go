package ui

import (
	"github.com/terminalist/terminalist/internal/dates"
	"github.com/terminalist/terminalist/internal/syncer"
)

// Action is one state transition. Keys and task completions are turned
// into actions; only Loop.apply changes State.
type Action interface {
	isAction()
}

type (
	// Navigate shows another task list.
	Navigate struct{ View View }
	// CursorDown moves the task cursor down.
	CursorDown struct{}
	// CursorUp moves the task cursor up.
	CursorUp struct{}
	// SwitchBackend makes another backend active.
	SwitchBackend struct{ BackendID string }

	// OpenDialog shows a modal.
	OpenDialog struct {
		Dialog Dialog
		Target Target
		Text   string
	}
	// CloseDialog hides the modal.
	CloseDialog struct{}

	// CreateTask adds a task. An empty ProjectID files it in the inbox.
	CreateTask struct {
		Content   string
		ProjectID string
	}
	// EditTask replaces a task's content.
	EditTask struct {
		ID      string
		Content string
	}
	// CompleteTask marks a task done.
	CompleteTask struct{ ID string }
	// DeleteTask removes a task.
	DeleteTask struct{ ID string }
	// RestoreTask undoes a delete or a completion.
	RestoreTask struct{ ID string }
	// CyclePriority moves a task to the next priority.
	CyclePriority struct{ ID string }
	// SetDue sets a task's due date from a preset, or from Text when
	// Preset is empty.
	SetDue struct {
		ID     string
		Preset dates.Preset
		Text   string
	}

	// CreateProject adds a project, nested under ParentID when set.
	CreateProject struct {
		Name     string
		ParentID string
	}
	// EditProject renames a project.
	EditProject struct {
		ID   string
		Name string
	}
	// DeleteProject removes a project and its tasks.
	DeleteProject struct{ ID string }
	// CreateLabel adds a label.
	CreateLabel struct{ Name string }
	// EditLabel renames a label.
	EditLabel struct {
		ID   string
		Name string
	}
	// DeleteLabel removes a label.
	DeleteLabel struct{ ID string }

	// Search shows the tasks matching Query.
	Search struct{ Query string }

	// StartSync syncs the active backend. Auto marks a timer-driven pass.
	StartSync struct{ Auto bool }
	// SyncFinished carries the outcome of a sync task.
	SyncFinished struct {
		BackendID string
		Report    *syncer.Report
		Err       error
	}
	// MutationFinished carries the outcome of a local mutation task.
	MutationFinished struct {
		Value     any
		Err       error
		Cancelled bool
		op        pendingOp
	}
	// DataLoaded carries lists read from the store.
	DataLoaded struct {
		Data *Data
		Err  error
	}

	// DismissMessage clears the error or info message.
	DismissMessage struct{}
	// ToggleHelp shows or hides the help overlay.
	ToggleHelp struct{}
	// ToggleLogs shows or hides the log panel.
	ToggleLogs struct{}
	// Quit ends the loop.
	Quit struct{}
)

func (Navigate) isAction()         {}
func (CursorDown) isAction()       {}
func (CursorUp) isAction()         {}
func (SwitchBackend) isAction()    {}
func (OpenDialog) isAction()       {}
func (CloseDialog) isAction()      {}
func (CreateTask) isAction()       {}
func (EditTask) isAction()         {}
func (CompleteTask) isAction()     {}
func (DeleteTask) isAction()       {}
func (RestoreTask) isAction()      {}
func (CyclePriority) isAction()    {}
func (SetDue) isAction()           {}
func (CreateProject) isAction()    {}
func (EditProject) isAction()      {}
func (DeleteProject) isAction()    {}
func (CreateLabel) isAction()      {}
func (EditLabel) isAction()        {}
func (DeleteLabel) isAction()      {}
func (Search) isAction()           {}
func (StartSync) isAction()        {}
func (SyncFinished) isAction()     {}
func (MutationFinished) isAction() {}
func (DataLoaded) isAction()       {}
func (DismissMessage) isAction()   {}
func (ToggleHelp) isAction()       {}
func (ToggleLogs) isAction()       {}
func (Quit) isAction()             {}
