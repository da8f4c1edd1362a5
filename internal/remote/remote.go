// Package remote defines the contract between the sync engine and a remote
// task service, plus the registry that builds a client for a Backend row.
//
// A Client exposes list/create/update/delete for each entity type. Records
// refer to each other by remote id only; translating to local ids is the
// sync engine's job. Implementations live in subpackages and register
// themselves from init():
//
//	func init() {
//	    remote.Register("todoist", New)
//	}
package remote

import "context"

// Project is a remote project record.
type Project struct {
	RemoteID       string
	Name           string
	Color          string
	IsFavorite     bool
	IsInbox        bool
	OrderIndex     int
	ParentRemoteID string
}

// Section is a remote section record.
type Section struct {
	RemoteID        string
	Name            string
	ProjectRemoteID string
	OrderIndex      int
}

// Label is a remote label record.
type Label struct {
	RemoteID   string
	Name       string
	Color      string
	OrderIndex int
	IsFavorite bool
}

// Task is a remote task record. Labels holds label names.
type Task struct {
	RemoteID        string
	ProjectRemoteID string
	SectionRemoteID string
	ParentRemoteID  string
	Content         string
	Description     string
	Priority        int
	OrderIndex      int
	DueDate         *string
	DueDatetime     *string
	IsRecurring     bool
	Deadline        *string
	Duration        *string
	IsCompleted     bool
	Labels          []string
}

// Client talks to one account on a remote task service.
//
// List calls return the complete current set for the account. Create and
// Update return the record as stored upstream; the sync engine treats that
// as authoritative. Update sends the full local state of the record, RemoteID
// on the argument is ignored. Delete of an id that no longer exists returns
// nil so retries are safe.
type Client interface {
	ListProjects(ctx context.Context) ([]Project, error)
	CreateProject(ctx context.Context, p Project) (*Project, error)
	UpdateProject(ctx context.Context, remoteID string, p Project) (*Project, error)
	DeleteProject(ctx context.Context, remoteID string) error

	ListSections(ctx context.Context) ([]Section, error)
	CreateSection(ctx context.Context, s Section) (*Section, error)
	UpdateSection(ctx context.Context, remoteID string, s Section) (*Section, error)
	DeleteSection(ctx context.Context, remoteID string) error

	ListLabels(ctx context.Context) ([]Label, error)
	CreateLabel(ctx context.Context, l Label) (*Label, error)
	UpdateLabel(ctx context.Context, remoteID string, l Label) (*Label, error)
	DeleteLabel(ctx context.Context, remoteID string) error

	ListTasks(ctx context.Context) ([]Task, error)
	CreateTask(ctx context.Context, t Task) (*Task, error)
	UpdateTask(ctx context.Context, remoteID string, t Task) (*Task, error)
	DeleteTask(ctx context.Context, remoteID string) error
}
