// Package fake provides an in-memory remote.Client.
//
// It is the shared test double for the sync engine and is registered under
// the "memory" backend type so the CLI can run without a network account.
package fake

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/terminalist/terminalist/internal/model"
	"github.com/terminalist/terminalist/internal/remote"
)

// BackendType is the registry key for in-memory backends.
const BackendType = "memory"

var (
	shared   = make(map[string]*Service)
	sharedMu sync.Mutex
)

func init() {
	remote.Register(BackendType, func(_ context.Context, credentials, _ []byte) (remote.Client, error) {
		return Shared(string(credentials)), nil
	})
}

// Shared returns the process-wide service for an account name, creating it
// on first use. Backends with the same credentials see the same data.
func Shared(account string) *Service {
	sharedMu.Lock()
	defer sharedMu.Unlock()
	s, ok := shared[account]
	if !ok {
		s = New()
		s.AddProject(remote.Project{Name: "Inbox", IsInbox: true})
		shared[account] = s
	}
	return s
}

// Service is an in-memory implementation of remote.Client for testing.
type Service struct {
	mu       sync.Mutex
	next     int
	projects []remote.Project
	sections []remote.Section
	labels   []remote.Label
	tasks    []remote.Task
	calls    []string

	// Error injection for testing
	listErr   map[model.Kind]error
	createErr map[model.Kind]error
	updateErr map[model.Kind]error
	deleteErr map[model.Kind]error

	// BeforeList runs before every listing with the lock released.
	// Tests use it to hold a sync pass open.
	BeforeList func(ctx context.Context, kind model.Kind) error

	// BeforeCreate runs before every create with the lock released.
	// Tests use it to keep a push in flight.
	BeforeCreate func(ctx context.Context, kind model.Kind) error
}

// New creates an empty Service.
func New() *Service {
	return &Service{
		listErr:   make(map[model.Kind]error),
		createErr: make(map[model.Kind]error),
		updateErr: make(map[model.Kind]error),
		deleteErr: make(map[model.Kind]error),
	}
}

// FailList makes listings of kind return err. A nil err clears the failure.
func (s *Service) FailList(kind model.Kind, err error) { s.setErr(s.listErr, kind, err) }

// FailCreate makes creates of kind return err.
func (s *Service) FailCreate(kind model.Kind, err error) { s.setErr(s.createErr, kind, err) }

// FailUpdate makes updates of kind return err.
func (s *Service) FailUpdate(kind model.Kind, err error) { s.setErr(s.updateErr, kind, err) }

// FailDelete makes deletes of kind return err.
func (s *Service) FailDelete(kind model.Kind, err error) { s.setErr(s.deleteErr, kind, err) }

func (s *Service) setErr(m map[model.Kind]error, kind model.Kind, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(m, kind)
		return
	}
	m[kind] = err
}

// Calls returns the operations performed so far, e.g. "create task".
func (s *Service) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.calls)
}

// mintID returns a new remote id with a per-kind prefix.
func (s *Service) mintID(prefix string) string {
	s.next++
	return fmt.Sprintf("%s%d", prefix, s.next)
}

// begin records a call and returns the injected error for it, if any.
func (s *Service) begin(op string, m map[model.Kind]error, kind model.Kind) error {
	s.calls = append(s.calls, op+" "+string(kind))
	return m[kind]
}

func (s *Service) list(ctx context.Context, kind model.Kind) error {
	if hook := s.BeforeList; hook != nil {
		if err := hook(ctx, kind); err != nil {
			return err
		}
	}
	if err := ctx.Err(); err != nil {
		return remote.Unreachable("list "+string(kind), err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.begin("list", s.listErr, kind)
}

func (s *Service) beforeCreate(ctx context.Context, kind model.Kind) error {
	if hook := s.BeforeCreate; hook != nil {
		return hook(ctx, kind)
	}
	return nil
}

// AddProject seeds a project and returns its remote id.
func (s *Service) AddProject(p remote.Project) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.RemoteID == "" {
		p.RemoteID = s.mintID("P")
	}
	s.projects = append(s.projects, p)
	return p.RemoteID
}

// AddSection seeds a section and returns its remote id.
func (s *Service) AddSection(sec remote.Section) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sec.RemoteID == "" {
		sec.RemoteID = s.mintID("S")
	}
	s.sections = append(s.sections, sec)
	return sec.RemoteID
}

// AddLabel seeds a label and returns its remote id.
func (s *Service) AddLabel(l remote.Label) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l.RemoteID == "" {
		l.RemoteID = s.mintID("L")
	}
	s.labels = append(s.labels, l)
	return l.RemoteID
}

// AddTask seeds a task and returns its remote id.
func (s *Service) AddTask(t remote.Task) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.RemoteID == "" {
		t.RemoteID = s.mintID("T")
	}
	if t.Priority == 0 {
		t.Priority = model.PriorityNormal
	}
	s.tasks = append(s.tasks, t)
	return t.RemoteID
}

// RemoveTask deletes a task upstream without recording a call, as if
// another client had removed it.
func (s *Service) RemoveTask(remoteID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks = removeTasks(s.tasks, func(t remote.Task) bool { return t.RemoteID == remoteID || t.ParentRemoteID == remoteID })
}

// RemoveProject deletes a project upstream, with its sections and tasks,
// without recording a call.
func (s *Service) RemoveProject(remoteID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeProject(remoteID)
}

// RemoveSection deletes a section upstream without recording a call. Its
// tasks stay in the project.
func (s *Service) RemoveSection(remoteID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeSection(remoteID)
}

// RemoveLabel deletes a label upstream without recording a call. Tasks
// lose the label.
func (s *Service) RemoveLabel(remoteID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLabel(remoteID)
}

// Sections returns a copy of the sections stored upstream.
func (s *Service) Sections() []remote.Section {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.sections)
}

// Projects returns a copy of the projects stored upstream.
func (s *Service) Projects() []remote.Project {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.projects)
}

// Task returns a copy of the task stored under remoteID.
func (s *Service) Task(remoteID string) (remote.Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.tasks {
		if t.RemoteID == remoteID {
			return t, true
		}
	}
	return remote.Task{}, false
}

// TaskCount returns the number of tasks stored upstream.
func (s *Service) TaskCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

// ListProjects implements remote.Client.
func (s *Service) ListProjects(ctx context.Context) ([]remote.Project, error) {
	if err := s.list(ctx, model.KindProject); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.projects), nil
}

// CreateProject implements remote.Client.
func (s *Service) CreateProject(ctx context.Context, p remote.Project) (*remote.Project, error) {
	if err := s.beforeCreate(ctx, model.KindProject); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin("create", s.createErr, model.KindProject); err != nil {
		return nil, err
	}
	p.RemoteID = s.mintID("P")
	s.projects = append(s.projects, p)
	return &p, nil
}

// UpdateProject implements remote.Client.
func (s *Service) UpdateProject(_ context.Context, remoteID string, p remote.Project) (*remote.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin("update", s.updateErr, model.KindProject); err != nil {
		return nil, err
	}
	for i := range s.projects {
		if s.projects[i].RemoteID == remoteID {
			p.RemoteID = remoteID
			p.IsInbox = s.projects[i].IsInbox
			s.projects[i] = p
			return &p, nil
		}
	}
	return nil, remote.FromStatus("update project", 404, nil)
}

// DeleteProject implements remote.Client. Sections and tasks of the
// project go with it.
func (s *Service) DeleteProject(_ context.Context, remoteID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin("delete", s.deleteErr, model.KindProject); err != nil {
		return err
	}
	s.removeProject(remoteID)
	return nil
}

func (s *Service) removeProject(remoteID string) {
	s.projects = slices.DeleteFunc(s.projects, func(p remote.Project) bool { return p.RemoteID == remoteID })
	s.sections = slices.DeleteFunc(s.sections, func(sec remote.Section) bool { return sec.ProjectRemoteID == remoteID })
	s.tasks = removeTasks(s.tasks, func(t remote.Task) bool { return t.ProjectRemoteID == remoteID })
}

// ListSections implements remote.Client.
func (s *Service) ListSections(ctx context.Context) ([]remote.Section, error) {
	if err := s.list(ctx, model.KindSection); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.sections), nil
}

// CreateSection implements remote.Client.
func (s *Service) CreateSection(ctx context.Context, sec remote.Section) (*remote.Section, error) {
	if err := s.beforeCreate(ctx, model.KindSection); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin("create", s.createErr, model.KindSection); err != nil {
		return nil, err
	}
	sec.RemoteID = s.mintID("S")
	s.sections = append(s.sections, sec)
	return &sec, nil
}

// UpdateSection implements remote.Client.
func (s *Service) UpdateSection(_ context.Context, remoteID string, sec remote.Section) (*remote.Section, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin("update", s.updateErr, model.KindSection); err != nil {
		return nil, err
	}
	for i := range s.sections {
		if s.sections[i].RemoteID == remoteID {
			sec.RemoteID = remoteID
			s.sections[i] = sec
			return &sec, nil
		}
	}
	return nil, remote.FromStatus("update section", 404, nil)
}

// DeleteSection implements remote.Client.
func (s *Service) DeleteSection(_ context.Context, remoteID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin("delete", s.deleteErr, model.KindSection); err != nil {
		return err
	}
	s.removeSection(remoteID)
	return nil
}

func (s *Service) removeSection(remoteID string) {
	s.sections = slices.DeleteFunc(s.sections, func(sec remote.Section) bool { return sec.RemoteID == remoteID })
	for i := range s.tasks {
		if s.tasks[i].SectionRemoteID == remoteID {
			s.tasks[i].SectionRemoteID = ""
		}
	}
}

// ListLabels implements remote.Client.
func (s *Service) ListLabels(ctx context.Context) ([]remote.Label, error) {
	if err := s.list(ctx, model.KindLabel); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.labels), nil
}

// CreateLabel implements remote.Client.
func (s *Service) CreateLabel(ctx context.Context, l remote.Label) (*remote.Label, error) {
	if err := s.beforeCreate(ctx, model.KindLabel); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin("create", s.createErr, model.KindLabel); err != nil {
		return nil, err
	}
	l.RemoteID = s.mintID("L")
	s.labels = append(s.labels, l)
	return &l, nil
}

// UpdateLabel implements remote.Client.
func (s *Service) UpdateLabel(_ context.Context, remoteID string, l remote.Label) (*remote.Label, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin("update", s.updateErr, model.KindLabel); err != nil {
		return nil, err
	}
	for i := range s.labels {
		if s.labels[i].RemoteID == remoteID {
			l.RemoteID = remoteID
			s.labels[i] = l
			return &l, nil
		}
	}
	return nil, remote.FromStatus("update label", 404, nil)
}

// DeleteLabel implements remote.Client. The label is removed from every task.
func (s *Service) DeleteLabel(_ context.Context, remoteID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin("delete", s.deleteErr, model.KindLabel); err != nil {
		return err
	}
	s.removeLabel(remoteID)
	return nil
}

func (s *Service) removeLabel(remoteID string) {
	idx := slices.IndexFunc(s.labels, func(l remote.Label) bool { return l.RemoteID == remoteID })
	if idx < 0 {
		return
	}
	name := s.labels[idx].Name
	s.labels = slices.Delete(s.labels, idx, idx+1)
	for i := range s.tasks {
		s.tasks[i].Labels = slices.DeleteFunc(slices.Clone(s.tasks[i].Labels), func(n string) bool { return n == name })
	}
}

// ListTasks implements remote.Client.
func (s *Service) ListTasks(ctx context.Context) ([]remote.Task, error) {
	if err := s.list(ctx, model.KindTask); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]remote.Task, len(s.tasks))
	for i, t := range s.tasks {
		t.Labels = slices.Clone(t.Labels)
		out[i] = t
	}
	return out, nil
}

// CreateTask implements remote.Client.
func (s *Service) CreateTask(ctx context.Context, t remote.Task) (*remote.Task, error) {
	if err := s.beforeCreate(ctx, model.KindTask); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin("create", s.createErr, model.KindTask); err != nil {
		return nil, err
	}
	t.RemoteID = s.mintID("T")
	t.Labels = slices.Clone(t.Labels)
	s.tasks = append(s.tasks, t)
	return &t, nil
}

// UpdateTask implements remote.Client.
func (s *Service) UpdateTask(_ context.Context, remoteID string, t remote.Task) (*remote.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin("update", s.updateErr, model.KindTask); err != nil {
		return nil, err
	}
	for i := range s.tasks {
		if s.tasks[i].RemoteID == remoteID {
			t.RemoteID = remoteID
			t.Labels = slices.Clone(t.Labels)
			s.tasks[i] = t
			return &t, nil
		}
	}
	return nil, remote.FromStatus("update task", 404, nil)
}

// DeleteTask implements remote.Client. Subtasks go with their parent.
func (s *Service) DeleteTask(_ context.Context, remoteID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin("delete", s.deleteErr, model.KindTask); err != nil {
		return err
	}
	s.tasks = removeTasks(s.tasks, func(t remote.Task) bool { return t.RemoteID == remoteID })
	return nil
}

// removeTasks deletes the matching tasks and, transitively, their subtasks.
func removeTasks(tasks []remote.Task, match func(remote.Task) bool) []remote.Task {
	gone := make(map[string]bool)
	for _, t := range tasks {
		if match(t) {
			gone[t.RemoteID] = true
		}
	}
	for changed := true; changed; {
		changed = false
		for _, t := range tasks {
			if !gone[t.RemoteID] && t.ParentRemoteID != "" && gone[t.ParentRemoteID] {
				gone[t.RemoteID] = true
				changed = true
			}
		}
	}
	return slices.DeleteFunc(tasks, func(t remote.Task) bool { return gone[t.RemoteID] })
}

var _ remote.Client = (*Service)(nil)
