package model

import (
	"fmt"
	"strings"
)

// MaxNameLength bounds project, section and label names.
const MaxNameLength = 500

// Project groups sections and tasks. Projects form a tree through ParentID,
// which must point at a project of the same backend.
type Project struct {
	ID         string    `json:"id"`
	BackendID  string    `json:"backend_id"`
	RemoteID   string    `json:"remote_id,omitempty"`
	Name       string    `json:"name"`
	Color      string    `json:"color,omitempty"`
	IsFavorite bool      `json:"is_favorite"`
	IsInbox    bool      `json:"is_inbox"`
	OrderIndex int       `json:"order_index"`
	ParentID   *string   `json:"parent_id,omitempty"`
	Pending    PendingOp `json:"pending,omitempty"`
}

// Validate checks the fields required to persist a project.
func (p *Project) Validate() error {
	if p.BackendID == "" {
		return fmt.Errorf("backend_id is required")
	}
	if err := validateName(p.Name); err != nil {
		return err
	}
	if p.ParentID != nil && *p.ParentID == p.ID && p.ID != "" {
		return fmt.Errorf("project cannot be its own parent")
	}
	if !p.Pending.IsValid() {
		return fmt.Errorf("invalid pending state %q", p.Pending)
	}
	return nil
}

// Section partitions the tasks of one project.
type Section struct {
	ID         string    `json:"id"`
	BackendID  string    `json:"backend_id"`
	RemoteID   string    `json:"remote_id,omitempty"`
	Name       string    `json:"name"`
	ProjectID  string    `json:"project_id"`
	OrderIndex int       `json:"order_index"`
	Pending    PendingOp `json:"pending,omitempty"`
}

// Validate checks the fields required to persist a section.
func (s *Section) Validate() error {
	if s.BackendID == "" {
		return fmt.Errorf("backend_id is required")
	}
	if s.ProjectID == "" {
		return fmt.Errorf("project_id is required")
	}
	if !s.Pending.IsValid() {
		return fmt.Errorf("invalid pending state %q", s.Pending)
	}
	return validateName(s.Name)
}

// Label tags tasks. The task/label association lives in its own table and
// is reached through the store's join helpers.
type Label struct {
	ID         string    `json:"id"`
	BackendID  string    `json:"backend_id"`
	RemoteID   string    `json:"remote_id,omitempty"`
	Name       string    `json:"name"`
	Color      string    `json:"color,omitempty"`
	OrderIndex int       `json:"order_index"`
	IsFavorite bool      `json:"is_favorite"`
	Pending    PendingOp `json:"pending,omitempty"`
}

// Validate checks the fields required to persist a label.
func (l *Label) Validate() error {
	if l.BackendID == "" {
		return fmt.Errorf("backend_id is required")
	}
	if strings.ContainsAny(l.Name, " \t\n") {
		return fmt.Errorf("label name cannot contain whitespace")
	}
	if !l.Pending.IsValid() {
		return fmt.Errorf("invalid pending state %q", l.Pending)
	}
	return validateName(l.Name)
}

// TaskLabel associates a task with a label by local identifiers.
type TaskLabel struct {
	TaskID  string `json:"task_id"`
	LabelID string `json:"label_id"`
}

func validateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("name is required")
	}
	if len(name) > MaxNameLength {
		return fmt.Errorf("name must be %d characters or less (got %d)", MaxNameLength, len(name))
	}
	return nil
}
