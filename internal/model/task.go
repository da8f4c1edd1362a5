package model

import (
	"fmt"
	"time"
)

// DateLayout is the layout of Task.DueDate and Task.Deadline.
const DateLayout = "2006-01-02"

// Priorities follow the remote service: 1 is the default, 4 is the most urgent.
const (
	PriorityNormal = 1
	PriorityMedium = 2
	PriorityHigh   = 3
	PriorityUrgent = 4
)

// Task is a unit of work inside a project, optionally inside a section and
// optionally nested under a parent task.
type Task struct {
	ID          string  `json:"id"`
	BackendID   string  `json:"backend_id"`
	RemoteID    string  `json:"remote_id,omitempty"`
	ProjectID   string  `json:"project_id"`
	SectionID   *string `json:"section_id,omitempty"`
	ParentID    *string `json:"parent_id,omitempty"`
	Content     string  `json:"content"`
	Description string  `json:"description,omitempty"`
	Priority    int     `json:"priority"`
	OrderIndex  int     `json:"order_index"`

	DueDate     *string `json:"due_date,omitempty"`     // YYYY-MM-DD
	DueDatetime *string `json:"due_datetime,omitempty"` // RFC3339
	IsRecurring bool    `json:"is_recurring"`
	Deadline    *string `json:"deadline,omitempty"` // YYYY-MM-DD
	Duration    *string `json:"duration,omitempty"` // e.g. "30m"

	IsCompleted bool `json:"is_completed"`

	// Labels holds label names. It is filled from the task_labels join on
	// read and ignored on write; use the store's SetTaskLabels to change it.
	Labels []string `json:"labels,omitempty"`

	Pending PendingOp `json:"pending,omitempty"`
}

// Validate checks if the Task has valid field values.
func (t *Task) Validate() error {
	if t.BackendID == "" {
		return fmt.Errorf("backend_id is required")
	}
	if t.ProjectID == "" {
		return fmt.Errorf("project_id is required")
	}
	if t.Content == "" {
		return fmt.Errorf("content is required")
	}
	if t.Priority < PriorityNormal || t.Priority > PriorityUrgent {
		return fmt.Errorf("priority must be between %d and %d (got %d)", PriorityNormal, PriorityUrgent, t.Priority)
	}
	if t.DueDate != nil {
		if _, err := time.Parse(DateLayout, *t.DueDate); err != nil {
			return fmt.Errorf("invalid due_date %q: %w", *t.DueDate, err)
		}
	}
	if t.DueDatetime != nil {
		if _, err := time.Parse(time.RFC3339, *t.DueDatetime); err != nil {
			return fmt.Errorf("invalid due_datetime %q: %w", *t.DueDatetime, err)
		}
	}
	if t.Deadline != nil {
		if _, err := time.Parse(DateLayout, *t.Deadline); err != nil {
			return fmt.Errorf("invalid deadline %q: %w", *t.Deadline, err)
		}
	}
	if t.ParentID != nil && t.ID != "" && *t.ParentID == t.ID {
		return fmt.Errorf("task cannot be its own parent")
	}
	if !t.Pending.IsValid() {
		return fmt.Errorf("invalid pending state %q", t.Pending)
	}
	return nil
}

// SetDefaults fills optional fields left at their zero value.
func (t *Task) SetDefaults() {
	if t.Priority == 0 {
		t.Priority = PriorityNormal
	}
	if t.Labels == nil {
		t.Labels = []string{}
	}
}

// Due returns the due instant of the task in loc. Date-only due values are
// reported at midnight.
func (t *Task) Due(loc *time.Location) (time.Time, bool) {
	if t.DueDatetime != nil {
		if ts, err := time.Parse(time.RFC3339, *t.DueDatetime); err == nil {
			return ts.In(loc), true
		}
	}
	if t.DueDate != nil {
		if ts, err := time.ParseInLocation(DateLayout, *t.DueDate, loc); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}

// IsOverdue reports whether an open task was due before the day of now.
func (t *Task) IsOverdue(now time.Time) bool {
	if t.IsCompleted {
		return false
	}
	due, ok := t.Due(now.Location())
	if !ok {
		return false
	}
	return due.Before(StartOfDay(now))
}

// NextPriority cycles 1 -> 2 -> 3 -> 4 -> 1.
func NextPriority(p int) int {
	if p < PriorityNormal || p >= PriorityUrgent {
		return PriorityNormal
	}
	return p + 1
}

// StartOfDay truncates ts to local midnight.
func StartOfDay(ts time.Time) time.Time {
	y, m, d := ts.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, ts.Location())
}

// FormatDate renders ts in the layout used for DueDate.
func FormatDate(ts time.Time) string {
	return ts.Format(DateLayout)
}
