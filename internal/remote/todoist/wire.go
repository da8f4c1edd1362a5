package todoist

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/terminalist/terminalist/internal/remote"
)

type apiProject struct {
	ID             string  `json:"id"`
	Name           string  `json:"name"`
	Color          string  `json:"color"`
	ParentID       *string `json:"parent_id"`
	Order          int     `json:"order"`
	IsFavorite     bool    `json:"is_favorite"`
	IsInboxProject bool    `json:"is_inbox_project"`
}

func (p apiProject) record() remote.Project {
	return remote.Project{
		RemoteID:       p.ID,
		Name:           p.Name,
		Color:          p.Color,
		IsFavorite:     p.IsFavorite,
		IsInbox:        p.IsInboxProject,
		OrderIndex:     p.Order,
		ParentRemoteID: deref(p.ParentID),
	}
}

func projectBody(p remote.Project, create bool) map[string]any {
	body := map[string]any{"name": p.Name, "is_favorite": p.IsFavorite}
	if p.Color != "" {
		body["color"] = p.Color
	}
	if create && p.ParentRemoteID != "" {
		body["parent_id"] = p.ParentRemoteID
	}
	return body
}

type apiSection struct {
	ID        string `json:"id"`
	ProjectID string `json:"project_id"`
	Name      string `json:"name"`
	Order     int    `json:"order"`
}

func (s apiSection) record() remote.Section {
	return remote.Section{RemoteID: s.ID, Name: s.Name, ProjectRemoteID: s.ProjectID, OrderIndex: s.Order}
}

type apiLabel struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Color      string `json:"color"`
	Order      int    `json:"order"`
	IsFavorite bool   `json:"is_favorite"`
}

func (l apiLabel) record() remote.Label {
	return remote.Label{RemoteID: l.ID, Name: l.Name, Color: l.Color, OrderIndex: l.Order, IsFavorite: l.IsFavorite}
}

func labelBody(l remote.Label) map[string]any {
	body := map[string]any{"name": l.Name, "order": l.OrderIndex, "is_favorite": l.IsFavorite}
	if l.Color != "" {
		body["color"] = l.Color
	}
	return body
}

type apiDue struct {
	Date        string  `json:"date"`
	Datetime    *string `json:"datetime"`
	IsRecurring bool    `json:"is_recurring"`
}

type apiDeadline struct {
	Date string `json:"date"`
}

type apiDuration struct {
	Amount int    `json:"amount"`
	Unit   string `json:"unit"`
}

type apiTask struct {
	ID          string       `json:"id"`
	ProjectID   string       `json:"project_id"`
	SectionID   *string      `json:"section_id"`
	ParentID    *string      `json:"parent_id"`
	Content     string       `json:"content"`
	Description string       `json:"description"`
	IsCompleted bool         `json:"is_completed"`
	Labels      []string     `json:"labels"`
	Order       int          `json:"order"`
	Priority    int          `json:"priority"`
	Due         *apiDue      `json:"due"`
	Deadline    *apiDeadline `json:"deadline"`
	Duration    *apiDuration `json:"duration"`
}

func (t apiTask) record() remote.Task {
	rec := remote.Task{
		RemoteID:        t.ID,
		ProjectRemoteID: t.ProjectID,
		SectionRemoteID: deref(t.SectionID),
		ParentRemoteID:  deref(t.ParentID),
		Content:         t.Content,
		Description:     t.Description,
		Priority:        t.Priority,
		OrderIndex:      t.Order,
		IsCompleted:     t.IsCompleted,
		Labels:          t.Labels,
	}
	if rec.Labels == nil {
		rec.Labels = []string{}
	}
	if t.Due != nil {
		if t.Due.Date != "" {
			date := t.Due.Date
			rec.DueDate = &date
		}
		rec.DueDatetime = t.Due.Datetime
		rec.IsRecurring = t.Due.IsRecurring
	}
	if t.Deadline != nil && t.Deadline.Date != "" {
		date := t.Deadline.Date
		rec.Deadline = &date
	}
	if t.Duration != nil && t.Duration.Amount > 0 {
		d := formatDuration(t.Duration.Amount, t.Duration.Unit)
		rec.Duration = &d
	}
	return rec
}

// taskBody builds the fields shared by create and update.
func taskBody(t remote.Task) map[string]any {
	body := map[string]any{
		"content":     t.Content,
		"description": t.Description,
		"priority":    t.Priority,
		"labels":      t.Labels,
	}
	if t.Labels == nil {
		body["labels"] = []string{}
	}
	switch {
	case t.DueDatetime != nil:
		body["due_datetime"] = *t.DueDatetime
	case t.DueDate != nil:
		body["due_date"] = *t.DueDate
	default:
		body["due_string"] = "no date"
	}
	if t.Deadline != nil {
		body["deadline_date"] = *t.Deadline
	}
	if t.Duration != nil {
		if amount, unit, err := parseDuration(*t.Duration); err == nil {
			body["duration"] = amount
			body["duration_unit"] = unit
		}
	}
	return body
}

// formatDuration renders a Todoist duration as "30m" or "2d".
func formatDuration(amount int, unit string) string {
	if unit == "day" {
		return strconv.Itoa(amount) + "d"
	}
	return strconv.Itoa(amount) + "m"
}

// parseDuration is the inverse of formatDuration.
func parseDuration(s string) (int, string, error) {
	unit := "minute"
	num := s
	switch {
	case strings.HasSuffix(s, "d"):
		unit, num = "day", strings.TrimSuffix(s, "d")
	case strings.HasSuffix(s, "m"):
		num = strings.TrimSuffix(s, "m")
	}
	amount, err := strconv.Atoi(num)
	if err != nil || amount <= 0 {
		return 0, "", fmt.Errorf("invalid duration %q", s)
	}
	return amount, unit, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
