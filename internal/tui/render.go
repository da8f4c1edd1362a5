package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/terminalist/terminalist/internal/dates"
	"github.com/terminalist/terminalist/internal/model"
	"github.com/terminalist/terminalist/internal/ui"
)

const logLines = 15

func (m *Model) render() string {
	s := m.snap
	if s == nil {
		return ""
	}
	var b strings.Builder
	b.WriteString(m.renderHeader(s))
	b.WriteString("\n\n")

	body := lipgloss.JoinHorizontal(lipgloss.Top, m.renderSidebar(s), " ", m.renderTasks(s))
	b.WriteString(body)
	b.WriteString("\n")

	if d := m.renderDialog(s); d != "" {
		b.WriteString("\n")
		b.WriteString(d)
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(m.renderStatus(s))
	return b.String()
}

func (m *Model) renderHeader(s *ui.Snapshot) string {
	parts := []string{m.styles.header.Render("terminalist")}
	for _, bk := range s.Backends {
		if bk.ID == s.BackendID {
			parts = append(parts, bk.Name)
		}
	}
	switch {
	case s.Syncing:
		parts = append(parts, m.spinner.View()+" syncing")
	case !s.LastSync.IsZero():
		parts = append(parts, "synced "+s.LastSync.Local().Format(m.opts.TimeFormat))
	}
	return strings.Join(parts, m.styles.separator)
}

func (m *Model) renderSidebar(s *ui.Snapshot) string {
	current := s.SidebarIndex()
	lines := make([]string, 0, len(s.Sidebar))
	for i, item := range s.Sidebar {
		text := truncate(strings.Repeat("  ", item.Depth)+item.Title, m.opts.SidebarWidth-1)
		if i == current {
			text = m.styles.active.Render(text)
		}
		lines = append(lines, text)
	}
	return m.styles.sidebar.Render(strings.Join(lines, "\n"))
}

func (m *Model) renderTasks(s *ui.Snapshot) string {
	title := s.ViewTitle
	if s.Loading && len(s.Tasks) == 0 {
		title += " " + m.spinner.View()
	}
	lines := []string{m.styles.title.Render(title), ""}
	if len(s.Tasks) == 0 && !s.Loading {
		lines = append(lines, m.styles.muted.Render("Nothing here."))
	}

	now := m.now()
	width := m.width - m.opts.SidebarWidth - 4
	for i := range s.Tasks {
		t := &s.Tasks[i]
		line := m.taskLine(s, t, now, width)
		if i == s.Cursor {
			line = m.styles.cursor.Render(line)
		}
		lines = append(lines, line)
		if m.opts.ShowDescriptions && t.Description != "" {
			lines = append(lines, "      "+m.styles.muted.Render(truncate(firstLine(t.Description), width-6)))
		}
	}
	return strings.Join(lines, "\n")
}

func (m *Model) taskLine(s *ui.Snapshot, t *model.Task, now time.Time, width int) string {
	box := "[ ]"
	switch {
	case s.Completing[t.ID], s.Deleting[t.ID]:
		box = "[~]"
	case t.IsCompleted:
		box = "[x]"
	}

	content := truncate(t.Content, width-4)
	if t.IsCompleted {
		content = m.styles.done.Render(content)
	} else if st, ok := m.styles.priority[t.Priority]; ok {
		content = st.Render(content)
	}
	parts := []string{box, content}

	if due := dates.HumanizeTask(t, now); due != "" {
		if t.IsOverdue(now) {
			due = m.styles.overdue.Render(due)
		} else {
			due = m.styles.muted.Render(due)
		}
		parts = append(parts, due)
	}
	if t.IsRecurring {
		parts = append(parts, m.styles.muted.Render("↻"))
	}
	if m.opts.ShowDurations && t.Duration != nil {
		parts = append(parts, m.styles.muted.Render(*t.Duration))
	}
	if m.opts.ShowLabels {
		for _, l := range t.Labels {
			parts = append(parts, m.styles.label.Render("@"+l))
		}
	}
	if t.Pending != model.PendingNone {
		parts = append(parts, m.styles.muted.Render("*"))
	}
	return strings.Join(parts, " ")
}

func (m *Model) renderDialog(s *ui.Snapshot) string {
	var content string
	switch s.Dialog {
	case ui.DialogNone:
		return ""
	case ui.DialogHelp:
		var b strings.Builder
		b.WriteString(m.styles.title.Render("Keys"))
		b.WriteString("\n")
		for _, h := range m.loop.Keymap().Help() {
			fmt.Fprintf(&b, "%-14s %s\n", h.Keys, h.Description)
		}
		content = strings.TrimSuffix(b.String(), "\n")
	case ui.DialogLogs:
		lines := s.Logs
		if len(lines) > logLines {
			lines = lines[len(lines)-logLines:]
		}
		if len(lines) == 0 {
			lines = []string{"(no log lines)"}
		}
		content = m.styles.title.Render("Logs") + "\n" + strings.Join(lines, "\n")
	case ui.DialogConfirmDelete:
		content = fmt.Sprintf("Delete %s %q? (y/n)", s.DialogTarget.Kind, s.DialogTarget.Name)
	default:
		content = m.styles.title.Render(dialogTitle(s)) + "\n" + m.input.View()
	}
	return m.styles.dialog.Render(content)
}

func dialogTitle(s *ui.Snapshot) string {
	switch s.Dialog {
	case ui.DialogCreateTask:
		if s.DialogTarget.Name != "" {
			return "New task in " + s.DialogTarget.Name
		}
		return "New task"
	case ui.DialogEditTask:
		return "Edit task"
	case ui.DialogSetDue:
		return "Due date for " + truncate(s.DialogTarget.Name, 40)
	case ui.DialogCreateProject:
		if s.DialogTarget.Name != "" {
			return "New project under " + s.DialogTarget.Name
		}
		return "New project"
	case ui.DialogEditProject:
		return "Rename project " + s.DialogTarget.Name
	case ui.DialogCreateLabel:
		return "New label"
	case ui.DialogEditLabel:
		return "Rename label " + s.DialogTarget.Name
	case ui.DialogSearch:
		return "Search"
	}
	return ""
}

func (m *Model) renderStatus(s *ui.Snapshot) string {
	switch {
	case s.ErrorMessage != "":
		return m.styles.errorMsg.Render("Error: " + s.ErrorMessage)
	case s.InfoMessage != "":
		return m.styles.infoMsg.Render(s.InfoMessage)
	}
	parts := []string{
		fmt.Sprintf("%d open", s.Counts.Open),
		fmt.Sprintf("%d overdue", s.Counts.Overdue),
	}
	if s.Counts.Pending > 0 {
		parts = append(parts, fmt.Sprintf("%d unsynced", s.Counts.Pending))
	}
	if s.LastSyncSummary != "" {
		parts = append(parts, s.LastSyncSummary)
	}
	parts = append(parts, "? for help")
	return m.styles.muted.Render(strings.Join(parts, m.styles.separator))
}

func truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n == 1 {
		return "…"
	}
	return string(r[:n-1]) + "…"
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
