package tui

import (
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/terminalist/terminalist/internal/model"
)

type styles struct {
	header    lipgloss.Style
	title     lipgloss.Style
	sidebar   lipgloss.Style
	active    lipgloss.Style
	cursor    lipgloss.Style
	done      lipgloss.Style
	muted     lipgloss.Style
	overdue   lipgloss.Style
	label     lipgloss.Style
	errorMsg  lipgloss.Style
	infoMsg   lipgloss.Style
	dialog    lipgloss.Style
	priority  map[int]lipgloss.Style
	separator string
}

// newStyles builds the styles on a renderer for w. With colors off the
// renderer is forced to the ASCII profile, so no escape codes are emitted.
func newStyles(w io.Writer, colors bool, sidebarWidth int) styles {
	r := lipgloss.NewRenderer(w)
	if !colors {
		r.SetColorProfile(termenv.Ascii)
	}
	border := lipgloss.NormalBorder()
	return styles{
		header:   r.NewStyle().Bold(true).Foreground(lipgloss.Color("#E44332")),
		title:    r.NewStyle().Bold(true).Underline(true),
		sidebar:  r.NewStyle().Width(sidebarWidth).PaddingRight(1).BorderStyle(border).BorderRight(true),
		active:   r.NewStyle().Bold(true).Foreground(lipgloss.Color("#E44332")),
		cursor:   r.NewStyle().Reverse(true),
		done:     r.NewStyle().Strikethrough(true).Foreground(lipgloss.Color("241")),
		muted:    r.NewStyle().Foreground(lipgloss.Color("241")),
		overdue:  r.NewStyle().Foreground(lipgloss.Color("#D1453B")),
		label:    r.NewStyle().Foreground(lipgloss.Color("#B8A8D9")),
		errorMsg: r.NewStyle().Bold(true).Foreground(lipgloss.Color("#FF5F5F")),
		infoMsg:  r.NewStyle().Foreground(lipgloss.Color("#E5C07B")),
		dialog:   r.NewStyle().BorderStyle(lipgloss.RoundedBorder()).Padding(0, 1),
		priority: map[int]lipgloss.Style{
			model.PriorityUrgent: r.NewStyle().Foreground(lipgloss.Color("#D1453B")).Bold(true),
			model.PriorityHigh:   r.NewStyle().Foreground(lipgloss.Color("#EB8909")),
			model.PriorityMedium: r.NewStyle().Foreground(lipgloss.Color("#246FE0")),
		},
		separator: " · ",
	}
}
