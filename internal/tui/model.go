// Package tui renders the ui.Loop in a terminal with bubbletea.
//
// The Model owns no task state. Key messages become ui.Inputs, a tick steps
// the loop, and the frame is rebuilt only when the loop asks for a render.
package tui

import (
	"io"
	"os"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/terminalist/terminalist/internal/ui"
)

// Options configures the renderer.
type Options struct {
	SidebarWidth     int
	Colors           bool
	ShowDescriptions bool
	ShowLabels       bool
	ShowDurations    bool
	TimeFormat       string
	TickInterval     time.Duration
	// Output decides the color profile. Nil means stdout.
	Output io.Writer
}

// DefaultOptions returns the options of an unconfigured client.
func DefaultOptions() Options {
	return Options{
		SidebarWidth:     24,
		Colors:           true,
		ShowDescriptions: true,
		ShowLabels:       true,
		ShowDurations:    true,
		TimeFormat:       "15:04",
		TickInterval:     100 * time.Millisecond,
	}
}

type tickMsg time.Time

// Model is the bubbletea model.
type Model struct {
	loop    *ui.Loop
	opts    Options
	styles  styles
	spinner spinner.Model
	input   textinput.Model
	// prompt is the dialog the text input was prepared for.
	prompt ui.Dialog

	snap   *ui.Snapshot
	frame  string
	width  int
	height int
	now    func() time.Time
}

// New wraps loop. The loop is started by Init.
func New(loop *ui.Loop, opts Options) *Model {
	if opts.TickInterval <= 0 {
		opts.TickInterval = 100 * time.Millisecond
	}
	if opts.SidebarWidth <= 0 {
		opts.SidebarWidth = 24
	}
	if opts.TimeFormat == "" {
		opts.TimeFormat = "15:04"
	}
	out := opts.Output
	if out == nil {
		out = os.Stdout
	}

	s := spinner.New()
	s.Spinner = spinner.Dot

	in := textinput.New()
	in.CharLimit = 500
	in.Width = 60

	m := &Model{
		loop:    loop,
		opts:    opts,
		styles:  newStyles(out, opts.Colors, opts.SidebarWidth),
		spinner: s,
		input:   in,
		width:   100,
		height:  30,
		now:     time.Now,
	}
	return m
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	m.loop.Start(m.now())
	m.refresh()
	return tea.Batch(m.spinner.Tick, m.tick())
}

func (m *Model) tick() tea.Cmd {
	return tea.Tick(m.opts.TickInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.frame = m.render()
		return m, nil

	case tea.KeyMsg:
		in, forward := m.translateKey(msg)
		if forward {
			var cmd tea.Cmd
			m.input, cmd = m.input.Update(msg)
			m.frame = m.render()
			return m, cmd
		}
		return m, m.step([]ui.Input{in})

	case tickMsg:
		if cmd := m.step(nil); cmd != nil {
			return m, cmd
		}
		return m, m.tick()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		if m.snap != nil && (m.snap.Syncing || m.snap.Loading) {
			m.frame = m.render()
		}
		return m, cmd
	}
	return m, nil
}

// translateKey maps a key message to a loop input. While a prompt is open,
// editing keys are forwarded to the text input instead.
func (m *Model) translateKey(msg tea.KeyMsg) (ui.Input, bool) {
	key := msg.String()
	if m.snap != nil && m.snap.Dialog.IsPrompt() {
		switch key {
		case "enter":
			return ui.Input{Key: ui.KeySubmit, Text: m.input.Value()}, false
		case "esc", "ctrl+c":
			return ui.Input{Key: key}, false
		}
		return ui.Input{}, true
	}
	return ui.Input{Key: key}, false
}

func (m *Model) step(inputs []ui.Input) tea.Cmd {
	if m.loop.Step(inputs, m.now()) {
		m.refresh()
	}
	if m.loop.Done() {
		return tea.Quit
	}
	return nil
}

func (m *Model) refresh() {
	m.snap = m.loop.Snapshot()
	if m.snap.Dialog != m.prompt {
		m.prompt = m.snap.Dialog
		if m.prompt.IsPrompt() {
			m.input.Reset()
			m.input.SetValue(m.snap.DialogText)
			m.input.Placeholder = placeholder(m.prompt)
			m.input.CursorEnd()
			m.input.Focus()
		} else {
			m.input.Blur()
		}
	}
	m.frame = m.render()
}

// View implements tea.Model.
func (m *Model) View() string {
	return m.frame
}

// Run starts the terminal program and blocks until the user quits.
func Run(loop *ui.Loop, opts Options, mouse bool) error {
	teaOpts := []tea.ProgramOption{tea.WithAltScreen()}
	if mouse {
		teaOpts = append(teaOpts, tea.WithMouseCellMotion())
	}
	_, err := tea.NewProgram(New(loop, opts), teaOpts...).Run()
	return err
}

func placeholder(d ui.Dialog) string {
	switch d {
	case ui.DialogCreateTask:
		return "Task name"
	case ui.DialogEditTask:
		return "New task name"
	case ui.DialogSetDue:
		return "e.g. tomorrow, next friday, 2025-03-01 (empty clears)"
	case ui.DialogCreateProject, ui.DialogEditProject:
		return "Project name"
	case ui.DialogCreateLabel, ui.DialogEditLabel:
		return "Label name"
	case ui.DialogSearch:
		return "Search tasks"
	}
	return ""
}
