package ui

import (
	"strings"

	"github.com/terminalist/terminalist/internal/dates"
	"github.com/terminalist/terminalist/internal/model"
)

// Input is one key press, named the way bubbletea names keys ("j", "enter",
// "ctrl+c", "shift+down"). Prompts are edited by the renderer and arrive as
// a single KeySubmit input carrying the text.
type Input struct {
	Key  string
	Text string
}

// KeySubmit delivers the text of a prompt dialog.
const KeySubmit = "submit"

// Binding maps a key to an action given the current state. It may return
// nil.
type Binding func(s *Snapshot) Action

// KeyHelp describes a binding for the help overlay.
type KeyHelp struct {
	Keys        string
	Description string
}

// Keymap translates inputs into actions.
type Keymap struct {
	bindings map[string]Binding
	help     []KeyHelp
}

// NewKeymap returns an empty keymap.
func NewKeymap() *Keymap {
	return &Keymap{bindings: make(map[string]Binding)}
}

// Bind maps each key to b and records a help line.
func (k *Keymap) Bind(keys []string, description string, b Binding) {
	for _, key := range keys {
		k.bindings[key] = b
	}
	k.help = append(k.help, KeyHelp{Keys: strings.Join(keys, "/"), Description: description})
}

// Help lists the bindings in the order they were added.
func (k *Keymap) Help() []KeyHelp {
	return k.help
}

// Translate returns the action for in, or nil. Open dialogs take the keys
// they understand before the global bindings see them.
func (k *Keymap) Translate(in Input, s *Snapshot) Action {
	switch {
	case s.Dialog.IsPrompt():
		switch in.Key {
		case KeySubmit:
			return promptAction(s, strings.TrimSpace(in.Text))
		case "esc", "ctrl+c":
			return CloseDialog{}
		}
		return nil
	case s.Dialog == DialogConfirmDelete:
		switch in.Key {
		case "y", "enter":
			return confirmAction(s.DialogTarget)
		case "n", "esc", "q":
			return CloseDialog{}
		}
		return nil
	case s.Dialog == DialogHelp:
		switch in.Key {
		case "?", "h", "esc", "q":
			return ToggleHelp{}
		}
		return nil
	case s.Dialog == DialogLogs:
		switch in.Key {
		case "G", "esc", "q":
			return ToggleLogs{}
		}
		return nil
	}

	if s.ErrorMessage != "" || s.InfoMessage != "" {
		if in.Key == "esc" || in.Key == "enter" {
			return DismissMessage{}
		}
	}
	if b, ok := k.bindings[in.Key]; ok {
		return b(s)
	}
	return nil
}

func promptAction(s *Snapshot, text string) Action {
	if text == "" && s.Dialog != DialogSetDue {
		return CloseDialog{}
	}
	t := s.DialogTarget
	switch s.Dialog {
	case DialogCreateTask:
		return CreateTask{Content: text, ProjectID: t.ID}
	case DialogEditTask:
		return EditTask{ID: t.ID, Content: text}
	case DialogSetDue:
		return SetDue{ID: t.ID, Text: text}
	case DialogCreateProject:
		return CreateProject{Name: text, ParentID: t.ID}
	case DialogEditProject:
		return EditProject{ID: t.ID, Name: text}
	case DialogCreateLabel:
		return CreateLabel{Name: text}
	case DialogEditLabel:
		return EditLabel{ID: t.ID, Name: text}
	case DialogSearch:
		return Search{Query: text}
	}
	return CloseDialog{}
}

func confirmAction(t Target) Action {
	switch t.Kind {
	case model.KindTask:
		return DeleteTask{ID: t.ID}
	case model.KindProject:
		return DeleteProject{ID: t.ID}
	case model.KindLabel:
		return DeleteLabel{ID: t.ID}
	}
	return CloseDialog{}
}

// onTask wraps a binding that needs a selected task.
func onTask(f func(t *model.Task) Action) Binding {
	return func(s *Snapshot) Action {
		t := s.SelectedTask()
		if t == nil {
			return nil
		}
		return f(t)
	}
}

func moveSidebar(delta int) Binding {
	return func(s *Snapshot) Action {
		n := len(s.Sidebar)
		if n == 0 {
			return nil
		}
		i := s.SidebarIndex()
		if i < 0 {
			i = 0
			if delta < 0 {
				i = n - 1
			}
		} else {
			i = (i + delta + n) % n
		}
		return Navigate{View: s.Sidebar[i].View}
	}
}

func dueBinding(p dates.Preset) Binding {
	return onTask(func(t *model.Task) Action { return SetDue{ID: t.ID, Preset: p} })
}

// DefaultKeymap returns the standard bindings.
func DefaultKeymap() *Keymap {
	k := NewKeymap()
	k.Bind([]string{"j", "down"}, "next task", func(*Snapshot) Action { return CursorDown{} })
	k.Bind([]string{"k", "up"}, "previous task", func(*Snapshot) Action { return CursorUp{} })
	k.Bind([]string{"J", "shift+down"}, "next list", moveSidebar(1))
	k.Bind([]string{"K", "shift+up"}, "previous list", moveSidebar(-1))
	k.Bind([]string{"enter", " "}, "complete task", onTask(func(t *model.Task) Action {
		if t.IsCompleted {
			return RestoreTask{ID: t.ID}
		}
		return CompleteTask{ID: t.ID}
	}))
	k.Bind([]string{"a"}, "add task", func(s *Snapshot) Action {
		target := Target{Kind: model.KindProject}
		if s.View.Kind == ViewProject {
			target.ID = s.View.ID
			target.Name = s.ProjectName(s.View.ID)
		}
		return OpenDialog{Dialog: DialogCreateTask, Target: target}
	})
	k.Bind([]string{"e"}, "edit task", onTask(func(t *model.Task) Action {
		return OpenDialog{Dialog: DialogEditTask, Target: Target{Kind: model.KindTask, ID: t.ID, Name: t.Content}, Text: t.Content}
	}))
	k.Bind([]string{"d", "delete"}, "delete task", onTask(func(t *model.Task) Action {
		return OpenDialog{Dialog: DialogConfirmDelete, Target: Target{Kind: model.KindTask, ID: t.ID, Name: t.Content}}
	}))
	k.Bind([]string{"u"}, "undo delete or completion", func(s *Snapshot) Action {
		if !s.CanUndo {
			return nil
		}
		return RestoreTask{}
	})
	k.Bind([]string{"p"}, "cycle priority", onTask(func(t *model.Task) Action { return CyclePriority{ID: t.ID} }))
	k.Bind([]string{"t"}, "due today", dueBinding(dates.PresetToday))
	k.Bind([]string{"T"}, "due tomorrow", dueBinding(dates.PresetTomorrow))
	k.Bind([]string{"w"}, "due next week", dueBinding(dates.PresetNextWeek))
	k.Bind([]string{"W"}, "due this weekend", dueBinding(dates.PresetWeekend))
	k.Bind([]string{"s"}, "set due date", onTask(func(t *model.Task) Action {
		return OpenDialog{Dialog: DialogSetDue, Target: Target{Kind: model.KindTask, ID: t.ID, Name: t.Content}}
	}))
	k.Bind([]string{"A"}, "add project", func(*Snapshot) Action { return OpenDialog{Dialog: DialogCreateProject} })
	k.Bind([]string{"+"}, "add subproject", func(s *Snapshot) Action {
		if s.View.Kind != ViewProject {
			return nil
		}
		return OpenDialog{Dialog: DialogCreateProject, Target: Target{Kind: model.KindProject, ID: s.View.ID, Name: s.ViewTitle}}
	})
	k.Bind([]string{"@"}, "add label", func(*Snapshot) Action { return OpenDialog{Dialog: DialogCreateLabel} })
	k.Bind([]string{"D"}, "delete project or label", func(s *Snapshot) Action {
		switch s.View.Kind {
		case ViewProject:
			return OpenDialog{Dialog: DialogConfirmDelete, Target: Target{Kind: model.KindProject, ID: s.View.ID, Name: s.ViewTitle}}
		case ViewLabel:
			return OpenDialog{Dialog: DialogConfirmDelete, Target: Target{Kind: model.KindLabel, ID: s.View.ID, Name: s.ViewTitle}}
		}
		return nil
	})
	k.Bind([]string{"E"}, "rename project or label", func(s *Snapshot) Action {
		switch s.View.Kind {
		case ViewProject:
			return OpenDialog{Dialog: DialogEditProject, Target: Target{Kind: model.KindProject, ID: s.View.ID, Name: s.ViewTitle}, Text: s.ViewTitle}
		case ViewLabel:
			name := strings.TrimPrefix(s.ViewTitle, "@")
			return OpenDialog{Dialog: DialogEditLabel, Target: Target{Kind: model.KindLabel, ID: s.View.ID, Name: name}, Text: name}
		}
		return nil
	})
	k.Bind([]string{"/"}, "search", func(*Snapshot) Action { return OpenDialog{Dialog: DialogSearch} })
	k.Bind([]string{"r"}, "sync now", func(*Snapshot) Action { return StartSync{} })
	k.Bind([]string{"b"}, "next backend", func(s *Snapshot) Action {
		if len(s.Backends) < 2 {
			return nil
		}
		for i, b := range s.Backends {
			if b.ID == s.BackendID {
				return SwitchBackend{BackendID: s.Backends[(i+1)%len(s.Backends)].ID}
			}
		}
		return SwitchBackend{BackendID: s.Backends[0].ID}
	})
	k.Bind([]string{"?", "h"}, "help", func(*Snapshot) Action { return ToggleHelp{} })
	k.Bind([]string{"G"}, "logs", func(*Snapshot) Action { return ToggleLogs{} })
	k.Bind([]string{"q", "ctrl+c"}, "quit", func(*Snapshot) Action { return Quit{} })
	return k
}
