package ui

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/terminalist/terminalist/internal/dates"
	"github.com/terminalist/terminalist/internal/model"
)

func snapshotWithTask() *Snapshot {
	return &Snapshot{
		View:  View{Kind: ViewToday},
		Tasks: []model.Task{{ID: "t1", Content: "Water plants"}},
	}
}

func TestKeymap_Global(t *testing.T) {
	k := DefaultKeymap()
	s := snapshotWithTask()

	assert.Equal(t, CompleteTask{ID: "t1"}, k.Translate(Input{Key: "enter"}, s))
	assert.Equal(t, CyclePriority{ID: "t1"}, k.Translate(Input{Key: "p"}, s))
	assert.Equal(t, SetDue{ID: "t1", Preset: dates.PresetWeekend}, k.Translate(Input{Key: "W"}, s))
	assert.Equal(t, Quit{}, k.Translate(Input{Key: "ctrl+c"}, s))
	assert.Nil(t, k.Translate(Input{Key: "x"}, s))
	assert.Nil(t, k.Translate(Input{Key: "u"}, s), "nothing to undo")

	s.Tasks[0].IsCompleted = true
	assert.Equal(t, RestoreTask{ID: "t1"}, k.Translate(Input{Key: "enter"}, s))

	empty := &Snapshot{View: View{Kind: ViewToday}}
	assert.Nil(t, k.Translate(Input{Key: "d"}, empty), "task keys need a selection")
}

func TestKeymap_Dialogs(t *testing.T) {
	k := DefaultKeymap()

	s := snapshotWithTask()
	s.Dialog = DialogConfirmDelete
	s.DialogTarget = Target{Kind: model.KindTask, ID: "t1"}
	assert.Equal(t, DeleteTask{ID: "t1"}, k.Translate(Input{Key: "y"}, s))
	assert.Equal(t, CloseDialog{}, k.Translate(Input{Key: "n"}, s))
	assert.Nil(t, k.Translate(Input{Key: "p"}, s))

	s.Dialog = DialogCreateTask
	s.DialogTarget = Target{Kind: model.KindProject, ID: "p1"}
	assert.Equal(t, CreateTask{Content: "Buy milk", ProjectID: "p1"}, k.Translate(Input{Key: KeySubmit, Text: " Buy milk "}, s))
	assert.Equal(t, CloseDialog{}, k.Translate(Input{Key: KeySubmit, Text: "  "}, s), "blank input cancels")
	assert.Equal(t, CloseDialog{}, k.Translate(Input{Key: "esc"}, s))

	s.Dialog = DialogSetDue
	s.DialogTarget = Target{Kind: model.KindTask, ID: "t1"}
	assert.Equal(t, SetDue{ID: "t1"}, k.Translate(Input{Key: KeySubmit}, s), "blank due clears the date")

	s.Dialog = DialogHelp
	assert.Equal(t, ToggleHelp{}, k.Translate(Input{Key: "esc"}, s))
	assert.Nil(t, k.Translate(Input{Key: "enter"}, s))
}

func TestKeymap_ProjectAndLabelEdits(t *testing.T) {
	k := DefaultKeymap()

	project := &Snapshot{View: View{Kind: ViewProject, ID: "p1"}, ViewTitle: "Work"}
	assert.Equal(t, OpenDialog{Dialog: DialogEditProject, Target: Target{Kind: model.KindProject, ID: "p1", Name: "Work"}, Text: "Work"},
		k.Translate(Input{Key: "E"}, project))
	assert.Equal(t, OpenDialog{Dialog: DialogCreateProject, Target: Target{Kind: model.KindProject, ID: "p1", Name: "Work"}},
		k.Translate(Input{Key: "+"}, project))

	label := &Snapshot{View: View{Kind: ViewLabel, ID: "l1"}, ViewTitle: "@errand"}
	assert.Equal(t, OpenDialog{Dialog: DialogEditLabel, Target: Target{Kind: model.KindLabel, ID: "l1", Name: "errand"}, Text: "errand"},
		k.Translate(Input{Key: "E"}, label))
	assert.Nil(t, k.Translate(Input{Key: "+"}, label), "subprojects need a project view")
	assert.Nil(t, k.Translate(Input{Key: "E"}, snapshotWithTask()))

	project.Dialog = DialogEditProject
	project.DialogTarget = Target{Kind: model.KindProject, ID: "p1"}
	assert.Equal(t, EditProject{ID: "p1", Name: "Office"}, k.Translate(Input{Key: KeySubmit, Text: "Office"}, project))

	project.Dialog = DialogCreateProject
	assert.Equal(t, CreateProject{Name: "Q3", ParentID: "p1"}, k.Translate(Input{Key: KeySubmit, Text: "Q3"}, project))
	project.DialogTarget = Target{}
	assert.Equal(t, CreateProject{Name: "Q3"}, k.Translate(Input{Key: KeySubmit, Text: "Q3"}, project))

	label.Dialog = DialogEditLabel
	label.DialogTarget = Target{Kind: model.KindLabel, ID: "l1"}
	assert.Equal(t, EditLabel{ID: "l1", Name: "chore"}, k.Translate(Input{Key: KeySubmit, Text: " chore "}, label))
}

func TestKeymap_MessageDismiss(t *testing.T) {
	k := DefaultKeymap()
	s := snapshotWithTask()
	s.ErrorMessage = "boom"
	assert.Equal(t, DismissMessage{}, k.Translate(Input{Key: "enter"}, s))
}

func TestKeymap_SidebarWraps(t *testing.T) {
	k := DefaultKeymap()
	st := newState(View{Kind: ViewToday})
	st.projects = []*model.Project{{ID: "p1", Name: "Inbox"}}
	s := st.Snapshot()

	assert.Equal(t, Navigate{View: View{Kind: ViewTomorrow}}, k.Translate(Input{Key: "J"}, s))
	assert.Equal(t, Navigate{View: View{Kind: ViewProject, ID: "p1"}}, k.Translate(Input{Key: "K"}, s))
}

func TestKeymap_Help(t *testing.T) {
	help := DefaultKeymap().Help()
	assert.NotEmpty(t, help)
	assert.Equal(t, "j/down", help[0].Keys)
}
