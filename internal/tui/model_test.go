package tui

import (
	"context"
	"io"
	"log"
	"path/filepath"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terminalist/terminalist/internal/model"
	"github.com/terminalist/terminalist/internal/orchestrator"
	"github.com/terminalist/terminalist/internal/remote"
	"github.com/terminalist/terminalist/internal/remote/fake"
	"github.com/terminalist/terminalist/internal/store"
	"github.com/terminalist/terminalist/internal/syncer"
	"github.com/terminalist/terminalist/internal/ui"
)

func newModel(t *testing.T) *Model {
	t.Helper()
	ctx := context.Background()
	db, err := store.Open(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.InitSchema())

	b, err := db.CreateBackend(ctx, &model.Backend{Type: fake.BackendType, Name: "work", Enabled: true})
	require.NoError(t, err)

	svc := fake.New()
	today := model.FormatDate(model.StartOfDay(time.Now()))
	svc.AddProject(remote.Project{RemoteID: "P1", Name: "Inbox", IsInbox: true})
	svc.AddTask(remote.Task{ProjectRemoteID: "P1", Content: "Water plants", DueDate: &today, Labels: []string{"home"}})
	svc.AddLabel(remote.Label{Name: "home"})

	quiet := log.New(io.Discard, "", 0)
	engine := syncer.New(db, remote.StaticResolver{b.ID: svc}, quiet)
	_, err = engine.SyncAll(ctx, b.ID)
	require.NoError(t, err)

	orch := orchestrator.New(quiet)
	t.Cleanup(func() { _ = orch.Shutdown(context.Background()) })

	opts := ui.DefaultOptions()
	opts.Engine = engine
	opts.Orchestrator = orch
	opts.Logger = quiet
	loop := ui.NewLoop(opts)

	tuiOpts := DefaultOptions()
	tuiOpts.Colors = false
	tuiOpts.Output = io.Discard
	m := New(loop, tuiOpts)
	m.Init()
	return m
}

// waitFor ticks the model until its frame contains want.
func waitFor(t *testing.T, m *Model, want string) string {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		m.Update(tickMsg(time.Now()))
		if v := m.View(); strings.Contains(v, want) {
			return v
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("frame never contained %q:\n%s", want, m.View())
	return ""
}

func key(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestModel_RendersTodayView(t *testing.T) {
	m := newModel(t)
	frame := waitFor(t, m, "Water plants")

	assert.Contains(t, frame, "terminalist · work")
	assert.Contains(t, frame, "Today")
	assert.Contains(t, frame, "[ ] Water plants today @home")
	assert.Contains(t, frame, "1 open")
	assert.NotContains(t, frame, "\x1b[", "colors off renders plain text")
}

func TestModel_PromptTyping(t *testing.T) {
	m := newModel(t)
	waitFor(t, m, "Water plants")

	m.Update(key("/"))
	waitFor(t, m, "Search")
	require.Equal(t, ui.DialogSearch, m.prompt)

	// Typed keys go to the text input, not to the keymap.
	m.Update(key("q"))
	assert.False(t, m.snap.Quit)
	m.Update(key("uux"))
	assert.Equal(t, "quux", m.input.Value())

	m.Update(key("enter"))
	waitFor(t, m, "Search: quux")
	waitFor(t, m, "Nothing here.")
}

func TestModel_QuitReturnsQuitCmd(t *testing.T) {
	m := newModel(t)
	waitFor(t, m, "Water plants")

	_, cmd := m.Update(key("q"))
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}

func TestModel_HelpOverlay(t *testing.T) {
	m := newModel(t)
	waitFor(t, m, "Water plants")

	m.Update(key("?"))
	frame := waitFor(t, m, "Keys")
	assert.Contains(t, frame, "cycle priority")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 3))
	assert.Equal(t, "ab…", truncate("abcd", 3))
	assert.Equal(t, "", truncate("abcd", 0))
}
