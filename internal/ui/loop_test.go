package ui

import (
	"context"
	"errors"
	"io"
	"log"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terminalist/terminalist/internal/model"
	"github.com/terminalist/terminalist/internal/orchestrator"
	"github.com/terminalist/terminalist/internal/remote"
	"github.com/terminalist/terminalist/internal/remote/fake"
	"github.com/terminalist/terminalist/internal/store"
	"github.com/terminalist/terminalist/internal/syncer"
)

type recorder struct {
	mu      sync.Mutex
	started []string
	synced  []string
	changes []string
}

func (r *recorder) SyncStarted(backendID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started = append(r.started, backendID)
}

func (r *recorder) SyncFinished(backendID string, _ *syncer.Report, _ error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.synced = append(r.synced, backendID)
}

func (r *recorder) TaskChanged(op string, _ *model.Task) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changes = append(r.changes, op)
}

type harness struct {
	db       *store.DB
	engine   *syncer.Engine
	orch     *orchestrator.Orchestrator
	svc      *fake.Service
	backend  *model.Backend
	loop     *Loop
	notifier *recorder
	today    string
}

// newHarness seeds an inbox with one task due today and pulls it into the
// store before the loop starts.
func newHarness(t *testing.T, opts Options) *harness {
	t.Helper()
	ctx := context.Background()
	db, err := store.Open(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.InitSchema())

	b, err := db.CreateBackend(ctx, &model.Backend{Type: fake.BackendType, Name: "test", Enabled: true})
	require.NoError(t, err)

	svc := fake.New()
	quiet := log.New(io.Discard, "", 0)
	engine := syncer.New(db, remote.StaticResolver{b.ID: svc}, quiet)
	orch := orchestrator.New(quiet)
	t.Cleanup(func() { _ = orch.Shutdown(context.Background()) })

	today := model.FormatDate(model.StartOfDay(time.Now()))
	svc.AddProject(remote.Project{RemoteID: "P1", Name: "Inbox", IsInbox: true})
	svc.AddTask(remote.Task{RemoteID: "T1", ProjectRemoteID: "P1", Content: "Water plants", DueDate: &today})
	report, err := engine.SyncAll(ctx, b.ID)
	require.NoError(t, err)
	require.NoError(t, report.Err())

	rec := &recorder{}
	opts.Engine = engine
	opts.Orchestrator = orch
	opts.Logger = quiet
	opts.Notifier = rec
	loop := NewLoop(opts)
	loop.Start(time.Now())

	h := &harness{db: db, engine: engine, orch: orch, svc: svc, backend: b, loop: loop, notifier: rec, today: today}
	h.settle(t)
	return h
}

// settle steps the loop until no task is in flight.
func (h *harness) settle(t *testing.T) *Snapshot {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		h.loop.Step(nil, time.Now())
		if h.orch.InFlight() == 0 {
			return h.loop.Snapshot()
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("loop did not settle")
	return nil
}

func (h *harness) press(t *testing.T, keys ...string) *Snapshot {
	t.Helper()
	for _, k := range keys {
		h.loop.Step([]Input{{Key: k}}, time.Now())
	}
	return h.settle(t)
}

func (h *harness) submit(t *testing.T, text string) *Snapshot {
	t.Helper()
	h.loop.Step([]Input{{Key: KeySubmit, Text: text}}, time.Now())
	return h.settle(t)
}

func TestLoop_StartLoadsDefaultView(t *testing.T) {
	h := newHarness(t, DefaultOptions())
	snap := h.loop.Snapshot()

	assert.Equal(t, h.backend.ID, snap.BackendID, "first enabled backend is picked")
	assert.Equal(t, "Today", snap.ViewTitle)
	require.Len(t, snap.Tasks, 1)
	assert.Equal(t, "Water plants", snap.Tasks[0].Content)
	assert.False(t, snap.Loading)
	assert.False(t, snap.LastSync.IsZero())
	assert.Equal(t, 1, snap.Counts.Open)
}

func TestLoop_CompleteAndUndo(t *testing.T) {
	h := newHarness(t, DefaultOptions())

	snap := h.press(t, "enter")
	assert.Empty(t, snap.Tasks, "completed tasks leave Today")
	assert.True(t, snap.CanUndo)
	assert.Empty(t, snap.Completing)
	assert.Contains(t, h.notifier.changes, "complete task")

	snap = h.press(t, "u")
	require.Len(t, snap.Tasks, 1)
	assert.False(t, snap.Tasks[0].IsCompleted)
	assert.False(t, snap.CanUndo)
}

func TestLoop_CreateTaskInTodayView(t *testing.T) {
	h := newHarness(t, DefaultOptions())

	snap := h.press(t, "a")
	require.Equal(t, DialogCreateTask, snap.Dialog)

	snap = h.submit(t, "Buy milk")
	assert.Equal(t, DialogNone, snap.Dialog)
	require.Len(t, snap.Tasks, 2)

	var created *model.Task
	for i := range snap.Tasks {
		if snap.Tasks[i].Content == "Buy milk" {
			created = &snap.Tasks[i]
		}
	}
	require.NotNil(t, created)
	require.NotNil(t, created.DueDate)
	assert.Equal(t, h.today, *created.DueDate)
	assert.Equal(t, model.PendingCreate, created.Pending)

	snap = h.press(t, "r")
	assert.NotEmpty(t, snap.LastSyncSummary)
	assert.Equal(t, 2, h.svc.TaskCount(), "created task was pushed")
	assert.Equal(t, []string{h.backend.ID}, h.notifier.started)
	assert.Equal(t, []string{h.backend.ID}, h.notifier.synced)
}

func TestLoop_PromptKeepsGlobalKeys(t *testing.T) {
	h := newHarness(t, DefaultOptions())

	h.press(t, "/")
	snap := h.press(t, "q")
	assert.False(t, snap.Quit, "q types into the prompt")
	assert.Equal(t, DialogSearch, snap.Dialog)

	snap = h.submit(t, "plants")
	assert.Equal(t, ViewSearch, snap.View.Kind)
	assert.Equal(t, "Search: plants", snap.ViewTitle)
	require.Len(t, snap.Tasks, 1)
}

func TestLoop_DueDatePresetMovesTask(t *testing.T) {
	h := newHarness(t, DefaultOptions())

	snap := h.press(t, "T")
	assert.Empty(t, snap.Tasks)

	h.loop.apply(Navigate{View: View{Kind: ViewTomorrow}})
	snap = h.settle(t)
	require.Len(t, snap.Tasks, 1)
	assert.Equal(t, "Water plants", snap.Tasks[0].Content)
}

func TestLoop_OfflineSyncIsInfo(t *testing.T) {
	h := newHarness(t, DefaultOptions())
	h.svc.FailList(model.KindProject, remote.Unreachable("list projects", errors.New("connection refused")))

	snap := h.press(t, "r")
	assert.Empty(t, snap.ErrorMessage)
	assert.Contains(t, snap.InfoMessage, "Offline")
	assert.False(t, snap.Syncing)

	snap = h.press(t, "esc")
	assert.Empty(t, snap.InfoMessage)
}

func TestLoop_InboxCannotBeDeleted(t *testing.T) {
	h := newHarness(t, DefaultOptions())
	snap := h.loop.Snapshot()
	require.Len(t, snap.Projects, 1)

	h.loop.apply(Navigate{View: View{Kind: ViewProject, ID: snap.Projects[0].ID}})
	snap = h.settle(t)
	require.Equal(t, "Inbox", snap.ViewTitle)

	snap = h.press(t, "D")
	require.Equal(t, DialogConfirmDelete, snap.Dialog)
	snap = h.press(t, "y")
	assert.Contains(t, snap.ErrorMessage, "inbox")
	assert.Len(t, snap.Projects, 1)
}

func TestLoop_DeleteProjectLeavesView(t *testing.T) {
	h := newHarness(t, DefaultOptions())

	h.press(t, "A")
	snap := h.submit(t, "Garden")
	var id string
	for _, p := range snap.Projects {
		if p.Name == "Garden" {
			id = p.ID
		}
	}
	require.NotEmpty(t, id)

	h.loop.apply(Navigate{View: View{Kind: ViewProject, ID: id}})
	h.settle(t)
	snap = h.press(t, "D", "y")
	assert.Equal(t, ViewToday, snap.View.Kind)
	assert.Len(t, snap.Projects, 1)
}

func TestLoop_RenameProjectAndAddSubproject(t *testing.T) {
	h := newHarness(t, DefaultOptions())

	h.press(t, "A")
	snap := h.submit(t, "Garden")
	var id string
	for _, p := range snap.Projects {
		if p.Name == "Garden" {
			id = p.ID
		}
	}
	require.NotEmpty(t, id)
	h.loop.apply(Navigate{View: View{Kind: ViewProject, ID: id}})
	h.settle(t)

	snap = h.press(t, "E")
	require.Equal(t, DialogEditProject, snap.Dialog)
	assert.Equal(t, "Garden", snap.DialogText)
	snap = h.submit(t, "Allotment")
	assert.Equal(t, "Allotment", snap.ViewTitle)

	h.press(t, "+")
	snap = h.submit(t, "Beds")
	var child *model.Project
	for i := range snap.Projects {
		if snap.Projects[i].Name == "Beds" {
			child = &snap.Projects[i]
		}
	}
	require.NotNil(t, child)
	require.NotNil(t, child.ParentID)
	assert.Equal(t, id, *child.ParentID)

	report, err := h.engine.SyncAll(context.Background(), h.backend.ID)
	require.NoError(t, err)
	require.NoError(t, report.Err())
	assert.Equal(t, 2, report.Step(model.KindProject).Created)
}

func TestLoop_RenameLabel(t *testing.T) {
	h := newHarness(t, DefaultOptions())

	h.press(t, "@")
	snap := h.submit(t, "errand")
	require.Len(t, snap.Labels, 1)
	id := snap.Labels[0].ID

	h.loop.apply(Navigate{View: View{Kind: ViewLabel, ID: id}})
	h.settle(t)
	snap = h.press(t, "E")
	require.Equal(t, DialogEditLabel, snap.Dialog)
	assert.Equal(t, "errand", snap.DialogText)
	snap = h.submit(t, "chore")

	require.Len(t, snap.Labels, 1)
	assert.Equal(t, "chore", snap.Labels[0].Name)
	assert.Equal(t, "@chore", snap.ViewTitle)
}

func TestLoop_AutoSync(t *testing.T) {
	opts := DefaultOptions()
	opts.SyncInterval = time.Minute
	h := newHarness(t, opts)
	require.Empty(t, h.notifier.started)

	h.loop.Step(nil, time.Now().Add(2*time.Minute))
	h.settle(t)
	assert.Equal(t, []string{h.backend.ID}, h.notifier.started)
}

type frames struct{ n int }

func (f *frames) Render(*Snapshot) { f.n++ }

func TestLoop_RunQuits(t *testing.T) {
	h := newHarness(t, DefaultOptions())
	inputs := make(chan Input, 1)
	inputs <- Input{Key: "q"}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var f frames
	require.NoError(t, h.loop.Run(ctx, inputs, &f))
	assert.True(t, h.loop.Done())
	assert.Positive(t, f.n)
}

func TestLoop_RenderThrottle(t *testing.T) {
	opts := DefaultOptions()
	opts.MinRenderInterval = time.Hour
	h := newHarness(t, opts)

	now := time.Now()
	assert.False(t, h.loop.Step(nil, now), "nothing changed")
	assert.True(t, h.loop.Step([]Input{{Key: "?"}}, now))
	assert.Equal(t, DialogHelp, h.loop.Snapshot().Dialog)
}
