package syncer_test

import (
	"context"
	"errors"
	"io"
	"log"
	"path/filepath"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terminalist/terminalist/internal/model"
	"github.com/terminalist/terminalist/internal/remote"
	"github.com/terminalist/terminalist/internal/remote/fake"
	"github.com/terminalist/terminalist/internal/store"
	"github.com/terminalist/terminalist/internal/syncer"
)

// seedWork fills the fake with an inbox, a Work project holding section S1,
// label L1 and task T1 filed in S1 with the label.
func seedWork(h *harness) {
	h.svc.AddProject(remote.Project{RemoteID: "P1", Name: "Inbox", IsInbox: true})
	h.svc.AddProject(remote.Project{RemoteID: "P2", Name: "Work"})
	h.svc.AddSection(remote.Section{RemoteID: "S1", Name: "Backlog", ProjectRemoteID: "P2"})
	h.svc.AddLabel(remote.Label{RemoteID: "L1", Name: "errand"})
	h.svc.AddTask(remote.Task{RemoteID: "T1", ProjectRemoteID: "P2", SectionRemoteID: "S1", Content: "file taxes", Labels: []string{"errand"}})
}

func (h *harness) sectionByRemoteID(t *testing.T, remoteID string) *model.Section {
	t.Helper()
	var sec *model.Section
	err := h.db.View(context.Background(), func(tx *store.Tx) error {
		var err error
		sec, err = tx.SectionByRemoteID(h.backend.ID, remoteID)
		return err
	})
	require.NoError(t, err)
	return sec
}

func (h *harness) projectByRemoteID(t *testing.T, remoteID string) *model.Project {
	t.Helper()
	var p *model.Project
	err := h.db.View(context.Background(), func(tx *store.Tx) error {
		var err error
		p, err = tx.ProjectByRemoteID(h.backend.ID, remoteID)
		return err
	})
	require.NoError(t, err)
	return p
}

func TestSyncAll_SectionPull(t *testing.T) {
	h := newHarness(t)
	seedWork(h)

	report := h.sync(t)
	require.NoError(t, report.Err())
	assert.Equal(t, 1, report.Step(model.KindSection).Upserted)

	sec := h.sectionByRemoteID(t, "S1")
	require.NotNil(t, sec)
	assert.Equal(t, "Backlog", sec.Name)
	assert.Equal(t, h.projectByRemoteID(t, "P2").ID, sec.ProjectID)

	task := h.taskByRemoteID(t, "T1")
	require.NotNil(t, task)
	require.NotNil(t, task.SectionID)
	assert.Equal(t, sec.ID, *task.SectionID)
}

func TestSyncAll_ProjectDroppedUpstreamCascades(t *testing.T) {
	h := newHarness(t)
	seedWork(h)
	h.sync(t)
	task := h.taskByRemoteID(t, "T1")
	sec := h.sectionByRemoteID(t, "S1")

	h.svc.RemoveProject("P2")
	report := h.sync(t)
	require.NoError(t, report.Err())
	assert.Equal(t, 1, report.Step(model.KindProject).Deleted)

	assert.Nil(t, h.projectByRemoteID(t, "P2"))
	got, err := h.db.GetSection(context.Background(), sec.ID)
	require.NoError(t, err)
	assert.Nil(t, got, "section goes with its project")
	gotTask, err := h.db.GetTask(context.Background(), task.ID)
	require.NoError(t, err)
	assert.Nil(t, gotTask, "task goes with its project")
	assert.NotNil(t, h.projectByRemoteID(t, "P1"))
}

func TestSyncAll_SectionDroppedUpstreamDetachesTasks(t *testing.T) {
	h := newHarness(t)
	seedWork(h)
	h.sync(t)
	task := h.taskByRemoteID(t, "T1")

	h.svc.RemoveSection("S1")
	report := h.sync(t)
	require.NoError(t, report.Err())
	assert.Equal(t, 1, report.Step(model.KindSection).Deleted)

	assert.Nil(t, h.sectionByRemoteID(t, "S1"))
	got, err := h.db.GetTask(context.Background(), task.ID)
	require.NoError(t, err)
	require.NotNil(t, got, "task survives its section")
	assert.Nil(t, got.SectionID)
	assert.Equal(t, h.projectByRemoteID(t, "P2").ID, got.ProjectID)
}

func TestSyncAll_LabelDroppedUpstreamUnlinksTasks(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	seedWork(h)
	h.sync(t)
	task := h.taskByRemoteID(t, "T1")
	require.Equal(t, []string{"errand"}, task.Labels)

	h.svc.RemoveLabel("L1")
	report := h.sync(t)
	require.NoError(t, report.Err())
	assert.Equal(t, 1, report.Step(model.KindLabel).Deleted)

	labels, err := h.db.ListLabels(ctx, h.backend.ID)
	require.NoError(t, err)
	assert.Empty(t, labels)
	linked, err := h.db.TaskLabels(ctx, task.ID)
	require.NoError(t, err)
	assert.Empty(t, linked)
}

// A section removed upstream is deleted by the section step even when the
// task step fails afterwards; the task removed in the same change waits for
// a task step that commits.
func TestSyncAll_ChildRemovalWaitsForItsStep(t *testing.T) {
	h := newHarness(t)
	seedWork(h)
	h.sync(t)
	task := h.taskByRemoteID(t, "T1")

	h.svc.RemoveSection("S1")
	h.svc.RemoveTask("T1")
	h.svc.FailList(model.KindTask, remote.Unreachable("list task", errors.New("connection reset")))

	report := h.sync(t)
	require.Error(t, report.Err())
	assert.Equal(t, 1, report.Step(model.KindSection).Deleted)
	assert.Zero(t, report.Step(model.KindTask).Deleted)

	assert.Nil(t, h.sectionByRemoteID(t, "S1"))
	kept, err := h.db.GetTask(context.Background(), task.ID)
	require.NoError(t, err)
	require.NotNil(t, kept, "task stays until a task step commits")
	assert.Nil(t, kept.SectionID)

	h.svc.FailList(model.KindTask, nil)
	report = h.sync(t)
	require.NoError(t, report.Err())
	assert.Equal(t, 1, report.Step(model.KindTask).Deleted)
	gone, err := h.db.GetTask(context.Background(), task.ID)
	require.NoError(t, err)
	assert.Nil(t, gone)
}

func TestSyncAll_SectionCreatePushedAfterProject(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.svc.AddProject(remote.Project{RemoteID: "P1", Name: "Inbox", IsInbox: true})
	h.sync(t)

	project, err := h.engine.CreateProject(ctx, &model.Project{BackendID: h.backend.ID, Name: "Garden"})
	require.NoError(t, err)
	section, err := h.engine.CreateSection(ctx, &model.Section{BackendID: h.backend.ID, ProjectID: project.ID, Name: "Spring"})
	require.NoError(t, err)
	assert.Equal(t, model.PendingCreate, section.Pending)

	report := h.sync(t)
	require.NoError(t, report.Err())
	assert.Equal(t, 1, report.Step(model.KindProject).Created)
	assert.Equal(t, 1, report.Step(model.KindSection).Created)

	calls := h.svc.Calls()
	createProject := slices.Index(calls, "create project")
	createSection := slices.Index(calls, "create section")
	require.GreaterOrEqual(t, createProject, 0)
	assert.Greater(t, createSection, createProject)

	pushedProject, err := h.db.GetProject(ctx, project.ID)
	require.NoError(t, err)
	pushedSection, err := h.db.GetSection(ctx, section.ID)
	require.NoError(t, err)
	require.NotEmpty(t, pushedSection.RemoteID)
	assert.Equal(t, model.PendingNone, pushedSection.Pending)

	upstream := h.svc.Sections()
	require.Len(t, upstream, 1)
	assert.Equal(t, pushedProject.RemoteID, upstream[0].ProjectRemoteID)
	assert.Equal(t, "Spring", upstream[0].Name)
}

func TestSyncAll_DeleteSectionPushed(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	seedWork(h)
	h.sync(t)
	sec := h.sectionByRemoteID(t, "S1")

	require.NoError(t, h.engine.DeleteSection(ctx, sec.ID))
	report := h.sync(t)
	require.NoError(t, report.Err())
	assert.Equal(t, 1, report.Step(model.KindSection).Removed)
	assert.Empty(t, h.svc.Sections())

	task := h.taskByRemoteID(t, "T1")
	require.NotNil(t, task)
	assert.Nil(t, task.SectionID)
}

func TestSyncAll_RenamesPushed(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	seedWork(h)
	h.sync(t)

	project := h.projectByRemoteID(t, "P2")
	name := "Office"
	renamed, err := h.engine.UpdateProject(ctx, project.ID, store.ProjectPatch{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, model.PendingUpdate, renamed.Pending)

	labels, err := h.db.ListLabels(ctx, h.backend.ID)
	require.NoError(t, err)
	require.Len(t, labels, 1)
	labelName := "chore"
	_, err = h.engine.UpdateLabel(ctx, labels[0].ID, store.LabelPatch{Name: &labelName})
	require.NoError(t, err)

	report := h.sync(t)
	require.NoError(t, report.Err())
	assert.Equal(t, 1, report.Step(model.KindProject).Updated)
	assert.Equal(t, 1, report.Step(model.KindLabel).Updated)

	var upstreamName string
	for _, p := range h.svc.Projects() {
		if p.RemoteID == "P2" {
			upstreamName = p.Name
		}
	}
	assert.Equal(t, "Office", upstreamName)

	got, err := h.db.GetLabel(ctx, labels[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "chore", got.Name)
	assert.Equal(t, model.PendingNone, got.Pending)
}

// Two engines on separate handles to one file act like two processes.
func TestSyncAll_SecondStoreHandleSeesLease(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "cache.db")
	quiet := log.New(io.Discard, "", 0)

	first, err := store.OpenAndInit(ctx, path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = first.Close() })
	second, err := store.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = second.Close() })

	b, err := first.CreateBackend(ctx, &model.Backend{Type: fake.BackendType, Name: "shared", Enabled: true})
	require.NoError(t, err)
	svc := fake.New()
	svc.AddProject(remote.Project{RemoteID: "P1", Name: "Inbox", IsInbox: true})
	clients := remote.StaticResolver{b.ID: svc}
	e1 := syncer.New(first, clients, quiet)
	e2 := syncer.New(second, clients, quiet)

	_, err = e1.SyncAll(ctx, b.ID)
	require.NoError(t, err)
	created, err := e1.CreateTask(ctx, &model.Task{BackendID: b.ID, Content: "water plants", Priority: 1})
	require.NoError(t, err)

	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	svc.BeforeCreate = func(ctx context.Context, kind model.Kind) error {
		if kind == model.KindTask {
			once.Do(func() {
				close(entered)
				<-release
			})
		}
		return nil
	}

	done := make(chan error, 1)
	go func() {
		report, err := e1.SyncAll(ctx, b.ID)
		if err == nil {
			err = report.Err()
		}
		done <- err
	}()

	<-entered
	_, err = e2.SyncAll(ctx, b.ID)
	assert.ErrorIs(t, err, syncer.ErrSyncInProgress)

	close(release)
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("first pass did not finish")
	}
	assert.Equal(t, 1, svc.TaskCount())

	// The lease is gone once the pass returns.
	report, err := e2.SyncAll(ctx, b.ID)
	require.NoError(t, err)
	require.NoError(t, report.Err())
	assert.Zero(t, report.Step(model.KindTask).Created)
	assert.Equal(t, 1, svc.TaskCount())

	got, err := second.GetTask(ctx, created.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, got.RemoteID)
}

func TestSyncAll_ConcurrentlyPushedCreateIsAConflict(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.svc.AddProject(remote.Project{RemoteID: "P1", Name: "Inbox", IsInbox: true})
	h.sync(t)

	created, err := h.engine.CreateTask(ctx, &model.Task{BackendID: h.backend.ID, Content: "water plants", Priority: 1})
	require.NoError(t, err)

	// Another writer records the create while ours is in flight.
	h.svc.BeforeCreate = func(ctx context.Context, kind model.Kind) error {
		if kind != model.KindTask {
			return nil
		}
		return h.db.Update(ctx, func(tx *store.Tx) error { return tx.MarkTaskPushed(created.ID, "T-other") })
	}

	report := h.sync(t)
	require.Len(t, report.Conflicts, 1)
	assert.Equal(t, model.KindTask, report.Conflicts[0].Kind)
	assert.ErrorIs(t, report.Conflicts[0].Err, store.ErrAlreadyPushed)
	assert.Contains(t, h.svc.Calls(), "delete task", "duplicate must be removed upstream")

	got, err := h.db.GetTask(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "T-other", got.RemoteID)
}
