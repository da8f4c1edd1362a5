package syncer_test

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
	"github.com/terminalist/terminalist/internal/remote"
	"github.com/terminalist/terminalist/internal/remote/fake"
	"github.com/terminalist/terminalist/internal/store"
	"github.com/terminalist/terminalist/internal/syncer"
)

type harness struct {
	engine  *syncer.Engine
	db      *store.DB
	backend *model.Backend
	svc     *fake.Service
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.InitSchema())

	b, err := db.CreateBackend(context.Background(), &model.Backend{Type: fake.BackendType, Name: "test", Enabled: true})
	require.NoError(t, err)

	svc := fake.New()
	clients := remote.StaticResolver{b.ID: svc}
	return &harness{
		engine:  syncer.New(db, clients, log.New(io.Discard, "", 0)),
		db:      db,
		backend: b,
		svc:     svc,
	}
}

func (h *harness) sync(t *testing.T) *syncer.Report {
	t.Helper()
	report, err := h.engine.SyncAll(context.Background(), h.backend.ID)
	require.NoError(t, err)
	return report
}

func (h *harness) taskByRemoteID(t *testing.T, remoteID string) *model.Task {
	t.Helper()
	var task *model.Task
	err := h.db.View(context.Background(), func(tx *store.Tx) error {
		var err error
		task, err = tx.TaskByRemoteID(h.backend.ID, remoteID)
		return err
	})
	require.NoError(t, err)
	return task
}

func TestSyncAll_FirstPullMintsLocalID(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.svc.AddProject(remote.Project{RemoteID: "P1", Name: "Inbox", IsInbox: true})

	report := h.sync(t)
	require.NoError(t, report.Err())

	projects, err := h.db.ListProjects(ctx, h.backend.ID, store.ProjectFilter{})
	require.NoError(t, err)
	require.Len(t, projects, 1)
	assert.Equal(t, "Inbox", projects[0].Name)
	assert.Equal(t, "P1", projects[0].RemoteID)
	assert.NotEmpty(t, projects[0].ID)
	assert.NotEqual(t, "P1", projects[0].ID)

	// A second pass keeps the same row.
	h.sync(t)
	again, err := h.db.ListProjects(ctx, h.backend.ID, store.ProjectFilter{})
	require.NoError(t, err)
	require.Len(t, again, 1)
	assert.Equal(t, projects[0].ID, again[0].ID)
}

func TestSyncAll_RemovesTaskMissingUpstream(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.svc.AddProject(remote.Project{RemoteID: "P1", Name: "Inbox", IsInbox: true})
	h.svc.AddTask(remote.Task{RemoteID: "T1", ProjectRemoteID: "P1", Content: "water plants"})
	h.svc.AddTask(remote.Task{RemoteID: "T2", ProjectRemoteID: "P1", Content: "call mom"})
	h.sync(t)

	t1 := h.taskByRemoteID(t, "T1")
	require.NotNil(t, t1)

	h.svc.RemoveTask("T1")
	report := h.sync(t)
	assert.Equal(t, 1, report.Step(model.KindTask).Deleted)

	got, err := h.db.GetTask(ctx, t1.ID)
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.NotNil(t, h.taskByRemoteID(t, "T2"))
}

func TestSyncAll_RejectsConcurrentPass(t *testing.T) {
	h := newHarness(t)
	h.svc.AddProject(remote.Project{RemoteID: "P1", Name: "Inbox", IsInbox: true})

	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	h.svc.BeforeList = func(ctx context.Context, kind model.Kind) error {
		once.Do(func() {
			close(entered)
			<-release
		})
		return nil
	}

	done := make(chan error, 1)
	go func() {
		_, err := h.engine.SyncAll(context.Background(), h.backend.ID)
		done <- err
	}()

	<-entered
	assert.True(t, h.engine.IsSyncing(h.backend.ID))
	_, err := h.engine.SyncAll(context.Background(), h.backend.ID)
	assert.ErrorIs(t, err, syncer.ErrSyncInProgress)

	close(release)
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("first pass did not finish")
	}
	assert.False(t, h.engine.IsSyncing(h.backend.ID))
}

func TestSyncAll_RejectedPushDoesNotStopOthers(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.svc.AddProject(remote.Project{RemoteID: "P1", Name: "Inbox", IsInbox: true})
	h.svc.AddTask(remote.Task{RemoteID: "T1", ProjectRemoteID: "P1", Content: "draft"})
	h.sync(t)

	existing := h.taskByRemoteID(t, "T1")
	content := "draft v2"
	_, err := h.engine.UpdateTask(ctx, existing.ID, store.TaskPatch{Content: &content})
	require.NoError(t, err)
	created, err := h.engine.CreateTask(ctx, &model.Task{BackendID: h.backend.ID, Content: "new one", Priority: 1})
	require.NoError(t, err)

	h.svc.FailUpdate(model.KindTask, remote.Rejected("update task", 400, errors.New("bad request")))
	report := h.sync(t)

	assert.True(t, report.Failed(existing.ID))
	assert.False(t, report.Failed(created.ID))
	require.Len(t, report.PushFailures, 1)
	assert.Equal(t, model.KindTask, report.PushFailures[0].Kind)
	assert.True(t, remote.IsRejected(report.Err()))

	pushed, err := h.db.GetTask(ctx, created.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, pushed.RemoteID)
	assert.Equal(t, model.PendingNone, pushed.Pending)

	failed, err := h.db.GetTask(ctx, existing.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PendingUpdate, failed.Pending)
	assert.Equal(t, "draft v2", failed.Content)
}

func TestSyncAll_FetchFailureKeepsEarlierSteps(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.svc.AddProject(remote.Project{RemoteID: "P1", Name: "Inbox", IsInbox: true})
	h.svc.AddTask(remote.Task{RemoteID: "T1", ProjectRemoteID: "P1", Content: "stale"})
	h.sync(t)

	h.svc.AddProject(remote.Project{RemoteID: "P2", Name: "Work"})
	h.svc.RemoveTask("T1")
	h.svc.FailList(model.KindTask, remote.Unreachable("list task", errors.New("connection refused")))

	report := h.sync(t)
	require.Error(t, report.Err())
	assert.True(t, remote.IsUnreachable(report.Err()))
	assert.Error(t, report.Step(model.KindTask).Err)
	assert.True(t, report.Step(model.KindTaskLabel).Skipped)
	assert.False(t, report.Step(model.KindLabel).Skipped)

	projects, err := h.db.ListProjects(ctx, h.backend.ID, store.ProjectFilter{})
	require.NoError(t, err)
	assert.Len(t, projects, 2)
	assert.NotNil(t, h.taskByRemoteID(t, "T1"), "task must survive a failed task listing")
}

func TestSyncAll_PendingEditWinsOverPull(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.svc.AddProject(remote.Project{RemoteID: "P1", Name: "Inbox", IsInbox: true})
	h.svc.AddTask(remote.Task{RemoteID: "T1", ProjectRemoteID: "P1", Content: "original"})
	h.sync(t)

	local := h.taskByRemoteID(t, "T1")
	content := "edited here"
	_, err := h.engine.UpdateTask(ctx, local.ID, store.TaskPatch{Content: &content})
	require.NoError(t, err)
	_, err = h.svc.UpdateTask(ctx, "T1", remote.Task{ProjectRemoteID: "P1", Content: "edited there", Priority: 1})
	require.NoError(t, err)

	report := h.sync(t)
	require.NoError(t, report.Err())
	assert.Equal(t, 1, report.Step(model.KindTask).KeptLocal)
	assert.Equal(t, 1, report.Step(model.KindTask).Updated)

	upstream, ok := h.svc.Task("T1")
	require.True(t, ok)
	assert.Equal(t, "edited here", upstream.Content)

	got, err := h.db.GetTask(ctx, local.ID)
	require.NoError(t, err)
	assert.Equal(t, "edited here", got.Content)
	assert.Equal(t, model.PendingNone, got.Pending)
}

func TestSyncAll_CreatePushesLabelsFirst(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.svc.AddProject(remote.Project{RemoteID: "P1", Name: "Inbox", IsInbox: true})
	h.sync(t)

	created, err := h.engine.CreateTask(ctx, &model.Task{
		BackendID: h.backend.ID,
		Content:   "buy milk",
		Priority:  2,
		Labels:    []string{"errand"},
	})
	require.NoError(t, err)
	assert.Equal(t, model.PendingCreate, created.Pending)
	assert.Equal(t, []string{"errand"}, created.Labels)

	report := h.sync(t)
	require.NoError(t, report.Err())
	assert.Equal(t, 1, report.Step(model.KindLabel).Created)
	assert.Equal(t, 1, report.Step(model.KindTask).Created)

	got, err := h.db.GetTask(ctx, created.ID)
	require.NoError(t, err)
	require.NotEmpty(t, got.RemoteID)
	assert.Equal(t, []string{"errand"}, got.Labels)

	upstream, ok := h.svc.Task(got.RemoteID)
	require.True(t, ok)
	assert.Equal(t, "P1", upstream.ProjectRemoteID)
	assert.Equal(t, []string{"errand"}, upstream.Labels)
	assert.Equal(t, 2, upstream.Priority)
}

func TestSyncAll_DeleteOfMissingRemoteSucceeds(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.svc.AddProject(remote.Project{RemoteID: "P1", Name: "Inbox", IsInbox: true})
	h.svc.AddTask(remote.Task{RemoteID: "T1", ProjectRemoteID: "P1", Content: "gone soon"})
	h.sync(t)

	local := h.taskByRemoteID(t, "T1")
	require.NoError(t, h.engine.DeleteTask(ctx, local.ID))

	h.svc.FailDelete(model.KindTask, remote.FromStatus("delete task", 404, nil))
	report := h.sync(t)
	require.NoError(t, report.Err())
	assert.Equal(t, 1, report.Step(model.KindTask).Removed)

	got, err := h.db.GetTask(ctx, local.ID)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSyncAll_UnknownBackend(t *testing.T) {
	h := newHarness(t)
	_, err := h.engine.SyncAll(context.Background(), "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestSyncEnabled_SkipsDisabled(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.svc.AddProject(remote.Project{RemoteID: "P1", Name: "Inbox", IsInbox: true})

	reports, err := h.engine.SyncEnabled(ctx)
	require.NoError(t, err)
	assert.Len(t, reports, 1)

	require.NoError(t, h.db.SetBackendEnabled(ctx, h.backend.ID, false))
	reports, err = h.engine.SyncEnabled(ctx)
	require.NoError(t, err)
	assert.Empty(t, reports)
}

func TestMutations(t *testing.T) {
	ctx := context.Background()

	t.Run("task without inbox", func(t *testing.T) {
		h := newHarness(t)
		_, err := h.engine.CreateTask(ctx, &model.Task{BackendID: h.backend.ID, Content: "x", Priority: 1})
		assert.ErrorIs(t, err, syncer.ErrNoInbox)
	})

	t.Run("inbox cannot be deleted", func(t *testing.T) {
		h := newHarness(t)
		h.svc.AddProject(remote.Project{RemoteID: "P1", Name: "Inbox", IsInbox: true})
		h.sync(t)
		projects, err := h.db.ListProjects(ctx, h.backend.ID, store.ProjectFilter{})
		require.NoError(t, err)
		err = h.engine.DeleteProject(ctx, projects[0].ID)
		assert.ErrorIs(t, err, syncer.ErrInboxProject)
	})

	t.Run("unpushed task is deleted at once", func(t *testing.T) {
		h := newHarness(t)
		h.svc.AddProject(remote.Project{RemoteID: "P1", Name: "Inbox", IsInbox: true})
		h.sync(t)
		task, err := h.engine.CreateTask(ctx, &model.Task{BackendID: h.backend.ID, Content: "oops", Priority: 1})
		require.NoError(t, err)
		require.NoError(t, h.engine.DeleteTask(ctx, task.ID))
		got, err := h.db.GetTask(ctx, task.ID)
		require.NoError(t, err)
		assert.Nil(t, got)

		h.sync(t)
		assert.Zero(t, h.svc.TaskCount())
	})

	t.Run("complete and priority", func(t *testing.T) {
		h := newHarness(t)
		h.svc.AddProject(remote.Project{RemoteID: "P1", Name: "Inbox", IsInbox: true})
		h.svc.AddTask(remote.Task{RemoteID: "T1", ProjectRemoteID: "P1", Content: "ship", Priority: 4})
		h.sync(t)
		local := h.taskByRemoteID(t, "T1")

		done, err := h.engine.CompleteTask(ctx, local.ID)
		require.NoError(t, err)
		assert.True(t, done.IsCompleted)
		assert.Equal(t, model.PendingUpdate, done.Pending)

		bumped, err := h.engine.CyclePriority(ctx, local.ID)
		require.NoError(t, err)
		assert.Equal(t, model.PriorityNormal, bumped.Priority)

		h.sync(t)
		upstream, ok := h.svc.Task("T1")
		require.True(t, ok)
		assert.True(t, upstream.IsCompleted)
		assert.Equal(t, model.PriorityNormal, upstream.Priority)
	})
}
