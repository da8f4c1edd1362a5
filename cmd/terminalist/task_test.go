package main

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/terminalist/terminalist/internal/model"
	"github.com/terminalist/terminalist/internal/store"
)

func TestTaskLine(t *testing.T) {
	now := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	due := "2025-03-10"
	task := &model.Task{
		ID:       "0123456789abcdef",
		Content:  "Water plants",
		Priority: model.PriorityUrgent,
		DueDate:  &due,
		Labels:   []string{"home"},
		Pending:  model.PendingUpdate,
	}

	got := taskLine(task, "Inbox", now)
	want := "01234567 [ ] Water plants p1 (today) @home #Inbox *"
	if got != want {
		t.Errorf("taskLine() = %q, want %q", got, want)
	}

	task.IsCompleted = true
	task.Pending = model.PendingNone
	task.Priority = model.PriorityNormal
	if got := taskLine(task, "", now); !strings.HasPrefix(got, "01234567 [x] Water plants (today)") || strings.HasSuffix(got, "*") {
		t.Errorf("taskLine() for a completed synced task = %q", got)
	}
}

func TestFindTask(t *testing.T) {
	ctx := context.Background()
	db, err := store.OpenAndInit(ctx, filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	defer db.Close()

	b, err := db.CreateBackend(ctx, &model.Backend{Type: "memory", Name: "test", Enabled: true})
	if err != nil {
		t.Fatalf("CreateBackend() failed: %v", err)
	}
	p, err := db.InsertLocalProject(ctx, &model.Project{BackendID: b.ID, Name: "Inbox", IsInbox: true})
	if err != nil {
		t.Fatalf("InsertLocalProject() failed: %v", err)
	}
	task, err := db.InsertLocalTask(ctx, &model.Task{BackendID: b.ID, ProjectID: p.ID, Content: "one", Priority: model.PriorityNormal})
	if err != nil {
		t.Fatalf("InsertLocalTask() failed: %v", err)
	}

	for _, ref := range []string{task.ID, task.ID[:shortID]} {
		got, err := findTask(ctx, db, b.ID, ref)
		if err != nil {
			t.Fatalf("findTask(%q) failed: %v", ref, err)
		}
		if got.ID != task.ID {
			t.Errorf("findTask(%q) = %s, want %s", ref, got.ID, task.ID)
		}
	}
	if _, err := findTask(ctx, db, b.ID, "zzz"); err == nil {
		t.Error("findTask() with an unknown id should fail")
	}

	got, err := findProject(ctx, db, b.ID, "inbox")
	if err != nil || got.ID != p.ID {
		t.Errorf("findProject(inbox) = %v, %v", got, err)
	}
}
