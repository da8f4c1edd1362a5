package store

import (
	"context"
	"errors"
	"testing"

	"github.com/terminalist/terminalist/internal/model"
)

func TestUpsertProjectByRemoteID_Idempotent(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	b := createTestBackend(t, db, "work")

	first, err := db.UpsertProjectByRemoteID(ctx, b.ID, &model.Project{RemoteID: "P1", Name: "Inbox", IsInbox: true})
	if err != nil {
		t.Fatalf("first upsert failed: %v", err)
	}
	second, err := db.UpsertProjectByRemoteID(ctx, b.ID, &model.Project{RemoteID: "P1", Name: "Inbox (renamed)", IsInbox: true})
	if err != nil {
		t.Fatalf("second upsert failed: %v", err)
	}

	if first.ID == "" {
		t.Fatal("upsert did not mint a local id")
	}
	if second.ID != first.ID {
		t.Errorf("local id changed: %s -> %s", first.ID, second.ID)
	}
	if second.Name != "Inbox (renamed)" {
		t.Errorf("Name = %q, want incoming fields applied", second.Name)
	}

	projects, err := db.ListProjects(ctx, b.ID, ProjectFilter{})
	if err != nil {
		t.Fatalf("ListProjects() failed: %v", err)
	}
	if len(projects) != 1 {
		t.Fatalf("got %d projects, want 1", len(projects))
	}
}

func TestUpsertProjectByRemoteID_ScopedPerBackend(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	a := createTestBackend(t, db, "a")
	b := createTestBackend(t, db, "b")

	pa, err := db.UpsertProjectByRemoteID(ctx, a.ID, &model.Project{RemoteID: "P1", Name: "A"})
	if err != nil {
		t.Fatalf("upsert a failed: %v", err)
	}
	pb, err := db.UpsertProjectByRemoteID(ctx, b.ID, &model.Project{RemoteID: "P1", Name: "B"})
	if err != nil {
		t.Fatalf("upsert b failed: %v", err)
	}
	if pa.ID == pb.ID {
		t.Error("same remote id under two backends must map to two local rows")
	}
}

func TestInsertLocalProject_PendingCreate(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	b := createTestBackend(t, db, "work")

	p, err := db.InsertLocalProject(ctx, &model.Project{BackendID: b.ID, Name: "Garden"})
	if err != nil {
		t.Fatalf("InsertLocalProject() failed: %v", err)
	}
	if p.Pending != model.PendingCreate {
		t.Errorf("Pending = %q, want create", p.Pending)
	}
	if p.RemoteID != "" {
		t.Errorf("RemoteID = %q, want empty", p.RemoteID)
	}

	// Editing a never-pushed project keeps it a pending create.
	name := "Garden 2025"
	p, err = db.UpdateProject(ctx, p.ID, ProjectPatch{Name: &name})
	if err != nil {
		t.Fatalf("UpdateProject() failed: %v", err)
	}
	if p.Pending != model.PendingCreate {
		t.Errorf("Pending after edit = %q, want create", p.Pending)
	}
}

func TestUpdateProject_MarksPendingUpdate(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	b := createTestBackend(t, db, "work")

	p, err := db.UpsertProjectByRemoteID(ctx, b.ID, &model.Project{RemoteID: "P1", Name: "Home"})
	if err != nil {
		t.Fatalf("upsert failed: %v", err)
	}
	fav := true
	p, err = db.UpdateProject(ctx, p.ID, ProjectPatch{IsFavorite: &fav})
	if err != nil {
		t.Fatalf("UpdateProject() failed: %v", err)
	}
	if p.Pending != model.PendingUpdate || !p.IsFavorite {
		t.Errorf("got pending=%q favorite=%v, want update/true", p.Pending, p.IsFavorite)
	}

	if _, err := db.UpdateProject(ctx, "missing", ProjectPatch{IsFavorite: &fav}); !errors.Is(err, ErrNotFound) {
		t.Errorf("UpdateProject(missing) error = %v, want ErrNotFound", err)
	}
}

func TestProjectParent_SameBackendOnly(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	a := createTestBackend(t, db, "a")
	b := createTestBackend(t, db, "b")

	parent, err := db.UpsertProjectByRemoteID(ctx, a.ID, &model.Project{RemoteID: "P1", Name: "Parent"})
	if err != nil {
		t.Fatalf("upsert parent failed: %v", err)
	}

	_, err = db.InsertLocalProject(ctx, &model.Project{BackendID: b.ID, Name: "Child", ParentID: &parent.ID})
	if !errors.Is(err, ErrCrossBackendParent) {
		t.Fatalf("cross-backend parent error = %v, want ErrCrossBackendParent", err)
	}

	child, err := db.InsertLocalProject(ctx, &model.Project{BackendID: a.ID, Name: "Child", ParentID: &parent.ID})
	if err != nil {
		t.Fatalf("same-backend child failed: %v", err)
	}
	children, err := db.ProjectChildren(ctx, parent.ID)
	if err != nil {
		t.Fatalf("ProjectChildren() failed: %v", err)
	}
	if len(children) != 1 || children[0].ID != child.ID {
		t.Errorf("ProjectChildren() = %v, want [%s]", children, child.ID)
	}
}

func TestDeleteProject_LocalSemantics(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	b := createTestBackend(t, db, "work")

	local, err := db.InsertLocalProject(ctx, &model.Project{BackendID: b.ID, Name: "Draft"})
	if err != nil {
		t.Fatalf("InsertLocalProject() failed: %v", err)
	}
	pushed, err := db.UpsertProjectByRemoteID(ctx, b.ID, &model.Project{RemoteID: "P1", Name: "Pushed"})
	if err != nil {
		t.Fatalf("upsert failed: %v", err)
	}

	if err := db.DeleteProject(ctx, local.ID); err != nil {
		t.Fatalf("DeleteProject(local) failed: %v", err)
	}
	if got, _ := db.GetProject(ctx, local.ID); got != nil {
		t.Error("never-pushed project should be removed immediately")
	}

	if err := db.DeleteProject(ctx, pushed.ID); err != nil {
		t.Fatalf("DeleteProject(pushed) failed: %v", err)
	}
	got, err := db.GetProject(ctx, pushed.ID)
	if err != nil || got == nil {
		t.Fatalf("pushed project should remain until the remote delete: %v", err)
	}
	if got.Pending != model.PendingDelete {
		t.Errorf("Pending = %q, want delete", got.Pending)
	}

	visible, err := db.ListProjects(ctx, b.ID, ProjectFilter{})
	if err != nil {
		t.Fatalf("ListProjects() failed: %v", err)
	}
	if len(visible) != 0 {
		t.Errorf("pending-delete project should be hidden, got %d rows", len(visible))
	}

	if err := db.DeleteProject(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("DeleteProject(missing) error = %v, want ErrNotFound", err)
	}
}

func TestDeleteProjectsMissing_KeepsPendingCreates(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	b := createTestBackend(t, db, "work")

	var keptID, goneID, localID string
	err := db.Update(ctx, func(tx *Tx) error {
		kept, err := tx.UpsertProjectByRemoteID(b.ID, &model.Project{RemoteID: "P1", Name: "Kept"})
		if err != nil {
			return err
		}
		gone, err := tx.UpsertProjectByRemoteID(b.ID, &model.Project{RemoteID: "P2", Name: "Gone"})
		if err != nil {
			return err
		}
		local, err := tx.InsertLocalProject(&model.Project{BackendID: b.ID, Name: "Local"})
		if err != nil {
			return err
		}
		keptID, goneID, localID = kept.ID, gone.ID, local.ID
		return nil
	})
	if err != nil {
		t.Fatalf("setup failed: %v", err)
	}

	var deleted int
	err = db.Update(ctx, func(tx *Tx) error {
		var err error
		deleted, err = tx.DeleteProjectsMissing(b.ID, []string{"P1"})
		return err
	})
	if err != nil {
		t.Fatalf("DeleteProjectsMissing() failed: %v", err)
	}
	if deleted != 1 {
		t.Errorf("deleted = %d, want 1", deleted)
	}

	for id, want := range map[string]bool{keptID: true, goneID: false, localID: true} {
		got, err := db.GetProject(ctx, id)
		if err != nil {
			t.Fatalf("GetProject() failed: %v", err)
		}
		if (got != nil) != want {
			t.Errorf("project %s present = %v, want %v", id, got != nil, want)
		}
	}
}

func TestGetProject_Missing(t *testing.T) {
	db := openTestDB(t)
	got, err := db.GetProject(context.Background(), "nope")
	if err != nil {
		t.Fatalf("GetProject() error = %v", err)
	}
	if got != nil {
		t.Errorf("GetProject() = %v, want nil", got)
	}
}
