package googletasks

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"
	tasks "google.golang.org/api/tasks/v1"

	"github.com/terminalist/terminalist/internal/remote"
)

func newTestClient(t *testing.T, routes map[string]any) *Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := strings.TrimPrefix(r.URL.Path, "/tasks/v1")
		body, ok := routes[r.Method+" "+path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":{"code":404,"message":"not found"}}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(body)
	}))
	t.Cleanup(srv.Close)

	c, err := NewWithHTTPClient(context.Background(), srv.Client(), srv.URL+"/")
	require.NoError(t, err)
	return c
}

func TestListTasks_AcrossLists(t *testing.T) {
	c := newTestClient(t, map[string]any{
		"GET /users/@me/lists/@default": map[string]any{"id": "L1", "title": "My Tasks"},
		"GET /users/@me/lists": map[string]any{"items": []map[string]any{
			{"id": "L1", "title": "My Tasks"},
			{"id": "L2", "title": "Work"},
		}},
		"GET /lists/L1/tasks": map[string]any{"items": []map[string]any{
			{"id": "a", "title": "Buy milk", "due": "2025-03-10T00:00:00.000Z", "status": "needsAction", "position": "00000000000000000002"},
			{"id": "b", "title": "Oat", "parent": "a", "status": "completed"},
		}},
		"GET /lists/L2/tasks": map[string]any{"items": []map[string]any{}},
	})

	projects, err := c.ListProjects(context.Background())
	require.NoError(t, err)
	require.Len(t, projects, 2)
	assert.True(t, projects[0].IsInbox)
	assert.False(t, projects[1].IsInbox)

	got, err := c.ListTasks(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "L1/a", got[0].RemoteID)
	assert.Equal(t, "L1", got[0].ProjectRemoteID)
	require.NotNil(t, got[0].DueDate)
	assert.Equal(t, "2025-03-10", *got[0].DueDate)
	assert.Equal(t, 2, got[0].OrderIndex)

	assert.Equal(t, "L1/a", got[1].ParentRemoteID)
	assert.True(t, got[1].IsCompleted)
}

func TestDeleteTask_MissingIsSuccess(t *testing.T) {
	c := newTestClient(t, nil)
	assert.NoError(t, c.DeleteTask(context.Background(), "L1/gone"))
}

func TestSectionsAndLabelsUnsupported(t *testing.T) {
	c := &Client{}
	ctx := context.Background()

	sections, err := c.ListSections(ctx)
	assert.NoError(t, err)
	assert.Empty(t, sections)

	_, err = c.CreateLabel(ctx, remote.Label{Name: "x"})
	assert.True(t, errors.Is(err, remote.ErrNotSupported))
	assert.True(t, remote.IsRejected(err))
}

func TestWrapError(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		check func(error) bool
	}{
		{"auth", &googleapi.Error{Code: 401}, remote.IsUserActionRequired},
		{"missing", &googleapi.Error{Code: 404}, remote.IsNotFound},
		{"bad request", &googleapi.Error{Code: 400}, remote.IsRejected},
		{"transport", errors.New("dial tcp: connection refused"), remote.IsUnreachable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, tt.check(wrapError("op", tt.err)))
		})
	}
	assert.NoError(t, wrapError("op", nil))
}

func TestWireTask_ClearsDue(t *testing.T) {
	w := wireTask(remote.Task{Content: "x"})
	assert.Contains(t, w.NullFields, "Due")
	assert.Equal(t, "needsAction", w.Status)

	due := "2025-03-10"
	w = wireTask(remote.Task{Content: "x", DueDate: &due, IsCompleted: true})
	assert.Equal(t, "2025-03-10T00:00:00.000Z", w.Due)
	assert.Equal(t, "completed", w.Status)
}

func TestRecord_KeepsLocalOnlyFields(t *testing.T) {
	local := remote.Task{Priority: 4, Labels: []string{"home"}}
	got := merge(local, record("L1", &tasks.Task{Id: "a", Title: "x"}))
	assert.Equal(t, 4, got.Priority)
	assert.Equal(t, []string{"home"}, got.Labels)
	assert.Equal(t, "L1/a", got.RemoteID)
}

func TestSplitID(t *testing.T) {
	list, id := splitID("L1/a")
	assert.Equal(t, "L1", list)
	assert.Equal(t, "a", id)

	list, id = splitID("bare")
	assert.Equal(t, DefaultListID, list)
	assert.Equal(t, "bare", id)
}
