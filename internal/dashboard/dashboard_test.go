package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/terminalist/terminalist/internal/model"
	"github.com/terminalist/terminalist/internal/store"
	"github.com/terminalist/terminalist/internal/syncer"
)

var quiet = log.New(io.Discard, "", 0)

func startServer(t *testing.T) *Server {
	t.Helper()
	server := NewServer(&Config{Port: 0, Logger: quiet})
	if err := server.Start(); err != nil {
		t.Fatalf("Failed to start server: %v", err)
	}
	t.Cleanup(func() { server.Stop() })
	return server
}

// dial connects a client and consumes the welcome message.
func dial(t *testing.T, ctx context.Context, server *Server) (*websocket.Conn, Message) {
	t.Helper()
	conn, _, err := websocket.Dial(ctx, "ws://"+server.Addr()+"/ws", nil)
	if err != nil {
		t.Fatalf("Failed to connect WebSocket: %v", err)
	}
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "") })
	return conn, read(t, ctx, conn)
}

func read(t *testing.T, ctx context.Context, conn *websocket.Conn) Message {
	t.Helper()
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("Failed to read message: %v", err)
	}
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("Failed to unmarshal message: %v", err)
	}
	return msg
}

func waitClients(t *testing.T, server *Server, n int) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for server.ClientCount() != n {
		if time.Now().After(deadline) {
			t.Fatalf("Expected %d clients, got %d", n, server.ClientCount())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestServerStartStop(t *testing.T) {
	server := NewServer(&Config{Port: 0, Logger: quiet})
	if err := server.Start(); err != nil {
		t.Fatalf("Failed to start server: %v", err)
	}
	if addr := server.Addr(); addr == "" || addr == "127.0.0.1:0" {
		t.Fatalf("Addr() = %q, want the bound address", addr)
	}
	if err := server.Stop(); err != nil {
		t.Fatalf("Failed to stop server: %v", err)
	}
}

func TestWebSocketConnection(t *testing.T) {
	server := startServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, welcome := dial(t, ctx, server)
	if welcome.Type != MessageTypeStats {
		t.Errorf("Expected welcome message type %s, got %s", MessageTypeStats, welcome.Type)
	}
	waitClients(t, server, 1)
}

func TestMultipleClients(t *testing.T) {
	server := startServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	numClients := 3
	for i := 0; i < numClients; i++ {
		dial(t, ctx, server)
	}
	waitClients(t, server, numClients)
}

func TestMessageBroadcast(t *testing.T) {
	server := startServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _ := dial(t, ctx, server)

	msg, err := newMessage(MessageTypeTaskUpdate, TaskUpdateData{TaskID: "t1", Action: "created", Content: "Water plants"})
	if err != nil {
		t.Fatalf("newMessage() failed: %v", err)
	}
	server.Broadcast(msg)

	received := read(t, ctx, conn)
	if received.Type != MessageTypeTaskUpdate {
		t.Errorf("Expected message type %s, got %s", MessageTypeTaskUpdate, received.Type)
	}
	var data TaskUpdateData
	if err := json.Unmarshal(received.Data, &data); err != nil {
		t.Fatalf("Failed to unmarshal task data: %v", err)
	}
	if data.TaskID != "t1" {
		t.Errorf("Expected task ID t1, got %s", data.TaskID)
	}
}

// TestWelcomeReplaysStats verifies that a late client receives the last
// stats message instead of an empty one.
func TestWelcomeReplaysStats(t *testing.T) {
	server := startServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	msg, _ := newMessage(MessageTypeStats, StatsData{BackendID: "b1", TaskCounts: store.TaskCounts{Total: 4}})
	server.Broadcast(msg)

	_, welcome := dial(t, ctx, server)
	var stats StatsData
	if err := json.Unmarshal(welcome.Data, &stats); err != nil {
		t.Fatalf("Failed to unmarshal stats: %v", err)
	}
	if stats.BackendID != "b1" || stats.Total != 4 {
		t.Errorf("welcome stats = %+v, want backend b1 with 4 tasks", stats)
	}
}

func TestHealthEndpoint(t *testing.T) {
	server := startServer(t)

	resp, err := http.Get("http://" + server.Addr() + "/health")
	if err != nil {
		t.Fatalf("GET /health failed: %v", err)
	}
	defer resp.Body.Close()

	var body struct {
		Status  string `json:"status"`
		Clients int    `json:"clients"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("Failed to decode health: %v", err)
	}
	if body.Status != "ok" || body.Clients != 0 {
		t.Errorf("health = %+v, want ok with 0 clients", body)
	}

	resp, err = http.Get("http://" + server.Addr() + "/nope")
	if err != nil {
		t.Fatalf("GET /nope failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("GET /nope status = %d, want 404", resp.StatusCode)
	}
}

func setupStore(t *testing.T) (*store.DB, *model.Backend) {
	t.Helper()
	db, err := store.OpenAndInit(context.Background(), filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	b, err := db.CreateBackend(context.Background(), &model.Backend{Type: "fake", Name: "test", Enabled: true})
	if err != nil {
		t.Fatalf("Failed to create backend: %v", err)
	}
	p, err := db.InsertLocalProject(context.Background(), &model.Project{BackendID: b.ID, Name: "Inbox", IsInbox: true})
	if err != nil {
		t.Fatalf("Failed to create project: %v", err)
	}
	for _, content := range []string{"one", "two"} {
		if _, err := db.InsertLocalTask(context.Background(), &model.Task{BackendID: b.ID, ProjectID: p.ID, Content: content, Priority: model.PriorityNormal}); err != nil {
			t.Fatalf("Failed to create task: %v", err)
		}
	}
	return db, b
}

func TestHandlerTaskEvents(t *testing.T) {
	server := startServer(t)
	db, b := setupStore(t)
	handler := NewHandler(server, db, quiet)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _ := dial(t, ctx, server)

	handler.TaskChanged("complete task", &model.Task{ID: "t1", BackendID: b.ID, Content: "one"})

	msg := read(t, ctx, conn)
	if msg.Type != MessageTypeTaskUpdate {
		t.Fatalf("Expected message type %s, got %s", MessageTypeTaskUpdate, msg.Type)
	}
	var update TaskUpdateData
	if err := json.Unmarshal(msg.Data, &update); err != nil {
		t.Fatalf("Failed to unmarshal task data: %v", err)
	}
	if update.Action != "completed" {
		t.Errorf("Expected action completed, got %s", update.Action)
	}

	msg = read(t, ctx, conn)
	if msg.Type != MessageTypeStats {
		t.Fatalf("Expected message type %s, got %s", MessageTypeStats, msg.Type)
	}
	var stats StatsData
	if err := json.Unmarshal(msg.Data, &stats); err != nil {
		t.Fatalf("Failed to unmarshal stats: %v", err)
	}
	if stats.Total != 2 || stats.Open != 2 || stats.Pending != 2 {
		t.Errorf("stats = %+v, want 2 open pending tasks", stats)
	}
	if got, ok := handler.Stats(b.ID); !ok || got.Total != 2 {
		t.Errorf("Stats() = %+v, %v", got, ok)
	}
}

func TestHandlerSyncEvents(t *testing.T) {
	server := startServer(t)
	handler := NewHandler(server, nil, quiet)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _ := dial(t, ctx, server)

	handler.SyncStarted("b1")
	if msg := read(t, ctx, conn); msg.Type != MessageTypeSyncStarted {
		t.Errorf("Expected message type %s, got %s", MessageTypeSyncStarted, msg.Type)
	}

	started := time.Now()
	report := &syncer.Report{
		BackendID:   "b1",
		BackendName: "work",
		Started:     started,
		Finished:    started.Add(2 * time.Second),
		Steps:       []*syncer.StepReport{{Kind: model.KindTask, Upserted: 3, Created: 1}},
		PushFailures: []syncer.PushFailure{
			{Kind: model.KindTask, LocalID: "t9", Op: model.PendingUpdate, Err: errors.New("boom"), Error: "boom"},
		},
	}
	handler.SyncFinished("b1", report, nil)

	msg := read(t, ctx, conn)
	if msg.Type != MessageTypeSyncComplete {
		t.Fatalf("Expected message type %s, got %s", MessageTypeSyncComplete, msg.Type)
	}
	var data SyncCompleteData
	if err := json.Unmarshal(msg.Data, &data); err != nil {
		t.Fatalf("Failed to unmarshal sync data: %v", err)
	}
	if data.Failures != 1 || data.Duration != 2*time.Second {
		t.Errorf("sync data = %+v, want 1 failure over 2s", data)
	}
	if len(data.Steps) != 1 || data.Steps[0].Pulled != 3 || data.Steps[0].Pushed != 1 {
		t.Errorf("steps = %+v, want 3 pulled and 1 pushed", data.Steps)
	}
	if data.Error == "" {
		t.Error("push failures should surface as an error")
	}
}
