package dashboard

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/terminalist/terminalist/internal/model"
	"github.com/terminalist/terminalist/internal/store"
	"github.com/terminalist/terminalist/internal/syncer"
)

// SyncStartedData announces a sync pass.
type SyncStartedData struct {
	BackendID string `json:"backend_id"`
}

// StepData contains the counts of one sync step.
type StepData struct {
	Kind    model.Kind `json:"kind"`
	Pulled  int        `json:"pulled"`
	Removed int        `json:"removed"`
	Pushed  int        `json:"pushed"`
	Error   string     `json:"error,omitempty"`
}

// SyncCompleteData contains sync completion information
type SyncCompleteData struct {
	BackendID   string        `json:"backend_id"`
	BackendName string        `json:"backend_name,omitempty"`
	Summary     string        `json:"summary,omitempty"`
	Steps       []StepData    `json:"steps,omitempty"`
	Failures    int           `json:"failures"`
	Conflicts   int           `json:"conflicts"`
	Duration    time.Duration `json:"duration"`
	Error       string        `json:"error,omitempty"`
}

// TaskUpdateData contains task change information
type TaskUpdateData struct {
	TaskID    string `json:"task_id"`
	BackendID string `json:"backend_id"`
	Action    string `json:"action"` // created, updated, completed, deleted, restored
	Content   string `json:"content,omitempty"`
	Priority  int    `json:"priority,omitempty"`
	DueDate   string `json:"due_date,omitempty"`
	Pending   string `json:"pending,omitempty"`
}

// StatsData contains the task counts of one backend
type StatsData struct {
	BackendID string `json:"backend_id"`
	store.TaskCounts
}

// Handler turns sync and task events into dashboard messages. It
// satisfies the notifier interfaces of the UI loop and the daemon.
type Handler struct {
	server *Server
	db     *store.DB
	logger *log.Logger

	mu    sync.Mutex
	stats map[string]StatsData
	now   func() time.Time
}

// NewHandler creates a new event handler connected to a dashboard server.
// With a nil db no stats messages are sent.
func NewHandler(server *Server, db *store.DB, logger *log.Logger) *Handler {
	if logger == nil {
		logger = server.logger
	}
	return &Handler{
		server: server,
		db:     db,
		logger: logger,
		stats:  make(map[string]StatsData),
		now:    time.Now,
	}
}

// SyncStarted broadcasts the start of a pass.
func (h *Handler) SyncStarted(backendID string) {
	h.send(MessageTypeSyncStarted, SyncStartedData{BackendID: backendID})
}

// SyncFinished broadcasts the outcome of a pass, then fresh stats.
func (h *Handler) SyncFinished(backendID string, report *syncer.Report, err error) {
	data := SyncCompleteData{BackendID: backendID}
	if report != nil {
		data.BackendName = report.BackendName
		data.Summary = report.Summary()
		data.Failures = len(report.PushFailures)
		data.Conflicts = len(report.Conflicts)
		data.Duration = report.Duration()
		for _, s := range report.Steps {
			data.Steps = append(data.Steps, StepData{
				Kind:    s.Kind,
				Pulled:  s.Upserted,
				Removed: s.Deleted,
				Pushed:  s.Created + s.Updated + s.Removed,
				Error:   s.Error,
			})
		}
		if err == nil {
			err = report.Err()
		}
	}
	if err != nil {
		data.Error = err.Error()
	}
	h.logger.Printf("Sync complete: %s", backendID)
	h.send(MessageTypeSyncComplete, data)
	h.RefreshStats(backendID)
}

// TaskChanged broadcasts a local task mutation, then fresh stats.
func (h *Handler) TaskChanged(op string, task *model.Task) {
	if task == nil {
		return
	}
	data := TaskUpdateData{
		TaskID:    task.ID,
		BackendID: task.BackendID,
		Action:    taskAction(op),
		Content:   task.Content,
		Priority:  task.Priority,
		Pending:   string(task.Pending),
	}
	if task.DueDate != nil {
		data.DueDate = *task.DueDate
	}
	h.send(MessageTypeTaskUpdate, data)
	if task.BackendID != "" {
		h.RefreshStats(task.BackendID)
	}
}

func taskAction(op string) string {
	switch op {
	case "create task":
		return "created"
	case "complete task":
		return "completed"
	case "delete task":
		return "deleted"
	case "restore task":
		return "restored"
	default:
		return "updated"
	}
}

// RefreshStats recounts a backend's tasks and broadcasts them.
func (h *Handler) RefreshStats(backendID string) {
	if h.db == nil {
		return
	}
	today := h.now().Format(model.DateLayout)
	var counts store.TaskCounts
	err := h.db.View(context.Background(), func(tx *store.Tx) error {
		var err error
		counts, err = tx.CountTasks(backendID, today)
		return err
	})
	if err != nil {
		h.logger.Printf("WARNING: Failed to count tasks: %v", err)
		return
	}

	stats := StatsData{BackendID: backendID, TaskCounts: counts}
	h.mu.Lock()
	h.stats[backendID] = stats
	h.mu.Unlock()
	h.send(MessageTypeStats, stats)
}

// Stats returns the last counts sent for a backend.
func (h *Handler) Stats(backendID string) (StatsData, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	s, ok := h.stats[backendID]
	return s, ok
}

func (h *Handler) send(typ MessageType, data any) {
	msg, err := newMessage(typ, data)
	if err != nil {
		h.logger.Printf("WARNING: %v", err)
		return
	}
	h.server.Broadcast(msg)
}
