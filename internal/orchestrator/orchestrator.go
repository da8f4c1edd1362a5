// Package orchestrator runs long operations as named background tasks.
//
// Work runs on its own goroutine with a cancellable context. Completions
// are queued and handed to the caller by Poll, so the goroutine that owns
// UI state never blocks on a task and never shares memory with one.
//
// Tasks spawned with a non-empty Key are de-duplicated: while a task with
// that key is in flight (spawned and not yet polled), Spawn returns its id
// instead of starting another one.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"time"
)

// ID identifies a spawned task. IDs increase monotonically from 1.
type ID uint64

// Task kinds used by the application.
const (
	KindSync     = "sync"
	KindMutation = "mutation"
	KindLoad     = "load"
)

// SyncKey is the de-duplication key of a sync pass for a backend.
func SyncKey(backendID string) string {
	return "sync:" + backendID
}

// Spec describes a task.
type Spec struct {
	// Kind groups tasks for whoever interprets results, e.g. KindSync.
	Kind string
	// Key de-duplicates in-flight tasks. Empty means never de-duplicated.
	Key string
	// Description is a human-readable label for logs and status lines.
	Description string
}

// Work is the body of a task. It should return promptly once ctx is done.
type Work func(ctx context.Context) (any, error)

// Result is the outcome of a finished task. Value and Err are exactly what
// Work returned.
type Result struct {
	ID          ID
	Kind        string
	Key         string
	Description string
	Value       any
	Err         error
	// Cancelled is true when Cancel was called and the work stopped because
	// of it, returning context.Canceled. Work that completed past its point
	// of no return is reported as completed even if Cancel came first.
	Cancelled bool
	Elapsed   time.Duration
}

type task struct {
	spec      Spec
	cancel    context.CancelFunc
	started   time.Time
	cancelled bool
	finished  bool
}

// Orchestrator spawns tasks and queues their results.
type Orchestrator struct {
	logger *log.Logger
	now    func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	next   ID
	tasks  map[ID]*task
	byKey  map[string]ID
	done   []Result
	closed bool
	ready  chan struct{}
}

// New creates an Orchestrator. If logger is nil, a default logger writing
// to stderr is used.
func New(logger *log.Logger) *Orchestrator {
	if logger == nil {
		logger = log.New(os.Stderr, "[orchestrator] ", log.LstdFlags)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		logger: logger,
		now:    time.Now,
		ctx:    ctx,
		cancel: cancel,
		tasks:  make(map[ID]*task),
		byKey:  make(map[string]ID),
		ready:  make(chan struct{}, 1),
	}
}

// Spawn starts work in the background and returns its id. If spec.Key
// matches a task still in flight, no work is started and that task's id is
// returned.
func (o *Orchestrator) Spawn(spec Spec, work Work) ID {
	id, _ := o.SpawnUnique(spec, work)
	return id
}

// SpawnUnique is Spawn that also reports whether a new task was started.
func (o *Orchestrator) SpawnUnique(spec Spec, work Work) (ID, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if spec.Key != "" {
		if id, ok := o.byKey[spec.Key]; ok {
			return id, false
		}
	}

	o.next++
	id := o.next
	t := &task{spec: spec, started: o.now()}
	if spec.Key != "" {
		o.byKey[spec.Key] = id
	}
	o.tasks[id] = t

	if o.closed {
		// Shut down: report the task as cancelled without running it.
		t.cancelled = true
		t.finished = true
		o.done = append(o.done, Result{
			ID: id, Kind: spec.Kind, Key: spec.Key, Description: spec.Description,
			Err: context.Canceled, Cancelled: true,
		})
		o.signal()
		return id, true
	}

	ctx, cancel := context.WithCancel(o.ctx)
	t.cancel = cancel
	o.wg.Add(1)
	go o.run(ctx, id, t, work)
	return id, true
}

func (o *Orchestrator) run(ctx context.Context, id ID, t *task, work Work) {
	defer o.wg.Done()
	defer t.cancel()

	value, err := safeRun(ctx, work)

	o.mu.Lock()
	defer o.mu.Unlock()
	t.finished = true
	o.done = append(o.done, Result{
		ID:          id,
		Kind:        t.spec.Kind,
		Key:         t.spec.Key,
		Description: t.spec.Description,
		Value:       value,
		Err:         err,
		Cancelled:   t.cancelled && errors.Is(err, context.Canceled),
		Elapsed:     o.now().Sub(t.started),
	})
	o.signal()
}

// safeRun turns a panic in work into an error so one task cannot take the
// process down.
func safeRun(ctx context.Context, work Work) (value any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()
	return work(ctx)
}

// signal wakes a waiter on Ready. Callers hold o.mu.
func (o *Orchestrator) signal() {
	select {
	case o.ready <- struct{}{}:
	default:
	}
}

// Ready returns a channel that receives a value after one or more tasks
// complete. A receive does not consume results; call Poll.
func (o *Orchestrator) Ready() <-chan struct{} {
	return o.ready
}

// Poll returns every result queued since the previous call, in completion
// order, without blocking. Returned tasks leave the in-flight set, which
// frees their key.
func (o *Orchestrator) Poll() []Result {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.done) == 0 {
		return nil
	}
	out := o.done
	o.done = nil
	for _, r := range out {
		delete(o.tasks, r.ID)
		if r.Key != "" && o.byKey[r.Key] == r.ID {
			delete(o.byKey, r.Key)
		}
	}
	return out
}

// Cancel requests cancellation of a running task. It returns false when the
// task is unknown or has already finished. Cancellation is advisory: work
// past its point of no return reports its real outcome.
func (o *Orchestrator) Cancel(id ID) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	t, ok := o.tasks[id]
	if !ok || t.finished {
		return false
	}
	t.cancelled = true
	if t.cancel != nil {
		t.cancel()
	}
	o.logger.Printf("Cancelled %s task %d (%s)", t.spec.Kind, id, t.spec.Description)
	return true
}

// InFlight returns the number of tasks spawned and not yet polled.
func (o *Orchestrator) InFlight() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.tasks)
}

// IsRunning reports whether a task with key is in flight.
func (o *Orchestrator) IsRunning(key string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, ok := o.byKey[key]
	return ok
}

// Shutdown cancels every running task and waits for them to return or for
// ctx to end. Tasks spawned afterwards complete immediately as cancelled.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.mu.Lock()
	o.closed = true
	for _, t := range o.tasks {
		if !t.finished {
			t.cancelled = true
		}
	}
	o.mu.Unlock()
	o.cancel()

	waited := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(waited)
	}()
	select {
	case <-waited:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("failed to stop background tasks: %w", ctx.Err())
	}
}
