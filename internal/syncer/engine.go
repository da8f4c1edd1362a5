// Package syncer reconciles the local store with a backend's remote service.
//
// Overview
//
// A sync pass walks the entity kinds parents first:
//
//	Project → Section → Label → Task → TaskLabel
//
// For each kind it fetches the full remote listing, applies it to the store
// in one transaction (upsert by remote id, then delete rows the listing no
// longer contains), commits, and then pushes the rows of that kind that
// carry a pending local edit. A failing fetch stops the pass; the kinds
// already committed stay committed so the next pass resumes from there.
//
// Conflicts
//
// A pulled record never overwrites a row with an unpushed local edit. The
// edit is pushed in the same pass and the record returned by the remote
// service becomes the local state. Between two passes the last remote
// write therefore wins.
//
// The Engine also owns the local mutations the UI performs. They write the
// store immediately with a pending marker and return; pushing is left to
// the next pass.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/terminalist/terminalist/internal/model"
	"github.com/terminalist/terminalist/internal/remote"
	"github.com/terminalist/terminalist/internal/store"
)

// ErrSyncInProgress is returned by SyncAll when a pass for the same backend
// is already running, in this process or in another one sharing the store.
var ErrSyncInProgress = errors.New("sync already in progress")

// DefaultLeaseTTL is how long a sync lease stays valid without renewal. A
// process that dies mid-pass blocks the backend for at most this long.
const DefaultLeaseTTL = 2 * time.Minute

// Engine runs sync passes and local mutations against one store.
type Engine struct {
	db      *store.DB
	clients remote.Resolver
	logger  *log.Logger
	now     func() time.Time

	// owner identifies this engine in the store's sync leases.
	owner    string
	leaseTTL time.Duration

	mu      sync.Mutex
	running map[string]struct{}
}

// New creates an Engine.
//
// If clients is nil, remote clients are built through the remote registry.
// If logger is nil, a default logger writing to stderr is used.
func New(db *store.DB, clients remote.Resolver, logger *log.Logger) *Engine {
	if clients == nil {
		clients = remote.RegistryResolver{}
	}
	if logger == nil {
		logger = log.New(os.Stderr, "[sync] ", log.LstdFlags)
	}
	return &Engine{
		db:       db,
		clients:  clients,
		logger:   logger,
		now:      time.Now,
		owner:    uuid.NewString(),
		leaseTTL: DefaultLeaseTTL,
		running:  make(map[string]struct{}),
	}
}

// DB returns the store the engine works on.
func (e *Engine) DB() *store.DB {
	return e.db
}

// IsSyncing reports whether a pass for backendID is running.
func (e *Engine) IsSyncing(backendID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.running[backendID]
	return ok
}

func (e *Engine) acquire(backendID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.running[backendID]; ok {
		return false
	}
	e.running[backendID] = struct{}{}
	return true
}

func (e *Engine) release(backendID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.running, backendID)
}

// SyncAll runs one pass for a backend.
//
// The returned error covers only what prevents a pass from starting:
// ErrSyncInProgress, an unknown backend, a client that cannot be built.
// Step and push failures are recorded in the Report; Report.Err
// summarizes them.
func (e *Engine) SyncAll(ctx context.Context, backendID string) (*Report, error) {
	if !e.acquire(backendID) {
		return nil, ErrSyncInProgress
	}
	defer e.release(backendID)

	if err := e.db.AcquireSyncLock(ctx, backendID, e.owner, e.leaseTTL); err != nil {
		if errors.Is(err, store.ErrSyncLocked) {
			return nil, fmt.Errorf("%w: %v", ErrSyncInProgress, err)
		}
		return nil, fmt.Errorf("failed to acquire sync lease: %w", err)
	}
	defer func() {
		// ctx may already be cancelled; the lease must still go.
		if err := e.db.ReleaseSyncLock(context.Background(), backendID, e.owner); err != nil {
			e.logger.Printf("WARNING: Failed to release sync lease of %s: %v", backendID, err)
		}
	}()

	b, err := e.db.GetBackend(ctx, backendID)
	if err != nil {
		return nil, fmt.Errorf("failed to load backend: %w", err)
	}
	if b == nil {
		return nil, fmt.Errorf("backend %s: %w", backendID, store.ErrNotFound)
	}
	client, err := e.clients.Client(ctx, b)
	if err != nil {
		return nil, err
	}

	report := newReport(b, e.now())
	e.logger.Printf("Starting sync of %s (%s)", b.Name, b.Type)

	p := &pass{engine: e, backend: b, client: client, report: report, pushedTasks: make(map[string]bool)}
	for i, kind := range model.SyncOrder {
		step := report.Step(kind)
		err := e.db.AcquireSyncLock(ctx, backendID, e.owner, e.leaseTTL)
		if err == nil {
			err = p.run(ctx, kind, step)
		}
		if err != nil {
			step.fail(err)
			e.logger.Printf("WARNING: %s step failed for %s: %v", kind, b.Name, err)
			for _, later := range model.SyncOrder[i+1:] {
				report.Step(later).Skipped = true
			}
			break
		}
	}

	report.Finished = e.now()
	e.logger.Printf("Sync complete: %s", report.Summary())
	return report, nil
}

// SyncEnabled runs a pass for every enabled backend, one after another.
// Backends already syncing are skipped.
func (e *Engine) SyncEnabled(ctx context.Context) ([]*Report, error) {
	backends, err := e.db.ListBackends(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("failed to list backends: %w", err)
	}
	var reports []*Report
	for _, b := range backends {
		report, err := e.SyncAll(ctx, b.ID)
		if errors.Is(err, ErrSyncInProgress) {
			continue
		}
		if err != nil {
			e.logger.Printf("WARNING: Failed to sync %s: %v", b.Name, err)
			continue
		}
		reports = append(reports, report)
	}
	return reports, nil
}

// pass holds the state of one SyncAll call.
type pass struct {
	engine  *Engine
	backend *model.Backend
	client  remote.Client
	report  *Report

	// tasks is the task listing, reused by the TaskLabel step.
	tasks []remote.Task
	// pushedTasks holds the remote ids of tasks pushed in this pass.
	pushedTasks map[string]bool
}

func (p *pass) run(ctx context.Context, kind model.Kind, step *StepReport) error {
	switch kind {
	case model.KindProject:
		if err := p.pullProjects(ctx, step); err != nil {
			return err
		}
		return p.pushProjects(ctx, step)
	case model.KindSection:
		if err := p.pullSections(ctx, step); err != nil {
			return err
		}
		return p.pushSections(ctx, step)
	case model.KindLabel:
		if err := p.pullLabels(ctx, step); err != nil {
			return err
		}
		return p.pushLabels(ctx, step)
	case model.KindTask:
		if err := p.pullTasks(ctx, step); err != nil {
			return err
		}
		return p.pushTasks(ctx, step)
	case model.KindTaskLabel:
		return p.pullTaskLabels(ctx, step)
	}
	return fmt.Errorf("unknown kind %q", kind)
}

// skipConflict logs and records a constraint violation on a pulled record.
// It returns false for any other error, which must abort the step.
func (p *pass) skipConflict(kind model.Kind, remoteID string, err error) bool {
	if !store.IsConflict(err) {
		return false
	}
	p.engine.logger.Printf("WARNING: Skipping %s %s: %v", kind, remoteID, err)
	p.report.conflict(kind, remoteID, err)
	return true
}

// pendingRemoteIDs returns the remote ids of rows with unpushed edits.
func pendingRemoteIDs[T any](rows []T, remoteID func(T) string) map[string]bool {
	out := make(map[string]bool, len(rows))
	for _, r := range rows {
		if id := remoteID(r); id != "" {
			out[id] = true
		}
	}
	return out
}
