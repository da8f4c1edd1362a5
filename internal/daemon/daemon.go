// Package daemon runs headless background sync.
//
// The daemon:
//  1. Syncs every enabled backend on start and then on a fixed interval
//  2. Runs each pass as an orchestrator task, one per backend at a time
//  3. Watches the config file and applies a new interval when it changes
//  4. Handles graceful shutdown
package daemon

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/terminalist/terminalist/internal/orchestrator"
	"github.com/terminalist/terminalist/internal/syncer"
)

// Notifier receives sync events. ui.Notifier implementations satisfy it.
type Notifier interface {
	SyncStarted(backendID string)
	SyncFinished(backendID string, report *syncer.Report, err error)
}

// ReloadFunc re-reads the config file at path and returns the sync
// interval it sets. An error keeps the current interval.
type ReloadFunc func(path string) (time.Duration, error)

// Config holds configuration for the daemon.
type Config struct {
	// SyncInterval is how often every enabled backend is synced.
	SyncInterval time.Duration

	// DebounceInterval is how long the config file must be quiet before
	// it is reloaded. Editors often write a file several times.
	DebounceInterval time.Duration

	// ConfigPath is watched when non-empty; Reload is called on change.
	ConfigPath string
	Reload     ReloadFunc

	Notifier Notifier

	// Logger for daemon activity
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		SyncInterval:     5 * time.Minute,
		DebounceInterval: 250 * time.Millisecond,
		Logger:           log.New(os.Stderr, "[daemon] ", log.LstdFlags),
	}
}

// Daemon syncs enabled backends in the background.
type Daemon struct {
	engine *syncer.Engine
	orch   *orchestrator.Orchestrator
	config *Config

	watcher   *FileWatcher
	intervals chan time.Duration
	changedAt time.Time
	changedMu sync.Mutex
	tasks     map[orchestrator.ID]string // spawned sync -> backend id
	tasksMu   sync.Mutex
	reports   map[string]*syncer.Report
	reportsMu sync.Mutex
	passes    int
	stopOnce  sync.Once

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a daemon with default configuration.
func New(engine *syncer.Engine, orch *orchestrator.Orchestrator) (*Daemon, error) {
	return NewWithConfig(engine, orch, DefaultConfig())
}

// NewWithConfig creates a daemon with custom configuration.
func NewWithConfig(engine *syncer.Engine, orch *orchestrator.Orchestrator, config *Config) (*Daemon, error) {
	if engine == nil {
		return nil, fmt.Errorf("engine cannot be nil")
	}
	if orch == nil {
		return nil, fmt.Errorf("orchestrator cannot be nil")
	}
	if config == nil {
		config = DefaultConfig()
	}
	if config.SyncInterval <= 0 {
		return nil, fmt.Errorf("sync interval must be positive, got %s", config.SyncInterval)
	}
	if config.DebounceInterval <= 0 {
		config.DebounceInterval = DefaultConfig().DebounceInterval
	}
	if config.Logger == nil {
		config.Logger = DefaultConfig().Logger
	}

	d := &Daemon{
		engine:    engine,
		orch:      orch,
		config:    config,
		intervals: make(chan time.Duration, 1),
		tasks:     make(map[orchestrator.ID]string),
		reports:   make(map[string]*syncer.Report),
	}
	if config.ConfigPath != "" {
		w, err := NewFileWatcher()
		if err != nil {
			return nil, err
		}
		d.watcher = w
	}
	d.ctx, d.cancel = context.WithCancel(context.Background())
	return d, nil
}

// Start syncs every enabled backend, then keeps syncing on the interval.
// It blocks until ctx is cancelled or Stop is called.
func (d *Daemon) Start(ctx context.Context) error {
	d.config.Logger.Printf("Starting daemon (interval %s)", d.config.SyncInterval)

	if d.watcher != nil {
		if err := d.watcher.Start(d.config.ConfigPath); err != nil {
			return fmt.Errorf("failed to watch config: %w", err)
		}
		d.config.Logger.Printf("Watching: %s", d.config.ConfigPath)
		d.wg.Add(2)
		go d.watchConfig()
		go d.processConfigChanges()
	}

	d.wg.Add(2)
	go d.collectResults()
	go d.syncLoop()

	d.SyncNow(ctx)

	select {
	case <-ctx.Done():
		d.config.Logger.Println("Shutdown signal received")
		return d.Stop()
	case <-d.ctx.Done():
		return nil
	}
}

// Stop gracefully shuts down the daemon. Running passes are cancelled by
// the orchestrator's owner, not here.
func (d *Daemon) Stop() error {
	d.stopOnce.Do(func() {
		d.config.Logger.Println("Stopping daemon")
		d.cancel()
		if d.watcher != nil {
			if err := d.watcher.Stop(); err != nil {
				d.config.Logger.Printf("WARNING: Failed to close watcher: %v", err)
			}
		}
		d.wg.Wait()
		d.config.Logger.Println("Daemon stopped")
	})
	return nil
}

// SyncNow spawns a pass for every enabled backend that is not already
// syncing and returns how many were started.
func (d *Daemon) SyncNow(ctx context.Context) int {
	backends, err := d.engine.DB().ListBackends(ctx, true)
	if err != nil {
		d.config.Logger.Printf("WARNING: Failed to list backends: %v", err)
		return 0
	}

	started := 0
	for _, b := range backends {
		backendID := b.ID
		d.tasksMu.Lock()
		id, ok := d.orch.SpawnUnique(
			orchestrator.Spec{Kind: orchestrator.KindSync, Key: orchestrator.SyncKey(backendID), Description: "sync " + b.Name},
			func(ctx context.Context) (any, error) { return d.engine.SyncAll(ctx, backendID) },
		)
		if ok {
			d.tasks[id] = backendID
		}
		d.tasksMu.Unlock()
		if !ok {
			continue
		}
		started++
		if d.config.Notifier != nil {
			d.config.Notifier.SyncStarted(backendID)
		}
	}
	return started
}

// SetInterval changes the sync interval of a running daemon.
func (d *Daemon) SetInterval(interval time.Duration) {
	if interval <= 0 {
		return
	}
	select {
	case <-d.intervals:
	default:
	}
	d.intervals <- interval
}

// LastReport returns the most recent report for a backend, or nil.
func (d *Daemon) LastReport(backendID string) *syncer.Report {
	d.reportsMu.Lock()
	defer d.reportsMu.Unlock()
	return d.reports[backendID]
}

// Passes returns the number of finished passes.
func (d *Daemon) Passes() int {
	d.reportsMu.Lock()
	defer d.reportsMu.Unlock()
	return d.passes
}

func (d *Daemon) syncLoop() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.config.SyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return
		case interval := <-d.intervals:
			d.config.Logger.Printf("Sync interval is now %s", interval)
			ticker.Reset(interval)
		case <-ticker.C:
			d.SyncNow(d.ctx)
		}
	}
}

// collectResults is the only consumer of the orchestrator's results.
func (d *Daemon) collectResults() {
	defer d.wg.Done()

	for {
		select {
		case <-d.ctx.Done():
			return
		case <-d.orch.Ready():
			for _, r := range d.orch.Poll() {
				d.handleResult(r)
			}
		}
	}
}

func (d *Daemon) handleResult(r orchestrator.Result) {
	d.tasksMu.Lock()
	backendID, ok := d.tasks[r.ID]
	delete(d.tasks, r.ID)
	d.tasksMu.Unlock()
	if !ok {
		return
	}

	report, _ := r.Value.(*syncer.Report)
	switch {
	case r.Err != nil:
		d.config.Logger.Printf("WARNING: Failed to sync %s: %v", backendID, r.Err)
	case report != nil:
		if err := report.Err(); err != nil {
			d.config.Logger.Printf("WARNING: %s: %v", report.Summary(), err)
		}
	}

	d.reportsMu.Lock()
	d.passes++
	if report != nil {
		d.reports[backendID] = report
	}
	d.reportsMu.Unlock()

	if d.config.Notifier != nil {
		d.config.Notifier.SyncFinished(backendID, report, r.Err)
	}
}

func (d *Daemon) watchConfig() {
	defer d.wg.Done()

	for {
		select {
		case <-d.ctx.Done():
			return
		case ev, ok := <-d.watcher.Events():
			if !ok {
				return
			}
			if ev.Op == OpDelete {
				continue
			}
			d.config.Logger.Printf("File event: %s %s", ev.Op, ev.Path)
			d.changedMu.Lock()
			d.changedAt = time.Now()
			d.changedMu.Unlock()
		case err, ok := <-d.watcher.Errors():
			if !ok {
				return
			}
			d.config.Logger.Printf("Watcher error: %v", err)
		}
	}
}

// processConfigChanges reloads the config once it has been quiet for the
// debounce interval.
func (d *Daemon) processConfigChanges() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.config.DebounceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return
		case <-ticker.C:
			d.changedMu.Lock()
			changed := d.changedAt
			due := !changed.IsZero() && time.Since(changed) >= d.config.DebounceInterval
			if due {
				d.changedAt = time.Time{}
			}
			d.changedMu.Unlock()
			if due {
				d.reload()
			}
		}
	}
}

func (d *Daemon) reload() {
	if d.config.Reload == nil {
		return
	}
	interval, err := d.config.Reload(d.config.ConfigPath)
	if err != nil {
		d.config.Logger.Printf("WARNING: Failed to reload config: %v", err)
		return
	}
	d.SetInterval(interval)
}
