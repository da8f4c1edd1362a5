// Package ui holds the terminal client's state machine.
//
// A Loop owns a State and is driven from one goroutine. Keys are translated
// into Actions by a Keymap; store reads, local mutations and sync passes run
// as orchestrator tasks whose results come back as Actions on a later Step.
// Nothing but Loop.apply changes State, and no orchestrator task touches it.
package ui

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/terminalist/terminalist/internal/dates"
	"github.com/terminalist/terminalist/internal/logging"
	"github.com/terminalist/terminalist/internal/model"
	"github.com/terminalist/terminalist/internal/orchestrator"
	"github.com/terminalist/terminalist/internal/store"
	"github.com/terminalist/terminalist/internal/syncer"
)

const loadKey = "load"

// Notifier receives sync and task events, e.g. to forward them to the
// dashboard. Calls are made from the loop goroutine and must not block.
type Notifier interface {
	SyncStarted(backendID string)
	SyncFinished(backendID string, report *syncer.Report, err error)
	TaskChanged(op string, task *model.Task)
}

// Renderer draws a snapshot.
type Renderer interface {
	Render(s *Snapshot)
}

// Options configures a Loop.
type Options struct {
	Engine       *syncer.Engine
	Orchestrator *orchestrator.Orchestrator
	Keymap       *Keymap // nil uses DefaultKeymap
	Logger       *log.Logger
	Logs         *logging.Ring // source of the log panel, may be nil
	Notifier     Notifier      // may be nil

	// SyncInterval spawns a sync of the active backend this often. Zero
	// disables auto-sync.
	SyncInterval time.Duration
	// MinRenderInterval forces a render this often even without changes,
	// so relative dates and spinners stay current.
	MinRenderInterval time.Duration
	// TickInterval is how often Run steps without input.
	TickInterval time.Duration

	DefaultView View
	BackendID   string
	SyncOnStart bool
}

// DefaultOptions returns the timing defaults.
func DefaultOptions() Options {
	return Options{
		MinRenderInterval: time.Second,
		TickInterval:      100 * time.Millisecond,
		DefaultView:       View{Kind: ViewToday},
	}
}

// pendingOp remembers why a task was spawned.
type pendingOp struct {
	name      string // "complete task", shown in error messages
	taskID    string
	backendID string // set for syncs
	// removes is set for operations after which the task leaves the list.
	removes bool
	// restores clears the undo target on success.
	restores bool
	// leaves is a view to move away from on success, e.g. a deleted project.
	leaves *View
}

// Loop is the event/render loop.
type Loop struct {
	opts     Options
	engine   *syncer.Engine
	orch     *orchestrator.Orchestrator
	keymap   *Keymap
	logger   *log.Logger
	notifier Notifier

	state   *State
	pending map[orchestrator.ID]pendingOp

	reloadAgain  bool
	dirty        bool
	now          time.Time
	lastRender   time.Time
	lastAutoSync time.Time
	logSeq       uint64
}

// NewLoop creates a Loop. Engine and Orchestrator are required.
func NewLoop(opts Options) *Loop {
	if opts.Keymap == nil {
		opts.Keymap = DefaultKeymap()
	}
	if opts.Logger == nil {
		opts.Logger = log.New(os.Stderr, "[ui] ", log.LstdFlags)
	}
	if opts.TickInterval <= 0 {
		opts.TickInterval = 100 * time.Millisecond
	}
	if opts.DefaultView.Kind == "" {
		opts.DefaultView = View{Kind: ViewToday}
	}
	l := &Loop{
		opts:     opts,
		engine:   opts.Engine,
		orch:     opts.Orchestrator,
		keymap:   opts.Keymap,
		logger:   opts.Logger,
		notifier: opts.Notifier,
		state:    newState(opts.DefaultView),
		pending:  make(map[orchestrator.ID]pendingOp),
	}
	l.state.backendID = opts.BackendID
	return l
}

// Keymap returns the keymap, for the help overlay.
func (l *Loop) Keymap() *Keymap {
	return l.keymap
}

// Start loads the first view and, if configured, starts a sync.
func (l *Loop) Start(now time.Time) {
	l.now = now
	l.lastAutoSync = now
	l.reload()
	if l.opts.SyncOnStart {
		l.apply(StartSync{Auto: true})
	}
	l.dirty = true
}

// Snapshot returns a copy of the current state.
func (l *Loop) Snapshot() *Snapshot {
	return l.state.Snapshot()
}

// Done reports whether Quit was applied.
func (l *Loop) Done() bool {
	return l.state.quit
}

// Step runs one iteration. Each input is translated against the state left
// by the previous one and applied; then finished tasks are applied in the
// order Poll returns them. It reports whether the caller should render.
func (l *Loop) Step(inputs []Input, now time.Time) bool {
	l.now = now
	for _, in := range inputs {
		if a := l.keymap.Translate(in, l.state.Snapshot()); a != nil {
			l.apply(a)
		}
	}
	for _, r := range l.orch.Poll() {
		if a := l.resultAction(r); a != nil {
			l.apply(a)
		}
	}
	l.autoSync(now)
	l.refreshLogs()

	render := l.dirty || now.Sub(l.lastRender) >= l.opts.MinRenderInterval
	if render {
		l.dirty = false
		l.lastRender = now
	}
	return render
}

// Run drives the loop until Quit or ctx is done. It steps on every tick,
// on every batch of inputs and whenever a task finishes.
func (l *Loop) Run(ctx context.Context, inputs <-chan Input, r Renderer) error {
	ticker := time.NewTicker(l.opts.TickInterval)
	defer ticker.Stop()

	l.Start(time.Now())
	for !l.state.quit {
		var batch []Input
		select {
		case <-ctx.Done():
			return ctx.Err()
		case in, ok := <-inputs:
			if !ok {
				inputs = nil
				continue
			}
			batch = append(batch, in)
			batch = drain(inputs, batch)
		case <-ticker.C:
		case <-l.orch.Ready():
		}
		if l.Step(batch, time.Now()) {
			r.Render(l.state.Snapshot())
		}
	}
	return nil
}

func drain(inputs <-chan Input, batch []Input) []Input {
	for {
		select {
		case in, ok := <-inputs:
			if !ok {
				return batch
			}
			batch = append(batch, in)
		default:
			return batch
		}
	}
}

func (l *Loop) autoSync(now time.Time) {
	if l.opts.SyncInterval <= 0 || now.Sub(l.lastAutoSync) < l.opts.SyncInterval {
		return
	}
	l.lastAutoSync = now
	l.apply(StartSync{Auto: true})
}

func (l *Loop) refreshLogs() {
	if l.opts.Logs == nil {
		return
	}
	seq := l.opts.Logs.Seq()
	if seq == l.logSeq {
		return
	}
	l.logSeq = seq
	l.state.logs = l.opts.Logs.Lines()
	if l.state.dialog == DialogLogs {
		l.dirty = true
	}
}

func (l *Loop) resultAction(r orchestrator.Result) Action {
	op, ok := l.pending[r.ID]
	delete(l.pending, r.ID)

	switch r.Kind {
	case orchestrator.KindLoad:
		d, _ := r.Value.(*Data)
		return DataLoaded{Data: d, Err: r.Err}
	case orchestrator.KindSync:
		report, _ := r.Value.(*syncer.Report)
		return SyncFinished{BackendID: op.backendID, Report: report, Err: r.Err}
	case orchestrator.KindMutation:
		if !ok {
			return nil
		}
		return MutationFinished{Value: r.Value, Err: r.Err, Cancelled: r.Cancelled, op: op}
	}
	return nil
}

// reload reads the current view in the background. A reload requested
// while one is running is queued, so the last one always sees fresh data.
func (l *Loop) reload() {
	backendID, view, now := l.state.backendID, l.state.view, l.now
	db := l.engine.DB()
	_, started := l.orch.SpawnUnique(
		orchestrator.Spec{Kind: orchestrator.KindLoad, Key: loadKey, Description: "load " + string(view.Kind)},
		func(ctx context.Context) (any, error) { return loadData(ctx, db, backendID, view, now) },
	)
	if !started {
		l.reloadAgain = true
	}
	l.state.loading = true
}

func (l *Loop) spawnMutation(op pendingOp, work orchestrator.Work) {
	spec := orchestrator.Spec{Kind: orchestrator.KindMutation, Description: op.name}
	if op.taskID != "" {
		spec.Key = "task:" + op.taskID
	}
	id, started := l.orch.SpawnUnique(spec, work)
	if !started {
		l.state.infoMessage = "Still saving the previous change to this task"
		return
	}
	l.pending[id] = op
}

func (l *Loop) requireBackend() bool {
	if l.state.backendID != "" {
		return true
	}
	l.state.errorMessage = "No backend configured; add one with 'terminalist backend add'"
	return false
}

func (l *Loop) closeDialog() {
	l.state.dialog = DialogNone
	l.state.dialogTarget = Target{}
	l.state.dialogText = ""
}

func (l *Loop) apply(a Action) {
	l.dirty = true
	s := l.state
	switch a := a.(type) {
	case Navigate:
		s.view = a.View
		s.cursor = 0
		l.closeDialog()
		l.reload()
	case CursorDown:
		s.cursor++
		s.clampCursor()
	case CursorUp:
		s.cursor--
		s.clampCursor()
	case SwitchBackend:
		if a.BackendID == s.backendID {
			return
		}
		s.backendID = a.BackendID
		// Project and label ids belong to the previous backend.
		if s.view.Kind == ViewProject || s.view.Kind == ViewLabel {
			s.view = View{Kind: ViewToday}
		}
		s.cursor = 0
		s.lastRemoved = ""
		l.reload()

	case OpenDialog:
		s.dialog = a.Dialog
		s.dialogTarget = a.Target
		s.dialogText = a.Text
	case CloseDialog:
		l.closeDialog()

	case CreateTask:
		l.closeDialog()
		if !l.requireBackend() {
			return
		}
		l.createTask(a)
	case EditTask:
		l.closeDialog()
		content := a.Content
		l.spawnTaskUpdate("edit task", a.ID, store.TaskPatch{Content: &content})
	case CompleteTask:
		s.completing[a.ID] = true
		id := a.ID
		l.spawnMutation(pendingOp{name: "complete task", taskID: id, removes: true},
			func(ctx context.Context) (any, error) { return l.engine.CompleteTask(ctx, id) })
	case DeleteTask:
		l.closeDialog()
		s.deleting[a.ID] = true
		id := a.ID
		l.spawnMutation(pendingOp{name: "delete task", taskID: id, removes: true},
			func(ctx context.Context) (any, error) { return nil, l.engine.DeleteTask(ctx, id) })
	case RestoreTask:
		id := a.ID
		if id == "" {
			id = s.lastRemoved
		}
		if id == "" {
			return
		}
		l.spawnMutation(pendingOp{name: "restore task", taskID: id, restores: true},
			func(ctx context.Context) (any, error) { return l.engine.RestoreTask(ctx, id) })
	case CyclePriority:
		id := a.ID
		l.spawnMutation(pendingOp{name: "change priority", taskID: id},
			func(ctx context.Context) (any, error) { return l.engine.CyclePriority(ctx, id) })
	case SetDue:
		l.closeDialog()
		l.setDue(a)

	case CreateProject:
		l.closeDialog()
		if !l.requireBackend() {
			return
		}
		p := &model.Project{BackendID: s.backendID, Name: a.Name}
		if a.ParentID != "" {
			parent := a.ParentID
			p.ParentID = &parent
		}
		l.spawnMutation(pendingOp{name: "create project"},
			func(ctx context.Context) (any, error) { return l.engine.CreateProject(ctx, p) })
	case EditProject:
		l.closeDialog()
		id, name := a.ID, a.Name
		l.spawnMutation(pendingOp{name: "rename project"},
			func(ctx context.Context) (any, error) {
				return l.engine.UpdateProject(ctx, id, store.ProjectPatch{Name: &name})
			})
	case DeleteProject:
		l.closeDialog()
		id := a.ID
		l.spawnMutation(pendingOp{name: "delete project", leaves: &View{Kind: ViewProject, ID: id}},
			func(ctx context.Context) (any, error) { return nil, l.engine.DeleteProject(ctx, id) })
	case CreateLabel:
		l.closeDialog()
		if !l.requireBackend() {
			return
		}
		lb := &model.Label{BackendID: s.backendID, Name: a.Name}
		l.spawnMutation(pendingOp{name: "create label"},
			func(ctx context.Context) (any, error) { return l.engine.CreateLabel(ctx, lb) })
	case EditLabel:
		l.closeDialog()
		id, name := a.ID, a.Name
		l.spawnMutation(pendingOp{name: "rename label"},
			func(ctx context.Context) (any, error) {
				return l.engine.UpdateLabel(ctx, id, store.LabelPatch{Name: &name})
			})
	case DeleteLabel:
		l.closeDialog()
		id := a.ID
		l.spawnMutation(pendingOp{name: "delete label", leaves: &View{Kind: ViewLabel, ID: id}},
			func(ctx context.Context) (any, error) { return nil, l.engine.DeleteLabel(ctx, id) })

	case Search:
		l.closeDialog()
		s.view = View{Kind: ViewSearch, Query: a.Query}
		s.cursor = 0
		l.reload()

	case StartSync:
		l.startSync(a)
	case SyncFinished:
		l.syncFinished(a)
	case MutationFinished:
		l.mutationFinished(a)
	case DataLoaded:
		l.dataLoaded(a)

	case DismissMessage:
		s.errorMessage = ""
		s.infoMessage = ""
	case ToggleHelp:
		if s.dialog == DialogHelp {
			l.closeDialog()
		} else {
			s.dialog = DialogHelp
		}
	case ToggleLogs:
		if s.dialog == DialogLogs {
			l.closeDialog()
		} else {
			s.dialog = DialogLogs
		}
	case Quit:
		s.quit = true
	}
}

func (l *Loop) createTask(a CreateTask) {
	s := l.state
	t := &model.Task{
		BackendID: s.backendID,
		ProjectID: a.ProjectID,
		Content:   a.Content,
		Priority:  model.PriorityNormal,
	}
	// New tasks land in the list they were typed into.
	switch s.view.Kind {
	case ViewToday:
		d := model.FormatDate(model.StartOfDay(l.now))
		t.DueDate = &d
	case ViewTomorrow:
		d := model.FormatDate(model.StartOfDay(l.now).AddDate(0, 0, 1))
		t.DueDate = &d
	case ViewLabel:
		if lb := s.label(s.view.ID); lb != nil {
			t.Labels = []string{lb.Name}
		}
	}
	l.spawnMutation(pendingOp{name: "create task"},
		func(ctx context.Context) (any, error) { return l.engine.CreateTask(ctx, t) })
}

func (l *Loop) spawnTaskUpdate(name, id string, patch store.TaskPatch) {
	l.spawnMutation(pendingOp{name: name, taskID: id},
		func(ctx context.Context) (any, error) { return l.engine.UpdateTask(ctx, id, patch) })
}

func (l *Loop) setDue(a SetDue) {
	var (
		due dates.Due
		err error
	)
	if a.Preset != "" {
		due, err = dates.FromPreset(a.Preset, l.now)
	} else {
		due, err = dates.Parse(a.Text, l.now)
	}
	if err != nil {
		l.state.errorMessage = err.Error()
		return
	}
	patch := store.TaskPatch{DueDate: due.Date, DueDatetime: due.Datetime, ClearDue: due.IsZero()}
	l.spawnTaskUpdate("set due date", a.ID, patch)
}

func (l *Loop) startSync(a StartSync) {
	s := l.state
	if s.backendID == "" {
		if !a.Auto {
			l.requireBackend()
		}
		return
	}
	backendID := s.backendID
	id, started := l.orch.SpawnUnique(
		orchestrator.Spec{Kind: orchestrator.KindSync, Key: orchestrator.SyncKey(backendID), Description: "sync " + backendID},
		func(ctx context.Context) (any, error) { return l.engine.SyncAll(ctx, backendID) },
	)
	if !started {
		if !a.Auto {
			s.infoMessage = "Sync already running"
		}
		return
	}
	l.pending[id] = pendingOp{name: "sync", backendID: backendID}
	s.syncing = true
	if l.notifier != nil {
		l.notifier.SyncStarted(backendID)
	}
}

func (l *Loop) syncFinished(a SyncFinished) {
	s := l.state
	s.syncing = l.orch.IsRunning(orchestrator.SyncKey(s.backendID))
	if l.notifier != nil {
		l.notifier.SyncFinished(a.BackendID, a.Report, a.Err)
	}
	if a.Err != nil {
		l.presentError("sync", a.Err)
		return
	}
	if a.Report != nil {
		s.lastSync = a.Report.Finished
		s.lastSyncSummary = a.Report.Summary()
		l.presentError("sync", a.Report.Err())
	}
	if a.BackendID == s.backendID {
		l.reload()
	}
}

func (l *Loop) mutationFinished(a MutationFinished) {
	s := l.state
	op := a.op
	delete(s.completing, op.taskID)
	delete(s.deleting, op.taskID)
	if a.Cancelled {
		return
	}
	if a.Err != nil {
		l.presentError(op.name, a.Err)
		l.reload()
		return
	}

	switch {
	case op.removes:
		s.lastRemoved = op.taskID
	case op.restores:
		s.lastRemoved = ""
	}
	if op.leaves != nil && s.view.Kind == op.leaves.Kind && s.view.ID == op.leaves.ID {
		s.view = View{Kind: ViewToday}
		s.cursor = 0
	}
	if l.notifier != nil {
		t, _ := a.Value.(*model.Task)
		if t == nil && op.taskID != "" {
			t = &model.Task{ID: op.taskID, BackendID: s.backendID}
		}
		if t != nil {
			l.notifier.TaskChanged(op.name, t)
		}
	}
	l.reload()
}

func (l *Loop) dataLoaded(a DataLoaded) {
	s := l.state
	if l.reloadAgain {
		// The backend, the view or the data changed while this load ran.
		l.reloadAgain = false
		l.reload()
		return
	}
	s.loading = false
	if a.Err != nil {
		l.presentError("load tasks", a.Err)
		return
	}
	d := a.Data
	if d == nil {
		return
	}

	var selected string
	if t := s.selectedTask(); t != nil {
		selected = t.ID
	}
	s.backends = d.Backends
	s.backendID = d.BackendID
	s.projects = d.Projects
	s.sections = d.Sections
	s.labels = d.Labels
	s.counts = d.Counts
	if d.LastSync.After(s.lastSync) {
		s.lastSync = d.LastSync
	}
	s.tasks = d.Tasks
	if selected != "" {
		for i, t := range s.tasks {
			if t.ID == selected {
				s.cursor = i
				break
			}
		}
	}
	s.clampCursor()
}
