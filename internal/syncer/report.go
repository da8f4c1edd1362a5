package syncer

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/terminalist/terminalist/internal/model"
)

// Report describes one sync pass of one backend.
type Report struct {
	BackendID    string        `json:"backend_id" yaml:"backend_id"`
	BackendName  string        `json:"backend_name" yaml:"backend_name"`
	Started      time.Time     `json:"started" yaml:"started"`
	Finished     time.Time     `json:"finished" yaml:"finished"`
	Steps        []*StepReport `json:"steps" yaml:"steps"`
	PushFailures []PushFailure `json:"push_failures,omitempty" yaml:"push_failures,omitempty"`
	Conflicts    []Conflict    `json:"conflicts,omitempty" yaml:"conflicts,omitempty"`
}

// StepReport covers one entity kind: the pull and reconcile counts, the
// push counts, and the error that stopped the step, if any.
type StepReport struct {
	Kind model.Kind `json:"kind" yaml:"kind"`

	Fetched  int `json:"fetched" yaml:"fetched"`
	Upserted int `json:"upserted" yaml:"upserted"`
	Deleted  int `json:"deleted" yaml:"deleted"`
	// KeptLocal counts pulled records not applied because the local row
	// has unpushed edits.
	KeptLocal int `json:"kept_local" yaml:"kept_local"`
	// Orphaned counts pulled records dropped because their parent is unknown.
	Orphaned int `json:"orphaned" yaml:"orphaned"`

	Created int `json:"created" yaml:"created"`
	Updated int `json:"updated" yaml:"updated"`
	Removed int `json:"removed" yaml:"removed"`

	// Skipped is set when an earlier step failed and this one never ran.
	Skipped bool   `json:"skipped,omitempty" yaml:"skipped,omitempty"`
	Err     error  `json:"-" yaml:"-"`
	Error   string `json:"error,omitempty" yaml:"error,omitempty"`
}

func (s *StepReport) fail(err error) {
	s.Err = err
	s.Error = err.Error()
}

// PushFailure records a pending row that could not be pushed. The row keeps
// its pending state and is retried on the next pass.
type PushFailure struct {
	Kind    model.Kind      `json:"kind" yaml:"kind"`
	LocalID string          `json:"local_id" yaml:"local_id"`
	Op      model.PendingOp `json:"op" yaml:"op"`
	Err     error           `json:"-" yaml:"-"`
	Error   string          `json:"error" yaml:"error"`
}

// Conflict records a pulled record that violated a store constraint and was skipped.
type Conflict struct {
	Kind     model.Kind `json:"kind" yaml:"kind"`
	RemoteID string     `json:"remote_id" yaml:"remote_id"`
	Err      error      `json:"-" yaml:"-"`
	Error    string     `json:"error" yaml:"error"`
}

func newReport(b *model.Backend, started time.Time) *Report {
	r := &Report{BackendID: b.ID, BackendName: b.Name, Started: started}
	for _, kind := range model.SyncOrder {
		r.Steps = append(r.Steps, &StepReport{Kind: kind})
	}
	return r
}

// Step returns the report for kind, or nil if kind is not a sync step.
func (r *Report) Step(kind model.Kind) *StepReport {
	for _, s := range r.Steps {
		if s.Kind == kind {
			return s
		}
	}
	return nil
}

// Failed reports whether the push of localID failed in this pass.
func (r *Report) Failed(localID string) bool {
	for _, f := range r.PushFailures {
		if f.LocalID == localID {
			return true
		}
	}
	return false
}

func (r *Report) pushFailed(kind model.Kind, id string, op model.PendingOp, err error) {
	r.PushFailures = append(r.PushFailures, PushFailure{Kind: kind, LocalID: id, Op: op, Err: err, Error: err.Error()})
}

func (r *Report) conflict(kind model.Kind, remoteID string, err error) {
	r.Conflicts = append(r.Conflicts, Conflict{Kind: kind, RemoteID: remoteID, Err: err, Error: err.Error()})
}

// Err returns nil when every step ran and every push succeeded. Otherwise
// it returns the step error that stopped the pass or, failing that, all
// push failures joined. The underlying errors stay reachable with
// errors.Is and errors.As. Conflicts are not errors.
func (r *Report) Err() error {
	for _, s := range r.Steps {
		if s.Err != nil {
			return fmt.Errorf("sync %s: %s step failed: %w", r.BackendName, s.Kind, s.Err)
		}
	}
	if len(r.PushFailures) == 0 {
		return nil
	}
	errs := make([]error, len(r.PushFailures))
	for i, f := range r.PushFailures {
		errs[i] = fmt.Errorf("push %s %s %s: %w", f.Op, f.Kind, f.LocalID, f.Err)
	}
	return errors.Join(errs...)
}

// Summary renders one line suitable for a status message or a log.
func (r *Report) Summary() string {
	var in, out, gone int
	for _, s := range r.Steps {
		in += s.Upserted
		gone += s.Deleted
		out += s.Created + s.Updated + s.Removed
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %d pulled, %d removed, %d pushed", r.BackendName, in, gone, out)
	if n := len(r.PushFailures); n > 0 {
		fmt.Fprintf(&b, ", %d failed", n)
	}
	if n := len(r.Conflicts); n > 0 {
		fmt.Fprintf(&b, ", %d conflicts", n)
	}
	for _, s := range r.Steps {
		if s.Err != nil {
			fmt.Fprintf(&b, " (%s step failed)", s.Kind)
			break
		}
	}
	return b.String()
}

// Duration is the wall time of the pass.
func (r *Report) Duration() time.Duration {
	return r.Finished.Sub(r.Started)
}
