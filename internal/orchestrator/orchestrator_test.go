package orchestrator

import (
	"context"
	"errors"
	"io"
	"log"
	"strings"
	"testing"
	"time"
)

func newTestOrchestrator(t *testing.T) *Orchestrator {
	t.Helper()
	o := New(log.New(io.Discard, "", 0))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = o.Shutdown(ctx)
	})
	return o
}

// waitResults polls until n results arrived or the test times out.
func waitResults(t *testing.T, o *Orchestrator, n int) []Result {
	t.Helper()
	var out []Result
	deadline := time.After(5 * time.Second)
	for len(out) < n {
		select {
		case <-o.Ready():
			out = append(out, o.Poll()...)
		case <-deadline:
			t.Fatalf("got %d results, want %d", len(out), n)
		}
	}
	return out
}

func TestSpawn_DeduplicatesByKey(t *testing.T) {
	o := newTestOrchestrator(t)
	release := make(chan struct{})
	runs := 0
	work := func(ctx context.Context) (any, error) {
		runs++
		<-release
		return "done", nil
	}

	spec := Spec{Kind: KindSync, Key: SyncKey("b1"), Description: "sync b1"}
	first, started := o.SpawnUnique(spec, work)
	if !started {
		t.Fatal("SpawnUnique() did not start the first task")
	}
	second, started := o.SpawnUnique(spec, work)
	if started {
		t.Error("SpawnUnique() started a second task for the same key")
	}
	if first != second {
		t.Errorf("second spawn returned id %d, want %d", second, first)
	}
	if !o.IsRunning(spec.Key) {
		t.Error("IsRunning() = false while task is in flight")
	}

	close(release)
	results := waitResults(t, o, 1)
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}
	if results[0].ID != first || results[0].Value != "done" {
		t.Errorf("unexpected result: %+v", results[0])
	}
	if runs != 1 {
		t.Errorf("work ran %d times, want 1", runs)
	}
	if o.IsRunning(spec.Key) {
		t.Error("key still reserved after Poll()")
	}

	third := o.Spawn(spec, func(ctx context.Context) (any, error) { return nil, nil })
	if third == first {
		t.Error("Spawn() after Poll() reused the finished task id")
	}
	waitResults(t, o, 1)
}

func TestSpawn_KeyHeldUntilPolled(t *testing.T) {
	o := newTestOrchestrator(t)
	spec := Spec{Kind: KindSync, Key: "k"}
	id := o.Spawn(spec, func(ctx context.Context) (any, error) { return 1, nil })

	<-o.Ready()
	if again := o.Spawn(spec, func(ctx context.Context) (any, error) { return 2, nil }); again != id {
		t.Errorf("Spawn() before Poll() = %d, want existing %d", again, id)
	}
	if n := o.InFlight(); n != 1 {
		t.Errorf("InFlight() = %d, want 1", n)
	}
	results := o.Poll()
	if len(results) != 1 || results[0].Value != 1 {
		t.Fatalf("Poll() = %+v", results)
	}
	if n := o.InFlight(); n != 0 {
		t.Errorf("InFlight() after Poll() = %d, want 0", n)
	}
}

func TestSpawn_IDsIncrease(t *testing.T) {
	o := newTestOrchestrator(t)
	noop := func(ctx context.Context) (any, error) { return nil, nil }
	a := o.Spawn(Spec{Kind: KindMutation}, noop)
	b := o.Spawn(Spec{Kind: KindMutation}, noop)
	if b <= a {
		t.Errorf("ids not increasing: %d then %d", a, b)
	}
	waitResults(t, o, 2)
}

func TestCancel(t *testing.T) {
	o := newTestOrchestrator(t)
	started := make(chan struct{})
	id := o.Spawn(Spec{Kind: KindSync, Key: "slow"}, func(ctx context.Context) (any, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	})
	<-started

	if !o.Cancel(id) {
		t.Fatal("Cancel() = false for a running task")
	}
	results := waitResults(t, o, 1)
	if !results[0].Cancelled {
		t.Error("Result.Cancelled = false")
	}
	if !errors.Is(results[0].Err, context.Canceled) {
		t.Errorf("Result.Err = %v, want context.Canceled", results[0].Err)
	}
	if o.Cancel(id) {
		t.Error("Cancel() = true for a polled task")
	}
}

func TestCancel_WorkPastPointOfNoReturnCompletes(t *testing.T) {
	o := newTestOrchestrator(t)
	started := make(chan struct{})
	release := make(chan struct{})
	id := o.Spawn(Spec{Kind: KindMutation}, func(ctx context.Context) (any, error) {
		close(started)
		<-release
		return "written", nil
	})
	<-started

	if !o.Cancel(id) {
		t.Fatal("Cancel() = false for a running task")
	}
	close(release)

	results := waitResults(t, o, 1)
	if results[0].Cancelled {
		t.Error("Result.Cancelled = true for work that completed")
	}
	if results[0].Err != nil || results[0].Value != "written" {
		t.Errorf("Result = %+v, want Value written and no error", results[0])
	}
}

func TestCancel_AfterCompletionReportsRealOutcome(t *testing.T) {
	o := newTestOrchestrator(t)
	id := o.Spawn(Spec{Kind: KindMutation}, func(ctx context.Context) (any, error) { return "ok", nil })
	<-o.Ready()

	if o.Cancel(id) {
		t.Error("Cancel() = true for a finished task")
	}
	results := o.Poll()
	if len(results) != 1 || results[0].Cancelled || results[0].Value != "ok" {
		t.Errorf("Poll() = %+v", results)
	}
}

func TestResult_ErrorForwardedUnchanged(t *testing.T) {
	o := newTestOrchestrator(t)
	want := errors.New("remote said no")
	o.Spawn(Spec{Kind: KindMutation}, func(ctx context.Context) (any, error) { return nil, want })
	results := waitResults(t, o, 1)
	if results[0].Err != want {
		t.Errorf("Result.Err = %v, want the original error value", results[0].Err)
	}
}

func TestSpawn_RecoversPanic(t *testing.T) {
	o := newTestOrchestrator(t)
	o.Spawn(Spec{Kind: KindMutation}, func(ctx context.Context) (any, error) { panic("boom") })
	results := waitResults(t, o, 1)
	if results[0].Err == nil || !strings.Contains(results[0].Err.Error(), "boom") {
		t.Errorf("Result.Err = %v, want panic message", results[0].Err)
	}
}

func TestShutdown(t *testing.T) {
	o := New(log.New(io.Discard, "", 0))
	o.Spawn(Spec{Kind: KindSync}, func(ctx context.Context) (any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := o.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown() failed: %v", err)
	}
	results := o.Poll()
	if len(results) != 1 || !results[0].Cancelled {
		t.Fatalf("Poll() after Shutdown() = %+v", results)
	}

	o.Spawn(Spec{Kind: KindSync}, func(ctx context.Context) (any, error) {
		t.Error("work ran after Shutdown()")
		return nil, nil
	})
	results = o.Poll()
	if len(results) != 1 || !results[0].Cancelled {
		t.Errorf("Spawn() after Shutdown() = %+v", results)
	}
}
