package task

import (
	"strings"
	"sync"
	"testing"
)

func TestCreateAndGet(t *testing.T) {
	store := NewStore()
	rec := store.Create("execute_command")

	if !strings.HasPrefix(rec.ID, "task-") {
		t.Errorf("expected task- prefixed id, got %q", rec.ID)
	}

	got, ok := store.Get(rec.ID)
	if !ok {
		t.Fatal("expected task to be found")
	}
	if got.Snapshot().Status != StatusCreated {
		t.Errorf("status = %v, want Created", got.Snapshot().Status)
	}
}

func TestGetUnknownTask(t *testing.T) {
	store := NewStore()
	_, ok := store.Get("task-does-not-exist")
	if ok {
		t.Fatal("expected not found")
	}
}

func TestLifecycleHappyPath(t *testing.T) {
	store := NewStore()
	rec := store.Create("execute_command")

	if err := rec.Transition(StatusQueued); err != nil {
		t.Fatalf("Created->Queued: %v", err)
	}
	if err := rec.Transition(StatusRunning); err != nil {
		t.Fatalf("Queued->Running: %v", err)
	}
	exit := 0
	if err := rec.Complete(StatusCompleted, Result{ExitCode: &exit}); err != nil {
		t.Fatalf("Running->Completed: %v", err)
	}

	snap := rec.Snapshot()
	if snap.Status != StatusCompleted {
		t.Errorf("status = %v, want Completed", snap.Status)
	}
	if snap.StartedAt == nil || snap.CompletedAt == nil {
		t.Error("expected both StartedAt and CompletedAt to be set")
	}
	if snap.Result == nil || snap.Result.ExitCode == nil || *snap.Result.ExitCode != 0 {
		t.Errorf("unexpected result: %+v", snap.Result)
	}
}

func TestNoBackwardTransitions(t *testing.T) {
	store := NewStore()
	rec := store.Create("execute_command")
	_ = rec.Transition(StatusQueued)
	_ = rec.Transition(StatusRunning)
	_ = rec.Complete(StatusCompleted, Result{})

	if err := rec.Transition(StatusRunning); err == nil {
		t.Fatal("expected terminal status to reject further transitions")
	}
}

func TestInvalidSkipTransitionRejected(t *testing.T) {
	store := NewStore()
	rec := store.Create("execute_command")

	if err := rec.Transition(StatusCompleted); err == nil {
		t.Fatal("expected Created->Completed to be rejected")
	}
}

func TestCancelIsIdempotentOnTerminal(t *testing.T) {
	store := NewStore()
	rec := store.Create("execute_command")
	_ = rec.Transition(StatusQueued)
	_ = rec.Transition(StatusRunning)
	_ = rec.Complete(StatusCompleted, Result{})

	if err := rec.Cancel(); err != nil {
		t.Fatalf("expected no-op cancel on terminal task, got %v", err)
	}
	if rec.Snapshot().Status != StatusCompleted {
		t.Error("cancel must not override an already-terminal status")
	}
}

func TestCancelRunningTaskInvokesCancelFunc(t *testing.T) {
	store := NewStore()
	rec := store.Create("execute_command")
	_ = rec.Transition(StatusQueued)
	_ = rec.Transition(StatusRunning)

	called := false
	rec.AttachProcess(func() { called = true }, nil)

	if err := rec.Cancel(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Error("expected cancel func to be invoked")
	}
	if rec.Snapshot().Status != StatusCancelled {
		t.Errorf("status = %v, want Cancelled", rec.Snapshot().Status)
	}
}

func TestConcurrentCreateAndGet(t *testing.T) {
	store := NewStore()
	var wg sync.WaitGroup
	ids := make([]string, 50)

	for i := 0; i < 50; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec := store.Create("execute_command")
			ids[i] = rec.ID
		}()
	}
	wg.Wait()

	for _, id := range ids {
		if _, ok := store.Get(id); !ok {
			t.Errorf("expected task %q to be retrievable", id)
		}
	}
}
