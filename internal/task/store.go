// Package task tracks the lifecycle of submitted executions: their
// status, timestamps, results, and the live handles needed to actually
// stream output from and cancel a running process.
package task

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Gao-OS/strata-gateway/internal/taxonomy"
)

// Status is a task's position in its lifecycle. Transitions only move
// forward: Created -> Queued -> Running -> {Completed, Failed, TimedOut,
// Cancelled}. There are no backward edges.
type Status string

const (
	StatusCreated   Status = "created"
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusTimedOut  Status = "timed_out"
	StatusCancelled Status = "cancelled"
)

// terminal reports whether a status has no further transitions.
func (s Status) terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusTimedOut, StatusCancelled:
		return true
	default:
		return false
	}
}

// forward is the adjacency list of the status DAG. A transition not
// listed here is rejected.
var forward = map[Status][]Status{
	StatusCreated: {StatusQueued, StatusRunning, StatusCancelled},
	StatusQueued:  {StatusRunning, StatusCancelled},
	StatusRunning: {StatusCompleted, StatusFailed, StatusTimedOut, StatusCancelled},
}

func canTransition(from, to Status) bool {
	for _, next := range forward[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Result is the terminal outcome of a task, present once status is
// terminal and nil before that.
type Result struct {
	ExitCode        *int
	Stdout          string
	Stderr          string
	Error           string
	CPUTimeMs       uint64
	MaxMemoryKB     uint64
	ExecutionTimeMs uint64
}

// Record is one task's full state. cancel and proc are live handles
// held only while the task is running; CancelTask uses them to
// actually terminate the worker rather than merely flip a status flag.
type Record struct {
	mu sync.Mutex

	ID          string
	Type        string
	Status      Status
	CreatedAt   time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
	Result      *Result

	cancel context.CancelFunc
	proc   *os.Process

	outputCh chan OutputChunk
}

// OutputChunk is one unit of streamed stdout/stderr output.
type OutputChunk struct {
	Stream string // "stdout" or "stderr"
	Data   []byte
	Done   bool
	Err    error
}

const outputChannelCapacity = 128

func newRecord(id, taskType string) *Record {
	return &Record{
		ID:        id,
		Type:      taskType,
		Status:    StatusCreated,
		CreatedAt: time.Now(),
		outputCh:  make(chan OutputChunk, outputChannelCapacity),
	}
}

// transitionLocked moves the record to `to`, enforcing the DAG and
// stamping timestamps. Caller holds r.mu.
func (r *Record) transitionLocked(to Status) error {
	if r.Status == to {
		return nil
	}
	if !canTransition(r.Status, to) {
		return taxonomy.New(taxonomy.Internal, "invalid task transition %s -> %s", r.Status, to)
	}
	now := time.Now()
	switch to {
	case StatusRunning:
		r.StartedAt = &now
	case StatusCompleted, StatusFailed, StatusTimedOut, StatusCancelled:
		r.CompletedAt = &now
	}
	r.Status = to
	return nil
}

// Snapshot is an immutable, lock-free view of a record's current
// state, safe to hand to callers outside the store.
type Snapshot struct {
	ID          string
	Type        string
	Status      Status
	CreatedAt   time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
	Result      *Result
}

func (r *Record) snapshotLocked() Snapshot {
	return Snapshot{
		ID:          r.ID,
		Type:        r.Type,
		Status:      r.Status,
		CreatedAt:   r.CreatedAt,
		StartedAt:   r.StartedAt,
		CompletedAt: r.CompletedAt,
		Result:      r.Result,
	}
}

// Store is a concurrent task registry, one process-wide instance per
// gateway. It is intentionally dependency-injected rather than a
// package-level singleton.
type Store struct {
	mu    sync.RWMutex
	tasks map[string]*Record
}

func NewStore() *Store {
	return &Store{tasks: make(map[string]*Record)}
}

// Create registers a new task in StatusCreated and returns its record.
func (s *Store) Create(taskType string) *Record {
	id := fmt.Sprintf("task-%s", uuid.NewString())
	rec := newRecord(id, taskType)
	s.mu.Lock()
	s.tasks[id] = rec
	s.mu.Unlock()
	return rec
}

// Get returns the record for id, or (nil, false) if unknown.
func (s *Store) Get(id string) (*Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.tasks[id]
	return rec, ok
}

// Snapshot returns the record's current state under its own lock.
func (r *Record) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

// Transition advances the record's status, enforcing the lifecycle DAG.
func (r *Record) Transition(to Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.transitionLocked(to)
}

// AttachProcess stores the live cancel func and OS process handle for
// a record that has started running, so Cancel can actually kill it.
func (r *Record) AttachProcess(cancel context.CancelFunc, proc *os.Process) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cancel = cancel
	r.proc = proc
}

// Complete transitions the record to a terminal status and stores its
// result. Calling Complete clears the live process handles.
func (r *Record) Complete(status Status, result Result) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.transitionLocked(status); err != nil {
		return err
	}
	r.Result = &result
	r.cancel = nil
	r.proc = nil
	close(r.outputCh)
	return nil
}

// Cancel transitions the record to Cancelled and terminates the
// underlying process if one is attached. Calling Cancel on an already
// terminal task is a no-op that returns nil, matching the idempotent
// cancellation the request surface promises.
func (r *Record) Cancel() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.Status.terminal() {
		return nil
	}

	if r.cancel != nil {
		r.cancel()
	}
	if r.proc != nil {
		_ = r.proc.Kill()
	}

	if err := r.transitionLocked(StatusCancelled); err != nil {
		return err
	}
	r.cancel = nil
	r.proc = nil
	return nil
}

// OutputChannel exposes the record's output stream for StreamTaskOutput
// handlers. Only one consumer should read from it at a time.
func (r *Record) OutputChannel() <-chan OutputChunk {
	return r.outputCh
}

// PushOutput enqueues a chunk for streaming consumers, dropping it if
// the channel is full rather than blocking the producer indefinitely.
func (r *Record) PushOutput(chunk OutputChunk) {
	select {
	case r.outputCh <- chunk:
	default:
	}
}
