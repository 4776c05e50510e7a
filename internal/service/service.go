// Package service orchestrates the gateway's request surface: it
// validates and policy-checks incoming calls, hands executions to the
// sandbox runner, tracks task lifecycle, and applies the uniform
// error-handling middleware (counters, leveled logging, wire payload)
// around every handler.
package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Gao-OS/strata-gateway/internal/obs"
	"github.com/Gao-OS/strata-gateway/internal/policy"
	"github.com/Gao-OS/strata-gateway/internal/sandbox"
	"github.com/Gao-OS/strata-gateway/internal/task"
	"github.com/Gao-OS/strata-gateway/internal/taxonomy"
)

// Identity is the caller information the transport layer's
// authenticator resolves and every handler consumes to build a policy
// input. Concrete callers pass *capability.Capability, adapted via its
// ToUserInfo method; Identity is kept minimal so this package does not
// depend on the capability package.
type Identity interface {
	ToUserInfo() policy.UserInfo
}

// Service wires together the policy engine, sandbox runner, and task
// store (C1-C4) behind the request surface described by §2 (C5).
type Service struct {
	policyEngine *policy.Engine
	runner       *sandbox.Runner
	tasks        *task.Store
	counters     *taxonomy.Counters
	metrics      *obs.Metrics
	log          logrus.FieldLogger
	startTime    time.Time
	version      string
}

func New(policyEngine *policy.Engine, runner *sandbox.Runner, tasks *task.Store, counters *taxonomy.Counters, metrics *obs.Metrics, log logrus.FieldLogger, version string) *Service {
	return &Service{
		policyEngine: policyEngine,
		runner:       runner,
		tasks:        tasks,
		counters:     counters,
		metrics:      metrics,
		log:          log,
		startTime:    time.Now(),
		version:      version,
	}
}

// logLevelFor implements the per-kind log-level table: auth/policy
// denials warn, invalid requests are debug noise, everything else is
// an error worth paging on.
func logLevelFor(kind taxonomy.Kind) logrus.Level {
	switch kind {
	case taxonomy.Auth, taxonomy.PolicyViolation:
		return logrus.WarnLevel
	case taxonomy.InvalidRequest:
		return logrus.DebugLevel
	default:
		return logrus.ErrorLevel
	}
}

// wrap is the error-handling middleware every handler method below
// routes its outcome through: it increments the kind- and code-keyed
// counters, logs at the kind's configured level, and records the
// error metric. A *taxonomy.Error is returned unchanged; any other
// error is converted to an Internal one.
func (s *Service) wrap(method string, err error) error {
	if err == nil {
		return nil
	}
	te, ok := err.(*taxonomy.Error)
	if !ok {
		te = taxonomy.New(taxonomy.Internal, "%v", err)
	}
	s.counters.Record(te)
	if s.metrics != nil {
		s.metrics.ObserveError(string(te.Kind), fmt.Sprintf("%d", te.Code()))
	}
	entry := s.log.WithFields(logrus.Fields{"method": method, "kind": te.Kind, "code": te.Code()})
	switch logLevelFor(te.Kind) {
	case logrus.DebugLevel:
		entry.Debug(te.Message)
	case logrus.WarnLevel:
		entry.Warn(te.Message)
	default:
		entry.Error(te.Message)
	}
	return te
}

// HealthResponse mirrors the health check's wire shape.
type HealthResponse struct {
	Status        string `json:"status"`
	Version       string `json:"version"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

// Health reports liveness. When includeStats is set (the
// include-stats request metadata flag), the status string is
// annotated with uptime and total recorded error count.
func (s *Service) Health(includeStats bool) HealthResponse {
	uptime := int64(time.Since(s.startTime).Seconds())
	resp := HealthResponse{Status: "ok", Version: s.version, UptimeSeconds: uptime}
	if includeStats {
		var total int64
		for k, v := range s.counters.Stats() {
			// Each error bumps a kind key and a code_NNNN key; count it once.
			if len(k) < 5 || k[:5] != "code_" {
				total += v
			}
		}
		resp.Status = fmt.Sprintf("ok [uptime=%ds, errors=%d]", uptime, total)
	}
	return resp
}

// ExecuteCommandRequest is the validated input to ExecuteCommand.
type ExecuteCommandRequest struct {
	Command     string
	Args        []string
	Env         map[string]string
	Cwd         string
	TimeoutSecs uint32
	Metadata    map[string]string
}

func validateExecuteCommand(req ExecuteCommandRequest) error {
	if req.Command == "" {
		return taxonomy.New(taxonomy.InvalidRequest, "command must not be empty")
	}
	if req.TimeoutSecs == 0 {
		return taxonomy.New(taxonomy.InvalidRequest, "timeout must be greater than zero seconds")
	}
	return nil
}

// ExecuteCommand policy-checks req, registers a task, and spawns an
// asynchronous worker that drives the task through Running to its
// terminal status. It returns the task id immediately; it never
// blocks on the command's own execution.
func (s *Service) ExecuteCommand(ctx context.Context, req ExecuteCommandRequest, identity Identity) (string, error) {
	if err := validateExecuteCommand(req); err != nil {
		return "", s.wrap("execute_command", err)
	}

	user := policy.UserInfo{ID: "anonymous", Roles: []string{"user"}}
	if identity != nil {
		user = identity.ToUserInfo()
	}

	policyInput := policy.Input{
		User: user,
		Command: policy.CommandInfo{
			Name: req.Command,
			Args: req.Args,
			Cwd:  req.Cwd,
			Env:  req.Env,
		},
	}

	_, err := s.policyEngine.CheckCommandExecution(policyInput)
	if s.metrics != nil {
		result := "allowed"
		if err != nil {
			result = "denied"
		}
		s.metrics.ObservePolicyEvaluation("command_execution", result)
	}
	if err != nil {
		return "", s.wrap("execute_command", err)
	}

	rec := s.tasks.Create("execute_command")
	if err := rec.Transition(task.StatusQueued); err != nil {
		return "", s.wrap("execute_command", err)
	}

	if s.metrics != nil {
		s.metrics.IncActiveTasks()
	}

	go s.runCommandWorker(rec, req)

	return rec.ID, nil
}

func (s *Service) runCommandWorker(rec *task.Record, req ExecuteCommandRequest) {
	defer func() {
		if s.metrics != nil {
			s.metrics.DecActiveTasks()
		}
	}()

	if err := rec.Transition(task.StatusRunning); err != nil {
		s.log.WithError(err).Error("failed to transition task to running")
		return
	}

	execCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sandboxTimer := time.Now()
	result, err := s.runner.Run(execCtx, sandbox.Request{
		Command:       req.Command,
		Args:          req.Args,
		Env:           req.Env,
		Cwd:           req.Cwd,
		TimeoutSecs:   req.TimeoutSecs,
		SandboxConfig: sandbox.DefaultConfig(),
	}, func(proc *os.Process) {
		rec.AttachProcess(cancel, proc)
	}, func(stream string, data []byte) {
		rec.PushOutput(task.OutputChunk{Stream: stream, Data: data})
	})

	if s.metrics != nil {
		s.metrics.ObserveSandboxExecutionTime(req.Command, time.Since(sandboxTimer))
	}

	if err != nil {
		status := task.StatusFailed
		if isTimeout(err) {
			status = task.StatusTimedOut
		}
		if rec.Snapshot().Status == task.StatusCancelled {
			return
		}
		exitCode := -1
		_ = rec.Complete(status, task.Result{ExitCode: &exitCode, Stderr: "Error: " + err.Error(), Error: err.Error()})
		if s.metrics != nil {
			s.metrics.ObserveTaskLatency(rec.Type, string(status), time.Since(rec.Snapshot().CreatedAt))
		}
		return
	}

	_ = rec.Complete(task.StatusCompleted, task.Result{
		ExitCode:        result.ExitCode,
		Stdout:          result.Stdout,
		Stderr:          result.Stderr,
		CPUTimeMs:       result.ResourceUsage.CPUTimeMs,
		MaxMemoryKB:     result.ResourceUsage.MaxMemoryKB,
		ExecutionTimeMs: result.ExecutionTimeMs,
	})
	if s.metrics != nil {
		s.metrics.ObserveTaskLatency(rec.Type, string(task.StatusCompleted), time.Duration(result.ExecutionTimeMs)*time.Millisecond)
	}
}

func isTimeout(err error) bool {
	msg := err.Error()
	return len(msg) >= 9 && (contains(msg, "timed out"))
}

func contains(s, substr string) bool {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}

// GetTaskStatus returns the current snapshot for taskID.
func (s *Service) GetTaskStatus(taskID string) (task.Snapshot, error) {
	rec, ok := s.tasks.Get(taskID)
	if !ok {
		return task.Snapshot{}, s.wrap("get_task_status", taxonomy.New(taxonomy.NotFound, "task not found: %s", taskID))
	}
	return rec.Snapshot(), nil
}

// StreamTaskOutput forwards output chunks for taskID to onChunk until
// the task's output channel closes (the task completed) or ctx is
// cancelled.
func (s *Service) StreamTaskOutput(ctx context.Context, taskID string, onChunk func(task.OutputChunk) error) error {
	rec, ok := s.tasks.Get(taskID)
	if !ok {
		return s.wrap("stream_task_output", taxonomy.New(taxonomy.NotFound, "task not found: %s", taskID))
	}

	ch := rec.OutputChannel()
	for {
		select {
		case chunk, open := <-ch:
			if !open {
				return nil
			}
			if err := onChunk(chunk); err != nil {
				return err
			}
		case <-ctx.Done():
			return nil
		}
	}
}

// CancelTask cancels taskID. Cancelling an already-terminal task is a
// no-op (no status change, no error), matching the idempotent contract.
func (s *Service) CancelTask(taskID string) (task.Snapshot, error) {
	rec, ok := s.tasks.Get(taskID)
	if !ok {
		return task.Snapshot{}, s.wrap("cancel_task", taxonomy.New(taxonomy.NotFound, "task not found: %s", taskID))
	}
	if err := rec.Cancel(); err != nil {
		return task.Snapshot{}, s.wrap("cancel_task", err)
	}
	return rec.Snapshot(), nil
}

// ReadFileResult is the outcome of a successful ReadFile.
type ReadFileResult struct {
	Data []byte
}

// ReadFile policy-checks then reads path.
func (s *Service) ReadFile(path string, identity Identity) (ReadFileResult, error) {
	if path == "" {
		return ReadFileResult{}, s.wrap("read_file", taxonomy.New(taxonomy.InvalidRequest, "path must not be empty"))
	}
	if err := s.checkFile(path, "read", identity); err != nil {
		return ReadFileResult{}, s.wrap("read_file", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return ReadFileResult{}, s.wrap("read_file", taxonomy.FromIOError(err))
	}
	return ReadFileResult{Data: data}, nil
}

// WriteFile policy-checks then writes data to path, optionally
// creating parent directories first.
func (s *Service) WriteFile(path string, data []byte, mode os.FileMode, createDirs bool, identity Identity) error {
	if path == "" {
		return s.wrap("write_file", taxonomy.New(taxonomy.InvalidRequest, "path must not be empty"))
	}
	if err := s.checkFile(path, "write", identity); err != nil {
		return s.wrap("write_file", err)
	}
	if createDirs {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return s.wrap("write_file", taxonomy.FromIOError(err))
		}
	}
	if mode == 0 {
		mode = 0o644
	}
	if err := os.WriteFile(path, data, mode); err != nil {
		return s.wrap("write_file", taxonomy.FromIOError(err))
	}
	return nil
}

// DeleteFile policy-checks then deletes path, recursively if requested.
func (s *Service) DeleteFile(path string, recursive bool, identity Identity) error {
	if path == "" {
		return s.wrap("delete_file", taxonomy.New(taxonomy.InvalidRequest, "path must not be empty"))
	}
	if err := s.checkFile(path, "write", identity); err != nil {
		return s.wrap("delete_file", err)
	}
	var err error
	if recursive {
		err = os.RemoveAll(path)
	} else {
		err = os.Remove(path)
	}
	if err != nil {
		return s.wrap("delete_file", taxonomy.FromIOError(err))
	}
	return nil
}

func (s *Service) checkFile(path, mode string, identity Identity) error {
	user := policy.UserInfo{ID: "anonymous", Roles: []string{"user"}}
	if identity != nil {
		user = identity.ToUserInfo()
	}
	input := policy.Input{User: user, File: &policy.FileInfo{Path: path, Mode: mode}}
	_, err := s.policyEngine.CheckFileAccess(input)
	if s.metrics != nil {
		result := "allowed"
		if err != nil {
			result = "denied"
		}
		s.metrics.ObservePolicyEvaluation("file_access", result)
	}
	return err
}
