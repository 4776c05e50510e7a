package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"time"

	"github.com/sirupsen/logrus"
)

// OnStart is invoked once the child process has started, with its live
// OS process handle, so a caller can register it for cancellation
// before the command finishes running.
type OnStart func(proc *os.Process)

// OnOutput is invoked once per write the child makes to stdout or
// stderr, with stream set to "stdout" or "stderr". Callers use it to
// stream output live rather than waiting for the process to exit; it
// is called synchronously from the child's own output-copying
// goroutine, so implementations must not block.
type OnOutput func(stream string, data []byte)

// chunkWriter adapts an OnOutput callback to an io.Writer so it can sit
// alongside the aggregate stdout/stderr buffer in an io.MultiWriter.
type chunkWriter struct {
	stream   string
	onOutput OnOutput
}

func (w chunkWriter) Write(p []byte) (int, error) {
	if w.onOutput != nil && len(p) > 0 {
		data := make([]byte, len(p))
		copy(data, p)
		w.onOutput(w.stream, data)
	}
	return len(p), nil
}

// Runner executes commands, routing through bubblewrap when available
// and the execution request asks for it, and falls back to direct
// execution (with a loud warning) otherwise.
type Runner struct {
	bubblewrap *BubblewrapWrapper
	seccomp    *SeccompManager
	log        logrus.FieldLogger
}

// NewRunner probes for bubblewrap and logs the resulting posture, same
// as the reference runner's constructor.
func NewRunner(log logrus.FieldLogger) *Runner {
	bw, err := NewBubblewrapWrapper(log)
	if err != nil {
		log.WithError(err).Warn("bubblewrap probe failed")
	}
	if bw == nil {
		log.Warn("bubblewrap unavailable; sandboxing disabled, all executions run unsandboxed")
	} else {
		log.Info("bubblewrap sandbox backend available")
	}
	return &Runner{
		bubblewrap: bw,
		seccomp:    NewSeccompManager(),
		log:        log,
	}
}

// Run executes request, applying its wall-clock timeout. The returned
// error, when non-nil, is a plain error, not a *taxonomy.Error; it
// reports a spawn, wait, timeout or cancellation failure, and a
// timeout's message contains "timed out". Callers translate it to task
// status TimedOut or Failed.
func (r *Runner) Run(ctx context.Context, request Request, onStart OnStart, onOutput OnOutput) (Result, error) {
	r.log.WithFields(logrus.Fields{"command": request.Command, "args": request.Args}).Debug("execution starting")

	useSandbox := request.SandboxConfig.Enabled && r.bubblewrap.IsAvailable()

	if useSandbox {
		r.log.Info("running in bubblewrap sandbox")
		return r.runSandboxed(ctx, request, onStart, onOutput)
	}

	if request.SandboxConfig.Enabled {
		r.log.Warn("bubblewrap unavailable; running without sandbox isolation")
	} else {
		r.log.Warn("sandbox disabled by request; running in an unsafe environment")
	}
	return r.runDirect(ctx, request, onStart, onOutput)
}

func (r *Runner) runSandboxed(ctx context.Context, request Request, onStart OnStart, onOutput OnOutput) (Result, error) {
	start := time.Now()

	profilePath, err := r.seccomp.PathFor(profileForConfig(request.SandboxConfig))
	if err != nil {
		return Result{}, fmt.Errorf("sandbox execution failed: %w", err)
	}

	cmd := r.bubblewrap.Command(request.SandboxConfig, profilePath, request.Command, request.Args)
	for k, v := range request.Env {
		cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", k, v))
	}
	if request.Cwd != "" {
		// bubblewrap's own chdir does not reach into the bind-mounted
		// view, so the working directory is communicated via PWD
		// instead, matching the reference implementation.
		cmd.Env = append(cmd.Env, fmt.Sprintf("PWD=%s", request.Cwd))
	}

	return r.runCommand(ctx, cmd, request.TimeoutSecs, start, "sandbox execution", onStart, onOutput)
}

func (r *Runner) runDirect(ctx context.Context, request Request, onStart OnStart, onOutput OnOutput) (Result, error) {
	start := time.Now()

	cmd := exec.Command(request.Command, request.Args...)
	for k, v := range request.Env {
		cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", k, v))
	}
	if request.Cwd != "" {
		cmd.Dir = request.Cwd
	}

	return r.runCommand(ctx, cmd, request.TimeoutSecs, start, "command execution", onStart, onOutput)
}

func (r *Runner) runCommand(ctx context.Context, cmd *exec.Cmd, timeoutSecs uint32, start time.Time, label string, onStart OnStart, onOutput OnOutput) (Result, error) {
	var stdout, stderr bytes.Buffer
	cmd.Stdout = io.MultiWriter(&stdout, chunkWriter{stream: "stdout", onOutput: onOutput})
	cmd.Stderr = io.MultiWriter(&stderr, chunkWriter{stream: "stderr", onOutput: onOutput})

	timeoutCtx, cancel := context.WithTimeout(ctx, time.Duration(timeoutSecs)*time.Second)
	defer cancel()

	if err := cmd.Start(); err != nil {
		return Result{}, fmt.Errorf("%s failed: %w", label, err)
	}
	if onStart != nil {
		onStart(cmd.Process)
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	var waitErr error
	select {
	case waitErr = <-done:
	case <-timeoutCtx.Done():
		if cmd.Process != nil {
			_ = cmd.Process.Kill()
		}
		<-done
		if errors.Is(timeoutCtx.Err(), context.DeadlineExceeded) {
			r.log.WithField("timeout_secs", timeoutSecs).Error("command execution timed out")
			return Result{}, fmt.Errorf("%s timed out: %d seconds", label, timeoutSecs)
		}
		r.log.Warn("command execution cancelled")
		return Result{}, fmt.Errorf("%s cancelled", label)
	}

	elapsed := time.Since(start)
	elapsedMs := uint64(elapsed.Milliseconds())

	exitCode := -1
	if cmd.ProcessState != nil {
		exitCode = cmd.ProcessState.ExitCode()
	}
	if waitErr != nil {
		if _, ok := waitErr.(*exec.ExitError); !ok {
			return Result{}, fmt.Errorf("%s failed: %w", label, waitErr)
		}
	}

	usage := ResourceUsage{CPUTimeMs: elapsedMs}
	if cg, err := readCgroupUsage(cmd.Process); err == nil {
		usage.MaxMemoryKB = cg.MaxMemoryKB
	}

	return Result{
		ExitCode:        &exitCode,
		Stdout:          stdout.String(),
		Stderr:          stderr.String(),
		ResourceUsage:   usage,
		ExecutionTimeMs: elapsedMs,
	}, nil
}
