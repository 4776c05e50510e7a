package sandbox

import (
	"context"
	"os/exec"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

func testLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetLevel(logrus.ErrorLevel)
	return l
}

func TestRunDirectSucceeds(t *testing.T) {
	runner := NewRunner(testLogger())
	cfg := DefaultConfig()
	cfg.Enabled = false

	result, err := runner.Run(context.Background(), Request{
		Command:       "echo",
		Args:          []string{"hello"},
		TimeoutSecs:   5,
		SandboxConfig: cfg,
	}, nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.ExitCode == nil || *result.ExitCode != 0 {
		t.Fatalf("expected exit 0, got %+v", result.ExitCode)
	}
	if result.Stdout != "hello\n" {
		t.Errorf("stdout = %q", result.Stdout)
	}
}

func TestRunDirectStreamsOutputViaOnOutput(t *testing.T) {
	runner := NewRunner(testLogger())
	cfg := DefaultConfig()
	cfg.Enabled = false

	var stdout []byte
	_, err := runner.Run(context.Background(), Request{
		Command:       "echo",
		Args:          []string{"hello"},
		TimeoutSecs:   5,
		SandboxConfig: cfg,
	}, nil, func(stream string, data []byte) {
		if stream == "stdout" {
			stdout = append(stdout, data...)
		}
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(stdout) != "hello\n" {
		t.Errorf("streamed stdout = %q, want %q", string(stdout), "hello\n")
	}
}

func TestRunDirectTimesOut(t *testing.T) {
	runner := NewRunner(testLogger())
	cfg := DefaultConfig()
	cfg.Enabled = false

	_, err := runner.Run(context.Background(), Request{
		Command:       "sleep",
		Args:          []string{"5"},
		TimeoutSecs:   1,
		SandboxConfig: cfg,
	}, nil, nil)
	if err == nil {
		t.Fatal("expected timeout error")
	}
}

func TestRunDirectNonZeroExit(t *testing.T) {
	runner := NewRunner(testLogger())
	cfg := DefaultConfig()
	cfg.Enabled = false

	result, err := runner.Run(context.Background(), Request{
		Command:       "sh",
		Args:          []string{"-c", "exit 3"},
		TimeoutSecs:   5,
		SandboxConfig: cfg,
	}, nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.ExitCode == nil || *result.ExitCode != 3 {
		t.Fatalf("expected exit 3, got %+v", result.ExitCode)
	}
}

func TestRunSandboxedFallsBackWithoutBubblewrap(t *testing.T) {
	if _, err := exec.LookPath("bwrap"); err == nil {
		t.Skip("bwrap present on PATH; fallback coverage needs an environment without it")
	}
	runner := NewRunner(testLogger())
	cfg := DefaultConfig()

	result, err := runner.Run(context.Background(), Request{
		Command:       "echo",
		Args:          []string{"fallback"},
		TimeoutSecs:   5,
		SandboxConfig: cfg,
	}, nil, nil)
	if err != nil {
		t.Fatalf("expected fallback to direct execution, got error: %v", err)
	}
	if result.Stdout != "fallback\n" {
		t.Errorf("stdout = %q", result.Stdout)
	}
}

func TestSeccompManagerMaterializesProfiles(t *testing.T) {
	mgr := NewSeccompManager()

	basicPath, err := mgr.PathFor(ProfileBasic)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	networkPath, err := mgr.PathFor(ProfileNetwork)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if basicPath == networkPath {
		t.Error("expected distinct paths for basic and network profiles")
	}

	// second call must hit the cache and return the same path
	again, err := mgr.PathFor(ProfileBasic)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if again != basicPath {
		t.Errorf("expected cached path, got %q vs %q", again, basicPath)
	}
}

func TestProfileForConfigSelection(t *testing.T) {
	none := DefaultConfig()
	if got := profileForConfig(none); got != ProfileBasic {
		t.Errorf("expected basic profile for NetworkNone, got %v", got)
	}

	host := DefaultConfig()
	host.NetworkAccess = NetworkHost
	if got := profileForConfig(host); got != ProfileNetwork {
		t.Errorf("expected network profile for NetworkHost, got %v", got)
	}
}

func TestBubblewrapBuildArgsOrdering(t *testing.T) {
	b := &BubblewrapWrapper{bwrapPath: "/usr/bin/bwrap", log: testLogger()}
	cfg := DefaultConfig()

	args := b.BuildArgs(cfg, "/tmp/profile.json", "ls", []string{"-la"})

	want := []string{
		"--unshare-all", "--die-with-parent", "--unshare-net",
		"--bind", "/workspace", "/workspace",
		"--ro-bind", "/usr/bin", "/usr/bin",
		"--ro-bind", "/usr/lib", "/usr/lib",
		"--ro-bind", "/lib", "/lib",
		"--tmpfs", "/etc",
		"--tmpfs", "/var",
		"--tmpfs", "/home",
		"--seccomp", "/tmp/profile.json",
		"--", "ls", "-la",
	}
	if len(args) != len(want) {
		t.Fatalf("args length = %d, want %d\ngot:  %v\nwant: %v", len(args), len(want), args, want)
	}
	for i := range want {
		if args[i] != want[i] {
			t.Errorf("args[%d] = %q, want %q", i, args[i], want[i])
		}
	}
}

func TestBubblewrapRestrictedNetworkDowngradesToUnshare(t *testing.T) {
	b := &BubblewrapWrapper{bwrapPath: "/usr/bin/bwrap", log: testLogger()}
	cfg := Config{NetworkAccess: NetworkRestricted, RestrictedHosts: []string{"api.example.com"}}

	args := b.BuildArgs(cfg, "", "true", nil)
	found := false
	for _, a := range args {
		if a == "--unshare-net" {
			found = true
		}
	}
	if !found {
		t.Error("expected restricted network access to downgrade to --unshare-net")
	}
}

func TestTimeoutWallClock(t *testing.T) {
	start := time.Now()
	runner := NewRunner(testLogger())
	cfg := DefaultConfig()
	cfg.Enabled = false

	_, err := runner.Run(context.Background(), Request{
		Command:       "sleep",
		Args:          []string{"10"},
		TimeoutSecs:   1,
		SandboxConfig: cfg,
	}, nil, nil)
	elapsed := time.Since(start)
	if err == nil {
		t.Fatal("expected timeout")
	}
	if elapsed > 3*time.Second {
		t.Errorf("timeout took too long: %v", elapsed)
	}
}
