package sandbox

import (
	"fmt"
	"os/exec"

	"github.com/sirupsen/logrus"
)

// BubblewrapWrapper builds bwrap(1) invocations from a Config. It is nil
// (and sandboxing is unavailable) when bwrap is not found on PATH.
type BubblewrapWrapper struct {
	bwrapPath string
	log       logrus.FieldLogger
}

// NewBubblewrapWrapper probes PATH for bwrap. It returns (nil, nil) —
// not an error — when bwrap is absent, since the caller falls back to
// direct (unsandboxed) execution in that case.
func NewBubblewrapWrapper(log logrus.FieldLogger) (*BubblewrapWrapper, error) {
	path, err := exec.LookPath("bwrap")
	if err != nil {
		log.Warn("bubblewrap (bwrap) not found on PATH; sandboxing will be unavailable")
		return nil, nil
	}
	log.WithField("path", path).Debug("bubblewrap found")
	return &BubblewrapWrapper{bwrapPath: path, log: log}, nil
}

// IsAvailable reports whether this wrapper can launch sandboxed commands.
func (b *BubblewrapWrapper) IsAvailable() bool {
	return b != nil
}

// BuildArgs constructs the bwrap argument list for one execution,
// mirroring the reference isolation sequence: unshare everything, die
// with the parent, selectively re-share the network, bind-mount the
// configured path sets, apply the seccomp profile, then the command.
func (b *BubblewrapWrapper) BuildArgs(cfg Config, seccompProfilePath, command string, args []string) []string {
	bwArgs := []string{"--unshare-all", "--die-with-parent"}

	switch cfg.NetworkAccess {
	case NetworkNone:
		bwArgs = append(bwArgs, "--unshare-net")
	case NetworkHost:
		bwArgs = append(bwArgs, "--share-net")
	case NetworkRestricted:
		b.log.WithField("hosts", cfg.RestrictedHosts).Warn("restricted network access is not supported by the sandbox backend; disabling network instead")
		bwArgs = append(bwArgs, "--unshare-net")
	}

	for _, path := range cfg.RWPaths {
		bwArgs = append(bwArgs, "--bind", path, path)
	}
	for _, path := range cfg.ROPaths {
		bwArgs = append(bwArgs, "--ro-bind", path, path)
	}
	for _, path := range cfg.DeniedPaths {
		bwArgs = append(bwArgs, "--tmpfs", path)
	}

	if seccompProfilePath != "" {
		bwArgs = append(bwArgs, "--seccomp", seccompProfilePath)
	}

	bwArgs = append(bwArgs, "--")
	bwArgs = append(bwArgs, command)
	bwArgs = append(bwArgs, args...)

	return bwArgs
}

// Command builds the exec.Cmd ready for Start/Wait by the runner.
func (b *BubblewrapWrapper) Command(cfg Config, seccompProfilePath, command string, args []string) *exec.Cmd {
	bwArgs := b.BuildArgs(cfg, seccompProfilePath, command, args)
	return exec.Command(b.bwrapPath, bwArgs...)
}

func (b *BubblewrapWrapper) String() string {
	if b == nil {
		return "bubblewrap(unavailable)"
	}
	return fmt.Sprintf("bubblewrap(%s)", b.bwrapPath)
}
