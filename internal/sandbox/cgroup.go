package sandbox

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)



// cgroupUsage is a best-effort resource usage reading taken from a
// process's cgroup v2 accounting files.
type cgroupUsage struct {
	MaxMemoryKB uint64
}

// readCgroupUsage reads memory.peak from the cgroup v2 hierarchy the
// given process belonged to. The runner calls it after the child's
// Wait() has returned, when the reaped child's /proc/<pid> entry is
// already gone, so the lookup normally fails with an error; the runner
// ignores that error and leaves MaxMemoryKB at zero.
func readCgroupUsage(proc *os.Process) (cgroupUsage, error) {
	if proc == nil {
		return cgroupUsage{}, fmt.Errorf("no process handle")
	}

	cgroupPath, err := processCgroupPath(proc.Pid)
	if err != nil {
		return cgroupUsage{}, err
	}

	peakPath := "/sys/fs/cgroup" + cgroupPath + "/memory.peak"
	data, err := os.ReadFile(peakPath)
	if err != nil {
		return cgroupUsage{}, err
	}

	kb, err := parseMemoryPeakKB(string(data))
	if err != nil {
		return cgroupUsage{}, err
	}
	return cgroupUsage{MaxMemoryKB: kb}, nil
}

func parseMemoryPeakKB(raw string) (uint64, error) {
	trimmed := strings.TrimSpace(raw)
	bytes, err := strconv.ParseUint(trimmed, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse memory.peak %q: %w", trimmed, err)
	}
	return bytes / 1024, nil
}

// processCgroupPath reads /proc/<pid>/cgroup and returns the unified
// (v2) hierarchy path, e.g. "/user.slice/user-1000.slice/session.scope".
func processCgroupPath(pid int) (string, error) {
	f, err := os.Open(fmt.Sprintf("/proc/%d/cgroup", pid))
	if err != nil {
		return "", err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		// cgroup v2 lines look like "0::/path/to/scope"
		if strings.HasPrefix(line, "0::") {
			return strings.TrimPrefix(line, "0::"), nil
		}
	}
	return "", fmt.Errorf("no cgroup v2 entry found for pid %d", pid)
}
