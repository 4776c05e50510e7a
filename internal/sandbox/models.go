// Package sandbox launches commands under OS-level isolation (namespace
// unsharing, bind-mounted filesystem views, syscall filtering) via
// bubblewrap, enforces wall-clock timeouts, and captures output and
// best-effort resource usage.
package sandbox

// NetworkAccess selects the sandboxed child's network exposure.
type NetworkAccess int

const (
	NetworkNone NetworkAccess = iota
	NetworkHost
	NetworkRestricted
)

// ResourceLimits are advisory cgroup-style limits for the child.
type ResourceLimits struct {
	CPULimit    *float64
	MemoryLimit *uint64
	PidsLimit   *uint32
	IOWeight    *uint32
}

// Config configures one execution's isolation posture.
type Config struct {
	Enabled          bool
	SeccompProfile   string // populated by the runner, not the caller
	RWPaths          []string
	ROPaths          []string
	DeniedPaths      []string
	NetworkAccess    NetworkAccess
	RestrictedHosts  []string // only meaningful when NetworkAccess == NetworkRestricted
	ResourceLimits   ResourceLimits
}

// DefaultConfig mirrors the reference implementation's default
// isolation posture.
func DefaultConfig() Config {
	return Config{
		Enabled:       true,
		RWPaths:       []string{"/workspace"},
		ROPaths:       []string{"/usr/bin", "/usr/lib", "/lib"},
		DeniedPaths:   []string{"/etc", "/var", "/home"},
		NetworkAccess: NetworkNone,
	}
}

// Request is one execution's full launch specification.
type Request struct {
	Command      string
	Args         []string
	Env          map[string]string
	Cwd          string
	TimeoutSecs  uint32
	SandboxConfig Config
}

// ResourceUsage is a best-effort snapshot of the child's consumption.
type ResourceUsage struct {
	CPUTimeMs    uint64
	MaxMemoryKB  uint64
	IOReadBytes  uint64
	IOWriteBytes uint64
}

// Result is the outcome of one execution.
type Result struct {
	ExitCode        *int
	Stdout          string
	Stderr          string
	ResourceUsage   ResourceUsage
	ExecutionTimeMs uint64
}
