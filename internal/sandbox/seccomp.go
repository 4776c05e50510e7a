package sandbox

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

//go:embed profiles/basic.json profiles/network.json
var profileFS embed.FS

// seccompProfile names the two built-in filter profiles. "basic" denies
// all network syscalls; "network" additionally allows socket/connect/etc.
type seccompProfile string

const (
	ProfileBasic   seccompProfile = "basic"
	ProfileNetwork seccompProfile = "network"
)

// SeccompManager materializes embedded seccomp-bpf profiles to disk on
// first use so bubblewrap's --seccomp flag can reference them by path.
// Profile bytes are opaque to the gateway; it only owns placement.
type SeccompManager struct {
	mu      sync.Mutex
	dir     string
	written map[seccompProfile]string
}

func NewSeccompManager() *SeccompManager {
	return &SeccompManager{
		dir:     filepath.Join(os.TempDir(), "mcp-seccomp-profiles"),
		written: make(map[seccompProfile]string),
	}
}

// PathFor returns the on-disk path of the given profile, writing it out
// the first time it is requested.
func (m *SeccompManager) PathFor(profile seccompProfile) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if path, ok := m.written[profile]; ok {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}

	var embedName string
	switch profile {
	case ProfileBasic:
		embedName = "profiles/basic.json"
	case ProfileNetwork:
		embedName = "profiles/network.json"
	default:
		return "", fmt.Errorf("unknown seccomp profile %q", profile)
	}

	data, err := profileFS.ReadFile(embedName)
	if err != nil {
		return "", fmt.Errorf("read embedded profile %q: %w", embedName, err)
	}

	if err := os.MkdirAll(m.dir, 0o755); err != nil {
		return "", fmt.Errorf("create seccomp profile dir: %w", err)
	}

	path := filepath.Join(m.dir, string(profile)+".json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write seccomp profile %q: %w", path, err)
	}

	m.written[profile] = path
	return path, nil
}

// profileForConfig selects basic or network based on whether the
// execution's sandbox config permits any outbound network access.
func profileForConfig(cfg Config) seccompProfile {
	if cfg.NetworkAccess == NetworkNone {
		return ProfileBasic
	}
	return ProfileNetwork
}
