package capability

import (
	"testing"
	"time"
)

func TestNewAssignsDistinctIDs(t *testing.T) {
	a := New("alice", "tenant-a", []string{"user"}, "gateway", []string{"execute_command"}, Constraints{}, time.Hour)
	b := New("alice", "tenant-a", []string{"user"}, "gateway", []string{"execute_command"}, Constraints{}, time.Hour)
	if a.ID == b.ID {
		t.Error("expected distinct capability ids")
	}
}

func TestIsExpired(t *testing.T) {
	fresh := New("alice", "tenant-a", nil, "gateway", nil, Constraints{}, time.Hour)
	if fresh.IsExpired() {
		t.Error("freshly minted capability should not be expired")
	}

	stale := New("alice", "tenant-a", nil, "gateway", nil, Constraints{}, -time.Hour)
	if !stale.IsExpired() {
		t.Error("capability issued with a negative ttl should be expired")
	}
}

func TestHasAction(t *testing.T) {
	cap := New("alice", "tenant-a", nil, "gateway", []string{"execute_command", "read_file"}, Constraints{}, time.Hour)
	if !cap.HasAction("execute_command") {
		t.Error("expected HasAction to find a granted action")
	}
	if cap.HasAction("write_file") {
		t.Error("expected HasAction to reject an ungranted action")
	}
}

func TestToUserInfo(t *testing.T) {
	cap := New("alice", "tenant-a", []string{"admin", "user"}, "gateway", nil, Constraints{}, time.Hour)
	cap.Attributes = map[string]string{"team": "platform"}

	info := cap.ToUserInfo()
	if info.ID != "alice" {
		t.Errorf("ID = %q, want alice", info.ID)
	}
	if info.TenantID != "tenant-a" {
		t.Errorf("TenantID = %q, want tenant-a", info.TenantID)
	}
	if len(info.Roles) != 2 || info.Roles[0] != "admin" {
		t.Errorf("Roles = %v", info.Roles)
	}
	if info.Attributes["team"] != "platform" {
		t.Errorf("Attributes = %v", info.Attributes)
	}
}
