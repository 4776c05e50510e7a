package auth

import (
	"sync"
	"time"

	"github.com/Gao-OS/strata-gateway/internal/capability"
)

// RevocationList is a thread-safe in-memory set of revoked capability
// ids. Each entry remembers the capability's own expiry rather than
// being revoked forever: a gateway process stays up for as long as its
// operator leaves it running, and an entry is only worth keeping until
// the token it names would have failed its own expiry check anyway.
type RevocationList struct {
	mu      sync.RWMutex
	revoked map[string]time.Time // capability id -> original ExpiresAt
}

func NewRevocationList() *RevocationList {
	return &RevocationList{
		revoked: make(map[string]time.Time),
	}
}

// Revoke marks tokenID as revoked until expiresAt, the capability's own
// expiry. Revoking past that point is pointless: the gateway's token
// authenticator rejects an expired capability before it consults
// IsRevoked.
func (rl *RevocationList) Revoke(tokenID string, expiresAt time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.revoked[tokenID] = expiresAt
}

// RevokeCapability revokes cap for the remainder of its own lifetime.
func (rl *RevocationList) RevokeCapability(cap *capability.Capability) {
	rl.Revoke(cap.ID, cap.ExpiresAt)
}

func (rl *RevocationList) IsRevoked(tokenID string) bool {
	rl.mu.RLock()
	defer rl.mu.RUnlock()
	_, ok := rl.revoked[tokenID]
	return ok
}

// Prune drops revocation entries whose capability has already expired
// on its own, bounding the set's size over a long-running process. It
// returns the number of entries removed. Safe to call concurrently
// with Revoke/IsRevoked.
func (rl *RevocationList) Prune(now time.Time) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	removed := 0
	for id, expiresAt := range rl.revoked {
		if now.After(expiresAt) {
			delete(rl.revoked, id)
			removed++
		}
	}
	return removed
}
