package auth

import (
	"testing"
	"time"

	"github.com/Gao-OS/strata-gateway/internal/capability"
)

func TestSignVerifyRoundTrip(t *testing.T) {
	kp, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("generate keypair: %v", err)
	}

	cap := capability.New("alice", "tenant-a", []string{"user"}, "gateway", []string{"execute_command"}, capability.Constraints{}, time.Hour)

	token, err := Sign(cap, kp.Private)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	got, err := Verify(token, kp.Public)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if got.Subject != "alice" || got.ID != cap.ID {
		t.Errorf("round-tripped capability mismatch: %+v", got)
	}
}

func TestVerifyRejectsWrongKey(t *testing.T) {
	kp, _ := GenerateKeyPair()
	other, _ := GenerateKeyPair()
	cap := capability.New("alice", "tenant-a", nil, "gateway", nil, capability.Constraints{}, time.Hour)

	token, err := Sign(cap, kp.Private)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	if _, err := Verify(token, other.Public); err == nil {
		t.Error("expected verification to fail against a mismatched key")
	}
}

func TestVerifyRejectsMalformedToken(t *testing.T) {
	kp, _ := GenerateKeyPair()
	if _, err := Verify("not-a-token", kp.Public); err == nil {
		t.Error("expected malformed token to be rejected")
	}
	if _, err := Verify("v2.public.not-base64!!", kp.Public); err == nil {
		t.Error("expected undecodable payload to be rejected")
	}
}

func TestRevocationList(t *testing.T) {
	rl := NewRevocationList()
	if rl.IsRevoked("tok-1") {
		t.Fatal("unrevoked token reported as revoked")
	}
	rl.Revoke("tok-1", time.Now().Add(time.Hour))
	if !rl.IsRevoked("tok-1") {
		t.Fatal("revoked token not reported as revoked")
	}
}

func TestRevocationListRevokeCapability(t *testing.T) {
	rl := NewRevocationList()
	cap := capability.New("alice", "tenant-a", nil, "gateway", nil, capability.Constraints{}, time.Hour)
	rl.RevokeCapability(cap)
	if !rl.IsRevoked(cap.ID) {
		t.Fatal("expected capability id to be revoked")
	}
}

func TestRevocationListPruneDropsExpiredEntries(t *testing.T) {
	rl := NewRevocationList()
	rl.Revoke("expired", time.Now().Add(-time.Minute))
	rl.Revoke("still-live", time.Now().Add(time.Hour))

	removed := rl.Prune(time.Now())
	if removed != 1 {
		t.Fatalf("expected 1 pruned entry, got %d", removed)
	}
	if rl.IsRevoked("expired") {
		t.Fatal("expired entry should have been pruned")
	}
	if !rl.IsRevoked("still-live") {
		t.Fatal("live entry should survive a prune")
	}
}

func TestKeyPairPublicKeyRoundTrip(t *testing.T) {
	kp, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("generate keypair: %v", err)
	}

	path := t.TempDir() + "/identity.pub"
	if err := kp.WritePublicKey(path); err != nil {
		t.Fatalf("write public key: %v", err)
	}

	loaded, err := LoadPublicKey(path)
	if err != nil {
		t.Fatalf("load public key: %v", err)
	}
	if string(loaded) != string(kp.Public) {
		t.Error("loaded public key does not match generated key")
	}
}

func TestFingerprintStableAndDistinct(t *testing.T) {
	kp, _ := GenerateKeyPair()
	other, _ := GenerateKeyPair()

	if Fingerprint(kp.Public) != Fingerprint(kp.Public) {
		t.Error("fingerprint of the same key should be stable across calls")
	}
	if Fingerprint(kp.Public) == Fingerprint(other.Public) {
		t.Error("fingerprints of distinct keys should differ")
	}
}
