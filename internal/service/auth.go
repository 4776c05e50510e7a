package service

import (
	"crypto/ed25519"
	"fmt"

	"github.com/Gao-OS/strata-gateway/internal/auth"
)

// TokenAuthenticator implements transport.Authenticator by verifying a
// PASETO v2.public token against the gateway's public key and
// rejecting revoked or expired capabilities. It returns
// (nil, nil) for an absent token so anonymous access falls through to
// each handler's own policy-level defaults.
type TokenAuthenticator struct {
	publicKey  ed25519.PublicKey
	revocation *auth.RevocationList
}

func NewTokenAuthenticator(publicKey ed25519.PublicKey, revocation *auth.RevocationList) *TokenAuthenticator {
	return &TokenAuthenticator{publicKey: publicKey, revocation: revocation}
}

// Authenticate satisfies transport.Authenticator. The returned value,
// when non-nil, is a *capability.Capability, which implements Identity.
func (a *TokenAuthenticator) Authenticate(token string) (any, error) {
	if token == "" {
		return nil, nil
	}

	cap, err := auth.Verify(token, a.publicKey)
	if err != nil {
		return nil, fmt.Errorf("verify token: %w", err)
	}
	if cap.IsExpired() {
		return nil, fmt.Errorf("token expired")
	}
	if a.revocation != nil && a.revocation.IsRevoked(cap.ID) {
		return nil, fmt.Errorf("token revoked")
	}
	return cap, nil
}

// AsIdentity adapts the `any` transport hands handlers back into the
// Identity interface the service methods expect, tolerating nil and
// unrelated types (both map to anonymous access).
func AsIdentity(v any) Identity {
	id, ok := v.(Identity)
	if !ok {
		return nil
	}
	return id
}
