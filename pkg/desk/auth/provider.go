// Package auth supplies bearer credentials for calls to the API gateway.
//
// The core never caches a credential across calls: the gateway asks the
// Provider for the current credential on every attempt, and forces a refresh
// when the backend signals expiry with a 401.
package auth

import (
	"context"
	"time"
)

// Credential is a short-lived bearer token together with its expiry.
// Err carries a provider-side failure (for example a revoked grant) that
// makes the credential unusable even when a token string is present.
type Credential struct {
	Token  string    `json:"token"`
	Expiry time.Time `json:"expiry,omitempty"`
	Err    string    `json:"error,omitempty"`
}

// Usable reports whether the credential can be presented to the backend.
func (c *Credential) Usable() bool {
	return c != nil && c.Token != "" && c.Err == ""
}

// Provider supplies the current credential and can be asked to refresh it.
type Provider interface {
	// Credential returns the current credential, or nil when the user is
	// not authenticated. A transport failure is returned as an error.
	Credential(ctx context.Context) (*Credential, error)

	// ForceRefresh discards any cached credential and obtains a fresh one.
	// A refreshed credential with a non-empty Err means the grant is no
	// longer valid; an error return means the refresh itself failed.
	ForceRefresh(ctx context.Context) (*Credential, error)
}

// StaticProvider serves a fixed credential. Useful for development and tests.
type StaticProvider struct {
	Cred *Credential
}

func (s *StaticProvider) Credential(ctx context.Context) (*Credential, error) {
	return s.Cred, nil
}

func (s *StaticProvider) ForceRefresh(ctx context.Context) (*Credential, error) {
	return s.Cred, nil
}
