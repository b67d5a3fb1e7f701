package model

import (
	"errors"
	"log/slog"
	"strings"
)

// ErrEmptyIdentity is returned when a credential has no identity.
var ErrEmptyIdentity = errors.New("credential identity is empty")

// ErrEmptySecret is returned when a credential has no secret.
var ErrEmptySecret = errors.New("credential secret is empty")

// Credential is the identity/secret pair used for one run.
// It is never persisted; only Identity is ever written to logs or the ledger.
type Credential struct {
	Identity string `json:"identity"`
	Secret   string `json:"secret"`
}

// NewCredential trims the identity and returns a Credential.
// The secret is kept as-is since leading or trailing spaces may be significant.
func NewCredential(identity, secret string) Credential {
	return Credential{
		Identity: strings.TrimSpace(identity),
		Secret:   secret,
	}
}

// Validate reports whether both parts of the credential are present.
func (c Credential) Validate() error {
	if c.Identity == "" {
		return ErrEmptyIdentity
	}
	if c.Secret == "" {
		return ErrEmptySecret
	}
	return nil
}

// LogValue implements slog.LogValuer so a Credential can be logged
// without exposing its secret.
func (c Credential) LogValue() slog.Value {
	return slog.GroupValue(slog.String("identity", c.Identity))
}

// String returns the identity only.
func (c Credential) String() string {
	return c.Identity
}
