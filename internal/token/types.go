package token

import (
	"context"
	"errors"

	"github.com/golang-jwt/jwt/v5"
)

// Type discriminates token classes. The type drives whitelist participation
// and the default lifetime chosen at issuance.
type Type string

const (
	TypeAccess            Type = "access"
	TypeRefresh           Type = "refresh"
	TypeResetPassword     Type = "reset_password"
	TypeEmailVerification Type = "email_verification"
)

// Valid reports whether t is one of the known token types.
func (t Type) Valid() bool {
	switch t {
	case TypeAccess, TypeRefresh, TypeResetPassword, TypeEmailVerification:
		return true
	}
	return false
}

// Whitelisted reports whether tokens of this type are registered in the
// whitelist at issuance and consumed exactly once. Access tokens are never
// whitelisted; they are validity-checked by signature, expiry and blacklist
// membership only.
func (t Type) Whitelisted() bool {
	switch t {
	case TypeRefresh, TypeResetPassword, TypeEmailVerification:
		return true
	case TypeAccess:
		return false
	}
	return false
}

// Claims is the signed token payload. Registered claims carry issuer, subject,
// jti and the issued-at/expiry timestamps; refresh tokens deliberately omit
// email, role and permissions to limit blast radius if one leaks.
type Claims struct {
	Email       string   `json:"email,omitempty"`
	Role        string   `json:"role,omitempty"`
	Permissions []string `json:"permissions,omitempty"`
	TokenType   Type     `json:"token_type"`
	jwt.RegisteredClaims
}

// Reason explains why a verification failed. The wire-level distinction lets
// callers produce different user-facing messages.
type Reason string

const (
	ReasonNone        Reason = ""
	ReasonMalformed   Reason = "invalid token"
	ReasonExpired     Reason = "token expired"
	ReasonRevoked     Reason = "token revoked"
	ReasonConsumed    Reason = "token not valid"
	ReasonUnavailable Reason = "verification failed"
)

// metricLabel maps a reason to its verification-outcome metric label.
func (r Reason) metricLabel() string {
	switch r {
	case ReasonNone:
		return "valid"
	case ReasonMalformed:
		return "malformed"
	case ReasonExpired:
		return "expired"
	case ReasonRevoked:
		return "revoked"
	case ReasonConsumed:
		return "consumed"
	case ReasonUnavailable:
		return "unavailable"
	}
	return "unknown"
}

// Result is the discriminated outcome of Verify. Verification never panics or
// propagates errors past the manager boundary; callers branch on Valid and
// Reason.
type Result struct {
	Valid  bool
	Claims *Claims
	Reason Reason
}

var (
	// ErrInvalidToken indicates the token failed validation.
	ErrInvalidToken = errors.New("token: invalid token")
	// ErrMalformed indicates a structurally broken or tampered token.
	ErrMalformed = errors.New("token: malformed or tampered")
	// ErrExpired indicates a well-formed token past its expiry.
	ErrExpired = errors.New("token: expired")
	// ErrUnsupportedType indicates a token type outside the operation's domain.
	ErrUnsupportedType = errors.New("token: unsupported token type")
)

// Identity is the claim set resolved for a subject when minting access tokens.
type Identity struct {
	Email       string
	Role        string
	Permissions []string
}

// IdentityLookup resolves current role and permissions for a subject. The
// rotation path uses it so a role change takes effect at the next refresh
// instead of being carried over from stale refresh-token claims.
type IdentityLookup interface {
	Lookup(ctx context.Context, subject string) (Identity, error)
}

// IdentityLookupFunc adapts a plain function to IdentityLookup. Handy when the
// lookup implementation is constructed after the manager.
type IdentityLookupFunc func(ctx context.Context, subject string) (Identity, error)

func (f IdentityLookupFunc) Lookup(ctx context.Context, subject string) (Identity, error) {
	return f(ctx, subject)
}
