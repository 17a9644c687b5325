package auth

import "context"

// Identity is the authenticated caller attached to a request context by the
// bearer-token gate. Permissions is the grant snapshot carried in the access
// token, not a live resolution.
type Identity struct {
	UserID      string
	Email       string
	Role        string
	Permissions []Grant
}

type ctxKey struct{}

// ContextWithIdentity attaches the authenticated identity to the context.
func ContextWithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// IdentityFromContext returns the identity set by the authentication gate.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(ctxKey{}).(Identity)
	return id, ok
}
