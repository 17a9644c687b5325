package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"schoolhub.org/internal/auth"
	"schoolhub.org/internal/token"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "
)

var publicPaths = []string{
	"/v1/auth/login",
	"/v1/auth/refresh",
	"/v1/auth/password-reset/request",
	"/v1/auth/password-reset/confirm",
	"/v1/auth/verify-email/request",
	"/v1/auth/verify-email/confirm",
	"/metrics",
	"/healthz",
	"/readyz",
	"/v1/info",
	"/",
}

// withAuth gates every non-public route behind a valid access token and
// attaches the caller identity to the request context. Only access tokens
// authenticate requests; presenting a refresh or secure token here fails.
// Public routes go through the optional variant instead, so a handler that
// serves both anonymous and authenticated callers still sees the identity.
func (a *API) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}
		if isPublicPath(r.URL.Path) {
			a.authenticateOptional(next).ServeHTTP(w, r)
			return
		}

		raw, err := extractBearerToken(r.Header.Get(authHeader))
		if err != nil {
			writeError(w, r, http.StatusUnauthorized, err.Error())
			return
		}

		res := a.svc.Tokens().Verify(r.Context(), raw)
		if !res.Valid {
			writeError(w, r, http.StatusUnauthorized, string(res.Reason))
			return
		}
		if res.Claims.TokenType != token.TypeAccess {
			writeError(w, r, http.StatusUnauthorized, "access token required")
			return
		}

		ctx := auth.ContextWithIdentity(r.Context(), identityFromClaims(res.Claims))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// authenticateOptional attaches the caller identity when a valid access token
// accompanies the request and serves the request anonymously otherwise. It
// never rejects: a missing, malformed, revoked or non-access token simply
// yields no identity.
func (a *API) authenticateOptional(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, err := extractBearerToken(r.Header.Get(authHeader))
		if err != nil {
			next.ServeHTTP(w, r)
			return
		}
		res := a.svc.Tokens().Verify(r.Context(), raw)
		if !res.Valid || res.Claims.TokenType != token.TypeAccess {
			next.ServeHTTP(w, r)
			return
		}
		ctx := auth.ContextWithIdentity(r.Context(), identityFromClaims(res.Claims))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func identityFromClaims(c *token.Claims) auth.Identity {
	return auth.Identity{
		UserID:      c.Subject,
		Email:       c.Email,
		Role:        c.Role,
		Permissions: auth.ParseGrants(c.Permissions),
	}
}

// ensurePermission authorizes the caller for (resource, action) and writes the
// failure response itself. The admin role bypasses resolution; everyone else
// gets a fresh resolve so RBAC changes apply within the cache TTL rather than
// the access-token lifetime.
func (a *API) ensurePermission(w http.ResponseWriter, r *http.Request, resource, action string) bool {
	id, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return false
	}
	if a.opts.AdminRole != "" && id.Role == a.opts.AdminRole {
		return true
	}
	grants, err := a.svc.PermissionResolver().Resolve(r.Context(), id.UserID)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "permission resolution failed")
		return false
	}
	if !auth.Authorize(grants, resource, action) {
		writeError(w, r, http.StatusForbidden, "insufficient permissions")
		return false
	}
	return true
}

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errors.New("missing bearer token")
	}
	if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearer)) {
		return "", errors.New("invalid authorization scheme")
	}
	raw := strings.TrimSpace(header[len(bearer):])
	if raw == "" {
		return "", errors.New("missing bearer token")
	}
	return raw, nil
}

func isPublicPath(path string) bool {
	for _, p := range publicPaths {
		if path == p {
			return true
		}
	}
	return false
}
