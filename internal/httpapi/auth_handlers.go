package httpapi

import (
	"errors"
	"net/http"
	"time"

	"schoolhub.org/internal/audit"
	"schoolhub.org/internal/auth"
)

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type loginResponse struct {
	AccessToken      string     `json:"access_token"`
	RefreshToken     string     `json:"refresh_token"`
	AccessExpiresAt  time.Time  `json:"access_expires_at"`
	RefreshExpiresAt time.Time  `json:"refresh_expires_at"`
	User             *auth.User `json:"user"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

type logoutRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type emailRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type secureTokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

type passwordResetConfirmRequest struct {
	Token       string `json:"token" validate:"required"`
	NewPassword string `json:"new_password" validate:"required,min=8"`
}

type verifyEmailConfirmRequest struct {
	Token string `json:"token" validate:"required"`
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req loginRequest
	if err := a.decodeValid(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	user, pair, err := a.svc.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrUnauthorized) {
			_ = audit.LogEvent(r.Context(), "auth.login.failed", map[string]any{"email": req.Email})
			writeError(w, r, http.StatusUnauthorized, "invalid credentials")
			return
		}
		writeError(w, r, http.StatusInternalServerError, "login failed")
		return
	}

	_ = audit.LogEvent(r.Context(), "auth.login", map[string]any{
		"user_id": user.ID,
		"email":   user.Email,
	})
	writeJSON(w, http.StatusOK, loginResponse{
		AccessToken:      pair.AccessToken,
		RefreshToken:     pair.RefreshToken,
		AccessExpiresAt:  pair.AccessExpiresAt,
		RefreshExpiresAt: pair.RefreshExpiresAt,
		User:             user,
	})
}

func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req refreshRequest
	if err := a.decodeValid(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	access, expiresAt, err := a.svc.Tokens().RotateAccessToken(r.Context(), req.RefreshToken)
	if err != nil {
		writeError(w, r, http.StatusUnauthorized, "invalid refresh token")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"access_token": access,
		"expires_at":   expiresAt,
	})
}

// handleLogout revokes the presented access token and, when supplied, the
// session's refresh token. Revocation is best-effort; the response reports
// whether every revocation took effect.
func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	id, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}

	// Body is optional: logout without a refresh token only revokes the
	// presented access token.
	var req logoutRequest
	if err := decodeJSON(w, r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	revoked := true
	if raw, err := extractBearerToken(r.Header.Get(authHeader)); err == nil {
		revoked = a.svc.Tokens().Revoke(r.Context(), raw)
	}
	if req.RefreshToken != "" {
		revoked = a.svc.Tokens().Revoke(r.Context(), req.RefreshToken) && revoked
	}

	_ = audit.LogEvent(r.Context(), "auth.logout", map[string]any{"user_id": id.UserID})
	writeJSON(w, http.StatusOK, map[string]any{"revoked": revoked})
}

// handleLogoutAll revokes every whitelisted token of the caller. Outstanding
// access tokens ride out their short TTL.
func (a *API) handleLogoutAll(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	id, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}

	revoked := a.svc.Tokens().RevokeAllForSubject(r.Context(), id.UserID)
	if raw, err := extractBearerToken(r.Header.Get(authHeader)); err == nil {
		revoked = a.svc.Tokens().Revoke(r.Context(), raw) && revoked
	}

	_ = audit.LogEvent(r.Context(), "auth.logout_all", map[string]any{"user_id": id.UserID})
	writeJSON(w, http.StatusOK, map[string]any{"revoked": revoked})
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	id, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user_id":     id.UserID,
		"email":       id.Email,
		"role":        id.Role,
		"permissions": auth.EncodeGrants(id.Permissions),
	})
}

func (a *API) handlePasswordResetRequest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req emailRequest
	if err := a.decodeValid(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	reset, expiresAt, err := a.svc.RequestPasswordReset(r.Context(), req.Email)
	if err != nil {
		if errors.Is(err, auth.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, "account not found")
			return
		}
		writeError(w, r, http.StatusInternalServerError, "password reset request failed")
		return
	}

	_ = audit.LogEvent(r.Context(), "auth.password_reset.request", map[string]any{"email": req.Email})
	writeJSON(w, http.StatusOK, secureTokenResponse{Token: reset, ExpiresAt: expiresAt})
}

func (a *API) handlePasswordResetConfirm(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req passwordResetConfirmRequest
	if err := a.decodeValid(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	if err := a.svc.ConfirmPasswordReset(r.Context(), req.Token, req.NewPassword); err != nil {
		switch {
		case errors.Is(err, auth.ErrUnauthorized):
			writeError(w, r, http.StatusUnauthorized, "invalid or expired reset token")
		case errors.Is(err, auth.ErrInvalidInput):
			writeError(w, r, http.StatusBadRequest, err.Error())
		case errors.Is(err, auth.ErrNotFound):
			writeError(w, r, http.StatusNotFound, "account not found")
		default:
			writeError(w, r, http.StatusInternalServerError, "password reset failed")
		}
		return
	}

	_ = audit.LogEvent(r.Context(), "auth.password_reset.confirm", nil)
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleVerifyEmailRequest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req emailRequest
	if err := a.decodeValid(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	verify, expiresAt, err := a.svc.RequestEmailVerification(r.Context(), req.Email)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrNotFound):
			writeError(w, r, http.StatusNotFound, "account not found")
		case errors.Is(err, auth.ErrAlreadyExists):
			writeError(w, r, http.StatusConflict, "email already verified")
		default:
			writeError(w, r, http.StatusInternalServerError, "verification request failed")
		}
		return
	}

	_ = audit.LogEvent(r.Context(), "auth.email_verification.request", map[string]any{"email": req.Email})
	writeJSON(w, http.StatusOK, secureTokenResponse{Token: verify, ExpiresAt: expiresAt})
}

func (a *API) handleVerifyEmailConfirm(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req verifyEmailConfirmRequest
	if err := a.decodeValid(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	if err := a.svc.ConfirmEmailVerification(r.Context(), req.Token); err != nil {
		switch {
		case errors.Is(err, auth.ErrUnauthorized):
			writeError(w, r, http.StatusUnauthorized, "invalid or expired verification token")
		case errors.Is(err, auth.ErrNotFound):
			writeError(w, r, http.StatusNotFound, "account not found")
		default:
			writeError(w, r, http.StatusInternalServerError, "email verification failed")
		}
		return
	}

	_ = audit.LogEvent(r.Context(), "auth.email_verification.confirm", nil)
	w.WriteHeader(http.StatusNoContent)
}
