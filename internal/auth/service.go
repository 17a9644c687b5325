package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"schoolhub.org/internal/obs"
	"schoolhub.org/internal/token"
)

// Service ties the user store, the permission resolver and the token manager
// into the account flows the HTTP layer exposes: login, refresh-driven
// identity lookup, password reset, email verification and RBAC mutations.
type Service struct {
	store    Store
	resolver *Resolver
	tokens   *token.Manager
}

var _ token.IdentityLookup = (*Service)(nil)

func NewService(store Store, resolver *Resolver, tokens *token.Manager) *Service {
	return &Service{store: store, resolver: resolver, tokens: tokens}
}

// Tokens exposes the underlying token manager for the HTTP layer.
func (s *Service) Tokens() *token.Manager { return s.tokens }

// Resolver exposes the permission resolver for the HTTP layer.
func (s *Service) PermissionResolver() *Resolver { return s.resolver }

// EnsureBuiltins seeds the permission catalog. Safe to run on every start.
func (s *Service) EnsureBuiltins(ctx context.Context) error {
	return s.store.Permissions(ctx).Ensure(ctx, BuiltinPermissions)
}

// Login authenticates the credentials and starts a session. The returned pair
// embeds a snapshot of the user's resolved permissions in the access token.
func (s *Service) Login(ctx context.Context, email, password string) (*User, token.Pair, error) {
	user, err := s.store.Users(ctx).FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			obs.ObserveLoginFailure()
			return nil, token.Pair{}, ErrUnauthorized
		}
		return nil, token.Pair{}, err
	}
	if user.Status != UserStatusActive || !VerifyPassword(user.PasswordHash, password) {
		obs.ObserveLoginFailure()
		return nil, token.Pair{}, ErrUnauthorized
	}

	grants, err := s.resolver.Resolve(ctx, user.ID)
	if err != nil {
		return nil, token.Pair{}, fmt.Errorf("resolve permissions: %w", err)
	}
	pair, err := s.tokens.IssuePair(ctx, user.ID, user.Email, user.Role, EncodeGrants(grants))
	if err != nil {
		return nil, token.Pair{}, err
	}
	return user, pair, nil
}

// Lookup resolves the current identity of a subject for token rotation, so a
// refreshed access token reflects role and permission changes made since
// login. Disabled accounts cannot rotate.
func (s *Service) Lookup(ctx context.Context, subject string) (token.Identity, error) {
	user, err := s.store.Users(ctx).Find(ctx, subject)
	if err != nil {
		return token.Identity{}, err
	}
	if user.Status != UserStatusActive {
		return token.Identity{}, ErrUnauthorized
	}
	grants, err := s.resolver.Resolve(ctx, user.ID)
	if err != nil {
		return token.Identity{}, err
	}
	return token.Identity{
		Email:       user.Email,
		Role:        user.Role,
		Permissions: EncodeGrants(grants),
	}, nil
}

// RequestPasswordReset mints a single-use reset token for the account. The
// token is returned to the caller for delivery; a missing account yields
// ErrNotFound so the handler can decide how much to disclose.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) (string, time.Time, error) {
	user, err := s.store.Users(ctx).FindByEmail(ctx, email)
	if err != nil {
		return "", time.Time{}, err
	}
	return s.tokens.GenerateSecureToken(ctx, user.ID, user.Email, token.TypeResetPassword)
}

// ConfirmPasswordReset consumes the reset token, stores the new password hash
// and revokes every outstanding refresh token of the subject so stolen
// sessions die with the old password.
func (s *Service) ConfirmPasswordReset(ctx context.Context, resetToken, newPassword string) error {
	res := s.tokens.Verify(ctx, resetToken)
	if !res.Valid || res.Claims.TokenType != token.TypeResetPassword {
		return ErrUnauthorized
	}

	hash, err := HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if err := s.store.Users(ctx).UpdatePassword(ctx, res.Claims.Subject, hash); err != nil {
		return err
	}

	s.tokens.Revoke(ctx, resetToken)
	if !s.tokens.RevokeAllForSubject(ctx, res.Claims.Subject) {
		obs.Logger().WithField("user_id", res.Claims.Subject).
			Warn("session revocation incomplete after password reset")
	}
	return nil
}

// RequestEmailVerification mints a single-use verification token for the
// account.
func (s *Service) RequestEmailVerification(ctx context.Context, email string) (string, time.Time, error) {
	user, err := s.store.Users(ctx).FindByEmail(ctx, email)
	if err != nil {
		return "", time.Time{}, err
	}
	if user.EmailVerified {
		return "", time.Time{}, fmt.Errorf("%w: email already verified", ErrAlreadyExists)
	}
	return s.tokens.GenerateSecureToken(ctx, user.ID, user.Email, token.TypeEmailVerification)
}

// ConfirmEmailVerification consumes the verification token and marks the
// subject's email as verified.
func (s *Service) ConfirmEmailVerification(ctx context.Context, verificationToken string) error {
	res := s.tokens.Verify(ctx, verificationToken)
	if !res.Valid || res.Claims.TokenType != token.TypeEmailVerification {
		return ErrUnauthorized
	}
	if err := s.store.Users(ctx).MarkEmailVerified(ctx, res.Claims.Subject); err != nil {
		return err
	}
	s.tokens.Revoke(ctx, verificationToken)
	return nil
}

// AssignRole grants the role to the user and invalidates the user's cached
// permission set. Both sides must exist and belong to the same school.
func (s *Service) AssignRole(ctx context.Context, userID, roleID string) error {
	user, err := s.store.Users(ctx).Find(ctx, userID)
	if err != nil {
		return err
	}
	role, err := s.store.Roles(ctx).Find(ctx, roleID)
	if err != nil {
		return err
	}
	if user.SchoolID != role.SchoolID {
		return fmt.Errorf("%w: user and role belong to different schools", ErrInvalidInput)
	}
	if err := s.store.Roles(ctx).Assign(ctx, Assignment{
		UserID:   userID,
		RoleID:   roleID,
		SchoolID: user.SchoolID,
	}); err != nil {
		return err
	}
	s.resolver.Invalidate(userID)
	return nil
}

// RemoveAssignment revokes the role from the user and invalidates the user's
// cached permission set. Removing a non-existent assignment is a no-op.
func (s *Service) RemoveAssignment(ctx context.Context, userID, roleID string) error {
	if err := s.store.Roles(ctx).Unassign(ctx, userID, roleID); err != nil {
		return err
	}
	s.resolver.Invalidate(userID)
	return nil
}

// SetRolePermissions replaces the role's grant set and flushes the resolver
// cache, since any user holding the role is affected.
func (s *Service) SetRolePermissions(ctx context.Context, roleID string, grants []Grant) error {
	if _, err := s.store.Roles(ctx).Find(ctx, roleID); err != nil {
		return err
	}
	if err := s.store.Permissions(ctx).SetForRole(ctx, roleID, grants); err != nil {
		return err
	}
	s.resolver.InvalidateAll()
	return nil
}
