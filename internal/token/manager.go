package token

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"schoolhub.org/internal/obs"
)

const (
	defaultAccessTTL       = 15 * time.Minute
	defaultRefreshTTL      = 7 * 24 * time.Hour
	defaultResetTTL        = time.Hour
	defaultVerificationTTL = 24 * time.Hour
	defaultStoreTimeout    = 2 * time.Second
)

// Manager issues access/refresh token pairs, maintains whitelist and blacklist
// state in the revocation store and answers "is this token currently valid"
// queries for request authentication. It holds no mutable state beyond the
// store client, so a single instance serves all requests concurrently.
type Manager struct {
	codec  *Codec
	store  RevocationStore
	lookup IdentityLookup

	accessTTL       time.Duration
	refreshTTL      time.Duration
	resetTTL        time.Duration
	verificationTTL time.Duration
	storeTimeout    time.Duration

	now func() time.Time
}

// Option configures Manager behavior.
type Option func(*Manager) error

// WithAccessTTL configures access token lifetime.
func WithAccessTTL(ttl time.Duration) Option {
	return func(m *Manager) error {
		if ttl > 0 {
			m.accessTTL = ttl
		}
		return nil
	}
}

// WithRefreshTTL configures refresh token lifetime.
func WithRefreshTTL(ttl time.Duration) Option {
	return func(m *Manager) error {
		if ttl > 0 {
			m.refreshTTL = ttl
		}
		return nil
	}
}

// WithResetTTL configures password-reset token lifetime.
func WithResetTTL(ttl time.Duration) Option {
	return func(m *Manager) error {
		if ttl > 0 {
			m.resetTTL = ttl
		}
		return nil
	}
}

// WithVerificationTTL configures email-verification token lifetime.
func WithVerificationTTL(ttl time.Duration) Option {
	return func(m *Manager) error {
		if ttl > 0 {
			m.verificationTTL = ttl
		}
		return nil
	}
}

// WithStoreTimeout bounds every revocation-store call.
func WithStoreTimeout(d time.Duration) Option {
	return func(m *Manager) error {
		if d > 0 {
			m.storeTimeout = d
		}
		return nil
	}
}

// WithIdentityLookup wires the user-lookup used when rotating access tokens.
func WithIdentityLookup(lookup IdentityLookup) Option {
	return func(m *Manager) error {
		m.lookup = lookup
		return nil
	}
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(m *Manager) error {
		if fn != nil {
			m.now = fn
		}
		return nil
	}
}

// NewManager constructs a Manager with optional configuration.
func NewManager(codec *Codec, store RevocationStore, opts ...Option) (*Manager, error) {
	if codec == nil {
		return nil, errors.New("token: codec is required")
	}
	if store == nil {
		return nil, errors.New("token: revocation store is required")
	}
	m := &Manager{
		codec:           codec,
		store:           store,
		accessTTL:       defaultAccessTTL,
		refreshTTL:      defaultRefreshTTL,
		resetTTL:        defaultResetTTL,
		verificationTTL: defaultVerificationTTL,
		storeTimeout:    defaultStoreTimeout,
		now:             time.Now,
	}
	for _, opt := range opts {
		if err := opt(m); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Pair bundles the access and refresh tokens issued for one session along
// with their expirations.
type Pair struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

// Issue mints a token of the given type with a fresh jti. Whitelist-eligible
// types are synchronously registered in the whitelist for the token's
// lifetime; if that write fails the token would never verify, so the failure
// propagates and issuance has no degraded mode.
func (m *Manager) Issue(ctx context.Context, subject string, claims Claims, typ Type, ttl time.Duration) (string, time.Time, error) {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return "", time.Time{}, errors.New("token: subject is required")
	}
	if !typ.Valid() {
		return "", time.Time{}, fmt.Errorf("%w: %s", ErrUnsupportedType, typ)
	}
	if typ != TypeAccess {
		// Only access tokens carry the permission snapshot.
		claims.Permissions = nil
	}
	claims.Subject = subject
	claims.ID = uuid.NewString()
	claims.TokenType = typ

	signed, exp, err := m.codec.Sign(claims, ttl)
	if err != nil {
		return "", time.Time{}, err
	}
	if typ.Whitelisted() {
		sctx, cancel := m.storeCtx(ctx)
		defer cancel()
		if err := m.store.Set(sctx, whitelistKey(claims.ID, subject), "1", ttl); err != nil {
			return "", time.Time{}, fmt.Errorf("token: whitelist %s token: %w", typ, err)
		}
	}
	obs.ObserveTokenIssued(string(typ))
	return signed, exp, nil
}

// IssuePair mints a fresh access/refresh pair. This is the only supported way
// to start or renew a session; the refresh token carries only the subject.
func (m *Manager) IssuePair(ctx context.Context, subject, email, role string, permissions []string) (Pair, error) {
	access, accessExp, err := m.Issue(ctx, subject, Claims{
		Email:       email,
		Role:        role,
		Permissions: permissions,
	}, TypeAccess, m.accessTTL)
	if err != nil {
		return Pair{}, err
	}
	refresh, refreshExp, err := m.Issue(ctx, subject, Claims{}, TypeRefresh, m.refreshTTL)
	if err != nil {
		return Pair{}, err
	}
	return Pair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}, nil
}

// GenerateSecureToken mints a single-purpose token for password-reset or
// email-verification flows. Both types are whitelisted and consumed exactly
// once.
func (m *Manager) GenerateSecureToken(ctx context.Context, subject, email string, typ Type) (string, time.Time, error) {
	var ttl time.Duration
	switch typ {
	case TypeResetPassword:
		ttl = m.resetTTL
	case TypeEmailVerification:
		ttl = m.verificationTTL
	default:
		return "", time.Time{}, fmt.Errorf("%w: %s", ErrUnsupportedType, typ)
	}
	return m.Issue(ctx, subject, Claims{Email: email}, typ, ttl)
}

// Verify decodes and signature-checks the token, then consults the blacklist
// and, for single-use types, the whitelist. Store failures are treated as
// invalid, never as valid.
func (m *Manager) Verify(ctx context.Context, raw string) Result {
	res := m.verify(ctx, raw)
	obs.ObserveTokenVerification(res.Reason.metricLabel())
	return res
}

func (m *Manager) verify(ctx context.Context, raw string) Result {
	claims, err := m.codec.Verify(raw)
	if err != nil {
		if errors.Is(err, ErrExpired) {
			return Result{Reason: ReasonExpired}
		}
		return Result{Reason: ReasonMalformed}
	}

	sctx, cancel := m.storeCtx(ctx)
	defer cancel()

	_, revoked, err := m.store.Get(sctx, blacklistKey(claims.ID))
	if err != nil {
		obs.Logger().WithError(err).Warn("revocation store unavailable during verify")
		return Result{Reason: ReasonUnavailable}
	}
	if revoked {
		return Result{Reason: ReasonRevoked}
	}

	if claims.TokenType.Whitelisted() {
		_, live, err := m.store.Get(sctx, whitelistKey(claims.ID, claims.Subject))
		if err != nil {
			obs.Logger().WithError(err).Warn("revocation store unavailable during verify")
			return Result{Reason: ReasonUnavailable}
		}
		// Absence means the token was already consumed or never issued here.
		if !live {
			return Result{Reason: ReasonConsumed}
		}
	}
	return Result{Valid: true, Claims: claims}
}

// RotateAccessToken consumes the presented refresh token and mints a new
// access token for its subject. Consumption is an atomic check-and-delete on
// the whitelist entry, so of two concurrent rotations of the same refresh
// token at most one succeeds; the loser and any later replay get
// ErrInvalidToken.
func (m *Manager) RotateAccessToken(ctx context.Context, refreshToken string) (string, time.Time, error) {
	claims, err := m.codec.Verify(refreshToken)
	if err != nil {
		return "", time.Time{}, ErrInvalidToken
	}
	if claims.TokenType != TypeRefresh {
		return "", time.Time{}, ErrInvalidToken
	}

	sctx, cancel := m.storeCtx(ctx)
	defer cancel()

	if _, revoked, err := m.store.Get(sctx, blacklistKey(claims.ID)); err != nil || revoked {
		return "", time.Time{}, ErrInvalidToken
	}
	if _, consumed, err := m.store.GetDel(sctx, whitelistKey(claims.ID, claims.Subject)); err != nil || !consumed {
		return "", time.Time{}, ErrInvalidToken
	}

	// One-time use: the consumed jti stays blacklisted for its remaining
	// lifetime so replays fail as "revoked" rather than silently vanishing.
	m.blacklist(sctx, claims)

	identity := Identity{Email: claims.Email}
	if m.lookup != nil {
		identity, err = m.lookup.Lookup(ctx, claims.Subject)
		if err != nil {
			return "", time.Time{}, fmt.Errorf("token: resolve identity for rotation: %w", err)
		}
	}
	return m.Issue(ctx, claims.Subject, Claims{
		Email:       identity.Email,
		Role:        identity.Role,
		Permissions: identity.Permissions,
	}, TypeAccess, m.accessTTL)
}

// Revoke blacklists the token for its remaining lifetime and removes its
// whitelist entry when applicable. Revocation is best-effort: any internal
// failure yields false rather than an error so a logout request can still
// complete its other side effects.
func (m *Manager) Revoke(ctx context.Context, raw string) bool {
	res := m.Verify(ctx, raw)
	if !res.Valid {
		return false
	}
	claims := res.Claims

	sctx, cancel := m.storeCtx(ctx)
	defer cancel()

	ok := true
	remaining := claims.ExpiresAt.Time.Sub(m.now())
	if remaining > 0 {
		if err := m.store.Set(sctx, blacklistKey(claims.ID), "1", remaining); err != nil {
			obs.Logger().WithError(err).Warn("blacklist write failed during revoke")
			ok = false
		}
	}
	if claims.TokenType.Whitelisted() {
		if err := m.store.Del(sctx, whitelistKey(claims.ID, claims.Subject)); err != nil {
			obs.Logger().WithError(err).Warn("whitelist delete failed during revoke")
			ok = false
		}
	}
	if ok {
		obs.ObserveTokenRevoked()
	}
	return ok
}

// RevokeAllForSubject blacklists every whitelisted token belonging to the
// subject and clears the matching whitelist entries. Already-issued access
// tokens were never whitelisted and remain valid until natural expiry; that
// gap is the accepted trade-off for not whitelisting access tokens.
func (m *Manager) RevokeAllForSubject(ctx context.Context, subject string) bool {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return false
	}

	sctx, cancel := m.storeCtx(ctx)
	defer cancel()

	keys, err := m.store.Keys(sctx, whitelistSubjectPattern(subject))
	if err != nil {
		obs.Logger().WithError(err).Warn("whitelist scan failed during bulk revoke")
		return false
	}
	if len(keys) == 0 {
		return true
	}

	ok := true
	for _, key := range keys {
		jti, valid := jtiFromWhitelistKey(key)
		if !valid {
			continue
		}
		ttl, err := m.store.TTL(sctx, key)
		if err != nil {
			obs.Logger().WithError(err).Warn("whitelist ttl lookup failed during bulk revoke")
			ok = false
			continue
		}
		if ttl <= 0 {
			continue
		}
		if err := m.store.Set(sctx, blacklistKey(jti), "1", ttl); err != nil {
			obs.Logger().WithError(err).Warn("blacklist write failed during bulk revoke")
			ok = false
			continue
		}
		// One increment per blacklisted token, so the counter tracks the
		// true revocation volume of bulk operations.
		obs.ObserveTokenRevoked()
	}
	if err := m.store.Del(sctx, keys...); err != nil {
		obs.Logger().WithError(err).Warn("whitelist delete failed during bulk revoke")
		ok = false
	}
	return ok
}

// Decode exposes unverified payload decoding for callers that already hold a
// verified token.
func (m *Manager) Decode(raw string) (*Claims, error) {
	return m.codec.Decode(raw)
}

// blacklist inserts a best-effort blacklist entry capped at the token's
// remaining lifetime so the entry never outlives the token it blocks.
func (m *Manager) blacklist(ctx context.Context, claims *Claims) {
	remaining := claims.ExpiresAt.Time.Sub(m.now())
	if remaining <= 0 {
		return
	}
	if err := m.store.Set(ctx, blacklistKey(claims.ID), "1", remaining); err != nil {
		obs.Logger().WithError(err).Warn("blacklist write failed during rotation")
	}
}

func (m *Manager) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if m.storeTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, m.storeTimeout)
}
