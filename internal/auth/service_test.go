package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"schoolhub.org/internal/token"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func newTestService(t *testing.T) (*Service, *MemoryStore) {
	t.Helper()
	store := NewMemoryStore()
	resolver := NewResolver(store, time.Minute)

	codec, err := token.NewCodec(testSecret, "schoolhub-test")
	require.NoError(t, err)

	var svc *Service
	mgr, err := token.NewManager(codec, token.NewMemoryStore(),
		token.WithIdentityLookup(token.IdentityLookupFunc(
			func(ctx context.Context, subject string) (token.Identity, error) {
				return svc.Lookup(ctx, subject)
			})),
	)
	require.NoError(t, err)
	svc = NewService(store, resolver, mgr)
	return svc, store
}

func seedUser(t *testing.T, store *MemoryStore, email, password string) *User {
	t.Helper()
	hash, err := HashPassword(password)
	require.NoError(t, err)
	return store.CreateUser(&User{
		SchoolID:     "sch-1",
		Email:        email,
		PasswordHash: hash,
		Role:         "teacher",
	})
}

func TestLoginSuccess(t *testing.T) {
	svc, store := newTestService(t)
	user := seedUser(t, store, "teacher@example.org", "correct horse")
	ctx := context.Background()

	got, pair, err := svc.Login(ctx, "Teacher@Example.org", "correct horse")
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)
	assert.NotEmpty(t, pair.AccessToken)
	assert.NotEmpty(t, pair.RefreshToken)

	res := svc.Tokens().Verify(ctx, pair.AccessToken)
	require.True(t, res.Valid)
	assert.Equal(t, user.ID, res.Claims.Subject)
	assert.Equal(t, "teacher", res.Claims.Role)
}

func TestLoginWrongPassword(t *testing.T) {
	svc, store := newTestService(t)
	seedUser(t, store, "teacher@example.org", "correct horse")

	_, _, err := svc.Login(context.Background(), "teacher@example.org", "wrong")
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestLoginUnknownEmail(t *testing.T) {
	svc, _ := newTestService(t)
	_, _, err := svc.Login(context.Background(), "nobody@example.org", "whatever")
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestLoginDisabledAccount(t *testing.T) {
	svc, store := newTestService(t)
	user := seedUser(t, store, "teacher@example.org", "correct horse")
	store.users[user.ID].Status = UserStatusDisabled

	_, _, err := svc.Login(context.Background(), "teacher@example.org", "correct horse")
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestLoginEmbedsResolvedGrants(t *testing.T) {
	svc, store := newTestService(t)
	user := seedUser(t, store, "teacher@example.org", "correct horse")
	role := store.CreateRole(&Role{SchoolID: "sch-1", Name: "readers"})
	ctx := context.Background()
	require.NoError(t, store.SetForRole(ctx, role.ID, []Grant{{Resource: ResourceStudents, Action: "read"}}))
	require.NoError(t, store.Assign(ctx, Assignment{UserID: user.ID, RoleID: role.ID, SchoolID: "sch-1"}))

	_, pair, err := svc.Login(ctx, user.Email, "correct horse")
	require.NoError(t, err)

	res := svc.Tokens().Verify(ctx, pair.AccessToken)
	require.True(t, res.Valid)
	assert.Equal(t, []string{"students:read"}, res.Claims.Permissions)
}

func TestRotationPicksUpRoleChange(t *testing.T) {
	svc, store := newTestService(t)
	user := seedUser(t, store, "teacher@example.org", "correct horse")
	ctx := context.Background()

	_, pair, err := svc.Login(ctx, user.Email, "correct horse")
	require.NoError(t, err)

	role := store.CreateRole(&Role{SchoolID: "sch-1", Name: "managers"})
	require.NoError(t, store.SetForRole(ctx, role.ID, []Grant{{Resource: ResourceFees, Action: ActionManage}}))
	require.NoError(t, svc.AssignRole(ctx, user.ID, role.ID))

	access, _, err := svc.Tokens().RotateAccessToken(ctx, pair.RefreshToken)
	require.NoError(t, err)

	res := svc.Tokens().Verify(ctx, access)
	require.True(t, res.Valid)
	assert.Equal(t, []string{"fees:manage"}, res.Claims.Permissions)
}

func TestRotationRejectedForDisabledAccount(t *testing.T) {
	svc, store := newTestService(t)
	user := seedUser(t, store, "teacher@example.org", "correct horse")
	ctx := context.Background()

	_, pair, err := svc.Login(ctx, user.Email, "correct horse")
	require.NoError(t, err)

	store.users[user.ID].Status = UserStatusDisabled
	_, _, err = svc.Tokens().RotateAccessToken(ctx, pair.RefreshToken)
	assert.Error(t, err)
}

func TestPasswordResetFlow(t *testing.T) {
	svc, store := newTestService(t)
	user := seedUser(t, store, "teacher@example.org", "old password")
	ctx := context.Background()

	_, pair, err := svc.Login(ctx, user.Email, "old password")
	require.NoError(t, err)

	reset, _, err := svc.RequestPasswordReset(ctx, user.Email)
	require.NoError(t, err)
	require.NoError(t, svc.ConfirmPasswordReset(ctx, reset, "new password 1"))

	// Old password no longer works, new one does.
	_, _, err = svc.Login(ctx, user.Email, "old password")
	assert.ErrorIs(t, err, ErrUnauthorized)
	_, _, err = svc.Login(ctx, user.Email, "new password 1")
	assert.NoError(t, err)

	// Outstanding refresh tokens were revoked with the old password.
	_, _, err = svc.Tokens().RotateAccessToken(ctx, pair.RefreshToken)
	assert.Error(t, err)

	// The reset token is single use.
	err = svc.ConfirmPasswordReset(ctx, reset, "another password")
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestPasswordResetRejectsShortPassword(t *testing.T) {
	svc, store := newTestService(t)
	user := seedUser(t, store, "teacher@example.org", "old password")
	ctx := context.Background()

	reset, _, err := svc.RequestPasswordReset(ctx, user.Email)
	require.NoError(t, err)

	err = svc.ConfirmPasswordReset(ctx, reset, "short")
	assert.ErrorIs(t, err, ErrInvalidInput)

	// Rejection did not consume the token.
	require.NoError(t, svc.ConfirmPasswordReset(ctx, reset, "long enough now"))
}

func TestPasswordResetUnknownEmail(t *testing.T) {
	svc, _ := newTestService(t)
	_, _, err := svc.RequestPasswordReset(context.Background(), "nobody@example.org")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestEmailVerificationFlow(t *testing.T) {
	svc, store := newTestService(t)
	user := seedUser(t, store, "teacher@example.org", "correct horse")
	ctx := context.Background()

	verify, _, err := svc.RequestEmailVerification(ctx, user.Email)
	require.NoError(t, err)
	require.NoError(t, svc.ConfirmEmailVerification(ctx, verify))

	got, err := store.Find(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, got.EmailVerified)

	// Single use, and further requests are rejected once verified.
	assert.ErrorIs(t, svc.ConfirmEmailVerification(ctx, verify), ErrUnauthorized)
	_, _, err = svc.RequestEmailVerification(ctx, user.Email)
	assert.ErrorIs(t, err, ErrAlreadyExists)
}

func TestConfirmRejectsWrongTokenType(t *testing.T) {
	svc, store := newTestService(t)
	user := seedUser(t, store, "teacher@example.org", "correct horse")
	ctx := context.Background()

	reset, _, err := svc.RequestPasswordReset(ctx, user.Email)
	require.NoError(t, err)
	assert.ErrorIs(t, svc.ConfirmEmailVerification(ctx, reset), ErrUnauthorized)

	verify, _, err := svc.RequestEmailVerification(ctx, user.Email)
	require.NoError(t, err)
	assert.ErrorIs(t, svc.ConfirmPasswordReset(ctx, verify, "new password 1"), ErrUnauthorized)
}

func TestAssignRoleCrossSchoolRejected(t *testing.T) {
	svc, store := newTestService(t)
	user := seedUser(t, store, "teacher@example.org", "correct horse")
	role := store.CreateRole(&Role{SchoolID: "sch-2", Name: "other-school"})

	err := svc.AssignRole(context.Background(), user.ID, role.ID)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestRemoveAssignmentInvalidatesCache(t *testing.T) {
	svc, store := newTestService(t)
	user := seedUser(t, store, "teacher@example.org", "correct horse")
	role := store.CreateRole(&Role{SchoolID: "sch-1", Name: "readers"})
	ctx := context.Background()
	require.NoError(t, store.SetForRole(ctx, role.ID, []Grant{{Resource: ResourceStudents, Action: "read"}}))
	require.NoError(t, svc.AssignRole(ctx, user.ID, role.ID))

	grants, err := svc.PermissionResolver().Resolve(ctx, user.ID)
	require.NoError(t, err)
	assert.Len(t, grants, 1)

	require.NoError(t, svc.RemoveAssignment(ctx, user.ID, role.ID))
	grants, err = svc.PermissionResolver().Resolve(ctx, user.ID)
	require.NoError(t, err)
	assert.Empty(t, grants)
}

func TestSetRolePermissionsUnknownRole(t *testing.T) {
	svc, _ := newTestService(t)
	err := svc.SetRolePermissions(context.Background(), "missing", nil)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("a strong password")
	require.NoError(t, err)
	assert.True(t, VerifyPassword(hash, "a strong password"))
	assert.False(t, VerifyPassword(hash, "a wrong password"))

	_, err = HashPassword("short")
	assert.Error(t, err)
}
