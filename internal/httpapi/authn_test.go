package httpapi

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractBearerToken(t *testing.T) {
	cases := []struct {
		name   string
		header string
		want   string
		ok     bool
	}{
		{"valid", "Bearer abc.def.ghi", "abc.def.ghi", true},
		{"case insensitive scheme", "bearer abc", "abc", true},
		{"surrounding space", "  Bearer abc  ", "abc", true},
		{"empty", "", "", false},
		{"wrong scheme", "Basic abc", "", false},
		{"scheme only", "Bearer ", "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := extractBearerToken(tc.header)
			if !tc.ok {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestGateRejectsMissingToken(t *testing.T) {
	ta := newTestAPI(t)
	rr := ta.do(t, http.MethodGet, "/v1/auth/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestGateRejectsGarbageToken(t *testing.T) {
	ta := newTestAPI(t)
	rr := ta.do(t, http.MethodGet, "/v1/auth/me", "not-a-jwt", nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Contains(t, rr.Body.String(), "invalid token")
}

func TestGateRejectsRefreshTokenAsBearer(t *testing.T) {
	ta := newTestAPI(t)
	ta.seedUser(t, "teacher@example.org", "correct horse", "teacher")
	session := ta.login(t, "teacher@example.org", "correct horse")

	rr := ta.do(t, http.MethodGet, "/v1/auth/me", session.RefreshToken, nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Contains(t, rr.Body.String(), "access token required")
}

func TestGateRejectsRevokedToken(t *testing.T) {
	ta := newTestAPI(t)
	ta.seedUser(t, "teacher@example.org", "correct horse", "teacher")
	session := ta.login(t, "teacher@example.org", "correct horse")

	rr := ta.do(t, http.MethodPost, "/v1/auth/logout", session.AccessToken, nil)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = ta.do(t, http.MethodGet, "/v1/auth/me", session.AccessToken, nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Contains(t, rr.Body.String(), "token revoked")
}

func TestGateAllowsPublicPaths(t *testing.T) {
	ta := newTestAPI(t)
	for _, path := range []string{"/healthz", "/readyz", "/v1/info"} {
		rr := ta.do(t, http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusOK, rr.Code, "path %s", path)
	}
}

func TestOptionalAuthAttachesIdentityOnPublicRoute(t *testing.T) {
	ta := newTestAPI(t)
	user := ta.seedUser(t, "teacher@example.org", "correct horse", "teacher")
	session := ta.login(t, "teacher@example.org", "correct horse")

	rr := ta.do(t, http.MethodGet, "/v1/info", session.AccessToken, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	body := decodeBody(t, rr)
	assert.Equal(t, user.ID, body["user_id"])
	assert.Equal(t, "teacher", body["role"])
}

func TestOptionalAuthServesAnonymously(t *testing.T) {
	ta := newTestAPI(t)

	rr := ta.do(t, http.MethodGet, "/v1/info", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.NotContains(t, decodeBody(t, rr), "user_id")
}

func TestOptionalAuthNeverRejects(t *testing.T) {
	ta := newTestAPI(t)
	ta.seedUser(t, "teacher@example.org", "correct horse", "teacher")
	session := ta.login(t, "teacher@example.org", "correct horse")

	// Garbage, a non-access token, and a revoked token all serve anonymously.
	for name, bearerToken := range map[string]string{
		"garbage":       "not-a-jwt",
		"refresh token": session.RefreshToken,
	} {
		rr := ta.do(t, http.MethodGet, "/v1/info", bearerToken, nil)
		require.Equal(t, http.StatusOK, rr.Code, name)
		assert.NotContains(t, decodeBody(t, rr), "user_id", name)
	}

	rr := ta.do(t, http.MethodPost, "/v1/auth/logout", session.AccessToken, nil)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = ta.do(t, http.MethodGet, "/v1/info", session.AccessToken, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.NotContains(t, decodeBody(t, rr), "user_id")
}

func TestGateAttachesIdentity(t *testing.T) {
	ta := newTestAPI(t)
	user := ta.seedUser(t, "teacher@example.org", "correct horse", "teacher")
	session := ta.login(t, "teacher@example.org", "correct horse")

	rr := ta.do(t, http.MethodGet, "/v1/auth/me", session.AccessToken, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	body := decodeBody(t, rr)
	assert.Equal(t, user.ID, body["user_id"])
	assert.Equal(t, "teacher@example.org", body["email"])
	assert.Equal(t, "teacher", body["role"])
}
