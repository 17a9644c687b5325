package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"schoolhub.org/internal/auth"
	"schoolhub.org/internal/token"
)

const testSecret = "0123456789abcdef0123456789abcdef"

type testAPI struct {
	api     *API
	handler http.Handler
	store   *auth.MemoryStore
	svc     *auth.Service
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	store := auth.NewMemoryStore()
	resolver := auth.NewResolver(store, 0)

	codec, err := token.NewCodec(testSecret, "schoolhub-test")
	require.NoError(t, err)

	var svc *auth.Service
	mgr, err := token.NewManager(codec, token.NewMemoryStore(),
		token.WithIdentityLookup(token.IdentityLookupFunc(
			func(ctx context.Context, subject string) (token.Identity, error) {
				return svc.Lookup(ctx, subject)
			})),
	)
	require.NoError(t, err)
	svc = auth.NewService(store, resolver, mgr)

	api := New(svc, ReadyProbe{}, Options{Version: "test", AdminRole: "admin"})
	return &testAPI{
		api:     api,
		handler: api.Handler(),
		store:   store,
		svc:     svc,
	}
}

func (ta *testAPI) seedUser(t *testing.T, email, password, role string) *auth.User {
	t.Helper()
	hash, err := auth.HashPassword(password)
	require.NoError(t, err)
	return ta.store.CreateUser(&auth.User{
		SchoolID:     "sch-1",
		Email:        email,
		PasswordHash: hash,
		Role:         role,
	})
}

func (ta *testAPI) do(t *testing.T, method, path, bearerToken string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.RemoteAddr = "10.0.0.1:1234"
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+bearerToken)
	}
	rr := httptest.NewRecorder()
	ta.handler.ServeHTTP(rr, req)
	return rr
}

func (ta *testAPI) login(t *testing.T, email, password string) loginResponse {
	t.Helper()
	rr := ta.do(t, http.MethodPost, "/v1/auth/login", "", map[string]string{
		"email":    email,
		"password": password,
	})
	require.Equal(t, http.StatusOK, rr.Code, "login failed: %s", rr.Body.String())
	var resp loginResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	return resp
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	return body
}
