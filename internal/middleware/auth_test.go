package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nexushub/marketplace/internal/app/domain/actor"
	"github.com/nexushub/marketplace/internal/logging"
)

const testSecret = "auth-test-secret"

func newAuth(skip ...string) *Auth {
	return NewAuth(testSecret, logging.NewDefault("auth-test"), skip...)
}

func TestVerifyRoundTrip(t *testing.T) {
	auth := newAuth()

	token, err := NewToken(testSecret, "u1", actor.RoleStudent, "alice", time.Hour)
	require.NoError(t, err)

	claims, err := auth.Verify(token)
	require.NoError(t, err)
	require.Equal(t, "u1", claims.Subject)
	require.Equal(t, "student", claims.Role)
	require.Equal(t, "alice", claims.Username)
}

func TestVerifyRejectsExpired(t *testing.T) {
	auth := newAuth()

	token, err := NewToken(testSecret, "u1", actor.RoleStudent, "", -time.Minute)
	require.NoError(t, err)

	_, err = auth.Verify(token)
	require.Error(t, err)
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	auth := newAuth()

	token, err := NewToken("other-secret", "u1", actor.RoleStudent, "", time.Hour)
	require.NoError(t, err)

	_, err = auth.Verify(token)
	require.Error(t, err)
}

func TestMiddlewareAttachesActor(t *testing.T) {
	auth := newAuth()
	token, err := NewToken(testSecret, "u1", actor.RoleCompany, "", time.Hour)
	require.NoError(t, err)

	var got actor.Actor
	handler := auth.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		act, ok := ActorFromContext(r)
		require.True(t, ok)
		got = act
	}))

	req := httptest.NewRequest(http.MethodGet, "/applications/my", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, actor.Actor{ID: "u1", Role: actor.RoleCompany}, got)
}

func TestMiddlewareRejectsMissingToken(t *testing.T) {
	auth := newAuth()
	handler := auth.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not run")
	}))

	req := httptest.NewRequest(http.MethodGet, "/applications/my", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMiddlewareSkipPaths(t *testing.T) {
	auth := newAuth("/healthz", "/chat/ws/")
	called := 0
	handler := auth.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called++
	}))

	for _, path := range []string{"/healthz", "/chat/ws/room-1"} {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		require.Equal(t, http.StatusOK, rec.Code, path)
	}
	require.Equal(t, 2, called)

	// The prefix does not leak to siblings.
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/chat/rooms", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestTokenFromRequestQueryFallback(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/chat/ws/r1?token=query-token", nil)
	require.Equal(t, "query-token", TokenFromRequest(req))

	req = httptest.NewRequest(http.MethodGet, "/chat/ws/r1?token=query-token", nil)
	req.Header.Set("Authorization", "Bearer header-token")
	require.Equal(t, "header-token", TokenFromRequest(req))

	req = httptest.NewRequest(http.MethodGet, "/chat/ws/r1", nil)
	req.Header.Set("Authorization", "Basic abc")
	require.Equal(t, "", TokenFromRequest(req))
}
