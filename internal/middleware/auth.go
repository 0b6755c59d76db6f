// Package middleware carries the HTTP cross-cutting concerns: bearer
// authentication, request logging, metrics, rate limiting and CORS.
package middleware

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/nexushub/marketplace/internal/app/domain/actor"
	"github.com/nexushub/marketplace/internal/errors"
	"github.com/nexushub/marketplace/internal/httputil"
	"github.com/nexushub/marketplace/internal/logging"
)

// Claims is the token payload. The subject carries the user id.
type Claims struct {
	Role     string `json:"role"`
	Username string `json:"username,omitempty"`
	jwt.RegisteredClaims
}

// Auth verifies bearer tokens and attaches the actor to the request
// context.
type Auth struct {
	secret []byte
	log    *logging.Logger
	skip   []string
}

// NewAuth builds the authenticator. Requests to skip paths pass through
// unauthenticated; a path ending in "/" skips the whole subtree, which
// lets websocket endpoints do their own handshake-level auth.
func NewAuth(secret string, log *logging.Logger, skipPaths ...string) *Auth {
	return &Auth{secret: []byte(secret), log: log, skip: skipPaths}
}

func (a *Auth) skipped(path string) bool {
	for _, p := range a.skip {
		if p == path {
			return true
		}
		if strings.HasSuffix(p, "/") && strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

// TokenFromRequest pulls the bearer token from the Authorization header,
// falling back to the token query parameter for websocket clients that
// cannot set headers.
func TokenFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if strings.HasPrefix(h, "Bearer ") {
			return strings.TrimPrefix(h, "Bearer ")
		}
		return ""
	}
	return r.URL.Query().Get("token")
}

// Verify parses and validates a raw token.
func (a *Auth) Verify(raw string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("token has no subject")
	}
	return claims, nil
}

// Middleware authenticates every request outside the skip list.
func (a *Auth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.skipped(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		raw := TokenFromRequest(r)
		if raw == "" {
			httputil.WriteError(w, errors.InvalidToken(fmt.Errorf("missing token")))
			return
		}
		claims, err := a.Verify(raw)
		if err != nil {
			a.log.WithContext(r.Context()).WithError(err).Debug("token rejected")
			httputil.WriteError(w, errors.InvalidToken(err))
			return
		}

		ctx := logging.WithUser(r.Context(), claims.Subject, claims.Role)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ActorFromContext recovers the authenticated actor. The bool is false
// when the request did not pass authentication.
func ActorFromContext(r *http.Request) (actor.Actor, bool) {
	id := logging.GetUserID(r.Context())
	if id == "" {
		return actor.Actor{}, false
	}
	return actor.Actor{ID: id, Role: actor.Role(logging.GetRole(r.Context()))}, true
}

// NewToken mints a signed token. Used by tests and local tooling.
func NewToken(secret, userID string, role actor.Role, username string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Role:     string(role),
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
