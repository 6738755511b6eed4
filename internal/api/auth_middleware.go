package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/sessions"

	"github.com/frameline/screenroom/internal/core"
)

type ctxKey string

const (
	// IdentityContextKey is used for extract the verified identity from
	// request context
	IdentityContextKey ctxKey = "identity"

	consoleSessionName = "_screenroom_console"
)

// AuthFailFunc is function that is called when authentication failed
type AuthFailFunc func(w http.ResponseWriter, r *http.Request, err error)

// AuthHandler is optional handler for mocking in tests
type AuthHandler func(next http.Handler) http.Handler

var (
	xAuth             = http.CanonicalHeaderKey("X-Auth")
	ErrEmptyAuthToken = errors.New("empty auth token")
	ErrBadAuthToken   = errors.New("bad auth token")
)

// TokenAuth verifies callers at the identity boundary. Host console
// browsers carry a cookie session; API clients and viewer players carry a
// signed platform token in X-Auth. Either way the engine only ever sees an
// already-verified core.Identity.
type TokenAuth struct {
	AuthFailFunc AuthFailFunc
	StubHandler  AuthHandler

	secret      []byte
	cookieStore *sessions.CookieStore
}

func NewTokenAuth(tokenSecret, cookieSecret string) *TokenAuth {
	return &TokenAuth{
		secret:      []byte(tokenSecret),
		cookieStore: sessions.NewCookieStore([]byte(cookieSecret)),
	}
}

// Middleware is a middleware that resolves the caller identity
func (m *TokenAuth) Middleware() AuthHandler {
	if m.StubHandler != nil {
		return m.StubHandler
	}

	return m.defaultMiddleware()
}

func (m *TokenAuth) defaultMiddleware() AuthHandler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			consoleSession, _ := m.cookieStore.Get(r, consoleSessionName)
			hostID, ok := consoleSession.Values["id"]
			if ok {
				identity := core.Identity{
					ID:   fmt.Sprintf("%v", hostID),
					Role: core.RoleHost,
				}
				if name, ok := consoleSession.Values["name"].(string); ok {
					identity.Name = name
				}

				ctx := context.WithValue(r.Context(), IdentityContextKey, identity)
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			token := r.Header.Get(xAuth)
			if token == "" {
				m.authFailed(w, r, ErrEmptyAuthToken)
				return
			}

			identity, err := m.verifyToken(token)
			if err != nil {
				m.authFailed(w, r, err)
				return
			}

			ctx := context.WithValue(r.Context(), IdentityContextKey, identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func (m *TokenAuth) verifyToken(token string) (core.Identity, error) {
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
		return m.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return core.Identity{}, err
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return core.Identity{}, ErrBadAuthToken
	}

	sub, _ := claims["sub"].(string)
	if sub == "" {
		return core.Identity{}, ErrBadAuthToken
	}

	identity := core.Identity{ID: sub, Role: core.RoleViewer}
	if name, ok := claims["name"].(string); ok {
		identity.Name = name
	}
	if avatar, ok := claims["avatar"].(string); ok {
		identity.Avatar = avatar
	}
	if role, ok := claims["role"].(string); ok && core.Role(role) == core.RoleHost {
		identity.Role = core.RoleHost
	}

	return identity, nil
}

func (m *TokenAuth) authFailed(w http.ResponseWriter, r *http.Request, err error) {
	if m.AuthFailFunc != nil {
		m.AuthFailFunc(w, r, err)
	} else {
		w.WriteHeader(http.StatusUnauthorized)
	}
}

// identityFromRequest extracts the verified identity from request context
func identityFromRequest(r *http.Request) (core.Identity, error) {
	identity, ok := r.Context().Value(IdentityContextKey).(core.Identity)
	if !ok {
		return core.Identity{}, errors.New("can't get identity from request context")
	}

	return identity, nil
}
