package mw

import (
	"context"
	"net/http"
	"strings"

	"github.com/MrSnakeDoc/shelf/internal/backend"
	"github.com/MrSnakeDoc/shelf/internal/domain"
	"github.com/MrSnakeDoc/shelf/internal/logger"
)

// SessionCookie carries the session token for browser clients.
const SessionCookie = "shelf_session"

type ctxKey int

const (
	tokenKey ctxKey = iota
	userKey
)

// Session copies the session token from "Authorization: Bearer" or the
// session cookie into the request context. It never rejects a request.
func Session() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token := tokenFromRequest(r); token != "" {
				r = r.WithContext(context.WithValue(r.Context(), tokenKey, token))
			}
			next.ServeHTTP(w, r)
		})
	}
}

func tokenFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if scheme, token, ok := strings.Cut(h, " "); ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
	}
	if c, err := r.Cookie(SessionCookie); err == nil {
		return c.Value
	}
	return ""
}

// RequireUser answers 401 unless the session token resolves to a user.
func RequireUser(resolver backend.Resolver, log logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			uid, ok, err := resolver.Resolve(r.Context(), Token(r.Context()))
			if err != nil {
				log.Error("session lookup failed", logger.Error(err))
				http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
				return
			}
			if !ok {
				w.Header().Set("WWW-Authenticate", `Bearer realm="shelf"`)
				http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userKey, uid)))
		})
	}
}

// Token returns the session token found by Session, or "".
func Token(ctx context.Context) string {
	t, _ := ctx.Value(tokenKey).(string)
	return t
}

// User returns the user resolved by RequireUser.
func User(ctx context.Context) (domain.UserID, bool) {
	uid, ok := ctx.Value(userKey).(domain.UserID)
	return uid, ok
}
