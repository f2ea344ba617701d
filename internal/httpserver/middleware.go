package httpserver

import (
	"context"
	"net/http"
	"strings"

	"optrade/internal/auth"
	"optrade/internal/httputil"
)

type ctxKey string

const userKeyKey ctxKey = "user_key"

func WithAuth(svc *auth.Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authz := r.Header.Get("Authorization")
			parts := strings.SplitN(authz, " ", 2)
			if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
				httputil.WriteJSON(w, http.StatusUnauthorized, httputil.ErrorResponse{Kind: "unauthenticated", Error: "missing bearer token"})
				return
			}
			userKey, role, err := svc.ParseToken(parts[1])
			if err != nil || role != "" {
				httputil.WriteJSON(w, http.StatusUnauthorized, httputil.ErrorResponse{Kind: "unauthenticated", Error: "invalid token"})
				return
			}
			ctx := context.WithValue(r.Context(), userKeyKey, userKey)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// WithOptionalAuth resolves a bearer token when present but lets anonymous
// requests through; handlers see an empty user key for those.
func WithOptionalAuth(svc *auth.Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authz := r.Header.Get("Authorization")
			parts := strings.SplitN(authz, " ", 2)
			if len(parts) == 2 && strings.ToLower(parts[0]) == "bearer" {
				if userKey, role, err := svc.ParseToken(parts[1]); err == nil && role == "" {
					r = r.WithContext(context.WithValue(r.Context(), userKeyKey, userKey))
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

func UserKey(r *http.Request) (string, bool) {
	v := r.Context().Value(userKeyKey)
	if v == nil {
		return "", false
	}
	key, ok := v.(string)
	return key, ok
}
