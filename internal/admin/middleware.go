package admin

import (
	"net/http"
	"strings"

	"optrade/internal/auth"
	"optrade/internal/httputil"
)

// AuthMiddleware gates the operator routes on a valid admin token.
func AuthMiddleware(authSvc *auth.Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				httputil.WriteJSON(w, http.StatusUnauthorized, httputil.ErrorResponse{Kind: "unauthenticated", Error: "missing authorization"})
				return
			}
			parts := strings.SplitN(header, " ", 2)
			if len(parts) != 2 || parts[0] != "Bearer" {
				httputil.WriteJSON(w, http.StatusUnauthorized, httputil.ErrorResponse{Kind: "unauthenticated", Error: "invalid authorization format"})
				return
			}
			_, role, err := authSvc.ParseToken(parts[1])
			if err != nil {
				httputil.WriteJSON(w, http.StatusUnauthorized, httputil.ErrorResponse{Kind: "unauthenticated", Error: "invalid token"})
				return
			}
			if role != auth.RoleAdmin {
				httputil.WriteJSON(w, http.StatusForbidden, httputil.ErrorResponse{Kind: "forbidden", Error: "admin access required"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
