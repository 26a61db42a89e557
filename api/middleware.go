package api

import (
	"net/http"
	"strings"

	"escrowflow/account"
)

// TokenVerifier resolves a bearer token to a caller identity.
type TokenVerifier interface {
	VerifyToken(token string) (string, account.Role, error)
}

// RequireAuth resolves the caller from the Authorization header and stores it
// on the request context. Handlers behind it can trust CallerFrom.
func RequireAuth(verifier TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || token == "" {
				writeJSON(w, http.StatusUnauthorized, errorBody{Code: "unauthenticated", Message: "missing bearer token"})
				return
			}

			accountID, role, err := verifier.VerifyToken(token)
			if err != nil {
				writeJSON(w, http.StatusUnauthorized, errorBody{Code: "unauthenticated", Message: "invalid token"})
				return
			}

			ctx := withCaller(r.Context(), Caller{ID: accountID, Role: role})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole gates a subtree on the caller's platform role. Must be mounted
// behind RequireAuth.
func RequireRole(role account.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			caller, ok := CallerFrom(r.Context())
			if !ok {
				writeJSON(w, http.StatusUnauthorized, errorBody{Code: "unauthenticated", Message: "missing caller"})
				return
			}
			if caller.Role != role {
				writeJSON(w, http.StatusForbidden, errorBody{Code: "forbidden", Message: "role not permitted"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
