package handler

import (
	"context"
	"net/http"
	"strings"

	"safarapi-auth/internal/token"
)

// TokenVerifier checks a bearer token and returns its claims.
type TokenVerifier interface {
	Verify(ctx context.Context, tokenString string) (*token.Claims, error)
}

type contextKey int

const (
	claimsContextKey contextKey = iota
	rawTokenContextKey
)

// AuthMiddleware rejects requests without a valid bearer token and stores
// the claims and the raw token on the request context.
func AuthMiddleware(verifier TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if !strings.HasPrefix(header, "Bearer ") {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				w.Write([]byte(`{"success":false,"error":"missing bearer token"}`))
				return
			}

			rawToken := strings.TrimPrefix(header, "Bearer ")
			claims, err := verifier.Verify(r.Context(), rawToken)
			if err != nil {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				w.Write([]byte(`{"success":false,"error":"invalid token"}`))
				return
			}

			ctx := context.WithValue(r.Context(), claimsContextKey, claims)
			ctx = context.WithValue(ctx, rawTokenContextKey, rawToken)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ClaimsFromContext returns the verified claims stored by AuthMiddleware.
func ClaimsFromContext(ctx context.Context) *token.Claims {
	claims, _ := ctx.Value(claimsContextKey).(*token.Claims)
	return claims
}

// RawTokenFromContext returns the bearer token stored by AuthMiddleware.
func RawTokenFromContext(ctx context.Context) string {
	rawToken, _ := ctx.Value(rawTokenContextKey).(string)
	return rawToken
}
