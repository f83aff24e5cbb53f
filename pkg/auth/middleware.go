package auth

import (
	"context"
	"net/http"
	"strings"

	"velo/pkg/vlog"
)

type contextKey string

const claimsKey contextKey = "velo_claims"

// Middleware rejects requests that do not carry a valid token. Tokens
// travel in the Authorization header as a bearer token, or in a token
// query parameter for websocket clients that cannot set headers.
func Middleware(secret []byte, logger *vlog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				http.Error(w, "missing authentication token", http.StatusUnauthorized)
				return
			}

			claims, err := Verify(token, secret)
			if err != nil {
				logger.DebugWith("Rejected API token",
					vlog.F("path", r.URL.Path),
					vlog.F("err", err))
				reason := "invalid token"
				if err == ErrExpiredToken {
					reason = "token expired"
				}
				http.Error(w, reason, http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
		})
	}
}

func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		parts := strings.SplitN(h, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			return parts[1]
		}
	}
	return r.URL.Query().Get("token")
}

// WithClaims stores verified claims on a context
func WithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, claimsKey, claims)
}

// GetClaims retrieves the verified claims of a request
func GetClaims(r *http.Request) (*Claims, bool) {
	claims, ok := r.Context().Value(claimsKey).(*Claims)
	return claims, ok
}
