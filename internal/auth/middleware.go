package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/sungwon/newsletter/internal/metrics"
)

type contextKey string

const userIDKey contextKey = "user_id"

// UserFromContext retrieves the user ID from the request context.
// Returns uuid.Nil if no user is set.
func UserFromContext(ctx context.Context) uuid.UUID {
	if id, ok := ctx.Value(userIDKey).(uuid.UUID); ok {
		return id
	}
	return uuid.Nil
}

// WithUser stores the user ID in ctx.
func WithUser(ctx context.Context, id uuid.UUID) context.Context {
	return context.WithValue(ctx, userIDKey, id)
}

// BearerAuth returns an HTTP middleware that validates JWT Bearer tokens
// and stores the token's user id in the request context.
func BearerAuth(jwtService *JWTService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				unauthorized(w, "authorization header required")
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				unauthorized(w, "invalid authorization format, expected Bearer <token>")
				return
			}

			tokenStr := parts[1]
			if tokenStr == "" {
				unauthorized(w, "empty token")
				return
			}

			claims, err := jwtService.ValidateAccessToken(tokenStr)
			if err != nil {
				unauthorized(w, "invalid or expired token")
				return
			}

			userID, err := claims.UserID()
			if err != nil {
				unauthorized(w, "invalid token claims")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), userID)))
		})
	}
}

func unauthorized(w http.ResponseWriter, msg string) {
	metrics.APIAuthFailuresTotal.Inc()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"` + msg + `"}`))
}
