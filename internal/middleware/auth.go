// Package middleware provides HTTP middleware for the API server.
package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/clausebit/companion/internal/auth"
)

// ContextKey is a type for context keys.
type ContextKey string

// UserIDKey is the context key for user ID.
const UserIDKey ContextKey = "user_id"

// Session reads the identity provider's credential from the bearer header
// or session cookie. Requests without one continue as the guest user; a
// credential that fails verification is rejected. Accepted credentials are
// remembered in holder for timer-driven backend calls.
func Session(jwtSecret string, holder *auth.Holder, now func() time.Time) func(http.Handler) http.Handler {
	if now == nil {
		now = time.Now
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := auth.FromRequest(r)
			if token == "" {
				ctx := context.WithValue(r.Context(), UserIDKey, auth.GuestUserID)
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			claims, err := auth.ParseClaims(token, jwtSecret, now())
			if err != nil {
				writeJSONError(w, http.StatusUnauthorized, "invalid token")
				return
			}

			userID := claims.Subject
			if userID == "" {
				userID = auth.GuestUserID
			}
			if holder != nil {
				holder.Set(token)
			}

			ctx := auth.WithToken(r.Context(), token)
			ctx = context.WithValue(ctx, UserIDKey, userID)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireCredential rejects requests that carried no session credential.
func RequireCredential(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if auth.TokenFromContext(r.Context()) == "" {
			writeJSONError(w, http.StatusUnauthorized, "missing session credential")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// GetUserID gets user ID from context.
func GetUserID(ctx context.Context) string {
	if v, ok := ctx.Value(UserIDKey).(string); ok {
		return v
	}
	return ""
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(`{"error":"` + msg + `"}`))
}
