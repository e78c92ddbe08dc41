// Package auth carries the identity provider's session credential from the
// extension and dashboard to protected backend calls.
package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SessionCookie is the cookie the identity provider sets on sign-in.
const SessionCookie = "__session"

// GuestUserID is used for dashboard stores when no identity is known.
const GuestUserID = "guest"

var (
	// ErrNoCredential means no bearer credential could be obtained.
	ErrNoCredential = errors.New("no session credential")
	// ErrInvalidToken means the credential failed verification or has expired.
	ErrInvalidToken = errors.New("invalid session token")
)

// TokenSource yields the bearer credential for protected backend calls.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// Claims are the session token claims the companion reads.
type Claims struct {
	jwt.RegisteredClaims
	SessionID string `json:"sid,omitempty"`
}

// ParseClaims reads the claims of a session token. With a secret the
// signature is verified (HMAC); without one the claims are read as-is and
// only expiry is enforced, since the backend performs the real check.
func ParseClaims(tokenString, secret string, now time.Time) (*Claims, error) {
	claims := &Claims{}

	if secret != "" {
		token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrSignatureInvalid
			}
			return []byte(secret), nil
		}, jwt.WithTimeFunc(func() time.Time { return now }))
		if err != nil || !token.Valid {
			return nil, ErrInvalidToken
		}
		return claims, nil
	}

	if _, _, err := jwt.NewParser().ParseUnverified(tokenString, claims); err != nil {
		return nil, ErrInvalidToken
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil && !now.Before(exp.Time) {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// FromRequest extracts a bearer credential from the Authorization header,
// falling back to the identity provider's session cookie.
func FromRequest(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			return strings.TrimSpace(parts[1])
		}
		return ""
	}
	if cookie, err := r.Cookie(SessionCookie); err == nil {
		return cookie.Value
	}
	return ""
}

type contextKey struct{}

// WithToken returns a context carrying a bearer credential.
func WithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, contextKey{}, token)
}

// TokenFromContext returns the credential stored by WithToken.
func TokenFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(contextKey{}).(string); ok {
		return v
	}
	return ""
}

// ContextSource reads the credential from the call's context.
type ContextSource struct{}

func (ContextSource) Token(ctx context.Context) (string, error) {
	if token := TokenFromContext(ctx); token != "" {
		return token, nil
	}
	return "", ErrNoCredential
}

// StaticToken is a fixed credential, used by the CLI.
type StaticToken string

func (s StaticToken) Token(context.Context) (string, error) {
	if s == "" {
		return "", ErrNoCredential
	}
	return string(s), nil
}

// Holder remembers the most recent credential the extension presented, so
// timer-driven calls made outside any request can still authenticate.
type Holder struct {
	mu    sync.RWMutex
	token string
	now   func() time.Time
}

// NewHolder creates an empty Holder.
func NewHolder() *Holder {
	return &Holder{now: time.Now}
}

// Set records a credential. Empty values are ignored.
func (h *Holder) Set(token string) {
	if token == "" {
		return
	}
	h.mu.Lock()
	h.token = token
	h.mu.Unlock()
}

// Token returns the held credential, preferring one carried by ctx.
// An expired JWT counts as no credential.
func (h *Holder) Token(ctx context.Context) (string, error) {
	if token := TokenFromContext(ctx); token != "" {
		return token, nil
	}

	h.mu.RLock()
	token := h.token
	h.mu.RUnlock()
	if token == "" {
		return "", ErrNoCredential
	}

	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err == nil {
		if exp, err := claims.GetExpirationTime(); err == nil && exp != nil && !h.now().Before(exp.Time) {
			return "", ErrNoCredential
		}
	}
	return token, nil
}
