package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/clausebit/companion/internal/auth"
	"github.com/clausebit/companion/pkg/logger"
)

func signed(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func TestSession(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	valid := signed(t, "s3cret", jwt.MapClaims{"sub": "user_42", "sid": "sess_1", "exp": now.Add(time.Hour).Unix()})
	expired := signed(t, "s3cret", jwt.MapClaims{"sub": "user_42", "exp": now.Add(-time.Hour).Unix()})
	forged := signed(t, "other", jwt.MapClaims{"sub": "user_42", "exp": now.Add(time.Hour).Unix()})

	tests := []struct {
		name       string
		setup      func(r *http.Request)
		wantStatus int
		wantUser   string
		wantToken  string
	}{
		{
			name:       "no credential is guest",
			setup:      func(r *http.Request) {},
			wantStatus: http.StatusOK,
			wantUser:   auth.GuestUserID,
		},
		{
			name:       "bearer header",
			setup:      func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+valid) },
			wantStatus: http.StatusOK,
			wantUser:   "user_42",
			wantToken:  valid,
		},
		{
			name:       "session cookie",
			setup:      func(r *http.Request) { r.AddCookie(&http.Cookie{Name: auth.SessionCookie, Value: valid}) },
			wantStatus: http.StatusOK,
			wantUser:   "user_42",
			wantToken:  valid,
		},
		{
			name:       "expired",
			setup:      func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+expired) },
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "wrong signature",
			setup:      func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+forged) },
			wantStatus: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			holder := auth.NewHolder()
			var gotUser, gotToken string
			h := Session("s3cret", holder, func() time.Time { return now })(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotUser = GetUserID(r.Context())
				gotToken = auth.TokenFromContext(r.Context())
			}))

			req := httptest.NewRequest(http.MethodGet, "/api/v1/transcript", nil)
			tt.setup(req)
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if gotUser != tt.wantUser || gotToken != tt.wantToken {
				t.Errorf("user=%q token=%q, want %q %q", gotUser, gotToken, tt.wantUser, tt.wantToken)
			}
		})
	}
}

func TestRequireCredential(t *testing.T) {
	h := RequireCredential(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("without token status = %d, want 401", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(auth.WithToken(req.Context(), "tok"))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Errorf("with token status = %d, want 204", rec.Code)
	}
}

func TestLogging_CorrelationID(t *testing.T) {
	var seen string
	h := Logging(nopLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetCorrelationID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Correlation-ID", "abc-123")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if seen != "abc-123" || rec.Header().Get("X-Correlation-ID") != "abc-123" {
		t.Errorf("correlation id = %q / %q, want abc-123", seen, rec.Header().Get("X-Correlation-ID"))
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Header().Get("X-Correlation-ID") == "" {
		t.Error("no correlation id generated")
	}
}

func TestValidators(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantErr bool
	}{
		{"content ok", ValidateMessageContent("hello"), false},
		{"content blank passes through", ValidateMessageContent("   "), false},
		{"content too long", ValidateMessageContent(strings.Repeat("a", MaxContentLength+1)), true},
		{"content bad utf8", ValidateMessageContent("\xff"), true},
		{"tab ok", ValidateTabID("1234"), false},
		{"tab empty", ValidateTabID(""), true},
		{"tab space", ValidateTabID("12 34"), true},
		{"session ok", ValidateSessionID("session_abc"), false},
		{"session blank", ValidateSessionID("  "), true},
		{"url ok", ValidateURL("https://a.com/"), false},
		{"url empty", ValidateURL(""), true},
	}

	for _, tt := range tests {
		if (tt.err != nil) != tt.wantErr {
			t.Errorf("%s: error = %v, wantErr %v", tt.name, tt.err, tt.wantErr)
		}
	}
}

func nopLogger() *logger.Logger {
	return logger.NewNop()
}
