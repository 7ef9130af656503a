package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestMiddleware_SecurityHeaders(t *testing.T) {
	nextHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	middleware := SecurityHeadersMiddleware(nextHandler)

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("X-Forwarded-Proto", "https")
	w := httptest.NewRecorder()

	middleware.ServeHTTP(w, req)

	resp := w.Result()
	defer resp.Body.Close()

	headers := []string{
		"Content-Security-Policy",
		"Strict-Transport-Security",
		"X-Frame-Options",
		"X-Content-Type-Options",
		"Referrer-Policy",
	}
	for _, header := range headers {
		if resp.Header.Get(header) == "" {
			t.Errorf("Expected %s header to be set", header)
		}
	}
}

func TestMiddleware_OperatorAuth(t *testing.T) {
	env := newTestEnv()
	valid := env.operatorToken(t, "member")

	tests := []struct {
		name   string
		method string
		path   string
		bearer string
		want   int
	}{
		{"no token on operator route", "GET", "/api/discovery/jobs", "", http.StatusUnauthorized},
		{"garbage token on operator route", "GET", "/api/discovery/jobs", "garbage", http.StatusUnauthorized},
		{"valid token on operator route", "GET", "/api/discovery/jobs", valid, http.StatusOK},
		{"operator jwt is not an agent api key", "POST", "/api/network/agent/heartbeat", valid, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, tt.method, tt.path, tt.bearer, nil)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestMiddleware_ExpiredOperatorToken(t *testing.T) {
	env := newTestEnv()

	expired, err := env.tokens.IssueOperatorToken("user-7", "tenant-1", "member", -time.Minute)
	if err != nil {
		t.Fatalf("IssueOperatorToken: %v", err)
	}

	rec := env.do(t, "GET", "/api/discovery/jobs", expired, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401 for an expired operator token", rec.Code)
	}
}
