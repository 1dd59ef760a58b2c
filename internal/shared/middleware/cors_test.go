package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestIsOriginAllowed(t *testing.T) {
	tests := []struct {
		name         string
		origin       string
		allowedHosts []string
		want         bool
	}{
		{
			name:         "exact hostname match",
			origin:       "https://app.flint.dev",
			allowedHosts: []string{"app.flint.dev"},
			want:         true,
		},
		{
			name:         "hostname match ignores origin port",
			origin:       "https://app.flint.dev:8443",
			allowedHosts: []string{"app.flint.dev"},
			want:         true,
		},
		{
			name:         "allowed entry with port requires port match",
			origin:       "http://localhost:3000",
			allowedHosts: []string{"localhost:3000"},
			want:         true,
		},
		{
			name:         "allowed entry with port rejects other port",
			origin:       "http://localhost:4000",
			allowedHosts: []string{"localhost:3000"},
			want:         false,
		},
		{
			name:         "case insensitive",
			origin:       "https://App.Flint.Dev",
			allowedHosts: []string{"app.flint.dev"},
			want:         true,
		},
		{
			name:         "unlisted host rejected",
			origin:       "https://evil.example.com",
			allowedHosts: []string{"app.flint.dev"},
			want:         false,
		},
		{
			name:         "subdomain is not a match",
			origin:       "https://app.flint.dev.evil.com",
			allowedHosts: []string{"app.flint.dev"},
			want:         false,
		},
		{
			name:         "malformed origin rejected",
			origin:       "not a url",
			allowedHosts: []string{"app.flint.dev"},
			want:         false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := isOriginAllowed(tt.origin, tt.allowedHosts)
			if got != tt.want {
				t.Errorf("isOriginAllowed(%q, %v) = %v, want %v", tt.origin, tt.allowedHosts, got, tt.want)
			}
		})
	}
}

func TestCORS_AllowedOrigin(t *testing.T) {
	handler := CORS([]string{"app.flint.dev"})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/dashboard", nil)
	req.Header.Set("Origin", "https://app.flint.dev")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://app.flint.dev" {
		t.Errorf("expected origin echoed back, got %q", got)
	}
	if got := rec.Header().Get("Access-Control-Allow-Credentials"); got != "true" {
		t.Errorf("expected credentials allowed, got %q", got)
	}
}

func TestCORS_DisallowedOrigin(t *testing.T) {
	handler := CORS([]string{"app.flint.dev"})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/dashboard", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("expected no CORS headers for disallowed origin, got %q", got)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("request itself should still reach the handler, got status %d", rec.Code)
	}
}

func TestCORS_NoAllowedHosts(t *testing.T) {
	handler := CORS(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/dashboard", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("expected wildcard origin in dev mode, got %q", got)
	}
}

func TestCORS_Preflight(t *testing.T) {
	called := false
	handler := CORS([]string{"app.flint.dev"})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	req := httptest.NewRequest(http.MethodOptions, "/api/connections/register", nil)
	req.Header.Set("Origin", "https://app.flint.dev")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Errorf("expected preflight status %d, got %d", http.StatusNoContent, rec.Code)
	}
	if called {
		t.Error("preflight should not reach the handler")
	}
	if got := rec.Header().Get("Access-Control-Allow-Headers"); got == "" {
		t.Error("expected Access-Control-Allow-Headers on preflight response")
	}
}
