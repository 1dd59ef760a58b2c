package aggregator

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestClient(srv *httptest.Server) *Client {
	return NewClient(srv.URL, "client-id", "consumer-secret", 5*time.Second)
}

func TestRegisterIdentity(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if r.URL.Query().Get("clientId") != "client-id" {
			t.Error("expected clientId query param")
		}
		if r.Header.Get("Signature") == "" {
			t.Error("expected request signature header")
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"userId": "prov-u1", "userSecret": "secret-1"}`))
	}))
	defer srv.Close()

	identity, err := newTestClient(srv).RegisterIdentity(context.Background(), "42")
	if err != nil {
		t.Fatalf("RegisterIdentity() failed: %v", err)
	}
	if identity.ProviderUserID != "prov-u1" || identity.ProviderSecret != "secret-1" {
		t.Errorf("unexpected identity: %+v", identity)
	}
}

func TestRegisterIdentity_IncompleteResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"userId": "prov-u1"}`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv).RegisterIdentity(context.Background(), "42")
	if err == nil {
		t.Fatal("expected error for response without userSecret")
	}
}

func TestRegisterIdentity_AlreadyExistsCode(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"numeric code", `{"detail": "user already exists", "code": 1010}`},
		{"string code", `{"detail": "user already exists", "code": "1010"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadRequest)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := newTestClient(srv).RegisterIdentity(context.Background(), "42")

			var apiErr *APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("expected APIError, got %v", err)
			}
			if apiErr.Code != CodeIdentityExists {
				t.Errorf("expected code %d, got %d", CodeIdentityExists, apiErr.Code)
			}
		})
	}
}

func TestRateLimitRetryAfter(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "30")
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"detail": "rate limit exceeded"}`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv).ListAccounts(context.Background(), "prov-u1", "secret-1")

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusTooManyRequests {
		t.Errorf("expected status 429, got %d", apiErr.StatusCode)
	}
	if apiErr.RetryAfter != 30*time.Second {
		t.Errorf("expected RetryAfter 30s, got %v", apiErr.RetryAfter)
	}
}

func TestListAuthorizations(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("userId"); got != "prov-u1" {
			t.Errorf("expected userId prov-u1, got %q", got)
		}
		if got := r.URL.Query().Get("userSecret"); got != "secret-1" {
			t.Errorf("expected userSecret, got %q", got)
		}
		w.Write([]byte(`[
			{"id": "auth-1", "disabled": false, "brokerage": {"name": "Questrade"}},
			{"id": "auth-2", "disabled": true, "institution_name": "Robinhood"}
		]`))
	}))
	defer srv.Close()

	auths, err := newTestClient(srv).ListAuthorizations(context.Background(), "prov-u1", "secret-1")
	if err != nil {
		t.Fatalf("ListAuthorizations() failed: %v", err)
	}
	if len(auths) != 2 {
		t.Fatalf("expected 2 authorizations, got %d", len(auths))
	}
	if !auths[1].Disabled {
		t.Error("expected second authorization disabled")
	}
}
