package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCSRF(t *testing.T) {
	tests := []struct {
		name       string
		method     string
		cookie     string
		header     string
		wantStatus int
	}{
		{
			name:       "GET passes without token",
			method:     http.MethodGet,
			wantStatus: http.StatusOK,
		},
		{
			name:       "POST with matching tokens",
			method:     http.MethodPost,
			cookie:     "token123",
			header:     "token123",
			wantStatus: http.StatusOK,
		},
		{
			name:       "POST without cookie",
			method:     http.MethodPost,
			header:     "token123",
			wantStatus: http.StatusForbidden,
		},
		{
			name:       "POST without header",
			method:     http.MethodPost,
			cookie:     "token123",
			wantStatus: http.StatusForbidden,
		},
		{
			name:       "POST with mismatched tokens",
			method:     http.MethodPost,
			cookie:     "token123",
			header:     "token456",
			wantStatus: http.StatusForbidden,
		},
		{
			name:       "DELETE with matching tokens",
			method:     http.MethodDelete,
			cookie:     "token123",
			header:     "token123",
			wantStatus: http.StatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := CSRF(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			}))

			req := httptest.NewRequest(tt.method, "/api/connections/register", nil)
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: csrfCookieName, Value: tt.cookie})
			}
			if tt.header != "" {
				req.Header.Set(csrfHeaderName, tt.header)
			}
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("expected status %d, got %d", tt.wantStatus, rec.Code)
			}
		})
	}
}
