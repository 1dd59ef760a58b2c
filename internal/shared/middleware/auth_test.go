package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"flint/internal/shared/auth"
)

func TestAuth(t *testing.T) {
	jwt := auth.NewJWT("test-secret-for-middleware")

	token, err := jwt.Generate(42, "user@example.com")
	if err != nil {
		t.Fatalf("failed to generate token: %v", err)
	}

	tests := []struct {
		name       string
		setRequest func(r *http.Request)
		wantStatus int
		wantUserID int64
	}{
		{
			name: "valid cookie",
			setRequest: func(r *http.Request) {
				r.AddCookie(&http.Cookie{Name: "access_token", Value: token})
			},
			wantStatus: http.StatusOK,
			wantUserID: 42,
		},
		{
			name: "valid bearer header",
			setRequest: func(r *http.Request) {
				r.Header.Set("Authorization", "Bearer "+token)
			},
			wantStatus: http.StatusOK,
			wantUserID: 42,
		},
		{
			name:       "missing credentials",
			setRequest: func(r *http.Request) {},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name: "malformed authorization header",
			setRequest: func(r *http.Request) {
				r.Header.Set("Authorization", token)
			},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name: "tampered token",
			setRequest: func(r *http.Request) {
				r.Header.Set("Authorization", "Bearer "+token+"x")
			},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name: "cookie takes precedence over bad header",
			setRequest: func(r *http.Request) {
				r.AddCookie(&http.Cookie{Name: "access_token", Value: token})
				r.Header.Set("Authorization", "Bearer garbage")
			},
			wantStatus: http.StatusOK,
			wantUserID: 42,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotUserID int64
			var gotEmail string

			handler := Auth(jwt)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotUserID, _ = r.Context().Value(UserIDKey).(int64)
				gotEmail, _ = r.Context().Value(EmailKey).(string)
				w.WriteHeader(http.StatusOK)
			}))

			req := httptest.NewRequest(http.MethodGet, "/api/dashboard", nil)
			tt.setRequest(req)
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("expected status %d, got %d", tt.wantStatus, rec.Code)
			}
			if tt.wantStatus == http.StatusOK {
				if gotUserID != tt.wantUserID {
					t.Errorf("expected user ID %d on context, got %d", tt.wantUserID, gotUserID)
				}
				if gotEmail != "user@example.com" {
					t.Errorf("expected email on context, got %q", gotEmail)
				}
			}
		})
	}
}
