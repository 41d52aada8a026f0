package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/teamkard/teamkard/pkg/domain"
	"github.com/teamkard/teamkard/pkg/identity"
)

type staticResolver struct {
	token string
	user  domain.User
}

func (s *staticResolver) Resolve(token string) (domain.User, error) {
	if token != s.token {
		return domain.User{}, identity.ErrInvalidToken
	}
	return s.user, nil
}

func guarded(t *testing.T) http.Handler {
	t.Helper()
	resolver := &staticResolver{token: "good-token", user: domain.User{ID: "alice"}}
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	return authMiddleware(resolver, next)
}

func TestAuthMiddleware(t *testing.T) {
	tests := []struct {
		name       string
		method     string
		path       string
		authHeader string
		wantStatus int
	}{
		{"valid bearer", "GET", "/api/github/repos", "Bearer good-token", http.StatusNoContent},
		{"missing header", "GET", "/api/github/repos", "", http.StatusUnauthorized},
		{"wrong token", "GET", "/api/github/repos", "Bearer nope", http.StatusUnauthorized},
		{"not bearer scheme", "GET", "/api/github/repos", "Basic abc", http.StatusUnauthorized},
		{"health is public", "GET", "/api/health", "", http.StatusNoContent},
		{"ws is public", "GET", "/api/ws", "", http.StatusNoContent},
		{"oauth is public", "POST", "/api/github/oauth", "", http.StatusNoContent},
		{"preflight passes", "OPTIONS", "/api/github/repos", "", http.StatusNoContent},
	}

	h := guarded(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			if tt.authHeader != "" {
				req.Header.Set("Authorization", tt.authHeader)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tt.wantStatus {
				t.Errorf("%s %s: status = %d, want %d", tt.method, tt.path, rec.Code, tt.wantStatus)
			}
		})
	}
}

func TestCORSPreflight(t *testing.T) {
	h := corsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("preflight must not reach the handler")
	}))

	req := httptest.NewRequest(http.MethodOptions, "/api/github/repos", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("preflight status = %d", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:5173" {
		t.Errorf("allow-origin = %q", got)
	}
}
