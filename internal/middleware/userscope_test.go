package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/benvon/flowstate/internal/request"
	"github.com/gorilla/mux"
)

func TestUserScope(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		path       string
		wantStatus int
		wantUserID string
	}{
		{"valid", "/api/v1/users/alice/tags", http.StatusOK, "alice"},
		{"email style", "/api/v1/users/a.b@example.com/tags", http.StatusOK, "a.b@example.com"},
		{"invalid characters", "/api/v1/users/al%20ice/tags", http.StatusBadRequest, ""},
		{"too long", "/api/v1/users/" + strings.Repeat("a", 300) + "/tags", http.StatusBadRequest, ""},
		{"unscoped route", "/healthz", http.StatusOK, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var gotUserID string
			capture := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotUserID = request.UserIDFromContext(r.Context())
				w.WriteHeader(http.StatusOK)
			})

			router := mux.NewRouter()
			router.Use(UserScope(nil))
			router.Handle("/api/v1/users/{user_id}/tags", capture)
			router.Handle("/healthz", capture)

			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, tt.path, nil))

			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (body %s)", w.Code, tt.wantStatus, w.Body.String())
			}
			if gotUserID != tt.wantUserID {
				t.Errorf("user id = %q, want %q", gotUserID, tt.wantUserID)
			}
		})
	}
}
