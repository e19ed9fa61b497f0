package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/benvon/flowstate/internal/tracker"
	"go.uber.org/zap"
)

func TestRespondJSON(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		status int
		data   any
		check  func(*testing.T, any)
	}{
		{
			name:   "object",
			status: http.StatusOK,
			data:   map[string]string{"main_tag": "coding"},
			check: func(t *testing.T, data any) {
				m, ok := data.(map[string]any)
				if !ok || m["main_tag"] != "coding" {
					t.Errorf("data = %v", data)
				}
			},
		},
		{
			name:   "nil data",
			status: http.StatusCreated,
			check: func(t *testing.T, data any) {
				if data != nil {
					t.Errorf("data = %v, want nil", data)
				}
			},
		},
		{
			name:   "array",
			status: http.StatusOK,
			data:   []string{"coding", "reading"},
			check: func(t *testing.T, data any) {
				if arr, ok := data.([]any); !ok || len(arr) != 2 {
					t.Errorf("data = %v", data)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			w := httptest.NewRecorder()
			respondJSON(w, tt.status, tt.data)

			if w.Code != tt.status {
				t.Errorf("status = %d, want %d", w.Code, tt.status)
			}
			if ct := w.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("Content-Type = %q", ct)
			}
			var body map[string]any
			if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body["success"] != true {
				t.Error("expected success=true")
			}
			ts, _ := body["timestamp"].(string)
			if _, err := time.Parse(time.RFC3339, ts); err != nil {
				t.Errorf("timestamp %q: %v", ts, err)
			}
			tt.check(t, body["data"])
		})
	}
}

func TestRespondJSONError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		message     string
		wantMessage string
	}{
		{"short message", "Invalid input", "Invalid input"},
		{"long message truncated", strings.Repeat("é", 250), strings.Repeat("é", 200) + "..."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			w := httptest.NewRecorder()
			respondJSONError(w, http.StatusBadRequest, "Bad Request", tt.message)

			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d", w.Code)
			}
			var body map[string]any
			if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body["success"] != false || body["error"] != "Bad Request" {
				t.Errorf("body = %v", body)
			}
			if body["message"] != tt.wantMessage {
				t.Errorf("message = %q, want %q", body["message"], tt.wantMessage)
			}
		})
	}
}

func TestRespondTrackerError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		err         error
		wantStatus  int
		wantMessage string
	}{
		{"validation", &tracker.ValidationError{Field: "energy_level", Message: "must be between 1 and 5, got 9"}, http.StatusBadRequest, "invalid energy_level: must be between 1 and 5, got 9"},
		{"time range", &tracker.InvalidTimeRangeError{Start: apiStart, End: apiStart.Add(-time.Hour)}, http.StatusBadRequest, ""},
		{"wrapped not found", fmt.Errorf("lookup: %w", tracker.ErrSessionNotFound), http.StatusNotFound, "Session not found"},
		{"unexpected", errors.New("snapshot corrupt"), http.StatusInternalServerError, "Failed to end session"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			w := httptest.NewRecorder()
			r := httptest.NewRequest(http.MethodPost, "/", nil)
			respondTrackerError(w, zap.NewNop(), r, tt.err, "end_session")

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			var body map[string]any
			if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if tt.wantMessage != "" && body["message"] != tt.wantMessage {
				t.Errorf("message = %q, want %q", body["message"], tt.wantMessage)
			}
		})
	}
}

func TestDecodeRequest(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		contentType string
		body        string
		allowEmpty  bool
		wantOK      bool
		wantStatus  int
		wantTag     string
	}{
		{"json", "application/json", `{"main_tag":"coding"}`, false, true, 0, "coding"},
		{"yaml", "application/yaml", "main_tag: reading\n", false, true, 0, "reading"},
		{"malformed json", "application/json", `{"main_tag":`, false, false, http.StatusBadRequest, ""},
		{"validation failure", "application/json", `{"main_tag":"a/b"}`, false, false, http.StatusBadRequest, ""},
		{"missing body", "", "", false, false, http.StatusBadRequest, ""},
		{"empty body allowed", "", "", true, false, http.StatusBadRequest, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			if tt.contentType != "" {
				r.Header.Set("Content-Type", tt.contentType)
			}
			w := httptest.NewRecorder()

			var req StartSessionRequest
			ok := decodeRequest(w, r, &req, tt.allowEmpty)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v (body %s)", ok, tt.wantOK, w.Body.String())
			}
			if !ok && w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if ok && req.MainTag != tt.wantTag {
				t.Errorf("main_tag = %q, want %q", req.MainTag, tt.wantTag)
			}
		})
	}
}

func TestDecodeRequestEmptyEndBody(t *testing.T) {
	t.Parallel()

	r := httptest.NewRequest(http.MethodPost, "/", nil)
	w := httptest.NewRecorder()
	var req EndSessionRequest
	if !decodeRequest(w, r, &req, true) {
		t.Fatalf("empty end body rejected: %s", w.Body.String())
	}
	if req.EnergyLevel != nil || req.UserNotes != "" {
		t.Errorf("req = %+v, want zero value", req)
	}
}
