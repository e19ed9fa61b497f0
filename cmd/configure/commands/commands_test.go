package commands

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
)

const importYAML = `user_id: someone-else
export_date: 2025-03-20T09:00:00Z
entries:
  - session_id: s1
    start_time: 2025-03-19T09:00:00Z
    end_time: 2025-03-19T10:00:00Z
    tag:
      main_tag: Work
      sub_tag: review
    task_description: code review
    status: completed
    confidence: high
    energy_level: 4
    focus_quality: 3
    interruptions: 1
    estimated_minutes: 45
  - session_id: s2
    start_time: 2025-03-20T08:30:00Z
    tag:
      main_tag: study
    status: active
    confidence: moderate
    energy_level: 3
    focus_quality: 3
active_sessions:
  - session_id: s2
    start_time: 2025-03-20T08:30:00Z
    tag:
      main_tag: study
    status: active
    confidence: moderate
user_tags: [work, study, reading]
estimation_history:
  - [45, 60]
`

// useSQLite points config.Load at a fresh sqlite file
func useSQLite(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("ENV_FILE", filepath.Join(dir, "missing.env"))
	t.Setenv("DATABASE_DRIVER", "sqlite")
	t.Setenv("DATABASE_URL", filepath.Join(dir, "flowstate.db"))
	t.Setenv("DEFAULT_RATE_LIMIT", "10-S")
}

func run(t *testing.T, cmd *cobra.Command, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestCorsCommands(t *testing.T) {
	useSQLite(t)

	out, err := run(t, NewCorsCmd(), "list")
	if err != nil || !strings.Contains(out, "No CORS configuration") {
		t.Fatalf("empty list = %q, %v", out, err)
	}

	if _, err := run(t, NewCorsCmd(), "set", "--origins", " "); err == nil {
		t.Fatal("expected error for blank origins")
	}
	if _, err := run(t, NewCorsCmd(), "set", "--origins", "https://a.example", "--max-age", "-1"); err == nil {
		t.Fatal("expected error for negative max-age")
	}

	if _, err := run(t, NewCorsCmd(), "set", "--origins", "https://a.example, https://b.example", "--max-age", "600"); err != nil {
		t.Fatalf("set: %v", err)
	}
	out, err = run(t, NewCorsCmd(), "list")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	for _, want := range []string{"https://a.example", "https://b.example", "Max-Age: 600"} {
		if !strings.Contains(out, want) {
			t.Errorf("list output missing %q:\n%s", want, out)
		}
	}

	if _, err := run(t, NewCorsCmd(), "reset"); err != nil {
		t.Fatalf("reset: %v", err)
	}
	out, err = run(t, NewCorsCmd(), "list")
	if err != nil || !strings.Contains(out, "No CORS configuration") {
		t.Fatalf("list after reset = %q, %v", out, err)
	}
}

func TestRatelimitCommands(t *testing.T) {
	useSQLite(t)

	out, err := run(t, NewRatelimitCmd(), "list")
	if err != nil || !strings.Contains(out, "10-S") {
		t.Fatalf("empty list = %q, %v", out, err)
	}

	tests := []struct {
		name    string
		rate    string
		wantErr bool
	}{
		{"missing", "", true},
		{"unparsable", "fast", true},
		{"bad period", "10-W", true},
		{"per minute", "100-M", false},
	}
	for _, tt := range tests {
		_, err := run(t, NewRatelimitCmd(), "set", "--rate", tt.rate)
		if (err != nil) != tt.wantErr {
			t.Errorf("%s: err = %v, wantErr %v", tt.name, err, tt.wantErr)
		}
	}

	out, err = run(t, NewRatelimitCmd(), "list")
	if err != nil || !strings.Contains(out, "Rate: 100-M") {
		t.Fatalf("list = %q, %v", out, err)
	}

	if _, err := run(t, NewRatelimitCmd(), "reset"); err != nil {
		t.Fatalf("reset: %v", err)
	}
	out, err = run(t, NewRatelimitCmd(), "list")
	if err != nil || !strings.Contains(out, "10-S") {
		t.Fatalf("list after reset = %q, %v", out, err)
	}
}

func TestSnapshotLifecycle(t *testing.T) {
	useSQLite(t)

	out, err := run(t, NewListCmd())
	if err != nil || !strings.Contains(out, "No tracked users") {
		t.Fatalf("empty list = %q, %v", out, err)
	}

	payloadFile := filepath.Join(t.TempDir(), "alice.yaml")
	if err := os.WriteFile(payloadFile, []byte(importYAML), 0o600); err != nil {
		t.Fatal(err)
	}

	out, err = run(t, NewSnapshotCmd(), "import", "alice", "-f", payloadFile)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if !strings.Contains(out, "Imported 2 entries (1 active) for alice") {
		t.Errorf("import output = %q", out)
	}

	out, err = run(t, NewListCmd())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if !strings.Contains(out, "alice") || !strings.Contains(out, "stale") {
		t.Errorf("list output = %q", out)
	}

	out, err = run(t, NewSnapshotCmd(), "export", "alice")
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	var exported struct {
		UserID            string   `json:"user_id"`
		UserTags          []string `json:"user_tags"`
		EstimationHistory [][2]int `json:"estimation_history"`
		Entries           []struct {
			SessionID string `json:"session_id"`
			Tag       struct {
				MainTag string `json:"main_tag"`
			} `json:"tag"`
		} `json:"entries"`
	}
	if err := json.Unmarshal([]byte(out), &exported); err != nil {
		t.Fatalf("export is not JSON: %v\n%s", err, out)
	}
	// The import target wins over the payload's user_id
	if exported.UserID != "alice" {
		t.Errorf("user_id = %q", exported.UserID)
	}
	if len(exported.Entries) != 2 || exported.Entries[0].Tag.MainTag != "work" {
		t.Errorf("entries = %+v", exported.Entries)
	}
	if strings.Join(exported.UserTags, ",") != "reading,study,work" {
		t.Errorf("user_tags = %v", exported.UserTags)
	}
	if len(exported.EstimationHistory) != 1 || exported.EstimationHistory[0] != [2]int{45, 60} {
		t.Errorf("estimation_history = %v", exported.EstimationHistory)
	}

	yamlFile := filepath.Join(t.TempDir(), "alice-out.yaml")
	if _, err := run(t, NewSnapshotCmd(), "export", "alice", "--format", "yaml", "-o", yamlFile); err != nil {
		t.Fatalf("yaml export: %v", err)
	}
	written, err := os.ReadFile(yamlFile)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(written), "main_tag: work") {
		t.Errorf("yaml export:\n%s", written)
	}

	if _, err := run(t, NewSnapshotCmd(), "export", "alice", "--format", "xml"); err == nil {
		t.Error("expected error for unsupported format")
	}

	if _, err := run(t, NewSnapshotCmd(), "delete", "alice"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	out, err = run(t, NewListCmd())
	if err != nil || !strings.Contains(out, "No tracked users") {
		t.Fatalf("list after delete = %q, %v", out, err)
	}
	if _, err := run(t, NewSnapshotCmd(), "export", "alice"); err == nil {
		t.Error("expected error exporting a deleted user")
	}
}

func TestSnapshotImportRejectsInvalidPayload(t *testing.T) {
	useSQLite(t)

	tests := []struct {
		name    string
		payload string
	}{
		{"malformed", "entries: [\n"},
		{"open session with end time", `{"entries":[{"session_id":"s1","start_time":"2025-03-20T09:00:00Z","end_time":"2025-03-20T10:00:00Z","tag":{"main_tag":"work"},"status":"active","confidence":"high","energy_level":3,"focus_quality":3}]}`},
		{"unknown active session", `{"entries":[],"active_sessions":[{"session_id":"ghost"}]}`},
	}

	for _, tt := range tests {
		file := filepath.Join(t.TempDir(), "payload")
		if err := os.WriteFile(file, []byte(tt.payload), 0o600); err != nil {
			t.Fatal(err)
		}
		if _, err := run(t, NewSnapshotCmd(), "import", "bob", "-f", file); err == nil {
			t.Errorf("%s: expected error", tt.name)
		}
	}

	if _, err := run(t, NewSnapshotCmd(), "import", "bob"); err == nil {
		t.Error("expected error without --file")
	}
	if _, err := run(t, NewSnapshotCmd(), "import", "bad user!", "-f", "x"); err == nil {
		t.Error("expected error for invalid user id")
	}
}

func TestDecodePayload(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		data    string
		format  string
		wantID  string
		wantErr bool
	}{
		{"auto json", `  {"user_id":"alice","entries":[]}`, formatAuto, "alice", false},
		{"auto yaml", "user_id: bob\nentries: []\n", formatAuto, "bob", false},
		{"explicit json", `{"user_id":"carol"}`, formatJSON, "carol", false},
		{"json as yaml", `{"user_id": "dave"}`, formatYAML, "dave", false},
		{"yaml as json", "user_id: erin\n", formatJSON, "", true},
		{"unknown format", `{}`, "toml", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			payload, err := decodePayload([]byte(tt.data), tt.format)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && payload.UserID != tt.wantID {
				t.Errorf("user_id = %q, want %q", payload.UserID, tt.wantID)
			}
		})
	}
}
