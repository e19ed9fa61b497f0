package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/benvon/flowstate/internal/models"
)

func testPayload(userID string) *models.ExportPayload {
	start := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	end := start.Add(45 * time.Minute)
	sub := "api"
	est := 40
	entry := &models.TimeEntry{
		SessionID:        "entry-1",
		Tag:              models.SessionTag{MainTag: "coding", SubTag: &sub},
		StartTime:        start,
		EndTime:          &end,
		EstimatedMinutes: &est,
		FocusQuality:     4,
		EnergyLevel:      3,
		Confidence:       models.ConfidenceHigh,
		Status:           models.SessionStatusCompleted,
	}
	return &models.ExportPayload{
		UserID:            userID,
		ExportDate:        start.Add(time.Hour),
		Entries:           []*models.TimeEntry{entry},
		UserTags:          []string{"coding"},
		EstimationHistory: []models.EstimationPair{{Estimated: 40, Actual: 45}},
	}
}

func TestSnapshotRepository_SaveAndGet(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo := NewSnapshotRepository(newTestDB(t))

	if err := repo.Save(ctx, testPayload("alice")); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	snapshot, err := repo.GetByUserID(ctx, "alice")
	if err != nil {
		t.Fatalf("GetByUserID failed: %v", err)
	}
	if snapshot.UserID != "alice" {
		t.Errorf("UserID = %s, want alice", snapshot.UserID)
	}
	if len(snapshot.Payload.Entries) != 1 {
		t.Fatalf("Expected 1 entry, got %d", len(snapshot.Payload.Entries))
	}
	entry := snapshot.Payload.Entries[0]
	if entry.Tag.String() != "#coding/api" || entry.Status != models.SessionStatusCompleted {
		t.Errorf("Unexpected entry after round trip: %+v", entry)
	}
	if got := snapshot.Payload.EstimationHistory; len(got) != 1 || got[0].Actual != 45 {
		t.Errorf("Unexpected estimation history: %v", got)
	}
	if snapshot.CreatedAt.IsZero() || snapshot.UpdatedAt.IsZero() {
		t.Error("Expected timestamps to be populated")
	}
}

func TestSnapshotRepository_PreservesFreeText(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo := NewSnapshotRepository(newTestDB(t))

	payload := testPayload("alice")
	payload.Entries[0].TaskDescription = "  fix\x07 bug  "
	payload.Entries[0].UserNotes = "\tfelt\x00 scattered \n"
	if err := repo.Save(ctx, payload); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := repo.LoadSnapshot(ctx, "alice")
	if err != nil {
		t.Fatalf("LoadSnapshot failed: %v", err)
	}
	entry := loaded.Entries[0]
	if entry.TaskDescription != "  fix\x07 bug  " || entry.UserNotes != "\tfelt\x00 scattered \n" {
		t.Errorf("free text changed: %q / %q", entry.TaskDescription, entry.UserNotes)
	}
}

func TestSnapshotRepository_SaveOverwrites(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo := NewSnapshotRepository(newTestDB(t))

	if err := repo.Save(ctx, testPayload("alice")); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	empty := &models.ExportPayload{UserID: "alice"}
	if err := repo.Save(ctx, empty); err != nil {
		t.Fatalf("Second save failed: %v", err)
	}

	payload, err := repo.LoadSnapshot(ctx, "alice")
	if err != nil {
		t.Fatalf("LoadSnapshot failed: %v", err)
	}
	if payload == nil || len(payload.Entries) != 0 {
		t.Errorf("Expected overwritten empty payload, got %+v", payload)
	}
}

func TestSnapshotRepository_Missing(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo := NewSnapshotRepository(newTestDB(t))

	if _, err := repo.GetByUserID(ctx, "nobody"); !errors.Is(err, ErrSnapshotNotFound) {
		t.Errorf("Expected ErrSnapshotNotFound, got %v", err)
	}

	payload, err := repo.LoadSnapshot(ctx, "nobody")
	if err != nil || payload != nil {
		t.Errorf("LoadSnapshot for missing user = %v, %v; want nil, nil", payload, err)
	}
}

func TestSnapshotRepository_SaveRequiresUser(t *testing.T) {
	t.Parallel()
	repo := NewSnapshotRepository(newTestDB(t))
	if err := repo.Save(context.Background(), &models.ExportPayload{}); err == nil {
		t.Error("Expected error for empty user id")
	}
}

func TestSnapshotRepository_ListAndDelete(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo := NewSnapshotRepository(newTestDB(t))

	for _, id := range []string{"carol", "alice", "bob"} {
		if err := repo.Save(ctx, testPayload(id)); err != nil {
			t.Fatalf("Save(%s) failed: %v", id, err)
		}
	}

	ids, err := repo.ListUserIDs(ctx)
	if err != nil {
		t.Fatalf("ListUserIDs failed: %v", err)
	}
	want := []string{"alice", "bob", "carol"}
	if len(ids) != len(want) {
		t.Fatalf("ListUserIDs = %v, want %v", ids, want)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Errorf("ListUserIDs[%d] = %s, want %s", i, ids[i], want[i])
		}
	}

	if err := repo.Delete(ctx, "bob"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if err := repo.Delete(ctx, "bob"); err != nil {
		t.Errorf("Deleting a missing snapshot should succeed, got %v", err)
	}
	ids, _ = repo.ListUserIDs(ctx)
	if len(ids) != 2 {
		t.Errorf("Expected 2 users after delete, got %v", ids)
	}
}
