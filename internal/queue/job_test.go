package queue

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestNewJob(t *testing.T) {
	t.Parallel()

	job := NewJob(JobTypeTagAnalysis, "alice")

	if job.ID == uuid.Nil {
		t.Error("Expected job ID to be set")
	}
	if job.Type != JobTypeTagAnalysis {
		t.Errorf("Expected job type to be %s, got %s", JobTypeTagAnalysis, job.Type)
	}
	if job.UserID != "alice" {
		t.Errorf("Expected user ID to be alice, got %s", job.UserID)
	}
	if job.Metadata == nil {
		t.Error("Expected metadata to be initialized")
	}
	if job.NotBefore != nil {
		t.Error("Expected immediate job")
	}
	if job.RetryCount != 0 {
		t.Errorf("Expected retry count to be 0, got %d", job.RetryCount)
	}
	if job.MaxRetries != 3 {
		t.Errorf("Expected max retries to be 3, got %d", job.MaxRetries)
	}
}

func TestNewDelayedJob(t *testing.T) {
	t.Parallel()

	job := NewDelayedJob(JobTypeTagAnalysis, "alice", 30*time.Second)
	if job.NotBefore == nil {
		t.Fatal("Expected NotBefore to be set")
	}
	if got := job.NotBefore.Sub(job.CreatedAt); got != 30*time.Second {
		t.Errorf("Expected 30s delay, got %v", got)
	}
	if job.ShouldProcess() {
		t.Error("Delayed job should not be processable yet")
	}

	immediate := NewDelayedJob(JobTypeTagAnalysis, "alice", 0)
	if immediate.NotBefore != nil {
		t.Error("Zero delay should produce an immediate job")
	}
}

func TestJob_JSON(t *testing.T) {
	t.Parallel()

	job := NewDelayedJob(JobTypeTagAnalysis, "alice", time.Minute)
	data, err := json.Marshal(job)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var decoded Job
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if decoded.ID != job.ID || decoded.UserID != "alice" || decoded.Type != JobTypeTagAnalysis {
		t.Errorf("Unexpected decoded job: %+v", decoded)
	}
	if decoded.NotBefore == nil || !decoded.NotBefore.Equal(*job.NotBefore) {
		t.Errorf("NotBefore lost in round trip: %v", decoded.NotBefore)
	}
}

func TestJob_ShouldProcess(t *testing.T) {
	t.Parallel()

	now := time.Now()

	tests := []struct {
		name      string
		notBefore *time.Time
		notAfter  *time.Time
		want      bool
	}{
		{name: "no time constraints", want: true},
		{name: "not before in past", notBefore: timePtr(now.Add(-time.Hour)), want: true},
		{name: "not before in future", notBefore: timePtr(now.Add(time.Hour)), want: false},
		{name: "not after in past", notAfter: timePtr(now.Add(-time.Hour)), want: false},
		{name: "not after in future", notAfter: timePtr(now.Add(time.Hour)), want: true},
		{
			name:      "within time window",
			notBefore: timePtr(now.Add(-time.Hour)),
			notAfter:  timePtr(now.Add(time.Hour)),
			want:      true,
		},
		{
			name:      "outside time window - before",
			notBefore: timePtr(now.Add(time.Hour)),
			notAfter:  timePtr(now.Add(2 * time.Hour)),
			want:      false,
		},
		{
			name:      "outside time window - after",
			notBefore: timePtr(now.Add(-2 * time.Hour)),
			notAfter:  timePtr(now.Add(-time.Hour)),
			want:      false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			job := &Job{
				ID:        uuid.New(),
				Type:      JobTypeTagAnalysis,
				UserID:    "alice",
				NotBefore: tt.notBefore,
				NotAfter:  tt.notAfter,
			}
			if got := job.ShouldProcess(); got != tt.want {
				t.Errorf("ShouldProcess() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestJob_IsExpired(t *testing.T) {
	t.Parallel()

	now := time.Now()

	tests := []struct {
		name     string
		notAfter *time.Time
		want     bool
	}{
		{name: "no expiration", want: false},
		{name: "expired", notAfter: timePtr(now.Add(-time.Hour)), want: true},
		{name: "not expired", notAfter: timePtr(now.Add(time.Hour)), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			job := &Job{ID: uuid.New(), Type: JobTypeTagAnalysis, NotAfter: tt.notAfter}
			if got := job.IsExpired(); got != tt.want {
				t.Errorf("IsExpired() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestJob_Retry(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		retryCount int
		maxRetries int
		want       bool
	}{
		{name: "can retry - no retries yet", retryCount: 0, maxRetries: 3, want: true},
		{name: "can retry - max retries minus one", retryCount: 2, maxRetries: 3, want: true},
		{name: "cannot retry - at max retries", retryCount: 3, maxRetries: 3, want: false},
		{name: "cannot retry - exceeded max retries", retryCount: 4, maxRetries: 3, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			job := &Job{RetryCount: tt.retryCount, MaxRetries: tt.maxRetries}
			if got := job.CanRetry(); got != tt.want {
				t.Errorf("CanRetry() = %v, want %v", got, tt.want)
			}
		})
	}

	job := NewJob(JobTypeTagAnalysis, "alice")
	for i := 1; i <= 3; i++ {
		job.IncrementRetry()
		if job.RetryCount != i {
			t.Errorf("Expected retry count %d, got %d", i, job.RetryCount)
		}
	}
	if job.CanRetry() {
		t.Error("Expected no retries left")
	}
}

func timePtr(t time.Time) *time.Time {
	return &t
}
