package workers

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/benvon/flowstate/internal/database"
	"github.com/benvon/flowstate/internal/models"
	"github.com/benvon/flowstate/internal/queue"
	"github.com/benvon/flowstate/internal/tracker"
	"go.uber.org/zap"
)

var analyzerNow = time.Date(2025, 3, 20, 12, 0, 0, 0, time.UTC)

// mockTagStatisticsRepoForWorker is a mock for testing tag analyzer worker
type mockTagStatisticsRepoForWorker struct {
	t                       *testing.T
	getByUserIDOrCreateFunc func(ctx context.Context, userID string) (*models.TagStatistics, error)
	updateStatisticsFunc    func(ctx context.Context, stats *models.TagStatistics) (bool, error)

	mu                    sync.Mutex
	updateStatisticsCalls []*models.TagStatistics
}

func (m *mockTagStatisticsRepoForWorker) GetByUserID(ctx context.Context, userID string) (*models.TagStatistics, error) {
	m.t.Fatal("GetByUserID called but not configured in test - mock requires explicit setup")
	return nil, nil
}

func (m *mockTagStatisticsRepoForWorker) GetByUserIDOrCreate(ctx context.Context, userID string) (*models.TagStatistics, error) {
	if m.getByUserIDOrCreateFunc == nil {
		return &models.TagStatistics{UserID: userID, Tainted: true}, nil
	}
	return m.getByUserIDOrCreateFunc(ctx, userID)
}

func (m *mockTagStatisticsRepoForWorker) UpdateStatistics(ctx context.Context, stats *models.TagStatistics) (bool, error) {
	m.mu.Lock()
	m.updateStatisticsCalls = append(m.updateStatisticsCalls, stats)
	m.mu.Unlock()
	if m.updateStatisticsFunc == nil {
		return true, nil
	}
	return m.updateStatisticsFunc(ctx, stats)
}

func (m *mockTagStatisticsRepoForWorker) MarkTainted(ctx context.Context, userID string) (bool, error) {
	m.t.Fatal("MarkTainted called but not configured in test - mock requires explicit setup")
	return false, nil
}

func (m *mockTagStatisticsRepoForWorker) Delete(ctx context.Context, userID string) error {
	m.t.Fatal("Delete called but not configured in test - mock requires explicit setup")
	return nil
}

var _ database.TagStatisticsRepositoryInterface = (*mockTagStatisticsRepoForWorker)(nil)

type mockSnapshotLoader struct {
	payloads map[string]*models.ExportPayload
	err      error
}

func (m *mockSnapshotLoader) LoadSnapshot(ctx context.Context, userID string) (*models.ExportPayload, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.payloads[userID], nil
}

type mockEnqueuer struct {
	mu   sync.Mutex
	jobs []*queue.Job
	err  error
}

func (m *mockEnqueuer) Enqueue(ctx context.Context, job *queue.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.jobs = append(m.jobs, job)
	return nil
}

type mockMessage struct {
	job         *queue.Job
	acked       bool
	nacked      bool
	nackRequeue bool
}

func (m *mockMessage) Ack() error {
	m.acked = true
	return nil
}

func (m *mockMessage) Nack(requeue bool) error {
	m.nacked = true
	m.nackRequeue = requeue
	return nil
}

func (m *mockMessage) GetJob() *queue.Job {
	return m.job
}

func completedEntry(id, mainTag, subTag string, start time.Time, minutes, focus int) *models.TimeEntry {
	end := start.Add(time.Duration(minutes) * time.Minute)
	entry := &models.TimeEntry{
		SessionID:    id,
		Tag:          models.SessionTag{MainTag: mainTag},
		StartTime:    start,
		EndTime:      &end,
		Status:       models.SessionStatusCompleted,
		Confidence:   models.ConfidenceHigh,
		EnergyLevel:  3,
		FocusQuality: focus,
	}
	if subTag != "" {
		entry.Tag.SubTag = &subTag
	}
	return entry
}

func newTestAnalyzer(t *testing.T, loader tracker.SnapshotLoader, repo *mockTagStatisticsRepoForWorker, enqueuer queue.Enqueuer) *TagAnalyzer {
	t.Helper()
	return NewTagAnalyzer(loader, repo, enqueuer, 30, zap.NewNop(),
		WithAnalyzerClock(tracker.NewManualClock(analyzerNow)),
		WithConflictDebounce(10*time.Second),
	)
}

func TestTagAnalyzer_ProcessTagAnalysisJob_Success(t *testing.T) {
	t.Parallel()

	payload := &models.ExportPayload{
		UserID: "alice",
		Entries: []*models.TimeEntry{
			completedEntry("s1", "coding", "api", analyzerNow.Add(-48*time.Hour), 60, 5),
			completedEntry("s2", "coding", "", analyzerNow.Add(-24*time.Hour), 30, 3),
			completedEntry("s3", "meetings", "", analyzerNow.Add(-2*time.Hour), 45, 2),
			// Outside the 30 day window
			completedEntry("s4", "reading", "", analyzerNow.Add(-40*24*time.Hour), 20, 4),
		},
	}
	loader := &mockSnapshotLoader{payloads: map[string]*models.ExportPayload{"alice": payload}}
	repo := &mockTagStatisticsRepoForWorker{
		t: t,
		getByUserIDOrCreateFunc: func(ctx context.Context, userID string) (*models.TagStatistics, error) {
			return &models.TagStatistics{UserID: userID, Tainted: true, AnalysisVersion: 4}, nil
		},
	}
	analyzer := newTestAnalyzer(t, loader, repo, nil)

	if err := analyzer.ProcessTagAnalysisJob(context.Background(), queue.NewJob(queue.JobTypeTagAnalysis, "alice")); err != nil {
		t.Fatalf("ProcessTagAnalysisJob failed: %v", err)
	}

	if len(repo.updateStatisticsCalls) != 1 {
		t.Fatalf("Expected 1 UpdateStatistics call, got %d", len(repo.updateStatisticsCalls))
	}
	stats := repo.updateStatisticsCalls[0]
	if stats.AnalysisVersion != 4 {
		t.Errorf("Expected version read before analysis (4), got %d", stats.AnalysisVersion)
	}
	if stats.LastAnalyzedAt == nil || !stats.LastAnalyzedAt.Equal(analyzerNow) {
		t.Errorf("LastAnalyzedAt = %v, want %v", stats.LastAnalyzedAt, analyzerNow)
	}

	analytics := stats.Analytics
	if analytics.TotalEntries != 3 || analytics.TotalTimeMinutes != 135 {
		t.Errorf("Totals = %d entries / %d minutes, want 3 / 135", analytics.TotalEntries, analytics.TotalTimeMinutes)
	}
	coding, ok := analytics.MainTag("coding")
	if !ok {
		t.Fatal("Expected coding in analytics")
	}
	if coding.SessionCount != 2 || coding.TotalMinutes != 90 {
		t.Errorf("coding metrics = %+v", coding.TagMetrics)
	}
	if _, ok := analytics.MainTag("reading"); ok {
		t.Error("Entry outside timeframe should be excluded")
	}
}

func TestTagAnalyzer_ProcessTagAnalysisJob_NoSnapshot(t *testing.T) {
	t.Parallel()

	repo := &mockTagStatisticsRepoForWorker{t: t}
	analyzer := newTestAnalyzer(t, &mockSnapshotLoader{}, repo, nil)

	if err := analyzer.ProcessTagAnalysisJob(context.Background(), queue.NewJob(queue.JobTypeTagAnalysis, "bob")); err != nil {
		t.Fatalf("ProcessTagAnalysisJob failed: %v", err)
	}
	if len(repo.updateStatisticsCalls) != 1 {
		t.Fatalf("Expected 1 UpdateStatistics call, got %d", len(repo.updateStatisticsCalls))
	}
	analytics := repo.updateStatisticsCalls[0].Analytics
	if analytics.TotalEntries != 0 || analytics.Message == "" {
		t.Errorf("Expected empty analytics with message, got %+v", analytics)
	}
}

func TestTagAnalyzer_ProcessTagAnalysisJob_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		userID  string
		loader  *mockSnapshotLoader
		repo    func(t *testing.T) *mockTagStatisticsRepoForWorker
		wantErr string
	}{
		{
			name:    "missing user id",
			userID:  "",
			loader:  &mockSnapshotLoader{},
			repo:    func(t *testing.T) *mockTagStatisticsRepoForWorker { return &mockTagStatisticsRepoForWorker{t: t} },
			wantErr: "user_id is required",
		},
		{
			name:    "snapshot load fails",
			userID:  "alice",
			loader:  &mockSnapshotLoader{err: errors.New("db down")},
			repo:    func(t *testing.T) *mockTagStatisticsRepoForWorker { return &mockTagStatisticsRepoForWorker{t: t} },
			wantErr: "failed to load snapshot",
		},
		{
			name:   "corrupt snapshot",
			userID: "alice",
			loader: &mockSnapshotLoader{payloads: map[string]*models.ExportPayload{
				"alice": {Entries: []*models.TimeEntry{{SessionID: ""}}},
			}},
			repo:    func(t *testing.T) *mockTagStatisticsRepoForWorker { return &mockTagStatisticsRepoForWorker{t: t} },
			wantErr: "failed to import snapshot",
		},
		{
			name:   "statistics lookup fails",
			userID: "alice",
			loader: &mockSnapshotLoader{},
			repo: func(t *testing.T) *mockTagStatisticsRepoForWorker {
				return &mockTagStatisticsRepoForWorker{
					t: t,
					getByUserIDOrCreateFunc: func(context.Context, string) (*models.TagStatistics, error) {
						return nil, errors.New("db down")
					},
				}
			},
			wantErr: "failed to get or create tag statistics",
		},
		{
			name:   "update fails",
			userID: "alice",
			loader: &mockSnapshotLoader{},
			repo: func(t *testing.T) *mockTagStatisticsRepoForWorker {
				return &mockTagStatisticsRepoForWorker{
					t: t,
					updateStatisticsFunc: func(context.Context, *models.TagStatistics) (bool, error) {
						return false, errors.New("db down")
					},
				}
			},
			wantErr: "failed to update tag statistics",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			analyzer := newTestAnalyzer(t, tt.loader, tt.repo(t), nil)
			err := analyzer.ProcessTagAnalysisJob(context.Background(), queue.NewJob(queue.JobTypeTagAnalysis, tt.userID))
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestTagAnalyzer_ProcessTagAnalysisJob_VersionConflictEnqueuesFollowUp(t *testing.T) {
	t.Parallel()

	repo := &mockTagStatisticsRepoForWorker{
		t: t,
		updateStatisticsFunc: func(context.Context, *models.TagStatistics) (bool, error) {
			return false, nil
		},
	}
	enqueuer := &mockEnqueuer{}
	analyzer := newTestAnalyzer(t, &mockSnapshotLoader{}, repo, enqueuer)

	if err := analyzer.ProcessTagAnalysisJob(context.Background(), queue.NewJob(queue.JobTypeTagAnalysis, "alice")); err != nil {
		t.Fatalf("ProcessTagAnalysisJob failed: %v", err)
	}
	if len(enqueuer.jobs) != 1 {
		t.Fatalf("Expected follow-up job, got %d jobs", len(enqueuer.jobs))
	}
	job := enqueuer.jobs[0]
	if job.UserID != "alice" || job.Type != queue.JobTypeTagAnalysis {
		t.Errorf("Unexpected follow-up job: %+v", job)
	}
	if job.NotBefore == nil {
		t.Error("Follow-up job should be debounced")
	}
}

func TestTagAnalyzer_ProcessJob(t *testing.T) {
	t.Parallel()

	past := time.Now().Add(-time.Hour)

	tests := []struct {
		name        string
		job         func() *queue.Job
		updateErr   error
		wantErr     bool
		wantAck     bool
		wantNack    bool
		wantRequeue bool
		wantRetry   bool
	}{
		{
			name:    "success acks",
			job:     func() *queue.Job { return queue.NewJob(queue.JobTypeTagAnalysis, "alice") },
			wantAck: true,
		},
		{
			name: "expired job acked without processing",
			job: func() *queue.Job {
				job := queue.NewJob(queue.JobTypeTagAnalysis, "alice")
				job.NotAfter = &past
				return job
			},
			wantAck: true,
		},
		{
			name:     "unknown type dead-lettered",
			job:      func() *queue.Job { return queue.NewJob(queue.JobType("mystery"), "alice") },
			wantErr:  true,
			wantNack: true,
		},
		{
			name:      "failure re-enqueued with backoff",
			job:       func() *queue.Job { return queue.NewJob(queue.JobTypeTagAnalysis, "alice") },
			updateErr: errors.New("db down"),
			wantErr:   true,
			wantAck:   true,
			wantRetry: true,
		},
		{
			name: "failure after max retries dead-lettered",
			job: func() *queue.Job {
				job := queue.NewJob(queue.JobTypeTagAnalysis, "alice")
				job.RetryCount = job.MaxRetries
				return job
			},
			updateErr: errors.New("db down"),
			wantErr:   true,
			wantNack:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			repo := &mockTagStatisticsRepoForWorker{t: t}
			if tt.updateErr != nil {
				repo.updateStatisticsFunc = func(context.Context, *models.TagStatistics) (bool, error) {
					return false, tt.updateErr
				}
			}
			enqueuer := &mockEnqueuer{}
			analyzer := newTestAnalyzer(t, &mockSnapshotLoader{}, repo, enqueuer)
			msg := &mockMessage{job: tt.job()}

			err := analyzer.ProcessJob(context.Background(), msg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ProcessJob error = %v, wantErr %v", err, tt.wantErr)
			}
			if msg.acked != tt.wantAck {
				t.Errorf("acked = %v, want %v", msg.acked, tt.wantAck)
			}
			if msg.nacked != tt.wantNack {
				t.Errorf("nacked = %v, want %v", msg.nacked, tt.wantNack)
			}
			if msg.nacked && msg.nackRequeue != tt.wantRequeue {
				t.Errorf("requeue = %v, want %v", msg.nackRequeue, tt.wantRequeue)
			}
			if tt.wantRetry {
				if len(enqueuer.jobs) != 1 {
					t.Fatalf("Expected retry job, got %d", len(enqueuer.jobs))
				}
				retry := enqueuer.jobs[0]
				if retry.RetryCount != msg.job.RetryCount+1 || retry.NotBefore == nil {
					t.Errorf("Unexpected retry job: %+v", retry)
				}
				if retry.ID != msg.job.ID {
					t.Error("Retry should keep the job id")
				}
			} else if len(enqueuer.jobs) != 0 {
				t.Errorf("Expected no enqueued jobs, got %d", len(enqueuer.jobs))
			}
		})
	}
}

func TestTagAnalyzer_ProcessJob_WaitsForNotBefore(t *testing.T) {
	t.Parallel()

	repo := &mockTagStatisticsRepoForWorker{t: t}
	analyzer := newTestAnalyzer(t, &mockSnapshotLoader{}, repo, nil)
	msg := &mockMessage{job: queue.NewDelayedJob(queue.JobTypeTagAnalysis, "alice", 20*time.Millisecond)}

	start := time.Now()
	if err := analyzer.ProcessJob(context.Background(), msg); err != nil {
		t.Fatalf("ProcessJob failed: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 15*time.Millisecond {
		t.Errorf("Expected ProcessJob to wait for NotBefore, returned after %v", elapsed)
	}
	if !msg.acked {
		t.Error("Expected message to be acked")
	}
}

func TestTagAnalyzer_ProcessJob_CancelledWhileWaiting(t *testing.T) {
	t.Parallel()

	repo := &mockTagStatisticsRepoForWorker{t: t}
	analyzer := newTestAnalyzer(t, &mockSnapshotLoader{}, repo, nil)
	msg := &mockMessage{job: queue.NewDelayedJob(queue.JobTypeTagAnalysis, "alice", time.Hour)}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := analyzer.ProcessJob(ctx, msg); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
	if !msg.nacked || !msg.nackRequeue {
		t.Error("Expected message to be requeued")
	}
	if len(repo.updateStatisticsCalls) != 0 {
		t.Error("Job should not have been processed")
	}
}

func TestRetryDelay(t *testing.T) {
	t.Parallel()
	tests := []struct {
		retry int
		want  time.Duration
	}{
		{retry: -1, want: 5 * time.Second},
		{retry: 0, want: 5 * time.Second},
		{retry: 1, want: 10 * time.Second},
		{retry: 3, want: 40 * time.Second},
		{retry: 50, want: 5 * time.Second << 10},
	}
	for _, tt := range tests {
		if got := retryDelay(tt.retry); got != tt.want {
			t.Errorf("retryDelay(%d) = %v, want %v", tt.retry, got, tt.want)
		}
	}
}
