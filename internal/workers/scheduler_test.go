package workers

import (
	"context"
	"errors"
	"testing"

	"github.com/benvon/flowstate/internal/queue"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

type mockUserLister struct {
	ids []string
	err error
}

func (m *mockUserLister) ListUserIDs(ctx context.Context) ([]string, error) {
	return m.ids, m.err
}

type flakyEnqueuer struct {
	failFor string
	jobs    []*queue.Job
}

func (f *flakyEnqueuer) Enqueue(ctx context.Context, job *queue.Job) error {
	if job.UserID == f.failFor {
		return errors.New("broker unavailable")
	}
	f.jobs = append(f.jobs, job)
	return nil
}

func TestRefreshScheduler_ScheduleRefreshJobs(t *testing.T) {
	t.Parallel()

	enqueuer := &flakyEnqueuer{failFor: "bob"}
	scheduler := NewRefreshScheduler(enqueuer, &mockUserLister{ids: []string{"alice", "bob", "carol"}}, zap.NewNop())

	if err := scheduler.ScheduleRefreshJobs(context.Background()); err != nil {
		t.Fatalf("ScheduleRefreshJobs failed: %v", err)
	}

	if len(enqueuer.jobs) != 2 {
		t.Fatalf("Expected 2 jobs (one enqueue failure skipped), got %d", len(enqueuer.jobs))
	}
	for i, want := range []string{"alice", "carol"} {
		job := enqueuer.jobs[i]
		if job.UserID != want || job.Type != queue.JobTypeTagAnalysis {
			t.Errorf("Job %d = %s/%s, want %s/%s", i, job.Type, job.UserID, queue.JobTypeTagAnalysis, want)
		}
		if job.NotAfter == nil || job.NotAfter.Sub(job.CreatedAt) != refreshJobTTL {
			t.Errorf("Job %d should expire after %v", i, refreshJobTTL)
		}
	}
}

func TestRefreshScheduler_ListError(t *testing.T) {
	t.Parallel()

	scheduler := NewRefreshScheduler(&flakyEnqueuer{}, &mockUserLister{err: errors.New("db down")}, zap.NewNop())
	if err := scheduler.ScheduleRefreshJobs(context.Background()); err == nil {
		t.Error("Expected error when listing users fails")
	}
}

func TestRefreshScheduler_Schedule(t *testing.T) {
	t.Parallel()

	scheduler := NewRefreshScheduler(&flakyEnqueuer{}, &mockUserLister{}, zap.NewNop())
	c := cron.New()

	if _, err := scheduler.Schedule(context.Background(), c, "@every 6h"); err != nil {
		t.Errorf("Schedule with valid spec failed: %v", err)
	}
	if _, err := scheduler.Schedule(context.Background(), c, "0 */6 * * *"); err != nil {
		t.Errorf("Schedule with standard spec failed: %v", err)
	}
	if _, err := scheduler.Schedule(context.Background(), c, "whenever"); err == nil {
		t.Error("Expected error for invalid spec")
	}
	if got := len(c.Entries()); got != 2 {
		t.Errorf("Expected 2 cron entries, got %d", got)
	}
}
