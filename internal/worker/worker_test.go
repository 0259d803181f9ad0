package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/leadscout/internal/discovery"
	"github.com/JakeFAU/leadscout/internal/lead"
	"github.com/JakeFAU/leadscout/internal/progress"
	"github.com/JakeFAU/leadscout/internal/storage/memory"
)

const jobID = "0190b5a8-1c2d-7e3f-8a9b-0c1d2e3f4a5b"

type fakeQueue struct {
	mu    sync.Mutex
	items []lead.QueueItem
}

func (q *fakeQueue) Enqueue(_ context.Context, job lead.QueueItem) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, job)
	return nil
}

func (q *fakeQueue) Dequeue(ctx context.Context) (lead.QueueItem, error) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			item := q.items[0]
			q.items = q.items[1:]
			q.mu.Unlock()
			return item, nil
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return lead.QueueItem{}, fmt.Errorf("queue dequeue context done: %w", ctx.Err())
		default:
			time.Sleep(5 * time.Millisecond)
		}
	}
}

type runnerFunc func(ctx context.Context, jobID string, params lead.DiscoveryParams) (discovery.Report, error)

func (f runnerFunc) Run(ctx context.Context, jobID string, params lead.DiscoveryParams) (discovery.Report, error) {
	return f(ctx, jobID, params)
}

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	return c.now
}

type recorder struct {
	mu     sync.Mutex
	stages []progress.Stage
	notes  []string
}

func (r *recorder) Emit(evt progress.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stages = append(r.stages, evt.Stage)
	r.notes = append(r.notes, evt.Note)
}

func (r *recorder) snapshot() ([]progress.Stage, []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]progress.Stage(nil), r.stages...), append([]string(nil), r.notes...)
}

func setup(t *testing.T, status lead.JobStatus, runner Runner, cfg Config) (*memory.JobStore, *recorder, func()) {
	t.Helper()
	jobs := memory.NewJobStore()
	require.NoError(t, jobs.CreateJob(context.Background(), lead.Job{ID: jobID, Status: status}))
	rec := &recorder{}
	queue := &fakeQueue{items: []lead.QueueItem{{JobID: jobID, Params: lead.DiscoveryParams{OwnerID: "owner-1", Query: "plumbers"}}}}
	w := New(queue, jobs, runner, &fakeClock{now: time.Now()}, rec, cfg, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		w.Run(ctx)
	}()
	return jobs, rec, func() {
		cancel()
		<-done
	}
}

func waitForStatus(t *testing.T, jobs *memory.JobStore, want lead.JobStatus) lead.Job {
	t.Helper()
	var job lead.Job
	require.Eventually(t, func() bool {
		var err error
		job, err = jobs.GetJob(context.Background(), jobID)
		return err == nil && job.Status == want && job.Finished != nil
	}, 2*time.Second, 5*time.Millisecond)
	return job
}

func TestWorkerProcessJobSuccess(t *testing.T) {
	t.Parallel()

	counters := lead.JobCounters{Found: 4, Analyzed: 3, Created: 2, Duplicates: 1}
	seen := make(chan string, 1)
	runner := runnerFunc(func(_ context.Context, id string, params lead.DiscoveryParams) (discovery.Report, error) {
		seen <- id + "/" + params.Query
		return discovery.Report{
			Counters: counters,
			Outcome:  lead.JobOutcome{LeadIDs: []string{"l1", "l2"}},
		}, nil
	})
	jobs, rec, stop := setup(t, lead.JobStatusQueued, runner, Config{})
	defer stop()

	job := waitForStatus(t, jobs, lead.JobStatusSucceeded)
	require.Equal(t, jobID+"/plumbers", <-seen)
	require.Equal(t, counters, job.Counters)
	require.NotNil(t, job.Started)
	require.Empty(t, job.ErrorText)

	outcome, err := jobs.GetOutcome(context.Background(), jobID)
	require.NoError(t, err)
	require.Equal(t, []string{"l1", "l2"}, outcome.LeadIDs)

	require.Eventually(t, func() bool {
		stages, _ := rec.snapshot()
		return len(stages) == 2
	}, time.Second, 5*time.Millisecond)
	stages, _ := rec.snapshot()
	require.Equal(t, []progress.Stage{progress.StageJobStart, progress.StageJobDone}, stages)
}

func TestWorkerProcessJobFailure(t *testing.T) {
	t.Parallel()

	runner := runnerFunc(func(context.Context, string, lead.DiscoveryParams) (discovery.Report, error) {
		return discovery.Report{Counters: lead.JobCounters{Found: 0}}, errors.New("search: all search providers failed")
	})
	jobs, rec, stop := setup(t, lead.JobStatusQueued, runner, Config{})
	defer stop()

	job := waitForStatus(t, jobs, lead.JobStatusFailed)
	require.Equal(t, "search: all search providers failed", job.ErrorText)
	require.Eventually(t, func() bool {
		stages, notes := rec.snapshot()
		return len(stages) == 2 && stages[1] == progress.StageJobError && notes[1] == job.ErrorText
	}, time.Second, 5*time.Millisecond)
}

func TestWorkerJobTimeoutCancels(t *testing.T) {
	t.Parallel()

	runner := runnerFunc(func(ctx context.Context, _ string, _ lead.DiscoveryParams) (discovery.Report, error) {
		<-ctx.Done()
		return discovery.Report{Canceled: true}, nil
	})
	jobs, _, stop := setup(t, lead.JobStatusQueued, runner, Config{JobTimeout: 20 * time.Millisecond})
	defer stop()

	job := waitForStatus(t, jobs, lead.JobStatusCanceled)
	require.Equal(t, "job timeout exceeded", job.ErrorText)
}

func TestWorkerKeepsAPICancellation(t *testing.T) {
	t.Parallel()

	var jobsRef *memory.JobStore
	ready := make(chan struct{})
	runner := runnerFunc(func(ctx context.Context, id string, _ lead.DiscoveryParams) (discovery.Report, error) {
		<-ready
		_ = jobsRef.UpdateJobStatus(ctx, id, lead.JobStatusCanceled, "", lead.JobCounters{})
		return discovery.Report{Canceled: true, Counters: lead.JobCounters{Created: 1}}, nil
	})
	jobs, _, stop := setup(t, lead.JobStatusQueued, runner, Config{})
	defer stop()
	jobsRef = jobs
	close(ready)

	waitForStatus(t, jobs, lead.JobStatusCanceled)
	require.Eventually(t, func() bool {
		job, err := jobs.GetJob(context.Background(), jobID)
		return err == nil && job.Counters.Created == 1 && job.Status == lead.JobStatusCanceled
	}, 2*time.Second, 5*time.Millisecond)
}

func TestWorkerSkipsFinishedJob(t *testing.T) {
	t.Parallel()

	called := make(chan struct{}, 1)
	runner := runnerFunc(func(context.Context, string, lead.DiscoveryParams) (discovery.Report, error) {
		called <- struct{}{}
		return discovery.Report{}, nil
	})
	jobs, rec, stop := setup(t, lead.JobStatusCanceled, runner, Config{})
	time.Sleep(50 * time.Millisecond)
	stop()

	require.Empty(t, called)
	stages, _ := rec.snapshot()
	require.Empty(t, stages)
	job, err := jobs.GetJob(context.Background(), jobID)
	require.NoError(t, err)
	require.Equal(t, lead.JobStatusCanceled, job.Status)
}

func TestDeriveFinalStatus(t *testing.T) {
	t.Parallel()

	live := context.Background()
	done, cancel := context.WithCancel(context.Background())
	cancel()
	expired, cancelExpired := context.WithTimeout(context.Background(), -time.Second)
	defer cancelExpired()

	cases := []struct {
		name    string
		parent  context.Context
		job     context.Context
		rep     discovery.Report
		err     error
		status  lead.JobStatus
		errText string
	}{
		{name: "success", parent: live, job: live, status: lead.JobStatusSucceeded},
		{name: "failure", parent: live, job: live, err: errors.New("boom"), status: lead.JobStatusFailed, errText: "boom"},
		{name: "stopped early", parent: live, job: live, rep: discovery.Report{Canceled: true}, status: lead.JobStatusCanceled},
		{name: "timeout", parent: live, job: expired, status: lead.JobStatusCanceled, errText: "job timeout exceeded"},
		{name: "shutdown", parent: done, job: done, err: errors.New("ctx"), status: lead.JobStatusCanceled, errText: "worker shutting down"},
	}
	for _, tc := range cases {
		status, errText := deriveFinalStatus(tc.parent, tc.job, tc.rep, tc.err)
		require.Equal(t, tc.status, status, tc.name)
		require.Equal(t, tc.errText, errText, tc.name)
	}
}
