package dispatcher

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/toolshelf/internal/catalog"
	"github.com/JakeFAU/toolshelf/internal/clock/system"
	"github.com/JakeFAU/toolshelf/internal/id/uuid"
	queuememory "github.com/JakeFAU/toolshelf/internal/queue/memory"
	"github.com/JakeFAU/toolshelf/internal/storage/memory"
	"github.com/JakeFAU/toolshelf/internal/worker"
)

var submittedAt = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

type stubCrawler struct{}

func (stubCrawler) Run(_ context.Context, entries []catalog.StaticEntry) (catalog.CrawlReport, error) {
	return catalog.CrawlReport{Requested: len(entries)}, nil
}

type staticIDs struct{ id string }

func (s staticIDs) NewID() (string, error) { return s.id, nil }

type failingIDs struct{}

func (failingIDs) NewID() (string, error) { return "", errors.New("entropy exhausted") }

func TestDispatcherRunsSubmittedJobs(t *testing.T) {
	t.Parallel()

	queue := queuememory.NewQueue(4)
	jobs := memory.NewJobStore()
	w := worker.New(worker.Deps{Queue: queue, Jobs: jobs, Crawler: stubCrawler{}}, worker.Config{}, nil)
	dispatch := New(queue, jobs, uuid.New(), system.Fixed{At: submittedAt}, []*worker.Worker{w, w})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		dispatch.Run(ctx)
		close(done)
	}()

	job, err := dispatch.Submit(context.Background())
	require.NoError(t, err)
	require.Equal(t, catalog.JobStatusQueued, job.Status)
	require.Equal(t, submittedAt, job.Submitted)
	require.True(t, uuid.Valid(job.ID))

	require.Eventually(t, func() bool {
		got, err := dispatch.Job(context.Background(), job.ID)
		return err == nil && got.Status == catalog.JobStatusSucceeded
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("dispatcher did not stop after context cancel")
	}
}

func TestDispatcherSubmitQueueFull(t *testing.T) {
	t.Parallel()

	queue := queuememory.NewQueue(1)
	jobs := memory.NewJobStore()
	require.NoError(t, queue.TryEnqueue(catalog.QueueItem{JobID: "occupied"}))
	dispatch := New(queue, jobs, staticIDs{id: "job-overflow"}, system.Fixed{At: submittedAt}, nil)

	_, err := dispatch.Submit(context.Background())
	require.ErrorIs(t, err, ErrBusy)
	require.ErrorIs(t, err, queuememory.ErrFull)

	job, err := dispatch.Job(context.Background(), "job-overflow")
	require.NoError(t, err)
	require.Equal(t, catalog.JobStatusFailed, job.Status)
	require.Equal(t, "queue full", job.ErrorText)
}

func TestDispatcherSubmitIDFailure(t *testing.T) {
	t.Parallel()

	dispatch := New(queuememory.NewQueue(1), memory.NewJobStore(), failingIDs{}, system.New(), nil)
	_, err := dispatch.Submit(context.Background())
	require.ErrorContains(t, err, "entropy exhausted")
}

func TestDispatcherJobMissing(t *testing.T) {
	t.Parallel()

	dispatch := New(queuememory.NewQueue(1), memory.NewJobStore(), uuid.New(), system.New(), nil)
	_, err := dispatch.Job(context.Background(), "nope")
	require.ErrorIs(t, err, catalog.ErrNotFound)
}

func TestDispatcherScheduleOnStartOnly(t *testing.T) {
	t.Parallel()

	queue := queuememory.NewQueue(4)
	dispatch := New(queue, memory.NewJobStore(), staticIDs{id: "job-start"}, system.Fixed{At: submittedAt}, nil)

	done := make(chan struct{})
	go func() {
		dispatch.Schedule(context.Background(), 0, true)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("schedule without interval should return after the startup submit")
	}
	require.Equal(t, 1, queue.Len())

	item, err := queue.Dequeue(context.Background())
	require.NoError(t, err)
	require.Equal(t, "job-start", item.JobID)
}

func TestDispatcherScheduleTicks(t *testing.T) {
	t.Parallel()

	queue := queuememory.NewQueue(16)
	dispatch := New(queue, memory.NewJobStore(), uuid.New(), system.New(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		dispatch.Schedule(ctx, 5*time.Millisecond, false)
		close(done)
	}()

	require.Eventually(t, func() bool { return queue.Len() >= 2 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("schedule did not stop after context cancel")
	}
}
