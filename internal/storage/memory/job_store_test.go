package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/toolshelf/internal/catalog"
)

func TestJobStoreLifecycle(t *testing.T) {
	t.Parallel()

	store := NewJobStore()
	fixed := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	store.now = func() time.Time { return fixed }
	ctx := context.Background()
	job := catalog.CrawlJob{ID: "job-1", Status: catalog.JobStatusQueued, Submitted: fixed}

	require.NoError(t, store.CreateJob(ctx, job))
	require.Error(t, store.CreateJob(ctx, job), "expected duplicate job error")
	require.NoError(t, store.UpdateJob(ctx, job.ID, catalog.JobStatusRunning, "", catalog.CrawlReport{}))

	running, err := store.GetJob(ctx, job.ID)
	require.NoError(t, err)
	require.NotNil(t, running.Started)
	require.Nil(t, running.Finished)

	report := catalog.CrawlReport{Requested: 2, Resolved: 2, Fetched: 1, Upserted: 1, FailedSources: []string{"fetch_obs"}}
	require.NoError(t, store.UpdateJob(ctx, job.ID, catalog.JobStatusSucceeded, "", report))

	final, err := store.GetJob(ctx, job.ID)
	require.NoError(t, err)
	require.Equal(t, catalog.JobStatusSucceeded, final.Status)
	require.NotNil(t, final.Started)
	require.NotNil(t, final.Finished)
	require.Equal(t, fixed, *final.Finished)
	require.Equal(t, report, final.Report)
}

func TestJobStoreMissing(t *testing.T) {
	t.Parallel()

	store := NewJobStore()
	_, err := store.GetJob(context.Background(), "nope")
	require.ErrorIs(t, err, catalog.ErrNotFound)
	err = store.UpdateJob(context.Background(), "nope", catalog.JobStatusFailed, "x", catalog.CrawlReport{})
	require.ErrorIs(t, err, catalog.ErrNotFound)
}
