package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/JakeFAU/toolshelf/internal/catalog"
)

// JobStore provides an in-memory implementation for development/testing.
type JobStore struct {
	mu   sync.RWMutex
	jobs map[string]catalog.CrawlJob
	now  func() time.Time
}

// NewJobStore constructs a JobStore.
func NewJobStore() *JobStore {
	return &JobStore{
		jobs: make(map[string]catalog.CrawlJob),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// CreateJob stores a new job.
func (s *JobStore) CreateJob(_ context.Context, job catalog.CrawlJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.ID]; exists {
		return fmt.Errorf("create job %s: already exists", job.ID)
	}
	s.jobs[job.ID] = job
	return nil
}

// UpdateJob records a status transition along with the latest report.
func (s *JobStore) UpdateJob(
	_ context.Context,
	jobID string,
	status catalog.JobStatus,
	errText string,
	report catalog.CrawlReport,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return fmt.Errorf("update job %s: %w", jobID, catalog.ErrNotFound)
	}
	job.Status = status
	job.ErrorText = errText
	job.Report = report
	now := s.now()
	if status == catalog.JobStatusRunning && job.Started == nil {
		job.Started = pointerTime(now)
	}
	if status.IsTerminal() {
		job.Finished = pointerTime(now)
	}
	s.jobs[jobID] = job
	return nil
}

// GetJob fetches a job by ID.
func (s *JobStore) GetJob(_ context.Context, jobID string) (catalog.CrawlJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return catalog.CrawlJob{}, fmt.Errorf("get job %s: %w", jobID, catalog.ErrNotFound)
	}
	return job, nil
}

func pointerTime(t time.Time) *time.Time {
	ts := t
	return &ts
}
