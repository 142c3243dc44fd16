// Package dispatcher accepts crawl submissions and fans queued jobs out to
// a pool of workers.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/toolshelf/internal/catalog"
	"github.com/JakeFAU/toolshelf/internal/metrics"
	"github.com/JakeFAU/toolshelf/internal/worker"
)

// ErrBusy is returned when the queue cannot take another job.
var ErrBusy = errors.New("crawl queue is full")

// Queue accepts items without blocking the submitter.
type Queue interface {
	TryEnqueue(item catalog.QueueItem) error
}

// Dispatcher owns job submission and the worker pool.
type Dispatcher struct {
	queue   Queue
	jobs    catalog.JobStore
	ids     catalog.IDGenerator
	clock   catalog.Clock
	workers []*worker.Worker
	logger  *zap.Logger
}

// Option customizes a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the logger used for scheduled submissions.
func WithLogger(logger *zap.Logger) Option {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger.Named("dispatcher")
		}
	}
}

// New creates a Dispatcher.
func New(
	queue Queue,
	jobs catalog.JobStore,
	ids catalog.IDGenerator,
	clock catalog.Clock,
	workers []*worker.Worker,
	opts ...Option,
) *Dispatcher {
	d := &Dispatcher{
		queue:   queue,
		jobs:    jobs,
		ids:     ids,
		clock:   clock,
		workers: workers,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Run starts all workers and blocks until the context finishes and every
// worker has returned.
func (d *Dispatcher) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, w := range d.workers {
		wg.Add(1)
		go func(wk *worker.Worker) {
			defer wg.Done()
			wk.Run(ctx)
		}(w)
	}
	<-ctx.Done()
	wg.Wait()
}

// Submit records a queued job and hands it to the workers. The returned job
// is the caller's handle; the crawl itself runs later.
func (d *Dispatcher) Submit(ctx context.Context) (catalog.CrawlJob, error) {
	id, err := d.ids.NewID()
	if err != nil {
		return catalog.CrawlJob{}, fmt.Errorf("job id: %w", err)
	}
	now := d.clock.Now()
	job := catalog.CrawlJob{ID: id, Status: catalog.JobStatusQueued, Submitted: now}
	if err := d.jobs.CreateJob(ctx, job); err != nil {
		return catalog.CrawlJob{}, fmt.Errorf("create job: %w", err)
	}
	if err := d.queue.TryEnqueue(catalog.QueueItem{JobID: id, Attempt: 1, Submitted: now.Unix()}); err != nil {
		if updErr := d.jobs.UpdateJob(ctx, id, catalog.JobStatusFailed, err.Error(), catalog.CrawlReport{}); updErr != nil {
			err = errors.Join(err, updErr)
		}
		metrics.ObserveJob(string(catalog.JobStatusFailed))
		return catalog.CrawlJob{}, fmt.Errorf("%w: %w", ErrBusy, err)
	}
	metrics.ObserveJob(string(catalog.JobStatusQueued))
	return job, nil
}

// Job returns the current state of a submitted job.
func (d *Dispatcher) Job(ctx context.Context, id string) (catalog.CrawlJob, error) {
	job, err := d.jobs.GetJob(ctx, id)
	if err != nil {
		return catalog.CrawlJob{}, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// Schedule submits a crawl every interval until the context finishes. With
// onStart set, one crawl is submitted before the first tick. A zero interval
// disables the ticker.
func (d *Dispatcher) Schedule(ctx context.Context, interval time.Duration, onStart bool) {
	if onStart {
		d.submitScheduled(ctx, "startup")
	}
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.submitScheduled(ctx, "interval")
		}
	}
}

func (d *Dispatcher) submitScheduled(ctx context.Context, trigger string) {
	job, err := d.Submit(ctx)
	if err != nil {
		d.logger.Warn("scheduled crawl not submitted", zap.String("trigger", trigger), zap.Error(err))
		return
	}
	d.logger.Info("scheduled crawl submitted", zap.String("trigger", trigger), zap.String("job_id", job.ID))
}
