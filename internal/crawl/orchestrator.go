// Package crawl runs the configured sources concurrently and upserts their
// accelerated results into the tool store.
package crawl

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/toolshelf/internal/catalog"
	"github.com/JakeFAU/toolshelf/internal/clock/system"
	"github.com/JakeFAU/toolshelf/internal/metrics"
	"github.com/JakeFAU/toolshelf/internal/sources"
)

// Resolver looks up a source by fetcher id.
type Resolver interface {
	Lookup(id string) (sources.Source, bool)
}

// Accelerator rewrites download URLs to mirrors.
type Accelerator interface {
	Accelerate(rawURL string) string
}

// EntrySource supplies the current static list.
type EntrySource interface {
	Entries() []catalog.StaticEntry
}

// Upsert outcomes, also used as metric labels.
const (
	upsertInserted = "inserted"
	upsertUpdated  = "updated"
	upsertFailed   = "failed"
)

// Orchestrator fans out to sources and writes what comes back.
type Orchestrator struct {
	resolver Resolver
	store    catalog.ToolStore
	accel    Accelerator
	clock    catalog.Clock
	logger   *zap.Logger
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithClock overrides the timestamp source for UpdatedAt.
func WithClock(clock catalog.Clock) Option {
	return func(o *Orchestrator) {
		o.clock = clock
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// New builds an Orchestrator.
func New(resolver Resolver, store catalog.ToolStore, accel Accelerator, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		resolver: resolver,
		store:    store,
		accel:    accel,
		clock:    system.New(),
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.logger = o.logger.Named("crawl")
	return o
}

// RunCrawl crawls the entries currently held by list.
func (o *Orchestrator) RunCrawl(ctx context.Context, list EntrySource) (catalog.CrawlReport, error) {
	return o.Run(ctx, list.Entries())
}

type job struct {
	id  string
	src sources.Source
}

type outcome struct {
	result catalog.SourceResult
	err    error
}

// Run resolves each entry's fetcher, runs all of them concurrently and then
// upserts the successful results sequentially in entry order.
//
// Source failures never surface as errors; they only show up in the report.
// The returned error is non-nil only when store writes failed, and wraps
// catalog.ErrPersistence.
func (o *Orchestrator) Run(ctx context.Context, entries []catalog.StaticEntry) (catalog.CrawlReport, error) {
	var report catalog.CrawlReport
	jobs := o.resolve(entries, &report)
	if len(jobs) == 0 {
		o.logger.Info("no resolvable sources", zap.Int("entries", len(entries)))
		return report, nil
	}

	outcomes := o.fetchAll(ctx, jobs)

	var errs []error
	for i, out := range outcomes {
		if out.err != nil {
			report.FailedSources = append(report.FailedSources, jobs[i].id)
			continue
		}
		report.Fetched++
		if err := o.upsert(ctx, out.result); err != nil {
			errs = append(errs, err)
			continue
		}
		report.Upserted++
	}

	o.logger.Info("crawl finished",
		zap.Int("resolved", report.Resolved),
		zap.Int("fetched", report.Fetched),
		zap.Int("upserted", report.Upserted),
		zap.Strings("failed_sources", report.FailedSources),
		zap.Strings("skipped", report.Skipped),
	)
	if len(errs) > 0 {
		return report, errors.Join(errs...)
	}
	return report, nil
}

// resolve maps entries to sources. Each fetcher id runs at most once.
func (o *Orchestrator) resolve(entries []catalog.StaticEntry, report *catalog.CrawlReport) []job {
	var jobs []job
	seen := make(map[string]bool)
	for _, entry := range entries {
		if entry.Fetcher == "" {
			continue
		}
		report.Requested++
		if seen[entry.Fetcher] {
			continue
		}
		seen[entry.Fetcher] = true
		src, ok := o.resolver.Lookup(entry.Fetcher)
		if !ok {
			o.logger.Warn("unknown fetcher id skipped",
				zap.String("tool", entry.Name),
				zap.String("fetcher", entry.Fetcher),
			)
			report.Skipped = append(report.Skipped, entry.Fetcher)
			continue
		}
		jobs = append(jobs, job{id: entry.Fetcher, src: src})
	}
	report.Resolved = len(jobs)
	return jobs
}

// fetchAll runs every job in its own goroutine and waits for all of them.
// Results land in a slice indexed by job position, so no locking is needed.
func (o *Orchestrator) fetchAll(ctx context.Context, jobs []job) []outcome {
	outcomes := make([]outcome, len(jobs))
	var wg sync.WaitGroup
	for i := range jobs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			outcomes[i] = o.fetchOne(ctx, jobs[i])
		}(i)
	}
	wg.Wait()
	return outcomes
}

func (o *Orchestrator) fetchOne(ctx context.Context, j job) (out outcome) {
	start := time.Now()
	logger := o.logger.With(zap.String("source", j.id))
	defer func() {
		if r := recover(); r != nil {
			out = outcome{err: fmt.Errorf("source %s panicked: %v", j.id, r)}
			logger.Error("source panicked", zap.Any("panic", r))
		}
		label := metrics.OutcomeSuccess
		switch {
		case errors.Is(out.err, sources.ErrNoResult):
			label = metrics.OutcomeAbsent
		case out.err != nil:
			label = metrics.OutcomeFailure
		}
		metrics.ObserveSourceFetch(j.id, label, time.Since(start))
	}()

	res, err := j.src.Fetch(ctx)
	if err == nil && res.Name == "" {
		err = fmt.Errorf("source %s returned a nameless result: %w", j.id, sources.ErrNoResult)
	}
	if err != nil {
		logger.Warn("source failed", zap.Error(err), zap.Duration("elapsed", time.Since(start)))
		return outcome{err: err}
	}
	logger.Debug("source fetched",
		zap.String("tool", res.Name),
		zap.String("version", res.Version),
		zap.Duration("elapsed", time.Since(start)),
	)
	return outcome{result: res}
}

// upsert inserts a new record or overwrites only the crawl-owned fields of an
// existing one. The accelerated URL is always derived here, together with the
// original it comes from.
func (o *Orchestrator) upsert(ctx context.Context, res catalog.SourceResult) error {
	now := o.clock.Now().UTC()
	accelerated := res.OriginalDownloadURL
	if o.accel != nil {
		accelerated = o.accel.Accelerate(res.OriginalDownloadURL)
	}
	versions := append([]catalog.VersionEntry(nil), res.VersionList...)

	existing, err := o.store.FindByName(ctx, res.Name)
	switch {
	case errors.Is(err, catalog.ErrNotFound):
		rec := catalog.ToolRecord{
			Name:                   res.Name,
			Category:               res.Category,
			Version:                res.Version,
			HomepageURL:            res.HomepageURL,
			OriginalDownloadURL:    res.OriginalDownloadURL,
			AcceleratedDownloadURL: accelerated,
			VersionList:            versions,
			UpdatedAt:              now,
		}
		if err := o.store.Insert(ctx, rec); err != nil {
			return o.persistenceError("insert", res.Name, err)
		}
		metrics.ObserveUpsert(upsertInserted)
		return nil
	case err != nil:
		return o.persistenceError("find", res.Name, err)
	}

	existing.Category = res.Category
	existing.Version = res.Version
	existing.OriginalDownloadURL = res.OriginalDownloadURL
	existing.AcceleratedDownloadURL = accelerated
	existing.VersionList = versions
	existing.UpdatedAt = now
	if err := o.store.Update(ctx, existing); err != nil {
		return o.persistenceError("update", res.Name, err)
	}
	metrics.ObserveUpsert(upsertUpdated)
	return nil
}

func (o *Orchestrator) persistenceError(op, name string, err error) error {
	metrics.ObserveUpsert(upsertFailed)
	o.logger.Error("tool store write failed",
		zap.String("op", op),
		zap.String("tool", name),
		zap.Error(err),
	)
	return fmt.Errorf("%w: %s %q: %w", catalog.ErrPersistence, op, name, err)
}
