// Package worker runs queued crawl jobs.
package worker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/toolshelf/internal/catalog"
	"github.com/JakeFAU/toolshelf/internal/metrics"
)

// Crawler executes one crawl over a static list.
type Crawler interface {
	Run(ctx context.Context, entries []catalog.StaticEntry) (catalog.CrawlReport, error)
}

// EntrySource supplies the static list snapshot a job crawls.
type EntrySource interface {
	Entries() []catalog.StaticEntry
}

// Config controls Worker behavior.
type Config struct {
	// SnapshotPrefix is the blob path prefix for exported catalog views.
	SnapshotPrefix string
	// Topic receives a crawl-completed event; empty disables publishing.
	Topic string
}

// Deps groups the collaborators a Worker needs. Blobs, Publisher and Hasher
// are optional; without them the matching step is skipped.
type Deps struct {
	Queue     catalog.Queue
	Jobs      catalog.JobStore
	Crawler   Crawler
	List      EntrySource
	Store     catalog.ToolStore
	Blobs     catalog.BlobStore
	Publisher catalog.Publisher
	Hasher    catalog.Hasher
	Clock     catalog.Clock
}

// Worker consumes queue items and runs one crawl per item.
type Worker struct {
	deps   Deps
	cfg    Config
	logger *zap.Logger
}

// New constructs a Worker.
func New(deps Deps, cfg Config, logger *zap.Logger) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.SnapshotPrefix == "" {
		cfg.SnapshotPrefix = "catalog"
	}
	return &Worker{deps: deps, cfg: cfg, logger: logger.Named("worker")}
}

// Run blocks, consuming queue items until the context finishes or the queue
// is closed.
func (w *Worker) Run(ctx context.Context) {
	for {
		item, err := w.deps.Queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if errors.Is(err, catalog.ErrQueueClosed) {
				w.logger.Info("queue closed, worker exiting")
				return
			}
			w.logger.Error("queue dequeue failed", zap.Error(err))
			continue
		}
		w.logger.Debug("dequeued job", zap.String("job_id", item.JobID))
		w.processJob(ctx, item)
	}
}

func (w *Worker) processJob(ctx context.Context, item catalog.QueueItem) {
	metrics.IncActiveWorkers()
	defer metrics.DecActiveWorkers()

	// Status writes must land even when shutdown cancels the crawl.
	storeCtx := context.WithoutCancel(ctx)

	if err := w.deps.Jobs.UpdateJob(storeCtx, item.JobID, catalog.JobStatusRunning, "", catalog.CrawlReport{}); err != nil {
		w.logger.Error("update job status failed", zap.String("job_id", item.JobID), zap.Error(err))
		return
	}
	metrics.ObserveJob(string(catalog.JobStatusRunning))

	entries := w.entries()
	start := time.Now()
	report, crawlErr := w.deps.Crawler.Run(ctx, entries)
	status, errText := deriveFinalStatus(ctx, crawlErr)

	if status != catalog.JobStatusCanceled {
		if err := w.exportAndPublish(storeCtx, item.JobID, status, entries, report); err != nil {
			w.logger.Error("post-crawl step failed", zap.String("job_id", item.JobID), zap.Error(err))
			status = catalog.JobStatusFailed
			errText = joinText(errText, err.Error())
		}
	}

	if err := w.deps.Jobs.UpdateJob(storeCtx, item.JobID, status, errText, report); err != nil {
		w.logger.Error("final job status update failed", zap.String("job_id", item.JobID), zap.Error(err))
	}
	metrics.ObserveJob(string(status))
	w.logger.Info("crawl job finished",
		zap.String("job_id", item.JobID),
		zap.String("status", string(status)),
		zap.Int("upserted", report.Upserted),
		zap.Strings("failed_sources", report.FailedSources),
		zap.Duration("elapsed", time.Since(start)),
	)
}

func (w *Worker) entries() []catalog.StaticEntry {
	if w.deps.List == nil {
		return nil
	}
	return w.deps.List.Entries()
}

func (w *Worker) exportAndPublish(
	ctx context.Context,
	jobID string,
	status catalog.JobStatus,
	entries []catalog.StaticEntry,
	report catalog.CrawlReport,
) error {
	uri, hash, err := w.exportSnapshot(ctx, entries)
	if err != nil {
		return err
	}
	return w.publishResult(ctx, jobID, status, report, uri, hash)
}

// exportSnapshot writes the merged catalog view as JSON, named by digest.
func (w *Worker) exportSnapshot(ctx context.Context, entries []catalog.StaticEntry) (string, string, error) {
	if w.deps.Blobs == nil || w.deps.Hasher == nil || w.deps.Store == nil {
		return "", "", nil
	}
	stored, err := w.deps.Store.ListAll(ctx)
	if err != nil {
		return "", "", fmt.Errorf("list tools: %w", err)
	}
	snap, err := w.deps.Hasher.HashView(catalog.BuildView(entries, stored))
	if err != nil {
		return "", "", fmt.Errorf("hash view: %w", err)
	}
	uri, err := w.deps.Blobs.PutObject(ctx, w.snapshotPath(snap.Digest), "application/json", bytes.NewReader(snap.Data))
	if err != nil {
		return "", "", fmt.Errorf("put snapshot: %w", err)
	}
	return uri, snap.Digest, nil
}

func (w *Worker) snapshotPath(hash string) string {
	prefix := strings.Trim(w.cfg.SnapshotPrefix, "/")
	if prefix == "" {
		return hash + ".json"
	}
	return fmt.Sprintf("%s/%s.json", prefix, hash)
}

func (w *Worker) publishResult(
	ctx context.Context,
	jobID string,
	status catalog.JobStatus,
	report catalog.CrawlReport,
	uri string,
	hash string,
) error {
	if w.cfg.Topic == "" || w.deps.Publisher == nil {
		return nil
	}
	payload := map[string]any{
		"job_id":       jobID,
		"status":       status,
		"report":       report,
		"snapshot_uri": uri,
		"hash":         hash,
		"timestamp":    w.now().Format(time.RFC3339),
	}
	id, err := w.deps.Publisher.Publish(ctx, w.cfg.Topic, payload)
	if err != nil {
		return fmt.Errorf("publish payload: %w", err)
	}
	w.logger.Info("crawl published",
		zap.String("job_id", jobID),
		zap.String("message_id", id),
		zap.String("snapshot_uri", uri),
	)
	return nil
}

func (w *Worker) now() time.Time {
	if w.deps.Clock == nil {
		return time.Now().UTC()
	}
	return w.deps.Clock.Now()
}

// deriveFinalStatus maps the crawl outcome to a job status. Source failures
// never surface here; only persistence errors fail a job.
func deriveFinalStatus(ctx context.Context, crawlErr error) (catalog.JobStatus, string) {
	switch {
	case ctx.Err() != nil:
		return catalog.JobStatusCanceled, "crawl canceled during shutdown"
	case crawlErr != nil:
		return catalog.JobStatusFailed, crawlErr.Error()
	default:
		return catalog.JobStatusSucceeded, ""
	}
}

func joinText(parts ...string) string {
	var out []string
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, "; ")
}
