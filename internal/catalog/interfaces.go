package catalog

import (
	"context"
	"errors"
	"io"
	"time"
)

var (
	// ErrNotFound is returned by stores when no record matches.
	ErrNotFound = errors.New("not found")
	// ErrPersistence marks store write failures surfaced from a crawl.
	ErrPersistence = errors.New("persistence failure")
	// ErrQueueClosed is returned by queues after shutdown.
	ErrQueueClosed = errors.New("queue closed")
)

// ToolStore persists ToolRecord rows keyed by name.
type ToolStore interface {
	FindByName(ctx context.Context, name string) (ToolRecord, error)
	Insert(ctx context.Context, record ToolRecord) error
	Update(ctx context.Context, record ToolRecord) error
	ListAll(ctx context.Context) ([]ToolRecord, error)
}

// Getter performs a single outbound GET.
type Getter interface {
	Fetch(ctx context.Context, request FetchRequest) (FetchResponse, error)
}

// JobStore persists crawl job metadata.
type JobStore interface {
	CreateJob(ctx context.Context, job CrawlJob) error
	UpdateJob(ctx context.Context, jobID string, status JobStatus, errText string, report CrawlReport) error
	GetJob(ctx context.Context, jobID string) (CrawlJob, error)
}

// Queue provides enqueue/dequeue semantics for crawl jobs.
type Queue interface {
	Enqueue(ctx context.Context, item QueueItem) error
	Dequeue(ctx context.Context) (QueueItem, error)
}

// BlobStore writes catalog snapshots and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// Publisher pushes crawl completion events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Snapshot is a serialized catalog view named by its content digest.
type Snapshot struct {
	Digest string
	Data   []byte
}

// Hasher serializes a view and digests it for snapshot naming.
type Hasher interface {
	HashView(view View) (Snapshot, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces job IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
