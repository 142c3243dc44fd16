package catalog

import (
	"net/http"
	"strings"
	"time"
)

// VersionGroup labels an entry in a ranked version list.
type VersionGroup string

// Version groups emitted by sources that publish release channels.
const (
	GroupNone    VersionGroup = ""
	GroupLTS     VersionGroup = "LTS"
	GroupCurrent VersionGroup = "Current"
)

// VersionEntry is one downloadable version of a tool.
type VersionEntry struct {
	Version string       `json:"version"`
	URL     string       `json:"url"`
	Group   VersionGroup `json:"group,omitempty"`
}

// ToolRecord is the persisted row for a tool, keyed by Name.
//
// AcceleratedDownloadURL is derived from OriginalDownloadURL and is only ever
// written together with it.
type ToolRecord struct {
	Name                   string         `json:"name"`
	Category               string         `json:"category"`
	Description            string         `json:"description,omitempty"`
	Version                string         `json:"version"`
	HomepageURL            string         `json:"homepage_url"`
	OriginalDownloadURL    string         `json:"original_download_url"`
	AcceleratedDownloadURL string         `json:"accelerated_download_url"`
	VersionList            []VersionEntry `json:"version_list,omitempty"`
	Icon                   string         `json:"icon,omitempty"`
	UpdatedAt              time.Time      `json:"updated_at"`
}

// SourceResult is what a source fetcher hands back to the orchestrator.
type SourceResult struct {
	Name                string
	Category            string
	Version             string
	HomepageURL         string
	OriginalDownloadURL string
	VersionList         []VersionEntry
}

// StaticEntry is one item of the curated static list.
type StaticEntry struct {
	Name        string `json:"name" yaml:"name"`
	Fetcher     string `json:"fetcher,omitempty" yaml:"fetcher,omitempty"`
	Category    string `json:"category" yaml:"category"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	HomepageURL string `json:"homepage_url" yaml:"homepage_url"`
	Icon        string `json:"icon,omitempty" yaml:"icon,omitempty"`
	Version     string `json:"version,omitempty" yaml:"version,omitempty"`
	DownloadURL string `json:"download_url,omitempty" yaml:"download_url,omitempty"`
}

// ViewEntry is one row of the catalog returned to clients.
type ViewEntry struct {
	Name                string         `json:"name"`
	Category            string         `json:"category"`
	Description         string         `json:"description,omitempty"`
	HomepageURL         string         `json:"homepage_url"`
	Icon                string         `json:"icon,omitempty"`
	Version             string         `json:"version,omitempty"`
	DownloadURL         string         `json:"download_url,omitempty"`
	OriginalDownloadURL string         `json:"original_download_url,omitempty"`
	VersionList         []VersionEntry `json:"versions,omitempty"`
}

// View is the ordered catalog: static-list order, then tools that only exist
// in the store.
type View []ViewEntry

// Find returns the entry with the given name.
func (v View) Find(name string) (ViewEntry, bool) {
	for _, entry := range v {
		if entry.Name == name {
			return entry, true
		}
	}
	return ViewEntry{}, false
}

// JobStatus represents the lifecycle state of a crawl job.
type JobStatus string

// Job status values persisted in the job store.
const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusSucceeded JobStatus = "succeeded"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCanceled  JobStatus = "canceled"
)

// IsTerminal reports whether no further transitions are expected.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusSucceeded, JobStatusFailed, JobStatusCanceled:
		return true
	default:
		return false
	}
}

// CrawlReport summarizes one orchestrator run.
type CrawlReport struct {
	Requested     int      `json:"requested"`
	Resolved      int      `json:"resolved"`
	Fetched       int      `json:"fetched"`
	Upserted      int      `json:"upserted"`
	Skipped       []string `json:"skipped,omitempty"`
	FailedSources []string `json:"failed_sources,omitempty"`
}

// CrawlJob is the handle returned when a crawl is submitted.
type CrawlJob struct {
	ID        string      `json:"id"`
	Status    JobStatus   `json:"status"`
	Submitted time.Time   `json:"submitted_at"`
	Started   *time.Time  `json:"started_at,omitempty"`
	Finished  *time.Time  `json:"finished_at,omitempty"`
	ErrorText string      `json:"error_text,omitempty"`
	Report    CrawlReport `json:"report"`
}

// QueueItem wraps a crawl job ready to run.
type QueueItem struct {
	JobID     string
	Attempt   int
	Submitted int64
}

// FetchRequest captures everything needed for a single outbound GET.
type FetchRequest struct {
	URL     string
	Headers http.Header
	// Timeout bounds this request only; zero means the getter default.
	Timeout time.Duration
	// SkipTLSVerify disables certificate checks for sources with broken chains.
	SkipTLSVerify bool
}

// FetchResponse is the result of a successful outbound GET.
type FetchResponse struct {
	URL        string
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
}

// ContentType returns the declared content type, lowercased.
func (r FetchResponse) ContentType() string {
	if r.Headers == nil {
		return ""
	}
	return strings.ToLower(r.Headers.Get("Content-Type"))
}
