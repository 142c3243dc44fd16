// Package sources implements the per-vendor fetchers that derive tool
// version and download metadata, plus the registry that maps stable fetcher
// ids to them.
package sources

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/JakeFAU/toolshelf/internal/catalog"
)

// ErrNoResult means the source answered but nothing usable could be extracted.
var ErrNoResult = errors.New("source produced no result")

// DefaultTimeout bounds a single source fetch when no timeout is configured.
const DefaultTimeout = 15 * time.Second

// Source produces the current metadata for one tool. Any error means absent.
type Source interface {
	ID() string
	Fetch(ctx context.Context) (catalog.SourceResult, error)
}

// FetchFunc adapts a plain function to Source.
type FetchFunc func(ctx context.Context) (catalog.SourceResult, error)

type funcSource struct {
	id string
	fn FetchFunc
}

// NewFunc wraps fn as a Source registered under id.
func NewFunc(id string, fn FetchFunc) Source {
	return funcSource{id: id, fn: fn}
}

func (s funcSource) ID() string { return s.id }

func (s funcSource) Fetch(ctx context.Context) (catalog.SourceResult, error) {
	return s.fn(ctx)
}

// Registry maps fetcher ids to sources. It is populated at startup and read
// concurrently afterwards.
type Registry struct {
	mu      sync.RWMutex
	sources map[string]Source
}

// NewRegistry builds a registry holding the given sources.
func NewRegistry(srcs ...Source) (*Registry, error) {
	r := &Registry{sources: make(map[string]Source, len(srcs))}
	for _, src := range srcs {
		if err := r.Register(src); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds src under its id. Duplicate ids are rejected.
func (r *Registry) Register(src Source) error {
	if src == nil || src.ID() == "" {
		return errors.New("register source: missing id")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.sources[src.ID()]; exists {
		return fmt.Errorf("register source: duplicate id %q", src.ID())
	}
	r.sources[src.ID()] = src
	return nil
}

// Lookup returns the source registered under id.
func (r *Registry) Lookup(id string) (Source, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	src, ok := r.sources[id]
	return src, ok
}

// IDs returns the registered ids, sorted.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.sources))
	for id := range r.sources {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Unknown lists the fetcher ids named by entries that have no registered
// source, in entry order without repeats.
func (r *Registry) Unknown(entries []catalog.StaticEntry) []string {
	var unknown []string
	seen := make(map[string]bool)
	for _, entry := range entries {
		if entry.Fetcher == "" || seen[entry.Fetcher] {
			continue
		}
		seen[entry.Fetcher] = true
		if _, ok := r.Lookup(entry.Fetcher); !ok {
			unknown = append(unknown, entry.Fetcher)
		}
	}
	return unknown
}

// browserHeaders are sent with every source request; some vendors reject
// requests that do not look like a browser.
func browserHeaders() http.Header {
	return http.Header{
		"Accept":          {"text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8"},
		"Accept-Language": {"en-US,en;q=0.9"},
	}
}

// client is the shared transport half of every HTTP-backed source.
type client struct {
	getter  catalog.Getter
	timeout time.Duration
}

func newClient(getter catalog.Getter, timeout time.Duration) client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return client{getter: getter, timeout: timeout}
}

type requestOption func(*catalog.FetchRequest)

func withHeader(key, value string) requestOption {
	return func(r *catalog.FetchRequest) {
		r.Headers.Set(key, value)
	}
}

func insecure() requestOption {
	return func(r *catalog.FetchRequest) {
		r.SkipTLSVerify = true
	}
}

func (c client) get(ctx context.Context, url string, opts ...requestOption) (catalog.FetchResponse, error) {
	if c.getter == nil {
		return catalog.FetchResponse{}, errors.New("source has no http getter")
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req := catalog.FetchRequest{URL: url, Headers: browserHeaders(), Timeout: c.timeout}
	for _, opt := range opts {
		opt(&req)
	}
	resp, err := c.getter.Fetch(ctx, req)
	if err != nil {
		return catalog.FetchResponse{}, fmt.Errorf("get %s: %w", url, err)
	}
	return resp, nil
}

func (c client) getJSON(ctx context.Context, url string, out any, opts ...requestOption) error {
	resp, err := c.get(ctx, url, opts...)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(resp.Body, out); err != nil {
		return fmt.Errorf("decode %s: %w", url, err)
	}
	return nil
}
