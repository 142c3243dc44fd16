// Package news scrapes the GitHub trending page.
package news

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/toolshelf/internal/catalog"
)

// DefaultTrendingURL is the page scraped when none is configured.
const DefaultTrendingURL = "https://github.com/trending"

const maxItems = 10

// Item is one trending repository.
type Item struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	URL         string `json:"url"`
	Language    string `json:"language"`
}

// Config controls the scraper.
type Config struct {
	URL     string        `mapstructure:"url"`
	Timeout time.Duration `mapstructure:"timeout"`
	// CacheTTL keeps the last good result this long; zero disables caching.
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

// Trending fetches and parses the trending page.
type Trending struct {
	getter catalog.Getter
	cfg    Config
	logger *zap.Logger
	now    func() time.Time

	mu      sync.Mutex
	cached  []Item
	expires time.Time
}

// NewTrending builds a scraper.
func NewTrending(getter catalog.Getter, cfg Config, logger *zap.Logger) *Trending {
	if cfg.URL == "" {
		cfg.URL = DefaultTrendingURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Trending{getter: getter, cfg: cfg, logger: logger.Named("news"), now: time.Now}
}

// Top returns up to ten repositories. Any failure yields an empty list and
// is logged; callers never see an error.
func (t *Trending) Top(ctx context.Context) []Item {
	if items, ok := t.fromCache(); ok {
		return items
	}
	items, err := t.scrape(ctx)
	if err != nil {
		t.logger.Warn("trending scrape failed", zap.Error(err))
		return []Item{}
	}
	t.store(items)
	return items
}

func (t *Trending) fromCache() ([]Item, bool) {
	if t.cfg.CacheTTL <= 0 {
		return nil, false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cached == nil || t.now().After(t.expires) {
		return nil, false
	}
	return append([]Item(nil), t.cached...), true
}

func (t *Trending) store(items []Item) {
	if t.cfg.CacheTTL <= 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cached = append([]Item(nil), items...)
	t.expires = t.now().Add(t.cfg.CacheTTL)
}

func (t *Trending) scrape(ctx context.Context) ([]Item, error) {
	headers := http.Header{}
	headers.Set("Accept", "text/html,application/xhtml+xml")
	resp, err := t.getter.Fetch(ctx, catalog.FetchRequest{URL: t.cfg.URL, Headers: headers, Timeout: t.cfg.Timeout})
	if err != nil {
		return nil, fmt.Errorf("fetch trending: %w", err)
	}
	base, err := url.Parse(resp.URL)
	if err != nil || resp.URL == "" {
		base, _ = url.Parse(t.cfg.URL)
	}
	return Parse(resp.Body, base)
}

// Parse extracts trending items from page markup; relative repository links
// resolve against base.
func Parse(body []byte, base *url.URL) ([]Item, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse trending html: %w", err)
	}
	items := make([]Item, 0, maxItems)
	doc.Find("article.Box-row").EachWithBreak(func(_ int, row *goquery.Selection) bool {
		link := row.Find("h2 a").First()
		if link.Length() == 0 {
			return true
		}
		href, _ := link.Attr("href")
		items = append(items, Item{
			Title:       strings.Join(strings.Fields(link.Text()), ""),
			Description: strings.TrimSpace(row.Find("p").First().Text()),
			URL:         resolve(base, href),
			Language:    strings.TrimSpace(row.Find("[itemprop='programmingLanguage']").First().Text()),
		})
		return len(items) < maxItems
	})
	return items, nil
}

func resolve(base *url.URL, href string) string {
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return href
	}
	if base == nil {
		return ref.String()
	}
	return base.ResolveReference(ref).String()
}
