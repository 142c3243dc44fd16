// Package icon resolves a site's favicon through three progressively more
// expensive tiers: a plain HTTP fetch, a headless render, and public favicon
// APIs.
package icon

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/toolshelf/internal/catalog"
	"github.com/JakeFAU/toolshelf/internal/metrics"
)

// Tier labels used in logs and metrics.
const (
	TierFetch    = "fetch"
	TierRender   = "render"
	TierFallback = "fallback"
)

var errNoIcon = errors.New("no icon")

// DefaultFallbackAPIs are queried in order once both local tiers miss.
// {url} expands to the query-escaped page URL and {host} to its hostname.
func DefaultFallbackAPIs() []string {
	return []string{
		"https://api.uomg.com/api/get.favicon?url={url}",
		"https://www.google.com/s2/favicons?sz=64&domain_url={url}",
		"https://icons.duckduckgo.com/ip3/{host}.ico",
	}
}

// Renderer locates and downloads an icon from a fully rendered page.
type Renderer interface {
	FindIcon(ctx context.Context, pageURL string) (catalog.Icon, error)
}

// Config tunes tier budgets and the fallback list.
type Config struct {
	PageTimeout      time.Duration `mapstructure:"page_timeout"`
	CandidateTimeout time.Duration `mapstructure:"candidate_timeout"`
	FallbackTimeout  time.Duration `mapstructure:"fallback_timeout"`
	FallbackAPIs     []string      `mapstructure:"fallback_apis"`
}

func (c Config) withDefaults() Config {
	if c.PageTimeout <= 0 {
		c.PageTimeout = 5 * time.Second
	}
	if c.CandidateTimeout <= 0 {
		c.CandidateTimeout = 3 * time.Second
	}
	if c.FallbackTimeout <= 0 {
		c.FallbackTimeout = 5 * time.Second
	}
	if c.FallbackAPIs == nil {
		c.FallbackAPIs = DefaultFallbackAPIs()
	}
	return c
}

// Resolver runs the tier cascade. A nil renderer skips the render tier.
type Resolver struct {
	getter   catalog.Getter
	renderer Renderer
	cfg      Config
	logger   *zap.Logger
}

// New builds a Resolver.
func New(getter catalog.Getter, renderer Renderer, cfg Config, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{
		getter:   getter,
		renderer: renderer,
		cfg:      cfg.withDefaults(),
		logger:   logger.Named("icon"),
	}
}

// Normalize trims rawURL and adds an https scheme when none is present.
func Normalize(rawURL string) (*url.URL, bool) {
	trimmed := strings.TrimSpace(rawURL)
	if trimmed == "" {
		return nil, false
	}
	if !strings.Contains(trimmed, "://") {
		trimmed = "https://" + trimmed
	}
	u, err := url.Parse(trimmed)
	if err != nil || u.Host == "" {
		return nil, false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, false
	}
	return u, true
}

// Resolve returns the first icon any tier produces. It never fails; a miss
// is reported as ok == false.
func (r *Resolver) Resolve(ctx context.Context, rawURL string) (catalog.Icon, bool) {
	target, ok := Normalize(rawURL)
	if !ok {
		return catalog.Icon{}, false
	}
	logger := r.logger.With(zap.String("url", target.String()))

	tiers := []struct {
		name string
		run  func(context.Context, *url.URL) (catalog.Icon, error)
	}{
		{TierFetch, r.fetchTier},
		{TierRender, r.renderTier},
		{TierFallback, r.fallbackTier},
	}
	for _, tier := range tiers {
		if tier.name == TierRender && r.renderer == nil {
			continue
		}
		icon, err := r.runTier(ctx, tier.name, target, tier.run)
		if err == nil {
			metrics.ObserveIconTier(tier.name, metrics.OutcomeSuccess)
			logger.Debug("icon resolved", zap.String("tier", tier.name), zap.String("source", icon.SourceURL))
			return icon, true
		}
		metrics.ObserveIconTier(tier.name, metrics.OutcomeFailure)
		logger.Debug("icon tier missed", zap.String("tier", tier.name), zap.Error(err))
		if ctx.Err() != nil {
			break
		}
	}
	return catalog.Icon{}, false
}

// runTier isolates a tier so a panic inside it counts as a miss.
func (r *Resolver) runTier(
	ctx context.Context,
	name string,
	target *url.URL,
	run func(context.Context, *url.URL) (catalog.Icon, error),
) (icon catalog.Icon, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("%s tier panicked: %v", name, rec)
		}
	}()
	return run(ctx, target)
}

// fetchTier reads the page's icon links and tries them, then /favicon.ico.
func (r *Resolver) fetchTier(ctx context.Context, target *url.URL) (catalog.Icon, error) {
	var candidates []string
	page, err := r.get(ctx, target.String(), r.cfg.PageTimeout)
	if err != nil {
		r.logger.Debug("page fetch failed", zap.String("url", target.String()), zap.Error(err))
		candidates = append(candidates, faviconURL(target))
	} else {
		base := target
		if final, parseErr := url.Parse(page.URL); parseErr == nil && final.Host != "" {
			base = final
		}
		if href := linkHref(page.Body); href != "" {
			if ref, refErr := base.Parse(href); refErr == nil {
				candidates = append(candidates, ref.String())
			}
		}
		if fallback := faviconURL(base); len(candidates) == 0 || candidates[0] != fallback {
			candidates = append(candidates, fallback)
		}
	}

	for _, candidate := range candidates {
		resp, err := r.get(ctx, candidate, r.cfg.CandidateTimeout)
		if err != nil {
			continue
		}
		if icon, ok := acceptImage(resp, candidate, true); ok {
			return icon, nil
		}
	}
	return catalog.Icon{}, errNoIcon
}

func (r *Resolver) renderTier(ctx context.Context, target *url.URL) (catalog.Icon, error) {
	icon, err := r.renderer.FindIcon(ctx, target.String())
	if err != nil {
		return catalog.Icon{}, fmt.Errorf("render: %w", err)
	}
	if len(icon.Data) == 0 || icon.ContentType == "" {
		return catalog.Icon{}, errNoIcon
	}
	return icon, nil
}

func (r *Resolver) fallbackTier(ctx context.Context, target *url.URL) (catalog.Icon, error) {
	replacer := strings.NewReplacer(
		"{url}", url.QueryEscape(target.String()),
		"{host}", target.Hostname(),
	)
	for _, tmpl := range r.cfg.FallbackAPIs {
		endpoint := replacer.Replace(tmpl)
		resp, err := r.get(ctx, endpoint, r.cfg.FallbackTimeout)
		if err != nil {
			continue
		}
		if icon, ok := acceptImage(resp, endpoint, false); ok {
			return icon, nil
		}
	}
	return catalog.Icon{}, errNoIcon
}

func (r *Resolver) get(ctx context.Context, rawURL string, timeout time.Duration) (catalog.FetchResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	resp, err := r.getter.Fetch(ctx, catalog.FetchRequest{
		URL:     rawURL,
		Headers: http.Header{"Accept": {"text/html,image/avif,image/webp,image/*,*/*;q=0.8"}},
		Timeout: timeout,
	})
	if err != nil {
		return catalog.FetchResponse{}, fmt.Errorf("get %s: %w", rawURL, err)
	}
	return resp, nil
}

// acceptImage applies the image test: a non-empty body with an image content
// type, or (when allowICO is set) any body served from a .ico path.
func acceptImage(resp catalog.FetchResponse, requested string, allowICO bool) (catalog.Icon, bool) {
	if len(resp.Body) == 0 {
		return catalog.Icon{}, false
	}
	contentType := mediaType(resp.ContentType())
	switch {
	case strings.Contains(contentType, "image"):
	case allowICO && (hasICOPath(requested) || hasICOPath(resp.URL)):
		contentType = "image/x-icon"
	default:
		return catalog.Icon{}, false
	}
	return catalog.Icon{
		ContentType: contentType,
		Data:        append([]byte(nil), resp.Body...),
		SourceURL:   firstNonEmpty(resp.URL, requested),
	}, true
}

// linkPriority lists rel values in the order they are preferred.
var linkPriority = [][]string{
	{"icon"},
	{"apple-touch-icon"},
	{"shortcut", "icon"},
}

// linkHref returns the href of the highest-priority icon link in body.
func linkHref(body []byte) string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return ""
	}
	links := doc.Find("link[rel][href]")
	for _, want := range linkPriority {
		var href string
		links.EachWithBreak(func(_ int, link *goquery.Selection) bool {
			rel, _ := link.Attr("rel")
			if !relMatches(rel, want) {
				return true
			}
			href, _ = link.Attr("href")
			href = strings.TrimSpace(href)
			return href == ""
		})
		if href != "" {
			return href
		}
	}
	return ""
}

func relMatches(rel string, want []string) bool {
	tokens := strings.Fields(strings.ToLower(rel))
	if len(tokens) != len(want) {
		return false
	}
	for _, w := range want {
		found := false
		for _, tok := range tokens {
			if tok == w {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func faviconURL(u *url.URL) string {
	return (&url.URL{Scheme: u.Scheme, Host: u.Host, Path: "/favicon.ico"}).String()
}

func hasICOPath(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return strings.HasSuffix(strings.ToLower(u.Path), ".ico")
}

func mediaType(contentType string) string {
	if i := strings.IndexByte(contentType, ';'); i >= 0 {
		contentType = contentType[:i]
	}
	return strings.TrimSpace(contentType)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
