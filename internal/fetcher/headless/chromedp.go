// Package headless renders pages in headless Chrome to recover icons that
// plain HTTP fetches cannot reach.
package headless

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"

	"github.com/JakeFAU/toolshelf/internal/catalog"
)

// ErrNoIcon is returned when the rendered page yields no usable image.
var ErrNoIcon = errors.New("headless: no icon found")

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
	"(KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

// Config controls the behavior of the headless browser.
type Config struct {
	MaxParallel        int           `mapstructure:"max_parallel"`
	UserAgent          string        `mapstructure:"user_agent"`
	NavigationTimeout  time.Duration `mapstructure:"navigation_timeout"`
	NetworkIdleTimeout time.Duration `mapstructure:"network_idle_timeout"`
	ExecPath           string        `mapstructure:"exec_path"`
	WindowWidth        int           `mapstructure:"window_width"`
	WindowHeight       int           `mapstructure:"window_height"`
}

// Browser launches one isolated Chrome per icon lookup.
type Browser struct {
	cfg     Config
	limiter chan struct{}
}

// NewChromedp creates a headless icon browser backed by chromedp.
func NewChromedp(cfg Config) (*Browser, error) {
	if cfg.MaxParallel < 0 {
		return nil, fmt.Errorf("max parallel must be >= 0")
	}
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = 15 * time.Second
	}
	if cfg.NetworkIdleTimeout <= 0 {
		cfg.NetworkIdleTimeout = 3 * time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}
	if cfg.WindowWidth <= 0 || cfg.WindowHeight <= 0 {
		cfg.WindowWidth, cfg.WindowHeight = 1920, 1080
	}
	var limiter chan struct{}
	if cfg.MaxParallel > 0 {
		limiter = make(chan struct{}, cfg.MaxParallel)
	}
	return &Browser{cfg: cfg, limiter: limiter}, nil
}

// FindIcon opens pageURL in a fresh browser, locates the best icon link and
// downloads it from inside the page so the session's cookies apply.
func (b *Browser) FindIcon(ctx context.Context, pageURL string) (catalog.Icon, error) {
	if err := b.acquire(ctx); err != nil {
		return catalog.Icon{}, err
	}
	defer b.release()

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, b.allocatorOptions()...)
	defer allocCancel()

	taskCtx, taskCancel := chromedp.NewContext(allocCtx)
	defer taskCancel()

	budget := b.cfg.NavigationTimeout + b.cfg.NetworkIdleTimeout + 10*time.Second
	taskCtx, cancel := context.WithTimeout(taskCtx, budget)
	defer cancel()

	tracker := newInflightTracker()
	chromedp.ListenTarget(taskCtx, tracker.captureEvent)

	if err := chromedp.Run(taskCtx, b.stealthAction()); err != nil {
		return catalog.Icon{}, fmt.Errorf("chromedp setup: %w", err)
	}
	if err := b.navigate(taskCtx, pageURL); err != nil {
		return catalog.Icon{}, err
	}
	// Late-loading icons are common; a page that never goes quiet is still usable.
	_ = tracker.waitQuiet(taskCtx, b.cfg.NetworkIdleTimeout)

	var href string
	if err := chromedp.Run(taskCtx, chromedp.Evaluate(iconHrefScript, &href)); err != nil {
		return catalog.Icon{}, fmt.Errorf("locate icon link: %w", err)
	}
	if href == "" {
		return catalog.Icon{}, ErrNoIcon
	}

	var payload fetchedIcon
	fetchJS, err := inPageFetchScript(href)
	if err != nil {
		return catalog.Icon{}, err
	}
	awaitPromise := func(p *runtime.EvaluateParams) *runtime.EvaluateParams {
		return p.WithAwaitPromise(true)
	}
	if err := chromedp.Run(taskCtx, chromedp.Evaluate(fetchJS, &payload, awaitPromise)); err != nil {
		return catalog.Icon{}, fmt.Errorf("fetch icon in page: %w", err)
	}
	return payload.decode(href)
}

func (b *Browser) navigate(ctx context.Context, pageURL string) error {
	navCtx, cancel := context.WithTimeout(ctx, b.cfg.NavigationTimeout)
	defer cancel()
	if err := chromedp.Run(navCtx,
		chromedp.Navigate(pageURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
	); err != nil {
		return fmt.Errorf("chromedp navigate: %w", err)
	}
	return nil
}

func (b *Browser) allocatorOptions() []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.UserAgent(b.cfg.UserAgent),
		chromedp.WindowSize(b.cfg.WindowWidth, b.cfg.WindowHeight),
	)
	if b.cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(b.cfg.ExecPath))
	}
	return opts
}

func (b *Browser) stealthAction() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if _, err := page.AddScriptToEvaluateOnNewDocument(maskWebdriverScript).Do(ctx); err != nil {
			return fmt.Errorf("mask webdriver: %w", err)
		}
		if err := emulation.SetUserAgentOverride(b.cfg.UserAgent).Do(ctx); err != nil {
			return fmt.Errorf("set user-agent: %w", err)
		}
		width, height := int64(b.cfg.WindowWidth), int64(b.cfg.WindowHeight)
		if err := emulation.SetDeviceMetricsOverride(width, height, 1, false).Do(ctx); err != nil {
			return fmt.Errorf("set viewport: %w", err)
		}
		return nil
	})
}

func (b *Browser) acquire(ctx context.Context) error {
	if b.limiter == nil {
		return nil
	}
	select {
	case b.limiter <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("headless slot wait canceled: %w", ctx.Err())
	}
}

func (b *Browser) release() {
	if b.limiter == nil {
		return
	}
	select {
	case <-b.limiter:
	default:
	}
}

const maskWebdriverScript = `Object.defineProperty(navigator, 'webdriver', {get: () => undefined});`

// iconHrefScript mirrors the tier-one priority: rel="icon", then
// apple-touch-icon, then "shortcut icon". It yields "" when the rendered
// page declares none; the root favicon is tier one's job.
const iconHrefScript = `(() => {
  const links = Array.from(document.querySelectorAll('link[rel][href]'));
  const wanted = [["icon"], ["apple-touch-icon"], ["shortcut", "icon"]];
  for (const want of wanted) {
    for (const link of links) {
      const tokens = link.getAttribute('rel').toLowerCase().split(/\s+/).filter(Boolean);
      if (tokens.length === want.length && want.every(t => tokens.includes(t))) {
        return link.href;
      }
    }
  }
  return "";
})()`

func inPageFetchScript(href string) (string, error) {
	quoted, err := json.Marshal(href)
	if err != nil {
		return "", fmt.Errorf("encode icon href: %w", err)
	}
	return `(async (href) => {
  const resp = await fetch(href, {credentials: "include"});
  if (!resp.ok) {
    throw new Error("status " + resp.status);
  }
  const buf = new Uint8Array(await resp.arrayBuffer());
  let bin = "";
  for (let i = 0; i < buf.length; i += 0x8000) {
    bin += String.fromCharCode.apply(null, buf.subarray(i, i + 0x8000));
  }
  return {type: resp.headers.get("content-type") || "", data: btoa(bin)};
})(` + string(quoted) + `)`, nil
}

type fetchedIcon struct {
	Type string `json:"type"`
	Data string `json:"data"`
}

func (f fetchedIcon) decode(href string) (catalog.Icon, error) {
	data, err := base64.StdEncoding.DecodeString(f.Data)
	if err != nil {
		return catalog.Icon{}, fmt.Errorf("decode icon payload: %w", err)
	}
	if len(data) == 0 {
		return catalog.Icon{}, ErrNoIcon
	}
	contentType := strings.ToLower(strings.TrimSpace(f.Type))
	switch {
	case strings.Contains(contentType, "image"):
	case hasICOPath(href):
		contentType = "image/x-icon"
	default:
		sniffed := http.DetectContentType(data)
		if !strings.HasPrefix(sniffed, "image/") {
			return catalog.Icon{}, ErrNoIcon
		}
		contentType = sniffed
	}
	return catalog.Icon{ContentType: contentType, Data: data, SourceURL: href}, nil
}

func hasICOPath(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return strings.HasSuffix(strings.ToLower(u.Path), ".ico")
}

// inflightTracker counts outstanding network requests so the session can
// wait for the page to go quiet.
type inflightTracker struct {
	mu           sync.Mutex
	inflight     map[network.RequestID]struct{}
	lastActivity time.Time
}

func newInflightTracker() *inflightTracker {
	return &inflightTracker{
		inflight:     make(map[network.RequestID]struct{}),
		lastActivity: time.Now(),
	}
}

func (t *inflightTracker) captureEvent(ev any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch e := ev.(type) {
	case *network.EventRequestWillBeSent:
		t.inflight[e.RequestID] = struct{}{}
	case *network.EventLoadingFinished:
		delete(t.inflight, e.RequestID)
	case *network.EventLoadingFailed:
		delete(t.inflight, e.RequestID)
	default:
		return
	}
	t.lastActivity = time.Now()
}

func (t *inflightTracker) quiet(now time.Time, settle time.Duration) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.inflight) == 0 && now.Sub(t.lastActivity) >= settle
}

// waitQuiet returns nil once no requests have been outstanding for a short
// settle period, or an error when limit elapses first.
func (t *inflightTracker) waitQuiet(ctx context.Context, limit time.Duration) error {
	const settle = 500 * time.Millisecond
	deadline := time.NewTimer(limit)
	defer deadline.Stop()
	tick := time.NewTicker(100 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("network idle wait: %w", ctx.Err())
		case <-deadline.C:
			return errors.New("network idle wait: timed out")
		case now := <-tick.C:
			if t.quiet(now, settle) {
				return nil
			}
		}
	}
}
