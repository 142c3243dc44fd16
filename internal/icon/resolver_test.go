package icon

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/toolshelf/internal/catalog"
)

var pngBytes = []byte("\x89PNG\r\n\x1a\nfake")

type stubGetter struct {
	mu        sync.Mutex
	responses map[string]catalog.FetchResponse
	calls     map[string]int
}

func newStubGetter() *stubGetter {
	return &stubGetter{
		responses: make(map[string]catalog.FetchResponse),
		calls:     make(map[string]int),
	}
}

func (s *stubGetter) serve(rawURL, contentType string, body []byte) *stubGetter {
	headers := http.Header{}
	if contentType != "" {
		headers.Set("Content-Type", contentType)
	}
	s.responses[rawURL] = catalog.FetchResponse{URL: rawURL, StatusCode: http.StatusOK, Headers: headers, Body: body}
	return s
}

func (s *stubGetter) Fetch(_ context.Context, req catalog.FetchRequest) (catalog.FetchResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[req.URL]++
	resp, ok := s.responses[req.URL]
	if !ok {
		return catalog.FetchResponse{}, errors.New("404 not found")
	}
	return resp, nil
}

func (s *stubGetter) callsWithPrefix(prefix string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for u, n := range s.calls {
		if strings.HasPrefix(u, prefix) {
			total += n
		}
	}
	return total
}

type stubRenderer struct {
	mu    sync.Mutex
	calls int
	icon  catalog.Icon
	err   error
	panic bool
}

func (s *stubRenderer) FindIcon(context.Context, string) (catalog.Icon, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if s.panic {
		panic("browser crashed")
	}
	return s.icon, s.err
}

const fallbackPrefix = "https://favicons.example.net/"

func testConfig() Config {
	return Config{FallbackAPIs: []string{
		fallbackPrefix + "a?url={url}",
		fallbackPrefix + "b/{host}.ico",
	}}
}

func TestResolve_FetchTierShortCircuits(t *testing.T) {
	t.Parallel()

	getter := newStubGetter().
		serve("https://example.com", "text/html; charset=utf-8",
			[]byte(`<html><head><link rel="icon" href="/static/icon.png"></head></html>`)).
		serve("https://example.com/static/icon.png", "image/png", pngBytes)
	renderer := &stubRenderer{}

	icon, ok := New(getter, renderer, testConfig(), nil).Resolve(context.Background(), "example.com")

	require.True(t, ok)
	require.Equal(t, "image/png", icon.ContentType)
	require.True(t, strings.HasPrefix(icon.DataURI(), "data:image/png;base64,"))
	require.Zero(t, renderer.calls)
	require.Zero(t, getter.callsWithPrefix(fallbackPrefix))
	require.Zero(t, getter.calls["https://example.com/favicon.ico"])
}

func TestResolve_IconPriority(t *testing.T) {
	t.Parallel()

	page := `<html><head>
<link rel="shortcut icon" href="/shortcut.ico">
<link rel="Apple-Touch-Icon" href="/apple.png">
<link rel="stylesheet" href="/site.css">
</head></html>`
	getter := newStubGetter().
		serve("https://example.com", "text/html", []byte(page)).
		serve("https://example.com/apple.png", "image/png", pngBytes).
		serve("https://example.com/shortcut.ico", "image/x-icon", []byte{0, 0, 1, 0})

	icon, ok := New(getter, nil, testConfig(), nil).Resolve(context.Background(), "https://example.com")

	require.True(t, ok)
	require.Equal(t, "https://example.com/apple.png", icon.SourceURL)
	require.Zero(t, getter.calls["https://example.com/shortcut.ico"])
}

func TestResolve_HrefResolvedAgainstFinalURL(t *testing.T) {
	t.Parallel()

	getter := newStubGetter().serve("https://example.com/favicon.ico", "image/x-icon", []byte{0, 0, 1, 0})
	getter.responses["https://example.com"] = catalog.FetchResponse{
		URL:        "https://www.example.com/home/",
		StatusCode: http.StatusOK,
		Headers:    http.Header{"Content-Type": {"text/html"}},
		Body:       []byte(`<link rel="icon" href="img/i.png">`),
	}
	getter.serve("https://www.example.com/home/img/i.png", "image/png", pngBytes)

	icon, ok := New(getter, nil, testConfig(), nil).Resolve(context.Background(), "example.com")

	require.True(t, ok)
	require.Equal(t, "https://www.example.com/home/img/i.png", icon.SourceURL)
}

func TestResolve_PageFailureFallsBackToFaviconICO(t *testing.T) {
	t.Parallel()

	getter := newStubGetter().serve("https://example.com/favicon.ico", "", []byte{0, 0, 1, 0})
	renderer := &stubRenderer{}

	icon, ok := New(getter, renderer, testConfig(), nil).Resolve(context.Background(), "  example.com  ")

	require.True(t, ok)
	require.Equal(t, "image/x-icon", icon.ContentType)
	require.Equal(t, "data:image/x-icon;base64,AAABAA==", icon.DataURI())
	require.Zero(t, renderer.calls)
}

func TestResolve_NonImageCandidateRejected(t *testing.T) {
	t.Parallel()

	getter := newStubGetter().
		serve("https://example.com", "text/html", []byte(`<link rel="icon" href="/icon">`)).
		serve("https://example.com/icon", "text/html", []byte("<html>login</html>")).
		serve("https://example.com/favicon.ico", "image/vnd.microsoft.icon", []byte{0, 0, 1, 0})

	icon, ok := New(getter, nil, testConfig(), nil).Resolve(context.Background(), "https://example.com")

	require.True(t, ok)
	require.Equal(t, "image/vnd.microsoft.icon", icon.ContentType)
}

func TestResolve_RenderTier(t *testing.T) {
	t.Parallel()

	getter := newStubGetter().serve("https://example.com", "text/html", []byte(`<html></html>`))
	renderer := &stubRenderer{icon: catalog.Icon{ContentType: "image/png", Data: pngBytes, SourceURL: "https://example.com/js.png"}}

	icon, ok := New(getter, renderer, testConfig(), nil).Resolve(context.Background(), "https://example.com")

	require.True(t, ok)
	require.Equal(t, "https://example.com/js.png", icon.SourceURL)
	require.Equal(t, 1, renderer.calls)
	require.Zero(t, getter.callsWithPrefix(fallbackPrefix))
	require.Equal(t, 1, getter.calls["https://example.com/favicon.ico"])
}

func TestResolve_FallbackTier(t *testing.T) {
	t.Parallel()

	getter := newStubGetter().
		serve(fallbackPrefix+"a?url=https%3A%2F%2Fexample.com", "text/plain", []byte("not found")).
		serve(fallbackPrefix+"b/example.com.ico", "image/png", pngBytes)
	renderer := &stubRenderer{err: errors.New("chrome not installed")}

	icon, ok := New(getter, renderer, testConfig(), nil).Resolve(context.Background(), "example.com")

	require.True(t, ok)
	require.Equal(t, "image/png", icon.ContentType)
	require.Equal(t, 1, renderer.calls)
	require.Equal(t, 2, getter.callsWithPrefix(fallbackPrefix))
}

func TestResolve_AllTiersFail(t *testing.T) {
	t.Parallel()

	getter := newStubGetter()
	renderer := &stubRenderer{panic: true}

	_, ok := New(getter, renderer, testConfig(), nil).Resolve(context.Background(), "example.com")

	require.False(t, ok)
	require.Equal(t, 1, renderer.calls)
	require.Equal(t, 2, getter.callsWithPrefix(fallbackPrefix))
}

func TestResolve_EmptyInput(t *testing.T) {
	t.Parallel()

	getter := newStubGetter()
	_, ok := New(getter, nil, testConfig(), nil).Resolve(context.Background(), "   ")
	require.False(t, ok)
	require.Empty(t, getter.calls)
}

func TestResolve_DefaultFallbackAPIs(t *testing.T) {
	t.Parallel()

	getter := newStubGetter().serve("https://icons.duckduckgo.com/ip3/example.com.ico", "image/x-icon", []byte{0, 0, 1, 0})

	_, ok := New(getter, nil, Config{}, nil).Resolve(context.Background(), "example.com")

	require.True(t, ok)
	require.Equal(t, 1, getter.calls["https://api.uomg.com/api/get.favicon?url=https%3A%2F%2Fexample.com"])
	require.Equal(t, 1, getter.calls["https://www.google.com/s2/favicons?sz=64&domain_url=https%3A%2F%2Fexample.com"])
}

func TestNormalize(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		in   string
		want string
		ok   bool
	}{
		{"example.com", "https://example.com", true},
		{" http://example.com/path ", "http://example.com/path", true},
		{"https://example.com", "https://example.com", true},
		{"", "", false},
		{"ftp://example.com", "", false},
		{"https://", "", false},
	}
	for _, tc := range testCases {
		got, ok := Normalize(tc.in)
		require.Equal(t, tc.ok, ok, tc.in)
		if ok {
			require.Equal(t, tc.want, got.String())
		}
	}
}

func TestLinkHref(t *testing.T) {
	t.Parallel()

	require.Equal(t, "/a.png", linkHref([]byte(`<link rel="ICON" href="/a.png"><link rel="apple-touch-icon" href="/b.png">`)))
	require.Equal(t, "/s.ico", linkHref([]byte(`<link rel="shortcut icon" href="/s.ico">`)))
	require.Empty(t, linkHref([]byte(`<link rel="icon" href="  "><link rel="preload" href="/x">`)))
}
