package sources

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/toolshelf/internal/catalog"
)

// PythonDownloadsURL is the Windows downloads page on python.org.
const PythonDownloadsURL = "https://www.python.org/downloads/windows/"

const pythonMaxVersions = 2

var pythonInstallerVersion = regexp.MustCompile(`python-(\d+(?:\.\d+)+[^/-]*)-amd64\.exe`)

// Python scrapes the downloads page for the newest 64-bit installers.
type Python struct {
	client
	Endpoint string
	FTPBase  string
}

// NewPython builds the fetch_python source.
func NewPython(getter catalog.Getter, cfg Config) *Python {
	return &Python{
		client:   newClient(getter, cfg.Timeout),
		Endpoint: PythonDownloadsURL,
		FTPBase:  "https://www.python.org/ftp/python",
	}
}

// ID implements Source.
func (s *Python) ID() string { return "fetch_python" }

// Fetch implements Source.
func (s *Python) Fetch(ctx context.Context) (catalog.SourceResult, error) {
	resp, err := s.get(ctx, s.Endpoint)
	if err != nil {
		return catalog.SourceResult{}, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
	if err != nil {
		return catalog.SourceResult{}, fmt.Errorf("parse python downloads: %w", err)
	}
	base, _ := url.Parse(firstNonEmpty(resp.URL, s.Endpoint))

	list := s.installers(doc, base)
	if len(list) == 0 {
		list = s.latestRelease(doc)
	}
	if len(list) == 0 {
		return catalog.SourceResult{}, fmt.Errorf("python downloads: %w", ErrNoResult)
	}
	return catalog.SourceResult{
		Name:                "Python",
		Category:            "Programming",
		Version:             list[0].Version,
		HomepageURL:         "https://www.python.org/",
		OriginalDownloadURL: list[0].URL,
		VersionList:         list,
	}, nil
}

// installers collects one 64-bit installer per major.minor, page order.
func (s *Python) installers(doc *goquery.Document, base *url.URL) []catalog.VersionEntry {
	var list []catalog.VersionEntry
	seen := make(map[string]bool)
	doc.Find("a[href]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		if !strings.Contains(a.Text(), "installer (64-bit)") {
			return true
		}
		href, _ := a.Attr("href")
		if !strings.Contains(href, "amd64.exe") {
			return true
		}
		match := pythonInstallerVersion.FindStringSubmatch(href)
		if match == nil {
			return true
		}
		ver := match[1]
		series := majorMinor(ver)
		if seen[series] {
			return true
		}
		seen[series] = true
		list = append(list, catalog.VersionEntry{Version: ver, URL: resolve(base, href)})
		return len(list) < pythonMaxVersions
	})
	return list
}

// latestRelease reads the "Latest Python 3 Release - Python X.Y.Z" link.
func (s *Python) latestRelease(doc *goquery.Document) []catalog.VersionEntry {
	var list []catalog.VersionEntry
	doc.Find("a").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		text := a.Text()
		if !strings.Contains(text, "Latest Python 3 Release") {
			return true
		}
		parts := strings.Split(text, "-")
		ver := strings.TrimSpace(strings.Replace(strings.TrimSpace(parts[len(parts)-1]), "Python ", "", 1))
		if ver == "" {
			return true
		}
		ftp := strings.TrimRight(s.FTPBase, "/")
		list = append(list, catalog.VersionEntry{
			Version: ver,
			URL:     fmt.Sprintf("%s/%s/python-%s-amd64.exe", ftp, ver, ver),
		})
		return false
	})
	return list
}

func majorMinor(ver string) string {
	parts := strings.SplitN(ver, ".", 3)
	if len(parts) < 2 {
		return ver
	}
	return parts[0] + "." + parts[1]
}

func resolve(base *url.URL, href string) string {
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil || base == nil {
		return href
	}
	return base.ResolveReference(ref).String()
}
