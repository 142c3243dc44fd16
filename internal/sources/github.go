package sources

import (
	"context"
	"fmt"
	"strings"

	"github.com/JakeFAU/toolshelf/internal/catalog"
)

// DefaultGitHubAPI is the public GitHub REST endpoint.
const DefaultGitHubAPI = "https://api.github.com"

// GitHubRelease reads the latest release of a repository and picks one asset.
type GitHubRelease struct {
	client
	SourceID    string
	Name        string
	Category    string
	HomepageURL string
	Repo        string
	APIBase     string
	Token       string
	// TrimTag turns a tag name into a version.
	TrimTag func(tag string) string
	// MatchAsset selects the installer among the release assets.
	MatchAsset func(name string) bool
	// FallbackURL is used when no asset matches; empty means the source is absent.
	FallbackURL string
}

type githubRelease struct {
	TagName string `json:"tag_name"`
	Assets  []struct {
		Name               string `json:"name"`
		BrowserDownloadURL string `json:"browser_download_url"`
	} `json:"assets"`
}

// NewGit builds the fetch_git source for git-for-windows.
func NewGit(getter catalog.Getter, cfg Config) *GitHubRelease {
	return &GitHubRelease{
		client:      newClient(getter, cfg.Timeout),
		SourceID:    "fetch_git",
		Name:        "Git",
		Category:    "Programming",
		HomepageURL: "https://git-scm.com/",
		Repo:        "git-for-windows/git",
		APIBase:     cfg.githubAPI(),
		Token:       cfg.GitHubToken,
		TrimTag: func(tag string) string {
			return strings.TrimPrefix(tag, "v")
		},
		MatchAsset: func(name string) bool {
			return strings.HasSuffix(name, "64-bit.exe") && !strings.Contains(name, "busybox")
		},
		FallbackURL: "https://git-scm.com/download/win",
	}
}

// NewOBS builds the fetch_obs source for OBS Studio.
func NewOBS(getter catalog.Getter, cfg Config) *GitHubRelease {
	return &GitHubRelease{
		client:      newClient(getter, cfg.Timeout),
		SourceID:    "fetch_obs",
		Name:        "OBS Studio",
		Category:    "Media",
		HomepageURL: "https://obsproject.com/",
		Repo:        "obsproject/obs-studio",
		APIBase:     cfg.githubAPI(),
		Token:       cfg.GitHubToken,
		TrimTag: func(tag string) string {
			return strings.TrimSpace(strings.TrimPrefix(tag, "release/"))
		},
		MatchAsset: func(name string) bool {
			return strings.HasSuffix(name, "Full-Installer-x64.exe")
		},
	}
}

// ID implements Source.
func (s *GitHubRelease) ID() string { return s.SourceID }

// Fetch implements Source.
func (s *GitHubRelease) Fetch(ctx context.Context) (catalog.SourceResult, error) {
	opts := []requestOption{withHeader("Accept", "application/vnd.github+json")}
	if s.Token != "" {
		opts = append(opts, withHeader("Authorization", "Bearer "+s.Token))
	}
	endpoint := fmt.Sprintf("%s/repos/%s/releases/latest", strings.TrimRight(s.APIBase, "/"), s.Repo)

	var release githubRelease
	if err := s.getJSON(ctx, endpoint, &release, opts...); err != nil {
		return catalog.SourceResult{}, err
	}

	download := s.FallbackURL
	for _, asset := range release.Assets {
		if s.MatchAsset != nil && s.MatchAsset(asset.Name) {
			download = asset.BrowserDownloadURL
			break
		}
	}
	if download == "" {
		return catalog.SourceResult{}, fmt.Errorf("%s: no matching asset: %w", s.Repo, ErrNoResult)
	}

	version := release.TagName
	if s.TrimTag != nil {
		version = s.TrimTag(version)
	}
	return catalog.SourceResult{
		Name:                s.Name,
		Category:            s.Category,
		Version:             firstNonEmpty(version, latest),
		HomepageURL:         s.HomepageURL,
		OriginalDownloadURL: download,
	}, nil
}
