package sources

import (
	"context"
	"strings"

	"github.com/JakeFAU/toolshelf/internal/catalog"
)

// NodeIndexURL lists every Node.js release, newest first.
const NodeIndexURL = "https://nodejs.org/dist/index.json"

// DefaultVersionCap is the per-group limit on ranked version lists.
const DefaultVersionCap = 5

// NodeJS builds a ranked LTS/Current list from the release index.
type NodeJS struct {
	client
	Endpoint      string
	DistBase      string
	Cap           int
	SkipTLSVerify bool
}

// NewNodeJS builds the fetch_nodejs source.
func NewNodeJS(getter catalog.Getter, cfg Config) *NodeJS {
	return &NodeJS{
		client:        newClient(getter, cfg.Timeout),
		Endpoint:      NodeIndexURL,
		DistBase:      "https://nodejs.org/dist",
		Cap:           cfg.versionCap(),
		SkipTLSVerify: cfg.NodeSkipTLSVerify,
	}
}

// ID implements Source.
func (s *NodeJS) ID() string { return "fetch_nodejs" }

type nodeRelease struct {
	Version string `json:"version"`
	// LTS is false for Current releases and the codename string otherwise.
	LTS any `json:"lts"`
}

func (r nodeRelease) isLTS() bool {
	switch v := r.LTS.(type) {
	case bool:
		return v
	case string:
		return v != ""
	default:
		return false
	}
}

// Fetch implements Source.
func (s *NodeJS) Fetch(ctx context.Context) (catalog.SourceResult, error) {
	var opts []requestOption
	if s.SkipTLSVerify {
		opts = append(opts, insecure())
	}
	var releases []nodeRelease
	if err := s.getJSON(ctx, s.Endpoint, &releases, opts...); err != nil {
		return catalog.SourceResult{}, err
	}

	var lts, current []catalog.VersionEntry
	for _, rel := range releases {
		ver := strings.TrimLeft(strings.TrimSpace(rel.Version), "v")
		if ver == "" {
			continue
		}
		entry := catalog.VersionEntry{Version: "v" + ver, URL: s.installerURL(ver)}
		if rel.isLTS() {
			if len(lts) < s.Cap {
				entry.Group = catalog.GroupLTS
				lts = append(lts, entry)
			}
			continue
		}
		if len(current) < s.Cap {
			entry.Group = catalog.GroupCurrent
			current = append(current, entry)
		}
	}

	list := append(lts, current...)
	version, download := latest, "https://nodejs.org/en/download/"
	if primary, ok := primaryOf(lts, current); ok {
		version = strings.TrimPrefix(primary.Version, "v")
		download = primary.URL
	}
	return catalog.SourceResult{
		Name:                "Node.js",
		Category:            "Programming",
		Version:             version,
		HomepageURL:         "https://nodejs.org/",
		OriginalDownloadURL: download,
		VersionList:         list,
	}, nil
}

func (s *NodeJS) installerURL(ver string) string {
	return strings.TrimRight(s.DistBase, "/") + "/v" + ver + "/node-v" + ver + "-x64.msi"
}

// primaryOf returns the first entry of the highest-priority non-empty group.
func primaryOf(groups ...[]catalog.VersionEntry) (catalog.VersionEntry, bool) {
	for _, group := range groups {
		if len(group) > 0 {
			return group[0], true
		}
	}
	return catalog.VersionEntry{}, false
}
