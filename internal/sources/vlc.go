package sources

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/JakeFAU/toolshelf/internal/catalog"
)

// VLCStatusURL serves the current Windows x64 version on its first line.
const VLCStatusURL = "http://update.videolan.org/vlc/status-win-x64"

// VLC reads VideoLAN's plain-text update status.
type VLC struct {
	client
	Endpoint string
}

// NewVLC builds the fetch_vlc source.
func NewVLC(getter catalog.Getter, cfg Config) *VLC {
	return &VLC{client: newClient(getter, cfg.Timeout), Endpoint: VLCStatusURL}
}

// ID implements Source.
func (s *VLC) ID() string { return "fetch_vlc" }

// Fetch implements Source.
func (s *VLC) Fetch(ctx context.Context) (catalog.SourceResult, error) {
	resp, err := s.get(ctx, s.Endpoint)
	if err != nil {
		return catalog.SourceResult{}, err
	}
	scanner := bufio.NewScanner(bytes.NewReader(resp.Body))
	var version string
	if scanner.Scan() {
		version = strings.TrimSpace(scanner.Text())
	}
	if version == "" || strings.ContainsAny(version, " /<") {
		return catalog.SourceResult{}, fmt.Errorf("vlc status: %w", ErrNoResult)
	}
	return catalog.SourceResult{
		Name:        "VLC Media Player",
		Category:    "Media",
		Version:     version,
		HomepageURL: "https://www.videolan.org/vlc/",
		OriginalDownloadURL: fmt.Sprintf(
			"https://get.videolan.org/vlc/%s/win64/vlc-%s-win64.exe", version, version),
	}, nil
}
