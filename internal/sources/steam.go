package sources

import (
	"context"

	"github.com/JakeFAU/toolshelf/internal/catalog"
)

// SteamInstallerURL is the client installer on Valve's Akamai CDN.
const SteamInstallerURL = "https://cdn.akamai.steamstatic.com/client/installer/SteamSetup.exe"

// Steam has no version feed; it always reports the rolling installer.
type Steam struct{}

// ID implements Source.
func (Steam) ID() string { return "fetch_steam" }

// Fetch implements Source.
func (Steam) Fetch(context.Context) (catalog.SourceResult, error) {
	return catalog.SourceResult{
		Name:                "Steam",
		Category:            "Games",
		Version:             latest,
		HomepageURL:         "https://store.steampowered.com/",
		OriginalDownloadURL: SteamInstallerURL,
	}, nil
}
