package sources

import (
	"context"

	"github.com/JakeFAU/toolshelf/internal/catalog"
)

// VSCodeUpdateURL is the vendor update API for the Windows user installer.
const VSCodeUpdateURL = "https://update.code.visualstudio.com/api/update/win32-x64-user/stable/latest"

// VSCode reads the editor's update API.
type VSCode struct {
	client
	Endpoint string
}

// NewVSCode builds the fetch_vscode source.
func NewVSCode(getter catalog.Getter, cfg Config) *VSCode {
	return &VSCode{client: newClient(getter, cfg.Timeout), Endpoint: VSCodeUpdateURL}
}

// ID implements Source.
func (s *VSCode) ID() string { return "fetch_vscode" }

// Fetch implements Source.
func (s *VSCode) Fetch(ctx context.Context) (catalog.SourceResult, error) {
	var payload struct {
		Name string `json:"name"`
		URL  string `json:"url"`
	}
	if err := s.getJSON(ctx, s.Endpoint, &payload); err != nil {
		return catalog.SourceResult{}, err
	}
	if payload.URL == "" {
		return catalog.SourceResult{}, ErrNoResult
	}
	return catalog.SourceResult{
		Name:                "VS Code",
		Category:            "Programming",
		Version:             firstNonEmpty(payload.Name, latest),
		HomepageURL:         "https://code.visualstudio.com/",
		OriginalDownloadURL: payload.URL,
	}, nil
}
