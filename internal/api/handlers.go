package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/toolshelf/internal/catalog"
	"github.com/JakeFAU/toolshelf/internal/dispatcher"
	"github.com/JakeFAU/toolshelf/internal/id/uuid"
	"github.com/JakeFAU/toolshelf/internal/news"
)

const maxBodyBytes = 1 << 20

// toolRequest is the curated body of PUT /v1/tools/{name}. Empty fields keep
// whatever the store already holds.
type toolRequest struct {
	Category    string                 `json:"category"`
	Description string                 `json:"description"`
	Version     string                 `json:"version"`
	HomepageURL string                 `json:"homepage_url"`
	DownloadURL string                 `json:"download_url"`
	Icon        string                 `json:"icon"`
	Versions    []catalog.VersionEntry `json:"versions"`
}

func (s *Server) listTools(w http.ResponseWriter, r *http.Request) {
	view, err := s.view(r)
	if err != nil {
		s.logger.Error("build catalog view failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load tools")
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) getTool(w http.ResponseWriter, r *http.Request) {
	view, err := s.view(r)
	if err != nil {
		s.logger.Error("build catalog view failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load tools")
		return
	}
	entry, ok := view.Find(toolName(r))
	if !ok {
		writeError(w, http.StatusNotFound, "tool not found")
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (s *Server) putTool(w http.ResponseWriter, r *http.Request) {
	name := toolName(r)
	if name == "" {
		writeError(w, http.StatusBadRequest, "tool name required")
		return
	}
	var req toolRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	ctx := r.Context()
	existing, err := s.deps.Store.FindByName(ctx, name)
	found := err == nil
	if err != nil && !errors.Is(err, catalog.ErrNotFound) {
		s.logger.Error("find tool failed", zap.String("tool", name), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load tool")
		return
	}
	if !found {
		existing = catalog.ToolRecord{Name: name}
	}
	record := s.applyToolRequest(existing, req)

	status := http.StatusOK
	if found {
		err = s.deps.Store.Update(ctx, record)
	} else {
		err = s.deps.Store.Insert(ctx, record)
		status = http.StatusCreated
	}
	if err != nil {
		s.logger.Error("save tool failed", zap.String("tool", name), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to save tool")
		return
	}
	s.logger.Info("tool saved", zap.String("tool", name), zap.Bool("created", !found))
	writeJSON(w, status, record)
}

func (s *Server) applyToolRequest(rec catalog.ToolRecord, req toolRequest) catalog.ToolRecord {
	rec.Category = firstNonEmpty(strings.TrimSpace(req.Category), rec.Category)
	rec.Description = firstNonEmpty(strings.TrimSpace(req.Description), rec.Description)
	rec.Version = firstNonEmpty(strings.TrimSpace(req.Version), rec.Version)
	rec.HomepageURL = firstNonEmpty(strings.TrimSpace(req.HomepageURL), rec.HomepageURL)
	rec.Icon = firstNonEmpty(strings.TrimSpace(req.Icon), rec.Icon)
	if download := strings.TrimSpace(req.DownloadURL); download != "" {
		rec.OriginalDownloadURL = download
		rec.AcceleratedDownloadURL = s.accelerate(download)
	}
	if len(req.Versions) > 0 {
		rec.VersionList = append([]catalog.VersionEntry(nil), req.Versions...)
	}
	rec.UpdatedAt = s.now()
	return rec
}

func (s *Server) refreshIcon(w http.ResponseWriter, r *http.Request) {
	if s.deps.Icons == nil {
		writeError(w, http.StatusServiceUnavailable, "icon resolver not configured")
		return
	}
	view, err := s.view(r)
	if err != nil {
		s.logger.Error("build catalog view failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load tools")
		return
	}
	entry, ok := view.Find(toolName(r))
	if !ok {
		writeError(w, http.StatusNotFound, "tool not found")
		return
	}
	if entry.HomepageURL == "" {
		writeError(w, http.StatusUnprocessableEntity, "tool has no homepage")
		return
	}

	icon, ok := s.deps.Icons.Resolve(r.Context(), entry.HomepageURL)
	if !ok {
		writeJSON(w, http.StatusOK, map[string]any{"icon": nil})
		return
	}
	dataURI := icon.DataURI()
	if err := s.saveIcon(r, entry, dataURI); err != nil {
		s.logger.Error("save icon failed", zap.String("tool", entry.Name), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to save icon")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"icon": dataURI})
}

func (s *Server) saveIcon(r *http.Request, entry catalog.ViewEntry, dataURI string) error {
	ctx := r.Context()
	rec, err := s.deps.Store.FindByName(ctx, entry.Name)
	switch {
	case err == nil:
		rec.Icon = dataURI
		rec.UpdatedAt = s.now()
		return s.deps.Store.Update(ctx, rec)
	case errors.Is(err, catalog.ErrNotFound):
		return s.deps.Store.Insert(ctx, catalog.ToolRecord{
			Name:        entry.Name,
			Category:    entry.Category,
			HomepageURL: entry.HomepageURL,
			Icon:        dataURI,
			UpdatedAt:   s.now(),
		})
	default:
		return err
	}
}

func (s *Server) submitCrawl(w http.ResponseWriter, r *http.Request) {
	job, err := s.deps.Crawls.Submit(r.Context())
	if err != nil {
		if errors.Is(err, dispatcher.ErrBusy) {
			writeError(w, http.StatusServiceUnavailable, "crawl queue is full")
			return
		}
		s.logger.Error("submit crawl failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to submit crawl")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{
		"job_id": job.ID,
		"status": string(job.Status),
	})
}

func (s *Server) getCrawl(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	if !uuid.Valid(jobID) {
		writeError(w, http.StatusBadRequest, "invalid job id")
		return
	}
	job, err := s.deps.Crawls.Job(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			writeError(w, http.StatusNotFound, "job not found")
			return
		}
		s.logger.Error("get job failed", zap.String("job_id", jobID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load job")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"job": job})
}

func (s *Server) favicon(w http.ResponseWriter, r *http.Request) {
	target := strings.TrimSpace(r.URL.Query().Get("url"))
	if target == "" {
		writeError(w, http.StatusBadRequest, "url query parameter required")
		return
	}
	if s.deps.Icons == nil {
		writeJSON(w, http.StatusOK, map[string]any{"icon": nil})
		return
	}
	icon, ok := s.deps.Icons.Resolve(r.Context(), target)
	if !ok {
		writeJSON(w, http.StatusOK, map[string]any{"icon": nil})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"icon": icon.DataURI()})
}

func (s *Server) refreshCatalog(w http.ResponseWriter, _ *http.Request) {
	n, err := s.deps.List.Reload()
	if err != nil {
		s.logger.Error("static list reload failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"entries": n})
}

func (s *Server) news(w http.ResponseWriter, r *http.Request) {
	items := []news.Item{}
	if s.deps.News != nil {
		if top := s.deps.News.Top(r.Context()); top != nil {
			items = top
		}
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) view(r *http.Request) (catalog.View, error) {
	stored, err := s.deps.Store.ListAll(r.Context())
	if err != nil {
		return nil, err
	}
	var entries []catalog.StaticEntry
	if s.deps.List != nil {
		entries = s.deps.List.Entries()
	}
	return catalog.BuildView(entries, stored), nil
}

func (s *Server) accelerate(rawURL string) string {
	if s.deps.Accelerator == nil {
		return rawURL
	}
	return s.deps.Accelerator.Accelerate(rawURL)
}

func (s *Server) now() time.Time {
	if s.deps.Clock == nil {
		return time.Now().UTC()
	}
	return s.deps.Clock.Now()
}

// toolName returns the decoded {name} path segment.
func toolName(r *http.Request) string {
	raw := chi.URLParam(r, "name")
	if name, err := url.PathUnescape(raw); err == nil {
		raw = name
	}
	return strings.TrimSpace(raw)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
