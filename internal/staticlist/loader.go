// Package staticlist loads the curated tool list and keeps an immutable
// snapshot of it that is only replaced by an explicit reload.
package staticlist

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/goccy/go-yaml"
	"go.uber.org/zap"

	"github.com/JakeFAU/toolshelf/internal/catalog"
	"github.com/JakeFAU/toolshelf/internal/metrics"
)

const defaultReloadDebounce = 250 * time.Millisecond

// Loader owns the current static list snapshot.
type Loader struct {
	path     string
	logger   *zap.Logger
	snapshot atomic.Pointer[[]catalog.StaticEntry]
	reloadMu sync.Mutex
	debounce time.Duration
}

// New reads path once; a missing or malformed file is an error.
func New(path string, logger *zap.Logger) (*Loader, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("static list path is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	l := &Loader{
		path:     filepath.Clean(path),
		logger:   logger.Named("staticlist"),
		debounce: defaultReloadDebounce,
	}
	if _, err := l.Reload(); err != nil {
		return nil, err
	}
	return l, nil
}

// FromEntries builds a loader around a fixed list. Reload keeps it as is.
func FromEntries(entries []catalog.StaticEntry, logger *zap.Logger) *Loader {
	if logger == nil {
		logger = zap.NewNop()
	}
	l := &Loader{logger: logger.Named("staticlist"), debounce: defaultReloadDebounce}
	cleaned := validate(entries, l.logger)
	l.snapshot.Store(&cleaned)
	return l
}

// Path returns the backing file, empty for fixed lists.
func (l *Loader) Path() string { return l.path }

// Entries returns a copy of the current snapshot.
func (l *Loader) Entries() []catalog.StaticEntry {
	current := l.snapshot.Load()
	if current == nil {
		return nil
	}
	return append([]catalog.StaticEntry(nil), (*current)...)
}

// Reload re-reads the file and swaps the snapshot. On error the previous
// snapshot stays in effect.
func (l *Loader) Reload() (int, error) {
	l.reloadMu.Lock()
	defer l.reloadMu.Unlock()

	if l.path == "" {
		return len(l.Entries()), nil
	}
	raw, err := os.ReadFile(l.path)
	if err != nil {
		return 0, fmt.Errorf("read static list: %w", err)
	}
	entries, err := Decode(raw, filepath.Ext(l.path))
	if err != nil {
		return 0, fmt.Errorf("decode static list %s: %w", l.path, err)
	}
	cleaned := validate(entries, l.logger)
	l.snapshot.Store(&cleaned)
	metrics.SetStaticListEntries(len(cleaned))
	l.logger.Info("static list loaded", zap.String("path", l.path), zap.Int("entries", len(cleaned)))
	return len(cleaned), nil
}

// Decode parses a list encoded as JSON (".json") or YAML (".yaml", ".yml").
func Decode(raw []byte, ext string) ([]catalog.StaticEntry, error) {
	var entries []catalog.StaticEntry
	switch strings.ToLower(ext) {
	case ".json":
		if err := json.Unmarshal(raw, &entries); err != nil {
			return nil, fmt.Errorf("unmarshal json: %w", err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(raw, &entries); err != nil {
			return nil, fmt.Errorf("unmarshal yaml: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported static list format %q", ext)
	}
	return entries, nil
}

// validate drops nameless and duplicate entries, keeping the first occurrence.
func validate(entries []catalog.StaticEntry, logger *zap.Logger) []catalog.StaticEntry {
	seen := make(map[string]bool, len(entries))
	out := make([]catalog.StaticEntry, 0, len(entries))
	for i, entry := range entries {
		entry.Name = strings.TrimSpace(entry.Name)
		entry.Fetcher = strings.TrimSpace(entry.Fetcher)
		if entry.Name == "" {
			logger.Warn("dropping static entry without name", zap.Int("index", i))
			continue
		}
		if seen[entry.Name] {
			logger.Warn("dropping duplicate static entry", zap.String("name", entry.Name), zap.Int("index", i))
			continue
		}
		seen[entry.Name] = true
		out = append(out, entry)
	}
	return out
}

// Watch reloads the list whenever its file changes until ctx is done.
// Editors often write through a rename, so the parent directory is watched.
func (l *Loader) Watch(ctx context.Context) error {
	if l.path == "" {
		return fmt.Errorf("static list has no backing file")
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	if err := watcher.Add(filepath.Dir(l.path)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(l.path), err)
	}

	var timer *time.Timer
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			l.logger.Warn("static list watcher error", zap.Error(err))
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != l.path {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(l.debounce)
				continue
			}
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(l.debounce)
		case <-timerChan(timer):
			timer = nil
			if _, err := l.Reload(); err != nil {
				l.logger.Warn("static list reload failed", zap.Error(err))
			}
		}
	}
}

func timerChan(timer *time.Timer) <-chan time.Time {
	if timer == nil {
		return nil
	}
	return timer.C
}
