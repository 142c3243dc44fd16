package staticlist

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/toolshelf/internal/catalog"
)

const appsJSON = `[
  {"name": "Visual Studio Code", "fetcher": "fetch_vscode", "category": "Programming", "homepage_url": "https://code.visualstudio.com/"},
  {"name": "7-Zip", "category": "Utilities", "version": "23.01", "download_url": "https://www.7-zip.org/a/7z2301-x64.exe"},
  {"name": "  ", "category": "Broken"},
  {"name": "7-Zip", "category": "Duplicate"}
]`

const appsYAML = `
- name: Node.js
  fetcher: fetch_nodejs
  category: Programming
  homepage_url: https://nodejs.org/
- name: Steam
  fetcher: fetch_steam
  category: Games
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestNewLoadsJSONAndValidates(t *testing.T) {
	t.Parallel()

	path := writeFile(t, t.TempDir(), "apps.json", appsJSON)
	loader, err := New(path, nil)
	require.NoError(t, err)

	entries := loader.Entries()
	require.Len(t, entries, 2)
	require.Equal(t, "Visual Studio Code", entries[0].Name)
	require.Equal(t, "fetch_vscode", entries[0].Fetcher)
	require.Equal(t, "Utilities", entries[1].Category, "first occurrence wins")
	require.Equal(t, path, loader.Path())
}

func TestNewLoadsYAML(t *testing.T) {
	t.Parallel()

	path := writeFile(t, t.TempDir(), "apps.yaml", appsYAML)
	loader, err := New(path, nil)
	require.NoError(t, err)

	entries := loader.Entries()
	require.Equal(t, []catalog.StaticEntry{
		{Name: "Node.js", Fetcher: "fetch_nodejs", Category: "Programming", HomepageURL: "https://nodejs.org/"},
		{Name: "Steam", Fetcher: "fetch_steam", Category: "Games"},
	}, entries)
}

func TestNewErrors(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	_, err := New("", nil)
	require.Error(t, err)

	_, err = New(filepath.Join(dir, "missing.json"), nil)
	require.Error(t, err)

	_, err = New(writeFile(t, dir, "apps.toml", "x = 1"), nil)
	require.ErrorContains(t, err, "unsupported")

	_, err = New(writeFile(t, dir, "bad.json", "{not json"), nil)
	require.Error(t, err)
}

func TestReloadKeepsPreviousSnapshotOnError(t *testing.T) {
	t.Parallel()

	path := writeFile(t, t.TempDir(), "apps.json", appsJSON)
	loader, err := New(path, nil)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("[oops"), 0o600))
	_, err = loader.Reload()
	require.Error(t, err)
	require.Len(t, loader.Entries(), 2)

	require.NoError(t, os.WriteFile(path, []byte(`[{"name":"Git","fetcher":"fetch_git"}]`), 0o600))
	n, err := loader.Reload()
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Equal(t, "Git", loader.Entries()[0].Name)
}

func TestEntriesReturnsCopy(t *testing.T) {
	t.Parallel()

	loader := FromEntries([]catalog.StaticEntry{{Name: "A"}, {Name: "A"}, {Name: ""}}, nil)
	entries := loader.Entries()
	require.Len(t, entries, 1)
	entries[0].Name = "mutated"
	require.Equal(t, "A", loader.Entries()[0].Name)

	n, err := loader.Reload()
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Error(t, loader.Watch(context.Background()))
}

func TestWatchReloadsOnWrite(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := writeFile(t, dir, "apps.json", `[{"name":"One"}]`)
	loader, err := New(path, nil)
	require.NoError(t, err)
	loader.debounce = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- loader.Watch(ctx) }()

	// Keep rewriting until the watcher has registered and picked a change up.
	require.Eventually(t, func() bool {
		_ = os.WriteFile(path, []byte(`[{"name":"One"},{"name":"Two"}]`), 0o600)
		return len(loader.Entries()) == 2
	}, 5*time.Second, 50*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("watch did not stop after cancel")
	}
}
