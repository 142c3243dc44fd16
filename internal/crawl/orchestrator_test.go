package crawl

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/toolshelf/internal/accelerator"
	"github.com/JakeFAU/toolshelf/internal/catalog"
	"github.com/JakeFAU/toolshelf/internal/clock/system"
	"github.com/JakeFAU/toolshelf/internal/sources"
	"github.com/JakeFAU/toolshelf/internal/storage/memory"
)

var fixedNow = time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)

func newRegistry(t *testing.T, srcs ...sources.Source) *sources.Registry {
	t.Helper()
	reg, err := sources.NewRegistry(srcs...)
	require.NoError(t, err)
	return reg
}

func newOrchestrator(reg Resolver, store catalog.ToolStore) *Orchestrator {
	return New(reg, store, accelerator.Default(), WithClock(system.Fixed{At: fixedNow}))
}

func fixed(id string, res catalog.SourceResult) sources.Source {
	return sources.NewFunc(id, func(context.Context) (catalog.SourceResult, error) {
		return res, nil
	})
}

func TestRun_OneSucceedsOneFails(t *testing.T) {
	t.Parallel()

	reg := newRegistry(t,
		fixed("fetch_good", catalog.SourceResult{Name: "Good", Version: "1.0", OriginalDownloadURL: "https://example.com/good.exe"}),
		sources.NewFunc("fetch_bad", func(context.Context) (catalog.SourceResult, error) {
			return catalog.SourceResult{}, errors.New("connection refused")
		}),
		sources.NewFunc("fetch_panics", func(context.Context) (catalog.SourceResult, error) {
			panic("nil map write")
		}),
	)
	store := memory.NewToolStore()

	report, err := newOrchestrator(reg, store).Run(context.Background(), []catalog.StaticEntry{
		{Name: "Good", Fetcher: "fetch_good"},
		{Name: "Bad", Fetcher: "fetch_bad"},
		{Name: "Panics", Fetcher: "fetch_panics"},
	})

	require.NoError(t, err)
	require.Equal(t, 3, report.Resolved)
	require.Equal(t, 1, report.Fetched)
	require.Equal(t, 1, report.Upserted)
	require.ElementsMatch(t, []string{"fetch_bad", "fetch_panics"}, report.FailedSources)

	all, err := store.ListAll(context.Background())
	require.NoError(t, err)
	require.Len(t, all, 1)
	require.Equal(t, "Good", all[0].Name)
}

func TestRun_UnknownAndMissingFetchersSkipped(t *testing.T) {
	t.Parallel()

	reg := newRegistry(t, sources.Steam{})
	store := memory.NewToolStore()

	report, err := newOrchestrator(reg, store).Run(context.Background(), []catalog.StaticEntry{
		{Name: "Notepad++"},
		{Name: "Mystery", Fetcher: "fetch_mystery"},
		{Name: "Steam", Fetcher: "fetch_steam"},
	})

	require.NoError(t, err)
	require.Equal(t, 2, report.Requested)
	require.Equal(t, 1, report.Resolved)
	require.Equal(t, []string{"fetch_mystery"}, report.Skipped)
	require.Equal(t, 1, report.Upserted)
}

func TestRun_EmptyListIsNotAnError(t *testing.T) {
	t.Parallel()

	report, err := newOrchestrator(newRegistry(t), memory.NewToolStore()).Run(context.Background(), nil)
	require.NoError(t, err)
	require.Zero(t, report.Resolved)
}

func TestRun_SteamAcceleratedEqualsOriginal(t *testing.T) {
	t.Parallel()

	reg := newRegistry(t, sources.Steam{})
	store := memory.NewToolStore()

	_, err := newOrchestrator(reg, store).Run(context.Background(), []catalog.StaticEntry{
		{Name: "Steam", Fetcher: "fetch_steam"},
	})
	require.NoError(t, err)

	rec, err := store.FindByName(context.Background(), "Steam")
	require.NoError(t, err)
	require.Equal(t, sources.SteamInstallerURL, rec.OriginalDownloadURL)
	require.Equal(t, rec.OriginalDownloadURL, rec.AcceleratedDownloadURL)
	require.Equal(t, "Games", rec.Category)
	require.Equal(t, fixedNow, rec.UpdatedAt)
}

func TestRun_InsertAcceleratesDownload(t *testing.T) {
	t.Parallel()

	reg := newRegistry(t, fixed("fetch_nodejs", catalog.SourceResult{
		Name:                "Node.js",
		Category:            "Programming",
		Version:             "20.11.1",
		HomepageURL:         "https://nodejs.org/",
		OriginalDownloadURL: "https://nodejs.org/dist/v20.11.1/node-v20.11.1-x64.msi",
		VersionList:         []catalog.VersionEntry{{Version: "v20.11.1", URL: "u", Group: catalog.GroupLTS}},
	}))
	store := memory.NewToolStore()

	_, err := newOrchestrator(reg, store).Run(context.Background(), []catalog.StaticEntry{{Name: "Node.js", Fetcher: "fetch_nodejs"}})
	require.NoError(t, err)

	rec, err := store.FindByName(context.Background(), "Node.js")
	require.NoError(t, err)
	require.Equal(t, "https://mirrors.huaweicloud.com/nodejs/v20.11.1/node-v20.11.1-x64.msi", rec.AcceleratedDownloadURL)
	require.Equal(t, "https://nodejs.org/", rec.HomepageURL)
	require.Len(t, rec.VersionList, 1)
}

func TestRun_UpdateOverwritesOnlyCrawlFields(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := memory.NewToolStore()
	require.NoError(t, store.Insert(ctx, catalog.ToolRecord{
		Name:                   "Git",
		Category:               "Old",
		Description:            "Curated text",
		HomepageURL:            "https://curated.example.com/",
		Icon:                   "data:image/png;base64,AAAA",
		Version:                "2.40.0",
		OriginalDownloadURL:    "https://old.example.com/git.exe",
		AcceleratedDownloadURL: "https://old.example.com/git.exe",
		VersionList:            []catalog.VersionEntry{{Version: "stale"}},
	}))
	original := "https://github.com/git-for-windows/git/releases/download/v2.45.1.windows.1/Git-2.45.1-64-bit.exe"
	reg := newRegistry(t, fixed("fetch_git", catalog.SourceResult{
		Name:                "Git",
		Category:            "Programming",
		Version:             "2.45.1.windows.1",
		HomepageURL:         "https://git-scm.com/",
		OriginalDownloadURL: original,
	}))

	_, err := newOrchestrator(reg, store).Run(ctx, []catalog.StaticEntry{{Name: "Git", Fetcher: "fetch_git"}})
	require.NoError(t, err)

	rec, err := store.FindByName(ctx, "Git")
	require.NoError(t, err)
	require.Equal(t, "Programming", rec.Category)
	require.Equal(t, "2.45.1.windows.1", rec.Version)
	require.Equal(t, original, rec.OriginalDownloadURL)
	require.Equal(t, accelerator.DefaultProxyBase+original, rec.AcceleratedDownloadURL)
	require.Empty(t, rec.VersionList)
	require.Equal(t, "Curated text", rec.Description)
	require.Equal(t, "https://curated.example.com/", rec.HomepageURL)
	require.Equal(t, "data:image/png;base64,AAAA", rec.Icon)
}

func TestRun_PersistenceFailureSurfaced(t *testing.T) {
	t.Parallel()

	reg := newRegistry(t,
		fixed("fetch_a", catalog.SourceResult{Name: "A", Version: "1"}),
		fixed("fetch_b", catalog.SourceResult{Name: "B", Version: "1"}),
	)
	store := &failingStore{ToolStore: memory.NewToolStore(), failName: "A"}

	report, err := newOrchestrator(reg, store).Run(context.Background(), []catalog.StaticEntry{
		{Name: "A", Fetcher: "fetch_a"},
		{Name: "B", Fetcher: "fetch_b"},
	})

	require.Error(t, err)
	require.ErrorIs(t, err, catalog.ErrPersistence)
	require.Equal(t, 2, report.Fetched)
	require.Equal(t, 1, report.Upserted, "other upserts still proceed")
	_, findErr := store.FindByName(context.Background(), "B")
	require.NoError(t, findErr)
}

func TestRun_FetchersRunConcurrently(t *testing.T) {
	t.Parallel()

	var inflight, peak atomic.Int32
	release := make(chan struct{})
	slow := func(name string) sources.FetchFunc {
		return func(ctx context.Context) (catalog.SourceResult, error) {
			n := inflight.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			<-release
			inflight.Add(-1)
			return catalog.SourceResult{Name: name, Version: "1"}, nil
		}
	}
	reg := newRegistry(t,
		sources.NewFunc("fetch_1", slow("One")),
		sources.NewFunc("fetch_2", slow("Two")),
		sources.NewFunc("fetch_3", slow("Three")),
	)
	go func() {
		defer close(release)
		deadline := time.Now().Add(2 * time.Second)
		for inflight.Load() < 3 && time.Now().Before(deadline) {
			time.Sleep(5 * time.Millisecond)
		}
	}()

	report, err := newOrchestrator(reg, memory.NewToolStore()).Run(context.Background(), []catalog.StaticEntry{
		{Name: "One", Fetcher: "fetch_1"},
		{Name: "Two", Fetcher: "fetch_2"},
		{Name: "Three", Fetcher: "fetch_3"},
	})
	require.NoError(t, err)
	require.Equal(t, 3, report.Upserted)
	require.EqualValues(t, 3, peak.Load())
}

func TestRun_DuplicateFetcherRunsOnce(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	reg := newRegistry(t, sources.NewFunc("fetch_x", func(context.Context) (catalog.SourceResult, error) {
		calls.Add(1)
		return catalog.SourceResult{Name: "X", Version: "1"}, nil
	}))

	report, err := newOrchestrator(reg, memory.NewToolStore()).Run(context.Background(), []catalog.StaticEntry{
		{Name: "X", Fetcher: "fetch_x"},
		{Name: "X again", Fetcher: "fetch_x"},
	})
	require.NoError(t, err)
	require.EqualValues(t, 1, calls.Load())
	require.Equal(t, 2, report.Requested)
	require.Equal(t, 1, report.Resolved)
}

func TestRun_NamelessResultIsAbsent(t *testing.T) {
	t.Parallel()

	reg := newRegistry(t, fixed("fetch_blank", catalog.SourceResult{}))
	report, err := newOrchestrator(reg, memory.NewToolStore()).Run(context.Background(), []catalog.StaticEntry{
		{Name: "Blank", Fetcher: "fetch_blank"},
	})
	require.NoError(t, err)
	require.Equal(t, []string{"fetch_blank"}, report.FailedSources)
}

func TestRunCrawl(t *testing.T) {
	t.Parallel()

	store := memory.NewToolStore()
	list := staticEntries{{Name: "Steam", Fetcher: "fetch_steam"}}
	report, err := newOrchestrator(newRegistry(t, sources.Steam{}), store).RunCrawl(context.Background(), list)
	require.NoError(t, err)
	require.Equal(t, 1, report.Upserted)
}

type staticEntries []catalog.StaticEntry

func (s staticEntries) Entries() []catalog.StaticEntry { return s }

type failingStore struct {
	catalog.ToolStore
	failName string
}

func (f *failingStore) Insert(ctx context.Context, rec catalog.ToolRecord) error {
	if rec.Name == f.failName {
		return errors.New("disk full")
	}
	return f.ToolStore.Insert(ctx, rec)
}
