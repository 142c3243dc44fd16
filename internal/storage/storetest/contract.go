// Package storetest holds behavior checks shared by every catalog.ToolStore
// backend.
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/toolshelf/internal/catalog"
)

// RunToolStore exercises the find/insert/update/list contract against stores
// produced by newStore. Each subtest gets a fresh, empty store.
func RunToolStore(t *testing.T, newStore func(t *testing.T) catalog.ToolStore) {
	t.Helper()
	ctx := context.Background()
	updated := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	t.Run("find missing", func(t *testing.T) {
		store := newStore(t)
		_, err := store.FindByName(ctx, "Git")
		require.ErrorIs(t, err, catalog.ErrNotFound)
	})

	t.Run("insert then find", func(t *testing.T) {
		store := newStore(t)
		rec := catalog.ToolRecord{
			Name:                   "Node.js",
			Category:               "Programming",
			Version:                "20.11.1",
			HomepageURL:            "https://nodejs.org/",
			OriginalDownloadURL:    "https://nodejs.org/dist/v20.11.1/node-v20.11.1-x64.msi",
			AcceleratedDownloadURL: "https://mirrors.huaweicloud.com/nodejs/v20.11.1/node-v20.11.1-x64.msi",
			VersionList: []catalog.VersionEntry{
				{Version: "v20.11.1", URL: "https://nodejs.org/dist/v20.11.1/node-v20.11.1-x64.msi", Group: catalog.GroupLTS},
				{Version: "v21.6.2", URL: "https://nodejs.org/dist/v21.6.2/node-v21.6.2-x64.msi", Group: catalog.GroupCurrent},
			},
			UpdatedAt: updated,
		}
		require.NoError(t, store.Insert(ctx, rec))

		got, err := store.FindByName(ctx, "Node.js")
		require.NoError(t, err)
		require.Equal(t, rec.Name, got.Name)
		require.Equal(t, rec.Version, got.Version)
		require.Equal(t, rec.AcceleratedDownloadURL, got.AcceleratedDownloadURL)
		require.Equal(t, rec.VersionList, got.VersionList)
		require.True(t, rec.UpdatedAt.Equal(got.UpdatedAt))
	})

	t.Run("duplicate insert fails", func(t *testing.T) {
		store := newStore(t)
		require.NoError(t, store.Insert(ctx, catalog.ToolRecord{Name: "Git"}))
		require.Error(t, store.Insert(ctx, catalog.ToolRecord{Name: "Git"}))
	})

	t.Run("update keeps untouched fields", func(t *testing.T) {
		store := newStore(t)
		require.NoError(t, store.Insert(ctx, catalog.ToolRecord{
			Name:        "Git",
			Description: "Distributed version control",
			Version:     "2.44.0",
		}))
		rec, err := store.FindByName(ctx, "Git")
		require.NoError(t, err)
		rec.Version = "2.45.1"
		require.NoError(t, store.Update(ctx, rec))

		got, err := store.FindByName(ctx, "Git")
		require.NoError(t, err)
		require.Equal(t, "2.45.1", got.Version)
		require.Equal(t, "Distributed version control", got.Description)
	})

	t.Run("update missing fails", func(t *testing.T) {
		store := newStore(t)
		require.Error(t, store.Update(ctx, catalog.ToolRecord{Name: "ghost"}))
	})

	t.Run("list keeps insertion order", func(t *testing.T) {
		store := newStore(t)
		for _, name := range []string{"VS Code", "Git", "Steam"} {
			require.NoError(t, store.Insert(ctx, catalog.ToolRecord{Name: name}))
		}
		require.NoError(t, store.Update(ctx, catalog.ToolRecord{Name: "VS Code", Version: "1.90"}))

		all, err := store.ListAll(ctx)
		require.NoError(t, err)
		names := make([]string, 0, len(all))
		for _, rec := range all {
			names = append(names, rec.Name)
		}
		require.Equal(t, []string{"VS Code", "Git", "Steam"}, names)
	})
}
