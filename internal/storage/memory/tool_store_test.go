package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/toolshelf/internal/catalog"
	"github.com/JakeFAU/toolshelf/internal/storage/storetest"
)

func TestToolStoreContract(t *testing.T) {
	t.Parallel()

	storetest.RunToolStore(t, func(*testing.T) catalog.ToolStore {
		return NewToolStore()
	})
}

func TestToolStoreReturnsCopies(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewToolStore()
	require.NoError(t, store.Insert(ctx, catalog.ToolRecord{
		Name:        "Python",
		VersionList: []catalog.VersionEntry{{Version: "3.12.1"}},
	}))

	rec, err := store.FindByName(ctx, "Python")
	require.NoError(t, err)
	rec.VersionList[0].Version = "mutated"

	again, err := store.FindByName(ctx, "Python")
	require.NoError(t, err)
	require.Equal(t, "3.12.1", again.VersionList[0].Version)

	require.Error(t, store.Insert(ctx, catalog.ToolRecord{}))
}
