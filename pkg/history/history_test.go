package history

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRecordAndQueryChain(t *testing.T) {
	store, err := Open(":memory:")
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	chain := []string{"http://a.example/", "http://b.example/", "http://c.example/"}
	require.NoError(t, store.RecordChain(ctx, "http://start.example/", chain))

	got, err := store.RedirectsFrom(ctx, "http://start.example/")
	require.NoError(t, err)
	require.Equal(t, chain, got)
}

func TestUnknownSourceIsEmptyNotError(t *testing.T) {
	store, err := Open(":memory:")
	require.NoError(t, err)
	defer store.Close()

	got, err := store.RedirectsFrom(context.Background(), "http://nowhere.example/")
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestRecordChainReplaces(t *testing.T) {
	store, err := Open(":memory:")
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	require.NoError(t, store.RecordChain(ctx, "http://s.example/", []string{"http://old.example/"}))
	require.NoError(t, store.RecordChain(ctx, "http://s.example/", []string{"http://new.example/", "http://newer.example/"}))

	got, err := store.RedirectsFrom(ctx, "http://s.example/")
	require.NoError(t, err)
	require.Equal(t, []string{"http://new.example/", "http://newer.example/"}, got)
}

func TestOpenCreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "history.db")
	store, err := Open(path)
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.RecordChain(context.Background(), "http://s.example/", []string{"http://t.example/"}))
}

func TestClosedStore(t *testing.T) {
	store, err := Open(":memory:")
	require.NoError(t, err)
	require.NoError(t, store.Close())

	_, err = store.RedirectsFrom(context.Background(), "http://s.example/")
	require.ErrorIs(t, err, ErrClosed)
	require.ErrorIs(t, store.RecordChain(context.Background(), "x", nil), ErrClosed)

	// Closing twice is fine.
	require.NoError(t, store.Close())
}
