package staging

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewStore(client, time.Hour), mr
}

func TestStoreAddMergesSameMaterial(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	entries, err := store.Add(ctx, "sess-1", 7, Entry{MaterialID: 3, Quantity: 2})
	require.NoError(t, err)
	require.Len(t, entries, 1)

	entries, err = store.Add(ctx, "sess-1", 7, Entry{MaterialID: 3, Quantity: 1.5})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, 3.5, entries[0].Quantity)

	entries, err = store.Add(ctx, "sess-1", 7, Entry{MaterialID: 4, Quantity: 1})
	require.NoError(t, err)
	require.Len(t, entries, 2)
}

func TestStoreKeysAreSessionAndWarehouseScoped(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	_, err := store.Add(ctx, "sess-1", 7, Entry{MaterialID: 3, Quantity: 2})
	require.NoError(t, err)

	other, err := store.List(ctx, "sess-2", 7)
	require.NoError(t, err)
	require.Empty(t, other)

	otherWh, err := store.List(ctx, "sess-1", 8)
	require.NoError(t, err)
	require.Empty(t, otherWh)
}

func TestStoreRemoveAndClear(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	_, err := store.Add(ctx, "sess-1", 7, Entry{MaterialID: 3, Quantity: 2})
	require.NoError(t, err)
	_, err = store.Add(ctx, "sess-1", 7, Entry{MaterialID: 4, Quantity: 1})
	require.NoError(t, err)

	entries, err := store.Remove(ctx, "sess-1", 7, 3)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, int64(4), entries[0].MaterialID)

	require.NoError(t, store.Clear(ctx, "sess-1", 7))
	entries, err = store.List(ctx, "sess-1", 7)
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestStoreEntriesExpire(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	_, err := store.Add(ctx, "sess-1", 7, Entry{MaterialID: 3, Quantity: 2})
	require.NoError(t, err)

	mr.FastForward(2 * time.Hour)

	entries, err := store.List(ctx, "sess-1", 7)
	require.NoError(t, err)
	require.Empty(t, entries)
}
