package preview

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/John-Robertt/mtgview/internal/store"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	lazy := store.NewLazy(store.DSNForPath(filepath.Join(t.TempDir(), "preview.db")))
	t.Cleanup(func() { _ = lazy.Close() })
	return New(lazy)
}

func TestPutBatchThenGetBatch(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.PutBatch(ctx, []Entry{{Key: "s10010101", DataURI: "data:image/png;base64,AAA"}}))

	got, err := s.GetBatch(ctx, []string{"s10010101"})
	require.NoError(t, err)
	require.Equal(t, map[string]string{"s10010101": "data:image/png;base64,AAA"}, got)
}

func TestGetBatch_UnknownKeysOmitted(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	got, err := s.GetBatch(ctx, []string{"nope"})
	require.NoError(t, err)
	require.Empty(t, got)

	got, err = s.GetBatch(ctx, nil)
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestGetPutOverwrite(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, ok, err := s.Get(ctx, "a")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, s.Put(ctx, "a", "v1"))
	require.NoError(t, s.Put(ctx, "a", "v2"))

	v, ok, err := s.Get(ctx, "a")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "v2", v)

	n, err := s.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestGetBatch_ChunksLargeKeySets(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	var entries []Entry
	var keys []string
	for i := 0; i < batchChunk*2+7; i++ {
		k := fmt.Sprintf("k%04d", i)
		keys = append(keys, k)
		if i%2 == 0 {
			entries = append(entries, Entry{Key: k, DataURI: "v" + k})
		}
	}
	require.NoError(t, s.PutBatch(ctx, entries))

	got, err := s.GetBatch(ctx, append(keys, keys[0]))
	require.NoError(t, err)
	require.Len(t, got, len(entries))
	require.Equal(t, "vk0000", got["k0000"])
	require.NotContains(t, got, "k0001")
}

func TestKeysOrderAndClear(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return base.Add(time.Minute) }
	require.NoError(t, s.Put(ctx, "b", "1"))
	s.now = func() time.Time { return base }
	require.NoError(t, s.PutBatch(ctx, []Entry{{Key: "c", DataURI: "2"}, {Key: "a", DataURI: "3"}, {Key: " ", DataURI: "x"}}))

	keys, err := s.Keys(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"a", "c", "b"}, keys)

	require.NoError(t, s.Clear(ctx))
	n, err := s.Count(ctx)
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestStoreFailureIsStoreError(t *testing.T) {
	s := New(store.NewLazy("not-a-dsn"))
	_, err := s.GetBatch(context.Background(), []string{"a"})
	require.Error(t, err)
	require.True(t, store.IsStoreError(err))

	var nilStore *Store
	_, _, err = nilStore.Get(context.Background(), "a")
	require.True(t, store.IsStoreError(err))
}
