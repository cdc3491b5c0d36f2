package blobstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/graphid/internal/fs"
)

func testStores(t *testing.T) map[string]ConditionalStore {
	t.Helper()
	caching, err := NewCachingStore(NewMemoryStore(), 16)
	require.NoError(t, err)
	return map[string]ConditionalStore{
		"Memory":  NewMemoryStore(),
		"Local":   NewLocalStore(t.TempDir()),
		"Caching": caching,
	}
}

func TestStores(t *testing.T) {
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			_, err := store.Get(ctx, "a/missing")
			assert.ErrorIs(t, err, ErrNotFound)

			require.NoError(t, store.Put(ctx, "a/one", []byte("1")))
			require.NoError(t, store.Put(ctx, "a/one", []byte("uno")))
			data, err := store.Get(ctx, "a/one")
			require.NoError(t, err)
			assert.Equal(t, "uno", string(data))

			require.NoError(t, store.PutIfAbsent(ctx, "a/two", []byte("2")))
			assert.ErrorIs(t, store.PutIfAbsent(ctx, "a/two", []byte("zwei")), ErrExists)
			data, err = store.Get(ctx, "a/two")
			require.NoError(t, err)
			assert.Equal(t, "2", string(data))

			require.NoError(t, store.Put(ctx, "b/three", []byte("3")))

			names, err := store.List(ctx, "a/")
			require.NoError(t, err)
			assert.Equal(t, []string{"a/one", "a/two"}, names)

			names, err = store.List(ctx, "")
			require.NoError(t, err)
			assert.Equal(t, []string{"a/one", "a/two", "b/three"}, names)

			require.NoError(t, store.Delete(ctx, "a/one"))
			require.NoError(t, store.Delete(ctx, "a/one"))
			_, err = store.Get(ctx, "a/one")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestStores_PutIfAbsentRace(t *testing.T) {
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			var wins atomic.Int32
			var wg sync.WaitGroup
			for i := 0; i < 16; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					err := store.PutIfAbsent(ctx, "claims/0001", []byte(fmt.Sprint(i)))
					if err == nil {
						wins.Add(1)
						return
					}
					assert.ErrorIs(t, err, ErrExists)
				}(i)
			}
			wg.Wait()
			assert.Equal(t, int32(1), wins.Load())
		})
	}
}

func TestMemoryStore_CopiesData(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	data := []byte("abc")
	require.NoError(t, s.Put(ctx, "x", data))
	data[0] = 'z'

	got, err := s.Get(ctx, "x")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(got))
	got[0] = 'q'

	again, err := s.Get(ctx, "x")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(again))
}

func TestLocalStore_InvalidNames(t *testing.T) {
	ctx := context.Background()
	s := NewLocalStore(t.TempDir())

	for _, name := range []string{"", "../escape", "/abs", "x.tmp"} {
		assert.Error(t, s.Put(ctx, name, []byte("x")), name)
		_, err := s.Get(ctx, name)
		assert.Error(t, err, name)
	}
}

func TestLocalStore_Faults(t *testing.T) {
	ctx := context.Background()
	ffs := fs.NewFaultyFS(nil)
	s := NewLocalStore(t.TempDir(), WithFileSystem(ffs))

	boom := errors.New("disk full")
	ffs.AddRule("claims", fs.Fault{FailAfterBytes: -1, FailOnSync: true, Err: boom})
	assert.ErrorIs(t, s.PutIfAbsent(ctx, "claims/1", []byte("x")), boom)

	// A failed write leaves nothing behind.
	ffs.ClearRules()
	names, err := s.List(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, names)

	ffs.AddRule("claims/2", fs.Fault{FailAfterBytes: -1, FailOnLink: true, Err: boom})
	assert.ErrorIs(t, s.PutIfAbsent(ctx, "claims/2", []byte("x")), boom)
	_, err = s.Get(ctx, "claims/2")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLocalStore_ListMissingRoot(t *testing.T) {
	s := NewLocalStore(t.TempDir() + "/not-yet")
	names, err := s.List(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestCachingStore(t *testing.T) {
	ctx := context.Background()
	inner := NewMemoryStore()
	s, err := NewCachingStore(inner, 2)
	require.NoError(t, err)

	require.NoError(t, s.PutIfAbsent(ctx, "a", []byte("1")))
	for i := 0; i < 3; i++ {
		got, err := s.Get(ctx, "a")
		require.NoError(t, err)
		assert.Equal(t, "1", string(got))
	}
	hits, misses := s.Stats()
	assert.Equal(t, int64(3), hits)
	assert.Zero(t, misses)

	// Writes through the cache invalidate.
	require.NoError(t, s.Put(ctx, "a", []byte("2")))
	got, err := s.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "2", string(got))

	require.NoError(t, s.Delete(ctx, "a"))
	_, err = s.Get(ctx, "a")
	assert.ErrorIs(t, err, ErrNotFound)

	// Failed conditional writes do not populate the cache.
	require.NoError(t, inner.Put(ctx, "b", []byte("inner")))
	assert.ErrorIs(t, s.PutIfAbsent(ctx, "b", []byte("mine")), ErrExists)
	got, err = s.Get(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, "inner", string(got))
}

func BenchmarkCachingStore_Get(b *testing.B) {
	ctx := context.Background()
	s, _ := NewCachingStore(NewMemoryStore(), 0)
	_ = s.PutIfAbsent(ctx, "claim", []byte("00000000000000000100"))
	for b.Loop() {
		_, _ = s.Get(ctx, "claim")
	}
}
