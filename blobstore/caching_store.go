package blobstore

import (
	"context"
	"slices"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCacheEntries is the cache capacity used when none is given.
const DefaultCacheEntries = 4096

// CachingStore wraps a ConditionalStore and caches Get results.
//
// Entries are invalidated on Put and Delete through this store only; the
// cache suits blobs that are written once and never changed, such as
// claim records.
type CachingStore struct {
	inner  ConditionalStore
	cache  *lru.Cache[string, []byte]
	hits   atomic.Int64
	misses atomic.Int64
}

// NewCachingStore creates a new CachingStore holding up to entries blobs.
// entries defaults to DefaultCacheEntries if <= 0.
func NewCachingStore(inner ConditionalStore, entries int) (*CachingStore, error) {
	if entries <= 0 {
		entries = DefaultCacheEntries
	}
	c, err := lru.New[string, []byte](entries)
	if err != nil {
		return nil, err
	}
	return &CachingStore{inner: inner, cache: c}, nil
}

// Get returns the cached content or reads it from the inner store.
func (s *CachingStore) Get(ctx context.Context, name string) ([]byte, error) {
	if data, ok := s.cache.Get(name); ok {
		s.hits.Add(1)
		return slices.Clone(data), nil
	}
	s.misses.Add(1)

	data, err := s.inner.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	s.cache.Add(name, slices.Clone(data))
	return data, nil
}

// Put invalidates the cached entry and writes through.
func (s *CachingStore) Put(ctx context.Context, name string, data []byte) error {
	s.cache.Remove(name)
	return s.inner.Put(ctx, name, data)
}

// PutIfAbsent writes through and caches the content on success.
func (s *CachingStore) PutIfAbsent(ctx context.Context, name string, data []byte) error {
	if err := s.inner.PutIfAbsent(ctx, name, data); err != nil {
		return err
	}
	s.cache.Add(name, slices.Clone(data))
	return nil
}

// Delete invalidates the cached entry and deletes through.
func (s *CachingStore) Delete(ctx context.Context, name string) error {
	s.cache.Remove(name)
	return s.inner.Delete(ctx, name)
}

// List is never cached.
func (s *CachingStore) List(ctx context.Context, prefix string) ([]string, error) {
	return s.inner.List(ctx, prefix)
}

// Stats returns cache hits and misses.
func (s *CachingStore) Stats() (hits, misses int64) {
	return s.hits.Load(), s.misses.Load()
}
