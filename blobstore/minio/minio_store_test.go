package minio

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/graphid/blobstore"
)

// newTestStore requires a running MinIO instance.
// Skip if not available.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	endpoint := "localhost:9000"
	accessKey := "minioadmin"
	secretKey := "minioadmin"
	bucket := "test-graphid"

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: false,
	})
	if err != nil {
		t.Skipf("MinIO client creation failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	// Check if MinIO is reachable
	if _, err = client.ListBuckets(ctx); err != nil {
		t.Skipf("MinIO not available: %v", err)
	}

	// Ensure bucket exists
	exists, err := client.BucketExists(ctx, bucket)
	require.NoError(t, err)
	if !exists {
		require.NoError(t, client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}))
	}

	return NewStore(client, bucket, fmt.Sprintf("test-%d/", time.Now().UnixNano()))
}

func TestMinioStore_Integration(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.Get(ctx, "missing")
	assert.ErrorIs(t, err, blobstore.ErrNotFound)

	require.NoError(t, store.Put(ctx, "test.txt", []byte("hello minio world")))
	data, err := store.Get(ctx, "test.txt")
	require.NoError(t, err)
	assert.Equal(t, "hello minio world", string(data))

	require.NoError(t, store.PutIfAbsent(ctx, "claims/1", []byte("11")))
	assert.ErrorIs(t, store.PutIfAbsent(ctx, "claims/1", []byte("12")), blobstore.ErrExists)

	names, err := store.List(ctx, "claims/")
	require.NoError(t, err)
	assert.Equal(t, []string{"claims/1"}, names)

	require.NoError(t, store.Delete(ctx, "test.txt"))
	require.NoError(t, store.Delete(ctx, "claims/1"))
	require.NoError(t, store.Delete(ctx, "claims/1"))

	_, err = store.Get(ctx, "test.txt")
	assert.ErrorIs(t, err, blobstore.ErrNotFound)
}

func TestMinioStore_PutIfAbsentRace(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if store.PutIfAbsent(ctx, "race", []byte("x")) == nil {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins.Load())
	_ = store.Delete(ctx, "race")
}
