// Package blobstore provides small-object storage with an atomic
// create-only write.
//
// BlobStore is the interface for reading and writing named blobs.
// ConditionalStore adds PutIfAbsent, the primitive the blob authority builds
// its claim chains on. Implementations must be safe for concurrent use.
//
// # Built-in Implementations
//
//   - MemoryStore: in-process, for tests
//   - LocalStore: local directory, create-only writes via hard links
//   - s3.Store: Amazon S3 conditional writes (If-None-Match)
//   - minio.Store: MinIO and other S3-compatible servers
//   - CachingStore: LRU read cache over any ConditionalStore
//
// # Custom Implementations
//
//	type ConditionalStore interface {
//	    Get(ctx, name) ([]byte, error)
//	    Put(ctx, name, data) error
//	    PutIfAbsent(ctx, name, data) error // ErrExists if taken
//	    Delete(ctx, name) error
//	    List(ctx, prefix) ([]string, error) // sorted
//	}
package blobstore
