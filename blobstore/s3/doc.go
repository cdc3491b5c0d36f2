// Package s3 provides an S3 implementation of blobstore.ConditionalStore.
//
// Create-only writes use S3 conditional writes (If-None-Match: *), so the
// store works as a coordination point for the blob authority without any
// other service.
//
// # Usage
//
//	store, err := s3.New(ctx, "my-bucket", "graphid/")
//	auth := blob.New(store)
//
// # Features
//
//   - Conditional create-only writes
//   - CRC32C integrity validation on every upload
//   - Automatic pagination for listing
//   - Configurable prefix for multi-tenant isolation
package s3
