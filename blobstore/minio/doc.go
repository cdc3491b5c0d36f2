// Package minio provides a ConditionalStore implementation using the MinIO client.
//
// MinIO is a high-performance, S3-compatible object storage system. This package
// uses the official MinIO Go client library for optimal compatibility with MinIO
// and other S3-compatible storage systems that honor If-None-Match on PUT.
//
// # Basic Usage
//
//	client, err := minio.New("localhost:9000", &minio.Options{
//	    Creds:  credentials.NewStaticV4("minioadmin", "minioadmin", ""),
//	    Secure: false,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	store := minioblob.NewStore(client, "my-bucket", "graphid/")
//	auth := blob.New(store)
//
// # Features
//
//   - Native MinIO client
//   - Create-only writes through If-None-Match: *
//   - Air-gap friendly (no AWS dependencies required)
package minio
