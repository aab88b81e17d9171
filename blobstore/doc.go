// Package blobstore provides storage access for GRIB files and sidecar indexes.
//
// BlobStore is the interface for reading and writing immutable blobs.
// Implementations must be safe for concurrent use.
//
// # Built-in Implementations
//
//   - LocalStore: Local filesystem with mmap support
//   - MemoryStore: In-memory store for tests
//   - CachingStore: Block cache in front of any store
//   - httpstore.Store: HTTP(S) range requests with retries
//   - s3.Store: Amazon S3 range reads and multipart uploads
//   - minio.Store: MinIO and S3-compatible services
//
// # Transport
//
// Transport maps URLs to stores by prefix and implements the range fetching
// used by the retrieval executor:
//
//	t := blobstore.NewTransport(
//	    blobstore.WithMount("https://", httpstore.New("https://")),
//	    blobstore.WithMount("s3://era5/", s3.NewStore(client, "era5", "")),
//	)
//	data, err := t.FetchRange(ctx, "s3://era5/2020/01.grib", off, n)
//
// Paths without a scheme and file:// URLs are served by a LocalStore.
package blobstore
