// Package s3 provides an S3 implementation of the blobstore.BlobStore interface.
//
// # Usage
//
//	store, err := s3.New(ctx, "era5-bucket", "reanalysis/")
//
//	t := blobstore.NewTransport(
//	    blobstore.WithMount("s3://era5-bucket/reanalysis/", store),
//	)
//
// # Features
//
//   - Range reads for GRIB messages and planned blocks
//   - Multipart uploads for sidecar indexes
//   - Automatic pagination for listing
package s3
