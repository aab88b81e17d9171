// Package minio provides a BlobStore implementation using the MinIO client.
//
// MinIO is an S3-compatible object storage system. The official MinIO Go
// client also works with Ceph, SeaweedFS, Garage and similar services, which
// makes this store the choice for self-hosted GRIB archives.
//
// # Basic Usage
//
//	store, err := minio.Dial(minio.Config{
//	    Endpoint:  "localhost:9000",
//	    AccessKey: "minioadmin",
//	    SecretKey: "minioadmin",
//	}, "archive", "era5/")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	t := blobstore.NewTransport(blobstore.WithMount("minio://archive/era5/", store))
package minio
