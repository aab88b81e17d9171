// Package httpstore reads blobs from HTTP(S) servers with range requests.
//
// Sizes come from HEAD requests and are cached for a configurable time.
// Range reads expect 206 Partial Content; a 200 answer from a server that
// ignores ranges is accepted and cut to the requested window. Requests that
// fail with a transport error, 429 or a 5xx status are retried with
// exponential backoff; Retry-After is honored.
//
//	store := httpstore.New("https://", httpstore.WithMaxTries(3))
//	t := blobstore.NewTransport(blobstore.WithMount("https://", store))
package httpstore
