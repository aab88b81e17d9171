// Package cache keeps recently fetched blocks of remote blobs in memory.
//
// Remote GRIB files are read in aligned blocks. Keeping them lets
// overlapping selections over the same file skip the download the second
// time. Capacity is counted in bytes; a block larger than the whole cache
// is never stored.
//
// Sharded spreads keys over independent LRU shards so that parallel range
// fetches rarely contend on a lock. Both caches can charge their bytes to a
// resource.Controller and skip caching when its memory limit is reached.
package cache
