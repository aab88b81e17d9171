// Package rangeidx retrieves individual records from large GRIB files
// with as few HTTP range requests as possible.
//
// A resource is indexed once: every message is located and its attributes
// are stored in a small persistent index next to the user's cache. Queries
// then run against the index, and only the byte ranges of the selected
// records are downloaded. Ranges that are close together are merged into
// one request according to a grouping method.
//
// # Quick Start
//
//	ctx := context.Background()
//	c, _ := rangeidx.New()
//	src, _ := c.Index(ctx, "https://example.com/forecast.grib2", myDecoder)
//
//	sel, _ := src.Select(map[string]any{"param": "t", "level": []int{500, 850}})
//	sel, _ = sel.OrderBy("level", "param")
//
//	fs, err := sel.Retrieve(ctx, "cluster(5)")
//	for rec, err := range fs.All() {
//		...
//	}
//
// Publishers that ship a JSON lines index next to their data can be opened
// without scanning:
//
//	src, _ := c.OpenSidecar(ctx, "https://example.com/f.index", "https://example.com/f.grib2", myDecoder)
//
// # Grouping Methods
//
//	auto                       cost optimal split with a latency aware model
//	minimum-split              one request per file
//	maximum-split              one request per record
//	optimal-split(d, s)        minimizes d*bytes + s*requests
//	sharp(rate, latency)       optimal-split derived from link properties
//	blocked(n)                 expands to aligned blocks of n bytes
//	cluster(n)                 at most n requests per file
//	a|b                        applies b, then a to its blocks
//
// # Packages
//
//   - index: attribute index, lookup and persistence (sqlitestore, jsonlstore)
//   - selection, order: selection constraints and ordering
//   - parts: range grouping
//   - retrieve: parallel execution of a plan
//   - blobstore: transports for local files, HTTP, S3 and MinIO
//   - grib: message scanning and the Decoder interface
package rangeidx
