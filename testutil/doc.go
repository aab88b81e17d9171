// Package testutil provides fixtures for tests: synthetic records, fake
// GRIB files with a JSON payload decoder, and an in-memory transport with
// failure injection.
//
//	rng := testutil.NewRNG(42)
//	recs := rng.RandomRecords("a.grib", 100, testutil.Domain{
//		"param": {"t", "z"},
//		"level": {"500", "850"},
//	})
//	idx, err := index.Build(ctx, "a.grib", testutil.Records(recs...))
//
// This package is intended for tests only.
package testutil
