// Package grib frames GRIB messages without interpreting their payload.
//
// Scan finds message boundaries for editions 1 and 2. Attribute extraction
// and data decoding are left to a Decoder, typically backed by a native
// library.
package grib
