// Package jsonlstore reads and writes indexes as JSON lines.
//
// Every line is one flat object. The keys _path, _offset and _length
// locate the record; all other keys are attributes:
//
//	{"_path":"a.grib","_offset":0,"_length":1024,"param":"t","levelist":500}
//
// This is the layout of the sidecar indexes published next to GRIB files by
// several data providers. Files written by this package start with a
// header line carrying the version, the resource and the schema.
// Compression follows the file extension: .jsonl, .jsonl.zst or .jsonl.lz4.
package jsonlstore
